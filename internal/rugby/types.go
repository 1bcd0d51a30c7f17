package rugby

import (
	"context"
	"strings"
	"time"
)

// Position is one of the eight squad roles a player can fill. Players whose
// upstream position code has no mapping carry PositionUnknown and can never
// count toward a quota.
type Position string

const (
	PositionProp      Position = "Prop"
	PositionHooker    Position = "Hooker"
	PositionSecondRow Position = "Second Row"
	PositionBackRow   Position = "Back Row"
	PositionScrumHalf Position = "Scrum Half"
	PositionFlyHalf   Position = "Fly Half"
	PositionCentre    Position = "Centre"
	PositionBackThree Position = "Back Three"
	PositionUnknown   Position = "Unknown"
)

// positionCodes maps the numeric position codes used by the fantasy stats API
// onto squad roles.
var positionCodes = map[string]Position{
	"6":  PositionBackThree,
	"7":  PositionCentre,
	"8":  PositionFlyHalf,
	"9":  PositionScrumHalf,
	"10": PositionBackRow,
	"11": PositionSecondRow,
	"12": PositionProp,
	"13": PositionHooker,
}

// PositionFromCode resolves an upstream position code. Unrecognized codes
// return PositionUnknown.
func PositionFromCode(code string) Position {
	if pos, ok := positionCodes[code]; ok {
		return pos
	}
	return PositionUnknown
}

// ParsePosition resolves a position display name, tolerating case and
// surrounding space. Unrecognized names return PositionUnknown.
func ParsePosition(name string) Position {
	trimmed := strings.TrimSpace(name)
	for _, pos := range Positions() {
		if strings.EqualFold(trimmed, string(pos)) {
			return pos
		}
	}
	return PositionUnknown
}

// Positions lists the eight roles in teamsheet order, forwards first.
func Positions() []Position {
	return []Position{
		PositionProp,
		PositionHooker,
		PositionSecondRow,
		PositionBackRow,
		PositionScrumHalf,
		PositionFlyHalf,
		PositionCentre,
		PositionBackThree,
	}
}

// DefaultClubCap is the standard limit on players from one nation in a squad.
const DefaultClubCap = 4

// DefaultQuota returns the standard 15-player squad requirements.
func DefaultQuota() map[Position]int {
	return map[Position]int{
		PositionProp:      2,
		PositionHooker:    1,
		PositionSecondRow: 2,
		PositionBackRow:   3,
		PositionScrumHalf: 1,
		PositionFlyHalf:   1,
		PositionCentre:    2,
		PositionBackThree: 3,
	}
}

// QuotaSize is the squad size implied by a quota.
func QuotaSize(quota map[Position]int) int {
	total := 0
	for _, n := range quota {
		total += n
	}
	return total
}

// Clubs lists the six competing nations.
var Clubs = []string{"England", "France", "Ireland", "Italy", "Scotland", "Wales"}

// PlayerRecord represents one player as supplied by a stats provider. Records
// are read-only once loaded; a missing or unparseable score is carried as 0.
type PlayerRecord struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Club          string             `json:"club"`
	Position      Position           `json:"position"`
	AveragePoints float64            `json:"average_points"`
	TotalPoints   float64            `json:"total_points"`
	Criteria      map[string]float64 `json:"criteria,omitempty"`
	LastUpdated   time.Time          `json:"last_updated"`
	Source        string             `json:"source"` // "sixnations", "csv"
}

// StatsProvider is the upstream player data source. Round 0 requests
// season-to-date figures; rounds 1..5 request a single matchday.
type StatsProvider interface {
	GetPlayers(ctx context.Context, round int) ([]PlayerRecord, error)
}

// CacheProvider interface for cache operations
type CacheProvider interface {
	SetSimple(key string, value interface{}, expiration time.Duration) error
	GetSimple(key string, dest interface{}) error
}
