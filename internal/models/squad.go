package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Squad struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Reference     string    `gorm:"uniqueIndex;not null" json:"reference"`
	Label         string    `json:"label"`
	ClubCap       int       `json:"club_cap"` // 0 means the cap was disabled
	CaptainID     uint      `json:"captain_id"`
	TotalPoints   float64   `gorm:"not null" json:"total_points"`
	AveragePoints float64   `json:"average_points"`
	CaptainPoints float64   `json:"captain_points"`
	SolveTimeMs   int64     `json:"solve_time_ms"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Associations
	Players []SquadPlayer `gorm:"foreignKey:SquadID" json:"players,omitempty"`
}

// TableName specifies the table name for GORM
func (Squad) TableName() string {
	return "squads"
}

// BeforeCreate assigns the external reference used in API routes and exports.
func (s *Squad) BeforeCreate(tx *gorm.DB) error {
	if s.Reference == "" {
		s.Reference = uuid.NewString()
	}
	return nil
}

// ClubBreakdown counts selected players per club
func (s *Squad) ClubBreakdown() map[string]int {
	breakdown := make(map[string]int)
	for _, sp := range s.Players {
		breakdown[sp.Player.Club]++
	}
	return breakdown
}

// PositionBreakdown counts selected players per position
func (s *Squad) PositionBreakdown() map[string]int {
	breakdown := make(map[string]int)
	for _, sp := range s.Players {
		breakdown[sp.Position]++
	}
	return breakdown
}

// Captain returns the captain row, or nil when the squad has none recorded.
func (s *Squad) Captain() *SquadPlayer {
	for i := range s.Players {
		if s.Players[i].IsCaptain {
			return &s.Players[i]
		}
	}
	return nil
}

// LoadPlayers loads the squad's player rows with their players attached.
func (s *Squad) LoadPlayers(db *gorm.DB) error {
	return db.Preload("Player").
		Where("squad_id = ?", s.ID).
		Order("shirt").
		Find(&s.Players).Error
}

// SquadPlayer represents the join table for squad-player relationships
type SquadPlayer struct {
	SquadID   uint    `gorm:"primaryKey" json:"squad_id"`
	PlayerID  uint    `gorm:"primaryKey" json:"player_id"`
	Position  string  `gorm:"not null" json:"position"` // position at selection time
	Shirt     int     `json:"shirt"`                    // 1-15 teamsheet number
	IsCaptain bool    `gorm:"default:false" json:"is_captain"`
	Points    float64 `json:"points"` // average points at selection time

	Player Player `gorm:"foreignKey:PlayerID" json:"player,omitempty"`
}

// TableName specifies the table name for GORM
func (SquadPlayer) TableName() string {
	return "squad_players"
}
