package optimizer

import (
	"fmt"
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rugbyfantasy/sixnations-optimizer/internal/rugby"
)

// buildPool creates perPosition players for every position, rotating the six
// clubs and varying scores deterministically.
func buildPool(perPosition int) []rugby.PlayerRecord {
	var pool []rugby.PlayerRecord
	id := 0
	for _, position := range rugby.Positions() {
		for i := 0; i < perPosition; i++ {
			id++
			pool = append(pool, rugby.PlayerRecord{
				ID:            strconv.Itoa(id),
				Name:          fmt.Sprintf("%s %d", position, i+1),
				Club:          rugby.Clubs[id%len(rugby.Clubs)],
				Position:      position,
				AveragePoints: float64(60 - i*3 + id%7),
			})
		}
	}
	return pool
}

func intPtr(v int) *int {
	return &v
}

func squadIDs(selection *Selection) map[string]bool {
	ids := make(map[string]bool, len(selection.Squad))
	for _, player := range selection.Squad {
		ids[player.ID] = true
	}
	return ids
}

func TestSelectSquad_DefaultQuota(t *testing.T) {
	pool := buildPool(5)
	config := SquadConfig{
		Quota:   rugby.DefaultQuota(),
		ClubCap: intPtr(rugby.DefaultClubCap),
	}

	selection, err := SelectSquad(pool, config)
	require.NoError(t, err)
	require.NotNil(t, selection)

	assert.Len(t, selection.Squad, 15, "squad size must equal the quota sum")

	for position, required := range rugby.DefaultQuota() {
		assert.Equal(t, required, selection.PositionBreakdown[position],
			"position %s must be filled exactly", position)
	}

	for club, count := range selection.ClubBreakdown {
		assert.LessOrEqual(t, count, rugby.DefaultClubCap, "club %s exceeds the cap", club)
	}

	sum := 0.0
	for _, player := range selection.Squad {
		assert.GreaterOrEqual(t, player.AveragePoints, 0.0)
		sum += player.AveragePoints
	}
	assert.InDelta(t, sum+selection.CaptainPoints, selection.TotalPoints, 1e-9,
		"captain must count twice")
	assert.InDelta(t, selection.TotalPoints/15, selection.AveragePoints, 1e-9)
}

func TestSelectSquad_PicksHigherScorerPerPosition(t *testing.T) {
	// Two candidates per position with no cross-position competition; the
	// higher scorer must win every slot.
	var pool []rugby.PlayerRecord
	expected := make(map[string]bool)
	id := 0
	for _, position := range rugby.Positions() {
		id++
		better := rugby.PlayerRecord{
			ID: strconv.Itoa(id), Name: string(position) + " A",
			Club: rugby.Clubs[id%len(rugby.Clubs)], Position: position,
			AveragePoints: 50 + float64(id),
		}
		id++
		worse := rugby.PlayerRecord{
			ID: strconv.Itoa(id), Name: string(position) + " B",
			Club: rugby.Clubs[id%len(rugby.Clubs)], Position: position,
			AveragePoints: 20 + float64(id),
		}
		expected[better.ID] = true
		pool = append(pool, worse, better)
	}

	quota := make(map[rugby.Position]int)
	for _, position := range rugby.Positions() {
		quota[position] = 1
	}

	selection, err := SelectSquad(pool, SquadConfig{Quota: quota})
	require.NoError(t, err)
	require.Len(t, selection.Squad, 8)

	for _, player := range selection.Squad {
		assert.True(t, expected[player.ID],
			"player %s (%s) is not the top scorer of their position", player.Name, player.ID)
	}
}

func TestSelectSquad_MatchesBruteForce(t *testing.T) {
	// Three candidates per position, one required from each, and a tight cap
	// of 2 with the best players clustered in two clubs. Exhaustive
	// enumeration confirms the solver's optimum.
	var pool []rugby.PlayerRecord
	id := 0
	for pi, position := range rugby.Positions() {
		for i := 0; i < 3; i++ {
			id++
			club := rugby.Clubs[i%2] // England and France hold the strongest slots
			if i == 2 {
				club = rugby.Clubs[2+pi%4]
			}
			pool = append(pool, rugby.PlayerRecord{
				ID:            strconv.Itoa(id),
				Name:          fmt.Sprintf("%s %d", position, i+1),
				Club:          club,
				Position:      position,
				AveragePoints: float64(40 - i*5 + id%3),
			})
		}
	}

	quota := make(map[rugby.Position]int)
	for _, position := range rugby.Positions() {
		quota[position] = 1
	}
	clubCap := 2

	selection, err := SelectSquad(pool, SquadConfig{Quota: quota, ClubCap: intPtr(clubCap)})
	require.NoError(t, err)

	objective := selection.TotalPoints - selection.CaptainPoints
	best := bruteForceBest(t, pool, clubCap)
	assert.InDelta(t, best, objective, 1e-6,
		"solver objective must match exhaustive enumeration")
}

// bruteForceBest enumerates every one-per-position squad honoring the club
// cap and returns the best score sum.
func bruteForceBest(t *testing.T, pool []rugby.PlayerRecord, clubCap int) float64 {
	t.Helper()

	byPosition := make(map[rugby.Position][]rugby.PlayerRecord)
	for _, player := range pool {
		byPosition[player.Position] = append(byPosition[player.Position], player)
	}
	positions := rugby.Positions()

	best := math.Inf(-1)
	var recurse func(idx int, clubs map[string]int, sum float64)
	recurse = func(idx int, clubs map[string]int, sum float64) {
		if idx == len(positions) {
			if sum > best {
				best = sum
			}
			return
		}
		for _, player := range byPosition[positions[idx]] {
			if clubs[player.Club]+1 > clubCap {
				continue
			}
			clubs[player.Club]++
			recurse(idx+1, clubs, sum+player.AveragePoints)
			clubs[player.Club]--
		}
	}
	recurse(0, make(map[string]int), 0)

	require.False(t, math.IsInf(best, -1), "enumeration found no feasible squad")
	return best
}

func TestSelectSquad_ClubCapToggle(t *testing.T) {
	pool := buildPool(5)
	// Make every England player outscore the field so the cap has to bite.
	englandEligible := 0
	for i := range pool {
		if pool[i].Club == "England" {
			pool[i].AveragePoints += 100
			englandEligible++
		}
	}
	require.Greater(t, englandEligible, rugby.DefaultClubCap)

	capped, err := SelectSquad(pool, SquadConfig{
		Quota:   rugby.DefaultQuota(),
		ClubCap: intPtr(rugby.DefaultClubCap),
	})
	require.NoError(t, err)
	assert.Equal(t, rugby.DefaultClubCap, capped.ClubBreakdown["England"],
		"the cap must hold back the stacked club")

	uncapped, err := SelectSquad(pool, SquadConfig{Quota: rugby.DefaultQuota()})
	require.NoError(t, err)
	assert.Greater(t, uncapped.ClubBreakdown["England"], rugby.DefaultClubCap,
		"without a cap the stacked club must dominate")
	assert.GreaterOrEqual(t,
		uncapped.TotalPoints-uncapped.CaptainPoints,
		capped.TotalPoints-capped.CaptainPoints,
		"dropping a constraint can only improve the objective")
}

func TestSelectSquad_SecondSquadDisjoint(t *testing.T) {
	pool := buildPool(7)
	config := SquadConfig{
		Quota:   rugby.DefaultQuota(),
		ClubCap: intPtr(rugby.DefaultClubCap),
	}

	first, err := SelectSquad(pool, config)
	require.NoError(t, err)

	firstIDs := make([]string, 0, len(first.Squad))
	for _, player := range first.Squad {
		firstIDs = append(firstIDs, player.ID)
	}

	second, err := SelectSquad(pool, SquadConfig{
		Quota:       config.Quota,
		ClubCap:     config.ClubCap,
		ExcludedIDs: firstIDs,
	})
	require.NoError(t, err)

	secondIDs := squadIDs(second)
	for _, id := range firstIDs {
		assert.False(t, secondIDs[id], "player %s appears in both squads", id)
	}
	assert.GreaterOrEqual(t,
		first.TotalPoints-first.CaptainPoints,
		second.TotalPoints-second.CaptainPoints,
		"the second squad draws from a strictly smaller pool")
}

func TestSelectSquad_InfeasibleWhenPositionMissing(t *testing.T) {
	var pool []rugby.PlayerRecord
	for _, player := range buildPool(5) {
		if player.Position != rugby.PositionHooker {
			pool = append(pool, player)
		}
	}

	selection, err := SelectSquad(pool, SquadConfig{Quota: rugby.DefaultQuota()})
	assert.Nil(t, selection)
	assert.ErrorIs(t, err, ErrInfeasible)
	assert.Contains(t, err.Error(), "Hooker", "the failing position must be named")
}

func TestSelectSquad_InfeasibleWhenCapTooTight(t *testing.T) {
	// Every position has supply, but 6 clubs at 2 apiece only reach 12 of
	// the 15 required players. The conflict is only visible to the solver.
	pool := buildPool(5)

	selection, err := SelectSquad(pool, SquadConfig{
		Quota:   rugby.DefaultQuota(),
		ClubCap: intPtr(2),
	})
	assert.Nil(t, selection)
	assert.ErrorIs(t, err, ErrInfeasible)
	assert.Contains(t, err.Error(), "club cap")
}

func TestSelectSquad_EmptyPool(t *testing.T) {
	_, err := SelectSquad(nil, SquadConfig{Quota: rugby.DefaultQuota()})
	assert.ErrorIs(t, err, ErrEmptyPool)

	pool := buildPool(1)
	ids := make([]string, len(pool))
	for i, player := range pool {
		ids[i] = player.ID
	}
	_, err = SelectSquad(pool, SquadConfig{Quota: rugby.DefaultQuota(), ExcludedIDs: ids})
	assert.ErrorIs(t, err, ErrEmptyPool)
}

func TestSelectSquad_InvalidConfiguration(t *testing.T) {
	pool := buildPool(5)

	tests := []struct {
		name   string
		config SquadConfig
	}{
		{
			name:   "nil quota",
			config: SquadConfig{},
		},
		{
			name:   "quota sums to zero",
			config: SquadConfig{Quota: map[rugby.Position]int{rugby.PositionProp: 0}},
		},
		{
			name: "negative quota",
			config: SquadConfig{Quota: map[rugby.Position]int{
				rugby.PositionProp:   -1,
				rugby.PositionHooker: 2,
			}},
		},
		{
			name:   "unknown quota position",
			config: SquadConfig{Quota: map[rugby.Position]int{rugby.Position("Libero"): 2}},
		},
		{
			name:   "zero club cap",
			config: SquadConfig{Quota: rugby.DefaultQuota(), ClubCap: intPtr(0)},
		},
		{
			name:   "negative club cap",
			config: SquadConfig{Quota: rugby.DefaultQuota(), ClubCap: intPtr(-3)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selection, err := SelectSquad(pool, tt.config)
			assert.Nil(t, selection)
			assert.ErrorIs(t, err, ErrInvalidConfiguration)
		})
	}
}

func TestSelectSquad_CaptainTieBreak(t *testing.T) {
	// The two top scorers tie at 80 points. Numeric ID order must decide:
	// player "9" beats player "21" even though "21" sorts first as a string.
	var pool []rugby.PlayerRecord
	id := 0
	for _, position := range rugby.Positions() {
		for i := 0; i < 2; i++ {
			id++
			score := 30.0 + float64(id)
			playerID := strconv.Itoa(id)
			switch {
			case position == rugby.PositionScrumHalf && i == 0:
				playerID, score = "9", 80
			case position == rugby.PositionFlyHalf && i == 0:
				playerID, score = "21", 80
			}
			pool = append(pool, rugby.PlayerRecord{
				ID:            playerID,
				Name:          fmt.Sprintf("%s %d", position, i+1),
				Club:          rugby.Clubs[id%len(rugby.Clubs)],
				Position:      position,
				AveragePoints: score,
			})
		}
	}

	quota := make(map[rugby.Position]int)
	for _, position := range rugby.Positions() {
		quota[position] = 1
	}

	first, err := SelectSquad(pool, SquadConfig{Quota: quota})
	require.NoError(t, err)
	assert.Equal(t, "9", first.Captain.ID)
	assert.InDelta(t, 80.0, first.CaptainPoints, 1e-9)

	second, err := SelectSquad(pool, SquadConfig{Quota: quota})
	require.NoError(t, err)
	assert.Equal(t, first.Captain.ID, second.Captain.ID, "tie-break must be stable")
}

func TestSelectSquad_ExcludedPlayerNeverSelected(t *testing.T) {
	pool := buildPool(5)
	pool[0].AveragePoints = 500 // irresistible unless excluded
	star := pool[0]

	selection, err := SelectSquad(pool, SquadConfig{
		Quota:       rugby.DefaultQuota(),
		ExcludedIDs: []string{star.ID},
	})
	require.NoError(t, err)
	assert.False(t, squadIDs(selection)[star.ID], "excluded player was selected")
}

func TestSelectSquad_UnknownPositionIneligible(t *testing.T) {
	pool := buildPool(5)
	pool = append(pool, rugby.PlayerRecord{
		ID:            "999",
		Name:          "Mystery Man",
		Club:          "England",
		Position:      rugby.PositionUnknown,
		AveragePoints: 1000,
	})

	selection, err := SelectSquad(pool, SquadConfig{Quota: rugby.DefaultQuota()})
	require.NoError(t, err)
	assert.False(t, squadIDs(selection)["999"], "Unknown position can never fill a quota")
}

func TestSelectSquad_DeterministicAcrossCalls(t *testing.T) {
	pool := buildPool(6) // score formula yields ties between positions
	config := SquadConfig{
		Quota:   rugby.DefaultQuota(),
		ClubCap: intPtr(rugby.DefaultClubCap),
	}

	first, err := SelectSquad(pool, config)
	require.NoError(t, err)
	second, err := SelectSquad(pool, config)
	require.NoError(t, err)

	assert.Equal(t, squadIDs(first), squadIDs(second))
	assert.Equal(t, first.Captain.ID, second.Captain.ID)
	assert.Equal(t, first.TotalPoints, second.TotalPoints)
}
