package optimizer

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rugbyfantasy/sixnations-optimizer/internal/rugby"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/solver"
)

var (
	// ErrInfeasible reports that no squad satisfies the active constraints.
	// Retrying with identical inputs yields the identical answer, so callers
	// must treat this as final.
	ErrInfeasible = errors.New("no squad satisfies the active constraints")

	// ErrInvalidConfiguration reports a quota or club cap that is rejected
	// before any solving is attempted.
	ErrInvalidConfiguration = errors.New("invalid squad configuration")

	// ErrEmptyPool reports that no players remain after exclusions.
	ErrEmptyPool = errors.New("no eligible players in the pool")
)

// SquadConfig describes one selection run. A nil ClubCap disables the
// club-diversity constraint; a supplied cap must be at least 1.
type SquadConfig struct {
	Quota       map[rugby.Position]int `json:"quota"`
	ClubCap     *int                   `json:"club_cap,omitempty"`
	ExcludedIDs []string               `json:"excluded_ids,omitempty"`
	NodeLimit   int                    `json:"-"`
}

// Selection is the outcome of one squad selection. It is built fresh per
// call and never mutated afterwards.
type Selection struct {
	Squad             []rugby.PlayerRecord   `json:"squad"`
	Captain           rugby.PlayerRecord     `json:"captain"`
	TotalPoints       float64                `json:"total_points"`
	AveragePoints     float64                `json:"average_points"`
	CaptainPoints     float64                `json:"captain_points"`
	ClubBreakdown     map[string]int         `json:"club_breakdown"`
	PositionBreakdown map[rugby.Position]int `json:"position_breakdown"`
	SolveTimeMs       int64                  `json:"solve_time_ms"`
	SolverNodes       int                    `json:"solver_nodes"`
}

// SelectSquad picks the highest-scoring squad from the pool. Position counts
// must match the quota exactly; with a cap set, no club may exceed it;
// excluded players never receive a decision variable. The selection is
// provably optimal, never a heuristic. The captain is the squad member with
// the highest score, plus their score counted a second time in TotalPoints;
// ties fall to the lowest player ID so repeated runs crown the same captain.
func SelectSquad(players []rugby.PlayerRecord, config SquadConfig) (*Selection, error) {
	start := time.Now()

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	remaining := withoutExcluded(players, config.ExcludedIDs)
	if len(remaining) == 0 {
		if len(players) == 0 {
			return nil, fmt.Errorf("%w: pool is empty", ErrEmptyPool)
		}
		return nil, fmt.Errorf("%w: all %d players excluded", ErrEmptyPool, len(players))
	}

	// Only players whose position carries a positive quota can ever be
	// selected; Unknown and zero-quota positions get no variable.
	candidates := eligibleCandidates(remaining, config.Quota)
	sort.Slice(candidates, func(i, j int) bool {
		return idLess(candidates[i].ID, candidates[j].ID)
	})

	if err := checkPositionSupply(candidates, config.Quota); err != nil {
		return nil, err
	}

	solution, err := solve(candidates, config)
	if err != nil {
		return nil, err
	}

	squad := make([]rugby.PlayerRecord, 0, rugby.QuotaSize(config.Quota))
	for i, player := range candidates {
		if solution.Selected(i) {
			squad = append(squad, player)
		}
	}

	selection := buildSelection(squad)
	selection.SolveTimeMs = time.Since(start).Milliseconds()
	selection.SolverNodes = solution.Nodes
	return selection, nil
}

func validateConfig(config SquadConfig) error {
	if rugby.QuotaSize(config.Quota) <= 0 {
		return fmt.Errorf("%w: position quota sums to zero", ErrInvalidConfiguration)
	}
	for position, count := range config.Quota {
		if count < 0 {
			return fmt.Errorf("%w: negative quota %d for position %s", ErrInvalidConfiguration, count, position)
		}
		if !knownPosition(position) {
			return fmt.Errorf("%w: unknown position %q in quota", ErrInvalidConfiguration, string(position))
		}
	}
	if config.ClubCap != nil && *config.ClubCap < 1 {
		return fmt.Errorf("%w: club cap must be at least 1, got %d", ErrInvalidConfiguration, *config.ClubCap)
	}
	return nil
}

func solve(candidates []rugby.PlayerRecord, config SquadConfig) (*solver.Solution, error) {
	problem := solver.NewProblem()
	for _, player := range candidates {
		problem.AddBinary(player.AveragePoints)
	}

	// Exact quota per position.
	for _, position := range rugby.Positions() {
		quota, ok := config.Quota[position]
		if !ok || quota == 0 {
			continue
		}
		vars, coeffs := memberVars(candidates, func(p rugby.PlayerRecord) bool {
			return p.Position == position
		})
		if err := problem.AddConstraint(vars, coeffs, solver.Equal, float64(quota)); err != nil {
			return nil, fmt.Errorf("building quota constraint for %s: %w", position, err)
		}
	}

	// Club diversity cap.
	if config.ClubCap != nil {
		for _, club := range clubsOf(candidates) {
			vars, coeffs := memberVars(candidates, func(p rugby.PlayerRecord) bool {
				return p.Club == club
			})
			if err := problem.AddConstraint(vars, coeffs, solver.AtMost, float64(*config.ClubCap)); err != nil {
				return nil, fmt.Errorf("building club cap constraint for %s: %w", club, err)
			}
		}
	}

	backend := solver.NewBranchBound()
	if config.NodeLimit > 0 {
		backend.NodeLimit = config.NodeLimit
	}

	solution, err := backend.Maximize(problem)
	if err != nil {
		if errors.Is(err, solver.ErrInfeasible) {
			return nil, fmt.Errorf("%w: position quotas and club cap cannot be met together", ErrInfeasible)
		}
		return nil, fmt.Errorf("solving squad selection: %w", err)
	}
	return solution, nil
}

func buildSelection(squad []rugby.PlayerRecord) *Selection {
	captain := chooseCaptain(squad)

	selection := &Selection{
		Squad:             squad,
		Captain:           captain,
		CaptainPoints:     captain.AveragePoints,
		ClubBreakdown:     make(map[string]int),
		PositionBreakdown: make(map[rugby.Position]int),
	}

	for _, player := range squad {
		selection.TotalPoints += player.AveragePoints
		selection.ClubBreakdown[player.Club]++
		selection.PositionBreakdown[player.Position]++
	}

	// Captaincy doubles one player's contribution.
	selection.TotalPoints += captain.AveragePoints
	selection.AveragePoints = selection.TotalPoints / float64(len(squad))

	return selection
}

// chooseCaptain returns the highest scorer, lowest ID on ties.
func chooseCaptain(squad []rugby.PlayerRecord) rugby.PlayerRecord {
	captain := squad[0]
	for _, player := range squad[1:] {
		if player.AveragePoints > captain.AveragePoints {
			captain = player
			continue
		}
		if player.AveragePoints == captain.AveragePoints && idLess(player.ID, captain.ID) {
			captain = player
		}
	}
	return captain
}

// Helper functions

func withoutExcluded(players []rugby.PlayerRecord, excludedIDs []string) []rugby.PlayerRecord {
	if len(excludedIDs) == 0 {
		return players
	}
	excluded := make(map[string]bool, len(excludedIDs))
	for _, id := range excludedIDs {
		excluded[id] = true
	}

	remaining := make([]rugby.PlayerRecord, 0, len(players))
	for _, player := range players {
		if !excluded[player.ID] {
			remaining = append(remaining, player)
		}
	}
	return remaining
}

func eligibleCandidates(players []rugby.PlayerRecord, quota map[rugby.Position]int) []rugby.PlayerRecord {
	candidates := make([]rugby.PlayerRecord, 0, len(players))
	for _, player := range players {
		if quota[player.Position] > 0 {
			candidates = append(candidates, player)
		}
	}
	return candidates
}

// checkPositionSupply fails fast when a quota outnumbers its candidates,
// naming the position instead of reporting bare solver infeasibility.
func checkPositionSupply(candidates []rugby.PlayerRecord, quota map[rugby.Position]int) error {
	counts := make(map[rugby.Position]int)
	for _, player := range candidates {
		counts[player.Position]++
	}
	for _, position := range rugby.Positions() {
		required := quota[position]
		if required > 0 && counts[position] < required {
			return fmt.Errorf("%w: position %s requires %d players, pool has %d",
				ErrInfeasible, position, required, counts[position])
		}
	}
	return nil
}

func memberVars(candidates []rugby.PlayerRecord, member func(rugby.PlayerRecord) bool) ([]int, []float64) {
	var vars []int
	for i, player := range candidates {
		if member(player) {
			vars = append(vars, i)
		}
	}
	coeffs := make([]float64, len(vars))
	for i := range coeffs {
		coeffs[i] = 1
	}
	return vars, coeffs
}

func clubsOf(candidates []rugby.PlayerRecord) []string {
	seen := make(map[string]bool)
	var clubs []string
	for _, player := range candidates {
		if !seen[player.Club] {
			seen[player.Club] = true
			clubs = append(clubs, player.Club)
		}
	}
	sort.Strings(clubs)
	return clubs
}

func knownPosition(position rugby.Position) bool {
	for _, p := range rugby.Positions() {
		if p == position {
			return true
		}
	}
	return false
}

// idLess orders player IDs numerically when both parse as integers and
// lexicographically otherwise.
func idLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}
