// Package report renders selections into the shapes people actually use:
// a numbered teamsheet, a plain-text roster, a two-squad CSV, and the short
// reminder message the notifier sends before a deadline.
package report

import (
	"sort"

	"github.com/rugbyfantasy/sixnations-optimizer/internal/models"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/optimizer"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/rugby"
)

// Entry is one row of a numbered teamsheet.
type Entry struct {
	Shirt     int                `json:"shirt"`
	Player    rugby.PlayerRecord `json:"player"`
	IsCaptain bool               `json:"is_captain"`
}

// Teamsheet orders a selection into rugby shirt numbers: front row 1-3 with
// the hooker at 2, locks 4-5, back row 6-8, half backs 9-10, then the back
// line with one back-three player at 11, centres 12-13, and the remaining
// back three at 14-15. Within a position, higher scorers take the lower
// shirt number.
func Teamsheet(sel *optimizer.Selection) []Entry {
	byPos := make(map[rugby.Position][]rugby.PlayerRecord)
	for _, p := range sel.Squad {
		byPos[p.Position] = append(byPos[p.Position], p)
	}
	for pos := range byPos {
		group := byPos[pos]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].AveragePoints > group[j].AveragePoints
		})
	}

	props := byPos[rugby.PositionProp]
	hookers := byPos[rugby.PositionHooker]
	backThree := byPos[rugby.PositionBackThree]
	centres := byPos[rugby.PositionCentre]

	ordered := make([]rugby.PlayerRecord, 0, len(sel.Squad))
	if len(props) > 0 {
		ordered = append(ordered, props[0])
	}
	ordered = append(ordered, hookers...)
	if len(props) > 1 {
		ordered = append(ordered, props[1:]...)
	}
	ordered = append(ordered, byPos[rugby.PositionSecondRow]...)
	ordered = append(ordered, byPos[rugby.PositionBackRow]...)
	ordered = append(ordered, byPos[rugby.PositionScrumHalf]...)
	ordered = append(ordered, byPos[rugby.PositionFlyHalf]...)
	if len(backThree) > 0 {
		ordered = append(ordered, backThree[0])
	}
	ordered = append(ordered, centres...)
	if len(backThree) > 1 {
		ordered = append(ordered, backThree[1:]...)
	}

	entries := make([]Entry, 0, len(ordered))
	for i, p := range ordered {
		entries = append(entries, Entry{
			Shirt:     i + 1,
			Player:    p,
			IsCaptain: p.ID == sel.Captain.ID,
		})
	}
	return entries
}

// FromSquad rebuilds a selection from a stored squad so saved squads can be
// exported with the same renderers as fresh ones. Stored per-player position
// and points take precedence over the current player row; scores move after
// every sync but the squad should export as it was selected.
func FromSquad(squad *models.Squad) *optimizer.Selection {
	sel := &optimizer.Selection{
		TotalPoints:       squad.TotalPoints,
		AveragePoints:     squad.AveragePoints,
		CaptainPoints:     squad.CaptainPoints,
		SolveTimeMs:       squad.SolveTimeMs,
		ClubBreakdown:     make(map[string]int),
		PositionBreakdown: make(map[rugby.Position]int),
	}

	for i := range squad.Players {
		sp := &squad.Players[i]
		rec := sp.Player.ToRecord()
		rec.Position = rugby.Position(sp.Position)
		rec.AveragePoints = sp.Points

		sel.Squad = append(sel.Squad, rec)
		sel.ClubBreakdown[rec.Club]++
		sel.PositionBreakdown[rec.Position]++
		if sp.IsCaptain {
			sel.Captain = rec
		}
	}
	return sel
}
