package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rugbyfantasy/sixnations-optimizer/internal/optimizer"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/rugby"
)

// FormatText renders a selection as the classic fixed-width roster block.
func FormatText(sel *optimizer.Selection, label string) string {
	if label == "" {
		label = "OPTIMAL FANTASY RUGBY SQUAD"
	}

	divider := strings.Repeat("=", 80)
	thin := strings.Repeat("-", 80)

	var b strings.Builder
	b.WriteString(divider + "\n")
	b.WriteString(label + "\n")
	b.WriteString(divider + "\n")
	fmt.Fprintf(&b, "Total Players Selected: %d\n", len(sel.Squad))
	fmt.Fprintf(&b, "Total Points: %.2f\n", sel.TotalPoints)
	if sel.Captain.ID != "" {
		fmt.Fprintf(&b, "Captain: %s (%.2f x2)\n", sel.Captain.Name, sel.CaptainPoints)
	}
	fmt.Fprintf(&b, "Average Points per Player: %.2f\n", sel.AveragePoints)
	fmt.Fprintf(&b, "\nClub Breakdown: %s\n", formatClubBreakdown(sel.ClubBreakdown))
	fmt.Fprintf(&b, "Position Breakdown: %s\n", formatPositionBreakdown(sel.PositionBreakdown))

	b.WriteString("\n" + thin + "\n")
	b.WriteString("TEAM ROSTER:\n")
	b.WriteString(thin + "\n")
	fmt.Fprintf(&b, "%-4s %-28s %-15s %-15s %s\n", "No.", "Name", "Position", "Club", "Points")
	b.WriteString(thin + "\n")

	for _, entry := range Teamsheet(sel) {
		name := entry.Player.Name
		// Truncate by rune so accented names cannot split mid-character.
		if r := []rune(name); len(r) > 24 {
			name = string(r[:24])
		}
		if entry.IsCaptain {
			name += " (C)"
		}
		fmt.Fprintf(&b, "%-4d %-28s %-15s %-15s %.2f\n",
			entry.Shirt, name, string(entry.Player.Position), entry.Player.Club, entry.Player.AveragePoints)
	}

	b.WriteString(divider + "\n")
	return b.String()
}

// FormatSMS renders a selection as a compact reminder message. The headline
// goes first so the deadline is visible in the notification preview.
func FormatSMS(sel *optimizer.Selection, headline string) string {
	var b strings.Builder
	if headline != "" {
		b.WriteString(headline + "\n")
	}
	fmt.Fprintf(&b, "Best XV, %.1f pts:\n", sel.TotalPoints)

	for _, entry := range Teamsheet(sel) {
		fmt.Fprintf(&b, "%d %s (%s)\n", entry.Shirt, entry.Player.Name, clubAbbrev(entry.Player.Club))
	}
	if sel.Captain.ID != "" {
		fmt.Fprintf(&b, "Captain: %s (%.1f x2)", sel.Captain.Name, sel.Captain.AveragePoints)
	}
	return b.String()
}

// WriteCSV writes one or more squads as a single CSV, rows grouped by squad
// and ordered by position. The column layout is fixed; spreadsheets built on
// earlier exports rely on it.
func WriteCSV(w io.Writer, squads ...*optimizer.Selection) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"Position", "Name", "Nation", "Points", "Team", "Captain"}); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	for i, sel := range squads {
		if sel == nil {
			continue
		}

		rows := make([]rugby.PlayerRecord, len(sel.Squad))
		copy(rows, sel.Squad)
		sort.SliceStable(rows, func(a, b int) bool {
			return positionRank(rows[a].Position) < positionRank(rows[b].Position)
		})

		team := ordinal(i + 1)
		for _, p := range rows {
			captain := "No"
			if p.ID == sel.Captain.ID {
				captain = "Yes"
			}
			record := []string{
				string(p.Position),
				p.Name,
				p.Club,
				fmt.Sprintf("%.2f", p.AveragePoints),
				team,
				captain,
			}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("failed to write player row: %w", err)
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

// Helper functions

func formatClubBreakdown(breakdown map[string]int) string {
	keys := make([]string, 0, len(breakdown))
	for club := range breakdown {
		keys = append(keys, club)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, club := range keys {
		parts = append(parts, fmt.Sprintf("%s: %d", club, breakdown[club]))
	}
	return strings.Join(parts, ", ")
}

func formatPositionBreakdown(breakdown map[rugby.Position]int) string {
	parts := make([]string, 0, len(breakdown))
	for _, pos := range rugby.Positions() {
		if n, ok := breakdown[pos]; ok {
			parts = append(parts, fmt.Sprintf("%s: %d", pos, n))
		}
	}
	return strings.Join(parts, ", ")
}

func positionRank(pos rugby.Position) int {
	for i, p := range rugby.Positions() {
		if p == pos {
			return i
		}
	}
	return len(rugby.Positions())
}

func clubAbbrev(club string) string {
	if len(club) <= 3 {
		return club
	}
	return club[:3]
}

func ordinal(n int) string {
	switch n {
	case 1:
		return "1st"
	case 2:
		return "2nd"
	case 3:
		return "3rd"
	default:
		return fmt.Sprintf("%dth", n)
	}
}
