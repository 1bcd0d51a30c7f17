package providers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rugbyfantasy/sixnations-optimizer/internal/rugby"
)

// CSVFileProvider loads a player pool from a CSV snapshot on disk. It reads
// the same layout the stats exporter writes, so a saved export can seed a
// development database without touching the live API.
type CSVFileProvider struct {
	path   string
	logger *logrus.Logger
}

func NewCSVFileProvider(path string, logger *logrus.Logger) *CSVFileProvider {
	return &CSVFileProvider{
		path:   path,
		logger: logger,
	}
}

// identityColumns are header names that describe the player rather than a
// stat; everything else becomes a criteria entry.
var identityColumns = map[string]bool{
	"id":            true,
	"name":          true,
	"club":          true,
	"position":      true,
	"position name": true,
}

// GetPlayers reads every row of the file. The round argument is ignored; a
// file is a fixed snapshot.
func (p *CSVFileProvider) GetPlayers(ctx context.Context, round int) ([]rugby.PlayerRecord, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("opening player file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // tolerate ragged rows

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading player file header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"id", "name", "club"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("player file is missing a %q column", required)
		}
	}
	if _, hasName := cols["position name"]; !hasName {
		if _, hasCode := cols["position"]; !hasCode {
			return nil, fmt.Errorf(`player file needs a "Position" or "Position Name" column`)
		}
	}

	now := time.Now().UTC()
	var players []rugby.PlayerRecord
	line := 1

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading player file: %w", err)
		}
		line++

		record := rugby.PlayerRecord{
			ID:          cell(row, cols, "id"),
			Name:        cell(row, cols, "name"),
			Club:        cell(row, cols, "club"),
			LastUpdated: now,
			Source:      "csv",
		}
		if record.ID == "" {
			p.logger.WithField("line", line).Warn("Skipping player row without an ID")
			continue
		}

		// Prefer the display name; fall back to the numeric code.
		if name := cell(row, cols, "position name"); name != "" {
			record.Position = rugby.ParsePosition(name)
		} else {
			record.Position = rugby.PositionFromCode(cell(row, cols, "position"))
		}

		criteria := make(map[string]float64)
		for i, colName := range header {
			key := strings.ToLower(strings.TrimSpace(colName))
			if identityColumns[key] || i >= len(row) {
				continue
			}
			criteria[strings.TrimSpace(colName)] = asFloat(row[i])
		}
		record.Criteria = criteria
		record.AveragePoints = asFloat(cell(row, cols, "average points"))
		if record.AveragePoints < 0 {
			record.AveragePoints = 0
		}
		record.TotalPoints = asFloat(cell(row, cols, "total points"))

		players = append(players, record)
	}

	p.logger.WithFields(logrus.Fields{
		"file":    p.path,
		"players": len(players),
	}).Info("Loaded players from file")

	return players, nil
}

func cell(row []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
