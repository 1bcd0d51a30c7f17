package models

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"

	"github.com/rugbyfantasy/sixnations-optimizer/internal/rugby"
)

type Player struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	ExternalID    string          `gorm:"uniqueIndex;not null" json:"external_id"`
	Name          string          `gorm:"not null" json:"name"`
	Club          string          `gorm:"not null;index" json:"club"`
	Position      string          `gorm:"not null;index" json:"position"`
	PositionCode  string          `json:"position_code,omitempty"`
	AveragePoints float64         `gorm:"not null" json:"average_points"`
	TotalPoints   float64         `json:"total_points"`
	RoundPoints   pq.Float64Array `gorm:"type:numeric[]" json:"round_points,omitempty"`
	Criteria      datatypes.JSON  `json:"criteria,omitempty"`
	Source        string          `json:"source"`
	LastSyncedAt  time.Time       `json:"last_synced_at"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Player) TableName() string {
	return "players"
}

// ToRecord converts a stored player into the provider-shaped record the
// optimizer consumes.
func (p *Player) ToRecord() rugby.PlayerRecord {
	rec := rugby.PlayerRecord{
		ID:            p.ExternalID,
		Name:          p.Name,
		Club:          p.Club,
		Position:      rugby.Position(p.Position),
		AveragePoints: p.AveragePoints,
		TotalPoints:   p.TotalPoints,
		LastUpdated:   p.LastSyncedAt,
		Source:        p.Source,
	}
	if len(p.Criteria) > 0 {
		var criteria map[string]float64
		if err := json.Unmarshal(p.Criteria, &criteria); err == nil {
			rec.Criteria = criteria
		}
	}
	return rec
}
