package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rugbyfantasy/sixnations-optimizer/internal/models"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/rugby"
	"github.com/rugbyfantasy/sixnations-optimizer/pkg/database"
)

// fakeProvider serves a canned pool and records what was asked of it.
type fakeProvider struct {
	records []rugby.PlayerRecord
	err     error
	calls   []int
}

func (f *fakeProvider) GetPlayers(ctx context.Context, round int) ([]rugby.PlayerRecord, error) {
	f.calls = append(f.calls, round)
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Player{}, &models.Squad{}, &models.SquadPlayer{}))
	return &database.DB{DB: db}
}

func testRecord(id, name, club string, pos rugby.Position, avg float64) rugby.PlayerRecord {
	return rugby.PlayerRecord{
		ID:            id,
		Name:          name,
		Club:          club,
		Position:      pos,
		AveragePoints: avg,
		TotalPoints:   avg * 4,
		Criteria:      map[string]float64{"Average points": avg, "Tries": 2},
		LastUpdated:   time.Now().UTC(),
		Source:        "sixnations",
	}
}

func TestRosterService_Sync_CreatesAndUpdates(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{
		records: []rugby.PlayerRecord{
			testRecord("101", "Ellis Genge", "England", rugby.PositionProp, 40.5),
			testRecord("102", "Dan Sheehan", "Ireland", rugby.PositionHooker, 61.0),
			{Name: "No ID", Club: "Wales"}, // skipped
		},
	}
	roster := NewRosterService(db, nil, provider, nil, logrus.New())

	result, err := roster.Sync(context.Background(), 0, false)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Fetched)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, "sixnations", result.Source)

	var count int64
	require.NoError(t, db.DB.Model(&models.Player{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)

	// Second sync with a changed score updates in place.
	provider.records[0].AveragePoints = 44.0
	result, err = roster.Sync(context.Background(), 0, false)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 2, result.Updated)

	var genge models.Player
	require.NoError(t, db.DB.Where("external_id = ?", "101").First(&genge).Error)
	assert.Equal(t, 44.0, genge.AveragePoints)
	assert.Equal(t, "Ellis Genge", genge.Name)
	assert.NotEmpty(t, genge.Criteria, "criteria json should be stored")
}

func TestRosterService_Sync_RoundFillsRoundPoints(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{
		records: []rugby.PlayerRecord{
			testRecord("101", "Ellis Genge", "England", rugby.PositionProp, 40.5),
		},
	}
	roster := NewRosterService(db, nil, provider, nil, logrus.New())

	// Season sync first sets averages.
	_, err := roster.Sync(context.Background(), 0, false)
	require.NoError(t, err)

	// Round sync fills slot 3 without touching the season average.
	provider.records[0].TotalPoints = 18
	provider.records[0].AveragePoints = 99 // must be ignored for a round sync
	_, err = roster.Sync(context.Background(), 3, false)
	require.NoError(t, err)

	var player models.Player
	require.NoError(t, db.DB.Where("external_id = ?", "101").First(&player).Error)
	assert.Equal(t, 40.5, player.AveragePoints, "round sync must not overwrite season average")
	require.Len(t, player.RoundPoints, 3)
	assert.Equal(t, 0.0, player.RoundPoints[0])
	assert.Equal(t, 0.0, player.RoundPoints[1])
	assert.Equal(t, 18.0, player.RoundPoints[2])
}

func TestRosterService_Sync_ProviderError(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{err: fmt.Errorf("upstream down")}
	roster := NewRosterService(db, nil, provider, nil, logrus.New())

	_, err := roster.Sync(context.Background(), 0, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream down")
}

func TestRosterService_LoadPool_RoundTripsRecords(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{
		records: []rugby.PlayerRecord{
			testRecord("7", "Finn Russell", "Scotland", rugby.PositionFlyHalf, 47.1),
		},
	}
	roster := NewRosterService(db, nil, provider, nil, logrus.New())

	_, err := roster.Sync(context.Background(), 0, false)
	require.NoError(t, err)

	pool, err := roster.LoadPool(context.Background())
	require.NoError(t, err)
	require.Len(t, pool, 1)

	got := pool[0]
	assert.Equal(t, "7", got.ID)
	assert.Equal(t, "Finn Russell", got.Name)
	assert.Equal(t, rugby.PositionFlyHalf, got.Position)
	assert.Equal(t, 47.1, got.AveragePoints)
	assert.Equal(t, 2.0, got.Criteria["Tries"], "criteria should round-trip through the json column")
}

func TestRosterService_ListPlayers_Filters(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{
		records: []rugby.PlayerRecord{
			testRecord("1", "A", "England", rugby.PositionProp, 10),
			testRecord("2", "B", "England", rugby.PositionHooker, 30),
			testRecord("3", "C", "France", rugby.PositionProp, 20),
		},
	}
	roster := NewRosterService(db, nil, provider, nil, logrus.New())
	_, err := roster.Sync(context.Background(), 0, false)
	require.NoError(t, err)

	all, err := roster.ListPlayers(context.Background(), "", "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "B", all[0].Name, "best scorer first")

	english, err := roster.ListPlayers(context.Background(), "England", "")
	require.NoError(t, err)
	assert.Len(t, english, 2)

	props, err := roster.ListPlayers(context.Background(), "", string(rugby.PositionProp))
	require.NoError(t, err)
	require.Len(t, props, 2)
	assert.Equal(t, "C", props[0].Name)

	frenchHookers, err := roster.ListPlayers(context.Background(), "France", string(rugby.PositionHooker))
	require.NoError(t, err)
	assert.Empty(t, frenchHookers)
}

func TestRosterService_Status_CountsPlayers(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{
		records: []rugby.PlayerRecord{
			testRecord("1", "A", "England", rugby.PositionProp, 10),
		},
	}
	roster := NewRosterService(db, nil, provider, nil, logrus.New())
	_, err := roster.Sync(context.Background(), 0, false)
	require.NoError(t, err)

	status, err := roster.Status(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, status.PlayerCount)
	assert.False(t, status.Syncing)
}
