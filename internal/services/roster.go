package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/rugbyfantasy/sixnations-optimizer/internal/models"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/rugby"
	"github.com/rugbyfantasy/sixnations-optimizer/pkg/database"
)

// RosterService keeps the players table in step with the upstream stats
// provider and serves the player pool to the optimizer and the API.
type RosterService struct {
	db       *database.DB
	cache    *CacheService
	provider rugby.StatsProvider
	hub      *WebSocketHub
	logger   *logrus.Logger

	mu      sync.Mutex
	syncing bool
}

// NewRosterService creates a new roster service
func NewRosterService(
	db *database.DB,
	cache *CacheService,
	provider rugby.StatsProvider,
	hub *WebSocketHub,
	logger *logrus.Logger,
) *RosterService {
	return &RosterService{
		db:       db,
		cache:    cache,
		provider: provider,
		hub:      hub,
		logger:   logger,
	}
}

// SyncResult summarizes one provider sync.
type SyncResult struct {
	Round      int       `json:"round"`
	Fetched    int       `json:"fetched"`
	Created    int       `json:"created"`
	Updated    int       `json:"updated"`
	Skipped    int       `json:"skipped"`
	Source     string    `json:"source,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}

// SyncStatus is what the status endpoint reports.
type SyncStatus struct {
	LastSync    *SyncResult `json:"last_sync,omitempty"`
	LastError   string      `json:"last_error,omitempty"`
	PlayerCount int64       `json:"player_count"`
	StatsCached bool        `json:"stats_cached"`
	Syncing     bool        `json:"syncing"`
}

// Sync pulls the player pool for a round from the provider and upserts it.
// Round 0 carries the season-to-date figures the optimizer scores on; rounds
// 1..5 additionally record that matchday's points per player. Only one sync
// runs at a time.
func (s *RosterService) Sync(ctx context.Context, round int, force bool) (*SyncResult, error) {
	s.mu.Lock()
	if s.syncing {
		s.mu.Unlock()
		return nil, fmt.Errorf("a stats sync is already running")
	}
	s.syncing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.syncing = false
		s.mu.Unlock()
	}()

	if force && s.cache != nil {
		// Drop the provider's fetch cache so a manual refresh hits the API.
		if err := s.cache.Delete(ctx, StatsCacheKey(round)); err != nil {
			s.logger.WithError(err).Warn("Failed to invalidate stats cache before sync")
		}
	}

	result := &SyncResult{
		Round:     round,
		StartedAt: time.Now().UTC(),
	}

	records, err := s.provider.GetPlayers(ctx, round)
	if err != nil {
		s.recordStatus(result, err)
		return nil, fmt.Errorf("fetching players: %w", err)
	}
	result.Fetched = len(records)

	for _, record := range records {
		if record.ID == "" {
			result.Skipped++
			continue
		}
		if record.Source != "" {
			result.Source = record.Source
		}

		created, err := s.upsertPlayer(record, round)
		if err != nil {
			s.logger.Errorf("Failed to upsert player %s: %v", record.Name, err)
			result.Skipped++
			continue
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	result.DurationMs = time.Since(result.StartedAt).Milliseconds()
	s.recordStatus(result, nil)
	s.invalidatePlayerLists(ctx)

	s.logger.WithFields(logrus.Fields{
		"round":       round,
		"fetched":     result.Fetched,
		"created":     result.Created,
		"updated":     result.Updated,
		"skipped":     result.Skipped,
		"duration_ms": result.DurationMs,
	}).Info("Player sync completed")

	if s.hub != nil {
		if err := s.hub.BroadcastToTopic(TopicStats, "stats_refreshed", result); err != nil {
			s.logger.WithError(err).Warn("Failed to broadcast stats refresh")
		}
	}

	return result, nil
}

// upsertPlayer writes one provider record. It reports whether a new row was
// created.
func (s *RosterService) upsertPlayer(record rugby.PlayerRecord, round int) (bool, error) {
	var criteria datatypes.JSON
	if len(record.Criteria) > 0 {
		data, err := json.Marshal(record.Criteria)
		if err != nil {
			return false, fmt.Errorf("marshaling criteria: %w", err)
		}
		criteria = data
	}

	var player models.Player
	err := s.db.DB.Where("external_id = ?", record.ID).First(&player).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return false, err
		}

		player = models.Player{
			ExternalID:   record.ID,
			Name:         record.Name,
			Club:         record.Club,
			Position:     string(record.Position),
			Source:       record.Source,
			LastSyncedAt: record.LastUpdated,
		}
		s.applyStats(&player, record, round)
		player.Criteria = criteria

		if err := s.db.DB.Create(&player).Error; err != nil {
			return false, err
		}
		return true, nil
	}

	player.Name = record.Name
	player.Club = record.Club
	player.Position = string(record.Position)
	player.Source = record.Source
	player.LastSyncedAt = record.LastUpdated
	s.applyStats(&player, record, round)
	if len(criteria) > 0 {
		player.Criteria = criteria
	}

	if err := s.db.DB.Save(&player).Error; err != nil {
		return false, err
	}
	return false, nil
}

// applyStats maps fetched figures onto the row. A season sync (round 0)
// replaces the scoring columns; a round sync only fills that matchday's slot
// so the season averages the optimizer uses stay intact.
func (s *RosterService) applyStats(player *models.Player, record rugby.PlayerRecord, round int) {
	if round <= 0 {
		player.AveragePoints = record.AveragePoints
		player.TotalPoints = record.TotalPoints
		return
	}

	for len(player.RoundPoints) < round {
		player.RoundPoints = append(player.RoundPoints, 0)
	}
	player.RoundPoints[round-1] = record.TotalPoints
}

// LoadPool returns every stored player in the shape the optimizer consumes.
func (s *RosterService) LoadPool(ctx context.Context) ([]rugby.PlayerRecord, error) {
	var players []models.Player
	if err := s.db.DB.WithContext(ctx).Order("id").Find(&players).Error; err != nil {
		return nil, fmt.Errorf("loading player pool: %w", err)
	}

	pool := make([]rugby.PlayerRecord, 0, len(players))
	for i := range players {
		pool = append(pool, players[i].ToRecord())
	}
	return pool, nil
}

// ListPlayers returns stored players, optionally filtered, best scorers first.
func (s *RosterService) ListPlayers(ctx context.Context, club string, position string) ([]models.Player, error) {
	query := s.db.DB.WithContext(ctx).Model(&models.Player{})
	if club != "" {
		query = query.Where("club = ?", club)
	}
	if position != "" {
		query = query.Where("position = ?", position)
	}

	var players []models.Player
	if err := query.Order("average_points DESC, id").Find(&players).Error; err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	return players, nil
}

// GetPlayer looks a player up by external ID.
func (s *RosterService) GetPlayer(ctx context.Context, externalID string) (*models.Player, error) {
	var player models.Player
	err := s.db.DB.WithContext(ctx).Where("external_id = ?", externalID).First(&player).Error
	if err != nil {
		return nil, err
	}
	return &player, nil
}

// Status reports the last sync outcome and the stored pool size.
func (s *RosterService) Status(ctx context.Context) (*SyncStatus, error) {
	status := &SyncStatus{}

	if s.cache != nil {
		var cached SyncStatus
		if err := s.cache.Get(ctx, SyncStatusCacheKey(), &cached); err == nil {
			status.LastSync = cached.LastSync
			status.LastError = cached.LastError
		}
		// Whether the next non-forced season sync would be served from Redis.
		if warm, err := s.cache.Exists(ctx, StatsCacheKey(0)); err == nil {
			status.StatsCached = warm
		}
	}

	if err := s.db.DB.WithContext(ctx).Model(&models.Player{}).Count(&status.PlayerCount).Error; err != nil {
		return nil, fmt.Errorf("counting players: %w", err)
	}

	s.mu.Lock()
	status.Syncing = s.syncing
	s.mu.Unlock()

	return status, nil
}

// Helper functions

func (s *RosterService) recordStatus(result *SyncResult, syncErr error) {
	if s.cache == nil {
		return
	}
	status := SyncStatus{LastSync: result}
	if syncErr != nil {
		status.LastError = syncErr.Error()
	}
	if err := s.cache.SetSimple(SyncStatusCacheKey(), status, 0); err != nil {
		s.logger.WithError(err).Warn("Failed to record sync status")
	}
}

// invalidatePlayerLists drops every cached list response. Clubs and positions
// are fixed sets, so the key space is enumerable.
func (s *RosterService) invalidatePlayerLists(ctx context.Context) {
	if s.cache == nil {
		return
	}
	clubs := append([]string{""}, rugby.Clubs...)
	positions := []string{""}
	for _, pos := range rugby.Positions() {
		positions = append(positions, string(pos))
	}

	keys := make([]string, 0, len(clubs)*len(positions))
	for _, club := range clubs {
		for _, pos := range positions {
			keys = append(keys, PlayerListCacheKey(club, pos))
		}
	}

	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.WithError(err).Warn("Failed to invalidate player list caches")
	}
}
