package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/rugbyfantasy/sixnations-optimizer/internal/models"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/optimizer"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/report"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/rugby"
	"github.com/rugbyfantasy/sixnations-optimizer/pkg/database"
)

// SchedulerOptions configures the background jobs.
type SchedulerOptions struct {
	FetchInterval   time.Duration
	CurrentRound    int    // 0 between rounds; 1..5 during a round
	ClubCap         int    // cap used for reminder squads; 0 disables it
	ReminderCron    string // cron spec for the deadline reminder, empty disables
	NotifyPhone     string // reminder recipient, empty disables
	SkipInitialSync bool
}

// SchedulerService runs the recurring jobs: stats refresh, the pre-deadline
// reminder squad, and nightly cleanup of players who left the competition.
type SchedulerService struct {
	db       *database.DB
	cache    *CacheService
	roster   *RosterService
	notifier Notifier
	hub      *WebSocketHub
	logger   *logrus.Logger
	cron     *cron.Cron
	opts     SchedulerOptions

	mu        sync.Mutex
	isRunning bool
}

// NewSchedulerService creates a new scheduler service
func NewSchedulerService(
	db *database.DB,
	cache *CacheService,
	roster *RosterService,
	notifier Notifier,
	hub *WebSocketHub,
	logger *logrus.Logger,
	opts SchedulerOptions,
) *SchedulerService {
	return &SchedulerService{
		db:       db,
		cache:    cache,
		roster:   roster,
		notifier: notifier,
		hub:      hub,
		logger:   logger,
		cron:     cron.New(),
		opts:     opts,
	}
}

// Start begins the scheduled jobs
func (s *SchedulerService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	// Schedule regular stats refreshes
	schedule := fmt.Sprintf("@every %s", s.opts.FetchInterval.String())
	if _, err := s.cron.AddFunc(schedule, s.refreshStats); err != nil {
		return fmt.Errorf("failed to schedule stats refresh: %w", err)
	}

	// Schedule the deadline reminder when a recipient is configured
	if s.opts.ReminderCron != "" && s.opts.NotifyPhone != "" && s.notifier != nil {
		if _, err := s.cron.AddFunc(s.opts.ReminderCron, s.sendDeadlineReminder); err != nil {
			return fmt.Errorf("failed to schedule deadline reminder: %w", err)
		}
	}

	// Schedule daily cleanup
	if _, err := s.cron.AddFunc("0 3 * * *", s.cleanupOldData); err != nil { // 3 AM daily
		return fmt.Errorf("failed to schedule cleanup: %w", err)
	}

	s.cron.Start()
	s.isRunning = true

	// Run initial fetch
	if !s.opts.SkipInitialSync {
		go s.refreshStats()
	}

	s.logger.Info("Scheduler service started")
	return nil
}

// Stop halts the scheduled jobs
func (s *SchedulerService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.isRunning = false
	s.logger.Info("Scheduler service stopped")
}

// refreshStats syncs season figures, plus the current round when one is on.
func (s *SchedulerService) refreshStats() {
	s.logger.Info("Starting scheduled stats refresh")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := s.roster.Sync(ctx, 0, false); err != nil {
		s.logger.Errorf("Scheduled season sync failed: %v", err)
		return
	}

	if s.opts.CurrentRound > 0 {
		if _, err := s.roster.Sync(ctx, s.opts.CurrentRound, false); err != nil {
			s.logger.Errorf("Scheduled round %d sync failed: %v", s.opts.CurrentRound, err)
		}
	}

	s.logger.Info("Completed scheduled stats refresh")
}

// sendDeadlineReminder builds the current optimal squad and texts it out.
func (s *SchedulerService) sendDeadlineReminder() {
	s.logger.Info("Building deadline reminder squad")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := s.roster.LoadPool(ctx)
	if err != nil {
		s.logger.Errorf("Reminder aborted, could not load pool: %v", err)
		return
	}
	if len(pool) == 0 {
		s.logger.Warn("Reminder aborted, player pool is empty")
		return
	}

	config := optimizer.SquadConfig{Quota: rugby.DefaultQuota()}
	if s.opts.ClubCap > 0 {
		clubCap := s.opts.ClubCap
		config.ClubCap = &clubCap
	}

	selection, err := optimizer.SelectSquad(pool, config)
	if err != nil {
		s.logger.Errorf("Reminder aborted, optimization failed: %v", err)
		return
	}

	headline := "Six Nations fantasy deadline soon!"
	if s.opts.CurrentRound > 0 {
		headline = fmt.Sprintf("Round %d deadline soon!", s.opts.CurrentRound)
	}

	if err := s.notifier.SendMessage(s.opts.NotifyPhone, report.FormatSMS(selection, headline)); err != nil {
		s.logger.Errorf("Failed to send deadline reminder: %v", err)
		return
	}

	if s.hub != nil {
		if err := s.hub.BroadcastToTopic(TopicSquads, "squad_optimized", selection); err != nil {
			s.logger.WithError(err).Warn("Failed to broadcast reminder squad")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"total_points": selection.TotalPoints,
		"captain":      selection.Captain.Name,
	}).Info("Deadline reminder sent")
}

// cleanupOldData removes players who have dropped out of the feed and are not
// part of any saved squad.
func (s *SchedulerService) cleanupOldData() {
	s.logger.Info("Starting daily cleanup of old data")

	cutoffDate := time.Now().AddDate(0, 0, -30)

	result := s.db.DB.Where("source = ? AND last_synced_at < ?", "sixnations", cutoffDate).
		Where("id NOT IN (?)",
			s.db.DB.Table("squad_players").Select("player_id"),
		).Delete(&models.Player{})

	if result.Error != nil {
		s.logger.Errorf("Failed to cleanup old players: %v", result.Error)
		return
	}
	s.logger.Infof("Cleaned up %d old player records", result.RowsAffected)

	// Cached player lists and saved results may still reference the
	// deleted rows.
	if result.RowsAffected > 0 && s.cache != nil {
		if err := s.cache.Flush(); err != nil {
			s.logger.WithError(err).Warn("Failed to flush cache after cleanup")
		}
	}
}

// GetStatus returns the current status of the scheduler
func (s *SchedulerService) GetStatus() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := map[string]interface{}{
		"is_running":     s.isRunning,
		"fetch_interval": s.opts.FetchInterval.String(),
		"current_round":  s.opts.CurrentRound,
	}

	if s.isRunning {
		entries := s.cron.Entries()
		nextRuns := make([]string, 0, len(entries))
		for _, entry := range entries {
			nextRuns = append(nextRuns, entry.Next.Format(time.RFC3339))
		}
		status["next_runs"] = nextRuns
	}

	return status
}
