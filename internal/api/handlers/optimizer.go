package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/models"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/optimizer"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/report"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/rugby"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/services"
	"github.com/rugbyfantasy/sixnations-optimizer/pkg/config"
	"github.com/rugbyfantasy/sixnations-optimizer/pkg/database"
	"github.com/rugbyfantasy/sixnations-optimizer/pkg/utils"
)

type OptimizerHandler struct {
	db     *database.DB
	cache  *services.CacheService
	roster *services.RosterService
	hub    *services.WebSocketHub
	config *config.Config
}

func NewOptimizerHandler(db *database.DB, cache *services.CacheService, roster *services.RosterService, hub *services.WebSocketHub, cfg *config.Config) *OptimizerHandler {
	return &OptimizerHandler{
		db:     db,
		cache:  cache,
		roster: roster,
		hub:    hub,
		config: cfg,
	}
}

type optimizeRequest struct {
	ClubCap     *int           `json:"club_cap"`
	NoClubCap   bool           `json:"no_club_cap"`
	ExcludedIDs []string       `json:"excluded_ids"`
	Quota       map[string]int `json:"quota"`
	Save        bool           `json:"save"`
	Label       string         `json:"label"`
}

// OptimizeSquad selects the best fifteen from the current pool
func (h *OptimizerHandler) OptimizeSquad(c *gin.Context) {
	var req optimizeRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		utils.SendValidationError(c, "Invalid request body", err.Error())
		return
	}

	squadConfig, err := h.buildSquadConfig(&req)
	if err != nil {
		utils.SendValidationError(c, "Invalid squad configuration", err.Error())
		return
	}

	// Check for a recent solve of the same configuration. Results are keyed
	// by configuration only, so a stats sync can be served stale until the
	// TTL lapses.
	ctx := c.Request.Context()
	cacheKey := services.OptimizationCacheKey(hashSquadConfig(squadConfig))

	var selection *optimizer.Selection
	if h.cache != nil {
		var cached optimizer.Selection
		if err := h.cache.Get(ctx, cacheKey, &cached); err == nil {
			selection = &cached
		}
	}

	if selection == nil {
		pool, err := h.roster.LoadPool(ctx)
		if err != nil {
			utils.SendInternalError(c, "Failed to load player pool")
			return
		}

		selection, err = h.runSolve(pool, squadConfig)
		if err != nil {
			h.sendOptimizerError(c, err)
			return
		}

		if h.cache != nil {
			h.cache.SetWithRetry(ctx, cacheKey, selection, 5*time.Minute, 3)
		}
	}

	response := gin.H{
		"selection": selection,
		"teamsheet": report.Teamsheet(selection),
	}

	if req.Save {
		squad, err := h.saveSquad(selection, req.Label, squadConfig.ClubCap)
		if err != nil {
			utils.SendError(c, http.StatusInternalServerError,
				utils.NewAppError(utils.ErrCodeInternal, "Failed to save squad", err.Error()))
			return
		}
		response["squad"] = squad
	}

	if h.hub != nil {
		h.hub.BroadcastToTopic(services.TopicSquads, "squad_optimized", gin.H{
			"total_points": selection.TotalPoints,
			"captain":      selection.Captain.Name,
			"saved":        req.Save,
		})
	}

	utils.SendSuccess(c, response)
}

// OptimizePair selects a best squad and a disjoint runner-up. The second
// solve simply excludes the first squad's players, so each squad honours the
// club cap on its own; the cap is not enforced across the pair.
func (h *OptimizerHandler) OptimizePair(c *gin.Context) {
	var req optimizeRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		utils.SendValidationError(c, "Invalid request body", err.Error())
		return
	}

	squadConfig, err := h.buildSquadConfig(&req)
	if err != nil {
		utils.SendValidationError(c, "Invalid squad configuration", err.Error())
		return
	}

	pool, err := h.roster.LoadPool(c.Request.Context())
	if err != nil {
		utils.SendInternalError(c, "Failed to load player pool")
		return
	}

	first, err := h.runSolve(pool, squadConfig)
	if err != nil {
		h.sendOptimizerError(c, err)
		return
	}

	secondConfig := squadConfig
	secondConfig.ExcludedIDs = make([]string, 0, len(squadConfig.ExcludedIDs)+len(first.Squad))
	secondConfig.ExcludedIDs = append(secondConfig.ExcludedIDs, squadConfig.ExcludedIDs...)
	for _, p := range first.Squad {
		secondConfig.ExcludedIDs = append(secondConfig.ExcludedIDs, p.ID)
	}

	second, err := h.runSolve(pool, secondConfig)
	if err != nil {
		h.sendOptimizerError(c, err)
		return
	}

	response := gin.H{
		"first": gin.H{
			"selection": first,
			"teamsheet": report.Teamsheet(first),
		},
		"second": gin.H{
			"selection": second,
			"teamsheet": report.Teamsheet(second),
		},
		"combined_points": first.TotalPoints + second.TotalPoints,
	}

	if req.Save {
		firstSquad, err := h.saveSquad(first, pairLabel(req.Label, 1), squadConfig.ClubCap)
		if err != nil {
			utils.SendError(c, http.StatusInternalServerError,
				utils.NewAppError(utils.ErrCodeInternal, "Failed to save first squad", err.Error()))
			return
		}
		secondSquad, err := h.saveSquad(second, pairLabel(req.Label, 2), squadConfig.ClubCap)
		if err != nil {
			utils.SendError(c, http.StatusInternalServerError,
				utils.NewAppError(utils.ErrCodeInternal, "Failed to save second squad", err.Error()))
			return
		}
		response["squads"] = []*models.Squad{firstSquad, secondSquad}
	}

	if h.hub != nil {
		h.hub.BroadcastToTopic(services.TopicSquads, "squad_pair_optimized", gin.H{
			"combined_points": first.TotalPoints + second.TotalPoints,
			"saved":           req.Save,
		})
	}

	utils.SendSuccess(c, response)
}

// GetRequirements returns the selection rules and current pool coverage
func (h *OptimizerHandler) GetRequirements(c *gin.Context) {
	quota := rugby.DefaultQuota()

	quotaByName := make([]gin.H, 0, len(quota))
	for _, pos := range rugby.Positions() {
		quotaByName = append(quotaByName, gin.H{
			"position": string(pos),
			"required": quota[pos],
		})
	}

	var counts []struct {
		Position string
		Count    int
	}
	if err := h.db.Model(&models.Player{}).
		Select("position, COUNT(*) as count").
		Group("position").
		Scan(&counts).Error; err != nil {
		utils.SendInternalError(c, "Failed to count player pool")
		return
	}

	poolByPosition := make(map[string]int, len(counts))
	total := 0
	for _, row := range counts {
		poolByPosition[row.Position] = row.Count
		total += row.Count
	}

	utils.SendSuccess(c, gin.H{
		"squad_size":       rugby.QuotaSize(quota),
		"quota":            quotaByName,
		"default_club_cap": h.config.ClubCap,
		"clubs":            rugby.Clubs,
		"pool": gin.H{
			"total_players": total,
			"by_position":   poolByPosition,
		},
	})
}

// Helper functions

// bindOptionalJSON binds the body when one is present. Both optimize
// endpoints accept an empty body and run with server defaults.
func bindOptionalJSON(c *gin.Context, target interface{}) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(target)
}

// hashSquadConfig derives the cache key suffix. Map keys marshal in sorted
// order, so equal configurations always hash the same.
func hashSquadConfig(squadConfig optimizer.SquadConfig) string {
	data, _ := json.Marshal(squadConfig)
	return fmt.Sprintf("%x", data)
}

func (h *OptimizerHandler) buildSquadConfig(req *optimizeRequest) (optimizer.SquadConfig, error) {
	quota := rugby.DefaultQuota()
	for name, count := range req.Quota {
		pos := rugby.ParsePosition(name)
		if pos == rugby.PositionUnknown {
			return optimizer.SquadConfig{}, fmt.Errorf("unknown position %q in quota", name)
		}
		quota[pos] = count
	}

	squadConfig := optimizer.SquadConfig{
		Quota:       quota,
		ExcludedIDs: req.ExcludedIDs,
		NodeLimit:   h.config.SolverNodeLimit,
	}

	switch {
	case req.NoClubCap:
		// cap disabled
	case req.ClubCap != nil:
		squadConfig.ClubCap = req.ClubCap
	case h.config.ClubCap > 0:
		clubCap := h.config.ClubCap
		squadConfig.ClubCap = &clubCap
	}

	return squadConfig, nil
}

// runSolve executes the solver in a worker goroutine so a runaway solve
// cannot hold the handler past the configured timeout.
func (h *OptimizerHandler) runSolve(pool []rugby.PlayerRecord, squadConfig optimizer.SquadConfig) (*optimizer.Selection, error) {
	resultChan := make(chan *optimizer.Selection, 1)
	errorChan := make(chan error, 1)

	go func() {
		selection, err := optimizer.SelectSquad(pool, squadConfig)
		if err != nil {
			errorChan <- err
			return
		}
		resultChan <- selection
	}()

	timeout := time.Duration(h.config.OptimizationTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	select {
	case selection := <-resultChan:
		return selection, nil
	case err := <-errorChan:
		return nil, err
	case <-time.After(timeout):
		return nil, errSolveTimeout
	}
}

var errSolveTimeout = errors.New("optimization timeout exceeded")

func (h *OptimizerHandler) sendOptimizerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, optimizer.ErrInvalidConfiguration):
		utils.SendValidationError(c, "Invalid squad configuration", err.Error())
	case errors.Is(err, optimizer.ErrEmptyPool):
		utils.SendUnprocessable(c, utils.ErrCodeEmptyPool, "No eligible players in the pool", err.Error())
	case errors.Is(err, optimizer.ErrInfeasible):
		utils.SendUnprocessable(c, utils.ErrCodeInfeasible, "No squad satisfies the active constraints", err.Error())
	case errors.Is(err, errSolveTimeout):
		utils.SendError(c, http.StatusRequestTimeout,
			utils.NewAppError(utils.ErrCodeOptimization, "Optimization timeout",
				"the solve exceeded the configured time limit"))
	default:
		utils.SendError(c, http.StatusInternalServerError,
			utils.NewAppError(utils.ErrCodeOptimization, "Optimization failed", err.Error()))
	}
}

// saveSquad persists a selection with its teamsheet numbering. Selected
// players must already exist in the players table.
func (h *OptimizerHandler) saveSquad(selection *optimizer.Selection, label string, clubCap *int) (*models.Squad, error) {
	externalIDs := make([]string, 0, len(selection.Squad))
	for _, p := range selection.Squad {
		externalIDs = append(externalIDs, p.ID)
	}

	var rows []models.Player
	if err := h.db.Where("external_id IN ?", externalIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	byExternalID := make(map[string]uint, len(rows))
	for _, row := range rows {
		byExternalID[row.ExternalID] = row.ID
	}

	storedCap := 0
	if clubCap != nil {
		storedCap = *clubCap
	}

	squad := &models.Squad{
		Label:         label,
		ClubCap:       storedCap,
		CaptainID:     byExternalID[selection.Captain.ID],
		TotalPoints:   selection.TotalPoints,
		AveragePoints: selection.AveragePoints,
		CaptainPoints: selection.CaptainPoints,
		SolveTimeMs:   selection.SolveTimeMs,
	}

	tx := h.db.Begin()
	if err := tx.Error; err != nil {
		return nil, err
	}

	if err := tx.Create(squad).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	for _, entry := range report.Teamsheet(selection) {
		playerID, ok := byExternalID[entry.Player.ID]
		if !ok {
			tx.Rollback()
			return nil, fmt.Errorf("player %s is not in the database; run a stats sync first", entry.Player.ID)
		}

		squadPlayer := models.SquadPlayer{
			SquadID:   squad.ID,
			PlayerID:  playerID,
			Position:  string(entry.Player.Position),
			Shirt:     entry.Shirt,
			IsCaptain: entry.IsCaptain,
			Points:    entry.Player.AveragePoints,
		}
		if err := tx.Create(&squadPlayer).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	if err := squad.LoadPlayers(h.db.DB); err != nil {
		return nil, err
	}
	return squad, nil
}

func pairLabel(label string, ordinal int) string {
	if label == "" {
		label = "Optimal pair"
	}
	return fmt.Sprintf("%s (%d)", label, ordinal)
}
