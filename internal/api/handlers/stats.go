package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/services"
	"github.com/rugbyfantasy/sixnations-optimizer/pkg/utils"
)

type StatsHandler struct {
	roster    *services.RosterService
	scheduler *services.SchedulerService
}

func NewStatsHandler(roster *services.RosterService, scheduler *services.SchedulerService) *StatsHandler {
	return &StatsHandler{
		roster:    roster,
		scheduler: scheduler,
	}
}

type refreshRequest struct {
	Round int  `json:"round"`
	Force bool `json:"force"`
}

// RefreshStats runs an on-demand sync against the stats provider. Round 0
// refreshes season averages; a positive round also records that round's
// points. The sync runs detached from the request context so a dropped
// client does not abandon a half-finished upsert pass.
func (h *StatsHandler) RefreshStats(c *gin.Context) {
	req := refreshRequest{Force: true}
	if err := bindOptionalJSON(c, &req); err != nil {
		utils.SendValidationError(c, "Invalid request body", err.Error())
		return
	}
	if req.Round < 0 || req.Round > 5 {
		utils.SendValidationError(c, "Round must be between 0 and 5", "")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := h.roster.Sync(ctx, req.Round, req.Force)
	if err != nil {
		utils.SendError(c, http.StatusBadGateway,
			utils.NewAppError(utils.ErrCodeStatsSync, "Stats sync failed", err.Error()))
		return
	}

	utils.SendSuccess(c, result)
}

// GetSyncStatus reports the last sync outcome, pool size, and scheduler state
func (h *StatsHandler) GetSyncStatus(c *gin.Context) {
	status, err := h.roster.Status(c.Request.Context())
	if err != nil {
		utils.SendInternalError(c, "Failed to read sync status")
		return
	}

	response := gin.H{
		"last_sync":    status.LastSync,
		"last_error":   status.LastError,
		"player_count": status.PlayerCount,
		"syncing":      status.Syncing,
	}
	if h.scheduler != nil {
		response["scheduler"] = h.scheduler.GetStatus()
	}

	utils.SendSuccess(c, response)
}
