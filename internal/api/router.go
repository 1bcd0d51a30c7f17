package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/api/handlers"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/services"
	"github.com/rugbyfantasy/sixnations-optimizer/pkg/config"
	"github.com/rugbyfantasy/sixnations-optimizer/pkg/database"
)

// SetupRoutes configures all API routes on the given router group
func SetupRoutes(group *gin.RouterGroup, db *database.DB, cache *services.CacheService, wsHub *services.WebSocketHub, cfg *config.Config, roster *services.RosterService, scheduler *services.SchedulerService) {
	playerHandler := handlers.NewPlayerHandler(db, cache)
	optimizerHandler := handlers.NewOptimizerHandler(db, cache, roster, wsHub, cfg)
	squadHandler := handlers.NewSquadHandler(db, cache)
	statsHandler := handlers.NewStatsHandler(roster, scheduler)
	exportHandler := handlers.NewExportHandler(db)

	// Player pool endpoints
	group.GET("/players", playerHandler.GetPlayers)
	group.GET("/players/summary", playerHandler.GetPositionSummary)
	group.GET("/players/:id", playerHandler.GetPlayer)

	// Optimization endpoints
	group.POST("/optimize", optimizerHandler.OptimizeSquad)
	group.POST("/optimize/pair", optimizerHandler.OptimizePair)
	group.GET("/optimize/requirements", optimizerHandler.GetRequirements)

	// Saved squad endpoints
	group.GET("/squads", squadHandler.GetSquads)
	group.GET("/squads/:id", squadHandler.GetSquad)
	group.DELETE("/squads/:id", squadHandler.DeleteSquad)
	group.GET("/squads/:id/export", exportHandler.ExportSquad)
	group.POST("/export", exportHandler.ExportSquads)

	// Stats sync endpoints
	group.POST("/stats/refresh", statsHandler.RefreshStats)
	group.GET("/stats/status", statsHandler.GetSyncStatus)
}
