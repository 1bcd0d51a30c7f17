package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/models"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/rugby"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/services"
	"github.com/rugbyfantasy/sixnations-optimizer/pkg/database"
	"github.com/rugbyfantasy/sixnations-optimizer/pkg/utils"
)

type PlayerHandler struct {
	db    *database.DB
	cache *services.CacheService
}

func NewPlayerHandler(db *database.DB, cache *services.CacheService) *PlayerHandler {
	return &PlayerHandler{
		db:    db,
		cache: cache,
	}
}

// GetPlayers returns the scored player pool with optional filters
func (h *PlayerHandler) GetPlayers(c *gin.Context) {
	club := c.Query("club")
	position := c.Query("position")
	search := c.Query("search")
	minPointsStr := c.Query("min_points")
	sortBy := c.DefaultQuery("sort", "average_points")
	sortOrder := c.DefaultQuery("order", "desc")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	if position != "" && rugby.ParsePosition(position) == rugby.PositionUnknown {
		utils.SendValidationError(c, "Unknown position", position)
		return
	}

	switch sortBy {
	case "average_points", "total_points", "name", "club", "position":
	default:
		utils.SendValidationError(c, "Unsupported sort column", sortBy)
		return
	}
	if sortOrder != "asc" && sortOrder != "desc" {
		utils.SendValidationError(c, "Sort order must be asc or desc", sortOrder)
		return
	}

	// Unfiltered club/position listings are served from cache
	useCache := h.cache != nil && search == "" && minPointsStr == "" && limit == 0 && offset == 0 &&
		sortBy == "average_points" && sortOrder == "desc"
	cacheKey := services.PlayerListCacheKey(club, position)

	ctx := context.Background()
	var players []models.Player
	if useCache {
		if err := h.cache.Get(ctx, cacheKey, &players); err == nil {
			utils.SendSuccess(c, players)
			return
		}
	}

	query := h.db.Model(&models.Player{})
	if club != "" {
		query = query.Where("club = ?", club)
	}
	if position != "" {
		query = query.Where("position = ?", string(rugby.ParsePosition(position)))
	}
	if search != "" {
		query = query.Where("name LIKE ?", "%"+search+"%")
	}
	if minPointsStr != "" {
		minPoints, err := strconv.ParseFloat(minPointsStr, 64)
		if err != nil {
			utils.SendValidationError(c, "Invalid min_points value", minPointsStr)
			return
		}
		query = query.Where("average_points >= ?", minPoints)
	}

	query = query.Order(sortBy + " " + sortOrder).Order("id")
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}

	if err := query.Find(&players).Error; err != nil {
		utils.SendInternalError(c, "Failed to fetch players")
		return
	}

	if useCache {
		h.cache.SetWithRetry(ctx, cacheKey, players, 5*time.Minute, 3)
	}

	utils.SendSuccess(c, players)
}

// GetPlayer returns a single player by upstream ID
func (h *PlayerHandler) GetPlayer(c *gin.Context) {
	externalID := c.Param("id")
	if externalID == "" {
		utils.SendValidationError(c, "Player ID required", "")
		return
	}

	var player models.Player
	if err := h.db.Where("external_id = ?", externalID).First(&player).Error; err != nil {
		utils.SendNotFound(c, "Player not found")
		return
	}

	utils.SendSuccess(c, player)
}

// GetPositionSummary returns per-position pool counts and score spread
func (h *PlayerHandler) GetPositionSummary(c *gin.Context) {
	var rows []struct {
		Position string
		Count    int
		Avg      float64
		Max      float64
	}

	err := h.db.Model(&models.Player{}).
		Select("position, COUNT(*) as count, AVG(average_points) as avg, MAX(average_points) as max").
		Group("position").
		Scan(&rows).Error
	if err != nil {
		utils.SendInternalError(c, "Failed to summarize players")
		return
	}

	byPosition := make(map[string]gin.H, len(rows))
	total := 0
	for _, row := range rows {
		byPosition[row.Position] = gin.H{
			"count":      row.Count,
			"avg_points": row.Avg,
			"max_points": row.Max,
		}
		total += row.Count
	}

	quota := rugby.DefaultQuota()
	summary := make([]gin.H, 0, len(quota))
	for _, pos := range rugby.Positions() {
		entry := gin.H{
			"position":   string(pos),
			"required":   quota[pos],
			"count":      0,
			"avg_points": 0.0,
			"max_points": 0.0,
		}
		if stats, ok := byPosition[string(pos)]; ok {
			entry["count"] = stats["count"]
			entry["avg_points"] = stats["avg_points"]
			entry["max_points"] = stats["max_points"]
		}
		summary = append(summary, entry)
	}

	utils.SendSuccess(c, gin.H{
		"total_players": total,
		"positions":     summary,
	})
}
