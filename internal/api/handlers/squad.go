package handlers

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/models"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/services"
	"github.com/rugbyfantasy/sixnations-optimizer/pkg/database"
	"github.com/rugbyfantasy/sixnations-optimizer/pkg/utils"
	"gorm.io/gorm"
)

type SquadHandler struct {
	db    *database.DB
	cache *services.CacheService
}

func NewSquadHandler(db *database.DB, cache *services.CacheService) *SquadHandler {
	return &SquadHandler{
		db:    db,
		cache: cache,
	}
}

// GetSquads returns saved squads, newest first
func (h *SquadHandler) GetSquads(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("perPage", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	query := h.db.Model(&models.Squad{})

	var total int64
	query.Count(&total)

	var squads []models.Squad
	offset := (page - 1) * perPage
	if err := query.Offset(offset).Limit(perPage).Order("created_at DESC, id DESC").Find(&squads).Error; err != nil {
		utils.SendInternalError(c, "Failed to fetch squads")
		return
	}

	for i := range squads {
		if err := squads[i].LoadPlayers(h.db.DB); err != nil {
			utils.SendInternalError(c, "Failed to load squad players")
			return
		}
	}

	totalPages := int(total) / perPage
	if int(total)%perPage > 0 {
		totalPages++
	}

	meta := &utils.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	}

	utils.SendSuccessWithMeta(c, squads, meta)
}

// GetSquad returns a single saved squad by reference
func (h *SquadHandler) GetSquad(c *gin.Context) {
	squad, err := findSquad(h.db, c.Param("id"))
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.SendNotFound(c, "Squad not found")
		} else {
			utils.SendInternalError(c, "Failed to fetch squad")
		}
		return
	}

	if err := squad.LoadPlayers(h.db.DB); err != nil {
		utils.SendInternalError(c, "Failed to load squad players")
		return
	}

	utils.SendSuccess(c, squad)
}

// DeleteSquad removes a saved squad and its player rows
func (h *SquadHandler) DeleteSquad(c *gin.Context) {
	squad, err := findSquad(h.db, c.Param("id"))
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.SendNotFound(c, "Squad not found")
		} else {
			utils.SendInternalError(c, "Failed to fetch squad")
		}
		return
	}

	tx := h.db.Begin()
	if err := tx.Where("squad_id = ?", squad.ID).Delete(&models.SquadPlayer{}).Error; err != nil {
		tx.Rollback()
		utils.SendInternalError(c, "Failed to delete squad players")
		return
	}
	if err := tx.Delete(&models.Squad{}, squad.ID).Error; err != nil {
		tx.Rollback()
		utils.SendInternalError(c, "Failed to delete squad")
		return
	}
	if err := tx.Commit().Error; err != nil {
		utils.SendInternalError(c, "Failed to delete squad")
		return
	}

	if h.cache != nil {
		h.cache.Delete(context.Background(), services.SquadCacheKey(squad.ID))
	}

	utils.SendSuccess(c, gin.H{
		"deleted":   true,
		"reference": squad.Reference,
	})
}

// findSquad resolves a route parameter that may be a squad reference or a
// numeric primary key.
func findSquad(db *database.DB, param string) (*models.Squad, error) {
	var squad models.Squad
	err := db.Where("reference = ?", param).First(&squad).Error
	if err == nil {
		return &squad, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	id, convErr := strconv.ParseUint(param, 10, 32)
	if convErr != nil {
		return nil, gorm.ErrRecordNotFound
	}
	if err := db.First(&squad, uint(id)).Error; err != nil {
		return nil, err
	}
	return &squad, nil
}
