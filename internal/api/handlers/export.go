package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/optimizer"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/report"
	"github.com/rugbyfantasy/sixnations-optimizer/pkg/database"
	"github.com/rugbyfantasy/sixnations-optimizer/pkg/utils"
	"gorm.io/gorm"
)

type ExportHandler struct {
	db *database.DB
}

func NewExportHandler(db *database.DB) *ExportHandler {
	return &ExportHandler{
		db: db,
	}
}

// ExportSquad renders one saved squad as CSV or as a plain-text teamsheet
func (h *ExportHandler) ExportSquad(c *gin.Context) {
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

	selection := report.FromSquad(squad)
	format := c.DefaultQuery("format", "teamsheet")

	switch format {
	case "csv":
		var buf bytes.Buffer
		if err := report.WriteCSV(&buf, selection); err != nil {
			utils.SendError(c, http.StatusInternalServerError,
				utils.NewAppError(utils.ErrCodeExport, "Failed to export squad", err.Error()))
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=squad_%s.csv", squad.Reference))
		c.Data(http.StatusOK, "text/csv", buf.Bytes())

	case "teamsheet":
		label := squad.Label
		if label == "" {
			label = "SAVED FANTASY RUGBY SQUAD"
		}
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(report.FormatText(selection, label)))

	default:
		utils.SendValidationError(c, "Unsupported export format", format)
	}
}

// ExportSquads renders one or two saved squads into a single CSV, the layout
// used to fill in a first and second team before a deadline
func (h *ExportHandler) ExportSquads(c *gin.Context) {
	var req struct {
		SquadIDs []string `json:"squad_ids" binding:"required,min=1,max=2"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "Invalid request body", err.Error())
		return
	}

	selections := make([]*optimizer.Selection, 0, len(req.SquadIDs))
	for _, id := range req.SquadIDs {
		squad, err := findSquad(h.db, id)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				utils.SendNotFound(c, fmt.Sprintf("Squad %s not found", id))
			} else {
				utils.SendInternalError(c, "Failed to fetch squad")
			}
			return
		}
		if err := squad.LoadPlayers(h.db.DB); err != nil {
			utils.SendInternalError(c, "Failed to load squad players")
			return
		}
		selections = append(selections, report.FromSquad(squad))
	}

	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, selections...); err != nil {
		utils.SendError(c, http.StatusInternalServerError,
			utils.NewAppError(utils.ErrCodeExport, "Failed to export squads", err.Error()))
		return
	}

	c.Header("Content-Disposition", "attachment; filename=fantasy_squads.csv")
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}
