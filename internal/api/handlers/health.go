package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/services"
	"github.com/rugbyfantasy/sixnations-optimizer/pkg/database"
)

type HealthHandler struct {
	db          *database.DB
	redisClient *redis.Client
	hub         *services.WebSocketHub
}

func NewHealthHandler(db *database.DB, redisClient *redis.Client, hub *services.WebSocketHub) *HealthHandler {
	return &HealthHandler{
		db:          db,
		redisClient: redisClient,
		hub:         hub,
	}
}

// GetHealth returns basic health status - always returns 200 if server is running
// This is used for basic liveness probes
func (h *HealthHandler) GetHealth(c *gin.Context) {
	resp := gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"service":   "sixnations-optimizer",
	}
	if h.hub != nil {
		resp["websocket_clients"] = h.hub.ClientCount()
	}
	c.JSON(http.StatusOK, resp)
}

// GetReady returns readiness status - only returns 200 when the database and
// cache both answer. This is used for readiness probes in container
// orchestration
func (h *HealthHandler) GetReady(c *gin.Context) {
	checks := gin.H{}
	ready := true

	sqlDB, err := h.db.DB.DB()
	if err == nil {
		err = sqlDB.Ping()
	}
	if err != nil {
		checks["database"] = "down: " + err.Error()
		ready = false
	} else {
		checks["database"] = "up"
	}

	if h.redisClient != nil {
		if err := h.redisClient.Ping(c.Request.Context()).Err(); err != nil {
			checks["redis"] = "down: " + err.Error()
			ready = false
		} else {
			checks["redis"] = "up"
		}
	} else {
		checks["redis"] = "disabled"
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}

	c.JSON(status, gin.H{
		"status": state,
		"checks": checks,
	})
}
