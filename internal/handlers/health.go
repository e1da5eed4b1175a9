package handlers

import (
	"net/http"

	"github.com/gigflow/backend/internal/events"
	"github.com/gigflow/backend/internal/models"
	"github.com/gigflow/backend/internal/notify"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler reports the state of the database and the delivery paths.
type HealthHandler struct {
	db    *gorm.DB
	queue notify.Queue
	hub   *events.Hub
}

// NewHealthHandler accepts a nil queue when webhook delivery is disabled.
func NewHealthHandler(db *gorm.DB, queue notify.Queue, hub *events.Hub) *HealthHandler {
	return &HealthHandler{db: db, queue: queue, hub: hub}
}

// CheckHealth returns the health status of all subsystems.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	status := http.StatusOK

	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	}
	if overall != "healthy" {
		status = http.StatusServiceUnavailable
	}

	queueMode := "disabled"
	if h.queue != nil {
		queueMode = "sync"
		if h.queue.IsAsync() {
			queueMode = "async (Redis)"
		}
	}

	sseClients := 0
	if h.hub != nil {
		sseClients = h.hub.ClientCount()
	}

	var openProjects int64
	h.db.WithContext(c.Request.Context()).Model(&models.Project{}).
		Where("status = ?", models.ProjectOpen).
		Count(&openProjects)

	c.JSON(status, gin.H{
		"status":  overall,
		"service": "gigflow",
		"components": gin.H{
			"database":      dbStatus,
			"notify_queue":  queueMode,
			"sse_clients":   sseClients,
			"open_projects": openProjects,
		},
	})
}
