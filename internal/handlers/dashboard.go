package handlers

import (
	"github.com/gigflow/backend/internal/middleware"
	"github.com/gigflow/backend/internal/workflow"
	"github.com/gigflow/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type DashboardHandler struct {
	engine *workflow.Engine
}

func NewDashboardHandler(engine *workflow.Engine) *DashboardHandler {
	return &DashboardHandler{engine: engine}
}

// GetStats returns status counts for the caller's projects, proposals and contracts
// GET /api/dashboard/stats
func (h *DashboardHandler) GetStats(c *gin.Context) {
	stats, err := h.engine.Dashboard(c.Request.Context(), middleware.GetActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, stats)
}
