package handlers

import (
	"github.com/gigflow/backend/internal/audit"
	"github.com/gigflow/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type AuditLogHandler struct {
	service *audit.Service
}

func NewAuditLogHandler(service *audit.Service) *AuditLogHandler {
	return &AuditLogHandler{service: service}
}

// List returns the workflow audit trail, newest first
// GET /api/audit-logs
func (h *AuditLogHandler) List(c *gin.Context) {
	var req audit.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.service.List(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}
