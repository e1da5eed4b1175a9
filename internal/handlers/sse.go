package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/gigflow/backend/internal/events"
	"github.com/gigflow/backend/internal/middleware"
	"github.com/gigflow/backend/pkg/logger"
	"github.com/gigflow/backend/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SSEHandler streams committed workflow events to browsers
type SSEHandler struct {
	hub *events.Hub
}

func NewSSEHandler(hub *events.Hub) *SSEHandler {
	return &SSEHandler{hub: hub}
}

// Stream sends every event, or only those of ?project_id=, as server-sent events
// GET /api/events
func (h *SSEHandler) Stream(c *gin.Context) {
	var projectID uint
	if raw := c.Query("project_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			response.BadRequest(c, "invalid project_id")
			return
		}
		projectID = uint(v)
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	clientID := uuid.New().String()
	stream := h.hub.Subscribe(clientID, projectID)
	defer h.hub.Unsubscribe(clientID)

	logger.Info().
		Str("client_id", clientID).
		Uint("user_id", middleware.GetUserID(c)).
		Uint("project_id", projectID).
		Int("total", h.hub.ClientCount()).
		Msg("SSE client connected")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-stream:
			if !ok {
				return false
			}
			data, err := json.Marshal(event)
			if err != nil {
				logger.Error().Err(err).Msg("SSE marshal error")
				return true
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			c.Writer.Flush()
			return true
		case <-c.Request.Context().Done():
			logger.Info().Str("client_id", clientID).Msg("SSE client disconnected")
			return false
		}
	})
}
