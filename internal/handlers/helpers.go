package handlers

import (
	"strconv"

	"github.com/gigflow/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

// parseID reads a positive numeric path parameter, answering 400 when it is not one.
func parseID(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid "+param)
		return 0, false
	}
	return uint(id), true
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}
