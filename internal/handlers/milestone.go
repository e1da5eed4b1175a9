package handlers

import (
	"github.com/gigflow/backend/internal/middleware"
	"github.com/gigflow/backend/internal/workflow"
	"github.com/gigflow/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type MilestoneHandler struct {
	engine *workflow.Engine
}

func NewMilestoneHandler(engine *workflow.Engine) *MilestoneHandler {
	return &MilestoneHandler{engine: engine}
}

// GET /api/milestones?contract_id=&project_id=
func (h *MilestoneHandler) List(c *gin.Context) {
	var req workflow.MilestoneFilter
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.engine.ListMilestones(c.Request.Context(), middleware.GetActor(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// GET /api/milestones/:id
func (h *MilestoneHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	milestone, err := h.engine.GetMilestone(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, milestone)
}

// PUT /api/milestones/:id
func (h *MilestoneHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req workflow.UpdateMilestoneInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	milestone, err := h.engine.UpdateMilestone(c.Request.Context(), middleware.GetActor(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, milestone)
}

// DELETE /api/milestones/:id
func (h *MilestoneHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.engine.DeleteMilestone(c.Request.Context(), middleware.GetActor(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "milestone deleted successfully"})
}

// AttachFile uploads the multipart "file" field as the milestone's deliverable
// POST /api/milestones/:id/file
func (h *MilestoneHandler) AttachFile(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	upload, closeFn, ok := formUpload(c)
	if !ok {
		return
	}
	defer closeFn()

	milestone, file, err := h.engine.AttachMilestoneFile(c.Request.Context(), middleware.GetActor(c), id, upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"milestone": milestone, "file": file})
}

// DELETE /api/milestones/:id/file
func (h *MilestoneHandler) DetachFile(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	milestone, err := h.engine.DetachMilestoneFile(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, milestone)
}
