package handlers

import (
	"github.com/gigflow/backend/internal/middleware"
	"github.com/gigflow/backend/internal/models"
	"github.com/gigflow/backend/internal/workflow"
	"github.com/gigflow/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type ProjectHandler struct {
	engine *workflow.Engine
}

func NewProjectHandler(engine *workflow.Engine) *ProjectHandler {
	return &ProjectHandler{engine: engine}
}

// List returns paginated projects
// GET /api/projects
func (h *ProjectHandler) List(c *gin.Context) {
	var req workflow.ProjectFilter
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.engine.ListProjects(c.Request.Context(), middleware.GetActor(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// GetByID returns a project by ID
// GET /api/projects/:id
func (h *ProjectHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	project, err := h.engine.GetProject(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, project)
}

// Create posts a new project owned by the calling client
// POST /api/projects
func (h *ProjectHandler) Create(c *gin.Context) {
	var req workflow.CreateProjectInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	project, err := h.engine.CreateProject(c.Request.Context(), middleware.GetActor(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, project)
}

// UpdateStatus sets the project status
// PUT /api/projects/:id/status
func (h *ProjectHandler) UpdateStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	project, err := h.engine.ChangeProjectStatus(c.Request.Context(), middleware.GetActor(c), id, models.ProjectStatus(req.Status))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, project)
}

// SubmitProposal places the calling freelancer's bid on the project
// POST /api/projects/:id/proposals
func (h *ProjectHandler) SubmitProposal(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req workflow.SubmitProposalInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	proposal, err := h.engine.SubmitProposal(c.Request.Context(), middleware.GetActor(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, proposal)
}
