package handlers

import (
	"errors"
	"io"

	"github.com/gigflow/backend/internal/middleware"
	"github.com/gigflow/backend/internal/models"
	"github.com/gigflow/backend/internal/workflow"
	"github.com/gigflow/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type ProposalHandler struct {
	engine *workflow.Engine
}

func NewProposalHandler(engine *workflow.Engine) *ProposalHandler {
	return &ProposalHandler{engine: engine}
}

// GET /api/proposals
func (h *ProposalHandler) List(c *gin.Context) {
	var req workflow.ProposalFilter
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.engine.ListProposals(c.Request.Context(), middleware.GetActor(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// GET /api/proposals/:id
func (h *ProposalHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	proposal, err := h.engine.GetProposal(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, proposal)
}

// UpdateStatus accepts or rejects a proposal by target status
// PUT /api/proposals/:id/status
func (h *ProposalHandler) UpdateStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	proposal, err := h.engine.ChangeProposalStatus(c.Request.Context(), middleware.GetActor(c), id, models.ProposalStatus(req.Status))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, proposal)
}

// Accept returns the proposal together with the project and contract it changed.
// The body is optional: {"contract_description": "..."}.
// POST /api/proposals/:id/accept
func (h *ProposalHandler) Accept(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req workflow.AcceptInput
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			response.BadRequest(c, err.Error())
			return
		}
	}

	result, err := h.engine.AcceptProposalWith(c.Request.Context(), middleware.GetActor(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// POST /api/proposals/:id/reject
func (h *ProposalHandler) Reject(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	proposal, err := h.engine.RejectProposal(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, proposal)
}
