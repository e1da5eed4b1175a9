package handlers

import (
	"github.com/gigflow/backend/internal/middleware"
	"github.com/gigflow/backend/internal/workflow"
	"github.com/gigflow/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type ContractHandler struct {
	engine *workflow.Engine
}

func NewContractHandler(engine *workflow.Engine) *ContractHandler {
	return &ContractHandler{engine: engine}
}

// GET /api/contracts
func (h *ContractHandler) List(c *gin.Context) {
	var req workflow.ContractFilter
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.engine.ListContracts(c.Request.Context(), middleware.GetActor(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// GET /api/contracts/:id
func (h *ContractHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	contract, err := h.engine.GetContract(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, contract)
}

// POST /api/contracts
func (h *ContractHandler) Create(c *gin.Context) {
	var req workflow.CreateContractInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	contract, err := h.engine.CreateContract(c.Request.Context(), middleware.GetActor(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, contract)
}

// PUT /api/contracts/:id
func (h *ContractHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req workflow.UpdateContractInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	contract, err := h.engine.UpdateContract(c.Request.Context(), middleware.GetActor(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, contract)
}

// DELETE /api/contracts/:id
func (h *ContractHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.engine.DeleteContract(c.Request.Context(), middleware.GetActor(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "contract deleted successfully"})
}

// CreateMilestone adds a milestone under the contract
// POST /api/contracts/:id/milestones
func (h *ContractHandler) CreateMilestone(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req workflow.CreateMilestoneInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	milestone, err := h.engine.CreateMilestone(c.Request.Context(), middleware.GetActor(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, milestone)
}
