package handlers

import (
	"github.com/gigflow/backend/internal/apperr"
	"github.com/gigflow/backend/internal/config"
	"github.com/gigflow/backend/internal/middleware"
	"github.com/gigflow/backend/internal/models"
	"github.com/gigflow/backend/internal/utils"
	"github.com/gigflow/backend/internal/workflow"
	"github.com/gigflow/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	engine     *workflow.Engine
	expireHour int
}

func NewAuthHandler(engine *workflow.Engine, cfg *config.JWTConfig) *AuthHandler {
	return &AuthHandler{engine: engine, expireHour: cfg.ExpireHour}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Register creates a CLIENT or FREELANCER account and signs it in
// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req workflow.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	user, err := h.engine.RegisterUser(c.Request.Context(), middleware.GetActor(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.respondWithToken(c, user, true)
}

// Login handles user login
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	user, err := h.engine.Authenticate(c.Request.Context(), req.Email, req.Password)
	if apperr.Is(err, apperr.KindForbidden) {
		response.Unauthorized(c, "invalid email or password")
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	h.respondWithToken(c, user, false)
}

func (h *AuthHandler) respondWithToken(c *gin.Context, user *models.User, created bool) {
	token, err := utils.GenerateToken(user.ID, user.Email, string(user.Role), h.expireHour)
	if err != nil {
		response.Error(c, response.NewServerError("failed to generate token"))
		return
	}
	resp := LoginResponse{Token: token, User: user}
	if created {
		response.Created(c, resp)
		return
	}
	response.Success(c, resp)
}

// GetCurrentUser returns the current logged-in user
// GET /api/auth/me
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	actor := middleware.GetActor(c)
	user, err := h.engine.GetUser(c.Request.Context(), actor, actor.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, user)
}

// Logout handles user logout (client-side token removal)
// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	response.Success(c, gin.H{"message": "logged out successfully"})
}
