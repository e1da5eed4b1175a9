package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gigflow/backend/internal/apperr"
	"github.com/gigflow/backend/internal/authz"
	"github.com/gigflow/backend/internal/models"
	"github.com/gigflow/backend/internal/utils"
	"github.com/gigflow/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

const (
	ContextUserID = "user_id"
	ContextEmail  = "email"
	ContextRole   = "role"
)

// AuthRequired checks for a valid JWT. The token comes from the
// Authorization header or, for EventSource clients, the token query parameter.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			response.Unauthorized(c, "authorization header required")
			c.Abort()
			return
		}

		claims, err := utils.ParseToken(tokenString)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		role, valid := models.ParseRole(claims.Role)
		if !valid {
			response.Unauthorized(c, "token carries an unknown role")
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextEmail, claims.Email)
		c.Set(ContextRole, string(role))

		c.Next()
	}
}

// AccountVerifier reports whether the actor named by a token may still act.
type AccountVerifier interface {
	VerifyAccount(ctx context.Context, actor authz.Actor) error
}

// ActiveAccount runs after AuthRequired and turns away tokens whose account
// has been deleted or whose role no longer matches the stored one.
func ActiveAccount(v AccountVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := v.VerifyAccount(c.Request.Context(), GetActor(c))
		if err == nil {
			c.Next()
			return
		}
		var appErr *apperr.Error
		if errors.As(err, &appErr) && appErr.Kind == apperr.KindForbidden {
			response.Unauthorized(c, appErr.Message)
		} else {
			response.Error(c, err)
		}
		c.Abort()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		token := c.Query("token")
		return token, token != ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// AdminRequired is a middleware that checks for admin role
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetRole(c) != string(models.RoleAdmin) {
			c.JSON(http.StatusForbidden, response.Response{Code: 403, Message: "admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetActor builds the workflow actor of the current request. It is the zero
// Actor when the request is unauthenticated.
func GetActor(c *gin.Context) authz.Actor {
	return authz.Actor{ID: GetUserID(c), Role: models.Role(GetRole(c))}
}

// GetUserID gets the current user ID from context
func GetUserID(c *gin.Context) uint {
	if id, exists := c.Get(ContextUserID); exists {
		return id.(uint)
	}
	return 0
}

func GetEmail(c *gin.Context) string {
	if email, exists := c.Get(ContextEmail); exists {
		return email.(string)
	}
	return ""
}

// GetRole gets the current user role from context
func GetRole(c *gin.Context) string {
	if role, exists := c.Get(ContextRole); exists {
		return role.(string)
	}
	return ""
}
