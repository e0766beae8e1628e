package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/crowdqueue/backend/internal/auth"
	"github.com/crowdqueue/backend/pkg/response"
)

const (
	// ContextSubjectID is the key for the caller's identity (user or guest ID) in gin context.
	ContextSubjectID = "subject_id"
	// ContextRole is the key for the caller's role in gin context.
	ContextRole = "role"
	// ContextSessionID is the key for a guest token's session scope in gin context.
	ContextSessionID = "session_id"
	// ContextName is the key for the caller's display name in gin context.
	ContextName = "name"
)

// JWT returns a middleware that validates JWT and sets caller claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextSubjectID, claims.SubjectID)
		c.Set(ContextRole, claims.Role)
		c.Set(ContextName, claims.Name)
		if claims.SessionID != nil {
			c.Set(ContextSessionID, *claims.SessionID)
		}
		c.Next()
	}
}
