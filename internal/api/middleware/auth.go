package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"relove/market/internal/auth"
	"relove/market/internal/models"
	"relove/market/internal/services"
)

const (
	// ContextKeyEmail holds the authenticated subject email in Gin context.
	ContextKeyEmail = "userEmail"
)

// Policy is the declarative access table: it maps "METHOD /route/template"
// to the role required on that route. Routes absent from the table require
// authentication only; models.RoleAny can be used to state that explicitly.
type Policy map[string]models.Role

// Authenticate creates the credential-checking middleware. A missing
// Authorization header is Unauthorized; a credential that fails signature or
// expiry verification is Forbidden. On success the subject email is attached
// to the request context.
func Authenticate(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
			return
		}

		claims, err := auth.ValidateJWT(parts[1], jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(ContextKeyEmail, claims.Email)
		c.Next()
	}
}

// Authorize creates the role-checking middleware. It evaluates the policy
// for the matched route and resolves the caller's role with a fresh
// users-collection lookup on every request. Roles are deliberately never
// cached, so a role change takes effect on the caller's next request.
// Assumes Authenticate runs first.
func Authorize(users services.IUserService, policy Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		required, ok := policy[c.Request.Method+" "+c.FullPath()]
		if !ok || required == models.RoleAny {
			c.Next()
			return
		}

		email := c.GetString(ContextKeyEmail)
		if email == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "No authenticated identity"})
			return
		}

		user, err := users.FindByEmail(c.Request.Context(), email)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "No account for authenticated identity"})
				return
			}
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve caller role"})
			return
		}
		if user.Role != required {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": string(required) + " privileges required"})
			return
		}

		c.Next()
	}
}
