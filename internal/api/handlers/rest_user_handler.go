package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"relove/market/internal/auth"
	"relove/market/internal/config"
	"relove/market/internal/models"
	"relove/market/internal/services"
)

// RestUserHandler handles REST requests for user identities.
type RestUserHandler struct {
	cfg   *config.Config
	users services.IUserService
}

// NewRestUserHandler creates a new RestUserHandler.
func NewRestUserHandler(cfg *config.Config, users services.IUserService) *RestUserHandler {
	return &RestUserHandler{cfg: cfg, users: users}
}

// UpsertUser handles PUT /user/:email. The profile is written with $set
// semantics and a fresh 7-day credential is minted for the subject on every
// successful write.
func (h *RestUserHandler) UpsertUser(c *gin.Context) {
	email := c.Param("email")

	var profile bson.M
	if err := c.ShouldBindJSON(&profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid profile payload"})
		return
	}

	result, err := h.users.Upsert(c.Request.Context(), email, profile)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save user"})
		return
	}

	token, err := auth.GenerateJWT(email, h.cfg.JwtSecret, h.cfg.JwtTTL)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result, "token": token})
}

// GetUserByEmail handles GET /users/:email.
func (h *RestUserHandler) GetUserByEmail(c *gin.Context) {
	email := c.Param("email")

	user, err := h.users.FindByEmail(c.Request.Context(), email)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
		}
		return
	}
	c.JSON(http.StatusOK, user)
}

// ListUsers handles GET /users.
func (h *RestUserHandler) ListUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
		return
	}
	c.JSON(http.StatusOK, users)
}

// ListBuyers handles GET /buyers.
func (h *RestUserHandler) ListBuyers(c *gin.Context) {
	h.listByRole(c, models.RoleBuyer)
}

// ListSellers handles GET /sellers.
func (h *RestUserHandler) ListSellers(c *gin.Context) {
	h.listByRole(c, models.RoleSeller)
}

func (h *RestUserHandler) listByRole(c *gin.Context, role models.Role) {
	users, err := h.users.ListByRole(c.Request.Context(), role)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
		return
	}
	c.JSON(http.StatusOK, users)
}

// VerifyUser handles PUT /verify-users/:id.
func (h *RestUserHandler) VerifyUser(c *gin.Context) {
	userID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID format"})
		return
	}

	if err := h.users.Verify(c.Request.Context(), userID); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify user"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": true})
}

// DeleteUser handles DELETE /users/:id.
func (h *RestUserHandler) DeleteUser(c *gin.Context) {
	userID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID format"})
		return
	}

	if err := h.users.Delete(c.Request.Context(), userID); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
