package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"relove/market/internal/api/handlers"
	"relove/market/internal/auth"
	"relove/market/internal/config"
	"relove/market/internal/models"
)

func testConfig() *config.Config {
	return &config.Config{
		JwtSecret: "test-secret-key",
		JwtTTL:    7 * 24 * time.Hour,
	}
}

func TestRestUserHandler_UpsertUser_MintsToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockUserSvc := new(MockUserService)
	cfg := testConfig()
	handler := handlers.NewRestUserHandler(cfg, mockUserSvc)

	r := gin.New()
	r.PUT("/user/:email", handler.UpsertUser)

	result := &mongo.UpdateResult{MatchedCount: 0, UpsertedCount: 1}
	mockUserSvc.On("Upsert", mock.Anything, "alice@example.com", mock.Anything).Return(result, nil)

	body, _ := json.Marshal(map[string]interface{}{
		"name":  "Alice",
		"email": "alice@example.com",
		"role":  "buyer",
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/user/alice@example.com", bytes.NewReader(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var respBody map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &respBody)
	assert.NoError(t, err)
	assert.NotEmpty(t, respBody["token"])
	assert.NotNil(t, respBody["result"])

	// The minted token must identify the subject by email only.
	claims, err := auth.ValidateJWT(respBody["token"].(string), cfg.JwtSecret)
	assert.NoError(t, err)
	assert.Equal(t, "alice@example.com", claims.Email)
	mockUserSvc.AssertExpectations(t)
}

func TestRestUserHandler_UpsertUser_InvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockUserSvc := new(MockUserService)
	handler := handlers.NewRestUserHandler(testConfig(), mockUserSvc)

	r := gin.New()
	r.PUT("/user/:email", handler.UpsertUser)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/user/alice@example.com", bytes.NewReader([]byte("not-json")))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockUserSvc.AssertNotCalled(t, "Upsert")
}

func TestRestUserHandler_GetUserByEmail_NotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockUserSvc := new(MockUserService)
	handler := handlers.NewRestUserHandler(testConfig(), mockUserSvc)

	r := gin.New()
	r.GET("/users/:email", handler.GetUserByEmail)

	mockUserSvc.On("FindByEmail", mock.Anything, "ghost@example.com").Return(nil, mongo.ErrNoDocuments)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/users/ghost@example.com", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	mockUserSvc.AssertExpectations(t)
}

func TestRestUserHandler_ListSellers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockUserSvc := new(MockUserService)
	handler := handlers.NewRestUserHandler(testConfig(), mockUserSvc)

	r := gin.New()
	r.GET("/sellers", handler.ListSellers)

	sellers := []models.User{
		{ID: primitive.NewObjectID(), Email: "s1@example.com", Role: models.RoleSeller},
		{ID: primitive.NewObjectID(), Email: "s2@example.com", Role: models.RoleSeller},
	}
	mockUserSvc.On("ListByRole", mock.Anything, models.RoleSeller).Return(sellers, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/sellers", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var respBody []models.User
	err := json.Unmarshal(w.Body.Bytes(), &respBody)
	assert.NoError(t, err)
	assert.Len(t, respBody, 2)
	mockUserSvc.AssertExpectations(t)
}

func TestRestUserHandler_VerifyUser_InvalidID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockUserSvc := new(MockUserService)
	handler := handlers.NewRestUserHandler(testConfig(), mockUserSvc)

	r := gin.New()
	r.PUT("/verify-users/:id", handler.VerifyUser)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/verify-users/not-an-id", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockUserSvc.AssertNotCalled(t, "Verify")
}

func TestRestUserHandler_DeleteUser_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockUserSvc := new(MockUserService)
	handler := handlers.NewRestUserHandler(testConfig(), mockUserSvc)

	r := gin.New()
	r.DELETE("/users/:id", handler.DeleteUser)

	userID := primitive.NewObjectID()
	mockUserSvc.On("Delete", mock.Anything, userID).Return(nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/users/"+userID.Hex(), nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockUserSvc.AssertExpectations(t)
}
