package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"relove/market/internal/api/middleware"
	"relove/market/internal/models"
	"relove/market/internal/services"
)

// RestPaymentHandler handles REST requests for the payment flow.
type RestPaymentHandler struct {
	payments services.IPaymentService
}

// NewRestPaymentHandler creates a new RestPaymentHandler.
func NewRestPaymentHandler(payments services.IPaymentService) *RestPaymentHandler {
	return &RestPaymentHandler{payments: payments}
}

// paymentIntentRequest asks Stripe for a client secret for the given amount.
type paymentIntentRequest struct {
	Price float64 `json:"price"`
}

// CreatePaymentIntent handles POST /create-payment-intent.
func (h *RestPaymentHandler) CreatePaymentIntent(c *gin.Context) {
	var req paymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payment payload"})
		return
	}

	intent, err := h.payments.CreateIntent(c.Request.Context(), req.Price, "usd")
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create payment intent"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"clientSecret": intent.ClientSecret})
}

// RecordPayment handles POST /payments. A confirmed charge is recorded and
// the product, its bookings and any sibling payment rows are marked paid.
func (h *RestPaymentHandler) RecordPayment(c *gin.Context) {
	var payment models.Payment
	if err := c.ShouldBindJSON(&payment); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payment payload"})
		return
	}
	if payment.ProductID == "" || payment.TransactionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product_id and transactionId are required"})
		return
	}
	if payment.BuyerEmail == "" {
		payment.BuyerEmail = c.GetString(middleware.ContextKeyEmail)
	}

	recorded, err := h.payments.Record(c.Request.Context(), &payment)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record payment"})
		return
	}
	c.JSON(http.StatusCreated, recorded)
}
