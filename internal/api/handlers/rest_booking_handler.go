package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"relove/market/internal/api/middleware"
	"relove/market/internal/models"
	"relove/market/internal/services"
)

// RestBookingHandler handles REST requests for bookings.
type RestBookingHandler struct {
	bookings services.IBookingService
}

// NewRestBookingHandler creates a new RestBookingHandler.
func NewRestBookingHandler(bookings services.IBookingService) *RestBookingHandler {
	return &RestBookingHandler{bookings: bookings}
}

// CreateBooking handles POST /bookings. The buyer identity comes from the
// authenticated claims. Booking the same product twice is allowed, matching
// the first-come-first-served meetup model.
func (h *RestBookingHandler) CreateBooking(c *gin.Context) {
	var booking models.Booking
	if err := c.ShouldBindJSON(&booking); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking payload"})
		return
	}
	if booking.ProductID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product_id is required"})
		return
	}
	booking.BuyerEmail = c.GetString(middleware.ContextKeyEmail)

	created, err := h.bookings.Book(c.Request.Context(), &booking)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create booking"})
		return
	}
	c.JSON(http.StatusCreated, created)
}

// ListByBuyer handles GET /booked/:email. Buyers can only see their own
// bookings.
func (h *RestBookingHandler) ListByBuyer(c *gin.Context) {
	email := c.Param("email")
	if email != c.GetString(middleware.ContextKeyEmail) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Cannot list another buyer's bookings"})
		return
	}

	bookings, err := h.bookings.ListByBuyer(c.Request.Context(), email)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list bookings"})
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	c.JSON(http.StatusOK, bookings)
}

// GetBookingByID handles GET /bookings/:id.
func (h *RestBookingHandler) GetBookingByID(c *gin.Context) {
	bookingID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID format"})
		return
	}

	booking, err := h.bookings.FindByID(c.Request.Context(), bookingID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve booking"})
		}
		return
	}
	c.JSON(http.StatusOK, booking)
}

// DeleteBooking handles DELETE /bookings/:id. The product's booked flag is
// left alone here and repaired by the periodic reconcile pass.
func (h *RestBookingHandler) DeleteBooking(c *gin.Context) {
	bookingID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID format"})
		return
	}

	if err := h.bookings.Delete(c.Request.Context(), bookingID); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete booking"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
