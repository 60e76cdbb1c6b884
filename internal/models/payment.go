package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Payment records a completed transaction against a product. Inserting one
// triggers the paid/sold cascade across the payments, bookings and products
// collections.
type Payment struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"_id,omitempty"`
	ProductID     string             `bson:"product_id" json:"product_id"`
	BookingID     string             `bson:"booking_id,omitempty" json:"booking_id,omitempty"`
	BuyerEmail    string             `bson:"buyer_email,omitempty" json:"buyer_email,omitempty"`
	Price         float64            `bson:"resell_Price,omitempty" json:"resell_Price,omitempty"`
	TransactionID string             `bson:"transactionId" json:"transactionId"`
	Paid          bool               `bson:"paid" json:"paid"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
}
