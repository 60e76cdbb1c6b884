package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Booking is a buyer's claim on a product pending payment. ProductID carries
// the product's hex id as a plain string; bookings and payments are matched
// on it with simple equality, while the product itself is addressed by _id.
type Booking struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"_id,omitempty"`
	ProductID       string             `bson:"product_id" json:"product_id"`
	ProductName     string             `bson:"product_name,omitempty" json:"product_name,omitempty"`
	BuyerEmail      string             `bson:"buyer_email" json:"buyer_email"`
	BuyerName       string             `bson:"buyer_name,omitempty" json:"buyer_name,omitempty"`
	ResellPrice     float64            `bson:"resell_Price,omitempty" json:"resell_Price,omitempty"`
	MeetingLocation string             `bson:"meeting_location,omitempty" json:"meeting_location,omitempty"`
	Phone           string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Paid            bool               `bson:"paid" json:"paid"`
	TransactionID   string             `bson:"transactionId,omitempty" json:"transactionId,omitempty"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
}
