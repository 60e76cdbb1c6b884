package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Product is a listing of a pre-owned item. The status flags flip
// monotonically toward sold: listed -> {advertised, reported} -> booked ->
// sold. Field names match the wire format the frontends already speak.
type Product struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"_id,omitempty"`
	SellerEmail   string             `bson:"seller_email" json:"seller_email"`
	SellerName    string             `bson:"seller_name,omitempty" json:"seller_name,omitempty"`
	Name          string             `bson:"name,omitempty" json:"name,omitempty"`
	Category      string             `bson:"category,omitempty" json:"category,omitempty"`
	Description   string             `bson:"description,omitempty" json:"description,omitempty"`
	Condition     string             `bson:"condition,omitempty" json:"condition,omitempty"`
	Location      string             `bson:"location,omitempty" json:"location,omitempty"`
	Phone         string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Image         string             `bson:"image,omitempty" json:"image,omitempty"`
	ResellPrice   float64            `bson:"resell_Price,omitempty" json:"resell_Price,omitempty"`
	OriginalPrice float64            `bson:"original_Price,omitempty" json:"original_Price,omitempty"`
	YearsOfUse    string             `bson:"years_of_use,omitempty" json:"years_of_use,omitempty"`
	PublishedDate time.Time          `bson:"published_date" json:"published_date"`
	Advertisement bool               `bson:"advertisement" json:"advertisement"`
	Reported      bool               `bson:"reported" json:"reported"`
	Booked        bool               `bson:"booked" json:"booked"`
	Sold          bool               `bson:"sold" json:"sold"`
}

// Category is static reference data, read-only from the API's perspective.
type Category struct {
	ID   primitive.ObjectID `bson:"_id,omitempty" json:"_id,omitempty"`
	Name string             `bson:"name" json:"name"`
}
