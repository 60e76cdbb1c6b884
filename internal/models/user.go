package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role determines which operations a user is authorized to perform.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"

	// RoleAny is used by the access policy to mark routes that require a
	// valid credential but no particular role. It is never stored.
	RoleAny Role = "any"
)

// User represents an identity record keyed by email. Profiles are written
// via $set upserts, so documents may carry arbitrary extra fields beyond
// the ones declared here; decoding simply ignores them.
type User struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"_id,omitempty"`
	Name     string             `bson:"name,omitempty" json:"name,omitempty"`
	Email    string             `bson:"email" json:"email"`
	Role     Role               `bson:"role,omitempty" json:"role,omitempty"`
	Verified bool               `bson:"verified,omitempty" json:"verified"`
	Location string             `bson:"location,omitempty" json:"location,omitempty"`
	Phone    string             `bson:"phone,omitempty" json:"phone,omitempty"`
}
