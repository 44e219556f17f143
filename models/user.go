package models

import "time"

type User struct {
	ID             string    `bson:"_id" json:"id"`
	TenantID       string    `bson:"tenant_id" json:"tenant_id"`
	Email          string    `bson:"email" json:"email"`
	HashedPassword string    `bson:"hashed_password" json:"-"`
	FullName       string    `bson:"full_name,omitempty" json:"full_name,omitempty"`
	Role           string    `bson:"role" json:"role"` // "user" or "admin"
	IsActive       bool      `bson:"is_active" json:"is_active"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updated_at"`
}
