package models

import "time"

// Tenant is the isolation boundary. Every domain record carries a tenant ID
// and every query is scoped to exactly one tenant.
type Tenant struct {
	ID          string    `bson:"_id" json:"id"`
	Name        string    `bson:"name" json:"name"`
	Domain      string    `bson:"domain" json:"domain"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	IsActive    bool      `bson:"is_active" json:"is_active"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`

	// Soft limits enforced by the CRUD layer
	MaxUsers     int `bson:"max_users" json:"max_users"`
	MaxDocuments int `bson:"max_documents" json:"max_documents"`
	MaxProducts  int `bson:"max_products" json:"max_products"`
}

// Prompt is a tenant-scoped system prompt. The orchestrator uses the active
// default prompt, falling back to a built-in one when none exists.
type Prompt struct {
	ID           string    `bson:"_id" json:"id"`
	TenantID     string    `bson:"tenant_id" json:"tenant_id"`
	Name         string    `bson:"name" json:"name"`
	SystemPrompt string    `bson:"system_prompt" json:"system_prompt"`
	IsActive     bool      `bson:"is_active" json:"is_active"`
	IsDefault    bool      `bson:"is_default" json:"is_default"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}
