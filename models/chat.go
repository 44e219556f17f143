package models

import "time"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCallRecord is the persisted form of a tool request or result attached
// to a message.
type ToolCallRecord struct {
	ID        string `bson:"id" json:"id"`
	Name      string `bson:"name" json:"name"`
	Arguments string `bson:"arguments,omitempty" json:"arguments,omitempty"`
	Result    string `bson:"result,omitempty" json:"result,omitempty"`
}

// Message is one entry in a conversation. Messages are immutable once
// appended.
type Message struct {
	ID             string           `bson:"_id" json:"id"`
	TenantID       string           `bson:"tenant_id" json:"tenant_id"`
	ConversationID string           `bson:"conversation_id" json:"conversation_id"`
	Role           string           `bson:"role" json:"role"`
	Content        string           `bson:"content" json:"content"`
	ToolCalls      []ToolCallRecord `bson:"tool_calls,omitempty" json:"tool_calls,omitempty"`
	Metadata       map[string]string `bson:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt      time.Time        `bson:"created_at" json:"created_at"`
}

// Conversation is an append-only sequence of messages owned by one user of
// one tenant. Only UpdatedAt changes after creation.
type Conversation struct {
	ID        string    `bson:"_id" json:"id"`
	TenantID  string    `bson:"tenant_id" json:"tenant_id"`
	UserID    string    `bson:"user_id" json:"user_id"`
	Title     string    `bson:"title,omitempty" json:"title,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

type ChatRequest struct {
	Message        string `json:"message" binding:"required,min=1,max=4000"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type ChatResponse struct {
	ConversationID string    `json:"conversation_id"`
	Reply          string    `json:"reply"`
	Warnings       []string  `json:"warnings,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type ConversationCreate struct {
	Title string `json:"title,omitempty"`
}
