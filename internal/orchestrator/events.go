package orchestrator

import "tenant-rag-chatbot/models"

// EventType identifies one kind of turn event as delivered to SSE clients.
type EventType string

const (
	// EventConversationID is emitted first and carries the conversation the
	// turn belongs to, which matters when the turn created it.
	EventConversationID EventType = "conversation_id"
	// EventContent carries one streamed text fragment.
	EventContent EventType = "content"
	// EventToolCalls announces that the assistant is invoking tools.
	EventToolCalls EventType = "tool_calls"
	// EventWarning carries a non-fatal condition such as hitting the tool
	// iteration limit.
	EventWarning EventType = "warning"
	// EventDone closes the turn successfully.
	EventDone EventType = "done"
	// EventError closes the turn after a failure. Nothing from the failed
	// completion is persisted.
	EventError EventType = "error"
)

// Event is one item of a conversation turn stream.
type Event struct {
	Type           EventType               `json:"type"`
	ConversationID string                  `json:"conversation_id,omitempty"`
	Content        string                  `json:"content,omitempty"`
	ToolCalls      []models.ToolCallRecord `json:"tool_calls,omitempty"`
	Warning        string                  `json:"warning,omitempty"`
	Error          string                  `json:"error,omitempty"`
}
