package ai

import (
	"context"
	"errors"
)

// ErrProviderUnavailable is returned when the completion backend is down or
// its circuit breaker is open.
var ErrProviderUnavailable = errors.New("completion provider unavailable")

// Conversation roles as the provider sees them.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolParam describes one parameter of a callable tool.
type ToolParam struct {
	Name        string
	Type        string // "string", "number", "integer", "boolean"
	Description string
	Required    bool
}

// ToolDeclaration is the model-facing description of a callable tool.
type ToolDeclaration struct {
	Name        string
	Description string
	Params      []ToolParam
}

// ToolCall is a model request to invoke a tool with JSON-compatible
// arguments. ID is assigned by the adapter so results can be matched back.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// PromptMessage is one turn of provider-neutral conversation history.
// ToolCalls is set on assistant turns that requested tools; ToolName and
// Content carry the result on tool turns.
type PromptMessage struct {
	Role      string
	Content   string
	ToolCalls []ToolCall
	ToolName  string
}

// CompletionRequest carries everything the provider needs for one model
// call. Tools may be empty to force a plain text answer.
type CompletionRequest struct {
	System   string
	Messages []PromptMessage
	Tools    []ToolDeclaration
}

// Completion is the final result of a non-streaming model call.
type Completion struct {
	Content    string
	ToolCalls  []ToolCall
	TokensUsed int
}

// StreamEvent is one item of a streaming completion. Exactly one of Delta,
// ToolCalls, Err is meaningful; Done closes the logical stream and carries
// token usage.
type StreamEvent struct {
	Delta      string
	ToolCalls  []ToolCall
	Done       bool
	TokensUsed int
	Err        error
}

// CompletionProvider generates chat completions, optionally streaming and
// optionally requesting tool invocations.
type CompletionProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
	// CompleteStream returns a channel that is closed after a Done or Err
	// event. The channel respects ctx cancellation.
	CompleteStream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)
}

// Embedder converts text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
