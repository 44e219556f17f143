package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"tenant-rag-chatbot/internal/ai"
	"tenant-rag-chatbot/internal/logger"
	"tenant-rag-chatbot/internal/store"
	"tenant-rag-chatbot/internal/tools"
	"tenant-rag-chatbot/models"
)

// DefaultSystemPrompt is used when a tenant has not configured one.
const DefaultSystemPrompt = `You are a helpful customer service assistant. You have access to knowledge base and product information to help customers with their questions.

Use the available tools to search for relevant information when needed:
- knowledge_search: For general information and documentation
- product_search: For product searches
- get_product_details: For specific product information
- check_product_availability: For stock information

Always be helpful, accurate, and professional in your responses.`

// WarnLoopLimit is the warning text emitted when a turn exhausts its tool
// iteration budget and the final answer is forced without tools.
const WarnLoopLimit = "tool iteration limit reached, answering with available information"

const approxCharsPerToken = 4

// Orchestrator drives one conversation turn: persist the user message, loop
// the model with tool dispatch until it produces a final answer, persist the
// assistant message.
type Orchestrator struct {
	provider      ai.CompletionProvider
	registry      *tools.Registry
	conversations store.ConversationStore
	prompts       store.PromptStore

	maxToolIterations int
	maxHistoryTokens  int
}

func New(provider ai.CompletionProvider, registry *tools.Registry, conversations store.ConversationStore, prompts store.PromptStore, maxToolIterations, maxHistoryTokens int) *Orchestrator {
	return &Orchestrator{
		provider:          provider,
		registry:          registry,
		conversations:     conversations,
		prompts:           prompts,
		maxToolIterations: maxToolIterations,
		maxHistoryTokens:  maxHistoryTokens,
	}
}

// RunTurn executes one streaming turn. The returned channel is closed after
// a done or error event. The user message is persisted before the model is
// called; the assistant message is persisted only after the stream finishes
// cleanly, so a cancelled or failed turn leaves no partial answer behind.
func (o *Orchestrator) RunTurn(ctx context.Context, tenantID, userID, conversationID, userText string) (<-chan Event, error) {
	conv, history, err := o.prepare(ctx, tenantID, userID, conversationID, userText)
	if err != nil {
		return nil, err
	}

	events := make(chan Event)
	go func() {
		defer close(events)

		tracer := otel.Tracer("orchestrator")
		ctx, span := tracer.Start(ctx, "orchestrator.run_turn")
		defer span.End()
		span.SetAttributes(
			attribute.String("conversation.id", conv.ID),
			attribute.Int("conversation.history_messages", len(history)),
		)

		if !send(ctx, events, Event{Type: EventConversationID, ConversationID: conv.ID}) {
			return
		}

		system, messages := o.buildPrompt(ctx, tenantID, history, userText)

		var answer strings.Builder
		var callRecords []models.ToolCallRecord
		var warnings []string

		for iteration := 0; ; iteration++ {
			forceFinal := iteration >= o.maxToolIterations
			if forceFinal && len(warnings) == 0 {
				warnings = append(warnings, WarnLoopLimit)
				logger.Warn("Tool iteration limit reached", "conversation_id", conv.ID, "limit", o.maxToolIterations)
				if !send(ctx, events, Event{Type: EventWarning, Warning: WarnLoopLimit}) {
					return
				}
			}

			req := ai.CompletionRequest{System: system, Messages: messages}
			if !forceFinal {
				req.Tools = o.registry.Declarations()
			}

			toolCalls, failed := o.streamOnce(ctx, req, events, &answer)
			if failed {
				return
			}

			if len(toolCalls) == 0 || forceFinal {
				break
			}

			records := o.dispatchTools(ctx, tenantID, toolCalls)
			callRecords = append(callRecords, records...)
			if !send(ctx, events, Event{Type: EventToolCalls, ToolCalls: records}) {
				return
			}

			messages = appendToolExchange(messages, toolCalls, records)
		}

		assistant := &models.Message{
			ID:             uuid.NewString(),
			ConversationID: conv.ID,
			Role:           models.RoleAssistant,
			Content:        answer.String(),
			ToolCalls:      callRecords,
		}
		if err := o.conversations.AppendMessage(ctx, tenantID, assistant); err != nil {
			logger.Error("Failed to persist assistant message", "conversation_id", conv.ID, "error", err)
			send(ctx, events, Event{Type: EventError, Error: "failed to save response"})
			return
		}

		done := Event{Type: EventDone, ConversationID: conv.ID}
		if len(warnings) > 0 {
			done.Warning = strings.Join(warnings, "; ")
		}
		send(ctx, events, done)
	}()

	return events, nil
}

// RunTurnSync executes one non-streaming turn and returns the final reply.
func (o *Orchestrator) RunTurnSync(ctx context.Context, tenantID, userID, conversationID, userText string) (*models.ChatResponse, error) {
	conv, history, err := o.prepare(ctx, tenantID, userID, conversationID, userText)
	if err != nil {
		return nil, err
	}

	system, messages := o.buildPrompt(ctx, tenantID, history, userText)

	var answer strings.Builder
	var callRecords []models.ToolCallRecord
	var warnings []string

	for iteration := 0; ; iteration++ {
		forceFinal := iteration >= o.maxToolIterations
		if forceFinal && len(warnings) == 0 {
			warnings = append(warnings, WarnLoopLimit)
		}

		req := ai.CompletionRequest{System: system, Messages: messages}
		if !forceFinal {
			req.Tools = o.registry.Declarations()
		}

		completion, err := o.provider.Complete(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("completing turn: %w", err)
		}
		answer.WriteString(completion.Content)

		if len(completion.ToolCalls) == 0 || forceFinal {
			break
		}

		records := o.dispatchTools(ctx, tenantID, completion.ToolCalls)
		callRecords = append(callRecords, records...)
		messages = appendToolExchange(messages, completion.ToolCalls, records)
	}

	assistant := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Content:        answer.String(),
		ToolCalls:      callRecords,
	}
	if err := o.conversations.AppendMessage(ctx, tenantID, assistant); err != nil {
		return nil, fmt.Errorf("saving assistant message: %w", err)
	}

	return &models.ChatResponse{
		ConversationID: conv.ID,
		Reply:          answer.String(),
		Warnings:       warnings,
		Timestamp:      time.Now().UTC(),
	}, nil
}

// prepare resolves or creates the conversation, persists the user message,
// and returns the prior history.
func (o *Orchestrator) prepare(ctx context.Context, tenantID, userID, conversationID, userText string) (*models.Conversation, []models.Message, error) {
	if strings.TrimSpace(userText) == "" {
		return nil, nil, fmt.Errorf("empty message")
	}

	var conv *models.Conversation
	var err error
	if conversationID == "" {
		conv, err = o.conversations.CreateConversation(ctx, tenantID, userID, titleFrom(userText))
	} else {
		conv, err = o.conversations.GetConversation(ctx, tenantID, conversationID)
		// A conversation belongs to one user; others cannot resume it.
		if err == nil && conv.UserID != userID {
			err = store.ErrNotFound
		}
	}
	if err != nil {
		return nil, nil, err
	}

	history, err := o.conversations.ListMessages(ctx, tenantID, conv.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading history: %w", err)
	}

	userMsg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        userText,
	}
	if err := o.conversations.AppendMessage(ctx, tenantID, userMsg); err != nil {
		return nil, nil, fmt.Errorf("saving user message: %w", err)
	}

	return conv, history, nil
}

// buildPrompt assembles the system prompt and provider messages, truncating
// old history to fit the token budget.
func (o *Orchestrator) buildPrompt(ctx context.Context, tenantID string, history []models.Message, userText string) (string, []ai.PromptMessage) {
	system := DefaultSystemPrompt
	if prompt, err := o.prompts.GetActive(ctx, tenantID); err == nil {
		system = prompt.SystemPrompt
	} else if !errors.Is(err, store.ErrNotFound) {
		logger.Warn("Failed to load tenant prompt, using default", "tenant_id", tenantID, "error", err)
	}

	kept := truncateHistory(history, o.maxHistoryTokens, len(system)/approxCharsPerToken+len(userText)/approxCharsPerToken)

	messages := make([]ai.PromptMessage, 0, len(kept)+1)
	for _, msg := range kept {
		switch msg.Role {
		case models.RoleUser:
			messages = append(messages, ai.PromptMessage{Role: ai.RoleUser, Content: msg.Content})
		case models.RoleAssistant:
			messages = append(messages, ai.PromptMessage{Role: ai.RoleAssistant, Content: msg.Content})
		}
	}
	messages = append(messages, ai.PromptMessage{Role: ai.RoleUser, Content: userText})
	return system, messages
}

// truncateHistory drops the oldest messages until the estimated token count
// fits the budget. The newest messages always survive.
func truncateHistory(history []models.Message, maxTokens, reserved int) []models.Message {
	budget := maxTokens - reserved
	if budget <= 0 {
		return nil
	}

	total := 0
	cut := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		total += len(history[i].Content)/approxCharsPerToken + 1
		if total > budget {
			break
		}
		cut = i
	}
	return history[cut:]
}

// streamOnce runs one streaming completion, forwarding text deltas and
// collecting the answer. Returns the requested tool calls, and whether the
// turn failed and already emitted an error event.
func (o *Orchestrator) streamOnce(ctx context.Context, req ai.CompletionRequest, events chan<- Event, answer *strings.Builder) ([]ai.ToolCall, bool) {
	stream, err := o.provider.CompleteStream(ctx, req)
	if err != nil {
		logger.Error("Completion stream failed to start", "error", err)
		send(ctx, events, Event{Type: EventError, Error: completionErrorText(err)})
		return nil, true
	}

	var toolCalls []ai.ToolCall
	for event := range stream {
		switch {
		case event.Err != nil:
			logger.Error("Completion stream failed", "error", event.Err)
			send(ctx, events, Event{Type: EventError, Error: completionErrorText(event.Err)})
			return nil, true
		case event.Delta != "":
			answer.WriteString(event.Delta)
			if !send(ctx, events, Event{Type: EventContent, Content: event.Delta}) {
				return nil, true
			}
		case event.Done:
			toolCalls = event.ToolCalls
		}
	}

	if ctx.Err() != nil {
		return nil, true
	}
	return toolCalls, false
}

// dispatchTools executes tool calls in order and records arguments and
// results for the assistant message.
func (o *Orchestrator) dispatchTools(ctx context.Context, tenantID string, calls []ai.ToolCall) []models.ToolCallRecord {
	records := make([]models.ToolCallRecord, 0, len(calls))
	for _, call := range calls {
		result := o.registry.Dispatch(ctx, tenantID, call)

		record := models.ToolCallRecord{
			ID:        call.ID,
			Name:      call.Name,
			Arguments: marshalCompact(call.Arguments),
		}
		if result.Error != "" {
			record.Result = marshalCompact(map[string]string{"error": result.Error})
		} else {
			record.Result = marshalCompact(result.Payload)
		}
		records = append(records, record)
	}
	return records
}

// appendToolExchange extends the working prompt with the assistant's tool
// request and each tool's result.
func appendToolExchange(messages []ai.PromptMessage, calls []ai.ToolCall, records []models.ToolCallRecord) []ai.PromptMessage {
	messages = append(messages, ai.PromptMessage{Role: ai.RoleAssistant, ToolCalls: calls})
	for i, call := range calls {
		messages = append(messages, ai.PromptMessage{
			Role:     ai.RoleTool,
			ToolName: call.Name,
			Content:  records[i].Result,
		})
	}
	return messages
}

func titleFrom(userText string) string {
	title := strings.TrimSpace(userText)
	if len(title) > 50 {
		title = title[:50]
	}
	return title
}

func completionErrorText(err error) string {
	if errors.Is(err, ai.ErrProviderUnavailable) {
		return "the assistant is temporarily unavailable, please try again shortly"
	}
	return "failed to generate a response"
}

func marshalCompact(v interface{}) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func send(ctx context.Context, events chan<- Event, event Event) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}
