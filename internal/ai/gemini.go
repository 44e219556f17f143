package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"tenant-rag-chatbot/internal/config"
	"tenant-rag-chatbot/internal/logger"
)

// GeminiProvider implements CompletionProvider on top of the Google
// Generative AI API, with a circuit breaker and client-side rate limiting
// sized for the configured billing tier.
type GeminiProvider struct {
	client       *genai.Client
	model        string
	breaker      *gobreaker.CircuitBreaker
	rateLimiter  *rate.Limiter
	tokenCounter *TokenCounter
	timeout      time.Duration
}

type RateLimits struct {
	RPM int // Requests per minute
	TPM int // Tokens per minute
	RPD int // Requests per day
}

// TokenCounter tracks per-minute and per-day API consumption so requests
// that would blow the quota are rejected before they are sent.
type TokenCounter struct {
	mu              sync.Mutex
	limits          RateLimits
	minuteTokens    int
	dailyTokens     int
	minuteRequests  int
	dailyRequests   int
	lastMinuteReset time.Time
	lastDayReset    time.Time
}

func NewGeminiProvider(cfg *config.Config) (*GeminiProvider, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY for completions")
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	limits := getRateLimits(cfg.GeminiTier)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	// RPM limit with some buffer
	rateLimiter := rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), maxInt(limits.RPM/10, 1))

	return &GeminiProvider{
		client:       client,
		model:        cfg.CompletionModel,
		breaker:      breaker,
		rateLimiter:  rateLimiter,
		tokenCounter: &TokenCounter{limits: limits},
		timeout:      time.Duration(cfg.CompletionTimeoutSecs) * time.Second,
	}, nil
}

func getRateLimits(tier string) RateLimits {
	switch tier {
	case "free":
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	case "tier1":
		return RateLimits{RPM: 1000, TPM: 1000000, RPD: 10000}
	case "tier2":
		return RateLimits{RPM: 2000, TPM: 4000000, RPD: 50000}
	default:
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	}
}

// Complete runs a single non-streaming model call.
func (p *GeminiProvider) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	tracer := otel.Tracer("gemini-provider")
	ctx, span := tracer.Start(ctx, "gemini.complete")
	defer span.End()

	span.SetAttributes(
		attribute.String("gemini.model", p.model),
		attribute.Int("gemini.messages", len(req.Messages)),
		attribute.Int("gemini.tools", len(req.Tools)),
	)

	if err := p.admit(ctx, req, span); err != nil {
		return nil, err
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		session, parts, err := p.newSession(req)
		if err != nil {
			return nil, err
		}

		resp, err := session.SendMessage(callCtx, parts...)
		if err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
			return nil, fmt.Errorf("%w: circuit breaker open", ErrProviderUnavailable)
		}
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return nil, err
	}

	resp := result.(*genai.GenerateContentResponse)
	completion := collectCompletion(resp)
	p.tokenCounter.RecordUsage(completion.TokensUsed, 1)

	span.SetAttributes(
		attribute.Int("gemini.tokens_used", completion.TokensUsed),
		attribute.Int("gemini.tool_calls", len(completion.ToolCalls)),
	)
	return completion, nil
}

// CompleteStream runs a streaming model call. Text arrives as Delta events;
// tool invocation requests are accumulated and delivered in the final Done
// event alongside token usage.
func (p *GeminiProvider) CompleteStream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	tracer := otel.Tracer("gemini-provider")
	ctx, span := tracer.Start(ctx, "gemini.complete_stream")

	span.SetAttributes(
		attribute.String("gemini.model", p.model),
		attribute.Int("gemini.messages", len(req.Messages)),
		attribute.Int("gemini.tools", len(req.Tools)),
	)

	if err := p.admit(ctx, req, span); err != nil {
		span.End()
		return nil, err
	}

	if state := p.breaker.State(); state == gobreaker.StateOpen {
		span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
		span.End()
		return nil, fmt.Errorf("%w: circuit breaker open", ErrProviderUnavailable)
	}

	session, parts, err := p.newSession(req)
	if err != nil {
		span.End()
		return nil, err
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer span.End()

		streamCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		iter := session.SendMessageStream(streamCtx, parts...)

		var toolCalls []ToolCall
		tokensUsed := 0
		failed := false

		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				failed = true
				span.SetAttributes(attribute.Bool("gemini.error", true))
				emit(streamCtx, events, StreamEvent{Err: err})
				break
			}

			if resp.UsageMetadata != nil {
				tokensUsed = int(resp.UsageMetadata.TotalTokenCount)
			}

			for _, candidate := range resp.Candidates {
				if candidate.Content == nil {
					continue
				}
				for _, part := range candidate.Content.Parts {
					switch v := part.(type) {
					case genai.Text:
						if string(v) != "" {
							if !emit(streamCtx, events, StreamEvent{Delta: string(v)}) {
								return
							}
						}
					case genai.FunctionCall:
						toolCalls = append(toolCalls, ToolCall{
							ID:        uuid.NewString(),
							Name:      v.Name,
							Arguments: v.Args,
						})
					}
				}
			}
		}

		if failed {
			return
		}

		p.tokenCounter.RecordUsage(tokensUsed, 1)
		span.SetAttributes(
			attribute.Int("gemini.tokens_used", tokensUsed),
			attribute.Int("gemini.tool_calls", len(toolCalls)),
		)
		emit(streamCtx, events, StreamEvent{Done: true, ToolCalls: toolCalls, TokensUsed: tokensUsed})
	}()

	return events, nil
}

func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

// admit enforces the local token budget and rate limiter before a request
// reaches the API.
func (p *GeminiProvider) admit(ctx context.Context, req CompletionRequest, span trace.Span) error {
	estimated := estimateRequestTokens(req)
	if !p.tokenCounter.CanConsume(estimated, 1) {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return fmt.Errorf("%w: token budget exhausted", ErrProviderUnavailable)
	}
	if err := p.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return err
	}
	return nil
}

// newSession builds a chat session with history and returns the parts of the
// final message to send.
func (p *GeminiProvider) newSession(req CompletionRequest) (*genai.ChatSession, []genai.Part, error) {
	if len(req.Messages) == 0 {
		return nil, nil, fmt.Errorf("completion request has no messages")
	}

	model := p.client.GenerativeModel(p.model)
	model.SetTemperature(0.7)

	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}

	if len(req.Tools) > 0 {
		model.Tools = []*genai.Tool{{FunctionDeclarations: toFunctionDeclarations(req.Tools)}}
	}

	session := model.StartChat()
	for _, msg := range req.Messages[:len(req.Messages)-1] {
		content, err := toContent(msg)
		if err != nil {
			return nil, nil, err
		}
		session.History = append(session.History, content)
	}

	last, err := toContent(req.Messages[len(req.Messages)-1])
	if err != nil {
		return nil, nil, err
	}
	return session, last.Parts, nil
}

func toContent(msg PromptMessage) (*genai.Content, error) {
	switch msg.Role {
	case RoleUser, RoleSystem:
		return &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}}, nil

	case RoleAssistant:
		var parts []genai.Part
		if msg.Content != "" {
			parts = append(parts, genai.Text(msg.Content))
		}
		for _, call := range msg.ToolCalls {
			parts = append(parts, genai.FunctionCall{Name: call.Name, Args: call.Arguments})
		}
		if len(parts) == 0 {
			parts = append(parts, genai.Text(""))
		}
		return &genai.Content{Role: "model", Parts: parts}, nil

	case RoleTool:
		var response map[string]interface{}
		if msg.Content != "" {
			response = map[string]interface{}{"result": msg.Content}
		} else {
			response = map[string]interface{}{}
		}
		return &genai.Content{
			Role:  "function",
			Parts: []genai.Part{genai.FunctionResponse{Name: msg.ToolName, Response: response}},
		}, nil

	default:
		return nil, fmt.Errorf("unknown message role %q", msg.Role)
	}
}

func toFunctionDeclarations(tools []ToolDeclaration) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		properties := make(map[string]*genai.Schema, len(tool.Params))
		var required []string
		for _, param := range tool.Params {
			properties[param.Name] = &genai.Schema{
				Type:        toSchemaType(param.Type),
				Description: param.Description,
			}
			if param.Required {
				required = append(required, param.Name)
			}
		}

		decls = append(decls, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   required,
			},
		})
	}
	return decls
}

func toSchemaType(paramType string) genai.Type {
	switch paramType {
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}

func collectCompletion(resp *genai.GenerateContentResponse) *Completion {
	completion := &Completion{}

	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			switch v := part.(type) {
			case genai.Text:
				completion.Content += string(v)
			case genai.FunctionCall:
				completion.ToolCalls = append(completion.ToolCalls, ToolCall{
					ID:        uuid.NewString(),
					Name:      v.Name,
					Arguments: v.Args,
				})
			}
		}
	}

	if resp.UsageMetadata != nil {
		completion.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	} else {
		completion.TokensUsed = maxInt(len(completion.Content)/4, 1)
	}
	return completion
}

// estimateRequestTokens approximates prompt size at 4 characters per token.
func estimateRequestTokens(req CompletionRequest) int {
	total := len(req.System)
	for _, msg := range req.Messages {
		total += len(msg.Content)
	}
	return total / 4
}

func emit(ctx context.Context, events chan<- StreamEvent, event StreamEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

func (tc *TokenCounter) CanConsume(tokens, requests int) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	now := time.Now()
	if now.Sub(tc.lastMinuteReset) >= time.Minute {
		tc.minuteTokens = 0
		tc.minuteRequests = 0
		tc.lastMinuteReset = now
	}
	if now.Sub(tc.lastDayReset) >= 24*time.Hour {
		tc.dailyTokens = 0
		tc.dailyRequests = 0
		tc.lastDayReset = now
	}

	if tc.minuteRequests+requests > tc.limits.RPM {
		return false
	}
	if tc.minuteTokens+tokens > tc.limits.TPM {
		return false
	}
	if tc.dailyRequests+requests > tc.limits.RPD {
		return false
	}
	return true
}

func (tc *TokenCounter) RecordUsage(tokens, requests int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.minuteTokens += tokens
	tc.minuteRequests += requests
	tc.dailyTokens += tokens
	tc.dailyRequests += requests
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
