package ai

import (
	"testing"
	"time"

	genai "github.com/google/generative-ai-go/genai"
)

func TestToFunctionDeclarations(t *testing.T) {
	tools := []ToolDeclaration{
		{
			Name:        "product_search",
			Description: "Search the product catalog",
			Params: []ToolParam{
				{Name: "query", Type: "string", Description: "Search query", Required: true},
				{Name: "min_price", Type: "number", Description: "Minimum price"},
				{Name: "limit", Type: "integer", Description: "Max results"},
			},
		},
	}

	decls := toFunctionDeclarations(tools)
	if len(decls) != 1 {
		t.Fatalf("got %d declarations, want 1", len(decls))
	}

	decl := decls[0]
	if decl.Name != "product_search" {
		t.Errorf("name = %q", decl.Name)
	}
	if decl.Parameters.Type != genai.TypeObject {
		t.Errorf("parameters type = %v, want object", decl.Parameters.Type)
	}
	if len(decl.Parameters.Properties) != 3 {
		t.Errorf("got %d properties, want 3", len(decl.Parameters.Properties))
	}
	if decl.Parameters.Properties["min_price"].Type != genai.TypeNumber {
		t.Errorf("min_price type = %v, want number", decl.Parameters.Properties["min_price"].Type)
	}
	if len(decl.Parameters.Required) != 1 || decl.Parameters.Required[0] != "query" {
		t.Errorf("required = %v, want [query]", decl.Parameters.Required)
	}
}

func TestToContentRoles(t *testing.T) {
	user, err := toContent(PromptMessage{Role: RoleUser, Content: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if user.Role != "user" {
		t.Errorf("user role mapped to %q", user.Role)
	}

	assistant, err := toContent(PromptMessage{
		Role:      RoleAssistant,
		ToolCalls: []ToolCall{{Name: "knowledge_search", Arguments: map[string]interface{}{"query": "returns"}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if assistant.Role != "model" {
		t.Errorf("assistant role mapped to %q", assistant.Role)
	}
	if _, ok := assistant.Parts[0].(genai.FunctionCall); !ok {
		t.Errorf("assistant tool call mapped to %T, want FunctionCall", assistant.Parts[0])
	}

	tool, err := toContent(PromptMessage{Role: RoleTool, ToolName: "knowledge_search", Content: `{"items":[]}`})
	if err != nil {
		t.Fatal(err)
	}
	if tool.Role != "function" {
		t.Errorf("tool role mapped to %q", tool.Role)
	}
	resp, ok := tool.Parts[0].(genai.FunctionResponse)
	if !ok {
		t.Fatalf("tool result mapped to %T, want FunctionResponse", tool.Parts[0])
	}
	if resp.Name != "knowledge_search" {
		t.Errorf("function response name = %q", resp.Name)
	}

	if _, err := toContent(PromptMessage{Role: "robot"}); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestTokenCounterLimits(t *testing.T) {
	tc := &TokenCounter{
		limits:          RateLimits{RPM: 2, TPM: 100, RPD: 10},
		lastMinuteReset: time.Now(),
		lastDayReset:    time.Now(),
	}

	if !tc.CanConsume(50, 1) {
		t.Fatal("first request should be admitted")
	}
	tc.RecordUsage(50, 1)

	if tc.CanConsume(60, 1) {
		t.Error("request exceeding TPM should be rejected")
	}
	if !tc.CanConsume(40, 1) {
		t.Error("request within budget should be admitted")
	}
	tc.RecordUsage(40, 1)

	if tc.CanConsume(1, 1) {
		t.Error("third request should exceed RPM")
	}
}

func TestTokenCounterWindowReset(t *testing.T) {
	tc := &TokenCounter{
		limits:          RateLimits{RPM: 1, TPM: 100, RPD: 10},
		lastMinuteReset: time.Now().Add(-2 * time.Minute),
		lastDayReset:    time.Now(),
		minuteRequests:  1,
		minuteTokens:    100,
	}

	if !tc.CanConsume(10, 1) {
		t.Error("expired minute window should reset counters")
	}
}

func TestEmbedCacheKeyStable(t *testing.T) {
	a := embedCacheKey("text-embedding-004", "hello")
	b := embedCacheKey("text-embedding-004", "hello")
	c := embedCacheKey("text-embedding-004", "world")
	d := embedCacheKey("other-model", "hello")

	if a != b {
		t.Error("same input should produce the same key")
	}
	if a == c || a == d {
		t.Error("different text or model should produce different keys")
	}
}

func TestEstimateRequestTokens(t *testing.T) {
	req := CompletionRequest{
		System: "You are a helpful assistant for questions",
		Messages: []PromptMessage{
			{Role: RoleUser, Content: "What is your return policy for electronics?"},
		},
	}

	got := estimateRequestTokens(req)
	want := (len(req.System) + len(req.Messages[0].Content)) / 4
	if got != want {
		t.Errorf("estimate = %d, want %d", got, want)
	}
}
