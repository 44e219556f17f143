package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"tenant-rag-chatbot/internal/ai"
	"tenant-rag-chatbot/internal/logger"
)

// ErrToolArguments is returned when a model-supplied argument set fails
// validation against the tool's declared parameters.
var ErrToolArguments = errors.New("invalid tool arguments")

// ErrUnknownTool is returned when the model requests a tool that is not
// registered.
var ErrUnknownTool = errors.New("unknown tool")

// Handler executes one tool invocation for a tenant. Arguments have already
// been validated against the declaration.
type Handler func(ctx context.Context, tenantID string, args map[string]interface{}) (interface{}, error)

// Tool binds a model-facing declaration to its handler. Timeout bounds one
// invocation; zero means the registry default.
type Tool struct {
	Name        string
	Description string
	Params      []ai.ToolParam
	Timeout     time.Duration
	Handler     Handler
}

// Result is the outcome of one dispatch. Handler failures are carried as a
// payload for the model to read, never as a Go error, so a bad tool call
// cannot abort the conversation.
type Result struct {
	CallID  string      `json:"call_id"`
	Name    string      `json:"name"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Registry is a closed set of tools exposed to the model. Registration
// happens at startup; dispatch is read-only and safe for concurrent use.
type Registry struct {
	tools          map[string]Tool
	defaultTimeout time.Duration
}

func NewRegistry(defaultTimeout time.Duration) *Registry {
	return &Registry{
		tools:          make(map[string]Tool),
		defaultTimeout: defaultTimeout,
	}
}

// Register adds a tool. Registering a duplicate name is a programming error
// and panics at startup rather than silently overwriting.
func (r *Registry) Register(tool Tool) {
	if tool.Name == "" || tool.Handler == nil {
		panic("tools: registering tool without name or handler")
	}
	if _, exists := r.tools[tool.Name]; exists {
		panic(fmt.Sprintf("tools: duplicate tool %q", tool.Name))
	}
	r.tools[tool.Name] = tool
}

// Declarations returns the model-facing declarations in stable name order.
func (r *Registry) Declarations() []ai.ToolDeclaration {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	decls := make([]ai.ToolDeclaration, 0, len(names))
	for _, name := range names {
		tool := r.tools[name]
		decls = append(decls, ai.ToolDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Params:      tool.Params,
		})
	}
	return decls
}

// Dispatch validates and executes one tool call. Unknown tools and invalid
// arguments come back as error results, not Go errors, so the model gets a
// chance to correct itself.
func (r *Registry) Dispatch(ctx context.Context, tenantID string, call ai.ToolCall) Result {
	result := Result{CallID: call.ID, Name: call.Name}

	tool, ok := r.tools[call.Name]
	if !ok {
		result.Error = fmt.Sprintf("%v: %s", ErrUnknownTool, call.Name)
		return result
	}

	args, err := validateArgs(tool.Params, call.Arguments)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	timeout := tool.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := tool.Handler(callCtx, tenantID, args)
	if err != nil {
		logger.Warn("Tool execution failed", "tool", call.Name, "tenant_id", tenantID, "error", err)
		result.Error = err.Error()
		return result
	}

	result.Payload = payload
	return result
}

// validateArgs checks required parameters and coerces values to the
// declared types. Unknown arguments are dropped.
func validateArgs(params []ai.ToolParam, args map[string]interface{}) (map[string]interface{}, error) {
	validated := make(map[string]interface{}, len(params))

	for _, param := range params {
		value, present := args[param.Name]
		if !present || value == nil {
			if param.Required {
				return nil, fmt.Errorf("%w: missing required parameter %q", ErrToolArguments, param.Name)
			}
			continue
		}

		coerced, err := coerce(param, value)
		if err != nil {
			return nil, err
		}
		validated[param.Name] = coerced
	}
	return validated, nil
}

func coerce(param ai.ToolParam, value interface{}) (interface{}, error) {
	switch param.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: parameter %q must be a string", ErrToolArguments, param.Name)
		}
		return s, nil

	case "number":
		f, ok := toFloat(value)
		if !ok {
			return nil, fmt.Errorf("%w: parameter %q must be a number", ErrToolArguments, param.Name)
		}
		return f, nil

	case "integer":
		f, ok := toFloat(value)
		if !ok || f != float64(int64(f)) {
			return nil, fmt.Errorf("%w: parameter %q must be an integer", ErrToolArguments, param.Name)
		}
		return int(f), nil

	case "boolean":
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: parameter %q must be a boolean", ErrToolArguments, param.Name)
		}
		return b, nil

	default:
		return value, nil
	}
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
