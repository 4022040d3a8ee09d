package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AlanyTan/sweteam/internal/agent/runtime"
	"github.com/AlanyTan/sweteam/internal/otel"
	"github.com/AlanyTan/sweteam/pkg/models"
)

var (
	errToolNameEmpty  = errors.New("tool name is empty")
	errToolExecuteNil = errors.New("tool execute func is nil")
)

// Registry holds the dispatchable tools. Registration happens at startup;
// dispatch is concurrent.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool; duplicate names are an error.
func (r *Registry) Register(t *Tool) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %s already registered", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// MustRegister registers a tool and panics on error. Use for the static tool
// set at startup.
func (r *Registry) MustRegister(t *Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the sorted names of all registered tools.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Defs renders the wire tool definitions for the named subset. Unknown names
// are skipped so a stale agent config cannot break run creation.
func (r *Registry) Defs(names []string) []runtime.ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]runtime.ToolDef, 0, len(names))
	for _, n := range names {
		t, ok := r.tools[n]
		if !ok {
			slog.Warn("agent references unknown tool", "tool", n)
			continue
		}
		defs = append(defs, runtime.ToolDef{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Schema.WireSchema(),
		})
	}
	return defs
}

// Dispatch validates and executes one tool call. Validation and execution
// failures become structured error outputs submitted back to the
// conversation so the agent can self-correct; the error return is non-nil
// only for failures that must abort the whole run, currently an exceeded
// chat nesting bound.
func (r *Registry) Dispatch(ctx context.Context, call models.ToolCall, allowed []string) (models.ToolResult, error) {
	start := time.Now()
	res := models.ToolResult{CallID: call.ID, Name: call.Name}

	t, ok := r.Get(call.Name)
	if !ok || (len(allowed) > 0 && !contains(allowed, call.Name)) {
		res.IsError = true
		res.Output = errorOutput(fmt.Errorf("%w: unknown tool %q", models.ErrNotFound, call.Name))
		res.Duration = time.Since(start)
		otel.RecordToolCall(ctx, call.Name, "unknown", res.Duration)
		return res, nil
	}

	args, err := decodeArgs(call.Arguments)
	if err == nil {
		err = validateArgs(t.Schema, args)
	}
	if err != nil {
		res.IsError = true
		res.Output = errorOutput(err)
		res.Duration = time.Since(start)
		otel.RecordToolCall(ctx, call.Name, "invalid", res.Duration)
		slog.Warn("tool call rejected", "tool", call.Name, "err", err)
		return res, nil
	}

	out, err := t.Execute(ctx, args)
	res.Duration = time.Since(start)
	if err != nil {
		res.IsError = true
		res.Output = errorOutput(err)
		if errors.Is(err, models.ErrRecursionLimit) {
			otel.RecordToolCall(ctx, call.Name, "aborted", res.Duration)
			return res, err
		}
		otel.RecordToolCall(ctx, call.Name, "error", res.Duration)
		slog.Warn("tool call failed", "tool", call.Name, "err", err)
		return res, nil
	}
	res.Output = out
	otel.RecordToolCall(ctx, call.Name, "ok", res.Duration)
	slog.Debug("tool call ok", "tool", call.Name, "duration", res.Duration)
	return res, nil
}

// decodeArgs parses the raw argument JSON. An empty argument string means no
// arguments.
func decodeArgs(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("%w: arguments are not a JSON object: %v", models.ErrValidation, err)
	}
	return args, nil
}

// validateArgs checks required fields and, where present, field types and
// enum membership.
func validateArgs(schema Schema, args map[string]any) error {
	for _, req := range schema.Required {
		if _, ok := args[req]; !ok {
			return fmt.Errorf("%w: missing required argument %q", models.ErrValidation, req)
		}
	}
	for name, val := range args {
		prop, ok := schema.Properties[name]
		if !ok {
			// Unknown arguments are tolerated; reasoning services pad calls.
			continue
		}
		if err := checkType(name, prop, val); err != nil {
			return err
		}
	}
	return nil
}

func checkType(name string, prop Property, val any) error {
	if val == nil {
		return nil
	}
	switch prop.Type {
	case "string":
		s, ok := val.(string)
		if !ok {
			return fmt.Errorf("%w: argument %q must be a string", models.ErrValidation, name)
		}
		if len(prop.Enum) > 0 && !contains(prop.Enum, s) {
			return fmt.Errorf("%w: argument %q must be one of %v", models.ErrValidation, name, prop.Enum)
		}
	case "boolean":
		if _, ok := val.(bool); !ok {
			return fmt.Errorf("%w: argument %q must be a boolean", models.ErrValidation, name)
		}
	case "number", "integer":
		if _, ok := val.(float64); !ok {
			return fmt.Errorf("%w: argument %q must be a number", models.ErrValidation, name)
		}
	case "array":
		arr, ok := val.([]any)
		if !ok {
			return fmt.Errorf("%w: argument %q must be an array", models.ErrValidation, name)
		}
		if prop.Items != nil {
			for _, item := range arr {
				if err := checkType(name+"[]", *prop.Items, item); err != nil {
					return err
				}
			}
		}
	case "object":
		if _, ok := val.(map[string]any); !ok {
			return fmt.Errorf("%w: argument %q must be an object", models.ErrValidation, name)
		}
	}
	return nil
}

func errorOutput(err error) string {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(b)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
