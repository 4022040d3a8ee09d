// Package tools implements the dispatch router between reasoning-service tool
// calls and the engine's capabilities. Every call is schema-validated before
// its handler runs; failures come back as structured results the conversation
// can react to, not as crashes.
package tools

import (
	"context"
)

// Property describes a single parameter in a tool's JSON schema.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Items       *Property `json:"items,omitempty"`
}

// Schema is the JSON-schema parameter object advertised for a tool.
type Schema struct {
	Required   []string            `json:"required,omitempty"`
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc runs a tool with validated arguments and returns its output as
// a string (usually JSON).
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool is one dispatchable capability.
type Tool struct {
	Name        string
	Description string
	Schema      Schema
	Execute     ExecuteFunc
}

// Validate checks the tool definition.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return errToolNameEmpty
	}
	if t.Execute == nil {
		return errToolExecuteNil
	}
	return nil
}

// WireSchema renders the schema as the map form sent to reasoning services.
func (s Schema) WireSchema() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name, p := range s.Properties {
		props[name] = propertyMap(p)
	}
	out := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	return out
}

func propertyMap(p Property) map[string]any {
	m := map[string]any{"type": p.Type}
	if p.Description != "" {
		m["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		m["enum"] = p.Enum
	}
	if p.Items != nil {
		m["items"] = propertyMap(*p.Items)
	}
	return m
}
