// Package runtime defines the boundary to the external reasoning service that
// does the thinking for the agents. The engine only ever creates a run, polls
// its status, and submits tool outputs; everything else is the service's
// business.
package runtime

import (
	"context"

	"github.com/AlanyTan/sweteam/pkg/models"
)

// ToolDef is one tool contract advertised to the reasoning service, with a
// JSON-schema parameter object.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// RunRequest asks the service to start one run for an agent.
type RunRequest struct {
	Agent        string    `json:"agent"`
	Model        string    `json:"model,omitempty"`
	Instructions string    `json:"instructions,omitempty"`
	Message      string    `json:"message"`
	Temperature  float64   `json:"temperature,omitempty"`
	Tools        []ToolDef `json:"tools,omitempty"`
}

// RunState is a snapshot of one run. ToolCalls is populated only in the
// requires_action status; Message only once completed.
type RunState struct {
	RunID     string            `json:"run_id"`
	Status    string            `json:"status"`
	ToolCalls []models.ToolCall `json:"tool_calls,omitempty"`
	Message   string            `json:"message,omitempty"`
	Detail    string            `json:"detail,omitempty"`
}

// Terminal reports whether the run has finished, successfully or not.
func (s RunState) Terminal() bool {
	switch s.Status {
	case models.RunStatusCompleted, models.RunStatusFailed, models.RunStatusExpired, models.RunStatusCancelled:
		return true
	}
	return false
}

// Service is the reasoning-service client. Implementations must be safe for
// concurrent use; every method honors context cancellation.
type Service interface {
	Name() string
	CreateRun(ctx context.Context, req RunRequest) (RunState, error)
	GetRun(ctx context.Context, runID string) (RunState, error)
	SubmitToolOutputs(ctx context.Context, runID string, outputs []models.ToolResult) (RunState, error)
}
