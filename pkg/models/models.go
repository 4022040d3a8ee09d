// Package models provides shared types for the sweteam engine: issue records,
// reasoning-service runs, tool calls, and event payloads. These types mirror the
// on-disk and API JSON and are stable for external consumers.
package models

import "time"

// Issue is a unit of work on the issue board. Status, Priority, and Assignee
// are denormalized from the latest update entry that carries the field; the
// Updates history itself is append-only.
type Issue struct {
	ID            string        `json:"issue"`
	Title         string        `json:"title"`
	Description   string        `json:"description,omitempty"`
	Status        string        `json:"status"`
	Priority      string        `json:"priority"`
	Assignee      *string       `json:"assignee,omitempty"`
	Prerequisites []string      `json:"prerequisites,omitempty"`
	CreatedAt     time.Time     `json:"created_at,omitempty"`
	Updates       []IssueUpdate `json:"updates"`
}

// IssueUpdate is one entry in an issue's history. Creation seeds the first
// entry; every later mutation appends one. Empty fields mean "unchanged".
type IssueUpdate struct {
	Author    string    `json:"updated_by"`
	UpdatedAt time.Time `json:"updated_at"`
	Status    string    `json:"status,omitempty"`
	Priority  string    `json:"priority,omitempty"`
	Assignee  string    `json:"assignee,omitempty"`
	Details   string    `json:"details,omitempty"`
}

// IssueSummary is the list-view projection of an issue.
type IssueSummary struct {
	ID       string `json:"issue"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
	Assignee string `json:"assignee,omitempty"`
}

// ToolCall is one tool invocation requested by a run in the requires_action
// state. Arguments is the raw JSON argument object as received.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResult is the outcome of dispatching a single tool call. Output is the
// serialized result handed back to the reasoning service; IsError marks
// results that describe a failure rather than a value.
type ToolResult struct {
	CallID   string        `json:"call_id"`
	Name     string        `json:"name"`
	Output   string        `json:"output"`
	IsError  bool          `json:"is_error,omitempty"`
	Duration time.Duration `json:"duration_ns,omitempty"`
}

// RunOutcome is the terminal result of driving one run: the final assistant
// message plus the full trace of tool calls made along the way.
type RunOutcome struct {
	RunID      string       `json:"run_id"`
	Agent      string       `json:"agent"`
	Status     string       `json:"status"`
	Message    string       `json:"message,omitempty"`
	Trace      []ToolResult `json:"trace,omitempty"`
	PollCount  int          `json:"poll_count,omitempty"`
	StartedAt  time.Time    `json:"started_at,omitempty"`
	FinishedAt time.Time    `json:"finished_at,omitempty"`
}

// DirectoryNode is one node of the merged planned/actual project tree.
// Discrepancy is recomputed on every read and never persisted.
type DirectoryNode struct {
	Name        string           `json:"name" yaml:"name"`
	IsDir       bool             `json:"is_dir" yaml:"is_dir"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Planned     bool             `json:"planned" yaml:"planned"`
	Actual      bool             `json:"actual" yaml:"actual"`
	Discrepancy string           `json:"discrepancy,omitempty" yaml:"discrepancy,omitempty"`
	Children    []*DirectoryNode `json:"children,omitempty" yaml:"children,omitempty"`
}

// Event is a single engine event published to observers (SSE, audit log).
type Event struct {
	Type      string    `json:"type"`
	Agent     string    `json:"agent,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	IssueID   string    `json:"issue_id,omitempty"`
	Tool      string    `json:"tool,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      string    `json:"data,omitempty"`
}

// AgentEvaluation is a score/feedback record for an agent's response,
// written by the evaluate_agent tool.
type AgentEvaluation struct {
	Agent     string    `json:"agent"`
	Evaluator string    `json:"evaluator"`
	Score     int       `json:"score"`
	Feedback  string    `json:"feedback,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}
