// Package run drives one reasoning-service run from creation to a terminal
// status: poll, dispatch requested tools, submit outputs, repeat. Polling is
// bounded so a stuck service cannot wedge the engine.
package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AlanyTan/sweteam/internal/agent/runtime"
	"github.com/AlanyTan/sweteam/internal/events"
	"github.com/AlanyTan/sweteam/internal/otel"
	"github.com/AlanyTan/sweteam/internal/tools"
	"github.com/AlanyTan/sweteam/pkg/models"
)

// Auditor persists run outcomes and tool dispatches. Implemented by the
// store; nil disables auditing.
type Auditor interface {
	RecordRun(ctx context.Context, outcome models.RunOutcome) error
	RecordDispatch(ctx context.Context, runID string, call models.ToolCall, res models.ToolResult) error
}

// Request describes one run to execute on an agent's behalf.
type Request struct {
	Agent        string
	Model        string
	Instructions string
	Message      string
	Temperature  float64
	AllowedTools []string
}

// Manager executes runs against a Service, dispatching tool calls through the
// registry. Zero-value limits fall back to the package defaults.
type Manager struct {
	Service      runtime.Service
	Registry     *tools.Registry
	Hub          *events.Hub
	Audit        Auditor
	PollInterval time.Duration
	MaxPolls     int
	PollRetries  int
}

func (m *Manager) interval() time.Duration {
	if m.PollInterval > 0 {
		return m.PollInterval
	}
	return models.DefaultPollIntervalMillis * time.Millisecond
}

func (m *Manager) maxPolls() int {
	if m.MaxPolls > 0 {
		return m.MaxPolls
	}
	return models.DefaultMaxPolls
}

func (m *Manager) retries() int {
	if m.PollRetries > 0 {
		return m.PollRetries
	}
	return models.DefaultPollRetries
}

// Execute drives one run to its terminal status and returns the outcome with
// the full tool-call trace. A failed, expired, or cancelled run returns the
// outcome together with an ErrRunFailure; poll exhaustion counts as expiry.
func (m *Manager) Execute(ctx context.Context, req Request) (models.RunOutcome, error) {
	outcome := models.RunOutcome{Agent: req.Agent, StartedAt: time.Now()}

	state, err := m.Service.CreateRun(ctx, runtime.RunRequest{
		Agent:        req.Agent,
		Model:        req.Model,
		Instructions: req.Instructions,
		Message:      req.Message,
		Temperature:  req.Temperature,
		Tools:        m.Registry.Defs(req.AllowedTools),
	})
	if err != nil {
		return outcome, fmt.Errorf("create run for %s: %w", req.Agent, err)
	}
	outcome.RunID = state.RunID
	m.publish(models.Event{Type: models.EventRunStarted, Agent: req.Agent, RunID: state.RunID})
	slog.Info("run started", "agent", req.Agent, "run_id", state.RunID)

	for polls := 0; polls < m.maxPolls(); polls++ {
		if state.Terminal() {
			return m.finish(ctx, req, outcome, state, polls)
		}
		if state.Status == models.RunStatusRequiresAction {
			state, err = m.handleAction(ctx, req, &outcome, state)
			if err != nil {
				outcome.Status = models.RunStatusFailed
				outcome.FinishedAt = time.Now()
				m.record(ctx, req, outcome)
				return outcome, err
			}
			continue
		}
		if err := sleep(ctx, m.interval()); err != nil {
			outcome.Status = models.RunStatusCancelled
			outcome.FinishedAt = time.Now()
			m.record(ctx, req, outcome)
			return outcome, err
		}
		runID := state.RunID
		state, err = m.pollWithRetry(ctx, runID)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				outcome.Status = models.RunStatusCancelled
				outcome.FinishedAt = time.Now()
				m.record(ctx, req, outcome)
				return outcome, err
			}
			outcome.Status = models.RunStatusFailed
			outcome.FinishedAt = time.Now()
			m.record(ctx, req, outcome)
			return outcome, fmt.Errorf("%w: polling run %s: %v", models.ErrRunFailure, runID, err)
		}
		outcome.PollCount = polls + 1
	}

	// Poll budget exhausted: treat as expired.
	state.Status = models.RunStatusExpired
	state.Detail = fmt.Sprintf("no terminal status after %d polls", m.maxPolls())
	return m.finish(ctx, req, outcome, state, m.maxPolls())
}

// handleAction dispatches every requested tool call and submits the outputs.
func (m *Manager) handleAction(ctx context.Context, req Request, outcome *models.RunOutcome, state runtime.RunState) (runtime.RunState, error) {
	if len(state.ToolCalls) == 0 {
		return state, fmt.Errorf("%w: run %s requires action but carries no tool calls", models.ErrRunFailure, state.RunID)
	}
	outputs := make([]models.ToolResult, 0, len(state.ToolCalls))
	for _, call := range state.ToolCalls {
		res, derr := m.Registry.Dispatch(ctx, call, req.AllowedTools)
		outcome.Trace = append(outcome.Trace, res)
		outputs = append(outputs, res)
		m.publish(models.Event{
			Type: models.EventToolDispatch, Agent: req.Agent, RunID: state.RunID,
			Tool: call.Name, Data: outcomeWord(res),
		})
		if m.Audit != nil {
			if err := m.Audit.RecordDispatch(ctx, state.RunID, call, res); err != nil {
				slog.Warn("audit dispatch failed", "run_id", state.RunID, "tool", call.Name, "err", err)
			}
		}
		if derr != nil {
			// A run-aborting dispatch failure (chat nesting bound) terminates
			// this run; the remote side is cancelled best-effort.
			if c, ok := m.Service.(interface {
				CancelRun(context.Context, string) error
			}); ok {
				if cerr := c.CancelRun(ctx, state.RunID); cerr != nil {
					slog.Warn("cancel run failed", "run_id", state.RunID, "err", cerr)
				}
			}
			return state, fmt.Errorf("dispatch %s for run %s: %w", call.Name, state.RunID, derr)
		}
	}
	next, err := m.Service.SubmitToolOutputs(ctx, state.RunID, outputs)
	if err != nil {
		return state, fmt.Errorf("%w: submit tool outputs for run %s: %v", models.ErrRunFailure, state.RunID, err)
	}
	return next, nil
}

// pollWithRetry retries transient poll errors with doubling backoff. Context
// cancellation is never retried.
func (m *Manager) pollWithRetry(ctx context.Context, runID string) (runtime.RunState, error) {
	backoff := m.interval()
	var lastErr error
	for attempt := 0; attempt <= m.retries(); attempt++ {
		state, err := m.Service.GetRun(ctx, runID)
		if err == nil {
			return state, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, models.ErrNotFound) {
			return runtime.RunState{}, err
		}
		lastErr = err
		slog.Warn("poll failed, retrying", "run_id", runID, "attempt", attempt+1, "err", err)
		if err := sleep(ctx, backoff); err != nil {
			return runtime.RunState{}, err
		}
		backoff *= 2
	}
	return runtime.RunState{}, lastErr
}

func (m *Manager) finish(ctx context.Context, req Request, outcome models.RunOutcome, state runtime.RunState, polls int) (models.RunOutcome, error) {
	outcome.Status = state.Status
	outcome.Message = state.Message
	outcome.PollCount = polls
	outcome.FinishedAt = time.Now()
	m.record(ctx, req, outcome)

	if state.Status != models.RunStatusCompleted {
		detail := state.Detail
		if detail == "" {
			detail = state.Status
		}
		return outcome, fmt.Errorf("%w: run %s for %s: %s", models.ErrRunFailure, outcome.RunID, req.Agent, detail)
	}
	slog.Info("run completed", "agent", req.Agent, "run_id", outcome.RunID, "polls", polls, "tool_calls", len(outcome.Trace))
	return outcome, nil
}

func (m *Manager) record(ctx context.Context, req Request, outcome models.RunOutcome) {
	otel.RecordRun(ctx, req.Agent, outcome.Status, outcome.FinishedAt.Sub(outcome.StartedAt))
	m.publish(models.Event{Type: models.EventRunFinished, Agent: req.Agent, RunID: outcome.RunID, Data: outcome.Status})
	if m.Audit != nil {
		if err := m.Audit.RecordRun(ctx, outcome); err != nil {
			slog.Warn("audit run failed", "run_id", outcome.RunID, "err", err)
		}
	}
}

func (m *Manager) publish(ev models.Event) {
	if m.Hub != nil {
		m.Hub.Publish(ev)
	}
}

func outcomeWord(res models.ToolResult) string {
	if res.IsError {
		return "error"
	}
	return "ok"
}

// sleep waits for d or until the context is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
