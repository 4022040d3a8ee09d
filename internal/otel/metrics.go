package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

var (
	initMetricsOnce     sync.Once
	runsCounter         metric.Int64Counter
	runDuration         metric.Float64Histogram
	toolCallsCounter    metric.Int64Counter
	toolCallDuration    metric.Float64Histogram
	issueOpsCounter     metric.Int64Counter
	chatDepthHistogram  metric.Int64Histogram
	sseEventsCounter    metric.Int64Counter
	sseConnectionsGauge metric.Int64ObservableGauge
	sseConnections      int64
	sseConnectionsMu    sync.Mutex
)

// InitMetrics creates the meter instruments. Safe to call multiple times; only runs once.
// Call after InitMeterProvider.
func InitMetrics(ctx context.Context) error {
	var err error
	initMetricsOnce.Do(func() {
		m := Meter()
		runsCounter, err = m.Int64Counter("sweteam_runs_total", metric.WithDescription("Total reasoning-service runs by terminal status"))
		if err != nil {
			return
		}
		runDuration, err = m.Float64Histogram("sweteam_run_duration_seconds", metric.WithDescription("Run duration from create to terminal status"))
		if err != nil {
			return
		}
		toolCallsCounter, err = m.Int64Counter("sweteam_tool_calls_total", metric.WithDescription("Total tool dispatches by tool and outcome"))
		if err != nil {
			return
		}
		toolCallDuration, err = m.Float64Histogram("sweteam_tool_call_duration_seconds", metric.WithDescription("Tool dispatch duration in seconds"))
		if err != nil {
			return
		}
		issueOpsCounter, err = m.Int64Counter("sweteam_issue_operations_total", metric.WithDescription("Total issue board operations (list, create, read, update, assign)"))
		if err != nil {
			return
		}
		chatDepthHistogram, err = m.Int64Histogram("sweteam_agent_chat_depth", metric.WithDescription("Nesting depth of agent-to-agent chats"))
		if err != nil {
			return
		}
		sseEventsCounter, err = m.Int64Counter("sweteam_sse_events_total", metric.WithDescription("Total SSE events published"))
		if err != nil {
			return
		}
		sseConnectionsGauge, err = m.Int64ObservableGauge("sweteam_sse_connections", metric.WithDescription("Current SSE subscriber count"))
		if err != nil {
			return
		}
		_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
			sseConnectionsMu.Lock()
			n := sseConnections
			sseConnectionsMu.Unlock()
			o.ObserveInt64(sseConnectionsGauge, n)
			return nil
		}, sseConnectionsGauge)
		if err != nil {
			return
		}
	})
	return err
}

// RecordRun records one run reaching a terminal status.
func RecordRun(ctx context.Context, agent, status string, duration time.Duration) {
	if runsCounter != nil {
		runsCounter.Add(ctx, 1, metric.WithAttributes(AttrAgent.String(agent), AttrStatus.String(status)))
	}
	if runDuration != nil {
		runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(AttrAgent.String(agent), AttrStatus.String(status)))
	}
}

// RecordToolCall records one tool dispatch.
func RecordToolCall(ctx context.Context, tool, outcome string, duration time.Duration) {
	if toolCallsCounter != nil {
		toolCallsCounter.Add(ctx, 1, metric.WithAttributes(AttrTool.String(tool), AttrOutcome.String(outcome)))
	}
	if toolCallDuration != nil {
		toolCallDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(AttrTool.String(tool)))
	}
}

// RecordIssueOp records one issue board operation.
func RecordIssueOp(ctx context.Context, action, outcome string) {
	if issueOpsCounter != nil {
		issueOpsCounter.Add(ctx, 1, metric.WithAttributes(AttrAction.String(action), AttrOutcome.String(outcome)))
	}
}

// RecordChatDepth records the nesting depth of an agent-to-agent chat.
func RecordChatDepth(ctx context.Context, agent string, depth int) {
	if chatDepthHistogram != nil {
		chatDepthHistogram.Record(ctx, int64(depth), metric.WithAttributes(AttrAgent.String(agent)))
	}
}

// RecordSSEEvent records one SSE event published.
func RecordSSEEvent(ctx context.Context) {
	if sseEventsCounter != nil {
		sseEventsCounter.Add(ctx, 1)
	}
}

// AddSSEConnection adds 1 to the SSE connection gauge (call on subscribe).
func AddSSEConnection() {
	sseConnectionsMu.Lock()
	sseConnections++
	sseConnectionsMu.Unlock()
}

// RemoveSSEConnection subtracts 1 from the SSE connection gauge (call on unsubscribe).
func RemoveSSEConnection() {
	sseConnectionsMu.Lock()
	sseConnections--
	if sseConnections < 0 {
		sseConnections = 0
	}
	sseConnectionsMu.Unlock()
}

// IssueCountFunc returns open/in-progress/completed counts for the issues gauge.
type IssueCountFunc func() (open, inProgress, completed int64)

// InitMetricsWithIssueCount creates instruments and registers a callback
// reporting issue counts by status. If issueCount is nil the gauge is skipped.
func InitMetricsWithIssueCount(ctx context.Context, issueCount IssueCountFunc) error {
	if err := InitMetrics(ctx); err != nil {
		return err
	}
	if issueCount == nil {
		return nil
	}
	m := Meter()
	issuesGauge, err := m.Float64ObservableGauge("sweteam_issues_total", metric.WithDescription("Number of issues by status"))
	if err != nil {
		return err
	}
	_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		open, inProgress, completed := issueCount()
		o.ObserveFloat64(issuesGauge, float64(open), metric.WithAttributes(AttrStatus.String("new")))
		o.ObserveFloat64(issuesGauge, float64(inProgress), metric.WithAttributes(AttrStatus.String("in progress")))
		o.ObserveFloat64(issuesGauge, float64(completed), metric.WithAttributes(AttrStatus.String("completed")))
		return nil
	}, issuesGauge)
	return err
}
