package otel

import (
	"context"
	"testing"
	"time"
)

func TestInitMetrics_RecordRunAndToolCall(t *testing.T) {
	ctx := context.Background()
	_, err := InitMeterProvider(ctx, "metrics-test")
	if err != nil {
		t.Fatalf("InitMeterProvider: %v", err)
	}
	if err := InitMetrics(ctx); err != nil {
		t.Fatalf("InitMetrics: %v", err)
	}
	RecordRun(ctx, "pm", "completed", 200*time.Millisecond)
	RecordToolCall(ctx, "issue_manager", "ok", 5*time.Millisecond)
	RecordToolCall(ctx, "read_file", "error", time.Millisecond)
	RecordIssueOp(ctx, "create", "ok")
	RecordChatDepth(ctx, "architect", 2)
}

func TestAddSSEConnection_RemoveSSEConnection(t *testing.T) {
	AddSSEConnection()
	AddSSEConnection()
	RemoveSSEConnection()
	RemoveSSEConnection()
	RemoveSSEConnection() // should not go negative
}

func TestRecordSSEEvent(t *testing.T) {
	ctx := context.Background()
	_, _ = InitMeterProvider(ctx, "record-test")
	_ = InitMetrics(ctx)
	RecordSSEEvent(ctx)
}

func TestInitMetricsWithIssueCount(t *testing.T) {
	ctx := context.Background()
	_, _ = InitMeterProvider(ctx, "issuecount-test")
	err := InitMetricsWithIssueCount(ctx, func() (open, inProgress, completed int64) {
		return 1, 2, 3
	})
	if err != nil {
		t.Fatalf("InitMetricsWithIssueCount: %v", err)
	}
}

func TestInitMetricsWithIssueCount_nilFunc(t *testing.T) {
	ctx := context.Background()
	_, _ = InitMeterProvider(ctx, "issuecount-nil-test")
	err := InitMetricsWithIssueCount(ctx, nil)
	if err != nil {
		t.Fatalf("InitMetricsWithIssueCount(nil): %v", err)
	}
}
