package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AlanyTan/sweteam/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordRun_roundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	out := models.RunOutcome{
		RunID:      "r1",
		Agent:      "pm",
		Status:     models.RunStatusCompleted,
		Message:    "done",
		PollCount:  4,
		StartedAt:  time.Now().Add(-time.Minute),
		FinishedAt: time.Now(),
	}
	if err := s.RecordRun(ctx, out); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	runs, err := s.ListRuns(ctx, "pm", 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	got := runs[0]
	if got.RunID != "r1" || got.Status != models.RunStatusCompleted || got.Message != "done" || got.PollCount != 4 {
		t.Fatalf("run = %+v", got)
	}
}

func TestRecordRun_upsertReplacesStatus(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	base := models.RunOutcome{RunID: "r1", Agent: "pm", Status: models.RunStatusFailed}
	if err := s.RecordRun(ctx, base); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	base.Status = models.RunStatusCompleted
	base.Message = "second attempt"
	if err := s.RecordRun(ctx, base); err != nil {
		t.Fatalf("RecordRun upsert: %v", err)
	}
	runs, err := s.ListRuns(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != models.RunStatusCompleted {
		t.Fatalf("runs = %+v, want single completed row", runs)
	}
}

func TestListRuns_agentFilterAndLimit(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for i, agent := range []string{"pm", "sre", "pm"} {
		out := models.RunOutcome{
			RunID:      string(rune('a' + i)),
			Agent:      agent,
			Status:     models.RunStatusCompleted,
			FinishedAt: time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := s.RecordRun(ctx, out); err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
	}
	runs, err := s.ListRuns(ctx, "pm", 1)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Agent != "pm" {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestRecordDispatch_listedInOrder(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	calls := []models.ToolCall{
		{ID: "c1", Name: "read_file"},
		{ID: "c2", Name: "apply_unified_diff"},
	}
	for i, call := range calls {
		res := models.ToolResult{CallID: call.ID, Name: call.Name, Output: "ok", Duration: time.Duration(i+1) * time.Millisecond}
		if err := s.RecordDispatch(ctx, "r1", call, res); err != nil {
			t.Fatalf("RecordDispatch: %v", err)
		}
	}
	ds, err := s.ListDispatches(ctx, "r1")
	if err != nil {
		t.Fatalf("ListDispatches: %v", err)
	}
	if len(ds) != 2 || ds[0].Tool != "read_file" || ds[1].Tool != "apply_unified_diff" {
		t.Fatalf("dispatches = %+v", ds)
	}
	if ds[1].Duration != 2*time.Millisecond {
		t.Fatalf("duration = %v", ds[1].Duration)
	}
}

func TestRecordEvaluation_roundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	ev := models.AgentEvaluation{Agent: "backend_dev", Evaluator: "pm", Score: -1, Feedback: "missed the edge case"}
	if err := s.RecordEvaluation(ctx, ev); err != nil {
		t.Fatalf("RecordEvaluation: %v", err)
	}
	got, err := s.ListEvaluations(ctx, "backend_dev")
	if err != nil {
		t.Fatalf("ListEvaluations: %v", err)
	}
	if len(got) != 1 || got[0].Score != -1 || got[0].Feedback != "missed the edge case" {
		t.Fatalf("evaluations = %+v", got)
	}
}

func TestRunCounts(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for i, status := range []string{models.RunStatusCompleted, models.RunStatusCompleted, models.RunStatusFailed} {
		out := models.RunOutcome{RunID: string(rune('a' + i)), Agent: "pm", Status: status}
		if err := s.RecordRun(ctx, out); err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
	}
	counts, err := s.RunCounts(ctx)
	if err != nil {
		t.Fatalf("RunCounts: %v", err)
	}
	if counts[models.RunStatusCompleted] != 2 || counts[models.RunStatusFailed] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestMigrate_idempotent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestMapWriteErr(t *testing.T) {
	t.Parallel()
	if mapWriteErr(nil) != nil {
		t.Fatal("nil should pass through")
	}
	busy := errors.New("stmt: database is locked (5) (SQLITE_BUSY)")
	if !errors.Is(mapWriteErr(busy), models.ErrConcurrency) {
		t.Fatalf("busy error not mapped: %v", mapWriteErr(busy))
	}
	plain := errors.New("no such table: runs")
	if errors.Is(mapWriteErr(plain), models.ErrConcurrency) {
		t.Fatalf("plain error mapped: %v", mapWriteErr(plain))
	}
}
