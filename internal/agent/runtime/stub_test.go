package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/AlanyTan/sweteam/pkg/models"
)

func TestStub_defaultEcho(t *testing.T) {
	t.Parallel()
	s := NewStub()
	ctx := context.Background()
	st, err := s.CreateRun(ctx, RunRequest{Agent: "pm", Message: "hello"})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if st.Status != models.RunStatusQueued || st.RunID == "" {
		t.Fatalf("CreateRun state: %+v", st)
	}
	got, err := s.GetRun(ctx, st.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != models.RunStatusCompleted || got.Message != "echo: hello" {
		t.Fatalf("GetRun state: %+v", got)
	}
}

func TestStub_requiresActionHoldsUntilSubmit(t *testing.T) {
	t.Parallel()
	s := NewStub()
	s.Script = func(req RunRequest) []RunState {
		return []RunState{
			{Status: models.RunStatusInProgress},
			{Status: models.RunStatusRequiresAction, ToolCalls: []models.ToolCall{
				{ID: "call_1", Name: "read_file", Arguments: `{"filepath":"a.txt"}`},
			}},
			{Status: models.RunStatusCompleted, Message: "done"},
		}
	}
	ctx := context.Background()
	st, _ := s.CreateRun(ctx, RunRequest{Agent: "dev", Message: "go"})

	first, _ := s.GetRun(ctx, st.RunID)
	if first.Status != models.RunStatusInProgress {
		t.Fatalf("first poll: %+v", first)
	}
	second, _ := s.GetRun(ctx, st.RunID)
	if second.Status != models.RunStatusRequiresAction || len(second.ToolCalls) != 1 {
		t.Fatalf("second poll: %+v", second)
	}
	// Polling again without submitting keeps the run parked.
	parked, _ := s.GetRun(ctx, st.RunID)
	if parked.Status != models.RunStatusRequiresAction {
		t.Fatalf("parked poll: %+v", parked)
	}

	out := []models.ToolResult{{CallID: "call_1", Name: "read_file", Output: "contents"}}
	next, err := s.SubmitToolOutputs(ctx, st.RunID, out)
	if err != nil {
		t.Fatalf("SubmitToolOutputs: %v", err)
	}
	if next.Status != models.RunStatusCompleted || next.Message != "done" {
		t.Fatalf("after submit: %+v", next)
	}
	batches := s.SubmittedOutputs(st.RunID)
	if len(batches) != 1 || batches[0][0].CallID != "call_1" {
		t.Fatalf("recorded outputs: %+v", batches)
	}
}

func TestStub_submitWithoutRequiresAction(t *testing.T) {
	t.Parallel()
	s := NewStub()
	ctx := context.Background()
	st, _ := s.CreateRun(ctx, RunRequest{Agent: "pm", Message: "x"})
	if _, err := s.SubmitToolOutputs(ctx, st.RunID, nil); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("submit on non-action run: got %v, want ErrValidation", err)
	}
}

func TestStub_unknownRun(t *testing.T) {
	t.Parallel()
	s := NewStub()
	if _, err := s.GetRun(context.Background(), "nope"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("GetRun unknown: got %v, want ErrNotFound", err)
	}
}
