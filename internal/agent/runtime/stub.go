package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/AlanyTan/sweteam/pkg/models"
)

// StubService is an in-process Service for tests and offline runs. Each run
// walks a scripted sequence of states; with no script, runs complete
// immediately echoing the request message.
type StubService struct {
	// Script builds the state sequence for a new run. The RunID field of
	// scripted states is filled in by the stub.
	Script func(req RunRequest) []RunState

	mu   sync.Mutex
	runs map[string]*stubRun
}

type stubRun struct {
	states []RunState
	pos    int
	// outputs submitted for the most recent requires_action state.
	outputs [][]models.ToolResult
}

// NewStub returns a StubService with no script.
func NewStub() *StubService {
	return &StubService{runs: make(map[string]*stubRun)}
}

func (s *StubService) Name() string { return "stub" }

func (s *StubService) CreateRun(ctx context.Context, req RunRequest) (RunState, error) {
	if err := ctx.Err(); err != nil {
		return RunState{}, err
	}
	id := uuid.NewString()
	var states []RunState
	if s.Script != nil {
		states = s.Script(req)
	}
	if len(states) == 0 {
		states = []RunState{{Status: models.RunStatusCompleted, Message: "echo: " + req.Message}}
	}
	for i := range states {
		states[i].RunID = id
	}
	s.mu.Lock()
	if s.runs == nil {
		s.runs = make(map[string]*stubRun)
	}
	s.runs[id] = &stubRun{states: states}
	s.mu.Unlock()
	return RunState{RunID: id, Status: models.RunStatusQueued}, nil
}

func (s *StubService) GetRun(ctx context.Context, runID string) (RunState, error) {
	if err := ctx.Err(); err != nil {
		return RunState{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return RunState{}, fmt.Errorf("%w: run %s", models.ErrNotFound, runID)
	}
	st := r.states[r.pos]
	// Hold at requires_action until outputs arrive; advance through
	// everything else.
	if st.Status != models.RunStatusRequiresAction && r.pos < len(r.states)-1 {
		r.pos++
	}
	return st, nil
}

func (s *StubService) SubmitToolOutputs(ctx context.Context, runID string, outputs []models.ToolResult) (RunState, error) {
	if err := ctx.Err(); err != nil {
		return RunState{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return RunState{}, fmt.Errorf("%w: run %s", models.ErrNotFound, runID)
	}
	cur := r.states[r.pos]
	if cur.Status != models.RunStatusRequiresAction {
		return RunState{}, fmt.Errorf("%w: run %s is %s, not requires_action", models.ErrValidation, runID, cur.Status)
	}
	r.outputs = append(r.outputs, outputs)
	if r.pos < len(r.states)-1 {
		r.pos++
	}
	return r.states[r.pos], nil
}

// SubmittedOutputs returns every batch of tool outputs submitted for a run.
func (s *StubService) SubmittedOutputs(runID string) [][]models.ToolResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[runID]; ok {
		return r.outputs
	}
	return nil
}
