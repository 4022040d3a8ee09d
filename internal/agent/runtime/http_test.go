package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AlanyTan/sweteam/pkg/models"
)

func TestHTTPService_runLifecycle(t *testing.T) {
	t.Parallel()
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("/runs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		var req RunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Agent != "pm" {
			http.Error(w, "wrong agent", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(RunState{RunID: "r1", Status: models.RunStatusQueued})
	})
	mux.HandleFunc("/runs/r1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(RunState{
			RunID:  "r1",
			Status: models.RunStatusRequiresAction,
			ToolCalls: []models.ToolCall{
				{ID: "c1", Name: "dir_structure", Arguments: `{"action":"read"}`},
			},
		})
	})
	mux.HandleFunc("/runs/r1/submit_tool_outputs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var body struct {
			ToolOutputs []models.ToolResult `json:"tool_outputs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.ToolOutputs) != 1 {
			http.Error(w, "bad outputs", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(RunState{RunID: "r1", Status: models.RunStatusCompleted, Message: "ok"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewHTTPService(srv.URL, "test-key")
	ctx := context.Background()

	created, err := s.CreateRun(ctx, RunRequest{Agent: "pm", Message: "plan it"})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if created.RunID != "r1" || gotAuth != "Bearer test-key" {
		t.Fatalf("CreateRun: %+v auth=%q", created, gotAuth)
	}

	polled, err := s.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if polled.Status != models.RunStatusRequiresAction || len(polled.ToolCalls) != 1 {
		t.Fatalf("GetRun: %+v", polled)
	}

	done, err := s.SubmitToolOutputs(ctx, "r1", []models.ToolResult{{CallID: "c1", Name: "dir_structure", Output: "{}"}})
	if err != nil {
		t.Fatalf("SubmitToolOutputs: %v", err)
	}
	if done.Status != models.RunStatusCompleted || done.Message != "ok" {
		t.Fatalf("SubmitToolOutputs: %+v", done)
	}
}

func TestHTTPService_notFound(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	s := NewHTTPService(srv.URL, "")
	if _, err := s.GetRun(context.Background(), "ghost"); err == nil {
		t.Fatal("expected error for missing run")
	}
}

func TestHTTPService_serverError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	s := NewHTTPService(srv.URL, "")
	if _, err := s.CreateRun(context.Background(), RunRequest{Agent: "pm"}); err == nil {
		t.Fatal("expected error for 500 response")
	}
}
