package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/AlanyTan/sweteam/internal/dirplan"
	"github.com/AlanyTan/sweteam/internal/httpapi"
	"github.com/AlanyTan/sweteam/internal/issue"
	"github.com/AlanyTan/sweteam/pkg/client"
	"github.com/AlanyTan/sweteam/pkg/models"
)

// newTestServer runs the real API handlers against a ledger and plan rooted
// in a temp dir.
func newTestServer(t *testing.T) (*httptest.Server, *client.Client) {
	t.Helper()
	home := t.TempDir()
	ledger, err := issue.NewLedger(filepath.Join(home, "issue_board"))
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	plan := dirplan.New(filepath.Join(home, "plan.yaml"), filepath.Join(home, "project"))
	app, err := httpapi.NewApp(httpapi.ServerOptions{
		Home:   home,
		Ledger: ledger,
		Plan:   plan,
	})
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	srv := httptest.NewServer(app.Server.Handler)
	t.Cleanup(srv.Close)
	return srv, client.New(srv.URL, "")
}

func TestNew(t *testing.T) {
	t.Parallel()
	c := client.New("http://localhost:3548", "")
	if c.BaseURL != "http://localhost:3548" || c.APIKey != "" {
		t.Errorf("New: %+v", c)
	}
	c2 := client.New("http://localhost:3548", "secret")
	if c2.APIKey != "secret" {
		t.Errorf("New with key: %+v", c2)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	_, c := newTestServer(t)
	ok, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if !ok {
		t.Fatal("Health: expected ok true")
	}
}

func TestHealth_error(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"down"}`))
	}))
	defer srv.Close()

	c := client.New(srv.URL, "")
	_, err := c.Health(context.Background())
	if err == nil {
		t.Fatal("expected error from 503")
	}
}

func TestClient_setsAPIKeyHeader(t *testing.T) {
	t.Parallel()
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := client.New(srv.URL, "mykey")
	_, _ = c.Health(context.Background())
	if gotKey != "mykey" {
		t.Errorf("X-API-Key: got %q", gotKey)
	}
}

func TestIssueLifecycle(t *testing.T) {
	t.Parallel()
	_, c := newTestServer(t)
	ctx := context.Background()

	iss, err := c.CreateIssue(ctx, client.CreateIssueRequest{
		Title:       "add login page",
		Description: "users need to sign in",
		Author:      "human",
		Priority:    "1 - Critical",
	})
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	if iss.ID != "1" {
		t.Fatalf("issue id: got %q, want 1", iss.ID)
	}

	sub, err := c.CreateIssue(ctx, client.CreateIssueRequest{
		Parent: iss.ID,
		Title:  "wire the session store",
		Author: "human",
	})
	if err != nil {
		t.Fatalf("CreateIssue sub: %v", err)
	}
	if sub.ID != "1/1" {
		t.Fatalf("sub-issue id: got %q, want 1/1", sub.ID)
	}

	if _, err := c.AssignIssue(ctx, sub.ID, "backend_dev", "pm"); err != nil {
		t.Fatalf("AssignIssue: %v", err)
	}
	got, err := c.UpdateIssue(ctx, sub.ID, models.IssueUpdate{
		Author: "backend_dev",
		Status: models.IssueStatusInProgress,
	})
	if err != nil {
		t.Fatalf("UpdateIssue: %v", err)
	}
	if got.Status != models.IssueStatusInProgress {
		t.Errorf("status: got %q", got.Status)
	}

	read, err := c.GetIssue(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetIssue: %v", err)
	}
	if read.Assignee == nil || *read.Assignee != "backend_dev" {
		t.Errorf("assignee: got %v", read.Assignee)
	}

	sums, err := c.ListIssues(ctx, client.IssueFilter{Assignee: "backend_dev"})
	if err != nil {
		t.Fatalf("ListIssues: %v", err)
	}
	if len(sums) != 1 || sums[0].ID != "1/1" {
		t.Errorf("filtered list: %+v", sums)
	}
}

func TestGetIssue_notFound(t *testing.T) {
	t.Parallel()
	_, c := newTestServer(t)
	if _, err := c.GetIssue(context.Background(), "404"); err == nil {
		t.Fatal("expected error for missing issue")
	}
}

func TestPlanUpdateAndGet(t *testing.T) {
	t.Parallel()
	_, c := newTestServer(t)
	ctx := context.Background()

	err := c.UpdatePlan(ctx, map[string]any{
		"api": map[string]any{"main.py": "service entry point"},
	})
	if err != nil {
		t.Fatalf("UpdatePlan: %v", err)
	}
	root, err := c.GetPlan(ctx, false)
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	api := findChild(root, "api")
	if api == nil {
		t.Fatalf("plan missing api dir: %+v", root)
	}
	if f := findChild(api, "main.py"); f == nil || f.Description != "service entry point" {
		t.Errorf("main.py node: %+v", f)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()
	_, c := newTestServer(t)
	ctx := context.Background()
	if _, err := c.CreateIssue(ctx, client.CreateIssueRequest{Title: "first", Author: "human"}); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	st, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Issues[models.IssueStatusNew] != 1 {
		t.Errorf("issue counts: %+v", st.Issues)
	}
}

func findChild(n *models.DirectoryNode, name string) *models.DirectoryNode {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}
