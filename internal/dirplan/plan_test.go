package dirplan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AlanyTan/sweteam/pkg/models"
)

func newTestPlan(t *testing.T) (*Plan, string) {
	t.Helper()
	dir := t.TempDir()
	project := filepath.Join(dir, "project")
	if err := os.MkdirAll(project, 0o755); err != nil {
		t.Fatalf("mkdir project: %v", err)
	}
	return New(filepath.Join(project, "dir_structure.yaml"), project), project
}

func find(n *models.DirectoryNode, name string) *models.DirectoryNode {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestRead_emptyProject(t *testing.T) {
	t.Parallel()
	p, _ := newTestPlan(t)
	root, err := p.Read(false)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(root.Children) != 0 {
		t.Fatalf("empty project: got %d children", len(root.Children))
	}
}

func TestUpdate_onlyMutatesPlan(t *testing.T) {
	t.Parallel()
	p, project := newTestPlan(t)
	err := p.UpdateFromMap(map[string]any{
		"api": map[string]any{
			"server.go": "HTTP server entry point",
		},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	// The plan must not create anything on disk besides its own document.
	if _, err := os.Stat(filepath.Join(project, "api")); !os.IsNotExist(err) {
		t.Fatal("plan update created a real directory")
	}
	root, err := p.Read(false)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	api := find(root, "api")
	if api == nil {
		t.Fatal("planned dir missing from merged view")
	}
	if api.Discrepancy != DiscrepancyPlannedOnly {
		t.Fatalf("planned-only discrepancy: got %q", api.Discrepancy)
	}
}

func TestRead_reportsUnplanned(t *testing.T) {
	t.Parallel()
	p, project := newTestPlan(t)
	if err := os.WriteFile(filepath.Join(project, "stray.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	root, err := p.Read(false)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	stray := find(root, "stray.txt")
	if stray == nil || stray.Discrepancy != DiscrepancyUnplanned {
		t.Fatalf("unplanned file: %+v", stray)
	}
}

func TestRead_discrepancyClearsWhenCreated(t *testing.T) {
	t.Parallel()
	p, project := newTestPlan(t)
	if err := p.UpdateFromMap(map[string]any{"main.go": "entry point"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	root, _ := p.Read(false)
	if n := find(root, "main.go"); n == nil || n.Discrepancy != DiscrepancyPlannedOnly {
		t.Fatalf("before create: %+v", n)
	}
	if err := os.WriteFile(filepath.Join(project, "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	root, err := p.Read(false)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	n := find(root, "main.go")
	if n == nil || n.Discrepancy != "" {
		t.Fatalf("after create: %+v", n)
	}
	if !n.Planned || !n.Actual {
		t.Fatalf("after create flags: %+v", n)
	}
	if n.Description != "entry point" {
		t.Fatalf("description lost: %+v", n)
	}
}

func TestUpdate_additive(t *testing.T) {
	t.Parallel()
	p, _ := newTestPlan(t)
	if err := p.UpdateFromMap(map[string]any{"a.go": "first"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := p.UpdateFromMap(map[string]any{"b.go": "second"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	root, err := p.Read(false)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if find(root, "a.go") == nil || find(root, "b.go") == nil {
		t.Fatal("second update dropped earlier plan entries")
	}
}

func TestRead_actualOnly(t *testing.T) {
	t.Parallel()
	p, project := newTestPlan(t)
	if err := p.UpdateFromMap(map[string]any{"planned.go": "never created"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := os.WriteFile(filepath.Join(project, "real.go"), []byte("package x\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	root, err := p.Read(true)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if find(root, "planned.go") != nil {
		t.Fatal("actual-only view leaked a planned node")
	}
	if find(root, "real.go") == nil {
		t.Fatal("actual-only view missing real file")
	}
}

func TestRender_csv(t *testing.T) {
	t.Parallel()
	p, _ := newTestPlan(t)
	if err := p.UpdateFromMap(map[string]any{
		"api": map[string]any{"server.go": "HTTP server"},
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	root, err := p.Read(false)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	out, err := Render(root, FormatCSV)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.HasPrefix(out, "file_path,file_description\n") {
		t.Fatalf("csv header: %q", out)
	}
	if !strings.Contains(out, "api/server.go,") {
		t.Fatalf("csv rows: %q", out)
	}
}

func TestRender_unknownFormat(t *testing.T) {
	t.Parallel()
	if _, err := Render(&models.DirectoryNode{Name: "."}, "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
