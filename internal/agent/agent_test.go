package agent

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/AlanyTan/sweteam/pkg/models"
)

func TestWriteDefaults_thenLoadRoster(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "agents")
	if err := WriteDefaults(dir); err != nil {
		t.Fatalf("WriteDefaults: %v", err)
	}
	r, err := LoadRoster(dir)
	if err != nil {
		t.Fatalf("LoadRoster: %v", err)
	}
	names := r.Names()
	want := []string{models.RoleArchitect, models.RoleBackendDev, models.RoleFrontendDev, models.RolePM, models.RoleSRE}
	if len(names) != len(want) {
		t.Fatalf("roster names: %v", names)
	}
	for i, n := range want {
		if names[i] != n {
			t.Fatalf("roster names: got %v, want %v", names, want)
		}
	}
	pm, err := r.Get(models.RolePM)
	if err != nil {
		t.Fatalf("Get pm: %v", err)
	}
	found := false
	for _, tool := range pm.Tools {
		if tool == "get_human_input" {
			found = true
		}
	}
	if !found {
		t.Fatal("pm is missing get_human_input")
	}
}

func TestWriteDefaults_preservesLocalEdits(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "agents")
	if err := WriteDefaults(dir); err != nil {
		t.Fatalf("WriteDefaults: %v", err)
	}
	custom := "name: pm\ninstructions: customized\ntemperature: 0.9\ntools: [issue_manager]\n"
	if err := os.WriteFile(filepath.Join(dir, "pm.yaml"), []byte(custom), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteDefaults(dir); err != nil {
		t.Fatalf("WriteDefaults again: %v", err)
	}
	r, err := LoadRoster(dir)
	if err != nil {
		t.Fatalf("LoadRoster: %v", err)
	}
	pm, err := r.Get("pm")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if pm.Instructions != "customized" {
		t.Fatalf("local edit overwritten: %q", pm.Instructions)
	}
}

func TestLoadRoster_missingDir(t *testing.T) {
	t.Parallel()
	r, err := LoadRoster(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("LoadRoster: %v", err)
	}
	if len(r.Names()) != 0 {
		t.Fatalf("expected empty roster, got %v", r.Names())
	}
	if _, err := r.Get("pm"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("Get from empty roster: got %v, want ErrNotFound", err)
	}
}

func TestAppendInstructions_persistsAcrossReload(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "agents")
	if err := WriteDefaults(dir); err != nil {
		t.Fatalf("WriteDefaults: %v", err)
	}
	r, err := LoadRoster(dir)
	if err != nil {
		t.Fatalf("LoadRoster: %v", err)
	}
	if err := r.AppendInstructions("backend_dev", "prefer table-driven tests"); err != nil {
		t.Fatalf("AppendInstructions: %v", err)
	}
	r2, err := LoadRoster(dir)
	if err != nil {
		t.Fatalf("LoadRoster reload: %v", err)
	}
	dev, err := r2.Get("backend_dev")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !strings.Contains(dev.FullInstructions(), "prefer table-driven tests") {
		t.Fatalf("amendment lost after reload: %q", dev.FullInstructions())
	}
}

func TestGet_returnsCopy(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "agents")
	if err := WriteDefaults(dir); err != nil {
		t.Fatalf("WriteDefaults: %v", err)
	}
	r, _ := LoadRoster(dir)
	before, _ := r.Get("sre")
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if err := r.AppendInstructions("sre", "rotate credentials"); err != nil {
				t.Errorf("AppendInstructions: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			cfg, err := r.Get("sre")
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			_ = cfg.FullInstructions()
		}
	}()
	wg.Wait()
	if before.AdditionalInstr != "" {
		t.Fatalf("earlier snapshot mutated: %q", before.AdditionalInstr)
	}
}

func TestAppendInstructions(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "agents")
	if err := WriteDefaults(dir); err != nil {
		t.Fatalf("WriteDefaults: %v", err)
	}
	r, _ := LoadRoster(dir)
	if err := r.AppendInstructions("sre", "always tag images"); err != nil {
		t.Fatalf("AppendInstructions: %v", err)
	}
	sre, _ := r.Get("sre")
	full := sre.FullInstructions()
	if full == sre.Instructions {
		t.Fatal("additional instructions not included")
	}
	if err := r.AppendInstructions("ghost", "x"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("AppendInstructions unknown: got %v, want ErrNotFound", err)
	}
}
