// Package agent defines the static configuration of each team member and the
// roster loaded from <home>/agents/<role>.yaml at startup.
package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/AlanyTan/sweteam/pkg/models"
)

// Config is one agent's static definition: the instructions sent to the
// reasoning service and the subset of tools the agent may call.
type Config struct {
	Name               string   `yaml:"name"`
	Instructions       string   `yaml:"instructions"`
	AdditionalInstr    string   `yaml:"additional_instructions,omitempty"`
	Temperature        float64  `yaml:"temperature"`
	Model              string   `yaml:"model,omitempty"`
	Tools              []string `yaml:"tools"`
	EvaluationCriteria string   `yaml:"evaluation_criteria,omitempty"`
}

// Roster holds the loaded agents keyed by name.
type Roster struct {
	mu     sync.RWMutex
	dir    string
	agents map[string]*Config
}

// LoadRoster reads every *.yaml under dir. An empty or missing dir yields an
// empty roster; callers typically seed defaults first via WriteDefaults.
func LoadRoster(dir string) (*Roster, error) {
	r := &Roster{dir: dir, agents: make(map[string]*Config)}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("read agents dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read agent config %s: %w", e.Name(), err)
		}
		var cfg Config
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse agent config %s: %w", e.Name(), err)
		}
		if cfg.Name == "" {
			cfg.Name = strings.TrimSuffix(e.Name(), ".yaml")
		}
		r.agents[cfg.Name] = &cfg
	}
	return r, nil
}

// Get returns a copy of the named agent's config, so callers can read it
// (FullInstructions included) while AppendInstructions mutates the roster.
func (r *Roster) Get(name string) (*Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: agent %q", models.ErrNotFound, name)
	}
	out := *cfg
	out.Tools = append([]string(nil), cfg.Tools...)
	return &out, nil
}

// Names returns the sorted agent names; this is the valid assignee set.
func (r *Roster) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for n := range r.agents {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is a known agent.
func (r *Roster) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[name]
	return ok
}

// AppendInstructions records extra instructions for an agent (fed to future
// runs), as written by the evaluate_agent tool, and writes the amended config
// back to its yaml file so the amendment survives a restart.
func (r *Roster) AppendInstructions(name, extra string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.agents[name]
	if !ok {
		return fmt.Errorf("%w: agent %q", models.ErrNotFound, name)
	}
	if cfg.AdditionalInstr != "" {
		cfg.AdditionalInstr += "\n"
	}
	cfg.AdditionalInstr += extra
	return r.save(cfg)
}

// save writes one agent config back to <dir>/<name>.yaml. Caller holds r.mu.
func (r *Roster) save(cfg *Config) error {
	if r.dir == "" {
		return nil
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode agent config %s: %w", cfg.Name, err)
	}
	if err := os.WriteFile(filepath.Join(r.dir, cfg.Name+".yaml"), data, 0o644); err != nil {
		return fmt.Errorf("write agent config %s: %w", cfg.Name, err)
	}
	return nil
}

// FullInstructions joins the base and accumulated additional instructions.
func (c *Config) FullInstructions() string {
	if c.AdditionalInstr == "" {
		return c.Instructions
	}
	return c.Instructions + "\n\n" + c.AdditionalInstr
}
