// Package config resolves the sweteam home directory and loads engine
// settings from <home>/config.yaml with environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AlanyTan/sweteam/pkg/models"
)

// Settings holds engine configuration. Zero values are filled from defaults;
// file values are overridden by SWETEAM_* environment variables.
type Settings struct {
	ProjectName   string `yaml:"project_name"`
	ProjectDir    string `yaml:"project_dir"`
	IssueBoardDir string `yaml:"issue_board_dir"`
	PlanFile      string `yaml:"plan_file"`

	PollInterval   time.Duration `yaml:"poll_interval"`
	MaxPolls       int           `yaml:"max_polls"`
	PollRetries    int           `yaml:"poll_retries"`
	ChatDepthLimit int           `yaml:"chat_depth_limit"`
	RetryCount     int           `yaml:"retry_count"`

	Runtime string `yaml:"runtime"`
	APIBase string `yaml:"api_base"`
	APIKey  string `yaml:"-"`
	Model   string `yaml:"model"`

	ListenAddr string `yaml:"listen_addr"`
}

// Default returns settings for a project rooted at home.
func Default(home string) Settings {
	return Settings{
		ProjectName:    "sweteam",
		ProjectDir:     filepath.Join(home, "project"),
		IssueBoardDir:  filepath.Join(home, "issue_board"),
		PlanFile:       filepath.Join(home, "project", "dir_structure.yaml"),
		PollInterval:   models.DefaultPollIntervalMillis * time.Millisecond,
		MaxPolls:       models.DefaultMaxPolls,
		PollRetries:    models.DefaultPollRetries,
		ChatDepthLimit: models.DefaultChatDepthLimit,
		RetryCount:     3,
		Runtime:        "stub",
		APIBase:        "https://api.openai.com/v1",
		Model:          "gpt-4o-mini",
		ListenAddr:     "127.0.0.1:8790",
	}
}

// Load reads <home>/config.yaml if present, layers it over defaults, then
// applies environment overrides. A missing file is not an error.
func Load(home string) (Settings, error) {
	s := Default(home)
	path := filepath.Join(home, "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return s, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse %s: %w", path, err)
	}
	applyEnv(&s)
	if !filepath.IsAbs(s.IssueBoardDir) {
		s.IssueBoardDir = filepath.Join(home, s.IssueBoardDir)
	}
	if !filepath.IsAbs(s.ProjectDir) {
		s.ProjectDir = filepath.Join(home, s.ProjectDir)
	}
	if !filepath.IsAbs(s.PlanFile) {
		s.PlanFile = filepath.Join(s.ProjectDir, s.PlanFile)
	}
	return s, nil
}

// Save writes settings to <home>/config.yaml, creating home if needed.
func Save(home string, s Settings) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return fmt.Errorf("create home: %w", err)
	}
	data, err := yaml.Marshal(&s)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(home, "config.yaml"), data, 0o644)
}

func applyEnv(s *Settings) {
	if v := os.Getenv("SWETEAM_PROJECT_NAME"); v != "" {
		s.ProjectName = v
	}
	if v := os.Getenv("SWETEAM_RUNTIME"); v != "" {
		s.Runtime = v
	}
	if v := os.Getenv("SWETEAM_API_BASE"); v != "" {
		s.APIBase = v
	}
	if v := os.Getenv("SWETEAM_API_KEY"); v != "" {
		s.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		s.APIKey = v
	}
	if v := os.Getenv("SWETEAM_MODEL"); v != "" {
		s.Model = v
	}
	if v := os.Getenv("SWETEAM_LISTEN_ADDR"); v != "" {
		s.ListenAddr = v
	}
	if v := os.Getenv("SWETEAM_RETRY_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			s.RetryCount = n
		}
	}
	if v := os.Getenv("SWETEAM_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			s.PollInterval = d
		}
	}
}
