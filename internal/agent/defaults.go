package agent

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/AlanyTan/sweteam/pkg/models"
)

// standardTools is the tool set every agent receives.
var standardTools = []string{
	"read_file",
	"apply_unified_diff",
	"overwrite_file",
	"execute_module",
	"execute_command",
	"issue_manager",
	"dir_structure",
	"chat_with_other_agent",
	"evaluate_agent",
}

func withTools(extra ...string) []string {
	out := make([]string, 0, len(standardTools)+len(extra))
	out = append(out, standardTools...)
	out = append(out, extra...)
	return out
}

// Defaults returns the built-in team definition. Instructions describe each
// role's slice of the issue workflow; the pm alone may ask the human.
func Defaults() []Config {
	return []Config{
		{
			Name: models.RolePM,
			Instructions: "You are the product manager. Analyze software feature requirements from the user, " +
				"break each request into smaller, more specific sub-issues covering requirement refinement, " +
				"architecture, UI design, backend and frontend coding, packaging and deployment. " +
				"Track every piece of work as an issue and assign each issue to the agent responsible for it.",
			Temperature:        0.3,
			Tools:              withTools("get_human_input"),
			EvaluationCriteria: "Sub-issues are specific, non-overlapping, and together cover the request.",
		},
		{
			Name: models.RoleArchitect,
			Instructions: "You are the software architect. For a given issue, decide the technology to use and " +
				"the directory structure of files to create or update. Record the plan with the dir_structure " +
				"tool before any code is written. If the issue is not specific enough, help the pm break it " +
				"into more specific sub-issues.",
			Temperature:        0.2,
			Tools:              standardTools,
			EvaluationCriteria: "The planned structure is minimal, consistent, and covers the issue.",
		},
		{
			Name: models.RoleBackendDev,
			Instructions: "You are the backend developer. Develop backend code that serves the API and realizes " +
				"core business functionality, including business logic and data persistence. Apply changes with " +
				"apply_unified_diff and verify them with execute_module or execute_command before updating the issue.",
			Temperature:        0.2,
			Tools:              standardTools,
			EvaluationCriteria: "Code runs, tests pass, and the issue is updated with what changed.",
		},
		{
			Name: models.RoleFrontendDev,
			Instructions: "You are the frontend developer. Develop the web frontend that serves the user " +
				"interface and calls the backend API to fulfill user interactions. Keep created files in line " +
				"with the directory plan.",
			Temperature:        0.3,
			Tools:              standardTools,
			EvaluationCriteria: "UI code matches the plan and calls the backend API correctly.",
		},
		{
			Name: models.RoleSRE,
			Instructions: "You are the site reliability engineer. Package the software as a container, test the " +
				"packaged build, and deploy it as the issue specifies. Prefer unattended command invocations and " +
				"report results back on the issue.",
			Temperature:        0.1,
			Tools:              standardTools,
			EvaluationCriteria: "Builds are reproducible and deployment steps are recorded on the issue.",
		},
	}
}

// WriteDefaults writes the built-in team to dir, skipping roles whose file
// already exists so local edits survive restarts.
func WriteDefaults(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create agents dir: %w", err)
	}
	for _, cfg := range Defaults() {
		path := filepath.Join(dir, cfg.Name+".yaml")
		if _, err := os.Stat(path); err == nil {
			continue
		}
		data, err := yaml.Marshal(&cfg)
		if err != nil {
			return fmt.Errorf("encode agent %s: %w", cfg.Name, err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write agent %s: %w", cfg.Name, err)
		}
	}
	return nil
}
