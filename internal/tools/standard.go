package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AlanyTan/sweteam/internal/dirplan"
	"github.com/AlanyTan/sweteam/internal/exec"
	"github.com/AlanyTan/sweteam/internal/issue"
	"github.com/AlanyTan/sweteam/internal/otel"
	"github.com/AlanyTan/sweteam/internal/patch"
	"github.com/AlanyTan/sweteam/pkg/models"
)

// ChatFunc relays a message to another agent and returns its reply. The
// implementation enforces the nesting bound.
type ChatFunc func(ctx context.Context, agentName, message, issueID string) (string, error)

// HumanInputFunc asks the human operator a question and returns the answer.
type HumanInputFunc func(ctx context.Context, prompt string) (string, error)

// EvalFunc records a score and optional extra instructions for an agent;
// evaluator names who issued the judgment.
type EvalFunc func(ctx context.Context, evaluator, agentName string, score int, additional string) error

// Deps collects the collaborators the standard tool set operates on. Caller
// is the agent name on whose behalf calls execute (issue authorship, chat
// sender).
type Deps struct {
	Caller     string
	ProjectDir string
	Ledger     *issue.Ledger
	Plan       *dirplan.Plan
	Executor   *exec.Executor
	Chat       ChatFunc
	HumanInput HumanInputFunc
	Evaluate   EvalFunc
}

// NewStandardRegistry builds the full tool set over deps.
func NewStandardRegistry(d Deps) *Registry {
	r := NewRegistry()
	r.MustRegister(readFileTool(d))
	r.MustRegister(overwriteFileTool(d))
	r.MustRegister(applyUnifiedDiffTool(d))
	r.MustRegister(executeModuleTool(d))
	r.MustRegister(executeCommandTool(d))
	r.MustRegister(issueManagerTool(d))
	r.MustRegister(dirStructureTool(d))
	if d.Chat != nil {
		r.MustRegister(chatWithOtherAgentTool(d))
	}
	if d.HumanInput != nil {
		r.MustRegister(getHumanInputTool(d))
	}
	if d.Evaluate != nil {
		r.MustRegister(evaluateAgentTool(d))
	}
	return r
}

// resolvePath confines a tool-supplied path to the project directory.
func resolvePath(projectDir, p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: empty file path", models.ErrValidation)
	}
	full := filepath.Join(projectDir, filepath.FromSlash(p))
	rel, err := filepath.Rel(projectDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path %q escapes the project directory", models.ErrValidation, p)
	}
	return full, nil
}

func jsonOut(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode tool output: %w", err)
	}
	return string(b), nil
}

func readFileTool(d Deps) *Tool {
	return &Tool{
		Name:        "read_file",
		Description: "Read a file from the project so its current content can be analyzed.",
		Schema: Schema{
			Required: []string{"filepath"},
			Properties: map[string]Property{
				"filepath": {Type: "string", Description: "The path of the file to be read, relative to the project root."},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			path, err := resolvePath(d.ProjectDir, StringArg(args, "filepath", ""))
			if err != nil {
				return "", err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					return "", fmt.Errorf("%w: file %s", models.ErrNotFound, StringArg(args, "filepath", ""))
				}
				return "", fmt.Errorf("read %s: %w", path, err)
			}
			return jsonOut(map[string]string{"content": string(data)})
		},
	}
}

func overwriteFileTool(d Deps) *Tool {
	return &Tool{
		Name:        "overwrite_file",
		Description: "Write content to a file; if the file exists it is overwritten only when force is set.",
		Schema: Schema{
			Required: []string{"filename", "content"},
			Properties: map[string]Property{
				"filename": {Type: "string", Description: "The relative path from the project root to the file to be written."},
				"content":  {Type: "string", Description: "The content to be written to the file."},
				"force":    {Type: "boolean", Description: "If the file already exists, overwrite it only when true."},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			path, err := resolvePath(d.ProjectDir, StringArg(args, "filename", ""))
			if err != nil {
				return "", err
			}
			if _, statErr := os.Stat(path); statErr == nil && !BoolArg(args, "force", false) {
				return "", fmt.Errorf("%w: file %s exists; set force to overwrite", models.ErrValidation, StringArg(args, "filename", ""))
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return "", fmt.Errorf("create parent dir: %w", err)
			}
			if err := os.WriteFile(path, []byte(StringArg(args, "content", "")), 0o644); err != nil {
				return "", fmt.Errorf("write %s: %w", path, err)
			}
			return jsonOut(map[string]string{"status": "success", "file": StringArg(args, "filename", "")})
		},
	}
}

func applyUnifiedDiffTool(d Deps) *Tool {
	return &Tool{
		Name:        "apply_unified_diff",
		Description: "Update a text file by applying unified diff hunks; a missing file is created when the diff only adds lines.",
		Schema: Schema{
			Required: []string{"filepath", "diffs"},
			Properties: map[string]Property{
				"filepath": {Type: "string", Description: "The path of the file to be updated, relative to the project root."},
				"diffs":    {Type: "string", Description: "The unified diff hunks to apply to the file."},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			path, err := resolvePath(d.ProjectDir, StringArg(args, "filepath", ""))
			if err != nil {
				return "", err
			}
			if err := patch.ApplyToFile(path, StringArg(args, "diffs", "")); err != nil {
				return "", err
			}
			return jsonOut(map[string]string{"status": "success", "file": StringArg(args, "filepath", "")})
		},
	}
}

func executeModuleTool(d Deps) *Tool {
	return &Tool{
		Name:        "execute_module",
		Description: "Execute a module, or a function within it when method_name is provided, and return its output.",
		Schema: Schema{
			Required: []string{"module_name"},
			Properties: map[string]Property{
				"module_name": {Type: "string", Description: "The module to execute or that contains the function to execute."},
				"method_name": {Type: "string", Description: "The function or method to be executed."},
				"args":        {Type: "array", Description: "Positional arguments for this run.", Items: &Property{Type: "string"}},
				"kwargs":      {Type: "object", Description: "Named arguments for this run."},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			res, err := d.Executor.RunModule(ctx,
				StringArg(args, "module_name", ""),
				StringArg(args, "method_name", ""),
				StringSliceArg(args, "args"),
				MapArg(args, "kwargs"))
			if err != nil {
				return "", err
			}
			return jsonOut(res)
		},
	}
}

func executeCommandTool(d Deps) *Tool {
	return &Tool{
		Name:        "execute_command",
		Description: "Execute an external command and return its output. Use asynchronous for long-running commands to avoid timeouts.",
		Schema: Schema{
			Required: []string{"command"},
			Properties: map[string]Property{
				"command":      {Type: "string", Description: "The external command to execute, for example 'sh' or 'mv'."},
				"args":         {Type: "array", Description: "Positional arguments passed to the command.", Items: &Property{Type: "string"}},
				"asynchronous": {Type: "boolean", Description: "If true, run in the background and return immediately with the process id."},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			res, err := d.Executor.RunCommand(ctx,
				StringArg(args, "command", ""),
				StringSliceArg(args, "args"),
				BoolArg(args, "asynchronous", false))
			if err != nil {
				return "", err
			}
			return jsonOut(res)
		},
	}
}

func issueManagerTool(d Deps) *Tool {
	return &Tool{
		Name:        "issue_manager",
		Description: "List, create, read, update, and assign issues so work is tracked without duplicates and every agent knows what it owns.",
		Schema: Schema{
			Required: []string{"action"},
			Properties: map[string]Property{
				"action":        {Type: "string", Description: "The action to perform on the issue.", Enum: []string{"create", "update", "read", "list", "assign"}},
				"issue":         {Type: "string", Description: "The issue number. Omitted on list it lists all issues; omitted on create it creates a new root issue."},
				"only_in_state": {Type: "array", Description: "Status filter for list; empty means no filter.", Items: &Property{Type: "string"}},
				"content":       {Type: "string", Description: "A stringified JSON object or YAML string written to the issue on create or update."},
				"assignee":      {Type: "string", Description: "Who this issue is assigned to."},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			action := StringArg(args, "action", "")
			id := StringArg(args, "issue", "")
			out, err := d.runIssueAction(ctx, action, id, args)
			if err != nil {
				otel.RecordIssueOp(ctx, action, "error")
				return "", err
			}
			otel.RecordIssueOp(ctx, action, "ok")
			return out, nil
		},
	}
}

func (d Deps) runIssueAction(ctx context.Context, action, id string, args map[string]any) (string, error) {
	switch action {
	case "list":
		sums, err := d.Ledger.List(id, StringSliceArg(args, "only_in_state"), StringArg(args, "assignee", ""))
		if err != nil {
			return "", err
		}
		return jsonOut(sums)
	case "create":
		draft := issue.ParseContent(StringArg(args, "content", ""), true)
		if draft.Update.Author == "" {
			draft.Update.Author = d.Caller
		}
		if a := StringArg(args, "assignee", ""); a != "" {
			draft.Update.Assignee = a
		}
		iss, err := d.Ledger.Create(id, draft.Title, draft.Description, draft.Update, draft.Prerequisites...)
		if err != nil {
			return "", err
		}
		return jsonOut(map[string]string{"issue": iss.ID, "status": "success",
			"message": fmt.Sprintf("issue %s created successfully.", iss.ID)})
	case "read":
		iss, err := d.Ledger.Read(id)
		if err != nil {
			return "", err
		}
		return jsonOut(iss)
	case "update":
		draft := issue.ParseContent(StringArg(args, "content", ""), false)
		if draft.Update.Author == "" {
			draft.Update.Author = d.Caller
		}
		if _, err := d.Ledger.Update(id, draft.Update); err != nil {
			return "", err
		}
		return jsonOut(map[string]string{"issue": id, "status": "success"})
	case "assign":
		if _, err := d.Ledger.Assign(id, StringArg(args, "assignee", ""), d.Caller); err != nil {
			return "", err
		}
		return jsonOut(map[string]string{"issue": id, "status": "success",
			"message": fmt.Sprintf("Assigned to %s successfully.", StringArg(args, "assignee", ""))})
	default:
		return "", fmt.Errorf("%w: unknown action %q, only list/create/read/update/assign are valid", models.ErrValidation, action)
	}
}

func dirStructureTool(d Deps) *Tool {
	return &Tool{
		Name:        "dir_structure",
		Description: "Return or update the project directory plan. Updating records intent only; files are created by the file tools.",
		Schema: Schema{
			Properties: map[string]Property{
				"action":        {Type: "string", Description: "'read' returns the plan compared with the actual tree; 'update' merges new planned entries.", Enum: []string{"read", "update"}},
				"path":          {Type: "object", Description: "On update, an object describing the planned directory structure."},
				"actual_only":   {Type: "boolean", Description: "On read, return only directories and files that actually exist."},
				"output_format": {Type: "string", Description: "'yaml' (default) returns the full tree with metadata; 'csv' returns file_path,file_description rows.", Enum: []string{"yaml", "csv"}},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			switch StringArg(args, "action", "read") {
			case "update":
				obj := MapArg(args, "path")
				if obj == nil {
					return "", fmt.Errorf("%w: update requires a path object", models.ErrValidation)
				}
				if err := d.Plan.UpdateFromMap(obj); err != nil {
					return "", err
				}
				return jsonOut(map[string]string{"status": "success"})
			default:
				root, err := d.Plan.Read(BoolArg(args, "actual_only", false))
				if err != nil {
					return "", err
				}
				return dirplan.Render(root, StringArg(args, "output_format", dirplan.FormatYAML))
			}
		},
	}
}

func chatWithOtherAgentTool(d Deps) *Tool {
	return &Tool{
		Name:        "chat_with_other_agent",
		Description: "Discuss an issue with another agent: refine requirements with the architect, ask a developer to write code, or hand off deployment to the sre.",
		Schema: Schema{
			Required: []string{"agent_name", "message"},
			Properties: map[string]Property{
				"agent_name": {Type: "string", Description: "The agent to talk to."},
				"message":    {Type: "string", Description: "The message or instruction to send."},
				"issue":      {Type: "string", Description: "The issue number this message is about, for context."},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			reply, err := d.Chat(ctx,
				StringArg(args, "agent_name", ""),
				StringArg(args, "message", ""),
				StringArg(args, "issue", ""))
			if err != nil {
				return "", err
			}
			return jsonOut(map[string]string{"reply": reply})
		},
	}
}

func getHumanInputTool(d Deps) *Tool {
	return &Tool{
		Name:        "get_human_input",
		Description: "Ask the human operator for the initial requirement or a follow-up clarification.",
		Schema: Schema{
			Required: []string{"prompt"},
			Properties: map[string]Property{
				"prompt": {Type: "string", Description: "The clarification needed from the human."},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			answer, err := d.HumanInput(ctx, StringArg(args, "prompt", ""))
			if err != nil {
				return "", err
			}
			return jsonOut(map[string]string{"answer": answer})
		},
	}
}

func evaluateAgentTool(d Deps) *Tool {
	return &Tool{
		Name:        "evaluate_agent",
		Description: "Score another agent's response; negative scores penalize, positive scores reward, and additional instructions shape its future prompts.",
		Schema: Schema{
			Required: []string{"agent_name"},
			Properties: map[string]Property{
				"agent_name":              {Type: "string", Description: "The agent being evaluated."},
				"score":                   {Type: "number", Description: "0 for as-expected, positive above expectation, negative below."},
				"additional_instructions": {Type: "string", Description: "Optional extra instructions for the agent's future prompts."},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			score := 0
			if v, ok := args["score"].(float64); ok {
				score = int(v)
			}
			if err := d.Evaluate(ctx, d.Caller, StringArg(args, "agent_name", ""), score, StringArg(args, "additional_instructions", "")); err != nil {
				return "", err
			}
			return jsonOut(map[string]string{"status": "success"})
		},
	}
}
