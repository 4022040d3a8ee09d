// Package orchestrator decides which agent works on which issue, opens runs
// for them, and routes inter-agent chat. It is the only component that
// re-enters the run layer, so the chat nesting bound lives here.
package orchestrator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AlanyTan/sweteam/internal/agent"
	"github.com/AlanyTan/sweteam/internal/agent/runtime"
	"github.com/AlanyTan/sweteam/internal/config"
	"github.com/AlanyTan/sweteam/internal/dirplan"
	"github.com/AlanyTan/sweteam/internal/events"
	"github.com/AlanyTan/sweteam/internal/exec"
	"github.com/AlanyTan/sweteam/internal/issue"
	"github.com/AlanyTan/sweteam/internal/otel"
	"github.com/AlanyTan/sweteam/internal/run"
	"github.com/AlanyTan/sweteam/internal/tools"
	"github.com/AlanyTan/sweteam/pkg/models"
)

// Auditor extends the run auditor with evaluation records.
type Auditor interface {
	run.Auditor
	RecordEvaluation(ctx context.Context, ev models.AgentEvaluation) error
}

// Orchestrator wires the roster, ledger, plan, and executor into runs. All
// fields except Settings, Roster, Ledger, and Service are optional.
type Orchestrator struct {
	Settings config.Settings
	Roster   *agent.Roster
	Ledger   *issue.Ledger
	Plan     *dirplan.Plan
	Executor *exec.Executor
	Service  runtime.Service
	Hub      *events.Hub
	Audit    Auditor

	// Stdin and Stdout carry the get_human_input exchange; they default to
	// the process streams.
	Stdin  io.Reader
	Stdout io.Writer
}

func (o *Orchestrator) depthLimit() int {
	if o.Settings.ChatDepthLimit > 0 {
		return o.Settings.ChatDepthLimit
	}
	return models.DefaultChatDepthLimit
}

func (o *Orchestrator) retryCount() int {
	if o.Settings.RetryCount > 0 {
		return o.Settings.RetryCount
	}
	return 1
}

// manager builds a run manager whose tool registry acts on behalf of the
// named agent.
func (o *Orchestrator) manager(agentName string) *run.Manager {
	reg := tools.NewStandardRegistry(tools.Deps{
		Caller:     agentName,
		ProjectDir: o.Settings.ProjectDir,
		Ledger:     o.Ledger,
		Plan:       o.Plan,
		Executor:   o.Executor,
		Chat:       o.Chat,
		HumanInput: o.HumanInput,
		Evaluate:   o.Evaluate,
	})
	var audit run.Auditor
	if o.Audit != nil {
		audit = o.Audit
	}
	return &run.Manager{
		Service:      o.Service,
		Registry:     reg,
		Hub:          o.Hub,
		Audit:        audit,
		PollInterval: o.Settings.PollInterval,
		MaxPolls:     o.Settings.MaxPolls,
		PollRetries:  o.Settings.PollRetries,
	}
}

// Invoke runs one agent turn for the named agent and returns the outcome.
func (o *Orchestrator) Invoke(ctx context.Context, agentName, message string) (models.RunOutcome, error) {
	cfg, err := o.Roster.Get(agentName)
	if err != nil {
		return models.RunOutcome{}, err
	}
	model := cfg.Model
	if model == "" {
		model = o.Settings.Model
	}
	return o.manager(agentName).Execute(ctx, run.Request{
		Agent:        agentName,
		Model:        model,
		Instructions: cfg.FullInstructions(),
		Message:      message,
		Temperature:  cfg.Temperature,
		AllowedTools: cfg.Tools,
	})
}

// Chat relays a message from one agent to another as a nested, synchronous
// run. Nesting beyond the configured depth returns ErrRecursionLimit instead
// of recursing further.
func (o *Orchestrator) Chat(ctx context.Context, agentName, message, issueID string) (string, error) {
	depth := chatDepth(ctx) + 1
	otel.RecordChatDepth(ctx, agentName, depth)
	if depth > o.depthLimit() {
		return "", fmt.Errorf("%w: chat with %s would nest %d levels deep (limit %d)",
			models.ErrRecursionLimit, agentName, depth, o.depthLimit())
	}
	if !o.Roster.Has(agentName) {
		return "", fmt.Errorf("%w: agent %s", models.ErrNotFound, agentName)
	}
	if issueID != "" {
		message = fmt.Sprintf("Regarding issue %s: %s", issueID, message)
	}
	if o.Hub != nil {
		o.Hub.Publish(models.Event{Type: models.EventAgentChat, Agent: agentName, IssueID: issueID})
	}
	slog.Info("agent chat", "to", agentName, "depth", depth, "issue", issueID)
	out, err := o.Invoke(withChatDepth(ctx, depth), agentName, message)
	if err != nil {
		return "", err
	}
	return out.Message, nil
}

// HumanInput prompts the operator and blocks for one line of input.
func (o *Orchestrator) HumanInput(ctx context.Context, prompt string) (string, error) {
	in, out := o.Stdin, o.Stdout
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	if _, err := fmt.Fprintf(out, "\n[agent question] %s\n> ", prompt); err != nil {
		return "", err
	}
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := bufio.NewReader(in).ReadString('\n')
		ch <- result{strings.TrimRight(line, "\r\n"), err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil && r.line == "" {
			return "", fmt.Errorf("read human input: %w", r.err)
		}
		return r.line, nil
	}
}

// Evaluate records a peer score for an agent on the evaluator's behalf.
// Extra instructions are folded into the agent's configuration so later runs
// see them.
func (o *Orchestrator) Evaluate(ctx context.Context, evaluator, agentName string, score int, additional string) error {
	if !o.Roster.Has(agentName) {
		return fmt.Errorf("%w: agent %s", models.ErrNotFound, agentName)
	}
	if additional != "" {
		if err := o.Roster.AppendInstructions(agentName, additional); err != nil {
			return err
		}
	}
	slog.Info("agent evaluated", "agent", agentName, "evaluator", evaluator, "score", score)
	if o.Audit != nil {
		return o.Audit.RecordEvaluation(ctx, models.AgentEvaluation{
			Agent:     agentName,
			Evaluator: evaluator,
			Score:     score,
			Feedback:  additional,
			CreatedAt: time.Now(),
		})
	}
	return nil
}

// NextIssue picks the most urgent open issue: lowest priority rank first,
// ties broken by numeric identifier order. Returns nil when nothing is open.
func (o *Orchestrator) NextIssue() (*models.IssueSummary, error) {
	open, err := o.Ledger.ListAll("", []string{models.IssueStatusNew, models.IssueStatusInProgress}, "")
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, nil
	}
	sortByUrgency(open)
	sum := open[0]
	return &sum, nil
}

func sortByUrgency(sums []models.IssueSummary) {
	sort.SliceStable(sums, func(i, j int) bool {
		ri, rj := priorityRank(sums[i].Priority), priorityRank(sums[j].Priority)
		if ri != rj {
			return ri < rj
		}
		return lessIssueID(sums[i].ID, sums[j].ID)
	})
}

// ProcessIssue drives one issue: ensures it has an assignee, runs that agent,
// and records the outcome as an update entry. Run failures are retried a
// bounded number of times; exhausting retries marks the issue blocked.
func (o *Orchestrator) ProcessIssue(ctx context.Context, sum models.IssueSummary) error {
	assignee := sum.Assignee
	if assignee == "" || !o.Roster.Has(assignee) {
		assignee = models.RolePM
		if _, err := o.Ledger.Assign(sum.ID, assignee, "orchestrator"); err != nil {
			return fmt.Errorf("assign issue %s: %w", sum.ID, err)
		}
	}
	iss, err := o.Ledger.Read(sum.ID)
	if err != nil {
		return err
	}
	message := issueBrief(iss)

	var lastErr error
	for attempt := 0; attempt <= o.retryCount(); attempt++ {
		out, err := o.Invoke(ctx, assignee, message)
		if err == nil {
			_, uerr := o.Ledger.Update(sum.ID, models.IssueUpdate{
				Author:  assignee,
				Details: clip(out.Message, 2000),
			})
			o.publishIssue(sum.ID)
			return uerr
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		slog.Warn("issue run failed", "issue", sum.ID, "agent", assignee, "attempt", attempt+1, "err", err)
	}

	if _, uerr := o.Ledger.Update(sum.ID, models.IssueUpdate{
		Author:  "orchestrator",
		Status:  models.IssueStatusBlocked,
		Details: fmt.Sprintf("blocked after %d failed runs: %v", o.retryCount()+1, lastErr),
	}); uerr != nil {
		return errors.Join(lastErr, uerr)
	}
	o.publishIssue(sum.ID)
	return lastErr
}

// Step processes the next open issue. It reports whether any work was found.
func (o *Orchestrator) Step(ctx context.Context) (bool, error) {
	sum, err := o.NextIssue()
	if err != nil {
		return false, err
	}
	if sum == nil {
		return false, nil
	}
	return true, o.ProcessIssue(ctx, *sum)
}

// Run makes one pass over the open issues in priority order, giving each a
// single agent turn. It reports how many issues were worked; an issue that
// fails or blocks is logged and does not stop the pass. Callers drive repeat
// passes on their own schedule.
func (o *Orchestrator) Run(ctx context.Context) (int, error) {
	open, err := o.Ledger.ListAll("", []string{models.IssueStatusNew, models.IssueStatusInProgress}, "")
	if err != nil {
		return 0, err
	}
	sortByUrgency(open)
	worked := 0
	for _, sum := range open {
		if err := ctx.Err(); err != nil {
			return worked, err
		}
		if err := o.ProcessIssue(ctx, sum); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return worked, err
			}
			slog.Error("issue processing failed, continuing", "issue", sum.ID, "err", err)
		}
		worked++
	}
	return worked, nil
}

func (o *Orchestrator) publishIssue(id string) {
	if o.Hub != nil {
		o.Hub.Publish(models.Event{Type: models.EventIssueChanged, IssueID: id})
	}
}

// issueBrief renders the issue as the opening message of a run.
func issueBrief(iss models.Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are assigned issue %s: %s\n", iss.ID, iss.Title)
	if iss.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", iss.Description)
	}
	fmt.Fprintf(&b, "Current status: %s, priority: %s.\n", iss.Status, iss.Priority)
	if n := len(iss.Updates); n > 0 {
		last := iss.Updates[n-1]
		fmt.Fprintf(&b, "Latest update by %s: %s\n", last.Author, last.Details)
	}
	b.WriteString("Work the issue with your tools and record progress with issue_manager updates.")
	return b.String()
}

// priorityRank extracts the leading rank digit of a "N - Word" priority;
// unrecognized values sort last.
func priorityRank(p string) int {
	p = models.NormalizePriority(p)
	if i := strings.Index(p, " "); i > 0 {
		if n, err := strconv.Atoi(p[:i]); err == nil {
			return n
		}
	}
	return 9
}

// lessIssueID orders identifiers by their numeric path segments, so "2"
// precedes "10" and "1/2" precedes "1/10".
func lessIssueID(a, b string) bool {
	as, bs := strings.Split(a, "/"), strings.Split(b, "/")
	for i := 0; i < len(as) && i < len(bs); i++ {
		na, _ := strconv.Atoi(as[i])
		nb, _ := strconv.Atoi(bs[i])
		if na != nb {
			return na < nb
		}
	}
	return len(as) < len(bs)
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
