// Package issue implements the file-backed issue board. Every issue is one
// JSON document at <board>/<id path>/<id dotted>.json; sub-issues nest inside
// their parent's directory. History is append-only: status, priority, and
// assignee are always derived from the latest update entry carrying the field.
package issue

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/AlanyTan/sweteam/pkg/models"
)

// Ledger manages the issue board directory. All writes to a given issue are
// serialized through a per-issue lock; id allocation holds a board-wide lock
// so concurrent creates never mint the same number.
type Ledger struct {
	dir string

	allocMu sync.Mutex

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLedger opens (creating if needed) the board rooted at dir.
func NewLedger(dir string) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create issue board: %w", err)
	}
	return &Ledger{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

// Dir returns the board root directory.
func (l *Ledger) Dir() string { return l.dir }

func (l *Ledger) lockFor(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

// validID reports whether id is a "/"-separated chain of positive integers.
// The empty string is valid where a parent id is optional.
func validID(id string) bool {
	if id == "" {
		return true
	}
	for _, seg := range strings.Split(id, "/") {
		n, err := strconv.Atoi(seg)
		if err != nil || n < 1 || strconv.Itoa(n) != seg {
			return false
		}
	}
	return true
}

// issuePath returns the JSON document path for id.
func (l *Ledger) issuePath(id string) string {
	return filepath.Join(l.dir, filepath.FromSlash(id), strings.ReplaceAll(id, "/", ".")+".json")
}

// Create allocates the next number under parent ("" for a root issue), seeds
// the first history entry, and writes the document. The returned issue carries
// the allocated id.
func (l *Ledger) Create(parent string, title, description string, upd models.IssueUpdate, prerequisites ...string) (models.Issue, error) {
	if !validID(parent) {
		return models.Issue{}, fmt.Errorf("%w: invalid parent issue id %q", models.ErrValidation, parent)
	}
	if parent != "" {
		if _, err := os.Stat(l.issuePath(parent)); err != nil {
			return models.Issue{}, fmt.Errorf("%w: parent issue %s", models.ErrNotFound, parent)
		}
	}

	l.allocMu.Lock()
	defer l.allocMu.Unlock()

	parentDir := filepath.Join(l.dir, filepath.FromSlash(parent))
	next, err := l.nextNumber(parent, parentDir)
	if err != nil {
		return models.Issue{}, err
	}
	id := strconv.Itoa(next)
	if parent != "" {
		id = parent + "/" + id
	}

	now := time.Now()
	if upd.Author == "" {
		upd.Author = "unknown"
	}
	if upd.UpdatedAt.IsZero() {
		upd.UpdatedAt = now
	}
	if upd.Status == "" {
		upd.Status = models.IssueStatusNew
	}
	upd.Status = models.NormalizeIssueStatus(upd.Status)
	if upd.Priority == "" {
		upd.Priority = models.PriorityLow
	}
	upd.Priority = models.NormalizePriority(upd.Priority)
	if upd.Assignee == "" {
		upd.Assignee = upd.Author
	}
	if upd.Details == "" {
		upd.Details = "create new issue."
	}

	iss := models.Issue{
		ID:            id,
		Title:         title,
		Description:   description,
		Prerequisites: prerequisites,
		CreatedAt:     now,
		Updates:       []models.IssueUpdate{upd},
	}
	derive(&iss)

	if err := os.MkdirAll(filepath.Join(l.dir, filepath.FromSlash(id)), 0o755); err != nil {
		return models.Issue{}, fmt.Errorf("create issue dir: %w", err)
	}
	if err := l.write(id, iss); err != nil {
		return models.Issue{}, err
	}
	slog.Info("issue created", "issue", id, "title", title, "assignee", upd.Assignee)
	return iss, nil
}

// nextNumber scans parentDir for numbered sub-issue directories that contain
// their canonical document and returns max+1. Caller holds allocMu.
func (l *Ledger) nextNumber(parent, parentDir string) (int, error) {
	entries, err := os.ReadDir(parentDir)
	if err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("scan issue board: %w", err)
	}
	max := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		n, err := strconv.Atoi(e.Name())
		if err != nil || n < 1 {
			continue
		}
		child := e.Name()
		if parent != "" {
			child = parent + "/" + child
		}
		if _, err := os.Stat(l.issuePath(child)); err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max + 1, nil
}

// Read loads an issue and refreshes its derived status, priority, and
// assignee from the update history.
func (l *Ledger) Read(id string) (models.Issue, error) {
	if id == "" || !validID(id) {
		return models.Issue{}, fmt.Errorf("%w: invalid issue id %q", models.ErrValidation, id)
	}
	data, err := os.ReadFile(l.issuePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return models.Issue{}, fmt.Errorf("%w: issue %s", models.ErrNotFound, id)
		}
		return models.Issue{}, fmt.Errorf("read issue %s: %w", id, err)
	}
	var iss models.Issue
	if err := json.Unmarshal(data, &iss); err != nil {
		return models.Issue{}, fmt.Errorf("decode issue %s: %w", id, err)
	}
	iss.ID = id
	derive(&iss)
	return iss, nil
}

// Update appends one history entry. Completed issues reject further updates;
// callers should open a sub-issue instead.
func (l *Ledger) Update(id string, upd models.IssueUpdate) (models.Issue, error) {
	if id == "" || !validID(id) {
		return models.Issue{}, fmt.Errorf("%w: invalid issue id %q", models.ErrValidation, id)
	}
	mu := l.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	iss, err := l.Read(id)
	if err != nil {
		return models.Issue{}, err
	}
	if iss.Status == models.IssueStatusCompleted {
		return models.Issue{}, fmt.Errorf("%w: issue %s is already completed, create a sub-issue for further work", models.ErrValidation, id)
	}
	if upd.Author == "" {
		upd.Author = "unknown"
	}
	if upd.UpdatedAt.IsZero() {
		upd.UpdatedAt = time.Now()
	}
	upd.Status = models.NormalizeIssueStatus(upd.Status)
	upd.Priority = models.NormalizePriority(upd.Priority)

	iss.Updates = append(iss.Updates, upd)
	derive(&iss)
	if err := l.write(id, iss); err != nil {
		return models.Issue{}, err
	}
	slog.Info("issue updated", "issue", id, "status", iss.Status, "by", upd.Author)
	return iss, nil
}

// Assign appends an assignment entry. Assignee validation against the agent
// roster is the caller's concern.
func (l *Ledger) Assign(id, assignee, author string) (models.Issue, error) {
	if assignee == "" {
		assignee = author
	}
	return l.Update(id, models.IssueUpdate{
		Author:   author,
		Assignee: assignee,
		Details:  fmt.Sprintf("assign #%s to %s.", id, assignee),
	})
}

// List returns summaries of direct children only: the root issues when parent
// is empty, otherwise the direct sub-issues of parent. Status filters tolerate
// the "in process" variant.
func (l *Ledger) List(parent string, states []string, assignee string) ([]models.IssueSummary, error) {
	return l.list(parent, states, assignee, false)
}

// ListAll returns parent (when given) plus every descendant; with an empty
// parent it returns the whole board.
func (l *Ledger) ListAll(parent string, states []string, assignee string) ([]models.IssueSummary, error) {
	return l.list(parent, states, assignee, true)
}

func (l *Ledger) list(parent string, states []string, assignee string, recursive bool) ([]models.IssueSummary, error) {
	if !validID(parent) {
		return nil, fmt.Errorf("%w: invalid issue id %q", models.ErrValidation, parent)
	}
	want := make(map[string]bool, len(states))
	for _, s := range states {
		want[models.NormalizeIssueStatus(strings.ToLower(strings.TrimSpace(s)))] = true
	}

	root := filepath.Join(l.dir, filepath.FromSlash(parent))
	var out []models.IssueSummary
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		rel, err := filepath.Rel(l.dir, filepath.Dir(path))
		if err != nil {
			return err
		}
		id := filepath.ToSlash(rel)
		if d.Name() != strings.ReplaceAll(id, "/", ".")+".json" {
			return nil
		}
		if !recursive && !directChild(parent, id) {
			return nil
		}
		iss, err := l.Read(id)
		if err != nil {
			slog.Warn("skipping unreadable issue", "issue", id, "err", err)
			return nil
		}
		if len(want) > 0 && !want[strings.ToLower(iss.Status)] {
			return nil
		}
		cur := ""
		if iss.Assignee != nil {
			cur = *iss.Assignee
		}
		if assignee != "" && assignee != cur {
			return nil
		}
		out = append(out, models.IssueSummary{
			ID:       id,
			Title:    iss.Title,
			Status:   iss.Status,
			Priority: iss.Priority,
			Assignee: cur,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk issue board: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return lessID(out[i].ID, out[j].ID) })
	return out, nil
}

// directChild reports whether id is one level below parent ("2" under "",
// "1/3" under "1").
func directChild(parent, id string) bool {
	if parent == "" {
		return !strings.Contains(id, "/")
	}
	return strings.HasPrefix(id, parent+"/") &&
		strings.Count(id, "/") == strings.Count(parent, "/")+1
}

// write persists the document via temp file + rename so readers never see a
// partial write.
func (l *Ledger) write(id string, iss models.Issue) error {
	data, err := json.MarshalIndent(iss, "", "  ")
	if err != nil {
		return fmt.Errorf("encode issue %s: %w", id, err)
	}
	path := l.issuePath(id)
	tmp, err := os.CreateTemp(filepath.Dir(path), ".issue-*.tmp")
	if err != nil {
		return fmt.Errorf("write issue %s: %w", id, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write issue %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write issue %s: %w", id, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write issue %s: %w", id, err)
	}
	return nil
}

// derive refreshes the denormalized fields from the history: entries are
// ordered by timestamp (stable, so same-timestamp appends keep their order)
// and the latest entry carrying each field wins.
func derive(iss *models.Issue) {
	ups := make([]models.IssueUpdate, len(iss.Updates))
	copy(ups, iss.Updates)
	sort.SliceStable(ups, func(i, j int) bool { return ups[i].UpdatedAt.Before(ups[j].UpdatedAt) })

	status, priority, assignee := models.IssueStatusNew, models.PriorityLow, ""
	for _, u := range ups {
		if u.Status != "" {
			status = models.NormalizeIssueStatus(u.Status)
		}
		if u.Priority != "" {
			priority = models.NormalizePriority(u.Priority)
		}
		if u.Assignee != "" {
			assignee = u.Assignee
		}
	}
	iss.Status = status
	iss.Priority = priority
	if assignee != "" {
		iss.Assignee = &assignee
	} else {
		iss.Assignee = nil
	}
}

// lessID orders hierarchical ids numerically segment by segment, parents
// before children ("2" < "2/1" < "10").
func lessID(a, b string) bool {
	as, bs := strings.Split(a, "/"), strings.Split(b, "/")
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, _ := strconv.Atoi(as[i])
		bn, _ := strconv.Atoi(bs[i])
		if an != bn {
			return an < bn
		}
	}
	return len(as) < len(bs)
}
