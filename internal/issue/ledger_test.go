package issue

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/AlanyTan/sweteam/pkg/models"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := NewLedger(filepath.Join(t.TempDir(), "issue_board"))
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	return l
}

func TestCreate_rootIDsIncrement(t *testing.T) {
	t.Parallel()
	l := newTestLedger(t)
	for i := 1; i <= 3; i++ {
		iss, err := l.Create("", fmt.Sprintf("issue %d", i), "", models.IssueUpdate{Author: "pm"})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if want := fmt.Sprintf("%d", i); iss.ID != want {
			t.Fatalf("Create: got id %q, want %q", iss.ID, want)
		}
	}
}

func TestCreate_subIssueNesting(t *testing.T) {
	t.Parallel()
	l := newTestLedger(t)
	root, err := l.Create("", "root", "", models.IssueUpdate{Author: "pm"})
	if err != nil {
		t.Fatalf("Create root: %v", err)
	}
	sub, err := l.Create(root.ID, "child", "", models.IssueUpdate{Author: "pm"})
	if err != nil {
		t.Fatalf("Create sub: %v", err)
	}
	if sub.ID != root.ID+"/1" {
		t.Fatalf("sub id: got %q, want %q", sub.ID, root.ID+"/1")
	}
	// Document lives inside the parent's directory with a dotted name.
	path := filepath.Join(l.Dir(), root.ID, "1", root.ID+".1.json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("sub-issue document: %v", err)
	}
}

func TestCreate_missingParent(t *testing.T) {
	t.Parallel()
	l := newTestLedger(t)
	if _, err := l.Create("42", "orphan", "", models.IssueUpdate{}); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("Create under missing parent: got %v, want ErrNotFound", err)
	}
}

func TestCreate_invalidParentID(t *testing.T) {
	t.Parallel()
	l := newTestLedger(t)
	for _, bad := range []string{"../etc", "0", "1/x", "-3", "01"} {
		if _, err := l.Create(bad, "t", "", models.IssueUpdate{}); !errors.Is(err, models.ErrValidation) {
			t.Fatalf("Create(%q): got %v, want ErrValidation", bad, err)
		}
	}
}

func TestCreate_seedsFirstUpdate(t *testing.T) {
	t.Parallel()
	l := newTestLedger(t)
	iss, err := l.Create("", "seeded", "desc", models.IssueUpdate{Author: "pm"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(iss.Updates) != 1 {
		t.Fatalf("updates after create: got %d, want 1", len(iss.Updates))
	}
	u := iss.Updates[0]
	if u.Status != models.IssueStatusNew || u.Priority != models.PriorityLow || u.Assignee != "pm" {
		t.Fatalf("seed entry: %+v", u)
	}
	if iss.Status != models.IssueStatusNew || iss.Priority != models.PriorityLow {
		t.Fatalf("derived fields: status=%q priority=%q", iss.Status, iss.Priority)
	}
}

func TestConcurrentRootCreates_uniqueIDs(t *testing.T) {
	t.Parallel()
	l := newTestLedger(t)
	const n = 20
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			iss, err := l.Create("", "concurrent", "", models.IssueUpdate{Author: "pm"})
			if err != nil {
				t.Errorf("Create: %v", err)
				return
			}
			ids <- iss.ID
		}()
	}
	wg.Wait()
	close(ids)
	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate issue id %q", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("created %d unique ids, want %d", len(seen), n)
	}
}

func TestConcurrentUpdates_noLostWrites(t *testing.T) {
	t.Parallel()
	l := newTestLedger(t)
	iss, err := l.Create("", "contended", "", models.IssueUpdate{Author: "pm"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.Update(iss.ID, models.IssueUpdate{
				Author:  fmt.Sprintf("agent-%d", i),
				Details: fmt.Sprintf("note %d", i),
			})
			if err != nil {
				t.Errorf("Update: %v", err)
			}
		}(i)
	}
	wg.Wait()
	got, err := l.Read(iss.ID)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got.Updates) != n+1 {
		t.Fatalf("updates: got %d, want %d (creation entry plus %d appends)", len(got.Updates), n+1, n)
	}
}

func TestUpdate_completedRejects(t *testing.T) {
	t.Parallel()
	l := newTestLedger(t)
	iss, err := l.Create("", "done soon", "", models.IssueUpdate{Author: "dev"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := l.Update(iss.ID, models.IssueUpdate{Author: "dev", Status: models.IssueStatusCompleted}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	_, err = l.Update(iss.ID, models.IssueUpdate{Author: "dev", Details: "one more thing"})
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("update after completion: got %v, want ErrValidation", err)
	}
	got, _ := l.Read(iss.ID)
	if len(got.Updates) != 2 {
		t.Fatalf("history grew after rejected update: %d entries", len(got.Updates))
	}
}

func TestAssign_thenRead_roundTrip(t *testing.T) {
	t.Parallel()
	l := newTestLedger(t)
	iss, err := l.Create("", "round trip", "", models.IssueUpdate{Author: "pm"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := l.Assign(iss.ID, "backend_dev", "pm"); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	got, err := l.Read(iss.ID)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Assignee == nil || *got.Assignee != "backend_dev" {
		t.Fatalf("assignee: got %v", got.Assignee)
	}
	if len(got.Updates) != 2 {
		t.Fatalf("updates: got %d, want 2 (creation + assignment)", len(got.Updates))
	}
}

func TestCreate_prerequisitesPersist(t *testing.T) {
	t.Parallel()
	l := newTestLedger(t)
	first, err := l.Create("", "schema design", "", models.IssueUpdate{Author: "architect"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	dep, err := l.Create("", "implement endpoints", "", models.IssueUpdate{Author: "pm"}, first.ID)
	if err != nil {
		t.Fatalf("Create with prerequisites: %v", err)
	}
	got, err := l.Read(dep.ID)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got.Prerequisites) != 1 || got.Prerequisites[0] != first.ID {
		t.Fatalf("prerequisites: %v", got.Prerequisites)
	}
}

func TestParseContent_prerequisites(t *testing.T) {
	t.Parallel()
	d := ParseContent(`{"title": "wire api", "prerequisites": ["1", "2/1"]}`, true)
	if len(d.Prerequisites) != 2 || d.Prerequisites[0] != "1" || d.Prerequisites[1] != "2/1" {
		t.Fatalf("prerequisites: %v", d.Prerequisites)
	}
}

func TestRead_notFound(t *testing.T) {
	t.Parallel()
	l := newTestLedger(t)
	if _, err := l.Read("7"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("Read missing: got %v, want ErrNotFound", err)
	}
}

func TestList_filtersAndOrder(t *testing.T) {
	t.Parallel()
	l := newTestLedger(t)
	a, _ := l.Create("", "first", "", models.IssueUpdate{Author: "pm"})
	b, _ := l.Create("", "second", "", models.IssueUpdate{Author: "pm"})
	sub, _ := l.Create(a.ID, "sub of first", "", models.IssueUpdate{Author: "pm"})
	if _, err := l.Update(b.ID, models.IssueUpdate{Author: "dev", Status: models.IssueStatusInProgress, Assignee: "backend_dev"}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	roots, err := l.List("", nil, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(roots) != 2 || roots[0].ID != "1" || roots[1].ID != "2" {
		t.Fatalf("List roots: %+v", roots)
	}

	children, err := l.List(a.ID, nil, "")
	if err != nil {
		t.Fatalf("List children: %v", err)
	}
	if len(children) != 1 || children[0].ID != sub.ID {
		t.Fatalf("List children: %+v", children)
	}

	all, err := l.ListAll("", nil, "")
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListAll: got %d entries", len(all))
	}
	if all[0].ID != "1" || all[1].ID != "1/1" || all[2].ID != "2" {
		t.Fatalf("ListAll order: %v", []string{all[0].ID, all[1].ID, all[2].ID})
	}

	// "in process" tolerated as "in progress".
	inProg, err := l.ListAll("", []string{"in process"}, "")
	if err != nil {
		t.Fatalf("ListAll filtered: %v", err)
	}
	if len(inProg) != 1 || inProg[0].ID != b.ID {
		t.Fatalf("ListAll in progress: %+v", inProg)
	}

	byAssignee, err := l.ListAll("", nil, "backend_dev")
	if err != nil {
		t.Fatalf("ListAll by assignee: %v", err)
	}
	if len(byAssignee) != 1 || byAssignee[0].ID != b.ID {
		t.Fatalf("ListAll by assignee: %+v", byAssignee)
	}

	subtree, err := l.ListAll(a.ID, nil, "")
	if err != nil {
		t.Fatalf("ListAll subtree: %v", err)
	}
	if len(subtree) != 2 || subtree[0].ID != a.ID || subtree[1].ID != sub.ID {
		t.Fatalf("ListAll subtree: %+v", subtree)
	}
}

func TestParseContent_formats(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		content   string
		forCreate bool
		wantTitle string
		wantDet   string
		wantStat  string
	}{
		{
			name:      "json",
			content:   `{"title": "add login", "status": "in progress", "details": "working on it"}`,
			forCreate: true,
			wantTitle: "add login",
			wantDet:   "working on it",
			wantStat:  "in progress",
		},
		{
			name:      "yaml fallback",
			content:   "title: fix crash\nstatus: new\n",
			forCreate: true,
			wantTitle: "fix crash",
			wantStat:  "new",
		},
		{
			name:      "plain text create truncates title",
			content:   "this description is much longer than twenty-four characters",
			forCreate: true,
			wantTitle: "this description is much",
		},
		{
			name:    "plain text update becomes details",
			content: "just a progress note",
			wantDet: "just a progress note",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			d := ParseContent(tc.content, tc.forCreate)
			if d.Title != tc.wantTitle {
				t.Fatalf("title: got %q, want %q", d.Title, tc.wantTitle)
			}
			if tc.wantDet != "" && d.Update.Details != tc.wantDet {
				t.Fatalf("details: got %q, want %q", d.Update.Details, tc.wantDet)
			}
			if tc.wantStat != "" && d.Update.Status != tc.wantStat {
				t.Fatalf("status: got %q, want %q", d.Update.Status, tc.wantStat)
			}
		})
	}
}
