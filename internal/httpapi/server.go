// Package httpapi exposes the engine over HTTP: issue board, directory plan,
// run audit, metrics, and the SSE event stream.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/AlanyTan/sweteam/internal/agent"
	"github.com/AlanyTan/sweteam/internal/dirplan"
	"github.com/AlanyTan/sweteam/internal/events"
	"github.com/AlanyTan/sweteam/internal/issue"
	"github.com/AlanyTan/sweteam/internal/store"
	"github.com/AlanyTan/sweteam/pkg/models"
)

// limitBody wraps r.Body with http.MaxBytesReader so handlers cannot read
// more than maxBytes.
func limitBody(w http.ResponseWriter, r *http.Request, maxBytes int64) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
}

// bodyLimitMiddleware limits request body size for POST, PUT, PATCH to
// prevent OOM.
func bodyLimitMiddleware(maxBytes int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			limitBody(w, r, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware sets permissive CORS headers for dev mode.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ServerOptions configures the HTTP server.
type ServerOptions struct {
	Home           string
	Addr           string
	Dev            bool
	APIKey         string // if set, require X-API-Key header or query api_key
	Ledger         *issue.Ledger
	Plan           *dirplan.Plan
	Roster         *agent.Roster
	Store          *store.Store // optional; /status run counts come from here
	Hub            *events.Hub  // optional; created when nil
	MetricsHandler http.Handler // if set, used for /metrics (OTel Prometheus handler)
	UseOtelHTTP    bool
}

// App holds the HTTP server and the collaborators its handlers touch.
type App struct {
	Server *http.Server
	Hub    *events.Hub
	Ledger *issue.Ledger
	Plan   *dirplan.Plan
	Home   string
}

// NewApp registers all routes and returns the app. The ledger is required;
// everything else degrades gracefully when absent.
func NewApp(opts ServerOptions) (*App, error) {
	if opts.Ledger == nil {
		return nil, errors.New("httpapi: ledger is required")
	}
	hub := opts.Hub
	if hub == nil {
		hub = events.NewHub()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": true})
	})

	if opts.MetricsHandler != nil {
		mux.Handle("/metrics", opts.MetricsHandler)
	} else {
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			counts := issueCounts(opts.Ledger)
			_, _ = fmt.Fprintf(w, "# TYPE sweteam_issues_total gauge\n")
			for _, status := range []string{models.IssueStatusNew, models.IssueStatusInProgress, models.IssueStatusCompleted, models.IssueStatusBlocked} {
				_, _ = fmt.Fprintf(w, "sweteam_issues_total{status=%q} %d\n", status, counts[status])
			}
		})
	}

	mux.HandleFunc("/events", sseHandler(hub))

	mux.HandleFunc("/issues", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handleListIssues(w, r, opts.Ledger)
		case http.MethodPost:
			handleCreateIssue(w, r, opts.Ledger, hub)
		default:
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})

	mux.HandleFunc("/issues/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/issues/")
		if rest == "" {
			writeJSONError(w, http.StatusNotFound, "not found")
			return
		}
		// /issues/{id}/assign
		if id, ok := strings.CutSuffix(rest, "/assign"); ok {
			if r.Method != http.MethodPost {
				writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			handleAssignIssue(w, r, opts.Ledger, hub, id)
			return
		}
		switch r.Method {
		case http.MethodGet:
			handleReadIssue(w, r, opts.Ledger, rest)
		case http.MethodPost, http.MethodPatch:
			handleUpdateIssue(w, r, opts.Ledger, hub, rest)
		default:
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})

	mux.HandleFunc("/plan", func(w http.ResponseWriter, r *http.Request) {
		if opts.Plan == nil {
			writeJSONError(w, http.StatusNotFound, "directory plan not configured")
			return
		}
		switch r.Method {
		case http.MethodGet:
			handleReadPlan(w, r, opts.Plan)
		case http.MethodPost:
			handleUpdatePlan(w, r, opts.Plan, hub)
		default:
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})

	mux.HandleFunc("/agents", func(w http.ResponseWriter, r *http.Request) {
		if opts.Roster == nil {
			writeJSON(w, []string{})
			return
		}
		writeJSON(w, opts.Roster.Names())
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"home":   opts.Home,
			"issues": issueCounts(opts.Ledger),
		}
		if opts.Store != nil {
			if runs, err := opts.Store.RunCounts(r.Context()); err == nil {
				body["runs"] = runs
			}
		}
		writeJSON(w, body)
	})

	var handler http.Handler = mux
	handler = bodyLimitMiddleware(models.DefaultMaxRequestBodyBytes, handler)
	if opts.Dev {
		handler = corsMiddleware(handler)
	}
	if opts.APIKey != "" {
		handler = apiKeyMiddleware(opts.APIKey, handler)
	}
	handler = requestLogMiddleware(handler)
	if opts.UseOtelHTTP {
		handler = otelhttp.NewHandler(handler, "sweteam")
	}
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return &App{Server: srv, Hub: hub, Ledger: opts.Ledger, Plan: opts.Plan, Home: opts.Home}, nil
}

func handleListIssues(w http.ResponseWriter, r *http.Request, ledger *issue.Ledger) {
	q := r.URL.Query()
	var states []string
	if s := q.Get("status"); s != "" {
		states = strings.Split(s, ",")
	}
	sums, err := ledger.ListAll(q.Get("issue"), states, q.Get("assignee"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if sums == nil {
		sums = []models.IssueSummary{}
	}
	writeJSON(w, sums)
}

func handleCreateIssue(w http.ResponseWriter, r *http.Request, ledger *issue.Ledger, hub *events.Hub) {
	var body struct {
		Issue         string   `json:"issue"` // parent id; empty for a root issue
		Title         string   `json:"title"`
		Description   string   `json:"description"`
		Author        string   `json:"author"`
		Status        string   `json:"status"`
		Priority      string   `json:"priority"`
		Assignee      string   `json:"assignee"`
		Details       string   `json:"details"`
		Prerequisites []string `json:"prerequisites"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.Title == "" {
		writeJSONError(w, http.StatusBadRequest, "title required")
		return
	}
	iss, err := ledger.Create(body.Issue, body.Title, body.Description, models.IssueUpdate{
		Author:   body.Author,
		Status:   body.Status,
		Priority: body.Priority,
		Assignee: body.Assignee,
		Details:  body.Details,
	}, body.Prerequisites...)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	hub.Publish(models.Event{Type: models.EventIssueChanged, IssueID: iss.ID})
	writeJSON(w, iss)
}

func handleReadIssue(w http.ResponseWriter, r *http.Request, ledger *issue.Ledger, id string) {
	iss, err := ledger.Read(id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, iss)
}

func handleUpdateIssue(w http.ResponseWriter, r *http.Request, ledger *issue.Ledger, hub *events.Hub, id string) {
	var body struct {
		Author   string `json:"author"`
		Status   string `json:"status"`
		Priority string `json:"priority"`
		Assignee string `json:"assignee"`
		Details  string `json:"details"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	iss, err := ledger.Update(id, models.IssueUpdate{
		Author:   body.Author,
		Status:   body.Status,
		Priority: body.Priority,
		Assignee: body.Assignee,
		Details:  body.Details,
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	hub.Publish(models.Event{Type: models.EventIssueChanged, IssueID: id})
	writeJSON(w, iss)
}

func handleAssignIssue(w http.ResponseWriter, r *http.Request, ledger *issue.Ledger, hub *events.Hub, id string) {
	var body struct {
		Assignee string `json:"assignee"`
		Author   string `json:"author"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.Assignee == "" {
		writeJSONError(w, http.StatusBadRequest, "assignee required")
		return
	}
	iss, err := ledger.Assign(id, body.Assignee, body.Author)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	hub.Publish(models.Event{Type: models.EventIssueChanged, IssueID: id})
	writeJSON(w, iss)
}

func handleReadPlan(w http.ResponseWriter, r *http.Request, plan *dirplan.Plan) {
	actualOnly := r.URL.Query().Get("actual_only") == "true"
	root, err := plan.Read(actualOnly)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		writeJSON(w, root)
	case "yaml", "csv":
		out, err := dirplan.Render(root, format)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprint(w, out)
	default:
		writeJSONError(w, http.StatusBadRequest, "format must be json, yaml, or csv")
	}
}

func handleUpdatePlan(w http.ResponseWriter, r *http.Request, plan *dirplan.Plan, hub *events.Hub) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := plan.UpdateFromMap(body); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	hub.PublishJSON(map[string]any{"type": "plan_update"})
	writeJSON(w, map[string]any{"ok": true})
}

func issueCounts(ledger *issue.Ledger) map[string]int {
	counts := map[string]int{}
	sums, err := ledger.ListAll("", nil, "")
	if err != nil {
		return counts
	}
	for _, s := range sums {
		counts[s.Status]++
	}
	return counts
}

// writeLedgerError maps ledger sentinel errors to HTTP status codes.
func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrValidation):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

// responseRecorder captures status code for logging and forwards Flusher if
// supported.
type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func apiKeyMiddleware(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/health" || path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = r.URL.Query().Get("api_key")
		}
		if key != apiKey {
			writeJSONError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)
		slog.Debug("http request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// writeJSONError sends a JSON body {"error": "message"} with the given
// status code.
func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}
