// Package client provides a Go SDK for the sweteam HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/AlanyTan/sweteam/pkg/models"
)

// Client calls the sweteam HTTP API. It is safe for concurrent use.
type Client struct {
	BaseURL    string       // e.g. "http://localhost:3548"
	APIKey     string       // optional; set for X-API-Key / api_key
	HTTPClient *http.Client // optional; nil uses http.DefaultClient
}

// New returns a client for the given base URL (e.g. "http://localhost:3548").
// APIKey is optional; when set, requests use the X-API-Key header.
func New(baseURL, apiKey string) *Client {
	return &Client{BaseURL: baseURL, APIKey: apiKey}
}

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(b)
	}
	u := c.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	return c.client().Do(req)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Error != "" {
			return fmt.Errorf("api %s %s: %s", method, path, errBody.Error)
		}
		return fmt.Errorf("api %s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// escapeIssueID escapes an issue ID for use as a path segment, keeping the
// "/" separators between hierarchy levels intact ("1/2" stays "1/2").
func escapeIssueID(id string) string {
	parts := strings.Split(id, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// Health returns the /health response (ok: true).
func (c *Client) Health(ctx context.Context) (ok bool, err error) {
	var out struct {
		OK bool `json:"ok"`
	}
	err = c.doJSON(ctx, http.MethodGet, "/health", nil, &out)
	return out.OK, err
}

// Status reports the daemon status: home directory plus issue counts by
// status and, when auditing is enabled, run counts by status.
type Status struct {
	Home   string         `json:"home"`
	Issues map[string]int `json:"issues"`
	Runs   map[string]int `json:"runs,omitempty"`
}

// Status returns the /status response.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var out Status
	err := c.doJSON(ctx, http.MethodGet, "/status", nil, &out)
	return &out, err
}

// IssueFilter narrows ListIssues. Zero value lists every issue.
type IssueFilter struct {
	Issue    string   // restrict to this issue and its sub-issues
	Statuses []string // e.g. "new", "in progress"
	Assignee string
}

// ListIssues returns issue summaries matching the filter.
func (c *Client) ListIssues(ctx context.Context, filter IssueFilter) ([]models.IssueSummary, error) {
	q := url.Values{}
	if filter.Issue != "" {
		q.Set("issue", filter.Issue)
	}
	if len(filter.Statuses) > 0 {
		q.Set("status", strings.Join(filter.Statuses, ","))
	}
	if filter.Assignee != "" {
		q.Set("assignee", filter.Assignee)
	}
	path := "/issues"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []models.IssueSummary
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// CreateIssueRequest describes a new issue. Parent is the ID of the issue to
// nest under; empty creates a root issue.
type CreateIssueRequest struct {
	Parent        string   `json:"issue,omitempty"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	Author        string   `json:"author,omitempty"`
	Status        string   `json:"status,omitempty"`
	Priority      string   `json:"priority,omitempty"`
	Assignee      string   `json:"assignee,omitempty"`
	Details       string   `json:"details,omitempty"`
	Prerequisites []string `json:"prerequisites,omitempty"`
}

// CreateIssue creates an issue and returns it.
func (c *Client) CreateIssue(ctx context.Context, req CreateIssueRequest) (*models.Issue, error) {
	var out models.Issue
	err := c.doJSON(ctx, http.MethodPost, "/issues", req, &out)
	return &out, err
}

// GetIssue returns a full issue, updates included.
func (c *Client) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	var out models.Issue
	err := c.doJSON(ctx, http.MethodGet, "/issues/"+escapeIssueID(id), nil, &out)
	return &out, err
}

// UpdateIssue appends an update entry to an issue and returns the new state.
// Empty fields are left unchanged.
func (c *Client) UpdateIssue(ctx context.Context, id string, update models.IssueUpdate) (*models.Issue, error) {
	var out models.Issue
	err := c.doJSON(ctx, http.MethodPatch, "/issues/"+escapeIssueID(id), update, &out)
	return &out, err
}

// AssignIssue reassigns an issue and returns the new state.
func (c *Client) AssignIssue(ctx context.Context, id, assignee, author string) (*models.Issue, error) {
	var out models.Issue
	err := c.doJSON(ctx, http.MethodPost, "/issues/"+escapeIssueID(id)+"/assign", map[string]string{
		"assignee": assignee, "author": author,
	}, &out)
	return &out, err
}

// GetPlan returns the directory plan merged with the actual project tree.
// When actualOnly is true, only directories and files that exist on disk are
// returned.
func (c *Client) GetPlan(ctx context.Context, actualOnly bool) (*models.DirectoryNode, error) {
	path := "/plan"
	if actualOnly {
		path += "?actual_only=true"
	}
	var out models.DirectoryNode
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return &out, err
}

// UpdatePlan merges the given structure into the directory plan. Keys are
// names; a string value describes a file, a nested map describes a directory.
func (c *Client) UpdatePlan(ctx context.Context, structure map[string]any) error {
	return c.doJSON(ctx, http.MethodPost, "/plan", structure, nil)
}

// ListAgents returns the names of the configured agents.
func (c *Client) ListAgents(ctx context.Context) ([]string, error) {
	var out []string
	err := c.doJSON(ctx, http.MethodGet, "/agents", nil, &out)
	return out, err
}
