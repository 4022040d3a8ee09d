package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AlanyTan/sweteam/pkg/models"
)

// HTTPService talks to a reasoning service over three endpoints:
//
//	POST {base}/runs                          create a run
//	GET  {base}/runs/{id}                     poll a run
//	POST {base}/runs/{id}/submit_tool_outputs continue a run after tools
//
// Any assistants-style backend can sit behind this contract. Responses decode
// into RunState.
type HTTPService struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPService returns a client for baseURL with a 60s request timeout.
// Poll timeouts are governed by the caller's context.
func NewHTTPService(baseURL, apiKey string) *HTTPService {
	return &HTTPService{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (s *HTTPService) Name() string { return "http" }

func (s *HTTPService) CreateRun(ctx context.Context, req RunRequest) (RunState, error) {
	return s.do(ctx, http.MethodPost, s.BaseURL+"/runs", req)
}

func (s *HTTPService) GetRun(ctx context.Context, runID string) (RunState, error) {
	return s.do(ctx, http.MethodGet, s.BaseURL+"/runs/"+runID, nil)
}

func (s *HTTPService) SubmitToolOutputs(ctx context.Context, runID string, outputs []models.ToolResult) (RunState, error) {
	body := struct {
		ToolOutputs []models.ToolResult `json:"tool_outputs"`
	}{ToolOutputs: outputs}
	return s.do(ctx, http.MethodPost, s.BaseURL+"/runs/"+runID+"/submit_tool_outputs", body)
}

func (s *HTTPService) do(ctx context.Context, method, url string, payload any) (RunState, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return RunState{}, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return RunState{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return RunState{}, fmt.Errorf("reasoning service: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, models.DefaultMaxRequestBodyBytes))
	if err != nil {
		return RunState{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return RunState{}, fmt.Errorf("%w: %s", models.ErrNotFound, url)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return RunState{}, fmt.Errorf("reasoning service %s: status %d: %s", url, resp.StatusCode, truncate(string(data), 200))
	}
	var st RunState
	if err := json.Unmarshal(data, &st); err != nil {
		return RunState{}, fmt.Errorf("decode response: %w", err)
	}
	return st, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
