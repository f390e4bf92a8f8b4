package environment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fyrsmithlabs/transformd/internal/config"
)

// httpSandbox talks to the remote execution service over its JSON API.
// File content travels as request data, never as interpolated command text.
type httpSandbox struct {
	baseURL    string
	apiKey     config.Secret
	httpClient *http.Client
}

// NewHTTPSandbox creates a sandbox client from config. Returns nil when no
// API key is configured, which the provisioner treats as "local only".
func NewHTTPSandbox(cfg config.SandboxConfig) Sandbox {
	if !cfg.APIKey.IsSet() || cfg.BaseURL == "" {
		return nil
	}
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &httpSandbox{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

func (s *httpSandbox) CreateSession(ctx context.Context) (string, error) {
	var resp createSessionResponse
	if err := s.do(ctx, http.MethodPost, "/v1/sessions", nil, &resp); err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", fmt.Errorf("sandbox returned empty session id")
	}
	return resp.SessionID, nil
}

type fileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
}

func (s *httpSandbox) WriteFile(ctx context.Context, sessionID, path, content string) error {
	endpoint := fmt.Sprintf("/v1/sessions/%s/files", url.PathEscape(sessionID))
	return s.do(ctx, http.MethodPut, endpoint, fileRequest{Path: path, Content: content}, nil)
}

func (s *httpSandbox) RemoveFile(ctx context.Context, sessionID, path string) error {
	endpoint := fmt.Sprintf("/v1/sessions/%s/files/delete", url.PathEscape(sessionID))
	return s.do(ctx, http.MethodPost, endpoint, fileRequest{Path: path}, nil)
}

type execRequest struct {
	Argv []string `json:"argv"`
	Dir  string   `json:"dir,omitempty"`
}

func (s *httpSandbox) RunCommand(ctx context.Context, sessionID, dir string, argv []string) (CommandResult, error) {
	if len(argv) == 0 {
		return CommandResult{}, fmt.Errorf("empty command")
	}
	endpoint := fmt.Sprintf("/v1/sessions/%s/exec", url.PathEscape(sessionID))
	var result CommandResult
	if err := s.do(ctx, http.MethodPost, endpoint, execRequest{Argv: argv, Dir: dir}, &result); err != nil {
		return CommandResult{}, err
	}
	return result, nil
}

type listFilesResponse struct {
	Paths []string `json:"paths"`
}

func (s *httpSandbox) ListFiles(ctx context.Context, sessionID, dir string) ([]string, error) {
	endpoint := fmt.Sprintf("/v1/sessions/%s/files?dir=%s",
		url.PathEscape(sessionID), url.QueryEscape(dir))
	var resp listFilesResponse
	if err := s.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Paths, nil
}

func (s *httpSandbox) CloseSession(ctx context.Context, sessionID string) error {
	endpoint := fmt.Sprintf("/v1/sessions/%s", url.PathEscape(sessionID))
	err := s.do(ctx, http.MethodDelete, endpoint, nil, nil)
	if err != nil && isNotFound(err) {
		// Already gone; closing twice is fine.
		return nil
	}
	return err
}

// do performs one JSON request/response round trip.
func (s *httpSandbox) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		blob, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(blob)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey.Value())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sandbox request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &apiError{Status: resp.StatusCode, Detail: string(detail)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode sandbox response: %w", err)
		}
	}
	return nil
}

// apiError is a non-2xx sandbox response.
type apiError struct {
	Status int
	Detail string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("sandbox API error: status %d: %s", e.Status, e.Detail)
}

func isNotFound(err error) bool {
	apiErr, ok := err.(*apiError)
	return ok && apiErr.Status == http.StatusNotFound
}
