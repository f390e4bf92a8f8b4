package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var githubToken string

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check transformd server health",
	RunE:  runHealth,
}

// reposCmd lists the repositories available to a GitHub token
var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "List repositories available to the GitHub token",
	Long: `List the non-fork repositories the GitHub token can access.

Examples:
  # List repositories
  transformctl repos --token ghp_xxx

  # Token from the environment
  GITHUB_TOKEN=ghp_xxx transformctl repos`,
	RunE: runRepos,
}

// startCmd starts a transformation session
var startCmd = &cobra.Command{
	Use:   "start <repo> <prompt>",
	Short: "Start a transformation session",
	Long: `Start a transformation session against a repository.

Examples:
  # Transform a repository
  transformctl start acme/widgets "add type hints to all functions"

  # With push credentials
  transformctl start acme/widgets "add docstrings" --token ghp_xxx`,
	Args: cobra.ExactArgs(2),
	RunE: runStart,
}

// statusCmd shows a session's current state
var statusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show a session's current state",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

// watchCmd follows a session's event stream
var watchCmd = &cobra.Command{
	Use:   "watch <session-id>",
	Short: "Follow a session's event stream until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	reposCmd.Flags().StringVar(&githubToken, "token", "", "GitHub token (defaults to GITHUB_TOKEN)")
	startCmd.Flags().StringVar(&githubToken, "token", "", "GitHub token (defaults to GITHUB_TOKEN)")
}

func token() string {
	if githubToken != "" {
		return githubToken
	}
	return os.Getenv("GITHUB_TOKEN")
}

// SessionResponse matches internal/http/types.go SessionResponse
type SessionResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	RepoURL   string    `json:"repo_url"`
	Prompt    string    `json:"prompt"`
	Branch    string    `json:"branch,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RepositoriesResponse matches internal/http/types.go RepositoriesResponse
type RepositoriesResponse struct {
	Repositories []struct {
		Owner       string `json:"owner"`
		Name        string `json:"name"`
		URL         string `json:"url"`
		Description string `json:"description,omitempty"`
		Language    string `json:"language,omitempty"`
	} `json:"repositories"`
}

func postJSON(path string, body, out any, timeout time.Duration) error {
	blob, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := serverURL + path
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(blob))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(detail))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	fmt.Println("ok")
	return nil
}

func runRepos(cmd *cobra.Command, args []string) error {
	tok := token()
	if tok == "" {
		return fmt.Errorf("a GitHub token is required (--token or GITHUB_TOKEN)")
	}

	var resp RepositoriesResponse
	err := postJSON("/api/v1/repositories",
		map[string]string{"github_token": tok}, &resp, 30*time.Second)
	if err != nil {
		return err
	}

	for _, r := range resp.Repositories {
		line := fmt.Sprintf("%s/%s", r.Owner, r.Name)
		if r.Language != "" {
			line += "  [" + r.Language + "]"
		}
		if r.Description != "" {
			line += "  " + r.Description
		}
		fmt.Println(line)
	}
	return nil
}

func runStart(cmd *cobra.Command, args []string) error {
	req := map[string]string{
		"repo_url": args[0],
		"prompt":   args[1],
	}
	if tok := token(); tok != "" {
		req["github_token"] = tok
	}

	var resp SessionResponse
	if err := postJSON("/api/v1/sessions", req, &resp, 30*time.Second); err != nil {
		return err
	}

	fmt.Printf("session %s started (%s)\n", resp.ID, resp.Status)
	fmt.Printf("follow it with: transformctl watch %s\n", resp.ID)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(serverURL + "/api/v1/sessions/" + args[0])
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(detail))
	}

	var sess SessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("id:      %s\n", sess.ID)
	fmt.Printf("status:  %s\n", sess.Status)
	fmt.Printf("repo:    %s\n", sess.RepoURL)
	if sess.Branch != "" {
		fmt.Printf("branch:  %s\n", sess.Branch)
	}
	if sess.Error != "" {
		fmt.Printf("error:   %s\n", sess.Error)
	}
	return nil
}

// watchEvent is the SSE data payload shape.
type watchEvent struct {
	Stage      int    `json:"stage"`
	StageCount int    `json:"stage_count"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
}

func runWatch(cmd *cobra.Command, args []string) error {
	// No client timeout: the stream stays open for the whole pipeline run.
	client := &http.Client{}
	resp, err := client.Get(serverURL + "/api/v1/sessions/" + args[0] + "/events")
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(detail))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var ev watchEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			continue
		}
		fmt.Printf("[%d/%d] %-10s %s\n", ev.Stage, ev.StageCount, ev.Kind, ev.Message)

		if ev.Kind == "completed" || ev.Kind == "failed" {
			break
		}
	}
	return scanner.Err()
}
