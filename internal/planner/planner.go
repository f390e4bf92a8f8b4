// Package planner produces transformation plans from a change request and a
// codebase analysis, via an LLM backend. The backend returns raw text with
// no structural guarantee; extracting the plan from it is the transform
// package's job.
package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/transformd/internal/analysis"
	"github.com/fyrsmithlabs/transformd/internal/config"
)

// Generator produces raw plan text for a change request.
type Generator interface {
	// GeneratePlan returns the model's raw response. Callers must treat it
	// as unstructured text.
	GeneratePlan(ctx context.Context, prompt string, summary *analysis.Summary) (string, error)
}

// systemPrompt instructs the model to answer with a JSON plan.
const systemPrompt = "You are an expert software engineer. Create precise, working code " +
	"transformations based on user requests. Always respond with valid JSON."

// New creates a generator for the configured provider.
func New(cfg config.PlannerConfig) (Generator, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("planner API key required")
	}
	switch cfg.Provider {
	case "anthropic":
		return newAnthropicGenerator(cfg), nil
	case "openai":
		return newOpenAIGenerator(cfg), nil
	default:
		return nil, fmt.Errorf("unknown planner provider: %s", cfg.Provider)
	}
}

// buildPrompt assembles the user message from the change request and the
// analysis summary.
func buildPrompt(prompt string, summary *analysis.Summary) string {
	var sb strings.Builder

	sb.WriteString("Codebase examination:\n")
	if summary != nil {
		sb.WriteString(fmt.Sprintf("- Files: %d\n", summary.TotalFiles))
		sb.WriteString(fmt.Sprintf("- Languages: %s\n", strings.Join(summary.Languages, ", ")))
		samples := summary.SampleFiles
		if len(samples) > 5 {
			samples = samples[:5]
		}
		sb.WriteString(fmt.Sprintf("- Main files: %s\n", strings.Join(samples, ", ")))
	}

	sb.WriteString("\nUser request: ")
	sb.WriteString(prompt)
	sb.WriteString("\n\nCreate specific code transformations in JSON format:\n")
	sb.WriteString(`{
  "transformations": [
    {
      "file_path": "path/to/file",
      "operation": "create|modify|delete",
      "content": "file content (for create/modify)",
      "description": "explanation"
    }
  ]
}
`)

	return sb.String()
}
