package transform

import (
	"encoding/json"
	"fmt"
	"strings"
)

// planEnvelope is the wire shape the plan generator is asked to produce.
// Content is a pointer so a missing field can be told apart from an empty
// file: create and modify require the field to be present.
type planEnvelope struct {
	Transformations []planEntry `json:"transformations"`
}

type planEntry struct {
	FilePath    string  `json:"file_path"`
	Operation   string  `json:"operation"`
	Content     *string `json:"content"`
	Description string  `json:"description"`
}

// Parse extracts an ordered transformation plan from raw model output.
//
// The generator is not guaranteed to emit a pure JSON payload; it may wrap
// the object in prose. Parse slices the text from the first opening brace to
// the last closing brace and parses only that substring. This is deliberate
// best-effort recovery, not grammar validation: a plausible object that fails
// to decode is a malformed plan.
//
// Entry order is preserved; the executor applies entries in exactly this
// order. Every entry is validated before any is returned, so a single bad
// entry rejects the whole plan.
func Parse(raw string) ([]Transformation, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("%w: no JSON object found in model output", ErrMalformedPlan)
	}

	var envelope planEnvelope
	if err := json.Unmarshal([]byte(raw[start:end+1]), &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}
	if envelope.Transformations == nil {
		return nil, fmt.Errorf("%w: missing \"transformations\" list", ErrMalformedPlan)
	}

	plan := make([]Transformation, 0, len(envelope.Transformations))
	for i, e := range envelope.Transformations {
		t, err := e.toTransformation()
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		plan = append(plan, t)
	}

	return plan, nil
}

// toTransformation validates a wire entry and converts it to the value type.
func (e planEntry) toTransformation() (Transformation, error) {
	if e.FilePath == "" {
		return Transformation{}, fmt.Errorf("%w: missing file_path", ErrInvalidTransformation)
	}
	if e.Operation == "" {
		return Transformation{}, fmt.Errorf("%w: missing operation", ErrInvalidTransformation)
	}

	op := Operation(strings.ToLower(e.Operation))
	if !op.Valid() {
		return Transformation{}, fmt.Errorf("%w: unknown operation %q", ErrInvalidTransformation, e.Operation)
	}

	if err := CheckPath(e.FilePath); err != nil {
		return Transformation{}, err
	}

	var content string
	switch op {
	case OpCreate, OpModify:
		if e.Content == nil {
			return Transformation{}, fmt.Errorf("%w: %s %q has no content", ErrInvalidTransformation, op, e.FilePath)
		}
		content = *e.Content
	case OpDelete:
		// Content is ignored for deletes.
	}

	return Transformation{
		FilePath:    e.FilePath,
		Operation:   op,
		Content:     content,
		Description: e.Description,
	}, nil
}
