// Package transform defines the file-level transformation model and the
// parser that extracts a transformation plan from raw model output.
package transform

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Operation is the kind of change a transformation applies.
type Operation string

const (
	// OpCreate writes a new file. Behaviorally identical to OpModify:
	// both write content unconditionally. The distinction is advisory.
	OpCreate Operation = "create"

	// OpModify overwrites an existing file.
	OpModify Operation = "modify"

	// OpDelete removes a file. Absence is not an error.
	OpDelete Operation = "delete"
)

// Valid reports whether the operation is one of create, modify, delete.
func (o Operation) Valid() bool {
	switch o {
	case OpCreate, OpModify, OpDelete:
		return true
	}
	return false
}

var (
	// ErrMalformedPlan indicates no balanced JSON object could be located
	// in the model output.
	ErrMalformedPlan = errors.New("malformed transformation plan")

	// ErrInvalidTransformation indicates a plan entry is missing required
	// fields or names an unknown operation.
	ErrInvalidTransformation = errors.New("invalid transformation")

	// ErrUnsafePath indicates a file path that is absolute or escapes the
	// environment root.
	ErrUnsafePath = errors.New("unsafe file path")
)

// Transformation is a single file edit. Produced immutably by the parser,
// consumed exactly once by the executor.
type Transformation struct {
	FilePath    string    `json:"file_path"`
	Operation   Operation `json:"operation"`
	Content     string    `json:"content,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Validate checks required fields and path safety.
func (t Transformation) Validate() error {
	if t.FilePath == "" {
		return fmt.Errorf("%w: missing file_path", ErrInvalidTransformation)
	}
	if !t.Operation.Valid() {
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidTransformation, t.Operation)
	}
	if err := CheckPath(t.FilePath); err != nil {
		return err
	}
	return nil
}

// CheckPath rejects absolute paths and paths that escape their root via
// parent-directory segments after normalization.
func CheckPath(p string) error {
	if p == "" {
		return fmt.Errorf("%w: empty path", ErrUnsafePath)
	}
	// Windows-style absolute paths and backslash separators are rejected
	// outright rather than normalized.
	if strings.Contains(p, "\\") {
		return fmt.Errorf("%w: %q", ErrUnsafePath, p)
	}
	if path.IsAbs(p) {
		return fmt.Errorf("%w: %q is absolute", ErrUnsafePath, p)
	}
	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%w: %q escapes the environment root", ErrUnsafePath, p)
	}
	return nil
}
