// Package analysis examines a cloned codebase and produces the summary the
// plan generator receives as context.
package analysis

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/transformd/internal/environment"
	"github.com/fyrsmithlabs/transformd/internal/logging"
)

// languageByExt maps source extensions to language names. Files with other
// extensions are not counted and their extensions are dropped from the
// reported language set rather than surfaced as unknown.
var languageByExt = map[string]string{
	".py":   "Python",
	".js":   "JavaScript",
	".ts":   "TypeScript",
	".java": "Java",
	".cpp":  "C++",
	".c":    "C",
	".go":   "Go",
	".rs":   "Rust",
}

// skipDirs are directories excluded from the scan: dependency trees,
// build output, and version control data.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	"dist":         true,
	"build":        true,
	"target":       true,
}

// Summary describes the scanned codebase.
type Summary struct {
	TotalFiles  int      `json:"total_files"`
	Languages   []string `json:"languages"`
	SampleFiles []string `json:"sample_files"`
}

// Analyzer scans source trees in either environment variant.
type Analyzer struct {
	sandbox    environment.Sandbox
	maxSamples int
	logger     *logging.Logger
}

// New creates an analyzer. maxSamples caps the file paths carried into the
// summary; zero means 10.
func New(sandbox environment.Sandbox, maxSamples int, logger *logging.Logger) *Analyzer {
	if maxSamples <= 0 {
		maxSamples = 10
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Analyzer{
		sandbox:    sandbox,
		maxSamples: maxSamples,
		logger:     logger.Named("analysis"),
	}
}

// Analyze enumerates source files under dir in the environment, classifies
// languages by extension, and returns the summary.
func (a *Analyzer) Analyze(ctx context.Context, env *environment.Environment, dir string) (*Summary, error) {
	var files []string
	var err error

	switch env.Kind() {
	case environment.KindRemote:
		files, err = a.listRemote(ctx, env, dir)
	case environment.KindLocal:
		files, err = listLocal(ctx, filepath.Join(env.Root(), dir))
	default:
		return nil, fmt.Errorf("unknown environment kind %q", env.Kind())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to examine codebase: %w", err)
	}

	summary := &Summary{
		TotalFiles: len(files),
		Languages:  identifyLanguages(files),
	}
	if len(files) > a.maxSamples {
		summary.SampleFiles = files[:a.maxSamples]
	} else {
		summary.SampleFiles = files
	}

	a.logger.Info(ctx, "codebase analyzed",
		zap.Int("total_files", summary.TotalFiles),
		zap.Strings("languages", summary.Languages))

	return summary, nil
}

func (a *Analyzer) listRemote(ctx context.Context, env *environment.Environment, dir string) ([]string, error) {
	if a.sandbox == nil {
		return nil, fmt.Errorf("no sandbox client for remote environment")
	}
	paths, err := a.sandbox.ListFiles(ctx, env.SessionID(), dir)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(paths))
	for _, p := range paths {
		if underSkippedDir(p) {
			continue
		}
		if _, ok := languageByExt[strings.ToLower(path.Ext(p))]; ok {
			files = append(files, p)
		}
	}
	sort.Strings(files)
	return files, nil
}

func listLocal(ctx context.Context, root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := languageByExt[strings.ToLower(filepath.Ext(p))]; ok {
			rel, relErr := filepath.Rel(root, p)
			if relErr != nil {
				return relErr
			}
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// identifyLanguages returns the distinct languages present, sorted.
// Extensions outside the known set are dropped.
func identifyLanguages(files []string) []string {
	seen := make(map[string]bool)
	for _, f := range files {
		if lang, ok := languageByExt[strings.ToLower(path.Ext(f))]; ok {
			seen[lang] = true
		}
	}
	langs := make([]string, 0, len(seen))
	for lang := range seen {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// underSkippedDir reports whether any path segment is a skipped directory.
func underSkippedDir(p string) bool {
	for _, seg := range strings.Split(path.Dir(p), "/") {
		if skipDirs[seg] {
			return true
		}
	}
	return false
}
