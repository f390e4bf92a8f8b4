package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/transformd/internal/analysis"
	"github.com/fyrsmithlabs/transformd/internal/config"
	"github.com/fyrsmithlabs/transformd/internal/environment"
	"github.com/fyrsmithlabs/transformd/internal/events"
	"github.com/fyrsmithlabs/transformd/internal/executor"
	"github.com/fyrsmithlabs/transformd/internal/logging"
	"github.com/fyrsmithlabs/transformd/internal/session"
	"github.com/fyrsmithlabs/transformd/internal/validation"
)

// scriptedGenerator returns a canned plan or error.
type scriptedGenerator struct {
	raw string
	err error
}

func (g *scriptedGenerator) GeneratePlan(context.Context, string, *analysis.Summary) (string, error) {
	return g.raw, g.err
}

// newSourceRepo creates a repository with one commit to clone from and push
// back to.
func newSourceRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte("print('hi')\n"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("main.py")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@localhost", When: time.Now()},
	})
	require.NoError(t, err)
	return dir
}

type harness struct {
	orch     *Orchestrator
	registry *session.Registry
	emitter  *events.Emitter
}

func newHarness(t *testing.T, gen *scriptedGenerator, blockOnFailure bool, validate []string) *harness {
	t.Helper()
	logger := logging.NewNop()

	registry := session.NewRegistry(config.SessionConfig{
		TTL:           config.Duration(time.Hour),
		SweepInterval: config.Duration(time.Minute),
	}, logger)

	if validate == nil {
		validate = []string{"sh", "-c", "echo ok"}
	}
	validator, err := validation.NewRunner(config.ValidationConfig{
		Command: validate,
		Timeout: config.Duration(10 * time.Second),
	}, nil, logger)
	require.NoError(t, err)

	emitter := events.NewEmitter()
	orch := New(Deps{
		Provisioner:              environment.NewProvisioner(nil, logger),
		Analyzer:                 analysis.New(nil, 10, logger),
		Generator:                gen,
		Executor:                 executor.New(nil, logger),
		Validator:                validator,
		Registry:                 registry,
		Emitter:                  emitter,
		Logger:                   logger,
		BlockOnValidationFailure: blockOnFailure,
	})
	return &harness{orch: orch, registry: registry, emitter: emitter}
}

const goodPlan = `Here is the plan you asked for:
{"transformations": [
  {"file_path": "src/x.py", "operation": "create",
   "content": "def x():\n    return 1\n", "description": "add x"}
]}
Hope this helps!`

func TestRunCompletesLocally(t *testing.T) {
	src := newSourceRepo(t)
	h := newHarness(t, &scriptedGenerator{raw: goodPlan}, false, nil)

	sess := h.registry.Create(session.Request{RepoURL: src, Prompt: "add function x"}, session.Credentials{})
	h.orch.Run(context.Background(), *sess)

	got, err := h.registry.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, got.Status)
	require.NotEmpty(t, got.Branch)

	// The branch on the source repo carries the created file.
	remote, err := git.PlainOpen(src)
	require.NoError(t, err)
	ref, err := remote.Reference(plumbing.NewBranchReferenceName(got.Branch), true)
	require.NoError(t, err)
	commit, err := remote.CommitObject(ref.Hash())
	require.NoError(t, err)
	_, err = commit.File("src/x.py")
	require.NoError(t, err)
	assert.Contains(t, commit.Message, "add function x")
}

func TestRunUsesRequestedBranchAndMessage(t *testing.T) {
	src := newSourceRepo(t)
	h := newHarness(t, &scriptedGenerator{raw: goodPlan}, false, nil)

	sess := h.registry.Create(session.Request{
		RepoURL:       src,
		Prompt:        "add function x",
		BranchName:    "feature/typed-x",
		CommitMessage: "Add typed x helper",
	}, session.Credentials{})
	h.orch.Run(context.Background(), *sess)

	got, err := h.registry.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, got.Status)
	assert.Equal(t, "feature/typed-x", got.Branch)

	remote, err := git.PlainOpen(src)
	require.NoError(t, err)
	ref, err := remote.Reference(plumbing.NewBranchReferenceName("feature/typed-x"), true)
	require.NoError(t, err)
	commit, err := remote.CommitObject(ref.Hash())
	require.NoError(t, err)
	assert.Equal(t, "Add typed x helper", commit.Message)
}

func TestRunEmitsOrderedEvents(t *testing.T) {
	src := newSourceRepo(t)
	h := newHarness(t, &scriptedGenerator{raw: goodPlan}, false, nil)

	sess := h.registry.Create(session.Request{RepoURL: src, Prompt: "p"}, session.Credentials{})
	h.orch.Run(context.Background(), *sess)

	backlog := h.emitter.Backlog(sess.ID)
	require.NotEmpty(t, backlog)

	var kinds []events.Kind
	lastStage := 0
	for i, ev := range backlog {
		assert.Equal(t, i, ev.Seq)
		assert.GreaterOrEqual(t, ev.Stage, lastStage)
		lastStage = ev.Stage
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, events.KindCompleted, kinds[len(kinds)-1])
	assert.Contains(t, kinds, events.KindAnalysis)
	assert.Contains(t, kinds, events.KindPlan)
	assert.Contains(t, kinds, events.KindApplied)
	assert.Contains(t, kinds, events.KindValidation)
	assert.Contains(t, kinds, events.KindDeployed)
}

func TestRunGeneratingFailureNeverDeploys(t *testing.T) {
	src := newSourceRepo(t)
	h := newHarness(t, &scriptedGenerator{err: errors.New("model unavailable")}, false, nil)

	sess := h.registry.Create(session.Request{RepoURL: src, Prompt: "p"}, session.Credentials{})
	h.orch.Run(context.Background(), *sess)

	got, err := h.registry.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "generating")
	assert.Empty(t, got.Branch)

	// No branch reached the source repo.
	remote, err := git.PlainOpen(src)
	require.NoError(t, err)
	iter, err := remote.Branches()
	require.NoError(t, err)
	count := 0
	require.NoError(t, iter.ForEach(func(*plumbing.Reference) error {
		count++
		return nil
	}))
	assert.Equal(t, 1, count)

	backlog := h.emitter.Backlog(sess.ID)
	last := backlog[len(backlog)-1]
	assert.Equal(t, events.KindFailed, last.Kind)
	assert.Equal(t, 3, last.Stage)
}

func TestRunMalformedPlanFails(t *testing.T) {
	src := newSourceRepo(t)
	h := newHarness(t, &scriptedGenerator{raw: "I could not produce a plan, sorry."}, false, nil)

	sess := h.registry.Create(session.Request{RepoURL: src, Prompt: "p"}, session.Credentials{})
	h.orch.Run(context.Background(), *sess)

	got, err := h.registry.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "generating")
}

func TestRunValidationFailureDoesNotBlockByDefault(t *testing.T) {
	src := newSourceRepo(t)
	h := newHarness(t, &scriptedGenerator{raw: goodPlan}, false, []string{"sh", "-c", "exit 1"})

	sess := h.registry.Create(session.Request{RepoURL: src, Prompt: "p"}, session.Credentials{})
	h.orch.Run(context.Background(), *sess)

	got, err := h.registry.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, got.Status)
	assert.NotEmpty(t, got.Branch)
}

func TestRunValidationFailureBlocksWhenConfigured(t *testing.T) {
	src := newSourceRepo(t)
	h := newHarness(t, &scriptedGenerator{raw: goodPlan}, true, []string{"sh", "-c", "exit 1"})

	sess := h.registry.Create(session.Request{RepoURL: src, Prompt: "p"}, session.Credentials{})
	h.orch.Run(context.Background(), *sess)

	got, err := h.registry.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusFailed, got.Status)
	assert.Empty(t, got.Branch)
}

func TestRunCloneFailure(t *testing.T) {
	h := newHarness(t, &scriptedGenerator{raw: goodPlan}, false, nil)

	sess := h.registry.Create(session.Request{RepoURL: filepath.Join(t.TempDir(), "missing"), Prompt: "p"}, session.Credentials{})
	h.orch.Run(context.Background(), *sess)

	got, err := h.registry.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "initializing")
}

func TestBranchName(t *testing.T) {
	assert.Equal(t, "transform-abcd1234", branchName("abcd1234-5678"))
	assert.Equal(t, "transform-ab", branchName("ab"))
}

func TestCommitMessageTruncates(t *testing.T) {
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'a'
	}
	msg := commitMessage(string(long))
	assert.Len(t, msg, len("Apply AI transformations: ")+commitSubjectLimit)
}

func TestCommitMessageTruncatesOnRuneBoundary(t *testing.T) {
	prompt := strings.Repeat("ü", 60)
	msg := commitMessage(prompt)
	assert.True(t, utf8.ValidString(msg))
	assert.Equal(t, "Apply AI transformations: "+strings.Repeat("ü", commitSubjectLimit), msg)
}
