package validation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/transformd/internal/config"
	"github.com/fyrsmithlabs/transformd/internal/environment"
	"github.com/fyrsmithlabs/transformd/internal/logging"
)

func newRunner(t *testing.T, command []string, timeout time.Duration, sandbox environment.Sandbox) *Runner {
	t.Helper()
	r, err := NewRunner(config.ValidationConfig{
		Command: command,
		Timeout: config.Duration(timeout),
	}, sandbox, logging.NewNop())
	require.NoError(t, err)
	return r
}

func TestNewRunnerRejectsEmptyCommand(t *testing.T) {
	_, err := NewRunner(config.ValidationConfig{}, nil, logging.NewNop())
	require.Error(t, err)
}

func TestRunLocalPass(t *testing.T) {
	env := environment.NewLocal(t.TempDir())
	require.NoError(t, os.MkdirAll(filepath.Join(env.Root(), "repo"), 0o755))

	r := newRunner(t, []string{"sh", "-c", "echo all tests passed"}, 10*time.Second, nil)
	res, err := r.Run(context.Background(), env, "repo")
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.False(t, res.TimedOut)
	assert.Contains(t, res.Output, "all tests passed")
}

func TestRunLocalFailureIsReportedNotRaised(t *testing.T) {
	env := environment.NewLocal(t.TempDir())
	require.NoError(t, os.MkdirAll(filepath.Join(env.Root(), "repo"), 0o755))

	r := newRunner(t, []string{"sh", "-c", "echo 2 failed; exit 1"}, 10*time.Second, nil)
	res, err := r.Run(context.Background(), env, "repo")
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.False(t, res.TimedOut)
	assert.Contains(t, res.Output, "2 failed")
}

func TestRunLocalTimeout(t *testing.T) {
	env := environment.NewLocal(t.TempDir())
	require.NoError(t, os.MkdirAll(filepath.Join(env.Root(), "repo"), 0o755))

	r := newRunner(t, []string{"sleep", "5"}, 100*time.Millisecond, nil)
	res, err := r.Run(context.Background(), env, "repo")
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.False(t, res.Passed)
}

func TestRunLocalRunsInRepoDir(t *testing.T) {
	env := environment.NewLocal(t.TempDir())
	repo := filepath.Join(env.Root(), "repo")
	require.NoError(t, os.MkdirAll(repo, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "marker.txt"), []byte("here"), 0o644))

	r := newRunner(t, []string{"cat", "marker.txt"}, 10*time.Second, nil)
	res, err := r.Run(context.Background(), env, "repo")
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Contains(t, res.Output, "here")
}

// execSandbox serves one canned command result.
type execSandbox struct {
	environment.Sandbox

	gotDir  string
	gotArgv []string
	result  environment.CommandResult
}

func (s *execSandbox) RunCommand(_ context.Context, _ string, dir string, argv []string) (environment.CommandResult, error) {
	s.gotDir = dir
	s.gotArgv = argv
	return s.result, nil
}

func TestRunRemote(t *testing.T) {
	sb := &execSandbox{result: environment.CommandResult{Output: "4 passed", ExitCode: 0}}
	env := environment.NewRemote("sess-1")

	r := newRunner(t, []string{"python", "-m", "pytest", "--tb=short"}, 10*time.Second, sb)
	res, err := r.Run(context.Background(), env, "repo")
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, "4 passed", res.Output)
	assert.Equal(t, "repo", sb.gotDir)
	assert.Equal(t, []string{"python", "-m", "pytest", "--tb=short"}, sb.gotArgv)
}

func TestRunRemoteFailure(t *testing.T) {
	sb := &execSandbox{result: environment.CommandResult{Output: "1 failed", ExitCode: 1}}
	env := environment.NewRemote("sess-1")

	r := newRunner(t, []string{"python", "-m", "pytest"}, 10*time.Second, sb)
	res, err := r.Run(context.Background(), env, "repo")
	require.NoError(t, err)
	assert.False(t, res.Passed)
}

func TestRunRemoteWithoutSandbox(t *testing.T) {
	env := environment.NewRemote("sess-1")

	r := newRunner(t, []string{"python", "-m", "pytest"}, 10*time.Second, nil)
	_, err := r.Run(context.Background(), env, "repo")
	require.Error(t, err)
}
