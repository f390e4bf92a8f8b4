package environment

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSandbox is an in-memory Sandbox for provisioner tests.
type fakeSandbox struct {
	createErr    error
	sessionID    string
	closed       []string
	closeErr     error
	createCalled int
}

func (f *fakeSandbox) CreateSession(ctx context.Context) (string, error) {
	f.createCalled++
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.sessionID, nil
}

func (f *fakeSandbox) WriteFile(ctx context.Context, sessionID, path, content string) error {
	return nil
}

func (f *fakeSandbox) RemoveFile(ctx context.Context, sessionID, path string) error {
	return nil
}

func (f *fakeSandbox) RunCommand(ctx context.Context, sessionID, dir string, argv []string) (CommandResult, error) {
	return CommandResult{}, nil
}

func (f *fakeSandbox) ListFiles(ctx context.Context, sessionID, dir string) ([]string, error) {
	return nil, nil
}

func (f *fakeSandbox) CloseSession(ctx context.Context, sessionID string) error {
	f.closed = append(f.closed, sessionID)
	return f.closeErr
}

func TestProvisionRemote(t *testing.T) {
	sandbox := &fakeSandbox{sessionID: "sb-1"}
	p := NewProvisioner(sandbox, nil)

	env, err := p.Provision(context.Background())
	require.NoError(t, err)
	defer p.Teardown(context.Background(), env)

	assert.Equal(t, KindRemote, env.Kind())
	assert.Equal(t, "sb-1", env.SessionID())
	assert.Empty(t, env.Root())
}

func TestProvisionFallsBackToLocalOnRemoteError(t *testing.T) {
	sandbox := &fakeSandbox{createErr: errors.New("quota exceeded")}
	p := NewProvisioner(sandbox, nil)

	env, err := p.Provision(context.Background())
	require.NoError(t, err, "remote failure must not surface")
	defer p.Teardown(context.Background(), env)

	assert.Equal(t, KindLocal, env.Kind())
	require.NotEmpty(t, env.Root())
	_, statErr := os.Stat(env.Root())
	assert.NoError(t, statErr)
}

func TestProvisionLocalWhenNoSandboxConfigured(t *testing.T) {
	p := NewProvisioner(nil, nil)

	env, err := p.Provision(context.Background())
	require.NoError(t, err)
	defer p.Teardown(context.Background(), env)

	assert.Equal(t, KindLocal, env.Kind())
}

func TestTeardownRemovesLocalRoot(t *testing.T) {
	p := NewProvisioner(nil, nil)
	env, err := p.Provision(context.Background())
	require.NoError(t, err)

	p.Teardown(context.Background(), env)

	_, statErr := os.Stat(env.Root())
	assert.True(t, os.IsNotExist(statErr))
}

func TestTeardownIsIdempotent(t *testing.T) {
	sandbox := &fakeSandbox{sessionID: "sb-2"}
	p := NewProvisioner(sandbox, nil)

	env, err := p.Provision(context.Background())
	require.NoError(t, err)

	p.Teardown(context.Background(), env)
	p.Teardown(context.Background(), env)
	p.Teardown(context.Background(), env)

	assert.Equal(t, []string{"sb-2"}, sandbox.closed, "close must run exactly once")
}

func TestTeardownNilEnvironment(t *testing.T) {
	p := NewProvisioner(nil, nil)
	assert.NotPanics(t, func() {
		p.Teardown(context.Background(), nil)
	})
}

func TestNewHTTPSandboxRequiresCredentials(t *testing.T) {
	assert.Nil(t, NewHTTPSandbox(sandboxConfigWith("", "")))
	assert.Nil(t, NewHTTPSandbox(sandboxConfigWith("https://sandbox.example", "")))
	assert.NotNil(t, NewHTTPSandbox(sandboxConfigWith("https://sandbox.example", "key")))
}
