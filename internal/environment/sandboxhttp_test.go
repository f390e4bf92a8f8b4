package environment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/transformd/internal/config"
)

func sandboxConfigWith(baseURL, key string) config.SandboxConfig {
	return config.SandboxConfig{BaseURL: baseURL, APIKey: config.Secret(key)}
}

func TestHTTPSandboxRoundTrips(t *testing.T) {
	var gotWrite fileRequest
	var gotExec execRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/sessions":
			json.NewEncoder(w).Encode(createSessionResponse{SessionID: "sb-9"})
		case r.Method == http.MethodPut && r.URL.Path == "/v1/sessions/sb-9/files":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotWrite))
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPost && r.URL.Path == "/v1/sessions/sb-9/exec":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotExec))
			json.NewEncoder(w).Encode(CommandResult{Output: "ok", ExitCode: 0})
		case r.Method == http.MethodDelete && r.URL.Path == "/v1/sessions/sb-9":
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	sb := NewHTTPSandbox(sandboxConfigWith(srv.URL, "test-key"))
	require.NotNil(t, sb)
	ctx := context.Background()

	id, err := sb.CreateSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sb-9", id)

	require.NoError(t, sb.WriteFile(ctx, id, "src/app.py", "print('hi # $(rm -rf /)')"))
	// Content travels as data; hostile strings arrive byte for byte.
	assert.Equal(t, "src/app.py", gotWrite.Path)
	assert.Equal(t, "print('hi # $(rm -rf /)')", gotWrite.Content)

	result, err := sb.RunCommand(ctx, id, "repo", []string{"git", "status"})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Output)
	assert.False(t, result.Failed())
	assert.Equal(t, []string{"git", "status"}, gotExec.Argv)
	assert.Equal(t, "repo", gotExec.Dir)

	require.NoError(t, sb.CloseSession(ctx, id))
}

func TestHTTPSandboxCloseUnknownSessionIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	sb := NewHTTPSandbox(sandboxConfigWith(srv.URL, "k"))
	assert.NoError(t, sb.CloseSession(context.Background(), "gone"))
}

func TestHTTPSandboxSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sb := NewHTTPSandbox(sandboxConfigWith(srv.URL, "k"))
	_, err := sb.CreateSession(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestHTTPSandboxRunCommandRejectsEmptyArgv(t *testing.T) {
	sb := NewHTTPSandbox(sandboxConfigWith("http://localhost:0", "k"))
	_, err := sb.RunCommand(context.Background(), "sb", "", nil)
	require.Error(t, err)
}
