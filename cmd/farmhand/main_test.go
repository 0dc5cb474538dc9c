package main

import (
	"bytes"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erauner12/farmhand/internal/mockapi"
)

// cliEnv points the CLI at a seeded mock backend and a temp state file
func cliEnv(t *testing.T, backend string) *mockapi.Server {
	t.Helper()
	mock, err := mockapi.New(mockapi.Options{JWTSecret: "cli-secret", TokenTTL: time.Hour, BcryptCost: 4})
	require.NoError(t, err)
	require.NoError(t, mock.Seed("password"))

	srv := httptest.NewServer(mock.Routes())
	t.Cleanup(srv.Close)

	statePath := filepath.Join(t.TempDir(), "state.json")
	if backend == "sqlite" {
		statePath = filepath.Join(t.TempDir(), "state.db")
	}
	t.Setenv("FARMHAND_API_BASE_URL", srv.URL+"/api")
	t.Setenv("FARMHAND_STATE_BACKEND", backend)
	t.Setenv("FARMHAND_STATE_PATH", statePath)
	t.Setenv("FARMHAND_REFRESH_DECISION_DELAY", "100ms")
	t.Setenv("FARMHAND_PROBE_ADDR", srv.Listener.Addr().String())
	t.Setenv("ENV", "")
	return mock
}

// run executes one CLI invocation, as a fresh process would
func run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer

	cmd, done := rootCmd()
	cmd.SetArgs(append([]string{"--env-file", "", "--log-level", "error"}, args...))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(""))

	err = cmd.Execute()
	done(&errOut)
	return out.String(), errOut.String(), err
}

func TestCLI_SessionLifecycle(t *testing.T) {
	cliEnv(t, "file")

	out, _, err := run(t, "login", "-e", "farmer@farmhand.local", "-p", "password")
	require.NoError(t, err)
	assert.Contains(t, out, "Welcome back, Demo farmer.")
	assert.Contains(t, out, "/farmer/dashboard")

	out, _, err = run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "<farmer@farmhand.local>")
	assert.Contains(t, out, "role:      farmer")

	out, _, err = run(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "You have been logged out.")

	_, _, err = run(t, "whoami")
	require.Error(t, err)
	assert.Equal(t, "You are not logged in.", err.Error())
}

func TestCLI_BadCredentials(t *testing.T) {
	cliEnv(t, "file")

	_, stderr, err := run(t, "login", "-e", "farmer@farmhand.local", "-p", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Invalid email or password", err.Error())
	assert.NotContains(t, stderr, "expired", "bad credentials are not a lost session")
}

func TestCLI_FarmsAndDashboard(t *testing.T) {
	cliEnv(t, "sqlite")

	_, _, err := run(t, "login", "-e", "farmer@farmhand.local", "-p", "password")
	require.NoError(t, err)

	out, _, err := run(t, "farms", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Green Valley")

	out, _, err = run(t, "farms", "select", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Selected farm: Green Valley")

	out, _, err = run(t, "farms", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "location: Nakuru")

	out, _, err = run(t, "dashboard")
	require.NoError(t, err)
	assert.Contains(t, out, "farmer dashboard")
	assert.Regexp(t, `animals\s+1`, out)
	assert.Regexp(t, `tasks\s+1`, out)

	// The selection outlives the session
	_, _, err = run(t, "logout")
	require.NoError(t, err)
	out, _, err = run(t, "farms", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Green Valley")

	out, _, err = run(t, "farms", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Farm selection cleared.")
}

func TestCLI_Notifications(t *testing.T) {
	cliEnv(t, "file")

	_, _, err := run(t, "login", "-e", "farmer@farmhand.local", "-p", "password")
	require.NoError(t, err)

	out, _, err := run(t, "notifications", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Vaccination due")
	assert.Contains(t, out, "2 unread notifications")

	out, _, err = run(t, "notifications", "read", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "All notifications marked as read.")

	out, _, err = run(t, "notifications", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "0 unread notifications")
}

func TestCLI_RevokedSessionIsCleared(t *testing.T) {
	mock := cliEnv(t, "file")

	_, _, err := run(t, "login", "-e", "worker@farmhand.local", "-p", "password")
	require.NoError(t, err)

	mock.Sessions().DeleteAll()

	_, stderr, err := run(t, "farms", "list")
	require.Error(t, err)
	assert.Contains(t, stderr, "Your session has expired.")

	// The stored token is gone for the next invocation
	_, _, err = run(t, "whoami")
	require.Error(t, err)
	assert.Equal(t, "You are not logged in.", err.Error())
}

func TestCLI_LanguageAndTheme(t *testing.T) {
	cliEnv(t, "file")

	out, _, err := run(t, "lang", "set", "fr")
	require.NoError(t, err)
	assert.Contains(t, out, "Langue définie sur le français.")

	out, _, err = run(t, "lang", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "* fr")

	_, _, err = run(t, "lang", "set", "xx")
	assert.Error(t, err)

	// The choice persists and translates later invocations
	out, _, err = run(t, "farms", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Aucune ferme sélectionnée.")

	out, _, err = run(t, "theme", "dark")
	require.NoError(t, err)
	assert.Equal(t, "dark\n", out)

	out, _, err = run(t, "theme")
	require.NoError(t, err)
	assert.Equal(t, "dark\n", out)

	_, _, err = run(t, "theme", "neon")
	assert.Error(t, err)
}
