package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/physiq-backend/internal/clock"
	"github.com/AnshRaj112/physiq-backend/internal/config"
)

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, loadEnv(filepath.Join(dir, "missing.env"), false))
	assert.Error(t, loadEnv(filepath.Join(dir, "missing.env"), true))

	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("PHYSIQ_CLI_TEST_VALUE=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("PHYSIQ_CLI_TEST_VALUE") })

	require.NoError(t, loadEnv(path, true))
	assert.Equal(t, "from-file", os.Getenv("PHYSIQ_CLI_TEST_VALUE"))
}

func memoryConfig() *config.Config {
	return &config.Config{
		Environment:            "development",
		StoreDriver:            config.StoreMemory,
		MessageStore:           config.MessageStoreDefault,
		SessionStore:           config.SessionStoreMemory,
		SessionSecret:          "test-secret",
		AllowedOrigins:         []string{"http://localhost:3000"},
		MessagingEnforceBlocks: true,
	}
}

func TestNewServer_Memory(t *testing.T) {
	b, err := openBackends(context.Background(), memoryConfig(), true)
	require.NoError(t, err)
	defer b.Close()
	assert.Nil(t, b.redis)
	assert.Nil(t, b.sql)

	srv := newServer(memoryConfig(), b, clock.Real())
	defer srv.onboarding.Close()

	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOpenBackends_UnknownDriver(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreDriver = "oracle"
	_, err := openBackends(context.Background(), cfg, false)
	assert.Error(t, err)
}

func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestMaintenanceCommands_SQLite(t *testing.T) {
	t.Setenv("STORE_DRIVER", config.StoreSQLite)
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "physiq.db"))
	t.Setenv("SESSION_STORE", config.SessionStoreMemory)
	t.Setenv("MESSAGE_STORE", config.MessageStoreDefault)

	envFile := filepath.Join(t.TempDir(), "none.env")
	require.NoError(t, os.WriteFile(envFile, nil, 0o600))

	runCommand(t, "--env-file", envFile, "migrate")
	assert.Equal(t, "seeded 5 users, 5 rewards\n", runCommand(t, "--env-file", envFile, "seed"))
	assert.Equal(t, "seeded 0 users, 0 rewards\n", runCommand(t, "--env-file", envFile, "seed"))
	assert.Equal(t, "reset monthly votes for 0 members\n", runCommand(t, "--env-file", envFile, "reset-monthly"))
}

func TestSeedCommand_RejectsMemoryStore(t *testing.T) {
	t.Setenv("STORE_DRIVER", config.StoreMemory)
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--env-file", filepath.Join(t.TempDir(), "x.env"), "seed"})
	// The explicit env file is missing, so the command fails before seeding.
	assert.Error(t, cmd.Execute())

	cmd = NewRootCommand()
	cmd.SetArgs([]string{"seed"})
	assert.Error(t, cmd.Execute())
}
