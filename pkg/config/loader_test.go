package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadMergesEnvironmentFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
server:
  port: ":3001"
storage:
  mode: memory
db:
  host: db.internal
  port: 5432
  slow_query: 250ms
jwt:
  secret: "${JWT_SIGNING_KEY}"
`)
	writeFile(t, dir, "staging.yaml", `
storage:
  mode: postgres
db:
  host: staging-db
`)
	writeFile(t, dir, "secrets.env", "JWT_SIGNING_KEY=\"s3cr3t\"\n")

	cfg, err := Load("staging", dir)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Env)
	assert.Equal(t, "postgres", cfg.Storage.Mode)
	assert.Equal(t, "staging-db", cfg.DB.Host)
	assert.Equal(t, 5432, cfg.DB.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.DB.SlowQuery)
	assert.Equal(t, "s3cr3t", cfg.JWT.Secret)
	// untouched sections keep their defaults
	assert.Equal(t, int64(10), cfg.Market.CommissionPercent)
	assert.Equal(t, "https://picsum.photos/seed", cfg.AI.PlaceholderBase)
}

func TestLoadWithoutConfigDirUsesDefaults(t *testing.T) {
	cfg, err := Load("", filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Mode)
	assert.Equal(t, "/api", cfg.Server.BasePath)
}

func TestEnvironmentOverridesWin(t *testing.T) {
	t.Setenv("STORAGE_MODE", "redis")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("API_KEY", "legacy-key")
	t.Setenv("GEMINI_API_KEY", "gemini-key")

	cfg, err := Load("", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Storage.Mode)
	assert.Equal(t, 6543, cfg.DB.Port)
	assert.Equal(t, "gemini-key", cfg.AI.APIKey)
}

func TestMergeMapsIsRecursive(t *testing.T) {
	dst := map[string]interface{}{
		"db": map[string]interface{}{"host": "a", "port": 1},
		"x":  "keep",
	}
	src := map[string]interface{}{
		"db": map[string]interface{}{"host": "b"},
	}

	merged := mergeMaps(dst, src)
	db := merged["db"].(map[string]interface{})
	assert.Equal(t, "b", db["host"])
	assert.Equal(t, 1, db["port"])
	assert.Equal(t, "keep", merged["x"])
}
