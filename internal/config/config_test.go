package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("LLMFLOW_API_KEY", "")
	t.Setenv("LLMFLOW_TODO_FILE", "")
	dir := t.TempDir()

	cfg, err := Load(filepath.Join(dir, "llmflow.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout())
	assert.Equal(t, "file", cfg.Storage.Todo.Driver)
	assert.Equal(t, filepath.Join(dir, "todos.json"), cfg.Storage.Todo.File)
	assert.Equal(t, "https://nominatim.openstreetmap.org/search", cfg.Weather.GeocodeURL)
	assert.Equal(t, "WeatherApp/1.0", cfg.Weather.UserAgent)
	assert.Equal(t, "memory", cfg.Queue.Driver)
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("LLMFLOW_API_KEY", "")
	t.Setenv("LLMFLOW_TODO_FILE", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "llmflow.yaml")
	content := `
llm:
  provider: openai
  model: gpt-4o-mini
  api_key_env: TEST_LLMFLOW_KEY
  timeout_seconds: 5
storage:
  todo:
    driver: redis
    redis:
      address: localhost:6379
knowledge:
  source: data/faq.json
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("TEST_LLMFLOW_KEY", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout())
	assert.Equal(t, "secret", cfg.LLM.ResolveAPIKey())
	assert.Equal(t, "redis", cfg.Storage.Todo.Driver)
	assert.Equal(t, "llmflow:todos", cfg.Storage.Todo.Redis.Key)
	assert.Equal(t, filepath.Join(dir, "data", "faq.json"), cfg.Knowledge.Source)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMySQLPoolSettings(t *testing.T) {
	t.Setenv("LLMFLOW_TODO_FILE", "")
	path := filepath.Join(t.TempDir(), "llmflow.yaml")
	content := `
storage:
  todo:
    driver: mysql
    dsn: "llmflow:secret@tcp(127.0.0.1:3306)/llmflow"
    max_open_conns: 10
    max_idle_conns: 5
    conn_max_lifetime_seconds: 300
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	todo := cfg.Storage.Todo
	assert.Equal(t, 10, todo.MaxOpenConns)
	assert.Equal(t, 5, todo.MaxIdleConns)
	assert.Equal(t, 5*time.Minute, todo.ConnMaxLifetime())
}

func TestShippedConfigBridgeScriptExists(t *testing.T) {
	t.Setenv("LLMFLOW_TODO_FILE", "")
	cfg, err := Load(filepath.Join("..", "..", "configs", "llmflow.yaml"))
	require.NoError(t, err)

	script := filepath.Join(cfg.LLM.Python.WorkingDir, cfg.LLM.Python.ScriptPath)
	info, err := os.Stat(script)
	require.NoError(t, err)
	assert.False(t, info.IsDir())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("LLMFLOW_API_KEY", "from-env")
	t.Setenv("LLMFLOW_TODO_FILE", "/tmp/custom-todos.json")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.LLM.ResolveAPIKey())
	assert.Equal(t, "/tmp/custom-todos.json", cfg.Storage.Todo.File)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [unterminated"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRequiresPath(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
}
