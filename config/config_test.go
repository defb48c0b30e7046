package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Level string `envconfig:"TEST_LEVEL" default:"info" validate:"oneof=debug info warn error" yaml:"level"`
	Topic string `envconfig:"TEST_TOPIC" validate:"required" yaml:"topic"`
	Size  int    `envconfig:"TEST_SIZE" default:"20" validate:"gte=1,lte=100" yaml:"size"`
}

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoader_YAMLThenEnv(t *testing.T) {
	path := writeFile(t, t.TempDir(), "level: debug\ntopic: orders-audit-logs\nsize: 50\n")
	t.Setenv("TEST_SIZE", "75")

	cfg, err := NewLoader[testConfig]("", path).Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, "orders-audit-logs", cfg.Topic)
	assert.Equal(t, 75, cfg.Size)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("TEST_TOPIC", "t")

	cfg, err := NewLoader[testConfig]("", filepath.Join(t.TempDir(), "absent.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, 20, cfg.Size)
}

func TestLoader_Validation(t *testing.T) {
	path := writeFile(t, t.TempDir(), "topic: t\nsize: 500\n")

	_, err := NewLoader[testConfig]("", path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Size")
}

func TestLoader_BadYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "topic: [unterminated\n")

	_, err := NewLoader[testConfig]("", path).Load()
	assert.Error(t, err)
}

func TestContainer_Update(t *testing.T) {
	c := NewContainer(&testConfig{Level: "info", Topic: "t", Size: 10})

	var calls atomic.Int32
	c.OnUpdate(func(old, updated *testConfig) {
		assert.Equal(t, "info", old.Level)
		assert.Equal(t, "debug", updated.Level)
		calls.Add(1)
	})

	require.NoError(t, c.Update(&testConfig{Level: "debug", Topic: "t", Size: 10}))
	assert.Equal(t, "debug", c.Get().Level)

	assert.Error(t, c.Update(&testConfig{Level: "loud", Topic: "t", Size: 10}))
	assert.Equal(t, "debug", c.Get().Level)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWatchAndReload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "level: info\ntopic: t\n")
	loader := NewLoader[testConfig]("", path)

	initial, err := loader.Load()
	require.NoError(t, err)
	c := NewContainer(initial)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go WatchAndReload(ctx, c, loader, 10*time.Millisecond, nil)

	// Give the watcher time to record the initial mtime.
	time.Sleep(30 * time.Millisecond)
	writeFile(t, dir, "level: warn\ntopic: t\n")
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	assert.Eventually(t, func() bool { return c.Get().Level == "warn" }, 2*time.Second, 10*time.Millisecond)
}

type sectionConfig struct {
	DSN string `envconfig:"TEST_DSN" validate:"required" yaml:"dsn"`
}

type nestedConfig struct {
	App      testConfig    `yaml:"app"`
	Database sectionConfig `validate:"-" yaml:"database"`
}

func TestLoader_NestedSections(t *testing.T) {
	path := writeFile(t, t.TempDir(), "app:\n  topic: from-yaml\n  size: 10\n")
	t.Setenv("TEST_LEVEL", "warn")

	cfg, err := NewLoader[nestedConfig]("", path).Load()
	require.NoError(t, err, "skipped section is not validated on load")
	assert.Equal(t, "from-yaml", cfg.App.Topic)
	assert.Equal(t, 10, cfg.App.Size)
	assert.Equal(t, "warn", cfg.App.Level)

	assert.Error(t, Validate(cfg.Database))
	cfg.Database.DSN = "postgres://localhost/audit"
	assert.NoError(t, Validate(cfg.Database))
}
