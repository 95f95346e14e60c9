package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, int64(32768), cfg.ReadLimit)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 60*time.Second, cfg.PongWait)
	assert.Equal(t, 10*time.Second, cfg.WriteWait)
	assert.Equal(t, 32, cfg.SendBuffer)
	assert.Equal(t, 30, cfg.PublishLimit)
	assert.Equal(t, time.Second, cfg.PublishInterval)
	assert.Equal(t, 64, cfg.QueueSize)
	assert.Equal(t, "drop", cfg.SlowConsumer)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "./data/chat.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 3, cfg.Storage.AppendRetries)
	assert.Empty(t, cfg.AllowedRooms)
}

func TestLoadFileReadsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: debug
port: 9090
queue_size: 8
allowed_rooms: [1, 42]
storage:
  driver: sqlite
  sqlite_path: /tmp/x.db
`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 8, cfg.QueueSize)
	assert.Equal(t, []int64{1, 42}, cfg.AllowedRooms)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "/tmp/x.db", cfg.Storage.SQLitePath)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("CHAT_PORT", "7070")
	t.Setenv("CHAT_STORAGE_DRIVER", "postgres")
	t.Setenv("CHAT_STORAGE_DATABASE_URL", "postgres://localhost/chat")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "postgres://localhost/chat", cfg.Storage.DatabaseURL)
}

func TestValidateRejects(t *testing.T) {
	base := func() Config {
		return Config{
			Mode:         "release",
			Port:         8080,
			PingPeriod:   54 * time.Second,
			PongWait:     60 * time.Second,
			SendBuffer:   32,
			QueueSize:    64,
			SlowConsumer: "drop",
			Storage:      Storage{Driver: "memory"},
		}
	}
	good := base()
	require.NoError(t, good.Validate())

	cases := map[string]func(c *Config){
		"mode":             func(c *Config) { c.Mode = "loud" },
		"port":             func(c *Config) { c.Port = 0 },
		"pong before ping": func(c *Config) { c.PongWait = c.PingPeriod },
		"queue":            func(c *Config) { c.QueueSize = 0 },
		"slow consumer":    func(c *Config) { c.SlowConsumer = "block" },
		"driver":           func(c *Config) { c.Storage.Driver = "mongo" },
		"postgres url":     func(c *Config) { c.Storage.Driver = "postgres" },
		"sqlite path":      func(c *Config) { c.Storage.Driver = "sqlite" },
		"allowed rooms":    func(c *Config) { c.AllowedRooms = []int64{3, 0} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
