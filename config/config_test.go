package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidesync/replica/tick"
	"github.com/tidesync/replica/wire"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replica.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_OverridesKeepDefaults(t *testing.T) {
	path := writeConfig(t, `
[replication]
tick_interval = 50000000
strictness = "drop_record"

[network]
bind_address = "127.0.0.1:9000"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50*time.Millisecond, cfg.Replication.TickInterval)
	assert.Equal(t, "drop_record", cfg.Replication.Strictness)
	assert.Equal(t, "127.0.0.1:9000", cfg.Network.BindAddress)

	// Untouched sections keep their defaults.
	assert.Equal(t, 128, cfg.Network.InQueueSize)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Journal.Enabled)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestReplicationConfig_Policy(t *testing.T) {
	assert.Equal(t, tick.EveryPass(), ReplicationConfig{}.Policy())
	assert.Equal(t, tick.MaxTickRate(33*time.Millisecond),
		ReplicationConfig{TickInterval: 33 * time.Millisecond}.Policy())
}

func TestReplicationConfig_ParseStrictness(t *testing.T) {
	s, err := ReplicationConfig{}.ParseStrictness()
	require.NoError(t, err)
	assert.Equal(t, wire.RejectMessage, s)

	s, err = ReplicationConfig{Strictness: "drop_record"}.ParseStrictness()
	require.NoError(t, err)
	assert.Equal(t, wire.DropRecord, s)

	_, err = ReplicationConfig{Strictness: "lenient"}.ParseStrictness()
	var cerr *wire.ConfigError
	require.ErrorAs(t, err, &cerr)
}
