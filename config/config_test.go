package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.json")

	cfg := NewEmptyConfig(path)
	cfg.Node.NodeID = "node2"
	cfg.Network.HTTPListenAddress = ":5002"
	cfg.Network.AdvertisedAddress = "192.168.1.137:5002"
	cfg.Bootstrap.PollInterval = Duration(500 * time.Millisecond)
	require.NoError(t, cfg.Save())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"poll_interval": "500ms"`)

	loaded, err := NewConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "node2", loaded.Node.NodeID)
	assert.Equal(t, ":5002", loaded.Network.HTTPListenAddress)
	assert.Equal(t, "http://192.168.1.137:5002", loaded.Network.AdvertisedAddress)
	assert.Equal(t, 500*time.Millisecond, loaded.Bootstrap.PollInterval.Std())
	assert.Equal(t, path, loaded.File())
}

func TestConfigValidateDefaults(t *testing.T) {
	orig := osHostname
	defer func() { osHostname = orig }()

	osHostname = func() (string, error) { return "", errors.New("no hostname") }

	cfg := NewEmptyConfig("")
	cfg.Bootstrap.ReadyTimeout = 0
	require.NoError(t, cfg.Validate())
	assert.True(t, strings.HasPrefix(cfg.Node.NodeID, "node-"))
	assert.Equal(t, 30*time.Second, cfg.Bootstrap.ReadyTimeout.Std())

	osHostname = func() (string, error) { return "box", nil }
	cfg = NewEmptyConfig("")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "box", cfg.Node.NodeID)
}

func TestConfigValidateRejects(t *testing.T) {
	cfg := NewEmptyConfig("")
	cfg.Network.AdvertisedAddress = "not-a-valid-address"
	assert.Error(t, cfg.Validate())

	cfg = NewEmptyConfig("")
	cfg.Network.HTTPListenAddress = ""
	assert.Error(t, cfg.Validate())

	cfg = NewEmptyConfig("")
	cfg.Bootstrap.PollInterval = Duration(time.Minute)
	assert.Error(t, cfg.Validate())

	cfg = NewEmptyConfig("")
	cfg.Log.UseStdOut = false
	assert.Error(t, cfg.Validate())
}

func TestDurationNumeric(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`1000000000`)))
	assert.Equal(t, time.Second, d.Std())
	assert.Error(t, d.UnmarshalJSON([]byte(`"soon"`)))
}
