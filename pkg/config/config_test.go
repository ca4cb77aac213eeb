package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "andromeda", cfg.NetworkName)
	require.Equal(t, "./data", cfg.DataDir)
	require.Equal(t, 64, cfg.Network.MaxPeers)
	require.Equal(t, 5000, cfg.Sync.PullIntervalMS)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "network_name: vela\ndata_dir: /var/lib/go-summercash\nnetwork:\n  max_peers: 32\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "vela", cfg.NetworkName)
	require.Equal(t, "/var/lib/go-summercash", cfg.DataDir)
	require.Equal(t, 32, cfg.Network.MaxPeers)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadEnvOverridesFileAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("network_name: vela\n"), 0o600))
	t.Setenv("SUMMERCASH_NETWORK_NAME", "testnet")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "testnet", cfg.NetworkName)

	cfg, err = Load("")
	require.NoError(t, err)
	require.Equal(t, "testnet", cfg.NetworkName)
}

func TestLoadFromEnvUsesConfigPathVariable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("network_name: fromenv\n"), 0o600))
	t.Setenv("SUMMERCASH_CONFIG", path)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	require.Equal(t, "fromenv", cfg.NetworkName)
}
