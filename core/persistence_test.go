package core

import (
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeGenesisFile(t *testing.T, dataDir, networkName string, cfg *GenesisConfig) {
	t.Helper()
	path := GenesisPath(dataDir, networkName)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	b, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
}

func TestBootstrapNodeConstructsGenesisOnFirstRun(t *testing.T) {
	dataDir := t.TempDir()
	writeGenesisFile(t, dataDir, "testnet", &GenesisConfig{
		Alloc:      map[Address]*big.Int{{1}: big.NewInt(1000)},
		TotalValue: big.NewInt(1000),
	})

	sys, ks, err := BootstrapNode(dataDir, "testnet", "1.0.0")
	require.NoError(t, err)
	require.NotNil(t, ks)
	// root + one allocation node + finalization node.
	require.Equal(t, 3, sys.Ledger().Len())
	require.Equal(t, "testnet", sys.Config().NetworkName)
}

func TestBootstrapNodeWithoutGenesisFileYieldsEmptyLedger(t *testing.T) {
	dataDir := t.TempDir()

	sys, _, err := BootstrapNode(dataDir, "testnet", "1.0.0")
	require.NoError(t, err)
	require.Equal(t, 0, sys.Ledger().Len())
	require.Equal(t, "testnet", sys.Config().NetworkName)
}

func TestBootstrapNodeIsIdempotentAcrossRestarts(t *testing.T) {
	dataDir := t.TempDir()
	writeGenesisFile(t, dataDir, "testnet", &GenesisConfig{
		Alloc:      map[Address]*big.Int{{1}: big.NewInt(500)},
		TotalValue: big.NewInt(500),
	})

	first, _, err := BootstrapNode(dataDir, "testnet", "1.0.0")
	require.NoError(t, err)
	headAfterFirst := first.Ledger().HeadHash()

	second, _, err := BootstrapNode(dataDir, "testnet", "1.0.0")
	require.NoError(t, err)
	require.Equal(t, headAfterFirst, second.Ledger().HeadHash())
	require.Equal(t, first.Ledger().Len(), second.Ledger().Len())
}

func TestBootstrapNodePersistsKeystoreIdentity(t *testing.T) {
	dataDir := t.TempDir()

	_, ks1, err := BootstrapNode(dataDir, "testnet", "1.0.0")
	require.NoError(t, err)
	id1, err := ks1.LoadPeerIdentity()
	require.NoError(t, err)

	_, ks2, err := BootstrapNode(dataDir, "testnet", "1.0.0")
	require.NoError(t, err)
	id2, err := ks2.LoadPeerIdentity()
	require.NoError(t, err)

	require.Equal(t, id1.Address, id2.Address)
}
