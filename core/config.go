package core

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
)

// Config is the per-network runtime configuration named in §3, persisted at
// config/network_<network_name>.json.
type Config struct {
	RewardPerGas uint64 `json:"reward_per_gas"`
	NetworkName  string `json:"network_name"`
	NodeVersion  string `json:"node_version"`
}

// ConfigPath returns the on-disk path for networkName's config file under
// dataDir, per §6's persistence layout.
func ConfigPath(dataDir, networkName string) string {
	return filepath.Join(dataDir, "config", "network_"+networkName+".json")
}

// LoadConfig reads a previously persisted Config for networkName.
func LoadConfig(dataDir, networkName string) (*Config, error) {
	b, err := os.ReadFile(ConfigPath(dataDir, networkName))
	if err != nil {
		return nil, Wrap(err, "read config")
	}
	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, Wrap(err, "unmarshal config")
	}
	return &c, nil
}

// Save persists c to dataDir/config/network_<c.NetworkName>.json.
func (c *Config) Save(dataDir string) error {
	path := ConfigPath(dataDir, c.NetworkName)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Wrap(err, "create config dir")
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return Wrap(err, "marshal config")
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return Wrap(err, "write config")
	}
	return nil
}

// leUint64 decodes a little-endian uint64, per §4.3's LE_to_uint. Shorter
// inputs are zero-extended; longer inputs are truncated to 8 bytes.
func leUint64(b []byte) uint64 {
	var buf [8]byte
	copy(buf[:], b)
	return binary.LittleEndian.Uint64(buf[:])
}

// leBytes encodes v as 8 little-endian bytes, the inverse of leUint64, used
// when an Append operation needs to add to an existing LE-encoded value.
func leBytes(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}
