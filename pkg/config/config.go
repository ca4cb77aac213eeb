// Package config provides a reusable loader for go-summercash node
// configuration files and environment variables.
//
// Version: v0.1.0
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/SummerCash/go-summercash/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// NodeConfig is the unified bootstrap configuration for a go-summercash
// node: where its data lives, which network it joins, and how its network
// layer is reached. It is distinct from core.Config, the small per-network
// runtime config (reward_per_gas, network_name) that is persisted to and
// mutated through the ledger's config::* proposals — NodeConfig is read
// once at startup to locate and construct that runtime state.
type NodeConfig struct {
	DataDir     string `mapstructure:"data_dir" json:"data_dir"`
	NetworkName string `mapstructure:"network_name" json:"network_name"`
	NodeVersion string `mapstructure:"node_version" json:"node_version"`

	Network struct {
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		DiscoveryTag   string   `mapstructure:"discovery_tag" json:"discovery_tag"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
		MaxPeers       int      `mapstructure:"max_peers" json:"max_peers"`
	} `mapstructure:"network" json:"network"`

	Sync struct {
		PullIntervalMS int `mapstructure:"pull_interval_ms" json:"pull_interval_ms"`
		PushIntervalMS int `mapstructure:"push_interval_ms" json:"push_interval_ms"`
	} `mapstructure:"sync" json:"sync"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// setDefaults applies defaults before any file or environment override is
// read.
func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "./data")
	v.SetDefault("network_name", "andromeda")
	v.SetDefault("node_version", "0.1.0")
	v.SetDefault("network.listen_addr", "/ip4/0.0.0.0/tcp/0")
	v.SetDefault("network.discovery_tag", "go-summercash")
	v.SetDefault("network.max_peers", 64)
	v.SetDefault("sync.pull_interval_ms", 5000)
	v.SetDefault("sync.push_interval_ms", 5000)
	v.SetDefault("logging.level", "info")
}

// Load reads configPath (if non-empty) as a YAML node config, merges any
// SUMMERCASH_-prefixed environment overrides, and returns the result.
func Load(configPath string) (*NodeConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("read config %s", configPath))
		}
	}

	v.SetEnvPrefix("SUMMERCASH")
	v.AutomaticEnv()

	var cfg NodeConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, utils.Wrap(err, "unmarshal node config")
	}
	return &cfg, nil
}

// LoadFromEnv loads configuration using the SUMMERCASH_CONFIG environment
// variable to locate the config file, if set.
func LoadFromEnv() (*NodeConfig, error) {
	return Load(utils.EnvOrDefault("SUMMERCASH_CONFIG", ""))
}
