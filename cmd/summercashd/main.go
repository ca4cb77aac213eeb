package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	log "github.com/sirupsen/logrus"

	"github.com/SummerCash/go-summercash/core"
	"github.com/SummerCash/go-summercash/pkg/config"
)

func main() {
	root := &cobra.Command{Use: "summercashd"}
	root.AddCommand(startCmd())
	root.AddCommand(accountCmd())
	root.AddCommand(genesisCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func startCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "bootstrap local state and join the network",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML node config file")
	return cmd
}

func runNode(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"network": cfg.NetworkName, "data_dir": cfg.DataDir}).Info("summercashd: starting")

	sys, ks, err := core.BootstrapNode(cfg.DataDir, cfg.NetworkName, cfg.NodeVersion)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go waitForSignal(cancel)

	h, ps, err := core.NewHost(ctx, core.HostConfig{
		ListenAddr:     cfg.Network.ListenAddr,
		DiscoveryTag:   cfg.Network.DiscoveryTag,
		BootstrapPeers: cfg.Network.BootstrapPeers,
	})
	if err != nil {
		return err
	}
	defer h.Close()

	peers := core.NewPeerSet(cfg.NetworkName, cfg.NodeVersion, core.NewLibP2PPinger(h))
	core.WireIdentify(h, peers)
	go peers.LivenessLoop(ctx, 30*time.Second)

	flood, err := core.NewFlood(ps, sys, ks)
	if err != nil {
		return err
	}
	flood.Run(ctx)

	kv := core.NewLibP2PKVStore(h, cfg.NetworkName)
	quorum := func() int { return core.QuorumFromPeerCount(peers.Count()) }
	syncEngine := core.NewSyncEngine(kv, sys, quorum)

	runSyncLoop(ctx, syncEngine, flood, cfg)

	log.Info("summercashd: shutting down")
	return nil
}

// runSyncLoop drives the node's three outbound ticks — pull, push, and
// publishing locally queued proposals — until ctx is canceled.
func runSyncLoop(ctx context.Context, syncEngine *core.SyncEngine, flood *core.Flood, cfg *config.NodeConfig) {
	pullEvery := time.Duration(cfg.Sync.PullIntervalMS) * time.Millisecond
	pushEvery := time.Duration(cfg.Sync.PushIntervalMS) * time.Millisecond

	pullTicker := time.NewTicker(pullEvery)
	pushTicker := time.NewTicker(pushEvery)
	defer pullTicker.Stop()
	defer pushTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pullTicker.C:
			if err := syncEngine.Pull(ctx); err != nil {
				log.WithError(err).Warn("summercashd: pull failed")
			}
		case <-pushTicker.C:
			syncEngine.Push(ctx)
			flood.PublishLocalized(ctx)
		}
	}
}

func waitForSignal(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	cancel()
}

func accountCmd() *cobra.Command {
	var dataDir string
	cmd := &cobra.Command{Use: "account", Short: "manage local keystore accounts"}

	create := &cobra.Command{
		Use:   "create",
		Short: "generate and persist a new account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := core.NewKeystore(dataDir)
			if err != nil {
				return err
			}
			acc, err := ks.Create()
			if err != nil {
				return err
			}
			fmt.Println(acc.Address.String())
			return nil
		},
	}
	create.Flags().StringVar(&dataDir, "datadir", "./data", "node data directory")
	cmd.AddCommand(create)
	return cmd
}

func genesisCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "genesis", Short: "manage genesis files"}

	var dataDir, network, alloc string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "write a genesis file from a comma-separated addr=amount alloc list",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeGenesisFile(dataDir, network, alloc)
		},
	}
	initCmd.Flags().StringVar(&dataDir, "datadir", "./data", "node data directory")
	initCmd.Flags().StringVar(&network, "network", "andromeda", "network name")
	initCmd.Flags().StringVar(&alloc, "alloc", "", "comma-separated addr=amount pairs, e.g. aa..=1000,bb..=500")
	cmd.AddCommand(initCmd)
	return cmd
}

func writeGenesisFile(dataDir, network, alloc string) error {
	allocMap := make(map[core.Address]*big.Int)
	total := big.NewInt(0)
	if alloc != "" {
		for _, pair := range strings.Split(alloc, ",") {
			parts := strings.SplitN(pair, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("invalid alloc entry %q, expected addr=amount", pair)
			}
			addr, err := core.AddressFromHex(parts[0])
			if err != nil {
				return fmt.Errorf("invalid alloc address %q: %w", parts[0], err)
			}
			amount, ok := new(big.Int).SetString(parts[1], 10)
			if !ok {
				return fmt.Errorf("invalid alloc amount %q", parts[1])
			}
			allocMap[addr] = amount
			total.Add(total, amount)
		}
	}

	cfg := core.GenesisConfig{Alloc: allocMap, TotalValue: total}
	path := core.GenesisPath(dataDir, network)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return err
	}
	fmt.Printf("wrote genesis file for %s with %d allocations summing to %s\n", network, len(allocMap), total.String())
	return nil
}
