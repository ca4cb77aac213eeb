package core

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// BootstrapNode loads (or, on first run, initializes) the on-disk state for
// networkName under dataDir: the keystore, the peer identity, the config,
// and the ledger — constructing genesis from genesis/<network>.json when no
// ledger snapshot yet exists. It is the single entry point cmd/summercashd
// uses to stand up a System.
func BootstrapNode(dataDir, networkName, nodeVersion string) (*System, *Keystore, error) {
	ks, err := NewKeystore(dataDir)
	if err != nil {
		return nil, nil, err
	}
	if _, err := ks.LoadPeerIdentity(); err != nil {
		return nil, nil, err
	}

	cfg, err := LoadConfig(dataDir, networkName)
	if err != nil {
		if !os.IsNotExist(underlyingErr(err)) {
			return nil, nil, err
		}
		cfg = &Config{NetworkName: networkName, NodeVersion: nodeVersion}
		if err := cfg.Save(dataDir); err != nil {
			return nil, nil, err
		}
		log.WithField("network", networkName).Info("persistence: initialized default config")
	}

	ledger, err := ReadPartialFromDisk(dataDir, networkName)
	if err != nil {
		ledger = NewLedger()
		if genesis, gerr := LoadGenesisConfig(dataDir, networkName); gerr == nil {
			if err := ConstructGenesis(ledger, genesis); err != nil {
				return nil, nil, Wrap(err, "construct genesis")
			}
			if err := ledger.WriteToDisk(dataDir, networkName); err != nil {
				return nil, nil, err
			}
			log.WithField("network", networkName).Info("persistence: constructed genesis ledger")
		}
	}

	return NewSystem(dataDir, *cfg, ledger), ks, nil
}

// underlyingErr unwraps a core.Wrap-produced error down to the cause that
// os.IsNotExist can inspect.
func underlyingErr(err error) error {
	type unwrapper interface{ Unwrap() error }
	for {
		u, ok := err.(unwrapper)
		if !ok {
			return err
		}
		err = u.Unwrap()
	}
}
