package core

import (
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"sort"
)

// GenesisConfig is the structural contract of a genesis file: an initial
// allocation of value to a set of addresses, plus the total it must sum to.
// Loading and interpreting beyond this contract is out of scope per §1; the
// on-disk location and ConstructGenesis's ledger shape are this
// implementation's concretization of it.
type GenesisConfig struct {
	Alloc      map[Address]*big.Int `json:"alloc"`
	TotalValue *big.Int             `json:"total_value"`
}

// GenesisPath returns the on-disk path for networkName's genesis file.
func GenesisPath(dataDir, networkName string) string {
	return filepath.Join(dataDir, "genesis", networkName+".json")
}

// LoadGenesisConfig reads a genesis file for networkName, if present.
func LoadGenesisConfig(dataDir, networkName string) (*GenesisConfig, error) {
	b, err := os.ReadFile(GenesisPath(dataDir, networkName))
	if err != nil {
		return nil, Wrap(err, "read genesis config")
	}
	var g GenesisConfig
	if err := json.Unmarshal(b, &g); err != nil {
		return nil, Wrap(err, "unmarshal genesis config")
	}
	return &g, nil
}

// mintTransaction builds an unsigned transaction minting value into
// recipient, parented on parent with parentState as its declared
// parent-state assertion. Used only by genesis construction, which bypasses
// the validator and signs nothing since the zero address has no keypair.
func mintTransaction(recipient Address, value *big.Int, parents []Hash, parentState Hash) (*Transaction, error) {
	data := TransactionData{
		Nonce:           0,
		Sender:          ZeroAddress,
		Recipient:       recipient,
		Value:           value,
		Parents:         parents,
		ParentStateHash: parentState,
		Timestamp:       0,
	}
	h, err := data.CanonicalHash()
	if err != nil {
		return nil, Wrap(err, "hash genesis transaction")
	}
	return &Transaction{Data: data, Hash: h}, nil
}

// mintApply is Apply without the sender-balance check: genesis and
// genesis-allocation transactions mint value rather than transfer it.
func mintApply(state *StateEntry, tx *Transaction) *StateEntry {
	next := state.Clone()
	recipientBal := next.BalanceOf(tx.Data.Recipient)
	next.Balances[tx.Data.Recipient] = new(big.Int).Add(recipientBal, tx.Data.Value)
	nextNonce := tx.Data.Nonce + 1
	if cur := next.NonceOf(tx.Data.Sender); cur > nextNonce {
		nextNonce = cur
	}
	next.Nonces[tx.Data.Sender] = nextNonce
	next.Rehash()
	return next
}

// ConstructGenesis builds the bootstrap ledger described in §8 scenario 1: a
// zero-value root with no parents, one allocation node per cfg.Alloc entry
// parented directly on root, and a finalization node parented on every
// allocation node asserting their merged state — 2+len(cfg.Alloc) nodes,
// four for scenario 1's two allocations. ledger must be empty.
func ConstructGenesis(ledger *Ledger, cfg *GenesisConfig) error {
	if ledger.Len() != 0 {
		return Wrap(ErrInvalidOperation, "genesis construction requires an empty ledger")
	}

	sum := big.NewInt(0)
	for _, v := range cfg.Alloc {
		sum.Add(sum, v)
	}
	if cfg.TotalValue != nil && sum.Cmp(cfg.TotalValue) != 0 {
		return Wrap(ErrInvalidOperation, "genesis alloc does not sum to total_value")
	}

	root, err := mintTransaction(ZeroAddress, big.NewInt(0), nil, ZeroHash)
	if err != nil {
		return err
	}
	root.Genesis = true
	rootState, err := NewStateEntry().Apply(root)
	if err != nil {
		return err
	}
	if _, err := ledger.Push(root, nil); err != nil {
		return Wrap(err, "push genesis root")
	}

	addrs := make([]Address, 0, len(cfg.Alloc))
	for addr := range cfg.Alloc {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].String() < addrs[j].String() })

	allocHashes := make([]Hash, 0, len(addrs))
	allocStates := make([]*StateEntry, 0, len(addrs))
	for _, addr := range addrs {
		tx, err := mintTransaction(addr, cfg.Alloc[addr], []Hash{root.Hash}, rootState.Hash)
		if err != nil {
			return err
		}
		state := mintApply(rootState, tx)
		if _, err := ledger.Push(tx, nil); err != nil {
			return Wrap(err, "push genesis allocation")
		}
		allocHashes = append(allocHashes, tx.Hash)
		allocStates = append(allocStates, state)
	}

	merged := MergeAll(allocStates)
	final, err := mintTransaction(ZeroAddress, big.NewInt(0), allocHashes, merged.Hash)
	if err != nil {
		return err
	}
	if _, err := ledger.Push(final, nil); err != nil {
		return Wrap(err, "push genesis finalization")
	}

	return nil
}
