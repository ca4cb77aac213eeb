package core

import (
	"math/big"
	"sort"
)

// StateEntry is a per-account balance+nonce snapshot, content-hashed so two
// entries with identical semantic content always hash identically regardless
// of map iteration order.
type StateEntry struct {
	Balances map[Address]*big.Int `json:"balances"`
	Nonces   map[Address]uint64   `json:"nonces"`
	Hash     Hash                 `json:"hash"`
}

// NewStateEntry returns an empty, already-hashed StateEntry.
func NewStateEntry() *StateEntry {
	e := &StateEntry{
		Balances: make(map[Address]*big.Int),
		Nonces:   make(map[Address]uint64),
	}
	e.Rehash()
	return e
}

// Clone returns a deep copy of e.
func (e *StateEntry) Clone() *StateEntry {
	c := &StateEntry{
		Balances: make(map[Address]*big.Int, len(e.Balances)),
		Nonces:   make(map[Address]uint64, len(e.Nonces)),
		Hash:     e.Hash,
	}
	for addr, bal := range e.Balances {
		c.Balances[addr] = new(big.Int).Set(bal)
	}
	for addr, n := range e.Nonces {
		c.Nonces[addr] = n
	}
	return c
}

// BalanceOf returns the balance of addr, zero if absent.
func (e *StateEntry) BalanceOf(addr Address) *big.Int {
	if b, ok := e.Balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return big.NewInt(0)
}

// NonceOf returns the nonce of addr, zero if absent.
func (e *StateEntry) NonceOf(addr Address) uint64 {
	return e.Nonces[addr]
}

// addressValue pairs an address with a canonical decimal string, used to
// produce a stable hash pre-image independent of map iteration order.
type addressValue struct {
	Addr  string
	Value string
}

// Rehash recomputes e.Hash over the sorted (address, value) pairs of both
// maps, per the content-addressing rule in §3.
func (e *StateEntry) Rehash() {
	balPairs := make([]addressValue, 0, len(e.Balances))
	for addr, bal := range e.Balances {
		balPairs = append(balPairs, addressValue{Addr: addr.String(), Value: bal.String()})
	}
	sort.Slice(balPairs, func(i, j int) bool { return balPairs[i].Addr < balPairs[j].Addr })

	noncePairs := make([]addressValue, 0, len(e.Nonces))
	for addr, n := range e.Nonces {
		noncePairs = append(noncePairs, addressValue{Addr: addr.String(), Value: big.NewInt(0).SetUint64(n).String()})
	}
	sort.Slice(noncePairs, func(i, j int) bool { return noncePairs[i].Addr < noncePairs[j].Addr })

	h, err := HashJSON(struct {
		Balances []addressValue
		Nonces   []addressValue
	}{balPairs, noncePairs})
	if err != nil {
		// Marshaling a struct of strings cannot fail; treated as unreachable.
		panic(Wrap(err, "hash state entry"))
	}
	e.Hash = h
}

// Merge combines e with other, producing a new StateEntry. Per §4.1/§9,
// balances sum per address; nonce takes the per-address maximum — the spec's
// explicit correction of the observed (buggy) minimum-nonce behavior.
func (e *StateEntry) Merge(other *StateEntry) *StateEntry {
	out := &StateEntry{
		Balances: make(map[Address]*big.Int),
		Nonces:   make(map[Address]uint64),
	}
	for addr, bal := range e.Balances {
		out.Balances[addr] = new(big.Int).Set(bal)
	}
	for addr, bal := range other.Balances {
		if cur, ok := out.Balances[addr]; ok {
			out.Balances[addr] = new(big.Int).Add(cur, bal)
		} else {
			out.Balances[addr] = new(big.Int).Set(bal)
		}
	}
	for addr, n := range e.Nonces {
		out.Nonces[addr] = n
	}
	for addr, n := range other.Nonces {
		if cur, ok := out.Nonces[addr]; !ok || n > cur {
			out.Nonces[addr] = n
		}
	}
	out.Rehash()
	return out
}

// MergeAll folds Merge across a slice of entries, returning an empty entry
// for an empty input (the genesis parent-state).
func MergeAll(entries []*StateEntry) *StateEntry {
	if len(entries) == 0 {
		return NewStateEntry()
	}
	acc := entries[0]
	for _, e := range entries[1:] {
		acc = acc.Merge(e)
	}
	return acc
}

// Apply produces the state that results from executing tx against state,
// per §4.1's transaction-application rule. Genesis transactions, and the
// genesis allocations sent from the zero address, mint value rather than
// debiting the sender.
func (state *StateEntry) Apply(tx *Transaction) (*StateEntry, error) {
	next := state.Clone()

	if !tx.Genesis && !tx.Data.Sender.IsZero() {
		senderBal := next.BalanceOf(tx.Data.Sender)
		if senderBal.Cmp(tx.Data.Value) < 0 {
			return nil, Wrap(ErrInvalidOperation, "insufficient balance")
		}
		next.Balances[tx.Data.Sender] = new(big.Int).Sub(senderBal, tx.Data.Value)
	}

	recipientBal := next.BalanceOf(tx.Data.Recipient)
	next.Balances[tx.Data.Recipient] = new(big.Int).Add(recipientBal, tx.Data.Value)

	nextNonce := tx.Data.Nonce + 1
	if cur := next.NonceOf(tx.Data.Sender); cur > nextNonce {
		nextNonce = cur
	}
	next.Nonces[tx.Data.Sender] = nextNonce

	next.Rehash()
	return next, nil
}
