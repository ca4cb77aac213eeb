package core

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
)

// Node is a single entry in the DAG ledger. It is unresolved until
// StateEntry is populated by ExecuteParentNodes.
type Node struct {
	Transaction *Transaction `json:"transaction"`
	StateEntry  *StateEntry  `json:"state_entry,omitempty"`
	Hash        Hash         `json:"hash"`
}

const ledgerPartialCacheSize = 4096

// Ledger is the append-only DAG: an ordered node sequence plus the
// hash→index and parent→children indices described in §3.
type Ledger struct {
	mu sync.RWMutex

	nodes         []*Node
	hashRoutes    map[Hash]int
	childrenIndex map[Hash]map[int]struct{}

	dataDir     string
	networkName string
	partial     bool
	cache       *lru.Cache[Hash, *Node]

	logger *log.Logger
}

// NewLedger creates an empty in-memory ledger.
func NewLedger() *Ledger {
	cache, _ := lru.New[Hash, *Node](ledgerPartialCacheSize)
	return &Ledger{
		hashRoutes:    make(map[Hash]int),
		childrenIndex: make(map[Hash]map[int]struct{}),
		cache:         cache,
		logger:        log.StandardLogger(),
	}
}

// Len returns the number of nodes currently in the ledger.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.nodes)
}

// Get returns the node at index i, or nil if out of range. A compacted
// node's body is faulted back in from the cache or disk transparently.
func (l *Ledger) Get(i int) *Node {
	l.mu.RLock()
	if i < 0 || i >= len(l.nodes) {
		l.mu.RUnlock()
		return nil
	}
	node := l.nodes[i]
	l.mu.RUnlock()

	if node.Transaction != nil {
		return node
	}
	return l.GetByHash(node.Hash)
}

// GetByHash returns the node with the given hash, faulting it in from the
// LRU-backed partial-load cache (or disk) when the in-memory slot has been
// compacted away.
func (l *Ledger) GetByHash(h Hash) *Node {
	l.mu.RLock()
	i, inRoutes := l.hashRoutes[h]
	var node *Node
	if inRoutes {
		node = l.nodes[i]
	}
	l.mu.RUnlock()

	if node != nil && node.Transaction != nil {
		return node
	}
	if l.cache != nil {
		if n, ok := l.cache.Get(h); ok {
			return n
		}
	}
	if inRoutes || l.partial {
		if n, err := l.loadNodeFromDisk(h); err == nil {
			l.cache.Add(h, n)
			return n
		}
	}
	return nil
}

// Compact evicts the transaction/state bodies of all but the most recent
// keep nodes, leaving their Hash in place so index and hash lookups still
// resolve (faulting the body back in from the LRU cache or disk, matching
// the partial-load behavior in §4.1/§9). Called periodically by the sync
// engine after flushing a pull batch to disk.
func (l *Ledger) Compact(keep int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cut := len(l.nodes) - keep
	for i := 0; i < cut; i++ {
		n := l.nodes[i]
		if n.Transaction == nil {
			continue
		}
		l.cache.Add(n.Hash, n)
		l.nodes[i] = &Node{Hash: n.Hash}
	}
	if cut > 0 {
		l.partial = true
	}
}

// HeadHash returns the hash of the most recently pushed node, or the zero
// hash for an empty ledger.
func (l *Ledger) HeadHash() Hash {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.nodes) == 0 {
		return ZeroHash
	}
	return l.nodes[len(l.nodes)-1].Hash
}

// Push appends tx as a new node, born resolved if state is non-nil. Per
// §4.1 the push is unconditional beyond the structural parent-existence
// invariant; callers are responsible for validation.
func (l *Ledger) Push(tx *Transaction, state *StateEntry) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !tx.Genesis {
		for _, p := range tx.Data.Parents {
			if _, ok := l.hashRoutes[p]; !ok {
				return 0, ErrParentNotFound
			}
		}
	}

	idx := len(l.nodes)
	node := &Node{Transaction: tx, StateEntry: state, Hash: tx.Hash}
	l.nodes = append(l.nodes, node)
	l.hashRoutes[tx.Hash] = idx

	for _, p := range tx.Data.Parents {
		children, ok := l.childrenIndex[p]
		if !ok {
			children = make(map[int]struct{})
			l.childrenIndex[p] = children
		}
		children[idx] = struct{}{}
	}

	l.logger.WithFields(log.Fields{"index": idx, "hash": tx.Hash.String()}).Debug("ledger: pushed node")
	return idx, nil
}

// RollbackHead removes the most recently pushed node.
func (l *Ledger) RollbackHead() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.nodes) == 0 {
		return ErrParentNotFound
	}
	last := len(l.nodes) - 1
	node := l.nodes[last]
	delete(l.hashRoutes, node.Hash)
	for _, p := range node.Transaction.Data.Parents {
		delete(l.childrenIndex[p], last)
	}
	l.nodes = l.nodes[:last]
	return nil
}

// ExecuteParentNodes resolves and memoizes the state entry that the
// transaction at index i operates against, by materializing (and caching)
// the resolved state of every ancestor reachable from its parents. Uses an
// explicit work-stack rather than recursion so deep DAG tails don't grow the
// call stack (ground: the teacher's iterative batch walkers in its
// replication code). Operates over the in-memory working set: callers that
// compact old nodes are expected to keep the active append frontier (and
// its unresolved ancestors) resident, since interior compacted nodes are
// already fully resolved on disk and only re-enter memory via GetByHash.
func (l *Ledger) ExecuteParentNodes(i int) (*StateEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.executeParentNodesLocked(i)
}

func (l *Ledger) executeParentNodesLocked(i int) (*StateEntry, error) {
	if i < 0 || i >= len(l.nodes) {
		return nil, ErrParentNotFound
	}

	// Post-order traversal over the ancestor DAG using an explicit stack,
	// resolving and memoizing each node's state entry exactly once.
	type stackItem struct {
		index    int
		expanded bool
	}
	stack := []stackItem{{index: i}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		node := l.nodes[top.index]

		if node.StateEntry != nil && top.index != i {
			stack = stack[:len(stack)-1]
			continue
		}

		parents := node.Transaction.Data.Parents
		if !top.expanded {
			top.expanded = true
			pushed := false
			for _, p := range parents {
				pIdx, ok := l.hashRoutes[p]
				if !ok {
					return nil, ErrParentNotFound
				}
				if l.nodes[pIdx].StateEntry == nil {
					stack = append(stack, stackItem{index: pIdx})
					pushed = true
				}
			}
			if pushed {
				continue
			}
		}

		if top.index == i {
			// The node under query is resolved by the caller (a proposal
			// append, or a validator check) rather than memoized here.
			stack = stack[:len(stack)-1]
			continue
		}

		parentEntries := make([]*StateEntry, 0, len(parents))
		for _, p := range parents {
			pIdx := l.hashRoutes[p]
			parentEntries = append(parentEntries, l.nodes[pIdx].StateEntry)
		}
		merged := MergeAll(parentEntries)
		applied, err := merged.Apply(node.Transaction)
		if err != nil {
			return nil, err
		}
		node.StateEntry = applied
		stack = stack[:len(stack)-1]
	}

	parents := l.nodes[i].Transaction.Data.Parents
	parentEntries := make([]*StateEntry, 0, len(parents))
	for _, p := range parents {
		pIdx := l.hashRoutes[p]
		parentEntries = append(parentEntries, l.nodes[pIdx].StateEntry)
	}
	return MergeAll(parentEntries), nil
}

// ResolveAndFinalize runs steps 3–5 of §4.3.1's ledger-append operation
// under a single critical section: resolve the merged parent state — which,
// per execute_parent_nodes, memoizes resolution onto any ancestor visited
// for the first time along the way — and validate it against the pushed
// transaction's declared parent_state_hash. Returns ErrParentReceiptInvalid
// if the declared hash is absent or mismatched; the genesis root at index 0,
// which has no parents, declares no parent state and is exempt.
//
// The just-pushed node itself is deliberately left unresolved: per §4.1,
// state_entry for a node is populated only when some later child's own
// resolution walk reaches it as an ancestor. That deferred resolution is
// what the validator's TooOld rule depends on to enforce "only tips may be
// extended" — a node eagerly resolved at append time could never again be
// referenced as anyone's parent.
func (l *Ledger) ResolveAndFinalize(idx int) (*StateEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	merged, err := l.executeParentNodesLocked(idx)
	if err != nil {
		return nil, err
	}
	tx := l.nodes[idx].Transaction
	if tx.Genesis && idx == 0 {
		return merged, nil
	}
	if tx.Data.ParentStateHash.IsZero() || merged.Hash != tx.Data.ParentStateHash {
		return nil, ErrParentReceiptInvalid
	}
	return merged, nil
}

// ResolveParentNodes is the read-only variant used by the validator: same
// semantics as ExecuteParentNodes's parent-merge step, but over externally
// supplied parent hashes and without memoization side effects, and it also
// returns the Receipt each parent would present to a new child.
func (l *Ledger) ResolveParentNodes(parentHashes []Hash) (*StateEntry, []Receipt, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]*StateEntry, 0, len(parentHashes))
	receipts := make([]Receipt, 0, len(parentHashes))
	for _, h := range parentHashes {
		idx, ok := l.hashRoutes[h]
		if !ok {
			return nil, nil, ErrParentNotFound
		}
		node := l.nodes[idx]
		entry := node.StateEntry
		if entry == nil {
			resolved, err := l.resolveReadOnly(idx, make(map[int]*StateEntry))
			if err != nil {
				return nil, nil, err
			}
			entry = resolved
		}
		entries = append(entries, entry)
		receipts = append(receipts, receiptFor(entry, nil))
	}
	return MergeAll(entries), receipts, nil
}

// resolveReadOnly mirrors executeParentNodesLocked's ancestor walk but
// writes resolved entries only into the local memo map, never into the
// ledger's own nodes, preserving ResolveParentNodes's no-side-effect
// contract.
func (l *Ledger) resolveReadOnly(i int, memo map[int]*StateEntry) (*StateEntry, error) {
	if entry, ok := memo[i]; ok {
		return entry, nil
	}
	if l.nodes[i].StateEntry != nil {
		memo[i] = l.nodes[i].StateEntry
		return memo[i], nil
	}

	parents := l.nodes[i].Transaction.Data.Parents
	entries := make([]*StateEntry, 0, len(parents))
	for _, p := range parents {
		pIdx, ok := l.hashRoutes[p]
		if !ok {
			return nil, ErrParentNotFound
		}
		resolved, err := l.resolveReadOnly(pIdx, memo)
		if err != nil {
			return nil, err
		}
		entries = append(entries, resolved)
	}
	merged := MergeAll(entries)
	applied, err := merged.Apply(l.nodes[i].Transaction)
	if err != nil {
		return nil, err
	}
	memo[i] = applied
	return applied, nil
}

// --- Persistence -----------------------------------------------------------

type ledgerSnapshot struct {
	Nodes       []*Node `json:"nodes"`
	NetworkName string  `json:"network_name"`
}

// WriteToDisk snapshots the full node sequence to dataDir/ledger/<network>.json.
func (l *Ledger) WriteToDisk(dataDir, networkName string) error {
	l.mu.RLock()
	nodes := append([]*Node(nil), l.nodes...)
	l.mu.RUnlock()

	// Compacted slots hold only a hash; write their full bodies instead.
	for i, n := range nodes {
		if n.Transaction == nil {
			if full := l.GetByHash(n.Hash); full != nil {
				nodes[i] = full
			}
		}
	}
	snap := ledgerSnapshot{Nodes: nodes, NetworkName: networkName}

	dir := filepath.Join(dataDir, "ledger")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Wrap(err, "create ledger dir")
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return Wrap(err, "marshal ledger snapshot")
	}
	path := filepath.Join(dir, networkName+".json")
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return Wrap(err, "write ledger snapshot")
	}
	l.mu.Lock()
	l.dataDir, l.networkName = dataDir, networkName
	l.mu.Unlock()
	return nil
}

// ReadPartialFromDisk loads a snapshot written by WriteToDisk: every node
// body and the hash/children indices are read into memory, and the ledger is
// marked partial so that bodies later evicted by Compact are faulted back in
// via GetByHash. No node body is left on disk at load time.
func ReadPartialFromDisk(dataDir, networkName string) (*Ledger, error) {
	path := filepath.Join(dataDir, "ledger", networkName+".json")
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, Wrap(err, "read ledger snapshot")
	}
	var snap ledgerSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, Wrap(err, "unmarshal ledger snapshot")
	}

	l := NewLedger()
	l.dataDir, l.networkName, l.partial = dataDir, networkName, true
	l.nodes = snap.Nodes
	for i, n := range l.nodes {
		l.hashRoutes[n.Hash] = i
		for _, p := range n.Transaction.Data.Parents {
			children, ok := l.childrenIndex[p]
			if !ok {
				children = make(map[int]struct{})
				l.childrenIndex[p] = children
			}
			children[i] = struct{}{}
		}
	}
	return l, nil
}

// loadNodeFromDisk re-reads the snapshot file to fault in a single node by
// hash. A production deployment would index the snapshot file itself
// (e.g. one file per node under ledger/<network>/<hash>.json); here the
// whole-file re-read keeps the on-disk format identical to WriteToDisk's.
func (l *Ledger) loadNodeFromDisk(h Hash) (*Node, error) {
	if l.dataDir == "" {
		return nil, ErrKeyNotFound
	}
	path := filepath.Join(l.dataDir, "ledger", l.networkName+".json")
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, Wrap(err, "read ledger snapshot")
	}
	var snap ledgerSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, Wrap(err, "unmarshal ledger snapshot")
	}
	for _, n := range snap.Nodes {
		if n.Hash == h {
			return n, nil
		}
	}
	return nil, ErrKeyNotFound
}
