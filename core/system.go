package core

import (
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// System is the node's runtime: config, ledger, and the pending/localized
// proposal queues, held behind a single RW lock per §5. Readers (validator,
// publisher, RPC adapters) may run concurrently; writers (proposal
// execution, ledger append, config mutation, registration) take the
// exclusive lock and must not suspend while holding it.
type System struct {
	mu sync.RWMutex

	config Config
	ledger *Ledger

	pendingProposals   map[Hash]*Proposal
	localizedProposals map[Hash]*Proposal

	dataDir string
	logger  *log.Logger

	// proposalQueueFull is set by ProposeLocal when localizedProposals grows
	// past a soft cap and cleared by DrainLocalized; it is atomic so it can
	// be read without taking mu. No code in this package reads it.
	proposalQueueFull atomic.Bool
}

// NewSystem creates a runtime bound to dataDir with the given initial
// config and ledger.
func NewSystem(dataDir string, cfg Config, ledger *Ledger) *System {
	return &System{
		config:             cfg,
		ledger:             ledger,
		pendingProposals:   make(map[Hash]*Proposal),
		localizedProposals: make(map[Hash]*Proposal),
		dataDir:            dataDir,
		logger:             log.StandardLogger(),
	}
}

// Ledger returns the runtime's ledger. Callers must not mutate it outside
// System's own writer paths.
func (s *System) Ledger() *Ledger {
	return s.ledger
}

// Config returns a copy of the current config under the read lock.
func (s *System) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// RegisterProposal idempotently inserts p into pendingProposals.
func (s *System) RegisterProposal(p *Proposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pendingProposals[p.ID]; exists {
		return
	}
	s.pendingProposals[p.ID] = p
	s.logger.WithField("proposal", p.ID.String()).Debug("system: registered proposal")
}

// ProposeLocal queues p for outbound broadcast on the next tick.
func (s *System) ProposeLocal(p *Proposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localizedProposals[p.ID] = p
	if len(s.localizedProposals) > localProposalQueueSoftCap {
		s.proposalQueueFull.Store(true)
	}
}

const localProposalQueueSoftCap = 256

// DrainLocalized removes and returns every queued local proposal, for the
// network task's outbound publish tick.
func (s *System) DrainLocalized() []*Proposal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Proposal, 0, len(s.localizedProposals))
	for _, p := range s.localizedProposals {
		out = append(out, p)
	}
	s.localizedProposals = make(map[Hash]*Proposal)
	s.proposalQueueFull.Store(false)
	return out
}

// PendingProposal returns a pending proposal by id.
func (s *System) PendingProposal(id Hash) (*Proposal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pendingProposals[id]
	return p, ok
}

// PendingProposals returns every currently pending proposal.
func (s *System) PendingProposals() []*Proposal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Proposal, 0, len(s.pendingProposals))
	for _, p := range s.pendingProposals {
		out = append(out, p)
	}
	return out
}

// ExecuteProposal removes id from pending and applies it by dispatching on
// param_name, per §4.3. The proposal is removed before dispatch, matching
// the observed (and flagged, §9) source behavior: a failed execution does
// not reinsert the proposal.
func (s *System) ExecuteProposal(id Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pendingProposals[id]
	if !ok {
		return ErrProposalNotFound
	}
	delete(s.pendingProposals, id)

	switch p.Data.ParamName {
	case ParamRewardPerGas:
		return s.execRewardPerGas(p.Data.Operation)
	case ParamNetworkName:
		return s.execNetworkName(p.Data.Operation)
	case ParamLedgerTx:
		return s.execLedgerAppend(p.Data.Operation)
	default:
		return Wrap(ErrInvalidTargetParam, p.Data.ParamName)
	}
}

func (s *System) execRewardPerGas(op Operation) error {
	switch op.Kind {
	case OpAmend:
		s.config.RewardPerGas = leUint64(op.Bytes)
	case OpRemove:
		s.config.RewardPerGas = 0
	case OpAppend:
		s.config.RewardPerGas += leUint64(op.Bytes)
	default:
		return ErrInvalidOperation
	}
	return s.config.Save(s.dataDir)
}

func (s *System) execNetworkName(op Operation) error {
	switch op.Kind {
	case OpAmend:
		s.config.NetworkName = string(op.Bytes)
	case OpRemove:
		s.config.NetworkName = ""
	case OpAppend:
		s.config.NetworkName += string(op.Bytes)
	default:
		return ErrInvalidOperation
	}
	return s.config.Save(s.dataDir)
}

// execLedgerAppend implements §4.3.1: the only revertible operation is
// Append; Amend and Remove are not meaningful for an append-only ledger.
func (s *System) execLedgerAppend(op Operation) error {
	if op.Kind != OpAppend {
		return ErrInvalidOperation
	}

	tx, err := decodeTransaction(op.Bytes)
	if err != nil {
		return Wrap(err, "decode candidate transaction")
	}

	idx, err := s.ledger.Push(tx, nil)
	if err != nil {
		return Wrap(err, "push candidate transaction")
	}

	if _, err := s.ledger.ResolveAndFinalize(idx); err != nil {
		_ = s.ledger.RollbackHead()
		return Wrap(err, "finalize parent state")
	}

	if err := s.ledger.WriteToDisk(s.dataDir, s.config.NetworkName); err != nil {
		return Wrap(err, "persist ledger")
	}
	return nil
}
