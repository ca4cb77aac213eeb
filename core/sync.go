package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Key schema for the KV substrate, per §4.4.
const (
	keyLedgerRoot = "ledger::transactions::root"
	keyLedgerHead = "ledger::transactions::head"
	keyProposals  = "proposals"
	keyConfig     = "config"

	syncBatchSize   = 10
	ledgerHotWindow = syncBatchSize * 4
)

func keyNext(h Hash) string { return fmt.Sprintf("ledger::transactions::next(%s)", h.String()) }
func keyTx(h Hash) string   { return fmt.Sprintf("ledger::transactions::tx(%s)", h.String()) }

// QuorumFunc returns the current quorum size, typically
// max(1, n_active_peers/2) per §4.4.
type QuorumFunc func() int

// SyncEngine walks a remote DAG through the KV substrate and publishes the
// local ledger's extensions, per §4.4.
type SyncEngine struct {
	store  KVStore
	system *System
	quorum QuorumFunc

	// lastPublishedTx and shouldBroadcastDag are single-writer scalars owned
	// by the network task that drives Push, per §5 — no lock needed since
	// nothing else mutates them.
	lastPublishedTx    int
	shouldBroadcastDag bool

	logger *log.Logger
}

// NewSyncEngine binds a sync engine to store, the runtime it feeds, and a
// quorum function reflecting the substrate's current routing view.
func NewSyncEngine(store KVStore, system *System, quorum QuorumFunc) *SyncEngine {
	return &SyncEngine{store: store, system: system, quorum: quorum, logger: log.StandardLogger()}
}

// Pull walks the remote chain via the KV substrate, appending every
// transaction the local ledger is missing. Termination is next(current)
// being absent from the substrate (ErrKeyNotFound), per §9's resolution of
// the open question; an empty value is a decode error, not the end.
func (s *SyncEngine) Pull(ctx context.Context) error {
	batchID := uuid.New().String()
	q := s.quorum()
	ledger := s.system.Ledger()

	current, err := s.bootstrapRoot(ctx, q, ledger)
	if err != nil {
		return err
	}
	if current.IsZero() {
		return nil
	}

	fetched := 0
	for {
		nextBytes, err := s.store.Get(ctx, keyNext(current), q)
		if errors.Is(err, ErrKeyNotFound) {
			s.logger.WithField("batch", batchID).Debug("sync: pull reached remote head")
			break
		}
		if err != nil {
			return Wrap(err, "fetch next hash")
		}
		next, err := HashFromHex(string(nextBytes))
		if err != nil {
			return Wrap(ErrSerialization, "decode next hash")
		}

		txBytes, err := s.store.Get(ctx, keyTx(next), q)
		if err != nil {
			return Wrap(err, "fetch transaction body")
		}

		proposal, err := NewProposal(
			fmt.Sprintf("sync-pull-%s-%d", batchID, fetched),
			ProposalData{ParamName: ParamLedgerTx, Operation: Operation{Kind: OpAppend, Bytes: txBytes}},
		)
		if err != nil {
			return err
		}
		s.system.RegisterProposal(proposal)
		if err := s.system.ExecuteProposal(proposal.ID); err != nil {
			return Wrap(err, "execute append proposal")
		}

		current = next
		fetched++
		if fetched%syncBatchSize == 0 {
			if err := ledger.WriteToDisk(s.system.dataDir, s.system.config.NetworkName); err != nil {
				s.logger.WithError(err).Warn("sync: flush failed")
			}
			ledger.Compact(ledgerHotWindow)
		}
	}

	if fetched > 0 {
		s.logger.WithFields(log.Fields{"batch": batchID, "fetched": fetched}).Info("sync: pull complete")
	}
	return nil
}

// bootstrapRoot fetches and applies the genesis transaction when the local
// ledger is empty, returning the hash to resume walking from.
func (s *SyncEngine) bootstrapRoot(ctx context.Context, q int, ledger *Ledger) (Hash, error) {
	if ledger.Len() > 0 {
		return ledger.HeadHash(), nil
	}

	rootBytes, err := s.store.Get(ctx, keyLedgerRoot, q)
	if errors.Is(err, ErrKeyNotFound) {
		return ZeroHash, nil
	}
	if err != nil {
		return ZeroHash, Wrap(err, "fetch root hash")
	}
	root, err := HashFromHex(string(rootBytes))
	if err != nil {
		return ZeroHash, Wrap(ErrSerialization, "decode root hash")
	}

	txBytes, err := s.store.Get(ctx, keyTx(root), q)
	if err != nil {
		return ZeroHash, Wrap(err, "fetch root transaction")
	}
	proposal, err := NewProposal("sync-pull-root", ProposalData{ParamName: ParamLedgerTx, Operation: Operation{Kind: OpAppend, Bytes: txBytes}})
	if err != nil {
		return ZeroHash, err
	}
	s.system.RegisterProposal(proposal)
	if err := s.system.ExecuteProposal(proposal.ID); err != nil {
		return ZeroHash, Wrap(err, "execute root append")
	}
	return root, nil
}

// Push publishes every local node from lastPublishedTx onward, per §4.4. On
// a put failure it sets shouldBroadcastDag so the next tick retries, rather
// than returning a hard error.
func (s *SyncEngine) Push(ctx context.Context) {
	q := s.quorum()
	ledger := s.system.Ledger()
	n := ledger.Len()

	if s.lastPublishedTx >= n {
		return
	}

	first := s.lastPublishedTx == 0
	for i := s.lastPublishedTx; i < n; i++ {
		node := ledger.Get(i)
		if node == nil {
			s.shouldBroadcastDag = true
			return
		}
		if i+1 < n {
			if next := ledger.Get(i + 1); next != nil {
				if err := s.store.Put(ctx, keyNext(node.Hash), []byte(next.Hash.String()), q); err != nil {
					s.logger.WithError(err).Warn("sync: publish next failed")
					s.shouldBroadcastDag = true
					return
				}
			}
		}
		body, err := encodeTransaction(node.Transaction)
		if err != nil {
			s.shouldBroadcastDag = true
			return
		}
		if err := s.store.Put(ctx, keyTx(node.Hash), body, q); err != nil {
			s.logger.WithError(err).Warn("sync: publish transaction failed")
			s.shouldBroadcastDag = true
			return
		}
	}

	if first {
		if root := ledger.Get(0); root != nil {
			if err := s.store.Put(ctx, keyLedgerRoot, []byte(root.Hash.String()), q); err != nil {
				s.logger.WithError(err).Warn("sync: publish root failed")
				s.shouldBroadcastDag = true
				return
			}
		}
	}
	if head := ledger.HeadHash(); !head.IsZero() {
		_ = s.store.Put(ctx, keyLedgerHead, []byte(head.String()), q)
	}

	s.lastPublishedTx = n
	s.shouldBroadcastDag = false
}

// ShouldBroadcastDag reports whether the previous Push failed and the next
// tick should retry.
func (s *SyncEngine) ShouldBroadcastDag() bool { return s.shouldBroadcastDag }

// PublishConfig writes the runtime's current config snapshot to the
// substrate under the "config" key.
func (s *SyncEngine) PublishConfig(ctx context.Context) error {
	cfg := s.system.Config()
	b, err := json.Marshal(cfg)
	if err != nil {
		return Wrap(err, "marshal config for publish")
	}
	return s.store.Put(ctx, keyConfig, b, s.quorum())
}

// PublishProposals writes a snapshot of currently pending proposals to the
// substrate under the "proposals" key.
func (s *SyncEngine) PublishProposals(ctx context.Context) error {
	proposals := s.system.PendingProposals()
	b, err := json.Marshal(proposals)
	if err != nil {
		return Wrap(err, "marshal proposals for publish")
	}
	return s.store.Put(ctx, keyProposals, b, s.quorum())
}

// QuorumFromPeerCount implements §4.4's quorum rule: max(1, n/2).
func QuorumFromPeerCount(n int) int {
	q := n / 2
	if q < 1 {
		return 1
	}
	return q
}
