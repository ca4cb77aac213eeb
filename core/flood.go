package core

import (
	"context"
	"encoding/json"
	"sync"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	log "github.com/sirupsen/logrus"
)

// Flood topic names, per §4.5 — exactly these two strings, joined at
// client start.
const (
	TopicProposals = "proposals"
	TopicVotes     = "votes"
)

// minVotesToExecute is the runtime policy mentioned in §4.5/§9: the number
// of distinct, verified votes on a ledger-append proposal required before
// execute_proposal is called. A production deployment would derive this
// from quorum; fixed here at one, matching the spec's description of the
// vote mechanism as a single-keyholder-assent prototype.
const minVotesToExecute = 1

// Flood disseminates proposals and votes across the "proposals" and "votes"
// pubsub topics and drives the autonomous voting behavior of §4.5.
type Flood struct {
	ps       *pubsub.PubSub
	system   *System
	resolver PublicKeyResolver
	voters   *Keystore

	proposalTopic *pubsub.Topic
	voteTopic     *pubsub.Topic
	proposalSub   *pubsub.Subscription
	voteSub       *pubsub.Subscription

	votes *voteTracker

	logger *log.Logger
}

// NewFlood joins both topics on ps and returns a Flood ready to Run.
func NewFlood(ps *pubsub.PubSub, system *System, voters *Keystore) (*Flood, error) {
	pt, err := ps.Join(TopicProposals)
	if err != nil {
		return nil, Wrap(err, "join proposals topic")
	}
	vt, err := ps.Join(TopicVotes)
	if err != nil {
		return nil, Wrap(err, "join votes topic")
	}
	psub, err := pt.Subscribe()
	if err != nil {
		return nil, Wrap(err, "subscribe proposals topic")
	}
	vsub, err := vt.Subscribe()
	if err != nil {
		return nil, Wrap(err, "subscribe votes topic")
	}

	return &Flood{
		ps:            ps,
		system:        system,
		resolver:      voters,
		voters:        voters,
		proposalTopic: pt,
		voteTopic:     vt,
		proposalSub:   psub,
		voteSub:       vsub,
		votes:         newVoteTracker(),
		logger:        log.StandardLogger(),
	}, nil
}

// Run drains incoming proposal and vote messages until ctx is canceled.
func (f *Flood) Run(ctx context.Context) {
	go f.runProposals(ctx)
	go f.runVotes(ctx)
}

func (f *Flood) runProposals(ctx context.Context) {
	for {
		msg, err := f.proposalSub.Next(ctx)
		if err != nil {
			return
		}
		f.handleProposal(ctx, msg.Data)
	}
}

func (f *Flood) runVotes(ctx context.Context) {
	for {
		msg, err := f.voteSub.Next(ctx)
		if err != nil {
			return
		}
		f.handleVote(ctx, msg.Data)
	}
}

func (f *Flood) handleProposal(ctx context.Context, data []byte) {
	var p Proposal
	if err := json.Unmarshal(data, &p); err != nil {
		f.logger.WithError(err).Debug("flood: dropping malformed proposal")
		return
	}
	f.system.RegisterProposal(&p)

	if p.Data.ParamName != ParamLedgerTx {
		return
	}
	if p.Data.Operation.Kind != OpAppend {
		return
	}
	tx, err := decodeTransaction(p.Data.Operation.Bytes)
	if err != nil {
		f.logger.WithError(err).Debug("flood: dropping proposal with undecodable transaction")
		return
	}
	validator := NewValidator(f.system.Ledger(), f.resolver)
	if err := validator.Validate(tx); err != nil {
		f.logger.WithError(err).WithField("proposal", p.ID.String()).Debug("flood: refusing to vote for invalid transaction")
		return
	}
	for _, acc := range f.voters.Unlocked() {
		vote, err := NewVote(p.ID, acc)
		if err != nil {
			f.logger.WithError(err).Warn("flood: failed to cast autonomous vote")
			continue
		}
		if err := f.publishVote(ctx, vote); err != nil {
			f.logger.WithError(err).Warn("flood: failed to publish vote")
		}
	}
}

func (f *Flood) handleVote(_ context.Context, data []byte) {
	var v Vote
	if err := json.Unmarshal(data, &v); err != nil {
		f.logger.WithError(err).Debug("flood: dropping malformed vote")
		return
	}
	if !v.Verify(f.resolver) {
		f.logger.Debug("flood: dropping vote with invalid signature")
		return
	}
	if _, ok := f.system.PendingProposal(v.TargetProposal); !ok {
		return
	}
	if f.votes.add(v.TargetProposal, v.Voter) < minVotesToExecute {
		return
	}
	if err := f.system.ExecuteProposal(v.TargetProposal); err != nil {
		f.logger.WithError(err).Warn("flood: proposal execution failed after quorum")
	}
	f.votes.clear(v.TargetProposal)
}

func (f *Flood) publishVote(ctx context.Context, v *Vote) error {
	b, err := json.Marshal(v)
	if err != nil {
		return Wrap(err, "marshal vote")
	}
	return f.voteTopic.Publish(ctx, b)
}

// PublishLocalized serializes and publishes every locally queued proposal,
// clearing the queue; the outer event loop calls this each outbound tick.
func (f *Flood) PublishLocalized(ctx context.Context) {
	for _, p := range f.system.DrainLocalized() {
		b, err := json.Marshal(p)
		if err != nil {
			f.logger.WithError(err).Warn("flood: failed to marshal local proposal")
			continue
		}
		if err := f.proposalTopic.Publish(ctx, b); err != nil {
			f.logger.WithError(err).Warn("flood: failed to publish local proposal")
		}
	}
}

// voteTracker deduplicates votes by (proposal_id, voter_address) and counts
// distinct voters per proposal, per §9's flagged open question.
type voteTracker struct {
	mu   sync.Mutex
	seen map[Hash]map[Address]struct{}
}

func newVoteTracker() *voteTracker {
	return &voteTracker{seen: make(map[Hash]map[Address]struct{})}
}

// add records voter's vote for proposal and returns the updated distinct
// voter count.
func (t *voteTracker) add(proposal Hash, voter Address) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	voters, ok := t.seen[proposal]
	if !ok {
		voters = make(map[Address]struct{})
		t.seen[proposal] = voters
	}
	voters[voter] = struct{}{}
	return len(voters)
}

func (t *voteTracker) clear(proposal Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.seen, proposal)
}
