package core

import "crypto/ed25519"

// OperationKind tags the three mutation shapes a Proposal may carry.
type OperationKind int

const (
	// OpAmend replaces the target parameter's value outright.
	OpAmend OperationKind = iota
	// OpRemove resets the target parameter to its zero value.
	OpRemove
	// OpAppend extends the target parameter's current value.
	OpAppend
)

func (k OperationKind) String() string {
	switch k {
	case OpAmend:
		return "amend"
	case OpRemove:
		return "remove"
	case OpAppend:
		return "append"
	default:
		return "unknown"
	}
}

// Operation is the tagged variant carried by a Proposal: Amend(bytes),
// Remove, or Append(bytes). Bytes is ignored for Remove.
type Operation struct {
	Kind  OperationKind `json:"kind"`
	Bytes []byte        `json:"bytes,omitempty"`
}

// ProposalData is the pre-image hashed to produce a Proposal's ID.
type ProposalData struct {
	ParamName string    `json:"param_name"`
	Operation Operation `json:"operation"`
}

// Proposal is a named request to mutate a config parameter or append a
// transaction to the ledger.
type Proposal struct {
	Name string       `json:"name"`
	Data ProposalData `json:"data"`
	ID   Hash         `json:"id"`
}

// NewProposal builds a Proposal with its content-addressed ID.
func NewProposal(name string, data ProposalData) (*Proposal, error) {
	id, err := HashJSON(data)
	if err != nil {
		return nil, Wrap(err, "hash proposal data")
	}
	return &Proposal{Name: name, Data: data, ID: id}, nil
}

// Known target parameter names, exhaustively dispatched by System.execute.
const (
	ParamRewardPerGas = "config::reward_per_gas"
	ParamNetworkName  = "config::network_name"
	ParamLedgerTx     = "ledger::transactions"
)

// Vote is a signed binary assent to a proposal, cast by one keyholder.
type Vote struct {
	TargetProposal Hash    `json:"target_proposal"`
	Voter          Address `json:"voter"`
	Signature      []byte  `json:"signature"`
}

// NewVote signs target with signer, producing a Vote attributable to the
// signer's address for the (proposal_id, voter_address) dedup key in §9.
func NewVote(target Hash, signer *Account) (*Vote, error) {
	sig, err := signer.Sign(target)
	if err != nil {
		return nil, Wrap(err, "sign vote")
	}
	return &Vote{TargetProposal: target, Voter: signer.Address, Signature: sig}, nil
}

// Verify checks the vote's signature under the public key resolver.
func (v *Vote) Verify(resolver PublicKeyResolver) bool {
	pub, ok := resolver.PublicKey(v.Voter)
	if !ok {
		return false
	}
	return ed25519.Verify(pub, v.TargetProposal[:], v.Signature)
}
