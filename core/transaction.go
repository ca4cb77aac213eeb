package core

import (
	"crypto/ed25519"
	"encoding/json"
	"math/big"
	"time"
)

// Log is an emitted event attached to a Receipt; it never affects state.
type Log struct {
	Topics  []string `json:"topics"`
	Message []byte   `json:"message"`
}

// Receipt is a sender-provided attestation of the state observed at a parent
// transaction, carried forward in TransactionData.ParentReceipts.
type Receipt struct {
	StateHash Hash  `json:"state_hash"`
	Logs      []Log `json:"logs"`
}

// ParentReceipt pairs a parent's hash with the Receipt the sender observed
// for it at signing time.
type ParentReceipt struct {
	Parent  Hash    `json:"parent"`
	Receipt Receipt `json:"receipt"`
}

// TransactionData is the pre-image hashed to produce a Transaction's Hash.
// Field order is fixed so JSON marshaling is a stable canonical encoding.
type TransactionData struct {
	Nonce           uint64          `json:"nonce"`
	Sender          Address         `json:"sender"`
	Recipient       Address         `json:"recipient"`
	Value           *big.Int        `json:"value"`
	Payload         []byte          `json:"payload,omitempty"`
	Parents         []Hash          `json:"parents"`
	ParentStateHash Hash            `json:"parent_state_hash"`
	ParentReceipts  []ParentReceipt `json:"parent_receipts,omitempty"`
	Timestamp       int64           `json:"timestamp"`
}

// CanonicalHash returns H(canonical_bytes(data)) per §3.
func (d *TransactionData) CanonicalHash() (Hash, error) {
	return HashJSON(d)
}

// Transaction is the immutable work unit recorded in the ledger.
type Transaction struct {
	Data                    TransactionData `json:"data"`
	Hash                    Hash            `json:"hash"`
	Signature               []byte          `json:"signature,omitempty"`
	DeployedContractAddress *Address        `json:"deployed_contract_address,omitempty"`
	ContractCreation        bool            `json:"contract_creation"`
	Genesis                 bool            `json:"genesis"`
}

// NewTransaction builds and signs a transaction from data using signer,
// computing the canonical hash and, for non-genesis transactions, a
// signature over it. parentReceipts must already reflect the parents named
// in parents.
func NewTransaction(data TransactionData, signer *Account, genesis bool) (*Transaction, error) {
	if !genesis && len(data.Parents) == 0 {
		return nil, ErrEmptyParents
	}
	if data.Value == nil {
		data.Value = big.NewInt(0)
	}
	if data.Timestamp == 0 {
		data.Timestamp = time.Now().UTC().Unix()
	}

	h, err := data.CanonicalHash()
	if err != nil {
		return nil, Wrap(err, "hash transaction data")
	}

	tx := &Transaction{Data: data, Hash: h, Genesis: genesis}
	if genesis {
		return tx, nil
	}
	sig, err := signer.Sign(h)
	if err != nil {
		return nil, Wrap(err, "sign transaction")
	}
	tx.Signature = sig
	return tx, nil
}

// VerifyHash reports whether tx.Hash matches H(canonical_bytes(tx.Data)).
func (tx *Transaction) VerifyHash() bool {
	h, err := tx.Data.CanonicalHash()
	if err != nil {
		return false
	}
	return h == tx.Hash
}

// VerifySignature reports whether tx.Signature verifies tx.Hash under the
// public key identified by senderPub. Genesis transactions are exempt.
func (tx *Transaction) VerifySignature(senderPub ed25519.PublicKey) bool {
	if tx.Genesis {
		return true
	}
	if len(senderPub) == 0 || len(tx.Signature) == 0 {
		return false
	}
	return ed25519.Verify(senderPub, tx.Hash[:], tx.Signature)
}

// encodeTransaction serializes tx for the wire/KV substrate. The on-disk
// and on-wire format is JSON throughout this implementation: the substrate
// is not bandwidth-constrained enough to justify a second codec, and it
// keeps debugging snapshots human-readable.
func encodeTransaction(tx *Transaction) ([]byte, error) {
	b, err := json.Marshal(tx)
	if err != nil {
		return nil, Wrap(err, "encode transaction")
	}
	return b, nil
}

// decodeTransaction is encodeTransaction's inverse.
func decodeTransaction(b []byte) (*Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(b, &tx); err != nil {
		return nil, Wrap(err, "decode transaction")
	}
	return &tx, nil
}

// receiptFor builds the Receipt a sender would observe for a resolved
// parent node: the node's materialized state hash and the logs its
// transaction emitted.
func receiptFor(state *StateEntry, logs []Log) Receipt {
	return Receipt{StateHash: state.Hash, Logs: append([]Log(nil), logs...)}
}
