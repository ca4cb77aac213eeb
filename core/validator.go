package core

import "crypto/ed25519"

// PublicKeyResolver looks up the signing public key for an address, used by
// the validator to verify a transaction's signature without holding private
// key material itself.
type PublicKeyResolver interface {
	PublicKey(addr Address) (ed25519.PublicKey, bool)
}

// Validator checks a candidate transaction against a ledger snapshot,
// implementing the five ordered rules of §4.2. It performs no I/O and holds
// no mutable state of its own.
type Validator struct {
	ledger   *Ledger
	resolver PublicKeyResolver
}

// NewValidator binds a Validator to the ledger it checks candidates against
// and the resolver it uses to fetch sender public keys.
func NewValidator(ledger *Ledger, resolver PublicKeyResolver) *Validator {
	return &Validator{ledger: ledger, resolver: resolver}
}

// Validate runs the five ordered checks and returns the first failure, or
// nil if tx may be admitted.
func (v *Validator) Validate(tx *Transaction) error {
	if _, exists := v.ledger.hashRoutesSnapshot()[tx.Hash]; exists {
		return ErrNotUnique
	}

	for _, p := range tx.Data.Parents {
		node := v.ledger.GetByHash(p)
		if node == nil {
			return ErrParentNotFound
		}
		if node.StateEntry != nil {
			return ErrTooOld
		}
	}

	if !tx.VerifyHash() {
		return ErrInvalidHash
	}

	if !tx.Genesis {
		pub, ok := v.resolver.PublicKey(tx.Data.Sender)
		if !ok || !tx.VerifySignature(pub) {
			return ErrInvalidSignature
		}
	}

	if !tx.Genesis {
		merged, _, err := v.ledger.ResolveParentNodes(tx.Data.Parents)
		if err != nil {
			return Wrap(err, "resolve parents for validation")
		}
		if tx.Data.ParentStateHash.IsZero() {
			return ErrParentReceiptInvalid
		}
		if merged.Hash != tx.Data.ParentStateHash {
			return ErrParentReceiptInvalid
		}
	}

	return nil
}

// hashRoutesSnapshot returns a shallow, lock-protected copy of the ledger's
// hash→index routing table for the validator's uniqueness check.
func (l *Ledger) hashRoutesSnapshot() map[Hash]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[Hash]int, len(l.hashRoutes))
	for h, i := range l.hashRoutes {
		out[h] = i
	}
	return out
}
