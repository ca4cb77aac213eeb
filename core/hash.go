package core

import (
	"encoding/hex"
	"encoding/json"

	"lukechampine.com/blake3"
)

// Hash is a 32-byte content digest used throughout the ledger to identify
// transactions, state entries and proposals.
type Hash [32]byte

// ZeroHash is the all-zero digest used as the declared parent-state hash of
// the genesis root (which has no parents) and as the sentinel "no value"
// hash.
var ZeroHash = Hash{}

// String returns the lowercase hex encoding of h.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// Bytes returns a copy of the hash as a byte slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, len(h))
	copy(b, h[:])
	return b
}

// MarshalJSON renders the hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON parses a hash from a hex string.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := HashFromHex(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// HashFromHex parses a hex-encoded 32-byte hash.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, errInvalidHashLen
	}
	if len(b) != len(h) {
		return h, errInvalidHashLen
	}
	copy(h[:], b)
	return h, nil
}

// HashBytes returns the blake3-256 digest of data.
func HashBytes(data []byte) Hash {
	return Hash(blake3.Sum256(data))
}

// HashJSON deterministically hashes v by first canonicalizing it to JSON.
// json.Marshal on a struct with fixed field order produces a stable byte
// sequence across calls, which is sufficient for content addressing here
// since every hashed type in this package has fixed, non-map fields.
func HashJSON(v interface{}) (Hash, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Hash{}, err
	}
	return HashBytes(b), nil
}
