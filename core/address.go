package core

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
)

// Address is a 20-byte account identifier derived from the leading bytes of
// the blake3 hash of an account's public signing key.
type Address [20]byte

// ZeroAddress is the distinguished sender of genesis transactions and the
// implicit holder of newly-minted genesis allocations.
var ZeroAddress = Address{}

// String returns the lowercase hex encoding of a.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// MarshalJSON renders the address as a hex string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON parses an address from a hex string.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := AddressFromHex(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalText renders the address as a hex string. encoding/json uses
// MarshalText (not MarshalJSON) to encode map keys, which Address is in
// StateEntry.Balances/Nonces.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses an address from a hex string, the map-key counterpart
// to MarshalText.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := AddressFromHex(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// AddressFromPublicKey derives the address that owns pub: the leading 20
// bytes of the blake3 digest of the raw public key bytes.
func AddressFromPublicKey(pub ed25519.PublicKey) Address {
	h := HashBytes(pub)
	var a Address
	copy(a[:], h[:len(a)])
	return a
}

// AddressFromHex parses a 40-character hex string into an Address.
func AddressFromHex(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(Address{}) {
		return Address{}, ErrInvalidAddrLen
	}
	var a Address
	copy(a[:], b)
	return a, nil
}
