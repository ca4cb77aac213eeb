package core

import (
	"crypto/ed25519"
	crand "crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
)

// P2PIdentityName is the reserved account name under which the process's
// peer identity keypair is stored, distinct from any transaction-signing
// account.
const P2PIdentityName = "p2p_identity"

// Account is an asymmetric signing keypair bound to an Address, optionally
// paired with a peer-identity keypair when it represents this node's network
// identity. Mirrors the original accounts/account.rs persistence shape.
type Account struct {
	Address       Address           `json:"address"`
	PublicKey     ed25519.PublicKey `json:"public_key"`
	PrivateKey    ed25519.PrivateKey `json:"private_key,omitempty"`
	PeerPublicKey ed25519.PublicKey `json:"peer_public_key,omitempty"`
	PeerPrivateKey ed25519.PrivateKey `json:"peer_private_key,omitempty"`
	Locked        bool              `json:"locked"`

	mu sync.RWMutex
}

// NewAccount generates a fresh signing keypair and derives its address.
func NewAccount() (*Account, error) {
	pub, priv, err := ed25519.GenerateKey(crand.Reader)
	if err != nil {
		return nil, Wrap(err, "generate account keypair")
	}
	return &Account{
		Address:    AddressFromPublicKey(pub),
		PublicKey:  pub,
		PrivateKey: priv,
	}, nil
}

// NewPeerIdentity generates a fresh peer-identity keypair, used once per node
// to authenticate it on the network substrate.
func NewPeerIdentity() (*Account, error) {
	pub, priv, err := ed25519.GenerateKey(crand.Reader)
	if err != nil {
		return nil, Wrap(err, "generate peer identity keypair")
	}
	return &Account{
		Address:        AddressFromPublicKey(pub),
		PeerPublicKey:  pub,
		PeerPrivateKey: priv,
	}, nil
}

// Lock marks the account locked and clears its in-memory private key, leaving
// it unusable for signing. No method unlocks it again, and the account's
// keystore file is not changed.
func (a *Account) Lock() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Locked = true
	a.PrivateKey = nil
}

// Sign signs digest with the account's signing key. Returns ErrAccountLocked
// if the account has no usable private key.
func (a *Account) Sign(digest Hash) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.Locked || len(a.PrivateKey) == 0 {
		return nil, ErrAccountLocked
	}
	return ed25519.Sign(a.PrivateKey, digest[:]), nil
}

// Verify checks sig against digest under the account's public key.
func (a *Account) Verify(digest Hash, sig []byte) bool {
	if len(a.PublicKey) == 0 {
		return false
	}
	return ed25519.Verify(a.PublicKey, digest[:], sig)
}

// Keystore persists Account records under dataDir/keystore, one JSON file per
// address plus the reserved p2p_identity.json.
type Keystore struct {
	dir string

	mu       sync.RWMutex
	accounts map[Address]*Account
}

// NewKeystore opens (creating if necessary) a keystore rooted at dataDir.
func NewKeystore(dataDir string) (*Keystore, error) {
	dir := filepath.Join(dataDir, "keystore")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, Wrap(err, "create keystore dir")
	}
	return &Keystore{dir: dir, accounts: make(map[Address]*Account)}, nil
}

// Create generates a new account, persists it, and returns it.
func (k *Keystore) Create() (*Account, error) {
	acc, err := NewAccount()
	if err != nil {
		return nil, err
	}
	if err := k.Save(acc); err != nil {
		return nil, err
	}
	k.mu.Lock()
	k.accounts[acc.Address] = acc
	k.mu.Unlock()
	return acc, nil
}

// Save writes acc to keystore/<address-hex>.json.
func (k *Keystore) Save(acc *Account) error {
	path := filepath.Join(k.dir, acc.Address.String()+".json")
	return writeAccountFile(path, acc)
}

// SavePeerIdentity writes the reserved peer identity record.
func (k *Keystore) SavePeerIdentity(acc *Account) error {
	return writeAccountFile(filepath.Join(k.dir, P2PIdentityName+".json"), acc)
}

// LoadPeerIdentity reads the reserved peer identity record, generating and
// persisting one if absent.
func (k *Keystore) LoadPeerIdentity() (*Account, error) {
	path := filepath.Join(k.dir, P2PIdentityName+".json")
	acc, err := readAccountFile(path)
	if err == nil {
		return acc, nil
	}
	if !os.IsNotExist(err) {
		return nil, Wrap(err, "read peer identity")
	}
	acc, genErr := NewPeerIdentity()
	if genErr != nil {
		return nil, genErr
	}
	if err := k.SavePeerIdentity(acc); err != nil {
		return nil, err
	}
	log.WithField("address", acc.Address.String()).Info("generated new peer identity")
	return acc, nil
}

// Get returns a previously loaded or persisted account by address.
func (k *Keystore) Get(addr Address) (*Account, error) {
	k.mu.RLock()
	if acc, ok := k.accounts[addr]; ok {
		k.mu.RUnlock()
		return acc, nil
	}
	k.mu.RUnlock()

	acc, err := readAccountFile(filepath.Join(k.dir, addr.String()+".json"))
	if err != nil {
		return nil, Wrap(err, "read account")
	}
	k.mu.Lock()
	k.accounts[addr] = acc
	k.mu.Unlock()
	return acc, nil
}

// Delete removes an account's keystore file and in-memory entry.
func (k *Keystore) Delete(addr Address) error {
	k.mu.Lock()
	delete(k.accounts, addr)
	k.mu.Unlock()
	if err := os.Remove(filepath.Join(k.dir, addr.String()+".json")); err != nil && !os.IsNotExist(err) {
		return Wrap(err, "delete account")
	}
	return nil
}

// List returns every account address currently loaded into memory.
func (k *Keystore) List() []Address {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]Address, 0, len(k.accounts))
	for addr := range k.accounts {
		out = append(out, addr)
	}
	return out
}

// Unlocked returns every in-memory account that is not locked, the set that
// casts autonomous votes on ledger-append proposals (§4.5).
func (k *Keystore) Unlocked() []*Account {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]*Account, 0, len(k.accounts))
	for _, acc := range k.accounts {
		acc.mu.RLock()
		locked := acc.Locked
		acc.mu.RUnlock()
		if !locked {
			out = append(out, acc)
		}
	}
	return out
}

// PublicKey implements PublicKeyResolver by loading (and caching) the
// account for addr and returning its signing public key. Accounts known
// only as peer identities (no signing key) report false.
func (k *Keystore) PublicKey(addr Address) (ed25519.PublicKey, bool) {
	acc, err := k.Get(addr)
	if err != nil || len(acc.PublicKey) == 0 {
		return nil, false
	}
	return acc.PublicKey, true
}

func writeAccountFile(path string, acc *Account) error {
	b, err := json.MarshalIndent(acc, "", "  ")
	if err != nil {
		return Wrap(err, "marshal account")
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return Wrap(err, "write account file")
	}
	return nil
}

func readAccountFile(path string) (*Account, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	acc := &Account{}
	if err := json.Unmarshal(b, acc); err != nil {
		return nil, Wrap(err, "unmarshal account")
	}
	return acc, nil
}

var _ PublicKeyResolver = (*Keystore)(nil)
