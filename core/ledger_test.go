package core

import (
	"crypto/ed25519"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SummerCash/go-summercash/internal/testutil"
)

type mapResolver map[Address]ed25519.PublicKey

func (m mapResolver) PublicKey(addr Address) (ed25519.PublicKey, bool) {
	pk, ok := m[addr]
	return pk, ok
}

func TestLedgerPushAndGet(t *testing.T) {
	ledger := NewLedger()
	rootTx, err := NewTransaction(TransactionData{Sender: ZeroAddress, Recipient: Address{1}, Value: big.NewInt(5)}, nil, true)
	require.NoError(t, err)

	idx, err := ledger.Push(rootTx, NewStateEntry())
	require.NoError(t, err)
	require.Equal(t, 0, idx)
	require.Equal(t, 1, ledger.Len())

	got := ledger.Get(0)
	require.NotNil(t, got)
	require.Equal(t, rootTx.Hash, got.Hash)

	byHash := ledger.GetByHash(rootTx.Hash)
	require.NotNil(t, byHash)
	require.Equal(t, rootTx.Hash, byHash.Hash)
}

func TestLedgerPushRejectsMissingParent(t *testing.T) {
	ledger := NewLedger()
	tx, err := NewTransaction(TransactionData{
		Sender: Address{1}, Recipient: Address{2}, Parents: []Hash{HashBytes([]byte("nope"))},
	}, nil, false)
	require.NoError(t, err)

	_, err = ledger.Push(tx, nil)
	require.ErrorIs(t, err, ErrParentNotFound)
}

func TestLedgerRollbackHead(t *testing.T) {
	ledger := NewLedger()
	rootTx, err := NewTransaction(TransactionData{Sender: ZeroAddress, Recipient: Address{1}}, nil, true)
	require.NoError(t, err)
	_, err = ledger.Push(rootTx, NewStateEntry())
	require.NoError(t, err)

	require.NoError(t, ledger.RollbackHead())
	require.Equal(t, 0, ledger.Len())
	require.Nil(t, ledger.GetByHash(rootTx.Hash))
}

func TestLedgerTooOldEnforcesTipOnlyExtension(t *testing.T) {
	ledger := NewLedger()

	alice, err := NewAccount()
	require.NoError(t, err)
	bob, err := NewAccount()
	require.NoError(t, err)
	resolver := mapResolver{alice.Address: alice.PublicKey, bob.Address: bob.PublicKey}
	validator := NewValidator(ledger, resolver)

	rootTx, err := NewTransaction(TransactionData{Sender: ZeroAddress, Recipient: alice.Address, Value: big.NewInt(1000)}, nil, true)
	require.NoError(t, err)
	_, err = ledger.Push(rootTx, nil)
	require.NoError(t, err)

	rootResolved, err := NewStateEntry().Apply(rootTx)
	require.NoError(t, err)

	child1, err := NewTransaction(TransactionData{
		Sender: alice.Address, Recipient: bob.Address, Value: big.NewInt(100),
		Parents: []Hash{rootTx.Hash}, ParentStateHash: rootResolved.Hash,
	}, alice, false)
	require.NoError(t, err)
	require.NoError(t, validator.Validate(child1))

	child1Idx, err := ledger.Push(child1, nil)
	require.NoError(t, err)
	merged, err := ledger.ResolveAndFinalize(child1Idx)
	require.NoError(t, err)
	require.Equal(t, rootResolved.Hash, merged.Hash)

	// child1 stays unresolved — only its ancestor (root) gets memoized.
	require.Nil(t, ledger.Get(child1Idx).StateEntry)

	// A second transaction targeting root (now resolved as a side effect of
	// finalizing child1) must be rejected: the head has moved past root.
	child2, err := NewTransaction(TransactionData{
		Sender: alice.Address, Recipient: bob.Address, Value: big.NewInt(1),
		Parents: []Hash{rootTx.Hash}, ParentStateHash: rootResolved.Hash,
	}, alice, false)
	require.NoError(t, err)
	require.ErrorIs(t, validator.Validate(child2), ErrTooOld)

	// Extending the real tip (child1, still unresolved) must succeed.
	child1Resolved, err := rootResolved.Apply(child1)
	require.NoError(t, err)
	child3, err := NewTransaction(TransactionData{
		Sender: bob.Address, Recipient: alice.Address, Value: big.NewInt(10),
		Parents: []Hash{child1.Hash}, ParentStateHash: child1Resolved.Hash,
	}, bob, false)
	require.NoError(t, err)
	require.NoError(t, validator.Validate(child3))
}

func TestLedgerCompactFaultsInFromDisk(t *testing.T) {
	sb, err := testutil.NewSandbox()
	require.NoError(t, err)
	defer sb.Cleanup()

	ledger := NewLedger()
	rootTx, err := NewTransaction(TransactionData{Sender: ZeroAddress, Recipient: Address{1}, Value: big.NewInt(1)}, nil, true)
	require.NoError(t, err)
	_, err = ledger.Push(rootTx, NewStateEntry())
	require.NoError(t, err)

	require.NoError(t, ledger.WriteToDisk(sb.Root, "testnet"))

	ledger.Compact(0)
	require.Nil(t, ledger.nodes[0].Transaction)
	// Drop the LRU copy Compact kept so the body has to come from disk.
	ledger.cache.Purge()

	got := ledger.GetByHash(rootTx.Hash)
	require.NotNil(t, got)
	require.NotNil(t, got.Transaction)
	require.Equal(t, rootTx.Hash, got.Transaction.Hash)
}

func TestLedgerWriteReadPartialRoundTrip(t *testing.T) {
	sb, err := testutil.NewSandbox()
	require.NoError(t, err)
	defer sb.Cleanup()

	ledger := NewLedger()
	rootTx, err := NewTransaction(TransactionData{Sender: ZeroAddress, Recipient: Address{1}, Value: big.NewInt(1)}, nil, true)
	require.NoError(t, err)
	_, err = ledger.Push(rootTx, NewStateEntry())
	require.NoError(t, err)

	require.NoError(t, ledger.WriteToDisk(sb.Root, "testnet"))

	loaded, err := ReadPartialFromDisk(sb.Root, "testnet")
	require.NoError(t, err)
	require.Equal(t, 1, loaded.Len())
	require.Equal(t, rootTx.Hash, loaded.HeadHash())
}
