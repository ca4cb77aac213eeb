package core

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConstructGenesisBuildsFourNodes(t *testing.T) {
	alice, bob := Address{1}, Address{2}
	cfg := &GenesisConfig{
		Alloc: map[Address]*big.Int{
			alice: big.NewInt(700),
			bob:   big.NewInt(300),
		},
		TotalValue: big.NewInt(1000),
	}

	ledger := NewLedger()
	require.NoError(t, ConstructGenesis(ledger, cfg))
	require.Equal(t, 4, ledger.Len())

	root := ledger.Get(0)
	require.True(t, root.Transaction.Genesis)
	require.Empty(t, root.Transaction.Data.Parents)
	// Every genesis node is pushed unresolved, exactly like any other append:
	// state_entry is populated only once a later child's resolution walk
	// reaches it as an ancestor, which is what lets the validator still treat
	// these nodes as extendable tips rather than rejecting them as too old.
	require.Nil(t, root.StateEntry)

	final := ledger.Get(3)
	require.Nil(t, final.StateEntry)

	merged, _, err := ledger.ResolveParentNodes([]Hash{final.Hash})
	require.NoError(t, err)
	require.Equal(t, big.NewInt(700), merged.BalanceOf(alice))
	require.Equal(t, big.NewInt(300), merged.BalanceOf(bob))
}

func TestConstructGenesisRejectsMismatchedTotal(t *testing.T) {
	cfg := &GenesisConfig{
		Alloc:      map[Address]*big.Int{{1}: big.NewInt(10)},
		TotalValue: big.NewInt(999),
	}
	require.Error(t, ConstructGenesis(NewLedger(), cfg))
}

func TestConstructGenesisRejectsNonEmptyLedger(t *testing.T) {
	ledger := NewLedger()
	rootTx, err := NewTransaction(TransactionData{Sender: ZeroAddress, Recipient: Address{1}}, nil, true)
	require.NoError(t, err)
	_, err = ledger.Push(rootTx, NewStateEntry())
	require.NoError(t, err)

	cfg := &GenesisConfig{Alloc: map[Address]*big.Int{{2}: big.NewInt(1)}, TotalValue: big.NewInt(1)}
	require.Error(t, ConstructGenesis(ledger, cfg))
}

func TestConstructGenesisAllocNodesParentDirectlyOnRoot(t *testing.T) {
	cfg := &GenesisConfig{
		Alloc: map[Address]*big.Int{
			{1}: big.NewInt(1),
			{2}: big.NewInt(1),
		},
		TotalValue: big.NewInt(2),
	}
	ledger := NewLedger()
	require.NoError(t, ConstructGenesis(ledger, cfg))

	root := ledger.Get(0)
	for i := 1; i <= 2; i++ {
		node := ledger.Get(i)
		require.Equal(t, []Hash{root.Hash}, node.Transaction.Data.Parents)
	}
}
