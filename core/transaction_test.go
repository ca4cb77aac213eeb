package core

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTransactionSignsAndHashes(t *testing.T) {
	signer, err := NewAccount()
	require.NoError(t, err)
	recipient, err := NewAccount()
	require.NoError(t, err)

	data := TransactionData{
		Sender:          signer.Address,
		Recipient:       recipient.Address,
		Value:           big.NewInt(1),
		Parents:         []Hash{HashBytes([]byte("parent"))},
		ParentStateHash: HashBytes([]byte("state")),
	}
	tx, err := NewTransaction(data, signer, false)
	require.NoError(t, err)

	require.True(t, tx.VerifyHash())
	require.True(t, tx.VerifySignature(signer.PublicKey))
}

func TestNewTransactionRequiresParentsUnlessGenesis(t *testing.T) {
	signer, err := NewAccount()
	require.NoError(t, err)

	_, err = NewTransaction(TransactionData{Sender: signer.Address}, signer, false)
	require.ErrorIs(t, err, ErrEmptyParents)
}

func TestGenesisTransactionExemptFromSignature(t *testing.T) {
	tx, err := NewTransaction(TransactionData{Sender: ZeroAddress}, nil, true)
	require.NoError(t, err)
	require.True(t, tx.VerifySignature(nil))
}

func TestVerifyHashDetectsTamperedData(t *testing.T) {
	signer, err := NewAccount()
	require.NoError(t, err)
	tx, err := NewTransaction(TransactionData{
		Sender: signer.Address, Parents: []Hash{HashBytes([]byte("p"))},
	}, signer, false)
	require.NoError(t, err)

	tx.Data.Nonce = 999
	require.False(t, tx.VerifyHash())
}

func TestVerifySignatureRejectsWrongKey(t *testing.T) {
	signer, err := NewAccount()
	require.NoError(t, err)
	impostor, err := NewAccount()
	require.NoError(t, err)

	tx, err := NewTransaction(TransactionData{
		Sender: signer.Address, Parents: []Hash{HashBytes([]byte("p"))},
	}, signer, false)
	require.NoError(t, err)

	require.False(t, tx.VerifySignature(impostor.PublicKey))
}

func TestEncodeDecodeTransactionRoundTrip(t *testing.T) {
	signer, err := NewAccount()
	require.NoError(t, err)
	tx, err := NewTransaction(TransactionData{
		Sender: signer.Address, Value: big.NewInt(5), Parents: []Hash{HashBytes([]byte("p"))},
	}, signer, false)
	require.NoError(t, err)

	b, err := encodeTransaction(tx)
	require.NoError(t, err)

	out, err := decodeTransaction(b)
	require.NoError(t, err)
	require.Equal(t, tx.Hash, out.Hash)
	require.Equal(t, tx.Data.Value, out.Data.Value)
}
