package core

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SummerCash/go-summercash/internal/testutil"
)

func TestAccountSignVerify(t *testing.T) {
	acc, err := NewAccount()
	require.NoError(t, err)

	digest := HashBytes([]byte("msg"))
	sig, err := acc.Sign(digest)
	require.NoError(t, err)
	require.True(t, acc.Verify(digest, sig))

	other := HashBytes([]byte("different"))
	require.False(t, acc.Verify(other, sig))
}

func TestAccountLockPreventsSigning(t *testing.T) {
	acc, err := NewAccount()
	require.NoError(t, err)
	acc.Lock()

	_, err = acc.Sign(HashBytes([]byte("x")))
	require.ErrorIs(t, err, ErrAccountLocked)
}

func TestKeystoreCreateGetPersists(t *testing.T) {
	sb, err := testutil.NewSandbox()
	require.NoError(t, err)
	defer sb.Cleanup()

	ks, err := NewKeystore(sb.Root)
	require.NoError(t, err)

	acc, err := ks.Create()
	require.NoError(t, err)

	// Force a reload from disk via a fresh Keystore instance.
	ks2, err := NewKeystore(sb.Root)
	require.NoError(t, err)
	loaded, err := ks2.Get(acc.Address)
	require.NoError(t, err)
	require.Equal(t, acc.Address, loaded.Address)
}

func TestKeystoreLoadPeerIdentityGeneratesOnce(t *testing.T) {
	sb, err := testutil.NewSandbox()
	require.NoError(t, err)
	defer sb.Cleanup()

	ks, err := NewKeystore(sb.Root)
	require.NoError(t, err)

	first, err := ks.LoadPeerIdentity()
	require.NoError(t, err)

	second, err := ks.LoadPeerIdentity()
	require.NoError(t, err)
	require.Equal(t, first.Address, second.Address)
}

func TestKeystoreUnlockedExcludesLocked(t *testing.T) {
	sb, err := testutil.NewSandbox()
	require.NoError(t, err)
	defer sb.Cleanup()

	ks, err := NewKeystore(sb.Root)
	require.NoError(t, err)

	acc, err := ks.Create()
	require.NoError(t, err)
	require.Len(t, ks.Unlocked(), 1)

	acc.Lock()
	require.Empty(t, ks.Unlocked())
}

func TestKeystoreDelete(t *testing.T) {
	sb, err := testutil.NewSandbox()
	require.NoError(t, err)
	defer sb.Cleanup()

	ks, err := NewKeystore(sb.Root)
	require.NoError(t, err)

	acc, err := ks.Create()
	require.NoError(t, err)
	require.NoError(t, ks.Delete(acc.Address))

	_, err = ks.Get(acc.Address)
	require.Error(t, err)
}
