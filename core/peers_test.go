package core

import (
	"context"
	"sync"
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	mu    sync.Mutex
	fails map[peer.ID]bool
}

func (f *fakePinger) Ping(_ context.Context, id peer.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails[id] {
		return ErrNoAvailablePeers
	}
	return nil
}

func TestVersionCompatibleComparesMajorComponentOnly(t *testing.T) {
	require.True(t, VersionCompatible("1.4.0", "1.9.2"))
	require.False(t, VersionCompatible("1.4.0", "2.0.0"))
	require.True(t, VersionCompatible("v1", "v1"))
}

func TestHandleIdentifyAdmitsMatchingTagAndVersion(t *testing.T) {
	ps := NewPeerSet("andromeda", "1.0.0", &fakePinger{})

	ok := ps.HandleIdentify(peer.ID("peer1"), "andromeda", "1.2.0")
	require.True(t, ok)
	require.Equal(t, 1, ps.Count())
}

func TestHandleIdentifyRejectsWrongNetworkTag(t *testing.T) {
	ps := NewPeerSet("andromeda", "1.0.0", &fakePinger{})

	ok := ps.HandleIdentify(peer.ID("peer1"), "vela", "1.2.0")
	require.False(t, ok)
	require.Equal(t, 0, ps.Count())
}

func TestHandleIdentifyRejectsIncompatibleVersion(t *testing.T) {
	ps := NewPeerSet("andromeda", "1.0.0", &fakePinger{})

	ok := ps.HandleIdentify(peer.ID("peer1"), "andromeda", "2.0.0")
	require.False(t, ok)
	require.Equal(t, 0, ps.Count())
}

func TestRemoveEvictsPeer(t *testing.T) {
	ps := NewPeerSet("andromeda", "1.0.0", &fakePinger{})
	ps.HandleIdentify(peer.ID("peer1"), "andromeda", "1.0.0")
	require.Equal(t, 1, ps.Count())

	ps.Remove(peer.ID("peer1"))
	require.Equal(t, 0, ps.Count())
}

func TestProbeOnceEvictsFailingPeers(t *testing.T) {
	pinger := &fakePinger{fails: map[peer.ID]bool{peer.ID("bad"): true}}
	ps := NewPeerSet("andromeda", "1.0.0", pinger)
	ps.HandleIdentify(peer.ID("good"), "andromeda", "1.0.0")
	ps.HandleIdentify(peer.ID("bad"), "andromeda", "1.0.0")
	require.Equal(t, 2, ps.Count())

	ps.probeOnce(context.Background())

	require.Equal(t, 1, ps.Count())
	require.Equal(t, []peer.ID{"good"}, ps.IDs())
}
