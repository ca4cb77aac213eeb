package core

import (
	"context"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	log "github.com/sirupsen/logrus"
)

// PeerView is what an admitted peer announced during identify, carried
// through the network tag / version compatibility check in §4.6.
type PeerView struct {
	ID              peer.ID
	ProtocolVersion string // network tag, e.g. "andromeda", "vela"
	AgentVersion    string
	AdmittedAt      time.Time
}

// VersionCompatible reports whether candidateVersion may interoperate with
// localVersion. Exact semantics are deployment-defined per §4.6; this
// implementation treats versions as compatible when they share the same
// major component (the part before the first '.'), matching the loose
// compatibility check the teacher's identify handling used.
func VersionCompatible(local, candidate string) bool {
	return majorVersion(local) == majorVersion(candidate)
}

func majorVersion(v string) string {
	for i, r := range v {
		if r == '.' {
			return v[:i]
		}
	}
	return v
}

// Pinger issues a liveness probe to a peer, returning an error on failure.
type Pinger interface {
	Ping(ctx context.Context, id peer.ID) error
}

// PeerSet tracks admitted peers and enforces §4.6's admission and liveness
// rules: identify compatibility on join, eviction on a failed ping or an
// incompatible handshake.
type PeerSet struct {
	networkTag  string
	nodeVersion string
	ping        Pinger

	mu    sync.RWMutex
	peers map[peer.ID]*PeerView

	logger *log.Logger
}

// NewPeerSet creates a PeerSet that admits only peers announcing
// networkTag and a version compatible with nodeVersion.
func NewPeerSet(networkTag, nodeVersion string, ping Pinger) *PeerSet {
	return &PeerSet{
		networkTag:  networkTag,
		nodeVersion: nodeVersion,
		ping:        ping,
		peers:       make(map[peer.ID]*PeerView),
		logger:      log.StandardLogger(),
	}
}

// HandleIdentify admits or rejects a peer based on its announced protocol
// and agent versions, per §4.6's two conditions.
func (ps *PeerSet) HandleIdentify(id peer.ID, protocolVersion, agentVersion string) bool {
	if protocolVersion != ps.networkTag || !VersionCompatible(ps.nodeVersion, agentVersion) {
		ps.Remove(id)
		ps.logger.WithFields(log.Fields{
			"peer": id.String(), "protocol": protocolVersion, "agent": agentVersion,
		}).Debug("peers: rejected incompatible handshake")
		return false
	}
	ps.mu.Lock()
	ps.peers[id] = &PeerView{ID: id, ProtocolVersion: protocolVersion, AgentVersion: agentVersion, AdmittedAt: time.Now()}
	ps.mu.Unlock()
	return true
}

// Remove evicts a peer from every view. Re-admission requires a fresh
// identify handshake.
func (ps *PeerSet) Remove(id peer.ID) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	delete(ps.peers, id)
}

// Count returns the number of currently admitted peers, the n_active_peers
// input to §4.4's quorum formula.
func (ps *PeerSet) Count() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.peers)
}

// IDs returns the peer IDs currently admitted.
func (ps *PeerSet) IDs() []peer.ID {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make([]peer.ID, 0, len(ps.peers))
	for id := range ps.peers {
		out = append(out, id)
	}
	return out
}

// LivenessLoop periodically pings every admitted peer, evicting any that
// fail to respond, until ctx is canceled.
func (ps *PeerSet) LivenessLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ps.probeOnce(ctx)
		}
	}
}

func (ps *PeerSet) probeOnce(ctx context.Context) {
	for _, id := range ps.IDs() {
		if err := ps.ping.Ping(ctx, id); err != nil {
			ps.logger.WithField("peer", id.String()).Debug("peers: liveness probe failed, evicting")
			ps.Remove(id)
		}
	}
}
