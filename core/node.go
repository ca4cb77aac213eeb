package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	log "github.com/sirupsen/logrus"
)

// HostConfig collects the network-layer settings NewHost needs, mirroring
// pkg/config.NodeConfig.Network without importing pkg/config (core stays
// free of the cmd-level config package).
type HostConfig struct {
	ListenAddr     string
	DiscoveryTag   string
	BootstrapPeers []string
}

// NewHost stands up a libp2p host with gossipsub and mDNS discovery, ground
// on the teacher's NewNode: a listening host, a GossipSub router, bootstrap
// dialing, and an mDNS notifee that connects to every peer it discovers.
func NewHost(ctx context.Context, cfg HostConfig) (host.Host, *pubsub.PubSub, error) {
	h, err := libp2p.New(libp2p.ListenAddrStrings(cfg.ListenAddr))
	if err != nil {
		return nil, nil, Wrap(err, "create libp2p host")
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		return nil, nil, Wrap(err, "create gossipsub router")
	}

	if err := dialBootstrapPeers(ctx, h, cfg.BootstrapPeers); err != nil {
		log.WithError(err).Warn("node: some bootstrap peers could not be dialed")
	}

	mdns.NewMdnsService(h, cfg.DiscoveryTag, &mdnsNotifee{host: h})

	return h, ps, nil
}

func dialBootstrapPeers(ctx context.Context, h host.Host, seeds []string) error {
	var failures []string
	for _, addr := range seeds {
		info, err := peer.AddrInfoFromString(addr)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", addr, err))
			continue
		}
		if err := h.Connect(ctx, *info); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", addr, err))
			continue
		}
		log.WithField("peer", info.ID.String()).Info("node: dialed bootstrap peer")
	}
	if len(failures) > 0 {
		return fmt.Errorf("dial errors: %s", strings.Join(failures, "; "))
	}
	return nil
}

// mdnsNotifee connects to every peer mDNS discovers on the local network,
// the same pattern as the teacher's Node.HandlePeerFound.
type mdnsNotifee struct {
	host host.Host
}

func (n *mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == n.host.ID() {
		return
	}
	if err := n.host.Connect(context.Background(), info); err != nil {
		log.WithError(err).WithField("peer", info.ID.String()).Debug("node: mdns connect failed")
		return
	}
	log.WithField("peer", info.ID.String()).Info("node: connected via mdns")
}

var _ mdns.Notifee = (*mdnsNotifee)(nil)

// WireIdentify drives a PeerSet's admission from the host's own connection
// events: each newly connected peer is looked up in the peerstore for the
// protocol/agent version its identify exchange populated (the standard
// "ProtocolVersion"/"AgentVersion" peerstore keys the identify service
// writes), and handed to HandleIdentify for the network-tag/version check.
// Disconnects evict the peer from the set.
func WireIdentify(h host.Host, peers *PeerSet) {
	h.Network().Notify(&network.NotifyBundle{
		ConnectedF: func(_ network.Network, conn network.Conn) {
			id := conn.RemotePeer()
			protocolVersion, _ := h.Peerstore().Get(id, "ProtocolVersion")
			agentVersion, _ := h.Peerstore().Get(id, "AgentVersion")
			peers.HandleIdentify(id, stringOrEmpty(protocolVersion), stringOrEmpty(agentVersion))
		},
		DisconnectedF: func(_ network.Network, conn network.Conn) {
			peers.Remove(conn.RemotePeer())
		},
	})
}

func stringOrEmpty(v interface{}) string {
	s, _ := v.(string)
	return s
}
