package core

import (
	"context"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	pingproto "github.com/libp2p/go-libp2p/p2p/protocol/ping"
)

// LibP2PPinger implements Pinger over go-libp2p's standard ping protocol,
// used by PeerSet's liveness loop in a production deployment.
type LibP2PPinger struct {
	svc *pingproto.PingService
}

// NewLibP2PPinger starts a ping service bound to h.
func NewLibP2PPinger(h host.Host) *LibP2PPinger {
	return &LibP2PPinger{svc: pingproto.NewPingService(h)}
}

// Ping blocks for a single round trip and reports its error, if any.
func (p *LibP2PPinger) Ping(ctx context.Context, id peer.ID) error {
	res := <-p.svc.Ping(ctx, id)
	return res.Error
}

var _ Pinger = (*LibP2PPinger)(nil)
