package core

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	log "github.com/sirupsen/logrus"
)

// kvRequest/kvResponse are the wire messages exchanged over the KV
// protocol stream: a minimal request/response RPC layered directly on a
// libp2p stream, in place of a full Kademlia DHT (out of scope per §1,
// which treats the substrate abstractly).
type kvRequest struct {
	Op    string `json:"op"` // "put" or "get"
	Key   string `json:"key"`
	Value []byte `json:"value,omitempty"`
}

type kvResponse struct {
	OK    bool   `json:"ok"`
	Value []byte `json:"value,omitempty"`
}

// LibP2PKVStore implements KVStore over a libp2p host: local keys are kept
// in a map (this node is itself one replica) and puts/gets additionally
// fan out to connected peers via a dedicated protocol, counting successful
// responses toward the caller's requested quorum.
type LibP2PKVStore struct {
	host        host.Host
	protocolTag string // segregates networks, e.g. "/summercash/kv/<network-tag>/1.0.0"

	mu   sync.RWMutex
	data map[string][]byte

	logger *log.Logger
}

// NewLibP2PKVStore wraps h, registering the KV protocol handler and
// namespacing it by networkTag so disjoint networks never cross-talk.
func NewLibP2PKVStore(h host.Host, networkTag string) *LibP2PKVStore {
	s := &LibP2PKVStore{
		host:        h,
		protocolTag: fmt.Sprintf("/summercash/kv/%s/1.0.0", networkTag),
		data:        make(map[string][]byte),
		logger:      log.StandardLogger(),
	}
	h.SetStreamHandler(protocol.ID(s.protocolTag), s.handleStream)
	return s
}

func (s *LibP2PKVStore) handleStream(st network.Stream) {
	defer st.Close()
	reader := bufio.NewReader(st)
	var req kvRequest
	dec := json.NewDecoder(reader)
	if err := dec.Decode(&req); err != nil {
		return
	}
	resp := s.handleRequest(req)
	enc := json.NewEncoder(st)
	_ = enc.Encode(resp)
}

func (s *LibP2PKVStore) handleRequest(req kvRequest) kvResponse {
	switch req.Op {
	case "put":
		s.mu.Lock()
		s.data[req.Key] = req.Value
		s.mu.Unlock()
		return kvResponse{OK: true}
	case "get":
		s.mu.RLock()
		v, ok := s.data[req.Key]
		s.mu.RUnlock()
		return kvResponse{OK: ok, Value: v}
	default:
		return kvResponse{OK: false}
	}
}

// Put stores key/value locally and replicates to connected peers, returning
// ErrNoQuorum if fewer than quorum replicas (including the local one)
// acknowledge.
func (s *LibP2PKVStore) Put(ctx context.Context, key string, value []byte, quorum int) error {
	s.mu.Lock()
	s.data[key] = append([]byte(nil), value...)
	s.mu.Unlock()
	acks := 1

	for _, pid := range s.host.Network().Peers() {
		if acks >= quorum {
			break
		}
		if s.callPeer(ctx, pid, kvRequest{Op: "put", Key: key, Value: value}).OK {
			acks++
		}
	}
	if acks < quorum {
		return ErrNoQuorum
	}
	return nil
}

// Get returns the value observed most often for key across the local store
// and connected peers (ties go to the earliest observed), requiring at least
// quorum consistent observations of it.
func (s *LibP2PKVStore) Get(ctx context.Context, key string, quorum int) ([]byte, error) {
	votes := make(map[string]int)
	var best []byte

	s.mu.RLock()
	if v, ok := s.data[key]; ok {
		votes[string(v)]++
		best = v
	}
	s.mu.RUnlock()

	for _, pid := range s.host.Network().Peers() {
		resp := s.callPeer(ctx, pid, kvRequest{Op: "get", Key: key})
		if !resp.OK {
			continue
		}
		votes[string(resp.Value)]++
		if votes[string(resp.Value)] > votes[string(best)] {
			best = resp.Value
		}
	}

	if votes[string(best)] < quorum {
		if best == nil {
			return nil, ErrKeyNotFound
		}
		return nil, ErrNoQuorum
	}
	return best, nil
}

func (s *LibP2PKVStore) callPeer(ctx context.Context, pid peer.ID, req kvRequest) kvResponse {
	st, err := s.host.NewStream(ctx, pid, protocol.ID(s.protocolTag))
	if err != nil {
		s.logger.WithError(err).WithField("peer", pid.String()).Debug("kv: stream open failed")
		return kvResponse{OK: false}
	}
	defer st.Close()

	enc := json.NewEncoder(st)
	if err := enc.Encode(req); err != nil {
		return kvResponse{OK: false}
	}
	var resp kvResponse
	dec := json.NewDecoder(bufio.NewReader(st))
	if err := dec.Decode(&resp); err != nil {
		return kvResponse{OK: false}
	}
	return resp
}

var _ KVStore = (*LibP2PKVStore)(nil)
