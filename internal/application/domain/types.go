package domain

import (
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

// Basic session types
type SessionIndex uint32
type AuthorityIndex uint32
type BlockNumber uint64

const (
	AuthorityIdSize = 32
	SignatureSize   = 64
)

// AuthorityId is the ed25519 public key a validator heartbeats with.
// Its position inside the session roster is the AuthorityIndex.
type AuthorityId [AuthorityIdSize]byte

func (a AuthorityId) String() string {
	return hex.EncodeToString(a[:])
}

// ParseAuthorityId reads a hex public key, with or without 0x.
func ParseAuthorityId(s string) (AuthorityId, error) {
	var id AuthorityId
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return id, fmt.Errorf("decode authority id %q: %w", s, err)
	}
	if len(raw) != AuthorityIdSize {
		return id, fmt.Errorf("authority id %q: want %d bytes, got %d", s, AuthorityIdSize, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// Signature is a detached ed25519 signature over the canonical heartbeat encoding.
type Signature [SignatureSize]byte

// Heartbeat is the liveness proof a validator emits once per session.
// Field order is the wire order.
type Heartbeat struct {
	BlockNumber    BlockNumber
	NetworkState   []byte
	SessionIndex   SessionIndex
	AuthorityIndex AuthorityIndex
}

// WorkerStatus is the node-local record coordinating concurrent worker runs.
type WorkerStatus struct {
	Done         bool
	GossippingAt BlockNumber
}

// OpaqueNetworkState is the network snapshot carried inside a heartbeat.
type OpaqueNetworkState struct {
	PeerID            []byte
	ExternalAddresses [][]byte
}

// TransactionLongevity is the longevity of an admitted heartbeat: it never expires on its own.
const TransactionLongevity uint64 = math.MaxUint64

// ValidTransaction is the admission metadata returned for an accepted heartbeat.
type ValidTransaction struct {
	Priority  uint64
	Requires  [][]byte
	Provides  [][]byte
	Longevity uint64
	Propagate bool
}

// ModuleStatus is a point-in-time summary of the module state.
type ModuleStatus struct {
	Session     SessionIndex `json:"session"`
	GossipAt    BlockNumber  `json:"gossip_at"`
	Authorities int          `json:"authorities"`
	Heartbeats  int          `json:"heartbeats"`
}
