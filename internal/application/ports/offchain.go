package ports

import (
	"context"

	"github.com/Marketen/liveness-indexer/internal/application/domain"
)

// Keystore holds the authority keys of this node.
type Keystore interface {
	PublicKeys(ctx context.Context) ([]domain.AuthorityId, error)
	Sign(ctx context.Context, id domain.AuthorityId, msg []byte) (domain.Signature, error)
}

type NetworkStateProvider interface {
	NetworkState(ctx context.Context) (domain.OpaqueNetworkState, error)
}

// TransactionSubmitter hands an encoded heartbeat extrinsic to the pool.
type TransactionSubmitter interface {
	SubmitTransaction(ctx context.Context, extrinsic []byte) error
}

// RuntimeState is the read-only view of module state the off-chain worker needs.
type RuntimeState interface {
	CurrentSession() domain.SessionIndex
	Keys() ([]domain.AuthorityId, error)
	GossipAt() (domain.BlockNumber, error)
}

// HeartbeatDispatcher admits and applies unsigned heartbeats.
type HeartbeatDispatcher interface {
	ValidateUnsigned(hb domain.Heartbeat, sig domain.Signature) (domain.ValidTransaction, error)
	Heartbeat(hb domain.Heartbeat, sig domain.Signature) error
}
