package ports

import (
	"context"

	"github.com/Marketen/liveness-indexer/internal/application/domain"
)

// BlockClock is the hexagonal port for the node's view of the chain head.
// The worker runner depends only on this interface, not on any concrete client.
type BlockClock interface {
	// BestBlock returns the number of the latest block known by the node.
	BestBlock(ctx context.Context) (domain.BlockNumber, error)
}
