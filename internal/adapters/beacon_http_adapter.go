package adapters

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"time"

	"github.com/Marketen/liveness-indexer/internal/application/domain"
	"github.com/Marketen/liveness-indexer/internal/application/ports"

	"github.com/attestantio/go-eth2-client/api"
	eth2http "github.com/attestantio/go-eth2-client/http"
	"github.com/rs/zerolog"
)

var errNoHeadBlock = errors.New("beacon node has no head block")

// beaconClock implements ports.BlockClock using go-eth2-client: the slot of
// the head block is the best block number.
type beaconClock struct {
	client *eth2http.Service
}

// NewBeaconClockAdapter is the constructor used from main.go.
func NewBeaconClockAdapter(endpoint string) (ports.BlockClock, error) {
	customHTTPClient := &nethttp.Client{
		Timeout: 60 * time.Second, // global upper bound; per-request timeout below
	}

	client, err := eth2http.New(
		context.Background(),
		eth2http.WithAddress(endpoint),
		eth2http.WithHTTPClient(customHTTPClient),
		// This is the per-request timeout used by go-eth2-client.
		eth2http.WithTimeout(20*time.Second),
		// Silence go-eth2-client logs unless they are warnings+.
		eth2http.WithLogLevel(zerolog.WarnLevel),
	)
	if err != nil {
		return nil, err
	}

	return &beaconClock{client: client.(*eth2http.Service)}, nil
}

// BestBlock returns the slot of the current head block.
func (b *beaconClock) BestBlock(ctx context.Context) (domain.BlockNumber, error) {
	block, err := b.client.SignedBeaconBlock(ctx, &api.SignedBeaconBlockOpts{
		Block: "head",
	})
	if err != nil {
		if apiErr, ok := err.(*api.Error); ok && apiErr.StatusCode == 404 {
			return 0, errNoHeadBlock
		}
		return 0, err
	}
	if block == nil || block.Data == nil {
		return 0, errNoHeadBlock
	}

	slot, err := block.Data.Slot()
	if err != nil {
		return 0, fmt.Errorf("head block slot: %w", err)
	}
	return domain.BlockNumber(slot), nil
}
