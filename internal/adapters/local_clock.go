package adapters

import (
	"context"
	"time"

	"github.com/Marketen/liveness-indexer/internal/application/domain"
)

// LocalClock produces one block every blockTime, starting after block start.
type LocalClock struct {
	start     domain.BlockNumber
	genesis   time.Time
	blockTime time.Duration
	now       func() time.Time
}

func NewLocalClock(start domain.BlockNumber, blockTime time.Duration) *LocalClock {
	return newLocalClock(start, blockTime, time.Now)
}

func newLocalClock(start domain.BlockNumber, blockTime time.Duration, now func() time.Time) *LocalClock {
	return &LocalClock{start: start, genesis: now(), blockTime: blockTime, now: now}
}

func (c *LocalClock) BestBlock(context.Context) (domain.BlockNumber, error) {
	elapsed := c.now().Sub(c.genesis)
	if elapsed < 0 {
		elapsed = 0
	}
	return c.start + domain.BlockNumber(elapsed/c.blockTime), nil
}
