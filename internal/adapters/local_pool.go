package adapters

import (
	"context"
	"fmt"

	"github.com/Marketen/liveness-indexer/internal/application/domain"
	"github.com/Marketen/liveness-indexer/internal/application/ports"
)

// LocalPool stands in for the transaction pool of a standalone node: an
// extrinsic is decoded, admitted and applied to the in-process module.
type LocalPool struct {
	dispatcher ports.HeartbeatDispatcher
}

func NewLocalPool(dispatcher ports.HeartbeatDispatcher) *LocalPool {
	return &LocalPool{dispatcher: dispatcher}
}

func (p *LocalPool) SubmitTransaction(_ context.Context, extrinsic []byte) error {
	u, err := domain.DecodeUncheckedHeartbeat(extrinsic)
	if err != nil {
		return err
	}
	if _, err := p.dispatcher.ValidateUnsigned(u.Heartbeat, u.Signature); err != nil {
		return fmt.Errorf("heartbeat from authority %d: %w", u.Heartbeat.AuthorityIndex, err)
	}
	return p.dispatcher.Heartbeat(u.Heartbeat, u.Signature)
}
