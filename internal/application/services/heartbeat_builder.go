package services

import (
	"context"
	"fmt"

	"github.com/Marketen/liveness-indexer/internal/application/domain"
	"github.com/Marketen/liveness-indexer/internal/application/ports"
)

// HeartbeatBuilder assembles and signs the local node's heartbeat.
type HeartbeatBuilder struct {
	keystore ports.Keystore
	network  ports.NetworkStateProvider
}

func NewHeartbeatBuilder(keystore ports.Keystore, network ports.NetworkStateProvider) *HeartbeatBuilder {
	return &HeartbeatBuilder{keystore: keystore, network: network}
}

// LocalAuthority returns the first roster position whose key this node holds.
func (b *HeartbeatBuilder) LocalAuthority(ctx context.Context, roster []domain.AuthorityId) (domain.AuthorityIndex, domain.AuthorityId, error) {
	local, err := b.keystore.PublicKeys(ctx)
	if err != nil {
		return 0, domain.AuthorityId{}, fmt.Errorf("%w: %w", domain.ErrNoKeys, err)
	}
	held := make(map[domain.AuthorityId]struct{}, len(local))
	for _, k := range local {
		held[k] = struct{}{}
	}
	for i, id := range roster {
		if _, ok := held[id]; ok {
			return domain.AuthorityIndex(i), id, nil
		}
	}
	return 0, domain.AuthorityId{}, domain.ErrNoKeys
}

// Build produces the heartbeat for block now in session and its signature.
func (b *HeartbeatBuilder) Build(
	ctx context.Context,
	now domain.BlockNumber,
	session domain.SessionIndex,
	roster []domain.AuthorityId,
) (domain.Heartbeat, domain.Signature, error) {
	index, id, err := b.LocalAuthority(ctx, roster)
	if err != nil {
		return domain.Heartbeat{}, domain.Signature{}, err
	}

	state, err := b.network.NetworkState(ctx)
	if err != nil {
		return domain.Heartbeat{}, domain.Signature{}, fmt.Errorf("%w: %w", domain.ErrNetworkState, err)
	}
	opaque, err := state.Encode()
	if err != nil {
		return domain.Heartbeat{}, domain.Signature{}, fmt.Errorf("%w: %w", domain.ErrNetworkState, err)
	}

	hb := domain.Heartbeat{
		BlockNumber:    now,
		NetworkState:   opaque,
		SessionIndex:   session,
		AuthorityIndex: index,
	}
	payload, err := hb.Encode()
	if err != nil {
		return domain.Heartbeat{}, domain.Signature{}, fmt.Errorf("%w: %w", domain.ErrFailedSigning, err)
	}
	sig, err := b.keystore.Sign(ctx, id, payload)
	if err != nil {
		return domain.Heartbeat{}, domain.Signature{}, fmt.Errorf("%w: %w", domain.ErrFailedSigning, err)
	}
	return hb, sig, nil
}
