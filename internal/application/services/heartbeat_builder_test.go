package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marketen/liveness-indexer/internal/adapters"
	"github.com/Marketen/liveness-indexer/internal/application/domain"
)

func TestHeartbeatBuilder_Build(t *testing.T) {
	privs, roster := newTestKeys(t, 4)
	// the node holds keys 3 and 1; roster order decides which one is used
	keystore := adapters.NewEd25519Keystore(privs[3], privs[1])
	network := adapters.StaticNetworkState{PeerID: "epeer", Addresses: []string{"127.0.0.1:9000"}}
	builder := NewHeartbeatBuilder(keystore, network)

	hb, sig, err := builder.Build(context.Background(), 42, 7, roster)
	require.NoError(t, err)

	assert.Equal(t, domain.BlockNumber(42), hb.BlockNumber)
	assert.Equal(t, domain.SessionIndex(7), hb.SessionIndex)
	assert.Equal(t, domain.AuthorityIndex(1), hb.AuthorityIndex)

	ns, err := domain.DecodeOpaqueNetworkState(hb.NetworkState)
	require.NoError(t, err)
	assert.Equal(t, []byte("epeer"), ns.PeerID)
	assert.Equal(t, [][]byte{[]byte("127.0.0.1:9000")}, ns.ExternalAddresses)

	payload, err := hb.Encode()
	require.NoError(t, err)
	assert.True(t, domain.VerifySignature(roster[1], payload, sig))
}

func TestHeartbeatBuilder_Errors(t *testing.T) {
	privs, roster := newTestKeys(t, 2)
	outsider, _ := newTestKeys(t, 1)

	_, _, err := NewHeartbeatBuilder(adapters.NewEd25519Keystore(outsider[0]), adapters.StaticNetworkState{}).
		Build(context.Background(), 1, 0, roster)
	assert.ErrorIs(t, err, domain.ErrNoKeys)

	_, _, err = NewHeartbeatBuilder(adapters.NewEd25519Keystore(privs[0]), failingNetwork{}).
		Build(context.Background(), 1, 0, roster)
	assert.ErrorIs(t, err, domain.ErrNetworkState)
}
