package adapters

import (
	"context"

	"github.com/Marketen/liveness-indexer/internal/application/domain"
)

// StaticNetworkState reports a fixed peer id and listen addresses.
type StaticNetworkState struct {
	PeerID    string
	Addresses []string
}

func (s StaticNetworkState) NetworkState(context.Context) (domain.OpaqueNetworkState, error) {
	addrs := make([][]byte, 0, len(s.Addresses))
	for _, a := range s.Addresses {
		addrs = append(addrs, []byte(a))
	}
	return domain.OpaqueNetworkState{PeerID: []byte(s.PeerID), ExternalAddresses: addrs}, nil
}
