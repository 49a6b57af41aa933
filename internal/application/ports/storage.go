package ports

import (
	"context"

	"github.com/Marketen/liveness-indexer/internal/application/domain"
)

// HeartbeatStore is the persistent two-level map (session, authority index) -> bytes.
type HeartbeatStore interface {
	HasHeartbeat(session domain.SessionIndex, index domain.AuthorityIndex) (bool, error)
	PutHeartbeat(session domain.SessionIndex, index domain.AuthorityIndex, state []byte) error
	// ClearSession removes every entry of the session in one operation.
	ClearSession(session domain.SessionIndex) error
	CountHeartbeats(session domain.SessionIndex) (int, error)
}

// ModuleStore holds the module's single-value state.
type ModuleStore interface {
	Keys() ([]domain.AuthorityId, error)
	SetKeys(keys []domain.AuthorityId) error
	GossipAt() (domain.BlockNumber, error)
	SetGossipAt(n domain.BlockNumber) error
	SessionIndex() (domain.SessionIndex, error)
	SetSessionIndex(s domain.SessionIndex) error
}

// StatusStore is node-local storage with an atomic compare-and-set.
// A nil value stands for an absent key.
type StatusStore interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	// CompareAndSet writes value only if the stored bytes equal old.
	// It reports whether the write happened.
	CompareAndSet(ctx context.Context, key, old, value []byte) (bool, error)
	Set(ctx context.Context, key, value []byte) error
}
