package ports

import "github.com/Marketen/liveness-indexer/internal/application/domain"

type SessionSource interface {
	CurrentIndex() domain.SessionIndex
}

type EraTracker interface {
	// CurrentEraStartSessionIndex returns the first session of the active era.
	CurrentEraStartSessionIndex() domain.SessionIndex
}

// SessionHandler reacts to session rotation.
type SessionHandler interface {
	GossipAt() (domain.BlockNumber, error)
	OnBeforeSessionEnding() error
	OnNewSession(now domain.BlockNumber, next []domain.AuthorityId) error
}
