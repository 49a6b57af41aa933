package services

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/Marketen/liveness-indexer/internal/application/domain"
	"github.com/Marketen/liveness-indexer/internal/application/ports"
)

var errNoSessionHandler = errors.New("session rotator: no handler attached")

// SessionRotator ends a session every sessionLength blocks, counted from the
// block the current session started at. It is the session source and era
// tracker of a standalone node; eras are a fixed number of sessions.
type SessionRotator struct {
	store          ports.ModuleStore
	handler        ports.SessionHandler
	roster         []domain.AuthorityId
	sessionLength  domain.BlockNumber
	sessionsPerEra domain.SessionIndex

	current atomic.Uint32
	// ended is set once the current session has been reported but its
	// successor failed to start; the retry does not report it again.
	ended bool
}

// NewSessionRotator resumes from the session index persisted in store.
func NewSessionRotator(
	store ports.ModuleStore,
	roster []domain.AuthorityId,
	sessionLength domain.BlockNumber,
	sessionsPerEra domain.SessionIndex,
) (*SessionRotator, error) {
	if sessionLength == 0 || sessionsPerEra == 0 {
		return nil, fmt.Errorf("session rotator: session length and sessions per era must be positive")
	}
	idx, err := store.SessionIndex()
	if err != nil {
		return nil, fmt.Errorf("session rotator: load session index: %w", err)
	}
	r := &SessionRotator{
		store:          store,
		roster:         roster,
		sessionLength:  sessionLength,
		sessionsPerEra: sessionsPerEra,
	}
	r.current.Store(uint32(idx))
	return r, nil
}

// Attach sets the handler notified on rotation. Must be called before OnBlock.
func (r *SessionRotator) Attach(h ports.SessionHandler) {
	r.handler = h
}

func (r *SessionRotator) CurrentIndex() domain.SessionIndex {
	return domain.SessionIndex(r.current.Load())
}

func (r *SessionRotator) CurrentEraStartSessionIndex() domain.SessionIndex {
	cur := r.CurrentIndex()
	return cur - cur%r.sessionsPerEra
}

// OnBlock rotates the session when it has lasted sessionLength blocks and
// reports whether it did. OnBlock is called from a single goroutine.
func (r *SessionRotator) OnBlock(now domain.BlockNumber) (bool, error) {
	if r.handler == nil {
		return false, errNoSessionHandler
	}
	startedAt, err := r.handler.GossipAt()
	if err != nil {
		return false, err
	}
	if now < startedAt+r.sessionLength {
		return false, nil
	}

	if !r.ended {
		if err := r.handler.OnBeforeSessionEnding(); err != nil {
			return false, fmt.Errorf("end session %d: %w", r.CurrentIndex(), err)
		}
		r.ended = true
	}

	// the handler reads the new index, so it is advanced in memory first and
	// only persisted once the session has started
	prev := r.CurrentIndex()
	next := prev + 1
	r.current.Store(uint32(next))
	if err := r.handler.OnNewSession(now, r.roster); err != nil {
		r.current.Store(uint32(prev))
		return false, fmt.Errorf("start session %d: %w", next, err)
	}
	r.ended = false
	if err := r.store.SetSessionIndex(next); err != nil {
		return true, fmt.Errorf("persist session index %d: %w", next, err)
	}
	return true, nil
}
