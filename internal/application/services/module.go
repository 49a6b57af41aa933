package services

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Marketen/liveness-indexer/internal/application/domain"
	"github.com/Marketen/liveness-indexer/internal/application/ports"
	"github.com/Marketen/liveness-indexer/internal/logger"
	"github.com/Marketen/liveness-indexer/internal/telemetry"
)

// ModuleDeps are the repositories and collaborators a Module is built from.
type ModuleDeps struct {
	Store      ports.ModuleStore
	Heartbeats ports.HeartbeatStore
	Sessions   ports.SessionSource
	Era        ports.EraTracker
	Reporter   ports.OffenceReporter
	Events     ports.EventPublisher
}

// Module is the on-ledger state holder: roster, gossip block and heartbeat
// ledger. Dispatch entry points are serialized by mu.
type Module struct {
	mu sync.Mutex

	store      ports.ModuleStore
	sessions   ports.SessionSource
	ledger     *HeartbeatLedger
	aggregator *OffenceAggregator
}

func NewModule(deps ModuleDeps) *Module {
	ledger := NewHeartbeatLedger(deps.Heartbeats, deps.Store, deps.Events)
	return &Module{
		store:      deps.Store,
		sessions:   deps.Sessions,
		ledger:     ledger,
		aggregator: NewOffenceAggregator(ledger, deps.Era, deps.Reporter),
	}
}

func (m *Module) CurrentSession() domain.SessionIndex {
	return m.sessions.CurrentIndex()
}

func (m *Module) Keys() ([]domain.AuthorityId, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Keys()
}

func (m *Module) GossipAt() (domain.BlockNumber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.GossipAt()
}

// IsOnlineInCurrentSession reports whether the authority at index has
// heartbeated in the current session.
func (m *Module) IsOnlineInCurrentSession(index domain.AuthorityIndex) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger.HasHeartbeat(m.sessions.CurrentIndex(), index)
}

// ValidateUnsigned is the pool admission hook for heartbeats.
func (m *Module) ValidateUnsigned(hb domain.Heartbeat, sig domain.Signature) (domain.ValidTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, err := m.store.Keys()
	if err != nil {
		telemetry.Admissions.WithLabelValues("error").Inc()
		return domain.ValidTransaction{}, fmt.Errorf("load roster: %w", err)
	}

	tx, err := ValidateHeartbeat(m.ledger, hb, sig, m.sessions.CurrentIndex(), keys)
	switch {
	case err == nil:
		telemetry.Admissions.WithLabelValues("accepted").Inc()
	case errors.Is(err, domain.ErrStale):
		telemetry.Admissions.WithLabelValues("stale").Inc()
	case errors.Is(err, domain.ErrBadSignature):
		telemetry.Admissions.WithLabelValues("bad_signature").Inc()
	default:
		telemetry.Admissions.WithLabelValues("error").Inc()
	}
	return tx, err
}

// Heartbeat applies an admitted heartbeat to the ledger. Signature checks
// happened at admission. Heartbeats already recorded, for another session or
// for an index outside the roster are ignored.
func (m *Module) Heartbeat(hb domain.Heartbeat, _ domain.Signature) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.sessions.CurrentIndex()
	if hb.SessionIndex != current {
		// admitted before a rotation; it says nothing about this session
		logger.Debug("Dropping heartbeat from authority %d for session %d in session %d", hb.AuthorityIndex, hb.SessionIndex, current)
		return nil
	}
	keys, err := m.store.Keys()
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	if uint64(hb.AuthorityIndex) >= uint64(len(keys)) {
		logger.Debug("Dropping heartbeat from authority %d outside the roster of %d", hb.AuthorityIndex, len(keys))
		return nil
	}
	exists, err := m.ledger.HasHeartbeat(current, hb.AuthorityIndex)
	if err != nil {
		return err
	}
	if exists {
		logger.Debug("Heartbeat from authority %d already recorded for session %d", hb.AuthorityIndex, current)
		return nil
	}
	return m.ledger.Record(current, hb.AuthorityIndex, hb.NetworkState)
}

// InitGenesis installs the first roster if none is stored yet. It reports
// whether the roster was installed.
func (m *Module) InitGenesis(roster []domain.AuthorityId) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, err := m.store.Keys()
	if err != nil {
		return false, err
	}
	if len(keys) > 0 {
		return false, nil
	}
	if err := m.store.SetKeys(roster); err != nil {
		return false, fmt.Errorf("install genesis roster: %w", err)
	}
	telemetry.CurrentSession.Set(float64(m.sessions.CurrentIndex()))
	return true, nil
}

// OnBeforeSessionEnding reports the unresponsive authorities of the current session.
func (m *Module) OnBeforeSessionEnding() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, err := m.store.Keys()
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	return m.aggregator.Report(m.sessions.CurrentIndex(), keys)
}

// OnNewSession runs after the session index moved forward. It drops the
// ledger of the session that ended, schedules gossip from now on and
// installs the next roster.
func (m *Module) OnNewSession(now domain.BlockNumber, next []domain.AuthorityId) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.sessions.CurrentIndex()
	if current > 0 {
		if err := m.ledger.ClearSession(current - 1); err != nil {
			return err
		}
	}
	if err := m.store.SetGossipAt(now); err != nil {
		return fmt.Errorf("set gossip block: %w", err)
	}
	if err := m.store.SetKeys(next); err != nil {
		return fmt.Errorf("install roster: %w", err)
	}
	telemetry.CurrentSession.Set(float64(current))
	logger.Info("New session %d at block %d with %d authorities", current, now, len(next))
	return nil
}

func (m *Module) Status() (domain.ModuleStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session := m.sessions.CurrentIndex()
	keys, err := m.store.Keys()
	if err != nil {
		return domain.ModuleStatus{}, err
	}
	gossipAt, err := m.store.GossipAt()
	if err != nil {
		return domain.ModuleStatus{}, err
	}
	count, err := m.ledger.Count(session)
	if err != nil {
		return domain.ModuleStatus{}, err
	}
	return domain.ModuleStatus{Session: session, GossipAt: gossipAt, Authorities: len(keys), Heartbeats: count}, nil
}
