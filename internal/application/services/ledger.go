package services

import (
	"fmt"

	"github.com/Marketen/liveness-indexer/internal/application/domain"
	"github.com/Marketen/liveness-indexer/internal/application/ports"
	"github.com/Marketen/liveness-indexer/internal/logger"
	"github.com/Marketen/liveness-indexer/internal/telemetry"
)

// HeartbeatLedger records which authorities heartbeated in which session.
type HeartbeatLedger struct {
	store  ports.HeartbeatStore
	roster ports.ModuleStore
	events ports.EventPublisher
}

func NewHeartbeatLedger(store ports.HeartbeatStore, roster ports.ModuleStore, events ports.EventPublisher) *HeartbeatLedger {
	return &HeartbeatLedger{store: store, roster: roster, events: events}
}

func (l *HeartbeatLedger) HasHeartbeat(session domain.SessionIndex, index domain.AuthorityIndex) (bool, error) {
	ok, err := l.store.HasHeartbeat(session, index)
	if err != nil {
		return false, fmt.Errorf("ledger lookup (%d, %d): %w", session, index, err)
	}
	return ok, nil
}

// Record stores the heartbeat state and announces HeartbeatReceived.
// Recording an existing entry is a no-op: admission should have rejected it.
func (l *HeartbeatLedger) Record(session domain.SessionIndex, index domain.AuthorityIndex, state []byte) error {
	exists, err := l.HasHeartbeat(session, index)
	if err != nil {
		return err
	}
	if exists {
		logger.Error("Heartbeat for authority %d in session %d is already recorded; admission let a duplicate through", index, session)
		return nil
	}

	keys, err := l.roster.Keys()
	if err != nil {
		return fmt.Errorf("ledger roster: %w", err)
	}
	if uint64(index) >= uint64(len(keys)) {
		return fmt.Errorf("record heartbeat %d: %w", index, domain.ErrUnknownAuthority)
	}

	if err := l.store.PutHeartbeat(session, index, state); err != nil {
		return fmt.Errorf("ledger insert (%d, %d): %w", session, index, err)
	}
	telemetry.HeartbeatsRecorded.Inc()

	if l.events != nil {
		if err := l.events.HeartbeatReceived(keys[index]); err != nil {
			logger.Warn("Could not publish HeartbeatReceived for %s: %v", keys[index], err)
		}
	}
	return nil
}

func (l *HeartbeatLedger) ClearSession(session domain.SessionIndex) error {
	if err := l.store.ClearSession(session); err != nil {
		return fmt.Errorf("ledger clear session %d: %w", session, err)
	}
	return nil
}

func (l *HeartbeatLedger) Count(session domain.SessionIndex) (int, error) {
	return l.store.CountHeartbeats(session)
}
