package services

import (
	"fmt"

	"github.com/Marketen/liveness-indexer/internal/application/domain"
	"github.com/Marketen/liveness-indexer/internal/application/ports"
	"github.com/Marketen/liveness-indexer/internal/logger"
)

// OffenceAggregator turns the ledger of an ending session into an offence.
type OffenceAggregator struct {
	ledger   HeartbeatChecker
	era      ports.EraTracker
	reporter ports.OffenceReporter
}

func NewOffenceAggregator(ledger HeartbeatChecker, era ports.EraTracker, reporter ports.OffenceReporter) *OffenceAggregator {
	return &OffenceAggregator{ledger: ledger, era: era, reporter: reporter}
}

// Aggregate lists, in roster order, the authorities without a heartbeat in session.
func (a *OffenceAggregator) Aggregate(session domain.SessionIndex, roster []domain.AuthorityId) (domain.UnresponsivenessOffence, error) {
	offenders := make([]domain.AuthorityId, 0)
	for i, id := range roster {
		ok, err := a.ledger.HasHeartbeat(session, domain.AuthorityIndex(i))
		if err != nil {
			return domain.UnresponsivenessOffence{}, err
		}
		if !ok {
			offenders = append(offenders, id)
		}
	}

	return domain.UnresponsivenessOffence{
		SessionIndex:                session,
		CurrentEraStartSessionIndex: a.era.CurrentEraStartSessionIndex(),
		ValidatorsCount:             uint32(len(roster)),
		Offenders:                   offenders,
	}, nil
}

// Report aggregates and forwards the offence, even when nobody is offline.
func (a *OffenceAggregator) Report(session domain.SessionIndex, roster []domain.AuthorityId) error {
	offence, err := a.Aggregate(session, roster)
	if err != nil {
		return fmt.Errorf("aggregate session %d: %w", session, err)
	}
	logger.Info("Session %d ending: %d of %d authorities unresponsive", session, len(offence.Offenders), offence.ValidatorsCount)

	if err := a.reporter.ReportOffence(offence); err != nil {
		return fmt.Errorf("report offence for session %d: %w", session, err)
	}
	return nil
}
