package ports

import "github.com/Marketen/liveness-indexer/internal/application/domain"

// OffenceReporter forwards offences to the slashing subsystem.
type OffenceReporter interface {
	ReportOffence(offence domain.UnresponsivenessOffence) error
}

type EventPublisher interface {
	HeartbeatReceived(id domain.AuthorityId) error
}
