package adapters

import (
	"github.com/rs/zerolog"

	"github.com/Marketen/liveness-indexer/internal/application/domain"
	"github.com/Marketen/liveness-indexer/internal/logger"
	"github.com/Marketen/liveness-indexer/internal/telemetry"
)

// OffenceLogReporter is the reporting end of a standalone node: it prices
// the offence on the slash curve, logs it and exports it as metrics.
type OffenceLogReporter struct {
	log zerolog.Logger
}

func NewOffenceLogReporter() *OffenceLogReporter {
	return &OffenceLogReporter{log: logger.With("offences")}
}

func (r *OffenceLogReporter) ReportOffence(offence domain.UnresponsivenessOffence) error {
	telemetry.OffencesReported.Inc()
	telemetry.Offenders.Set(float64(len(offence.Offenders)))

	if len(offence.Offenders) == 0 {
		telemetry.SlashFraction.Set(0)
		r.log.Info().
			Uint32("session", uint32(offence.SessionIndex)).
			Uint32("validators", offence.ValidatorsCount).
			Msg("✅ all authorities heartbeated")
		return nil
	}

	fraction, err := offence.SlashFraction()
	if err != nil {
		return err
	}
	telemetry.SlashFraction.Set(float64(fraction.Parts()))

	offenders := make([]string, 0, len(offence.Offenders))
	for _, id := range offence.Offenders {
		offenders = append(offenders, id.String())
	}
	r.log.Warn().
		Uint32("session", uint32(offence.TimeSlot())).
		Uint32("era_start_session", uint32(offence.SessionIndexAt())).
		Uint32("validators", offence.ValidatorsCount).
		Strs("offenders", offenders).
		Stringer("slash_fraction", fraction).
		Msg("❌ unresponsive authorities")
	return nil
}
