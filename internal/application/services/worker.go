package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Marketen/liveness-indexer/internal/application/domain"
	"github.com/Marketen/liveness-indexer/internal/application/ports"
	"github.com/Marketen/liveness-indexer/internal/logger"
	"github.com/Marketen/liveness-indexer/internal/telemetry"
)

// WorkerStatusKey is the local storage key of the worker status record.
const WorkerStatusKey = "imonline/worker-status"

// WorkerState classifies a persisted WorkerStatus against the current block.
type WorkerState uint8

const (
	NeverStarted WorkerState = iota
	InProgress
	Aborted
	DoneStale
	DoneCurrent
)

func (s WorkerState) String() string {
	switch s {
	case NeverStarted:
		return "never-started"
	case InProgress:
		return "in-progress"
	case Aborted:
		return "aborted"
	case DoneStale:
		return "done-stale"
	case DoneCurrent:
		return "done-current"
	default:
		return "unknown"
	}
}

// Eligible reports whether a new round may be claimed from this state.
func (s WorkerState) Eligible() bool {
	return s == NeverStarted || s == Aborted || s == DoneStale
}

// ClassifyWorkerStatus maps the persisted status (nil when absent) to a state.
// A round left unfinished at an earlier block is considered aborted; one
// started at this block or later is still in progress.
func ClassifyWorkerStatus(st *domain.WorkerStatus, now, gossipAt domain.BlockNumber) WorkerState {
	switch {
	case st == nil:
		return NeverStarted
	case !st.Done && st.GossippingAt < now:
		return Aborted
	case !st.Done:
		return InProgress
	case st.GossippingAt < gossipAt:
		return DoneStale
	default:
		return DoneCurrent
	}
}

// RoundOutcome is what a single Tick did.
type RoundOutcome uint8

const (
	RoundSkipped RoundOutcome = iota
	RoundLost
	RoundSubmitted
	RoundNoKeys
	RoundFailed
)

func (o RoundOutcome) String() string {
	switch o {
	case RoundSkipped:
		return "skipped"
	case RoundLost:
		return "lost"
	case RoundSubmitted:
		return "submitted"
	case RoundNoKeys:
		return "no_keys"
	default:
		return "failed"
	}
}

// Worker is the off-chain heartbeat scheduler. Any number of Tick calls may
// overlap; the status store's compare-and-set elects the one that gossips.
type Worker struct {
	runtime   ports.RuntimeState
	status    ports.StatusStore
	builder   *HeartbeatBuilder
	submitter ports.TransactionSubmitter
	key       []byte
	log       zerolog.Logger
}

func NewWorker(
	runtime ports.RuntimeState,
	status ports.StatusStore,
	builder *HeartbeatBuilder,
	submitter ports.TransactionSubmitter,
) *Worker {
	return &Worker{
		runtime:   runtime,
		status:    status,
		builder:   builder,
		submitter: submitter,
		key:       []byte(WorkerStatusKey),
		log:       logger.With("worker"),
	}
}

// Tick runs one scheduling round at block now. Errors never escape a round;
// they are logged and reflected in the outcome.
func (w *Worker) Tick(ctx context.Context, now domain.BlockNumber) RoundOutcome {
	outcome := w.tick(ctx, now)
	telemetry.WorkerRounds.WithLabelValues(outcome.String()).Inc()
	return outcome
}

func (w *Worker) tick(ctx context.Context, now domain.BlockNumber) RoundOutcome {
	gossipAt, err := w.runtime.GossipAt()
	if err != nil {
		w.log.Error().Err(err).Uint64("block", uint64(now)).Msg("read gossip block")
		return RoundFailed
	}

	raw, err := w.status.Get(ctx, w.key)
	if err != nil {
		w.log.Error().Err(err).Uint64("block", uint64(now)).Msg("read worker status")
		return RoundFailed
	}

	state := NeverStarted
	if raw != nil {
		st, err := domain.DecodeWorkerStatus(raw)
		if err != nil {
			// abandon the round; the rewritten record is readable next round
			w.log.Error().Err(err).Uint64("block", uint64(now)).Msg("worker status unreadable")
			w.markDone(ctx, now)
			return RoundFailed
		}
		state = ClassifyWorkerStatus(&st, now, gossipAt)
	}

	if gossipAt >= now || !state.Eligible() {
		w.log.Debug().
			Uint64("block", uint64(now)).
			Uint64("gossip_at", uint64(gossipAt)).
			Stringer("state", state).
			Msg("not gossiping")
		return RoundSkipped
	}

	claim, err := domain.WorkerStatus{Done: false, GossippingAt: now}.Encode()
	if err != nil {
		w.log.Error().Err(err).Msg("encode worker status")
		return RoundFailed
	}
	won, err := w.status.CompareAndSet(ctx, w.key, raw, claim)
	if err != nil {
		w.log.Error().Err(err).Msg("claim worker round")
		return RoundFailed
	}
	if !won {
		w.log.Debug().Uint64("block", uint64(now)).Msg("another worker claimed this round")
		return RoundLost
	}

	start := time.Now()
	gossipErr := w.gossip(ctx, now)
	telemetry.SubmitDuration.Observe(time.Since(start).Seconds())

	w.markDone(ctx, now)

	switch {
	case gossipErr == nil:
		w.log.Info().Uint64("block", uint64(now)).Msg("heartbeat submitted")
		return RoundSubmitted
	case errors.Is(gossipErr, domain.ErrNoKeys):
		w.log.Debug().Uint64("block", uint64(now)).Msg("no local authority key in roster")
		return RoundNoKeys
	default:
		w.log.Error().Err(gossipErr).Uint64("block", uint64(now)).Msg("heartbeat round failed")
		return RoundFailed
	}
}

func (w *Worker) gossip(ctx context.Context, now domain.BlockNumber) error {
	roster, err := w.runtime.Keys()
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrNoKeys, err)
	}

	hb, sig, err := w.builder.Build(ctx, now, w.runtime.CurrentSession(), roster)
	if err != nil {
		return err
	}

	ext, err := domain.UncheckedHeartbeat{Heartbeat: hb, Signature: sig}.Encode()
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrExtrinsicCreation, err)
	}
	if err := w.submitter.SubmitTransaction(ctx, ext); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSubmitTransaction, err)
	}
	return nil
}

// markDone records the attempt whatever its result, so a failed round is not
// retried before the next gossip block.
func (w *Worker) markDone(ctx context.Context, now domain.BlockNumber) {
	done, err := domain.WorkerStatus{Done: true, GossippingAt: now}.Encode()
	if err == nil {
		err = w.status.Set(ctx, w.key, done)
	}
	if err != nil {
		w.log.Error().Err(err).Uint64("block", uint64(now)).Msg("mark worker round done")
	}
}
