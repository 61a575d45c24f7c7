package persistence

import (
	"context"
	"database/sql"
	"time"

	"RwaLedger/internal/core"
	"RwaLedger/internal/observability"

	"github.com/rs/zerolog"
)

// Worker drains the persist channel and batch-writes the event log to
// Postgres. The engine sends on this channel with a BLOCKING send, so if
// the worker falls behind the engine stalls instead of losing events.
type Worker struct {
	writer       *EventLogWriter
	inputChan    <-chan core.Output
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	log          zerolog.Logger
}

func NewWorker(
	db *sql.DB,
	inputChan <-chan core.Output,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Worker {
	return &Worker{
		writer:       NewEventLogWriter(db),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		log:          log,
	}
}

// Run batches incoming outputs and flushes when the batch fills or the
// flush timeout expires. Blocks until ctx is cancelled or the input
// channel closes; remaining events are flushed before returning.
func (w *Worker) Run(ctx context.Context) error {
	batch := make([]EventRow, 0, w.batchSize)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				// Final flush with a background context so the batch
				// survives shutdown.
				if err := w.flush(context.Background(), batch); err != nil {
					w.log.Error().Err(err).Int("events", len(batch)).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case output, ok := <-w.inputChan:
			if !ok {
				if len(batch) > 0 {
					if err := w.flush(context.Background(), batch); err != nil {
						w.log.Error().Err(err).Int("events", len(batch)).Msg("final flush failed")
					}
				}
				return nil
			}

			batch = append(batch, toEventRow(output))

			if len(batch) >= w.batchSize {
				w.flushWithRetry(ctx, batch)
				batch = batch[:0]
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				w.flushWithRetry(ctx, batch)
				batch = batch[:0]
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

func toEventRow(output core.Output) EventRow {
	env := output.Envelope
	return EventRow{
		Sequence:  env.Sequence,
		EventType: env.EventType.String(),
		TxHash:    env.TxHash,
		Block:     int64(env.Block),
		Timestamp: env.Timestamp,
		Payload:   MarshalPayload(env.Payload),
	}
}

// flushWithRetry retries with exponential backoff until the write
// succeeds. The worker never drops events; on ctx cancellation it makes
// one final attempt with a background context.
func (w *Worker) flushWithRetry(ctx context.Context, batch []EventRow) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("events", len(batch)).
				Msg("persistence retry")
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), batch); err != nil {
					w.log.Error().Err(err).Msg("final flush on shutdown failed")
				}
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.flush(ctx, batch)
		if err == nil {
			if attempt > 0 {
				w.log.Info().Int("retries", attempt).Msg("persistence flush recovered")
			}
			return
		}

		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("retry").Inc()
		}
	}
}

func (w *Worker) flush(ctx context.Context, batch []EventRow) error {
	start := time.Now()

	if err := w.writer.WriteEventBatch(ctx, batch); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_events").Inc()
		}
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistBatchSize.Observe(float64(len(batch)))
		w.metrics.PersistEventsWritten.Add(float64(len(batch)))
		w.metrics.PersistLastSequence.Set(float64(batch[len(batch)-1].Sequence))
	}

	return nil
}
