package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/settler-api/internal/events"
	"github.com/ksred/settler-api/pkg/metrics"
	"github.com/rs/zerolog/log"
)

// Processor drains the queue on a fixed interval and runs the step engine
// over each drained record. A single guard serializes drains: an overlapping
// tick is a no-op rather than a queued-up second drain.
type Processor struct {
	db                  *Database
	queue               *Queue
	engine              *Engine
	sink                events.Sink
	tickInterval        time.Duration
	batchSize           int
	escalationThreshold time.Duration

	draining sync.Mutex
	now      func() time.Time
}

func NewProcessor(db *Database, queue *Queue, engine *Engine, sink events.Sink,
	tickInterval time.Duration, batchSize int, escalationThreshold time.Duration) *Processor {
	return &Processor{
		db:                  db,
		queue:               queue,
		engine:              engine,
		sink:                sink,
		tickInterval:        tickInterval,
		batchSize:           batchSize,
		escalationThreshold: escalationThreshold,
		now:                 time.Now,
	}
}

// Start begins the scheduling loop. It blocks until the context is
// cancelled; the queue is cleared on the way out while any in-flight batch
// finishes to terminal states.
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "batch_processor").Logger()
	logger.Info().
		Dur("tick_interval", p.tickInterval).
		Int("batch_size", p.batchSize).
		Msg("starting batch processor")

	ticker := time.NewTicker(p.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down batch processor")
			p.queue.Stop()
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick is one scheduler pass: escalate overdue refunds, then drain and
// process a batch. Exported so tests can drive virtual time directly instead
// of waiting on the ticker.
func (p *Processor) Tick(ctx context.Context) {
	logger := log.With().Str("component", "batch_processor").Logger()

	if !p.draining.TryLock() {
		logger.Debug().Msg("previous drain still in progress, skipping tick")
		return
	}
	defer p.draining.Unlock()

	if err := p.escalateOverdueRefunds(); err != nil {
		logger.Error().Err(err).Msg("escalation sweep failed")
	}

	if err := p.requeueDuePending(); err != nil {
		logger.Error().Err(err).Msg("requeue sweep failed")
	}

	if _, err := p.processBatch(ctx); err != nil {
		logger.Error().Err(err).Msg("batch processing failed")
		p.sink.Publish(events.Event{
			Name:       events.BatchError,
			OccurredAt: p.now(),
			Fields:     map[string]string{"error": err.Error()},
		})
	}

	metrics.QueueDepth.Set(float64(p.queue.Len()))
}

// processBatch drains up to batchSize records and runs each through the step
// engine sequentially. Per-record failures are recorded on the batch, never
// propagated; the scheduler loop must not die with a member.
func (p *Processor) processBatch(ctx context.Context) (*Batch, error) {
	drained := p.queue.Drain(p.batchSize)
	if len(drained) == 0 {
		return nil, nil
	}

	logger := log.With().
		Str("component", "batch_processor").
		Int("batch_members", len(drained)).
		Logger()

	batch := &Batch{
		BatchID:   "BAT_" + uuid.New().String(),
		RecordIDs: drained,
		Status:    StatusProcessing,
		CreatedAt: p.now(),
		UpdatedAt: p.now(),
	}
	if err := p.db.CreateBatch(batch); err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}

	started := p.now()
	for _, recordID := range drained {
		p.processMember(ctx, batch, recordID)
	}

	if batch.FailureCount == 0 {
		batch.Status = StatusCompleted
	} else {
		batch.Status = StatusFailed
	}
	if err := p.db.UpdateBatch(batch); err != nil {
		return batch, fmt.Errorf("failed to finalize batch: %w", err)
	}

	metrics.BatchesProcessed.WithLabelValues(batch.Status).Inc()
	metrics.BatchDuration.Observe(p.now().Sub(started).Seconds())

	logger.Info().
		Str("batch_id", batch.BatchID).
		Str("status", batch.Status).
		Int("success_count", batch.SuccessCount).
		Int("failure_count", batch.FailureCount).
		Float64("total_amount", batch.TotalAmount).
		Msg("batch processed")

	p.sink.Publish(events.Event{
		Name:       events.BatchProcessed,
		BatchID:    batch.BatchID,
		OccurredAt: p.now(),
		Fields: map[string]string{
			"status":        batch.Status,
			"success_count": fmt.Sprintf("%d", batch.SuccessCount),
			"failure_count": fmt.Sprintf("%d", batch.FailureCount),
		},
	})

	return batch, nil
}

// processMember runs one batch member to a terminal state. The MarkProcessing
// guard makes the pass at-most-once: a record that is no longer PENDING
// (already terminal, cancelled, or claimed elsewhere) is skipped.
func (p *Processor) processMember(ctx context.Context, batch *Batch, recordID string) {
	logger := log.With().
		Str("component", "batch_processor").
		Str("batch_id", batch.BatchID).
		Str("record_id", recordID).
		Logger()

	claimed, err := p.db.MarkProcessing(recordID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to claim record")
		batch.FailureCount++
		return
	}
	if !claimed {
		logger.Warn().Msg("record not pending, skipping")
		return
	}

	record, err := p.db.GetRecord(recordID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load claimed record")
		batch.FailureCount++
		return
	}

	record.BatchID = batch.BatchID
	batch.TotalAmount += record.GrossAmount
	if batch.Currency == "" {
		batch.Currency = record.Currency
	}

	if err := p.engine.Run(ctx, record); err != nil {
		logger.Error().Err(err).Msg("step engine error")
		batch.FailureCount++
		return
	}

	metrics.RecordsProcessed.WithLabelValues(record.Pipeline, record.Status).Inc()

	if record.Status == StatusCompleted {
		batch.SuccessCount++
	} else {
		batch.FailureCount++
	}
}

// requeueDuePending re-enqueues every PENDING record whose scheduled time has
// arrived. Records already waiting are deduplicated by the queue, so the sweep
// is idempotent; it recovers records stranded by a failed scheduled enqueue or
// by a crash between persist and enqueue.
func (p *Processor) requeueDuePending() error {
	due, err := p.db.GetDuePendingRecords(p.now())
	if err != nil {
		return fmt.Errorf("failed to list due pending records: %w", err)
	}

	for i := range due {
		if err := p.queue.Enqueue(due[i].RecordID); err != nil {
			log.Warn().
				Err(err).
				Str("record_id", due[i].RecordID).
				Msg("requeue sweep could not enqueue record")
		}
	}
	return nil
}

// escalateOverdueRefunds promotes refunds that waited past the escalation
// threshold to ESCALATED. Escalation is terminal for the pipeline: no further
// automatic payment attempt happens, a human takes over.
func (p *Processor) escalateOverdueRefunds() error {
	if p.escalationThreshold <= 0 {
		return nil
	}

	cutoff := p.now().Add(-p.escalationThreshold)
	overdue, err := p.db.GetPendingRefundsOlderThan(cutoff)
	if err != nil {
		return fmt.Errorf("failed to list overdue refunds: %w", err)
	}

	for i := range overdue {
		record := &overdue[i]
		record.Status = StatusEscalated
		if err := p.db.UpdateRecord(record); err != nil {
			log.Error().
				Err(err).
				Str("record_id", record.RecordID).
				Msg("failed to escalate refund")
			continue
		}

		log.Warn().
			Str("record_id", record.RecordID).
			Time("initiated_at", record.InitiatedAt).
			Msg("refund escalated for manual intervention")

		metrics.RecordsProcessed.WithLabelValues(record.Pipeline, record.Status).Inc()
		p.sink.Publish(events.Event{
			Name:       events.RecordEscalated,
			RecordID:   record.RecordID,
			OccurredAt: p.now(),
		})
	}

	return nil
}
