package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ksred/settler-api/internal/events"
	"github.com/ksred/settler-api/internal/types"
	"github.com/rs/zerolog/log"
)

// stepSequence is the fixed, total order every record moves through. There is
// no branching and no looping; a failed step aborts the remainder.
var stepSequence = []string{
	StepValidation,
	StepPaymentProcessing,
	StepAssetTransfer,
	StepFeeDeduction,
	StepNotification,
	StepCompletion,
}

var (
	ErrMissingPayer      = errors.New("payer is required")
	ErrMissingPayee      = errors.New("payee is required")
	ErrNonPositiveAmount = errors.New("gross amount must be positive")
	ErrUnsupportedMethod = errors.New("unsupported payment method")
	ErrNegativeNetAmount = errors.New("fees exceed gross amount")
)

type stepAction func(ctx context.Context, record *Record) error

// Engine drives one record through the step sequence, appending to its step
// history after every transition so a crash mid-record leaves a replayable
// partial trail.
type Engine struct {
	db         *Database
	dispatcher *Dispatcher
	sink       events.Sink
	actions    map[string]stepAction
	now        func() time.Time
}

func NewEngine(db *Database, dispatcher *Dispatcher, sink events.Sink) *Engine {
	e := &Engine{
		db:         db,
		dispatcher: dispatcher,
		sink:       sink,
		now:        time.Now,
	}
	e.actions = map[string]stepAction{
		StepValidation:        e.validate,
		StepPaymentProcessing: e.processPayment,
		StepAssetTransfer:     e.transferAsset,
		StepFeeDeduction:      e.deductFees,
		StepNotification:      e.notify,
		StepCompletion:        e.complete,
	}
	return e
}

// Run executes the step sequence for one record. The record must already be
// owned by the caller (status PROCESSING via MarkProcessing); Run moves it to
// a terminal status and persists every step transition.
func (e *Engine) Run(ctx context.Context, record *Record) error {
	logger := log.With().
		Str("record_id", record.RecordID).
		Str("pipeline", record.Pipeline).
		Str("component", "step_engine").
		Logger()

	logger.Info().Msg("starting step sequence")

	record.Status = StatusProcessing
	if err := e.db.UpdateRecord(record); err != nil {
		return fmt.Errorf("failed to mark record processing: %w", err)
	}

	for _, stepName := range stepSequence {
		started := e.now()
		record.Steps = append(record.Steps, StepRecord{
			Step:      stepName,
			Status:    StepStatusProcessing,
			StartedAt: started,
		})
		if err := e.db.UpdateRecord(record); err != nil {
			return fmt.Errorf("failed to persist step start: %w", err)
		}

		err := e.actions[stepName](ctx, record)
		finished := e.now()
		entry := &record.Steps[len(record.Steps)-1]
		entry.CompletedAt = &finished
		entry.DurationMs = finished.Sub(started).Milliseconds()

		if err != nil {
			entry.Status = StepStatusFailed
			entry.Error = err.Error()
			record.Status = StatusFailed

			logger.Warn().
				Str("step", stepName).
				Err(err).
				Msg("step failed, aborting remaining steps")

			if dbErr := e.db.UpdateRecord(record); dbErr != nil {
				return fmt.Errorf("failed to persist failed step: %w", dbErr)
			}
			e.emit(failureEvent(record.Pipeline), record, map[string]string{
				"step":  stepName,
				"error": err.Error(),
			})
			return nil
		}

		entry.Status = StepStatusCompleted
		if err := e.db.UpdateRecord(record); err != nil {
			return fmt.Errorf("failed to persist completed step: %w", err)
		}

		logger.Debug().
			Str("step", stepName).
			Int64("duration_ms", entry.DurationMs).
			Msg("step completed")
	}

	completed := e.now()
	record.Status = StatusCompleted
	record.CompletedAt = &completed
	if err := e.db.UpdateRecord(record); err != nil {
		return fmt.Errorf("failed to persist completed record: %w", err)
	}

	logger.Info().
		Time("completed_at", completed).
		Msg("step sequence completed")

	e.emit(successEvent(record.Pipeline), record, nil)
	return nil
}

// validate performs the structural checks. A validation failure is fatal
// immediately: no retry happens at this layer.
func (e *Engine) validate(_ context.Context, record *Record) error {
	if record.PayerID == "" {
		return ErrMissingPayer
	}
	if record.PayeeID == "" {
		return ErrMissingPayee
	}
	if record.GrossAmount <= 0 {
		return ErrNonPositiveAmount
	}
	if !types.SupportedPaymentMethod(record.PaymentMethod) {
		return fmt.Errorf("%w: %s", ErrUnsupportedMethod, record.PaymentMethod)
	}
	if record.NetAmount < 0 {
		return fmt.Errorf("%w: net %.4f", ErrNegativeNetAmount, record.NetAmount)
	}
	return nil
}

func (e *Engine) processPayment(ctx context.Context, record *Record) error {
	result, err := e.dispatcher.Dispatch(ctx, record)
	if err != nil {
		return err
	}
	record.TransactionRef = result.Reference
	record.BlockNumber = result.BlockNumber
	return nil
}

// The remaining steps are simulated: real implementations move the auction
// asset, post the fee ledger entries and deliver the notification.

func (e *Engine) transferAsset(ctx context.Context, record *Record) error {
	return simulateWork(ctx, 2*time.Millisecond)
}

func (e *Engine) deductFees(ctx context.Context, record *Record) error {
	return simulateWork(ctx, time.Millisecond)
}

func (e *Engine) notify(ctx context.Context, record *Record) error {
	return simulateWork(ctx, time.Millisecond)
}

func (e *Engine) complete(ctx context.Context, record *Record) error {
	return nil
}

func simulateWork(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (e *Engine) emit(name string, record *Record, fields map[string]string) {
	if e.sink == nil {
		return
	}
	e.sink.Publish(events.Event{
		Name:       name,
		RecordID:   record.RecordID,
		OccurredAt: e.now(),
		Fields:     fields,
	})
}

func successEvent(pipeline string) string {
	if pipeline == PipelineRefund {
		return events.RefundCompleted
	}
	return events.SettlementCompleted
}

func failureEvent(pipeline string) string {
	if pipeline == PipelineRefund {
		return events.RefundFailed
	}
	return events.SettlementFailed
}
