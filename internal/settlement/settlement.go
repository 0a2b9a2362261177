package settlement

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/settler-api/internal/events"
	"github.com/ksred/settler-api/internal/rules"
	"github.com/ksred/settler-api/internal/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// PlatformAccount is the counterparty for refunds: escrowed funds flow from
// the platform back to the bidder.
const PlatformAccount = "PLATFORM"

const defaultCurrency = "USD"

// Service creates settlement and refund records from collaborator events,
// applies rules and fees, and feeds the queue. Processing itself belongs to
// the Processor and Engine.
type Service struct {
	db         *Database
	rules      *rules.Service
	calculator *rules.Calculator
	queue      *Queue
	sink       events.Sink
	maxRetries int
}

func NewService(gormDB *gorm.DB, ruleService *rules.Service, calculator *rules.Calculator,
	queue *Queue, sink events.Sink, maxRetries int) *Service {
	return &Service{
		db:         NewDatabase(gormDB),
		rules:      ruleService,
		calculator: calculator,
		queue:      queue,
		sink:       sink,
		maxRetries: maxRetries,
	}
}

// CreateSettlement turns a winner-determined event into a PENDING settlement
// record: rule matched, fees computed once, record enqueued (or held on a
// timer when scheduled).
func (s *Service) CreateSettlement(event *types.WinnerDeterminedEvent) (*Record, error) {
	logger := log.With().
		Str("service", "settlement").
		Str("auction_id", event.AuctionID).
		Str("winner_id", event.WinnerID).
		Logger()

	logger.Info().Msg("creating settlement for determined winner")

	amount := event.ActualPrice
	if amount <= 0 {
		amount = event.WinningAmount
	}
	currency := event.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	method := event.PaymentMethod
	if method == "" {
		method = types.MethodPlatformBalance
	}

	rule, err := s.rules.Resolve(rules.MatchInput{
		Pipeline:      PipelineSettlement,
		AuctionType:   event.AuctionType,
		Amount:        amount,
		Currency:      currency,
		PaymentMethod: method,
		UserTier:      event.UserTier,
	})
	if err != nil {
		logger.Error().Err(err).Msg("rule resolution failed")
		return nil, err
	}

	kind := KindAutomatic
	if event.ScheduledFor != nil {
		kind = KindScheduled
	}
	if rule != nil {
		if rule.Action.RequiredPaymentMethod != "" {
			method = rule.Action.RequiredPaymentMethod
		}
		if rule.Action.RequireEscrow {
			method = types.MethodEscrow
		}
		if !rule.Action.AutoSettle && kind == KindAutomatic {
			kind = KindManual
		}
	}

	record := s.newRecord(PipelineSettlement, kind, method, currency, amount, event.CorrelationID)
	record.RecordID = "SET_" + uuid.New().String()
	record.AuctionID = event.AuctionID
	record.PayerID = event.WinnerID
	record.PayeeID = event.SellerID
	record.ScheduledFor = event.ScheduledFor

	s.applyFees(record, rule, rules.DefaultSettlementFeePct)

	if err := s.persistAndEnqueue(record, events.SettlementInitiated); err != nil {
		logger.Error().Err(err).Msg("failed to create settlement record")
		return nil, err
	}

	logger.Info().
		Str("record_id", record.RecordID).
		Str("kind", record.Kind).
		Str("payment_method", record.PaymentMethod).
		Float64("gross_amount", record.GrossAmount).
		Float64("net_amount", record.NetAmount).
		Msg("settlement record created")

	return record, nil
}

// CreateRefund turns a refund-cause event into a PENDING refund record. The
// platform is the payer: it returns escrowed funds to the bidder.
func (s *Service) CreateRefund(event *types.RefundRequestEvent) (*Record, error) {
	logger := log.With().
		Str("service", "settlement").
		Str("auction_id", event.AuctionID).
		Str("user_id", event.UserID).
		Logger()

	logger.Info().Msg("creating refund for escrowed funds")

	currency := event.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	method := event.PaymentMethod
	if method == "" {
		method = types.MethodWalletCredit
	}
	cause := strings.ToUpper(event.Cause)
	if cause == "" {
		cause = CauseOutbid
	}

	rule, err := s.rules.Resolve(rules.MatchInput{
		Pipeline:      PipelineRefund,
		Amount:        event.Amount,
		Currency:      currency,
		PaymentMethod: method,
	})
	if err != nil {
		logger.Error().Err(err).Msg("rule resolution failed")
		return nil, err
	}
	if rule != nil && rule.Action.RequiredPaymentMethod != "" {
		method = rule.Action.RequiredPaymentMethod
	}

	record := s.newRecord(PipelineRefund, cause, method, currency, event.Amount, event.CorrelationID)
	record.RecordID = "REF_" + uuid.New().String()
	record.AuctionID = event.AuctionID
	record.PayerID = PlatformAccount
	record.PayeeID = event.UserID

	s.applyFees(record, rule, rules.DefaultRefundFeePct)

	if err := s.persistAndEnqueue(record, events.RefundInitiated); err != nil {
		logger.Error().Err(err).Msg("failed to create refund record")
		return nil, err
	}

	logger.Info().
		Str("record_id", record.RecordID).
		Str("cause", record.Kind).
		Float64("net_amount", record.NetAmount).
		Msg("refund record created")

	return record, nil
}

func (s *Service) newRecord(pipeline, kind, method, currency string, amount float64, correlationID string) *Record {
	now := time.Now()
	return &Record{
		CorrelationID: correlationID,
		Pipeline:      pipeline,
		Kind:          kind,
		PaymentMethod: method,
		Status:        StatusPending,
		GrossAmount:   amount,
		Currency:      currency,
		Steps:         []StepRecord{},
		MaxRetries:    s.maxRetries,
		InitiatedAt:   now,
		UpdatedAt:     now,
	}
}

// applyFees computes the fee breakdown exactly once, at rule-application
// time. The stored net amount never silently diverges from its inputs.
func (s *Service) applyFees(record *Record, rule *rules.Rule, fallbackPct float64) {
	breakdown := s.calculator.Fees(record.GrossAmount, rule, record.PaymentMethod, fallbackPct)
	record.PlatformFee = breakdown.Platform
	record.ProcessorFee = breakdown.Processor
	record.GasFee = breakdown.Gas
	record.NetAmount = breakdown.Net
	if rule != nil {
		record.RuleID = rule.RuleID
	}
}

func (s *Service) persistAndEnqueue(record *Record, eventName string) error {
	if err := s.db.CreateRecord(record); err != nil {
		return fmt.Errorf("failed to persist record: %w", err)
	}

	s.sink.Publish(events.Event{
		Name:       eventName,
		RecordID:   record.RecordID,
		OccurredAt: time.Now(),
		Fields: map[string]string{
			"auction_id": record.AuctionID,
			"kind":       record.Kind,
		},
	})

	if record.ScheduledFor != nil {
		return s.queue.EnqueueAt(record.RecordID, *record.ScheduledFor)
	}
	return s.queue.Enqueue(record.RecordID)
}

// Resubmit re-enters a FAILED record into the queue as an explicit operator
// action. It reports false, never an error, for unknown records, records that
// are not FAILED, and records that are out of retry budget.
func (s *Service) Resubmit(recordID string) (bool, error) {
	logger := log.With().
		Str("service", "settlement").
		Str("record_id", recordID).
		Logger()

	record, err := s.db.GetRecord(recordID)
	if err != nil {
		logger.Warn().Err(err).Msg("resubmit for unknown record")
		return false, nil
	}

	if record.Status != StatusFailed {
		logger.Warn().Str("status", record.Status).Msg("resubmit refused: record not failed")
		return false, nil
	}
	if record.RetryCount >= record.MaxRetries {
		logger.Warn().
			Int("retry_count", record.RetryCount).
			Int("max_retries", record.MaxRetries).
			Msg("resubmit refused: retry budget exhausted")
		return false, nil
	}

	record.RetryCount++
	record.Status = StatusPending
	if err := s.db.UpdateRecord(record); err != nil {
		return false, fmt.Errorf("failed to reset record for retry: %w", err)
	}
	if err := s.queue.Enqueue(record.RecordID); err != nil {
		return false, err
	}

	logger.Info().
		Int("retry_count", record.RetryCount).
		Msg("record resubmitted for processing")

	s.sink.Publish(events.Event{
		Name:       events.RecordRetried,
		RecordID:   record.RecordID,
		OccurredAt: time.Now(),
		Fields:     map[string]string{"retry_count": fmt.Sprintf("%d", record.RetryCount)},
	})

	return true, nil
}

// GetRecord retrieves a record by ID
func (s *Service) GetRecord(recordID string) (*Record, error) {
	return s.db.GetRecord(recordID)
}

// GetUserRecords retrieves all records where the user pays or is paid
func (s *Service) GetUserRecords(userID string) ([]Record, error) {
	return s.db.GetUserRecords(userID)
}

// GetBatch retrieves a batch report by ID
func (s *Service) GetBatch(batchID string) (*Batch, error) {
	return s.db.GetBatch(batchID)
}

// GetDB exposes the record store for the processor and analytics wiring.
func (s *Service) GetDB() *Database {
	return s.db
}
