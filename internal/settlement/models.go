package settlement

import (
	"time"

	"gorm.io/gorm"
)

// Pipeline variants handled by the engine.
const (
	PipelineSettlement = "SETTLEMENT"
	PipelineRefund     = "REFUND"
)

// Record lifecycle statuses.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
	StatusCancelled  = "CANCELLED"
	StatusEscalated  = "ESCALATED"
)

// Settlement kinds.
const (
	KindAutomatic = "AUTOMATIC"
	KindManual    = "MANUAL"
	KindScheduled = "SCHEDULED"
	KindEscalated = "ESCALATED"
)

// Refund causes, stored in the same kind column.
const (
	CauseAuctionCancelled = "AUCTION_CANCELLED"
	CauseOutbid           = "OUTBID"
	CauseAuctionFailed    = "AUCTION_FAILED"
)

// The fixed step sequence every record moves through.
const (
	StepValidation        = "VALIDATION"
	StepPaymentProcessing = "PAYMENT_PROCESSING"
	StepAssetTransfer     = "ASSET_TRANSFER"
	StepFeeDeduction      = "FEE_DEDUCTION"
	StepNotification      = "NOTIFICATION"
	StepCompletion        = "COMPLETION"
)

// Step entry statuses within a record's history.
const (
	StepStatusProcessing = "processing"
	StepStatusCompleted  = "completed"
	StepStatusFailed     = "failed"
)

// StepRecord is one entry in a record's append-only step history. Once a step
// reaches completed or failed its entry is never rewritten.
type StepRecord struct {
	Step        string     `json:"step"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  int64      `json:"duration_ms"`
	Error       string     `json:"error,omitempty"`
}

// Record is the generalized settlement/refund unit. It is exclusively owned
// by the pipeline until it reaches a terminal status; afterwards it is
// retained read-only for audit and export.
type Record struct {
	gorm.Model     `json:"-"`
	RecordID       string       `gorm:"uniqueIndex" json:"record_id"`
	CorrelationID  string       `json:"correlation_id"`
	AuctionID      string       `json:"auction_id"`
	PayerID        string       `json:"payer_id"`
	PayeeID        string       `json:"payee_id"`
	Pipeline       string       `json:"pipeline"`
	Kind           string       `json:"kind"`
	PaymentMethod  string       `json:"payment_method"`
	Status         string       `json:"status"`
	GrossAmount    float64      `json:"gross_amount"`
	PlatformFee    float64      `json:"platform_fee"`
	ProcessorFee   float64      `json:"processor_fee"`
	GasFee         *float64     `json:"gas_fee,omitempty"`
	NetAmount      float64      `json:"net_amount"`
	Currency       string       `json:"currency"`
	RuleID         string       `json:"rule_id,omitempty"`
	BatchID        string       `json:"batch_id,omitempty"`
	Steps          []StepRecord `gorm:"serializer:json" json:"steps"`
	TransactionRef string       `json:"transaction_ref,omitempty"`
	BlockNumber    *int64       `json:"block_number,omitempty"`
	RetryCount     int          `json:"retry_count"`
	MaxRetries     int          `json:"max_retries"`
	ScheduledFor   *time.Time   `json:"scheduled_for,omitempty"`
	InitiatedAt    time.Time    `json:"initiated_at"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Terminal reports whether the record has left the pipeline's ownership.
func (r *Record) Terminal() bool {
	switch r.Status {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusEscalated:
		return true
	}
	return false
}

// Batch groups the records drained in one scheduler tick. Membership is
// immutable after creation; the batch status derives from its members.
type Batch struct {
	gorm.Model   `json:"-"`
	BatchID      string    `gorm:"uniqueIndex" json:"batch_id"`
	RecordIDs    []string  `gorm:"serializer:json" json:"record_ids"`
	TotalAmount  float64   `json:"total_amount"`
	Currency     string    `json:"currency"`
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	Status       string    `json:"status"` // PROCESSING, COMPLETED, FAILED
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PaymentResult is what a payment variant returns on success: an opaque
// reference, plus the mined block for on-chain methods.
type PaymentResult struct {
	Reference   string `json:"reference"`
	BlockNumber *int64 `json:"block_number,omitempty"`
}
