package rules

import (
	"time"

	"gorm.io/gorm"
)

// Fee structure variants supported by rule actions.
const (
	FeeStructureFixed      = "FIXED"
	FeeStructurePercentage = "PERCENTAGE"
	FeeStructureTiered     = "TIERED"
)

// Default platform fee percentages applied when no rule matches.
const (
	DefaultSettlementFeePct = 2.5
	DefaultRefundFeePct     = 1.0
)

// Conditions are the predicates a record must satisfy for a rule to apply.
// Empty fields are wildcards; populated fields must all hold (AND semantics).
type Conditions struct {
	AuctionTypes   []string `json:"auction_types,omitempty"`
	MinAmount      *float64 `json:"min_amount,omitempty"`
	MaxAmount      *float64 `json:"max_amount,omitempty"`
	Currencies     []string `json:"currencies,omitempty"`
	PaymentMethods []string `json:"payment_methods,omitempty"`
	UserTiers      []string `json:"user_tiers,omitempty"`
}

// Action describes what a matched rule does to a record: how fees are computed
// and which payment method the pipeline must use.
type Action struct {
	AutoSettle            bool      `json:"auto_settle"`
	FeeStructure          string    `json:"fee_structure"`
	FeeValue              float64   `json:"fee_value"`
	FeeTiers              []float64 `json:"fee_tiers,omitempty"`
	MinFee                *float64  `json:"min_fee,omitempty"`
	MaxFee                *float64  `json:"max_fee,omitempty"`
	RequiredPaymentMethod string    `json:"required_payment_method,omitempty"`
	RequireEscrow         bool      `json:"require_escrow"`
}

// Rule is a prioritized settlement/refund policy. Rule content is immutable
// once created; administrators deactivate rules rather than delete them, and
// replace rather than edit.
type Rule struct {
	gorm.Model `json:"-"`
	RuleID     string     `gorm:"uniqueIndex" json:"rule_id"`
	Name       string     `json:"name"`
	Pipeline   string     `json:"pipeline"` // SETTLEMENT or REFUND
	Priority   int        `json:"priority"`
	Active     bool       `json:"active"`
	Conditions Conditions `gorm:"serializer:json" json:"conditions"`
	Action     Action     `gorm:"serializer:json" json:"action"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// MatchInput is the projection of a settlement record the matcher evaluates
// conditions against.
type MatchInput struct {
	Pipeline      string
	AuctionType   string
	Amount        float64
	Currency      string
	PaymentMethod string
	UserTier      string
}

// FeeBreakdown is the output of the fee calculator. Gas is present only for
// on-chain payment methods.
type FeeBreakdown struct {
	Platform  float64  `json:"platform_fee"`
	Processor float64  `json:"processor_fee"`
	Gas       *float64 `json:"gas_fee,omitempty"`
	Net       float64  `json:"net_amount"`
}

// CreateRuleRequest is the admin payload for registering a new rule.
type CreateRuleRequest struct {
	Name       string     `json:"name" binding:"required"`
	Pipeline   string     `json:"pipeline" binding:"required"`
	Priority   int        `json:"priority"`
	Conditions Conditions `json:"conditions"`
	Action     Action     `json:"action"`
}
