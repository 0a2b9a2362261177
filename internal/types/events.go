package types

import "time"

// WinnerDeterminedEvent is the inbound payload produced by the auction engine
// when an auction closes with a winner. It is the trigger for settlement creation.
type WinnerDeterminedEvent struct {
	AuctionID     string     `json:"auction_id" binding:"required"`
	WinnerID      string     `json:"winner_id" binding:"required"`
	SellerID      string     `json:"seller_id"`
	WinningAmount float64    `json:"winning_amount"`
	ActualPrice   float64    `json:"actual_price"`
	AuctionType   string     `json:"auction_type"`
	Currency      string     `json:"currency"`
	PaymentMethod string     `json:"payment_method"`
	UserTier      string     `json:"user_tier"`
	CorrelationID string     `json:"correlation_id"`
	ScheduledFor  *time.Time `json:"scheduled_for,omitempty"`
}

// RefundRequestEvent is the inbound payload describing escrowed funds that must
// be returned: the bidder was outbid, or the auction was cancelled or failed.
type RefundRequestEvent struct {
	UserID        string  `json:"user_id" binding:"required"`
	AuctionID     string  `json:"auction_id" binding:"required"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Cause         string  `json:"cause"`
	PaymentMethod string  `json:"payment_method"`
	CorrelationID string  `json:"correlation_id"`
}
