package rules

import (
	"github.com/ksred/settler-api/internal/types"
)

// Processor fee is a fixed share of the platform fee.
const processorFeeRate = 0.10

// Tiered fee structures charge a fixed percentage of the selected tier
// threshold rather than of the raw amount.
const tieredFeeRate = 0.02

// Calculator computes fee breakdowns for settlement and refund amounts.
// It is pure: the same inputs always produce the same breakdown.
type Calculator struct {
	gasFee float64
}

// NewCalculator returns a calculator charging the given nominal gas fee for
// on-chain payment methods. Live gas pricing is out of scope.
func NewCalculator(gasFee float64) *Calculator {
	return &Calculator{gasFee: gasFee}
}

// Fees computes the platform, processor and gas fees for the given gross
// amount. When rule is nil the fallback percentage applies. The net amount is
// gross minus all fees; it is computed exactly once here and may go negative.
// Rejecting negative nets is the validation step's job, not the calculator's.
func (c *Calculator) Fees(amount float64, rule *Rule, method string, fallbackPct float64) FeeBreakdown {
	var platform float64
	switch {
	case rule == nil:
		platform = amount * fallbackPct / 100
	case rule.Action.FeeStructure == FeeStructureFixed:
		platform = rule.Action.FeeValue
	case rule.Action.FeeStructure == FeeStructureTiered:
		platform = tierThreshold(rule.Action.FeeTiers, amount) * tieredFeeRate
	default: // PERCENTAGE
		platform = amount * rule.Action.FeeValue / 100
	}

	if rule != nil {
		platform = clamp(platform, rule.Action.MinFee, rule.Action.MaxFee)
	}

	breakdown := FeeBreakdown{
		Platform:  platform,
		Processor: platform * processorFeeRate,
	}

	net := amount - breakdown.Platform - breakdown.Processor
	if types.OnChainMethod(method) {
		gas := c.gasFee
		breakdown.Gas = &gas
		net -= gas
	}
	breakdown.Net = net

	return breakdown
}

// tierThreshold selects the smallest tier threshold that covers the amount,
// falling back to the largest tier when the amount exceeds them all.
func tierThreshold(tiers []float64, amount float64) float64 {
	if len(tiers) == 0 {
		return amount
	}

	selected := 0.0
	found := false
	largest := tiers[0]
	for _, t := range tiers {
		if t > largest {
			largest = t
		}
		if t >= amount && (!found || t < selected) {
			selected = t
			found = true
		}
	}
	if !found {
		return largest
	}
	return selected
}

// clamp bounds the fee to the configured [min, max] window. Out-of-range fees
// are clamped, never rejected.
func clamp(fee float64, min, max *float64) float64 {
	if min != nil && fee < *min {
		fee = *min
	}
	if max != nil && fee > *max {
		fee = *max
	}
	return fee
}
