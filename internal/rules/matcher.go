package rules

import "sort"

// Match returns the highest-priority active rule whose every condition holds
// for the given input, or nil when no rule applies. Ties in priority are
// broken by creation order so results stay deterministic across runs.
func Match(ruleSet []Rule, input MatchInput) *Rule {
	ordered := make([]Rule, len(ruleSet))
	copy(ordered, ruleSet)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	for i := range ordered {
		rule := &ordered[i]
		if !rule.Active {
			continue
		}
		if rule.Pipeline != "" && rule.Pipeline != input.Pipeline {
			continue
		}
		if matches(rule.Conditions, input) {
			return rule
		}
	}
	return nil
}

// matches evaluates every populated condition with short-circuit AND
// semantics; the first non-matching condition disqualifies the rule.
func matches(c Conditions, input MatchInput) bool {
	if len(c.AuctionTypes) > 0 && !contains(c.AuctionTypes, input.AuctionType) {
		return false
	}
	if c.MinAmount != nil && input.Amount < *c.MinAmount {
		return false
	}
	if c.MaxAmount != nil && input.Amount > *c.MaxAmount {
		return false
	}
	if len(c.Currencies) > 0 && !contains(c.Currencies, input.Currency) {
		return false
	}
	if len(c.PaymentMethods) > 0 && !contains(c.PaymentMethods, input.PaymentMethod) {
		return false
	}
	if len(c.UserTiers) > 0 && !contains(c.UserTiers, input.UserTier) {
		return false
	}
	return true
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
