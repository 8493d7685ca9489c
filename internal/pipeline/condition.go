package pipeline

import (
	"time"

	"github.com/yanun0323/decimal"
)

// MarketView is what conditions are evaluated against.
type MarketView struct {
	Price   decimal.Decimal
	PriceOK bool
	// AccountUpdates holds the last time an update was seen per account address.
	AccountUpdates map[string]time.Time
}

// Met reports whether c holds. Price conditions never hold without a price.
// Account conditions hold once the account changed after since.
func (c Condition) Met(view MarketView, since time.Time) bool {
	switch c.Kind {
	case ConditionNow:
		return true
	case ConditionPriceAbove:
		return view.PriceOK && view.Price.Cmp(c.Value) >= 0
	case ConditionPriceBelow:
		return view.PriceOK && view.Price.Cmp(c.Value) <= 0
	case ConditionAccountChanged:
		seen, ok := view.AccountUpdates[c.Account]
		return ok && seen.After(since)
	default:
		return false
	}
}

// Ready reports whether every condition of the step holds.
func (s Step) Ready(view MarketView, since time.Time) bool {
	for _, c := range s.Conditions {
		if !c.Met(view, since) {
			return false
		}
	}
	return true
}
