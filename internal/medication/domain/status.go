package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DeriveStatus evaluates depleted, expired, low, available in that order.
// An item expiring today is not yet expired.
func DeriveStatus(quantity, minimumStock decimal.Decimal, expiration *time.Time, now time.Time) ItemStatus {
	switch {
	case !quantity.IsPositive():
		return StatusDepleted
	case expiration != nil && DaysUntil(*expiration, now) < 0:
		return StatusExpired
	case quantity.LessThanOrEqual(minimumStock):
		return StatusLow
	default:
		return StatusAvailable
	}
}

// DaysUntil counts calendar days from now's date to the expiration date.
// Expiration dates carry no meaningful time of day.
func DaysUntil(expiration, now time.Time) int {
	exp := time.Date(expiration.Year(), expiration.Month(), expiration.Day(), 0, 0, 0, 0, time.UTC)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(exp.Sub(today).Hours() / 24)
}

// WeightedAverageCost blends the cost of existing and incoming stock.
// With no existing stock the incoming cost wins outright.
func WeightedAverageCost(oldQty, oldCost, inQty, inCost decimal.Decimal) decimal.Decimal {
	if !oldQty.IsPositive() {
		return inCost
	}
	total := oldQty.Add(inQty)
	if !total.IsPositive() {
		return oldCost
	}
	return oldQty.Mul(oldCost).Add(inQty.Mul(inCost)).Div(total).Round(4)
}
