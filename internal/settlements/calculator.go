package settlements

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Split is the fee breakdown derived for one paid order.
type Split struct {
	OrderAmount       int64
	PlatformFeeRate   decimal.Decimal
	PlatformFee       int64
	WholesalerAmount  int64
	ScheduledPayoutAt time.Time
}

// Calculate derives the platform fee, the wholesaler share and the payout date.
// The fee is amount × rate rounded half away from zero to whole won.
func Calculate(amount int64, rate decimal.Decimal, approvedAt time.Time, payoutOffset time.Duration) (Split, error) {
	if amount < 0 {
		return Split{}, fmt.Errorf("amount must not be negative, got %d", amount)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return Split{}, fmt.Errorf("fee rate must be within [0,1], got %s", rate)
	}
	if approvedAt.IsZero() {
		return Split{}, fmt.Errorf("approval time is required")
	}

	fee := decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
	return Split{
		OrderAmount:       amount,
		PlatformFeeRate:   rate,
		PlatformFee:       fee,
		WholesalerAmount:  amount - fee,
		ScheduledPayoutAt: approvedAt.UTC().Add(payoutOffset),
	}, nil
}
