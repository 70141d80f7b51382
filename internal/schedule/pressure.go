package schedule

import (
	"github.com/Dan9191/balance-planner/internal/models"
	"github.com/shopspring/decimal"
)

// AnalyzePressure checks whether the free days after the last balance anchor can move the balance to the target
// when no single day may move more than capacity. A zero capacity disables the check.
//
// Pinned payments and principals in that segment count as already spent or earned, so only the rest of the gap is
// spread over the free days.
func AnalyzePressure(locks *LockSet, start, target, rate, capacity decimal.Decimal) models.Pressure {
	anchor := locks.LastAnchor()
	projected := start
	if anchor > 0 {
		projected = locks.At(anchor).Value
	}

	free := 0
	for d := anchor + 1; d <= locks.Horizon(); d++ {
		interest := Interest(projected, rate)
		payment := decimal.Zero
		lock := locks.At(d)
		switch lock.Kind {
		case LockPayment:
			payment = lock.Value
		case LockPrincipal:
			payment = lock.Value.Add(interest)
		default:
			free++
		}
		projected = projected.Sub(payment.Sub(interest))
	}

	gap := projected.Sub(target).Abs()
	p := models.Pressure{AnchorDay: anchor, FreeDays: free, Capacity: capacity}
	if free == 0 {
		p.RequiredPerDay = gap
		p.Critical = gap.GreaterThan(editTolerance)
		return p
	}
	p.RequiredPerDay = gap.DivRound(decimal.NewFromInt(int64(free)), paymentPlaces)
	p.Critical = capacity.IsPositive() && p.RequiredPerDay.GreaterThan(capacity)
	return p
}
