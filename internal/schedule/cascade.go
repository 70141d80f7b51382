// Package schedule expands payment sequences into day-by-day balance schedules.
package schedule

import (
	"fmt"

	"github.com/Dan9191/balance-planner/internal/models"
	"github.com/shopspring/decimal"
)

const (
	interestPlaces = 10
	paymentPlaces  = 2
)

// EditTolerance is how far a regenerated cell may drift from the value the user set
const EditTolerance = 0.01

var editTolerance = decimal.NewFromFloat(EditTolerance)

// Interest returns the interest accrued on a balance for one period
func Interest(balance, rate decimal.Decimal) decimal.Decimal {
	if rate.IsZero() {
		return decimal.Zero
	}
	return balance.Mul(rate).Round(interestPlaces)
}

// Expand turns a payment sequence into schedule rows.
//
// Locked days ignore the supplied payment and solve their row for the pinned value, so every lock reappears
// verbatim and the following days continue from it.
func Expand(start, rate decimal.Decimal, payments []float64, locks *LockSet) []models.DayRecord {
	records := make([]models.DayRecord, len(payments))
	prev := start
	anchor := 0
	for i, p := range payments {
		day := i + 1
		interest := Interest(prev, rate)
		payment := decimal.NewFromFloat(p)

		lock := locks.At(day)
		switch lock.Kind {
		case LockPayment:
			payment = lock.Value
		case LockPrincipal:
			payment = lock.Value.Add(interest)
		case LockBalance:
			payment = prev.Sub(lock.Value).Add(interest)
		}

		principal := payment.Sub(interest)
		balance := prev.Sub(principal)

		pinned := lock.Kind != LockNone || locks.Edited(day)
		if pinned {
			anchor = day
		}
		records[i] = models.DayRecord{
			Day:          day,
			Payment:      payment,
			Principal:    principal,
			Interest:     interest,
			TotalPayment: payment,
			Balance:      balance,
			Pinned:       pinned,
			DependsOn:    anchor,
		}
		prev = balance
	}
	return records
}

// Simulate is the float64 counterpart of Expand used on the optimizer's hot path.
//
// Locked genes are rewritten in place with the payment that honours the lock. balances must have room for
// len(genes)+1 values; balances[0] is the starting balance. The final balance is returned.
func (ls *LockSet) Simulate(start, rate float64, genes, balances []float64) float64 {
	balances[0] = start
	prev := start
	for i := range genes {
		day := i + 1
		interest := prev * rate
		if ls != nil && ls.count > 0 {
			lock := ls.byDay[day]
			switch lock.Kind {
			case LockPayment:
				genes[i] = lock.value
			case LockPrincipal:
				genes[i] = lock.value + interest
			case LockBalance:
				genes[i] = prev - lock.value + interest
			}
		}
		prev -= genes[i] - interest
		balances[day] = prev
	}
	return prev
}

// Verify checks the cascade equations on every row
func Verify(records []models.DayRecord, start, rate decimal.Decimal, tol decimal.Decimal) error {
	prev := start
	for i, r := range records {
		if r.Day != i+1 {
			return fmt.Errorf("row %d has day %d", i, r.Day)
		}
		if d := r.Interest.Sub(prev.Mul(rate)).Abs(); d.GreaterThan(tol) {
			return fmt.Errorf("day %d: interest %s does not follow from balance %s (off by %s)", r.Day, r.Interest, prev, d)
		}
		if d := r.Principal.Sub(r.Payment.Sub(r.Interest)).Abs(); d.GreaterThan(tol) {
			return fmt.Errorf("day %d: principal %s != payment %s - interest %s", r.Day, r.Principal, r.Payment, r.Interest)
		}
		if !r.TotalPayment.Equal(r.Payment) {
			return fmt.Errorf("day %d: total payment %s != payment %s", r.Day, r.TotalPayment, r.Payment)
		}
		if d := r.Balance.Sub(prev.Sub(r.Principal)).Abs(); d.GreaterThan(tol) {
			return fmt.Errorf("day %d: balance %s != %s - %s", r.Day, r.Balance, prev, r.Principal)
		}
		prev = r.Balance
	}
	return nil
}

// CheckEdits reports the first edited cell whose value drifted from what the user set
func CheckEdits(records []models.DayRecord, cells []models.EditedCell) error {
	for _, c := range cells {
		if c.Day < 1 || c.Day > len(records) {
			return &models.EditConflictError{Day: c.Day, Field: c.Field, Reason: "outside the schedule"}
		}
		got := records[c.Day-1].Value(c.Field)
		if got.Sub(c.NewValue).Abs().GreaterThan(editTolerance) {
			return fmt.Errorf("edit %s not preserved: got %s, want %s", c.Key(), got.StringFixed(2), c.NewValue.StringFixed(2))
		}
	}
	return nil
}

// Final returns the closing balance of a schedule
func Final(records []models.DayRecord, start decimal.Decimal) decimal.Decimal {
	if len(records) == 0 {
		return start
	}
	return records[len(records)-1].Balance
}
