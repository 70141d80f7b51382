package schedule

import (
	"fmt"
	"iter"

	"github.com/Dan9191/balance-planner/internal/models"
	"github.com/shopspring/decimal"
)

// LockKind is the row equation a lock pins
type LockKind int

const (
	LockNone LockKind = iota
	LockPayment
	LockPrincipal
	LockBalance
)

func (k LockKind) String() string {
	switch k {
	case LockPayment:
		return "payment"
	case LockPrincipal:
		return "principal"
	case LockBalance:
		return "balance"
	}
	return "none"
}

// Lock pins one row of the schedule to a user-supplied value
type Lock struct {
	Day       int
	Kind      LockKind
	Value     decimal.Decimal
	Source    models.Field // edited field the lock came from
	SourceDay int          // day of that edit (differs from Day for interest edits)

	value float64
}

// Float returns the pinned value as a float64 for the optimizer
func (l Lock) Float() float64 { return l.value }

// LockSet holds at most one lock per day of the horizon
type LockSet struct {
	horizon int
	byDay   []Lock
	edited  []bool
	count   int
}

// NewLockSet creates an empty lock set for a horizon
func NewLockSet(horizon int) *LockSet {
	if horizon < 0 {
		horizon = 0
	}
	return &LockSet{
		horizon: horizon,
		byDay:   make([]Lock, horizon+1),
		edited:  make([]bool, horizon+1),
	}
}

// Horizon returns the number of days the set covers
func (ls *LockSet) Horizon() int { return ls.horizon }

// Len returns the number of pinned days
func (ls *LockSet) Len() int { return ls.count }

// At returns the lock on a day; Kind is LockNone when the day is free
func (ls *LockSet) At(day int) Lock {
	if ls == nil || day < 1 || day > ls.horizon {
		return Lock{}
	}
	return ls.byDay[day]
}

// Free reports whether the optimizer may change the payment of a day
func (ls *LockSet) Free(day int) bool {
	return ls.At(day).Kind == LockNone
}

// Edited reports whether a user edit targets the day
func (ls *LockSet) Edited(day int) bool {
	if ls == nil || day < 1 || day > ls.horizon {
		return false
	}
	return ls.edited[day]
}

// LastAnchor returns the last balance-locked day, or 0 when the starting balance is the only anchor
func (ls *LockSet) LastAnchor() int {
	if ls == nil {
		return 0
	}
	for d := ls.horizon; d >= 1; d-- {
		if ls.byDay[d].Kind == LockBalance {
			return d
		}
	}
	return 0
}

// All yields the locks in day order
func (ls *LockSet) All() iter.Seq[Lock] {
	return func(yield func(Lock) bool) {
		if ls == nil {
			return
		}
		for d := 1; d <= ls.horizon; d++ {
			if ls.byDay[d].Kind == LockNone {
				continue
			}
			if !yield(ls.byDay[d]) {
				return
			}
		}
	}
}

func (ls *LockSet) add(l Lock) error {
	if l.Day < 1 || l.Day > ls.horizon {
		return &models.EditConflictError{Day: l.SourceDay, Field: l.Source, Reason: fmt.Sprintf("day %d is outside the %d-day horizon", l.Day, ls.horizon)}
	}
	l.value = l.Value.InexactFloat64()
	prev := ls.byDay[l.Day]
	if prev.Kind != LockNone {
		if prev.Kind == l.Kind && prev.Value.Sub(l.Value).Abs().LessThanOrEqual(editTolerance) {
			return nil
		}
		return &models.EditConflictError{
			Day:    l.SourceDay,
			Field:  l.Source,
			Reason: fmt.Sprintf("day %d is already pinned by the %s edit on day %d", l.Day, prev.Source, prev.SourceDay),
		}
	}
	ls.byDay[l.Day] = l
	ls.count++
	return nil
}

// ResolveLocks turns edited cells into row locks.
//
// payment and totalPayment pin the payment, principal pins payment-interest and balance pins the closing balance.
// An interest edit on day d pins the closing balance of day d-1 to value/rate, which keeps the interest equation
// true on every row.
func ResolveLocks(cells iter.Seq[models.EditedCell], start, rate decimal.Decimal, horizon int) (*LockSet, error) {
	ls := NewLockSet(horizon)
	for c := range cells {
		if c.Day < 1 || c.Day > horizon {
			return nil, &models.EditConflictError{Day: c.Day, Field: c.Field, Reason: fmt.Sprintf("outside the %d-day horizon", horizon)}
		}
		l := Lock{Day: c.Day, Value: c.NewValue, Source: c.Field, SourceDay: c.Day}
		switch c.Field {
		case models.FieldPayment, models.FieldTotalPayment:
			l.Kind = LockPayment
		case models.FieldPrincipal:
			l.Kind = LockPrincipal
		case models.FieldBalance:
			l.Kind = LockBalance
		case models.FieldInterest:
			if rate.IsZero() {
				if !c.NewValue.IsZero() {
					return nil, &models.EditConflictError{Day: c.Day, Field: c.Field, Reason: "no interest accrues at a zero rate"}
				}
				ls.edited[c.Day] = true
				continue
			}
			if c.Day == 1 {
				if Interest(start, rate).Sub(c.NewValue).Abs().GreaterThan(editTolerance) {
					return nil, &models.EditConflictError{Day: c.Day, Field: c.Field, Reason: "day 1 interest follows from the starting balance"}
				}
				ls.edited[c.Day] = true
				continue
			}
			l.Kind = LockBalance
			l.Day = c.Day - 1
			l.Value = c.NewValue.DivRound(rate, interestPlaces+6)
		default:
			return nil, &models.EditConflictError{Day: c.Day, Field: c.Field, Reason: "field is not editable"}
		}
		if err := ls.add(l); err != nil {
			return nil, err
		}
		ls.edited[c.Day] = true
	}
	return ls, nil
}
