package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DefaultHorizonDays is used when neither HorizonDays nor a date range is given
	DefaultHorizonDays = 30
	// DaysPerYear converts an annual rate into a daily one
	DaysPerYear = 365
)

// OptimizationConfig describes one optimization run
type OptimizationConfig struct {
	StartingBalance decimal.Decimal `json:"starting_balance"`
	TargetBalance   decimal.Decimal `json:"target_balance"`
	MinimumBalance  decimal.Decimal `json:"minimum_balance"`
	PopulationSize  int             `json:"population_size" validate:"required,gt=0,lte=10000"`
	Generations     int             `json:"generations" validate:"required,gt=0,lte=100000"`
	HorizonDays     int             `json:"horizon_days,omitempty" validate:"gte=0,lte=3660"`
	StartDate       *time.Time      `json:"start_date,omitempty"`
	EndDate         *time.Time      `json:"end_date,omitempty"`
	AnnualRate      decimal.Decimal `json:"annual_rate"` // percent
	UseKeyRate      bool            `json:"use_key_rate,omitempty"`
	MaxDailyAmount  decimal.Decimal `json:"max_daily_amount"`
	Seed            uint64          `json:"seed,omitempty"`
}

// Horizon returns the number of scheduled days
func (c OptimizationConfig) Horizon() int {
	if c.HorizonDays != 0 {
		return c.HorizonDays
	}
	if c.StartDate != nil && c.EndDate != nil {
		return calendarDays(*c.StartDate, *c.EndDate)
	}
	return DefaultHorizonDays
}

// calendarDays counts whole dates between from and to, ignoring clock time and DST shifts
func calendarDays(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// PeriodicRate returns the simple daily interest rate as a fraction
func (c OptimizationConfig) PeriodicRate() decimal.Decimal {
	if c.AnnualRate.IsZero() {
		return decimal.Zero
	}
	return c.AnnualRate.Div(decimal.NewFromInt(100)).Div(decimal.NewFromInt(DaysPerYear))
}

// DateFor returns the calendar date of a schedule day, if the config is dated
func (c OptimizationConfig) DateFor(day int) *time.Time {
	if c.StartDate == nil {
		return nil
	}
	d := c.StartDate.AddDate(0, 0, day)
	return &d
}

// Validate checks the parts of the config that make a run impossible
func (c OptimizationConfig) Validate() error {
	if c.PopulationSize <= 0 {
		return &ConfigurationError{Field: "population_size", Reason: "must be positive"}
	}
	if c.Generations <= 0 {
		return &ConfigurationError{Field: "generations", Reason: "must be positive"}
	}
	if c.EndDate != nil && c.StartDate == nil {
		return &ConfigurationError{Field: "start_date", Reason: "is required when end_date is set"}
	}
	if c.StartDate != nil && c.EndDate == nil && c.HorizonDays == 0 {
		return &ConfigurationError{Field: "end_date", Reason: "or horizon_days is required when start_date is set"}
	}
	if c.Horizon() <= 0 {
		return &ConfigurationError{Field: "horizon_days", Reason: "must be positive"}
	}
	if c.TargetBalance.LessThan(c.MinimumBalance) {
		return &ConfigurationError{Field: "target_balance", Reason: "below minimum balance, no feasible schedule"}
	}
	if c.StartingBalance.LessThan(c.MinimumBalance) {
		return &ConfigurationError{Field: "starting_balance", Reason: "below minimum balance"}
	}
	if c.AnnualRate.IsNegative() {
		return &ConfigurationError{Field: "annual_rate", Reason: "must not be negative"}
	}
	if c.MaxDailyAmount.IsNegative() {
		return &ConfigurationError{Field: "max_daily_amount", Reason: "must not be negative"}
	}
	return nil
}
