package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DayRecord represents one row of the schedule
type DayRecord struct {
	Day          int             `json:"day"`
	Date         *time.Time      `json:"date,omitempty"`
	Payment      decimal.Decimal `json:"payment"`
	Principal    decimal.Decimal `json:"principal"`
	Interest     decimal.Decimal `json:"interest"`
	TotalPayment decimal.Decimal `json:"total_payment"`
	Balance      decimal.Decimal `json:"balance"`
	Pinned       bool            `json:"pinned,omitempty"`     // row carries a user edit
	DependsOn    int             `json:"depends_on,omitempty"` // nearest pinned day at or before this row
}

// Value returns the value of a single field of the row
func (r DayRecord) Value(f Field) decimal.Decimal {
	switch f {
	case FieldPayment:
		return r.Payment
	case FieldPrincipal:
		return r.Principal
	case FieldInterest:
		return r.Interest
	case FieldTotalPayment:
		return r.TotalPayment
	case FieldBalance:
		return r.Balance
	}
	return decimal.Zero
}

// Pressure reports whether the segment after the last balance anchor can still reach the target
type Pressure struct {
	AnchorDay      int             `json:"anchor_day"`
	FreeDays       int             `json:"free_days"`
	RequiredPerDay decimal.Decimal `json:"required_per_day"`
	Capacity       decimal.Decimal `json:"capacity"`
	Critical       bool            `json:"critical"`
}

// ScheduleResult is the outcome of an optimization or regeneration pass
type ScheduleResult struct {
	RunID        uuid.UUID       `json:"run_id"`
	Days         []DayRecord     `json:"days"`
	FinalBalance decimal.Decimal `json:"final_balance"`
	Fitness      float64         `json:"fitness"`
	Feasible     bool            `json:"feasible"`
	Generations  int             `json:"generations"`
	Seed         uint64          `json:"seed"`
	Pressure     *Pressure       `json:"pressure,omitempty"`
	Warnings     []string        `json:"warnings,omitempty"`
}

// Day returns the record for a 1-based day
func (s *ScheduleResult) Day(day int) (DayRecord, bool) {
	if s == nil || day < 1 || day > len(s.Days) {
		return DayRecord{}, false
	}
	return s.Days[day-1], true
}
