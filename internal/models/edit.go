package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Field names an editable column of the schedule
type Field string

const (
	FieldPayment      Field = "payment"
	FieldPrincipal    Field = "principal"
	FieldInterest     Field = "interest"
	FieldTotalPayment Field = "totalPayment"
	FieldBalance      Field = "balance"
)

// Fields lists the editable fields in column order
var Fields = []Field{FieldPayment, FieldPrincipal, FieldInterest, FieldTotalPayment, FieldBalance}

// ParseField converts a column name into a Field
func ParseField(s string) (Field, error) {
	for _, f := range Fields {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown field %q", s)
}

// Order is the column position of the field, used to break ties between edits on one day
func (f Field) Order() int {
	for i, x := range Fields {
		if x == f {
			return i
		}
	}
	return len(Fields)
}

// EditedCell is a user override of one schedule cell
type EditedCell struct {
	Day           int             `json:"day"`
	Field         Field           `json:"field"`
	OriginalValue decimal.Decimal `json:"original_value"`
	NewValue      decimal.Decimal `json:"new_value"`
	EditedAt      time.Time       `json:"edited_at"`
}

// Key returns the composite key used by the UI ("10-balance")
func (e EditedCell) Key() string {
	return fmt.Sprintf("%d-%s", e.Day, e.Field)
}

// EditRequest is the body of an edit submitted by a caller
type EditRequest struct {
	Day   int              `json:"day" validate:"required,gt=0"`
	Field string           `json:"field" validate:"required,oneof=payment principal interest totalPayment balance"`
	Value *decimal.Decimal `json:"value" validate:"required"`
}
