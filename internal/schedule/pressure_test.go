package schedule

import (
	"slices"
	"testing"

	"github.com/Dan9191/balance-planner/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzePressure_NoLocks(t *testing.T) {
	p := AnalyzePressure(NewLockSet(30), d("90.50"), d("490.50"), decimal.Zero, decimal.Zero)

	assert.Zero(t, p.AnchorDay)
	assert.Equal(t, 30, p.FreeDays)
	assert.True(t, p.RequiredPerDay.Equal(d("13.33")))
	assert.False(t, p.Critical)
}

func TestAnalyzePressure_CriticalAfterLowBalanceEdit(t *testing.T) {
	edits := []models.EditedCell{cell(17, models.FieldBalance, "10")}
	locks, err := ResolveLocks(slices.Values(edits), d("90.50"), decimal.Zero, 30)
	require.NoError(t, err)

	p := AnalyzePressure(locks, d("90.50"), d("1705.49"), decimal.Zero, d("86.50"))

	assert.Equal(t, 17, p.AnchorDay)
	assert.Equal(t, 13, p.FreeDays)
	assert.True(t, p.RequiredPerDay.Equal(d("130.42")))
	assert.True(t, p.Critical)
}

func TestAnalyzePressure_AnchorOnLastDay(t *testing.T) {
	locks, err := ResolveLocks(slices.Values([]models.EditedCell{cell(5, models.FieldBalance, "100")}), d("0"), decimal.Zero, 5)
	require.NoError(t, err)

	assert.True(t, AnalyzePressure(locks, d("0"), d("200"), decimal.Zero, decimal.Zero).Critical)
	assert.False(t, AnalyzePressure(locks, d("0"), d("100"), decimal.Zero, decimal.Zero).Critical)
}

func TestAnalyzePressure_PinnedPaymentClosesGap(t *testing.T) {
	edits := []models.EditedCell{cell(1, models.FieldPayment, "-400")}
	locks, err := ResolveLocks(slices.Values(edits), d("90.50"), decimal.Zero, 30)
	require.NoError(t, err)

	p := AnalyzePressure(locks, d("90.50"), d("490.50"), decimal.Zero, d("5"))

	assert.Zero(t, p.AnchorDay)
	assert.Equal(t, 29, p.FreeDays)
	assert.True(t, p.RequiredPerDay.IsZero(), "got %s", p.RequiredPerDay)
	assert.False(t, p.Critical)
}

func TestAnalyzePressure_PinnedDaysAfterAnchor(t *testing.T) {
	edits := []models.EditedCell{
		cell(10, models.FieldBalance, "100"),
		cell(12, models.FieldPayment, "50"),
		cell(14, models.FieldPrincipal, "30"),
	}
	locks, err := ResolveLocks(slices.Values(edits), d("0"), decimal.Zero, 20)
	require.NoError(t, err)

	// 100 - 50 - 30 leaves 20; reaching 100 needs 80 over 8 free days
	p := AnalyzePressure(locks, d("0"), d("100"), decimal.Zero, d("9"))

	assert.Equal(t, 10, p.AnchorDay)
	assert.Equal(t, 8, p.FreeDays)
	assert.True(t, p.RequiredPerDay.Equal(d("10")), "got %s", p.RequiredPerDay)
	assert.True(t, p.Critical)
}

func TestAnalyzePressure_PinnedPaymentWithInterest(t *testing.T) {
	rate := d("0.01")
	edits := []models.EditedCell{cell(1, models.FieldPayment, "10")}
	locks, err := ResolveLocks(slices.Values(edits), d("100"), rate, 2)
	require.NoError(t, err)

	// day 1: 100 + 1 - 10 = 91; day 2 free: 91 + 0.91 = 91.91
	p := AnalyzePressure(locks, d("100"), d("91.91"), rate, decimal.Zero)

	assert.Equal(t, 1, p.FreeDays)
	assert.True(t, p.RequiredPerDay.IsZero(), "got %s", p.RequiredPerDay)
}
