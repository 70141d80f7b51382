package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/Dan9191/balance-planner/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseEdit(t *testing.T) {
	e, err := parseEdit("10:balance=750")
	require.NoError(t, err)
	assert.Equal(t, 10, e.Day)
	assert.Equal(t, string(models.FieldBalance), e.Field)
	assert.Equal(t, "750", e.Value.String())

	e, err = parseEdit(" 3 : totalPayment = -12.5 ")
	require.NoError(t, err)
	assert.Equal(t, string(models.FieldTotalPayment), e.Field)
	assert.Equal(t, "-12.5", e.Value.String())

	for _, bad := range []string{"balance=750", "10:balance", "x:balance=1", "0:balance=1", "4:fee=1", "4:payment=ten"} {
		_, err := parseEdit(bad)
		assert.Error(t, err, bad)
	}
}

func TestOptimizeCommand_JSONWithEdit(t *testing.T) {
	out, err := execute(t, "optimize",
		"--start", "90.50", "--target", "490.50",
		"--population", "60", "--generations", "80", "--seed", "42",
		"--edit", "10:balance=750", "--json")
	require.NoError(t, err)

	var res models.ScheduleResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Days, 30)
	day10, _ := res.Day(10)
	assert.InDelta(t, 750, day10.Balance.InexactFloat64(), 0.01)
	assert.Equal(t, uint64(42), res.Seed)
}

func TestOptimizeCommand_Table(t *testing.T) {
	out, err := execute(t, "optimize", "--start", "100", "--target", "160", "--horizon", "6",
		"--population", "20", "--generations", "30", "--seed", "7")
	require.NoError(t, err)

	assert.Contains(t, out, "Day")
	assert.Contains(t, out, "Balance")
	assert.Contains(t, out, "Final balance:")
	assert.Contains(t, out, "seed: 7")
}

func TestOptimizeCommand_Errors(t *testing.T) {
	_, err := execute(t, "optimize", "--start", "abc")
	assert.Error(t, err)

	_, err = execute(t, "optimize", "--target", "10", "--min", "20")
	assert.True(t, models.IsConfigurationError(err))

	_, err = execute(t, "optimize", "--target", "10", "--edit", "99:balance=1", "--population", "10", "--generations", "5")
	assert.True(t, models.IsEditConflict(err))
}
