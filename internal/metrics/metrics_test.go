package metrics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, "error", Outcome(true, errors.New("boom")))
	assert.Equal(t, "feasible", Outcome(true, nil))
	assert.Equal(t, "infeasible", Outcome(false, nil))
}
