package email

import (
	"io"
	"testing"
	"time"

	"github.com/Dan9191/balance-planner/internal/config"
	"github.com/Dan9191/balance-planner/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestRunSummary(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	s := NewSender(&config.Config{SenderEmail: "planner@example.com", NotifyEmail: "ops@example.com"}, log)

	run := &models.RunSummary{
		ID:        uuid.New(),
		SessionID: "alice",
		Kind:      models.RunKindRegenerate,
		Config: models.OptimizationConfig{
			StartingBalance: decimal.RequireFromString("90.5"),
			TargetBalance:   decimal.RequireFromString("490.5"),
			HorizonDays:     30,
		},
		FinalBalance: decimal.RequireFromString("480"),
		EditCount:    2,
		Generations:  200,
		Duration:     2 * time.Second,
		CreatedAt:    time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC),
	}

	e := s.runSummary(run, []string{"final balance 480.00 misses the target 490.50 by 10.50"})

	assert.Equal(t, "planner@example.com", e.From)
	assert.Equal(t, []string{"ops@example.com"}, e.To)
	assert.Equal(t, "Balance plan regenerate needs attention", e.Subject)
	body := string(e.Text)
	assert.Contains(t, body, "Target balance: 490.50")
	assert.Contains(t, body, "Final balance: 480.00")
	assert.Contains(t, body, "Horizon: 30 days")
	assert.Contains(t, body, "Edits pinned: 2")
	assert.Contains(t, body, "- final balance 480.00 misses")

	run.Feasible = true
	assert.Equal(t, "Balance plan regenerate completed", s.runSummary(run, nil).Subject)
}
