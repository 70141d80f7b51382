package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/Dan9191/balance-planner/internal/config"
	"github.com/Dan9191/balance-planner/internal/models"
	"github.com/Dan9191/balance-planner/internal/optimizer"
	"github.com/Dan9191/balance-planner/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeRates struct {
	rate      decimal.Decimal
	err       error
	refreshes int
}

func (f *fakeRates) GetKeyRate(context.Context) (decimal.Decimal, error) { return f.rate, f.err }

func (f *fakeRates) Refresh(context.Context) (decimal.Decimal, error) {
	f.refreshes++
	return f.rate, f.err
}

type fakeNotifier struct {
	sent chan *models.RunSummary
}

func (f *fakeNotifier) SendRunSummary(run *models.RunSummary, _ []string) error {
	f.sent <- run
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	return &config.Config{
		JWTSecret:            "test-secret",
		TokenExpiry:          time.Hour,
		OperatorUsername:     "planner",
		OperatorPasswordHash: string(hash),
		SessionTTL:           time.Hour,
	}
}

func newTestService(t *testing.T, rates KeyRateSource, notifier Notifier) (*Service, *repository.MemoryRunRepository) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	runs := repository.NewMemoryRunRepository()
	return NewService(runs, rates, notifier, optimizer.New(optimizer.DefaultOptions(), log), log, testConfig(t)), runs
}

func smallConfig() models.OptimizationConfig {
	return models.OptimizationConfig{
		StartingBalance: decimal.NewFromInt(100),
		TargetBalance:   decimal.NewFromInt(200),
		MinimumBalance:  decimal.Zero,
		PopulationSize:  30,
		Generations:     40,
		HorizonDays:     10,
		Seed:            1,
	}
}

func TestLoginAndParseToken(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)

	token, err := svc.Login(models.Credentials{Username: "planner", Password: "s3cret"})
	require.NoError(t, err)

	sessionID, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.NotEmpty(t, sessionID)

	other, err := svc.Login(models.Credentials{Username: "planner", Password: "s3cret"})
	require.NoError(t, err)
	otherID, err := svc.ParseToken(other)
	require.NoError(t, err)
	assert.NotEqual(t, sessionID, otherID)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)

	_, err := svc.Login(models.Credentials{Username: "planner", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(models.Credentials{Username: "someone", Password: "s3cret"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestParseToken_Rejects(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	token, err := svc.Login(models.Credentials{Username: "planner", Password: "s3cret"})
	require.NoError(t, err)

	_, err = svc.ParseToken(token + "x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestOptimize_RecordsHistory(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	ctx := context.Background()

	res, err := svc.Optimize(ctx, "s1", smallConfig())
	require.NoError(t, err)

	_, err = svc.RecordEdit("s1", models.EditRequest{Day: 4, Field: string(models.FieldBalance), Value: ptr(decimal.NewFromInt(150))})
	require.NoError(t, err)
	regen, err := svc.Regenerate(ctx, "s1")
	require.NoError(t, err)
	day4, _ := regen.Day(4)
	assert.InDelta(t, 150, day4.Balance.InexactFloat64(), 0.01)

	runs, err := svc.History(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, models.RunKindRegenerate, runs[0].Kind)
	assert.Equal(t, 1, runs[0].EditCount)
	assert.Equal(t, regen.RunID, runs[0].ID)
	assert.Equal(t, res.RunID, runs[1].ID)
	assert.Equal(t, 0, runs[1].EditCount)

	other, err := svc.History(ctx, "s2", 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSessionsAreIsolated(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)

	_, err := svc.Optimize(context.Background(), "s1", smallConfig())
	require.NoError(t, err)

	_, err = svc.Current("s2")
	assert.ErrorIs(t, err, models.ErrNoSchedule)
	_, err = svc.LastConfig("s2")
	assert.ErrorIs(t, err, models.ErrNoConfig)
	_, err = svc.Current("s1")
	assert.NoError(t, err)
}

func TestOptimize_UsesKeyRate(t *testing.T) {
	rates := &fakeRates{rate: decimal.RequireFromString("21.5")}
	svc, _ := newTestService(t, rates, nil)
	cfg := smallConfig()
	cfg.UseKeyRate = true
	cfg.AnnualRate = decimal.NewFromInt(3)

	_, err := svc.Optimize(context.Background(), "s1", cfg)
	require.NoError(t, err)

	last, err := svc.LastConfig("s1")
	require.NoError(t, err)
	assert.Equal(t, "21.5", last.AnnualRate.String())

	require.NoError(t, svc.RefreshKeyRate(context.Background()))
	assert.Equal(t, 1, rates.refreshes)
}

func TestOptimize_KeyRateUnavailable(t *testing.T) {
	cfg := smallConfig()
	cfg.UseKeyRate = true

	svc, _ := newTestService(t, nil, nil)
	_, err := svc.Optimize(context.Background(), "s1", cfg)
	assert.True(t, models.IsConfigurationError(err))

	svc, _ = newTestService(t, &fakeRates{err: errors.New("cbr down")}, nil)
	_, err = svc.Optimize(context.Background(), "s1", cfg)
	assert.ErrorContains(t, err, "cbr down")
	_, err = svc.Current("s1")
	assert.ErrorIs(t, err, models.ErrNoSchedule)
}

func TestOptimize_NotifiesInfeasibleRuns(t *testing.T) {
	notifier := &fakeNotifier{sent: make(chan *models.RunSummary, 1)}
	svc, _ := newTestService(t, nil, notifier)
	cfg := smallConfig()
	cfg.StartingBalance = decimal.Zero
	cfg.TargetBalance = decimal.NewFromInt(1000)
	cfg.MaxDailyAmount = decimal.NewFromInt(1)

	res, err := svc.Optimize(context.Background(), "s1", cfg)
	require.NoError(t, err)
	require.False(t, res.Feasible)

	select {
	case run := <-notifier.sent:
		assert.Equal(t, res.RunID, run.ID)
		assert.False(t, run.Feasible)
	case <-time.After(5 * time.Second):
		t.Fatal("run summary was not sent")
	}
}

func TestEvictIdle(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, err := svc.Optimize(context.Background(), "old", smallConfig())
	require.NoError(t, err)
	now = now.Add(50 * time.Minute)
	svc.Progress("fresh")

	now = now.Add(20 * time.Minute)
	assert.Equal(t, 1, svc.EvictIdle())

	_, err = svc.Current("old")
	assert.ErrorIs(t, err, models.ErrNoSchedule)
}

func TestCancel_NoRun(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	assert.True(t, models.IsStateError(svc.Cancel("s1")))
}

func ptr(v decimal.Decimal) *decimal.Decimal { return &v }

func TestRecordEdit_RequiresValue(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	_, err := svc.Optimize(context.Background(), "s1", smallConfig())
	require.NoError(t, err)

	_, err = svc.RecordEdit("s1", models.EditRequest{Day: 2, Field: string(models.FieldPayment)})
	assert.True(t, models.IsConfigurationError(err))
	assert.Empty(t, svc.Edits("s1"))
}
