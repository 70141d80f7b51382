package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/Dan9191/balance-planner/internal/models"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func summary(session string, kind models.RunKind) *models.RunSummary {
	return &models.RunSummary{
		ID:           uuid.New(),
		SessionID:    session,
		Kind:         kind,
		Config:       models.OptimizationConfig{PopulationSize: 100, Generations: 200, HorizonDays: 30, Seed: 42},
		Fitness:      0.25,
		Feasible:     true,
		FinalBalance: decimal.RequireFromString("490.50"),
		EditCount:    1,
		Generations:  200,
		Duration:     1500 * time.Millisecond,
	}
}

func TestMemoryRunRepository(t *testing.T) {
	repo := NewMemoryRunRepository()
	ctx := context.Background()

	first := summary("alice", models.RunKindOptimize)
	second := summary("alice", models.RunKindRegenerate)
	require.NoError(t, repo.SaveRun(ctx, first))
	require.NoError(t, repo.SaveRun(ctx, second))
	require.NoError(t, repo.SaveRun(ctx, summary("bob", models.RunKindOptimize)))
	assert.False(t, first.CreatedAt.IsZero())

	runs, err := repo.ListRuns(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, first.ID, runs[1].ID)

	runs, err = repo.ListRuns(ctx, "alice", 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	runs, err = repo.ListRuns(ctx, "carol", 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestPostgresRunRepository(t *testing.T) {
	conn := os.Getenv("TEST_DB_CONN")
	if conn == "" {
		t.Skip("TEST_DB_CONN not set")
	}
	db, err := sql.Open("postgres", conn)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	repo := NewPostgresRunRepository(db)
	require.NoError(t, repo.Migrate(ctx))

	session := uuid.NewString()
	run := summary(session, models.RunKindRegenerate)
	require.NoError(t, repo.SaveRun(ctx, run))

	runs, err := repo.ListRuns(ctx, session, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, models.RunKindRegenerate, runs[0].Kind)
	assert.True(t, runs[0].FinalBalance.Equal(run.FinalBalance))
	assert.Equal(t, run.Duration, runs[0].Duration)
	assert.Equal(t, uint64(42), runs[0].Config.Seed)
}
