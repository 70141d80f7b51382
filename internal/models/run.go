package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RunKind distinguishes fresh optimizations from regenerations
type RunKind string

const (
	RunKindOptimize   RunKind = "optimize"
	RunKindRegenerate RunKind = "regenerate"
)

// RunSummary is the audit record of a completed run
type RunSummary struct {
	ID           uuid.UUID          `json:"id"`
	SessionID    string             `json:"session_id"`
	Kind         RunKind            `json:"kind"`
	Config       OptimizationConfig `json:"config"`
	Fitness      float64            `json:"fitness"`
	Feasible     bool               `json:"feasible"`
	FinalBalance decimal.Decimal    `json:"final_balance"`
	EditCount    int                `json:"edit_count"`
	Generations  int                `json:"generations"`
	Duration     time.Duration      `json:"duration"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Progress is the latest observable state of a session's optimizer
type Progress struct {
	Running     bool    `json:"running"`
	Kind        RunKind `json:"kind,omitempty"`
	Generation  int     `json:"generation"`
	Generations int     `json:"generations"`
	BestFitness float64 `json:"best_fitness"`
}
