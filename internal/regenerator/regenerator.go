// Package regenerator owns one planning session: the last config, the stored edits and the published schedule.
package regenerator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Dan9191/balance-planner/internal/edits"
	"github.com/Dan9191/balance-planner/internal/models"
	"github.com/Dan9191/balance-planner/internal/optimizer"
	"github.com/Dan9191/balance-planner/internal/schedule"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	// floor checks allow for float noise carried into the closing payment
	floorTolerance  = decimal.New(1, -6)
	targetTolerance = decimal.NewFromFloat(schedule.EditTolerance)
	verifyTolerance = decimal.New(1, -8)
)

// Regenerator is the single entry point for a session. Only one run may be in flight at a time.
type Regenerator struct {
	opt  *optimizer.Optimizer
	log  *logrus.Logger
	seed func() uint64

	running atomic.Bool

	mu         sync.Mutex
	store      *edits.Store
	lastConfig *models.OptimizationConfig
	current    *models.ScheduleResult
	genes      []float64
	progress   models.Progress
	cancel     context.CancelFunc
}

// New creates an empty session
func New(opt *optimizer.Optimizer, log *logrus.Logger) *Regenerator {
	return &Regenerator{
		opt:   opt,
		log:   log,
		seed:  rand.Uint64,
		store: edits.NewStore(),
	}
}

// RunOptimization runs a fresh search with no edits pinned. Stored edits are kept for a later regeneration, so a
// config whose horizon no longer covers them is rejected until they are cleared.
func (r *Regenerator) RunOptimization(ctx context.Context, cfg models.OptimizationConfig) (*models.ScheduleResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !r.running.CompareAndSwap(false, true) {
		return nil, models.ErrBusy
	}
	defer r.running.Store(false)

	r.mu.Lock()
	err := r.checkEditsWithin(cfg.Horizon())
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if cfg.Seed == 0 {
		cfg.Seed = r.seed()
	}
	r.log.WithFields(logrus.Fields{
		"starting_balance": cfg.StartingBalance.String(),
		"target_balance":   cfg.TargetBalance.String(),
		"horizon":          cfg.Horizon(),
		"seed":             cfg.Seed,
	}).Info("Running optimization")

	res, genes, err := r.run(ctx, models.RunKindOptimize, cfg, schedule.NewLockSet(cfg.Horizon()), nil)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastConfig = &cfg
	r.current = res
	r.genes = genes
	return res, nil
}

// RegenerateWithEdits re-runs the last config with every stored edit pinned. Each edit reappears in the
// returned schedule within one cent.
func (r *Regenerator) RegenerateWithEdits(ctx context.Context) (*models.ScheduleResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, models.ErrBusy
	}
	defer r.running.Store(false)

	r.mu.Lock()
	if r.lastConfig == nil {
		r.mu.Unlock()
		return nil, models.ErrNoConfig
	}
	cfg := *r.lastConfig
	cells := slices.Collect(r.store.All())
	r.mu.Unlock()

	locks, err := schedule.ResolveLocks(slices.Values(cells), cfg.StartingBalance, cfg.PeriodicRate(), cfg.Horizon())
	if err != nil {
		return nil, err
	}
	r.log.WithFields(logrus.Fields{"edits": len(cells), "locks": locks.Len(), "seed": cfg.Seed}).Info("Regenerating with edits")

	res, genes, err := r.run(ctx, models.RunKindRegenerate, cfg, locks, cells)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = res
	r.genes = genes
	return res, nil
}

// RecordEdit stores a user override of one cell and re-expands the current schedule around it.
// The original value is taken from the current schedule the first time the cell is edited.
func (r *Regenerator) RecordEdit(day int, field models.Field, value decimal.Decimal) (models.EditedCell, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// checked under mu: a run claims the flag before it snapshots the store
	if r.running.Load() {
		return models.EditedCell{}, models.ErrBusy
	}

	if r.current == nil || r.lastConfig == nil {
		return models.EditedCell{}, models.ErrNoSchedule
	}
	cfg := *r.lastConfig
	row, ok := r.current.Day(day)
	if !ok {
		return models.EditedCell{}, &models.EditConflictError{Day: day, Field: field, Reason: fmt.Sprintf("outside the %d-day schedule", len(r.current.Days))}
	}
	if _, err := models.ParseField(string(field)); err != nil {
		return models.EditedCell{}, &models.EditConflictError{Day: day, Field: field, Reason: "field is not editable"}
	}

	original := row.Value(field)
	if prev, ok := r.store.Get(day, field); ok {
		original = prev.OriginalValue
	}
	candidate := models.EditedCell{Day: day, Field: field, OriginalValue: original, NewValue: value}

	cells := slices.DeleteFunc(slices.Collect(r.store.All()), func(c models.EditedCell) bool {
		return c.Day == day && c.Field == field
	})
	cells = append(cells, candidate)
	slices.SortStableFunc(cells, func(a, b models.EditedCell) int { return a.Day - b.Day })

	rate := cfg.PeriodicRate()
	locks, err := schedule.ResolveLocks(slices.Values(cells), cfg.StartingBalance, rate, cfg.Horizon())
	if err != nil {
		return models.EditedCell{}, err
	}
	days := schedule.Expand(cfg.StartingBalance, rate, r.genes, locks)
	for l := range locks.All() {
		if l.SourceDay != day || l.Source != field {
			continue
		}
		if b := days[l.Day-1].Balance; b.LessThan(cfg.MinimumBalance.Sub(floorTolerance)) {
			return models.EditedCell{}, &models.EditConflictError{
				Day:    day,
				Field:  field,
				Reason: fmt.Sprintf("balance on day %d would be %s, below the minimum %s", l.Day, b.StringFixed(2), cfg.MinimumBalance.StringFixed(2)),
			}
		}
	}

	cell := r.store.RecordEdit(day, field, original, value)
	r.current = r.result(r.current.RunID, cfg, days, r.current.Fitness, r.current.Generations, locks)
	r.log.WithFields(logrus.Fields{"day": day, "field": field, "value": value.String()}).Info("Edit recorded")
	return cell, nil
}

// checkEditsWithin reports stored edits past the last day of a horizon. Callers hold mu.
func (r *Regenerator) checkEditsWithin(horizon int) error {
	var outside []string
	for c := range r.store.All() {
		if c.Day > horizon {
			outside = append(outside, c.Key())
		}
	}
	if len(outside) == 0 {
		return nil
	}
	return &models.ConfigurationError{
		Field:  "horizon_days",
		Reason: fmt.Sprintf("of %d excludes stored edits %s; clear them first", horizon, strings.Join(outside, ", ")),
	}
}

// ClearEdits drops every stored edit
func (r *Regenerator) ClearEdits() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store.Clear()
}

// EditedCells returns the stored edits in day order
func (r *Regenerator) EditedCells() []models.EditedCell {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Collect(r.store.All())
}

// LastOptimizationConfig returns the config of the last optimization, if any
func (r *Regenerator) LastOptimizationConfig() (models.OptimizationConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastConfig == nil {
		return models.OptimizationConfig{}, false
	}
	return *r.lastConfig, true
}

// Current returns the last completed schedule, nil before the first run
func (r *Regenerator) Current() *models.ScheduleResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Progress returns the state of the active or last run
func (r *Regenerator) Progress() models.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.progress
	p.Running = r.running.Load()
	return p
}

// Running reports whether a run is in flight
func (r *Regenerator) Running() bool {
	return r.running.Load()
}

// Cancel aborts the active run. The previously completed schedule stays current.
func (r *Regenerator) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return false
	}
	r.cancel()
	return true
}

func (r *Regenerator) run(ctx context.Context, kind models.RunKind, cfg models.OptimizationConfig, locks *schedule.LockSet, cells []models.EditedCell) (*models.ScheduleResult, []float64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	r.cancel = cancel
	r.progress = models.Progress{Kind: kind, Generations: cfg.Generations}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.cancel = nil
		r.mu.Unlock()
	}()

	start := cfg.StartingBalance
	rate := cfg.PeriodicRate()
	problem := optimizer.Problem{
		StartingBalance: start.InexactFloat64(),
		TargetBalance:   cfg.TargetBalance.InexactFloat64(),
		MinimumBalance:  cfg.MinimumBalance.InexactFloat64(),
		Rate:            rate.InexactFloat64(),
		Horizon:         cfg.Horizon(),
		PopulationSize:  cfg.PopulationSize,
		Generations:     cfg.Generations,
		Bound:           cfg.MaxDailyAmount.InexactFloat64(),
		Locks:           locks,
		Seed:            cfg.Seed,
	}

	out, err := r.opt.Run(ctx, problem, func(s optimizer.GenerationStats) {
		r.mu.Lock()
		r.progress.Generation = s.Generation
		r.progress.BestFitness = s.BestSoFar
		r.mu.Unlock()
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%s run failed: %w", kind, err)
	}

	days := schedule.Expand(start, rate, out.Best, locks)
	if err := schedule.Verify(days, start, rate, verifyTolerance); err != nil {
		return nil, nil, fmt.Errorf("%s produced an inconsistent schedule: %w", kind, err)
	}
	if err := schedule.CheckEdits(days, cells); err != nil {
		return nil, nil, fmt.Errorf("%s lost an edit: %w", kind, err)
	}

	res := r.result(uuid.New(), cfg, days, out.Fitness, out.Generations, locks)
	r.log.WithFields(logrus.Fields{
		"run_id":        res.RunID,
		"kind":          kind,
		"fitness":       res.Fitness,
		"feasible":      res.Feasible,
		"final_balance": res.FinalBalance.StringFixed(2),
		"generations":   res.Generations,
	}).Info("Run completed")
	return res, out.Best, nil
}

// result assembles a ScheduleResult and works out feasibility and warnings
func (r *Regenerator) result(id uuid.UUID, cfg models.OptimizationConfig, days []models.DayRecord, fitness float64, generations int, locks *schedule.LockSet) *models.ScheduleResult {
	for i := range days {
		days[i].Date = cfg.DateFor(days[i].Day)
	}
	final := schedule.Final(days, cfg.StartingBalance)
	res := &models.ScheduleResult{
		RunID:        id,
		Days:         days,
		FinalBalance: final,
		Fitness:      fitness,
		Feasible:     true,
		Generations:  generations,
		Seed:         cfg.Seed,
	}

	floor := cfg.MinimumBalance.Sub(floorTolerance)
	for _, d := range days {
		if d.Balance.LessThan(floor) {
			res.Feasible = false
			res.Warnings = append(res.Warnings, fmt.Sprintf("balance on day %d is %s, below the minimum %s", d.Day, d.Balance.StringFixed(2), cfg.MinimumBalance.StringFixed(2)))
			break
		}
	}
	if gap := final.Sub(cfg.TargetBalance).Abs(); gap.GreaterThan(targetTolerance) {
		res.Feasible = false
		res.Warnings = append(res.Warnings, fmt.Sprintf("final balance %s misses the target %s by %s", final.StringFixed(2), cfg.TargetBalance.StringFixed(2), gap.StringFixed(2)))
	}

	capacity := cfg.MaxDailyAmount
	if !capacity.IsPositive() {
		capacity = decimal.NewFromFloat(optimizer.DefaultBound(cfg.StartingBalance.InexactFloat64(), cfg.TargetBalance.InexactFloat64()))
	}
	pressure := schedule.AnalyzePressure(locks, cfg.StartingBalance, cfg.TargetBalance, cfg.PeriodicRate(), capacity)
	res.Pressure = &pressure
	if pressure.Critical {
		res.Warnings = append(res.Warnings, fmt.Sprintf("after day %d the target needs %s per day, more than the %s a day can move", pressure.AnchorDay, pressure.RequiredPerDay.StringFixed(2), pressure.Capacity.StringFixed(2)))
	}
	return res
}
