package optimizer

import (
	"math"
	"slices"

	"github.com/Dan9191/balance-planner/internal/schedule"
)

const (
	floorSlack = 1e-9
	lockSlack  = 1e-6
)

type evaluator struct {
	p     Problem
	w     Weights
	locks []schedule.Lock
}

func newEvaluator(p Problem, w Weights) *evaluator {
	return &evaluator{p: p, w: w, locks: slices.Collect(p.Locks.All())}
}

// fitness expands genes (repairing locked ones in place) and scores the schedule; 0 is a perfect match
func (e *evaluator) fitness(genes, balances []float64) float64 {
	final := e.p.Locks.Simulate(e.p.StartingBalance, e.p.Rate, genes, balances)

	dev := final - e.p.TargetBalance
	f := e.w.Target * dev * dev

	for d := 1; d <= e.p.Horizon; d++ {
		if b := balances[d]; b < e.p.MinimumBalance-floorSlack {
			short := e.p.MinimumBalance - b
			f += e.w.FloorViolation + e.w.FloorShortfall*short*short
		}
	}

	for _, l := range e.locks {
		interest := balances[l.Day-1] * e.p.Rate
		var got float64
		switch l.Kind {
		case schedule.LockPayment:
			got = genes[l.Day-1]
		case schedule.LockPrincipal:
			got = genes[l.Day-1] - interest
		case schedule.LockBalance:
			got = balances[l.Day]
		}
		if diff := math.Abs(got - l.Float()); diff > lockSlack {
			f += e.w.Edit * diff
		}
	}

	if e.w.Effort > 0 {
		for _, g := range genes {
			f += e.w.Effort * math.Abs(g)
		}
	}
	return f
}
