package optimizer

import (
	"fmt"
	"math"

	"github.com/Dan9191/balance-planner/internal/models"
	"github.com/Dan9191/balance-planner/internal/schedule"
)

// Problem is one search: where the balance starts, where it must end and what is pinned on the way
type Problem struct {
	StartingBalance float64
	TargetBalance   float64
	MinimumBalance  float64
	Rate            float64 // periodic (daily) rate as a fraction
	Horizon         int
	PopulationSize  int
	Generations     int
	Bound           float64 // largest payment magnitude on a free day, 0 for DefaultBound
	Locks           *schedule.LockSet
	Seed            uint64
}

// DefaultBound lets any single day move the balance across the whole start/target span
func DefaultBound(start, target float64) float64 {
	return math.Max(math.Max(math.Abs(target-start), math.Max(math.Abs(start), math.Abs(target))), 1)
}

func (p Problem) validate() error {
	if p.Horizon <= 0 {
		return &models.ConfigurationError{Field: "horizon_days", Reason: "must be positive"}
	}
	if p.PopulationSize <= 0 {
		return &models.ConfigurationError{Field: "population_size", Reason: "must be positive"}
	}
	if p.Generations <= 0 {
		return &models.ConfigurationError{Field: "generations", Reason: "must be positive"}
	}
	if p.Bound < 0 {
		return &models.ConfigurationError{Field: "max_daily_amount", Reason: "must not be negative"}
	}
	if p.Locks != nil && p.Locks.Horizon() != p.Horizon {
		return &models.ConfigurationError{
			Field:  "locks",
			Reason: fmt.Sprintf("cover %d days but the horizon is %d", p.Locks.Horizon(), p.Horizon),
		}
	}
	return nil
}

// seedMeans spreads the balance change of each anchored segment evenly over its days
func (p Problem) seedMeans() []float64 {
	means := make([]float64, p.Horizon)
	fill := func(from, to int, prevBalance, nextBalance float64) {
		if to <= from {
			return
		}
		m := (prevBalance - nextBalance) / float64(to-from)
		for d := from + 1; d <= to; d++ {
			means[d-1] = m
		}
	}

	prevDay, prevBalance := 0, p.StartingBalance
	for l := range p.Locks.All() {
		if l.Kind != schedule.LockBalance {
			continue
		}
		fill(prevDay, l.Day, prevBalance, l.Float())
		prevDay, prevBalance = l.Day, l.Float()
	}
	fill(prevDay, p.Horizon, prevBalance, p.TargetBalance)
	return means
}

// scale is the typical size of one day's payment
func (p Problem) scale() float64 {
	return math.Max(math.Abs(p.TargetBalance-p.StartingBalance)/float64(p.Horizon), 1)
}
