// Package optimizer searches for daily payment sequences with a genetic algorithm.
package optimizer

import (
	"cmp"
	"context"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"

	"github.com/Dan9191/balance-planner/internal/schedule"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const pcgStream = 0x9e3779b97f4a7c15

// GenerationStats is published after every complete generation
type GenerationStats struct {
	Generation  int
	Generations int
	BestFitness float64   // best of this generation
	BestSoFar   float64   // best across all generations so far
	Best        []float64 // copy of the best-so-far chromosome
}

// Result is the best chromosome found by a run
type Result struct {
	Best        []float64
	Fitness     float64
	Generations int
	History     []float64 // best-so-far fitness per generation
	Converged   bool
}

// Optimizer runs genetic searches. It keeps no state between runs.
type Optimizer struct {
	opts Options
	log  *logrus.Logger
}

// New creates an optimizer
func New(opts Options, log *logrus.Logger) *Optimizer {
	return &Optimizer{opts: opts, log: log}
}

// Options returns the tuning the optimizer runs with
func (o *Optimizer) Options() Options {
	return o.opts
}

type run struct {
	opts    Options
	p       Problem
	rng     *rand.Rand
	ev      *evaluator
	free    []bool
	sigma   float64
	scratch []float64
	spare   []float64
}

// Run evolves a population for p.Generations generations, or until the best fitness drops below Epsilon.
//
// Control returns to the caller's goroutine scheduler between generations, where ctx is checked and
// onGeneration (if set) is called. No partial generation is ever reported.
func (o *Optimizer) Run(ctx context.Context, p Problem, onGeneration func(GenerationStats)) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if p.Locks == nil {
		p.Locks = schedule.NewLockSet(p.Horizon)
	}
	if p.Bound == 0 {
		p.Bound = DefaultBound(p.StartingBalance, p.TargetBalance)
	}

	r := &run{
		opts:    o.opts,
		p:       p,
		rng:     rand.New(rand.NewPCG(p.Seed, p.Seed^pcgStream)),
		ev:      newEvaluator(p, o.opts.Weights),
		free:    make([]bool, p.Horizon),
		sigma:   o.opts.MutationScale * p.scale(),
		scratch: make([]float64, p.Horizon+1),
		spare:   make([]float64, p.Horizon),
	}
	for d := 1; d <= p.Horizon; d++ {
		r.free[d-1] = p.Locks.Free(d)
	}

	log := o.log.WithFields(logrus.Fields{
		"horizon":     p.Horizon,
		"population":  p.PopulationSize,
		"generations": p.Generations,
		"locks":       p.Locks.Len(),
		"seed":        p.Seed,
	})
	log.Debug("Starting genetic search")

	pop := r.seed()
	fit := make([]float64, len(pop))
	r.evaluate(pop, fit)

	res := &Result{Fitness: math.Inf(1)}
	for gen := 1; gen <= p.Generations; gen++ {
		if gen > 1 {
			if err := ctx.Err(); err != nil {
				log.WithError(err).Debugf("Search cancelled before generation %d", gen)
				return nil, err
			}
			pop = r.breed(pop, fit)
			r.evaluate(pop, fit)
		}

		i := argmin(fit)
		fit[i] = r.settle(pop[i], fit[i])
		if fit[i] < res.Fitness {
			res.Fitness = fit[i]
			res.Best = slices.Clone(pop[i])
		}
		res.Generations = gen
		res.History = append(res.History, res.Fitness)

		if onGeneration != nil {
			onGeneration(GenerationStats{
				Generation:  gen,
				Generations: p.Generations,
				BestFitness: fit[i],
				BestSoFar:   res.Fitness,
				Best:        slices.Clone(res.Best),
			})
		}
		if o.opts.LogEvery > 0 && gen%o.opts.LogEvery == 0 {
			log.Debugf("Generation %d: best fitness %.6g", gen, res.Fitness)
		}
		if res.Fitness < o.opts.Epsilon {
			res.Converged = true
			break
		}
		runtime.Gosched()
	}

	log.WithField("fitness", res.Fitness).Debugf("Genetic search finished after %d generations", res.Generations)
	return res, nil
}

// seed builds the initial population around the per-segment means
func (r *run) seed() [][]float64 {
	means := r.p.seedMeans()
	scale := r.p.scale()
	pop := make([][]float64, r.p.PopulationSize)
	for i := range pop {
		genes := make([]float64, r.p.Horizon)
		for d, m := range means {
			sigma := 0.5 * math.Max(math.Abs(m), scale)
			genes[d] = r.clamp(m + r.rng.NormFloat64()*sigma)
		}
		// Locked genes get their pinned payment now, before anything is scored.
		r.p.Locks.Simulate(r.p.StartingBalance, r.p.Rate, genes, r.scratch)
		pop[i] = genes
	}
	return pop
}

// evaluate scores the whole population. Fitness is pure, so splitting it across workers keeps runs reproducible.
func (r *run) evaluate(pop [][]float64, fit []float64) {
	workers := min(r.opts.Workers, len(pop))
	if workers <= 1 {
		for i, genes := range pop {
			fit[i] = r.ev.fitness(genes, r.scratch)
		}
		return
	}

	var g errgroup.Group
	chunk := (len(pop) + workers - 1) / workers
	for lo := 0; lo < len(pop); lo += chunk {
		hi := min(lo+chunk, len(pop))
		g.Go(func() error {
			balances := make([]float64, r.p.Horizon+1)
			for i := lo; i < hi; i++ {
				fit[i] = r.ev.fitness(pop[i], balances)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// breed produces the next generation: elites first, then tournament children
func (r *run) breed(pop [][]float64, fit []float64) [][]float64 {
	order := make([]int, len(pop))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int { return cmp.Compare(fit[a], fit[b]) })

	next := make([][]float64, 0, len(pop))
	for _, i := range order[:min(r.opts.Elitism, len(order))] {
		next = append(next, slices.Clone(pop[i]))
	}
	for len(next) < len(pop) {
		a := pop[r.tournament(fit)]
		b := pop[r.tournament(fit)]
		var child []float64
		if r.rng.Float64() < r.opts.CrossoverRate {
			child = r.crossover(a, b)
		} else {
			child = slices.Clone(a)
		}
		r.mutate(child)
		next = append(next, child)
	}
	return next
}

func (r *run) tournament(fit []float64) int {
	best := r.rng.IntN(len(fit))
	for i := 1; i < r.opts.TournamentSize; i++ {
		if c := r.rng.IntN(len(fit)); fit[c] < fit[best] {
			best = c
		}
	}
	return best
}

// crossover mixes free genes gene by gene; locked genes come verbatim from the first parent
func (r *run) crossover(a, b []float64) []float64 {
	child := make([]float64, len(a))
	for i := range child {
		switch {
		case !r.free[i]:
			child[i] = a[i]
		case r.rng.IntN(2) == 0:
			child[i] = r.clamp(a[i] + r.rng.Float64()*(b[i]-a[i]))
		case r.rng.IntN(2) == 0:
			child[i] = a[i]
		default:
			child[i] = b[i]
		}
	}
	return child
}

func (r *run) mutate(genes []float64) {
	for i := range genes {
		if !r.free[i] || r.rng.Float64() >= r.opts.MutationRate {
			continue
		}
		genes[i] = r.clamp(genes[i] + r.rng.NormFloat64()*r.sigma)
	}
}

// settle moves the target gap onto the free days after the last balance anchor, the way a final instalment
// absorbs rounding: first spread evenly, then the remainder onto the last free day. Each step is kept only if it
// lowers fitness.
func (r *run) settle(genes []float64, fit float64) float64 {
	anchor := r.p.Locks.LastAnchor()
	last := 0
	weight := 0.0
	for d := r.p.Horizon; d > anchor; d-- {
		if !r.free[d-1] {
			continue
		}
		if last == 0 {
			last = d
		}
		weight += r.growth(d)
	}
	if last == 0 {
		return fit
	}

	try := func(adjust func(cand []float64, dev float64)) {
		dev := r.p.Locks.Simulate(r.p.StartingBalance, r.p.Rate, genes, r.scratch) - r.p.TargetBalance
		if math.Abs(dev) < floorSlack {
			return
		}
		copy(r.spare, genes)
		adjust(r.spare, dev)
		if f := r.ev.fitness(r.spare, r.scratch); f < fit {
			copy(genes, r.spare)
			fit = f
		}
	}

	try(func(cand []float64, dev float64) {
		delta := dev / weight
		for d := anchor + 1; d <= r.p.Horizon; d++ {
			if r.free[d-1] {
				cand[d-1] = r.clamp(cand[d-1] + delta)
			}
		}
	})
	try(func(cand []float64, dev float64) {
		cand[last-1] = r.bounded(cand[last-1] + dev/r.growth(last))
	})
	return fit
}

// growth is how much one unit paid on day d moves the final balance
func (r *run) growth(day int) float64 {
	return math.Pow(1+r.p.Rate, float64(r.p.Horizon-day))
}

// clamp keeps a free gene within the payment bound, in whole cents
func (r *run) clamp(v float64) float64 {
	return math.Round(r.bounded(v)*100) / 100
}

// bounded keeps a gene within the payment bound without rounding; the closing payment has to be exact
func (r *run) bounded(v float64) float64 {
	return math.Max(-r.p.Bound, math.Min(r.p.Bound, v))
}

func argmin(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] < v[best] {
			best = i
		}
	}
	return best
}
