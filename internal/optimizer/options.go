package optimizer

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Weights scale the terms of the fitness function
type Weights struct {
	Target         float64 `yaml:"target"`
	FloorViolation float64 `yaml:"floor_violation"`
	FloorShortfall float64 `yaml:"floor_shortfall"`
	Edit           float64 `yaml:"edit"`
	Effort         float64 `yaml:"effort"`
}

// Options tune the genetic search. They do not change what a valid schedule is.
type Options struct {
	MutationRate   float64 `yaml:"mutation_rate"`
	MutationScale  float64 `yaml:"mutation_scale"`
	CrossoverRate  float64 `yaml:"crossover_rate"`
	TournamentSize int     `yaml:"tournament_size"`
	Elitism        int     `yaml:"elitism"`
	Workers        int     `yaml:"workers"`
	Epsilon        float64 `yaml:"epsilon"`
	LogEvery       int     `yaml:"log_every"`
	Weights        Weights `yaml:"weights"`
}

// DefaultOptions returns the tuning used when no file is configured
func DefaultOptions() Options {
	return Options{
		MutationRate:   0.1,
		MutationScale:  0.5,
		CrossoverRate:  0.8,
		TournamentSize: 3,
		Elitism:        2,
		Workers:        runtime.GOMAXPROCS(0),
		Epsilon:        1e-6,
		LogEvery:       50,
		Weights: Weights{
			Target:         1,
			FloorViolation: 1e6,
			FloorShortfall: 1e3,
			Edit:           1e6,
		},
	}
}

// LoadOptions reads a YAML tuning file over the defaults. An empty path returns the defaults.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	if path == "" {
		return opts, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("failed to read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("failed to parse tuning file: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// Validate rejects tuning values the search cannot run with
func (o Options) Validate() error {
	if o.MutationRate < 0 || o.MutationRate > 1 {
		return fmt.Errorf("mutation_rate must be within [0, 1], got %v", o.MutationRate)
	}
	if o.CrossoverRate < 0 || o.CrossoverRate > 1 {
		return fmt.Errorf("crossover_rate must be within [0, 1], got %v", o.CrossoverRate)
	}
	if o.MutationScale < 0 {
		return fmt.Errorf("mutation_scale must not be negative, got %v", o.MutationScale)
	}
	if o.TournamentSize < 1 {
		return fmt.Errorf("tournament_size must be at least 1, got %d", o.TournamentSize)
	}
	if o.Elitism < 0 {
		return fmt.Errorf("elitism must not be negative, got %d", o.Elitism)
	}
	if o.Epsilon < 0 {
		return fmt.Errorf("epsilon must not be negative, got %v", o.Epsilon)
	}
	return nil
}
