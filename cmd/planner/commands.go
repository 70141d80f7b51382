package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/Dan9191/balance-planner/internal/models"
	"github.com/Dan9191/balance-planner/internal/optimizer"
	"github.com/Dan9191/balance-planner/internal/regenerator"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type optimizeFlags struct {
	start       string
	target      string
	minimum     string
	rate        string
	maxDaily    string
	population  int
	generations int
	horizon     int
	seed        uint64
	edits       []string
	tuning      string
	jsonOutput  bool
	verbose     bool
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "planner",
		Short:         "Plan day-by-day balances with a genetic optimizer",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newOptimizeCmd())
	return root
}

func newOptimizeCmd() *cobra.Command {
	f := &optimizeFlags{}
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Compute a schedule, then regenerate it with any --edit values pinned",
		Example: `  planner optimize --start 90.50 --target 490.50 --horizon 30
  planner optimize --start 90.50 --target 490.50 --edit 10:balance=750 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOptimize(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.start, "start", "0", "starting balance")
	cmd.Flags().StringVar(&f.target, "target", "0", "target balance on the last day")
	cmd.Flags().StringVar(&f.minimum, "min", "0", "minimum balance allowed on any day")
	cmd.Flags().StringVar(&f.rate, "rate", "0", "annual interest rate in percent")
	cmd.Flags().StringVar(&f.maxDaily, "max-daily", "0", "largest payment on a free day, 0 for no limit")
	cmd.Flags().IntVar(&f.population, "population", 100, "population size")
	cmd.Flags().IntVar(&f.generations, "generations", 200, "generation budget")
	cmd.Flags().IntVar(&f.horizon, "horizon", models.DefaultHorizonDays, "number of days")
	cmd.Flags().Uint64Var(&f.seed, "seed", 0, "random seed, 0 picks one")
	cmd.Flags().StringArrayVar(&f.edits, "edit", nil, "pin a cell, as day:field=value (repeatable)")
	cmd.Flags().StringVar(&f.tuning, "tuning", "", "optimizer tuning YAML file")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "print the result as JSON")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "log optimizer progress to stderr")
	return cmd
}

func runOptimize(cmd *cobra.Command, f *optimizeFlags) error {
	cfg, err := f.config()
	if err != nil {
		return err
	}
	edits := make([]models.EditRequest, 0, len(f.edits))
	for _, raw := range f.edits {
		e, err := parseEdit(raw)
		if err != nil {
			return err
		}
		edits = append(edits, e)
	}
	opts, err := optimizer.LoadOptions(f.tuning)
	if err != nil {
		return err
	}

	log := logrus.New()
	log.SetOutput(cmd.ErrOrStderr())
	log.SetLevel(logrus.WarnLevel)
	if f.verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	ctx := cmd.Context()
	regen := regenerator.New(optimizer.New(opts, log), log)
	res, err := regen.RunOptimization(ctx, cfg)
	if err != nil {
		return err
	}
	if len(edits) > 0 {
		for _, e := range edits {
			if _, err := regen.RecordEdit(e.Day, models.Field(e.Field), *e.Value); err != nil {
				return err
			}
		}
		if res, err = regen.RegenerateWithEdits(ctx); err != nil {
			return err
		}
	}

	if f.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	return printSchedule(cmd.OutOrStdout(), res)
}

func (f *optimizeFlags) config() (models.OptimizationConfig, error) {
	cfg := models.OptimizationConfig{
		PopulationSize: f.population,
		Generations:    f.generations,
		HorizonDays:    f.horizon,
		Seed:           f.seed,
	}
	amounts := []struct {
		flag string
		raw  string
		dst  *decimal.Decimal
	}{
		{"start", f.start, &cfg.StartingBalance},
		{"target", f.target, &cfg.TargetBalance},
		{"min", f.minimum, &cfg.MinimumBalance},
		{"rate", f.rate, &cfg.AnnualRate},
		{"max-daily", f.maxDaily, &cfg.MaxDailyAmount},
	}
	for _, a := range amounts {
		v, err := decimal.NewFromString(a.raw)
		if err != nil {
			return cfg, fmt.Errorf("invalid --%s %q: %w", a.flag, a.raw, err)
		}
		*a.dst = v
	}
	return cfg, nil
}

// parseEdit reads "day:field=value"
func parseEdit(raw string) (models.EditRequest, error) {
	dayPart, rest, ok := strings.Cut(raw, ":")
	if !ok {
		return models.EditRequest{}, fmt.Errorf("invalid --edit %q: want day:field=value", raw)
	}
	fieldPart, valuePart, ok := strings.Cut(rest, "=")
	if !ok {
		return models.EditRequest{}, fmt.Errorf("invalid --edit %q: want day:field=value", raw)
	}
	day, err := strconv.Atoi(strings.TrimSpace(dayPart))
	if err != nil || day < 1 {
		return models.EditRequest{}, fmt.Errorf("invalid --edit %q: day must be a positive integer", raw)
	}
	field, err := models.ParseField(strings.TrimSpace(fieldPart))
	if err != nil {
		return models.EditRequest{}, fmt.Errorf("invalid --edit %q: %w", raw, err)
	}
	value, err := decimal.NewFromString(strings.TrimSpace(valuePart))
	if err != nil {
		return models.EditRequest{}, fmt.Errorf("invalid --edit %q: %w", raw, err)
	}
	return models.EditRequest{Day: day, Field: string(field), Value: &value}, nil
}

func printSchedule(w io.Writer, res *models.ScheduleResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Day\tPayment\tPrincipal\tInterest\tBalance\tPinned\t")
	for _, d := range res.Days {
		pinned := ""
		if d.Pinned {
			pinned = "*"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t\n", d.Day,
			d.Payment.StringFixed(2), d.Principal.StringFixed(2), d.Interest.StringFixed(2), d.Balance.StringFixed(2), pinned)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nFinal balance: %s  fitness: %.6g  generations: %d  seed: %d\n",
		res.FinalBalance.StringFixed(2), res.Fitness, res.Generations, res.Seed)
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	return nil
}
