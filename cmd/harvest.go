package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/talent-screener/internal/elastic"
	"github.com/spigell/talent-screener/internal/harvest"
	"github.com/spigell/talent-screener/internal/report"
)

const (
	PromptExit                = "Exit"
	PromptReportByJob         = "Report by job"
	PromptOnlyUnsatisfied     = "Report unsatisfied candidates"
	PromptResultsToFile       = "Dump results to file"
	PromptAppendToExcludeFile = "Append all pairs to exclude file"
)

var errExit = errors.New("exit requested")

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Diagnose a batch of job and candidate pairs",
	Run: func(cmd *cobra.Command, _ []string) {
		runHarvest(cmd)
	},
}

func init() {
	rootCmd.AddCommand(harvestCmd)

	harvestCmd.Flags().StringSlice("pair", nil, "job:candidate pair to diagnose instead of reading the source database. Repeatable.")
	harvestCmd.Flags().BoolP("yes", "y", false, "do not show the interactive menu after the batch")
	harvestCmd.Flags().BoolP("force", "f", false, "diagnose pairs again even if already diagnosed")
	harvestCmd.Flags().StringSlice("skip-filter", nil, "name of a pair filter to disable. Repeatable.")
}

func runHarvest(cmd *cobra.Command) {
	ctx := context.Background()
	l, config := setup()

	es, err := newElastic(config.Elastic, l)
	if err != nil {
		l.Fatal("creating elasticsearch client", zap.Error(err))
	}

	engine, counting, err := newEngine(ctx, config, es, l)
	if err != nil {
		l.Fatal("creating diagnosis engine", zap.Error(err))
	}

	store, err := report.OpenStore(ctx, config.Harvest.Store)
	if err != nil {
		l.Fatal("opening results store", zap.Error(err), zap.String("path", config.Harvest.Store))
	}
	defer store.Close()

	pairs, err := getPairs(ctx, cmd, config)
	if err != nil {
		l.Fatal("getting pairs", zap.Error(err))
	}

	l.Info("getting pairs", zap.Int("count", len(pairs)))

	pairs, err = prepareFilters(cmd, config, store, l).Run(ctx, pairs)
	if err != nil {
		l.Fatal("filtering failed", zap.Error(err))
	}

	if len(pairs) == 0 {
		l.Info("exiting", zap.String("reason", "no pairs left after filters"))
		return
	}

	collector := &report.Collector{}
	runner := &harvest.Runner{
		Jobs:      elastic.NewJobs(es, config.Elastic.JobsIndex),
		Compiler:  newCompiler(config.Diagnosis),
		Diagnoser: engine,
		Sink:      report.Multi{store, report.NewLogSink(l), collector},
		Index:     config.Elastic.CandidatesIndex,
		Workers:   config.Harvest.Workers,
		Logger:    l,
	}

	stats, err := runner.Run(ctx, pairs)
	if err != nil {
		l.Fatal("harvest failed", zap.Error(err), zap.String("run_id", stats.RunID))
	}

	l.Info("oracle usage", zap.String("run_id", stats.RunID), zap.Int64("queries", counting.Calls()))

	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		return
	}

	prompt := promptui.Select{
		Label: fmt.Sprintf("Run %s finished. What next?", stats.RunID),
		Items: menuItems(config),
	}

	for {
		_, action, err := prompt.Run()
		if err != nil {
			l.Fatal("exiting", zap.Error(err))
		}

		if err := handleAction(action, l, config, collector.Outcomes(), pairs); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			l.Fatal("exiting", zap.Error(err))
		}
	}
}

func prepareFilters(cmd *cobra.Command, config *Config, store harvest.DiagnosedLister, l *zap.Logger) *harvest.Filters {
	force, _ := cmd.Flags().GetBool("force")
	steps := []harvest.Filter{
		harvest.NewDuplicates(),
		harvest.NewExcludedJobs(config.Harvest.ExcludeJobs, l),
		harvest.NewExcludeFile(config.Harvest.ExcludeFile, l),
		harvest.NewAlreadyDiagnosed(store, force, l),
	}

	skip, _ := cmd.Flags().GetStringSlice("skip-filter")
	for _, name := range skip {
		harvest.DisableByName(steps, name, "skip requested via flag")
	}
	return harvest.NewFilters(steps, l)
}

func menuItems(config *Config) []string {
	items := []string{PromptReportByJob, PromptOnlyUnsatisfied, PromptResultsToFile}
	if config.Harvest.ExcludeFile != "" {
		items = append(items, PromptAppendToExcludeFile)
	}
	return append(items, PromptExit)
}

func getPairs(ctx context.Context, cmd *cobra.Command, config *Config) ([]harvest.Pair, error) {
	raw, _ := cmd.Flags().GetStringSlice("pair")
	if len(raw) > 0 {
		src := make(harvest.StaticSource, 0, len(raw))
		for _, r := range raw {
			p, err := harvest.ParsePair(r)
			if err != nil {
				return nil, err
			}
			src = append(src, p)
		}
		return src.Pairs(ctx)
	}

	src, err := newSQLSource(ctx, config.Source)
	if err != nil {
		return nil, err
	}
	defer src.DB.Close()

	return src.Pairs(ctx)
}

func handleAction(action string, l *zap.Logger, config *Config, outcomes []report.Outcome, pairs []harvest.Pair) error {
	switch action {
	case PromptExit:
		l.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	case PromptReportByJob:
		pretty, _ := json.MarshalIndent(report.ByJob(outcomes), "", "  ")
		l.Info(string(pretty), zap.Int("outcomes count", len(outcomes)))
		return nil
	case PromptOnlyUnsatisfied:
		var unsatisfied []report.Outcome
		for _, o := range outcomes {
			if !o.Satisfied && !o.Errored() {
				unsatisfied = append(unsatisfied, o)
			}
		}
		pretty, _ := json.MarshalIndent(report.ByJob(unsatisfied), "", "  ")
		l.Info(string(pretty), zap.Int("outcomes count", len(unsatisfied)))
		return nil
	case PromptResultsToFile:
		filename, err := report.DumpToTmpFile(outcomes)
		if err != nil {
			return fmt.Errorf("dump results to file: %w", err)
		}
		l.Info("dumping result to file", zap.String("filename", filename))
		return nil
	case PromptAppendToExcludeFile:
		excluded, err := harvest.ReadExcludeFile(config.Harvest.ExcludeFile)
		if err != nil {
			return err
		}
		excluded.Append(harvest.ToExcluded(pairs, time.Now()))
		if err := excluded.ToFile(config.Harvest.ExcludeFile); err != nil {
			return err
		}
		l.Info("appended to exclude file", zap.String("filename", config.Harvest.ExcludeFile))
		return nil
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}
