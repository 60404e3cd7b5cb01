package harvest

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/talent-screener/internal/logger"
	"github.com/spigell/talent-screener/internal/report"
)

type excludedJobsFilter struct {
	toggle
	jobs   map[string]struct{}
	logger *zap.Logger
}

// NewExcludedJobs drops pairs of the listed jobs.
func NewExcludedJobs(jobs []string, l *zap.Logger) Filter {
	set := make(map[string]struct{}, len(jobs))
	for _, j := range jobs {
		if j = strings.TrimSpace(j); j != "" {
			set[j] = struct{}{}
		}
	}
	return &excludedJobsFilter{jobs: set, logger: logger.WithFields(l)}
}

func (f *excludedJobsFilter) Name() string { return "excluded_jobs" }

func (f *excludedJobsFilter) Validate() error { return nil }

func (f *excludedJobsFilter) Apply(_ context.Context, pairs []Pair) ([]Pair, Step, error) {
	if len(f.jobs) == 0 {
		return pairs, newStep(len(pairs), pairs), nil
	}

	left := make([]Pair, 0, len(pairs))
	var excluded []string
	for _, p := range pairs {
		if _, ok := f.jobs[p.JobID]; ok {
			excluded = append(excluded, p.String())
			continue
		}
		left = append(left, p)
	}

	if len(excluded) > 0 {
		f.logger.Debug("excluding pairs by job",
			zap.Strings("excluded_pairs", excluded),
			zap.Int("pairs_left", len(left)),
		)
	}
	return left, newStep(len(pairs), left), nil
}

// DiagnosedLister reports the pairs that already have a stored outcome.
type DiagnosedLister interface {
	Diagnosed(ctx context.Context) (map[report.Key]struct{}, error)
}

type alreadyDiagnosedFilter struct {
	toggle
	store  DiagnosedLister
	force  bool
	logger *zap.Logger
}

// NewAlreadyDiagnosed drops pairs with a stored outcome, unless force is set.
func NewAlreadyDiagnosed(store DiagnosedLister, force bool, l *zap.Logger) Filter {
	return &alreadyDiagnosedFilter{store: store, force: force, logger: logger.WithFields(l)}
}

func (f *alreadyDiagnosedFilter) Name() string { return "already_diagnosed" }

func (f *alreadyDiagnosedFilter) Validate() error {
	if f.store == nil {
		return fmt.Errorf("results store is required")
	}
	return nil
}

func (f *alreadyDiagnosedFilter) Apply(ctx context.Context, pairs []Pair) ([]Pair, Step, error) {
	if f.force {
		f.logger.Info("keeping already diagnosed pairs", zap.String("reason", forceFlagSetMsg))
		return pairs, newStep(len(pairs), pairs), nil
	}

	done, err := f.store.Diagnosed(ctx)
	if err != nil {
		return nil, Step{}, fmt.Errorf("get diagnosed pairs: %w", err)
	}

	left := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		if _, ok := done[report.Key{JobID: p.JobID, CandidateID: p.CandidateID}]; ok {
			continue
		}
		left = append(left, p)
	}
	return left, newStep(len(pairs), left), nil
}

type duplicatesFilter struct {
	toggle
}

// NewDuplicates drops repeated pairs, keeping the first occurrence.
func NewDuplicates() Filter {
	return &duplicatesFilter{}
}

func (f *duplicatesFilter) Name() string { return "duplicates" }

func (f *duplicatesFilter) Validate() error { return nil }

func (f *duplicatesFilter) Apply(_ context.Context, pairs []Pair) ([]Pair, Step, error) {
	seen := make(map[report.Key]struct{}, len(pairs))
	left := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		k := report.Key{JobID: p.JobID, CandidateID: p.CandidateID}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		left = append(left, p)
	}
	return left, newStep(len(pairs), left), nil
}
