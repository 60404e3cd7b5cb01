package harvest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/spigell/talent-screener/internal/condition"
	"github.com/spigell/talent-screener/internal/diagnosis"
	"github.com/spigell/talent-screener/internal/logger"
	"github.com/spigell/talent-screener/internal/oracle"
	"github.com/spigell/talent-screener/internal/report"
	"github.com/spigell/talent-screener/internal/requirement"
)

const defaultWorkers = 4

// JobStore fetches job requirements by id.
type JobStore interface {
	Get(ctx context.Context, id string) (requirement.Job, error)
}

type Compiler interface {
	Compile(job requirement.Job) ([]condition.Condition, error)
}

type Diagnoser interface {
	Diagnose(ctx context.Context, who oracle.Identity, conds []condition.Condition) (diagnosis.Result, error)
}

// Stats summarises a batch.
type Stats struct {
	RunID       string
	Total       int
	Satisfied   int
	Unsatisfied int
	Errored     int
}

// Runner diagnoses every pair of a batch and records the outcomes.
type Runner struct {
	Jobs      JobStore
	Compiler  Compiler
	Diagnoser Diagnoser
	Sink      report.Sink
	// Index holds the candidate documents.
	Index   string
	Workers int
	Logger  *zap.Logger
	Now     func() time.Time
}

// Run diagnoses pairs with a fresh run id. A pair that cannot be diagnosed is recorded with its
// error and the batch goes on, unless the oracle is unavailable or ctx is done.
func (r *Runner) Run(ctx context.Context, pairs []Pair) (Stats, error) {
	if r.Jobs == nil || r.Compiler == nil || r.Diagnoser == nil || r.Sink == nil {
		return Stats{}, fmt.Errorf("runner: jobs, compiler, diagnoser and sink are required")
	}

	stats := Stats{RunID: uuid.NewString(), Total: len(pairs)}
	log := logger.WithFields(r.Logger, zap.String(logger.FieldRunID, stats.RunID))
	now := r.Now
	if now == nil {
		now = time.Now
	}
	workers := r.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	log.Info("starting the batch", zap.Int("pairs", len(pairs)), zap.Int("workers", workers))

	cache := &jobCache{jobs: r.Jobs, compiler: r.Compiler, conds: make(map[string]compiled)}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, p := range pairs {
		p := p
		g.Go(func() error {
			who := oracle.Identity{Index: r.Index, ID: p.CandidateID}

			res, err := r.diagnose(gctx, cache, p.JobID, who)
			if err != nil && aborts(gctx, err) {
				return fmt.Errorf("pair %s: %w", p, err)
			}
			if err != nil {
				logger.WithDiagnosisFields(log, r.Index, p.CandidateID, p.JobID).
					Debug("diagnosis failed", zap.Error(err))
			}

			o := report.NewOutcome(stats.RunID, p.JobID, who, res, err, now())
			o.Interviewed = p.Interviewed
			if err := r.Sink.Record(gctx, o); err != nil {
				return fmt.Errorf("record %s: %w", p, err)
			}

			mu.Lock()
			defer mu.Unlock()
			switch {
			case o.Errored():
				stats.Errored++
			case o.Satisfied:
				stats.Satisfied++
			default:
				stats.Unsatisfied++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("batch aborted", zap.Error(err))
		return stats, err
	}

	log.Info("batch finished",
		zap.Int("total", stats.Total),
		zap.Int("satisfied", stats.Satisfied),
		zap.Int("unsatisfied", stats.Unsatisfied),
		zap.Int("errored", stats.Errored),
	)
	return stats, nil
}

func (r *Runner) diagnose(ctx context.Context, cache *jobCache, jobID string, who oracle.Identity) (diagnosis.Result, error) {
	conds, err := cache.get(ctx, jobID)
	if err != nil {
		return diagnosis.Result{}, err
	}
	return r.Diagnoser.Diagnose(ctx, who, conds)
}

// aborts tells whether err is fatal for the whole batch.
func aborts(ctx context.Context, err error) bool {
	return errors.Is(err, oracle.ErrUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		ctx.Err() != nil
}

type compiled struct {
	conds []condition.Condition
	err   error
}

// jobCache fetches and compiles every job once per batch.
type jobCache struct {
	jobs     JobStore
	compiler Compiler

	group singleflight.Group
	mu    sync.Mutex
	conds map[string]compiled
}

func (c *jobCache) get(ctx context.Context, id string) ([]condition.Condition, error) {
	if hit, ok := c.load(id); ok {
		return hit.conds, hit.err
	}

	v, _, _ := c.group.Do(id, func() (any, error) {
		if hit, ok := c.load(id); ok {
			return hit, nil
		}

		job, err := c.jobs.Get(ctx, id)
		if err != nil {
			hit := compiled{err: fmt.Errorf("get job %s: %w", id, err)}
			// transient failures are not remembered
			if !aborts(ctx, err) {
				c.store(id, hit)
			}
			return hit, nil
		}

		conds, err := c.compiler.Compile(job)
		hit := compiled{conds: conds, err: err}
		c.store(id, hit)
		return hit, nil
	})

	hit := v.(compiled)
	return hit.conds, hit.err
}

func (c *jobCache) load(id string) (compiled, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hit, ok := c.conds[id]
	return hit, ok
}

func (c *jobCache) store(id string, hit compiled) {
	c.mu.Lock()
	c.conds[id] = hit
	c.mu.Unlock()
}
