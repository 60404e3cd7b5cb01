// Package diagnosis decides whether a candidate satisfies a set of conditions and, when not,
// which conditions fail.
package diagnosis

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/talent-screener/internal/condition"
	"github.com/spigell/talent-screener/internal/logger"
	"github.com/spigell/talent-screener/internal/oracle"
)

const defaultConcurrency = 4

// ErrCandidateNotFound is returned when there is nothing to explain a failed match other than
// the candidate itself being absent from the index.
var ErrCandidateNotFound = errors.New("candidate not found")

// Result is the outcome of one diagnosis.
type Result struct {
	Satisfied bool
	// Unsatisfied lists the failing required conditions in input order. A failing AND group
	// may be replaced by its children.
	Unsatisfied []condition.Condition
	// Advisory lists the failing preferred conditions. They never affect Satisfied.
	Advisory []condition.Condition
	// Calls is the number of oracle queries issued.
	Calls int
}

// Tester answers whether the bound candidate matches all conds.
type Tester func(ctx context.Context, conds ...condition.Condition) (bool, error)

// Strategy explains a set of required conditions through a Tester.
type Strategy interface {
	Name() string
	Diagnose(ctx context.Context, test Tester, conds []condition.Condition) (Outcome, error)
}

// Outcome is what a strategy reports for the required conditions.
type Outcome struct {
	Satisfied   bool
	Unsatisfied []condition.Condition
}

// Engine runs diagnoses. It holds no per-call state and is safe for concurrent use.
type Engine struct {
	oracle      oracle.Oracle
	strategy    Strategy
	schema      condition.Schema
	concurrency int
	logger      *zap.Logger
}

type Option func(*Engine)

func WithStrategy(s Strategy) Option {
	return func(e *Engine) {
		if s != nil {
			e.strategy = s
		}
	}
}

func WithSchema(s condition.Schema) Option {
	return func(e *Engine) {
		if s != nil {
			e.schema = s
		}
	}
}

// WithConcurrency bounds the parallel tests of advisory conditions.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger.WithFields(l)
	}
}

func New(o oracle.Oracle, opts ...Option) *Engine {
	e := &Engine{
		oracle:      o,
		strategy:    Linear{Concurrency: defaultConcurrency},
		schema:      condition.StaticSchema(),
		concurrency: defaultConcurrency,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Strategy() Strategy { return e.strategy }

// Diagnose checks the candidate against conds. Nil conditions are ignored. Malformed conditions
// and fields unknown to the schema are rejected before the oracle is queried. Oracle errors
// abort the diagnosis and are returned as is.
func (e *Engine) Diagnose(ctx context.Context, who oracle.Identity, conds []condition.Condition) (Result, error) {
	conds = dropNil(conds)

	for _, c := range conds {
		if err := condition.Validate(c); err != nil {
			return Result{}, err
		}
	}
	if invalid := condition.InvalidFields(e.schema, conds...); len(invalid) > 0 {
		return Result{}, &oracle.InvalidFieldError{Fields: invalid}
	}

	var calls atomic.Int64
	test := func(ctx context.Context, cs ...condition.Condition) (bool, error) {
		calls.Add(1)
		return oracle.Satisfies(ctx, e.oracle, who, cs...)
	}

	required, advisory := splitByStrength(conds)

	out, err := e.strategy.Diagnose(ctx, test, required)
	if err != nil {
		return Result{Calls: int(calls.Load())}, err
	}
	if !out.Satisfied && len(out.Unsatisfied) == 0 && len(required) == 0 {
		return Result{Calls: int(calls.Load())}, ErrCandidateNotFound
	}

	failedAdvisory, err := e.advisory(ctx, test, advisory)
	if err != nil {
		return Result{Calls: int(calls.Load())}, err
	}

	res := Result{
		Satisfied:   out.Satisfied,
		Unsatisfied: dedupe(out.Unsatisfied),
		Advisory:    dedupe(failedAdvisory),
		Calls:       int(calls.Load()),
	}

	e.logger.Debug("diagnosis finished",
		zap.String(logger.FieldIndex, who.Index),
		zap.String(logger.FieldCandidate, who.ID),
		zap.String(logger.FieldStrategy, e.strategy.Name()),
		zap.Int("calls", res.Calls),
		zap.Bool("satisfied", res.Satisfied),
		zap.Int("unsatisfied", len(res.Unsatisfied)),
		zap.Int("advisory", len(res.Advisory)),
	)
	return res, nil
}

func (e *Engine) advisory(ctx context.Context, test Tester, conds []condition.Condition) ([]condition.Condition, error) {
	if len(conds) == 0 {
		return nil, nil
	}

	failed := make([]bool, len(conds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, c := range conds {
		i, c := i, c
		g.Go(func() error {
			ok, err := test(gctx, c)
			if err != nil {
				return err
			}
			failed[i] = !ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []condition.Condition
	for i, c := range conds {
		if failed[i] {
			out = append(out, c)
		}
	}
	return out, nil
}

func dropNil(conds []condition.Condition) []condition.Condition {
	out := make([]condition.Condition, 0, len(conds))
	for _, c := range conds {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

func splitByStrength(conds []condition.Condition) (required, advisory []condition.Condition) {
	for _, c := range conds {
		if c.Strength() == condition.Preferred {
			advisory = append(advisory, c)
			continue
		}
		required = append(required, c)
	}
	return required, advisory
}

// dedupe removes structural duplicates, keeping the first occurrence.
func dedupe(conds []condition.Condition) []condition.Condition {
	if len(conds) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(conds))
	out := make([]condition.Condition, 0, len(conds))
	for _, c := range conds {
		key := c.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}
