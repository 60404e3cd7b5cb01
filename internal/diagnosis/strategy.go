package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/spigell/talent-screener/internal/condition"
)

const (
	StrategyLinear     = "linear"
	StrategyExhaustive = "exhaustive"

	// DefaultMaxConditions caps the exhaustive search, which costs up to 2^n queries.
	DefaultMaxConditions = 10

	// subsets are uint64 bit sets
	maxSubsetBits = 63
)

// ErrTooManyConditions is returned by the exhaustive strategy above its condition cap.
var ErrTooManyConditions = errors.New("too many conditions for exhaustive diagnosis")

// StrategyOptions configures a strategy built by name.
type StrategyOptions struct {
	Concurrency    int
	RefineExpanded bool
	MaxConditions  int
}

// NewStrategy returns the strategy registered under name.
func NewStrategy(name string, opts StrategyOptions) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", StrategyLinear:
		return Linear{Concurrency: opts.Concurrency, RefineExpanded: opts.RefineExpanded}, nil
	case StrategyExhaustive:
		return Exhaustive{MaxConditions: opts.MaxConditions}, nil
	default:
		return nil, fmt.Errorf("unknown diagnosis strategy %q", name)
	}
}

// Linear tests the full conjunction once and, when it fails, each condition on its own.
// It issues at most one query more than there are conditions.
//
// A failing AND group with more than one child is reported as its children. With
// RefineExpanded each child is tested too and only failing children are kept, at the cost of
// one query per child.
type Linear struct {
	Concurrency    int
	RefineExpanded bool
}

func (Linear) Name() string { return StrategyLinear }

func (l Linear) Diagnose(ctx context.Context, test Tester, conds []condition.Condition) (Outcome, error) {
	ok, err := test(ctx, conds...)
	if err != nil {
		return Outcome{}, err
	}
	if ok {
		return Outcome{Satisfied: true}, nil
	}

	limit := l.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}

	failed := make([][]condition.Condition, len(conds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, c := range conds {
		i, c := i, c
		g.Go(func() error {
			ok, err := test(gctx, c)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
			failed[i], err = l.explain(gctx, test, c)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Outcome{}, err
	}

	var out []condition.Condition
	for _, f := range failed {
		out = append(out, f...)
	}
	return Outcome{Unsatisfied: out}, nil
}

// explain returns what to report for a failed condition.
func (l Linear) explain(ctx context.Context, test Tester, c condition.Condition) ([]condition.Condition, error) {
	g, ok := c.(*condition.Group)
	if !ok || g.Operator() != condition.AND || len(g.Children()) < 2 {
		return []condition.Condition{c}, nil
	}
	children := g.Children()
	if !l.RefineExpanded {
		return children, nil
	}

	var failing []condition.Condition
	for _, child := range children {
		ok, err := test(ctx, child)
		if err != nil {
			return nil, err
		}
		if !ok {
			failing = append(failing, child)
		}
	}
	if len(failing) == 0 {
		// Every child passes alone, so only the combination fails.
		return []condition.Condition{c}, nil
	}
	return failing, nil
}

// Exhaustive searches subsets of the conditions breadth first, largest first, and reports the
// conditions missing from the first satisfiable subset. Its cost grows as 2^n, so it refuses
// more than MaxConditions conditions.
type Exhaustive struct {
	MaxConditions int
}

func (Exhaustive) Name() string { return StrategyExhaustive }

func (x Exhaustive) Diagnose(ctx context.Context, test Tester, conds []condition.Condition) (Outcome, error) {
	limit := x.MaxConditions
	if limit <= 0 {
		limit = DefaultMaxConditions
	}
	if limit > maxSubsetBits {
		limit = maxSubsetBits
	}
	if len(conds) > limit {
		return Outcome{}, fmt.Errorf("%w: %d > %d", ErrTooManyConditions, len(conds), limit)
	}

	if len(conds) == 0 {
		ok, err := test(ctx)
		return Outcome{Satisfied: ok}, err
	}

	full := uint64(1)<<len(conds) - 1
	queue := []uint64{full}
	seen := map[uint64]struct{}{full: {}}

	for len(queue) > 0 {
		subset := queue[0]
		queue = queue[1:]

		ok, err := test(ctx, pick(conds, subset)...)
		if err != nil {
			return Outcome{}, err
		}
		if ok {
			if subset == full {
				return Outcome{Satisfied: true}, nil
			}
			return Outcome{Unsatisfied: pick(conds, full&^subset)}, nil
		}

		if bits.OnesCount64(subset) < 2 {
			continue
		}
		for i := range conds {
			bit := uint64(1) << i
			if subset&bit == 0 {
				continue
			}
			next := subset &^ bit
			if _, dup := seen[next]; dup {
				continue
			}
			seen[next] = struct{}{}
			queue = append(queue, next)
		}
	}

	return Outcome{Unsatisfied: append([]condition.Condition(nil), conds...)}, nil
}

func pick(conds []condition.Condition, subset uint64) []condition.Condition {
	out := make([]condition.Condition, 0, bits.OnesCount64(subset))
	for i, c := range conds {
		if subset&(uint64(1)<<i) != 0 {
			out = append(out, c)
		}
	}
	return out
}
