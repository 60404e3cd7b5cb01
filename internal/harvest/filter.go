package harvest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/talent-screener/internal/logger"
)

const forceFlagSetMsg = "force flag is set"

// Filter is a single step narrowing the pairs of a batch.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Validate() error
	Apply(ctx context.Context, pairs []Pair) ([]Pair, Step, error)
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

func newStep(initial int, left []Pair) Step {
	return Step{Initial: initial, Dropped: initial - len(left), Left: len(left)}
}

// toggle carries the enabled state shared by all filters.
type toggle struct {
	disabled bool
	reason   string
}

func (t *toggle) Disable(reason string) {
	t.disabled = true
	t.reason = reason
}

func (t *toggle) IsEnabled() bool { return !t.disabled }

// DisableByName marks the filter with the given name as disabled while keeping it in the list.
func DisableByName(steps []Filter, name, reason string) {
	for _, step := range steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// Filters runs its steps in order.
type Filters struct {
	steps  []Filter
	logger *zap.Logger
}

func NewFilters(steps []Filter, l *zap.Logger) *Filters {
	return &Filters{steps: steps, logger: logger.WithFields(l)}
}

// Run validates every enabled step, then applies them in sequence.
func (f *Filters) Run(ctx context.Context, pairs []Pair) ([]Pair, error) {
	for _, step := range f.steps {
		if !step.IsEnabled() {
			continue
		}
		if err := step.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}
	}

	for _, step := range f.steps {
		if !step.IsEnabled() {
			f.logger.Info("filter disabled", zap.String("name", step.Name()))
			continue
		}

		next, info, err := step.Apply(ctx, pairs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		f.logger.Info("filter step",
			zap.String("name", step.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)
		pairs = next
	}
	return pairs, nil
}
