package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/talent-screener/internal/condition"
	"github.com/spigell/talent-screener/internal/oracle"
	"github.com/spigell/talent-screener/internal/oracle/oracletest"
)

const index = "talents"

var (
	english  = condition.NewKeyword(condition.FieldLanguages, "English")
	mandarin = condition.NewKeyword(condition.FieldLanguages, "Mandarin")
	golang   = condition.NewKeyword(condition.FieldSkills, "go")
	rust     = condition.NewKeyword(condition.FieldSkills, "rust")
)

func bachelor(t *testing.T) condition.Condition {
	t.Helper()
	d, err := condition.NewDegree(condition.DegreeBachelor)
	require.NoError(t, err)
	return d
}

func candidates() *oracletest.Memory {
	return oracletest.NewMemory().
		Put(index, "master", oracletest.Doc{
			condition.FieldLanguages:          []string{"English"},
			condition.FieldHighestDegreeScore: 4,
		}).
		Put(index, "bachelor", oracletest.Doc{
			condition.FieldLanguages:          []string{"English"},
			condition.FieldHighestDegreeScore: 3,
			condition.FieldSkills:             []string{"go"},
			condition.FieldLocationOfficial:   "DE",
		}).
		Put(index, "polyglot", oracletest.Doc{
			condition.FieldLanguages:       []string{"English", "Mandarin"},
			condition.FieldExperienceYears: 5,
		})
}

func who(id string) oracle.Identity {
	return oracle.Identity{Index: index, ID: id}
}

func UIs(conds []condition.Condition) []string {
	out := make([]string, 0, len(conds))
	for _, c := range conds {
		out = append(out, c.UI())
	}
	return out
}

func TestDiagnoseSatisfied(t *testing.T) {
	mem := candidates()
	engine := New(mem)

	res, err := engine.Diagnose(context.Background(), who("master"), []condition.Condition{
		condition.And(english), bachelor(t),
	})
	require.NoError(t, err)

	assert.True(t, res.Satisfied)
	assert.Empty(t, res.Unsatisfied)
	assert.Equal(t, 1, res.Calls)
	assert.Equal(t, 1, mem.Calls())
}

// Without refinement a failing AND reports all of its children, including the ones the
// candidate matches on their own.
func TestDiagnoseDefaultExpansionReportsEveryChild(t *testing.T) {
	mem := candidates()
	engine := New(mem)

	res, err := engine.Diagnose(context.Background(), who("bachelor"), []condition.Condition{
		condition.And(english, mandarin), bachelor(t),
	})
	require.NoError(t, err)

	assert.False(t, res.Satisfied)
	assert.Equal(t, []string{"languages: English", "languages: Mandarin"}, UIs(res.Unsatisfied))
	assert.Equal(t, 3, res.Calls)
}

func TestDiagnoseRefineExpandedKeepsOnlyFailingChildren(t *testing.T) {
	mem := candidates()
	engine := New(mem, WithStrategy(Linear{Concurrency: 2, RefineExpanded: true}))

	res, err := engine.Diagnose(context.Background(), who("bachelor"), []condition.Condition{
		condition.And(english, mandarin), bachelor(t),
	})
	require.NoError(t, err)

	assert.False(t, res.Satisfied)
	assert.Equal(t, []string{"languages: Mandarin"}, UIs(res.Unsatisfied))
	assert.Equal(t, 5, res.Calls)
}

func TestDiagnoseKeepsInputOrder(t *testing.T) {
	engine := New(candidates(), WithStrategy(Linear{Concurrency: 8}))
	conds := []condition.Condition{
		rust,
		golang,
		condition.Or(mandarin, rust),
		english,
		condition.And(mandarin, rust),
		condition.NewRange(condition.FieldExperienceYears, condition.Bounds{Gte: condition.Float(10)}),
	}

	first, err := engine.Diagnose(context.Background(), who("bachelor"), conds)
	require.NoError(t, err)
	want := []string{
		"skills: rust",
		"(languages: Mandarin OR skills: rust)",
		"languages: Mandarin",
		"experienceYears: >= 10",
	}
	assert.Equal(t, want, UIs(first.Unsatisfied))

	second, err := engine.Diagnose(context.Background(), who("bachelor"), conds)
	require.NoError(t, err)
	assert.Equal(t, UIs(first.Unsatisfied), UIs(second.Unsatisfied))
}

func TestDiagnoseRemovesDuplicates(t *testing.T) {
	engine := New(candidates())

	res, err := engine.Diagnose(context.Background(), who("master"), []condition.Condition{
		condition.And(mandarin, rust), mandarin, condition.NewKeyword(condition.FieldLanguages, "Mandarin"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"languages: Mandarin", "skills: rust"}, UIs(res.Unsatisfied))
}

func TestDiagnoseKeepsLookalikeConditions(t *testing.T) {
	piped := condition.NewKeyword(condition.FieldSkills, "c|d")
	split := condition.NewKeyword(condition.FieldSkills, "c", "d")

	res, err := New(candidates()).Diagnose(context.Background(), who("master"), []condition.Condition{piped, split})
	require.NoError(t, err)

	assert.False(t, res.Satisfied)
	assert.Equal(t, []string{"skills: c|d", "skills: c | d"}, UIs(res.Unsatisfied))
}

func TestLinearCallBoundAndSoundness(t *testing.T) {
	pool := []condition.Condition{
		english, mandarin, golang, rust, bachelor(t),
		condition.And(english, mandarin),
		condition.Or(golang, rust),
		condition.Not(rust),
		condition.NewRange(condition.FieldExperienceYears, condition.Bounds{Gte: condition.Float(4), Lte: condition.Float(12)}),
	}

	for _, id := range []string{"master", "bachelor", "polyglot"} {
		for n := 1; n <= len(pool); n++ {
			conds := pool[:n]
			t.Run(fmt.Sprintf("%s/%d", id, n), func(t *testing.T) {
				mem := candidates()
				res, err := New(mem).Diagnose(context.Background(), who(id), conds)
				require.NoError(t, err)
				assert.LessOrEqual(t, res.Calls, n+1)
				assert.Equal(t, res.Calls, mem.Calls())
				if res.Satisfied {
					assert.Empty(t, res.Unsatisfied)
				}

				refined, err := New(candidates(), WithStrategy(Linear{RefineExpanded: true})).Diagnose(context.Background(), who(id), conds)
				require.NoError(t, err)
				assert.Equal(t, res.Satisfied, refined.Satisfied)
				for _, c := range refined.Unsatisfied {
					ok, err := oracle.Satisfies(context.Background(), candidates(), who(id), c)
					require.NoError(t, err)
					assert.False(t, ok, "reported %s but it holds on its own", c.UI())
				}
			})
		}
	}
}

func TestDiagnoseRejectsInvalidFieldsBeforeQuerying(t *testing.T) {
	mem := candidates()
	engine := New(mem)

	_, err := engine.Diagnose(context.Background(), who("master"), []condition.Condition{
		english, condition.Or(golang, condition.NewKeyword("unknownField", "x")),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, oracle.ErrInvalidField)

	var invalid *oracle.InvalidFieldError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, []string{"unknownField"}, invalid.Fields)
	assert.Zero(t, mem.Calls())
}

func TestDiagnoseUsesConfiguredSchema(t *testing.T) {
	mem := candidates()
	engine := New(mem, WithSchema(condition.NewSchema(condition.FieldSkills)))

	_, err := engine.Diagnose(context.Background(), who("master"), []condition.Condition{english})
	assert.ErrorIs(t, err, oracle.ErrInvalidField)
	assert.Zero(t, mem.Calls())
}

func TestDiagnoseRejectsMalformedConditions(t *testing.T) {
	mem := candidates()
	malformed, err := condition.NewGroup(condition.AND, condition.Not(nil))
	require.NoError(t, err)

	_, err = New(mem).Diagnose(context.Background(), who("master"), []condition.Condition{english, malformed})
	assert.ErrorIs(t, err, condition.ErrMalformed)
	assert.Zero(t, mem.Calls())
}

func TestDiagnoseDropsNilConditions(t *testing.T) {
	res, err := New(candidates()).Diagnose(context.Background(), who("master"), []condition.Condition{nil, english, nil})
	require.NoError(t, err)
	assert.True(t, res.Satisfied)
}

func TestDiagnoseCandidateNotFound(t *testing.T) {
	_, err := New(candidates()).Diagnose(context.Background(), who("ghost"), nil)
	assert.ErrorIs(t, err, ErrCandidateNotFound)

	res, err := New(candidates()).Diagnose(context.Background(), who("master"), nil)
	require.NoError(t, err)
	assert.True(t, res.Satisfied)
}

func TestDiagnoseAdvisoryConditions(t *testing.T) {
	location := condition.Or(
		condition.NewLocation("CN", true, condition.Preferred),
		condition.NewLocation("US", true, condition.Preferred),
	)

	t.Run("does not block", func(t *testing.T) {
		res, err := New(candidates()).Diagnose(context.Background(), who("bachelor"), []condition.Condition{location, english})
		require.NoError(t, err)

		assert.True(t, res.Satisfied)
		assert.Empty(t, res.Unsatisfied)
		assert.Equal(t, []string{location.UI()}, UIs(res.Advisory))
		assert.Equal(t, 2, res.Calls)
	})

	t.Run("reported next to failures", func(t *testing.T) {
		conds := []condition.Condition{location, english, mandarin}
		res, err := New(candidates()).Diagnose(context.Background(), who("bachelor"), conds)
		require.NoError(t, err)

		assert.False(t, res.Satisfied)
		assert.Equal(t, []string{"languages: Mandarin"}, UIs(res.Unsatisfied))
		assert.Len(t, res.Advisory, 1)
		assert.LessOrEqual(t, res.Calls, len(conds)+1)
	})

	t.Run("passing", func(t *testing.T) {
		de := condition.Or(condition.NewLocation("DE", true, condition.Preferred))
		res, err := New(candidates()).Diagnose(context.Background(), who("bachelor"), []condition.Condition{de})
		require.NoError(t, err)
		assert.True(t, res.Satisfied)
		assert.Empty(t, res.Advisory)
	})
}

func TestDiagnosePropagatesOracleErrors(t *testing.T) {
	for _, strategy := range []Strategy{Linear{}, Exhaustive{}} {
		t.Run(strategy.Name(), func(t *testing.T) {
			mem := candidates()
			cause := &oracle.UnavailableError{Cause: errors.New("connection reset")}
			mem.FailWith(cause)

			_, err := New(mem, WithStrategy(strategy)).Diagnose(context.Background(), who("master"), []condition.Condition{english, mandarin})
			require.Error(t, err)
			assert.ErrorIs(t, err, oracle.ErrUnavailable)
			assert.Equal(t, 1, mem.Calls())
		})
	}
}

func TestDiagnoseLogsOutcome(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	engine := New(candidates(), WithLogger(zap.New(core)))

	_, err := engine.Diagnose(context.Background(), who("bachelor"), []condition.Condition{mandarin})
	require.NoError(t, err)

	entries := observed.FilterMessage("diagnosis finished").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "bachelor", ctx["candidate_id"])
	assert.Equal(t, index, ctx["index"])
	assert.Equal(t, StrategyLinear, ctx["strategy"])
	assert.Equal(t, int64(2), ctx["calls"])
	assert.Equal(t, false, ctx["satisfied"])
}
