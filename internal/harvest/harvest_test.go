package harvest

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/talent-screener/internal/condition"
	"github.com/spigell/talent-screener/internal/diagnosis"
	"github.com/spigell/talent-screener/internal/oracle"
	"github.com/spigell/talent-screener/internal/oracle/oracletest"
	"github.com/spigell/talent-screener/internal/report"
	"github.com/spigell/talent-screener/internal/requirement"
)

const index = "talents"

func TestParsePair(t *testing.T) {
	p, err := ParsePair(" 17 : 42 ")
	require.NoError(t, err)
	assert.Equal(t, Pair{JobID: "17", CandidateID: "42"}, p)
	assert.Equal(t, "17:42", p.String())

	for _, raw := range []string{"", "17", "17:", ":42"} {
		_, err := ParsePair(raw)
		assert.Error(t, err, raw)
	}
}

func TestRebind(t *testing.T) {
	query := "SELECT 1 WHERE a = ? AND b IN (?, ?)"

	assert.Equal(t, query, rebind(DriverMySQL, query))
	assert.Equal(t, "SELECT 1 WHERE a = $1 AND b IN ($2, $3)", rebind(DriverPostgres, query))
}

func TestOpenDBRejectsUnknownDriver(t *testing.T) {
	_, err := OpenDB(context.Background(), "oracle", "dsn")
	assert.ErrorContains(t, err, "unsupported sql driver")
}

func seedApplications(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := OpenDB(ctx, DriverSQLite, filepath.Join(t.TempDir(), "ats.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	stmts := []string{
		`CREATE TABLE application (
			id INTEGER PRIMARY KEY,
			talent_id TEXT NOT NULL,
			job_id TEXT NOT NULL,
			tenant_id INTEGER NOT NULL,
			status INTEGER NOT NULL,
			created_date TEXT NOT NULL
		)`,
		`CREATE TABLE activity_unique (application_id INTEGER NOT NULL, status INTEGER NOT NULL)`,
		`INSERT INTO application VALUES
			(1, 'c1', 'j1', 7, 1, '2026-01-10 09:00:00'),
			(2, 'c2', 'j1', 7, 2, '2026-01-11 09:00:00'),
			(3, 'c3', 'j2', 7, 9, '2026-01-12 09:00:00'),
			(4, 'c4', 'j2', 8, 1, '2026-01-12 09:00:00'),
			(5, 'c5', 'j3', 7, 1, '2025-12-01 09:00:00')`,
		`INSERT INTO activity_unique VALUES (2, 4), (1, 3)`,
	}
	for _, stmt := range stmts {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	return db
}

func TestSQLSourcePairs(t *testing.T) {
	db := seedApplications(t)

	src := &SQLSource{
		DB:           db,
		Driver:       DriverSQLite,
		TenantID:     7,
		Statuses:     []int{1, 2},
		CreatedAfter: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	pairs, err := src.Pairs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Pair{
		{JobID: "j1", CandidateID: "c1"},
		{JobID: "j1", CandidateID: "c2", Interviewed: true},
	}, pairs)

	src.Skip = 1
	pairs, err = src.Pairs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Pair{{JobID: "j1", CandidateID: "c2", Interviewed: true}}, pairs)
}

func TestSQLSourceWithoutFilters(t *testing.T) {
	src := &SQLSource{DB: seedApplications(t), Driver: DriverSQLite, TenantID: 7}

	pairs, err := src.Pairs(context.Background())
	require.NoError(t, err)
	assert.Len(t, pairs, 4)
}

type diagnosedList map[report.Key]struct{}

func (d diagnosedList) Diagnosed(context.Context) (map[report.Key]struct{}, error) { return d, nil }

func TestFilters(t *testing.T) {
	pairs := []Pair{
		{JobID: "j1", CandidateID: "c1"},
		{JobID: "j1", CandidateID: "c2"},
		{JobID: "j2", CandidateID: "c1"},
		{JobID: "j1", CandidateID: "c1"},
		{JobID: "j3", CandidateID: "c3"},
	}
	done := diagnosedList{{JobID: "j1", CandidateID: "c2"}: {}}

	core, observed := observer.New(zapcore.InfoLevel)
	l := zap.New(core)

	steps := []Filter{
		NewDuplicates(),
		NewExcludedJobs([]string{"j3", " "}, l),
		NewAlreadyDiagnosed(done, false, l),
	}
	left, err := NewFilters(steps, l).Run(context.Background(), pairs)
	require.NoError(t, err)
	assert.Equal(t, []Pair{{JobID: "j1", CandidateID: "c1"}, {JobID: "j2", CandidateID: "c1"}}, left)

	logged := observed.FilterMessage("filter step").All()
	require.Len(t, logged, 3)
	assert.Equal(t, "duplicates", logged[0].ContextMap()["name"])
	assert.Equal(t, int64(1), logged[0].ContextMap()["dropped"])
}

func TestAlreadyDiagnosedForced(t *testing.T) {
	pairs := []Pair{{JobID: "j1", CandidateID: "c1"}}
	f := NewAlreadyDiagnosed(diagnosedList{{JobID: "j1", CandidateID: "c1"}: {}}, true, zap.NewNop())

	left, step, err := f.Apply(context.Background(), pairs)
	require.NoError(t, err)
	assert.Equal(t, pairs, left)
	assert.Equal(t, Step{Initial: 1, Left: 1}, step)
}

func TestDisabledFilterIsSkipped(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	steps := []Filter{NewAlreadyDiagnosed(nil, false, nil)}

	_, err := NewFilters(steps, zap.New(core)).Run(context.Background(), nil)
	assert.ErrorContains(t, err, "already_diagnosed: results store is required")

	DisableByName(steps, "already_diagnosed", "no store")
	pairs := []Pair{{JobID: "j1", CandidateID: "c1"}}
	left, err := NewFilters(steps, zap.New(core)).Run(context.Background(), pairs)
	require.NoError(t, err)
	assert.Equal(t, pairs, left)
	assert.Equal(t, 1, observed.FilterMessage("filter disabled").Len())
}

func TestExcludeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exclude.json")
	pairs := []Pair{{JobID: "j1", CandidateID: "c1"}, {JobID: "j1", CandidateID: "c2"}}

	// a missing file excludes nothing
	left, _, err := NewExcludeFile(path, nil).Apply(context.Background(), pairs)
	require.NoError(t, err)
	assert.Equal(t, pairs, left)

	excluded, err := ReadExcludeFile(path)
	require.NoError(t, err)
	excluded.Append(ToExcluded(pairs[:1], time.Now()))
	require.NoError(t, excluded.ToFile(path))

	left, step, err := NewExcludeFile(path, nil).Apply(context.Background(), pairs)
	require.NoError(t, err)
	assert.Equal(t, pairs[1:], left)
	assert.Equal(t, Step{Initial: 2, Dropped: 1, Left: 1}, step)

	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, _, err = NewExcludeFile(path, nil).Apply(context.Background(), pairs)
	assert.Error(t, err)
}

var errJobNotFound = errors.New("job not found")

type fakeJobs struct {
	mu    sync.Mutex
	jobs  map[string]requirement.Job
	calls map[string]int
}

func (f *fakeJobs) Get(_ context.Context, id string) (requirement.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[id]++
	job, ok := f.jobs[id]
	if !ok {
		return requirement.Job{}, errJobNotFound
	}
	return job, nil
}

func runner(mem *oracletest.Memory, jobs *fakeJobs, sink report.Sink) *Runner {
	return &Runner{
		Jobs:      jobs,
		Compiler:  requirement.NewCompiler(),
		Diagnoser: diagnosis.New(mem),
		Sink:      sink,
		Index:     index,
		Workers:   3,
		Logger:    zap.NewNop(),
		Now:       func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) },
	}
}

func fixtures() (*oracletest.Memory, *fakeJobs) {
	mem := oracletest.NewMemory().
		Put(index, "c1", oracletest.Doc{
			condition.FieldLanguages:          []string{"English"},
			condition.FieldHighestDegreeScore: 4,
		}).
		Put(index, "c2", oracletest.Doc{
			condition.FieldLanguages:          []string{"English"},
			condition.FieldHighestDegreeScore: 2,
		})
	jobs := &fakeJobs{jobs: map[string]requirement.Job{
		"j1": {ID: "j1", RequiredLanguages: []string{"English"}, MinimumDegreeLevel: "BACHELOR"},
		"j2": {ID: "j2", MinimumDegreeLevel: "WIZARD"},
	}}
	return mem, jobs
}

func TestRunnerRun(t *testing.T) {
	mem, jobs := fixtures()
	sink := &report.Collector{}

	stats, err := runner(mem, jobs, sink).Run(context.Background(), []Pair{
		{JobID: "j1", CandidateID: "c1"},
		{JobID: "j1", CandidateID: "c2", Interviewed: true},
		{JobID: "j2", CandidateID: "c1"},
		{JobID: "j3", CandidateID: "c1"},
		{JobID: "j1", CandidateID: "c1"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, stats.RunID)
	assert.Equal(t, Stats{RunID: stats.RunID, Total: 5, Satisfied: 2, Unsatisfied: 1, Errored: 2}, stats)
	assert.Equal(t, 1, jobs.calls["j1"])

	outcomes := sink.Outcomes()
	require.Len(t, outcomes, 5)
	for _, o := range outcomes {
		assert.Equal(t, stats.RunID, o.RunID)
		assert.Equal(t, index, o.Index)
	}

	byKey := map[report.Key]report.Outcome{}
	for _, o := range outcomes {
		byKey[o.Key()] = o
	}
	assert.Equal(t, []string{"degree: BACHELOR or above"}, byKey[report.Key{JobID: "j1", CandidateID: "c2"}].Unsatisfied)
	assert.True(t, byKey[report.Key{JobID: "j1", CandidateID: "c2"}].Interviewed)
	assert.False(t, byKey[report.Key{JobID: "j2", CandidateID: "c1"}].Interviewed)
	assert.Contains(t, byKey[report.Key{JobID: "j2", CandidateID: "c1"}].Error, "WIZARD")
	assert.Contains(t, byKey[report.Key{JobID: "j3", CandidateID: "c1"}].Error, "job not found")
}

func TestRunnerAbortsWhenOracleUnavailable(t *testing.T) {
	mem, jobs := fixtures()
	mem.FailWith(&oracle.UnavailableError{Cause: errors.New("connection refused")})

	_, err := runner(mem, jobs, &report.Collector{}).Run(context.Background(), []Pair{
		{JobID: "j1", CandidateID: "c1"},
		{JobID: "j1", CandidateID: "c2"},
	})
	assert.ErrorIs(t, err, oracle.ErrUnavailable)
}

func TestRunnerRecordsIntoStore(t *testing.T) {
	ctx := context.Background()
	mem, jobs := fixtures()

	store, err := report.OpenStore(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	stats, err := runner(mem, jobs, report.Multi{store, &report.Collector{}}).Run(ctx, []Pair{
		{JobID: "j1", CandidateID: "c1"},
		{JobID: "j3", CandidateID: "c1"},
	})
	require.NoError(t, err)

	stored, err := store.Outcomes(ctx, stats.RunID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	left, err := NewFilters([]Filter{NewAlreadyDiagnosed(store, false, nil)}, nil).Run(ctx, []Pair{
		{JobID: "j1", CandidateID: "c1"},
		{JobID: "j3", CandidateID: "c1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []Pair{{JobID: "j3", CandidateID: "c1"}}, left)
}

func TestRunnerRequiresDependencies(t *testing.T) {
	_, err := (&Runner{}).Run(context.Background(), nil)
	assert.Error(t, err)
}
