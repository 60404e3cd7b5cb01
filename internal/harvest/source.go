// Package harvest runs diagnoses over batches of (job, candidate) pairs.
package harvest

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// Pair is one candidate to check against one job.
type Pair struct {
	JobID       string `json:"job_id"`
	CandidateID string `json:"candidate_id"`
	// Interviewed tells whether the application reached an interview.
	Interviewed bool `json:"interviewed,omitempty"`
}

func (p Pair) String() string {
	return p.JobID + ":" + p.CandidateID
}

// ParsePair reads a "job:candidate" pair.
func ParsePair(raw string) (Pair, error) {
	job, candidate, ok := strings.Cut(strings.TrimSpace(raw), ":")
	job, candidate = strings.TrimSpace(job), strings.TrimSpace(candidate)
	if !ok || job == "" || candidate == "" {
		return Pair{}, fmt.Errorf("invalid pair %q, expected job:candidate", raw)
	}
	return Pair{JobID: job, CandidateID: candidate}, nil
}

// Source supplies the pairs of a batch.
type Source interface {
	Pairs(ctx context.Context) ([]Pair, error)
}

// StaticSource returns a fixed list of pairs.
type StaticSource []Pair

func (s StaticSource) Pairs(context.Context) ([]Pair, error) {
	return append([]Pair(nil), s...), nil
}

// OpenDB opens a database with one of the supported drivers and checks the connection.
func OpenDB(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverMySQL, DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}
	return db, nil
}

// SQLSource reads application pairs from the applicant tracking database.
type SQLSource struct {
	DB     *sql.DB
	Driver string

	TenantID     int64
	Statuses     []int
	CreatedAfter time.Time
	// Skip drops the first rows, to resume an interrupted batch.
	Skip int
}

// interviewStatus marks an activity that reached the interview stage.
const interviewStatus = 4

func (s *SQLSource) query() (string, []any) {
	var b strings.Builder
	args := []any{interviewStatus, s.TenantID}

	b.WriteString(`SELECT t.talent_id, t.job_id,
	CASE (SELECT 1 FROM activity_unique a WHERE a.application_id = t.id AND a.status = ?)
		WHEN 1 THEN 'True' ELSE 'False' END AS interviewed
FROM application t
WHERE t.tenant_id = ?`)

	if len(s.Statuses) > 0 {
		marks := make([]string, len(s.Statuses))
		for i, st := range s.Statuses {
			marks[i] = "?"
			args = append(args, st)
		}
		b.WriteString(" AND t.status IN (" + strings.Join(marks, ", ") + ")")
	}
	if !s.CreatedAfter.IsZero() {
		b.WriteString(" AND t.created_date > ?")
		args = append(args, s.CreatedAfter.UTC().Format("2006-01-02 15:04:05"))
	}
	b.WriteString(" ORDER BY t.id")

	return rebind(s.Driver, b.String()), args
}

func (s *SQLSource) Pairs(ctx context.Context) ([]Pair, error) {
	if s.DB == nil {
		return nil, fmt.Errorf("sql source: database is required")
	}

	query, args := s.query()
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sql source: query applications: %w", err)
	}
	defer rows.Close()

	var (
		pairs   []Pair
		skipped int
	)
	for rows.Next() {
		var p Pair
		var interviewed string
		if err := rows.Scan(&p.CandidateID, &p.JobID, &interviewed); err != nil {
			return nil, fmt.Errorf("sql source: scan application: %w", err)
		}
		if skipped < s.Skip {
			skipped++
			continue
		}
		p.Interviewed = interviewed == "True"
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sql source: read applications: %w", err)
	}
	return pairs, nil
}

// rebind rewrites ? placeholders into the driver's syntax.
func rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
