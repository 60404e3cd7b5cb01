// Package report records diagnosis outcomes: to the log, to a sqlite store and to JSON dumps.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/spigell/talent-screener/internal/condition"
	"github.com/spigell/talent-screener/internal/diagnosis"
	"github.com/spigell/talent-screener/internal/oracle"
)

// Outcome is the reportable form of one diagnosed (job, candidate) pair.
type Outcome struct {
	RunID       string `json:"run_id"`
	JobID       string `json:"job_id"`
	CandidateID string `json:"candidate_id"`
	Index       string `json:"index"`
	// Interviewed is the application's interview label, kept to compare against the diagnosis.
	Interviewed bool      `json:"interviewed"`
	Satisfied   bool      `json:"satisfied"`
	Unsatisfied []string  `json:"unsatisfied,omitempty"`
	Advisory    []string  `json:"advisory,omitempty"`
	Calls       int       `json:"calls"`
	Error       string    `json:"error,omitempty"`
	DiagnosedAt time.Time `json:"diagnosed_at"`
}

// Errored reports whether the pair could not be diagnosed.
func (o Outcome) Errored() bool { return o.Error != "" }

func (o Outcome) Key() Key { return Key{JobID: o.JobID, CandidateID: o.CandidateID} }

// Key identifies a (job, candidate) pair.
type Key struct {
	JobID       string
	CandidateID string
}

// NewOutcome converts a diagnosis result, or the error that prevented it, into an Outcome.
func NewOutcome(runID, jobID string, who oracle.Identity, res diagnosis.Result, err error, at time.Time) Outcome {
	o := Outcome{
		RunID:       runID,
		JobID:       jobID,
		CandidateID: who.ID,
		Index:       who.Index,
		Calls:       res.Calls,
		DiagnosedAt: at.UTC(),
	}
	if err != nil {
		o.Error = err.Error()
		return o
	}
	o.Satisfied = res.Satisfied
	o.Unsatisfied = uis(res.Unsatisfied)
	o.Advisory = uis(res.Advisory)
	return o
}

func uis(conds []condition.Condition) []string {
	if len(conds) == 0 {
		return nil
	}
	out := make([]string, len(conds))
	for i, c := range conds {
		out[i] = c.UI()
	}
	return out
}

// Sink consumes outcomes. Implementations must be safe for concurrent use.
type Sink interface {
	Record(ctx context.Context, o Outcome) error
}

// Multi records every outcome in all sinks and joins their errors.
type Multi []Sink

func (m Multi) Record(ctx context.Context, o Outcome) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Collector keeps outcomes in memory.
type Collector struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (c *Collector) Record(_ context.Context, o Outcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, o)
	return nil
}

// Outcomes returns the collected outcomes ordered by job and candidate.
func (c *Collector) Outcomes() []Outcome {
	c.mu.Lock()
	out := append([]Outcome(nil), c.outcomes...)
	c.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].JobID != out[j].JobID {
			return out[i].JobID < out[j].JobID
		}
		return out[i].CandidateID < out[j].CandidateID
	})
	return out
}

// CandidateLine is one candidate in a per-job report.
type CandidateLine struct {
	Candidate   string   `json:"candidate"`
	Satisfied   bool     `json:"satisfied"`
	Interviewed bool     `json:"interviewed,omitempty"`
	Unsatisfied []string `json:"unsatisfied,omitempty"`
	Advisory    []string `json:"advisory,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// ByJob groups outcomes per job.
func ByJob(outcomes []Outcome) map[string][]CandidateLine {
	report := make(map[string][]CandidateLine)
	for _, o := range outcomes {
		key := fmt.Sprintf("job %s", o.JobID)
		report[key] = append(report[key], CandidateLine{
			Candidate:   o.CandidateID,
			Satisfied:   o.Satisfied,
			Interviewed: o.Interviewed,
			Unsatisfied: o.Unsatisfied,
			Advisory:    o.Advisory,
			Error:       o.Error,
		})
	}
	return report
}

// DumpToTmpFile writes the outcomes as indented JSON to a new temporary file and returns its name.
func DumpToTmpFile(outcomes []Outcome) (string, error) {
	file, err := os.CreateTemp("", "diagnoses_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(outcomes); err != nil {
		return "", err
	}
	return file.Name(), nil
}
