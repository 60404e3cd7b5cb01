package harvest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/talent-screener/internal/logger"
	"github.com/spigell/talent-screener/internal/report"
)

// ExcludedPairs is the content of an exclude file.
type ExcludedPairs struct {
	Items []ExcludedPair
}

type ExcludedPair struct {
	JobID       string
	CandidateID string
	ExcludedAt  time.Time
}

// ToExcluded marks all pairs as excluded at the given moment.
func ToExcluded(pairs []Pair, at time.Time) *ExcludedPairs {
	excluded := &ExcludedPairs{}
	for _, p := range pairs {
		excluded.Items = append(excluded.Items, ExcludedPair{
			JobID:       p.JobID,
			CandidateID: p.CandidateID,
			ExcludedAt:  at.UTC(),
		})
	}
	return excluded
}

// ReadExcludeFile reads an exclude file. A missing or empty file has no pairs.
func ReadExcludeFile(path string) (*ExcludedPairs, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &ExcludedPairs{}, nil
		}
		return nil, err
	}
	defer file.Close()

	var excluded ExcludedPairs
	if err := json.NewDecoder(file).Decode(&excluded); err != nil {
		if errors.Is(err, io.EOF) {
			return &ExcludedPairs{}, nil
		}
		return nil, err
	}
	return &excluded, nil
}

func (e *ExcludedPairs) Append(other *ExcludedPairs) {
	e.Items = append(e.Items, other.Items...)
}

func (e *ExcludedPairs) keys() map[report.Key]struct{} {
	keys := make(map[report.Key]struct{}, len(e.Items))
	for _, item := range e.Items {
		keys[report.Key{JobID: item.JobID, CandidateID: item.CandidateID}] = struct{}{}
	}
	return keys
}

// ToFile overwrites path with the excluded pairs.
func (e *ExcludedPairs) ToFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}

type excludeFileFilter struct {
	toggle
	path   string
	logger *zap.Logger
}

// NewExcludeFile drops pairs listed in the exclude file at path. An empty path keeps everything.
func NewExcludeFile(path string, l *zap.Logger) Filter {
	return &excludeFileFilter{path: strings.TrimSpace(path), logger: logger.WithFields(l)}
}

func (f *excludeFileFilter) Name() string { return "exclude_file" }

func (f *excludeFileFilter) Validate() error { return nil }

func (f *excludeFileFilter) Apply(_ context.Context, pairs []Pair) ([]Pair, Step, error) {
	if f.path == "" {
		return pairs, newStep(len(pairs), pairs), nil
	}

	excluded, err := ReadExcludeFile(f.path)
	if err != nil {
		return nil, Step{}, fmt.Errorf("getting excluded pairs from file: %w", err)
	}

	keys := excluded.keys()
	left := make([]Pair, 0, len(pairs))
	var removed []string
	for _, p := range pairs {
		if _, ok := keys[report.Key{JobID: p.JobID, CandidateID: p.CandidateID}]; ok {
			removed = append(removed, p.String())
			continue
		}
		left = append(left, p)
	}

	if len(removed) > 0 {
		f.logger.Info("excluding pairs based on exclude file",
			zap.String("path", f.path),
			zap.Strings("excluded_pairs", removed),
			zap.Int("pairs_left", len(left)),
		)
	}
	return left, newStep(len(pairs), left), nil
}
