package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	FieldRunID     = "run_id"
	FieldJob       = "job_id"
	FieldCandidate = "candidate_id"
	FieldIndex     = "index"
	FieldStrategy  = "strategy"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the pairs into zap fields, trimming whitespace and skipping
// entries with an empty key or value.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		value := strings.TrimSpace(field.Value)
		if key == "" || value == "" {
			continue
		}
		result = append(result, zap.String(key, value))
	}
	return result
}

// WithFields attaches fields to the logger, falling back to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

// DiagnosisFields describes the pair under diagnosis. Empty values are left out.
func DiagnosisFields(index, candidate, job string) []zap.Field {
	return StringFields(
		StringField{Key: FieldIndex, Value: index},
		StringField{Key: FieldCandidate, Value: candidate},
		StringField{Key: FieldJob, Value: job},
	)
}

func WithDiagnosisFields(logger *zap.Logger, index, candidate, job string) *zap.Logger {
	return WithFields(logger, DiagnosisFields(index, candidate, job)...)
}
