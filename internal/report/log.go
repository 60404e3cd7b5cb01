package report

import (
	"context"

	"go.uber.org/zap"

	"github.com/spigell/talent-screener/internal/logger"
)

// LogSink writes one log entry per outcome.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(l *zap.Logger) *LogSink {
	return &LogSink{logger: logger.WithFields(l)}
}

func (s *LogSink) Record(_ context.Context, o Outcome) error {
	l := logger.WithFields(s.logger, logger.DiagnosisFields(o.Index, o.CandidateID, o.JobID)...)
	if o.Interviewed {
		l = l.With(zap.Bool("interviewed", true))
	}
	if len(o.Advisory) > 0 {
		l = l.With(zap.Strings("advisory", o.Advisory))
	}

	switch {
	case o.Errored():
		l.Error("candidate not diagnosed", zap.String("error", o.Error))
	case o.Satisfied:
		l.Info("candidate satisfies job", zap.Int("calls", o.Calls))
	default:
		l.Warn("candidate misses requirements",
			zap.Strings("unsatisfied", o.Unsatisfied),
			zap.Int("calls", o.Calls),
		)
	}
	return nil
}
