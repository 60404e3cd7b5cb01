package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/talent-screener/internal/diagnosis"
	"github.com/spigell/talent-screener/internal/elastic"
	"github.com/spigell/talent-screener/internal/logger"
	"github.com/spigell/talent-screener/internal/oracle"
	"github.com/spigell/talent-screener/internal/report"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Diagnose a single candidate against a single job",
	Run: func(cmd *cobra.Command, _ []string) {
		check(cmd)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().String("job", "", "job id in the jobs index")
	checkCmd.Flags().String("candidate", "", "candidate id in the candidates index")
	checkCmd.MarkFlagRequired("job")
	checkCmd.MarkFlagRequired("candidate")
}

func check(cmd *cobra.Command) {
	ctx := context.Background()
	l, config := setup()

	jobID, _ := cmd.Flags().GetString("job")
	candidateID, _ := cmd.Flags().GetString("candidate")

	es, err := newElastic(config.Elastic, l)
	if err != nil {
		l.Fatal("creating elasticsearch client", zap.Error(err))
	}

	engine, _, err := newEngine(ctx, config, es, l)
	if err != nil {
		l.Fatal("creating diagnosis engine", zap.Error(err))
	}

	pairLogger := logger.WithDiagnosisFields(l, config.Elastic.CandidatesIndex, candidateID, jobID)

	job, err := elastic.NewJobs(es, config.Elastic.JobsIndex).Get(ctx, jobID)
	if err != nil {
		pairLogger.Fatal("getting the job", zap.Error(err))
	}

	conds, err := newCompiler(config.Diagnosis).Compile(job)
	if err != nil {
		pairLogger.Fatal("compiling job requirements", zap.Error(err))
	}

	who := oracle.Identity{Index: config.Elastic.CandidatesIndex, ID: candidateID}
	res, err := engine.Diagnose(ctx, who, conds)
	if err != nil && !errors.Is(err, diagnosis.ErrCandidateNotFound) {
		pairLogger.Fatal("diagnosing the candidate", zap.Error(err), zap.String(logger.FieldStrategy, engine.Strategy().Name()))
	}

	outcome := report.NewOutcome(uuid.NewString(), jobID, who, res, err, time.Now())
	if err := report.NewLogSink(l).Record(ctx, outcome); err != nil {
		l.Fatal("reporting the outcome", zap.Error(err))
	}

	pretty, _ := json.MarshalIndent(outcome, "", "  ")
	fmt.Println(string(pretty))
}
