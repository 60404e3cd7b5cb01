package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/talent-screener/internal/condition"
	"github.com/spigell/talent-screener/internal/elastic"
)

type compiledCondition struct {
	UI       string             `json:"ui"`
	Strength string             `json:"strength"`
	Query    condition.Fragment `json:"query"`
}

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Print the conditions compiled from a job",
	Run: func(cmd *cobra.Command, _ []string) {
		compile(cmd)
	},
}

func init() {
	rootCmd.AddCommand(compileCmd)

	compileCmd.Flags().String("job", "", "job id in the jobs index")
	compileCmd.MarkFlagRequired("job")
}

func compile(cmd *cobra.Command) {
	ctx := context.Background()
	l, config := setup()

	jobID, _ := cmd.Flags().GetString("job")

	es, err := newElastic(config.Elastic, l)
	if err != nil {
		l.Fatal("creating elasticsearch client", zap.Error(err))
	}

	job, err := elastic.NewJobs(es, config.Elastic.JobsIndex).Get(ctx, jobID)
	if err != nil {
		l.Fatal("getting the job", zap.Error(err), zap.String("job_id", jobID))
	}

	conds, err := newCompiler(config.Diagnosis).Compile(job)
	if err != nil {
		l.Fatal("compiling job requirements", zap.Error(err), zap.String("job_id", jobID))
	}

	out := make([]compiledCondition, 0, len(conds))
	for _, c := range conds {
		out = append(out, compiledCondition{UI: c.UI(), Strength: c.Strength().String(), Query: c.Compile()})
	}

	pretty, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		l.Fatal("encoding conditions", zap.Error(err))
	}
	fmt.Println(string(pretty))
}
