package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spigell/talent-screener/internal/harvest"
	"github.com/spigell/talent-screener/internal/report"
)

func configFrom(t *testing.T, content string) (*Config, error) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "talent-screener.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	return loadConfig(v)
}

func TestLoadConfigDefaults(t *testing.T) {
	config, err := configFrom(t, `
elastic:
  addresses: ["http://localhost:9200"]
  timeout: 3s
diagnosis:
  language-synonyms:
    mandarin: [chinese]
source:
  dsn-file: /run/secrets/dsn
  created-after: "2026-01-01"
  statuses: [1, 2]
`)
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, config.Elastic.Timeout)
	assert.Equal(t, "static", config.Elastic.Schema)
	assert.Equal(t, "jobs", config.Elastic.JobsIndex)
	assert.Equal(t, "talents", config.Elastic.CandidatesIndex)
	assert.Equal(t, "linear", config.Diagnosis.Strategy)
	assert.Equal(t, "preferred", config.Diagnosis.LocationPolicy)
	assert.Equal(t, 10, config.Diagnosis.MaxExhaustiveConditions)
	assert.Equal(t, []string{"chinese"}, config.Diagnosis.LanguageSynonyms["mandarin"])
	assert.Equal(t, "mysql", config.Source.Driver)
	assert.Equal(t, []int{1, 2}, config.Source.Statuses)
	assert.Equal(t, 4, config.Harvest.Workers)
	assert.Equal(t, "talent-screener.db", config.Harvest.Store)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "no addresses",
			content: "elastic:\n  jobs-index: jobs\n",
		},
		{
			name:    "bad address",
			content: "elastic:\n  addresses: [\"not a url\"]\n",
		},
		{
			name:    "unknown strategy",
			content: "elastic:\n  addresses: [\"http://es:9200\"]\ndiagnosis:\n  strategy: greedy\n",
		},
		{
			name:    "unknown location policy",
			content: "elastic:\n  addresses: [\"http://es:9200\"]\ndiagnosis:\n  location-policy: sometimes\n",
		},
		{
			name:    "exhaustive cap above subset width",
			content: "elastic:\n  addresses: [\"http://es:9200\"]\ndiagnosis:\n  max-exhaustive-conditions: 64\n",
		},
		{
			name:    "bad created-after",
			content: "elastic:\n  addresses: [\"http://es:9200\"]\nsource:\n  created-after: yesterday\n",
		},
		{
			name:    "unknown driver",
			content: "elastic:\n  addresses: [\"http://es:9200\"]\nsource:\n  driver: oracle\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := configFrom(t, tt.content)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("TALENT_SCREENER_DIAGNOSIS_STRATEGY", "exhaustive")

	config, err := configFrom(t, "elastic:\n  addresses: [\"http://es:9200\"]\n")
	require.NoError(t, err)
	assert.Equal(t, "exhaustive", config.Diagnosis.Strategy)
}

func TestVersionLine(t *testing.T) {
	assert.Equal(t, "unknown", versionLine(true))
	assert.Contains(t, versionLine(false), "talent-screener version: unknown (commit none, go")
}

func TestHandleAction(t *testing.T) {
	excludeFile := filepath.Join(t.TempDir(), "exclude.json")
	config := &Config{Harvest: &HarvestConfig{ExcludeFile: excludeFile}}
	outcomes := []report.Outcome{{JobID: "j1", CandidateID: "c1", Satisfied: true}}
	pairs := []harvest.Pair{{JobID: "j1", CandidateID: "c1"}}
	l := zap.NewNop()

	assert.ErrorIs(t, handleAction(PromptExit, l, config, outcomes, pairs), errExit)
	assert.NoError(t, handleAction(PromptReportByJob, l, config, outcomes, pairs))
	assert.NoError(t, handleAction(PromptOnlyUnsatisfied, l, config, outcomes, pairs))
	assert.Error(t, handleAction("Apply", l, config, outcomes, pairs))

	require.NoError(t, handleAction(PromptAppendToExcludeFile, l, config, outcomes, pairs))
	excluded, err := harvest.ReadExcludeFile(excludeFile)
	require.NoError(t, err)
	require.Len(t, excluded.Items, 1)
	assert.Equal(t, "c1", excluded.Items[0].CandidateID)

	assert.Contains(t, menuItems(config), PromptAppendToExcludeFile)
	assert.NotContains(t, menuItems(&Config{Harvest: &HarvestConfig{}}), PromptAppendToExcludeFile)
}

func TestPrepareFiltersSkipsByName(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().Bool("force", false, "")
	cmd.Flags().StringSlice("skip-filter", nil, "")
	require.NoError(t, cmd.Flags().Set("skip-filter", "already_diagnosed"))

	config := &Config{Harvest: &HarvestConfig{ExcludeJobs: []string{"j2"}}}
	pairs := []harvest.Pair{{JobID: "j1", CandidateID: "c1"}, {JobID: "j2", CandidateID: "c1"}, {JobID: "j1", CandidateID: "c1"}}

	// without a store the already_diagnosed filter fails validation unless skipped
	left, err := prepareFilters(cmd, config, nil, zap.NewNop()).Run(context.Background(), pairs)
	require.NoError(t, err)
	assert.Equal(t, []harvest.Pair{{JobID: "j1", CandidateID: "c1"}}, left)
}
