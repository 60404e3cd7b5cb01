package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/talent-screener/internal/condition"
	"github.com/spigell/talent-screener/internal/diagnosis"
	"github.com/spigell/talent-screener/internal/elastic"
	"github.com/spigell/talent-screener/internal/harvest"
	"github.com/spigell/talent-screener/internal/logger"
	"github.com/spigell/talent-screener/internal/oracle"
	"github.com/spigell/talent-screener/internal/requirement"
	"github.com/spigell/talent-screener/internal/secrets"
)

// setup builds the logger and reads the config. Any failure is fatal.
func setup() (*zap.Logger, *Config) {
	l, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		l.Fatal("getting a config", zap.Error(err))
	}

	l.Info("starting the talent-screener", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	l.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	return l, config
}

func newElastic(cfg *ElasticConfig, l *zap.Logger) (*elastic.Client, error) {
	password, err := secrets.LoadOptional(secrets.Source{
		Name: "elasticsearch password",
		File: cfg.PasswordFile,
		Env:  envPrefix + "_ELASTIC_PASSWORD",
	})
	if err != nil {
		return nil, err
	}

	apiKey, err := secrets.LoadOptional(secrets.Source{
		Name: "elasticsearch api key",
		File: cfg.APIKeyFile,
		Env:  envPrefix + "_ELASTIC_API_KEY",
	})
	if err != nil {
		return nil, err
	}

	return elastic.New(elastic.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  password,
		APIKey:    apiKey,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		Burst:     cfg.Burst,
	}, l)
}

// newEngine builds the diagnosis engine on top of es. The returned counter sees every oracle query.
func newEngine(ctx context.Context, config *Config, es *elastic.Client, l *zap.Logger) (*diagnosis.Engine, *oracle.Counting, error) {
	strategy, err := diagnosis.NewStrategy(config.Diagnosis.Strategy, diagnosis.StrategyOptions{
		Concurrency:    config.Diagnosis.Concurrency,
		RefineExpanded: config.Diagnosis.RefineExpanded,
		MaxConditions:  config.Diagnosis.MaxExhaustiveConditions,
	})
	if err != nil {
		return nil, nil, err
	}

	schema := condition.StaticSchema()
	if config.Elastic.Schema == "mapping" {
		schema, err = es.Schema(ctx, config.Elastic.CandidatesIndex)
		if err != nil {
			return nil, nil, fmt.Errorf("loading candidates schema: %w", err)
		}
		l.Info("loaded candidates schema from mapping",
			zap.String(logger.FieldIndex, config.Elastic.CandidatesIndex),
			zap.Int("fields", len(schema.Fields())),
		)
	}

	counting := oracle.NewCounting(es)
	engine := diagnosis.New(counting,
		diagnosis.WithStrategy(strategy),
		diagnosis.WithSchema(schema),
		diagnosis.WithConcurrency(config.Diagnosis.Concurrency),
		diagnosis.WithLogger(l),
	)
	return engine, counting, nil
}

func newCompiler(cfg *DiagnosisConfig) *requirement.Compiler {
	return requirement.NewCompiler(
		requirement.WithLocationPolicy(requirement.LocationPolicy(cfg.LocationPolicy)),
		requirement.WithLanguageSynonyms(cfg.LanguageSynonyms),
	)
}

func newSQLSource(ctx context.Context, cfg *SourceConfig) (*harvest.SQLSource, error) {
	if cfg == nil {
		return nil, fmt.Errorf("source section is required without --pair")
	}

	dsn, err := secrets.Load(secrets.Source{
		Name: "source dsn",
		File: cfg.DSNFile,
		Env:  envPrefix + "_SOURCE_DSN",
	})
	if err != nil {
		return nil, err
	}

	db, err := harvest.OpenDB(ctx, cfg.Driver, dsn)
	if err != nil {
		return nil, err
	}

	src := &harvest.SQLSource{
		DB:       db,
		Driver:   cfg.Driver,
		TenantID: cfg.TenantID,
		Statuses: cfg.Statuses,
		Skip:     cfg.Skip,
	}
	if cfg.CreatedAfter != "" {
		// validated by the config
		src.CreatedAfter, _ = time.Parse(time.DateOnly, cfg.CreatedAfter)
	}
	return src, nil
}
