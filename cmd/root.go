package cmd

import (
	"errors"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/talent-screener/internal/diagnosis"
	"github.com/spigell/talent-screener/internal/requirement"
)

const (
	app       = "talent-screener"
	envPrefix = "TALENT_SCREENER"
)

type Config struct {
	Elastic   *ElasticConfig   `mapstructure:"elastic" validate:"required"`
	Diagnosis *DiagnosisConfig `mapstructure:"diagnosis" validate:"required"`
	Source    *SourceConfig    `mapstructure:"source"`
	Harvest   *HarvestConfig   `mapstructure:"harvest" validate:"required"`
}

type ElasticConfig struct {
	Addresses       []string      `mapstructure:"addresses" validate:"required,min=1,dive,url"`
	Username        string        `mapstructure:"username"`
	PasswordFile    string        `mapstructure:"password-file" json:"-"`
	APIKeyFile      string        `mapstructure:"api-key-file" json:"-"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"gte=0"`
	RateLimit       float64       `mapstructure:"rate-limit" validate:"gte=0"`
	Burst           int           `mapstructure:"burst" validate:"gte=0"`
	JobsIndex       string        `mapstructure:"jobs-index" validate:"required"`
	CandidatesIndex string        `mapstructure:"candidates-index" validate:"required"`
	Schema          string        `mapstructure:"schema" validate:"oneof=static mapping"`
}

type DiagnosisConfig struct {
	Strategy                string              `mapstructure:"strategy" validate:"oneof=linear exhaustive"`
	Concurrency             int                 `mapstructure:"concurrency" validate:"gte=1"`
	RefineExpanded          bool                `mapstructure:"refine-expanded"`
	LocationPolicy          string              `mapstructure:"location-policy" validate:"oneof=preferred required"`
	MaxExhaustiveConditions int                 `mapstructure:"max-exhaustive-conditions" validate:"gte=1,lte=63"`
	LanguageSynonyms        map[string][]string `mapstructure:"language-synonyms"`
}

type SourceConfig struct {
	Driver       string `mapstructure:"driver" validate:"oneof=mysql pgx sqlite"`
	DSNFile      string `mapstructure:"dsn-file" json:"-"`
	TenantID     int64  `mapstructure:"tenant-id"`
	CreatedAfter string `mapstructure:"created-after" validate:"omitempty,datetime=2006-01-02"`
	Statuses     []int  `mapstructure:"statuses"`
	Skip         int    `mapstructure:"skip" validate:"gte=0"`
}

type HarvestConfig struct {
	Workers     int      `mapstructure:"workers" validate:"gte=1"`
	ExcludeJobs []string `mapstructure:"exclude-jobs"`
	ExcludeFile string   `mapstructure:"exclude-file"`
	Store       string   `mapstructure:"store" validate:"required"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "talent-screener explains which job requirements a candidate does not satisfy",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is talent-screener.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("elastic.schema", "static")
	v.SetDefault("elastic.timeout", 10*time.Second)
	v.SetDefault("elastic.jobs-index", "jobs")
	v.SetDefault("elastic.candidates-index", "talents")
	v.SetDefault("diagnosis.strategy", diagnosis.StrategyLinear)
	v.SetDefault("diagnosis.concurrency", 4)
	v.SetDefault("diagnosis.location-policy", string(requirement.LocationPreferred))
	v.SetDefault("diagnosis.max-exhaustive-conditions", diagnosis.DefaultMaxConditions)
	v.SetDefault("source.driver", "mysql")
	v.SetDefault("harvest.workers", 4)
	v.SetDefault("harvest.store", app+".db")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

func initConfig() {
	// The version command works without any config.
	if versionCmd.CalledAs() != "" {
		return
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env file: %v", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// We can't proceed if the config file parsed with error.
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	return loadConfig(viper.GetViper())
}

func loadConfig(v *viper.Viper) (*Config, error) {
	var config *Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if config == nil {
		return nil, errors.New("config is empty")
	}

	if err := validator.New().Struct(config); err != nil {
		return nil, err
	}
	return config, nil
}
