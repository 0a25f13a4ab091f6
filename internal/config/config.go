package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/newthinker/edgelab/internal/analysis"
	"github.com/newthinker/edgelab/internal/backtest"
	"github.com/newthinker/edgelab/internal/core"
	"github.com/newthinker/edgelab/internal/montecarlo"
	"github.com/newthinker/edgelab/internal/portfolio"
	"github.com/newthinker/edgelab/internal/validation"
	"github.com/newthinker/edgelab/internal/walkforward"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. EDGELAB_SERVER_PORT.
const EnvPrefix = "EDGELAB"

// DateLayout is the layout of date-valued settings.
const DateLayout = "2006-01-02"

type Config struct {
	Server     ServerConfig              `mapstructure:"server"`
	Storage    StorageConfig             `mapstructure:"storage"`
	Metrics    MetricsConfig             `mapstructure:"metrics"`
	Analysis   AnalysisConfig            `mapstructure:"analysis"`
	Strategies map[string]StrategyConfig `mapstructure:"strategies"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Mode        string `mapstructure:"mode"`
	JobTTLHours int    `mapstructure:"job_ttl_hours"`
	MaxJobs     int    `mapstructure:"max_jobs"`
	Workers     int    `mapstructure:"workers"`
}

type StorageConfig struct {
	Type string   `mapstructure:"type"` // "localfs" or "s3"
	Path string   `mapstructure:"path"` // For localfs
	S3   S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// AnalysisConfig holds the default analysis options.
type AnalysisConfig struct {
	Backtest    backtest.Config    `mapstructure:"backtest"`
	Benchmark   string             `mapstructure:"benchmark"`
	Portfolio   PortfolioConfig    `mapstructure:"portfolio"`
	WalkForward walkforward.Config `mapstructure:"walk_forward"`
	MonteCarlo  montecarlo.Config  `mapstructure:"monte_carlo"`
	Validation  validation.Config  `mapstructure:"validation"`
	Stages      StagesConfig       `mapstructure:"stages"`
}

// PortfolioConfig mirrors portfolio.Config with dates as strings.
type PortfolioConfig struct {
	MaxPositions   int     `mapstructure:"max_positions"`
	Sizing         string  `mapstructure:"sizing"`
	InitialCapital float64 `mapstructure:"initial_capital"`
	Start          string  `mapstructure:"start"` // YYYY-MM-DD, inclusive
	End            string  `mapstructure:"end"`   // YYYY-MM-DD, inclusive
}

// StagesConfig toggles the optional analysis stages.
type StagesConfig struct {
	Portfolio    bool `mapstructure:"portfolio"`
	Significance bool `mapstructure:"significance"`
	WalkForward  bool `mapstructure:"walk_forward"`
	MonteCarlo   bool `mapstructure:"monte_carlo"`
	Validation   bool `mapstructure:"validation"`
}

type StrategyConfig struct {
	Enabled bool           `mapstructure:"enabled"`
	Params  map[string]any `mapstructure:"params"`
}

// Load reads configuration from file. An empty path loads the defaults
// with environment overrides only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	// Support environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	opts := analysis.DefaultOptions()
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			Mode:        "release",
			JobTTLHours: 1,
			MaxJobs:     100,
			Workers:     analysis.DefaultWorkers,
		},
		Storage: StorageConfig{
			Type: "localfs",
			Path: "./data",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Analysis: AnalysisConfig{
			Backtest: opts.Backtest,
			Portfolio: PortfolioConfig{
				MaxPositions:   opts.Portfolio.MaxPositions,
				Sizing:         string(opts.Portfolio.Sizing),
				InitialCapital: opts.Portfolio.InitialCapital,
			},
			WalkForward: opts.WalkForward,
			MonteCarlo:  opts.MonteCarlo,
			Validation:  opts.Validation,
			Stages: StagesConfig{
				Portfolio:    opts.RunPortfolio,
				Significance: opts.RunSignificance,
				WalkForward:  opts.RunWalkForward,
				MonteCarlo:   opts.RunMonteCarlo,
				Validation:   opts.RunValidation,
			},
		},
	}
}

// setDefaults registers every defaulted key so environment overrides
// apply even when the file omits the key.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.job_ttl_hours", d.Server.JobTTLHours)
	v.SetDefault("server.max_jobs", d.Server.MaxJobs)
	v.SetDefault("server.workers", d.Server.Workers)

	v.SetDefault("storage.type", d.Storage.Type)
	v.SetDefault("storage.path", d.Storage.Path)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)

	a := d.Analysis
	v.SetDefault("analysis.benchmark", a.Benchmark)
	v.SetDefault("analysis.backtest.holding_period", a.Backtest.HoldingPeriod)
	v.SetDefault("analysis.backtest.untimed_policy", string(a.Backtest.UntimedPolicy))
	v.SetDefault("analysis.backtest.untimed_stride", a.Backtest.UntimedStride)
	v.SetDefault("analysis.portfolio.max_positions", a.Portfolio.MaxPositions)
	v.SetDefault("analysis.portfolio.sizing", a.Portfolio.Sizing)
	v.SetDefault("analysis.portfolio.initial_capital", a.Portfolio.InitialCapital)
	v.SetDefault("analysis.portfolio.start", a.Portfolio.Start)
	v.SetDefault("analysis.portfolio.end", a.Portfolio.End)
	v.SetDefault("analysis.walk_forward.splits", a.WalkForward.Splits)
	v.SetDefault("analysis.walk_forward.in_sample_fraction", a.WalkForward.InSampleFraction)
	v.SetDefault("analysis.monte_carlo.simulations", a.MonteCarlo.Simulations)
	v.SetDefault("analysis.monte_carlo.horizon", a.MonteCarlo.Horizon)
	v.SetDefault("analysis.monte_carlo.method", string(a.MonteCarlo.Method))
	v.SetDefault("analysis.monte_carlo.block_size", a.MonteCarlo.BlockSize)
	v.SetDefault("analysis.monte_carlo.seed", a.MonteCarlo.Seed)
	v.SetDefault("analysis.monte_carlo.sample_size", a.MonteCarlo.SampleSize)
	v.SetDefault("analysis.validation.iterations", a.Validation.Iterations)
	v.SetDefault("analysis.validation.window_bars", a.Validation.WindowBars)
	v.SetDefault("analysis.validation.step_bars", a.Validation.StepBars)
	v.SetDefault("analysis.stages.portfolio", a.Stages.Portfolio)
	v.SetDefault("analysis.stages.significance", a.Stages.Significance)
	v.SetDefault("analysis.stages.walk_forward", a.Stages.WalkForward)
	v.SetDefault("analysis.stages.monte_carlo", a.Stages.MonteCarlo)
	v.SetDefault("analysis.stages.validation", a.Stages.Validation)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.MaxJobs < 0 || c.Server.JobTTLHours < 0 || c.Server.Workers < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("max_jobs, job_ttl_hours and workers cannot be negative"))
	}

	// Storage validation
	switch c.Storage.Type {
	case "", "localfs":
		if c.Storage.Path == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("storage path required when type is localfs"))
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("s3 bucket required when type is s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown storage type %q", c.Storage.Type))
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("metrics path must start with /, got %q", c.Metrics.Path))
	}

	opts, err := c.Analysis.Options()
	if err != nil {
		return err
	}
	return opts.Validate()
}

// Options converts the analysis section into analysis options.
func (a AnalysisConfig) Options() (analysis.Options, error) {
	start, err := parseDate("analysis.portfolio.start", a.Portfolio.Start)
	if err != nil {
		return analysis.Options{}, err
	}
	end, err := parseDate("analysis.portfolio.end", a.Portfolio.End)
	if err != nil {
		return analysis.Options{}, err
	}

	return analysis.Options{
		Backtest: a.Backtest,
		Portfolio: portfolio.Config{
			MaxPositions:   a.Portfolio.MaxPositions,
			Sizing:         portfolio.Sizing(a.Portfolio.Sizing),
			InitialCapital: a.Portfolio.InitialCapital,
			Start:          start,
			End:            end,
		},
		WalkForward:     a.WalkForward,
		MonteCarlo:      a.MonteCarlo,
		Validation:      a.Validation,
		Benchmark:       a.Benchmark,
		RunPortfolio:    a.Stages.Portfolio,
		RunSignificance: a.Stages.Significance,
		RunWalkForward:  a.Stages.WalkForward,
		RunMonteCarlo:   a.Stages.MonteCarlo,
		RunValidation:   a.Stages.Validation,
	}, nil
}

func parseDate(key, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("%s: %w", key, err))
	}
	return t, nil
}
