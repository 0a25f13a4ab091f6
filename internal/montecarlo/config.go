package montecarlo

import (
	"github.com/newthinker/edgelab/internal/core"
)

// Method selects how return paths are sampled
type Method string

const (
	MethodParametric     Method = "parametric"
	MethodBlockBootstrap Method = "block_bootstrap"
)

// Config configures the simulator
type Config struct {
	Simulations int    `mapstructure:"simulations" json:"simulations"`
	Horizon     int    `mapstructure:"horizon" json:"horizon"`
	Method      Method `mapstructure:"method" json:"method"`
	BlockSize   int    `mapstructure:"block_size" json:"block_size,omitempty"`
	Seed        int64  `mapstructure:"seed" json:"seed,omitempty"` // 0 seeds from the clock
	SampleSize  int    `mapstructure:"sample_size" json:"sample_size"`
}

// DefaultConfig returns the simulator defaults.
func DefaultConfig() Config {
	return Config{
		Simulations: 1000,
		Horizon:     252,
		Method:      MethodParametric,
		BlockSize:   5,
		SampleSize:  100,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Simulations <= 0 {
		return core.Errorf(core.ErrConfigInvalid, "simulations must be positive, got %d", c.Simulations)
	}
	if c.Horizon <= 0 {
		return core.Errorf(core.ErrConfigInvalid, "horizon must be positive, got %d", c.Horizon)
	}
	switch c.Method {
	case "", MethodParametric, MethodBlockBootstrap:
	default:
		return core.Errorf(core.ErrConfigInvalid, "unknown monte carlo method %q", c.Method)
	}
	if c.Method == MethodBlockBootstrap && c.BlockSize <= 0 {
		return core.Errorf(core.ErrConfigInvalid, "block_size must be positive, got %d", c.BlockSize)
	}
	if c.SampleSize < 0 {
		return core.Errorf(core.ErrConfigInvalid, "sample_size must be >= 0, got %d", c.SampleSize)
	}
	return nil
}
