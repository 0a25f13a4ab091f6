package backtest

import (
	"github.com/newthinker/edgelab/internal/core"
)

// UntimedPolicy decides how signals without a timestamp are placed in history
type UntimedPolicy string

const (
	// UntimedLatest enters at the most recent complete holding window.
	UntimedLatest UntimedPolicy = "latest"
	// UntimedEnumerate enters at every stride-spaced historical offset.
	UntimedEnumerate UntimedPolicy = "enumerate"
	// UntimedRequire skips signals without a timestamp.
	UntimedRequire UntimedPolicy = "require"
)

// DefaultHoldingPeriod is the default holding period in bars.
const DefaultHoldingPeriod = 21

// Config configures the trade simulator
type Config struct {
	HoldingPeriod int           `mapstructure:"holding_period" json:"holding_period"`
	UntimedPolicy UntimedPolicy `mapstructure:"untimed_policy" json:"untimed_policy"`
	UntimedStride int           `mapstructure:"untimed_stride" json:"untimed_stride,omitempty"`
}

// DefaultConfig returns the simulator defaults.
func DefaultConfig() Config {
	return Config{
		HoldingPeriod: DefaultHoldingPeriod,
		UntimedPolicy: UntimedLatest,
	}
}

// Validate rejects configurations that would produce misleading trades.
func (c Config) Validate() error {
	if c.HoldingPeriod <= 0 {
		return core.Errorf(core.ErrConfigInvalid, "holding_period must be positive, got %d", c.HoldingPeriod)
	}
	switch c.UntimedPolicy {
	case "", UntimedLatest, UntimedEnumerate, UntimedRequire:
	default:
		return core.Errorf(core.ErrConfigInvalid, "unknown untimed_policy %q", c.UntimedPolicy)
	}
	if c.UntimedStride < 0 {
		return core.Errorf(core.ErrConfigInvalid, "untimed_stride must be >= 0, got %d", c.UntimedStride)
	}
	return nil
}

func (c Config) stride() int {
	if c.UntimedStride > 0 {
		return c.UntimedStride
	}
	return c.HoldingPeriod
}

func (c Config) policy() UntimedPolicy {
	if c.UntimedPolicy == "" {
		return UntimedLatest
	}
	return c.UntimedPolicy
}
