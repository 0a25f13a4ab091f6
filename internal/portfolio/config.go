package portfolio

import (
	"time"

	"github.com/newthinker/edgelab/internal/core"
)

// Sizing is the position-sizing policy
type Sizing string

const (
	SizingEqual         Sizing = "equal"
	SizingScoreWeighted Sizing = "score_weighted"
)

// Config configures the equity engine
type Config struct {
	MaxPositions   int       `json:"max_positions"`
	Sizing         Sizing    `json:"sizing"`
	InitialCapital float64   `json:"initial_capital"`
	Start          time.Time `json:"start,omitempty"` // inclusive, zero is open
	End            time.Time `json:"end,omitempty"`   // inclusive, zero is open
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxPositions:   20,
		Sizing:         SizingEqual,
		InitialCapital: 100000,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxPositions <= 0 {
		return core.Errorf(core.ErrConfigInvalid, "max_positions must be positive, got %d", c.MaxPositions)
	}
	switch c.Sizing {
	case "", SizingEqual, SizingScoreWeighted:
	default:
		return core.Errorf(core.ErrConfigInvalid, "unknown sizing %q", c.Sizing)
	}
	if c.InitialCapital <= 0 {
		return core.Errorf(core.ErrConfigInvalid, "initial_capital must be positive, got %v", c.InitialCapital)
	}
	if !c.Start.IsZero() && !c.End.IsZero() && c.End.Before(c.Start) {
		return core.Errorf(core.ErrConfigInvalid, "end %s before start %s",
			c.End.Format("2006-01-02"), c.Start.Format("2006-01-02"))
	}
	return nil
}

func (c Config) contains(t time.Time) bool {
	if !c.Start.IsZero() && t.Before(c.Start) {
		return false
	}
	if !c.End.IsZero() && t.After(c.End) {
		return false
	}
	return true
}

func (c Config) window(ps core.PriceSeries) core.PriceSeries {
	lo, hi := 0, len(ps)
	for lo < hi && !c.contains(ps[lo].Date) {
		lo++
	}
	for hi > lo && !c.contains(ps[hi-1].Date) {
		hi--
	}
	return ps[lo:hi]
}
