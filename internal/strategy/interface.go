package strategy

import (
	"context"
	"time"

	"github.com/newthinker/edgelab/internal/core"
)

// Config holds strategy configuration
type Config struct {
	Params map[string]any
}

// Window is the slice of history a strategy may look at. Prices are
// already restricted to [Start, End).
type Window struct {
	Start  time.Time
	End    time.Time
	Prices core.PriceMap
}

// Strategy generates timestamped signals from a window of history
type Strategy interface {
	Name() string
	Description() string
	Init(cfg Config) error
	Generate(ctx context.Context, w Window) ([]core.Signal, error)
}

// IntParam reads an integer parameter that may have been decoded from
// YAML or JSON as a float.
func (c Config) IntParam(key string) (int, bool) {
	switch v := c.Params[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// StringParam reads a string parameter.
func (c Config) StringParam(key string) (string, bool) {
	v, ok := c.Params[key].(string)
	return v, ok
}
