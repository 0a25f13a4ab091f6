package strategy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/newthinker/edgelab/internal/core"
	"go.uber.org/zap"
)

// Registry holds the available strategies by name
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	logger     *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger ...*zap.Logger) *Registry {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &Registry{
		strategies: make(map[string]Strategy),
		logger:     l,
	}
}

// Register adds a strategy, replacing any with the same name
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	return s, ok
}

// Names returns the registered names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Generate runs the named strategy over a window and stamps its name on
// every signal.
func (r *Registry) Generate(ctx context.Context, name string, w Window) ([]core.Signal, error) {
	s, ok := r.Get(name)
	if !ok {
		return nil, core.Errorf(core.ErrConfigInvalid, "unknown strategy %q", name)
	}

	signals, err := s.Generate(ctx, w)
	if err != nil {
		r.logger.Warn("strategy generation failed",
			zap.String("strategy", name),
			zap.Error(err),
		)
		return nil, fmt.Errorf("strategy %s: %w", name, err)
	}

	for i := range signals {
		signals[i].Strategy = s.Name()
	}
	return signals, nil
}
