package montecarlo

import (
	"math/rand"

	"github.com/newthinker/edgelab/internal/stats"
)

// Sampler draws one simulated return path from a fitted pool
type Sampler interface {
	// Method names the sampling method.
	Method() Method
	// Path fills dst with consecutive per-bar returns.
	Path(rng *rand.Rand, dst []float64)
}

// Parametric draws independent Gaussian returns from a single normal fit
// of the pooled sample.
type Parametric struct {
	Mean float64
	Std  float64
}

// FitParametric fits a normal distribution to the pool. A constant pool
// fits exactly with zero spread.
func FitParametric(pool []float64) Parametric {
	mean, std := stats.MeanStdDev(pool)
	return Parametric{Mean: mean, Std: std}
}

func (p Parametric) Method() Method { return MethodParametric }

func (p Parametric) Path(rng *rand.Rand, dst []float64) {
	for i := range dst {
		if p.Std == 0 {
			dst[i] = p.Mean
			continue
		}
		dst[i] = p.Mean + p.Std*rng.NormFloat64()
	}
}

// BlockBootstrap resamples contiguous blocks of the pooled sequence,
// wrapping at the end, which keeps short-range autocorrelation and the
// empirical tails.
type BlockBootstrap struct {
	Pool      []float64
	BlockSize int
}

func (b BlockBootstrap) Method() Method { return MethodBlockBootstrap }

func (b BlockBootstrap) Path(rng *rand.Rand, dst []float64) {
	n := len(b.Pool)
	if n == 0 {
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	size := b.BlockSize
	if size <= 0 {
		size = 1
	}
	for i := 0; i < len(dst); {
		start := rng.Intn(n)
		for j := 0; j < size && i < len(dst); j++ {
			dst[i] = b.Pool[(start+j)%n]
			i++
		}
	}
}

// NewSampler builds the sampler for the configured method.
func NewSampler(cfg Config, pool []float64) Sampler {
	if cfg.Method == MethodBlockBootstrap {
		return BlockBootstrap{Pool: pool, BlockSize: cfg.BlockSize}
	}
	return FitParametric(pool)
}
