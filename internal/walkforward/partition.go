package walkforward

import (
	"time"

	"github.com/newthinker/edgelab/internal/core"
)

// Split is one walk-forward segment. In-sample is [InStart, InEnd) and
// out-of-sample is [InEnd, OutEnd). The final split also includes OutEnd.
type Split struct {
	Index  int       `json:"index"`
	Start  time.Time `json:"start"`
	InEnd  time.Time `json:"in_end"`
	OutEnd time.Time `json:"out_end"`
	Last   bool      `json:"-"`
}

// InSample returns the half-open in-sample range.
func (s Split) InSample() (time.Time, time.Time) {
	return s.Start, s.InEnd
}

// OutSample returns the out-of-sample range as a half-open interval. The
// final split is widened so the closing date is included.
func (s Split) OutSample() (time.Time, time.Time) {
	if s.Last {
		return s.InEnd, s.OutEnd.Add(time.Nanosecond)
	}
	return s.InEnd, s.OutEnd
}

// Partition divides [start, end] into n contiguous, non-overlapping,
// equal-length segments. Segment i covers [start+i*L, start+(i+1)*L) and
// the last segment ends exactly at end. Within each segment the first
// fraction of its length is in-sample.
func Partition(start, end time.Time, n int, fraction float64) ([]Split, error) {
	if n < 1 {
		return nil, core.Errorf(core.ErrConfigInvalid, "splits must be >= 1, got %d", n)
	}
	if !(fraction > 0 && fraction < 1) {
		return nil, core.Errorf(core.ErrConfigInvalid, "in_sample_fraction must be in (0,1), got %v", fraction)
	}
	if end.Before(start) {
		return nil, core.Errorf(core.ErrConfigInvalid, "end %s before start %s", end, start)
	}

	length := end.Sub(start) / time.Duration(n)
	splits := make([]Split, n)
	for i := range splits {
		segStart := start.Add(time.Duration(i) * length)
		segEnd := start.Add(time.Duration(i+1) * length)
		if i == n-1 {
			segEnd = end
		}
		inLen := time.Duration(float64(segEnd.Sub(segStart)) * fraction)
		splits[i] = Split{
			Index:  i,
			Start:  segStart,
			InEnd:  segStart.Add(inLen),
			OutEnd: segEnd,
			Last:   i == n-1,
		}
	}
	return splits, nil
}
