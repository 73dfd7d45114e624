package actuation

import (
	"sort"
	"sync"
	"time"

	"github.com/aescanero/waypoint/pkg/domain"
)

// Interval is one hold of the channel.
type Interval struct {
	Holder     domain.PhaseKind
	AcquiredAt time.Time
	ReleasedAt time.Time
}

// Recorder is an Observer that keeps every completed hold interval.
type Recorder struct {
	mu        sync.Mutex
	open      map[domain.PhaseKind][]time.Time
	intervals []Interval
	active    int
	maxActive int
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{open: make(map[domain.PhaseKind][]time.Time)}
}

// Acquired implements Observer.
func (r *Recorder) Acquired(holder domain.PhaseKind, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open[holder] = append(r.open[holder], at)
	r.active++
	if r.active > r.maxActive {
		r.maxActive = r.active
	}
}

// Released implements Observer.
func (r *Recorder) Released(holder domain.PhaseKind, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	starts := r.open[holder]
	if len(starts) == 0 {
		return
	}
	r.intervals = append(r.intervals, Interval{Holder: holder, AcquiredAt: starts[0], ReleasedAt: at})
	r.open[holder] = starts[1:]
	r.active--
}

// Intervals returns completed intervals ordered by acquisition time.
func (r *Recorder) Intervals() []Interval {
	r.mu.Lock()
	out := append([]Interval(nil), r.intervals...)
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].AcquiredAt.Before(out[j].AcquiredAt) })
	return out
}

// MaxConcurrentHolders is the largest number of simultaneous holders seen.
// For a correct channel it never exceeds one.
func (r *Recorder) MaxConcurrentHolders() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxActive
}

// Overlapping returns the first pair of intervals that overlap in time.
func Overlapping(intervals []Interval) (Interval, Interval, bool) {
	sorted := append([]Interval(nil), intervals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].AcquiredAt.Before(sorted[j].AcquiredAt) })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].AcquiredAt.Before(sorted[i-1].ReleasedAt) {
			return sorted[i-1], sorted[i], true
		}
	}
	return Interval{}, Interval{}, false
}
