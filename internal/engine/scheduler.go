package engine

import (
	"sort"

	"github.com/talgya/rumormill/internal/world"
)

// System is a low-level periodic process. It may mutate the world and
// publish facts.
type System interface {
	Name() string
	Run(w *world.World, tick uint64)
}

// Scheduler groups systems by period. A period-p bucket runs on ticks that
// are multiples of p. Buckets run in ascending period order and systems
// within a bucket in registration order.
type Scheduler struct {
	periods []int // ascending, unique
	buckets map[int][]System
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{buckets: make(map[int][]System)}
}

// Register adds s to the bucket for period. Periods below 1 become 1.
func (s *Scheduler) Register(period int, sys System) {
	period = max(1, period)
	if _, ok := s.buckets[period]; !ok {
		i := sort.SearchInts(s.periods, period)
		s.periods = append(s.periods, 0)
		copy(s.periods[i+1:], s.periods[i:])
		s.periods[i] = period
	}
	s.buckets[period] = append(s.buckets[period], sys)
}

// SystemsToRun appends the systems due at tick to out, in run order.
func (s *Scheduler) SystemsToRun(tick uint64, out []System) []System {
	for _, p := range s.periods {
		if tick%uint64(p) != 0 {
			continue
		}
		out = append(out, s.buckets[p]...)
	}
	return out
}

// Periods returns the registered periods in ascending order.
func (s *Scheduler) Periods() []int {
	out := make([]int, len(s.periods))
	copy(out, s.periods)
	return out
}

// Len returns the number of registered systems.
func (s *Scheduler) Len() int {
	n := 0
	for _, p := range s.periods {
		n += len(s.buckets[p])
	}
	return n
}
