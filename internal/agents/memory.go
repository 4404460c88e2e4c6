package agents

import (
	"github.com/talgya/rumormill/internal/entity"
	"github.com/talgya/rumormill/internal/grid"
)

// DefaultMaxTraces is used when a personality does not set a capacity.
const DefaultMaxTraces = 32

// mergeBonus is added to intensity when a trace is observed again.
const mergeBonus = 0.05

// expiryEpsilon absorbs float drift so repeated subtraction reaching zero
// on paper also reaches it in practice.
const expiryEpsilon = 1e-9

// TraceType enumerates what a memory is about.
type TraceType uint8

const (
	TracePredatorSeen TraceType = iota
	TraceAttackSuffered
	TraceAttackWitnessed
	TraceTheftSuffered
	TraceTheftWitnessed
	TraceTrespassWitnessed
	TraceFoodSource
)

var traceTypeNames = [...]string{
	"predator_seen",
	"attack_suffered",
	"attack_witnessed",
	"theft_suffered",
	"theft_witnessed",
	"trespass_witnessed",
	"food_source",
}

func (t TraceType) String() string {
	if int(t) < len(traceTypeNames) {
		return traceTypeNames[t]
	}
	return "unknown"
}

// HeardKind tags how a memory was acquired.
type HeardKind uint8

const (
	HeardNone   HeardKind = iota // first-hand
	DirectHeard                  // told by someone who saw it
	RumorHeard                   // passed through more than one mind
)

// MemoryTrace is one remembered fact.
type MemoryTrace struct {
	Type          TraceType `json:"type"`
	SubjectID     entity.ID `json:"subject_id"`
	SecondaryID   entity.ID `json:"secondary_id,omitempty"` // 0 = none
	Cell          grid.Cell `json:"cell"`
	Intensity     float64   `json:"intensity"`   // 0.0–1.0
	Reliability   float64   `json:"reliability"` // 0.0–1.0
	DecayPerTick  float64   `json:"decay_per_tick"`
	IsHeard       bool      `json:"is_heard"`
	HeardKind     HeardKind `json:"heard_kind"`
	SourceSpeaker entity.ID `json:"source_speaker,omitempty"`
	CreatedTick   uint64    `json:"created_tick"`
}

// Importance is the eviction and emission priority of a trace.
func (t *MemoryTrace) Importance() float64 {
	return t.Intensity * t.Reliability
}

func (t *MemoryTrace) sameKey(o *MemoryTrace) bool {
	return t.Type == o.Type && t.SubjectID == o.SubjectID && t.Cell == o.Cell
}

// MemoryStore is a capacity-bounded, ordered set of traces keyed by
// (type, subject, cell).
type MemoryStore struct {
	maxTraces int
	traces    []MemoryTrace
}

// NewMemoryStore creates a store. Capacity below 1 uses DefaultMaxTraces.
func NewMemoryStore(maxTraces int) *MemoryStore {
	if maxTraces < 1 {
		maxTraces = DefaultMaxTraces
	}
	return &MemoryStore{maxTraces: maxTraces, traces: make([]MemoryTrace, 0, maxTraces)}
}

// Len returns the number of traces held.
func (s *MemoryStore) Len() int {
	return len(s.traces)
}

// Cap returns the store capacity.
func (s *MemoryStore) Cap() int {
	return s.maxTraces
}

// Traces returns a copy of all traces in store order.
func (s *MemoryStore) Traces() []MemoryTrace {
	out := make([]MemoryTrace, len(s.traces))
	copy(out, s.traces)
	return out
}

// AddOrMergeResult reports what AddOrMerge did.
type AddOrMergeResult uint8

const (
	Merged AddOrMergeResult = iota
	Appended
	Replaced
	Discarded
)

// AddOrMerge records t. A trace with the same key is reinforced in place;
// otherwise t is appended, or replaces the weakest trace when the store is
// full. A full store discards t if it is no more important than the weakest.
func (s *MemoryStore) AddOrMerge(t MemoryTrace) AddOrMergeResult {
	for i := range s.traces {
		cur := &s.traces[i]
		if !cur.sameKey(&t) {
			continue
		}
		intensity := max(cur.Intensity, t.Intensity) + mergeBonus
		if intensity > 1 {
			intensity = 1
		}
		merged := t
		merged.Intensity = intensity
		merged.Reliability = max(cur.Reliability, t.Reliability)
		merged.DecayPerTick = min(cur.DecayPerTick, t.DecayPerTick)
		*cur = merged
		return Merged
	}

	if len(s.traces) < s.maxTraces {
		s.traces = append(s.traces, t)
		return Appended
	}

	// First-encountered minimum wins ties.
	minIdx := 0
	minImp := s.traces[0].Importance()
	for i := 1; i < len(s.traces); i++ {
		if imp := s.traces[i].Importance(); imp < minImp {
			minIdx, minImp = i, imp
		}
	}
	if t.Importance() <= minImp {
		return Discarded
	}
	s.traces[minIdx] = t
	return Replaced
}

// TickDecay lowers every trace's intensity by decayPerTick·tickScale·multiplier
// and removes traces that reach zero, keeping survivors in order.
// It returns the number removed.
func (s *MemoryStore) TickDecay(tickScale, decayMultiplier float64) int {
	kept := s.traces[:0]
	for _, t := range s.traces {
		t.Intensity -= t.DecayPerTick * tickScale * decayMultiplier
		if t.Intensity <= expiryEpsilon {
			continue
		}
		kept = append(kept, t)
	}
	removed := len(s.traces) - len(kept)
	// Zero the tail so dropped traces do not linger in the backing array.
	for i := len(kept); i < len(s.traces); i++ {
		s.traces[i] = MemoryTrace{}
	}
	s.traces = kept
	return removed
}

// TopTraces appends up to maxCount traces to out, ordered by descending
// importance, and returns the extended slice. Equal importance keeps store
// order. The store is not modified.
func (s *MemoryStore) TopTraces(maxCount int, out []MemoryTrace) []MemoryTrace {
	if maxCount <= 0 || len(s.traces) == 0 {
		return out
	}
	if maxCount > len(s.traces) {
		maxCount = len(s.traces)
	}

	taken := make([]bool, len(s.traces))
	for n := 0; n < maxCount; n++ {
		best := -1
		for i := range s.traces {
			if taken[i] {
				continue
			}
			if best < 0 || s.traces[i].Importance() > s.traces[best].Importance() {
				best = i
			}
		}
		taken[best] = true
		out = append(out, s.traces[best])
	}
	return out
}

// Find returns the trace with the given key.
func (s *MemoryStore) Find(typ TraceType, subject entity.ID, cell grid.Cell) (MemoryTrace, bool) {
	for _, t := range s.traces {
		if t.Type == typ && t.SubjectID == subject && t.Cell == cell {
			return t, true
		}
	}
	return MemoryTrace{}, false
}

// Restore replaces the store contents, truncating to capacity. Used when
// loading saved state.
func (s *MemoryStore) Restore(traces []MemoryTrace) {
	if len(traces) > s.maxTraces {
		traces = traces[:s.maxTraces]
	}
	s.traces = append(s.traces[:0], traces...)
}
