// Package perception turns world facts into first-hand memories and ages
// those memories over time.
package perception

import (
	"log/slog"

	"github.com/talgya/rumormill/internal/agents"
	"github.com/talgya/rumormill/internal/entity"
	"github.com/talgya/rumormill/internal/events"
	"github.com/talgya/rumormill/internal/grid"
	"github.com/talgya/rumormill/internal/world"
)

// minWitnessQuality is the perception fidelity at the edge of vision.
const minWitnessQuality = 0.05

// EncodingRule converts a fact into a memory for one witness. Encode may
// refuse, e.g. when the witness is the perpetrator.
type EncodingRule interface {
	Name() string
	Matches(f events.Fact) bool
	Encode(w *world.World, witness entity.ID, f events.Fact, quality float64) (agents.MemoryTrace, bool)
}

// EncodeStats counts what happened to one batch.
type EncodeStats struct {
	Facts      int `json:"facts"`
	Unmatched  int `json:"unmatched"`   // no rule matched
	NoLocation int `json:"no_location"` // fact had no cell
	Witnessed  int `json:"witnessed"`   // rule invocations
	Rejected   int `json:"rejected"`    // rule refused the witness
	Stored     int `json:"stored"`      // traces appended, merged or replaced
	Discarded  int `json:"discarded"`   // traces too weak for a full store
}

// Add accumulates o into s.
func (s *EncodeStats) Add(o EncodeStats) {
	s.Facts += o.Facts
	s.Unmatched += o.Unmatched
	s.NoLocation += o.NoLocation
	s.Witnessed += o.Witnessed
	s.Rejected += o.Rejected
	s.Stored += o.Stored
	s.Discarded += o.Discarded
}

// Encoder decides who witnessed each fact and records what they saw.
type Encoder struct {
	// rules are consulted in order and the first match wins. The order is
	// part of the behaviour: reordering changes which memories form.
	rules []EncodingRule
}

// NewEncoder creates an encoder over an ordered rule catalog.
func NewEncoder(rules []EncodingRule) *Encoder {
	return &Encoder{rules: rules}
}

// Rules returns the catalog in consultation order.
func (e *Encoder) Rules() []EncodingRule {
	return e.rules
}

func (e *Encoder) match(f events.Fact) EncodingRule {
	for _, r := range e.rules {
		if r.Matches(f) {
			return r
		}
	}
	return nil
}

// Encode processes one tick's batch against the living NPCs of w.
func (e *Encoder) Encode(w *world.World, batch []events.Fact, tick uint64) EncodeStats {
	var stats EncodeStats
	if len(batch) == 0 {
		return stats
	}

	visionRange := max(1, w.Globals.Vision.RangeCells)
	fusion := w.Globals.Perception.SpatialFusion
	region := w.Globals.Perception.RegionSize
	cohort := w.AliveNPCIDs()

	for _, f := range batch {
		stats.Facts++
		rule := e.match(f)
		if rule == nil {
			stats.Unmatched++
			continue
		}
		cell, ok := f.Location()
		if !ok {
			stats.NoLocation++
			continue
		}

		for _, id := range cohort {
			witness, ok := w.NPC(id)
			if !ok {
				continue
			}
			dist := grid.Manhattan(witness.Position, cell)
			if dist > visionRange {
				continue
			}
			quality := max(minWitnessQuality, 1-float64(dist)/float64(visionRange))

			stats.Witnessed++
			tr, accepted := rule.Encode(w, id, f, quality)
			if !accepted {
				stats.Rejected++
				continue
			}
			tr.CreatedTick = tick
			if fusion {
				tr.Cell = grid.Quantize(tr.Cell, region)
			}
			if witness.Memory.AddOrMerge(tr) == agents.Discarded {
				stats.Discarded++
				continue
			}
			stats.Stored++
		}
	}

	if stats.Facts > 0 {
		slog.Debug("facts encoded",
			"tick", tick,
			"facts", stats.Facts,
			"stored", stats.Stored,
			"unmatched", stats.Unmatched,
		)
	}
	return stats
}
