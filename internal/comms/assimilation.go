package comms

import (
	"log/slog"

	"github.com/talgya/rumormill/internal/agents"
	"github.com/talgya/rumormill/internal/world"
)

// heardDecayFactor makes hearsay fade faster than experience.
const heardDecayFactor = 1.25

// AssimilationRule turns a delivered token into a memory for the listener.
type AssimilationRule interface {
	Name() string
	Matches(tok Token) bool
	Assimilate(w *world.World, env Envelope) (agents.MemoryTrace, bool)
}

// AssimilateStats counts assimilation outcomes for one drain.
type AssimilateStats struct {
	Assimilated int `json:"assimilated"`
	Unhandled   int `json:"unhandled"` // no rule matched
	Rejected    int `json:"rejected"`  // rule declined
	Missing     int `json:"missing"`   // listener gone
	Merged      int `json:"merged"`
	Discarded   int `json:"discarded"` // store full of more important memories
}

// Add accumulates o into s.
func (s *AssimilateStats) Add(o AssimilateStats) {
	s.Assimilated += o.Assimilated
	s.Unhandled += o.Unhandled
	s.Rejected += o.Rejected
	s.Missing += o.Missing
	s.Merged += o.Merged
	s.Discarded += o.Discarded
}

// Assimilator converts inbound tokens into second-hand memories.
type Assimilator struct {
	rules  []AssimilationRule
	Totals AssimilateStats
}

// NewAssimilator creates an assimilator over an ordered rule catalog.
func NewAssimilator(rules []AssimilationRule) *Assimilator {
	return &Assimilator{rules: rules}
}

func (a *Assimilator) match(tok Token) AssimilationRule {
	for _, r := range a.rules {
		if r.Matches(tok) {
			return r
		}
	}
	return nil
}

// Assimilate drains the inbound queue into listener memory stores.
func (a *Assimilator) Assimilate(w *world.World, bus *Bus) AssimilateStats {
	var stats AssimilateStats

	for _, env := range bus.DrainInbound() {
		listener, ok := w.NPC(env.ListenerID)
		if !ok || !listener.Alive || listener.Memory == nil {
			stats.Missing++
			continue
		}
		rule := a.match(env.Token)
		if rule == nil {
			stats.Unhandled++
			slog.Debug("unhandled token", "type", env.Token.Type(), "listener", env.ListenerID)
			continue
		}
		tr, ok := rule.Assimilate(w, env)
		if !ok {
			stats.Rejected++
			continue
		}
		tr.CreatedTick = env.Tick

		switch listener.Memory.AddOrMerge(tr) {
		case agents.Discarded:
			stats.Discarded++
		case agents.Merged:
			stats.Merged++
			stats.Assimilated++
		default:
			stats.Assimilated++
		}
	}

	a.Totals.Add(stats)
	return stats
}

// HeardKindOf classifies hearsay by how many hand-offs preceded it.
func HeardKindOf(chainDepth int) agents.HeardKind {
	if chainDepth == 0 {
		return agents.DirectHeard
	}
	return agents.RumorHeard
}
