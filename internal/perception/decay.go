package perception

import (
	"github.com/talgya/rumormill/internal/agents"
	"github.com/talgya/rumormill/internal/world"
)

// Decay ages every NPC's memories. Resilient NPCs forget faster, ruminating
// ones slower, and nobody stops forgetting entirely.
type Decay struct {
	// Removed is the running total of expired traces.
	Removed int
}

// Name identifies the system in the scheduler.
func (d *Decay) Name() string { return "memory-decay" }

// Run applies one tick of decay to every living NPC.
func (d *Decay) Run(w *world.World, tick uint64) {
	scale := w.Globals.Memory.TickScale
	if scale < 0 {
		scale = 0
	}
	w.EachNPC(func(n agents.NPC) bool {
		if !n.Alive || n.Memory == nil {
			return true
		}
		d.Removed += n.Memory.TickDecay(scale, n.Personality.DecayMultiplier())
		return true
	})
}
