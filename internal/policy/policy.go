// Package policy turns needs into intents. An NPC acts only on what it can
// see from where it stands: objects and other NPCs within the decision range
// and with a clear line of sight. Its own beds are the exception; it knows
// them from ownership.
package policy

import (
	"github.com/talgya/rumormill/internal/agents"
	"github.com/talgya/rumormill/internal/command"
	"github.com/talgya/rumormill/internal/entity"
	"github.com/talgya/rumormill/internal/grid"
	"github.com/talgya/rumormill/internal/world"
)

// Policy is the needs-driven decision maker.
type Policy struct {
	Params world.NeedParams
	Range  int
}

// New creates a policy from the world's tuning.
func New(g world.GlobalState) *Policy {
	return &Policy{Params: g.Needs, Range: max(1, g.Vision.DecisionRangeCells)}
}

// view is what one NPC can see this round.
type view struct {
	self    agents.NPC
	stocks  []world.Object // community stocks with food left
	beds    []world.Object // free visible beds, any owner
	ownBeds []world.Object // free beds owned by self, seen or not
	holders []agents.NPC   // other living NPCs carrying food
}

func (p *Policy) look(w *world.World, self agents.NPC) view {
	v := view{self: self}
	rng := max(1, p.Range)

	w.EachObject(func(o world.Object) bool {
		freeBed := o.IsBed() && (o.InUseBy == 0 || o.InUseBy == self.ID)
		if freeBed && o.OwnerID == self.ID {
			v.ownBeds = append(v.ownBeds, o)
		}
		if !w.CanSee(self.Position, o.Cell, rng) {
			return true
		}
		if units, ok := w.FoodStock(o.ID); ok && units > 0 && o.IsCommunity() {
			v.stocks = append(v.stocks, o)
		}
		if freeBed {
			v.beds = append(v.beds, o)
		}
		return true
	})
	w.EachNPC(func(n agents.NPC) bool {
		if n.ID == self.ID || !n.Alive || w.PrivateFood(n.ID) <= 0 {
			return true
		}
		if w.CanSee(self.Position, n.Position, rng) {
			v.holders = append(v.holders, n)
		}
		return true
	})
	return v
}

// Decide returns at most one command for the NPC. Hunger is considered
// before fatigue. Within a need the NPC prefers its own resources, then
// visible community ones, and only then takes from others, which it does
// when it feels the world is unfair or the need has become an emergency.
func (p *Policy) Decide(w *world.World, id entity.ID) (command.Command, bool) {
	self, ok := w.NPC(id)
	if !ok || !self.Alive {
		return nil, false
	}
	needs := self.Needs
	unjust := self.JusticePerception < p.Params.JusticeThreshold

	var v view
	looked := false
	see := func() view {
		if !looked {
			v = p.look(w, self)
			looked = true
		}
		return v
	}

	if needs.Hunger > p.Params.HungerThreshold {
		if w.PrivateFood(id) > 0 {
			return command.EatPrivate{NPC: id}, true
		}
		if o, ok := nearestObject(self.Position, see().stocks, nil); ok {
			return command.EatCommunity{NPC: id, Stock: o.ID}, true
		}
		if unjust || needs.Hunger >= p.Params.HungerEmergency {
			if victim, ok := nearestNPC(self.Position, see().holders); ok {
				return command.Steal{Thief: id, Victim: victim.ID}, true
			}
		}
	}

	if needs.Fatigue > p.Params.FatigueThreshold {
		beds := see().beds
		if o, ok := nearestObject(self.Position, see().ownBeds, nil); ok {
			return command.SleepOwn{NPC: id, Bed: o.ID}, true
		}
		if o, ok := nearestObject(self.Position, beds, func(o world.Object) bool { return o.IsCommunity() }); ok {
			return command.SleepCommunity{NPC: id, Bed: o.ID}, true
		}
		if unjust || needs.Fatigue >= p.Params.FatigueEmergency {
			if o, ok := nearestObject(self.Position, beds, func(o world.Object) bool { return !o.IsCommunity() && o.OwnerID != id }); ok {
				return command.Trespass{NPC: id, Bed: o.ID}, true
			}
		}
	}

	return nil, false
}

// DecideAll appends one command per deciding NPC in arena order.
func (p *Policy) DecideAll(w *world.World, out []command.Command) []command.Command {
	for _, id := range w.AliveNPCIDs() {
		if c, ok := p.Decide(w, id); ok {
			out = append(out, c)
		}
	}
	return out
}

// nearestObject picks the closest object passing keep. Ties go to the
// earlier object in arena order.
func nearestObject(from grid.Cell, objs []world.Object, keep func(world.Object) bool) (world.Object, bool) {
	best, bestDist := -1, 0
	for i, o := range objs {
		if keep != nil && !keep(o) {
			continue
		}
		d := grid.Manhattan(from, o.Cell)
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return world.Object{}, false
	}
	return objs[best], true
}

func nearestNPC(from grid.Cell, npcs []agents.NPC) (agents.NPC, bool) {
	best, bestDist := -1, 0
	for i, n := range npcs {
		d := grid.Manhattan(from, n.Position)
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return agents.NPC{}, false
	}
	return npcs[best], true
}
