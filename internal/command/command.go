// Package command holds the intents the decision policy produces and the
// executor that applies them. Commands are the only code allowed to change
// NPC needs, food and bed occupancy in response to decisions, and the only
// decision-side publishers of facts.
package command

import (
	"github.com/talgya/rumormill/internal/agents"
	"github.com/talgya/rumormill/internal/entity"
	"github.com/talgya/rumormill/internal/events"
	"github.com/talgya/rumormill/internal/world"
)

// theftJusticeLoss is how much a victim's faith in fairness drops per theft.
const theftJusticeLoss = 0.05

// Command is one intent. Execute re-checks its preconditions against the
// current world and does nothing (returning false) if they no longer hold.
type Command interface {
	Name() string
	Actor() entity.ID
	Execute(w *world.World, q *events.Queue, tick uint64) bool
}

func publishAt(w *world.World, q *events.Queue, f events.Fact, at entity.ID) {
	if c, ok := w.PositionOf(at); ok {
		f.Cell = c
		f.HasCell = true
	}
	q.Publish(f)
}

func aliveNPC(w *world.World, id entity.ID) (agents.NPC, bool) {
	n, ok := w.NPC(id)
	if !ok || !n.Alive {
		return agents.NPC{}, false
	}
	return n, true
}

// ── Eating ───────────────────────────────────────────────────────────

// EatPrivate eats one unit of the NPC's own food.
type EatPrivate struct {
	NPC entity.ID
}

func (c EatPrivate) Name() string     { return "eat_private" }
func (c EatPrivate) Actor() entity.ID { return c.NPC }

func (c EatPrivate) Execute(w *world.World, q *events.Queue, tick uint64) bool {
	if _, ok := aliveNPC(w, c.NPC); !ok {
		return false
	}
	units := w.PrivateFood(c.NPC)
	if units <= 0 {
		return false
	}
	w.SetPrivateFood(c.NPC, units-1)
	relief := w.Globals.Needs.EatRelief
	w.UpdateNPC(c.NPC, func(n *agents.NPC) { n.Needs.Relieve(relief, 0) })
	publishAt(w, q, events.Fact{Kind: events.FoodConsumed, Tick: tick, Actor: c.NPC, Amount: 1}, c.NPC)
	return true
}

// EatCommunity takes one unit from a community food stock.
type EatCommunity struct {
	NPC   entity.ID
	Stock entity.ID
}

func (c EatCommunity) Name() string     { return "eat_community" }
func (c EatCommunity) Actor() entity.ID { return c.NPC }

func (c EatCommunity) Execute(w *world.World, q *events.Queue, tick uint64) bool {
	if _, ok := aliveNPC(w, c.NPC); !ok {
		return false
	}
	o, ok := w.Object(c.Stock)
	if !ok || !o.IsCommunity() {
		return false
	}
	units, ok := w.FoodStock(c.Stock)
	if !ok || units <= 0 {
		return false
	}
	w.SetFoodStock(c.Stock, units-1)
	relief := w.Globals.Needs.EatRelief
	w.UpdateNPC(c.NPC, func(n *agents.NPC) { n.Needs.Relieve(relief, 0) })
	// The fact happens at the stock so witnesses learn where food is.
	q.Publish(events.Fact{
		Kind:    events.FoodConsumed,
		Tick:    tick,
		Actor:   c.NPC,
		Object:  c.Stock,
		Cell:    o.Cell,
		HasCell: true,
		Amount:  1,
	})
	return true
}

// Steal takes one unit of private food from Victim and eats it.
type Steal struct {
	Thief  entity.ID
	Victim entity.ID
}

func (c Steal) Name() string     { return "steal" }
func (c Steal) Actor() entity.ID { return c.Thief }

func (c Steal) Execute(w *world.World, q *events.Queue, tick uint64) bool {
	if c.Thief == c.Victim {
		return false
	}
	if _, ok := aliveNPC(w, c.Thief); !ok {
		return false
	}
	if _, ok := w.NPC(c.Victim); !ok {
		return false
	}
	units := w.PrivateFood(c.Victim)
	if units <= 0 {
		return false
	}
	w.SetPrivateFood(c.Victim, units-1)

	relief := w.Globals.Needs.EatRelief
	w.UpdateNPC(c.Thief, func(n *agents.NPC) { n.Needs.Relieve(relief, 0) })
	w.UpdateNPC(c.Victim, func(n *agents.NPC) {
		n.JusticePerception = max(0, n.JusticePerception-theftJusticeLoss)
	})
	publishAt(w, q, events.Fact{Kind: events.Theft, Tick: tick, Actor: c.Thief, Target: c.Victim, Amount: 1}, c.Victim)
	return true
}

// ── Sleeping ─────────────────────────────────────────────────────────

// bedFree reports whether bed is a free bed (or already held by npc).
func bedFree(w *world.World, bed, npc entity.ID) (world.Object, bool) {
	o, ok := w.Object(bed)
	if !ok || !o.IsBed() {
		return world.Object{}, false
	}
	if o.InUseBy != 0 && o.InUseBy != npc {
		return world.Object{}, false
	}
	return o, true
}

func sleepIn(w *world.World, npc entity.ID, o world.Object) {
	w.SetUseState(o.ID, npc)
	relief := w.Globals.Needs.SleepRelief
	w.UpdateNPC(npc, func(n *agents.NPC) { n.Needs.Relieve(0, relief) })
}

// SleepOwn sleeps in a bed the NPC owns.
type SleepOwn struct {
	NPC entity.ID
	Bed entity.ID
}

func (c SleepOwn) Name() string     { return "sleep_own" }
func (c SleepOwn) Actor() entity.ID { return c.NPC }

func (c SleepOwn) Execute(w *world.World, q *events.Queue, tick uint64) bool {
	if _, ok := aliveNPC(w, c.NPC); !ok {
		return false
	}
	o, ok := bedFree(w, c.Bed, c.NPC)
	if !ok || o.OwnerID != c.NPC {
		return false
	}
	sleepIn(w, c.NPC, o)
	q.Publish(events.Fact{Kind: events.Slept, Tick: tick, Actor: c.NPC, Object: o.ID, Cell: o.Cell, HasCell: true})
	return true
}

// SleepCommunity sleeps in a free community bed.
type SleepCommunity struct {
	NPC entity.ID
	Bed entity.ID
}

func (c SleepCommunity) Name() string     { return "sleep_community" }
func (c SleepCommunity) Actor() entity.ID { return c.NPC }

func (c SleepCommunity) Execute(w *world.World, q *events.Queue, tick uint64) bool {
	if _, ok := aliveNPC(w, c.NPC); !ok {
		return false
	}
	o, ok := bedFree(w, c.Bed, c.NPC)
	if !ok || !o.IsCommunity() {
		return false
	}
	sleepIn(w, c.NPC, o)
	q.Publish(events.Fact{Kind: events.Slept, Tick: tick, Actor: c.NPC, Object: o.ID, Cell: o.Cell, HasCell: true})
	return true
}

// Trespass sleeps in a free bed owned by someone else.
type Trespass struct {
	NPC entity.ID
	Bed entity.ID
}

func (c Trespass) Name() string     { return "trespass" }
func (c Trespass) Actor() entity.ID { return c.NPC }

func (c Trespass) Execute(w *world.World, q *events.Queue, tick uint64) bool {
	if _, ok := aliveNPC(w, c.NPC); !ok {
		return false
	}
	o, ok := bedFree(w, c.Bed, c.NPC)
	if !ok || o.IsCommunity() || o.OwnerID == c.NPC {
		return false
	}
	sleepIn(w, c.NPC, o)
	q.Publish(events.Fact{
		Kind:    events.Trespass,
		Tick:    tick,
		Actor:   c.NPC,
		Target:  o.OwnerID,
		Object:  o.ID,
		Cell:    o.Cell,
		HasCell: true,
	})
	return true
}
