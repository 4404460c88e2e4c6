package engine

import (
	"log/slog"
	"math/rand"

	"github.com/talgya/rumormill/internal/agents"
	"github.com/talgya/rumormill/internal/comms"
	"github.com/talgya/rumormill/internal/entity"
	"github.com/talgya/rumormill/internal/events"
	"github.com/talgya/rumormill/internal/grid"
	"github.com/talgya/rumormill/internal/world"
)

// Default periods, in ticks.
const (
	PeriodNeeds       = 1
	PeriodDecay       = 1
	PeriodPredators   = 5
	PeriodRegrowth    = TicksPerSimHour
	PeriodBookkeeping = TicksPerSimDay
)

// NeedsSystem grows hunger and fatigue and lets starvation kill.
type NeedsSystem struct {
	Deaths int
}

func (s *NeedsSystem) Name() string { return "needs" }

func (s *NeedsSystem) Run(w *world.World, tick uint64) {
	p := w.Globals.Needs
	rates := agents.NeedRates{HungerPerTick: p.HungerPerTick, FatiguePerTick: p.FatiguePerTick}
	scale := float32(w.Globals.Memory.TickScale)

	for _, id := range w.AliveNPCIDs() {
		w.UpdateNPC(id, func(n *agents.NPC) {
			agents.GrowNeeds(n, rates, scale)
			if !n.Alive {
				s.Deaths++
				slog.Info("npc starved", "npc", n.Name, "id", n.ID, "tick", tick)
			}
		})
	}
}

// PredatorSystem lets predator objects wander, be seen and attack.
type PredatorSystem struct {
	Facts *events.Queue
	rng   *rand.Rand

	Attacks int
	Kills   int
}

// NewPredatorSystem creates a predator system publishing to q.
func NewPredatorSystem(q *events.Queue, seed int64) *PredatorSystem {
	return &PredatorSystem{Facts: q, rng: rand.New(rand.NewSource(seed + 500))}
}

func (s *PredatorSystem) Name() string { return "predators" }

func (s *PredatorSystem) Run(w *world.World, tick uint64) {
	var predators []world.Object
	w.EachObject(func(o world.Object) bool {
		if d, ok := w.Def(o); ok && d.Predator {
			predators = append(predators, o)
		}
		return true
	})

	for _, o := range predators {
		o = s.wander(w, o)
		s.Facts.Publish(events.Fact{
			Kind:    events.PredatorSighted,
			Tick:    tick,
			Actor:   o.ID,
			Cell:    o.Cell,
			HasCell: true,
		})
		if victim, ok := s.prey(w, o); ok {
			s.attack(w, o, victim, tick)
		}
	}
}

// wander moves a non-occluding predator one step to a random open
// neighbour, or leaves it in place.
func (s *PredatorSystem) wander(w *world.World, o world.Object) world.Object {
	if d, _ := w.Def(o); d.Occludes() {
		return o
	}
	n := o.Cell.Neighbors4()
	next := n[s.rng.Intn(len(n))]
	if !w.Occlusion.InBounds(next) {
		return o
	}
	if occ, _ := w.Occluder(next); occ.BlocksMovement {
		return o
	}
	o.Cell = next
	w.SetObject(o)
	return o
}

// prey picks the nearest living NPC in attack range, earliest on ties.
func (s *PredatorSystem) prey(w *world.World, o world.Object) (entity.ID, bool) {
	rng := max(1, w.Globals.Threats.AttackRangeCells)
	best, bestDist := entity.ID(0), 0
	w.EachNPC(func(n agents.NPC) bool {
		if !n.Alive {
			return true
		}
		d := grid.Manhattan(o.Cell, n.Position)
		if d > rng {
			return true
		}
		if best == 0 || d < bestDist {
			best, bestDist = n.ID, d
		}
		return true
	})
	return best, best != 0
}

func (s *PredatorSystem) attack(w *world.World, o world.Object, victim entity.ID, tick uint64) {
	damage := w.Globals.Threats.AttackDamage
	var cell grid.Cell
	w.UpdateNPC(victim, func(n *agents.NPC) {
		cell = n.Position
		n.Health -= damage
		if n.Health <= 0 {
			n.Health = 0
			n.Alive = false
			s.Kills++
			slog.Info("npc killed by predator", "npc", n.Name, "predator", o.ID, "tick", tick)
		}
	})
	s.Attacks++
	s.Facts.Publish(events.Fact{
		Kind:    events.Attack,
		Tick:    tick,
		Actor:   o.ID,
		Target:  victim,
		Cell:    cell,
		HasCell: true,
		Amount:  damage,
	})
}

// RegrowthSystem refills community and private stocks by one unit.
type RegrowthSystem struct{}

func (RegrowthSystem) Name() string { return "stock-regrowth" }

func (RegrowthSystem) Run(w *world.World, _ uint64) {
	w.EachObject(func(o world.Object) bool {
		if units, ok := w.FoodStock(o.ID); ok && units < w.StockCapacity(o.ID) {
			w.SetFoodStock(o.ID, units+1)
		}
		return true
	})
}

// BookkeepingSystem bounds the emitter's rate-limit state.
type BookkeepingSystem struct {
	Emitter *comms.Emitter
}

func (BookkeepingSystem) Name() string { return "bookkeeping" }

func (s BookkeepingSystem) Run(w *world.World, tick uint64) {
	s.Emitter.Prune(tick, w.Globals.Tokens.CooldownTicks)
}
