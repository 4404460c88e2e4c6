package policy

import (
	"testing"

	"github.com/talgya/rumormill/internal/agents"
	"github.com/talgya/rumormill/internal/command"
	"github.com/talgya/rumormill/internal/entity"
	"github.com/talgya/rumormill/internal/grid"
	"github.com/talgya/rumormill/internal/world"
)

var defs = []world.ObjectDef{
	{ID: "food_stock", Interactable: true, FoodCapacity: 5},
	{ID: "bed", Interactable: true},
}

func newWorld(t *testing.T) *world.World {
	t.Helper()
	return world.New(grid.NewOcclusionMap(12, 12), world.DefaultGlobals(), defs)
}

func addNPC(w *world.World, x, y int, hunger, fatigue, justice float32) entity.ID {
	return w.AddNPC(agents.NPC{
		Position:          grid.Cell{X: x, Y: y},
		Alive:             true,
		Health:            1,
		Needs:             agents.Needs{Hunger: hunger, Fatigue: fatigue},
		JusticePerception: justice,
	})
}

func addObject(t *testing.T, w *world.World, def string, x, y int, owner entity.ID) entity.ID {
	t.Helper()
	id, err := w.AddObject(def, grid.Cell{X: x, Y: y}, owner)
	if err != nil {
		t.Fatalf("add %s: %v", def, err)
	}
	return id
}

func TestDecide_FoodBehindWallIsInvisible(t *testing.T) {
	w := newWorld(t)
	w.Occlusion.Set(grid.Cell{X: 2, Y: 0}, grid.OccluderCell{BlocksVision: true, BlocksMovement: true, VisionCost: 1})
	addObject(t, w, "food_stock", 5, 0, 0)
	hungry := addNPC(w, 0, 0, 0.7, 0, 0.3)
	victim := addNPC(w, 0, 1, 0, 0, 0.8)
	w.SetPrivateFood(victim, 2)

	c, ok := New(w.Globals).Decide(w, hungry)
	if !ok {
		t.Fatalf("expected a command")
	}
	steal, isSteal := c.(command.Steal)
	if !isSteal {
		t.Fatalf("expected steal, got %T", c)
	}
	if steal.Victim != victim {
		t.Fatalf("victim: got %d want %d", steal.Victim, victim)
	}
}

func TestDecide_FairMindedNPCWaits(t *testing.T) {
	w := newWorld(t)
	w.Occlusion.Set(grid.Cell{X: 2, Y: 0}, grid.OccluderCell{BlocksVision: true, BlocksMovement: true, VisionCost: 1})
	addObject(t, w, "food_stock", 5, 0, 0)
	hungry := addNPC(w, 0, 0, 0.7, 0, 0.6)
	victim := addNPC(w, 0, 1, 0, 0, 0.8)
	w.SetPrivateFood(victim, 2)

	if c, ok := New(w.Globals).Decide(w, hungry); ok {
		t.Fatalf("no visible food and no grievance: got %T", c)
	}

	// An emergency overrides fairness.
	w.UpdateNPC(hungry, func(n *agents.NPC) { n.Needs.Hunger = 0.95 })
	if c, ok := New(w.Globals).Decide(w, hungry); !ok {
		t.Fatalf("starving NPC must steal")
	} else if _, isSteal := c.(command.Steal); !isSteal {
		t.Fatalf("got %T", c)
	}
}

func TestDecide_EatingPreference(t *testing.T) {
	w := newWorld(t)
	stock := addObject(t, w, "food_stock", 3, 0, 0)
	id := addNPC(w, 0, 0, 0.7, 0, 0.3)

	p := New(w.Globals)
	c, ok := p.Decide(w, id)
	if eat, isEat := c.(command.EatCommunity); !ok || !isEat || eat.Stock != stock {
		t.Fatalf("visible stock: got %#v", c)
	}

	w.SetPrivateFood(id, 1)
	if c, _ := p.Decide(w, id); c != (command.EatPrivate{NPC: id}) {
		t.Fatalf("own food first: got %#v", c)
	}

	w.SetPrivateFood(id, 0)
	w.SetFoodStock(stock, 0)
	if c, ok := p.Decide(w, id); ok {
		t.Fatalf("empty stock and nobody to rob: got %#v", c)
	}
}

func TestDecide_StockOutOfDecisionRange(t *testing.T) {
	w := newWorld(t)
	w.Globals.Vision.DecisionRangeCells = 3
	addObject(t, w, "food_stock", 4, 0, 0)
	id := addNPC(w, 0, 0, 0.7, 0, 0.8)
	if c, ok := New(w.Globals).Decide(w, id); ok {
		t.Fatalf("stock beyond range: got %#v", c)
	}
}

func TestDecide_SleepTiers(t *testing.T) {
	w := newWorld(t)
	id := addNPC(w, 0, 0, 0, 0.8, 0.3)
	other := addNPC(w, 9, 9, 0, 0, 0.8)
	own := addObject(t, w, "bed", 1, 0, id)
	shared := addObject(t, w, "bed", 0, 2, 0)
	foreign := addObject(t, w, "bed", 2, 2, other)
	p := New(w.Globals)

	if c, _ := p.Decide(w, id); c != (command.SleepOwn{NPC: id, Bed: own}) {
		t.Fatalf("own bed: got %#v", c)
	}
	w.SetUseState(own, other)
	if c, _ := p.Decide(w, id); c != (command.SleepCommunity{NPC: id, Bed: shared}) {
		t.Fatalf("community bed: got %#v", c)
	}
	w.SetUseState(shared, other)
	if c, _ := p.Decide(w, id); c != (command.Trespass{NPC: id, Bed: foreign}) {
		t.Fatalf("trespass: got %#v", c)
	}
	w.UpdateNPC(id, func(n *agents.NPC) { n.JusticePerception = 0.9 })
	if c, ok := p.Decide(w, id); ok {
		t.Fatalf("fair-minded and not exhausted: got %#v", c)
	}
}

func TestDecide_HungerBeforeFatigue(t *testing.T) {
	w := newWorld(t)
	id := addNPC(w, 0, 0, 0.7, 0.9, 0.8)
	addObject(t, w, "bed", 1, 0, id)
	w.SetPrivateFood(id, 1)

	if c, _ := New(w.Globals).Decide(w, id); c != (command.EatPrivate{NPC: id}) {
		t.Fatalf("got %#v", c)
	}
}

func TestDecideAll_OneCommandPerNPC(t *testing.T) {
	w := newWorld(t)
	a := addNPC(w, 0, 0, 0.7, 0.9, 0.8)
	b := addNPC(w, 5, 5, 0, 0, 0.8)
	addNPC(w, 6, 6, 0.7, 0, 0.8)
	w.SetPrivateFood(a, 1)
	w.SetPrivateFood(b, 1)

	cmds := New(w.Globals).DecideAll(w, nil)
	if len(cmds) != 1 || cmds[0].Actor() != a {
		t.Fatalf("commands: %#v", cmds)
	}
}

func TestDecide_ThresholdMustBeExceeded(t *testing.T) {
	w := newWorld(t)
	g := w.Globals.Needs
	id := addNPC(w, 0, 0, g.HungerThreshold, g.FatigueThreshold, 0.8)
	addObject(t, w, "bed", 1, 0, id)
	w.SetPrivateFood(id, 1)
	p := New(w.Globals)

	if c, ok := p.Decide(w, id); ok {
		t.Fatalf("needs exactly at threshold: got %#v", c)
	}
	w.UpdateNPC(id, func(n *agents.NPC) { n.Needs.Fatigue = g.FatigueThreshold + 0.01 })
	if c, _ := p.Decide(w, id); c == nil {
		t.Fatalf("fatigue above threshold must act")
	} else if _, isSleep := c.(command.SleepOwn); !isSleep {
		t.Fatalf("got %#v", c)
	}
}

func TestDecide_OwnBedKnownWithoutSight(t *testing.T) {
	w := newWorld(t)
	w.Occlusion.Set(grid.Cell{X: 2, Y: 0}, grid.OccluderCell{BlocksVision: true, BlocksMovement: true, VisionCost: 1})
	id := addNPC(w, 0, 0, 0, 0.8, 0.3)
	own := addObject(t, w, "bed", 5, 0, id)
	addObject(t, w, "bed", 0, 1, 0)
	p := New(w.Globals)

	if c, _ := p.Decide(w, id); c != (command.SleepOwn{NPC: id, Bed: own}) {
		t.Fatalf("own bed behind a wall: got %#v", c)
	}

	// Out of range works the same way.
	far := addNPC(w, 11, 11, 0, 0.8, 0.3)
	farBed := addObject(t, w, "bed", 0, 11, far)
	if c, _ := p.Decide(w, far); c != (command.SleepOwn{NPC: far, Bed: farBed}) {
		t.Fatalf("own bed out of range: got %#v", c)
	}
}
