package engine

import (
	"reflect"
	"testing"
	"time"

	"github.com/talgya/rumormill/internal/agents"
	"github.com/talgya/rumormill/internal/entity"
	"github.com/talgya/rumormill/internal/events"
	"github.com/talgya/rumormill/internal/grid"
	"github.com/talgya/rumormill/internal/world"
)

type namedSystem struct{ name string }

func (s namedSystem) Name() string                 { return s.name }
func (s namedSystem) Run(_ *world.World, _ uint64) {}

func names(systems []System) []string {
	out := make([]string, len(systems))
	for i, s := range systems {
		out[i] = s.Name()
	}
	return out
}

func TestScheduler_DeterministicOrder(t *testing.T) {
	build := func() *Scheduler {
		s := NewScheduler()
		s.Register(5, namedSystem{"first-5"})
		s.Register(1, namedSystem{"every"})
		s.Register(5, namedSystem{"second-5"})
		s.Register(10, namedSystem{"ten"})
		return s
	}

	cases := []struct {
		tick uint64
		want []string
	}{
		{10, []string{"every", "first-5", "second-5", "ten"}},
		{5, []string{"every", "first-5", "second-5"}},
		{3, []string{"every"}},
		{0, []string{"every", "first-5", "second-5", "ten"}},
	}
	for run := 0; run < 3; run++ {
		s := build()
		for _, tc := range cases {
			got := names(s.SystemsToRun(tc.tick, nil))
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("run %d tick %d: got %v want %v", run, tc.tick, got, tc.want)
			}
		}
	}
}

func TestScheduler_ClampsPeriod(t *testing.T) {
	s := NewScheduler()
	s.Register(0, namedSystem{"zero"})
	s.Register(-3, namedSystem{"negative"})
	if got := names(s.SystemsToRun(7, nil)); !reflect.DeepEqual(got, []string{"zero", "negative"}) {
		t.Fatalf("got %v", got)
	}
	if p := s.Periods(); !reflect.DeepEqual(p, []int{1}) || s.Len() != 2 {
		t.Fatalf("periods %v len %d", p, s.Len())
	}
}

func TestEngine_StepAndStop(t *testing.T) {
	e := NewEngine(41)
	var seen []uint64
	e.OnTick = func(tick uint64) { seen = append(seen, tick) }
	e.Step()
	e.Step()
	if e.Tick() != 43 || !reflect.DeepEqual(seen, []uint64{42, 43}) {
		t.Fatalf("tick %d seen %v", e.Tick(), seen)
	}
	e.Stop()
	e.Stop()
}

func TestEngine_RunUntilLimit(t *testing.T) {
	e := NewEngine(0)
	e.Interval = time.Millisecond
	e.SetSpeed(10)
	e.MaxTicks = 5
	count := 0
	e.OnTick = func(uint64) { count++ }

	done := make(chan struct{})
	go func() { e.Run(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		e.Stop()
		t.Fatalf("engine did not stop at the tick limit")
	}
	if count != 5 || e.Tick() != 5 || e.Running() {
		t.Fatalf("count %d tick %d running %v", count, e.Tick(), e.Running())
	}
}

func TestEngine_StopWhilePaused(t *testing.T) {
	e := NewEngine(0)
	e.SetSpeed(0)
	done := make(chan struct{})
	go func() { e.Run(); close(done) }()
	e.Stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("paused engine ignored Stop")
	}
	if e.Tick() != 0 {
		t.Fatalf("paused engine advanced to %d", e.Tick())
	}
}

func TestSimTime(t *testing.T) {
	if got := SimTime(0); got != "Day 1, 0:00" {
		t.Fatalf("got %q", got)
	}
	if got := SimTime(TicksPerSimDay + 61); got != "Day 2, 1:01" {
		t.Fatalf("got %q", got)
	}
}

// ── Simulation ───────────────────────────────────────────────────────

var testDefs = []world.ObjectDef{
	{ID: "food_stock", Interactable: true, FoodCapacity: 4},
	{ID: "wolf", Predator: true},
}

func newSim(t *testing.T) *Simulation {
	t.Helper()
	w := world.New(grid.NewOcclusionMap(16, 16), world.DefaultGlobals(), testDefs)
	return NewSimulation(w, 1)
}

func addNPC(s *Simulation, x, y int, facing grid.Facing) entity.ID {
	return s.World.AddNPC(agents.NPC{
		Name:              "npc",
		Position:          grid.Cell{X: x, Y: y},
		Facing:            facing,
		Health:            1,
		Alive:             true,
		JusticePerception: 0.6,
		Personality:       agents.PersonalityMemoryParams{MaxTraces: 8},
	})
}

func TestSimulation_FactToHearsayInOneTick(t *testing.T) {
	s := newSim(t)
	a := addNPC(s, 2, 2, grid.FacingEast)
	b := addNPC(s, 3, 2, grid.FacingWest)

	s.Facts.Publish(events.Fact{Kind: events.PredatorSighted, Actor: 900, Cell: grid.Cell{X: 2, Y: 4}, HasCell: true})

	var observed []TickReport
	s.Observe(ObserverFunc(func(r TickReport) { observed = append(observed, r) }))
	r := s.Step(1)

	if !reflect.DeepEqual(r.Systems, []string{"needs", "memory-decay"}) {
		t.Fatalf("systems: %v", r.Systems)
	}
	if r.Facts != 1 || r.Encode.Stored != 2 {
		t.Fatalf("encode: %+v", r.Encode)
	}
	if r.Emit.Emitted != 2 || r.Delivery.Delivered != 2 || r.Assimilate.Assimilated != 2 {
		t.Fatalf("pipeline: emit %+v delivery %+v assimilate %+v", r.Emit, r.Delivery, r.Assimilate)
	}
	if len(observed) != 1 || observed[0].Tick != 1 {
		t.Fatalf("observers: %+v", observed)
	}
	for _, id := range []entity.ID{a, b} {
		n, _ := s.World.NPC(id)
		if _, ok := n.Memory.Find(agents.TracePredatorSeen, 900, grid.Cell{X: 2, Y: 4}); !ok {
			t.Fatalf("npc %d forgot the predator", id)
		}
	}
	if len(s.Recent) != 1 || s.Totals.Ticks != 1 {
		t.Fatalf("recent %d totals %+v", len(s.Recent), s.Totals)
	}
}

func TestSimulation_DecisionFactsEncodedNextTick(t *testing.T) {
	s := newSim(t)
	id := addNPC(s, 5, 5, grid.FacingNorth)
	s.World.UpdateNPC(id, func(n *agents.NPC) { n.Needs.Hunger = 0.8 })
	s.World.SetPrivateFood(id, 1)

	r := s.Step(10)
	if !r.Deciding || r.Commands.Executed != 1 || r.Commands.ByName["eat_private"] != 1 {
		t.Fatalf("commands: %+v", r.Commands)
	}
	if r.View == nil || len(r.View.NPCs) != 1 {
		t.Fatalf("tick 10 must carry a view")
	}
	r = s.Step(11)
	if r.Deciding || r.Facts != 1 || r.Encode.Unmatched != 1 {
		t.Fatalf("tick 11: %+v", r)
	}
}

func TestSimulation_PredatorAttacks(t *testing.T) {
	s := newSim(t)
	s.World.Globals.Threats.AttackRangeCells = 3
	id := addNPC(s, 8, 8, grid.FacingNorth)
	if _, err := s.World.AddObject("wolf", grid.Cell{X: 8, Y: 9}, 0); err != nil {
		t.Fatalf("add wolf: %v", err)
	}

	r := s.Step(5)
	if s.Predators.Attacks != 1 {
		t.Fatalf("attacks: %d", s.Predators.Attacks)
	}
	if r.Facts != 2 {
		t.Fatalf("sighting and attack are encoded the same tick: %d", r.Facts)
	}
	n, _ := s.World.NPC(id)
	if n.Health >= 1 {
		t.Fatalf("health: %v", n.Health)
	}
	found := false
	for _, tr := range n.Memory.Traces() {
		if tr.Type == agents.TraceAttackSuffered {
			found = true
		}
	}
	if !found {
		t.Fatalf("victim must remember the attack: %+v", n.Memory.Traces())
	}
}

func TestSimulation_Interventions(t *testing.T) {
	s := newSim(t)
	stock, _ := s.World.AddObject("food_stock", grid.Cell{X: 1, Y: 1}, 0)
	s.World.SetFoodStock(stock, 0)

	ok := s.Interventions.Submit(Intervention{Kind: KindProvision, Object: stock, Units: 3})
	bad := s.Interventions.Submit(Intervention{Kind: "bless"})
	wolf := s.Interventions.Submit(Intervention{Kind: KindReleasePredator, X: 4, Y: 4})

	r := s.Step(1)
	if r.Interventions != 3 {
		t.Fatalf("interventions: %d", r.Interventions)
	}
	if res := <-ok; !res.Success {
		t.Fatalf("provision: %+v", res)
	}
	if units, _ := s.World.FoodStock(stock); units != 3 {
		t.Fatalf("stock: %d", units)
	}
	if res := <-bad; res.Success {
		t.Fatalf("unknown kind must fail")
	}
	if res := <-wolf; !res.Success {
		t.Fatalf("release: %+v", res)
	}
	if s.World.ObjectCount() != 2 {
		t.Fatalf("objects: %d", s.World.ObjectCount())
	}

	var wolfID entity.ID
	s.World.EachObject(func(o world.Object) bool {
		if o.DefID == "wolf" {
			wolfID = o.ID
		}
		return true
	})
	if _, err := s.CullPredator(stock); err == nil {
		t.Fatalf("culling a stock must fail")
	}
	if _, err := s.CullPredator(wolfID); err != nil {
		t.Fatalf("cull: %v", err)
	}
	if s.World.ObjectCount() != 1 {
		t.Fatalf("objects after cull: %d", s.World.ObjectCount())
	}
}

func TestRegrowthSystem(t *testing.T) {
	s := newSim(t)
	stock, _ := s.World.AddObject("food_stock", grid.Cell{X: 1, Y: 1}, 0)
	s.World.SetFoodStock(stock, 3)

	RegrowthSystem{}.Run(s.World, 60)
	RegrowthSystem{}.Run(s.World, 120)
	if units, _ := s.World.FoodStock(stock); units != 4 {
		t.Fatalf("stock must stop at capacity, got %d", units)
	}
}
