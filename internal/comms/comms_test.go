package comms

import (
	"math"
	"reflect"
	"testing"

	"github.com/talgya/rumormill/internal/agents"
	"github.com/talgya/rumormill/internal/entity"
	"github.com/talgya/rumormill/internal/grid"
	"github.com/talgya/rumormill/internal/world"
)

var wall = grid.OccluderCell{BlocksVision: true, BlocksMovement: true, VisionCost: 1}

func newWorld(t *testing.T) *world.World {
	t.Helper()
	g := world.DefaultGlobals()
	g.Tokens.ShoutRangeCells = 10
	return world.New(grid.NewOcclusionMap(10, 10), g, nil)
}

func addNPC(w *world.World, x, y int, facing grid.Facing) entity.ID {
	return w.AddNPC(agents.NPC{
		Position:    grid.Cell{X: x, Y: y},
		Facing:      facing,
		Alive:       true,
		Personality: agents.PersonalityMemoryParams{MaxTraces: 8},
	})
}

func remember(t *testing.T, w *world.World, id entity.ID, tr agents.MemoryTrace) {
	t.Helper()
	n, ok := w.NPC(id)
	if !ok {
		t.Fatalf("npc %d missing", id)
	}
	n.Memory.AddOrMerge(tr)
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// ── Delivery ─────────────────────────────────────────────────────────

func TestDeliver_ShoutDetoursTalkIsBlocked(t *testing.T) {
	w := newWorld(t)
	w.Occlusion.Set(grid.Cell{X: 2, Y: 0}, wall)
	speaker := addNPC(w, 0, 0, grid.FacingEast)
	listener := addNPC(w, 4, 0, grid.FacingWest)

	dist, reason := EffectiveDistance(w, AlarmShout, grid.Cell{X: 0, Y: 0}, grid.Cell{X: 4, Y: 0})
	if reason != DropNone || dist != 6 {
		t.Fatalf("shout: dist=%d reason=%d, want 6 via detour", dist, reason)
	}
	if dist <= grid.Manhattan(grid.Cell{X: 0, Y: 0}, grid.Cell{X: 4, Y: 0}) {
		t.Fatalf("detour must be longer than the straight line")
	}

	bus := &Bus{}
	tok := NewToken(PredatorAlert, 99, 0.9, 0.9, 0)
	bus.Speak(Envelope{SpeakerID: speaker, ListenerID: listener, Channel: AlarmShout, Token: tok})
	bus.Speak(Envelope{SpeakerID: speaker, ListenerID: listener, Channel: ProximityTalk, Token: tok})

	d := &Deliverer{}
	stats := d.Deliver(w, bus)
	if stats.Delivered != 1 || stats.DroppedLOS != 1 {
		t.Fatalf("stats: %+v", stats)
	}
	in := bus.DrainInbound()
	if len(in) != 1 || in[0].Channel != AlarmShout {
		t.Fatalf("inbound: %+v", in)
	}
	got := in[0].Token
	if !near(got.Reliability(), 0.9-0.03*6) || !near(got.Intensity(), 0.9-0.04*6) {
		t.Fatalf("falloff over 6 cells: rel=%v int=%v", got.Reliability(), got.Intensity())
	}
	if got.ChainDepth() != 0 {
		t.Fatalf("delivery must not change chain depth")
	}
	if out, _ := bus.Pending(); out != 0 {
		t.Fatalf("outbound must be drained")
	}
}

func TestDeliver_ShoutBeyondRange(t *testing.T) {
	w := newWorld(t)
	w.Globals.Tokens.ShoutRangeCells = 3
	a := addNPC(w, 0, 0, grid.FacingEast)
	b := addNPC(w, 5, 0, grid.FacingWest)

	bus := &Bus{}
	bus.Speak(Envelope{SpeakerID: a, ListenerID: b, Channel: AlarmShout, Token: NewToken(HelpRequest, a, 1, 1, 0)})
	stats := (&Deliverer{}).Deliver(w, bus)
	if stats.DroppedRange != 1 || stats.Delivered != 0 {
		t.Fatalf("stats: %+v", stats)
	}
}

func TestDegrade_Monotonic(t *testing.T) {
	tok := NewToken(FoodLocation, 1, 1, 1, 0)
	prevRel := 2.0
	for dist := 0; dist <= 40; dist++ {
		out, ok := Degrade(tok, dist, 0.03, 0.04)
		rel := max(0, 1-0.03*float64(dist))
		inten := max(0, 1-0.04*float64(dist))
		weak := rel < minSignal || inten < minSignal
		if ok == weak {
			t.Fatalf("dist %d: ok=%v but rel=%v int=%v", dist, ok, rel, inten)
		}
		if !ok {
			continue
		}
		if out.Reliability() > prevRel {
			t.Fatalf("dist %d: reliability rose from %v to %v", dist, prevRel, out.Reliability())
		}
		if out.Reliability() < minSignal || out.Intensity() < minSignal {
			t.Fatalf("dist %d: delivered a token below the floor", dist)
		}
		prevRel = out.Reliability()
	}
}

func TestDeliver_TooWeakAndMissing(t *testing.T) {
	w := newWorld(t)
	a := addNPC(w, 0, 0, grid.FacingEast)
	b := addNPC(w, 1, 0, grid.FacingWest)

	bus := &Bus{}
	bus.Speak(Envelope{SpeakerID: a, ListenerID: b, Channel: ProximityTalk, Token: NewToken(AlarmDanger, 7, 0.02, 1, 0)})
	bus.Speak(Envelope{SpeakerID: a, ListenerID: 404, Channel: ProximityTalk, Token: NewToken(AlarmDanger, 7, 1, 1, 0)})
	stats := (&Deliverer{}).Deliver(w, bus)
	if stats.DroppedTooWeak != 1 || stats.DroppedMissing != 1 || stats.Delivered != 0 {
		t.Fatalf("stats: %+v", stats)
	}
}

// ── Assimilation ─────────────────────────────────────────────────────

func TestAssimilate_RumorDegradation(t *testing.T) {
	w := newWorld(t)
	speaker := addNPC(w, 0, 0, grid.FacingEast)
	listener := addNPC(w, 1, 0, grid.FacingWest)

	bus := &Bus{}
	tok := NewToken(PredatorAlert, 900, 0.5, 0.8, 1).WithCell(grid.Cell{X: 3, Y: 3})
	bus.Hear(Envelope{SpeakerID: speaker, ListenerID: listener, Channel: ProximityTalk, Tick: 12, Token: tok})

	a := NewAssimilator(DefaultAssimilationRules())
	stats := a.Assimilate(w, bus)
	if stats.Assimilated != 1 {
		t.Fatalf("stats: %+v", stats)
	}
	n, _ := w.NPC(listener)
	tr, ok := n.Memory.Find(agents.TracePredatorSeen, 900, grid.Cell{X: 3, Y: 3})
	if !ok {
		t.Fatalf("no trace: %+v", n.Memory.Traces())
	}
	if !near(tr.Reliability, 0.6) || !near(tr.Intensity, 0.3) {
		t.Fatalf("rel=%v int=%v, want 0.6/0.3", tr.Reliability, tr.Intensity)
	}
	if tr.HeardKind != agents.RumorHeard || !tr.IsHeard || tr.SourceSpeaker != speaker || tr.CreatedTick != 12 {
		t.Fatalf("provenance: %+v", tr)
	}
}

func TestAssimilate_DirectHeardAndSelfSubject(t *testing.T) {
	w := newWorld(t)
	speaker := addNPC(w, 0, 0, grid.FacingEast)
	listener := addNPC(w, 1, 0, grid.FacingWest)

	bus := &Bus{}
	bus.Hear(Envelope{SpeakerID: speaker, ListenerID: listener, Token: NewToken(HelpRequest, 77, 1, 1, 0)})
	bus.Hear(Envelope{SpeakerID: speaker, ListenerID: listener, Token: NewToken(TheftReport, listener, 1, 1, 0)})

	stats := NewAssimilator(DefaultAssimilationRules()).Assimilate(w, bus)
	if stats.Assimilated != 1 || stats.Rejected != 1 {
		t.Fatalf("stats: %+v", stats)
	}
	n, _ := w.NPC(listener)
	traces := n.Memory.Traces()
	if len(traces) != 1 || traces[0].HeardKind != agents.DirectHeard || traces[0].Type != agents.TraceAttackWitnessed {
		t.Fatalf("traces: %+v", traces)
	}
}

func TestAssimilate_UnhandledIsCounted(t *testing.T) {
	w := newWorld(t)
	listener := addNPC(w, 1, 0, grid.FacingWest)
	bus := &Bus{}
	bus.Hear(Envelope{ListenerID: listener, Token: NewToken(FoodLocation, 5, 1, 1, 0)})

	stats := NewAssimilator(nil).Assimilate(w, bus)
	if stats.Unhandled != 1 || stats.Assimilated != 0 {
		t.Fatalf("stats: %+v", stats)
	}
}

// ── Emission ─────────────────────────────────────────────────────────

func predatorMemory(subject entity.ID, intensity float64) agents.MemoryTrace {
	return agents.MemoryTrace{
		Type:         agents.TracePredatorSeen,
		SubjectID:    subject,
		Cell:         grid.Cell{X: 5, Y: 5},
		Intensity:    intensity,
		Reliability:  1,
		DecayPerTick: 0.001,
	}
}

func TestEmit_FacingGatesEachDirection(t *testing.T) {
	w := newWorld(t)
	a := addNPC(w, 0, 0, grid.FacingEast)  // faces b
	b := addNPC(w, 1, 0, grid.FacingNorth) // faces away
	remember(t, w, a, predatorMemory(900, 0.9))
	remember(t, w, b, predatorMemory(901, 0.9))

	bus := &Bus{}
	stats := NewEmitter(DefaultEmissionRules()).Emit(w, bus, 0)
	if stats.Contacts != 1 || stats.Attempts != 1 || stats.Emitted != 1 {
		t.Fatalf("stats: %+v", stats)
	}
	out := bus.DrainOutbound()
	if out[0].SpeakerID != a || out[0].ListenerID != b {
		t.Fatalf("envelope: %+v", out[0])
	}
	if out[0].Channel != AlarmShout {
		t.Fatalf("vivid predator memory must be shouted, got %v", out[0].Channel)
	}
}

func TestEmit_Cooldown(t *testing.T) {
	w := newWorld(t)
	a := addNPC(w, 0, 0, grid.FacingEast)
	addNPC(w, 1, 0, grid.FacingWest)
	remember(t, w, a, predatorMemory(900, 0.5))

	e := NewEmitter(DefaultEmissionRules())
	bus := &Bus{}
	if s := e.Emit(w, bus, 0); s.Emitted != 1 {
		t.Fatalf("first: %+v", s)
	}
	if s := e.Emit(w, bus, 29); s.Emitted != 0 || s.CooledDown != 1 {
		t.Fatalf("within cooldown: %+v", s)
	}
	if s := e.Emit(w, bus, 30); s.Emitted != 1 {
		t.Fatalf("after cooldown: %+v", s)
	}
	out := bus.DrainOutbound()
	if len(out) != 2 || out[0].Channel != ProximityTalk {
		t.Fatalf("outbound: %+v", out)
	}
}

func TestEmit_PerEncounterAndDailyCaps(t *testing.T) {
	w := newWorld(t)
	w.Globals.Tokens.CooldownTicks = 0
	w.Globals.Tokens.MaxPerEncounter = 2
	w.Globals.Tokens.MaxPerDay = 3
	a := addNPC(w, 0, 0, grid.FacingEast)
	addNPC(w, 1, 0, grid.FacingWest)
	remember(t, w, a, predatorMemory(900, 0.9))
	remember(t, w, a, predatorMemory(901, 0.8))
	remember(t, w, a, predatorMemory(902, 0.7))

	e := NewEmitter(DefaultEmissionRules())
	bus := &Bus{}
	if s := e.Emit(w, bus, 0); s.Emitted != 2 {
		t.Fatalf("per-encounter cap: %+v", s)
	}
	if s := e.Emit(w, bus, 1); s.Emitted != 1 || s.DailyCapped != 1 {
		t.Fatalf("daily cap: %+v", s)
	}
	if s := e.Emit(w, bus, TicksPerDay); s.Emitted != 2 {
		t.Fatalf("new day: %+v", s)
	}
}

func TestEmitter_StateCarriesCooldownAndDailyCap(t *testing.T) {
	w := newWorld(t)
	w.Globals.Tokens.MaxPerDay = 2
	a := addNPC(w, 0, 0, grid.FacingEast)
	b := addNPC(w, 1, 0, grid.FacingWest)
	remember(t, w, a, predatorMemory(900, 0.5))

	e := NewEmitter(DefaultEmissionRules())
	bus := &Bus{}
	if s := e.Emit(w, bus, 0); s.Emitted != 1 {
		t.Fatalf("first: %+v", s)
	}
	state := e.State()
	if len(state.Cooldowns) != 1 || len(state.Daily) != 1 {
		t.Fatalf("state: %+v", state)
	}
	if c := state.Cooldowns[0]; c.Speaker != a || c.Listener != b || c.Subject != 900 || c.Tick != 0 {
		t.Fatalf("cooldown: %+v", c)
	}
	if d := state.Daily[0]; d.Speaker != a || d.Day != 0 || d.Count != 1 {
		t.Fatalf("daily: %+v", d)
	}

	restarted := NewEmitter(DefaultEmissionRules())
	restarted.Restore(state)
	if !reflect.DeepEqual(restarted.State(), state) {
		t.Fatalf("restored state differs:\n got %+v\nwant %+v", restarted.State(), state)
	}
	if s := restarted.Emit(w, bus, 29); s.Emitted != 0 || s.CooledDown != 1 {
		t.Fatalf("cooldown lost across restore: %+v", s)
	}

	// The restored count leaves room for one more token today.
	remember(t, w, a, predatorMemory(901, 0.9))
	remember(t, w, a, predatorMemory(902, 0.8))
	if s := restarted.Emit(w, bus, 30); s.Emitted != 1 || s.DailyCapped == 0 {
		t.Fatalf("daily cap lost across restore: %+v", s)
	}
}

func TestEmit_ChainDepthFromProvenance(t *testing.T) {
	w := newWorld(t)
	a := addNPC(w, 0, 0, grid.FacingEast)
	addNPC(w, 1, 0, grid.FacingWest)
	tr := predatorMemory(900, 0.9)
	tr.IsHeard = true
	tr.HeardKind = agents.RumorHeard
	remember(t, w, a, tr)

	bus := &Bus{}
	NewEmitter(DefaultEmissionRules()).Emit(w, bus, 0)
	out := bus.DrainOutbound()
	if len(out) != 1 || out[0].Token.ChainDepth() != 2 {
		t.Fatalf("outbound: %+v", out)
	}
}

func TestEmit_FaintMemoryRefused(t *testing.T) {
	w := newWorld(t)
	a := addNPC(w, 0, 0, grid.FacingEast)
	addNPC(w, 1, 0, grid.FacingWest)
	remember(t, w, a, predatorMemory(900, 0.1))

	stats := NewEmitter(DefaultEmissionRules()).Emit(w, &Bus{}, 0)
	if stats.Refused != 1 || stats.Emitted != 0 {
		t.Fatalf("stats: %+v", stats)
	}
}

func TestPipeline_RumorTravelsTwoHops(t *testing.T) {
	w := newWorld(t)
	a := addNPC(w, 0, 0, grid.FacingEast)
	b := addNPC(w, 1, 0, grid.FacingEast)
	c := addNPC(w, 2, 0, grid.FacingWest)
	remember(t, w, a, predatorMemory(900, 1))

	e := NewEmitter(DefaultEmissionRules())
	d := &Deliverer{}
	as := NewAssimilator(DefaultAssimilationRules())
	bus := &Bus{}

	e.Emit(w, bus, 0)
	d.Deliver(w, bus)
	as.Assimilate(w, bus)

	e.Emit(w, bus, 1)
	d.Deliver(w, bus)
	as.Assimilate(w, bus)

	nb, _ := w.NPC(b)
	hb, ok := nb.Memory.Find(agents.TracePredatorSeen, 900, grid.Cell{X: 5, Y: 5})
	if !ok || hb.HeardKind != agents.DirectHeard {
		t.Fatalf("b: %+v", nb.Memory.Traces())
	}
	nc, _ := w.NPC(c)
	hc, ok := nc.Memory.Find(agents.TracePredatorSeen, 900, grid.Cell{X: 5, Y: 5})
	if !ok || hc.HeardKind != agents.RumorHeard {
		t.Fatalf("c: %+v", nc.Memory.Traces())
	}
	if hc.Reliability >= hb.Reliability {
		t.Fatalf("rumor must be less reliable than direct hearsay: %v vs %v", hc.Reliability, hb.Reliability)
	}
}
