// Simulation ties together all world systems and runs them each tick.
package engine

import (
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/talgya/rumormill/internal/command"
	"github.com/talgya/rumormill/internal/comms"
	"github.com/talgya/rumormill/internal/events"
	"github.com/talgya/rumormill/internal/perception"
	"github.com/talgya/rumormill/internal/policy"
	"github.com/talgya/rumormill/internal/world"
)

// DefaultViewEveryTicks is how often a tick report carries a WorldView.
const DefaultViewEveryTicks = 10

// recentFactLimit bounds the in-memory fact log.
const recentFactLimit = 512

// Simulation holds the world and the pipeline stages, and runs one tick
// at a time: scheduled systems, fact encoding, token emission, delivery
// and assimilation, then decisions and their commands.
type Simulation struct {
	World *world.World

	Facts     events.Queue
	Bus       comms.Bus
	Scheduler *Scheduler

	Encoder     *perception.Encoder
	Emitter     *comms.Emitter
	Deliverer   *comms.Deliverer
	Assimilator *comms.Assimilator
	Policy      *policy.Policy
	Executor    *command.Executor

	Needs     *NeedsSystem
	Decay     *perception.Decay
	Predators *PredatorSystem

	// Interventions may be submitted from any goroutine.
	Interventions InterventionQueue

	ViewEveryTicks int

	LastTick uint64
	Totals   Totals

	// Recent holds the latest facts, oldest first.
	Recent []events.Fact

	observers []Observer
	due       []System
	pending   []command.Command
}

// NewSimulation wires the standard rule catalogs and registers the default
// systems. seed drives predator movement.
func NewSimulation(w *world.World, seed int64) *Simulation {
	s := &Simulation{
		World:          w,
		Scheduler:      NewScheduler(),
		Encoder:        perception.NewEncoder(perception.DefaultRules()),
		Emitter:        comms.NewEmitter(comms.DefaultEmissionRules()),
		Deliverer:      &comms.Deliverer{},
		Assimilator:    comms.NewAssimilator(comms.DefaultAssimilationRules()),
		Policy:         policy.New(w.Globals),
		Executor:       command.NewExecutor(),
		Needs:          &NeedsSystem{},
		Decay:          &perception.Decay{},
		ViewEveryTicks: DefaultViewEveryTicks,
	}
	s.Predators = NewPredatorSystem(&s.Facts, seed)

	s.Scheduler.Register(PeriodNeeds, s.Needs)
	s.Scheduler.Register(PeriodDecay, s.Decay)
	s.Scheduler.Register(PeriodPredators, s.Predators)
	s.Scheduler.Register(PeriodRegrowth, RegrowthSystem{})
	s.Scheduler.Register(PeriodBookkeeping, BookkeepingSystem{Emitter: s.Emitter})
	return s
}

// Observe registers an observer for tick reports.
func (s *Simulation) Observe(o Observer) {
	s.observers = append(s.observers, o)
}

// CurrentTick returns the most recently processed tick number.
func (s *Simulation) CurrentTick() uint64 {
	return s.LastTick
}

// Step runs tick through the whole pipeline and returns its report.
func (s *Simulation) Step(tick uint64) TickReport {
	s.LastTick = tick
	w := s.World
	r := TickReport{Tick: tick, SimTime: SimTime(tick)}

	r.Interventions = s.applyInterventions()

	// Low-level systems.
	s.due = s.Scheduler.SystemsToRun(tick, s.due[:0])
	r.Systems = make([]string, 0, len(s.due))
	for _, sys := range s.due {
		sys.Run(w, tick)
		r.Systems = append(r.Systems, sys.Name())
	}

	// Facts → first-hand memories → tokens → hearsay.
	batch := s.Facts.Drain()
	r.Facts = len(batch)
	r.Encode = s.Encoder.Encode(w, batch, tick)
	r.Emit = s.Emitter.Emit(w, &s.Bus, tick)
	r.Delivery = s.Deliverer.Deliver(w, &s.Bus)
	r.Assimilate = s.Assimilator.Assimilate(w, &s.Bus)
	s.record(batch)

	// Decisions; their facts are encoded next tick.
	every := uint64(max(1, w.Globals.Needs.DecisionEveryTicks))
	if tick%every == 0 {
		r.Deciding = true
		s.pending = s.Policy.DecideAll(w, s.pending[:0])
		r.Commands = s.Executor.Run(w, &s.Facts, s.pending, tick)
	}

	r.Alive = len(w.AliveNPCIDs())
	if s.ViewEveryTicks > 0 && tick%uint64(s.ViewEveryTicks) == 0 {
		v := s.View()
		r.View = &v
	}

	s.accumulate(r)
	r.Totals = s.Totals
	if tick%TicksPerSimDay == 0 {
		s.dailyReport(tick, r.Alive)
	}
	for _, o := range s.observers {
		o.ObserveTick(r)
	}
	return r
}

func (s *Simulation) record(batch []events.Fact) {
	if len(batch) == 0 {
		return
	}
	s.Recent = append(s.Recent, batch...)
	if over := len(s.Recent) - recentFactLimit; over > 0 {
		s.Recent = append(s.Recent[:0], s.Recent[over:]...)
	}
}

func (s *Simulation) accumulate(r TickReport) {
	t := &s.Totals
	t.Ticks++
	t.Facts += r.Facts
	t.Encode.Add(r.Encode)
	t.Emit.Add(r.Emit)
	t.Delivery.Add(r.Delivery)
	t.Assimilate.Add(r.Assimilate)
	t.Commands += r.Commands.Executed
	t.NoOps += r.Commands.NoOps
}

// View copies the NPC population and objects for readers outside the
// simulation.
func (s *Simulation) View() WorldView {
	w := s.World
	v := WorldView{Tick: s.LastTick, NPCs: make([]NPCView, 0, w.NPCCount())}
	for _, id := range w.AliveNPCIDs() {
		n, ok := w.NPC(id)
		if !ok {
			continue
		}
		nv := NPCView{
			ID:                n.ID,
			Name:              n.Name,
			Position:          n.Position,
			Facing:            n.Facing.String(),
			Health:            n.Health,
			Needs:             n.Needs,
			JusticePerception: n.JusticePerception,
			PrivateFood:       w.PrivateFood(n.ID),
			Alive:             n.Alive,
		}
		if n.Memory != nil {
			nv.Memories = n.Memory.Traces()
		}
		v.NPCs = append(v.NPCs, nv)
	}
	w.EachObject(func(o world.Object) bool {
		def, _ := w.Def(o)
		ov := ObjectView{
			ID:       o.ID,
			Def:      o.DefID,
			Position: o.Cell,
			Owner:    o.OwnerID,
			InUseBy:  o.InUseBy,
			Predator: def.Predator,
		}
		if units, ok := w.FoodStock(o.ID); ok {
			ov.Stock = true
			ov.Units = units
			ov.Capacity = w.StockCapacity(o.ID)
		}
		v.Objects = append(v.Objects, ov)
		return true
	})
	return v
}

func (s *Simulation) dailyReport(tick uint64, alive int) {
	t := s.Totals
	slog.Info("daily report",
		"tick", tick,
		"time", SimTime(tick),
		"alive", alive,
		"starved", s.Needs.Deaths,
		"predator_attacks", s.Predators.Attacks,
		"facts", humanize.Comma(int64(t.Facts)),
		"memories_stored", humanize.Comma(int64(t.Encode.Stored)),
		"tokens_emitted", humanize.Comma(int64(t.Emit.Emitted)),
		"tokens_delivered", humanize.Comma(int64(t.Delivery.Delivered)),
		"dropped_range", t.Delivery.DroppedRange,
		"dropped_los", t.Delivery.DroppedLOS,
		"dropped_weak", t.Delivery.DroppedTooWeak,
		"assimilated", humanize.Comma(int64(t.Assimilate.Assimilated)),
		"unhandled", t.Assimilate.Unhandled,
		"commands", humanize.Comma(int64(t.Commands)),
	)
}
