package comms

import (
	"sort"

	"github.com/talgya/rumormill/internal/agents"
	"github.com/talgya/rumormill/internal/entity"
	"github.com/talgya/rumormill/internal/grid"
	"github.com/talgya/rumormill/internal/world"
)

// TicksPerDay is the window of the per-speaker daily cap.
const TicksPerDay = 1440

// EmissionRule turns a memory into a token. Emit may refuse, e.g. when the
// memory is too faint to be worth mentioning.
type EmissionRule interface {
	Name() string
	Matches(tr agents.MemoryTrace) bool
	Emit(speaker agents.NPC, tr agents.MemoryTrace) (Token, Channel, bool)
}

// EmitStats counts emission outcomes.
type EmitStats struct {
	Contacts    int `json:"contacts"`     // pairs within contact radius
	Attempts    int `json:"attempts"`     // directions that passed the facing gate
	Emitted     int `json:"emitted"`      // envelopes queued
	NoRule      int `json:"no_rule"`      // trace matched no rule
	Refused     int `json:"refused"`      // rule declined
	CooledDown  int `json:"cooled_down"`  // same content sent to same listener too recently
	DailyCapped int `json:"daily_capped"` // speaker hit the daily cap
}

// Add accumulates o into s.
func (s *EmitStats) Add(o EmitStats) {
	s.Contacts += o.Contacts
	s.Attempts += o.Attempts
	s.Emitted += o.Emitted
	s.NoRule += o.NoRule
	s.Refused += o.Refused
	s.CooledDown += o.CooledDown
	s.DailyCapped += o.DailyCapped
}

type cooldownKey struct {
	speaker, listener entity.ID
	typ               TokenType
	subject           entity.ID
	cell              grid.Cell
}

type dailyCount struct {
	day   uint64
	count int
}

// Emitter converts the most salient memories of NPCs in contact into
// outbound tokens, subject to cooldowns and caps.
type Emitter struct {
	// rules are consulted in order and the first match wins. The order is
	// part of the behaviour.
	rules []EmissionRule

	lastSent map[cooldownKey]uint64
	daily    map[entity.ID]dailyCount

	Totals EmitStats
	top    []agents.MemoryTrace
}

// NewEmitter creates an emitter over an ordered rule catalog.
func NewEmitter(rules []EmissionRule) *Emitter {
	return &Emitter{
		rules:    rules,
		lastSent: make(map[cooldownKey]uint64),
		daily:    make(map[entity.ID]dailyCount),
	}
}

func (e *Emitter) match(tr agents.MemoryTrace) EmissionRule {
	for _, r := range e.rules {
		if r.Matches(tr) {
			return r
		}
	}
	return nil
}

// Emit checks every unordered pair of living NPCs within the contact radius.
// Each direction is attempted only if the listener stands in the speaker's
// frontal cell. Facing gates the attempt only; which rule and channel apply
// does not depend on it.
func (e *Emitter) Emit(w *world.World, bus *Bus, tick uint64) EmitStats {
	var stats EmitStats
	params := w.Globals.Tokens
	radius := max(1, params.ContactRadius)

	ids := w.AliveNPCIDs()
	for i := 0; i < len(ids); i++ {
		a, ok := w.NPC(ids[i])
		if !ok {
			continue
		}
		for j := i + 1; j < len(ids); j++ {
			b, ok := w.NPC(ids[j])
			if !ok {
				continue
			}
			if grid.Manhattan(a.Position, b.Position) > radius {
				continue
			}
			stats.Contacts++
			if a.CanTalkTo(&b) {
				stats.Attempts++
				e.emitTo(&a, &b, params, bus, tick, &stats)
			}
			if b.CanTalkTo(&a) {
				stats.Attempts++
				e.emitTo(&b, &a, params, bus, tick, &stats)
			}
		}
	}

	e.Totals.Add(stats)
	return stats
}

func (e *Emitter) emitTo(speaker, listener *agents.NPC, p world.TokenParams, bus *Bus, tick uint64, stats *EmitStats) {
	if speaker.Memory == nil {
		return
	}
	cooldown := uint64(max(0, p.CooldownTicks))
	perEncounter := max(1, p.MaxPerEncounter)

	e.top = speaker.Memory.TopTraces(max(1, p.TopTraces), e.top[:0])
	sent := 0
	for _, tr := range e.top {
		if sent >= perEncounter {
			return
		}
		rule := e.match(tr)
		if rule == nil {
			stats.NoRule++
			continue
		}
		tok, ch, ok := rule.Emit(*speaker, tr)
		if !ok {
			stats.Refused++
			continue
		}

		cell, _ := tok.Cell()
		key := cooldownKey{
			speaker:  speaker.ID,
			listener: listener.ID,
			typ:      tok.Type(),
			subject:  tok.Subject(),
			cell:     cell,
		}
		if last, seen := e.lastSent[key]; seen && tick-last < cooldown {
			stats.CooledDown++
			continue
		}
		if !e.allowDaily(speaker.ID, tick, p.MaxPerDay) {
			stats.DailyCapped++
			return
		}

		e.lastSent[key] = tick
		bus.Speak(Envelope{
			SpeakerID:  speaker.ID,
			ListenerID: listener.ID,
			Channel:    ch,
			Tick:       tick,
			Token:      tok,
		})
		stats.Emitted++
		sent++
	}
}

// allowDaily counts one token against the speaker's allowance for the
// current day. maxPerDay ≤ 0 disables the cap.
func (e *Emitter) allowDaily(speaker entity.ID, tick uint64, maxPerDay int) bool {
	if maxPerDay <= 0 {
		return true
	}
	day := tick / TicksPerDay
	rec := e.daily[speaker]
	if rec.day != day {
		rec = dailyCount{day: day}
	}
	if rec.count >= maxPerDay {
		e.daily[speaker] = rec
		return false
	}
	rec.count++
	e.daily[speaker] = rec
	return true
}

// Prune forgets cooldowns that have expired and daily counters from past
// days. Purely a memory bound; results are unchanged.
func (e *Emitter) Prune(tick uint64, cooldownTicks int) {
	cooldown := uint64(max(0, cooldownTicks))
	for k, last := range e.lastSent {
		if tick-last >= cooldown {
			delete(e.lastSent, k)
		}
	}
	day := tick / TicksPerDay
	for id, rec := range e.daily {
		if rec.day != day {
			delete(e.daily, id)
		}
	}
}

// CooldownRecord is one remembered send: speaker told listener this content
// at Tick.
type CooldownRecord struct {
	Speaker  entity.ID
	Listener entity.ID
	Type     TokenType
	Subject  entity.ID
	Cell     grid.Cell
	Tick     uint64
}

// DailyRecord is a speaker's token count for one day.
type DailyRecord struct {
	Speaker entity.ID
	Day     uint64
	Count   int
}

// EmitterState is the part of an Emitter that must survive a restart for
// cooldowns and daily caps to hold across it.
type EmitterState struct {
	Cooldowns []CooldownRecord
	Daily     []DailyRecord
}

// State exports the emitter's cooldowns and daily counters in a stable order.
func (e *Emitter) State() EmitterState {
	var s EmitterState
	for k, tick := range e.lastSent {
		s.Cooldowns = append(s.Cooldowns, CooldownRecord{
			Speaker: k.speaker, Listener: k.listener, Type: k.typ,
			Subject: k.subject, Cell: k.cell, Tick: tick,
		})
	}
	sort.Slice(s.Cooldowns, func(i, j int) bool {
		a, b := s.Cooldowns[i], s.Cooldowns[j]
		switch {
		case a.Speaker != b.Speaker:
			return a.Speaker < b.Speaker
		case a.Listener != b.Listener:
			return a.Listener < b.Listener
		case a.Type != b.Type:
			return a.Type < b.Type
		case a.Subject != b.Subject:
			return a.Subject < b.Subject
		case a.Cell.Y != b.Cell.Y:
			return a.Cell.Y < b.Cell.Y
		default:
			return a.Cell.X < b.Cell.X
		}
	})
	for id, rec := range e.daily {
		s.Daily = append(s.Daily, DailyRecord{Speaker: id, Day: rec.day, Count: rec.count})
	}
	sort.Slice(s.Daily, func(i, j int) bool { return s.Daily[i].Speaker < s.Daily[j].Speaker })
	return s
}

// Restore replaces the emitter's cooldowns and daily counters with s.
func (e *Emitter) Restore(s EmitterState) {
	e.lastSent = make(map[cooldownKey]uint64, len(s.Cooldowns))
	for _, r := range s.Cooldowns {
		k := cooldownKey{speaker: r.Speaker, listener: r.Listener, typ: r.Type, subject: r.Subject, cell: r.Cell}
		if last, ok := e.lastSent[k]; !ok || r.Tick > last {
			e.lastSent[k] = r.Tick
		}
	}
	e.daily = make(map[entity.ID]dailyCount, len(s.Daily))
	for _, r := range s.Daily {
		e.daily[r.Speaker] = dailyCount{day: r.Day, count: r.Count}
	}
}

// chainDepthOf maps a memory's provenance to the number of hand-offs it has
// already been through.
func chainDepthOf(tr agents.MemoryTrace) int {
	switch tr.HeardKind {
	case agents.DirectHeard:
		return 1
	case agents.RumorHeard:
		return 2
	default:
		return 0
	}
}
