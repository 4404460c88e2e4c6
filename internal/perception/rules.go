package perception

import (
	"github.com/talgya/rumormill/internal/agents"
	"github.com/talgya/rumormill/internal/entity"
	"github.com/talgya/rumormill/internal/events"
	"github.com/talgya/rumormill/internal/world"
)

// Per-tick intensity loss of first-hand memories, before personality.
const (
	decayPredator = 0.004
	decayHarm     = 0.002 // suffered attacks and thefts linger
	decayWitness  = 0.005
	decayFood     = 0.003
)

// DefaultRules returns the standard encoding catalog. Order matters: the
// first rule whose Matches returns true handles the fact.
func DefaultRules() []EncodingRule {
	return []EncodingRule{
		predatorRule{},
		attackRule{},
		theftRule{},
		trespassRule{},
		foodSourceRule{},
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func traumaAmplifier(w *world.World, id entity.ID) float64 {
	n, ok := w.NPC(id)
	if !ok {
		return 1
	}
	return n.Personality.TraumaAmplifier()
}

// predatorRule: anyone in range remembers where a predator was seen.
type predatorRule struct{}

func (predatorRule) Name() string { return "predator_sighted" }

func (predatorRule) Matches(f events.Fact) bool { return f.Kind == events.PredatorSighted }

func (predatorRule) Encode(_ *world.World, _ entity.ID, f events.Fact, q float64) (agents.MemoryTrace, bool) {
	return agents.MemoryTrace{
		Type:         agents.TracePredatorSeen,
		SubjectID:    f.Actor,
		Cell:         f.Cell,
		Intensity:    clampUnit(0.5 + 0.5*q),
		Reliability:  q,
		DecayPerTick: decayPredator,
	}, true
}

// attackRule: the defender remembers suffering it, bystanders remember
// seeing it, the attacker forms no memory.
type attackRule struct{}

func (attackRule) Name() string { return "attack" }

func (attackRule) Matches(f events.Fact) bool { return f.Kind == events.Attack }

func (attackRule) Encode(w *world.World, witness entity.ID, f events.Fact, q float64) (agents.MemoryTrace, bool) {
	switch witness {
	case f.Actor:
		return agents.MemoryTrace{}, false
	case f.Target:
		return agents.MemoryTrace{
			Type:         agents.TraceAttackSuffered,
			SubjectID:    f.Actor,
			SecondaryID:  f.Target,
			Cell:         f.Cell,
			Intensity:    clampUnit((0.6 + 0.4*q) * traumaAmplifier(w, witness)),
			Reliability:  1,
			DecayPerTick: decayHarm,
		}, true
	default:
		return agents.MemoryTrace{
			Type:         agents.TraceAttackWitnessed,
			SubjectID:    f.Actor,
			SecondaryID:  f.Target,
			Cell:         f.Cell,
			Intensity:    clampUnit(0.4 + 0.4*q),
			Reliability:  q,
			DecayPerTick: decayWitness,
		}, true
	}
}

// theftRule mirrors attackRule for stolen food.
type theftRule struct{}

func (theftRule) Name() string { return "theft" }

func (theftRule) Matches(f events.Fact) bool { return f.Kind == events.Theft }

func (theftRule) Encode(w *world.World, witness entity.ID, f events.Fact, q float64) (agents.MemoryTrace, bool) {
	switch witness {
	case f.Actor:
		return agents.MemoryTrace{}, false
	case f.Target:
		return agents.MemoryTrace{
			Type:         agents.TraceTheftSuffered,
			SubjectID:    f.Actor,
			SecondaryID:  f.Target,
			Cell:         f.Cell,
			Intensity:    clampUnit((0.5 + 0.3*q) * traumaAmplifier(w, witness)),
			Reliability:  1,
			DecayPerTick: decayHarm,
		}, true
	default:
		return agents.MemoryTrace{
			Type:         agents.TraceTheftWitnessed,
			SubjectID:    f.Actor,
			SecondaryID:  f.Target,
			Cell:         f.Cell,
			Intensity:    clampUnit(0.3 + 0.4*q),
			Reliability:  q,
			DecayPerTick: decayWitness,
		}, true
	}
}

// trespassRule: everyone but the trespasser notes who slept where they should not.
type trespassRule struct{}

func (trespassRule) Name() string { return "trespass" }

func (trespassRule) Matches(f events.Fact) bool { return f.Kind == events.Trespass }

func (trespassRule) Encode(_ *world.World, witness entity.ID, f events.Fact, q float64) (agents.MemoryTrace, bool) {
	if witness == f.Actor {
		return agents.MemoryTrace{}, false
	}
	return agents.MemoryTrace{
		Type:         agents.TraceTrespassWitnessed,
		SubjectID:    f.Actor,
		SecondaryID:  f.Object,
		Cell:         f.Cell,
		Intensity:    clampUnit(0.3 + 0.3*q),
		Reliability:  q,
		DecayPerTick: decayWitness,
	}, true
}

// foodSourceRule: seeing someone eat from a community stock teaches where
// food is. Private meals reveal nothing.
type foodSourceRule struct{}

func (foodSourceRule) Name() string { return "food_source" }

func (foodSourceRule) Matches(f events.Fact) bool {
	return f.Kind == events.FoodConsumed && f.Object != 0
}

func (foodSourceRule) Encode(_ *world.World, _ entity.ID, f events.Fact, q float64) (agents.MemoryTrace, bool) {
	return agents.MemoryTrace{
		Type:         agents.TraceFoodSource,
		SubjectID:    f.Object,
		Cell:         f.Cell,
		Intensity:    clampUnit(0.3 + 0.3*q),
		Reliability:  q,
		DecayPerTick: decayFood,
	}, true
}
