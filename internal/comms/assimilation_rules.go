package comms

import (
	"github.com/talgya/rumormill/internal/agents"
	"github.com/talgya/rumormill/internal/world"
)

// hearsayRule applies fixed second-hand multipliers to one token type.
type hearsayRule struct {
	name      string
	token     TokenType
	trace     agents.TraceType
	relFactor float64
	intFactor float64
	baseDecay float64
}

// DefaultAssimilationRules returns the standard catalog in match order.
func DefaultAssimilationRules() []AssimilationRule {
	return []AssimilationRule{
		hearsayRule{name: "predator_rumor", token: PredatorAlert, trace: agents.TracePredatorSeen, relFactor: 0.75, intFactor: 0.60, baseDecay: 0.004},
		hearsayRule{name: "danger_rumor", token: AlarmDanger, trace: agents.TraceAttackWitnessed, relFactor: 0.70, intFactor: 0.60, baseDecay: 0.005},
		hearsayRule{name: "help_call", token: HelpRequest, trace: agents.TraceAttackWitnessed, relFactor: 0.85, intFactor: 0.80, baseDecay: 0.005},
		hearsayRule{name: "theft_rumor", token: TheftReport, trace: agents.TraceTheftWitnessed, relFactor: 0.65, intFactor: 0.55, baseDecay: 0.005},
		hearsayRule{name: "food_tip", token: FoodLocation, trace: agents.TraceFoodSource, relFactor: 0.80, intFactor: 0.70, baseDecay: 0.003},
	}
}

func (r hearsayRule) Name() string { return r.name }

func (r hearsayRule) Matches(tok Token) bool { return tok.Type() == r.token }

func (r hearsayRule) Assimilate(_ *world.World, env Envelope) (agents.MemoryTrace, bool) {
	tok := env.Token
	// Nobody takes in gossip about themselves.
	if tok.Subject() == env.ListenerID {
		return agents.MemoryTrace{}, false
	}
	cell, _ := tok.Cell()
	return agents.MemoryTrace{
		Type:          r.trace,
		SubjectID:     tok.Subject(),
		SecondaryID:   tok.Secondary(),
		Cell:          cell,
		Intensity:     clampUnit(tok.Intensity() * r.intFactor),
		Reliability:   clampUnit(tok.Reliability() * r.relFactor),
		DecayPerTick:  r.baseDecay * heardDecayFactor,
		IsHeard:       true,
		HeardKind:     HeardKindOf(tok.ChainDepth()),
		SourceSpeaker: env.SpeakerID,
	}, true
}
