package comms

import "github.com/talgya/rumormill/internal/agents"

// shoutThreshold is the predator memory intensity that turns talk into a shout.
const shoutThreshold = 0.7

// DefaultEmissionRules returns the standard catalog. Order matters: the
// first rule whose Matches returns true handles the memory.
func DefaultEmissionRules() []EmissionRule {
	return []EmissionRule{
		predatorAlertRule{},
		traceRule{name: "help_request", trace: agents.TraceAttackSuffered, token: HelpRequest, channel: AlarmShout, minIntensity: 0.3},
		traceRule{name: "alarm_danger", trace: agents.TraceAttackWitnessed, token: AlarmDanger, channel: ProximityTalk, minIntensity: 0.25},
		traceRule{name: "theft_complaint", trace: agents.TraceTheftSuffered, token: TheftReport, channel: TargetedVisit, minIntensity: 0.2},
		traceRule{name: "theft_gossip", trace: agents.TraceTheftWitnessed, token: TheftReport, channel: ProximityTalk, minIntensity: 0.3},
		traceRule{name: "food_location", trace: agents.TraceFoodSource, token: FoodLocation, channel: ProximityTalk, minIntensity: 0.25},
	}
}

func tokenFromTrace(typ TokenType, tr agents.MemoryTrace) Token {
	return NewToken(typ, tr.SubjectID, tr.Intensity, tr.Reliability, chainDepthOf(tr)).
		WithSecondary(tr.SecondaryID).
		WithCell(tr.Cell)
}

// predatorAlertRule shouts about vivid sightings and mentions faint ones.
type predatorAlertRule struct{}

func (predatorAlertRule) Name() string { return "predator_alert" }

func (predatorAlertRule) Matches(tr agents.MemoryTrace) bool {
	return tr.Type == agents.TracePredatorSeen
}

func (predatorAlertRule) Emit(_ agents.NPC, tr agents.MemoryTrace) (Token, Channel, bool) {
	if tr.Intensity < 0.2 {
		return Token{}, 0, false
	}
	ch := ProximityTalk
	if tr.Intensity >= shoutThreshold {
		ch = AlarmShout
	}
	return tokenFromTrace(PredatorAlert, tr), ch, true
}

// traceRule maps one memory type to one token type on a fixed channel.
type traceRule struct {
	name         string
	trace        agents.TraceType
	token        TokenType
	channel      Channel
	minIntensity float64
}

func (r traceRule) Name() string { return r.name }

func (r traceRule) Matches(tr agents.MemoryTrace) bool {
	return tr.Type == r.trace
}

func (r traceRule) Emit(_ agents.NPC, tr agents.MemoryTrace) (Token, Channel, bool) {
	if tr.Intensity < r.minIntensity {
		return Token{}, 0, false
	}
	return tokenFromTrace(r.token, tr), r.channel, true
}
