package world

// GlobalState is the process-wide simulation tuning, fixed at world
// construction. The loader is responsible for sane values; the core still
// clamps where it uses them.
type GlobalState struct {
	Vision     VisionParams
	Perception PerceptionParams
	Memory     MemoryParams
	Tokens     TokenParams
	Needs      NeedParams
	Threats    ThreatParams
}

// VisionParams bound what an NPC can perceive.
type VisionParams struct {
	RangeCells         int // witness range for events (Manhattan)
	DecisionRangeCells int // conservative range for acting on objects
}

// PerceptionParams control event encoding.
type PerceptionParams struct {
	SpatialFusion bool
	RegionSize    int
}

// MemoryParams control memory maintenance.
type MemoryParams struct {
	TickScale float64 // simulated time per tick, scales decay
}

// TokenParams control emission rate limits and delivery physics.
type TokenParams struct {
	ContactRadius   int
	TopTraces       int
	CooldownTicks   int
	MaxPerEncounter int
	MaxPerDay       int

	TalkRangeCells  int // ProximityTalk and TargetedVisit
	ShoutRangeCells int // AlarmShout

	ReliabilityFalloffPerCell float64
	IntensityFalloffPerCell   float64
	LineOfSight               bool
}

// NeedParams drive needs growth and the decision policy.
type NeedParams struct {
	HungerPerTick  float32
	FatiguePerTick float32

	HungerThreshold  float32
	HungerEmergency  float32
	FatigueThreshold float32
	FatigueEmergency float32
	JusticeThreshold float32

	EatRelief   float32
	SleepRelief float32

	DecisionEveryTicks int
}

// ThreatParams drive predator behaviour.
type ThreatParams struct {
	AttackRangeCells int
	AttackDamage     float32
}

// DefaultGlobals returns the tuning used when no configuration is supplied.
func DefaultGlobals() GlobalState {
	return GlobalState{
		Vision: VisionParams{
			RangeCells:         6,
			DecisionRangeCells: 8,
		},
		Perception: PerceptionParams{
			SpatialFusion: false,
			RegionSize:    4,
		},
		Memory: MemoryParams{TickScale: 1.0},
		Tokens: TokenParams{
			ContactRadius:             2,
			TopTraces:                 4,
			CooldownTicks:             30,
			MaxPerEncounter:           2,
			MaxPerDay:                 40,
			TalkRangeCells:            4,
			ShoutRangeCells:           12,
			ReliabilityFalloffPerCell: 0.03,
			IntensityFalloffPerCell:   0.04,
			LineOfSight:               true,
		},
		Needs: NeedParams{
			HungerPerTick:      0.0015,
			FatiguePerTick:     0.0010,
			HungerThreshold:    0.6,
			HungerEmergency:    0.9,
			FatigueThreshold:   0.7,
			FatigueEmergency:   0.95,
			JusticeThreshold:   0.45,
			EatRelief:          0.5,
			SleepRelief:        0.6,
			DecisionEveryTicks: 10,
		},
		Threats: ThreatParams{
			AttackRangeCells: 1,
			AttackDamage:     0.15,
		},
	}
}
