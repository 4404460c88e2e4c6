package agents

// Needs tracks bodily pressure. Both values range from 0.0 (sated, rested)
// to 1.0 (starving, exhausted); higher means more urgent.
type Needs struct {
	Hunger  float32 `json:"hunger"`
	Fatigue float32 `json:"fatigue"`
}

// NeedRates are the per-tick growth of each need.
type NeedRates struct {
	HungerPerTick  float32
	FatiguePerTick float32
}

// GrowNeeds advances hunger and fatigue by one tick scaled by tickScale.
// Starvation erodes health; health at zero kills the NPC.
func GrowNeeds(n *NPC, rates NeedRates, tickScale float32) {
	n.Needs.Hunger += rates.HungerPerTick * tickScale
	n.Needs.Fatigue += rates.FatiguePerTick * tickScale

	if n.Needs.Hunger >= 1 {
		n.Health -= 0.002 * tickScale
		if n.Health <= 0 {
			n.Health = 0
			n.Alive = false
		}
	}
	clampNeeds(&n.Needs)
}

// Relieve lowers hunger and fatigue by the given amounts.
func (n *Needs) Relieve(hunger, fatigue float32) {
	n.Hunger -= hunger
	n.Fatigue -= fatigue
	clampNeeds(n)
}

func clampNeeds(n *Needs) {
	n.Hunger = clamp01(n.Hunger)
	n.Fatigue = clamp01(n.Fatigue)
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
