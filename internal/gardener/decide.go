package gardener

import (
	"fmt"
	"log/slog"
	"sort"
)

// Actions the gardener may choose.
const (
	ActionNone      = "none"
	ActionRation    = "ration"
	ActionProvision = "provision"
	ActionCull      = "cull_predator"
)

const (
	maxUnits     = 100 // per intervention, matches the admin API bound
	rationUnits  = 3
	repeatWindow = 3 // cycles before the same action may hit the same target
)

// Decision is the gardener's chosen action for one cycle.
type Decision struct {
	Action       string        `json:"action"`
	Rationale    string        `json:"rationale"`
	Intervention *Intervention `json:"intervention"`
}

// Target returns the object or NPC the decision acts on, or 0.
func (d *Decision) Target() uint64 {
	if d.Intervention == nil {
		return 0
	}
	if d.Intervention.NPC != 0 {
		return d.Intervention.NPC
	}
	return d.Intervention.Object
}

// Intervention is the payload for POST /api/v1/intervention.
type Intervention struct {
	Kind   string `json:"kind"`
	Object uint64 `json:"object,omitempty"`
	NPC    uint64 `json:"npc,omitempty"`
	X      int    `json:"x,omitempty"`
	Y      int    `json:"y,omitempty"`
	Units  int    `json:"units,omitempty"`
}

// Decide picks at most one intervention. Healthy villages are left alone;
// the lightest action that addresses the worst signal wins.
func Decide(snap *WorldSnapshot, health *WorldHealth, mem *CycleMemory) *Decision {
	runID := snap.Status.RunID
	fresh := func(action string, target uint64) bool {
		return mem == nil || !mem.recentlyActed(runID, action, target, repeatWindow)
	}

	if health.CrisisLevel == LevelHealthy {
		return &Decision{Action: ActionNone, Rationale: "village is fed and safe"}
	}

	// Starving NPCs with empty pockets come first.
	if health.Starving > 0 {
		for _, n := range hungriest(snap.NPCs) {
			if n.Hunger < starvingAt {
				break
			}
			if n.PrivateFood > 0 || !fresh(ActionRation, n.ID) {
				continue
			}
			return guard(&Decision{
				Action:       ActionRation,
				Rationale:    fmt.Sprintf("%s is starving with nothing to eat (hunger %.2f)", n.Name, n.Hunger),
				Intervention: &Intervention{Kind: ActionRation, NPC: n.ID, Units: rationUnits},
			})
		}
	}

	// Refill the emptiest stock when hunger is widespread or stocks run dry.
	if health.Hungry > 0 || health.EmptyStocks > 0 {
		if s, ok := emptiest(snap.Stocks, func(id uint64) bool { return fresh(ActionProvision, id) }); ok {
			return guard(&Decision{
				Action:       ActionProvision,
				Rationale:    fmt.Sprintf("stock %d holds %d of %d units with %d hungry", s.ID, s.Units, s.Capacity, health.Hungry),
				Intervention: &Intervention{Kind: ActionProvision, Object: s.ID, Units: s.Capacity - s.Units},
			})
		}
	}

	// Thin out predators when they outnumber one per ten villagers.
	if health.Predators*10 > health.Alive || (health.Weak > 0 && health.Predators > 0) {
		for _, p := range snap.Predators {
			if !fresh(ActionCull, p.ID) {
				continue
			}
			return guard(&Decision{
				Action:       ActionCull,
				Rationale:    fmt.Sprintf("%d predators against %d villagers", health.Predators, health.Alive),
				Intervention: &Intervention{Kind: ActionCull, Object: p.ID},
			})
		}
	}

	return &Decision{Action: ActionNone, Rationale: fmt.Sprintf("%s but nothing actionable", health.CrisisLevel)}
}

// guard clamps the decision within safe bounds.
func guard(d *Decision) *Decision {
	iv := d.Intervention
	if iv == nil {
		d.Action = ActionNone
		return d
	}
	iv.Kind = d.Action
	if iv.Kind == ActionCull {
		iv.Units = 0
		return d
	}
	if iv.Units > maxUnits {
		slog.Warn("gardener units capped", "requested", iv.Units, "capped", maxUnits)
		iv.Units = maxUnits
	}
	if iv.Units < 1 {
		iv.Units = 1
	}
	return d
}

func hungriest(npcs []NPCInfo) []NPCInfo {
	out := append([]NPCInfo(nil), npcs...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Hunger != out[j].Hunger {
			return out[i].Hunger > out[j].Hunger
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// emptiest returns the allowed stock with the most free capacity.
func emptiest(stocks []ObjectInfo, allowed func(uint64) bool) (ObjectInfo, bool) {
	var best ObjectInfo
	found := false
	for _, s := range stocks {
		free := s.Capacity - s.Units
		if free <= 0 || !allowed(s.ID) {
			continue
		}
		if !found || free > best.Capacity-best.Units || (free == best.Capacity-best.Units && s.ID < best.ID) {
			best, found = s, true
		}
	}
	return best, found
}
