// Package agents provides the NPC data model, needs, personality, and the
// per-NPC bounded memory store.
package agents

import (
	"github.com/talgya/rumormill/internal/entity"
	"github.com/talgya/rumormill/internal/grid"
)

// NPC is an agent that perceives, remembers, talks, and acts on its needs.
// Positions are inputs to the core; nothing here moves an NPC.
type NPC struct {
	ID   entity.ID `json:"id"`
	Name string    `json:"name"`

	// Location
	Position grid.Cell   `json:"position"`
	Facing   grid.Facing `json:"facing"`

	Health float32 `json:"health"` // 0.0–1.0
	Needs  Needs   `json:"needs"`

	// JusticePerception is how fair the NPC believes the world is (0.0–1.0).
	// Low values make theft and trespass acceptable.
	JusticePerception float32 `json:"justice_perception"`

	Personality PersonalityMemoryParams `json:"personality"`

	// Memory is shared by every copy of this NPC value.
	Memory *MemoryStore `json:"-"`

	// Metadata
	BornTick uint64 `json:"born_tick"`
	Alive    bool   `json:"alive"`
}

// PersonalityMemoryParams modulates memory decay and encoding salience.
// Set at creation and read-only afterwards.
type PersonalityMemoryParams struct {
	TraumaSensitivity float32 `json:"trauma_sensitivity"` // 0.0–1.0
	Resilience        float32 `json:"resilience"`         // 0.0–1.0
	Rumination        float32 `json:"rumination"`         // 0.0–1.0
	Gullibility       float32 `json:"gullibility"`        // 0.0–1.0
	MaxTraces         int     `json:"max_traces"`
}

// DecayMultiplier returns 1 + resilience − 0.5·rumination, floored at 0.10
// so memories always fade eventually.
func (p PersonalityMemoryParams) DecayMultiplier() float64 {
	m := 1 + float64(p.Resilience)*1.0 - float64(p.Rumination)*0.5
	if m < 0.10 {
		m = 0.10
	}
	return m
}

// TraumaAmplifier scales the intensity of first-hand harm.
func (p PersonalityMemoryParams) TraumaAmplifier() float64 {
	return 1 + float64(p.TraumaSensitivity)*0.5
}

// FrontCell returns the single cell directly ahead of the NPC.
func (n *NPC) FrontCell() grid.Cell {
	return n.Position.Add(n.Facing.Delta())
}

// CanTalkTo reports whether listener stands in the NPC's frontal cell.
func (n *NPC) CanTalkTo(listener *NPC) bool {
	return listener.Position == n.FrontCell()
}
