package world

import (
	"strings"

	"github.com/talgya/rumormill/internal/entity"
	"github.com/talgya/rumormill/internal/grid"
)

// ObjectDef describes a kind of world object. Sprite is carried for the
// presentation layer and ignored by the core.
type ObjectDef struct {
	ID             string `json:"id" yaml:"id"`
	Sprite         string `json:"sprite" yaml:"sprite"`
	BlocksVision   bool   `json:"blocks_vision" yaml:"blocks_vision"`
	BlocksMovement bool   `json:"blocks_movement" yaml:"blocks_movement"`
	VisionCost     int    `json:"vision_cost" yaml:"vision_cost"`
	Interactable   bool   `json:"interactable" yaml:"interactable"`
	FoodCapacity   int    `json:"food_capacity" yaml:"food_capacity"` // >0 makes it a food stock
	Predator       bool   `json:"predator" yaml:"predator"`
}

// Occludes reports whether placing this object changes the occlusion map.
func (d ObjectDef) Occludes() bool {
	return d.BlocksVision || d.BlocksMovement
}

// Object is one placed instance of an ObjectDef.
type Object struct {
	ID      entity.ID `json:"id"`
	DefID   string    `json:"def_id"`
	Cell    grid.Cell `json:"cell"`
	OwnerID entity.ID `json:"owner_id"`  // 0 = community owned
	InUseBy entity.ID `json:"in_use_by"` // 0 = free
}

// IsBed uses a naive substring check on the definition id.
func (o *Object) IsBed() bool {
	return strings.Contains(o.DefID, "bed")
}

// IsCommunity reports whether nobody owns the object.
func (o *Object) IsCommunity() bool {
	return o.OwnerID == 0
}
