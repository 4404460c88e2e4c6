package grid

import (
	"fmt"

	"github.com/talgya/rumormill/internal/entity"
)

// OccluderCell is the obstruction state of one grid cell.
type OccluderCell struct {
	OccluderObjectID entity.ID `json:"occluder_object_id"`
	BlocksVision     bool      `json:"blocks_vision"`
	BlocksMovement   bool      `json:"blocks_movement"`
	VisionCost       int       `json:"vision_cost"`
}

// BlocksSight reports whether light cannot pass this cell.
func (o OccluderCell) BlocksSight() bool {
	return o.BlocksVision && o.VisionCost >= 1
}

// BlocksSound reports whether a shout cannot travel through this cell.
func (o OccluderCell) BlocksSound() bool {
	return o.BlocksMovement && o.VisionCost >= 1
}

// OcclusionMap holds one OccluderCell per grid cell, row-major.
// Cells outside the map are open for sight and closed for sound.
type OcclusionMap struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	cells  []OccluderCell
}

// NewOcclusionMap creates an empty map. Dimensions below 1 become 1.
func NewOcclusionMap(width, height int) *OcclusionMap {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return &OcclusionMap{
		Width:  width,
		Height: height,
		cells:  make([]OccluderCell, width*height),
	}
}

// InBounds returns true if c lies inside the map.
func (m *OcclusionMap) InBounds(c Cell) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < m.Width && c.Y < m.Height
}

// At returns the occluder at c. ok is false outside the map.
func (m *OcclusionMap) At(c Cell) (OccluderCell, bool) {
	if !m.InBounds(c) {
		return OccluderCell{}, false
	}
	return m.cells[c.Y*m.Width+c.X], true
}

// Set places an occluder at c. Out-of-bounds writes are ignored.
func (m *OcclusionMap) Set(c Cell, o OccluderCell) {
	if !m.InBounds(c) {
		return
	}
	m.cells[c.Y*m.Width+c.X] = o
}

// Clear removes any occluder at c.
func (m *OcclusionMap) Clear(c Cell) {
	m.Set(c, OccluderCell{})
}

// Count returns the number of cells that block sight or movement.
func (m *OcclusionMap) Count() int {
	n := 0
	for _, o := range m.cells {
		if o.BlocksVision || o.BlocksMovement {
			n++
		}
	}
	return n
}

// String returns a summary of the map.
func (m *OcclusionMap) String() string {
	return fmt.Sprintf("OcclusionMap(%dx%d, occluders=%d)", m.Width, m.Height, m.Count())
}
