// Package grid provides the square cell grid, occlusion map, and the two
// propagation distance models: optical line of sight and acoustic detour.
package grid

// Cell is a position on the square grid.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Add returns c offset by d.
func (c Cell) Add(d Cell) Cell {
	return Cell{X: c.X + d.X, Y: c.Y + d.Y}
}

// Facing is the cardinal direction an NPC looks toward.
type Facing uint8

const (
	FacingNorth Facing = iota
	FacingEast
	FacingSouth
	FacingWest
)

// facingDeltas are indexed by Facing. North is -Y.
var facingDeltas = [4]Cell{
	{X: 0, Y: -1},
	{X: 1, Y: 0},
	{X: 0, Y: 1},
	{X: -1, Y: 0},
}

// Delta returns the unit offset of the cell directly in front.
func (f Facing) Delta() Cell {
	return facingDeltas[f%4]
}

// String returns the direction name.
func (f Facing) String() string {
	switch f % 4 {
	case FacingNorth:
		return "north"
	case FacingEast:
		return "east"
	case FacingSouth:
		return "south"
	default:
		return "west"
	}
}

// Neighbors4 returns the four orthogonal neighbours in N, E, S, W order.
func (c Cell) Neighbors4() [4]Cell {
	var out [4]Cell
	for i, d := range facingDeltas {
		out[i] = c.Add(d)
	}
	return out
}

// Manhattan returns |dx| + |dy|.
func Manhattan(a, b Cell) int {
	return absInt(a.X-b.X) + absInt(a.Y-b.Y)
}

// FloorDiv divides rounding toward negative infinity. b must be > 0.
func FloorDiv(a, b int) int {
	q := a / b
	if r := a % b; r < 0 {
		q--
	}
	return q
}

// Quantize snaps c to the origin of its regionSize×regionSize macro cell.
// regionSize below 1 is treated as 1.
func Quantize(c Cell, regionSize int) Cell {
	if regionSize < 1 {
		regionSize = 1
	}
	return Cell{
		X: FloorDiv(c.X, regionSize) * regionSize,
		Y: FloorDiv(c.Y, regionSize) * regionSize,
	}
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
