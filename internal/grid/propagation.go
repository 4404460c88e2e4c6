package grid

// HasLineOfSight traces a Bresenham line from a to b. The source cell is
// skipped; every other traversed cell, b included, must not block sight.
func (m *OcclusionMap) HasLineOfSight(a, b Cell) bool {
	blocked := false
	walkLine(a, b, func(c Cell) bool {
		if o, ok := m.At(c); ok && o.BlocksSight() {
			blocked = true
			return false
		}
		return true
	})
	return !blocked
}

// walkLine visits every cell on the Bresenham line from a to b except a,
// in order, until visit returns false.
func walkLine(a, b Cell, visit func(Cell) bool) {
	dx := absInt(b.X - a.X)
	dy := -absInt(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	err := dx + dy
	x, y := a.X, a.Y
	for x != b.X || y != b.Y {
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
		if !visit(Cell{X: x, Y: y}) {
			return
		}
	}
}

// AcousticDistance finds the shortest 4-neighbour path from a to b that avoids
// sound-blocking cells, exploring at most maxRange steps. It returns the path
// length and true, or 0 and false when b is unreachable within range.
// maxRange below 1 is treated as 1.
func (m *OcclusionMap) AcousticDistance(a, b Cell, maxRange int) (int, bool) {
	if maxRange < 1 {
		maxRange = 1
	}
	if a == b {
		return 0, true
	}
	if Manhattan(a, b) > maxRange {
		return 0, false
	}

	type node struct {
		cell Cell
		dist int
	}
	visited := map[Cell]struct{}{a: {}}
	queue := []node{{cell: a}}

	for head := 0; head < len(queue); head++ {
		cur := queue[head]
		if cur.dist >= maxRange {
			continue
		}
		for _, next := range cur.cell.Neighbors4() {
			if _, seen := visited[next]; seen {
				continue
			}
			o, ok := m.At(next)
			if !ok || o.BlocksSound() {
				continue
			}
			if next == b {
				return cur.dist + 1, true
			}
			// Prune cells that cannot reach b within the remaining budget.
			if cur.dist+1+Manhattan(next, b) > maxRange {
				continue
			}
			visited[next] = struct{}{}
			queue = append(queue, node{cell: next, dist: cur.dist + 1})
		}
	}
	return 0, false
}
