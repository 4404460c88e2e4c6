// Package world is the single source of truth for NPC and object state.
// It holds data and lookup helpers only; behaviour lives in the systems
// and commands that mutate it.
package world

import (
	"fmt"

	"github.com/talgya/rumormill/internal/agents"
	"github.com/talgya/rumormill/internal/entity"
	"github.com/talgya/rumormill/internal/grid"
)

// World holds every NPC, object, stock and the occlusion map.
type World struct {
	Occlusion *grid.OcclusionMap
	Globals   GlobalState
	Defs      map[string]ObjectDef

	npcs       *entity.Arena[agents.NPC]
	objects    *entity.Arena[Object]
	npcIndex   map[entity.ID]entity.Handle
	objIndex   map[entity.ID]entity.Handle
	foodStocks map[entity.ID]int // object ID → units remaining
	privFood   map[entity.ID]int // NPC ID → units carried

	nextID entity.ID
}

// New creates an empty world over occ. Definitions may be nil.
func New(occ *grid.OcclusionMap, globals GlobalState, defs []ObjectDef) *World {
	w := &World{
		Occlusion:  occ,
		Globals:    globals,
		Defs:       make(map[string]ObjectDef, len(defs)),
		npcs:       entity.NewArena[agents.NPC](64),
		objects:    entity.NewArena[Object](64),
		npcIndex:   make(map[entity.ID]entity.Handle),
		objIndex:   make(map[entity.ID]entity.Handle),
		foodStocks: make(map[entity.ID]int),
		privFood:   make(map[entity.ID]int),
		nextID:     1,
	}
	for _, d := range defs {
		w.Defs[d.ID] = d
	}
	return w
}

// NextID returns the identifier the next insertion will receive.
func (w *World) NextID() entity.ID {
	return w.nextID
}

func (w *World) claimID(id entity.ID) entity.ID {
	if id == 0 {
		id = w.nextID
	}
	if id >= w.nextID {
		w.nextID = id + 1
	}
	return id
}

// ── NPCs ─────────────────────────────────────────────────────────────

// AddNPC inserts n. A zero n.ID is assigned; a non-zero one is kept, which
// lets saved state round-trip. Returns the NPC's ID.
func (w *World) AddNPC(n agents.NPC) entity.ID {
	n.ID = w.claimID(n.ID)
	if n.Memory == nil {
		n.Memory = agents.NewMemoryStore(n.Personality.MaxTraces)
	}
	w.npcIndex[n.ID] = w.npcs.Insert(n)
	return n.ID
}

// NPC returns a copy of the NPC with the given ID.
func (w *World) NPC(id entity.ID) (agents.NPC, bool) {
	h, ok := w.npcIndex[id]
	if !ok {
		return agents.NPC{}, false
	}
	return w.npcs.Get(h)
}

// SetNPC writes n back. Returns false if n.ID is unknown.
func (w *World) SetNPC(n agents.NPC) bool {
	h, ok := w.npcIndex[n.ID]
	if !ok {
		return false
	}
	return w.npcs.Set(h, n)
}

// UpdateNPC applies fn to a copy of the NPC and writes it back.
func (w *World) UpdateNPC(id entity.ID, fn func(n *agents.NPC)) bool {
	n, ok := w.NPC(id)
	if !ok {
		return false
	}
	fn(&n)
	return w.SetNPC(n)
}

// RemoveNPC deletes an NPC and its private food.
func (w *World) RemoveNPC(id entity.ID) bool {
	h, ok := w.npcIndex[id]
	if !ok {
		return false
	}
	delete(w.npcIndex, id)
	delete(w.privFood, id)
	return w.npcs.Remove(h)
}

// EachNPC visits every NPC in arena order until fn returns false.
func (w *World) EachNPC(fn func(n agents.NPC) bool) {
	w.npcs.Each(func(_ entity.Handle, n agents.NPC) bool {
		return fn(n)
	})
}

// AliveNPCIDs returns the IDs of living NPCs in arena order.
func (w *World) AliveNPCIDs() []entity.ID {
	ids := make([]entity.ID, 0, w.npcs.Len())
	w.npcs.Each(func(_ entity.Handle, n agents.NPC) bool {
		if n.Alive {
			ids = append(ids, n.ID)
		}
		return true
	})
	return ids
}

// NPCCount returns the number of NPCs, alive or dead.
func (w *World) NPCCount() int {
	return w.npcs.Len()
}

// ── Objects ──────────────────────────────────────────────────────────

// AddObject places an instance of defID at cell. Occluding definitions are
// stamped into the occlusion map; food stock definitions start full.
// Unknown definitions are rejected.
func (w *World) AddObject(defID string, cell grid.Cell, owner entity.ID) (entity.ID, error) {
	return w.RestoreObject(Object{DefID: defID, Cell: cell, OwnerID: owner}, -1)
}

// RestoreObject inserts o keeping a non-zero o.ID. units < 0 fills a food
// stock to capacity; otherwise units is the stock level.
func (w *World) RestoreObject(o Object, units int) (entity.ID, error) {
	def, ok := w.Defs[o.DefID]
	if !ok {
		return 0, fmt.Errorf("unknown object def %q", o.DefID)
	}
	o.ID = w.claimID(o.ID)
	w.objIndex[o.ID] = w.objects.Insert(o)

	if def.Occludes() {
		w.Occlusion.Set(o.Cell, grid.OccluderCell{
			OccluderObjectID: o.ID,
			BlocksVision:     def.BlocksVision,
			BlocksMovement:   def.BlocksMovement,
			VisionCost:       def.VisionCost,
		})
	}
	if def.FoodCapacity > 0 {
		if units < 0 || units > def.FoodCapacity {
			units = def.FoodCapacity
		}
		w.foodStocks[o.ID] = units
	}
	return o.ID, nil
}

// RemoveObject deletes an object, its stock and any occlusion it stamped.
func (w *World) RemoveObject(id entity.ID) bool {
	h, ok := w.objIndex[id]
	if !ok {
		return false
	}
	o, _ := w.objects.Get(h)
	if occ, ok := w.Occlusion.At(o.Cell); ok && occ.OccluderObjectID == id {
		w.Occlusion.Clear(o.Cell)
	}
	delete(w.objIndex, id)
	delete(w.foodStocks, id)
	return w.objects.Remove(h)
}

// Object returns a copy of the object with the given ID.
func (w *World) Object(id entity.ID) (Object, bool) {
	h, ok := w.objIndex[id]
	if !ok {
		return Object{}, false
	}
	return w.objects.Get(h)
}

// SetObject writes o back. Returns false if o.ID is unknown.
func (w *World) SetObject(o Object) bool {
	h, ok := w.objIndex[o.ID]
	if !ok {
		return false
	}
	return w.objects.Set(h, o)
}

// EachObject visits every object in arena order until fn returns false.
func (w *World) EachObject(fn func(o Object) bool) {
	w.objects.Each(func(_ entity.Handle, o Object) bool {
		return fn(o)
	})
}

// ObjectCount returns the number of placed objects.
func (w *World) ObjectCount() int {
	return w.objects.Len()
}

// Def returns the definition of an object.
func (w *World) Def(o Object) (ObjectDef, bool) {
	d, ok := w.Defs[o.DefID]
	return d, ok
}

// UseState returns who is using an interactable object (0 = nobody).
func (w *World) UseState(id entity.ID) (entity.ID, bool) {
	o, ok := w.Object(id)
	if !ok {
		return 0, false
	}
	return o.InUseBy, true
}

// SetUseState records user as the occupant of an object.
func (w *World) SetUseState(id, user entity.ID) bool {
	o, ok := w.Object(id)
	if !ok {
		return false
	}
	o.InUseBy = user
	return w.SetObject(o)
}

// ── Food ─────────────────────────────────────────────────────────────

// FoodStock returns the units left in a stock object.
func (w *World) FoodStock(id entity.ID) (int, bool) {
	u, ok := w.foodStocks[id]
	return u, ok
}

// SetFoodStock sets a stock level, clamped to [0, capacity].
func (w *World) SetFoodStock(id entity.ID, units int) bool {
	if _, ok := w.foodStocks[id]; !ok {
		return false
	}
	o, _ := w.Object(id)
	capacity := w.Defs[o.DefID].FoodCapacity
	w.foodStocks[id] = max(0, min(units, capacity))
	return true
}

// StockCapacity returns the maximum units a stock holds.
func (w *World) StockCapacity(id entity.ID) int {
	o, ok := w.Object(id)
	if !ok {
		return 0
	}
	return w.Defs[o.DefID].FoodCapacity
}

// PrivateFood returns the units an NPC carries.
func (w *World) PrivateFood(id entity.ID) int {
	return w.privFood[id]
}

// SetPrivateFood sets the units an NPC carries. Negative becomes zero.
func (w *World) SetPrivateFood(id entity.ID, units int) {
	if units <= 0 {
		delete(w.privFood, id)
		return
	}
	w.privFood[id] = units
}

// ── Spatial queries ──────────────────────────────────────────────────

// Exists reports whether id names a live NPC or object.
func (w *World) Exists(id entity.ID) bool {
	if _, ok := w.npcIndex[id]; ok {
		return true
	}
	_, ok := w.objIndex[id]
	return ok
}

// PositionOf returns the grid cell of an NPC or object.
func (w *World) PositionOf(id entity.ID) (grid.Cell, bool) {
	if n, ok := w.NPC(id); ok {
		return n.Position, true
	}
	if o, ok := w.Object(id); ok {
		return o.Cell, true
	}
	return grid.Cell{}, false
}

// Occluder returns the occlusion state of a cell.
func (w *World) Occluder(c grid.Cell) (grid.OccluderCell, bool) {
	return w.Occlusion.At(c)
}

// HasLineOfSight reports whether sight passes from a to b.
func (w *World) HasLineOfSight(a, b grid.Cell) bool {
	return w.Occlusion.HasLineOfSight(a, b)
}

// CanSee applies the visibility gate: within rangeCells (Manhattan, at least 1)
// and an unobstructed line of sight.
func (w *World) CanSee(from, to grid.Cell, rangeCells int) bool {
	if rangeCells < 1 {
		rangeCells = 1
	}
	if grid.Manhattan(from, to) > rangeCells {
		return false
	}
	return w.Occlusion.HasLineOfSight(from, to)
}
