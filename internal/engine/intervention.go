package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/talgya/rumormill/internal/entity"
	"github.com/talgya/rumormill/internal/grid"
	"github.com/talgya/rumormill/internal/world"
)

// Intervention kinds accepted by the admin API.
const (
	KindProvision       = "provision"        // add units to a food stock
	KindRation          = "ration"           // give private food to an NPC
	KindReleasePredator = "release_predator" // place a predator at a cell
	KindCullPredator    = "cull_predator"    // remove a predator object
)

// Intervention is an outside change to the world, applied on the
// simulation goroutine at the start of a tick.
type Intervention struct {
	Kind   string    `json:"kind"`
	Object entity.ID `json:"object,omitempty"`
	NPC    entity.ID `json:"npc,omitempty"`
	X      int       `json:"x,omitempty"`
	Y      int       `json:"y,omitempty"`
	Units  int       `json:"units,omitempty"`
}

// InterventionResult reports what an intervention did.
type InterventionResult struct {
	Success bool   `json:"success"`
	Details string `json:"details"`
}

type pendingIntervention struct {
	iv    Intervention
	reply chan InterventionResult
}

// InterventionQueue hands interventions from other goroutines to the
// simulation. Safe for concurrent use.
type InterventionQueue struct {
	mu      sync.Mutex
	pending []pendingIntervention
}

// Submit queues iv. The returned channel receives exactly one result once
// the simulation has applied it.
func (q *InterventionQueue) Submit(iv Intervention) <-chan InterventionResult {
	reply := make(chan InterventionResult, 1)
	q.mu.Lock()
	q.pending = append(q.pending, pendingIntervention{iv: iv, reply: reply})
	q.mu.Unlock()
	return reply
}

func (q *InterventionQueue) drain() []pendingIntervention {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

var errUnknownKind = errors.New("unknown intervention kind")

// applyInterventions runs every queued intervention in submission order.
func (s *Simulation) applyInterventions() int {
	batch := s.Interventions.drain()
	for _, p := range batch {
		desc, err := s.Apply(p.iv)
		res := InterventionResult{Success: err == nil, Details: desc}
		if err != nil {
			res.Details = err.Error()
			slog.Warn("intervention failed", "kind", p.iv.Kind, "error", err)
		}
		p.reply <- res
	}
	return len(batch)
}

// Apply performs one intervention immediately. Only call from the
// simulation goroutine.
func (s *Simulation) Apply(iv Intervention) (string, error) {
	switch iv.Kind {
	case KindProvision:
		return s.ProvisionStock(iv.Object, iv.Units)
	case KindRation:
		return s.RationNPC(iv.NPC, iv.Units)
	case KindReleasePredator:
		return s.ReleasePredator(grid.Cell{X: iv.X, Y: iv.Y})
	case KindCullPredator:
		return s.CullPredator(iv.Object)
	default:
		return "", fmt.Errorf("%w: %q", errUnknownKind, iv.Kind)
	}
}

// ProvisionStock adds units to a food stock, up to its capacity.
func (s *Simulation) ProvisionStock(stock entity.ID, units int) (string, error) {
	w := s.World
	cur, ok := w.FoodStock(stock)
	if !ok {
		return "", fmt.Errorf("object %d is not a food stock", stock)
	}
	if units <= 0 {
		return "", fmt.Errorf("units must be positive, got %d", units)
	}
	w.SetFoodStock(stock, cur+units)
	now, _ := w.FoodStock(stock)

	desc := fmt.Sprintf("A cart unloads at stock %d (%d → %d units)", stock, cur, now)
	slog.Info("provision intervention", "stock", stock, "before", cur, "after", now)
	return desc, nil
}

// RationNPC hands private food to a living NPC.
func (s *Simulation) RationNPC(id entity.ID, units int) (string, error) {
	w := s.World
	n, ok := w.NPC(id)
	if !ok || !n.Alive {
		return "", fmt.Errorf("npc %d not found", id)
	}
	if units <= 0 {
		return "", fmt.Errorf("units must be positive, got %d", units)
	}
	w.SetPrivateFood(id, w.PrivateFood(id)+units)

	desc := fmt.Sprintf("%s receives %d rations", n.Name, units)
	slog.Info("ration intervention", "npc", n.Name, "units", units)
	return desc, nil
}

// ReleasePredator places a predator at cell using the first predator
// definition in the world.
func (s *Simulation) ReleasePredator(cell grid.Cell) (string, error) {
	w := s.World
	if !w.Occlusion.InBounds(cell) {
		return "", fmt.Errorf("cell %v outside the map", cell)
	}
	def, ok := predatorDef(w)
	if !ok {
		return "", errors.New("no predator definition configured")
	}
	id, err := w.AddObject(def, cell, 0)
	if err != nil {
		return "", fmt.Errorf("release predator: %w", err)
	}

	desc := fmt.Sprintf("A %s prowls at %v", def, cell)
	slog.Info("release predator intervention", "predator", id, "cell", cell)
	return desc, nil
}

// CullPredator removes a predator object.
func (s *Simulation) CullPredator(id entity.ID) (string, error) {
	w := s.World
	o, ok := w.Object(id)
	if !ok {
		return "", fmt.Errorf("object %d not found", id)
	}
	if d, _ := w.Def(o); !d.Predator {
		return "", fmt.Errorf("object %d is not a predator", id)
	}
	w.RemoveObject(id)

	desc := fmt.Sprintf("Hunters drive off the %s at %v", o.DefID, o.Cell)
	slog.Info("cull predator intervention", "predator", id)
	return desc, nil
}

// predatorDef returns the lexically first predator definition so the
// choice does not depend on map order.
func predatorDef(w *world.World) (string, bool) {
	best := ""
	for id, d := range w.Defs {
		if d.Predator && (best == "" || id < best) {
			best = id
		}
	}
	return best, best != ""
}
