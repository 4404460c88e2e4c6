package command

import (
	"log/slog"

	"github.com/talgya/rumormill/internal/entity"
	"github.com/talgya/rumormill/internal/events"
	"github.com/talgya/rumormill/internal/world"
)

// ExecStats counts command outcomes.
type ExecStats struct {
	Executed int            `json:"executed"`
	NoOps    int            `json:"no_ops"`
	ByName   map[string]int `json:"by_name,omitempty"`
}

// Executor applies commands in order. Beds taken during one round stay
// occupied until the next round starts.
type Executor struct {
	occupied []entity.ID
	adopted  bool // beds already in use on the first round have been claimed
	Totals   ExecStats
}

// NewExecutor creates an executor.
func NewExecutor() *Executor {
	return &Executor{Totals: ExecStats{ByName: make(map[string]int)}}
}

// Run frees the beds of the previous round, then executes cmds in order.
// On the first round that includes every bed found in use, such as beds
// restored from a save.
func (e *Executor) Run(w *world.World, q *events.Queue, cmds []Command, tick uint64) ExecStats {
	if !e.adopted {
		w.EachObject(func(o world.Object) bool {
			if o.InUseBy != 0 {
				e.occupied = append(e.occupied, o.ID)
			}
			return true
		})
		e.adopted = true
	}
	for _, bed := range e.occupied {
		w.SetUseState(bed, 0)
	}
	e.occupied = e.occupied[:0]

	stats := ExecStats{ByName: make(map[string]int)}
	for _, c := range cmds {
		if !c.Execute(w, q, tick) {
			stats.NoOps++
			slog.Debug("command no-op", "command", c.Name(), "actor", c.Actor())
			continue
		}
		stats.Executed++
		stats.ByName[c.Name()]++
		if bed, ok := bedOf(c); ok {
			e.occupied = append(e.occupied, bed)
		}
	}

	e.Totals.Executed += stats.Executed
	e.Totals.NoOps += stats.NoOps
	if e.Totals.ByName == nil {
		e.Totals.ByName = make(map[string]int)
	}
	for k, v := range stats.ByName {
		e.Totals.ByName[k] += v
	}
	return stats
}

func bedOf(c Command) (entity.ID, bool) {
	switch c := c.(type) {
	case SleepOwn:
		return c.Bed, true
	case SleepCommunity:
		return c.Bed, true
	case Trespass:
		return c.Bed, true
	default:
		return 0, false
	}
}
