package gardener

// Thresholds mirror the default need tuning of the simulation.
const (
	hungryAt   = 0.6
	starvingAt = 0.9
	weakAt     = 0.3 // health below which an NPC is counted as failing
)

// Crisis levels, most severe first.
const (
	LevelCritical = "CRITICAL"
	LevelWarning  = "WARNING"
	LevelWatch    = "WATCH"
	LevelHealthy  = "HEALTHY"
)

// WorldHealth holds derived diagnostic signals computed from a WorldSnapshot.
// Deterministic and free; runs before any decision.
type WorldHealth struct {
	Alive         int
	Hungry        int // hunger ≥ hungryAt
	Starving      int // hunger ≥ starvingAt
	Weak          int
	Foodless      int // hungry and carrying nothing
	Deaths        int // since the previous cycle, when known
	StockUnits    int
	StockCapacity int
	EmptyStocks   int
	Predators     int
	CrisisLevel   string
}

// HungryFraction returns Hungry / Alive, or 0 for an empty village.
func (h *WorldHealth) HungryFraction() float64 {
	if h.Alive == 0 {
		return 0
	}
	return float64(h.Hungry) / float64(h.Alive)
}

// Triage computes a WorldHealth from the snapshot. prev is the last cycle
// record, used to detect deaths since then; nil skips that signal.
func Triage(snap *WorldSnapshot, prev *CycleRecord) *WorldHealth {
	h := &WorldHealth{
		Alive:     snap.Status.Alive,
		Predators: len(snap.Predators),
	}
	for _, n := range snap.NPCs {
		if n.Hunger >= hungryAt {
			h.Hungry++
			if n.PrivateFood == 0 {
				h.Foodless++
			}
		}
		if n.Hunger >= starvingAt {
			h.Starving++
		}
		if n.Health < weakAt {
			h.Weak++
		}
	}
	for _, s := range snap.Stocks {
		h.StockUnits += s.Units
		h.StockCapacity += s.Capacity
		if s.Units == 0 {
			h.EmptyStocks++
		}
	}

	// A restart resets the run; only compare records from the same run.
	if prev != nil && prev.RunID == snap.Status.RunID && prev.Alive > h.Alive {
		h.Deaths = prev.Alive - h.Alive
	}

	stockFraction := 1.0
	if h.StockCapacity > 0 {
		stockFraction = float64(h.StockUnits) / float64(h.StockCapacity)
	}

	h.CrisisLevel = LevelHealthy
	switch {
	case h.Alive == 0:
		h.CrisisLevel = LevelHealthy // nothing left to steward
	case h.Starving*5 >= h.Alive && h.Starving > 0:
		h.CrisisLevel = LevelCritical
	case h.Deaths*10 >= h.Alive && h.Deaths > 0:
		h.CrisisLevel = LevelCritical
	case h.HungryFraction() > 0.4 || (len(snap.Stocks) > 0 && h.EmptyStocks == len(snap.Stocks)):
		h.CrisisLevel = LevelWarning
	case h.Predators*10 > h.Alive || stockFraction < 0.25 || h.Weak > 0:
		h.CrisisLevel = LevelWatch
	}
	return h
}
