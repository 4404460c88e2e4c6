// Package engine provides the tick scheduler, the per-tick simulation
// pipeline and the real-time loop that drives it.
package engine

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talgya/rumormill/internal/comms"
)

// One tick is one sim-minute.
const (
	TicksPerSimHour = 60
	TicksPerSimDay  = comms.TicksPerDay // 24 hours × 60
)

// Engine drives the simulation forward in real time. Tick, speed and the
// running flag are atomics so the API and signal handlers can read or
// change them while Run is looping.
type Engine struct {
	Interval time.Duration // base tick interval at speed 1
	MaxTicks uint64        // stop after this tick; 0 = run forever

	// OnTick runs on the engine goroutine for every tick.
	OnTick func(tick uint64)

	tick    atomic.Uint64
	speed   atomic.Uint64 // math.Float64bits
	running atomic.Bool

	stopOnce sync.Once
	done     chan struct{}
}

// NewEngine creates an engine that resumes after tick start.
func NewEngine(start uint64) *Engine {
	e := &Engine{
		Interval: time.Second,
		done:     make(chan struct{}),
	}
	e.tick.Store(start)
	e.SetSpeed(1.0)
	return e
}

// Tick returns the last completed tick.
func (e *Engine) Tick() uint64 { return e.tick.Load() }

// Speed returns the multiplier: 1.0 = real time, 0 = paused.
func (e *Engine) Speed() float64 { return math.Float64frombits(e.speed.Load()) }

// SetSpeed changes the multiplier. Negative values pause.
func (e *Engine) SetSpeed(v float64) {
	if v < 0 || math.IsNaN(v) {
		v = 0
	}
	e.speed.Store(math.Float64bits(v))
}

// Running reports whether Run is looping.
func (e *Engine) Running() bool { return e.running.Load() }

// Run starts the simulation loop. Blocks until Stop is called or MaxTicks
// is reached.
func (e *Engine) Run() {
	e.running.Store(true)
	defer e.running.Store(false)
	slog.Info("simulation engine started", "tick", e.Tick(), "speed", e.Speed())

	for {
		select {
		case <-e.done:
			slog.Info("simulation engine stopped", "tick", e.Tick())
			return
		default:
		}

		speed := e.Speed()
		if speed <= 0 {
			// Paused; check again shortly.
			if e.wait(100 * time.Millisecond) {
				slog.Info("simulation engine stopped", "tick", e.Tick())
				return
			}
			continue
		}

		start := time.Now()
		e.step()
		if e.MaxTicks > 0 && e.Tick() >= e.MaxTicks {
			slog.Info("simulation engine reached tick limit", "tick", e.Tick())
			return
		}

		// Sleep for the remainder of the tick interval, adjusted for speed.
		target := time.Duration(float64(e.Interval) / speed)
		if elapsed := time.Since(start); elapsed < target {
			if e.wait(target - elapsed) {
				slog.Info("simulation engine stopped", "tick", e.Tick())
				return
			}
		}
	}
}

// wait sleeps for d and reports whether Stop was called meanwhile.
func (e *Engine) wait(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-e.done:
		return true
	case <-t.C:
		return false
	}
}

// Stop halts the loop. Safe to call more than once and from any goroutine.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.done) })
}

// Step advances one tick synchronously. Used by headless runs and tests;
// must not be mixed with a concurrent Run.
func (e *Engine) Step() uint64 {
	e.step()
	return e.Tick()
}

func (e *Engine) step() {
	tick := e.tick.Add(1)
	if e.OnTick != nil {
		e.OnTick(tick)
	}
}

// SimTime returns a human-readable simulation time string from a tick number.
func SimTime(tick uint64) string {
	minutes := tick % 60
	hours := (tick / TicksPerSimHour) % 24
	days := tick/TicksPerSimDay + 1
	return fmt.Sprintf("Day %d, %d:%02d", days, hours, minutes)
}
