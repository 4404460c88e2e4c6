package comms

import (
	"log/slog"

	"github.com/talgya/rumormill/internal/grid"
	"github.com/talgya/rumormill/internal/world"
)

// minSignal is the level below which a degraded token is lost.
const minSignal = 0.01

// DeliveryStats counts delivery outcomes for one drain.
type DeliveryStats struct {
	Delivered      int `json:"delivered"`
	DroppedRange   int `json:"dropped_range"`
	DroppedLOS     int `json:"dropped_los"`
	DroppedTooWeak int `json:"dropped_too_weak"`
	DroppedMissing int `json:"dropped_missing"` // speaker or listener gone
}

// Add accumulates o into s.
func (s *DeliveryStats) Add(o DeliveryStats) {
	s.Delivered += o.Delivered
	s.DroppedRange += o.DroppedRange
	s.DroppedLOS += o.DroppedLOS
	s.DroppedTooWeak += o.DroppedTooWeak
	s.DroppedMissing += o.DroppedMissing
}

// Dropped sums every drop reason.
func (s DeliveryStats) Dropped() int {
	return s.DroppedRange + s.DroppedLOS + s.DroppedTooWeak + s.DroppedMissing
}

// Deliverer applies propagation physics to spoken tokens.
type Deliverer struct {
	Totals DeliveryStats
}

// DropReason says why a token did not arrive.
type DropReason uint8

const (
	DropNone DropReason = iota
	DropRange
	DropLOS
)

// EffectiveDistance returns the distance a token travels between two cells
// on the given channel. Shouts follow the acoustic detour around walls;
// talk and visits go in a straight line and need line of sight when the
// world enables it.
func EffectiveDistance(w *world.World, ch Channel, from, to grid.Cell) (int, DropReason) {
	p := w.Globals.Tokens
	if ch == AlarmShout {
		d, ok := w.Occlusion.AcousticDistance(from, to, max(1, p.ShoutRangeCells))
		if !ok {
			return 0, DropRange
		}
		return d, DropNone
	}

	d := grid.Manhattan(from, to)
	if d > max(1, p.TalkRangeCells) {
		return 0, DropRange
	}
	if p.LineOfSight && !w.HasLineOfSight(from, to) {
		return 0, DropLOS
	}
	return d, DropNone
}

// Degrade applies per-cell falloff. ok is false when either value ends
// below the audible floor.
func Degrade(tok Token, dist int, relFalloff, intFalloff float64) (Token, bool) {
	rel := max(0, tok.Reliability()-relFalloff*float64(dist))
	inten := max(0, tok.Intensity()-intFalloff*float64(dist))
	if rel < minSignal || inten < minSignal {
		return Token{}, false
	}
	return tok.Degraded(inten, rel), true
}

// Deliver drains the outbound queue. Surviving envelopes are re-enqueued
// inbound with degraded tokens; chain depth is left to assimilation.
func (d *Deliverer) Deliver(w *world.World, bus *Bus) DeliveryStats {
	var stats DeliveryStats
	p := w.Globals.Tokens

	for _, env := range bus.DrainOutbound() {
		from, ok := w.PositionOf(env.SpeakerID)
		if !ok {
			stats.DroppedMissing++
			continue
		}
		to, ok := w.PositionOf(env.ListenerID)
		if !ok {
			stats.DroppedMissing++
			continue
		}

		dist, reason := EffectiveDistance(w, env.Channel, from, to)
		switch reason {
		case DropRange:
			stats.DroppedRange++
			continue
		case DropLOS:
			stats.DroppedLOS++
			continue
		}

		tok, ok := Degrade(env.Token, dist, p.ReliabilityFalloffPerCell, p.IntensityFalloffPerCell)
		if !ok {
			stats.DroppedTooWeak++
			continue
		}
		env.Token = tok
		bus.Hear(env)
		stats.Delivered++
	}

	if stats.Delivered+stats.Dropped() > 0 {
		slog.Debug("tokens delivered",
			"delivered", stats.Delivered,
			"range", stats.DroppedRange,
			"los", stats.DroppedLOS,
			"weak", stats.DroppedTooWeak,
		)
	}
	d.Totals.Add(stats)
	return stats
}
