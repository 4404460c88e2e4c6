// Package comms moves memories between NPCs as degrading tokens:
// emission (memory → token), delivery (spatial propagation and falloff),
// and assimilation (token → second-hand memory).
package comms

import (
	"github.com/talgya/rumormill/internal/entity"
	"github.com/talgya/rumormill/internal/grid"
)

// TokenType enumerates the kinds of message NPCs exchange.
type TokenType uint8

const (
	PredatorAlert TokenType = iota
	AlarmDanger
	HelpRequest
	TheftReport
	FoodLocation
)

var tokenTypeNames = [...]string{
	"predator_alert",
	"alarm_danger",
	"help_request",
	"theft_report",
	"food_location",
}

func (t TokenType) String() string {
	if int(t) < len(tokenTypeNames) {
		return tokenTypeNames[t]
	}
	return "unknown"
}

// Token is the transmissible form of a memory. Its content cannot change
// after construction; degradation builds a new token.
type Token struct {
	typ         TokenType
	subject     entity.ID
	secondary   entity.ID
	intensity   float64
	reliability float64
	chainDepth  int
	cell        grid.Cell
	hasCell     bool
}

// NewToken builds a token. Intensity and reliability are clamped to [0,1],
// chain depth to ≥ 0.
func NewToken(typ TokenType, subject entity.ID, intensity, reliability float64, chainDepth int) Token {
	return Token{
		typ:         typ,
		subject:     subject,
		intensity:   clampUnit(intensity),
		reliability: clampUnit(reliability),
		chainDepth:  max(0, chainDepth),
	}
}

// WithCell returns a copy that carries a location.
func (t Token) WithCell(c grid.Cell) Token {
	t.cell = c
	t.hasCell = true
	return t
}

// WithSecondary returns a copy that names a second party (victim, bed owner).
func (t Token) WithSecondary(id entity.ID) Token {
	t.secondary = id
	return t
}

// Degraded returns a copy with new intensity and reliability.
func (t Token) Degraded(intensity, reliability float64) Token {
	t.intensity = clampUnit(intensity)
	t.reliability = clampUnit(reliability)
	return t
}

func (t Token) Type() TokenType         { return t.typ }
func (t Token) Subject() entity.ID      { return t.subject }
func (t Token) Secondary() entity.ID    { return t.secondary }
func (t Token) Intensity() float64      { return t.intensity }
func (t Token) Reliability() float64    { return t.reliability }
func (t Token) ChainDepth() int         { return t.chainDepth }
func (t Token) Cell() (grid.Cell, bool) { return t.cell, t.hasCell }

// Channel is how a token travels.
type Channel uint8

const (
	ProximityTalk Channel = iota // optical: line of sight, Manhattan distance
	AlarmShout                   // acoustic: detours around walls
	TargetedVisit                // optical, speaker seeks out the listener
)

func (c Channel) String() string {
	switch c {
	case ProximityTalk:
		return "proximity_talk"
	case AlarmShout:
		return "alarm_shout"
	case TargetedVisit:
		return "targeted_visit"
	default:
		return "unknown"
	}
}

// Envelope wraps a token in transit. Copied by value.
type Envelope struct {
	SpeakerID  entity.ID `json:"speaker_id"`
	ListenerID entity.ID `json:"listener_id"`
	Channel    Channel   `json:"channel"`
	Tick       uint64    `json:"tick"`
	Token      Token     `json:"-"`
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
