// Package events defines the fact records published by low-level systems
// and commands, and the queue that batches them per tick.
package events

import (
	"github.com/talgya/rumormill/internal/entity"
	"github.com/talgya/rumormill/internal/grid"
)

// Kind tags which variant a Fact is. The set is closed; consumers switch
// on it exhaustively.
type Kind uint8

const (
	PredatorSighted Kind = iota // Actor = predator object
	Attack                      // Actor = attacker, Target = defender
	FoodConsumed                // Actor = eater, Object = stock (0 = private food)
	Theft                       // Actor = thief, Target = victim
	Slept                       // Actor = sleeper, Object = bed
	Trespass                    // Actor = trespasser, Target = bed owner, Object = bed
)

var kindNames = [...]string{
	"predator_sighted",
	"attack",
	"food_consumed",
	"theft",
	"slept",
	"trespass",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Fact is one thing that happened in the world. Plain data, copied by value.
type Fact struct {
	Kind    Kind      `json:"kind"`
	Tick    uint64    `json:"tick"`
	Actor   entity.ID `json:"actor"`
	Target  entity.ID `json:"target,omitempty"`
	Object  entity.ID `json:"object,omitempty"`
	Cell    grid.Cell `json:"cell"`
	HasCell bool      `json:"has_cell"`
	Amount  float32   `json:"amount,omitempty"`
}

// Location returns the cell where the fact happened, if it has one.
func (f Fact) Location() (grid.Cell, bool) {
	return f.Cell, f.HasCell
}

// Queue collects facts published during a tick. It is owned by the
// simulation driver and is not safe for concurrent use.
type Queue struct {
	pending []Fact
	spare   []Fact
}

// Publish appends f to the queue.
func (q *Queue) Publish(f Fact) {
	q.pending = append(q.pending, f)
}

// Len returns the number of undrained facts.
func (q *Queue) Len() int {
	return len(q.pending)
}

// Drain hands back every pending fact and leaves the queue empty. The
// returned slice is valid until the next Drain.
func (q *Queue) Drain() []Fact {
	batch := q.pending
	q.pending = q.spare[:0]
	q.spare = batch
	return batch
}
