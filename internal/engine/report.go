package engine

import (
	"github.com/talgya/rumormill/internal/agents"
	"github.com/talgya/rumormill/internal/command"
	"github.com/talgya/rumormill/internal/comms"
	"github.com/talgya/rumormill/internal/entity"
	"github.com/talgya/rumormill/internal/grid"
	"github.com/talgya/rumormill/internal/perception"
)

// TickReport is the telemetry of one tick. It owns all of its data, so
// observers may keep it after the tick ends.
type TickReport struct {
	Tick          uint64   `json:"tick"`
	SimTime       string   `json:"sim_time"`
	Systems       []string `json:"systems"`
	Interventions int      `json:"interventions"`
	Facts         int      `json:"facts"`
	Alive         int      `json:"alive"`
	Deciding      bool     `json:"deciding"`

	Encode     perception.EncodeStats `json:"encode"`
	Emit       comms.EmitStats        `json:"emit"`
	Delivery   comms.DeliveryStats    `json:"delivery"`
	Assimilate comms.AssimilateStats  `json:"assimilate"`
	Commands   command.ExecStats      `json:"commands"`

	// Totals is a copy of the running counters after this tick.
	Totals Totals `json:"totals"`

	// View is filled every ViewEveryTicks ticks; nil otherwise.
	View *WorldView `json:"view,omitempty"`
}

// WorldView is a read-only copy of the NPC population and placed objects.
type WorldView struct {
	Tick    uint64       `json:"tick"`
	NPCs    []NPCView    `json:"npcs"`
	Objects []ObjectView `json:"objects"`
}

// NPCView is an NPC as seen from outside the simulation.
type NPCView struct {
	ID                entity.ID            `json:"id"`
	Name              string               `json:"name"`
	Position          grid.Cell            `json:"position"`
	Facing            string               `json:"facing"`
	Health            float32              `json:"health"`
	Needs             agents.Needs         `json:"needs"`
	JusticePerception float32              `json:"justice_perception"`
	PrivateFood       int                  `json:"private_food"`
	Alive             bool                 `json:"alive"`
	Memories          []agents.MemoryTrace `json:"memories"`
}

// ObjectView is a placed object. Units and Capacity are zero for
// anything that is not a food stock.
type ObjectView struct {
	ID       entity.ID `json:"id"`
	Def      string    `json:"def"`
	Position grid.Cell `json:"position"`
	Owner    entity.ID `json:"owner,omitempty"`
	InUseBy  entity.ID `json:"in_use_by,omitempty"`
	Stock    bool      `json:"stock"`
	Units    int       `json:"units"`
	Capacity int       `json:"capacity"`
	Predator bool      `json:"predator"`
}

// Totals accumulates counters since start.
type Totals struct {
	Ticks      uint64                 `json:"ticks"`
	Facts      int                    `json:"facts"`
	Encode     perception.EncodeStats `json:"encode"`
	Emit       comms.EmitStats        `json:"emit"`
	Delivery   comms.DeliveryStats    `json:"delivery"`
	Assimilate comms.AssimilateStats  `json:"assimilate"`
	Commands   int                    `json:"commands"`
	NoOps      int                    `json:"no_ops"`
}

// Observer receives every tick report. Called on the simulation goroutine;
// implementations must not block.
type Observer interface {
	ObserveTick(r TickReport)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(r TickReport)

func (f ObserverFunc) ObserveTick(r TickReport) { f(r) }
