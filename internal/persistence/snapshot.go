package persistence

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/rumormill/internal/agents"
	"github.com/talgya/rumormill/internal/comms"
	"github.com/talgya/rumormill/internal/engine"
	"github.com/talgya/rumormill/internal/entity"
	"github.com/talgya/rumormill/internal/grid"
	"github.com/talgya/rumormill/internal/world"
)

// SnapshotVersion is written into every snapshot header.
const SnapshotVersion = 1

// Header is the first line of a snapshot file, readable without decoding
// the body.
type Header struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id"`
	World   string `json:"world"`
	Tick    uint64 `json:"tick"`
}

// SnapshotV1 is a complete copy of world state: layout parameters, NPCs
// with their memories, objects with stock levels, and the gossip cooldowns
// and daily counters.
type SnapshotV1 struct {
	Header Header

	Seed   int64
	Width  int
	Height int

	NPCs     []NPCV1
	Objects  []ObjectV1
	Emission comms.EmitterState
}

type NPCV1 struct {
	ID          entity.ID
	Name        string
	Position    grid.Cell
	Facing      grid.Facing
	Health      float32
	Needs       agents.Needs
	Justice     float32
	Personality agents.PersonalityMemoryParams
	BornTick    uint64
	Alive       bool
	PrivateFood int
	Traces      []agents.MemoryTrace
}

type ObjectV1 struct {
	Object world.Object
	Units  int // -1 when the object is not a stock
}

// Capture copies w into a snapshot.
func Capture(w *world.World, h Header, info WorldInfo) SnapshotV1 {
	h.Version = SnapshotVersion
	snap := SnapshotV1{
		Header: h,
		Seed:   info.Seed,
		Width:  info.Width,
		Height: info.Height,
	}
	w.EachNPC(func(n agents.NPC) bool {
		v := NPCV1{
			ID:          n.ID,
			Name:        n.Name,
			Position:    n.Position,
			Facing:      n.Facing,
			Health:      n.Health,
			Needs:       n.Needs,
			Justice:     n.JusticePerception,
			Personality: n.Personality,
			BornTick:    n.BornTick,
			Alive:       n.Alive,
			PrivateFood: w.PrivateFood(n.ID),
		}
		if n.Memory != nil {
			v.Traces = n.Memory.Traces()
		}
		snap.NPCs = append(snap.NPCs, v)
		return true
	})
	w.EachObject(func(o world.Object) bool {
		units, ok := w.FoodStock(o.ID)
		if !ok {
			units = -1
		}
		snap.Objects = append(snap.Objects, ObjectV1{Object: o, Units: units})
		return true
	})
	return snap
}

// CaptureSimulation copies the simulation's world and emitter state.
func CaptureSimulation(sim *engine.Simulation, h Header, info WorldInfo) SnapshotV1 {
	snap := Capture(sim.World, h, info)
	snap.Emission = sim.Emitter.State()
	return snap
}

// Restore inserts the snapshot's objects and NPCs into w, which must
// already carry the matching layout and definitions.
func (snap SnapshotV1) Restore(w *world.World) error {
	for _, o := range snap.Objects {
		if _, err := w.RestoreObject(o.Object, o.Units); err != nil {
			return fmt.Errorf("restore object %d: %w", o.Object.ID, err)
		}
	}
	for _, v := range snap.NPCs {
		n := agents.NPC{
			ID:                v.ID,
			Name:              v.Name,
			Position:          v.Position,
			Facing:            v.Facing,
			Health:            v.Health,
			Needs:             v.Needs,
			JusticePerception: v.Justice,
			Personality:       v.Personality,
			BornTick:          v.BornTick,
			Alive:             v.Alive,
			Memory:            agents.NewMemoryStore(v.Personality.MaxTraces),
		}
		n.Memory.Restore(v.Traces)
		w.AddNPC(n)
		w.SetPrivateFood(n.ID, v.PrivateFood)
	}
	return nil
}

// WriteSnapshot writes snap as a JSON header line followed by a gob body,
// zstd compressed. The file is replaced atomically.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encodeSnapshot(f, snap); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encodeSnapshot(f *os.File, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// ReadSnapshot decodes a snapshot written by WriteSnapshot.
func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return snap, fmt.Errorf("parse header: %w", err)
	}
	if h.Version != SnapshotVersion {
		return snap, fmt.Errorf("%w: %d", ErrSnapshotVersion, h.Version)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// ErrSnapshotVersion is returned for snapshots from an unknown format.
var ErrSnapshotVersion = errors.New("unsupported snapshot version")
