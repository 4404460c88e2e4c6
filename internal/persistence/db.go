// Package persistence provides SQLite-based world state storage and
// compressed memory snapshots.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/rumormill/internal/agents"
	"github.com/talgya/rumormill/internal/comms"
	"github.com/talgya/rumormill/internal/engine"
	"github.com/talgya/rumormill/internal/entity"
	"github.com/talgya/rumormill/internal/events"
	"github.com/talgya/rumormill/internal/grid"
	"github.com/talgya/rumormill/internal/world"
)

// Meta keys.
const (
	MetaLastTick = "last_tick"
	MetaSeed     = "seed"
	MetaWidth    = "width"
	MetaHeight   = "height"
	MetaRunID    = "run_id"
	MetaSavedAt  = "saved_at"
)

// DB wraps a SQLite connection for world state persistence.
type DB struct {
	conn *sqlx.DB

	// factsSaved counts simulation facts already appended this process.
	factsSaved int
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS npcs (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		pos_x INTEGER NOT NULL,
		pos_y INTEGER NOT NULL,
		facing INTEGER NOT NULL,
		health REAL NOT NULL,
		hunger REAL NOT NULL,
		fatigue REAL NOT NULL,
		justice REAL NOT NULL,
		private_food INTEGER NOT NULL,
		alive INTEGER NOT NULL,
		born_tick INTEGER NOT NULL,
		personality_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS memory_traces (
		npc_id INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		type INTEGER NOT NULL,
		subject_id INTEGER NOT NULL,
		secondary_id INTEGER NOT NULL,
		cell_x INTEGER NOT NULL,
		cell_y INTEGER NOT NULL,
		intensity REAL NOT NULL,
		reliability REAL NOT NULL,
		decay_per_tick REAL NOT NULL,
		is_heard INTEGER NOT NULL,
		heard_kind INTEGER NOT NULL,
		source_speaker INTEGER NOT NULL,
		created_tick INTEGER NOT NULL,
		PRIMARY KEY (npc_id, seq)
	);

	CREATE TABLE IF NOT EXISTS objects (
		id INTEGER PRIMARY KEY,
		def_id TEXT NOT NULL,
		cell_x INTEGER NOT NULL,
		cell_y INTEGER NOT NULL,
		owner_id INTEGER NOT NULL,
		in_use_by INTEGER NOT NULL,
		units INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS facts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		kind TEXT NOT NULL,
		actor INTEGER NOT NULL,
		target INTEGER NOT NULL,
		object INTEGER NOT NULL,
		cell_x INTEGER NOT NULL,
		cell_y INTEGER NOT NULL,
		has_cell INTEGER NOT NULL,
		amount REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS emit_cooldowns (
		speaker INTEGER NOT NULL,
		listener INTEGER NOT NULL,
		type INTEGER NOT NULL,
		subject INTEGER NOT NULL,
		cell_x INTEGER NOT NULL,
		cell_y INTEGER NOT NULL,
		tick INTEGER NOT NULL,
		PRIMARY KEY (speaker, listener, type, subject, cell_x, cell_y)
	);

	CREATE TABLE IF NOT EXISTS emit_daily (
		speaker INTEGER PRIMARY KEY,
		day INTEGER NOT NULL,
		count INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_facts_tick ON facts(tick);
	CREATE INDEX IF NOT EXISTS idx_npcs_alive ON npcs(alive);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type npcRow struct {
	ID          uint64  `db:"id"`
	Name        string  `db:"name"`
	PosX        int     `db:"pos_x"`
	PosY        int     `db:"pos_y"`
	Facing      uint8   `db:"facing"`
	Health      float32 `db:"health"`
	Hunger      float32 `db:"hunger"`
	Fatigue     float32 `db:"fatigue"`
	Justice     float32 `db:"justice"`
	PrivateFood int     `db:"private_food"`
	Alive       bool    `db:"alive"`
	BornTick    uint64  `db:"born_tick"`
	Personality string  `db:"personality_json"`
}

type traceRow struct {
	NPCID         uint64  `db:"npc_id"`
	Seq           int     `db:"seq"`
	Type          uint8   `db:"type"`
	SubjectID     uint64  `db:"subject_id"`
	SecondaryID   uint64  `db:"secondary_id"`
	CellX         int     `db:"cell_x"`
	CellY         int     `db:"cell_y"`
	Intensity     float64 `db:"intensity"`
	Reliability   float64 `db:"reliability"`
	DecayPerTick  float64 `db:"decay_per_tick"`
	IsHeard       bool    `db:"is_heard"`
	HeardKind     uint8   `db:"heard_kind"`
	SourceSpeaker uint64  `db:"source_speaker"`
	CreatedTick   uint64  `db:"created_tick"`
}

type objectRow struct {
	ID      uint64 `db:"id"`
	DefID   string `db:"def_id"`
	CellX   int    `db:"cell_x"`
	CellY   int    `db:"cell_y"`
	OwnerID uint64 `db:"owner_id"`
	InUseBy uint64 `db:"in_use_by"`
	Units   int    `db:"units"` // -1 when the object is not a stock
}

type cooldownRow struct {
	Speaker  uint64 `db:"speaker"`
	Listener uint64 `db:"listener"`
	Type     uint8  `db:"type"`
	Subject  uint64 `db:"subject"`
	CellX    int    `db:"cell_x"`
	CellY    int    `db:"cell_y"`
	Tick     uint64 `db:"tick"`
}

type dailyRow struct {
	Speaker uint64 `db:"speaker"`
	Day     uint64 `db:"day"`
	Count   int    `db:"count"`
}

// FactRecord is one row of the fact log.
type FactRecord struct {
	RunID   string  `db:"run_id" json:"run_id"`
	Tick    uint64  `db:"tick" json:"tick"`
	Kind    string  `db:"kind" json:"kind"`
	Actor   uint64  `db:"actor" json:"actor"`
	Target  uint64  `db:"target" json:"target,omitempty"`
	Object  uint64  `db:"object" json:"object,omitempty"`
	CellX   int     `db:"cell_x" json:"cell_x"`
	CellY   int     `db:"cell_y" json:"cell_y"`
	HasCell bool    `db:"has_cell" json:"has_cell"`
	Amount  float32 `db:"amount" json:"amount,omitempty"`
}

// saveNPCs writes all NPCs and their memories (full replace).
func saveNPCs(tx *sqlx.Tx, w *world.World) (int, error) {
	if _, err := tx.Exec("DELETE FROM npcs"); err != nil {
		return 0, err
	}
	if _, err := tx.Exec("DELETE FROM memory_traces"); err != nil {
		return 0, err
	}

	npcStmt, err := tx.Preparex(`INSERT INTO npcs
		(id, name, pos_x, pos_y, facing, health, hunger, fatigue, justice,
		 private_food, alive, born_tick, personality_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer npcStmt.Close()

	traceStmt, err := tx.Preparex(`INSERT INTO memory_traces
		(npc_id, seq, type, subject_id, secondary_id, cell_x, cell_y, intensity,
		 reliability, decay_per_tick, is_heard, heard_kind, source_speaker, created_tick)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer traceStmt.Close()

	count := 0
	var saveErr error
	w.EachNPC(func(n agents.NPC) bool {
		personality, _ := json.Marshal(n.Personality)
		_, saveErr = npcStmt.Exec(
			n.ID, n.Name, n.Position.X, n.Position.Y, uint8(n.Facing),
			n.Health, n.Needs.Hunger, n.Needs.Fatigue, n.JusticePerception,
			w.PrivateFood(n.ID), n.Alive, n.BornTick, string(personality),
		)
		if saveErr != nil {
			saveErr = fmt.Errorf("insert npc %d: %w", n.ID, saveErr)
			return false
		}
		if n.Memory != nil {
			for i, t := range n.Memory.Traces() {
				_, saveErr = traceStmt.Exec(
					n.ID, i, uint8(t.Type), t.SubjectID, t.SecondaryID,
					t.Cell.X, t.Cell.Y, t.Intensity, t.Reliability, t.DecayPerTick,
					t.IsHeard, uint8(t.HeardKind), t.SourceSpeaker, t.CreatedTick,
				)
				if saveErr != nil {
					saveErr = fmt.Errorf("insert trace %d/%d: %w", n.ID, i, saveErr)
					return false
				}
			}
		}
		count++
		return true
	})
	return count, saveErr
}

// saveObjects writes all objects and stock levels (full replace).
func saveObjects(tx *sqlx.Tx, w *world.World) (int, error) {
	if _, err := tx.Exec("DELETE FROM objects"); err != nil {
		return 0, err
	}

	count := 0
	var saveErr error
	w.EachObject(func(o world.Object) bool {
		units, ok := w.FoodStock(o.ID)
		if !ok {
			units = -1
		}
		_, saveErr = tx.Exec(`INSERT INTO objects
			(id, def_id, cell_x, cell_y, owner_id, in_use_by, units)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			o.ID, o.DefID, o.Cell.X, o.Cell.Y, o.OwnerID, o.InUseBy, units,
		)
		if saveErr != nil {
			saveErr = fmt.Errorf("insert object %d: %w", o.ID, saveErr)
			return false
		}
		count++
		return true
	})
	return count, saveErr
}

// saveEmission writes the emitter's cooldowns and daily counters (full replace).
func saveEmission(tx *sqlx.Tx, st comms.EmitterState) error {
	if _, err := tx.Exec("DELETE FROM emit_cooldowns"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM emit_daily"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO emit_cooldowns
		(speaker, listener, type, subject, cell_x, cell_y, tick)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range st.Cooldowns {
		if _, err := stmt.Exec(c.Speaker, c.Listener, uint8(c.Type), c.Subject, c.Cell.X, c.Cell.Y, c.Tick); err != nil {
			return fmt.Errorf("insert cooldown %d->%d: %w", c.Speaker, c.Listener, err)
		}
	}
	for _, d := range st.Daily {
		if _, err := tx.Exec("INSERT INTO emit_daily (speaker, day, count) VALUES (?, ?, ?)", d.Speaker, d.Day, d.Count); err != nil {
			return fmt.Errorf("insert daily %d: %w", d.Speaker, err)
		}
	}
	return nil
}

// appendFacts adds facts to the log.
func appendFacts(tx *sqlx.Tx, runID string, facts []events.Fact) error {
	if len(facts) == 0 {
		return nil
	}
	stmt, err := tx.Preparex(`INSERT INTO facts
		(run_id, tick, kind, actor, target, object, cell_x, cell_y, has_cell, amount)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range facts {
		_, err := stmt.Exec(runID, f.Tick, f.Kind.String(), f.Actor, f.Target, f.Object,
			f.Cell.X, f.Cell.Y, f.HasCell, f.Amount)
		if err != nil {
			return err
		}
	}
	return nil
}

func saveMeta(tx *sqlx.Tx, key, value string) error {
	_, err := tx.Exec("INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)", key, value)
	return err
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// WorldInfo is what is needed to rebuild the map before loading state.
type WorldInfo struct {
	Seed     int64
	Width    int
	Height   int
	LastTick uint64
	RunID    string
}

// SavedWorld returns the stored world info, or false if nothing was saved.
func (db *DB) SavedWorld() (WorldInfo, bool, error) {
	var info WorldInfo
	raw, err := db.GetMeta(MetaLastTick)
	if errors.Is(err, sql.ErrNoRows) {
		return info, false, nil
	}
	if err != nil {
		return info, false, err
	}
	if info.LastTick, err = strconv.ParseUint(raw, 10, 64); err != nil {
		return info, false, fmt.Errorf("parse %s: %w", MetaLastTick, err)
	}
	if info.Seed, err = db.metaInt(MetaSeed); err != nil {
		return info, false, err
	}
	width, err := db.metaInt(MetaWidth)
	if err != nil {
		return info, false, err
	}
	height, err := db.metaInt(MetaHeight)
	if err != nil {
		return info, false, err
	}
	info.Width, info.Height = int(width), int(height)
	info.RunID, _ = db.GetMeta(MetaRunID)
	return info, true, nil
}

func (db *DB) metaInt(key string) (int64, error) {
	v, err := db.GetMeta(key)
	if err != nil {
		return 0, fmt.Errorf("meta %s: %w", key, err)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

// SaveWorldState performs a full save of all world state in one transaction
// and appends facts recorded since the previous save.
func (db *DB) SaveWorldState(sim *engine.Simulation, info WorldInfo) error {
	w := sim.World
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	npcs, err := saveNPCs(tx, w)
	if err != nil {
		return fmt.Errorf("save npcs: %w", err)
	}
	objects, err := saveObjects(tx, w)
	if err != nil {
		return fmt.Errorf("save objects: %w", err)
	}

	if err := saveEmission(tx, sim.Emitter.State()); err != nil {
		return fmt.Errorf("save emission: %w", err)
	}

	fresh := unsavedFacts(sim.Recent, sim.Totals.Facts-db.factsSaved)
	if err := appendFacts(tx, info.RunID, fresh); err != nil {
		return fmt.Errorf("save facts: %w", err)
	}

	meta := map[string]string{
		MetaLastTick: strconv.FormatUint(sim.CurrentTick(), 10),
		MetaSeed:     strconv.FormatInt(info.Seed, 10),
		MetaWidth:    strconv.Itoa(info.Width),
		MetaHeight:   strconv.Itoa(info.Height),
		MetaRunID:    info.RunID,
		MetaSavedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if err := saveMeta(tx, k, v); err != nil {
			return fmt.Errorf("save meta %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	db.factsSaved = sim.Totals.Facts
	slog.Info("world state saved", "tick", sim.CurrentTick(), "npcs", npcs, "objects", objects, "facts", len(fresh))
	return nil
}

// unsavedFacts returns the newest n facts of recent. Facts that already
// fell out of the bounded buffer are lost.
func unsavedFacts(recent []events.Fact, n int) []events.Fact {
	if n <= 0 {
		return nil
	}
	if n > len(recent) {
		slog.Warn("fact log gap", "lost", n-len(recent))
		n = len(recent)
	}
	return recent[len(recent)-n:]
}

// LoadWorld fills w with the saved NPCs, memories and objects. w must
// already carry the regenerated layout and object definitions.
func (db *DB) LoadWorld(w *world.World) error {
	var objs []objectRow
	if err := db.conn.Select(&objs, "SELECT * FROM objects ORDER BY id"); err != nil {
		return fmt.Errorf("load objects: %w", err)
	}
	for _, r := range objs {
		o := world.Object{
			ID:      entity.ID(r.ID),
			DefID:   r.DefID,
			Cell:    grid.Cell{X: r.CellX, Y: r.CellY},
			OwnerID: entity.ID(r.OwnerID),
			InUseBy: entity.ID(r.InUseBy),
		}
		if _, err := w.RestoreObject(o, r.Units); err != nil {
			slog.Warn("skipping saved object", "id", r.ID, "error", err)
		}
	}

	var traces []traceRow
	if err := db.conn.Select(&traces, "SELECT * FROM memory_traces ORDER BY npc_id, seq"); err != nil {
		return fmt.Errorf("load memories: %w", err)
	}
	byNPC := make(map[entity.ID][]agents.MemoryTrace)
	for _, r := range traces {
		id := entity.ID(r.NPCID)
		byNPC[id] = append(byNPC[id], agents.MemoryTrace{
			Type:          agents.TraceType(r.Type),
			SubjectID:     entity.ID(r.SubjectID),
			SecondaryID:   entity.ID(r.SecondaryID),
			Cell:          grid.Cell{X: r.CellX, Y: r.CellY},
			Intensity:     r.Intensity,
			Reliability:   r.Reliability,
			DecayPerTick:  r.DecayPerTick,
			IsHeard:       r.IsHeard,
			HeardKind:     agents.HeardKind(r.HeardKind),
			SourceSpeaker: entity.ID(r.SourceSpeaker),
			CreatedTick:   r.CreatedTick,
		})
	}

	var npcs []npcRow
	if err := db.conn.Select(&npcs, "SELECT * FROM npcs ORDER BY id"); err != nil {
		return fmt.Errorf("load npcs: %w", err)
	}
	for _, r := range npcs {
		n := agents.NPC{
			ID:                entity.ID(r.ID),
			Name:              r.Name,
			Position:          grid.Cell{X: r.PosX, Y: r.PosY},
			Facing:            grid.Facing(r.Facing),
			Health:            r.Health,
			Needs:             agents.Needs{Hunger: r.Hunger, Fatigue: r.Fatigue},
			JusticePerception: r.Justice,
			BornTick:          r.BornTick,
			Alive:             r.Alive,
		}
		if err := json.Unmarshal([]byte(r.Personality), &n.Personality); err != nil {
			return fmt.Errorf("npc %d personality: %w", r.ID, err)
		}
		n.Memory = agents.NewMemoryStore(n.Personality.MaxTraces)
		n.Memory.Restore(byNPC[n.ID])
		w.AddNPC(n)
		w.SetPrivateFood(n.ID, r.PrivateFood)
	}

	slog.Info("world state loaded", "npcs", len(npcs), "objects", len(objs), "memories", len(traces))
	return nil
}

// LoadEmitterState reads the saved cooldowns and daily counters.
func (db *DB) LoadEmitterState() (comms.EmitterState, error) {
	var st comms.EmitterState
	var cooldowns []cooldownRow
	if err := db.conn.Select(&cooldowns, "SELECT * FROM emit_cooldowns"); err != nil {
		return st, fmt.Errorf("load cooldowns: %w", err)
	}
	for _, r := range cooldowns {
		st.Cooldowns = append(st.Cooldowns, comms.CooldownRecord{
			Speaker:  entity.ID(r.Speaker),
			Listener: entity.ID(r.Listener),
			Type:     comms.TokenType(r.Type),
			Subject:  entity.ID(r.Subject),
			Cell:     grid.Cell{X: r.CellX, Y: r.CellY},
			Tick:     r.Tick,
		})
	}

	var daily []dailyRow
	if err := db.conn.Select(&daily, "SELECT * FROM emit_daily ORDER BY speaker"); err != nil {
		return st, fmt.Errorf("load daily counts: %w", err)
	}
	for _, r := range daily {
		st.Daily = append(st.Daily, comms.DailyRecord{Speaker: entity.ID(r.Speaker), Day: r.Day, Count: r.Count})
	}
	return st, nil
}

// RecentFacts returns the most recent facts, newest first.
func (db *DB) RecentFacts(limit int) ([]FactRecord, error) {
	var out []FactRecord
	err := db.conn.Select(&out,
		`SELECT run_id, tick, kind, actor, target, object, cell_x, cell_y, has_cell, amount
		 FROM facts ORDER BY id DESC LIMIT ?`,
		limit,
	)
	return out, err
}
