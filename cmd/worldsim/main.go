// Command worldsim runs a rumormill village: NPCs that see, remember,
// gossip and act on what they believe.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/talgya/rumormill/internal/agents"
	"github.com/talgya/rumormill/internal/api"
	"github.com/talgya/rumormill/internal/comms"
	"github.com/talgya/rumormill/internal/config"
	"github.com/talgya/rumormill/internal/engine"
	"github.com/talgya/rumormill/internal/entity"
	"github.com/talgya/rumormill/internal/grid"
	"github.com/talgya/rumormill/internal/persistence"
	"github.com/talgya/rumormill/internal/world"
)

func main() {
	configPath := flag.String("config", os.Getenv(config.EnvConfigPath), "YAML config file")
	restorePath := flag.String("restore-snapshot", "", "start from this snapshot instead of the database")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	runID := uuid.NewString()
	slog.Info("rumormill starting", "world", cfg.World.Name, "run_id", runID, "config", *configPath)

	// ── Database ──────────────────────────────────────────────────────
	dbPath := cfg.Persistence.DBPath
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		slog.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}
	db, err := persistence.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", dbPath)

	// ── Load or Generate World State ─────────────────────────────────
	ld, err := loadWorld(cfg, db, *restorePath)
	if err != nil {
		slog.Error("failed to load world", "error", err)
		os.Exit(1)
	}
	w, info := ld.w, ld.info
	info.RunID = runID

	slog.Info("world ready",
		"npcs", w.NPCCount(),
		"objects", w.ObjectCount(),
		"walls", w.Occlusion.Count(),
		"size", fmt.Sprintf("%dx%d", info.Width, info.Height),
		"seed", info.Seed,
		"tick", info.LastTick,
	)

	// ── Simulation ────────────────────────────────────────────────────
	sim := engine.NewSimulation(w, info.Seed)
	sim.LastTick = info.LastTick
	sim.ViewEveryTicks = cfg.Simulation.ViewEveryTicks
	sim.Emitter.Restore(ld.emission)

	save := func(reason string) {
		start := time.Now()
		if err := db.SaveWorldState(sim, info); err != nil {
			slog.Error("save failed", "reason", reason, "error", err)
		}
		path := cfg.Persistence.SnapshotPath
		if path == "" {
			return
		}
		h := persistence.Header{RunID: runID, World: cfg.World.Name, Tick: sim.CurrentTick()}
		if err := persistence.WriteSnapshot(path, persistence.CaptureSimulation(sim, h, info)); err != nil {
			slog.Error("snapshot failed", "reason", reason, "path", path, "error", err)
			return
		}
		size := "?"
		if fi, err := os.Stat(path); err == nil {
			size = humanize.Bytes(uint64(fi.Size()))
		}
		slog.Info("snapshot written", "reason", reason, "path", path, "size", size, "took", time.Since(start).Round(time.Millisecond))
	}

	// Save on fresh generation only (loaded worlds are already saved).
	if ld.fresh {
		save("initial")
	}

	eng := engine.NewEngine(info.LastTick)
	eng.Interval = time.Duration(cfg.Simulation.TickIntervalMs) * time.Millisecond
	eng.MaxTicks = cfg.Simulation.MaxTicks
	eng.SetSpeed(cfg.Simulation.Speed)

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.API.AdminKey == "" {
		slog.Warn(config.EnvAdminKey + " not set, admin POST endpoints will be disabled")
	}
	srv := api.NewServer(sim, eng, cfg.API.ViewerCapacity)
	srv.DB = db
	srv.Addr = cfg.API.Addr
	srv.AdminKey = cfg.API.AdminKey
	srv.RunID = runID
	srv.WorldName = cfg.World.Name
	srv.Limiter = api.NewRateLimiter(cfg.API.RatePerSecond, cfg.API.RateBurst)
	sim.Observe(srv)
	srv.Start()

	every := uint64(cfg.Persistence.SaveEveryTicks)
	eng.OnTick = func(tick uint64) {
		sim.Step(tick)
		requested := srv.SaveRequested.Swap(false)
		switch {
		case requested:
			save("requested")
		case every > 0 && tick%every == 0:
			save("periodic")
		}
	}

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	fmt.Printf("\n%s is alive: %s villagers, %s objects on a %dx%d map.\n",
		cfg.World.Name, humanize.Comma(int64(w.NPCCount())), humanize.Comma(int64(w.ObjectCount())), info.Width, info.Height)
	fmt.Printf("API: http://localhost%s/api/v1/status\n", cfg.API.Addr)
	if info.LastTick > 0 {
		fmt.Printf("Resuming from tick %d (%s)\n", info.LastTick, engine.SimTime(info.LastTick))
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run()

	// Final save on shutdown.
	slog.Info("final save...")
	save("shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("API shutdown", "error", err)
	}

	fmt.Println("Simulation stopped. World state saved.")
}

// loaded is what startup recovered: the world, its layout parameters and
// the gossip cooldowns in force when it was saved.
type loaded struct {
	w        *world.World
	info     persistence.WorldInfo
	emission comms.EmitterState
	fresh    bool // generated rather than restored
}

// loadWorld restores from a snapshot file when given, else from the
// database, else generates a fresh village.
func loadWorld(cfg config.Config, db *persistence.DB, snapshotPath string) (loaded, error) {
	if snapshotPath != "" {
		snap, err := persistence.ReadSnapshot(snapshotPath)
		if err != nil {
			return loaded{}, fmt.Errorf("read snapshot: %w", err)
		}
		info := persistence.WorldInfo{Seed: snap.Seed, Width: snap.Width, Height: snap.Height, LastTick: snap.Header.Tick}
		w := newWorld(cfg, info)
		if err := snap.Restore(w); err != nil {
			return loaded{}, err
		}
		slog.Info("restored from snapshot", "path", snapshotPath, "run_id", snap.Header.RunID, "tick", snap.Header.Tick)
		return loaded{w: w, info: info, emission: snap.Emission}, nil
	}

	info, ok, err := db.SavedWorld()
	if err != nil {
		return loaded{}, fmt.Errorf("read saved world: %w", err)
	}
	if ok {
		slog.Info("found saved world state, loading...")
		w := newWorld(cfg, info)
		if err := db.LoadWorld(w); err != nil {
			return loaded{}, err
		}
		emission, err := db.LoadEmitterState()
		if err != nil {
			return loaded{}, err
		}
		return loaded{w: w, info: info, emission: emission}, nil
	}

	slog.Info("no saved state found, generating new village...")
	seed := cfg.World.Seed
	for seed == 0 {
		seed = rand.Int63()
	}
	info = persistence.WorldInfo{Seed: seed, Width: cfg.World.Width, Height: cfg.World.Height}
	w := newWorld(cfg, info)
	if err := populate(w, cfg.Population, seed); err != nil {
		return loaded{}, err
	}
	return loaded{w: w, info: info, fresh: true}, nil
}

// newWorld regenerates the layout, which is deterministic from seed and size.
func newWorld(cfg config.Config, info persistence.WorldInfo) *world.World {
	layout := grid.GenerateLayout(grid.LayoutConfig{
		Width:       info.Width,
		Height:      info.Height,
		Seed:        info.Seed,
		WallDensity: cfg.World.WallDensity,
		ClearRadius: cfg.World.ClearRadius,
	})
	return world.New(layout, cfg.Globals(), cfg.Objects)
}

var errNoRoom = errors.New("not enough open cells")

// populate spawns NPCs and scatters stocks, beds and predators over open
// cells. The first villagers each own one bed.
func populate(w *world.World, pop config.PopulationConfig, seed int64) error {
	spawner := agents.NewSpawner(seed)
	var ids []entity.ID
	occupied := make(map[grid.Cell]bool)
	for _, n := range spawner.SpawnPopulation(pop.NPCs, w.Occlusion, 0) {
		id := w.AddNPC(n)
		w.SetPrivateFood(id, pop.PrivateFood)
		ids = append(ids, id)
		occupied[n.Position] = true
	}

	var free []grid.Cell
	for y := 0; y < w.Occlusion.Height; y++ {
		for x := 0; x < w.Occlusion.Width; x++ {
			c := grid.Cell{X: x, Y: y}
			if o, _ := w.Occlusion.At(c); o.BlocksMovement || o.BlocksVision || occupied[c] {
				continue
			}
			free = append(free, c)
		}
	}
	rng := rand.New(rand.NewSource(seed + 500))
	rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })
	if len(free) < pop.FoodStocks+pop.Beds+pop.Predators {
		return fmt.Errorf("%w: need %d, have %d", errNoRoom, pop.FoodStocks+pop.Beds+pop.Predators, len(free))
	}

	place := func(def string, owner entity.ID) error {
		cell := free[0]
		free = free[1:]
		_, err := w.AddObject(def, cell, owner)
		return err
	}
	for range pop.FoodStocks {
		if err := place(pop.StockDef, 0); err != nil {
			return err
		}
	}
	for i := range pop.Beds {
		var owner entity.ID
		if i < len(ids) {
			owner = ids[i]
		}
		if err := place(pop.BedDef, owner); err != nil {
			return err
		}
	}
	for range pop.Predators {
		if err := place(pop.PredatorDef, 0); err != nil {
			return err
		}
	}
	return nil
}
