package main

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/talgya/rumormill/internal/comms"
	"github.com/talgya/rumormill/internal/config"
	"github.com/talgya/rumormill/internal/engine"
	"github.com/talgya/rumormill/internal/persistence"
	"github.com/talgya/rumormill/internal/world"
)

func smallConfig() config.Config {
	cfg := config.Default()
	cfg.World.Width, cfg.World.Height = 20, 20
	cfg.Population.NPCs = 6
	cfg.Population.FoodStocks = 2
	cfg.Population.Beds = 4
	cfg.Population.Predators = 1
	return cfg
}

func countObjects(w *world.World) (stocks, owned, predators int) {
	w.EachObject(func(o world.Object) bool {
		if _, ok := w.FoodStock(o.ID); ok {
			stocks++
		}
		if o.IsBed() && !o.IsCommunity() {
			owned++
		}
		if d, _ := w.Def(o); d.Predator {
			predators++
		}
		return true
	})
	return
}

func TestPopulate(t *testing.T) {
	cfg := smallConfig()
	w := newWorld(cfg, persistence.WorldInfo{Seed: 7, Width: 20, Height: 20})
	if err := populate(w, cfg.Population, 7); err != nil {
		t.Fatalf("populate: %v", err)
	}
	if w.NPCCount() != 6 {
		t.Fatalf("npcs = %d", w.NPCCount())
	}
	stocks, owned, predators := countObjects(w)
	if stocks != 2 || owned != 4 || predators != 1 {
		t.Fatalf("stocks %d owned beds %d predators %d", stocks, owned, predators)
	}
	for _, id := range w.AliveNPCIDs() {
		if w.PrivateFood(id) != cfg.Population.PrivateFood {
			t.Fatalf("npc %d private food = %d", id, w.PrivateFood(id))
		}
	}
}

func TestPopulate_NoRoom(t *testing.T) {
	cfg := smallConfig()
	cfg.Population.Beds = 10_000
	w := newWorld(cfg, persistence.WorldInfo{Seed: 7, Width: 20, Height: 20})
	if err := populate(w, cfg.Population, 7); err == nil {
		t.Fatalf("expected an error when objects do not fit")
	}
}

func TestLoadWorld_FreshThenSaved(t *testing.T) {
	cfg := smallConfig()
	cfg.World.Seed = 0
	db, err := persistence.Open(filepath.Join(t.TempDir(), "w.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	ld, err := loadWorld(cfg, db, "")
	if err != nil || !ld.fresh {
		t.Fatalf("fresh load: fresh=%v err=%v", ld.fresh, err)
	}
	w, info := ld.w, ld.info
	if info.Seed == 0 {
		t.Fatalf("seed 0 must be resolved")
	}

	sim := engine.NewSimulation(w, info.Seed)
	sim.LastTick = 30
	sim.Emitter.Restore(comms.EmitterState{Daily: []comms.DailyRecord{{Speaker: 1, Day: 0, Count: 3}}})
	info.RunID = "run"
	if err := db.SaveWorldState(sim, info); err != nil {
		t.Fatalf("save: %v", err)
	}

	re, err := loadWorld(cfg, db, "")
	if err != nil || re.fresh {
		t.Fatalf("reload: fresh=%v err=%v", re.fresh, err)
	}
	again, info2 := re.w, re.info
	if !reflect.DeepEqual(re.emission, sim.Emitter.State()) {
		t.Fatalf("emission state: %+v", re.emission)
	}
	if info2.Seed != info.Seed || info2.LastTick != 30 {
		t.Fatalf("info: %+v", info2)
	}
	if again.NPCCount() != w.NPCCount() || again.ObjectCount() != w.ObjectCount() {
		t.Fatalf("reloaded %d npcs %d objects, want %d %d", again.NPCCount(), again.ObjectCount(), w.NPCCount(), w.ObjectCount())
	}
	if again.Occlusion.Count() != w.Occlusion.Count() {
		t.Fatalf("layout differs after reload")
	}
}

func TestLoadWorld_FromSnapshot(t *testing.T) {
	cfg := smallConfig()
	w := newWorld(cfg, persistence.WorldInfo{Seed: 9, Width: 20, Height: 20})
	if err := populate(w, cfg.Population, 9); err != nil {
		t.Fatalf("populate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "s.snap.zst")
	info := persistence.WorldInfo{Seed: 9, Width: 20, Height: 20}
	sim := engine.NewSimulation(w, 9)
	sim.Emitter.Restore(comms.EmitterState{Cooldowns: []comms.CooldownRecord{{Speaker: 1, Listener: 2, Subject: 3, Tick: 50}}})
	snap := persistence.CaptureSimulation(sim, persistence.Header{RunID: "r", World: "test", Tick: 55}, info)
	if err := persistence.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}

	db, err := persistence.Open(filepath.Join(t.TempDir(), "w.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	ld, err := loadWorld(cfg, db, path)
	if err != nil || ld.fresh {
		t.Fatalf("snapshot load: fresh=%v err=%v", ld.fresh, err)
	}
	if ld.info.LastTick != 55 || ld.w.NPCCount() != 6 {
		t.Fatalf("tick %d npcs %d", ld.info.LastTick, ld.w.NPCCount())
	}
	if c := ld.emission.Cooldowns; len(c) != 1 || c[0].Listener != 2 || c[0].Tick != 50 {
		t.Fatalf("cooldowns: %+v", c)
	}
}
