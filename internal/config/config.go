// Package config loads the simulation configuration from YAML, validates it
// against an embedded JSON schema and clamps every value into a range the
// core can use.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/talgya/rumormill/internal/world"
)

//go:embed config.schema.json
var schemaJSON string

// Environment overrides.
const (
	EnvConfigPath = "RUMORMILL_CONFIG"
	EnvAdminKey   = "RUMORMILL_ADMIN_KEY"
	EnvDBPath     = "RUMORMILL_DB"
)

// Config is the whole process configuration.
type Config struct {
	World       WorldConfig       `yaml:"world"`
	Population  PopulationConfig  `yaml:"population"`
	Simulation  SimulationConfig  `yaml:"simulation"`
	Vision      VisionConfig      `yaml:"vision"`
	Perception  PerceptionConfig  `yaml:"perception"`
	Memory      MemoryConfig      `yaml:"memory"`
	Tokens      TokenConfig       `yaml:"tokens"`
	Needs       NeedsConfig       `yaml:"needs"`
	Threats     ThreatConfig      `yaml:"threats"`
	Objects     []world.ObjectDef `yaml:"objects"`
	Persistence PersistenceConfig `yaml:"persistence"`
	API         APIConfig         `yaml:"api"`
	Log         LogConfig         `yaml:"log"`
}

type WorldConfig struct {
	Name        string  `yaml:"name"`
	Seed        int64   `yaml:"seed"`
	Width       int     `yaml:"width"`
	Height      int     `yaml:"height"`
	WallDensity float64 `yaml:"wall_density"`
	ClearRadius int     `yaml:"clear_radius"`
}

// PopulationConfig controls what a fresh world is seeded with.
type PopulationConfig struct {
	NPCs        int    `yaml:"npcs"`
	FoodStocks  int    `yaml:"food_stocks"`
	Beds        int    `yaml:"beds"`
	Predators   int    `yaml:"predators"`
	PrivateFood int    `yaml:"private_food"` // units each NPC starts with
	StockDef    string `yaml:"stock_def"`
	BedDef      string `yaml:"bed_def"`
	PredatorDef string `yaml:"predator_def"`
}

type SimulationConfig struct {
	TickIntervalMs int     `yaml:"tick_interval_ms"`
	Speed          float64 `yaml:"speed"`
	MaxTicks       uint64  `yaml:"max_ticks"`
	ViewEveryTicks int     `yaml:"view_every_ticks"`
}

type VisionConfig struct {
	RangeCells         int `yaml:"range_cells"`
	DecisionRangeCells int `yaml:"decision_range_cells"`
}

type PerceptionConfig struct {
	SpatialFusion bool `yaml:"spatial_fusion"`
	RegionSize    int  `yaml:"region_size"`
}

type MemoryConfig struct {
	TickScale float64 `yaml:"tick_scale"`
}

type TokenConfig struct {
	ContactRadius             int     `yaml:"contact_radius"`
	TopTraces                 int     `yaml:"top_traces"`
	CooldownTicks             int     `yaml:"cooldown_ticks"`
	MaxPerEncounter           int     `yaml:"max_per_encounter"`
	MaxPerDay                 int     `yaml:"max_per_day"`
	TalkRangeCells            int     `yaml:"talk_range_cells"`
	ShoutRangeCells           int     `yaml:"shout_range_cells"`
	ReliabilityFalloffPerCell float64 `yaml:"reliability_falloff_per_cell"`
	IntensityFalloffPerCell   float64 `yaml:"intensity_falloff_per_cell"`
	LineOfSight               bool    `yaml:"line_of_sight"`
}

type NeedsConfig struct {
	HungerPerTick      float32 `yaml:"hunger_per_tick"`
	FatiguePerTick     float32 `yaml:"fatigue_per_tick"`
	HungerThreshold    float32 `yaml:"hunger_threshold"`
	HungerEmergency    float32 `yaml:"hunger_emergency"`
	FatigueThreshold   float32 `yaml:"fatigue_threshold"`
	FatigueEmergency   float32 `yaml:"fatigue_emergency"`
	JusticeThreshold   float32 `yaml:"justice_threshold"`
	EatRelief          float32 `yaml:"eat_relief"`
	SleepRelief        float32 `yaml:"sleep_relief"`
	DecisionEveryTicks int     `yaml:"decision_every_ticks"`
}

type ThreatConfig struct {
	AttackRangeCells int     `yaml:"attack_range_cells"`
	AttackDamage     float32 `yaml:"attack_damage"`
}

type PersistenceConfig struct {
	DBPath         string `yaml:"db_path"`
	SnapshotPath   string `yaml:"snapshot_path"`
	SaveEveryTicks int    `yaml:"save_every_ticks"`
}

type APIConfig struct {
	Addr           string  `yaml:"addr"`
	AdminKey       string  `yaml:"admin_key"`
	RatePerSecond  float64 `yaml:"rate_per_second"`
	RateBurst      int     `yaml:"rate_burst"`
	ViewerCapacity int     `yaml:"viewer_capacity"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	g := world.DefaultGlobals()
	return Config{
		World: WorldConfig{
			Name:        "rumormill",
			Seed:        42,
			Width:       48,
			Height:      48,
			WallDensity: 0.12,
			ClearRadius: 3,
		},
		Population: PopulationConfig{
			NPCs:        40,
			FoodStocks:  4,
			Beds:        24,
			Predators:   2,
			PrivateFood: 2,
			StockDef:    "food_stock",
			BedDef:      "bed",
			PredatorDef: "wolf",
		},
		Simulation: SimulationConfig{
			TickIntervalMs: 1000,
			Speed:          1.0,
			ViewEveryTicks: 10,
		},
		Vision: VisionConfig{
			RangeCells:         g.Vision.RangeCells,
			DecisionRangeCells: g.Vision.DecisionRangeCells,
		},
		Perception: PerceptionConfig{
			SpatialFusion: g.Perception.SpatialFusion,
			RegionSize:    g.Perception.RegionSize,
		},
		Memory: MemoryConfig{TickScale: g.Memory.TickScale},
		Tokens: TokenConfig{
			ContactRadius:             g.Tokens.ContactRadius,
			TopTraces:                 g.Tokens.TopTraces,
			CooldownTicks:             g.Tokens.CooldownTicks,
			MaxPerEncounter:           g.Tokens.MaxPerEncounter,
			MaxPerDay:                 g.Tokens.MaxPerDay,
			TalkRangeCells:            g.Tokens.TalkRangeCells,
			ShoutRangeCells:           g.Tokens.ShoutRangeCells,
			ReliabilityFalloffPerCell: g.Tokens.ReliabilityFalloffPerCell,
			IntensityFalloffPerCell:   g.Tokens.IntensityFalloffPerCell,
			LineOfSight:               g.Tokens.LineOfSight,
		},
		Needs: NeedsConfig{
			HungerPerTick:      g.Needs.HungerPerTick,
			FatiguePerTick:     g.Needs.FatiguePerTick,
			HungerThreshold:    g.Needs.HungerThreshold,
			HungerEmergency:    g.Needs.HungerEmergency,
			FatigueThreshold:   g.Needs.FatigueThreshold,
			FatigueEmergency:   g.Needs.FatigueEmergency,
			JusticeThreshold:   g.Needs.JusticeThreshold,
			EatRelief:          g.Needs.EatRelief,
			SleepRelief:        g.Needs.SleepRelief,
			DecisionEveryTicks: g.Needs.DecisionEveryTicks,
		},
		Threats: ThreatConfig{
			AttackRangeCells: g.Threats.AttackRangeCells,
			AttackDamage:     g.Threats.AttackDamage,
		},
		Objects: DefaultObjects(),
		Persistence: PersistenceConfig{
			DBPath:         "data/rumormill.db",
			SnapshotPath:   "data/memories.snap.zst",
			SaveEveryTicks: 1440,
		},
		API: APIConfig{
			Addr:           ":8080",
			RatePerSecond:  5,
			RateBurst:      10,
			ViewerCapacity: 32,
		},
		Log: LogConfig{Level: "info"},
	}
}

// DefaultObjects returns the built-in object definitions.
func DefaultObjects() []world.ObjectDef {
	return []world.ObjectDef{
		{ID: "wall", Sprite: "wall_stone", BlocksVision: true, BlocksMovement: true, VisionCost: 1},
		{ID: "hedge", Sprite: "hedge", BlocksVision: true, VisionCost: 1},
		{ID: "fence", Sprite: "fence", BlocksMovement: true, VisionCost: 1},
		{ID: "food_stock", Sprite: "granary", Interactable: true, FoodCapacity: 12},
		{ID: "bed", Sprite: "bed_straw", Interactable: true},
		{ID: "wolf", Sprite: "wolf", Predator: true},
	}
}

// Load reads path over Default, validates it and normalizes the result.
// An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.Normalize()
	return cfg, nil
}

// Parse validates raw YAML against the schema and decodes it over cfg.
func Parse(raw []byte, cfg *Config) error {
	if err := Validate(raw); err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

var schema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	s, err := jsonschema.CompileString("config.schema.json", schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}
	return s, nil
})

// Validate checks raw YAML against the embedded schema. The document is
// converted to its JSON form first so numbers and maps have the types the
// validator expects.
func Validate(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if doc == nil {
		return nil
	}
	js, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config is not representable as JSON: %w", err)
	}
	var inst any
	if err := json.Unmarshal(js, &inst); err != nil {
		return fmt.Errorf("config is not representable as JSON: %w", err)
	}
	s, err := schema()
	if err != nil {
		return err
	}
	if err := s.Validate(inst); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAdminKey); v != "" {
		c.API.AdminKey = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		c.Persistence.DBPath = v
	}
}

// Normalize clamps every field into a usable range and fills blanks.
func (c *Config) Normalize() {
	c.World.Name = strings.TrimSpace(c.World.Name)
	if c.World.Name == "" {
		c.World.Name = "rumormill"
	}
	c.World.Width = clampInt(c.World.Width, 8, 512)
	c.World.Height = clampInt(c.World.Height, 8, 512)
	c.World.WallDensity = clampFloat(c.World.WallDensity, 0, 0.5)
	c.World.ClearRadius = max(0, c.World.ClearRadius)

	p := &c.Population
	p.NPCs = max(0, p.NPCs)
	p.FoodStocks = max(0, p.FoodStocks)
	p.Beds = max(0, p.Beds)
	p.Predators = max(0, p.Predators)
	p.PrivateFood = max(0, p.PrivateFood)

	s := &c.Simulation
	s.TickIntervalMs = clampInt(s.TickIntervalMs, 1, 60_000)
	s.Speed = clampFloat(s.Speed, 0, 1000)
	s.ViewEveryTicks = max(0, s.ViewEveryTicks)

	c.Vision.RangeCells = max(1, c.Vision.RangeCells)
	c.Vision.DecisionRangeCells = max(1, c.Vision.DecisionRangeCells)
	c.Perception.RegionSize = max(1, c.Perception.RegionSize)
	c.Memory.TickScale = max(0, c.Memory.TickScale)

	t := &c.Tokens
	t.ContactRadius = max(1, t.ContactRadius)
	t.TopTraces = max(1, t.TopTraces)
	t.CooldownTicks = max(0, t.CooldownTicks)
	t.MaxPerEncounter = max(1, t.MaxPerEncounter)
	t.MaxPerDay = max(0, t.MaxPerDay)
	t.TalkRangeCells = max(1, t.TalkRangeCells)
	t.ShoutRangeCells = max(1, t.ShoutRangeCells)
	t.ReliabilityFalloffPerCell = clampFloat(t.ReliabilityFalloffPerCell, 0, 1)
	t.IntensityFalloffPerCell = clampFloat(t.IntensityFalloffPerCell, 0, 1)

	n := &c.Needs
	n.HungerPerTick = clamp32(n.HungerPerTick, 0, 1)
	n.FatiguePerTick = clamp32(n.FatiguePerTick, 0, 1)
	n.HungerThreshold = clamp32(n.HungerThreshold, 0, 1)
	n.HungerEmergency = clamp32(n.HungerEmergency, n.HungerThreshold, 1)
	n.FatigueThreshold = clamp32(n.FatigueThreshold, 0, 1)
	n.FatigueEmergency = clamp32(n.FatigueEmergency, n.FatigueThreshold, 1)
	n.JusticeThreshold = clamp32(n.JusticeThreshold, 0, 1)
	n.EatRelief = clamp32(n.EatRelief, 0, 1)
	n.SleepRelief = clamp32(n.SleepRelief, 0, 1)
	n.DecisionEveryTicks = max(1, n.DecisionEveryTicks)

	c.Threats.AttackRangeCells = max(1, c.Threats.AttackRangeCells)
	c.Threats.AttackDamage = clamp32(c.Threats.AttackDamage, 0, 1)

	for i := range c.Objects {
		c.Objects[i].VisionCost = max(0, c.Objects[i].VisionCost)
		c.Objects[i].FoodCapacity = max(0, c.Objects[i].FoodCapacity)
	}

	c.Persistence.SaveEveryTicks = max(0, c.Persistence.SaveEveryTicks)
	if c.API.RatePerSecond <= 0 {
		c.API.RatePerSecond = 5
	}
	c.API.RateBurst = max(1, c.API.RateBurst)
	c.API.ViewerCapacity = max(1, c.API.ViewerCapacity)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Globals converts the tuning sections into the core's parameter set.
func (c Config) Globals() world.GlobalState {
	return world.GlobalState{
		Vision: world.VisionParams{
			RangeCells:         c.Vision.RangeCells,
			DecisionRangeCells: c.Vision.DecisionRangeCells,
		},
		Perception: world.PerceptionParams{
			SpatialFusion: c.Perception.SpatialFusion,
			RegionSize:    c.Perception.RegionSize,
		},
		Memory: world.MemoryParams{TickScale: c.Memory.TickScale},
		Tokens: world.TokenParams{
			ContactRadius:             c.Tokens.ContactRadius,
			TopTraces:                 c.Tokens.TopTraces,
			CooldownTicks:             c.Tokens.CooldownTicks,
			MaxPerEncounter:           c.Tokens.MaxPerEncounter,
			MaxPerDay:                 c.Tokens.MaxPerDay,
			TalkRangeCells:            c.Tokens.TalkRangeCells,
			ShoutRangeCells:           c.Tokens.ShoutRangeCells,
			ReliabilityFalloffPerCell: c.Tokens.ReliabilityFalloffPerCell,
			IntensityFalloffPerCell:   c.Tokens.IntensityFalloffPerCell,
			LineOfSight:               c.Tokens.LineOfSight,
		},
		Needs: world.NeedParams{
			HungerPerTick:      c.Needs.HungerPerTick,
			FatiguePerTick:     c.Needs.FatiguePerTick,
			HungerThreshold:    c.Needs.HungerThreshold,
			HungerEmergency:    c.Needs.HungerEmergency,
			FatigueThreshold:   c.Needs.FatigueThreshold,
			FatigueEmergency:   c.Needs.FatigueEmergency,
			JusticeThreshold:   c.Needs.JusticeThreshold,
			EatRelief:          c.Needs.EatRelief,
			SleepRelief:        c.Needs.SleepRelief,
			DecisionEveryTicks: c.Needs.DecisionEveryTicks,
		},
		Threats: world.ThreatParams{
			AttackRangeCells: c.Threats.AttackRangeCells,
			AttackDamage:     c.Threats.AttackDamage,
		},
	}
}

func clampInt(v, lo, hi int) int           { return max(lo, min(v, hi)) }
func clampFloat(v, lo, hi float64) float64 { return max(lo, min(v, hi)) }
func clamp32(v, lo, hi float32) float32    { return max(lo, min(v, hi)) }
