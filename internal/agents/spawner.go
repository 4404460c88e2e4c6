// NPC spawning: creates the initial population with names, placement,
// personality, and needs.
package agents

import (
	"math/rand"

	"github.com/talgya/rumormill/internal/grid"
)

// Spawner creates NPCs for the simulation. Output is fully determined by the seed.
type Spawner struct {
	rng *rand.Rand
}

// NewSpawner creates an NPC spawner with the given seed.
func NewSpawner(seed int64) *Spawner {
	return &Spawner{rng: rand.New(rand.NewSource(seed + 300))}
}

// SpawnPopulation places count NPCs on distinct open cells of m.
// IDs are left zero; the world store assigns them on insertion.
// Fewer NPCs are returned if the map runs out of open cells.
func (s *Spawner) SpawnPopulation(count int, m *grid.OcclusionMap, tick uint64) []NPC {
	open := openCells(m)
	s.rng.Shuffle(len(open), func(i, j int) { open[i], open[j] = open[j], open[i] })
	if count > len(open) {
		count = len(open)
	}

	npcs := make([]NPC, 0, count)
	for i := 0; i < count; i++ {
		npcs = append(npcs, s.SpawnAt(open[i], tick))
	}
	return npcs
}

// SpawnAt creates one NPC standing on cell.
func (s *Spawner) SpawnAt(cell grid.Cell, tick uint64) NPC {
	personality := PersonalityMemoryParams{
		TraumaSensitivity: s.rng.Float32(),
		Resilience:        s.rng.Float32() * 0.6,
		Rumination:        s.rng.Float32() * 0.8,
		Gullibility:       s.rng.Float32(),
		MaxTraces:         16 + s.rng.Intn(33), // 16–48
	}

	return NPC{
		Name:     s.generateName(),
		Position: cell,
		Facing:   grid.Facing(s.rng.Intn(4)),
		Health:   0.8 + s.rng.Float32()*0.2,
		Needs: Needs{
			Hunger:  s.rng.Float32() * 0.4,
			Fatigue: s.rng.Float32() * 0.4,
		},
		// Most people start out believing the world is mostly fair.
		JusticePerception: clamp01(0.55 + float32(s.rng.NormFloat64())*0.15),
		Personality:       personality,
		Memory:            NewMemoryStore(personality.MaxTraces),
		BornTick:          tick,
		Alive:             true,
	}
}

func (s *Spawner) generateName() string {
	firsts := maleNames
	if s.rng.Float32() < 0.5 {
		firsts = femaleNames
	}
	first := firsts[s.rng.Intn(len(firsts))]
	last := lastNames[s.rng.Intn(len(lastNames))]
	return first + " " + last
}

func openCells(m *grid.OcclusionMap) []grid.Cell {
	var out []grid.Cell
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			c := grid.Cell{X: x, Y: y}
			if o, _ := m.At(c); o.BlocksMovement || o.BlocksVision {
				continue
			}
			out = append(out, c)
		}
	}
	return out
}

var maleNames = []string{
	"Aldric", "Bram", "Cedric", "Doran", "Erik", "Finn", "Gareth",
	"Halvard", "Ivan", "Jasper", "Kael", "Leif", "Magnus", "Nils",
	"Oswin", "Per", "Quinn", "Rowan", "Stellan", "Theron", "Ulric",
}

var femaleNames = []string{
	"Astrid", "Brenna", "Calla", "Daria", "Elara", "Freya", "Greta",
	"Helene", "Iris", "Juno", "Kira", "Lena", "Mira", "Nessa",
	"Olwen", "Petra", "Runa", "Senna", "Thea", "Una", "Vera",
}

var lastNames = []string{
	"Ashford", "Blackwood", "Copperfield", "Dunmore", "Everhart",
	"Fairbrook", "Greystone", "Hollowell", "Ironside", "Kettleburn",
	"Larkspur", "Millbrook", "Northgate", "Oakshield", "Pennywhistle",
}
