package gardener

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

const (
	// DefaultMemoryFile is used when no path is configured.
	DefaultMemoryFile = "gardener_memory.json"
	maxRecords        = 20
	summaryRecords    = 5
)

// CycleRecord captures what happened in a single gardener cycle.
type CycleRecord struct {
	RunID       string `json:"run_id"`
	Tick        uint64 `json:"tick"`
	Action      string `json:"action"`
	Target      uint64 `json:"target,omitempty"`
	Alive       int    `json:"alive"`
	Hungry      int    `json:"hungry"`
	Starving    int    `json:"starving"`
	CrisisLevel string `json:"crisis_level"`
	Rationale   string `json:"rationale,omitempty"`
}

// CycleMemory manages a ring of recent gardener cycle records.
type CycleMemory struct {
	Records []CycleRecord `json:"records"`

	path string
}

// LoadMemory reads the memory file at path. A missing or corrupt file
// yields empty memory bound to the same path.
func LoadMemory(path string) *CycleMemory {
	if path == "" {
		path = DefaultMemoryFile
	}
	mem := &CycleMemory{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		return mem
	}
	if err := json.Unmarshal(data, mem); err != nil {
		slog.Warn("gardener memory corrupted, starting fresh", "path", path, "error", err)
		return &CycleMemory{path: path}
	}
	return mem
}

// Save writes the memory to disk.
func (m *CycleMemory) Save() error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal gardener memory: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0644); err != nil {
		return fmt.Errorf("write gardener memory: %w", err)
	}
	return nil
}

// Record adds a cycle record, trimming to maxRecords.
func (m *CycleMemory) Record(r CycleRecord) {
	m.Records = append(m.Records, r)
	if len(m.Records) > maxRecords {
		m.Records = m.Records[len(m.Records)-maxRecords:]
	}
}

// Last returns the most recent record, or nil.
func (m *CycleMemory) Last() *CycleRecord {
	if len(m.Records) == 0 {
		return nil
	}
	return &m.Records[len(m.Records)-1]
}

// recentlyActed reports whether action was taken on target within the last
// `within` records of the same run.
func (m *CycleMemory) recentlyActed(runID, action string, target uint64, within int) bool {
	for i := len(m.Records) - 1; i >= 0 && within > 0; i, within = i-1, within-1 {
		r := m.Records[i]
		if r.RunID == runID && r.Action == action && r.Target == target {
			return true
		}
	}
	return false
}

// Summary returns a short human-readable log of the latest cycles.
func (m *CycleMemory) Summary() string {
	if len(m.Records) == 0 {
		return "no cycles recorded"
	}
	start := max(0, len(m.Records)-summaryRecords)

	var b strings.Builder
	for _, r := range m.Records[start:] {
		fmt.Fprintf(&b, "tick %d: %s", r.Tick, r.Action)
		if r.Target != 0 {
			fmt.Fprintf(&b, " #%d", r.Target)
		}
		fmt.Fprintf(&b, " (alive=%d hungry=%d starving=%d crisis=%s)\n",
			r.Alive, r.Hungry, r.Starving, r.CrisisLevel)
	}
	return b.String()
}
