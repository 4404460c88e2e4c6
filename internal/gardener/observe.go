// Package gardener implements the autonomous world steward.
// It observes the village through the public API, triages hunger and
// predator pressure with fixed rules, and acts via the admin intervention
// endpoint.
package gardener

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WorldSnapshot holds all data collected during an observation cycle.
type WorldSnapshot struct {
	Status    WorldStatus  `json:"status"`
	NPCs      []NPCInfo    `json:"npcs"`
	Stocks    []ObjectInfo `json:"stocks"`
	Predators []ObjectInfo `json:"predators"`
}

// WorldStatus mirrors GET /api/v1/status.
type WorldStatus struct {
	Name    string  `json:"name"`
	RunID   string  `json:"run_id"`
	Tick    uint64  `json:"tick"`
	SimTime string  `json:"sim_time"`
	Speed   float64 `json:"speed"`
	Running bool    `json:"running"`
	Alive   int     `json:"alive"`
	Totals  struct {
		Ticks    uint64 `json:"ticks"`
		Facts    int    `json:"facts"`
		Commands int    `json:"commands"`
		Emit     struct {
			Emitted int `json:"emitted"`
		} `json:"emit"`
	} `json:"totals"`
}

// NPCInfo mirrors items from GET /api/v1/npcs.
type NPCInfo struct {
	ID                uint64  `json:"id"`
	Name              string  `json:"name"`
	X                 int     `json:"x"`
	Y                 int     `json:"y"`
	Health            float64 `json:"health"`
	Hunger            float64 `json:"hunger"`
	Fatigue           float64 `json:"fatigue"`
	JusticePerception float64 `json:"justice_perception"`
	PrivateFood       int     `json:"private_food"`
	Memories          int     `json:"memories"`
}

// ObjectInfo mirrors items from GET /api/v1/objects.
type ObjectInfo struct {
	ID       uint64 `json:"id"`
	Def      string `json:"def"`
	Position struct {
		X int `json:"x"`
		Y int `json:"y"`
	} `json:"position"`
	Units    int  `json:"units"`
	Capacity int  `json:"capacity"`
	Predator bool `json:"predator"`
}

// Observer fetches world state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Observe fetches status, population and objects and returns a WorldSnapshot.
func (o *Observer) Observe() (*WorldSnapshot, error) {
	snap := &WorldSnapshot{}

	if err := o.fetchJSON("/api/v1/status", &snap.Status); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}

	var npcs struct {
		NPCs []NPCInfo `json:"npcs"`
	}
	if err := o.fetchJSON("/api/v1/npcs?sort=hunger", &npcs); err != nil {
		return nil, fmt.Errorf("fetch npcs: %w", err)
	}
	snap.NPCs = npcs.NPCs

	var objs struct {
		Objects []ObjectInfo `json:"objects"`
	}
	if err := o.fetchJSON("/api/v1/objects?kind=stock", &objs); err != nil {
		return nil, fmt.Errorf("fetch stocks: %w", err)
	}
	snap.Stocks = objs.Objects

	objs.Objects = nil
	if err := o.fetchJSON("/api/v1/objects?kind=predator", &objs); err != nil {
		return nil, fmt.Errorf("fetch predators: %w", err)
	}
	snap.Predators = objs.Objects

	return snap, nil
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(path string, target any) error {
	resp, err := o.HTTPClient.Get(o.BaseURL + path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
