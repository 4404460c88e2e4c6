package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/rumormill/internal/agents"
	"github.com/talgya/rumormill/internal/engine"
	"github.com/talgya/rumormill/internal/entity"
	"github.com/talgya/rumormill/internal/grid"
	"github.com/talgya/rumormill/internal/world"
)

type harness struct {
	srv   *Server
	sim   *engine.Simulation
	eng   *engine.Engine
	stock entity.ID
	npc   entity.ID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	defs := []world.ObjectDef{{ID: "food_stock", Interactable: true, FoodCapacity: 10}}
	w := world.New(grid.NewOcclusionMap(16, 16), world.DefaultGlobals(), defs)
	stock, err := w.AddObject("food_stock", grid.Cell{X: 3, Y: 3}, 0)
	if err != nil {
		t.Fatalf("stock: %v", err)
	}
	w.SetFoodStock(stock, 1)
	npc := w.AddNPC(agents.NPC{
		Name:     "Mara Voss",
		Position: grid.Cell{X: 5, Y: 5},
		Health:   1,
		Alive:    true,
		Needs:    agents.Needs{Hunger: 0.2},
	})

	sim := engine.NewSimulation(w, 1)
	eng := engine.NewEngine(0)
	srv := NewServer(sim, eng, 1)
	srv.AdminKey = "k"
	srv.WorldName = "test"
	sim.Observe(srv)
	eng.OnTick = func(tick uint64) { sim.Step(tick) }
	return &harness{srv: srv, sim: sim, eng: eng, stock: stock, npc: npc}
}

func (h *harness) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestServer_ReadEndpoints(t *testing.T) {
	h := newHarness(t)

	if rec := h.do(t, http.MethodGet, "/api/v1/telemetry", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("telemetry before first tick: %d", rec.Code)
	}

	for i := 0; i < 10; i++ {
		h.eng.Step()
	}

	rec := h.do(t, http.MethodGet, "/api/v1/status", "", "")
	var status struct {
		Name  string `json:"name"`
		Tick  uint64 `json:"tick"`
		Alive int    `json:"alive"`
	}
	decode(t, rec, &status)
	if status.Name != "test" || status.Tick != 10 || status.Alive != 1 {
		t.Fatalf("status: %+v", status)
	}

	rec = h.do(t, http.MethodGet, "/api/v1/npcs", "", "")
	var list struct {
		Tick uint64       `json:"tick"`
		NPCs []npcSummary `json:"npcs"`
	}
	decode(t, rec, &list)
	if list.Tick != 10 || len(list.NPCs) != 1 || list.NPCs[0].Name != "Mara Voss" || list.NPCs[0].X != 5 {
		t.Fatalf("npcs: %+v", list)
	}

	rec = h.do(t, http.MethodGet, "/api/v1/npc/"+itoa(h.npc), "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Mara Voss") {
		t.Fatalf("detail: %d %s", rec.Code, rec.Body.String())
	}
	if rec := h.do(t, http.MethodGet, "/api/v1/npc/999", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing npc: %d", rec.Code)
	}
	if rec := h.do(t, http.MethodGet, "/api/v1/npc/abc", "", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: %d", rec.Code)
	}

	rec = h.do(t, http.MethodGet, "/api/v1/objects?kind=stock", "", "")
	var objs struct {
		Objects []engine.ObjectView `json:"objects"`
	}
	decode(t, rec, &objs)
	if len(objs.Objects) != 1 || objs.Objects[0].ID != h.stock || objs.Objects[0].Capacity != 10 {
		t.Fatalf("objects: %+v", objs)
	}
	rec = h.do(t, http.MethodGet, "/api/v1/objects?kind=predator", "", "")
	objs.Objects = nil
	decode(t, rec, &objs)
	if len(objs.Objects) != 0 {
		t.Fatalf("no predators expected: %+v", objs)
	}

	rec = h.do(t, http.MethodGet, "/api/v1/telemetry", "", "")
	var tel engine.TickReport
	decode(t, rec, &tel)
	if tel.Tick != 10 || tel.View != nil || tel.Totals.Ticks != 10 {
		t.Fatalf("telemetry: tick %d view %v totals %+v", tel.Tick, tel.View != nil, tel.Totals)
	}

	if rec := h.do(t, http.MethodGet, "/api/v1/facts", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("facts without db: %d", rec.Code)
	}
}

func itoa(id entity.ID) string {
	return strconv.FormatUint(uint64(id), 10)
}

func TestServer_AdminAuth(t *testing.T) {
	h := newHarness(t)

	if rec := h.do(t, http.MethodPost, "/api/v1/speed", `{"speed":3}`, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", rec.Code)
	}
	if rec := h.do(t, http.MethodPost, "/api/v1/speed", `{"speed":3}`, "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: %d", rec.Code)
	}
	if rec := h.do(t, http.MethodPost, "/api/v1/speed", `{"speed":3000}`, "k"); rec.Code != http.StatusBadRequest {
		t.Fatalf("out of range: %d", rec.Code)
	}
	if rec := h.do(t, http.MethodPost, "/api/v1/speed", `{"speed":3}`, "k"); rec.Code != http.StatusOK || h.eng.Speed() != 3 {
		t.Fatalf("speed: %d %v", rec.Code, h.eng.Speed())
	}
	if rec := h.do(t, http.MethodGet, "/api/v1/speed", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("get speed: %d", rec.Code)
	}

	h.srv.AdminKey = ""
	if rec := h.do(t, http.MethodPost, "/api/v1/speed", `{"speed":1}`, "k"); rec.Code != http.StatusForbidden {
		t.Fatalf("disabled admin: %d", rec.Code)
	}
}

func TestServer_SnapshotRequest(t *testing.T) {
	h := newHarness(t)
	if rec := h.do(t, http.MethodGet, "/api/v1/snapshot", "", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("get snapshot: %d", rec.Code)
	}
	rec := h.do(t, http.MethodPost, "/api/v1/snapshot", "", "k")
	if rec.Code != http.StatusAccepted || !h.srv.SaveRequested.Load() {
		t.Fatalf("snapshot: %d requested %v", rec.Code, h.srv.SaveRequested.Load())
	}
}

func TestServer_Intervention(t *testing.T) {
	h := newHarness(t)

	if rec := h.do(t, http.MethodPost, "/api/v1/intervention", `{"kind":"bless"}`, "k"); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown kind: %d", rec.Code)
	}
	if rec := h.do(t, http.MethodPost, "/api/v1/intervention", `{"kind":"provision","object":1,"units":0}`, "k"); rec.Code != http.StatusBadRequest {
		t.Fatalf("zero units: %d", rec.Code)
	}

	// Step the simulation until the queued intervention is applied.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-time.After(5 * time.Millisecond):
				h.eng.Step()
			}
		}
	}()

	body := `{"kind":"provision","object":` + itoa(h.stock) + `,"units":4}`
	rec := h.do(t, http.MethodPost, "/api/v1/intervention", body, "k")
	var res engine.InterventionResult
	decode(t, rec, &res)
	if rec.Code != http.StatusOK || !res.Success || !strings.Contains(res.Details, "1 → 5") {
		t.Fatalf("provision: %d %+v", rec.Code, res)
	}

	rec = h.do(t, http.MethodPost, "/api/v1/intervention", `{"kind":"ration","npc":999,"units":2}`, "k")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ration to missing npc: %d", rec.Code)
	}
}

func TestServer_ViewerStream(t *testing.T) {
	h := newHarness(t)
	ts := httptest.NewServer(h.srv.Handler())
	defer ts.Close()
	defer h.srv.Shutdown(t.Context())

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Capacity is one viewer.
	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil || resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("second viewer must be refused")
	}

	deadline := time.Now().Add(5 * time.Second)
	for h.srv.viewers.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	h.eng.Step()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var r engine.TickReport
	if err := json.Unmarshal(msg, &r); err != nil || r.Tick != 1 {
		t.Fatalf("report: %v %+v", err, r)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") || rl.Allow("a") {
		t.Fatalf("burst of two expected")
	}
	if rl.RetryAfter("a") != 1 {
		t.Fatalf("retry after: %d", rl.RetryAfter("a"))
	}
	if !rl.Allow("b") {
		t.Fatalf("buckets are per ip")
	}
	now = now.Add(1500 * time.Millisecond)
	if !rl.Allow("a") {
		t.Fatalf("refill")
	}
	now = now.Add(2 * time.Hour)
	if n := rl.Prune(time.Hour); n != 2 {
		t.Fatalf("pruned %d", n)
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:5555"
	if got := clientIP(r); got != "10.0.0.7" {
		t.Fatalf("remote: %q", got)
	}
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	if got := clientIP(r); got != "1.2.3.4" {
		t.Fatalf("forwarded: %q", got)
	}
}
