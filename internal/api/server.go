// Package api provides the HTTP API for observing the simulation.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talgya/rumormill/internal/engine"
	"github.com/talgya/rumormill/internal/entity"
	"github.com/talgya/rumormill/internal/persistence"
)

// interventionTimeout bounds how long a POST waits for the simulation to
// apply an intervention.
const interventionTimeout = 10 * time.Second

// maxInterventionUnits caps provision and ration sizes.
const maxInterventionUnits = 100

// Server serves the latest tick telemetry over HTTP and a websocket feed.
// Simulation state is only read through published tick reports.
type Server struct {
	Sim       *engine.Simulation
	Eng       *engine.Engine
	DB        *persistence.DB
	Addr      string
	AdminKey  string // Bearer token for POST endpoints. Empty = POST disabled.
	RunID     string
	WorldName string
	Limiter   *RateLimiter

	// SaveRequested is set by POST /api/v1/snapshot; the driver saves on
	// its next tick and clears it.
	SaveRequested atomic.Bool

	mu        sync.RWMutex
	last      engine.TickReport
	view      engine.WorldView
	hasReport bool

	viewers *viewerHub
	srv     *http.Server
	stop    chan struct{}
}

// NewServer creates a server for sim driven by eng.
func NewServer(sim *engine.Simulation, eng *engine.Engine, viewerCapacity int) *Server {
	return &Server{
		Sim:     sim,
		Eng:     eng,
		Addr:    ":8080",
		Limiter: NewRateLimiter(5, 10),
		viewers: newViewerHub(viewerCapacity),
	}
}

// ObserveTick records r and fans it out to websocket viewers. Called on the
// simulation goroutine; never blocks.
func (s *Server) ObserveTick(r engine.TickReport) {
	s.mu.Lock()
	if r.View != nil {
		s.view = *r.View
	}
	s.last = r
	s.last.View = nil
	s.hasReport = true
	s.mu.Unlock()

	if s.viewers.Len() == 0 {
		return
	}
	data, err := json.Marshal(r)
	if err != nil {
		slog.Warn("encode tick report", "error", err)
		return
	}
	s.viewers.Broadcast(data)
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/npcs", s.handleNPCs)
	mux.HandleFunc("/api/v1/npc/", s.handleNPCDetail)
	mux.HandleFunc("/api/v1/objects", s.handleObjects)
	mux.HandleFunc("/api/v1/telemetry", s.handleTelemetry)
	mux.HandleFunc("/api/v1/facts", RateLimitMiddleware(s.Limiter, s.handleFacts))
	mux.HandleFunc("/api/v1/ws", RateLimitMiddleware(s.Limiter, s.handleViewer))

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))
	mux.HandleFunc("/api/v1/intervention", s.adminOnly(s.handleIntervention))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.stop = make(chan struct{})
	slog.Info("HTTP API starting", "addr", s.Addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	go s.pruneLimiter()
}

// Shutdown stops the listener and disconnects viewers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.viewers.CloseAll()
	if s.srv == nil {
		return nil
	}
	close(s.stop)
	return s.srv.Shutdown(ctx)
}

func (s *Server) pruneLimiter() {
	t := time.NewTicker(10 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.Limiter.Prune(time.Hour)
		case <-s.stop:
			return
		}
	}
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no RUMORMILL_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) snapshot() (engine.TickReport, engine.WorldView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.view, s.hasReport
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	last, _, _ := s.snapshot()
	writeJSON(w, map[string]any{
		"name":     s.WorldName,
		"run_id":   s.RunID,
		"tick":     s.Eng.Tick(),
		"sim_time": engine.SimTime(s.Eng.Tick()),
		"speed":    s.Eng.Speed(),
		"running":  s.Eng.Running(),
		"alive":    last.Alive,
		"viewers":  s.viewers.Len(),
		"totals":   last.Totals,
	})
}

type npcSummary struct {
	ID                entity.ID `json:"id"`
	Name              string    `json:"name"`
	X                 int       `json:"x"`
	Y                 int       `json:"y"`
	Facing            string    `json:"facing"`
	Health            float32   `json:"health"`
	Hunger            float32   `json:"hunger"`
	Fatigue           float32   `json:"fatigue"`
	JusticePerception float32   `json:"justice_perception"`
	PrivateFood       int       `json:"private_food"`
	Memories          int       `json:"memories"`
	Heard             int       `json:"heard"`
}

// handleNPCs lists the living population from the latest view. Optional
// ?sort=hunger|memories orders the list descending.
func (s *Server) handleNPCs(w http.ResponseWriter, r *http.Request) {
	_, view, _ := s.snapshot()
	out := make([]npcSummary, 0, len(view.NPCs))
	for _, n := range view.NPCs {
		heard := 0
		for _, m := range n.Memories {
			if m.IsHeard {
				heard++
			}
		}
		out = append(out, npcSummary{
			ID:                n.ID,
			Name:              n.Name,
			X:                 n.Position.X,
			Y:                 n.Position.Y,
			Facing:            n.Facing,
			Health:            n.Health,
			Hunger:            n.Needs.Hunger,
			Fatigue:           n.Needs.Fatigue,
			JusticePerception: n.JusticePerception,
			PrivateFood:       n.PrivateFood,
			Memories:          len(n.Memories),
			Heard:             heard,
		})
	}
	switch r.URL.Query().Get("sort") {
	case "hunger":
		sort.SliceStable(out, func(i, j int) bool { return out[i].Hunger > out[j].Hunger })
	case "memories":
		sort.SliceStable(out, func(i, j int) bool { return out[i].Memories > out[j].Memories })
	}
	writeJSON(w, map[string]any{"tick": view.Tick, "npcs": out})
}

// handleNPCDetail returns one NPC with its memories (GET /api/v1/npc/:id).
func (s *Server) handleNPCDetail(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, "/api/v1/npc/")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		http.Error(w, "invalid npc id", http.StatusBadRequest)
		return
	}
	_, view, _ := s.snapshot()
	for _, n := range view.NPCs {
		if n.ID == entity.ID(id) {
			writeJSON(w, map[string]any{"tick": view.Tick, "npc": n})
			return
		}
	}
	http.Error(w, "npc not found", http.StatusNotFound)
}

// handleObjects lists placed objects. ?kind=stock or ?kind=predator filters.
func (s *Server) handleObjects(w http.ResponseWriter, r *http.Request) {
	_, view, _ := s.snapshot()
	kind := r.URL.Query().Get("kind")
	out := make([]engine.ObjectView, 0, len(view.Objects))
	for _, o := range view.Objects {
		switch {
		case kind == "stock" && !o.Stock:
			continue
		case kind == "predator" && !o.Predator:
			continue
		}
		out = append(out, o)
	}
	writeJSON(w, map[string]any{"tick": view.Tick, "objects": out})
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	last, _, ok := s.snapshot()
	if !ok {
		http.Error(w, "no tick processed yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, last)
}

func (s *Server) handleFacts(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, 500)
	}
	facts, err := s.DB.RecentFacts(limit)
	if err != nil {
		slog.Error("load facts", "error", err)
		http.Error(w, "failed to load facts", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"facts": facts})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.SaveRequested.Store(true)
	writeJSONStatus(w, http.StatusAccepted, map[string]any{
		"tick":    s.Eng.Tick(),
		"message": "save scheduled for the next tick",
	})
}

func (s *Server) handleIntervention(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req engine.Intervention
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	switch req.Kind {
	case engine.KindProvision, engine.KindRation:
		if req.Units <= 0 || req.Units > maxInterventionUnits {
			http.Error(w, "units must be 1-100", http.StatusBadRequest)
			return
		}
	case engine.KindReleasePredator, engine.KindCullPredator:
	default:
		http.Error(w, "unknown intervention kind (use: provision, ration, release_predator, cull_predator)", http.StatusBadRequest)
		return
	}

	reply := s.Sim.Interventions.Submit(req)
	ctx, cancel := context.WithTimeout(r.Context(), interventionTimeout)
	defer cancel()
	select {
	case res := <-reply:
		if !res.Success {
			http.Error(w, res.Details, http.StatusBadRequest)
			return
		}
		writeJSON(w, res)
	case <-ctx.Done():
		writeJSONStatus(w, http.StatusAccepted, map[string]any{"success": false, "details": "queued; simulation has not applied it yet"})
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
