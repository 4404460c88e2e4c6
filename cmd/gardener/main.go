// Command gardener runs the autonomous steward for a rumormill village.
// It observes world state, picks at most one intervention by fixed rules,
// and acts via the admin intervention API.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/talgya/rumormill/internal/config"
	"github.com/talgya/rumormill/internal/gardener"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Configuration from environment.
	apiURL := envOrDefault("RUMORMILL_API_URL", "http://localhost:8080")
	adminKey := os.Getenv(config.EnvAdminKey)
	intervalMin := envIntOrDefault("GARDENER_INTERVAL", 30)
	memoryPath := envOrDefault("GARDENER_MEMORY", gardener.DefaultMemoryFile)

	if adminKey == "" {
		slog.Error(config.EnvAdminKey + " is required")
		os.Exit(1)
	}

	interval := time.Duration(intervalMin) * time.Minute

	slog.Info("rumormill gardener starting",
		"api_url", apiURL,
		"interval", interval,
		"memory", memoryPath,
	)

	observer := gardener.NewObserver(apiURL)
	actor := gardener.NewActor(apiURL, adminKey)
	mem := gardener.LoadMemory(memoryPath)

	slog.Info("waiting for worldsim API...")
	waitForAPI(apiURL)

	runCycle(observer, actor, mem)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			runCycle(observer, actor, mem)
		case sig := <-sigCh:
			slog.Info("received signal, shutting down", "signal", sig)
			fmt.Println("Gardener stopped.")
			return
		}
	}
}

// runCycle executes one observe → triage → decide → act cycle.
func runCycle(observer *gardener.Observer, actor *gardener.Actor, mem *gardener.CycleMemory) {
	slog.Info("gardener cycle starting")

	snap, err := observer.Observe()
	if err != nil {
		slog.Error("observation failed", "error", err)
		return
	}
	health := gardener.Triage(snap, mem.Last())
	slog.Info("observation complete",
		"tick", snap.Status.Tick,
		"alive", health.Alive,
		"hungry", health.Hungry,
		"starving", health.Starving,
		"empty_stocks", health.EmptyStocks,
		"predators", health.Predators,
		"crisis", health.CrisisLevel,
	)

	decision := gardener.Decide(snap, health, mem)
	slog.Info("decision made", "action", decision.Action, "rationale", decision.Rationale)

	defer func() {
		mem.Record(gardener.CycleRecord{
			RunID:       snap.Status.RunID,
			Tick:        snap.Status.Tick,
			Action:      decision.Action,
			Target:      decision.Target(),
			Alive:       health.Alive,
			Hungry:      health.Hungry,
			Starving:    health.Starving,
			CrisisLevel: health.CrisisLevel,
			Rationale:   decision.Rationale,
		})
		if err := mem.Save(); err != nil {
			slog.Error("saving gardener memory", "error", err)
		}
	}()

	if decision.Intervention == nil {
		slog.Info("gardener cycle complete, no intervention")
		return
	}

	result, err := actor.Act(decision.Intervention)
	if err != nil {
		slog.Error("intervention failed", "error", err)
		return
	}
	slog.Info("intervention executed",
		"kind", decision.Intervention.Kind,
		"target", decision.Target(),
		"success", result.Success,
		"queued", result.Queued,
		"details", result.Details,
	)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultVal
}

// waitForAPI polls the worldsim status endpoint with exponential backoff
// until it responds. Exits after 5 minutes if the API never becomes ready.
func waitForAPI(apiURL string) {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(5 * time.Minute)

	for {
		resp, err := http.Get(apiURL + "/api/v1/status")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				slog.Info("worldsim API is ready")
				return
			}
		}
		if time.Now().After(deadline) {
			slog.Error("worldsim API did not become ready within 5 minutes")
			os.Exit(1)
		}
		slog.Info("worldsim not ready, retrying...", "backoff", backoff)
		time.Sleep(backoff)
		backoff = min(backoff*2, maxBackoff)
	}
}
