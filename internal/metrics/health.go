package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Pinger is any dependency that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type probe struct {
	OK        bool    `json:"ok"`
	LatencyMs float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

// HealthStatus tracks loop liveness and the latest dependency probes.
type HealthStatus struct {
	mu sync.RWMutex

	startedAt    time.Time
	lastTickTime time.Time
	running      bool
	deps         map[string]Pinger
	probes       map[string]probe
	lastCheckAt  time.Time
}

// NewHealthStatus returns a health status with no dependencies.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		startedAt: time.Now(),
		running:   true,
		deps:      make(map[string]Pinger),
		probes:    make(map[string]probe),
	}
}

// AddDependency registers a named dependency to probe.
func (h *HealthStatus) AddDependency(name string, p Pinger) {
	h.mu.Lock()
	h.deps[name] = p
	h.mu.Unlock()
}

// SetLastTick records the completion of a tick and whether the governor
// still runs.
func (h *HealthStatus) SetLastTick(t time.Time, running bool) {
	h.mu.Lock()
	h.lastTickTime = t
	h.running = running
	h.mu.Unlock()
}

// Check probes every dependency once.
func (h *HealthStatus) Check(ctx context.Context) {
	h.mu.RLock()
	deps := make(map[string]Pinger, len(h.deps))
	for k, v := range h.deps {
		deps[k] = v
	}
	h.mu.RUnlock()

	results := make(map[string]probe, len(deps))
	for name, p := range deps {
		start := time.Now()
		err := p.Ping(ctx)
		pr := probe{OK: err == nil, LatencyMs: float64(time.Since(start).Microseconds()) / 1000.0}
		if err != nil {
			pr.Error = err.Error()
		}
		results[name] = pr
	}

	h.mu.Lock()
	h.probes = results
	h.lastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs Check every interval until ctx is done.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				h.Check(probeCtx)
				cancel()
			}
		}
	}()
}

// ServeHTTP reports health as JSON. Any failed probe degrades the status
// to 503.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	for _, p := range h.probes {
		if !p.OK {
			overallStatus = "degraded"
			httpCode = http.StatusServiceUnavailable
		}
	}
	if !h.running && overallStatus == "healthy" {
		overallStatus = "stopped"
	}

	tickAge := ""
	lastTick := ""
	if !h.lastTickTime.IsZero() {
		tickAge = time.Since(h.lastTickTime).Round(time.Millisecond).String()
		lastTick = h.lastTickTime.Format(time.RFC3339)
	}
	lastCheck := ""
	if !h.lastCheckAt.IsZero() {
		lastCheck = h.lastCheckAt.Format(time.RFC3339)
	}

	status := struct {
		Status       string           `json:"status"`
		Uptime       string           `json:"uptime"`
		Running      bool             `json:"running"`
		LastTickTime string           `json:"last_tick_time"`
		TickAge      string           `json:"tick_age"`
		Dependencies map[string]probe `json:"dependencies"`
		LastCheckAt  string           `json:"last_check_at"`
	}{
		Status:       overallStatus,
		Uptime:       time.Since(h.startedAt).Round(time.Second).String(),
		Running:      h.running,
		LastTickTime: lastTick,
		TickAge:      tickAge,
		Dependencies: h.probes,
		LastCheckAt:  lastCheck,
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}
