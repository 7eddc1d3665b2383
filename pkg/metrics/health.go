package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// criticalParts are the subsystems that must be up before steward can
// accept submissions. Readiness is computed over exactly this set.
var criticalParts = []string{"store", "queue", "api"}

// HealthStatus is the JSON document served by /health and /ready.
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

type componentState struct {
	healthy bool
	detail  string
	changed time.Time
}

// tracker aggregates per-subsystem state for the health endpoints.
// Subsystems register once at startup and flip their state as they
// degrade or recover.
type tracker struct {
	mu      sync.RWMutex
	parts   map[string]componentState
	started time.Time
	version string
}

func newTracker() *tracker {
	return &tracker{
		parts:   make(map[string]componentState),
		started: time.Now(),
	}
}

var health = newTracker()

func (t *tracker) set(name string, healthy bool, detail string) {
	t.mu.Lock()
	t.parts[name] = componentState{healthy: healthy, detail: detail, changed: time.Now()}
	t.mu.Unlock()
}

// SetVersion records the build version echoed by health responses.
func SetVersion(version string) {
	health.mu.Lock()
	health.version = version
	health.mu.Unlock()
}

// RegisterComponent records a subsystem's initial state. The detail
// string is surfaced verbatim when the subsystem is down.
func RegisterComponent(name string, healthy bool, detail string) {
	health.set(name, healthy, detail)
}

// UpdateComponent flips a subsystem's state after startup.
func UpdateComponent(name string, healthy bool, detail string) {
	health.set(name, healthy, detail)
}

// GetHealth reports overall health: unhealthy when any registered
// subsystem is down, regardless of whether it is critical.
func GetHealth() HealthStatus {
	health.mu.RLock()
	defer health.mu.RUnlock()

	doc := HealthStatus{
		Status:     "healthy",
		Timestamp:  time.Now(),
		Components: make(map[string]string, len(health.parts)),
		Version:    health.version,
		Uptime:     time.Since(health.started).String(),
	}
	for name, part := range health.parts {
		if part.healthy {
			doc.Components[name] = "healthy"
			continue
		}
		doc.Status = "unhealthy"
		doc.Components[name] = "unhealthy: " + part.detail
	}
	return doc
}

// GetReadiness reports whether every critical subsystem is up. One
// that has not registered yet counts as not ready.
func GetReadiness() HealthStatus {
	health.mu.RLock()
	defer health.mu.RUnlock()

	doc := HealthStatus{
		Status:     "ready",
		Timestamp:  time.Now(),
		Components: make(map[string]string, len(criticalParts)),
		Version:    health.version,
		Uptime:     time.Since(health.started).String(),
	}
	for _, name := range criticalParts {
		part, registered := health.parts[name]
		switch {
		case !registered:
			doc.Status = "not_ready"
			doc.Message = "waiting for " + name + " initialization"
			doc.Components[name] = "not registered"
		case !part.healthy:
			doc.Status = "not_ready"
			doc.Message = "waiting for " + name
			doc.Components[name] = "not ready: " + part.detail
		default:
			doc.Components[name] = "ready"
		}
	}
	return doc
}

func serveStatus(w http.ResponseWriter, doc HealthStatus, up bool) {
	w.Header().Set("Content-Type", "application/json")
	code := http.StatusOK
	if !up {
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(doc)
}

// HealthHandler serves GET /health.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc := GetHealth()
		serveStatus(w, doc, doc.Status == "healthy")
	}
}

// ReadyHandler serves GET /ready.
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc := GetReadiness()
		serveStatus(w, doc, doc.Status == "ready")
	}
}

// LivenessHandler serves GET /live. It answers 200 whenever the
// process can still handle requests at all.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health.mu.RLock()
		uptime := time.Since(health.started).String()
		health.mu.RUnlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"uptime": uptime,
		})
	}
}
