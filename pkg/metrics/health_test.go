package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetTracker(t *testing.T) {
	t.Helper()
	health = newTracker()
}

func registerCritical() {
	RegisterComponent("store", true, "")
	RegisterComponent("queue", true, "")
	RegisterComponent("api", true, "")
}

func serve(t *testing.T, handler http.HandlerFunc, path string) (*httptest.ResponseRecorder, HealthStatus) {
	t.Helper()
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var doc HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&doc))
	return rec, doc
}

func TestHealthAllSubsystemsUp(t *testing.T) {
	resetTracker(t)
	SetVersion("1.2.3")
	registerCritical()

	doc := GetHealth()
	assert.Equal(t, "healthy", doc.Status)
	assert.Equal(t, "1.2.3", doc.Version)
	assert.Len(t, doc.Components, 3)
	assert.Equal(t, "healthy", doc.Components["store"])
}

func TestHealthSurfacesSubsystemDetail(t *testing.T) {
	resetTracker(t)
	RegisterComponent("api", true, "")
	RegisterComponent("store", false, "bbolt not open")

	doc := GetHealth()
	assert.Equal(t, "unhealthy", doc.Status)
	assert.Equal(t, "unhealthy: bbolt not open", doc.Components["store"])
	assert.Equal(t, "healthy", doc.Components["api"])
}

func TestHealthNonCriticalSubsystemCounts(t *testing.T) {
	resetTracker(t)
	registerCritical()
	RegisterComponent("reporter", false, "smtp unreachable")

	// Health covers every registered subsystem, readiness only the
	// critical set.
	assert.Equal(t, "unhealthy", GetHealth().Status)
	assert.Equal(t, "ready", GetReadiness().Status)
}

func TestReadinessWaitsForRegistration(t *testing.T) {
	resetTracker(t)
	RegisterComponent("api", true, "")

	doc := GetReadiness()
	assert.Equal(t, "not_ready", doc.Status)
	assert.Contains(t, doc.Message, "waiting for")
	assert.Equal(t, "not registered", doc.Components["store"])
}

func TestReadinessCriticalSubsystemDown(t *testing.T) {
	resetTracker(t)
	registerCritical()
	UpdateComponent("store", false, "bbolt not open")

	doc := GetReadiness()
	assert.Equal(t, "not_ready", doc.Status)
	assert.Equal(t, "waiting for store", doc.Message)
	assert.Equal(t, "not ready: bbolt not open", doc.Components["store"])
}

func TestUpdateComponentRecovers(t *testing.T) {
	resetTracker(t)
	registerCritical()
	UpdateComponent("queue", false, "worker pool stopped")
	require.Equal(t, "not_ready", GetReadiness().Status)

	UpdateComponent("queue", true, "")
	assert.Equal(t, "ready", GetReadiness().Status)
}

func TestHealthHandlerStatusCodes(t *testing.T) {
	resetTracker(t)
	registerCritical()

	rec, doc := serve(t, HealthHandler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", doc.Status)

	UpdateComponent("store", false, "bbolt not open")
	rec, doc = serve(t, HealthHandler(), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", doc.Status)
}

func TestReadyHandlerStatusCodes(t *testing.T) {
	resetTracker(t)
	registerCritical()

	rec, doc := serve(t, ReadyHandler(), "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", doc.Status)

	resetTracker(t)
	rec, doc = serve(t, ReadyHandler(), "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not_ready", doc.Status)
}

func TestLivenessHandler(t *testing.T) {
	resetTracker(t)

	rec := httptest.NewRecorder()
	LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "alive", body["status"])
	assert.NotEmpty(t, body["uptime"])
}
