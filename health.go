package meshkeep

import (
	"encoding/json"
	"net/http"
	"time"
)

// CheckResult represents the result of a health check.
type CheckResult struct {
	// Name is the name of the check.
	Name string `json:"name"`

	// Healthy indicates whether the check passed.
	Healthy bool `json:"healthy"`

	// Message provides additional context about the check result.
	Message string `json:"message,omitempty"`

	// Duration is how long the check took.
	Duration time.Duration `json:"duration_ns,omitempty"`
}

// HealthStatus represents the overall health status of the manager.
type HealthStatus struct {
	// Healthy indicates whether all checks passed.
	Healthy bool `json:"healthy"`

	// Checks contains the results of individual checks.
	Checks []CheckResult `json:"checks"`

	// Timestamp is when the health check was performed.
	Timestamp time.Time `json:"timestamp"`
}

// IsHealthy returns true if the manager is started and its event loop is
// accepting work. This is a quick check suitable for liveness probes.
func (m *Manager) IsHealthy() bool {
	m.startMu.Lock()
	started := m.started
	m.startMu.Unlock()
	return started
}

// ReadinessChecks performs detailed health checks and returns the results.
// This is suitable for readiness probes and debugging.
//
// Checks performed:
//   - manager_started: whether the event loop, accept pump, and periodic
//     tasks have been launched
//   - address_book: whether the optional address book is accessible
//   - connected_peers: the current CONNECTED count (informational)
func (m *Manager) ReadinessChecks() HealthStatus {
	status := HealthStatus{
		Healthy:   true,
		Checks:    make([]CheckResult, 0, 3),
		Timestamp: time.Now(),
	}

	start := time.Now()
	m.startMu.Lock()
	started := m.started
	m.startMu.Unlock()
	status.Checks = append(status.Checks, CheckResult{
		Name:     "manager_started",
		Healthy:  started,
		Message:  boolToMessage(started, "peer manager is running", "peer manager is not started"),
		Duration: time.Since(start),
	})
	if !started {
		status.Healthy = false
	}

	start = time.Now()
	bookOK := false
	bookMsg := "address book is not configured"
	if m.book != nil {
		_ = m.book.ListPeers()
		bookOK = true
		bookMsg = "address book is accessible"
	}
	status.Checks = append(status.Checks, CheckResult{
		Name:     "address_book",
		Healthy:  bookOK || m.book == nil,
		Message:  bookMsg,
		Duration: time.Since(start),
	})

	start = time.Now()
	var count int
	if started {
		m.submitWait(func() { count = len(m.connectedPeersLocked()) })
	}
	connMsg := "no connected peers"
	if count > 0 {
		connMsg = "has connected peers"
	}
	status.Checks = append(status.Checks, CheckResult{
		Name:     "connected_peers",
		Healthy:  true, // informational only
		Message:  connMsg,
		Duration: time.Since(start),
	})

	return status
}

// boolToMessage returns trueMsg if b is true, otherwise falseMsg.
func boolToMessage(b bool, trueMsg, falseMsg string) string {
	if b {
		return trueMsg
	}
	return falseMsg
}

// HealthHandler returns an http.Handler that serves health check responses.
// The handler responds with:
//   - 200 OK if the manager is healthy
//   - 503 Service Unavailable if the manager is unhealthy
//
// The response body contains a JSON representation of HealthStatus.
//
// Example usage:
//
//	http.Handle("/health", meshkeep.HealthHandler(manager))
func HealthHandler(m *Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := m.ReadinessChecks()

		w.Header().Set("Content-Type", "application/json")
		if status.Healthy {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		json.NewEncoder(w).Encode(status)
	})
}

// LivenessHandler returns an http.Handler that serves liveness check
// responses. This is a quick check that returns:
//   - 200 OK if the manager is alive
//   - 503 Service Unavailable if the manager is not alive
//
// Unlike HealthHandler, this does not perform detailed checks.
//
// Example usage:
//
//	http.Handle("/live", meshkeep.LivenessHandler(manager))
func LivenessHandler(m *Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		healthy := m.IsHealthy()

		w.Header().Set("Content-Type", "application/json")
		if healthy {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"healthy":true}`))
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"healthy":false}`))
		}
	})
}
