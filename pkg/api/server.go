package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pactown/pactown/pkg/metrics"
	"github.com/pactown/pactown/pkg/types"
)

// StatusSource provides point-in-time service statuses. The
// orchestrator engine implements it.
type StatusSource interface {
	Status(ctx context.Context) []types.ServiceStatus
}

// Server is the optional admin HTTP surface: liveness, service
// statuses, and Prometheus metrics.
type Server struct {
	source    StatusSource
	ecosystem string
	version   string
	mux       *http.ServeMux
}

// NewServer creates an admin server reporting on the given ecosystem.
func NewServer(source StatusSource, ecosystem, version string) *Server {
	mux := http.NewServeMux()
	s := &Server{
		source:    source,
		ecosystem: ecosystem,
		version:   version,
		mux:       mux,
	}

	mux.HandleFunc("/healthz", s.healthzHandler)
	mux.HandleFunc("/status", s.statusHandler)
	mux.Handle("/metrics", metrics.Handler())

	return s
}

// Start serves the admin endpoints on addr. It blocks until the
// listener fails.
func (s *Server) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// GetHandler returns the HTTP handler for embedding in other servers.
func (s *Server) GetHandler() http.Handler {
	return s.mux
}

// HealthzResponse is the liveness check response.
type HealthzResponse struct {
	Status    string    `json:"status"`
	Ecosystem string    `json:"ecosystem,omitempty"`
	Version   string    `json:"version,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusResponse reports every declared service.
type StatusResponse struct {
	Ecosystem string          `json:"ecosystem"`
	Timestamp time.Time       `json:"timestamp"`
	Services  []ServiceStatus `json:"services"`
}

// ServiceStatus is the wire form of one service status.
type ServiceStatus struct {
	Name           string  `json:"name"`
	State          string  `json:"state"`
	Port           int     `json:"port,omitempty"`
	PID            int     `json:"pid,omitempty"`
	Health         string  `json:"health"`
	UptimeSeconds  float64 `json:"uptime_seconds,omitempty"`
	ResponseTimeMS float64 `json:"response_time_ms,omitempty"`
}

// healthzHandler reports that the orchestrator process is alive.
func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, HealthzResponse{
		Status:    "ok",
		Ecosystem: s.ecosystem,
		Version:   s.version,
		Timestamp: time.Now(),
	})
}

// statusHandler reports per-service state, including a live health
// probe for running services.
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.source == nil {
		http.Error(w, "Status source not initialized", http.StatusServiceUnavailable)
		return
	}

	statuses := s.source.Status(r.Context())
	services := make([]ServiceStatus, 0, len(statuses))
	for _, st := range statuses {
		services = append(services, ServiceStatus{
			Name:           st.Name,
			State:          string(st.State),
			Port:           st.Port,
			PID:            st.PID,
			Health:         st.Health,
			UptimeSeconds:  st.Uptime.Seconds(),
			ResponseTimeMS: st.ResponseTimeMS,
		})
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Ecosystem: s.ecosystem,
		Timestamp: time.Now(),
		Services:  services,
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
