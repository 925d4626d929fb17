package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthStatus is the /healthz response body: enough for an operator to
// attribute a liveness flip to a specific process and its configured
// concurrency bound without cross-referencing logs.
type healthStatus struct {
	Healthy                 bool   `json:"healthy"`
	BuildID                 string `json:"build_id"`
	MaxConcurrentActivities int    `json:"max_concurrent_activities"`
}

// healthServer exposes /healthz (liveness, per spec.md §4.7: true only once
// the worker is registered and started) and /metrics (Prometheus exposition,
// when a PromMetrics registry is configured) on a dedicated port, separate
// from httpapi's REST surface.
type healthServer struct {
	addr string
	host *Host
	srv  *http.Server
}

func newHealthServer(addr string, h *Host) *healthServer {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := healthStatus{
			Healthy:                 h.Healthy(),
			BuildID:                 h.BuildID(),
			MaxConcurrentActivities: h.opts.MaxConcurrentActivities,
		}
		w.Header().Set("Content-Type", "application/json")
		if !status.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(status)
	})
	if h.opts.Metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(h.opts.Metrics.Registry(), promhttp.HandlerOpts{}))
	}
	return &healthServer{
		addr: addr,
		host: h,
		srv:  &http.Server{Addr: addr, Handler: mux},
	}
}

// ListenAndServe blocks until the server stops, returning nil on a clean
// Shutdown and any other error otherwise.
func (s *healthServer) ListenAndServe(_ context.Context) error {
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *healthServer) Shutdown(ctx context.Context) {
	_ = s.srv.Shutdown(ctx)
}
