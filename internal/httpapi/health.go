package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Check probes one named dependency.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func Healthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

// Readyz runs every check and reports each dependency, failing when any is
// down.
func Readyz(timeout time.Duration, checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		rep := readiness{Status: "ready", Checks: make(map[string]string, len(checks))}
		code := http.StatusOK
		for _, c := range checks {
			if err := c.Probe(ctx); err != nil {
				slog.Warn("readiness check failed", "dependency", c.Name, "err", err)
				rep.Checks[c.Name] = err.Error()
				rep.Status = "not_ready"
				code = http.StatusServiceUnavailable
				continue
			}
			rep.Checks[c.Name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(rep)
	}
}

// CheckAll returns the first failing dependency.
func CheckAll(ctx context.Context, checks ...Check) error {
	for _, c := range checks {
		if err := c.Probe(ctx); err != nil {
			return fmt.Errorf("%s: %w", c.Name, err)
		}
	}
	return nil
}
