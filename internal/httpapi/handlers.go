package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"correspondence/internal/domain"
	"correspondence/internal/observability"
	"correspondence/internal/store"
)

const jobsPrefix = "/v1/jobs/"

type JobStore interface {
	GetJob(ctx context.Context, id string) (store.ScheduledJob, error)
}

// JobsAPI exposes read-only job state on the worker's ops port.
type JobsAPI struct {
	Store JobStore
}

type jobView struct {
	ID            string          `json:"id"`
	Kind          string          `json:"kind"`
	Status        string          `json:"status"`
	Payload       json.RawMessage `json:"payload"`
	RunAt         time.Time       `json:"runAt"`
	DependsOn     string          `json:"dependsOn,omitempty"`
	OnlyOnSuccess bool            `json:"onlyOnSuccess,omitempty"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"lastError,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func (a *JobsAPI) Register(mux *http.ServeMux) {
	mux.HandleFunc(jobsPrefix, a.handleGetJob) // /v1/jobs/{id}
}

func (a *JobsAPI) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, jobsPrefix)
	if id == "" || strings.Contains(id, "/") {
		observability.APIRequests.WithLabelValues("/v1/jobs/{id}", "400").Inc()
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}
	j, err := a.Store.GetJob(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		observability.APIRequests.WithLabelValues("/v1/jobs/{id}", "404").Inc()
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("get job failed", "err", err, "job_id", id)
		observability.APIRequests.WithLabelValues("/v1/jobs/{id}", "502").Inc()
		http.Error(w, "db error", http.StatusBadGateway)
		return
	}

	observability.APIRequests.WithLabelValues("/v1/jobs/{id}", "200").Inc()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(jobView{
		ID:            j.ID,
		Kind:          j.Kind,
		Status:        string(j.Status),
		Payload:       j.Payload,
		RunAt:         j.RunAt,
		DependsOn:     j.DependsOn,
		OnlyOnSuccess: j.OnlyOnSuccess,
		Attempts:      j.Attempts,
		LastError:     j.LastError,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
	})
}
