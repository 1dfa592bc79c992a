package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"correspondence/internal/domain"
	"correspondence/internal/sweep"
)

type Correspondences interface {
	Fetch(ctx context.Context, id uuid.UUID, actor domain.Actor) (domain.Correspondence, error)
	MarkRead(ctx context.Context, id uuid.UUID, actor domain.Actor) error
	Confirm(ctx context.Context, id uuid.UUID, actor domain.Actor) error
	Archive(ctx context.Context, id uuid.UUID, actor domain.Actor) error
	Purge(ctx context.Context, id uuid.UUID, actor domain.Actor) error
	DispatchNotifications(ctx context.Context, id uuid.UUID) (string, error)
}

type Sweeps interface {
	RunSweep(ctx context.Context, kind sweep.Kind, windowSize int, dryRun bool) (string, error)
}

type Jobs interface {
	Delete(ctx context.Context, id string) (bool, error)
}

type API struct {
	Svc    Correspondences
	Sweeps Sweeps
	Jobs   Jobs
}

type actionResponse struct {
	CorrespondenceID string `json:"correspondenceId"`
	Result           string `json:"result"`
}

type jobResponse struct {
	JobID string `json:"jobId"`
}

type fetchResponse struct {
	CorrespondenceID string `json:"correspondenceId"`
	ResourceID       string `json:"resourceId"`
	Status           string `json:"status"`
	Title            string `json:"title"`
	Language         string `json:"language"`
}

func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/v1/correspondences/{id}/fetch", a.handleFetch).Methods(http.MethodPost)
	r.HandleFunc("/v1/correspondences/{id}/read", a.action("read", a.Svc.MarkRead)).Methods(http.MethodPost)
	r.HandleFunc("/v1/correspondences/{id}/confirm", a.action("confirm", a.Svc.Confirm)).Methods(http.MethodPost)
	r.HandleFunc("/v1/correspondences/{id}/archive", a.action("archive", a.Svc.Archive)).Methods(http.MethodPost)
	r.HandleFunc("/v1/correspondences/{id}/purge", a.action("purge", a.Svc.Purge)).Methods(http.MethodPost)
	r.HandleFunc("/v1/correspondences/{id}/notifications/dispatch", a.handleDispatch).Methods(http.MethodPost)
	r.HandleFunc("/v1/sweeps/{kind}", a.handleSweep).Methods(http.MethodPost)
	r.HandleFunc("/v1/jobs/{id}", a.handleDeleteJob).Methods(http.MethodDelete)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, ErrInvalidID, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) action(name string, fn func(context.Context, uuid.UUID, domain.Actor) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		actor, ok := actorFrom(r)
		if !ok {
			http.Error(w, ErrInvalidActor, http.StatusBadRequest)
			return
		}

		result := "ok"
		if err := fn(r.Context(), id, actor); err != nil {
			if !errors.Is(err, domain.ErrAlreadyApplied) {
				writeError(w, name, err)
				return
			}
			result = "already_applied"
		}
		slog.Info("correspondence action", "action", name, "correspondence_id", id, "party_id", actor.PartyID, "result", result)
		writeJSON(w, http.StatusOK, actionResponse{CorrespondenceID: id.String(), Result: result})
	}
}

func (a *API) handleFetch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, ErrInvalidActor, http.StatusBadRequest)
		return
	}
	c, err := a.Svc.Fetch(r.Context(), id, actor)
	if err != nil {
		writeError(w, "fetch", err)
		return
	}
	resp := fetchResponse{
		CorrespondenceID: c.ID.String(),
		ResourceID:       c.ResourceID,
		Title:            c.Content.Title,
		Language:         c.Content.Language,
	}
	if h, ok := c.HighestStatus(); ok {
		resp.Status = h.Status.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleDispatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	jobID, err := a.Svc.DispatchNotifications(r.Context(), id)
	if err != nil {
		writeError(w, "dispatch notifications", err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobResponse{JobID: jobID})
}

func (a *API) handleSweep(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	windowSize := 0
	if v := q.Get("windowSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, ErrInvalidQuery, http.StatusBadRequest)
			return
		}
		windowSize = n
	}
	dryRun := false
	if v := q.Get("dryRun"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, ErrInvalidQuery, http.StatusBadRequest)
			return
		}
		dryRun = b
	}

	jobID, err := a.Sweeps.RunSweep(r.Context(), sweep.Kind(mux.Vars(r)["kind"]), windowSize, dryRun)
	if err != nil {
		writeError(w, "run sweep", err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobResponse{JobID: jobID})
}

func (a *API) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	deleted, err := a.Jobs.Delete(r.Context(), id)
	if err != nil {
		writeError(w, "delete job", err)
		return
	}
	if !deleted {
		http.Error(w, ErrNotFound, http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
