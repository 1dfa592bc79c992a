package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"correspondence/internal/domain"
)

type ConditionStore interface {
	GetCorrespondence(ctx context.Context, id uuid.UUID) (domain.Correspondence, error)
}

// NotificationCondition answers the notification service before it sends a
// reminder: only published correspondences that nobody has read or purged
// still warrant one.
type NotificationCondition struct {
	Store ConditionStore
}

type conditionResponse struct {
	SendNotification bool `json:"sendNotification"`
}

func (n *NotificationCondition) Register(r *mux.Router) {
	r.HandleFunc("/correspondence/api/v1/correspondence/{id}/notification/check", n.handleCheck).Methods(http.MethodGet)
}

func (n *NotificationCondition) handleCheck(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := n.Store.GetCorrespondence(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusOK, conditionResponse{})
		return
	}
	if err != nil {
		slog.Error("notification condition lookup failed", "err", err, "correspondence_id", id)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, conditionResponse{SendNotification: shouldNotify(c)})
}

func shouldNotify(c domain.Correspondence) bool {
	if !c.HasReached(domain.StatusPublished) || c.HasReached(domain.StatusRead) {
		return false
	}
	return !c.HasReached(domain.StatusDeletedByRecipient) && !c.HasReached(domain.StatusDeletedByAltinn)
}
