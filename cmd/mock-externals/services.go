package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"correspondence/internal/providers/dialogporten"
	"correspondence/internal/providers/notifications"
	"correspondence/internal/providers/register"
)

var partyNamespace = uuid.MustParse("8a1f3c52-0d4e-4b7a-9c61-2f5e7d9b0a13")

type shipment struct {
	order     notifications.OrderRequest
	createdAt time.Time
}

type state struct {
	mu         sync.Mutex
	dialogs    map[string]*dialogporten.Dialog
	activities map[string]bool
	orders     map[string]string // idempotency id -> shipment id
	shipments  map[string]shipment
}

func newState() *state {
	return &state{
		dialogs:    map[string]*dialogporten.Dialog{},
		activities: map[string]bool{},
		orders:     map[string]string{},
		shipments:  map[string]shipment{},
	}
}

func (s *server) routes(r *mux.Router) {
	d := r.PathPrefix("/dialogporten/api/v1/serviceowner/dialogs").Subrouter()
	d.HandleFunc("", s.createDialog).Methods(http.MethodPost)
	d.HandleFunc("/{id}", s.getDialog).Methods(http.MethodGet)
	d.HandleFunc("/{id}", s.patchDialog).Methods(http.MethodPatch)
	d.HandleFunc("/{id}", s.deleteDialog).Methods(http.MethodDelete)
	d.HandleFunc("/{id}/actions/restore", s.restoreDialog).Methods(http.MethodPost)
	d.HandleFunc("/{id}/activities", s.createActivity).Methods(http.MethodPost)

	r.HandleFunc("/notifications/api/v1/future/orders", s.createOrder).Methods(http.MethodPost)
	r.HandleFunc("/notifications/api/v1/future/shipment/{id}", s.getShipment).Methods(http.MethodGet)

	r.HandleFunc("/register/api/v1/parties/lookup", s.lookUpParty).Methods(http.MethodGet)

	r.HandleFunc("/legacy/api/v1/correspondence/{id}/sync", s.syncLegacy).Methods(http.MethodPost)
}

func (s *server) createDialog(w http.ResponseWriter, r *http.Request) {
	var req dialogporten.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if _, ok := s.state.dialogs[id]; ok {
		writeError(w, http.StatusConflict, "dialog exists")
		return
	}
	s.state.dialogs[id] = &dialogporten.Dialog{
		ID:        id,
		Status:    "New",
		Summary:   req.Summary,
		ExpiresAt: req.ExpiresAt,
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *server) dialog(w http.ResponseWriter, r *http.Request) (*dialogporten.Dialog, bool) {
	d, ok := s.state.dialogs[mux.Vars(r)["id"]]
	if !ok {
		writeError(w, http.StatusNotFound, "dialog not found")
	}
	return d, ok
}

func (s *server) getDialog(w http.ResponseWriter, r *http.Request) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if d, ok := s.dialog(w, r); ok {
		writeJSON(w, http.StatusOK, d)
	}
}

func (s *server) patchDialog(w http.ResponseWriter, r *http.Request) {
	var patch map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	d, ok := s.dialog(w, r)
	if !ok {
		return
	}
	if v, ok := patch["confirmed"]; ok {
		_ = json.Unmarshal(v, &d.Confirmed)
	}
	if v, ok := patch["summary"]; ok {
		_ = json.Unmarshal(v, &d.Summary)
	}
	if v, ok := patch["expiresAt"]; ok && string(v) == "null" {
		d.ExpiresAt = nil
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) deleteDialog(w http.ResponseWriter, r *http.Request) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	d, ok := s.dialog(w, r)
	if !ok {
		return
	}
	if d.Deleted {
		writeError(w, http.StatusGone, "dialog deleted")
		return
	}
	d.Deleted = true
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) restoreDialog(w http.ResponseWriter, r *http.Request) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	d, ok := s.dialog(w, r)
	if !ok {
		return
	}
	if !d.Deleted {
		writeError(w, http.StatusNotFound, "dialog not deleted")
		return
	}
	d.Deleted = false
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) createActivity(w http.ResponseWriter, r *http.Request) {
	var a dialogporten.Activity
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if _, ok := s.dialog(w, r); !ok {
		return
	}
	if s.state.activities[a.ID] {
		writeError(w, http.StatusConflict, "activity exists")
		return
	}
	s.state.activities[a.ID] = true
	w.WriteHeader(http.StatusCreated)
}

func (s *server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req notifications.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.IdempotencyID == "" {
		writeError(w, http.StatusBadRequest, "idempotencyId is required")
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	shipmentID, ok := s.state.orders[req.IdempotencyID]
	if !ok {
		shipmentID = uuid.NewString()
		s.state.orders[req.IdempotencyID] = shipmentID
		s.state.shipments[shipmentID] = shipment{order: req, createdAt: time.Now()}
	}
	writeJSON(w, http.StatusCreated, notifications.OrderResponse{OrderID: req.IdempotencyID, ShipmentID: shipmentID})
}

func (s *server) getShipment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.state.mu.Lock()
	sh, ok := s.state.shipments[id]
	s.state.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "shipment not found")
		return
	}

	status := notifications.ShipmentStatus{ShipmentID: id, Status: "Order_Processing"}
	sendAt := sh.order.RequestedSendTime
	if sendAt.Before(sh.createdAt) {
		sendAt = sh.createdAt
	}
	if time.Since(sendAt) >= s.cfg.DeliveryDelay {
		status.Status = "Order_Completed"
		status.Recipients = []notifications.RecipientStatus{deliveredTo(sh.order)}
	}
	writeJSON(w, http.StatusOK, status)
}

func deliveredTo(o notifications.OrderRequest) notifications.RecipientStatus {
	rs := notifications.RecipientStatus{Channel: notifications.ChannelEmail, Status: "Email_Delivered", LastUpdate: time.Now().UTC()}
	if strings.HasPrefix(strings.ToLower(o.Channel), notifications.ChannelSms) {
		rs.Channel = notifications.ChannelSms
		rs.Status = "SMS_Delivered"
	}
	switch {
	case o.Recipient.EmailAddress != "" && rs.Channel == notifications.ChannelEmail:
		rs.Destination = o.Recipient.EmailAddress
	case o.Recipient.MobileNumber != "" && rs.Channel == notifications.ChannelSms:
		rs.Destination = o.Recipient.MobileNumber
	case o.Recipient.OrganizationNumber != "":
		rs.Destination = "post@" + o.Recipient.OrganizationNumber + ".example.no"
	default:
		rs.Destination = "+4799" + o.Recipient.NationalIdentityNumber[max(0, len(o.Recipient.NationalIdentityNumber)-6):]
	}
	return rs
}

func (s *server) lookUpParty(w http.ResponseWriter, r *http.Request) {
	identifier := r.URL.Query().Get("identifier")
	if identifier == "" {
		writeError(w, http.StatusBadRequest, "identifier is required")
		return
	}
	if s.cfg.UnknownParties[identifier] {
		writeError(w, http.StatusNotFound, "party not found")
		return
	}
	id := uuid.NewSHA1(partyNamespace, []byte(identifier))
	writeJSON(w, http.StatusOK, register.Party{
		PartyID:   50000000 + int(id.ID()%1000000),
		PartyUUID: id,
		Name:      "Part " + identifier,
		IsDeleted: s.cfg.DeletedParties[identifier],
	})
}

func (s *server) syncLegacy(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PartyID   int       `json:"partyId"`
		EventType string    `json:"eventType"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	slog.Info("legacy sync received", "legacy_id", mux.Vars(r)["id"], "event_type", body.EventType, "party_id", body.PartyID)
	w.WriteHeader(http.StatusNoContent)
}
