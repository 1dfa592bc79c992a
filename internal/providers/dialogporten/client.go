package dialogporten

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"correspondence/internal/domain"
	"correspondence/internal/providers/transport"
)

type Dialog struct {
	ID        string     `json:"id"`
	Status    string     `json:"status"`
	Summary   string     `json:"summary"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Deleted   bool       `json:"deleted"`
	Confirmed bool       `json:"confirmed"`
}

type CreateRequest struct {
	ID               string            `json:"id,omitempty"`
	CorrespondenceID string            `json:"correspondenceId"`
	ServiceResource  string            `json:"serviceResource"`
	Party            string            `json:"party"`
	Sender           string            `json:"sender"`
	Title            string            `json:"title"`
	Summary          string            `json:"summary"`
	Language         string            `json:"language"`
	VisibleFrom      time.Time         `json:"visibleFrom"`
	DueAt            *time.Time        `json:"dueAt,omitempty"`
	ExpiresAt        *time.Time        `json:"expiresAt,omitempty"`
	ExtendedStatus   string            `json:"extendedStatus,omitempty"`
	Attributes       map[string]string `json:"attributes,omitempty"`
}

type Activity struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	PerformedBy string    `json:"performedBy"`
	CreatedAt   time.Time `json:"createdAt"`
	Description []string  `json:"description,omitempty"`
}

type Client struct {
	HTTP *transport.Client
}

func New(c *transport.Client) *Client { return &Client{HTTP: c} }

func dialogPath(id string) string {
	return "/dialogporten/api/v1/serviceowner/dialogs/" + url.PathEscape(id)
}

// Create is idempotent on req.ID: a dialog that already exists with that id
// is returned as created.
func (c *Client) Create(ctx context.Context, req CreateRequest) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.HTTP.Do(ctx, http.MethodPost, "/dialogporten/api/v1/serviceowner/dialogs", req, &out)
	if req.ID != "" && transport.IsStatus(err, http.StatusConflict) {
		return req.ID, nil
	}
	if err != nil {
		return "", err
	}
	if out.ID == "" {
		out.ID = req.ID
	}
	return out.ID, nil
}

// Get returns soft deleted dialogs too.
func (c *Client) Get(ctx context.Context, id string) (Dialog, error) {
	var d Dialog
	err := c.HTTP.Do(ctx, http.MethodGet, dialogPath(id), nil, &d)
	return d, notFound(err, id)
}

func (c *Client) PatchConfirmed(ctx context.Context, id string) error {
	return notFound(c.HTTP.Do(ctx, http.MethodPatch, dialogPath(id), map[string]any{"confirmed": true}, nil), id)
}

// SoftDelete reports false when the dialog is already deleted.
func (c *Client) SoftDelete(ctx context.Context, id string) (bool, error) {
	return applied(c.HTTP.Do(ctx, http.MethodDelete, dialogPath(id), nil, nil))
}

// Restore reports false when there is nothing to restore.
func (c *Client) Restore(ctx context.Context, id string) (bool, error) {
	return applied(c.HTTP.Do(ctx, http.MethodPost, dialogPath(id)+"/actions/restore", nil, nil))
}

// CreateActivity reports false when an activity with the same id exists.
func (c *Client) CreateActivity(ctx context.Context, id string, a Activity) (bool, error) {
	err := c.HTTP.Do(ctx, http.MethodPost, dialogPath(id)+"/activities", a, nil)
	if transport.IsStatus(err, http.StatusConflict) || transport.IsStatus(err, http.StatusUnprocessableEntity) {
		return false, nil
	}
	if err != nil {
		return false, notFound(err, id)
	}
	return true, nil
}

func (c *Client) RemoveExpiresAt(ctx context.Context, id string) error {
	return notFound(c.HTTP.Do(ctx, http.MethodPatch, dialogPath(id), map[string]any{"expiresAt": nil}, nil), id)
}

func (c *Client) SetSummary(ctx context.Context, id, summary string) error {
	return notFound(c.HTTP.Do(ctx, http.MethodPatch, dialogPath(id), map[string]any{"summary": summary}, nil), id)
}

func applied(err error) (bool, error) {
	if transport.IsStatus(err, http.StatusNotFound) || transport.IsStatus(err, http.StatusGone) {
		return false, nil
	}
	return err == nil, err
}

func notFound(err error, id string) error {
	if transport.IsStatus(err, http.StatusNotFound) {
		return fmt.Errorf("dialog %s: %w", id, domain.ErrNotFound)
	}
	return err
}
