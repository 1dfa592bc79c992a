package legacy

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"correspondence/internal/providers/transport"
)

type SyncEventType string

const (
	SyncRead    SyncEventType = "Read"
	SyncConfirm SyncEventType = "Confirm"
	SyncArchive SyncEventType = "Archive"
	SyncDelete  SyncEventType = "Delete"
	SyncRestore SyncEventType = "Restore"
)

// Client mirrors recipient actions into the legacy platform.
type Client struct {
	HTTP *transport.Client
}

func New(c *transport.Client) *Client { return &Client{HTTP: c} }

func (c *Client) SyncEvent(ctx context.Context, legacyID int64, partyID int, at time.Time, ev SyncEventType) error {
	body := map[string]any{
		"partyId":   partyID,
		"eventType": string(ev),
		"timestamp": at.UTC(),
	}
	return c.HTTP.Do(ctx, http.MethodPost, "/legacy/api/v1/correspondence/"+strconv.FormatInt(legacyID, 10)+"/sync", body, nil)
}
