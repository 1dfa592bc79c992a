package register

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"correspondence/internal/cache"
	"correspondence/internal/domain"
	"correspondence/internal/providers/transport"
)

type Party struct {
	PartyID   int       `json:"partyId"`
	PartyUUID uuid.UUID `json:"partyUuid"`
	Name      string    `json:"name"`
	IsDeleted bool      `json:"isDeleted"`
}

// Client resolves parties by organization or national identity number. Hits
// are cached for TTL; lookup failures are not.
type Client struct {
	HTTP  *transport.Client
	Cache cache.Cache
	TTL   time.Duration
}

func New(c *transport.Client, cc cache.Cache, ttl time.Duration) *Client {
	return &Client{HTTP: c, Cache: cc, TTL: ttl}
}

func (c *Client) LookUpParty(ctx context.Context, identifier string) (Party, error) {
	key := "party:" + identifier
	if c.Cache != nil {
		if v, ok, err := c.Cache.Get(ctx, key); err != nil {
			slog.Warn("party cache read failed", "err", err)
		} else if ok {
			var p Party
			if json.Unmarshal([]byte(v), &p) == nil {
				return p, nil
			}
		}
	}

	var p Party
	err := c.HTTP.Do(ctx, http.MethodGet, "/register/api/v1/parties/lookup?identifier="+url.QueryEscape(identifier), nil, &p)
	if transport.IsStatus(err, http.StatusNotFound) {
		return Party{}, fmt.Errorf("party %s: %w", identifier, domain.ErrNotFound)
	}
	if err != nil {
		return Party{}, err
	}

	if c.Cache != nil {
		if b, err := json.Marshal(p); err == nil {
			if err := c.Cache.Set(ctx, key, string(b), c.TTL); err != nil {
				slog.Warn("party cache write failed", "err", err)
			}
		}
	}
	return p, nil
}

func (c *Client) LookUpName(ctx context.Context, identifier string) (string, error) {
	p, err := c.LookUpParty(ctx, identifier)
	if err != nil {
		return "", err
	}
	return p.Name, nil
}
