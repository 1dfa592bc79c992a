package httpserver

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"correspondence/internal/domain"
)

const (
	HeaderPartyID   = "X-Party-Id"
	HeaderPartyUUID = "X-Party-Uuid"
	HeaderPartyURN  = "X-Party-Urn"
	HeaderScopes    = "X-Scopes"
)

// actorFrom reads the caller from headers set by the gateway in front of the
// api. The gateway authenticates; nothing here is verified.
func actorFrom(r *http.Request) (domain.Actor, bool) {
	var a domain.Actor
	if v := r.Header.Get(HeaderPartyID); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return domain.Actor{}, false
		}
		a.PartyID = id
	}
	if v := r.Header.Get(HeaderPartyUUID); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return domain.Actor{}, false
		}
		a.PartyUUID = id
	}
	a.URN = r.Header.Get(HeaderPartyURN)
	a.Scopes = strings.FieldsFunc(r.Header.Get(HeaderScopes), func(c rune) bool { return c == ' ' || c == ',' })
	return a, true
}
