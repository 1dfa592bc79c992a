package domain

import (
	"slices"

	"github.com/google/uuid"
)

// Actor is the caller on whose behalf a handler runs.
type Actor struct {
	PartyID   int
	PartyUUID uuid.UUID
	Scopes    []string
	URN       string
}

const (
	ScopeServiceOwner = "altinn:serviceowner"
	ScopeRecipient    = "altinn:correspondence.read"
	ScopeMaintenance  = "altinn:correspondence.maintenance"
)

func (a Actor) HasScope(scope string) bool { return slices.Contains(a.Scopes, scope) }

func (a Actor) IsServiceOwner() bool { return a.HasScope(ScopeServiceOwner) }

// PartyRef returns the party uuid as a pointer for status rows, nil when unset.
func (a *Actor) PartyRef() *uuid.UUID {
	if a == nil || a.PartyUUID == uuid.Nil {
		return nil
	}
	id := a.PartyUUID
	return &id
}
