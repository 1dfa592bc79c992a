package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"correspondence/internal/domain"
	"correspondence/internal/providers/dialogporten"
	"correspondence/internal/util"
)

type Store interface {
	GetCorrespondence(ctx context.Context, id uuid.UUID) (domain.Correspondence, error)
	DialogReference(ctx context.Context, id uuid.UUID) (dialogID string, migrated bool, err error)
	AddExternalReference(ctx context.Context, id uuid.UUID, ref domain.ExternalReference) error
}

type IdempotencyStore interface {
	TryClaim(ctx context.Context, correspondenceID uuid.UUID, attachmentID *uuid.UUID, action domain.Action) (bool, uuid.UUID, error)
	ReleaseClaim(ctx context.Context, keyID uuid.UUID) error
}

type Client interface {
	Create(ctx context.Context, req dialogporten.CreateRequest) (string, error)
	Get(ctx context.Context, id string) (dialogporten.Dialog, error)
	PatchConfirmed(ctx context.Context, id string) error
	SoftDelete(ctx context.Context, id string) (bool, error)
	Restore(ctx context.Context, id string) (bool, error)
	CreateActivity(ctx context.Context, id string, a dialogporten.Activity) (bool, error)
	RemoveExpiresAt(ctx context.Context, id string) error
	SetSummary(ctx context.Context, id, summary string) error
}

// Coordinator keeps the external dialog of each correspondence in step with
// its status. Every mutation is safe to repeat and reports whether it
// changed anything.
type Coordinator struct {
	Store  Store
	Keys   IdempotencyStore
	Client Client
	Now    func() time.Time
}

func New(st Store, keys IdempotencyStore, c Client) *Coordinator {
	return &Coordinator{Store: st, Keys: keys, Client: c, Now: util.NowUTC}
}

// CreateDialog creates the dialog once and records its id. The idempotency
// key id doubles as the dialog id, so a retry after a partial failure hits
// the same dialog.
func (co *Coordinator) CreateDialog(ctx context.Context, id uuid.UUID) (string, error) {
	c, err := co.Store.GetCorrespondence(ctx, id)
	if err != nil {
		return "", err
	}
	if dlg, ok := c.DialogID(); ok {
		return dlg, nil
	}

	_, keyID, err := co.Keys.TryClaim(ctx, c.ID, nil, domain.ActionDialogCreated)
	if err != nil {
		return "", err
	}

	dlg, err := co.Client.Create(ctx, createRequest(c, keyID.String()))
	if err != nil {
		return "", fmt.Errorf("create dialog for %s: %w", c.ID, err)
	}
	if err := co.Store.AddExternalReference(ctx, c.ID, domain.ExternalReference{
		Type:  domain.ReferenceDialogportenDialogID,
		Value: dlg,
	}); err != nil {
		return "", err
	}
	slog.Info("dialog created", "correspondence_id", c.ID, "dialog_id", dlg)
	return dlg, nil
}

func createRequest(c domain.Correspondence, id string) dialogporten.CreateRequest {
	return dialogporten.CreateRequest{
		ID:               id,
		CorrespondenceID: c.ID.String(),
		ServiceResource:  "urn:altinn:resource:" + c.ResourceID,
		Party:            c.Recipient,
		Sender:           c.Sender,
		Title:            c.Content.Title,
		Summary:          StripMarkdownAndHTML(c.Content.Summary),
		Language:         c.Content.Language,
		VisibleFrom:      c.VisibleFrom,
		DueAt:            c.DueDateTime,
		ExpiresAt:        c.AllowSystemDeleteAfter,
		Attributes:       c.Properties,
	}
}

// dialogOf resolves the dialog id. Migrated correspondences may legitimately
// have none; that is reported as ok=false with a nil error.
func (co *Coordinator) dialogOf(ctx context.Context, id uuid.UUID) (string, bool, error) {
	dlg, migrated, err := co.Store.DialogReference(ctx, id)
	if err != nil {
		return "", false, err
	}
	if dlg == "" {
		if migrated {
			return "", false, nil
		}
		return "", false, fmt.Errorf("no dialog on correspondence %s: %w", id, domain.ErrNotFound)
	}
	return dlg, true, nil
}

// PatchToConfirmed marks the dialog confirmed. An already confirmed dialog
// reports changed=false.
func (co *Coordinator) PatchToConfirmed(ctx context.Context, id uuid.UUID) (bool, error) {
	dlg, ok, err := co.dialogOf(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	d, err := co.Client.Get(ctx, dlg)
	if err != nil {
		return false, err
	}
	if d.Confirmed {
		return false, nil
	}
	if err := co.Client.PatchConfirmed(ctx, dlg); err != nil {
		return false, err
	}
	return true, nil
}

// VerifyPatchedToConfirmed reports whether the dialog shows the confirmation.
func (co *Coordinator) VerifyPatchedToConfirmed(ctx context.Context, id uuid.UUID) (bool, error) {
	dlg, ok, err := co.dialogOf(ctx, id)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	d, err := co.Client.Get(ctx, dlg)
	if err != nil {
		return false, err
	}
	return d.Confirmed, nil
}

func (co *Coordinator) SoftDeleteDialog(ctx context.Context, id uuid.UUID) (bool, error) {
	dlg, ok, err := co.dialogOf(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	return co.Client.SoftDelete(ctx, dlg)
}

func (co *Coordinator) TryRestoreSoftDeletedDialog(ctx context.Context, id uuid.UUID) (bool, error) {
	dlg, ok, err := co.dialogOf(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	return co.Client.Restore(ctx, dlg)
}

func (co *Coordinator) TryRemoveDialogExpiresAt(ctx context.Context, id uuid.UUID) (bool, error) {
	dlg, ok, err := co.dialogOf(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	d, err := co.Client.Get(ctx, dlg)
	if err != nil {
		return false, err
	}
	if d.ExpiresAt == nil {
		return false, nil
	}
	if err := co.Client.RemoveExpiresAt(ctx, dlg); err != nil {
		return false, err
	}
	return true, nil
}

func (co *Coordinator) TryRemoveMarkdownAndHtmlFromSummary(ctx context.Context, id uuid.UUID) (bool, error) {
	dlg, ok, err := co.dialogOf(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	d, err := co.Client.Get(ctx, dlg)
	if err != nil {
		return false, err
	}
	clean := StripMarkdownAndHTML(d.Summary)
	if clean == d.Summary {
		return false, nil
	}
	if err := co.Client.SetSummary(ctx, dlg, clean); err != nil {
		return false, err
	}
	return true, nil
}
