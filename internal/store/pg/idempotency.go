package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"correspondence/internal/domain"
)

// TryClaim inserts the key unless it already exists. The unique constraint on
// (correspondence_id, attachment_id, action) decides the winner; losers get the
// existing key id and claimed=false.
func (s *Store) TryClaim(ctx context.Context, correspondenceID uuid.UUID, attachmentID *uuid.UUID, action domain.Action) (bool, uuid.UUID, error) {
	newID := uuid.New()
	var keyID uuid.UUID
	err := s.DB.QueryRow(ctx, `
		INSERT INTO idempotency_keys (id, correspondence_id, attachment_id, action, created)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT ON CONSTRAINT idempotency_keys_unique DO NOTHING
		RETURNING id
	`, newID, correspondenceID, attachmentID, string(action), time.Now().UTC()).Scan(&keyID)
	if err == nil {
		return true, keyID, nil
	}
	if !isNoRows(err) {
		return false, uuid.Nil, err
	}

	err = s.DB.QueryRow(ctx, `
		SELECT id FROM idempotency_keys
		WHERE correspondence_id=$1 AND attachment_id IS NOT DISTINCT FROM $2 AND action=$3
	`, correspondenceID, attachmentID, string(action)).Scan(&keyID)
	if err != nil {
		return false, uuid.Nil, err
	}
	return false, keyID, nil
}

// ReleaseClaim drops a key whose side effect failed so a retry can claim it
// again.
func (s *Store) ReleaseClaim(ctx context.Context, keyID uuid.UUID) error {
	_, err := s.DB.Exec(ctx, `DELETE FROM idempotency_keys WHERE id=$1`, keyID)
	return err
}

// DeleteForCorrespondences removes every key owned by ids. It refuses, and
// deletes nothing, when more than MaxIdempotencyKeysPerDelete ids or keys are
// involved.
func (s *Store) DeleteForCorrespondences(ctx context.Context, ids []uuid.UUID) (int64, error) {
	distinct := uniqueIDs(ids)
	if len(distinct) == 0 {
		return 0, nil
	}
	if len(distinct) > domain.MaxIdempotencyKeysPerDelete {
		return 0, fmt.Errorf("delete idempotency keys for %d correspondences: %w", len(distinct), domain.ErrTooManyKeys)
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var count int64
	if err := tx.QueryRow(ctx, `
		SELECT count(*) FROM idempotency_keys WHERE correspondence_id = ANY($1::uuid[])
	`, distinct).Scan(&count); err != nil {
		return 0, err
	}
	if count > domain.MaxIdempotencyKeysPerDelete {
		return 0, fmt.Errorf("delete %d idempotency keys: %w", count, domain.ErrTooManyKeys)
	}

	ct, err := tx.Exec(ctx, `DELETE FROM idempotency_keys WHERE correspondence_id = ANY($1::uuid[])`, distinct)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func uniqueIDs(ids []uuid.UUID) []string {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id.String())
	}
	return out
}
