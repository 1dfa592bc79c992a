package pg

import (
	"context"
	"strings"

	"correspondence/internal/store"
)

// GetWindow returns up to size correspondences strictly after the cursor,
// ordered by (created, id).
func (s *Store) GetWindow(ctx context.Context, size int, after store.Cursor, filter store.WindowFilter) ([]store.WindowRow, error) {
	var (
		where []string
		args  []any
	)
	if !after.IsZero() {
		args = append(args, after.LastCreated, after.LastID)
		where = append(where, "(c.created, c.id) > ($1, $2)")
	}
	if filter.MigratedOnly {
		where = append(where, "c.altinn2_correspondence_id IS NOT NULL AND c.altinn2_correspondence_id > 0")
	}
	if filter.WithDialog {
		where = append(where, "d.reference_value IS NOT NULL")
	}
	args = append(args, size)

	sql := `
		SELECT c.id, c.created, c.resource_id, c.message_summary,
		       hs.status,
		       EXISTS (SELECT 1 FROM correspondence_statuses cs
		               WHERE cs.correspondence_id = c.id AND cs.status = 5) AS confirmed,
		       COALESCE(d.reference_value, ''),
		       c.altinn2_correspondence_id, c.allow_system_delete_after
		FROM correspondences c
		LEFT JOIN LATERAL (
			SELECT reference_value FROM external_references er
			WHERE er.correspondence_id = c.id AND er.reference_type = 'DialogportenDialogId'
			LIMIT 1
		) d ON true
		LEFT JOIN LATERAL (
			SELECT status FROM correspondence_statuses cs
			WHERE cs.correspondence_id = c.id AND cs.status <= 10
			ORDER BY cs.status DESC LIMIT 1
		) hs ON true`
	if len(where) > 0 {
		sql += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	sql += "\n\t\tORDER BY c.created, c.id\n\t\tLIMIT $" + itoa(len(args))

	rows, err := s.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]store.WindowRow, 0, size)
	for rows.Next() {
		var (
			r      store.WindowRow
			status *int
		)
		if err := rows.Scan(&r.ID, &r.Created, &r.ResourceID, &r.Summary, &status, &r.Confirmed,
			&r.DialogID, &r.Altinn2CorrespondenceID, &r.AllowSystemDeleteAfter); err != nil {
			return nil, err
		}
		if status != nil {
			r.HighestStatus = statusOf(*status)
			r.HasHighestStatus = true
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
