package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"correspondence/internal/domain"
	"correspondence/internal/store"
)

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) InsertCorrespondence(ctx context.Context, c domain.Correspondence) error {
	props := c.Properties
	if props == nil {
		props = map[string]string{}
	}
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO correspondences (id, resource_id, sender, recipient, senders_reference, language,
			message_title, message_summary, message_body, visible_from, due_date_time,
			allow_system_delete_after, is_confirmation_needed, ignore_reservation,
			altinn2_correspondence_id, properties, created)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, c.ID, c.ResourceID, c.Sender, c.Recipient, c.SendersReference, c.Content.Language,
		c.Content.Title, c.Content.Summary, c.Content.Body, c.VisibleFrom, c.DueDateTime,
		c.AllowSystemDeleteAfter, c.IsConfirmationNeeded, c.IgnoreReservation,
		c.Altinn2CorrespondenceID, props, c.Created)
	if err != nil {
		return err
	}

	for _, r := range c.ExternalReferences {
		if _, err := tx.Exec(ctx, `
			INSERT INTO external_references (correspondence_id, reference_type, reference_value)
			VALUES ($1,$2,$3) ON CONFLICT DO NOTHING
		`, c.ID, string(r.Type), r.Value); err != nil {
			return err
		}
	}
	for _, n := range c.NotificationRequests {
		id := n.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO notification_requests (id, correspondence_id, notification_template, notification_channel,
				email_subject, email_body, sms_body, send_reminder, reminder_email_subject,
				reminder_email_body, reminder_sms_body, senders_reference)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`, id, c.ID, n.Template, string(n.Channel), n.EmailSubject, n.EmailBody, n.SmsBody,
			n.SendReminder, n.ReminderEmailSubject, n.ReminderEmailBody, n.ReminderSmsBody, n.SendersReference); err != nil {
			return err
		}
	}
	for _, st := range c.Statuses {
		if _, err := tx.Exec(ctx, `
			INSERT INTO correspondence_statuses (correspondence_id, status, status_text, status_changed, party_uuid)
			VALUES ($1,$2,$3,$4,$5)
		`, c.ID, int(st.Status), st.Text, st.ChangedAt, st.PartyUUID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// GetCorrespondence loads the aggregate with its owned lists.
func (s *Store) GetCorrespondence(ctx context.Context, id uuid.UUID) (domain.Correspondence, error) {
	var (
		c     domain.Correspondence
		props map[string]string
	)
	err := s.DB.QueryRow(ctx, `
		SELECT id, resource_id, sender, recipient, senders_reference, language, message_title,
		       message_summary, message_body, visible_from, due_date_time, allow_system_delete_after,
		       is_confirmation_needed, ignore_reservation, altinn2_correspondence_id, properties, created
		FROM correspondences WHERE id=$1
	`, id).Scan(&c.ID, &c.ResourceID, &c.Sender, &c.Recipient, &c.SendersReference, &c.Content.Language,
		&c.Content.Title, &c.Content.Summary, &c.Content.Body, &c.VisibleFrom, &c.DueDateTime,
		&c.AllowSystemDeleteAfter, &c.IsConfirmationNeeded, &c.IgnoreReservation,
		&c.Altinn2CorrespondenceID, &props, &c.Created)
	if err != nil {
		if isNoRows(err) {
			return domain.Correspondence{}, fmt.Errorf("correspondence %s: %w", id, domain.ErrNotFound)
		}
		return domain.Correspondence{}, err
	}
	c.Properties = props

	if c.Statuses, err = s.ListTransitions(ctx, id); err != nil {
		return domain.Correspondence{}, err
	}
	if c.ExternalReferences, err = s.listReferences(ctx, id); err != nil {
		return domain.Correspondence{}, err
	}
	if c.Notifications, err = s.listNotifications(ctx, id); err != nil {
		return domain.Correspondence{}, err
	}
	if c.NotificationRequests, err = s.listNotificationRequests(ctx, id); err != nil {
		return domain.Correspondence{}, err
	}
	return c, nil
}

func (s *Store) CorrespondenceExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := s.DB.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM correspondences WHERE id=$1)`, id).Scan(&exists)
	return exists, err
}

func (s *Store) ListTransitions(ctx context.Context, id uuid.UUID) ([]domain.StatusTransition, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, status, status_text, status_changed, party_uuid
		FROM correspondence_statuses WHERE correspondence_id=$1 ORDER BY status_changed, id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StatusTransition
	for rows.Next() {
		var (
			t      domain.StatusTransition
			status int
		)
		if err := rows.Scan(&t.ID, &status, &t.Text, &t.ChangedAt, &t.PartyUUID); err != nil {
			return nil, err
		}
		t.Status = domain.Status(status)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) InsertTransition(ctx context.Context, in store.TransitionInsert) (int64, error) {
	var id int64
	err := s.DB.QueryRow(ctx, `
		INSERT INTO correspondence_statuses (correspondence_id, status, status_text, status_changed, party_uuid)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id
	`, in.CorrespondenceID, int(in.Status), in.Text, in.ChangedAt, in.PartyUUID).Scan(&id)
	return id, err
}

func (s *Store) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.DB.Exec(ctx, `UPDATE correspondences SET published=$2 WHERE id=$1`, id, at)
	return err
}

func (s *Store) AddExternalReference(ctx context.Context, id uuid.UUID, ref domain.ExternalReference) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO external_references (correspondence_id, reference_type, reference_value)
		VALUES ($1,$2,$3) ON CONFLICT DO NOTHING
	`, id, string(ref.Type), ref.Value)
	return err
}

func (s *Store) listReferences(ctx context.Context, id uuid.UUID) ([]domain.ExternalReference, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT reference_type, reference_value FROM external_references WHERE correspondence_id=$1
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ExternalReference
	for rows.Next() {
		var typ, val string
		if err := rows.Scan(&typ, &val); err != nil {
			return nil, err
		}
		out = append(out, domain.ExternalReference{Type: domain.ReferenceType(typ), Value: val})
	}
	return out, rows.Err()
}

func (s *Store) listNotificationRequests(ctx context.Context, id uuid.UUID) ([]domain.NotificationRequest, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, notification_template, notification_channel, email_subject, email_body, sms_body,
		       send_reminder, reminder_email_subject, reminder_email_body, reminder_sms_body,
		       senders_reference, dispatched
		FROM notification_requests WHERE correspondence_id=$1 ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.NotificationRequest
	for rows.Next() {
		var (
			n       domain.NotificationRequest
			channel string
		)
		if err := rows.Scan(&n.ID, &n.Template, &channel, &n.EmailSubject, &n.EmailBody, &n.SmsBody,
			&n.SendReminder, &n.ReminderEmailSubject, &n.ReminderEmailBody, &n.ReminderSmsBody,
			&n.SendersReference, &n.Dispatched); err != nil {
			return nil, err
		}
		n.Channel = domain.NotificationChannel(channel)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MarkNotificationRequestDispatched(ctx context.Context, requestID uuid.UUID) error {
	_, err := s.DB.Exec(ctx, `UPDATE notification_requests SET dispatched=true WHERE id=$1`, requestID)
	return err
}

const notificationColumns = `id, correspondence_id, notification_template, notification_channel,
	notification_order_id, shipment_id, requested_send_time, is_reminder, notification_sent,
	original_request, created`

func scanNotification(row pgx.Row) (domain.NotificationRecord, error) {
	var (
		n        domain.NotificationRecord
		channel  string
		original []byte
	)
	err := row.Scan(&n.ID, &n.CorrespondenceID, &n.Template, &channel, &n.OrderID, &n.ShipmentID,
		&n.RequestedSendTime, &n.IsReminder, &n.NotificationSent, &original, &n.Created)
	if err != nil {
		return domain.NotificationRecord{}, err
	}
	n.Channel = domain.NotificationChannel(channel)
	if len(original) > 0 {
		n.OriginalRequest = json.RawMessage(original)
	}
	return n, nil
}

func (s *Store) listNotifications(ctx context.Context, id uuid.UUID) ([]domain.NotificationRecord, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+notificationColumns+`
		FROM correspondence_notifications WHERE correspondence_id=$1 ORDER BY requested_send_time, id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.NotificationRecord
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) InsertNotification(ctx context.Context, n domain.NotificationRecord) error {
	var original any
	if len(n.OriginalRequest) > 0 {
		original = []byte(n.OriginalRequest)
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO correspondence_notifications (id, correspondence_id, notification_template,
			notification_channel, notification_order_id, shipment_id, requested_send_time,
			is_reminder, original_request, created)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO NOTHING
	`, n.ID, n.CorrespondenceID, n.Template, string(n.Channel), n.OrderID, n.ShipmentID,
		n.RequestedSendTime, n.IsReminder, original, n.Created)
	return err
}

func (s *Store) GetNotification(ctx context.Context, id uuid.UUID) (domain.NotificationRecord, error) {
	n, err := scanNotification(s.DB.QueryRow(ctx, `SELECT `+notificationColumns+`
		FROM correspondence_notifications WHERE id=$1`, id))
	if err != nil {
		if isNoRows(err) {
			return domain.NotificationRecord{}, fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
		}
		return domain.NotificationRecord{}, err
	}
	return n, nil
}

// SetNotificationSent records the sent time once. It reports false when another
// caller already recorded it.
func (s *Store) SetNotificationSent(ctx context.Context, id uuid.UUID, sentAt time.Time) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE correspondence_notifications SET notification_sent=$2
		WHERE id=$1 AND notification_sent IS NULL
	`, id, sentAt)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) GetTemplates(ctx context.Context, template, language string) ([]store.TemplateContent, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT template, language, recipient_type, email_subject, email_body, sms_body,
		       reminder_email_subject, reminder_email_body, reminder_sms_body
		FROM notification_templates WHERE template=$1 AND language=$2
	`, template, language)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.TemplateContent
	for rows.Next() {
		var (
			t  store.TemplateContent
			rt string
		)
		if err := rows.Scan(&t.Template, &t.Language, &rt, &t.EmailSubject, &t.EmailBody, &t.SmsBody,
			&t.ReminderEmailSubject, &t.ReminderEmailBody, &t.ReminderSmsBody); err != nil {
			return nil, err
		}
		t.RecipientType = domain.RecipientType(rt)
		out = append(out, t)
	}
	return out, rows.Err()
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// DialogReference returns the dialog id of a correspondence ("" when none)
// and whether it was migrated from the legacy system.
func (s *Store) DialogReference(ctx context.Context, id uuid.UUID) (string, bool, error) {
	var (
		dialogID string
		migrated bool
	)
	err := s.DB.QueryRow(ctx, `
		SELECT COALESCE((
			SELECT r.reference_value FROM external_references r
			WHERE r.correspondence_id = c.id AND r.reference_type = $2
			LIMIT 1), ''),
		       COALESCE(c.altinn2_correspondence_id, 0) > 0
		FROM correspondences c WHERE c.id = $1
	`, id, string(domain.ReferenceDialogportenDialogID)).Scan(&dialogID, &migrated)
	if err != nil {
		if isNoRows(err) {
			return "", false, fmt.Errorf("correspondence %s: %w", id, domain.ErrNotFound)
		}
		return "", false, err
	}
	return dialogID, migrated, nil
}
