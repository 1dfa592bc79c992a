package dialog

import (
	"context"
	"encoding/json"
	"log/slog"

	"correspondence/internal/domain"
	"correspondence/internal/jobs"
)

// Register wires the dialog jobs into the runner.
func (co *Coordinator) Register(r *jobs.Runner) {
	r.Register(jobs.KindDialogCreate, co.handleCreate)
	r.Register(jobs.KindDialogActivity, co.handleActivity)
	r.Register(jobs.KindDialogSoftDelete, co.handleSoftDelete)
	r.Register(jobs.KindDialogRestore, co.handleRestore)
}

func (co *Coordinator) handleCreate(ctx context.Context, payload json.RawMessage) error {
	var p jobs.CorrespondencePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return domain.Precondition(domain.ReasonInvalidPayload, "%v", err)
	}
	_, err := co.CreateDialog(ctx, p.CorrespondenceID)
	return err
}

func (co *Coordinator) handleActivity(ctx context.Context, payload json.RawMessage) error {
	var p jobs.ActivityPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return domain.Precondition(domain.ReasonInvalidPayload, "%v", err)
	}
	actor := ActorType(p.Actor)
	if actor == "" {
		actor = ActorServiceOwner
	}

	var (
		changed bool
		err     error
	)
	switch ActivityKind(p.Activity) {
	case ActivityInformation:
		text := TextPublished
		tokens := p.Tokens
		if len(tokens) > 0 {
			text, tokens = TextType(tokens[0]), tokens[1:]
		}
		changed, err = co.CreateInformationActivity(ctx, p.CorrespondenceID, actor, text, p.At, tokens...)
	case ActivityOpened:
		changed, err = co.CreateOpenedActivity(ctx, p.CorrespondenceID, actor, p.At)
	case ActivityConfirmed:
		changed, err = co.CreateConfirmedActivity(ctx, p.CorrespondenceID, actor, p.At)
	case ActivityPurged:
		name := ""
		if len(p.Tokens) > 0 {
			name = p.Tokens[0]
		}
		changed, err = co.CreateCorrespondencePurgedActivity(ctx, p.CorrespondenceID, actor, name, p.At)
	case ActivityNotificationSent:
		var destination, channel string
		if len(p.Tokens) > 0 {
			destination = p.Tokens[0]
		}
		if len(p.Tokens) > 1 {
			channel = p.Tokens[1]
		}
		changed, err = co.CreateNotificationSentActivity(ctx, p.CorrespondenceID, p.Discriminator, destination, channel, p.Reminder, p.At)
	default:
		return domain.Precondition(domain.ReasonInvalidPayload, "unknown activity %q", p.Activity)
	}
	if err != nil {
		return err
	}
	slog.Debug("dialog activity", "correspondence_id", p.CorrespondenceID, "activity", p.Activity, "changed", changed)
	return nil
}

func (co *Coordinator) handleSoftDelete(ctx context.Context, payload json.RawMessage) error {
	var p jobs.CorrespondencePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return domain.Precondition(domain.ReasonInvalidPayload, "%v", err)
	}
	_, err := co.SoftDeleteDialog(ctx, p.CorrespondenceID)
	return err
}

func (co *Coordinator) handleRestore(ctx context.Context, payload json.RawMessage) error {
	var p jobs.CorrespondencePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return domain.Precondition(domain.ReasonInvalidPayload, "%v", err)
	}
	_, err := co.TryRestoreSoftDeletedDialog(ctx, p.CorrespondenceID)
	return err
}
