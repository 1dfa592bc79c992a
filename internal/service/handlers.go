package service

import (
	"context"
	"encoding/json"

	"correspondence/internal/domain"
	"correspondence/internal/jobs"
	"correspondence/internal/providers/legacy"
)

func (s *CorrespondenceService) handlePublish(ctx context.Context, payload json.RawMessage) error {
	var p jobs.CorrespondencePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return domain.Precondition(domain.ReasonInvalidPayload, "%v", err)
	}
	return s.Publish(ctx, p.CorrespondenceID)
}

func (s *CorrespondenceService) handleDueDate(ctx context.Context, payload json.RawMessage) error {
	var p jobs.CorrespondencePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return domain.Precondition(domain.ReasonInvalidPayload, "%v", err)
	}
	return s.DueDate(ctx, p.CorrespondenceID)
}

func (s *CorrespondenceService) handleVerifyConfirmation(ctx context.Context, payload json.RawMessage) error {
	var p jobs.ConfirmationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return domain.Precondition(domain.ReasonInvalidPayload, "%v", err)
	}
	return s.VerifyConfirmation(ctx, p)
}

func (s *CorrespondenceService) handleLegacySync(ctx context.Context, payload json.RawMessage) error {
	var p jobs.LegacySyncPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return domain.Precondition(domain.ReasonInvalidPayload, "%v", err)
	}
	return s.Legacy.SyncEvent(ctx, p.LegacyID, p.PartyID, p.At, legacy.SyncEventType(p.EventType))
}
