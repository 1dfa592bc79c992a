package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is a lifecycle state of a correspondence. The numeric value is the rank
// used for "highest status" comparisons.
type Status int

const (
	StatusInitialized        Status = 0
	StatusReadyForPublish    Status = 1
	StatusPublished          Status = 2
	StatusRead               Status = 3
	StatusReplied            Status = 4
	StatusConfirmed          Status = 5
	StatusDeletedByRecipient Status = 6
	StatusDeletedByAltinn    Status = 7
	StatusArchived           Status = 8
	StatusReserved           Status = 9
	StatusFailed             Status = 10

	// StatusFetched is a milestone, not a lifecycle rank. It is recorded as its own
	// transition and never takes part in HighestStatus.
	StatusFetched Status = 100
)

var statusNames = map[Status]string{
	StatusInitialized:        "Initialized",
	StatusReadyForPublish:    "ReadyForPublish",
	StatusPublished:          "Published",
	StatusRead:               "Read",
	StatusReplied:            "Replied",
	StatusConfirmed:          "Confirmed",
	StatusDeletedByRecipient: "DeletedByRecipient",
	StatusDeletedByAltinn:    "DeletedByAltinn",
	StatusArchived:           "Archived",
	StatusReserved:           "Reserved",
	StatusFailed:             "Failed",
	StatusFetched:            "Fetched",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "Unknown"
}

// Ranked reports whether s takes part in highest-status comparisons.
func (s Status) Ranked() bool {
	return s >= StatusInitialized && s <= StatusFailed
}

// Rank returns the lifecycle rank, or -1 for milestones.
func (s Status) Rank() int {
	if !s.Ranked() {
		return -1
	}
	return int(s)
}

func (s Status) IsPurged() bool {
	return s == StatusDeletedByRecipient || s == StatusDeletedByAltinn
}

// IsAvailableForRecipient is true from Published onwards, excluding purged,
// reserved and failed correspondences.
func (s Status) IsAvailableForRecipient() bool {
	if !s.Ranked() || s < StatusPublished {
		return false
	}
	return !s.IsPurged() && s != StatusReserved && s != StatusFailed
}

// IsPurgeableForSender is true while the correspondence has not been published.
func (s Status) IsPurgeableForSender() bool {
	return s == StatusInitialized || s == StatusReadyForPublish || s == StatusReserved
}

// ParseStatus accepts the names returned by String.
func ParseStatus(name string) (Status, bool) {
	for s, n := range statusNames {
		if n == name {
			return s, true
		}
	}
	return 0, false
}

type StatusTransition struct {
	ID        int64
	Status    Status
	Text      string
	ChangedAt time.Time
	PartyUUID *uuid.UUID
}

// HighestStatus returns the transition with the highest rank. Equal ranks are
// resolved in favour of the later transition.
func HighestStatus(history []StatusTransition) (StatusTransition, bool) {
	var (
		best  StatusTransition
		found bool
	)
	for _, t := range history {
		if !t.Status.Ranked() {
			continue
		}
		if !found || t.Status.Rank() > best.Status.Rank() ||
			(t.Status.Rank() == best.Status.Rank() && t.ChangedAt.After(best.ChangedAt)) {
			best = t
			found = true
		}
	}
	return best, found
}

// LatestStatus returns the most recent transition by timestamp.
func LatestStatus(history []StatusTransition) (StatusTransition, bool) {
	var (
		latest StatusTransition
		found  bool
	)
	for _, t := range history {
		if !found || !t.ChangedAt.Before(latest.ChangedAt) {
			latest = t
			found = true
		}
	}
	return latest, found
}

func HasReached(history []StatusTransition, status Status) bool {
	for _, t := range history {
		if t.Status == status {
			return true
		}
	}
	return false
}
