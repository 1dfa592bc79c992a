package util

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewJobID returns a sortable job id (nice for DB indexes and dashboards).
func NewJobID() string {
	t := time.Now().UTC()
	return "job_" + ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

func NowUTC() time.Time {
	return time.Now().UTC()
}
