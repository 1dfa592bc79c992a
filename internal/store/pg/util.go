package pg

import (
	"strconv"

	"correspondence/internal/domain"
)

func itoa(i int) string { return strconv.Itoa(i) }

func statusOf(v int) domain.Status { return domain.Status(v) }

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
