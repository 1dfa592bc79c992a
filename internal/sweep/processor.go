package sweep

import (
	"context"
	"fmt"
	"log/slog"

	"correspondence/internal/observability"
	"correspondence/internal/store"
)

type Cursor = store.Cursor

type Outcome int

const (
	Changed Outcome = iota
	AlreadyOK
)

// at most this many per-row errors are kept on the summary
const maxErrors = 100

type Summary struct {
	Scanned   int
	Processed int
	Changed   int
	AlreadyOK int
	Errored   int
	Errors    []string
}

// Processor pages through a row set by (created, id) and handles the rows
// Select picks. A failing row is counted and skipped; a failing Source aborts
// the run.
type Processor[T any] struct {
	Name       string
	WindowSize int
	Source     func(ctx context.Context, size int, after Cursor) ([]T, error)
	Key        func(T) Cursor
	Select     func(T) bool
	Handle     func(ctx context.Context, row T) (Outcome, error)
	// DryRun counts matching rows without handling them.
	DryRun bool
}

func (p *Processor[T]) Run(ctx context.Context) (Summary, error) {
	if p.WindowSize <= 0 {
		return Summary{}, fmt.Errorf("sweep %s: window size must be positive", p.Name)
	}
	var (
		sum    Summary
		cursor Cursor
	)
	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		rows, err := p.Source(ctx, p.WindowSize+1, cursor)
		if err != nil {
			return sum, fmt.Errorf("sweep %s: fetch window: %w", p.Name, err)
		}
		if len(rows) == 0 {
			break
		}
		if len(rows) > p.WindowSize {
			rows = rows[:p.WindowSize]
		}
		cursor = p.Key(rows[len(rows)-1])
		sum.Scanned += len(rows)

		for _, row := range rows {
			if p.Select != nil && !p.Select(row) {
				continue
			}
			sum.Processed++
			if p.DryRun {
				continue
			}
			p.handle(ctx, row, &sum)
		}
	}

	slog.Info("sweep finished", "sweep", p.Name, "dry_run", p.DryRun,
		"scanned", sum.Scanned, "processed", sum.Processed, "changed", sum.Changed,
		"already_ok", sum.AlreadyOK, "errored", sum.Errored, "errors", sum.Errors)
	return sum, nil
}

func (p *Processor[T]) handle(ctx context.Context, row T, sum *Summary) {
	out, err := p.Handle(ctx, row)
	switch {
	case err != nil:
		sum.Errored++
		if len(sum.Errors) < maxErrors {
			sum.Errors = append(sum.Errors, fmt.Sprintf("%v: %v", p.Key(row).LastID, err))
		}
		observability.SweepRows.WithLabelValues(p.Name, "errored").Inc()
		slog.Warn("sweep row failed", "sweep", p.Name, "id", p.Key(row).LastID, "err", err)
	case out == Changed:
		sum.Changed++
		observability.SweepRows.WithLabelValues(p.Name, "changed").Inc()
	default:
		sum.AlreadyOK++
		observability.SweepRows.WithLabelValues(p.Name, "already_ok").Inc()
	}
}
