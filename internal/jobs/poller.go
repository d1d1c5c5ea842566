package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultPollInterval matches the web client's status refresh period.
const DefaultPollInterval = 5 * time.Second

// Snapshot is any job payload that carries a lifecycle status.
type Snapshot interface {
	JobStatus() Status
}

// Fetcher loads the current snapshot of a job.
type Fetcher[T Snapshot] func(ctx context.Context, id string) (T, error)

// Poller queries a job on a fixed interval until it reaches a terminal
// status. There is no backoff: a failed request is reported and the next
// tick tries again. The only way to stop early is to cancel the context.
type Poller[T Snapshot] struct {
	Fetch    Fetcher[T]
	Interval time.Duration
	// Immediate issues the first request right away instead of waiting
	// one interval.
	Immediate bool
	Logger    *slog.Logger
	// OnUpdate receives every accepted snapshot, including the terminal one.
	OnUpdate func(T)
	// OnError receives every failed fetch.
	OnError func(error)
}

// ErrNoFetcher is returned when Poll is called without a Fetch function.
var ErrNoFetcher = errors.New("poller: nil fetch function")

// Poll blocks until job id is COMPLETED or FAILED and returns that
// snapshot, or returns the context error if the caller gives up first.
// Snapshots that would move the status backwards are dropped.
func (p *Poller[T]) Poll(ctx context.Context, id string) (T, error) {
	var zero T
	if p.Fetch == nil {
		return zero, ErrNoFetcher
	}

	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last Status
	first := p.Immediate

	for {
		if !first {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-ticker.C:
			}
		}
		first = false

		snap, err := p.Fetch(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			p.logWarn("poll_failed", "job_id", id, "error", err)
			if p.OnError != nil {
				p.OnError(err)
			}
			continue
		}

		status := snap.JobStatus()
		if last != "" && last.Regresses(status) {
			p.logWarn("poll_status_regressed", "job_id", id, "from", string(last), "to", string(status))
			continue
		}
		last = status

		if p.OnUpdate != nil {
			p.OnUpdate(snap)
		}
		if status.IsTerminal() {
			return snap, nil
		}
	}
}

func (p *Poller[T]) logWarn(msg string, args ...any) {
	if p.Logger != nil {
		p.Logger.Warn(msg, args...)
	}
}
