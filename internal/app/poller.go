package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/five82/shelf/internal/api"
	"github.com/five82/shelf/internal/library"
	"github.com/five82/shelf/internal/state"
)

const (
	defaultPollInterval = 30 * time.Second
	maxBackoff          = 5 * time.Minute
)

// Poller refreshes the catalog and the signed-in user's loans into a
// state.Store. Failures stretch the wait between polls exponentially.
type Poller struct {
	Store    *state.Store
	Service  *library.Service
	Interval time.Duration
	PageSize int
	Logger   *slog.Logger

	kick chan struct{}
}

// Start launches the poll loop and returns immediately. The first poll runs
// at once.
func (p *Poller) Start(ctx context.Context) {
	if p.Interval <= 0 {
		p.Interval = defaultPollInterval
	}
	if p.Logger == nil {
		p.Logger = slog.New(slog.DiscardHandler)
	}
	if p.kick == nil {
		p.kick = make(chan struct{}, 1)
	}
	go func() {
		timer := time.NewTimer(0)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			case <-p.kick:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			}
			p.refresh(ctx)
			timer.Reset(calculateBackoff(p.Store.Snapshot().ConsecutiveFailures, p.Interval))
		}
	}()
}

// Kick requests an immediate poll. It never blocks; kicks coalesce.
func (p *Poller) Kick() {
	if p.kick == nil {
		return
	}
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func (p *Poller) refresh(ctx context.Context) {
	books, err := p.Service.Books.List(ctx, library.BookQuery{Limit: p.PageSize, Fresh: true})
	if err != nil {
		if api.IsCanceled(err) {
			return
		}
		p.Store.Update(library.Result[[]library.Book]{}, nil, err)
		p.Logger.Warn("catalog poll failed", "error", err)
		return
	}

	var loans []library.Issue
	if p.Service.Session().Authenticated() {
		mine, err := p.Service.Issues.RefetchMine(ctx)
		switch {
		case err == nil:
			loans = mine.Data
			if loans == nil {
				loans = []library.Issue{}
			}
		case api.IsCanceled(err):
			return
		default:
			p.Logger.Warn("loans poll failed", "error", err)
		}
	} else {
		p.Store.SetLoans(nil)
	}
	p.Store.Update(books, loans, nil)
}

// calculateBackoff returns the wait before the next poll after failures
// consecutive errors: base doubled per failure, capped at maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	d := base
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// watchEvents keeps an event subscription open while a session exists and
// kicks the poller on every book or issue event. Dropped streams reconnect
// with the poller's backoff.
func watchEvents(ctx context.Context, svc *library.Service, p *Poller, interval time.Duration, logger *slog.Logger) {
	failures := 0
	for {
		if svc.Session().Authenticated() {
			err := svc.Subscribe(ctx, func(ev api.Event) {
				failures = 0
				if strings.HasPrefix(ev.Type, "book.") || strings.HasPrefix(ev.Type, "issue.") {
					p.Kick()
				}
			})
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				failures++
				logger.Debug("event stream closed", "error", err)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(calculateBackoff(failures, interval)):
		}
	}
}
