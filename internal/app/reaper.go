package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"roomstay/internal/adapters/observability"
	"roomstay/internal/domain"
)

// Reaper periodically sweeps expired CREATED bookings and drives them
// through the CANCELLED transition, reclaiming their held inventory. Until
// a sweep runs, an expired hold still counts against inventory; leakage is
// bounded by one sweep interval.
type Reaper struct {
	bookings domain.BookingRepository
	svc      *ReservationService
	interval time.Duration
	batch    int
	workers  int64
	now      func() time.Time
}

type ReaperOption func(*Reaper)

// WithReaperClock overrides the time source, for expiry tests.
func WithReaperClock(fn func() time.Time) ReaperOption {
	return func(r *Reaper) { r.now = fn }
}

func NewReaper(bookings domain.BookingRepository, svc *ReservationService, interval time.Duration, batch, workers int, opts ...ReaperOption) *Reaper {
	if batch < 1 {
		batch = 100
	}
	if workers < 1 {
		workers = 4
	}
	r := &Reaper{
		bookings: bookings,
		svc:      svc,
		interval: interval,
		batch:    batch,
		workers:  int64(workers),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", r.interval).Int("batch", r.batch).Msg("reaper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reaper stopped")
			return
		case <-ticker.C:
			if n, err := r.Sweep(ctx); err != nil {
				log.Error().Err(err).Msg("sweep failed")
			} else if n > 0 {
				log.Info().Int("reaped", n).Msg("expired bookings reaped")
			}
		}
	}
}

// Sweep reaps one batch with bounded concurrency and returns how many
// bookings it cancelled.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	expired, err := r.bookings.ListExpired(ctx, r.now(), r.batch)
	if err != nil {
		return 0, err
	}

	sem := semaphore.NewWeighted(r.workers)
	var wg sync.WaitGroup
	var reaped atomic.Int64

	for _, b := range expired {
		if err := sem.Acquire(ctx, 1); err != nil {
			break // context cancelled mid-sweep
		}
		wg.Add(1)
		go func(b domain.Booking) {
			defer wg.Done()
			defer sem.Release(1)
			if err := r.svc.Expire(ctx, b); err != nil {
				observability.ObserveReaped("error")
				log.Warn().Err(err).Str("booking_id", b.ID).Msg("reap failed")
				return
			}
			observability.ObserveReaped("reaped")
			reaped.Add(1)
		}(b)
	}
	wg.Wait()
	return int(reaped.Load()), nil
}
