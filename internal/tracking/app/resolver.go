package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	commonlog "github.com/Charan951/driveflow-dashboard-sub001/internal/common/log"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/tracking/domain"
)

// ActiveBookingSource is the durable fallback lookup: the booking the staff
// member is assigned to, in an actively-in-motion status, most recently
// updated first. Returns domain.ErrNoActiveBooking when there is none.
type ActiveBookingSource interface {
	ActiveBookingForStaff(ctx context.Context, staffID string) (string, error)
}

type cacheEntry struct {
	bookingID string
	cachedAt  time.Time
}

// Resolver attributes a staff identity to its current booking. An explicit
// hint wins; otherwise a cache entry younger than the TTL is trusted, and
// only on a miss does the durable lookup run. The cache is purely a
// performance layer; dropping it changes latency, not behavior.
type Resolver struct {
	src     ActiveBookingSource
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewResolver(src ActiveBookingSource, ttl, timeout time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		src:     src,
		ttl:     ttl,
		timeout: timeout,
		logger:  logger,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Resolve returns the booking id to attribute samples from staffID to, or
// false when the staff member is between jobs or attribution is currently
// unavailable. A lookup failure degrades to no attribution; it never errors
// the caller.
func (r *Resolver) Resolve(ctx context.Context, staffID, hint string) (string, bool) {
	if hint != "" {
		r.store(staffID, hint)
		return hint, true
	}

	if id, ok := r.fresh(staffID); ok {
		return id, true
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	id, err := r.src.ActiveBookingForStaff(ctx, staffID)
	switch {
	case err == nil:
		r.store(staffID, id)
		return id, true
	case errors.Is(err, domain.ErrNoActiveBooking):
		r.drop(staffID)
		return "", false
	default:
		commonlog.Error(ctx, r.logger, "active_booking_lookup_fail",
			"Durable active-booking lookup failed; sample stays unattributed", err)
		return "", false
	}
}

func (r *Resolver) fresh(staffID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[staffID]
	if !ok || r.now().Sub(e.cachedAt) >= r.ttl {
		return "", false
	}
	return e.bookingID, true
}

func (r *Resolver) store(staffID, bookingID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[staffID] = cacheEntry{bookingID: bookingID, cachedAt: r.now()}
}

func (r *Resolver) drop(staffID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, staffID)
}
