package app

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/Charan951/driveflow-dashboard-sub001/internal/common/auth"
	commonlog "github.com/Charan951/driveflow-dashboard-sub001/internal/common/log"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/common/ws"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/tracking/domain"
)

type Broadcaster interface {
	Publish(room string, event any)
}

// PresenceMirror opportunistically copies a position into durable display
// storage. Failures never affect the ingest path.
type PresenceMirror interface {
	Mirror(ctx context.Context, userID string, p domain.Presence) error
}

// TrackedBookingSource lists the bookings in actively-tracked statuses for
// the live snapshot.
type TrackedBookingSource interface {
	TrackedBookings(ctx context.Context) ([]domain.TrackedBooking, error)
}

// Service is the location ingest and live-view side of the core: it owns
// staff presence, attributes samples to bookings, and fans them out.
type Service struct {
	presence *PresenceStore
	resolver *Resolver
	hub      Broadcaster
	mirror   PresenceMirror
	tracked  TrackedBookingSource
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(
	presence *PresenceStore,
	resolver *Resolver,
	hub Broadcaster,
	mirror PresenceMirror,
	tracked TrackedBookingSource,
	logger *slog.Logger,
) *Service {
	return &Service{
		presence: presence,
		resolver: resolver,
		hub:      hub,
		mirror:   mirror,
		tracked:  tracked,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) Presence() *PresenceStore { return s.presence }

// Ingest processes one location sample. Samples from unauthenticated
// connections are dropped silently; the sender never learns whether the
// injection worked. Nothing here blocks on durable storage beyond the
// resolver's bounded fallback lookup.
func (s *Service) Ingest(ctx context.Context, identity *auth.Claims, sample domain.LocationSample) {
	if identity == nil {
		s.logger.Debug("location sample from unauthenticated connection dropped")
		return
	}
	if err := sample.Validate(); err != nil {
		commonlog.Warn(ctx, s.logger, "location_sample_invalid", "Dropping malformed location sample")
		return
	}

	s.presence.Set(identity.UserID, identity.Role, sample.Point())
	s.mirrorAsync(ctx, identity.UserID, identity.Role, sample.Point())

	event := map[string]any{
		"type":      "location_update",
		"user_id":   identity.UserID,
		"role":      identity.Role,
		"latitude":  sample.Latitude,
		"longitude": sample.Longitude,
		"timestamp": s.now().UTC().Format(time.RFC3339),
	}
	s.hub.Publish(ws.RoomObservers, event)

	if identity.Role != auth.RoleStaff {
		return
	}
	bookingID, ok := s.resolver.Resolve(ctx, identity.UserID, sample.BookingID)
	if !ok {
		return
	}
	attributed := map[string]any{
		"type":       "location_update",
		"user_id":    identity.UserID,
		"role":       identity.Role,
		"booking_id": bookingID,
		"latitude":   sample.Latitude,
		"longitude":  sample.Longitude,
		"timestamp":  s.now().UTC().Format(time.RFC3339),
	}
	s.hub.Publish(ws.BookingRoom(bookingID), attributed)
}

func (s *Service) mirrorAsync(ctx context.Context, userID, role string, p domain.Point) {
	if s.mirror == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	pr := domain.Presence{Point: p, Role: role, RecordedAt: s.now()}
	go func() {
		mctx, cancel := context.WithTimeout(bg, 2*time.Second)
		defer cancel()
		if err := s.mirror.Mirror(mctx, userID, pr); err != nil {
			commonlog.Error(mctx, s.logger, "presence_mirror_fail", "Failed to mirror presence", err)
		}
	}()
}

// LivePositions returns a point-in-time snapshot of tracked staff joined
// with their actively-in-motion bookings. Attribution is best-effort: if
// the booking query fails, positions are still returned unattributed.
func (s *Service) LivePositions(ctx context.Context) []domain.LivePosition {
	byStaff := make(map[string]domain.TrackedBooking)
	bookings, err := s.tracked.TrackedBookings(ctx)
	if err != nil {
		commonlog.Error(ctx, s.logger, "tracked_bookings_fail", "Live snapshot proceeds without booking attribution", err)
	} else {
		for _, tb := range bookings {
			if tb.DriverID != nil {
				byStaff[*tb.DriverID] = tb
			}
			if tb.TechnicianID != nil {
				byStaff[*tb.TechnicianID] = tb
			}
		}
	}

	all := s.presence.All()
	out := make([]domain.LivePosition, 0, len(all))
	for userID, pr := range all {
		lp := domain.LivePosition{
			UserID:     userID,
			Role:       pr.Role,
			Latitude:   pr.Point.Latitude,
			Longitude:  pr.Point.Longitude,
			RecordedAt: pr.RecordedAt,
		}
		if tb, ok := byStaff[userID]; ok {
			lp.BookingID = tb.ID
			lp.Status = tb.Status
		}
		out = append(out, lp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
