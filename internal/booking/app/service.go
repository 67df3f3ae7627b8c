package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Charan951/driveflow-dashboard-sub001/internal/booking/domain"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/common/auth"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/common/log"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/common/ws"
	track "github.com/Charan951/driveflow-dashboard-sub001/internal/tracking/domain"
)

const bookingSequence = "booking_number"

// minPickupPhotos is the evidence floor for taking custody of a vehicle.
const minPickupPhotos = 4

// PresenceReader exposes the last known position of a tracked identity,
// written by the location ingest path.
type PresenceReader interface {
	Last(staffID string) (track.Point, time.Time, bool)
}

// Service drives the booking lifecycle: creation, party assignment, and the
// guarded status transitions.
type Service struct {
	repo        domain.BookingRepository
	users       domain.UserStore
	counter     domain.Counter
	notifier    domain.Notifier
	statusPub   domain.StatusPublisher
	broadcaster domain.Broadcaster
	presence    PresenceReader
	otp         *OtpIssuer
	radiusM     float64
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(
	repo domain.BookingRepository,
	users domain.UserStore,
	counter domain.Counter,
	notifier domain.Notifier,
	statusPub domain.StatusPublisher,
	broadcaster domain.Broadcaster,
	presence PresenceReader,
	otp *OtpIssuer,
	radiusM float64,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:        repo,
		users:       users,
		counter:     counter,
		notifier:    notifier,
		statusPub:   statusPub,
		broadcaster: broadcaster,
		presence:    presence,
		otp:         otp,
		radiusM:     radiusM,
		logger:      logger,
		now:         time.Now,
	}
}

type CreateRequest struct {
	PickupAddress string   `json:"pickup_address"`
	PickupLat     *float64 `json:"pickup_lat,omitempty"`
	PickupLng     *float64 `json:"pickup_lng,omitempty"`
	DropLat       *float64 `json:"drop_lat,omitempty"`
	DropLng       *float64 `json:"drop_lng,omitempty"`
}

func (r CreateRequest) Validate() error {
	if strings.TrimSpace(r.PickupAddress) == "" {
		return fmt.Errorf("%w: pickup address required", domain.ErrInvalidRequest)
	}
	for _, p := range []*track.Point{
		pointFrom(r.PickupLat, r.PickupLng),
		pointFrom(r.DropLat, r.DropLng),
	} {
		if p != nil && !p.Valid() {
			return fmt.Errorf("%w: coordinates out of range", domain.ErrInvalidRequest)
		}
	}
	return nil
}

// Create opens a new booking for the requesting customer. The display
// number comes from the sequence counter exactly once, at creation.
func (s *Service) Create(ctx context.Context, requester *auth.Claims, req CreateRequest) (*domain.Booking, error) {
	if requester == nil {
		return nil, domain.ErrUnauthorized
	}
	if requester.Role != auth.RoleCustomer && requester.Role != auth.RoleAdmin {
		return nil, domain.ErrUnauthorized
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	number, err := s.counter.Next(ctx, bookingSequence)
	if err != nil {
		return nil, fmt.Errorf("next booking number: %w", err)
	}

	b := &domain.Booking{
		ID:            uuid.New().String(),
		Number:        number,
		Status:        domain.StatusCreated,
		CustomerID:    requester.UserID,
		PickupAddress: req.PickupAddress,
		PickupLat:     req.PickupLat,
		PickupLng:     req.PickupLng,
		DropLat:       req.DropLat,
		DropLng:       req.DropLng,
		PaymentStatus: domain.PaymentPending,
	}
	if err := s.repo.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	s.broadcastStatus(b)
	s.notifyAsync(ctx, b.CustomerID, "booking_created", map[string]any{
		"booking_id": b.ID,
		"number":     b.Number,
	})
	return b, nil
}

// Assign attaches merchant and staff parties to a booking. Admin only; the
// ASSIGNED status itself is reached through a normal transition afterwards.
func (s *Service) Assign(ctx context.Context, requester *auth.Claims, bookingID string, a domain.Assignment) (*domain.Booking, error) {
	if !requester.IsAdmin() {
		return nil, domain.ErrUnauthorized
	}
	if a.MerchantID == nil && a.DriverID == nil && a.TechnicianID == nil {
		return nil, fmt.Errorf("%w: nothing to assign", domain.ErrInvalidRequest)
	}
	if err := s.repo.Assign(ctx, bookingID, a); err != nil {
		return nil, fmt.Errorf("assign booking: %w", err)
	}
	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	s.broadcastStatus(b)
	for _, staff := range []*string{a.DriverID, a.TechnicianID} {
		if staff != nil {
			s.notifyAsync(ctx, *staff, "job_assigned", map[string]any{
				"booking_id": b.ID,
				"number":     b.Number,
			})
		}
	}
	return b, nil
}

// Transition validates and applies one status move. Authorization is
// decided first, then edge validity, then the edge guards; nothing is
// written until every check has passed, and the write itself is conditional
// on the status the checks ran against.
func (s *Service) Transition(ctx context.Context, requester *auth.Claims, bookingID string, target domain.Status, otpCode string) (*domain.Booking, error) {
	if requester == nil {
		return nil, domain.ErrUnauthorized
	}
	if !target.Valid() || target == domain.StatusCreated {
		return nil, fmt.Errorf("%w: unknown target status %q", domain.ErrInvalidRequest, target)
	}

	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if err := authorize(b, requester, target); err != nil {
		return nil, err
	}
	if !domain.CanTransition(b.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, b.Status, target)
	}

	var issued *domain.DeliveryOtp
	switch target {
	case domain.StatusReachedCustomer:
		if err := s.guardProximity(requester.UserID, pointFrom(b.PickupLat, b.PickupLng)); err != nil {
			return nil, err
		}

	case domain.StatusReachedMerchant:
		mp, err := s.merchantPoint(ctx, b)
		if err != nil {
			return nil, err
		}
		if err := s.guardProximity(requester.UserID, mp); err != nil {
			return nil, err
		}

	case domain.StatusVehiclePicked:
		if len(b.PhotoRefs) < minPickupPhotos {
			return nil, domain.Precondition(domain.ReasonInsufficientEvidence)
		}

	case domain.StatusOutForDelivery:
		if b.PaymentStatus != domain.PaymentPaid {
			return nil, domain.Precondition(domain.ReasonPaymentPending)
		}
		otp := s.otp.Issue()
		issued = &otp

	case domain.StatusDelivered:
		if err := s.verifyOtpGuard(ctx, b, otpCode); err != nil {
			return nil, err
		}
		// the drop geofence applies to the courier; customers confirming
		// receipt and admins are not location-tracked
		if requester.Role == auth.RoleStaff {
			if drop := pointFrom(b.DropLat, b.DropLng); drop != nil {
				if err := s.guardProximity(requester.UserID, drop); err != nil {
					return nil, err
				}
			}
		}

	case domain.StatusCancelled:
		// no guards; any pre-delivery state may cancel
	}

	verifiedAt := s.now()
	switch {
	case issued != nil:
		err = s.repo.UpdateStatusIssueOtp(ctx, b.ID, b.Status, target, *issued)
	case target == domain.StatusDelivered:
		err = s.repo.UpdateStatusConsumeOtp(ctx, b.ID, b.Status, target, verifiedAt)
	default:
		err = s.repo.UpdateStatus(ctx, b.ID, b.Status, target)
	}
	if err != nil {
		return nil, err
	}

	b.Status = target
	b.UpdatedAt = s.now()
	if issued != nil {
		b.Otp = issued
	}
	if target == domain.StatusDelivered && b.Otp != nil {
		b.Otp.VerifiedAt = &verifiedAt
	}

	s.broadcastStatus(b)
	switch target {
	case domain.StatusOutForDelivery:
		s.notifyAsync(ctx, b.CustomerID, "delivery_code", map[string]any{
			"booking_id": b.ID,
			"code":       issued.Code,
			"expires_at": issued.ExpiresAt.UTC().Format(time.RFC3339),
		})
	case domain.StatusDelivered, domain.StatusCancelled, domain.StatusCompleted:
		s.notifyAsync(ctx, b.CustomerID, "status_change", map[string]any{
			"booking_id": b.ID,
			"status":     string(target),
		})
	}
	return b, nil
}

// VerifyDeliveryCode is the dedicated delivery handover operation: a correct
// code moves the booking to DELIVERED.
func (s *Service) VerifyDeliveryCode(ctx context.Context, requester *auth.Claims, bookingID, code string) (*domain.Booking, error) {
	return s.Transition(ctx, requester, bookingID, domain.StatusDelivered, code)
}

// ReissueDeliveryCode replaces the current delivery code with a fresh one
// and resets the attempt counter. This is the only exit from a locked code:
// the booking must still be out for delivery.
func (s *Service) ReissueDeliveryCode(ctx context.Context, requester *auth.Claims, bookingID string) (*domain.Booking, error) {
	if requester == nil {
		return nil, domain.ErrUnauthorized
	}
	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	switch {
	case requester.IsAdmin():
	case requester.Role == auth.RoleMerchant && b.AssignedMerchant(requester.UserID):
	case requester.Role == auth.RoleStaff && b.AssignedStaff(requester.UserID):
	default:
		return nil, domain.ErrUnauthorized
	}
	if b.Status != domain.StatusOutForDelivery {
		return nil, fmt.Errorf("%w: no delivery code to reissue in %s", domain.ErrInvalidTransition, b.Status)
	}

	otp := s.otp.Issue()
	if err := s.repo.UpdateStatusIssueOtp(ctx, b.ID, b.Status, b.Status, otp); err != nil {
		return nil, err
	}
	b.Otp = &otp
	b.UpdatedAt = s.now()

	s.notifyAsync(ctx, b.CustomerID, "delivery_code", map[string]any{
		"booking_id": b.ID,
		"code":       otp.Code,
		"expires_at": otp.ExpiresAt.UTC().Format(time.RFC3339),
	})
	return b, nil
}

func (s *Service) Get(ctx context.Context, requester *auth.Claims, bookingID string) (*domain.Booking, error) {
	if requester == nil {
		return nil, domain.ErrUnauthorized
	}
	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !requester.IsAdmin() && b.CustomerID != requester.UserID &&
		!b.AssignedMerchant(requester.UserID) && !b.AssignedStaff(requester.UserID) {
		return nil, domain.ErrUnauthorized
	}
	return b, nil
}

// statuses a staff member may drive on a booking they are assigned to.
var staffTargets = map[domain.Status]bool{
	domain.StatusAccepted:          true,
	domain.StatusReachedCustomer:   true,
	domain.StatusVehiclePicked:     true,
	domain.StatusReachedMerchant:   true,
	domain.StatusVehicleAtMerchant: true,
	domain.StatusOutForDelivery:    true,
	domain.StatusDelivered:         true,
}

func authorize(b *domain.Booking, requester *auth.Claims, target domain.Status) error {
	switch {
	case requester.IsAdmin():
		return nil
	case requester.Role == auth.RoleMerchant && b.AssignedMerchant(requester.UserID):
		return nil
	case requester.Role == auth.RoleCustomer && b.CustomerID == requester.UserID:
		// legacy acceptance path: customers confirm receipt only
		if target == domain.StatusDelivered {
			return nil
		}
		return domain.ErrUnauthorized
	case requester.Role == auth.RoleStaff && b.AssignedStaff(requester.UserID):
		if staffTargets[target] {
			return nil
		}
		return domain.ErrUnauthorized
	default:
		return domain.ErrUnauthorized
	}
}

func (s *Service) guardProximity(staffID string, target *track.Point) error {
	if target == nil || !target.Valid() {
		return domain.Precondition(domain.ReasonLocationUnavailable)
	}
	pos, _, ok := s.presence.Last(staffID)
	if !ok {
		return domain.Precondition(domain.ReasonLocationUnavailable)
	}
	if !track.Within(&pos, target, s.radiusM) {
		return domain.Precondition(domain.ReasonTooFar)
	}
	return nil
}

func (s *Service) merchantPoint(ctx context.Context, b *domain.Booking) (*track.Point, error) {
	if b.MerchantID == nil {
		return nil, domain.Precondition(domain.ReasonLocationUnavailable)
	}
	m, err := s.users.GetByID(ctx, *b.MerchantID)
	if err != nil {
		return nil, err
	}
	p := pointFrom(m.Lat, m.Lng)
	if p == nil {
		return nil, domain.Precondition(domain.ReasonLocationUnavailable)
	}
	return p, nil
}

func (s *Service) verifyOtpGuard(ctx context.Context, b *domain.Booking, code string) error {
	err := s.otp.Verify(b.Otp, code)
	if err == nil {
		return nil
	}
	if pe, ok := err.(*domain.PreconditionError); ok {
		// wrong and expired codes burn an attempt; persist it so the ceiling
		// holds across requests
		if pe.Reason == domain.ReasonOtpWrong || pe.Reason == domain.ReasonOtpExpired {
			if incErr := s.repo.IncrementOtpAttempts(ctx, b.ID); incErr != nil {
				log.Error(ctx, s.logger, "otp_attempt_persist_fail", "Failed to persist OTP attempt", incErr)
			}
		}
	}
	return err
}

func (s *Service) broadcastStatus(b *domain.Booking) {
	event := map[string]any{
		"type":       "status_update",
		"booking_id": b.ID,
		"number":     b.Number,
		"status":     string(b.Status),
		"timestamp":  s.now().UTC().Format(time.RFC3339),
	}
	s.broadcaster.Publish(ws.BookingRoom(b.ID), event)
	s.broadcaster.SendToUser(b.CustomerID, event)
	if b.MerchantID != nil {
		s.broadcaster.SendToUser(*b.MerchantID, event)
	}

	if s.statusPub != nil {
		bookingID, status, customerID := b.ID, string(b.Status), b.CustomerID
		go func() {
			pctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.statusPub.PublishStatus(pctx, bookingID, status, customerID); err != nil {
				log.ErrorX(s.logger, "status_publish_fail", "Failed to publish status event", err)
			}
		}()
	}
}

// notifyAsync dispatches a notification without blocking or failing the
// caller. The context is detached so a finished request does not cancel the
// send.
func (s *Service) notifyAsync(ctx context.Context, userID, kind string, payload map[string]any) {
	bg := context.WithoutCancel(ctx)
	go func() {
		nctx, cancel := context.WithTimeout(bg, 5*time.Second)
		defer cancel()
		if err := s.notifier.Notify(nctx, userID, kind, payload); err != nil {
			log.Error(nctx, s.logger, "notify_fail", "Failed to dispatch notification", err)
		}
	}()
}

func pointFrom(lat, lng *float64) *track.Point {
	if lat == nil || lng == nil {
		return nil
	}
	return &track.Point{Latitude: *lat, Longitude: *lng}
}
