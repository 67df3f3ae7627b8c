package domain

import (
	"context"
	"time"
)

// Assignment carries the parties to attach to a booking; nil fields are left
// untouched.
type Assignment struct {
	MerchantID   *string
	DriverID     *string
	TechnicianID *string
}

type BookingRepository interface {
	Create(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id string) (*Booking, error)
	Assign(ctx context.Context, id string, a Assignment) error

	// UpdateStatus performs the conditional write: it only succeeds when the
	// persisted status still equals expected. Zero rows with the booking
	// present maps to ErrStaleStatus.
	UpdateStatus(ctx context.Context, id string, expected, target Status) error
	UpdateStatusIssueOtp(ctx context.Context, id string, expected, target Status, otp DeliveryOtp) error
	UpdateStatusConsumeOtp(ctx context.Context, id string, expected, target Status, verifiedAt time.Time) error
	IncrementOtpAttempts(ctx context.Context, id string) error
}

type UserStore interface {
	GetByID(ctx context.Context, id string) (*User, error)
}

// Counter hands out the monotonically increasing display sequence numbers.
// Numbers are unique even under concurrent booking creation.
type Counter interface {
	Next(ctx context.Context, sequence string) (int64, error)
}

// Notifier is the fire-and-forget outbound notification dispatch. Failures
// are logged by callers and never fail the triggering operation.
type Notifier interface {
	Notify(ctx context.Context, userID, kind string, payload map[string]any) error
}

type Broadcaster interface {
	Publish(room string, event any)
	SendToUser(userID string, event any)
}

// StatusPublisher mirrors successful transitions onto the message broker
// for out-of-process consumers. Post-commit; failures are logged, never
// rolled back.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, bookingID, status, customerID string) error
}
