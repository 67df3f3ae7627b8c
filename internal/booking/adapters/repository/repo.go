package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Charan951/driveflow-dashboard-sub001/internal/booking/domain"
)

type bookingRepo struct {
	pool *pgxpool.Pool
}

func NewBookingRepository(pool *pgxpool.Pool) domain.BookingRepository {
	return &bookingRepo{pool: pool}
}

const bookingColumns = `
	id, number, status,
	customer_id, merchant_id, driver_id, technician_id,
	pickup_address, pickup_lat, pickup_lng, drop_lat, drop_lng,
	photo_refs,
	otp_code, otp_expires_at, otp_attempts, otp_verified_at,
	payment_status, total, parts_cost, labour_cost, commission,
	created_at, updated_at`

func (r *bookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx)

	const q = `
		INSERT INTO bookings (
			id, number, status, customer_id,
			pickup_address, pickup_lat, pickup_lng, drop_lat, drop_lng,
			photo_refs, payment_status,
			total, parts_cost, labour_cost, commission
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
		RETURNING created_at, updated_at`

	err = tx.QueryRow(ctx, q,
		b.ID, b.Number, string(b.Status), b.CustomerID,
		b.PickupAddress, b.PickupLat, b.PickupLng, b.DropLat, b.DropLng,
		b.PhotoRefs, string(b.PaymentStatus),
		b.Total, b.PartsCost, b.LabourCost, b.Commission,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return classify(err)
	}

	return classify(tx.Commit(ctx))
}

func (r *bookingRepo) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	row := r.pool.QueryRow(ctx, q, id)
	return scanBooking(row)
}

func (r *bookingRepo) Assign(ctx context.Context, id string, a domain.Assignment) error {
	const q = `
		UPDATE bookings
		SET merchant_id   = COALESCE($2, merchant_id),
		    driver_id     = COALESCE($3, driver_id),
		    technician_id = COALESCE($4, technician_id),
		    updated_at    = now()
		WHERE id = $1`
	ct, err := r.pool.Exec(ctx, q, id, a.MerchantID, a.DriverID, a.TechnicianID)
	if err != nil {
		return classify(err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateStatus is the compare-and-swap at the heart of transition
// serialization: the row only changes if its status still matches what the
// caller validated against.
func (r *bookingRepo) UpdateStatus(ctx context.Context, id string, expected, target domain.Status) error {
	const q = `
		UPDATE bookings
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`
	return r.conditional(ctx, id, q, id, string(expected), string(target))
}

func (r *bookingRepo) UpdateStatusIssueOtp(ctx context.Context, id string, expected, target domain.Status, otp domain.DeliveryOtp) error {
	const q = `
		UPDATE bookings
		SET status = $3,
		    otp_code = $4, otp_expires_at = $5, otp_attempts = 0, otp_verified_at = NULL,
		    updated_at = now()
		WHERE id = $1 AND status = $2`
	return r.conditional(ctx, id, q, id, string(expected), string(target), otp.Code, otp.ExpiresAt)
}

func (r *bookingRepo) UpdateStatusConsumeOtp(ctx context.Context, id string, expected, target domain.Status, verifiedAt time.Time) error {
	const q = `
		UPDATE bookings
		SET status = $3, otp_verified_at = $4, updated_at = now()
		WHERE id = $1 AND status = $2 AND otp_verified_at IS NULL`
	return r.conditional(ctx, id, q, id, string(expected), string(target), verifiedAt)
}

func (r *bookingRepo) IncrementOtpAttempts(ctx context.Context, id string) error {
	const q = `UPDATE bookings SET otp_attempts = otp_attempts + 1, updated_at = now() WHERE id = $1`
	ct, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return classify(err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// conditional runs a guarded update and distinguishes "row gone" from "row
// moved on" when nothing matched.
func (r *bookingRepo) conditional(ctx context.Context, id, q string, args ...any) error {
	ct, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return classify(err)
	}
	if ct.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM bookings WHERE id = $1)`, id).Scan(&exists); err != nil {
		return classify(err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrStaleStatus
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		b             domain.Booking
		status        string
		paymentStatus string
		otpCode       *string
		otpExpiresAt  *time.Time
		otpAttempts   int
		otpVerifiedAt *time.Time
	)
	err := row.Scan(
		&b.ID, &b.Number, &status,
		&b.CustomerID, &b.MerchantID, &b.DriverID, &b.TechnicianID,
		&b.PickupAddress, &b.PickupLat, &b.PickupLng, &b.DropLat, &b.DropLng,
		&b.PhotoRefs,
		&otpCode, &otpExpiresAt, &otpAttempts, &otpVerifiedAt,
		&paymentStatus, &b.Total, &b.PartsCost, &b.LabourCost, &b.Commission,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, classify(err)
	}
	b.Status = domain.Status(status)
	b.PaymentStatus = domain.PaymentStatus(paymentStatus)
	if otpCode != nil && otpExpiresAt != nil {
		b.Otp = &domain.DeliveryOtp{
			Code:       *otpCode,
			ExpiresAt:  *otpExpiresAt,
			Attempts:   otpAttempts,
			VerifiedAt: otpVerifiedAt,
		}
	}
	return &b, nil
}

// classify maps storage failures onto the domain taxonomy: missing rows to
// NotFound, connectivity and timeout failures to the retryable transient
// class, everything else wrapped as-is.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", domain.ErrTransientStorage, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08: connection exceptions, class 57: operator intervention
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57") {
			return fmt.Errorf("%w: %v", domain.ErrTransientStorage, err)
		}
		return err
	}
	if pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %v", domain.ErrTransientStorage, err)
	}
	return err
}
