package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	booking "github.com/Charan951/driveflow-dashboard-sub001/internal/booking/domain"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/tracking/domain"
)

// TrackingRepository serves the resolver's durable fallback and the live
// snapshot projection.
type TrackingRepository struct {
	pool *pgxpool.Pool
}

func NewTrackingRepository(pool *pgxpool.Pool) *TrackingRepository {
	return &TrackingRepository{pool: pool}
}

func trackedStatusStrings() []string {
	out := make([]string, len(booking.TrackedStatuses))
	for i, s := range booking.TrackedStatuses {
		out[i] = string(s)
	}
	return out
}

// ActiveBookingForStaff is the durable fallback behind the resolver cache:
// the most recently updated in-motion booking the staff member is assigned
// to, as driver or technician.
func (r *TrackingRepository) ActiveBookingForStaff(ctx context.Context, staffID string) (string, error) {
	const q = `
		SELECT id
		FROM bookings
		WHERE (driver_id = $1 OR technician_id = $1)
		  AND status = ANY($2)
		ORDER BY updated_at DESC
		LIMIT 1`
	var id string
	err := r.pool.QueryRow(ctx, q, staffID, trackedStatusStrings()).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNoActiveBooking
		}
		return "", fmt.Errorf("query active booking: %w", err)
	}
	return id, nil
}

func (r *TrackingRepository) TrackedBookings(ctx context.Context) ([]domain.TrackedBooking, error) {
	const q = `
		SELECT id, number, status, driver_id, technician_id
		FROM bookings
		WHERE status = ANY($1)`
	rows, err := r.pool.Query(ctx, q, trackedStatusStrings())
	if err != nil {
		return nil, fmt.Errorf("query tracked bookings: %w", err)
	}
	defer rows.Close()

	var out []domain.TrackedBooking
	for rows.Next() {
		var tb domain.TrackedBooking
		if err := rows.Scan(&tb.ID, &tb.Number, &tb.Status, &tb.DriverID, &tb.TechnicianID); err != nil {
			return nil, fmt.Errorf("scan tracked booking: %w", err)
		}
		out = append(out, tb)
	}
	return out, rows.Err()
}
