package domain

import (
	"math"
	"time"
)

// LocationSample is one position report from a connected device. BookingID
// is an optional hint naming the booking the sender believes it is working.
type LocationSample struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	BookingID string  `json:"booking_id,omitempty"`
}

func (s LocationSample) Validate() error {
	if math.IsNaN(s.Latitude) || math.IsNaN(s.Longitude) {
		return ErrInvalidCoordinates
	}
	if math.Abs(s.Latitude) > 90 || math.Abs(s.Longitude) > 180 {
		return ErrInvalidCoordinates
	}
	if s.Latitude == 0 && s.Longitude == 0 {
		return ErrInvalidCoordinates
	}
	return nil
}

func (s LocationSample) Point() Point {
	return Point{Latitude: s.Latitude, Longitude: s.Longitude}
}

// Presence is the last known position of a tracked identity. Process memory
// is the source of truth; the Redis mirror exists for display only.
type Presence struct {
	Point      Point
	Role       string
	RecordedAt time.Time
}

// LivePosition is one row of the point-in-time tracking snapshot.
type LivePosition struct {
	UserID     string    `json:"user_id"`
	Role       string    `json:"role"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	RecordedAt time.Time `json:"recorded_at"`
	BookingID  string    `json:"booking_id,omitempty"`
	Status     string    `json:"status,omitempty"`
}

// TrackedBooking is the repo projection used to attribute live positions.
type TrackedBooking struct {
	ID           string
	Number       int64
	Status       string
	DriverID     *string
	TechnicianID *string
}
