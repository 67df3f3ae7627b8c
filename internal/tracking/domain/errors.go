package domain

import "errors"

var (
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrNoActiveBooking    = errors.New("no active booking for staff")
)
