package domain

import (
	"time"
)

type Status string

const (
	StatusCreated           Status = "CREATED"
	StatusAssigned          Status = "ASSIGNED"
	StatusAccepted          Status = "ACCEPTED"
	StatusReachedCustomer   Status = "REACHED_CUSTOMER"
	StatusVehiclePicked     Status = "VEHICLE_PICKED"
	StatusReachedMerchant   Status = "REACHED_MERCHANT"
	StatusVehicleAtMerchant Status = "VEHICLE_AT_MERCHANT"
	StatusServiceStarted    Status = "SERVICE_STARTED"
	StatusServiceCompleted  Status = "SERVICE_COMPLETED"
	StatusOutForDelivery    Status = "OUT_FOR_DELIVERY"
	StatusDelivered         Status = "DELIVERED"
	StatusCompleted         Status = "COMPLETED"
	StatusCancelled         Status = "CANCELLED"
)

// next holds the single forward edge out of each status. CANCELLED is
// reachable separately from any state before DELIVERED.
var next = map[Status]Status{
	StatusCreated:           StatusAssigned,
	StatusAssigned:          StatusAccepted,
	StatusAccepted:          StatusReachedCustomer,
	StatusReachedCustomer:   StatusVehiclePicked,
	StatusVehiclePicked:     StatusReachedMerchant,
	StatusReachedMerchant:   StatusVehicleAtMerchant,
	StatusVehicleAtMerchant: StatusServiceStarted,
	StatusServiceStarted:    StatusServiceCompleted,
	StatusServiceCompleted:  StatusOutForDelivery,
	StatusOutForDelivery:    StatusDelivered,
	StatusDelivered:         StatusCompleted,
}

func (s Status) Valid() bool {
	if s == StatusCompleted || s == StatusCancelled {
		return true
	}
	_, ok := next[s]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether the edge from -> to exists. Status never
// regresses; the only lateral move is cancellation before delivery.
func CanTransition(from, to Status) bool {
	if to == StatusCancelled {
		return from != StatusDelivered && from != StatusCompleted && from != StatusCancelled
	}
	return next[from] == to
}

// TrackedStatuses is the "actively in motion" subset used to attribute a
// staff member's ambient location samples to a booking.
var TrackedStatuses = []Status{
	StatusAssigned,
	StatusAccepted,
	StatusReachedCustomer,
	StatusVehiclePicked,
	StatusReachedMerchant,
	StatusOutForDelivery,
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
)

// DeliveryOtp gates the terminal delivery handover. One record per delivery
// cycle, written when the booking goes out for delivery and consumed once.
type DeliveryOtp struct {
	Code       string
	ExpiresAt  time.Time
	Attempts   int
	VerifiedAt *time.Time
}

func (o *DeliveryOtp) Consumed() bool { return o != nil && o.VerifiedAt != nil }

type Booking struct {
	ID     string `json:"id"`
	Number int64  `json:"number"`
	Status Status `json:"status"`

	CustomerID   string  `json:"customer_id"`
	MerchantID   *string `json:"merchant_id,omitempty"`
	DriverID     *string `json:"driver_id,omitempty"`
	TechnicianID *string `json:"technician_id,omitempty"`

	PickupAddress string   `json:"pickup_address"`
	PickupLat     *float64 `json:"pickup_lat,omitempty"`
	PickupLng     *float64 `json:"pickup_lng,omitempty"`
	DropLat       *float64 `json:"drop_lat,omitempty"`
	DropLng       *float64 `json:"drop_lng,omitempty"`

	PhotoRefs []string `json:"photo_refs,omitempty"`

	Otp *DeliveryOtp `json:"-"`

	PaymentStatus PaymentStatus `json:"payment_status"`
	Total         float64       `json:"total"`
	PartsCost     float64       `json:"parts_cost"`
	LabourCost    float64       `json:"labour_cost"`
	Commission    float64       `json:"commission"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AssignedStaff reports whether the given user is the booking's pickup
// driver or technician.
func (b *Booking) AssignedStaff(userID string) bool {
	if b.DriverID != nil && *b.DriverID == userID {
		return true
	}
	return b.TechnicianID != nil && *b.TechnicianID == userID
}

func (b *Booking) AssignedMerchant(userID string) bool {
	return b.MerchantID != nil && *b.MerchantID == userID
}

// User is the projection of the external user/merchant store consumed here:
// identity, role, and last saved coordinates.
type User struct {
	ID   string
	Role string
	Lat  *float64
	Lng  *float64
}
