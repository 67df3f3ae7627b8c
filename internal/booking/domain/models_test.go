package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_ForwardEdges(t *testing.T) {
	chain := []Status{
		StatusCreated, StatusAssigned, StatusAccepted, StatusReachedCustomer,
		StatusVehiclePicked, StatusReachedMerchant, StatusVehicleAtMerchant,
		StatusServiceStarted, StatusServiceCompleted, StatusOutForDelivery,
		StatusDelivered, StatusCompleted,
	}
	for i := 0; i < len(chain)-1; i++ {
		assert.True(t, CanTransition(chain[i], chain[i+1]),
			"%s -> %s must be a valid edge", chain[i], chain[i+1])
	}
}

func TestCanTransition_NoBackEdges(t *testing.T) {
	assert.False(t, CanTransition(StatusAccepted, StatusAssigned))
	assert.False(t, CanTransition(StatusDelivered, StatusOutForDelivery))
	assert.False(t, CanTransition(StatusVehiclePicked, StatusCreated))
}

func TestCanTransition_NoSkips(t *testing.T) {
	assert.False(t, CanTransition(StatusCreated, StatusAccepted))
	assert.False(t, CanTransition(StatusAccepted, StatusVehiclePicked))
	assert.False(t, CanTransition(StatusServiceStarted, StatusOutForDelivery))
}

func TestCanTransition_Cancellation(t *testing.T) {
	for _, from := range []Status{
		StatusCreated, StatusAssigned, StatusAccepted, StatusReachedCustomer,
		StatusVehiclePicked, StatusReachedMerchant, StatusVehicleAtMerchant,
		StatusServiceStarted, StatusServiceCompleted, StatusOutForDelivery,
	} {
		assert.True(t, CanTransition(from, StatusCancelled), "cancel from %s", from)
	}
	assert.False(t, CanTransition(StatusDelivered, StatusCancelled))
	assert.False(t, CanTransition(StatusCompleted, StatusCancelled))
	assert.False(t, CanTransition(StatusCancelled, StatusCancelled))
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusCreated.Valid())
	assert.True(t, StatusCompleted.Valid())
	assert.True(t, StatusCancelled.Valid())
	assert.False(t, Status("UNKNOWN").Valid())
}

func TestBookingParties(t *testing.T) {
	driver := "d1"
	tech := "t1"
	merchant := "m1"
	b := &Booking{DriverID: &driver, TechnicianID: &tech, MerchantID: &merchant}

	assert.True(t, b.AssignedStaff("d1"))
	assert.True(t, b.AssignedStaff("t1"))
	assert.False(t, b.AssignedStaff("m1"))
	assert.True(t, b.AssignedMerchant("m1"))
	assert.False(t, b.AssignedMerchant("d1"))

	empty := &Booking{}
	assert.False(t, empty.AssignedStaff("d1"))
	assert.False(t, empty.AssignedMerchant("m1"))
}
