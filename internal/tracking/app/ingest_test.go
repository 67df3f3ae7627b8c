package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Charan951/driveflow-dashboard-sub001/internal/common/auth"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/common/ws"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/tracking/domain"
)

type fakeHub struct {
	mu    sync.Mutex
	rooms map[string][]any
}

func newFakeHub() *fakeHub { return &fakeHub{rooms: map[string][]any{}} }

func (h *fakeHub) Publish(room string, event any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rooms[room] = append(h.rooms[room], event)
}

func (h *fakeHub) count(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

func (h *fakeHub) last(room string) map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	events := h.rooms[room]
	if len(events) == 0 {
		return nil
	}
	return events[len(events)-1].(map[string]any)
}

type fakeTracked struct {
	bookings []domain.TrackedBooking
	err      error
}

func (f *fakeTracked) TrackedBookings(context.Context) ([]domain.TrackedBooking, error) {
	return f.bookings, f.err
}

func newIngestService(src *fakeSource, tracked *fakeTracked) (*Service, *fakeHub) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := newFakeHub()
	resolver := NewResolver(src, 30*time.Second, 2*time.Second, logger)
	svc := NewService(NewPresenceStore(), resolver, hub, nil, tracked, logger)
	return svc, hub
}

func TestIngestUnauthenticatedDropped(t *testing.T) {
	svc, hub := newIngestService(&fakeSource{}, &fakeTracked{})

	svc.Ingest(context.Background(), nil, domain.LocationSample{Latitude: 12.97, Longitude: 77.59})

	assert.Zero(t, hub.count(ws.RoomObservers))
	assert.Empty(t, svc.Presence().All())
}

func TestIngestInvalidSampleDropped(t *testing.T) {
	svc, hub := newIngestService(&fakeSource{}, &fakeTracked{})
	staff := &auth.Claims{UserID: "drv-1", Role: auth.RoleStaff}

	svc.Ingest(context.Background(), staff, domain.LocationSample{Latitude: 91, Longitude: 0})
	svc.Ingest(context.Background(), staff, domain.LocationSample{Latitude: 0, Longitude: 0})

	assert.Zero(t, hub.count(ws.RoomObservers))
	assert.Empty(t, svc.Presence().All())
}

func TestIngestStaffSampleAttributed(t *testing.T) {
	src := &fakeSource{byStaff: map[string]string{"drv-1": "bk-1"}}
	svc, hub := newIngestService(src, &fakeTracked{})
	staff := &auth.Claims{UserID: "drv-1", Role: auth.RoleStaff}

	svc.Ingest(context.Background(), staff, domain.LocationSample{Latitude: 12.97, Longitude: 77.59})

	// observers always see the sample
	require.Equal(t, 1, hub.count(ws.RoomObservers))
	ev := hub.last(ws.RoomObservers)
	assert.Equal(t, "location_update", ev["type"])
	assert.Equal(t, "drv-1", ev["user_id"])

	// staff samples additionally reach the attributed booking room
	require.Equal(t, 1, hub.count(ws.BookingRoom("bk-1")))
	assert.Equal(t, "bk-1", hub.last(ws.BookingRoom("bk-1"))["booking_id"])

	// presence was recorded
	p, _, ok := svc.Presence().Last("drv-1")
	require.True(t, ok)
	assert.Equal(t, 12.97, p.Latitude)
}

func TestIngestStaffBetweenJobs(t *testing.T) {
	svc, hub := newIngestService(&fakeSource{}, &fakeTracked{})
	staff := &auth.Claims{UserID: "drv-1", Role: auth.RoleStaff}

	svc.Ingest(context.Background(), staff, domain.LocationSample{Latitude: 12.97, Longitude: 77.59})

	assert.Equal(t, 1, hub.count(ws.RoomObservers), "unattributed samples still reach observers")
	hub.mu.Lock()
	roomCount := len(hub.rooms)
	hub.mu.Unlock()
	assert.Equal(t, 1, roomCount, "no booking room publish without an active booking")
}

func TestIngestNonStaffNeverAttributed(t *testing.T) {
	src := &fakeSource{byStaff: map[string]string{"cust-1": "bk-1"}}
	svc, hub := newIngestService(src, &fakeTracked{})
	cust := &auth.Claims{UserID: "cust-1", Role: auth.RoleCustomer}

	svc.Ingest(context.Background(), cust, domain.LocationSample{
		Latitude: 12.97, Longitude: 77.59, BookingID: "bk-1",
	})

	assert.Equal(t, 1, hub.count(ws.RoomObservers))
	assert.Zero(t, hub.count(ws.BookingRoom("bk-1")))
	assert.Zero(t, src.callCount(), "resolver must not run for non-staff roles")
}

func TestLivePositions(t *testing.T) {
	drv := "drv-1"
	tracked := &fakeTracked{bookings: []domain.TrackedBooking{
		{ID: "bk-1", Number: 7, Status: "OUT_FOR_DELIVERY", DriverID: &drv},
	}}
	svc, _ := newIngestService(&fakeSource{}, tracked)

	svc.Presence().Set("drv-1", auth.RoleStaff, domain.Point{Latitude: 12.97, Longitude: 77.59})
	svc.Presence().Set("tech-9", auth.RoleStaff, domain.Point{Latitude: 13.00, Longitude: 77.60})

	out := svc.LivePositions(context.Background())
	require.Len(t, out, 2)

	// sorted by user id
	assert.Equal(t, "drv-1", out[0].UserID)
	assert.Equal(t, "tech-9", out[1].UserID)

	assert.Equal(t, "bk-1", out[0].BookingID)
	assert.Equal(t, "OUT_FOR_DELIVERY", out[0].Status)
	assert.Empty(t, out[1].BookingID, "staff without an active booking stay unattributed")
}

func TestLivePositionsDegradesWithoutBookings(t *testing.T) {
	tracked := &fakeTracked{err: context.DeadlineExceeded}
	svc, _ := newIngestService(&fakeSource{}, tracked)
	svc.Presence().Set("drv-1", auth.RoleStaff, domain.Point{Latitude: 12.97, Longitude: 77.59})

	out := svc.LivePositions(context.Background())
	require.Len(t, out, 1)
	assert.Empty(t, out[0].BookingID)
	assert.Equal(t, 12.97, out[0].Latitude)
}
