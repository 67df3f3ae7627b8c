package ws

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bookingdomain "github.com/Charan951/driveflow-dashboard-sub001/internal/booking/domain"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/common/auth"
	commonws "github.com/Charan951/driveflow-dashboard-sub001/internal/common/ws"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/tracking/app"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/tracking/domain"
)

type stubBookings struct {
	booking *bookingdomain.Booking
}

func (s *stubBookings) GetByID(context.Context, string) (*bookingdomain.Booking, error) {
	if s.booking == nil {
		return nil, bookingdomain.ErrNotFound
	}
	return s.booking, nil
}

type stubActive struct{ bookingID string }

func (s *stubActive) ActiveBookingForStaff(context.Context, string) (string, error) {
	if s.bookingID == "" {
		return "", domain.ErrNoActiveBooking
	}
	return s.bookingID, nil
}

type stubTracked struct{}

func (stubTracked) TrackedBookings(context.Context) ([]domain.TrackedBooking, error) {
	return nil, nil
}

type wsFixture struct {
	srv *httptest.Server
	mgr *auth.Manager
}

func newWSFixture(t *testing.T, bookings *stubBookings, active *stubActive) *wsFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := auth.NewManager("test-secret", time.Hour)

	hub := commonws.NewHub()
	resolver := app.NewResolver(active, 30*time.Second, time.Second, logger)
	ingest := app.NewService(app.NewPresenceStore(), resolver, hub, nil, stubTracked{}, logger)

	mux := http.NewServeMux()
	NewHandler(hub, ingest, mgr, bookings, logger).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &wsFixture{srv: srv, mgr: mgr}
}

func (f *wsFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws/track"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (f *wsFixture) token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := f.mgr.CreateToken(userID, role)
	require.NoError(t, err)
	return tok
}

func send(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func recv(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var out map[string]any
	require.NoError(t, conn.ReadJSON(&out))
	return out
}

func authenticate(t *testing.T, conn *websocket.Conn, token string) {
	t.Helper()
	send(t, conn, map[string]any{"type": "auth", "token": token})
	msg := recv(t, conn)
	require.Equal(t, "info", msg["type"], "auth reply: %v", msg)
}

func TestInvalidTokenKeepsConnection(t *testing.T) {
	f := newWSFixture(t, &stubBookings{}, &stubActive{})
	conn := f.dial(t)

	send(t, conn, map[string]any{"type": "auth", "token": "garbage"})
	msg := recv(t, conn)
	assert.Equal(t, "error", msg["type"])

	// the connection is still usable afterwards
	authenticate(t, conn, f.token(t, "u-1", auth.RoleCustomer))
}

func TestRepeatAuthRefused(t *testing.T) {
	f := newWSFixture(t, &stubBookings{}, &stubActive{})
	conn := f.dial(t)
	authenticate(t, conn, f.token(t, "u-1", auth.RoleCustomer))

	// the connection keeps its first identity
	send(t, conn, map[string]any{"type": "auth", "token": f.token(t, "u-2", auth.RoleCustomer)})
	msg := recv(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "already authenticated", msg["message"])

	// still only reachable as u-1: own user room joins keep working
	send(t, conn, map[string]any{"type": "subscribe", "room": "user_u-1"})
	assert.Equal(t, "subscribed to user_u-1", recv(t, conn)["message"])
	send(t, conn, map[string]any{"type": "subscribe", "room": "user_u-2"})
	assert.Equal(t, "error", recv(t, conn)["type"])
}

func TestMalformedMessage(t *testing.T) {
	f := newWSFixture(t, &stubBookings{}, &stubActive{})
	conn := f.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{broken")))
	assert.Equal(t, "error", recv(t, conn)["type"])

	send(t, conn, map[string]any{"type": "selfdestruct"})
	msg := recv(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "unknown message type", msg["message"])
}

func TestObserverRoomAdminOnly(t *testing.T) {
	f := newWSFixture(t, &stubBookings{}, &stubActive{})

	conn := f.dial(t)
	authenticate(t, conn, f.token(t, "cust-1", auth.RoleCustomer))

	// refused silently: the next ack we see belongs to the own-user join
	send(t, conn, map[string]any{"type": "subscribe", "room": "observers"})
	send(t, conn, map[string]any{"type": "subscribe", "room": "user_cust-1"})
	msg := recv(t, conn)
	assert.Equal(t, "subscribed to user_cust-1", msg["message"])

	adminConn := f.dial(t)
	authenticate(t, adminConn, f.token(t, "a1", auth.RoleAdmin))
	send(t, adminConn, map[string]any{"type": "subscribe", "room": "observers"})
	assert.Equal(t, "subscribed to observers", recv(t, adminConn)["message"])
}

func TestBookingRoomRelationshipCheck(t *testing.T) {
	booking := &bookingdomain.Booking{ID: "bk-1", CustomerID: "cust-1"}
	f := newWSFixture(t, &stubBookings{booking: booking}, &stubActive{})

	t.Run("party admitted", func(t *testing.T) {
		conn := f.dial(t)
		authenticate(t, conn, f.token(t, "cust-1", auth.RoleCustomer))
		send(t, conn, map[string]any{"type": "subscribe", "room": "booking_bk-1"})
		assert.Equal(t, "subscribed to booking_bk-1", recv(t, conn)["message"])
	})

	t.Run("stranger refused", func(t *testing.T) {
		conn := f.dial(t)
		authenticate(t, conn, f.token(t, "cust-2", auth.RoleCustomer))
		send(t, conn, map[string]any{"type": "subscribe", "room": "booking_bk-1"})
		msg := recv(t, conn)
		assert.Equal(t, "error", msg["type"])
	})

	t.Run("anonymous refused", func(t *testing.T) {
		conn := f.dial(t)
		send(t, conn, map[string]any{"type": "subscribe", "room": "booking_bk-1"})
		assert.Equal(t, "error", recv(t, conn)["type"])
	})
}

func TestForeignUserRoomRefused(t *testing.T) {
	f := newWSFixture(t, &stubBookings{}, &stubActive{})
	conn := f.dial(t)
	authenticate(t, conn, f.token(t, "cust-1", auth.RoleCustomer))

	send(t, conn, map[string]any{"type": "subscribe", "room": "user_cust-2"})
	assert.Equal(t, "error", recv(t, conn)["type"])
}

func TestLocationFanOut(t *testing.T) {
	booking := &bookingdomain.Booking{ID: "bk-1", CustomerID: "cust-1"}
	f := newWSFixture(t, &stubBookings{booking: booking}, &stubActive{bookingID: "bk-1"})

	watcher := f.dial(t)
	authenticate(t, watcher, f.token(t, "cust-1", auth.RoleCustomer))
	send(t, watcher, map[string]any{"type": "subscribe", "room": "booking_bk-1"})
	require.Equal(t, "subscribed to booking_bk-1", recv(t, watcher)["message"])

	staff := f.dial(t)
	authenticate(t, staff, f.token(t, "drv-1", auth.RoleStaff))
	send(t, staff, map[string]any{
		"type": "location", "latitude": 12.9716, "longitude": 77.5946,
	})

	ev := recv(t, watcher)
	assert.Equal(t, "location_update", ev["type"])
	assert.Equal(t, "drv-1", ev["user_id"])
	assert.Equal(t, "bk-1", ev["booking_id"])
	assert.Equal(t, 12.9716, ev["latitude"])
}

func TestAnonymousLocationDropped(t *testing.T) {
	f := newWSFixture(t, &stubBookings{}, &stubActive{})

	watcher := f.dial(t)
	authenticate(t, watcher, f.token(t, "a1", auth.RoleAdmin))
	send(t, watcher, map[string]any{"type": "subscribe", "room": "observers"})
	require.Equal(t, "subscribed to observers", recv(t, watcher)["message"])

	anon := f.dial(t)
	send(t, anon, map[string]any{
		"type": "location", "latitude": 12.9716, "longitude": 77.5946,
	})

	// the observer sees nothing; prove it by pushing a visible event after
	authed := f.dial(t)
	authenticate(t, authed, f.token(t, "cust-9", auth.RoleCustomer))
	send(t, authed, map[string]any{
		"type": "location", "latitude": 13.0, "longitude": 77.6,
	})

	ev := recv(t, watcher)
	assert.Equal(t, "cust-9", ev["user_id"])
}
