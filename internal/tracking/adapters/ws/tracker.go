package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	bookingdomain "github.com/Charan951/driveflow-dashboard-sub001/internal/booking/domain"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/common/auth"
	commonws "github.com/Charan951/driveflow-dashboard-sub001/internal/common/ws"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/tracking/app"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/tracking/domain"
)

const pongWait = 60 * time.Second

// BookingAccess is the narrow lookup used to verify a subscriber's
// relationship to a booking before admitting a room join.
type BookingAccess interface {
	GetByID(ctx context.Context, id string) (*bookingdomain.Booking, error)
}

type clientMessage struct {
	Type      string  `json:"type"`
	Token     string  `json:"token,omitempty"`
	Room      string  `json:"room,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	BookingID string  `json:"booking_id,omitempty"`
}

type serverMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Handler serves the duplex tracking endpoint: an optional auth handshake,
// channel subscriptions, and the location ingest stream, all over one
// WebSocket connection.
type Handler struct {
	hub      *commonws.Hub
	ingest   *app.Service
	auth     *auth.Manager
	bookings BookingAccess
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewHandler(hub *commonws.Hub, ingest *app.Service, authMgr *auth.Manager, bookings BookingAccess, logger *slog.Logger) *Handler {
	return &Handler{
		hub:      hub,
		ingest:   ingest,
		auth:     authMgr,
		bookings: bookings,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/track", h.HandleTrackWS)
}

// HandleTrackWS owns the read side of one connection. An invalid or missing
// credential never closes the connection; the session simply stays
// anonymous and privileged operations are refused where they are attempted.
func (h *Handler) HandleTrackWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws_upgrade_fail", "error", err)
		return
	}

	client := commonws.NewClient(conn)
	go client.WritePump()
	defer h.hub.Unregister(client)

	h.logger.Info("ws_connected", "remote", r.RemoteAddr)

	ctx := r.Context()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			h.logger.Info("ws_disconnect", "remote", r.RemoteAddr, "reason", err)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.send(client, "error", "invalid message format")
			continue
		}

		switch msg.Type {
		case "auth":
			h.handleAuth(client, msg)
		case "subscribe":
			h.handleSubscribe(ctx, client, msg.Room)
		case "unsubscribe":
			h.hub.Leave(client, msg.Room)
		case "location":
			h.ingest.Ingest(ctx, client.Claims(), domain.LocationSample{
				Latitude:  msg.Latitude,
				Longitude: msg.Longitude,
				BookingID: msg.BookingID,
			})
		default:
			h.send(client, "error", "unknown message type")
		}
	}
}

func (h *Handler) handleAuth(client *commonws.Client, msg clientMessage) {
	// one identity per connection; switching identities would leave the
	// old user-index entry pointing at this client
	if client.Claims() != nil {
		h.send(client, "error", "already authenticated")
		return
	}
	token := strings.TrimPrefix(msg.Token, "Bearer ")
	claims, err := h.auth.Verify(token)
	if err != nil {
		// connection survives; the session just stays anonymous
		h.send(client, "error", "invalid token")
		return
	}
	client.SetClaims(claims)
	h.hub.Register(client)
	h.send(client, "info", "authenticated")
	h.logger.Info("ws_auth_success", "user_id", claims.UserID, "role", claims.Role)
}

func (h *Handler) handleSubscribe(ctx context.Context, client *commonws.Client, room string) {
	claims := client.Claims()

	switch {
	case room == commonws.RoomObservers:
		// non-admin joins are refused without a reply
		if err := h.hub.Join(client, room); err != nil {
			h.logger.Warn("ws_observer_join_refused", "room", room)
			return
		}

	case strings.HasPrefix(room, "booking_"):
		bookingID := strings.TrimPrefix(room, "booking_")
		if !h.mayWatchBooking(ctx, claims, bookingID) {
			h.send(client, "error", "not allowed to watch this booking")
			return
		}
		_ = h.hub.Join(client, room)

	case strings.HasPrefix(room, "user_"):
		userID := strings.TrimPrefix(room, "user_")
		if claims == nil || (!claims.IsAdmin() && claims.UserID != userID) {
			h.send(client, "error", "not allowed to watch this user")
			return
		}
		_ = h.hub.Join(client, room)

	default:
		h.send(client, "error", "unknown room")
		return
	}
	h.send(client, "info", "subscribed to "+room)
}

// mayWatchBooking admits admins and the booking's own parties.
func (h *Handler) mayWatchBooking(ctx context.Context, claims *auth.Claims, bookingID string) bool {
	if claims == nil {
		return false
	}
	if claims.IsAdmin() {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := h.bookings.GetByID(ctx, bookingID)
	if err != nil {
		if !errors.Is(err, bookingdomain.ErrNotFound) {
			h.logger.Error("ws_booking_lookup_fail", "booking_id", bookingID, "error", err)
		}
		return false
	}
	return b.CustomerID == claims.UserID ||
		b.AssignedMerchant(claims.UserID) ||
		b.AssignedStaff(claims.UserID)
}

func (h *Handler) send(client *commonws.Client, typ, message string) {
	client.Enqueue(serverMessage{Type: typ, Message: message})
}
