package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Charan951/driveflow-dashboard-sub001/internal/common/auth"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/common/contextx"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/common/log"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/tracking/app"
)

type Handler struct {
	svc    *app.Service
	auth   *auth.Manager
	logger *slog.Logger
}

func NewHandler(svc *app.Service, authMgr *auth.Manager, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, auth: authMgr, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /tracking/live", h.handleLive)
}

// GET /tracking/live returns the point-in-time positions of tracked staff,
// joined with their in-motion bookings. Admin only.
func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	ctx := contextx.WithNewRequestID(r.Context())

	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	claims, err := h.auth.Verify(strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	if !claims.IsAdmin() {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	positions := h.svc.LivePositions(ctx)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"positions": positions,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	log.Info(ctx, h.logger, "live_snapshot_served", "positions returned")
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message, "code": status})
}
