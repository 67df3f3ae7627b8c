package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Charan951/driveflow-dashboard-sub001/internal/booking/app"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/booking/domain"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/common/auth"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/common/contextx"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/common/log"
)

// BookingService is the application surface the HTTP layer drives.
type BookingService interface {
	Create(ctx context.Context, requester *auth.Claims, req app.CreateRequest) (*domain.Booking, error)
	Assign(ctx context.Context, requester *auth.Claims, bookingID string, a domain.Assignment) (*domain.Booking, error)
	Transition(ctx context.Context, requester *auth.Claims, bookingID string, target domain.Status, otpCode string) (*domain.Booking, error)
	VerifyDeliveryCode(ctx context.Context, requester *auth.Claims, bookingID, code string) (*domain.Booking, error)
	ReissueDeliveryCode(ctx context.Context, requester *auth.Claims, bookingID string) (*domain.Booking, error)
	Get(ctx context.Context, requester *auth.Claims, bookingID string) (*domain.Booking, error)
}

type Handler struct {
	svc    BookingService
	auth   *auth.Manager
	logger *slog.Logger
}

func NewHandler(svc BookingService, authMgr *auth.Manager, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, auth: authMgr, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /bookings", h.handleCreate)
	mux.HandleFunc("GET /bookings/{id}", h.handleGet)
	mux.HandleFunc("POST /bookings/{id}/assign", h.handleAssign)
	mux.HandleFunc("POST /bookings/{id}/status", h.handleTransition)
	mux.HandleFunc("POST /bookings/{id}/delivery-code/verify", h.handleVerifyCode)
	mux.HandleFunc("POST /bookings/{id}/delivery-code/reissue", h.handleReissueCode)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := contextx.WithNewRequestID(r.Context())

	claims, ok := h.authenticate(ctx, w, r)
	if !ok {
		return
	}

	var req app.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(ctx, w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}

	b, err := h.svc.Create(ctx, claims, req)
	if err != nil {
		h.writeDomainError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusCreated, b)
	log.Info(ctx, h.logger, "booking_created", "booking_id="+b.ID)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := contextx.WithNewRequestID(r.Context())

	claims, ok := h.authenticate(ctx, w, r)
	if !ok {
		return
	}

	b, err := h.svc.Get(ctx, claims, r.PathValue("id"))
	if err != nil {
		h.writeDomainError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type assignRequest struct {
	MerchantID   *string `json:"merchant_id,omitempty"`
	DriverID     *string `json:"driver_id,omitempty"`
	TechnicianID *string `json:"technician_id,omitempty"`
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	ctx := contextx.WithNewRequestID(r.Context())

	claims, ok := h.authenticate(ctx, w, r)
	if !ok {
		return
	}

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(ctx, w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}

	b, err := h.svc.Assign(ctx, claims, r.PathValue("id"), domain.Assignment{
		MerchantID:   req.MerchantID,
		DriverID:     req.DriverID,
		TechnicianID: req.TechnicianID,
	})
	if err != nil {
		h.writeDomainError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, b)
	log.Info(ctx, h.logger, "booking_assigned", "booking_id="+b.ID)
}

type transitionRequest struct {
	Status  string `json:"status"`
	OtpCode string `json:"otp_code,omitempty"`
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := contextx.WithNewRequestID(r.Context())
	start := time.Now()

	claims, ok := h.authenticate(ctx, w, r)
	if !ok {
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(ctx, w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}

	b, err := h.svc.Transition(ctx, claims, r.PathValue("id"), domain.Status(req.Status), req.OtpCode)
	if err != nil {
		h.writeDomainError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, b)
	h.logger.Info("booking_transitioned",
		"request_id", contextx.GetRequestID(ctx),
		"booking_id", b.ID,
		"status", string(b.Status),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

type verifyCodeRequest struct {
	Code string `json:"code"`
}

func (h *Handler) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	ctx := contextx.WithNewRequestID(r.Context())

	claims, ok := h.authenticate(ctx, w, r)
	if !ok {
		return
	}

	var req verifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(ctx, w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}

	b, err := h.svc.VerifyDeliveryCode(ctx, claims, r.PathValue("id"), req.Code)
	if err != nil {
		h.writeDomainError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, b)
	log.Info(ctx, h.logger, "delivery_code_verified", "booking_id="+b.ID)
}

func (h *Handler) handleReissueCode(w http.ResponseWriter, r *http.Request) {
	ctx := contextx.WithNewRequestID(r.Context())

	claims, ok := h.authenticate(ctx, w, r)
	if !ok {
		return
	}

	b, err := h.svc.ReissueDeliveryCode(ctx, claims, r.PathValue("id"))
	if err != nil {
		h.writeDomainError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, b)
	log.Info(ctx, h.logger, "delivery_code_reissued", "booking_id="+b.ID)
}

func (h *Handler) authenticate(ctx context.Context, w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		writeJSONError(ctx, w, http.StatusUnauthorized, "missing bearer token", "")
		return nil, false
	}
	claims, err := h.auth.Verify(strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		writeJSONError(ctx, w, http.StatusUnauthorized, "invalid token", "")
		return nil, false
	}
	return claims, true
}

func (h *Handler) writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	var pe *domain.PreconditionError
	switch {
	case errors.As(err, &pe):
		writeJSONError(ctx, w, http.StatusPreconditionFailed, "precondition failed", pe.Reason)
	case errors.Is(err, domain.ErrUnauthorized):
		writeJSONError(ctx, w, http.StatusForbidden, "forbidden", "")
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUserNotFound):
		writeJSONError(ctx, w, http.StatusNotFound, "not found", "")
	case errors.Is(err, domain.ErrInvalidTransition):
		writeJSONError(ctx, w, http.StatusConflict, err.Error(), "")
	case errors.Is(err, domain.ErrInvalidRequest):
		writeJSONError(ctx, w, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, domain.ErrTransientStorage):
		// safe to retry: the conditional update makes a repeat idempotent
		writeJSONError(ctx, w, http.StatusServiceUnavailable, "temporary storage failure, retry", "")
	default:
		log.Error(ctx, h.logger, "booking_http_fail", "Unhandled service error", err)
		writeJSONError(ctx, w, http.StatusInternalServerError, "internal error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(ctx context.Context, w http.ResponseWriter, status int, message, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]any{
		"error":      message,
		"code":       status,
		"request_id": contextx.GetRequestID(ctx),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	if reason != "" {
		body["reason"] = reason
	}
	_ = json.NewEncoder(w).Encode(body)
}
