package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/tendant/device-gate/pkg/client"
	deviceerrors "github.com/tendant/device-gate/pkg/errors"
	"github.com/tendant/device-gate/pkg/revoke"
)

// RevokeHandler handles HTTP requests for administrative device revocation
type RevokeHandler struct {
	revokeService *revoke.Service
	tokenService  *revoke.ActionTokenService
}

// NewRevokeHandler creates a new revocation handler
func NewRevokeHandler(revokeService *revoke.Service, tokenService *revoke.ActionTokenService) *RevokeHandler {
	return &RevokeHandler{
		revokeService: revokeService,
		tokenService:  tokenService,
	}
}

// StatusResponse represents the response body for a device status lookup.
// It carries a fresh single-use token authorizing revocation of the same
// user.
type StatusResponse struct {
	Status           string `json:"status"`
	Message          string `json:"message"`
	UserID           string `json:"user_id"`
	Blocked          bool   `json:"blocked"`
	Capacity         int    `json:"capacity"`
	MaxDevices       int    `json:"max_devices"`
	FilledSlots      int    `json:"filled_slots"`
	FirstFingerprint string `json:"first_fingerprint,omitempty"`
	RevokeToken      string `json:"revoke_token"`
	TokenExpiresAt   string `json:"token_expires_at"`
}

// RevokeRequest represents the request body for revoking a user's devices
type RevokeRequest struct {
	RevokeToken string `json:"revoke_token"`
}

// RevokeResponse represents the response body for a completed revocation
type RevokeResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	UserID     string `json:"user_id"`
	Capacity   int    `json:"capacity"`
	MaxDevices int    `json:"max_devices"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// GetStatus handles a device status lookup for one user. The response
// includes a single-use revocation token so the admin console can follow
// up with a revoke call without a second round trip.
func (h *RevokeHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	targetUserID, ok := h.targetUser(w, r)
	if !ok {
		return
	}

	status, err := h.revokeService.Status(r.Context(), targetUserID)
	if err != nil {
		slog.Error("Failed to get device status", "targetUserID", targetUserID, "error", err)
		renderServiceError(w, r, err, "Failed to get device status")
		return
	}

	token, expiresAt, err := h.tokenService.Issue(targetUserID)
	if err != nil {
		slog.Error("Failed to issue revocation token", "targetUserID", targetUserID, "error", err)
		renderServiceError(w, r, err, "Failed to issue revocation token")
		return
	}

	response := StatusResponse{
		Status:  "success",
		Message: "Device status retrieved successfully",
	}
	copier.Copy(&response, &status)
	response.UserID = status.UserID.String()
	response.RevokeToken = token
	response.TokenExpiresAt = expiresAt.Format(time.RFC3339)

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response)
}

// Revoke handles the full reset of a user's device record. The request
// must carry an unredeemed token issued for the same user.
func (h *RevokeHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	targetUserID, ok := h.targetUser(w, r)
	if !ok {
		return
	}

	var req RevokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode request body", "error", err)
		renderErrorResponse(w, r, http.StatusBadRequest, "Invalid request body", "")
		return
	}
	if req.RevokeToken == "" {
		renderErrorResponse(w, r, http.StatusBadRequest, "Missing required field", "revoke_token is required")
		return
	}

	// Authorization comes first so a rejected actor does not consume the
	// single-use token
	authCtx := client.GetAuthContext(r)
	if err := h.revokeService.Authorize(authCtx.User); err != nil {
		slog.Warn("Revocation rejected", "targetUserID", targetUserID, "error", err)
		renderServiceError(w, r, err, "Revocation rejected")
		return
	}

	if err := h.tokenService.Redeem(req.RevokeToken, targetUserID); err != nil {
		slog.Warn("Revocation token rejected", "targetUserID", targetUserID, "error", err)
		renderServiceError(w, r, err, "Revocation token rejected")
		return
	}

	record, err := h.revokeService.Revoke(r.Context(), authCtx.User, targetUserID)
	if err != nil {
		slog.Error("Failed to revoke device record", "targetUserID", targetUserID, "error", err)
		renderServiceError(w, r, err, "Failed to revoke device record")
		return
	}

	response := RevokeResponse{
		Status:     "success",
		Message:    "Device record revoked successfully",
		UserID:     targetUserID.String(),
		Capacity:   record.Capacity,
		MaxDevices: len(record.Slots),
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, response)
}

// targetUser parses the user_id route parameter, rendering the error
// response itself when the id is missing or malformed
func (h *RevokeHandler) targetUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "user_id")
	if raw == "" {
		renderErrorResponse(w, r, http.StatusBadRequest, "Missing required parameter", "user_id is required")
		return uuid.Nil, false
	}
	targetUserID, err := uuid.Parse(raw)
	if err != nil {
		renderErrorResponse(w, r, http.StatusBadRequest, "Invalid user id", raw)
		return uuid.Nil, false
	}
	return targetUserID, true
}

// Handler returns the revocation routes. Mount behind authentication and
// an admin role check.
func Handler(h *RevokeHandler) http.Handler {
	r := chi.NewRouter()

	r.Get("/users/{user_id}/status", h.GetStatus)
	r.Post("/users/{user_id}/revoke", h.Revoke)

	return r
}

// renderServiceError maps a service error onto the HTTP response,
// preserving the error code for structured errors
func renderServiceError(w http.ResponseWriter, r *http.Request, err error, message string) {
	statusCode := http.StatusInternalServerError
	code := ""
	var serviceErr *deviceerrors.Error
	if errors.As(err, &serviceErr) {
		statusCode = serviceErr.HTTPStatusCode()
		code = string(serviceErr.Code)
		message = serviceErr.Message
	}

	response := ErrorResponse{
		Status:  "error",
		Message: message,
		Code:    code,
	}
	render.Status(r, statusCode)
	render.JSON(w, r, response)
}

// renderErrorResponse renders a plain error response with the given status
// code and message
func renderErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, message, detail string) {
	if detail != "" {
		message = message + ": " + detail
	}
	response := ErrorResponse{
		Status:  "error",
		Message: message,
	}
	render.Status(r, statusCode)
	render.JSON(w, r, response)
}
