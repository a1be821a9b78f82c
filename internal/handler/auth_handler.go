package handler

import (
	"net/http"

	"github.com/acebanks/acebank-api-go/internal/domain"
	"github.com/acebanks/acebank-api-go/internal/service"

	"go.uber.org/zap"
)

// AuthHandler serves the /auth routes.
type AuthHandler struct {
	auth   *service.AuthService
	logger *zap.Logger
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(auth *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

// Signup handles POST /auth/signup.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req domain.SignupRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, err, h.logger)
		return
	}

	resp, err := h.auth.Signup(r.Context(), &req)
	if err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, err, h.logger)
		return
	}

	resp, err := h.auth.Login(r.Context(), &req)
	if err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// CheckLockout handles POST /auth/check-lockout.
func (h *AuthHandler) CheckLockout(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckLockoutRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, err, h.logger)
		return
	}

	resp, err := h.auth.CheckLockout(r.Context(), &req)
	if err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Refresh handles POST /auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req domain.RefreshRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	if req.RefreshToken == "" {
		handleServiceError(w, &domain.ErrValidation{Field: "refreshToken", Message: "refresh token is required"}, h.logger)
		return
	}

	resp, err := h.auth.Refresh(r.Context(), &req)
	if err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Logout handles POST /auth/logout (bearer).
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	uid := UIDFromContext(r.Context())
	if err := h.auth.Logout(r.Context(), uid); err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
