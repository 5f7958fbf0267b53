package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/veloxcart/veloxcart/internal/service"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, errorResponse{Success: false, Message: message})
}

// respondWithServiceError maps the service error taxonomy onto HTTP statuses
// and the human-readable messages the storefront client shows. Expired and
// invalid codes stay distinguishable so the client can prompt resend vs
// retry.
func respondWithServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		respondWithError(w, http.StatusBadRequest, "Invalid request")
	case errors.Is(err, service.ErrConflict):
		respondWithError(w, http.StatusBadRequest, "Username already exists")
	case errors.Is(err, service.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, service.ErrPaymentNotFound):
		respondWithError(w, http.StatusNotFound, "Payment not found")
	case errors.Is(err, service.ErrInvalidCredentials):
		respondWithError(w, http.StatusUnauthorized, "Invalid password")
	case errors.Is(err, service.ErrForbidden):
		respondWithError(w, http.StatusForbidden, "Admin access required")
	case errors.Is(err, service.ErrOTPNotRequested):
		respondWithError(w, http.StatusBadRequest, "OTP not requested")
	case errors.Is(err, service.ErrOTPExpired):
		respondWithError(w, http.StatusBadRequest, "OTP expired")
	case errors.Is(err, service.ErrOTPInvalid):
		respondWithError(w, http.StatusBadRequest, "Invalid OTP")
	case errors.Is(err, service.ErrPaymentState):
		respondWithError(w, http.StatusBadRequest, "OTP not generated")
	case errors.Is(err, service.ErrRateLimited):
		respondWithError(w, http.StatusTooManyRequests, "Too many OTP requests. Please try again later.")
	case errors.Is(err, service.ErrDelivery):
		respondWithError(w, http.StatusInternalServerError, "Failed to send OTP. Please try again later.")
	default:
		respondWithError(w, http.StatusInternalServerError, "Server error")
	}
}
