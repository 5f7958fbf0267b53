package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

// PaymentFlow is the slice of PaymentService the HTTP layer depends on.
type PaymentFlow interface {
	SendPaymentOTP(ctx context.Context, email, method, mobile string) (string, error)
	VerifyPaymentOTP(ctx context.Context, email, otp, paymentID string) error
}

type PaymentHandlers struct {
	payments PaymentFlow
	logger   *logrus.Logger
}

func NewPaymentHandlers(payments PaymentFlow, logger *logrus.Logger) *PaymentHandlers {
	return &PaymentHandlers{
		payments: payments,
		logger:   logger,
	}
}

type sendPaymentOTPRequest struct {
	Email  string `json:"email"`
	Mobile string `json:"mobile"`
	Method string `json:"method"`
}

type sendPaymentOTPResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	PaymentID string `json:"paymentId"`
}

func (h *PaymentHandlers) SendPaymentOTP(w http.ResponseWriter, r *http.Request) {
	var req sendPaymentOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WithError(err).Debug("Failed to decode payment otp request")
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email == "" || req.Method == "" {
		respondWithError(w, http.StatusBadRequest, "Email and payment method are required")
		return
	}

	paymentID, err := h.payments.SendPaymentOTP(r.Context(), req.Email, req.Method, req.Mobile)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sendPaymentOTPResponse{
		Success:   true,
		Message:   "OTP sent to your email",
		PaymentID: paymentID,
	})
}

type verifyPaymentOTPRequest struct {
	Email     string `json:"email"`
	OTP       string `json:"otp"`
	PaymentID string `json:"paymentId"`
}

func (h *PaymentHandlers) VerifyPaymentOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email == "" || req.OTP == "" || req.PaymentID == "" {
		respondWithError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	if err := h.payments.VerifyPaymentOTP(r.Context(), req.Email, req.OTP, req.PaymentID); err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Payment verified successfully",
	})
}
