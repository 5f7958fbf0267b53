package service

import "errors"

// Sentinel errors for the auth and payment flows. Handlers translate these
// into HTTP statuses; repositories wrap lower-level failures instead.
var (
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("username already exists")
	ErrNotFound           = errors.New("account not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("admin access required")
	ErrOTPNotRequested    = errors.New("otp not requested")
	ErrOTPExpired         = errors.New("otp expired")
	ErrOTPInvalid         = errors.New("invalid otp")
	ErrDelivery           = errors.New("failed to send otp email")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrPaymentState       = errors.New("otp not generated for this payment")
	ErrRateLimited        = errors.New("too many otp requests")
)
