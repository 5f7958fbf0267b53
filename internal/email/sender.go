package email

import (
	"context"
	"errors"
	"fmt"
)

// Sender delivers a rendered message to a single recipient. Delivery failure
// is reported to the caller; no retries happen at this layer.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// OTPBody renders the one-time code email. The plaintext code exists only in
// this message; it is never persisted or logged.
func OTPBody(code string) string {
	return fmt.Sprintf("<h3>Your OTP</h3><p><strong>%s</strong></p><p>This code will expire in 5 minutes.</p>", code)
}

type disabledSender struct {
	reason string
}

// NewDisabledSender returns a Sender that fails every send. Used when SMTP
// is not configured so the failure surfaces at dispatch time, not at boot.
func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) Send(_ context.Context, _, _, _ string) error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}
