package models

import (
	"time"
)

const (
	PaymentStatusPending  = "pending"
	PaymentStatusOTPSent  = "otp_sent"
	PaymentStatusVerified = "verified"
	PaymentStatusFailed   = "failed"
)

var paymentMethods = map[string]struct{}{
	"card":       {},
	"upi":        {},
	"wallet":     {},
	"paytm":      {},
	"amazon":     {},
	"netbanking": {},
	"cod":        {},
}

func IsValidPaymentMethod(method string) bool {
	_, ok := paymentMethods[method]
	return ok
}

// PaymentOTPRecord is created per payment attempt and never reused; the
// status only moves forward (pending -> otp_sent -> verified, or failed).
type PaymentOTPRecord struct {
	ID           string     `json:"id" dynamodbav:"id"`
	Username     string     `json:"username" dynamodbav:"username"`
	Email        string     `json:"email" dynamodbav:"email"`
	Method       string     `json:"method" dynamodbav:"method"`
	Mobile       string     `json:"mobile,omitempty" dynamodbav:"mobile,omitempty"`
	Status       string     `json:"status" dynamodbav:"status"`
	OTPHash      string     `json:"-" dynamodbav:"otp_hash,omitempty"`
	OTPExpiresAt *time.Time `json:"-" dynamodbav:"otp_expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at" dynamodbav:"created_at"`
}

func (p *PaymentOTPRecord) GetPK() string {
	return "PAYMENT#" + p.ID
}

func (p *PaymentOTPRecord) GetSK() string {
	return "METADATA"
}

func (p *PaymentOTPRecord) HasPendingOTP() bool {
	return p.OTPHash != "" && p.OTPExpiresAt != nil
}
