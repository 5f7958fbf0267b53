package models

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type Account struct {
	Username     string     `json:"username" dynamodbav:"username"`
	Name         string     `json:"name,omitempty" dynamodbav:"name,omitempty"`
	Email        string     `json:"email" dynamodbav:"email"`
	PhoneNumber  string     `json:"phone_number,omitempty" dynamodbav:"phone_number,omitempty"`
	PasswordHash string     `json:"-" dynamodbav:"password_hash"`
	Role         string     `json:"role" dynamodbav:"role"`
	OTPHash      string     `json:"-" dynamodbav:"otp_hash,omitempty"`
	OTPExpiresAt *time.Time `json:"-" dynamodbav:"otp_expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" dynamodbav:"updated_at"`
}

func (a *Account) GetPK() string {
	return "ACCOUNT#" + a.Username
}

func (a *Account) GetSK() string {
	return "METADATA"
}

// HasPendingOTP reports whether a login OTP is outstanding. The two OTP
// fields are set and cleared together; a half-set pair is treated as absent.
func (a *Account) HasPendingOTP() bool {
	return a.OTPHash != "" && a.OTPExpiresAt != nil
}

func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}
