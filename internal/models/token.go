package models

// SessionToken is the issued bearer credential. There is no refresh token:
// sessions last a fixed seven days and logout is client-side discard.
type SessionToken struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
}
