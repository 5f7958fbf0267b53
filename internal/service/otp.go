package service

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
)

// GenerateCode returns a uniformly random six-digit one-time code in
// [100000, 999999].
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+100000), nil
}

// HashCode returns the SHA-256 hex digest of a code. Only digests are ever
// stored; the plaintext code lives just long enough to be emailed.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// VerifyCode checks a submitted code against a stored digest in constant
// time.
func VerifyCode(code, storedDigest string) bool {
	digest := HashCode(code)
	return subtle.ConstantTimeCompare([]byte(digest), []byte(storedDigest)) == 1
}
