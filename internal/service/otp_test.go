package service

import (
	"strconv"
	"strings"
	"testing"
)

func TestGenerateCode(t *testing.T) {
	t.Run("six digits in range", func(t *testing.T) {
		for i := 0; i < 200; i++ {
			code, err := GenerateCode()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(code) != 6 {
				t.Fatalf("expected 6 digits, got %q", code)
			}
			n, err := strconv.Atoi(code)
			if err != nil {
				t.Fatalf("code is not numeric: %q", code)
			}
			if n < 100000 || n > 999999 {
				t.Fatalf("code out of range: %d", n)
			}
		}
	})
}

func TestHashCode(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		if HashCode("123456") != HashCode("123456") {
			t.Fatalf("same code hashed to different digests")
		}
	})

	t.Run("distinct codes distinct digests", func(t *testing.T) {
		if HashCode("123456") == HashCode("123457") {
			t.Fatalf("different codes hashed to the same digest")
		}
	})

	t.Run("fixed length hex", func(t *testing.T) {
		digest := HashCode("654321")
		if len(digest) != 64 {
			t.Fatalf("expected 64 hex chars, got %d", len(digest))
		}
		if strings.ToLower(digest) != digest {
			t.Fatalf("expected lowercase hex digest, got %q", digest)
		}
	})
}

func TestVerifyCode(t *testing.T) {
	digest := HashCode("123456")

	t.Run("matching code", func(t *testing.T) {
		if !VerifyCode("123456", digest) {
			t.Fatalf("expected match for correct code")
		}
	})

	t.Run("wrong code", func(t *testing.T) {
		if VerifyCode("654321", digest) {
			t.Fatalf("expected mismatch for wrong code")
		}
	})

	t.Run("empty digest", func(t *testing.T) {
		if VerifyCode("123456", "") {
			t.Fatalf("expected mismatch for empty digest")
		}
	})
}
