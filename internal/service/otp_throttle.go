package service

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// OTPThrottle bounds OTP issuance and failed verification attempts per
// account within a rolling window.
type OTPThrottle interface {
	// AllowSend reports whether another OTP may be issued for the key.
	AllowSend(key string) bool
	// AllowAttempt counts a verification attempt and reports whether it is
	// still within the allowed budget.
	AllowAttempt(key string) bool
	// ClearAttempts resets the attempt counter after a successful verify.
	ClearAttempts(key string)
}

const throttleIncrScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

type redisThrottleClient interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisOTPThrottle struct {
	client      redisThrottleClient
	window      time.Duration
	maxSends    int
	maxAttempts int
}

// NewRedisOTPThrottle builds a Redis-backed throttle. It fails open: if
// Redis is unreachable the flow proceeds, since the OTP expiry still bounds
// the guessing window.
func NewRedisOTPThrottle(client *redis.Client, window time.Duration, maxSends, maxAttempts int) OTPThrottle {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	if maxSends <= 0 {
		maxSends = 1
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &redisOTPThrottle{
		client:      client,
		window:      window,
		maxSends:    maxSends,
		maxAttempts: maxAttempts,
	}
}

func (t *redisOTPThrottle) AllowSend(key string) bool {
	return t.allow("otp:send:", key, t.maxSends)
}

func (t *redisOTPThrottle) AllowAttempt(key string) bool {
	return t.allow("otp:verify:", key, t.maxAttempts)
}

func (t *redisOTPThrottle) ClearAttempts(key string) {
	if t == nil || t.client == nil {
		return
	}
	normalized := normalizeThrottleKey(key)
	if normalized == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	t.client.Del(ctx, "otp:verify:"+normalized)
}

func (t *redisOTPThrottle) allow(prefix, key string, max int) bool {
	if t == nil || t.client == nil {
		return true
	}
	normalized := normalizeThrottleKey(key)
	if normalized == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	seconds := int(t.window.Seconds())
	if seconds <= 0 {
		seconds = 300
	}
	count, err := t.client.Eval(ctx, throttleIncrScript, []string{prefix + normalized}, seconds).Int()
	if err != nil {
		return true
	}
	return count <= max
}

func normalizeThrottleKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
