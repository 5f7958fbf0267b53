package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/veloxcart/veloxcart/internal/config"
	"github.com/veloxcart/veloxcart/internal/models"
	"github.com/veloxcart/veloxcart/internal/repository"
)

type fakeAccountRepo struct {
	accounts   map[string]*models.Account
	setOTPErr  error
	clearCalls int
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: map[string]*models.Account{}}
}

func (f *fakeAccountRepo) GetByUsername(_ context.Context, username string) (*models.Account, error) {
	account, ok := f.accounts[username]
	if !ok {
		return nil, nil
	}
	copied := *account
	return &copied, nil
}

func (f *fakeAccountRepo) GetByEmail(_ context.Context, emailAddr string) (*models.Account, error) {
	for _, account := range f.accounts {
		if account.Email == emailAddr {
			copied := *account
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeAccountRepo) Create(_ context.Context, account *models.Account) error {
	if _, ok := f.accounts[account.Username]; ok {
		return repository.ErrAlreadyExists
	}
	copied := *account
	f.accounts[account.Username] = &copied
	return nil
}

func (f *fakeAccountRepo) SetOTP(_ context.Context, username, otpHash string, expiresAt time.Time) error {
	if f.setOTPErr != nil {
		return f.setOTPErr
	}
	account, ok := f.accounts[username]
	if !ok {
		return errors.New("account missing")
	}
	account.OTPHash = otpHash
	account.OTPExpiresAt = &expiresAt
	return nil
}

func (f *fakeAccountRepo) ClearOTP(_ context.Context, username string) error {
	account, ok := f.accounts[username]
	if !ok {
		return errors.New("account missing")
	}
	f.clearCalls++
	account.OTPHash = ""
	account.OTPExpiresAt = nil
	return nil
}

func (f *fakeAccountRepo) ClearOTPIfMatch(_ context.Context, username, otpHash string) error {
	account, ok := f.accounts[username]
	if !ok || account.OTPHash != otpHash {
		return repository.ErrConditionFailed
	}
	account.OTPHash = ""
	account.OTPExpiresAt = nil
	return nil
}

func (f *fakeAccountRepo) Delete(_ context.Context, username string) error {
	delete(f.accounts, username)
	return nil
}

type sentMail struct {
	to      string
	subject string
	body    string
}

type fakeSender struct {
	sent []sentMail
	err  error
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

var codePattern = regexp.MustCompile(`<strong>(\d{6})</strong>`)

func (f *fakeSender) lastCode(t *testing.T) string {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatalf("no mail was sent")
	}
	match := codePattern.FindStringSubmatch(f.sent[len(f.sent)-1].body)
	if match == nil {
		t.Fatalf("no code found in mail body: %q", f.sent[len(f.sent)-1].body)
	}
	return match[1]
}

type fakeThrottle struct {
	allowSend    bool
	allowAttempt bool
	cleared      []string
}

func (f *fakeThrottle) AllowSend(string) bool    { return f.allowSend }
func (f *fakeThrottle) AllowAttempt(string) bool { return f.allowAttempt }
func (f *fakeThrottle) ClearAttempts(key string) { f.cleared = append(f.cleared, key) }

func newTestAuthService(t *testing.T, repo *fakeAccountRepo, sender *fakeSender, throttle OTPThrottle) *AuthService {
	t.Helper()
	tokens := newTestTokenService(t, 7*24*time.Hour)
	cfg := &config.OTPConfig{Expiry: 5 * time.Minute, MaxAttempts: 5, MaxSends: 3}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewAuthService(repo, sender, tokens, throttle, cfg, logger)
}

func registerAlice(t *testing.T, svc *AuthService) *models.Account {
	t.Helper()
	account, _, err := svc.Register(context.Background(), RegisterInput{
		Name:        "Alice",
		Username:    "alice",
		Email:       "alice@example.com",
		PhoneNumber: "+15550100",
		Password:    "secret123",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	return account
}

func TestRegister(t *testing.T) {
	t.Run("token subject matches stored account", func(t *testing.T) {
		repo := newFakeAccountRepo()
		svc := newTestAuthService(t, repo, &fakeSender{}, nil)

		_, token, err := svc.Register(context.Background(), RegisterInput{
			Name:        "Alice",
			Username:    "alice",
			Email:       "Alice@Example.com",
			PhoneNumber: "+15550100",
			Password:    "secret123",
		})
		if err != nil {
			t.Fatalf("register failed: %v", err)
		}

		claims, err := svc.tokens.Verify(token.Token)
		if err != nil {
			t.Fatalf("issued token does not verify: %v", err)
		}
		stored := repo.accounts["alice"]
		if stored == nil || claims.Subject != stored.Username {
			t.Fatalf("token subject %q does not match stored account", claims.Subject)
		}
		if stored.Email != "alice@example.com" {
			t.Fatalf("expected normalized email, got %q", stored.Email)
		}
		if stored.Role != models.RoleUser {
			t.Fatalf("expected role user, got %q", stored.Role)
		}
		if stored.PasswordHash == "secret123" || stored.PasswordHash == "" {
			t.Fatalf("password was not hashed")
		}
	})

	t.Run("duplicate username conflicts", func(t *testing.T) {
		repo := newFakeAccountRepo()
		svc := newTestAuthService(t, repo, &fakeSender{}, nil)
		registerAlice(t, svc)

		_, _, err := svc.Register(context.Background(), RegisterInput{
			Name:        "Other",
			Username:    "alice",
			Email:       "other@example.com",
			PhoneNumber: "+15550101",
			Password:    "hunter2!",
		})
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		svc := newTestAuthService(t, newFakeAccountRepo(), &fakeSender{}, nil)
		_, _, err := svc.Register(context.Background(), RegisterInput{Username: "bob"})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})
}

func TestLogin(t *testing.T) {
	t.Run("unknown username", func(t *testing.T) {
		svc := newTestAuthService(t, newFakeAccountRepo(), &fakeSender{}, nil)
		_, err := svc.Login(context.Background(), "ghost", "whatever1")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		repo := newFakeAccountRepo()
		svc := newTestAuthService(t, repo, &fakeSender{}, nil)
		registerAlice(t, svc)

		_, err := svc.Login(context.Background(), "alice", "wrongpass")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
		if repo.accounts["alice"].HasPendingOTP() {
			t.Fatalf("OTP must not be issued on password mismatch")
		}
	})

	t.Run("issues five minute OTP to registered email", func(t *testing.T) {
		repo := newFakeAccountRepo()
		sender := &fakeSender{}
		svc := newTestAuthService(t, repo, sender, nil)
		registerAlice(t, svc)

		before := time.Now()
		emailAddr, err := svc.Login(context.Background(), "alice", "secret123")
		if err != nil {
			t.Fatalf("login failed: %v", err)
		}
		if emailAddr != "alice@example.com" {
			t.Fatalf("expected registered email back, got %q", emailAddr)
		}
		if len(sender.sent) != 1 || sender.sent[0].to != "alice@example.com" {
			t.Fatalf("expected one mail to alice, got %+v", sender.sent)
		}

		stored := repo.accounts["alice"]
		if !stored.HasPendingOTP() {
			t.Fatalf("expected OTP fields set after login")
		}
		lifetime := stored.OTPExpiresAt.Sub(before)
		if lifetime < 5*time.Minute || lifetime > 5*time.Minute+time.Second {
			t.Fatalf("expected 5 minute expiry, got %s", lifetime)
		}
	})

	t.Run("rolls back OTP on delivery failure", func(t *testing.T) {
		repo := newFakeAccountRepo()
		svc := newTestAuthService(t, repo, &fakeSender{}, nil)
		registerAlice(t, svc)

		failing := &fakeSender{err: errors.New("smtp down")}
		svc.sender = failing

		_, err := svc.Login(context.Background(), "alice", "secret123")
		if !errors.Is(err, ErrDelivery) {
			t.Fatalf("expected ErrDelivery, got %v", err)
		}
		if repo.accounts["alice"].HasPendingOTP() {
			t.Fatalf("OTP fields must be rolled back on send failure")
		}
	})

	t.Run("resend invalidates previous code", func(t *testing.T) {
		repo := newFakeAccountRepo()
		sender := &fakeSender{}
		svc := newTestAuthService(t, repo, sender, nil)
		registerAlice(t, svc)

		if _, err := svc.Login(context.Background(), "alice", "secret123"); err != nil {
			t.Fatalf("first login failed: %v", err)
		}
		oldCode := sender.lastCode(t)

		if _, err := svc.Login(context.Background(), "alice", "secret123"); err != nil {
			t.Fatalf("second login failed: %v", err)
		}
		newCode := sender.lastCode(t)

		if oldCode != newCode {
			if _, _, err := svc.VerifyOTP(context.Background(), VerifyOTPInput{Username: "alice", Code: oldCode}); !errors.Is(err, ErrOTPInvalid) {
				t.Fatalf("expected old code to be invalid, got %v", err)
			}
		}
		if _, _, err := svc.VerifyOTP(context.Background(), VerifyOTPInput{Username: "alice", Code: newCode}); err != nil {
			t.Fatalf("expected new code to verify, got %v", err)
		}
	})

	t.Run("send throttled", func(t *testing.T) {
		repo := newFakeAccountRepo()
		svc := newTestAuthService(t, repo, &fakeSender{}, &fakeThrottle{allowSend: false, allowAttempt: true})
		registerAlice(t, svc)

		_, err := svc.Login(context.Background(), "alice", "secret123")
		if !errors.Is(err, ErrRateLimited) {
			t.Fatalf("expected ErrRateLimited, got %v", err)
		}
	})
}

func TestVerifyOTP(t *testing.T) {
	t.Run("full login scenario", func(t *testing.T) {
		repo := newFakeAccountRepo()
		sender := &fakeSender{}
		svc := newTestAuthService(t, repo, sender, nil)
		registerAlice(t, svc)

		if _, err := svc.Login(context.Background(), "alice", "secret123"); err != nil {
			t.Fatalf("login failed: %v", err)
		}
		code := sender.lastCode(t)

		wrong := "000000"
		if wrong == code {
			wrong = "000001"
		}
		if _, _, err := svc.VerifyOTP(context.Background(), VerifyOTPInput{Username: "alice", Code: wrong}); !errors.Is(err, ErrOTPInvalid) {
			t.Fatalf("expected ErrOTPInvalid for wrong code, got %v", err)
		}

		account, token, err := svc.VerifyOTP(context.Background(), VerifyOTPInput{Username: "alice", Code: code})
		if err != nil {
			t.Fatalf("verify failed: %v", err)
		}
		if token == nil || account.Username != "alice" {
			t.Fatalf("unexpected verify result: %+v", account)
		}
		claims, err := svc.tokens.Verify(token.Token)
		if err != nil || claims.Subject != "alice" {
			t.Fatalf("issued token does not decode to alice: %v", err)
		}
		if repo.accounts["alice"].HasPendingOTP() {
			t.Fatalf("OTP fields must be cleared after verification")
		}

		// The code is spendable exactly once.
		if _, _, err := svc.VerifyOTP(context.Background(), VerifyOTPInput{Username: "alice", Code: code}); !errors.Is(err, ErrOTPNotRequested) {
			t.Fatalf("expected ErrOTPNotRequested on second use, got %v", err)
		}
	})

	t.Run("not requested", func(t *testing.T) {
		repo := newFakeAccountRepo()
		svc := newTestAuthService(t, repo, &fakeSender{}, nil)
		registerAlice(t, svc)

		_, _, err := svc.VerifyOTP(context.Background(), VerifyOTPInput{Username: "alice", Code: "123456"})
		if !errors.Is(err, ErrOTPNotRequested) {
			t.Fatalf("expected ErrOTPNotRequested, got %v", err)
		}
	})

	t.Run("unknown account treated as not requested", func(t *testing.T) {
		svc := newTestAuthService(t, newFakeAccountRepo(), &fakeSender{}, nil)
		_, _, err := svc.VerifyOTP(context.Background(), VerifyOTPInput{Username: "ghost", Code: "123456"})
		if !errors.Is(err, ErrOTPNotRequested) {
			t.Fatalf("expected ErrOTPNotRequested, got %v", err)
		}
	})

	t.Run("expired code clears fields", func(t *testing.T) {
		repo := newFakeAccountRepo()
		sender := &fakeSender{}
		svc := newTestAuthService(t, repo, sender, nil)
		registerAlice(t, svc)

		if _, err := svc.Login(context.Background(), "alice", "secret123"); err != nil {
			t.Fatalf("login failed: %v", err)
		}
		code := sender.lastCode(t)

		past := time.Now().Add(-time.Second)
		repo.accounts["alice"].OTPExpiresAt = &past

		_, _, err := svc.VerifyOTP(context.Background(), VerifyOTPInput{Username: "alice", Code: code})
		if !errors.Is(err, ErrOTPExpired) {
			t.Fatalf("expected ErrOTPExpired, got %v", err)
		}
		if repo.accounts["alice"].HasPendingOTP() {
			t.Fatalf("expired OTP fields must be cleared")
		}

		// After the clear, the state is back to not-requested.
		_, _, err = svc.VerifyOTP(context.Background(), VerifyOTPInput{Username: "alice", Code: code})
		if !errors.Is(err, ErrOTPNotRequested) {
			t.Fatalf("expected ErrOTPNotRequested after expiry clear, got %v", err)
		}
	})

	t.Run("lookup by email", func(t *testing.T) {
		repo := newFakeAccountRepo()
		sender := &fakeSender{}
		svc := newTestAuthService(t, repo, sender, nil)
		registerAlice(t, svc)

		if _, err := svc.SendOTP(context.Background(), "alice@example.com"); err != nil {
			t.Fatalf("send-otp failed: %v", err)
		}
		code := sender.lastCode(t)

		account, _, err := svc.VerifyOTP(context.Background(), VerifyOTPInput{Email: "Alice@Example.com", Code: code})
		if err != nil {
			t.Fatalf("verify by email failed: %v", err)
		}
		if account.Username != "alice" {
			t.Fatalf("expected alice, got %q", account.Username)
		}
	})

	t.Run("attempts throttled", func(t *testing.T) {
		repo := newFakeAccountRepo()
		sender := &fakeSender{}
		throttle := &fakeThrottle{allowSend: true, allowAttempt: false}
		svc := newTestAuthService(t, repo, sender, throttle)
		registerAlice(t, svc)

		if _, err := svc.Login(context.Background(), "alice", "secret123"); err != nil {
			t.Fatalf("login failed: %v", err)
		}
		code := sender.lastCode(t)

		_, _, err := svc.VerifyOTP(context.Background(), VerifyOTPInput{Username: "alice", Code: code})
		if !errors.Is(err, ErrRateLimited) {
			t.Fatalf("expected ErrRateLimited, got %v", err)
		}
	})

	t.Run("attempt counter reset on success", func(t *testing.T) {
		repo := newFakeAccountRepo()
		sender := &fakeSender{}
		throttle := &fakeThrottle{allowSend: true, allowAttempt: true}
		svc := newTestAuthService(t, repo, sender, throttle)
		registerAlice(t, svc)

		if _, err := svc.Login(context.Background(), "alice", "secret123"); err != nil {
			t.Fatalf("login failed: %v", err)
		}
		if _, _, err := svc.VerifyOTP(context.Background(), VerifyOTPInput{Username: "alice", Code: sender.lastCode(t)}); err != nil {
			t.Fatalf("verify failed: %v", err)
		}
		if len(throttle.cleared) != 1 || throttle.cleared[0] != "alice" {
			t.Fatalf("expected attempt counter cleared for alice, got %+v", throttle.cleared)
		}
	})
}

func TestAdminLogin(t *testing.T) {
	setup := func(t *testing.T) (*fakeAccountRepo, *AuthService) {
		repo := newFakeAccountRepo()
		svc := newTestAuthService(t, repo, &fakeSender{}, nil)
		registerAlice(t, svc)
		return repo, svc
	}

	t.Run("role mismatch forbidden", func(t *testing.T) {
		_, svc := setup(t)
		_, _, err := svc.AdminLogin(context.Background(), "alice", "secret123")
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("wrong password before role check", func(t *testing.T) {
		_, svc := setup(t)
		_, _, err := svc.AdminLogin(context.Background(), "alice", "wrongpass")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("admin gets token without OTP", func(t *testing.T) {
		repo, svc := setup(t)
		repo.accounts["alice"].Role = models.RoleAdmin

		account, token, err := svc.AdminLogin(context.Background(), "alice", "secret123")
		if err != nil {
			t.Fatalf("admin login failed: %v", err)
		}
		if token == nil || !account.IsAdmin() {
			t.Fatalf("expected admin token, got %+v", account)
		}
		if repo.accounts["alice"].HasPendingOTP() {
			t.Fatalf("admin login must not issue an OTP")
		}
	})
}

func TestDeleteAccount(t *testing.T) {
	repo := newFakeAccountRepo()
	svc := newTestAuthService(t, repo, &fakeSender{}, nil)
	registerAlice(t, svc)

	if err := svc.DeleteAccount(context.Background(), "alice"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok := repo.accounts["alice"]; ok {
		t.Fatalf("account should be gone")
	}
}
