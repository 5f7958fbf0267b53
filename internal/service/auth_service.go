package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/veloxcart/veloxcart/internal/config"
	"github.com/veloxcart/veloxcart/internal/email"
	"github.com/veloxcart/veloxcart/internal/models"
	"github.com/veloxcart/veloxcart/internal/repository"
)

// AccountRepository is the persistence surface the auth flow needs.
type AccountRepository interface {
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	GetByEmail(ctx context.Context, emailAddr string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) error
	SetOTP(ctx context.Context, username, otpHash string, expiresAt time.Time) error
	ClearOTP(ctx context.Context, username string) error
	// ClearOTPIfMatch clears the OTP fields only when the stored digest still
	// equals otpHash, in a single conditional write. Under two concurrent
	// verifies with the same code, exactly one clear succeeds.
	ClearOTPIfMatch(ctx context.Context, username, otpHash string) error
	Delete(ctx context.Context, username string) error
}

// AuthService runs the register -> password login -> OTP -> session token
// flow.
type AuthService struct {
	accounts AccountRepository
	sender   email.Sender
	tokens   *TokenService
	throttle OTPThrottle
	cfg      *config.OTPConfig
	logger   *logrus.Logger
}

func NewAuthService(
	accounts AccountRepository,
	sender email.Sender,
	tokens *TokenService,
	throttle OTPThrottle,
	cfg *config.OTPConfig,
	logger *logrus.Logger,
) *AuthService {
	return &AuthService{
		accounts: accounts,
		sender:   sender,
		tokens:   tokens,
		throttle: throttle,
		cfg:      cfg,
		logger:   logger,
	}
}

type RegisterInput struct {
	Name        string
	Username    string
	Email       string
	PhoneNumber string
	Password    string
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*models.Account, *models.SessionToken, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Username = strings.TrimSpace(input.Username)
	input.Email = normalizeEmail(input.Email)
	input.PhoneNumber = strings.TrimSpace(input.PhoneNumber)

	if input.Name == "" || input.Username == "" || input.Email == "" || input.PhoneNumber == "" || input.Password == "" {
		return nil, nil, fmt.Errorf("%w: all fields are required", ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &models.Account{
		Username:     input.Username,
		Name:         input.Name,
		Email:        input.Email,
		PhoneNumber:  input.PhoneNumber,
		PasswordHash: string(hash),
		Role:         models.RoleUser,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, nil, ErrConflict
		}
		return nil, nil, err
	}

	token, err := s.tokens.Issue(account)
	if err != nil {
		return nil, nil, err
	}

	return account, token, nil
}

// Login verifies the password and, when it matches, issues a fresh OTP to
// the account's registered email. Re-running it overwrites any outstanding
// OTP, invalidating the previous code. It returns the email address the
// code was sent to.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return "", fmt.Errorf("%w: username and password are required", ErrValidation)
	}

	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if account == nil {
		return "", ErrNotFound
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	if err := s.issueOTP(ctx, account); err != nil {
		return "", err
	}

	return account.Email, nil
}

// SendOTP issues (or re-issues) an OTP for the account registered under the
// given email, without a password check. Used by the resend flow.
func (s *AuthService) SendOTP(ctx context.Context, emailAddr string) (string, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return "", fmt.Errorf("%w: email is required", ErrValidation)
	}

	account, err := s.accounts.GetByEmail(ctx, emailAddr)
	if err != nil {
		return "", err
	}
	if account == nil {
		return "", ErrNotFound
	}

	if err := s.issueOTP(ctx, account); err != nil {
		return "", err
	}

	return account.Email, nil
}

func (s *AuthService) issueOTP(ctx context.Context, account *models.Account) error {
	if s.throttle != nil && !s.throttle.AllowSend(account.Username) {
		return ErrRateLimited
	}

	code, err := GenerateCode()
	if err != nil {
		return err
	}

	expiresAt := time.Now().Add(s.cfg.Expiry)
	if err := s.accounts.SetOTP(ctx, account.Username, HashCode(code), expiresAt); err != nil {
		return err
	}

	if err := s.sender.Send(ctx, account.Email, "Your OTP Code", email.OTPBody(code)); err != nil {
		// Roll back so a dangling undeliverable OTP never blocks re-issuance.
		if clearErr := s.accounts.ClearOTP(ctx, account.Username); clearErr != nil {
			s.logger.WithError(clearErr).WithField("username", account.Username).
				Error("Failed to roll back OTP after send failure")
		}
		s.logger.WithError(err).WithField("username", account.Username).Error("Failed to dispatch OTP email")
		return ErrDelivery
	}

	return nil
}

type VerifyOTPInput struct {
	Username string
	Email    string
	Code     string
}

// VerifyOTP checks the submitted code against the account's outstanding OTP
// and, on success, clears it and issues a session token. The clear is a
// compare-and-clear on the stored digest so a code is spendable exactly once.
func (s *AuthService) VerifyOTP(ctx context.Context, input VerifyOTPInput) (*models.Account, *models.SessionToken, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = normalizeEmail(input.Email)
	input.Code = strings.TrimSpace(input.Code)

	if (input.Username == "" && input.Email == "") || input.Code == "" {
		return nil, nil, fmt.Errorf("%w: username or email, and otp are required", ErrValidation)
	}

	var (
		account *models.Account
		err     error
	)
	if input.Username != "" {
		account, err = s.accounts.GetByUsername(ctx, input.Username)
	} else {
		account, err = s.accounts.GetByEmail(ctx, input.Email)
	}
	if err != nil {
		return nil, nil, err
	}
	if account == nil || !account.HasPendingOTP() {
		return nil, nil, ErrOTPNotRequested
	}

	if s.throttle != nil && !s.throttle.AllowAttempt(account.Username) {
		return nil, nil, ErrRateLimited
	}

	if time.Now().After(*account.OTPExpiresAt) {
		if err := s.accounts.ClearOTP(ctx, account.Username); err != nil {
			s.logger.WithError(err).WithField("username", account.Username).Error("Failed to clear expired OTP")
		}
		return nil, nil, ErrOTPExpired
	}

	if !VerifyCode(input.Code, account.OTPHash) {
		return nil, nil, ErrOTPInvalid
	}

	if err := s.accounts.ClearOTPIfMatch(ctx, account.Username, account.OTPHash); err != nil {
		if errors.Is(err, repository.ErrConditionFailed) {
			// A concurrent verify already spent this code.
			return nil, nil, ErrOTPNotRequested
		}
		return nil, nil, err
	}

	if s.throttle != nil {
		s.throttle.ClearAttempts(account.Username)
	}

	token, err := s.tokens.Issue(account)
	if err != nil {
		return nil, nil, err
	}

	return account, token, nil
}

// AdminLogin is the password-only path for admin accounts: no OTP, but the
// account must carry the admin role.
func (s *AuthService) AdminLogin(ctx context.Context, username, password string) (*models.Account, *models.SessionToken, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return nil, nil, fmt.Errorf("%w: username and password are required", ErrValidation)
	}

	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	if account == nil {
		return nil, nil, ErrNotFound
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	if !account.IsAdmin() {
		return nil, nil, ErrForbidden
	}

	token, err := s.tokens.Issue(account)
	if err != nil {
		return nil, nil, err
	}

	return account, token, nil
}

func (s *AuthService) GetAccount(ctx context.Context, username string) (*models.Account, error) {
	account, err := s.accounts.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrNotFound
	}
	return account, nil
}

func (s *AuthService) DeleteAccount(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("%w: username is required", ErrValidation)
	}
	return s.accounts.Delete(ctx, username)
}

func normalizeEmail(emailAddr string) string {
	return strings.ToLower(strings.TrimSpace(emailAddr))
}
