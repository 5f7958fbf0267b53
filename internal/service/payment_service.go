package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/veloxcart/veloxcart/internal/config"
	"github.com/veloxcart/veloxcart/internal/email"
	"github.com/veloxcart/veloxcart/internal/models"
	"github.com/veloxcart/veloxcart/internal/repository"
)

// PaymentRepository is the persistence surface for payment OTP records.
type PaymentRepository interface {
	Create(ctx context.Context, record *models.PaymentOTPRecord) error
	GetByID(ctx context.Context, id string) (*models.PaymentOTPRecord, error)
	// MarkVerified moves the record to verified and clears the OTP fields,
	// conditional on the record still being in otp_sent.
	MarkVerified(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// PaymentService gates a simulated payment method behind its own short-lived
// OTP record, one record per attempt.
type PaymentService struct {
	payments PaymentRepository
	accounts AccountRepository
	sender   email.Sender
	cfg      *config.OTPConfig
	logger   *logrus.Logger
}

func NewPaymentService(
	payments PaymentRepository,
	accounts AccountRepository,
	sender email.Sender,
	cfg *config.OTPConfig,
	logger *logrus.Logger,
) *PaymentService {
	return &PaymentService{
		payments: payments,
		accounts: accounts,
		sender:   sender,
		cfg:      cfg,
		logger:   logger,
	}
}

// SendPaymentOTP creates a fresh otp_sent record and emails the code. If the
// email cannot be dispatched the record is deleted again so no unusable
// attempt lingers.
func (s *PaymentService) SendPaymentOTP(ctx context.Context, emailAddr, method, mobile string) (string, error) {
	emailAddr = normalizeEmail(emailAddr)
	method = strings.ToLower(strings.TrimSpace(method))

	if emailAddr == "" || method == "" {
		return "", fmt.Errorf("%w: email and payment method are required", ErrValidation)
	}
	if !models.IsValidPaymentMethod(method) {
		return "", fmt.Errorf("%w: invalid payment method", ErrValidation)
	}

	account, err := s.accounts.GetByEmail(ctx, emailAddr)
	if err != nil {
		return "", err
	}
	if account == nil {
		return "", ErrNotFound
	}

	code, err := GenerateCode()
	if err != nil {
		return "", err
	}

	expiresAt := time.Now().Add(s.cfg.Expiry)
	record := &models.PaymentOTPRecord{
		ID:           uuid.New().String(),
		Username:     account.Username,
		Email:        account.Email,
		Method:       method,
		Mobile:       strings.TrimSpace(mobile),
		Status:       models.PaymentStatusOTPSent,
		OTPHash:      HashCode(code),
		OTPExpiresAt: &expiresAt,
		CreatedAt:    time.Now(),
	}

	if err := s.payments.Create(ctx, record); err != nil {
		return "", err
	}

	if err := s.sender.Send(ctx, account.Email, "Your Payment OTP", email.OTPBody(code)); err != nil {
		if delErr := s.payments.Delete(ctx, record.ID); delErr != nil {
			s.logger.WithError(delErr).WithField("payment_id", record.ID).
				Error("Failed to delete payment record after send failure")
		}
		s.logger.WithError(err).WithField("payment_id", record.ID).Error("Failed to dispatch payment OTP email")
		return "", ErrDelivery
	}

	return record.ID, nil
}

// VerifyPaymentOTP checks the code for the record identified by paymentID.
// The record id is the sole lookup key; the email must belong to the same
// record.
func (s *PaymentService) VerifyPaymentOTP(ctx context.Context, emailAddr, code, paymentID string) error {
	emailAddr = normalizeEmail(emailAddr)
	code = strings.TrimSpace(code)
	paymentID = strings.TrimSpace(paymentID)

	if emailAddr == "" || code == "" || paymentID == "" {
		return fmt.Errorf("%w: email, otp and payment id are required", ErrValidation)
	}

	record, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return err
	}
	if record == nil || normalizeEmail(record.Email) != emailAddr {
		return ErrPaymentNotFound
	}

	if record.Status != models.PaymentStatusOTPSent || !record.HasPendingOTP() {
		return ErrPaymentState
	}

	if time.Now().After(*record.OTPExpiresAt) {
		return ErrOTPExpired
	}

	if !VerifyCode(code, record.OTPHash) {
		return ErrOTPInvalid
	}

	if err := s.payments.MarkVerified(ctx, record.ID); err != nil {
		if errors.Is(err, repository.ErrConditionFailed) {
			return ErrPaymentState
		}
		return err
	}

	return nil
}
