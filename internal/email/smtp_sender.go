package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// SMTPSender sends mail through an SMTP relay via gomail. Each send is
// bounded by sendTimeout so a slow relay cannot hang the calling request.
type SMTPSender struct {
	dialer      *gomail.Dialer
	from        string
	sendTimeout time.Duration
	logger      *logrus.Logger
}

func NewSMTPSender(host string, port int, username, password, from string, sendTimeout time.Duration, logger *logrus.Logger) (*SMTPSender, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if strings.TrimSpace(from) == "" {
		from = username
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}
	if port == 0 {
		port = 587
	}
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}

	dialer := gomail.NewDialer(host, port, username, password)
	dialer.TLSConfig = &tls.Config{ServerName: host}

	return &SMTPSender{
		dialer:      dialer,
		from:        from,
		sendTimeout: sendTimeout,
		logger:      logger,
	}, nil
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("recipient address is required")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	ctx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	// gomail has no context support, so the dial-and-send runs in its own
	// goroutine and the slot is abandoned on timeout.
	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			s.logger.WithError(err).WithField("to", to).Error("Failed to send email")
			return fmt.Errorf("failed to send email: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.logger.WithField("to", to).Error("Email send timed out")
		return fmt.Errorf("email send timed out: %w", ctx.Err())
	}
}
