package notify

import (
	"context"
	"fmt"

	"github.com/funpay-tools/steampoints-bot/pkg/logging"
)

// Service routes operator alerts to the configured email sender. Alert
// failures are logged and swallowed; notifications must never disturb the
// fulfillment flow.
type Service struct {
	sender   EmailSender
	operator string
	logger   *logging.Logger
}

// NewService creates an alert service. When sender is nil a stub is used.
func NewService(sender EmailSender, operatorEmail string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if sender == nil || (isNilSendGrid(sender)) {
		sender = NewStubEmailSender(logger)
	}
	return &Service{sender: sender, operator: operatorEmail, logger: logger}
}

func isNilSendGrid(s EmailSender) bool {
	sg, ok := s.(*SendGridSender)
	return ok && sg == nil
}

// LowBalance alerts the operator that the provider balance dropped below
// the threshold, including how many listings were deactivated (if any).
func (s *Service) LowBalance(ctx context.Context, balance, threshold float64, deactivated int, autoDeactivate bool) {
	if s == nil {
		return
	}
	body := fmt.Sprintf(
		"Provider balance is %.2f, below the %.2f threshold.\n", balance, threshold)
	if autoDeactivate {
		body += fmt.Sprintf("Deactivated %d listing(s) in the protected category.\n", deactivated)
	} else {
		body += "Auto-deactivation is disabled; deactivate listings manually.\n"
	}
	s.send(ctx, "Steam points bot: provider balance low", body)
}

func (s *Service) send(ctx context.Context, subject, body string) {
	if s.operator == "" {
		s.logger.Warn("operator alert skipped (OPERATOR_EMAIL not set)", "subject", subject)
		return
	}
	if err := s.sender.Send(ctx, EmailMessage{To: s.operator, Subject: subject, Body: body}); err != nil {
		s.logger.Error("operator alert failed", "subject", subject, "error", err)
	}
}
