package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/finddoc-chatbot/pkg/logging"
)

// ConfirmationKind distinguishes booking from cancellation emails.
type ConfirmationKind string

const (
	ConfirmationBooked    ConfirmationKind = "booked"
	ConfirmationCancelled ConfirmationKind = "cancelled"
)

// Confirmation describes a completed booking or cancellation.
type Confirmation struct {
	Kind         ConfirmationKind
	Email        string
	ProviderName string
	When         string // human-readable appointment time
	Reason       string
}

// Service turns chat confirmations into emails to the patient.
type Service struct {
	email  EmailSender
	logger *logging.Logger
}

// NewService creates a confirmation service. A nil sender falls back to the stub.
func NewService(email EmailSender, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if email == nil {
		email = NewStubEmailSender(logger)
	}
	return &Service{email: email, logger: logger}
}

// NotifyConfirmation emails the patient about a completed booking or cancellation.
func (s *Service) NotifyConfirmation(ctx context.Context, c Confirmation) error {
	if s == nil {
		return nil
	}
	to := strings.TrimSpace(c.Email)
	if to == "" || !strings.Contains(to, "@") {
		s.logger.Debug("notify: no deliverable address, skipping confirmation", "kind", c.Kind)
		return nil
	}
	msg, err := buildConfirmation(c)
	if err != nil {
		return err
	}
	msg.To = to
	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: send %s confirmation: %w", c.Kind, err)
	}
	return nil
}

func buildConfirmation(c Confirmation) (EmailMessage, error) {
	provider := c.ProviderName
	if provider == "" {
		provider = "your provider"
	}
	var b strings.Builder
	switch c.Kind {
	case ConfirmationBooked:
		fmt.Fprintf(&b, "Your appointment with %s is confirmed.\n", provider)
		if c.When != "" {
			fmt.Fprintf(&b, "When: %s\n", c.When)
		}
		if c.Reason != "" {
			fmt.Fprintf(&b, "Reason: %s\n", c.Reason)
		}
		return EmailMessage{Subject: "Your appointment is confirmed", Body: b.String()}, nil
	case ConfirmationCancelled:
		fmt.Fprintf(&b, "Your appointment with %s has been canceled.\n", provider)
		if c.When != "" {
			fmt.Fprintf(&b, "It was scheduled for %s.\n", c.When)
		}
		return EmailMessage{Subject: "Your appointment was canceled", Body: b.String()}, nil
	default:
		return EmailMessage{}, fmt.Errorf("notify: unknown confirmation kind %q", c.Kind)
	}
}
