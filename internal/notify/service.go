package notify

import (
	"context"
	"fmt"

	"github.com/butstore/whatsapp-bridge/internal/messaging"
	"github.com/butstore/whatsapp-bridge/pkg/logging"
)

// TextSender sends WhatsApp text messages to operators.
type TextSender interface {
	SendText(ctx context.Context, to messaging.Phone, body string, orderNumber int64) (string, error)
}

// Service alerts the store's support staff about events that need a human,
// over WhatsApp and optionally email. Notifications are best-effort; a failed
// channel is reported but never blocks order processing.
type Service struct {
	sender       TextSender
	email        EmailSender
	supportPhone messaging.Phone
	supportEmail string
	logger       *logging.Logger
}

// ServiceConfig wires the notification channels. Email is optional.
type ServiceConfig struct {
	Sender       TextSender
	Email        EmailSender
	SupportPhone messaging.Phone
	SupportEmail string
	Logger       *logging.Logger
}

// NewService creates a notification service. Returns nil when no support
// phone is configured, so callers can treat notifications as disabled.
func NewService(cfg ServiceConfig) *Service {
	if cfg.SupportPhone.IsZero() || cfg.Sender == nil {
		return nil
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Service{
		sender:       cfg.Sender,
		email:        cfg.Email,
		supportPhone: cfg.SupportPhone,
		supportEmail: cfg.SupportEmail,
		logger:       cfg.Logger,
	}
}

// NotifyCancellation alerts support that a customer cancelled their order so
// someone can follow up.
func (s *Service) NotifyCancellation(ctx context.Context, customerPhone string, orderNumber int64) error {
	if s == nil {
		return nil
	}

	body := fmt.Sprintf("Order #%d was cancelled by %s. Please follow up.", orderNumber, customerPhone)
	var errs []error
	if _, err := s.sender.SendText(ctx, s.supportPhone, body, orderNumber); err != nil {
		s.logger.Error("cancellation alert send failed", "error", err, "order_number", orderNumber)
		errs = append(errs, err)
	}

	if s.email != nil && s.supportEmail != "" {
		msg := EmailMessage{
			To:      s.supportEmail,
			Subject: fmt.Sprintf("Order #%d cancelled", orderNumber),
			Body: fmt.Sprintf(`Order #%d was cancelled via WhatsApp.

Customer: %s

The order has been tagged cancelled in Shopify. Please review and process any refund.`, orderNumber, customerPhone),
		}
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("cancellation alert email failed", "error", err, "order_number", orderNumber)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d notification(s) failed", len(errs))
	}
	s.logger.Info("cancellation alert sent", "order_number", orderNumber, "customer", customerPhone)
	return nil
}

// NotifySupportRequest alerts support that a customer asked for a human.
func (s *Service) NotifySupportRequest(ctx context.Context, customerPhone, message string) error {
	if s == nil {
		return nil
	}
	body := fmt.Sprintf("Customer %s asked for support: %q", customerPhone, message)
	if _, err := s.sender.SendText(ctx, s.supportPhone, body, 0); err != nil {
		s.logger.Error("support request alert failed", "error", err, "customer", customerPhone)
		return fmt.Errorf("notify: support alert: %w", err)
	}
	return nil
}
