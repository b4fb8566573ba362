package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/butstore/whatsapp-bridge/internal/channels/whatsapp"
	"github.com/butstore/whatsapp-bridge/internal/observability/metrics"
	"github.com/butstore/whatsapp-bridge/pkg/logging"
)

// ProviderClient is the subset of the Graph API client the sender needs.
type ProviderClient interface {
	SendText(ctx context.Context, toDigits, body string) (*whatsapp.SendResponse, error)
	SendTemplate(ctx context.Context, toDigits string, tmpl whatsapp.Template) (*whatsapp.SendResponse, error)
}

type messageLog interface {
	LogOutbound(ctx context.Context, rec *MessageRecord) error
}

// Sender performs outbound sends, logs them to the message store, and
// optionally replays them to a mirror sink. Delivery to the primary recipient
// is the only outcome that affects the caller; store and mirror failures are
// logged and swallowed.
type Sender struct {
	client  ProviderClient
	store   messageLog
	mirror  *Mirror
	logger  *logging.Logger
	metrics *metrics.BridgeMetrics
}

// SenderConfig wires the sender's collaborators. Store, Mirror and Metrics
// are optional.
type SenderConfig struct {
	Client  ProviderClient
	Store   messageLog
	Mirror  *Mirror
	Logger  *logging.Logger
	Metrics *metrics.BridgeMetrics
}

// NewSender builds an outbound sender.
func NewSender(cfg SenderConfig) *Sender {
	if cfg.Client == nil {
		panic("messaging: provider client cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Sender{
		client:  cfg.Client,
		store:   cfg.Store,
		mirror:  cfg.Mirror,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// SendText sends a plain text message and returns the provider message id.
func (s *Sender) SendText(ctx context.Context, to Phone, body string, orderNumber int64) (string, error) {
	if to.IsZero() {
		return "", errors.New("messaging: recipient required")
	}
	if body == "" {
		return "", errors.New("messaging: body required")
	}

	resp, err := s.client.SendText(ctx, to.Digits(), body)
	if err != nil {
		s.metrics.ObserveOutbound(string(MessageTypeText), "failed")
		return "", fmt.Errorf("messaging: text send to %s failed: %w", to.E164(), err)
	}
	messageID := resp.MessageID()
	s.metrics.ObserveOutbound(string(MessageTypeText), "sent")
	s.logger.Info("whatsapp text sent", "to", to.E164(), "message_id", messageID, "order_number", orderNumber)

	s.logSend(ctx, &MessageRecord{
		ProviderID:  messageID,
		Customer:    to.E164(),
		Type:        MessageTypeText,
		Text:        body,
		OrderNumber: orderNumber,
	})
	s.mirror.ReplayText(ctx, to, body)
	return messageID, nil
}

// SendTemplate builds and sends a template message, returning the provider
// message id.
func (s *Sender) SendTemplate(ctx context.Context, to Phone, templateName string, variables map[string]string, orderNumber int64) (string, error) {
	if to.IsZero() {
		return "", errors.New("messaging: recipient required")
	}
	if templateName == "" {
		return "", errors.New("messaging: template name required")
	}

	tmpl := whatsapp.BuildTemplate(templateName, variables)
	resp, err := s.client.SendTemplate(ctx, to.Digits(), tmpl)
	if err != nil {
		s.metrics.ObserveOutbound(string(MessageTypeTemplate), "failed")
		return "", fmt.Errorf("messaging: template %s send to %s failed: %w", templateName, to.E164(), err)
	}
	messageID := resp.MessageID()
	s.metrics.ObserveOutbound(string(MessageTypeTemplate), "sent")
	s.logger.Info("whatsapp template sent", "to", to.E164(), "template", templateName, "message_id", messageID)

	s.logSend(ctx, &MessageRecord{
		ProviderID:   messageID,
		Customer:     to.E164(),
		Type:         MessageTypeTemplate,
		TemplateName: templateName,
		Variables:    variables,
		OrderNumber:  orderNumber,
	})
	s.mirror.ReplayTemplate(ctx, to, tmpl)
	return messageID, nil
}

func (s *Sender) logSend(ctx context.Context, rec *MessageRecord) {
	if s.store == nil {
		return
	}
	if err := s.store.LogOutbound(ctx, rec); err != nil {
		s.logger.Warn("failed to persist outbound message", "error", err, "to", rec.Customer)
	}
}

// Mirror replays outbound traffic to a distinct test recipient so sends can
// be monitored without touching the real recipient's experience.
type Mirror struct {
	client    ProviderClient
	recipient Phone
	logger    *logging.Logger
}

// NewMirror returns a mirror sink, or nil when beta mode is off or no
// recipient is configured.
func NewMirror(enabled bool, client ProviderClient, recipient Phone, logger *logging.Logger) *Mirror {
	if !enabled || client == nil || recipient.IsZero() {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Mirror{client: client, recipient: recipient, logger: logger}
}

// ReplayText mirrors a text send, prefixed with a diagnostic summary.
func (m *Mirror) ReplayText(ctx context.Context, original Phone, body string) {
	if m == nil || original == m.recipient {
		return
	}
	mirrored := fmt.Sprintf("[mirror %s]\n%s", original.E164(), body)
	if _, err := m.client.SendText(ctx, m.recipient.Digits(), mirrored); err != nil {
		m.logger.Warn("mirror text send failed", "error", err, "original_to", original.E164())
	}
}

// ReplayTemplate mirrors a template send: a diagnostic summary text followed
// by the exact same template payload.
func (m *Mirror) ReplayTemplate(ctx context.Context, original Phone, tmpl whatsapp.Template) {
	if m == nil || original == m.recipient {
		return
	}
	summary := fmt.Sprintf("[mirror %s] template %s (%s)", original.E164(), tmpl.Name, tmpl.Language.Code)
	if _, err := m.client.SendText(ctx, m.recipient.Digits(), summary); err != nil {
		m.logger.Warn("mirror summary send failed", "error", err, "original_to", original.E164())
	}
	if _, err := m.client.SendTemplate(ctx, m.recipient.Digits(), tmpl); err != nil {
		m.logger.Warn("mirror template send failed", "error", err, "original_to", original.E164())
	}
}
