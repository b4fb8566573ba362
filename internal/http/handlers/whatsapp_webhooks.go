package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/butstore/whatsapp-bridge/internal/channels/whatsapp"
	"github.com/butstore/whatsapp-bridge/internal/messaging"
	"github.com/butstore/whatsapp-bridge/internal/observability/metrics"
	"github.com/butstore/whatsapp-bridge/internal/orders"
	"github.com/butstore/whatsapp-bridge/pkg/logging"
)

type intentRouter interface {
	HandleMessage(ctx context.Context, msg whatsapp.ParsedInbound) error
}

type messageStatusSink interface {
	UpdateStatusByProviderID(ctx context.Context, providerID string, status messaging.MessageStatus, at time.Time) error
}

type confirmationStatusSink interface {
	UpdateMessageStatusByProviderID(ctx context.Context, providerMessageID, status string) error
}

// WhatsAppWebhookHandler serves Meta's webhook surface: the GET verification
// handshake and POST delivery of inbound messages and status callbacks.
type WhatsAppWebhookHandler struct {
	verifyToken   string
	router        intentRouter
	messages      messageStatusSink
	confirmations confirmationStatusSink
	dedupe        eventDeduper
	logger        *logging.Logger
	metrics       *metrics.BridgeMetrics
}

// WhatsAppWebhookConfig wires the handler. Messages, Confirmations, Dedupe
// and Metrics are optional.
type WhatsAppWebhookConfig struct {
	VerifyToken   string
	Router        intentRouter
	Messages      messageStatusSink
	Confirmations confirmationStatusSink
	Dedupe        eventDeduper
	Logger        *logging.Logger
	Metrics       *metrics.BridgeMetrics
}

func NewWhatsAppWebhookHandler(cfg WhatsAppWebhookConfig) *WhatsAppWebhookHandler {
	if cfg.Router == nil {
		panic("handlers: intent router cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WhatsAppWebhookHandler{
		verifyToken:   cfg.VerifyToken,
		router:        cfg.Router,
		messages:      cfg.Messages,
		confirmations: cfg.Confirmations,
		dedupe:        cfg.Dedupe,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
	}
}

// Verify answers Meta's subscription handshake.
func (h *WhatsAppWebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	challenge, ok := whatsapp.VerifyChallenge(h.verifyToken, r.URL.Query())
	if !ok {
		h.logger.Warn("webhook verification failed", "mode", r.URL.Query().Get("hub.mode"))
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	h.logger.Info("webhook verified")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

// Receive processes a webhook delivery. Meta expects a quick 200 regardless
// of downstream outcomes; failures are logged, not surfaced.
func (h *WhatsAppWebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		h.metrics.ObserveWebhookLatency("whatsapp", time.Since(start).Seconds())
	}()

	var event whatsapp.WebhookEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	inbound, statuses := whatsapp.ParseWebhookEvent(event)
	for _, msg := range inbound {
		h.handleInbound(r.Context(), msg)
	}
	for _, status := range statuses {
		h.handleStatus(r.Context(), status)
	}
	w.WriteHeader(http.StatusOK)
}

func (h *WhatsAppWebhookHandler) handleInbound(ctx context.Context, msg whatsapp.ParsedInbound) {
	if h.dedupe != nil && msg.MessageID != "" {
		first, err := h.dedupe.MarkProcessed(ctx, "whatsapp", msg.MessageID)
		if err != nil {
			h.logger.Error("whatsapp dedupe check failed", "error", err, "message_id", msg.MessageID)
		} else if !first {
			h.logger.Info("duplicate whatsapp message skipped", "message_id", msg.MessageID)
			h.metrics.ObserveInbound("whatsapp", "duplicate")
			return
		}
	}

	if err := h.router.HandleMessage(ctx, msg); err != nil {
		h.logger.Error("inbound message handling failed", "error", err, "message_id", msg.MessageID, "from", msg.From)
		h.metrics.ObserveInbound("whatsapp", "error")
		return
	}
	h.metrics.ObserveInbound("whatsapp", "ok")
}

// handleStatus fans a delivery-status callback out to the message log and the
// confirmation that sent the message. Unknown ids are no-ops.
func (h *WhatsAppWebhookHandler) handleStatus(ctx context.Context, status whatsapp.Status) {
	h.logger.Info("message status update", "message_id", status.ID, "status", status.Status)

	if h.messages != nil {
		err := h.messages.UpdateStatusByProviderID(ctx, status.ID, messaging.MessageStatus(status.Status), status.StatusTime())
		if err != nil && !errors.Is(err, messaging.ErrMessageNotFound) {
			h.logger.Error("message status update failed", "error", err, "message_id", status.ID)
		}
	}
	if h.confirmations != nil {
		err := h.confirmations.UpdateMessageStatusByProviderID(ctx, status.ID, status.Status)
		if err != nil && !errors.Is(err, orders.ErrConfirmationNotFound) {
			h.logger.Error("confirmation status update failed", "error", err, "message_id", status.ID)
		}
	}
}
