package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/butstore/whatsapp-bridge/internal/channels/whatsapp"
	"github.com/butstore/whatsapp-bridge/internal/messaging"
	"github.com/butstore/whatsapp-bridge/internal/orders"
	"github.com/butstore/whatsapp-bridge/pkg/logging"
)

type stubRouter struct {
	handled []whatsapp.ParsedInbound
	err     error
}

func (s *stubRouter) HandleMessage(_ context.Context, msg whatsapp.ParsedInbound) error {
	s.handled = append(s.handled, msg)
	return s.err
}

type stubMessageSink struct {
	updates map[string]messaging.MessageStatus
	err     error
}

func (s *stubMessageSink) UpdateStatusByProviderID(_ context.Context, providerID string, status messaging.MessageStatus, _ time.Time) error {
	if s.err != nil {
		return s.err
	}
	if s.updates == nil {
		s.updates = map[string]messaging.MessageStatus{}
	}
	s.updates[providerID] = status
	return nil
}

type stubConfirmationSink struct {
	updates map[string]string
	err     error
}

func (s *stubConfirmationSink) UpdateMessageStatusByProviderID(_ context.Context, providerMessageID, status string) error {
	if s.err != nil {
		return s.err
	}
	if s.updates == nil {
		s.updates = map[string]string{}
	}
	s.updates[providerMessageID] = status
	return nil
}

func newWhatsAppHandler(router *stubRouter, messages *stubMessageSink, confirmations *stubConfirmationSink, dedupe eventDeduper) *WhatsAppWebhookHandler {
	cfg := WhatsAppWebhookConfig{
		VerifyToken: "verify-me",
		Router:      router,
		Dedupe:      dedupe,
		Logger:      logging.Default(),
	}
	if messages != nil {
		cfg.Messages = messages
	}
	if confirmations != nil {
		cfg.Confirmations = confirmations
	}
	return NewWhatsAppWebhookHandler(cfg)
}

func TestVerifyHandshake(t *testing.T) {
	handler := newWhatsAppHandler(&stubRouter{}, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	handler.Verify(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "12345" {
		t.Fatalf("expected raw challenge echoed, got %q", rec.Body.String())
	}
}

func TestVerifyHandshakeWrongToken(t *testing.T) {
	handler := newWhatsAppHandler(&stubRouter{}, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	handler.Verify(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

const inboundEventJSON = `{
	"object": "whatsapp_business_account",
	"entry": [{
		"id": "entry-1",
		"changes": [{
			"field": "messages",
			"value": {
				"messaging_product": "whatsapp",
				"messages": [{
					"from": "201012345678",
					"id": "wamid.inbound1",
					"timestamp": "1700000000",
					"type": "text",
					"text": {"body": "Confirm"}
				}]
			}
		}]
	}]
}`

func TestReceiveRoutesInboundMessage(t *testing.T) {
	router := &stubRouter{}
	handler := newWhatsAppHandler(router, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", bytes.NewReader([]byte(inboundEventJSON)))
	rec := httptest.NewRecorder()
	handler.Receive(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(router.handled) != 1 {
		t.Fatalf("expected one routed message, got %d", len(router.handled))
	}
	if router.handled[0].Text != "Confirm" || router.handled[0].From != "201012345678" {
		t.Fatalf("unexpected parsed message %+v", router.handled[0])
	}
}

func TestReceiveDedupesByMessageID(t *testing.T) {
	router := &stubRouter{}
	handler := newWhatsAppHandler(router, nil, nil, &stubDedupe{})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", bytes.NewReader([]byte(inboundEventJSON)))
		rec := httptest.NewRecorder()
		handler.Receive(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	}
	if len(router.handled) != 1 {
		t.Fatalf("expected redelivered message routed once, got %d", len(router.handled))
	}
}

func TestReceiveRouterErrorStillReturns200(t *testing.T) {
	router := &stubRouter{err: context.DeadlineExceeded}
	handler := newWhatsAppHandler(router, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", bytes.NewReader([]byte(inboundEventJSON)))
	rec := httptest.NewRecorder()
	handler.Receive(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("routing failure must not fail the webhook, got %d", rec.Code)
	}
}

const statusEventJSON = `{
	"object": "whatsapp_business_account",
	"entry": [{
		"id": "entry-1",
		"changes": [{
			"field": "messages",
			"value": {
				"messaging_product": "whatsapp",
				"statuses": [{
					"id": "wamid.sent1",
					"status": "delivered",
					"timestamp": "1700000000",
					"recipient_id": "201012345678"
				}]
			}
		}]
	}]
}`

func TestReceiveFansStatusOutToBothStores(t *testing.T) {
	messages := &stubMessageSink{}
	confirmations := &stubConfirmationSink{}
	handler := newWhatsAppHandler(&stubRouter{}, messages, confirmations, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", bytes.NewReader([]byte(statusEventJSON)))
	rec := httptest.NewRecorder()
	handler.Receive(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if messages.updates["wamid.sent1"] != messaging.MessageStatusDelivered {
		t.Fatalf("expected message status updated, got %v", messages.updates)
	}
	if confirmations.updates["wamid.sent1"] != "delivered" {
		t.Fatalf("expected confirmation status updated, got %v", confirmations.updates)
	}
}

func TestReceiveUnknownStatusIDIsNoOp(t *testing.T) {
	messages := &stubMessageSink{err: messaging.ErrMessageNotFound}
	confirmations := &stubConfirmationSink{err: orders.ErrConfirmationNotFound}
	handler := newWhatsAppHandler(&stubRouter{}, messages, confirmations, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", bytes.NewReader([]byte(statusEventJSON)))
	rec := httptest.NewRecorder()
	handler.Receive(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unknown status ids must be a silent no-op, got %d", rec.Code)
	}
}

func TestReceiveRejectsMalformedJSON(t *testing.T) {
	handler := newWhatsAppHandler(&stubRouter{}, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	handler.Receive(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
