package inbound

import (
	"context"
	"strings"
	"testing"

	"github.com/butstore/whatsapp-bridge/internal/channels/whatsapp"
	"github.com/butstore/whatsapp-bridge/internal/messaging"
	"github.com/butstore/whatsapp-bridge/internal/orders"
	"github.com/butstore/whatsapp-bridge/internal/shopify"
	"github.com/butstore/whatsapp-bridge/pkg/logging"
)

type sentTemplate struct {
	to        messaging.Phone
	name      string
	variables map[string]string
}

type sentText struct {
	to   messaging.Phone
	body string
}

type stubSender struct {
	templates []sentTemplate
	texts     []sentText
}

func (s *stubSender) SendText(_ context.Context, to messaging.Phone, body string, _ int64) (string, error) {
	s.texts = append(s.texts, sentText{to: to, body: body})
	return "wamid.text", nil
}

func (s *stubSender) SendTemplate(_ context.Context, to messaging.Phone, name string, variables map[string]string, _ int64) (string, error) {
	s.templates = append(s.templates, sentTemplate{to: to, name: name, variables: variables})
	return "wamid.template", nil
}

type stubTagger struct {
	applied []string
	rec     *orders.ConfirmationRecord
	err     error
}

func (s *stubTagger) Apply(_ context.Context, _ string, tag string) (*orders.ConfirmationRecord, error) {
	s.applied = append(s.applied, tag)
	if s.err != nil {
		return nil, s.err
	}
	return s.rec, nil
}

type stubReader struct {
	rec *orders.ConfirmationRecord
}

func (s *stubReader) LatestPendingByPhone(_ context.Context, _ string) (*orders.ConfirmationRecord, error) {
	if s.rec == nil {
		return nil, orders.ErrConfirmationNotFound
	}
	return s.rec, nil
}

type stubFulfillment struct {
	order shopify.Order
}

func (s *stubFulfillment) GetOrder(_ context.Context, _ int64) (shopify.Order, error) {
	return s.order, nil
}

type stubInteractions struct {
	records []*InteractionRecord
}

func (s *stubInteractions) Log(_ context.Context, rec *InteractionRecord) error {
	s.records = append(s.records, rec)
	return nil
}

type stubNotifier struct {
	notified []int64
}

func (s *stubNotifier) NotifyCancellation(_ context.Context, _ string, orderNumber int64) error {
	s.notified = append(s.notified, orderNumber)
	return nil
}

func confirmedRecord() *orders.ConfirmationRecord {
	return &orders.ConfirmationRecord{
		OrderID:     450789469,
		OrderNumber: 1042,
		Phone:       "+201012345678",
		Name:        "Omar Hassan",
		Status:      orders.StatusConfirmed,
		Variables: map[string]string{
			"name":    "Omar Hassan",
			"orderid": "1042",
			"address": "12 Tahrir St, Cairo",
			"price":   "650.00 EGP",
		},
	}
}

func testRouter(sender *stubSender, tagger *stubTagger, reader *stubReader, fulfillment *stubFulfillment, interactions *stubInteractions, notifier *stubNotifier) *Router {
	cfg := RouterConfig{
		Sender:             sender,
		Tags:               tagger,
		Confirmations:      reader,
		SupportLink:        "https://wa.me/201000000000",
		DefaultCountryCode: "20",
		Logger:             logging.Default(),
	}
	if fulfillment != nil {
		cfg.Shopify = fulfillment
	}
	if interactions != nil {
		cfg.Interactions = interactions
	}
	if notifier != nil {
		cfg.Notifier = notifier
	}
	return NewRouter(cfg)
}

func TestHandleConfirmTagsAndSendsShippingUpdate(t *testing.T) {
	sender := &stubSender{}
	tagger := &stubTagger{rec: confirmedRecord()}
	interactions := &stubInteractions{}
	router := testRouter(sender, tagger, &stubReader{}, nil, interactions, nil)

	msg := whatsapp.ParsedInbound{From: "201012345678", MessageID: "wamid.in", Text: "Confirm"}
	if err := router.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}

	if len(tagger.applied) != 1 || tagger.applied[0] != "confirmed" {
		t.Fatalf("expected confirmed tag applied, got %v", tagger.applied)
	}
	if len(sender.templates) != 1 || sender.templates[0].name != whatsapp.TemplateShippingUpdate {
		t.Fatalf("expected english shipping update, got %+v", sender.templates)
	}
	if len(interactions.records) != 1 || interactions.records[0].Intent != string(IntentConfirm) {
		t.Fatalf("expected one confirm interaction, got %+v", interactions.records)
	}
}

func TestHandleArabicConfirmSendsArabicShippingUpdate(t *testing.T) {
	sender := &stubSender{}
	tagger := &stubTagger{rec: confirmedRecord()}
	router := testRouter(sender, tagger, &stubReader{}, nil, nil, nil)

	msg := whatsapp.ParsedInbound{From: "201012345678", Text: "ايوه، أكد الطلب"}
	if err := router.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}
	if sender.templates[0].name != whatsapp.TemplateShippingUpdateAr {
		t.Fatalf("expected arabic shipping update, got %s", sender.templates[0].name)
	}
}

func TestHandleConfirmNoPendingIsSilent(t *testing.T) {
	sender := &stubSender{}
	tagger := &stubTagger{rec: nil}
	router := testRouter(sender, tagger, &stubReader{}, nil, nil, nil)

	msg := whatsapp.ParsedInbound{From: "201012345678", Text: "confirm"}
	if err := router.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}
	if len(sender.templates) != 0 || len(sender.texts) != 0 {
		t.Fatal("expected no outbound sends without a pending confirmation")
	}
}

func TestHandleCancelInitiateSendsPromptWithoutMutating(t *testing.T) {
	sender := &stubSender{}
	tagger := &stubTagger{}
	reader := &stubReader{rec: confirmedRecord()}
	router := testRouter(sender, tagger, reader, nil, nil, nil)

	msg := whatsapp.ParsedInbound{From: "201012345678", Text: "cancel my order"}
	if err := router.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}
	if len(tagger.applied) != 0 {
		t.Fatalf("cancel prompt must not mutate order state, got %v", tagger.applied)
	}
	if len(sender.templates) != 1 || sender.templates[0].name != whatsapp.TemplateCancelPrompt {
		t.Fatalf("expected cancellation prompt, got %+v", sender.templates)
	}
}

func TestHandleCancelProceedTagsAndNotifies(t *testing.T) {
	sender := &stubSender{}
	tagger := &stubTagger{rec: confirmedRecord()}
	reader := &stubReader{rec: confirmedRecord()}
	fulfillment := &stubFulfillment{order: shopify.Order{ID: 450789469}}
	notifier := &stubNotifier{}
	router := testRouter(sender, tagger, reader, fulfillment, nil, notifier)

	msg := whatsapp.ParsedInbound{From: "201012345678", Text: "yes, cancel the order"}
	if err := router.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}
	if len(tagger.applied) != 1 || tagger.applied[0] != "cancelled" {
		t.Fatalf("expected cancelled tag, got %v", tagger.applied)
	}
	if len(notifier.notified) != 1 || notifier.notified[0] != 1042 {
		t.Fatalf("expected cancellation notification for 1042, got %v", notifier.notified)
	}
}

func TestHandleCancelProceedFulfilledOrderDeflects(t *testing.T) {
	sender := &stubSender{}
	tagger := &stubTagger{}
	reader := &stubReader{rec: confirmedRecord()}
	fulfillment := &stubFulfillment{order: shopify.Order{ID: 450789469, FulfillmentStatus: "fulfilled"}}
	router := testRouter(sender, tagger, reader, fulfillment, nil, nil)

	msg := whatsapp.ParsedInbound{From: "201012345678", Text: "yes, cancel the order"}
	if err := router.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}
	if len(tagger.applied) != 0 {
		t.Fatal("fulfilled order must not be tagged cancelled")
	}
	if len(sender.texts) != 1 || !strings.Contains(sender.texts[0].body, "https://wa.me/201000000000") {
		t.Fatalf("expected deflection with support link, got %+v", sender.texts)
	}
}

func TestHandleTalkToHumanSendsSupportLink(t *testing.T) {
	sender := &stubSender{}
	router := testRouter(sender, &stubTagger{}, &stubReader{}, nil, nil, nil)

	msg := whatsapp.ParsedInbound{From: "201012345678", Text: "كلم خدمة العملاء"}
	if err := router.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}
	if len(sender.texts) != 1 || !strings.Contains(sender.texts[0].body, "https://wa.me/201000000000") {
		t.Fatalf("expected support link text, got %+v", sender.texts)
	}
	if !strings.Contains(sender.texts[0].body, "خدمة العملاء") {
		t.Fatalf("expected Arabic support text, got %q", sender.texts[0].body)
	}
}

func TestHandleSwitchLanguageResendsStoredVariables(t *testing.T) {
	sender := &stubSender{}
	reader := &stubReader{rec: confirmedRecord()}
	router := testRouter(sender, &stubTagger{}, reader, nil, nil, nil)

	msg := whatsapp.ParsedInbound{From: "201012345678", Text: "عربي"}
	if err := router.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}
	if len(sender.templates) != 1 {
		t.Fatalf("expected one template send, got %d", len(sender.templates))
	}
	got := sender.templates[0]
	if got.name != whatsapp.TemplateOrderConfirmationAr {
		t.Fatalf("expected arabic confirmation, got %s", got.name)
	}
	if got.variables["address"] != "12 Tahrir St, Cairo" {
		t.Fatalf("expected stored variables reused, got %v", got.variables)
	}
}

func TestHandleUnknownIntentOnlyLogs(t *testing.T) {
	sender := &stubSender{}
	interactions := &stubInteractions{}
	router := testRouter(sender, &stubTagger{}, &stubReader{}, nil, interactions, nil)

	msg := whatsapp.ParsedInbound{From: "201012345678", Text: "where is my package?"}
	if err := router.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}
	if len(sender.templates)+len(sender.texts) != 0 {
		t.Fatal("unknown intent must not send anything")
	}
	if len(interactions.records) != 1 || interactions.records[0].Intent != string(IntentUnknown) {
		t.Fatalf("expected unknown interaction logged, got %+v", interactions.records)
	}
}

func TestHandleNormalizesLocalPhone(t *testing.T) {
	sender := &stubSender{}
	tagger := &stubTagger{rec: confirmedRecord()}
	interactions := &stubInteractions{}
	router := testRouter(sender, tagger, &stubReader{}, nil, interactions, nil)

	msg := whatsapp.ParsedInbound{From: "01012345678", Text: "confirm"}
	if err := router.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}
	if interactions.records[0].Customer != "+201012345678" {
		t.Fatalf("expected canonical phone, got %s", interactions.records[0].Customer)
	}
}
