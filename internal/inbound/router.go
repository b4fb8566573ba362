package inbound

import (
	"context"
	"errors"
	"fmt"

	"github.com/butstore/whatsapp-bridge/internal/channels/whatsapp"
	"github.com/butstore/whatsapp-bridge/internal/messaging"
	"github.com/butstore/whatsapp-bridge/internal/observability/metrics"
	"github.com/butstore/whatsapp-bridge/internal/orders"
	"github.com/butstore/whatsapp-bridge/internal/shopify"
	"github.com/butstore/whatsapp-bridge/pkg/logging"
)

type messageSender interface {
	SendText(ctx context.Context, to messaging.Phone, body string, orderNumber int64) (string, error)
	SendTemplate(ctx context.Context, to messaging.Phone, templateName string, variables map[string]string, orderNumber int64) (string, error)
}

type orderTagger interface {
	Apply(ctx context.Context, phoneE164, tag string) (*orders.ConfirmationRecord, error)
}

type confirmationReader interface {
	LatestPendingByPhone(ctx context.Context, phoneE164 string) (*orders.ConfirmationRecord, error)
}

type fulfillmentAPI interface {
	GetOrder(ctx context.Context, orderID int64) (shopify.Order, error)
}

type interactionLog interface {
	Log(ctx context.Context, rec *InteractionRecord) error
}

type cancellationNotifier interface {
	NotifyCancellation(ctx context.Context, phoneE164 string, orderNumber int64) error
}

// Router classifies inbound customer replies and executes the side effects of
// each intent. It holds no conversation state; everything it needs comes from
// the message itself and the most recent confirmation record for the phone.
type Router struct {
	sender        messageSender
	tags          orderTagger
	confirmations confirmationReader
	shopify       fulfillmentAPI
	interactions  interactionLog
	notifier      cancellationNotifier
	supportLink   string
	countryCode   string
	logger        *logging.Logger
	metrics       *metrics.BridgeMetrics
}

// RouterConfig wires the router's collaborators. Interactions, Notifier and
// Metrics are optional.
type RouterConfig struct {
	Sender             messageSender
	Tags               orderTagger
	Confirmations      confirmationReader
	Shopify            fulfillmentAPI
	Interactions       interactionLog
	Notifier           cancellationNotifier
	SupportLink        string
	DefaultCountryCode string
	Logger             *logging.Logger
	Metrics            *metrics.BridgeMetrics
}

// NewRouter builds an intent router.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Sender == nil {
		panic("inbound: sender cannot be nil")
	}
	if cfg.Tags == nil {
		panic("inbound: tag updater cannot be nil")
	}
	if cfg.Confirmations == nil {
		panic("inbound: confirmation reader cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Router{
		sender:        cfg.Sender,
		tags:          cfg.Tags,
		confirmations: cfg.Confirmations,
		shopify:       cfg.Shopify,
		interactions:  cfg.Interactions,
		notifier:      cfg.Notifier,
		supportLink:   cfg.SupportLink,
		countryCode:   cfg.DefaultCountryCode,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
	}
}

// HandleMessage classifies one inbound message and runs its intent. Errors are
// returned for the caller to log; the webhook response is 200 regardless.
func (r *Router) HandleMessage(ctx context.Context, msg whatsapp.ParsedInbound) error {
	phone := messaging.NormalizePhone(msg.From, r.countryCode)
	cls := Classify(msg)
	r.metrics.ObserveIntent(string(cls.Intent), cls.Language)
	r.logger.Info("inbound message classified",
		"from", phone.E164(), "intent", cls.Intent, "language", cls.Language, "message_id", msg.MessageID)

	r.logInteraction(ctx, phone, msg, cls)

	switch cls.Intent {
	case IntentConfirm:
		return r.handleConfirm(ctx, phone, cls.Language)
	case IntentCancelInitiate:
		return r.handleCancelInitiate(ctx, phone, cls.Language)
	case IntentCancelProceed:
		return r.handleCancelProceed(ctx, phone, cls.Language)
	case IntentEdit, IntentReschedule, IntentTalkToHuman:
		return r.sendSupportLink(ctx, phone, cls.Language)
	case IntentGoBack:
		return r.resendConfirmation(ctx, phone, cls.Language)
	case IntentSwitchLanguage:
		return r.resendConfirmation(ctx, phone, cls.Language)
	default:
		r.logger.Info("unrecognized inbound message", "from", phone.E164(), "text", msg.Text)
		return nil
	}
}

func (r *Router) handleConfirm(ctx context.Context, phone messaging.Phone, language string) error {
	rec, err := r.tags.Apply(ctx, phone.E164(), "confirmed")
	if err != nil {
		if errors.Is(err, orders.ErrAlreadyClaimed) {
			return nil
		}
		return err
	}
	if rec == nil {
		return nil
	}

	tmpl := whatsapp.TemplateForLanguage(whatsapp.TemplateShippingUpdate, language)
	if _, err := r.sender.SendTemplate(ctx, phone, tmpl, confirmationVariables(rec), rec.OrderNumber); err != nil {
		return fmt.Errorf("inbound: shipping update after confirm: %w", err)
	}
	return nil
}

// handleCancelInitiate asks the customer to confirm the cancellation. Order
// state is not touched until they proceed.
func (r *Router) handleCancelInitiate(ctx context.Context, phone messaging.Phone, language string) error {
	rec, err := r.pendingConfirmation(ctx, phone)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}

	tmpl := whatsapp.TemplateForLanguage(whatsapp.TemplateCancelPrompt, language)
	if _, err := r.sender.SendTemplate(ctx, phone, tmpl, confirmationVariables(rec), rec.OrderNumber); err != nil {
		return fmt.Errorf("inbound: cancellation prompt: %w", err)
	}
	return nil
}

func (r *Router) handleCancelProceed(ctx context.Context, phone messaging.Phone, language string) error {
	rec, err := r.pendingConfirmation(ctx, phone)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}

	if r.shopify != nil {
		order, err := r.shopify.GetOrder(ctx, rec.OrderID)
		if err != nil {
			return fmt.Errorf("inbound: fulfillment check for order %d: %w", rec.OrderID, err)
		}
		if order.Fulfilled() {
			body := deflectionText(language, rec.OrderNumber, r.supportLink)
			if _, err := r.sender.SendText(ctx, phone, body, rec.OrderNumber); err != nil {
				return fmt.Errorf("inbound: fulfillment deflection: %w", err)
			}
			return nil
		}
	}

	tagged, err := r.tags.Apply(ctx, phone.E164(), "cancelled")
	if err != nil {
		if errors.Is(err, orders.ErrAlreadyClaimed) {
			return nil
		}
		return err
	}
	if tagged == nil {
		return nil
	}

	if r.notifier != nil {
		if err := r.notifier.NotifyCancellation(ctx, phone.E164(), tagged.OrderNumber); err != nil {
			r.logger.Warn("cancellation notification failed", "error", err, "order_number", tagged.OrderNumber)
		}
	}
	return nil
}

func (r *Router) sendSupportLink(ctx context.Context, phone messaging.Phone, language string) error {
	if _, err := r.sender.SendText(ctx, phone, supportText(language, r.supportLink), 0); err != nil {
		return fmt.Errorf("inbound: support handoff: %w", err)
	}
	return nil
}

// resendConfirmation replays the confirmation template from stored variables,
// in the requested language.
func (r *Router) resendConfirmation(ctx context.Context, phone messaging.Phone, language string) error {
	rec, err := r.pendingConfirmation(ctx, phone)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}

	tmpl := whatsapp.TemplateForLanguage(whatsapp.TemplateOrderConfirmation, language)
	if _, err := r.sender.SendTemplate(ctx, phone, tmpl, confirmationVariables(rec), rec.OrderNumber); err != nil {
		return fmt.Errorf("inbound: confirmation resend: %w", err)
	}
	return nil
}

// pendingConfirmation returns the latest pending record for the phone, or nil
// when there is none.
func (r *Router) pendingConfirmation(ctx context.Context, phone messaging.Phone) (*orders.ConfirmationRecord, error) {
	rec, err := r.confirmations.LatestPendingByPhone(ctx, phone.E164())
	if err != nil {
		if errors.Is(err, orders.ErrConfirmationNotFound) {
			r.logger.Info("no pending confirmation for reply", "from", phone.E164())
			return nil, nil
		}
		return nil, fmt.Errorf("inbound: pending lookup for %s: %w", phone.E164(), err)
	}
	return rec, nil
}

func (r *Router) logInteraction(ctx context.Context, phone messaging.Phone, msg whatsapp.ParsedInbound, cls Classification) {
	if r.interactions == nil {
		return
	}
	payload := msg.Text
	if msg.IsButton {
		payload = msg.ButtonTitle
	}
	rec := &InteractionRecord{
		Customer:  phone.E164(),
		Intent:    string(cls.Intent),
		Language:  cls.Language,
		Payload:   payload,
		MessageID: msg.MessageID,
	}
	if err := r.interactions.Log(ctx, rec); err != nil {
		r.logger.Warn("failed to persist interaction", "error", err, "from", phone.E164())
	}
}

// confirmationVariables rebuilds the template variable set from a stored
// record, preferring the variables captured at send time.
func confirmationVariables(rec *orders.ConfirmationRecord) map[string]string {
	if len(rec.Variables) > 0 {
		return rec.Variables
	}
	return map[string]string{
		"name":    rec.Name,
		"orderid": fmt.Sprintf("%d", rec.OrderNumber),
		"address": rec.Address,
		"price":   rec.Price,
	}
}

func supportText(language, link string) string {
	if language == "ar" {
		return fmt.Sprintf("يمكنك التواصل مع خدمة العملاء هنا: %s", link)
	}
	return fmt.Sprintf("You can reach our support team here: %s", link)
}

func deflectionText(language string, orderNumber int64, link string) string {
	if language == "ar" {
		return fmt.Sprintf("عذراً، تم شحن طلبك رقم %d بالفعل ولا يمكن الغاؤه من هنا. برجاء التواصل مع خدمة العملاء: %s", orderNumber, link)
	}
	return fmt.Sprintf("Order #%d has already shipped and can no longer be cancelled here. Please contact support: %s", orderNumber, link)
}
