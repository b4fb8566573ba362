package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/butstore/whatsapp-bridge/internal/channels/whatsapp"
	"github.com/butstore/whatsapp-bridge/internal/messaging"
	"github.com/butstore/whatsapp-bridge/internal/observability/metrics"
	"github.com/butstore/whatsapp-bridge/internal/orders"
	"github.com/butstore/whatsapp-bridge/pkg/logging"
)

type confirmationCreator interface {
	Create(ctx context.Context, rec *orders.ConfirmationRecord) error
	AttachMessage(ctx context.Context, orderID int64, providerMessageID string) error
}

type templateSender interface {
	SendTemplate(ctx context.Context, to messaging.Phone, templateName string, variables map[string]string, orderNumber int64) (string, error)
}

type eventDeduper interface {
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// ShopifyWebhookHandler receives order-creation webhooks, persists a pending
// confirmation, and sends the customer the confirmation template.
type ShopifyWebhookHandler struct {
	secret        string
	confirmations confirmationCreator
	sender        templateSender
	dedupe        eventDeduper
	countryCode   string
	logger        *logging.Logger
	metrics       *metrics.BridgeMetrics
}

// ShopifyWebhookConfig wires the handler. Dedupe and Metrics are optional.
type ShopifyWebhookConfig struct {
	Secret             string
	Confirmations      confirmationCreator
	Sender             templateSender
	Dedupe             eventDeduper
	DefaultCountryCode string
	Logger             *logging.Logger
	Metrics            *metrics.BridgeMetrics
}

func NewShopifyWebhookHandler(cfg ShopifyWebhookConfig) *ShopifyWebhookHandler {
	if cfg.Confirmations == nil {
		panic("handlers: confirmation store cannot be nil")
	}
	if cfg.Sender == nil {
		panic("handlers: sender cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &ShopifyWebhookHandler{
		secret:        strings.TrimSpace(cfg.Secret),
		confirmations: cfg.Confirmations,
		sender:        cfg.Sender,
		dedupe:        cfg.Dedupe,
		countryCode:   cfg.DefaultCountryCode,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
	}
}

// shopifyOrderPayload is the subset of Shopify's order webhook we consume.
type shopifyOrderPayload struct {
	ID          int64  `json:"id"`
	OrderNumber int64  `json:"order_number"`
	Name        string `json:"name"`
	TotalPrice  string `json:"total_price"`
	Currency    string `json:"currency"`
	Customer    struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Phone     string `json:"phone"`
	} `json:"customer"`
	ShippingAddress shopifyAddress `json:"shipping_address"`
	BillingAddress  shopifyAddress `json:"billing_address"`
}

type shopifyAddress struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Address1 string `json:"address1"`
	Address2 string `json:"address2"`
	City     string `json:"city"`
}

// Handle processes an orders/create webhook. The response is 200 for any
// outcome past signature verification, so Shopify does not retry on downstream
// failures we already logged.
func (h *ShopifyWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		h.metrics.ObserveWebhookLatency("shopify", time.Since(start).Seconds())
	}()

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if h.secret == "" {
		h.logger.Error("shopify webhook secret not configured")
		http.Error(w, "webhook secret not configured", http.StatusInternalServerError)
		return
	}
	if !verifyShopifySignature(h.secret, payload, r.Header.Get("X-Shopify-Hmac-Sha256")) {
		h.logger.Warn("invalid shopify webhook signature")
		h.metrics.ObserveInbound("shopify", "rejected")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var order shopifyOrderPayload
	if err := json.Unmarshal(payload, &order); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if order.ID == 0 {
		http.Error(w, "missing order id", http.StatusBadRequest)
		return
	}

	if h.dedupe != nil {
		if eventID := r.Header.Get("X-Shopify-Webhook-Id"); eventID != "" {
			first, err := h.dedupe.MarkProcessed(r.Context(), "shopify", eventID)
			if err != nil {
				h.logger.Error("shopify dedupe check failed", "error", err, "order_id", order.ID)
			} else if !first {
				h.logger.Info("duplicate shopify webhook skipped", "order_id", order.ID)
				h.metrics.ObserveInbound("shopify", "duplicate")
				w.WriteHeader(http.StatusOK)
				return
			}
		}
	}

	h.process(r.Context(), order)
	w.WriteHeader(http.StatusOK)
}

func (h *ShopifyWebhookHandler) process(ctx context.Context, order shopifyOrderPayload) {
	name := customerName(order)
	rawPhone := customerPhone(order)
	if rawPhone == "" {
		h.logger.Warn("order has no phone number, skipping confirmation", "order_id", order.ID)
		h.metrics.ObserveInbound("shopify", "no_phone")
		return
	}
	phone := messaging.NormalizePhone(rawPhone, h.countryCode)

	variables := map[string]string{
		"name":    name,
		"orderid": fmt.Sprintf("%d", order.OrderNumber),
		"address": shippingAddress(order),
		"price":   fmt.Sprintf("%s %s", order.TotalPrice, order.Currency),
	}

	rec := &orders.ConfirmationRecord{
		OrderID:     order.ID,
		Phone:       phone.E164(),
		OrderNumber: order.OrderNumber,
		Name:        name,
		Address:     variables["address"],
		Price:       variables["price"],
		Variables:   variables,
	}
	if err := h.confirmations.Create(ctx, rec); err != nil {
		if errors.Is(err, orders.ErrConfirmationExists) {
			h.logger.Info("confirmation already exists, skipping", "order_id", order.ID)
			h.metrics.ObserveInbound("shopify", "duplicate")
			return
		}
		h.logger.Error("failed to persist confirmation", "error", err, "order_id", order.ID)
		h.metrics.ObserveInbound("shopify", "error")
		return
	}

	messageID, err := h.sender.SendTemplate(ctx, phone, whatsapp.TemplateOrderConfirmation, variables, order.OrderNumber)
	if err != nil {
		h.logger.Error("confirmation template send failed", "error", err, "order_id", order.ID)
		h.metrics.ObserveInbound("shopify", "send_failed")
		return
	}
	if err := h.confirmations.AttachMessage(ctx, order.ID, messageID); err != nil {
		h.logger.Warn("failed to attach message to confirmation", "error", err, "order_id", order.ID)
	}
	h.metrics.ObserveInbound("shopify", "ok")
	h.logger.Info("order confirmation sent", "order_id", order.ID, "order_number", order.OrderNumber, "to", phone.E164())
}

// customerName prefers the shipping address name, falling back to billing and
// the customer profile.
func customerName(order shopifyOrderPayload) string {
	if n := strings.TrimSpace(order.ShippingAddress.Name); n != "" {
		return n
	}
	if n := strings.TrimSpace(order.BillingAddress.Name); n != "" {
		return n
	}
	return strings.TrimSpace(strings.TrimSpace(order.Customer.FirstName) + " " + strings.TrimSpace(order.Customer.LastName))
}

// customerPhone prefers the shipping address phone, falling back to billing
// and the customer profile.
func customerPhone(order shopifyOrderPayload) string {
	if p := strings.TrimSpace(order.ShippingAddress.Phone); p != "" {
		return p
	}
	if p := strings.TrimSpace(order.BillingAddress.Phone); p != "" {
		return p
	}
	return strings.TrimSpace(order.Customer.Phone)
}

func shippingAddress(order shopifyOrderPayload) string {
	addr := order.ShippingAddress
	if addr.Address1 == "" && addr.City == "" {
		addr = order.BillingAddress
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{addr.Address1, addr.Address2, addr.City} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, strings.TrimSpace(p))
		}
	}
	return strings.Join(parts, ", ")
}

// verifyShopifySignature checks the base64 HMAC-SHA256 digest Shopify signs
// webhook bodies with.
func verifyShopifySignature(secret string, payload []byte, header string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	provided, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), provided)
}
