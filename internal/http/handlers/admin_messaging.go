package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/butstore/whatsapp-bridge/internal/messaging"
	"github.com/butstore/whatsapp-bridge/internal/orders"
	"github.com/butstore/whatsapp-bridge/pkg/logging"
)

type adminSender interface {
	SendText(ctx context.Context, to messaging.Phone, body string, orderNumber int64) (string, error)
	SendTemplate(ctx context.Context, to messaging.Phone, templateName string, variables map[string]string, orderNumber int64) (string, error)
}

type messageLister interface {
	ListRecent(ctx context.Context, limit int32) ([]messaging.MessageRecord, error)
}

type confirmationToucher interface {
	Touch(ctx context.Context, orderNumber int64) error
}

// AdminMessagingHandler hosts privileged endpoints for manual sends and
// message inspection.
type AdminMessagingHandler struct {
	sender        adminSender
	messages      messageLister
	confirmations confirmationToucher
	countryCode   string
	logger        *logging.Logger
}

// AdminMessagingConfig wires the handler. Messages and Confirmations are
// optional.
type AdminMessagingConfig struct {
	Sender             adminSender
	Messages           messageLister
	Confirmations      confirmationToucher
	DefaultCountryCode string
	Logger             *logging.Logger
}

func NewAdminMessagingHandler(cfg AdminMessagingConfig) *AdminMessagingHandler {
	if cfg.Sender == nil {
		panic("handlers: sender cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &AdminMessagingHandler{
		sender:        cfg.Sender,
		messages:      cfg.Messages,
		confirmations: cfg.Confirmations,
		countryCode:   cfg.DefaultCountryCode,
		logger:        cfg.Logger,
	}
}

type sendTextRequest struct {
	To          string `json:"to"`
	Body        string `json:"body"`
	OrderNumber int64  `json:"order_number"`
}

// SendText sends an ad-hoc text to a customer and refreshes the confirmation
// activity timestamp when an order number is given.
func (h *AdminMessagingHandler) SendText(w http.ResponseWriter, r *http.Request) {
	var req sendTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.To) == "" {
		writeError(w, http.StatusBadRequest, "to required")
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		writeError(w, http.StatusBadRequest, "body required")
		return
	}

	to := messaging.NormalizePhone(req.To, h.countryCode)
	messageID, err := h.sender.SendText(r.Context(), to, req.Body, req.OrderNumber)
	if err != nil {
		h.logger.Error("admin text send failed", "error", err, "to", to.E164())
		writeError(w, http.StatusBadGateway, "send failed")
		return
	}

	if h.confirmations != nil && req.OrderNumber > 0 {
		if err := h.confirmations.Touch(r.Context(), req.OrderNumber); err != nil && !errors.Is(err, orders.ErrConfirmationNotFound) {
			h.logger.Warn("failed to touch confirmation", "error", err, "order_number", req.OrderNumber)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message_id": messageID,
		"to":         to.E164(),
	})
}

type sendTemplateRequest struct {
	To          string            `json:"to"`
	Template    string            `json:"template"`
	Variables   map[string]string `json:"variables"`
	OrderNumber int64             `json:"order_number"`
}

// SendTemplate sends a named template to a customer.
func (h *AdminMessagingHandler) SendTemplate(w http.ResponseWriter, r *http.Request) {
	var req sendTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.To) == "" {
		writeError(w, http.StatusBadRequest, "to required")
		return
	}
	if strings.TrimSpace(req.Template) == "" {
		writeError(w, http.StatusBadRequest, "template required")
		return
	}

	to := messaging.NormalizePhone(req.To, h.countryCode)
	messageID, err := h.sender.SendTemplate(r.Context(), to, req.Template, req.Variables, req.OrderNumber)
	if err != nil {
		h.logger.Error("admin template send failed", "error", err, "to", to.E164(), "template", req.Template)
		writeError(w, http.StatusBadGateway, "send failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message_id": messageID,
		"to":         to.E164(),
		"template":   req.Template,
	})
}

// ListMessages returns recent outbound messages, newest first.
func (h *AdminMessagingHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	if h.messages == nil {
		writeError(w, http.StatusNotFound, "message log not configured")
		return
	}
	limit := int32(100)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = int32(parsed)
	}

	records, err := h.messages.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list messages", "error", err)
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": records,
		"count":    len(records),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
