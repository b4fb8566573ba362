package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/butstore/whatsapp-bridge/internal/shopify"
	"github.com/butstore/whatsapp-bridge/pkg/logging"
)

// OrderAPI is the subset of the Shopify client the updater needs.
type OrderAPI interface {
	GetOrder(ctx context.Context, orderID int64) (shopify.Order, error)
	UpdateTags(ctx context.Context, orderID int64, tags string) error
}

// ConfirmationStore is the subset of the store the updater needs.
type ConfirmationStore interface {
	LatestPendingByPhone(ctx context.Context, phoneE164 string) (*ConfirmationRecord, error)
	Claim(ctx context.Context, orderID int64) error
	SetTerminalStatus(ctx context.Context, orderID int64, status Status) error
}

// TagUpdater applies a status tag to the external order behind a customer's
// pending confirmation and finalizes the local record.
type TagUpdater struct {
	store   ConfirmationStore
	shopify OrderAPI
	logger  *logging.Logger
}

// NewTagUpdater builds a tag updater.
func NewTagUpdater(store ConfirmationStore, api OrderAPI, logger *logging.Logger) *TagUpdater {
	if logger == nil {
		logger = logging.Default()
	}
	return &TagUpdater{store: store, shopify: api, logger: logger}
}

// Apply finds the most recent pending confirmation for the phone, claims it,
// merges the tag onto the Shopify order and finalizes the local status.
// No pending confirmation is a logged no-op returning (nil, nil). A lost
// claim race returns ErrAlreadyClaimed without touching the order.
//
// If the Shopify update fails after the claim succeeded, the record stays in
// processing; there is no compensating rollback.
func (u *TagUpdater) Apply(ctx context.Context, phoneE164, tag string) (*ConfirmationRecord, error) {
	rec, err := u.store.LatestPendingByPhone(ctx, phoneE164)
	if err != nil {
		if errors.Is(err, ErrConfirmationNotFound) {
			u.logger.Info("no pending confirmation for phone", "phone", phoneE164, "tag", tag)
			return nil, nil
		}
		return nil, fmt.Errorf("orders: pending lookup for %s: %w", phoneE164, err)
	}

	if err := u.store.Claim(ctx, rec.OrderID); err != nil {
		if errors.Is(err, ErrAlreadyClaimed) {
			u.logger.Warn("confirmation already claimed", "order_id", rec.OrderID, "phone", phoneE164)
			return nil, ErrAlreadyClaimed
		}
		return nil, err
	}

	order, err := u.shopify.GetOrder(ctx, rec.OrderID)
	if err != nil {
		return nil, fmt.Errorf("orders: fetch order %d after claim: %w", rec.OrderID, err)
	}
	merged := shopify.MergeStatusTag(order.Tags, tag)
	if err := u.shopify.UpdateTags(ctx, rec.OrderID, merged); err != nil {
		return nil, fmt.Errorf("orders: tag order %d after claim: %w", rec.OrderID, err)
	}

	terminal := TerminalStatusForTag(tag)
	if err := u.store.SetTerminalStatus(ctx, rec.OrderID, terminal); err != nil {
		u.logger.Error("failed to finalize confirmation", "error", err, "order_id", rec.OrderID, "status", terminal)
		return nil, err
	}
	rec.Status = terminal
	u.logger.Info("order tagged", "order_id", rec.OrderID, "tag", tag, "status", terminal)
	return rec, nil
}

// TerminalStatusForTag maps cancellation-like tags to cancelled, everything
// else to confirmed.
func TerminalStatusForTag(tag string) Status {
	if strings.Contains(strings.ToLower(tag), "cancel") {
		return StatusCancelled
	}
	return StatusConfirmed
}
