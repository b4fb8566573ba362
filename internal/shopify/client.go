package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/butstore/whatsapp-bridge/pkg/logging"
)

const defaultTimeout = 20 * time.Second

// ErrOrderNotFound indicates the Admin API returned no order for the id.
var ErrOrderNotFound = errors.New("shopify: order not found")

// Client is a lightweight Admin REST API client scoped to order tag reads
// and writes.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates an Admin API client for the given store subdomain.
func NewClient(store, apiKey, apiVersion string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	if apiVersion == "" {
		apiVersion = "2024-07"
	}
	return &Client{
		baseURL:    fmt.Sprintf("https://%s.myshopify.com/admin/api/%s", store, apiVersion),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

// SetBaseURL overrides the Admin API base URL (useful for testing).
func (c *Client) SetBaseURL(base string) {
	if base != "" {
		c.baseURL = strings.TrimRight(base, "/")
	}
}

// GetOrder fetches a single order by id.
func (c *Client) GetOrder(ctx context.Context, orderID int64) (Order, error) {
	var out orderResponse
	path := fmt.Sprintf("/orders/%d.json", orderID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return Order{}, err
	}
	if out.Order.ID == 0 {
		return Order{}, ErrOrderNotFound
	}
	return out.Order, nil
}

// UpdateTags replaces the order's tag string.
func (c *Client) UpdateTags(ctx context.Context, orderID int64, tags string) error {
	body := orderUpdateRequest{Order: orderUpdate{ID: orderID, Tags: tags}}
	path := fmt.Sprintf("/orders/%d.json", orderID)
	if err := c.do(ctx, http.MethodPut, path, body, nil); err != nil {
		return err
	}
	c.logger.Info("shopify order tagged", "order_id", orderID, "tags", tags)
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("shopify: marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("shopify: create request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("shopify: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("shopify: read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrOrderNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("shopify: %s %s: status %d: %s", method, path, resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("shopify: unmarshal response: %w", err)
		}
	}
	return nil
}

// statusTags are the labels this bridge owns on an order; they are replaced,
// never accumulated.
var statusTags = map[string]struct{}{
	"confirmed": {},
	"cancelled": {},
}

// MergeStatusTag strips any prior status tags from a comma-separated tag
// string and appends the new one.
func MergeStatusTag(existing, tag string) string {
	var kept []string
	for _, t := range strings.Split(existing, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, owned := statusTags[strings.ToLower(t)]; owned {
			continue
		}
		kept = append(kept, t)
	}
	kept = append(kept, tag)
	return strings.Join(kept, ", ")
}
