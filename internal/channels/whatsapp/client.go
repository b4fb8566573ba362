package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultGraphAPIBase = "https://graph.facebook.com/v22.0"
	defaultHTTPTimeout  = 10 * time.Second
)

var sendTracer = otel.Tracer("bridge.internal.channels.whatsapp")

// Client sends messages via the WhatsApp Business (Meta Graph) API.
type Client struct {
	token        string
	phoneID      string
	graphAPIBase string
	httpClient   *http.Client
}

// NewClient creates a Graph API client bound to one business phone number id.
func NewClient(token, phoneID string) *Client {
	return &Client{
		token:        token,
		phoneID:      phoneID,
		graphAPIBase: defaultGraphAPIBase,
		httpClient:   &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// SetGraphAPIBase overrides the Graph API base URL (useful for testing).
func (c *Client) SetGraphAPIBase(base string) {
	if base != "" {
		c.graphAPIBase = base
	}
}

// SendText sends a plain text message. The recipient must be digits only.
func (c *Client) SendText(ctx context.Context, toDigits, body string) (*SendResponse, error) {
	req := SendRequest{
		MessagingProduct: "whatsapp",
		To:               toDigits,
		Type:             "text",
		Text:             &Text{Body: body},
	}
	return c.send(ctx, req)
}

// SendTemplate sends a pre-approved template message.
func (c *Client) SendTemplate(ctx context.Context, toDigits string, tmpl Template) (*SendResponse, error) {
	req := SendRequest{
		MessagingProduct: "whatsapp",
		To:               toDigits,
		Type:             "template",
		Template:         &tmpl,
	}
	return c.send(ctx, req)
}

func (c *Client) send(ctx context.Context, req SendRequest) (*SendResponse, error) {
	if c.token == "" {
		return nil, errors.New("whatsapp: access token missing")
	}
	if req.To == "" {
		return nil, errors.New("whatsapp: recipient required")
	}

	ctx, span := sendTracer.Start(ctx, "whatsapp.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("whatsapp.to", req.To),
		attribute.String("whatsapp.type", req.Type),
	)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.graphAPIBase, c.phoneID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("whatsapp: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("whatsapp: send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("whatsapp: read response: %w", err)
	}

	var sendResp SendResponse
	if err := json.Unmarshal(respBody, &sendResp); err != nil {
		return nil, fmt.Errorf("whatsapp: unmarshal response: %w", err)
	}

	if sendResp.Error != nil {
		err := fmt.Errorf("whatsapp: API error %d: %s", sendResp.Error.Code, sendResp.Error.Message)
		span.RecordError(err)
		return &sendResp, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("whatsapp: unexpected status %d: %s", resp.StatusCode, string(respBody))
		span.RecordError(err)
		return &sendResp, err
	}

	return &sendResp, nil
}
