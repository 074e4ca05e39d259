package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RazorpayClient is a minimal Razorpay Orders API client. Credentials are
// sent as HTTP basic auth (key id / key secret).
type RazorpayClient struct {
	BaseURL    string
	KeyID      string
	KeySecret  string
	HTTPClient *http.Client
}

// NewRazorpayClient constructs a client for the given credentials.
func NewRazorpayClient(baseURL, keyID, keySecret string) *RazorpayClient {
	return &RazorpayClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		KeyID:      keyID,
		KeySecret:  keySecret,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// RazorpayOrder mirrors the provider's order entity.
type RazorpayOrder struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Status   string            `json:"status"`
	Notes    map[string]string `json:"notes"`
}

// CreateOrderParams describes a provider order to create. Amount is in the
// minor currency unit (paise).
type CreateOrderParams struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// CreateOrder creates a provider-side order.
func (c *RazorpayClient) CreateOrder(ctx context.Context, params CreateOrderParams) (*RazorpayOrder, error) {
	if params.Currency == "" {
		params.Currency = "INR"
	}
	if params.Receipt == "" {
		params.Receipt = fmt.Sprintf("rcpt_%d", time.Now().UnixMilli())
	}

	var order RazorpayOrder
	if err := c.do(ctx, http.MethodPost, "/orders", params, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// FetchOrder retrieves the canonical provider order. The reconciler uses it
// as the authoritative source for amount and user association on
// client-originated events.
func (c *RazorpayClient) FetchOrder(ctx context.Context, orderID string) (*RazorpayOrder, error) {
	if orderID == "" {
		return nil, fmt.Errorf("razorpay fetch order: empty order id")
	}

	var order RazorpayOrder
	if err := c.do(ctx, http.MethodGet, "/orders/"+orderID, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *RazorpayClient) do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("razorpay request marshal: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("razorpay request build: %w", err)
	}
	req.SetBasicAuth(c.KeyID, c.KeySecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("razorpay request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("razorpay %s %s: status %d, body: %s", method, path, resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("razorpay response unmarshal: %w", err)
		}
	}
	return nil
}
