package services

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

	"github.com/example/remotefix/internal/models"
)

// ErrPollTimeout reports that polling gave up before the order reached a
// terminal status. Distinct from a failed payment.
var ErrPollTimeout = errors.New("payment status polling timed out")

const (
	defaultPollInterval = 3 * time.Second
	defaultPollTimeout  = 120 * time.Second
)

// Poller drives the client-side half of the payment flow: after checkout
// it repeatedly asks the status endpoint about an order until the payment
// is captured or failed. Transient non-200 responses and transport errors
// mean "not yet known" and keep the loop going; only the deadline or
// context cancellation stops it early.
type Poller struct {
	BaseURL    string
	HTTPClient *http.Client
	Interval   time.Duration
	Timeout    time.Duration
}

// NewPoller constructs a Poller with the observed production cadence
// (3s interval, 120s overall timeout).
func NewPoller(baseURL string) *Poller {
	return &Poller{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Interval:   defaultPollInterval,
		Timeout:    defaultPollTimeout,
	}
}

// Poll blocks until the order reaches captured or failed, the overall
// timeout elapses (ErrPollTimeout), or ctx is cancelled.
func (p *Poller) Poll(ctx context.Context, orderID string) (PaymentStatus, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, ok := p.fetchStatus(ctx, orderID)
		if ok {
			switch status.Status {
			case models.PaymentStatusCaptured, models.PaymentStatusFailed:
				return status, nil
			}
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return PaymentStatus{}, ErrPollTimeout
			}
			return PaymentStatus{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) fetchStatus(ctx context.Context, orderID string) (PaymentStatus, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/payment-status/"+orderID, nil)
	if err != nil {
		return PaymentStatus{}, false
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return PaymentStatus{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return PaymentStatus{}, false
	}

	var status PaymentStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return PaymentStatus{}, false
	}
	return status, true
}

// TicketRequest is the dependent ticket created once payment is captured.
type TicketRequest struct {
	Service     string `json:"service"`
	Description string `json:"description"`
}

// CompleteTicketPurchase polls the order and, on capture, creates the
// ticket via the authenticated tickets endpoint. A failed payment or a
// timeout surfaces as an error without creating anything.
func (p *Poller) CompleteTicketPurchase(ctx context.Context, orderID, authToken string, ticket TicketRequest) (PaymentStatus, error) {
	status, err := p.Poll(ctx, orderID)
	if err != nil {
		return PaymentStatus{}, err
	}
	if status.Status == models.PaymentStatusFailed {
		return status, fmt.Errorf("payment failed for order %s", orderID)
	}

	body, err := json.Marshal(ticket)
	if err != nil {
		return status, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/api/tickets", bytes.NewReader(body))
	if err != nil {
		return status, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+authToken)

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return status, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return status, fmt.Errorf("ticket creation failed: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	return status, nil
}
