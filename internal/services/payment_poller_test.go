package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/remotefix/internal/models"
)

// statusSequenceServer answers /payment-status requests from a scripted
// sequence, then keeps repeating the last entry.
type statusSequenceServer struct {
	mu        sync.Mutex
	responses []func(w http.ResponseWriter)
	calls     int
	server    *httptest.Server
	tickets   int
}

func newStatusSequenceServer(t *testing.T, responses ...func(w http.ResponseWriter)) *statusSequenceServer {
	t.Helper()
	s := &statusSequenceServer{responses: responses}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.server.Close)
	return s
}

func (s *statusSequenceServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Method == http.MethodPost && r.URL.Path == "/api/tickets" {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		s.tickets++
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"success":true}`))
		return
	}

	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	s.responses[idx](w)
}

func (s *statusSequenceServer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *statusSequenceServer) ticketCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickets
}

func respondStatus(status PaymentStatus) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		json.NewEncoder(w).Encode(status)
	}
}

func respondNotFound(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"status":"unknown"}`))
}

func newTestPoller(baseURL string) *Poller {
	p := NewPoller(baseURL)
	p.Interval = 10 * time.Millisecond
	p.Timeout = 500 * time.Millisecond
	return p
}

func TestPollToleratesUnknownStatusUntilCapture(t *testing.T) {
	srv := newStatusSequenceServer(t,
		respondNotFound,
		respondNotFound,
		respondNotFound,
		respondStatus(PaymentStatus{Status: models.PaymentStatusCaptured, PaymentID: "pay_1", Method: "card", Amount: 50000}),
	)

	poller := newTestPoller(srv.server.URL)
	status, err := poller.Poll(context.Background(), "order_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCaptured, status.Status)
	assert.Equal(t, "pay_1", status.PaymentID)
	assert.GreaterOrEqual(t, srv.callCount(), 4)
}

func TestPollStopsOnFailedPayment(t *testing.T) {
	srv := newStatusSequenceServer(t,
		respondStatus(PaymentStatus{Status: models.PaymentStatusCreated}),
		respondStatus(PaymentStatus{Status: models.PaymentStatusFailed, PaymentID: "pay_bad"}),
	)

	poller := newTestPoller(srv.server.URL)
	status, err := poller.Poll(context.Background(), "order_1")
	require.NoError(t, err, "a failed payment is an answer, not a polling error")
	assert.Equal(t, models.PaymentStatusFailed, status.Status)
}

func TestPollTimesOutOnNonTerminalStatus(t *testing.T) {
	srv := newStatusSequenceServer(t,
		respondStatus(PaymentStatus{Status: models.PaymentStatusCreated}),
	)

	poller := newTestPoller(srv.server.URL)
	poller.Timeout = 60 * time.Millisecond

	_, err := poller.Poll(context.Background(), "order_1")
	assert.ErrorIs(t, err, ErrPollTimeout)
}

func TestPollHonorsContextCancellation(t *testing.T) {
	srv := newStatusSequenceServer(t, respondNotFound)

	poller := newTestPoller(srv.server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := poller.Poll(ctx, "order_1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrPollTimeout)
}

func TestCompleteTicketPurchaseCreatesTicketAfterCapture(t *testing.T) {
	srv := newStatusSequenceServer(t,
		respondNotFound,
		respondStatus(PaymentStatus{Status: models.PaymentStatusCaptured, PaymentID: "pay_1", Method: "card", Amount: 50000}),
	)

	poller := newTestPoller(srv.server.URL)
	status, err := poller.CompleteTicketPurchase(context.Background(), "order_1", "token-123", TicketRequest{
		Service:     "Data Recovery",
		Description: "drive clicks on boot",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCaptured, status.Status)
	assert.Equal(t, 1, srv.ticketCount())
}

func TestCompleteTicketPurchaseRefusesFailedPayment(t *testing.T) {
	srv := newStatusSequenceServer(t,
		respondStatus(PaymentStatus{Status: models.PaymentStatusFailed, PaymentID: "pay_bad"}),
	)

	poller := newTestPoller(srv.server.URL)
	_, err := poller.CompleteTicketPurchase(context.Background(), "order_1", "token-123", TicketRequest{
		Service:     "Data Recovery",
		Description: "drive clicks on boot",
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPollTimeout)
	assert.Equal(t, 0, srv.ticketCount(), "no ticket may be created for a failed payment")
}
