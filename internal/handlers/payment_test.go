package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/remotefix/internal/config"
	"github.com/example/remotefix/internal/database"
	"github.com/example/remotefix/internal/models"
	"github.com/example/remotefix/internal/routes"
	"github.com/example/remotefix/internal/services"
)

const (
	testKeySecret     = "rzp_test_secret"
	testWebhookSecret = "whsec_test"
)

// providerStub fakes the Razorpay Orders API behind the payment service.
type providerStub struct {
	mu     sync.Mutex
	orders map[string]*services.RazorpayOrder
	seq    int
	server *httptest.Server
}

func newProviderStub(t *testing.T) *providerStub {
	t.Helper()
	p := &providerStub{orders: make(map[string]*services.RazorpayOrder)}
	p.server = httptest.NewServer(http.HandlerFunc(p.handle))
	t.Cleanup(p.server.Close)
	return p
}

func (p *providerStub) handle(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/orders":
		var params services.CreateOrderParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		p.seq++
		order := &services.RazorpayOrder{
			ID:       fmt.Sprintf("order_stub_%d", p.seq),
			Amount:   params.Amount,
			Currency: params.Currency,
			Receipt:  params.Receipt,
			Status:   "created",
			Notes:    params.Notes,
		}
		p.orders[order.ID] = order
		json.NewEncoder(w).Encode(order)

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/orders/"):
		order, ok := p.orders[strings.TrimPrefix(r.URL.Path, "/orders/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"description":"order not found"}}`)
			return
		}
		json.NewEncoder(w).Encode(order)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *providerStub) put(order *services.RazorpayOrder) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders[order.ID] = order
}

type testEnv struct {
	app  *fiber.App
	db   *gorm.DB
	stub *providerStub
	cfg  *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(conn))

	stub := newProviderStub(t)
	cfg := &config.Config{
		JWTSecret:             "test-jwt-secret",
		TokenExpires:          time.Hour,
		RazorpayKeyID:         "rzp_test_key",
		RazorpayKeySecret:     testKeySecret,
		RazorpayWebhookSecret: testWebhookSecret,
		RazorpayBaseURL:       stub.server.URL,
	}

	cache := services.NewStatusCache(time.Minute)
	t.Cleanup(cache.Close)

	app := fiber.New()
	routes.Register(app, conn, cfg, cache)

	return &testEnv{app: app, db: conn, stub: stub, cfg: cfg}
}

func (e *testEnv) request(t *testing.T, method, path string, body any, headers map[string]string) *http.Response {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func (e *testEnv) createOrder(t *testing.T, amount float64, userID string) services.RazorpayOrder {
	t.Helper()
	resp := e.request(t, http.MethodPost, "/order", fiber.Map{
		"amount": amount,
		"notes":  map[string]string{"userId": userID},
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var order services.RazorpayOrder
	decodeJSON(t, resp, &order)
	require.NotEmpty(t, order.ID)
	return order
}

func capturedWebhookBody(t *testing.T, orderID, paymentID, method string, amount int64, notes map[string]string) []byte {
	t.Helper()
	body, err := json.Marshal(fiber.Map{
		"event": "payment.captured",
		"payload": fiber.Map{
			"payment": fiber.Map{
				"entity": fiber.Map{
					"id":       paymentID,
					"order_id": orderID,
					"method":   method,
					"amount":   amount,
					"notes":    notes,
				},
			},
		},
	})
	require.NoError(t, err)
	return body
}

func (e *testEnv) paymentRow(t *testing.T, orderID string) models.Payment {
	t.Helper()
	var payment models.Payment
	require.NoError(t, e.db.Where("order_id = ?", orderID).First(&payment).Error)
	return payment
}

func (e *testEnv) paymentCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.Payment{}).Count(&n).Error)
	return n
}

func TestCreateOrderEndpoint(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.NewString()

	order := env.createOrder(t, 500, userID)
	assert.EqualValues(t, 50000, order.Amount)
	assert.Equal(t, "INR", order.Currency)

	payment := env.paymentRow(t, order.ID)
	assert.Equal(t, models.PaymentStatusCreated, payment.Status)
	assert.Equal(t, userID, payment.UserID.String())

	resp := env.request(t, http.MethodGet, "/payment-status/"+order.ID, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status map[string]any
	decodeJSON(t, resp, &status)
	assert.Equal(t, "created", status["status"])
}

func TestCreateOrderRejectsMissingUserNote(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/order", fiber.Map{"amount": 500}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]any
	decodeJSON(t, resp, &body)
	assert.Equal(t, "notes.userId is required", body["error"])
	assert.EqualValues(t, 0, env.paymentCount(t))
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	env := newTestEnv(t)

	body := capturedWebhookBody(t, "order_x", "pay_1", "card", 50000, map[string]string{"userId": uuid.NewString()})
	resp := env.request(t, http.MethodPost, "/razorpay-webhook", body, map[string]string{
		"x-razorpay-signature": services.SignWebhookBody(body, "wrong-secret"),
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "Invalid signature", string(raw))
	assert.EqualValues(t, 0, env.paymentCount(t), "unverified events must not touch the database")
}

func TestWebhookCapturedThenStatusPoll(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.NewString()
	order := env.createOrder(t, 500, userID)

	body := capturedWebhookBody(t, order.ID, "pay_1", "card", 50000, map[string]string{"userId": userID})
	headers := map[string]string{"x-razorpay-signature": services.SignWebhookBody(body, testWebhookSecret)}

	resp := env.request(t, http.MethodPost, "/razorpay-webhook", body, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ack map[string]any
	decodeJSON(t, resp, &ack)
	assert.Equal(t, "ok", ack["status"])

	resp = env.request(t, http.MethodGet, "/payment-status/"+order.ID, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status map[string]any
	decodeJSON(t, resp, &status)
	assert.Equal(t, "captured", status["status"])
	assert.Equal(t, "pay_1", status["payment_id"])
	assert.Equal(t, "card", status["method"])
	assert.EqualValues(t, 50000, status["amount"])

	// Redelivery converges to the same row.
	resp = env.request(t, http.MethodPost, "/razorpay-webhook", body, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.EqualValues(t, 1, env.paymentCount(t))
}

func TestWebhookCapturedWithoutUserAssociation(t *testing.T) {
	env := newTestEnv(t)

	body := capturedWebhookBody(t, "order_orphan", "pay_1", "upi", 10000, nil)
	resp := env.request(t, http.MethodPost, "/razorpay-webhook", body, map[string]string{
		"x-razorpay-signature": services.SignWebhookBody(body, testWebhookSecret),
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errBody map[string]any
	decodeJSON(t, resp, &errBody)
	assert.Equal(t, "userId missing in order notes", errBody["error"])
	assert.EqualValues(t, 0, env.paymentCount(t))
}

func TestWebhookFailedMarksExistingOrder(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.NewString()
	order := env.createOrder(t, 500, userID)

	body, err := json.Marshal(fiber.Map{
		"event": "payment.failed",
		"payload": fiber.Map{
			"payment": fiber.Map{
				"entity": fiber.Map{
					"id":       "pay_bad",
					"order_id": order.ID,
					"notes":    []string{},
				},
			},
		},
	})
	require.NoError(t, err)

	resp := env.request(t, http.MethodPost, "/razorpay-webhook", body, map[string]string{
		"x-razorpay-signature": services.SignWebhookBody(body, testWebhookSecret),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	payment := env.paymentRow(t, order.ID)
	assert.Equal(t, models.PaymentStatusFailed, payment.Status)

	resp = env.request(t, http.MethodGet, "/payment-status/"+order.ID, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status map[string]any
	decodeJSON(t, resp, &status)
	assert.Equal(t, "failed", status["status"])
}

func TestVerifyEndpoint(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.NewString()
	order := env.createOrder(t, 500, userID)

	resp := env.request(t, http.MethodPost, "/verify", fiber.Map{
		"razorpay_order_id":   order.ID,
		"razorpay_payment_id": "pay_9",
		"razorpay_signature":  services.SignRedirect(order.ID, "pay_9", testKeySecret),
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	decodeJSON(t, resp, &body)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "Payment signature verified", body["message"])

	payment := env.paymentRow(t, order.ID)
	assert.Equal(t, models.PaymentStatusVerified, payment.Status)
	assert.Equal(t, "pay_9", payment.PaymentID)
	assert.EqualValues(t, 50000, payment.Amount)
}

func TestVerifyRejectsInvalidSignature(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.NewString()
	order := env.createOrder(t, 500, userID)

	resp := env.request(t, http.MethodPost, "/verify", fiber.Map{
		"razorpay_order_id":   order.ID,
		"razorpay_payment_id": "pay_9",
		"razorpay_signature":  services.SignRedirect(order.ID, "pay_other", testKeySecret),
	}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]any
	decodeJSON(t, resp, &body)
	assert.Equal(t, "failure", body["status"])
	assert.Equal(t, "Invalid signature", body["message"])

	payment := env.paymentRow(t, order.ID)
	assert.Equal(t, models.PaymentStatusCreated, payment.Status, "a rejected verify leaves the row untouched")
}

func TestVerifyWithoutUserNotes(t *testing.T) {
	env := newTestEnv(t)

	// Valid signature, but the provider order carries no user association.
	env.stub.put(&services.RazorpayOrder{
		ID:       "order_foreign",
		Amount:   20000,
		Currency: "INR",
		Status:   "paid",
	})

	resp := env.request(t, http.MethodPost, "/verify", fiber.Map{
		"razorpay_order_id":   "order_foreign",
		"razorpay_payment_id": "pay_9",
		"razorpay_signature":  services.SignRedirect("order_foreign", "pay_9", testKeySecret),
	}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]any
	decodeJSON(t, resp, &body)
	assert.Equal(t, "userId missing in order notes", body["error"])
	assert.EqualValues(t, 0, env.paymentCount(t))
}

func TestVerifyProviderOutage(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/verify", fiber.Map{
		"razorpay_order_id":   "order_gone",
		"razorpay_payment_id": "pay_9",
		"razorpay_signature":  services.SignRedirect("order_gone", "pay_9", testKeySecret),
	}, nil)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body map[string]any
	decodeJSON(t, resp, &body)
	assert.Equal(t, true, body["error"])
}

func TestStatusUnknownOrder(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodGet, "/payment-status/order_nowhere", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]any
	decodeJSON(t, resp, &body)
	assert.Equal(t, "unknown", body["status"])
}

func TestCreateInProgressOrderEndpoint(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.NewString()

	resp := env.request(t, http.MethodPost, "/order-inprogress", fiber.Map{
		"amount":   750,
		"ticketId": "intent-42",
		"userId":   userID,
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var order services.RazorpayOrder
	decodeJSON(t, resp, &order)
	require.NotEmpty(t, order.ID)

	var inProgress models.InProgressPayment
	require.NoError(t, env.db.Where("order_id = ?", order.ID).First(&inProgress).Error)
	assert.Equal(t, "intent-42", inProgress.TicketIntentID)
	assert.EqualValues(t, 75000, inProgress.Amount)
}
