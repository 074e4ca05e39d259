package handlers

import (
	"encoding/json"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/example/remotefix/internal/services"
)

// PaymentHandler manages checkout, verification, webhook, and polling endpoints.
type PaymentHandler struct {
	payments      *services.PaymentService
	keySecret     string
	webhookSecret string
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments *services.PaymentService, keySecret, webhookSecret string) *PaymentHandler {
	return &PaymentHandler{
		payments:      payments,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
	}
}

type createOrderRequest struct {
	Amount   float64           `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes"`
}

// CreateOrder creates a Razorpay order and a pending payment row.
func (h *PaymentHandler) CreateOrder(c *fiber.Ctx) error {
	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	order, err := h.payments.CreateOrder(c.Context(), services.CreateOrderInput{
		Amount:   int64(req.Amount),
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	})
	if err != nil {
		return writePaymentError(c, err)
	}

	return c.JSON(order)
}

type createInProgressOrderRequest struct {
	Amount   float64           `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes"`
	TicketID string            `json:"ticketId"`
	UserID   string            `json:"userId"`
}

// CreateInProgressOrder creates a Razorpay order for a ticket purchase
// whose ticket will only be materialized after the payment is confirmed.
func (h *PaymentHandler) CreateInProgressOrder(c *fiber.Ctx) error {
	var req createInProgressOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	order, err := h.payments.CreateInProgressOrder(c.Context(), services.CreateInProgressOrderInput{
		Amount:         int64(req.Amount),
		Currency:       req.Currency,
		Receipt:        req.Receipt,
		Notes:          req.Notes,
		TicketIntentID: req.TicketID,
		UserID:         req.UserID,
	})
	if err != nil {
		return writePaymentError(c, err)
	}

	return c.JSON(order)
}

type verifyRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}

// Verify checks a client-redirect payment signature and reconciles the
// order with authoritative data fetched from the provider.
func (h *PaymentHandler) Verify(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if !services.VerifyRedirectSignature(req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature, h.keySecret) {
		return writePaymentError(c, &services.SignatureError{})
	}

	if err := h.payments.HandleRedirectVerified(c.Context(), req.RazorpayOrderID, req.RazorpayPaymentID); err != nil {
		return writePaymentError(c, err)
	}

	return c.JSON(fiber.Map{
		"status":  "success",
		"message": "Payment signature verified",
	})
}

// Status answers payment status polling.
func (h *PaymentHandler) Status(c *fiber.Ctx) error {
	orderID := c.Params("orderId")

	status, ok := h.payments.Status(c.Context(), orderID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"status": "unknown"})
	}

	return c.JSON(status)
}

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string          `json:"id"`
				OrderID string          `json:"order_id"`
				Method  string          `json:"method"`
				Amount  int64           `json:"amount"`
				Notes   json.RawMessage `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// Webhook handles provider webhook deliveries. The signature is computed
// over the literal raw body with the webhook secret. The handler always
// responds (200/400/500) so the provider's retry loop backs off instead of
// treating the endpoint as dead.
func (h *PaymentHandler) Webhook(c *fiber.Ctx) error {
	body := c.Body()
	signature := c.Get("x-razorpay-signature")

	if !services.VerifyWebhookSignature(body, signature, h.webhookSecret) {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid signature")
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("[Webhook] Failed to parse event body: %v", err)
		return c.Status(fiber.StatusInternalServerError).SendString("Server error")
	}

	entity := event.Payload.Payment.Entity

	// Razorpay sends notes as an empty array when unset.
	notes := map[string]string{}
	if len(entity.Notes) > 0 {
		_ = json.Unmarshal(entity.Notes, &notes)
	}

	switch event.Event {
	case "payment.captured":
		err := h.payments.HandleCaptured(c.Context(), services.CapturedEvent{
			OrderID:   entity.OrderID,
			PaymentID: entity.ID,
			Method:    entity.Method,
			Amount:    entity.Amount,
			UserID:    notes["userId"],
		})
		if err != nil {
			var assocErr *services.MissingAssociationError
			if errors.As(err, &assocErr) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": assocErr.Error()})
			}
			log.Printf("[Webhook] payment.captured reconciliation failed for order %s: %v", entity.OrderID, err)
			return c.Status(fiber.StatusInternalServerError).SendString("Server error")
		}
	case "payment.failed":
		err := h.payments.HandleFailed(c.Context(), services.FailedEvent{
			OrderID:   entity.OrderID,
			PaymentID: entity.ID,
		})
		if err != nil {
			log.Printf("[Webhook] payment.failed reconciliation failed for order %s: %v", entity.OrderID, err)
			return c.Status(fiber.StatusInternalServerError).SendString("Server error")
		}
	}

	return c.JSON(fiber.Map{"status": "ok"})
}

func writePaymentError(c *fiber.Ctx, err error) error {
	var sigErr *services.SignatureError
	if errors.As(err, &sigErr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "failure",
			"message": "Invalid signature",
		})
	}

	var vErr *services.ValidationError
	if errors.As(err, &vErr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": vErr.Error()})
	}

	var assocErr *services.MissingAssociationError
	if errors.As(err, &assocErr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": assocErr.Error()})
	}

	var provErr *services.ProviderError
	if errors.As(err, &provErr) {
		log.Printf("[Payment] provider error: %v", provErr)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Server error while talking to the payment provider",
		})
	}

	return err
}
