package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/remotefix/internal/models"
)

// PaymentService owns the payment order lifecycle: it issues provider
// orders and reconciles verified payment events into the Payment table.
// Two producers race on each order (provider webhook and client redirect);
// reconciliation is keyed-upsert based and serialized per order id, so the
// paths are safe in either arrival order and idempotent under redelivery.
type PaymentService struct {
	db       *gorm.DB
	razorpay *RazorpayClient
	cache    *StatusCache
	telegram *TelegramService
	locks    keyedMutex
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(db *gorm.DB, razorpay *RazorpayClient, cache *StatusCache, telegram *TelegramService) *PaymentService {
	return &PaymentService{
		db:       db,
		razorpay: razorpay,
		cache:    cache,
		telegram: telegram,
	}
}

// CreateOrderInput uses major currency units for Amount, matching the
// checkout form; the provider order is created in paise.
type CreateOrderInput struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// CreateOrder creates a provider order plus a pending Payment row. The
// caller retries with a fresh order on provider failure; this layer does
// not retry.
func (s *PaymentService) CreateOrder(ctx context.Context, in CreateOrderInput) (*RazorpayOrder, error) {
	if in.Amount <= 0 {
		return nil, &ValidationError{Field: "amount"}
	}

	userID, err := uuid.Parse(in.Notes["userId"])
	if err != nil {
		return nil, &ValidationError{Field: "notes.userId"}
	}

	order, err := s.razorpay.CreateOrder(ctx, CreateOrderParams{
		Amount:   in.Amount * 100,
		Currency: in.Currency,
		Receipt:  in.Receipt,
		Notes:    in.Notes,
	})
	if err != nil {
		return nil, &ProviderError{Op: "create order", Err: err}
	}

	notes, _ := json.Marshal(in.Notes)
	payment := models.Payment{
		OrderID:  order.ID,
		Status:   models.PaymentStatusCreated,
		Amount:   order.Amount,
		Currency: order.Currency,
		Receipt:  order.Receipt,
		UserID:   userID,
		Notes:    notes,
	}
	if err := s.db.WithContext(ctx).Create(&payment).Error; err != nil {
		return nil, err
	}

	s.cache.Set(order.ID, PaymentStatus{Status: models.PaymentStatusCreated, Amount: order.Amount})
	return order, nil
}

// CreateInProgressOrderInput additionally carries the ticket intent a
// purchase is for. The ticket itself does not exist until the payment is
// confirmed and the client creates it.
type CreateInProgressOrderInput struct {
	Amount         int64
	Currency       string
	Receipt        string
	Notes          map[string]string
	TicketIntentID string
	UserID         string
}

// CreateInProgressOrder creates a provider order together with an
// InProgressPayment row (and the Payment row, linked by the same provider
// order id).
func (s *PaymentService) CreateInProgressOrder(ctx context.Context, in CreateInProgressOrderInput) (*RazorpayOrder, error) {
	if in.Amount <= 0 {
		return nil, &ValidationError{Field: "amount"}
	}
	if in.TicketIntentID == "" {
		return nil, &ValidationError{Field: "ticketId"}
	}
	userID, err := uuid.Parse(in.UserID)
	if err != nil {
		return nil, &ValidationError{Field: "userId"}
	}

	notes := map[string]string{}
	for k, v := range in.Notes {
		notes[k] = v
	}
	notes["userId"] = in.UserID
	notes["ticketId"] = in.TicketIntentID

	order, err := s.razorpay.CreateOrder(ctx, CreateOrderParams{
		Amount:   in.Amount * 100,
		Currency: in.Currency,
		Receipt:  in.Receipt,
		Notes:    notes,
	})
	if err != nil {
		return nil, &ProviderError{Op: "create order", Err: err}
	}

	rawNotes, _ := json.Marshal(notes)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment := models.Payment{
			OrderID:  order.ID,
			Status:   models.PaymentStatusCreated,
			Amount:   order.Amount,
			Currency: order.Currency,
			Receipt:  order.Receipt,
			UserID:   userID,
			Notes:    rawNotes,
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}

		inProgress := models.InProgressPayment{
			OrderID:        order.ID,
			TicketIntentID: in.TicketIntentID,
			UserID:         userID,
			Status:         models.PaymentStatusCreated,
			Amount:         order.Amount,
			Currency:       order.Currency,
		}
		return tx.Create(&inProgress).Error
	})
	if err != nil {
		return nil, err
	}

	s.cache.Set(order.ID, PaymentStatus{Status: models.PaymentStatusCreated, Amount: order.Amount})
	return order, nil
}

// CapturedEvent is a verified payment.captured webhook delivery.
type CapturedEvent struct {
	OrderID   string
	PaymentID string
	Method    string
	Amount    int64
	UserID    string
}

// HandleCaptured applies a verified capture to the Payment table. The user
// association comes from the event notes, falling back to the existing
// pending row; when neither is available the event is rejected with
// MissingAssociationError instead of being attached to a default user.
// Replaying the same event converges to the same row state.
func (s *PaymentService) HandleCaptured(ctx context.Context, ev CapturedEvent) error {
	if ev.OrderID == "" {
		return &ValidationError{Field: "order_id"}
	}

	unlock := s.locks.Lock(ev.OrderID)
	defer unlock()

	var wasFailed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Payment
		found := true
		if err := tx.Where("order_id = ?", ev.OrderID).First(&existing).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			found = false
		}

		// "failed" is terminal.
		if found && existing.Status == models.PaymentStatusFailed {
			wasFailed = true
			return nil
		}

		userID, err := uuid.Parse(ev.UserID)
		if err != nil {
			if !found || existing.UserID == uuid.Nil {
				return &MissingAssociationError{OrderID: ev.OrderID}
			}
			userID = existing.UserID
		}

		payment := models.Payment{
			OrderID:   ev.OrderID,
			PaymentID: ev.PaymentID,
			Status:    models.PaymentStatusCaptured,
			Method:    ev.Method,
			Amount:    ev.Amount,
			UserID:    userID,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"status":     models.PaymentStatusCaptured,
				"payment_id": ev.PaymentID,
				"method":     ev.Method,
				"amount":     ev.Amount,
				"user_id":    userID,
			}),
		}).Create(&payment).Error; err != nil {
			return err
		}

		// Not every order is ticket-linked; zero matches is fine.
		return tx.Model(&models.InProgressPayment{}).
			Where("order_id = ?", ev.OrderID).
			Updates(map[string]any{
				"status":     models.PaymentStatusCaptured,
				"payment_id": ev.PaymentID,
				"method":     ev.Method,
				"amount":     ev.Amount,
			}).Error
	})
	if err != nil {
		return err
	}
	if wasFailed {
		return nil
	}

	s.cache.Set(ev.OrderID, PaymentStatus{
		Status:    models.PaymentStatusCaptured,
		PaymentID: ev.PaymentID,
		Method:    ev.Method,
		Amount:    ev.Amount,
	})

	if s.telegram != nil {
		go func() {
			if err := s.telegram.NotifyPaymentCaptured(PaymentCapturedNotification{
				OrderID:   ev.OrderID,
				PaymentID: ev.PaymentID,
				Method:    ev.Method,
				Amount:    ev.Amount,
			}); err != nil {
				log.Printf("[Payment] Telegram capture notification failed: %v", err)
			}
		}()
	}

	return nil
}

// FailedEvent is a verified payment.failed webhook delivery.
type FailedEvent struct {
	OrderID   string
	PaymentID string
}

// HandleFailed records a failed payment attempt. Orders that already
// reached captured or verified are left alone, in rows and cache alike: a
// late failure notice for an earlier attempt must not demote a successful
// payment. A failure for an order this system never issued creates nothing,
// though poll clients still learn about it through the cache.
func (s *PaymentService) HandleFailed(ctx context.Context, ev FailedEvent) error {
	if ev.OrderID == "" {
		return &ValidationError{Field: "order_id"}
	}

	unlock := s.locks.Lock(ev.OrderID)
	defer unlock()

	settled := []string{models.PaymentStatusCaptured, models.PaymentStatusVerified, models.PaymentStatusFailed}

	var succeeded bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Payment
		if err := tx.Where("order_id = ?", ev.OrderID).First(&existing).Error; err == nil {
			switch existing.Status {
			case models.PaymentStatusCaptured, models.PaymentStatusVerified:
				succeeded = true
				return nil
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Model(&models.Payment{}).
			Where("order_id = ? AND status NOT IN ?", ev.OrderID, settled).
			Updates(map[string]any{
				"status":     models.PaymentStatusFailed,
				"payment_id": ev.PaymentID,
			}).Error; err != nil {
			return err
		}

		return tx.Model(&models.InProgressPayment{}).
			Where("order_id = ? AND status NOT IN ?", ev.OrderID, settled).
			Updates(map[string]any{
				"status":     models.PaymentStatusFailed,
				"payment_id": ev.PaymentID,
			}).Error
	})
	if err != nil {
		return err
	}
	if succeeded {
		return nil
	}

	s.cache.Set(ev.OrderID, PaymentStatus{
		Status:    models.PaymentStatusFailed,
		PaymentID: ev.PaymentID,
	})
	return nil
}

// HandleRedirectVerified applies a signature-verified client redirect. The
// client payload is trusted only for the signature-bearing identifiers;
// amount and user association are re-fetched from the provider.
func (s *PaymentService) HandleRedirectVerified(ctx context.Context, orderID, paymentID string) error {
	if orderID == "" {
		return &ValidationError{Field: "razorpay_order_id"}
	}

	order, err := s.razorpay.FetchOrder(ctx, orderID)
	if err != nil {
		return &ProviderError{Op: "fetch order", Err: err}
	}

	userID, err := uuid.Parse(order.Notes["userId"])
	if err != nil {
		return &MissingAssociationError{OrderID: orderID}
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	var wasFailed bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Payment
		if err := tx.Where("order_id = ?", orderID).First(&existing).Error; err == nil {
			if existing.Status == models.PaymentStatusFailed {
				wasFailed = true
				return nil
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		payment := models.Payment{
			OrderID:   orderID,
			PaymentID: paymentID,
			Status:    models.PaymentStatusVerified,
			Amount:    order.Amount,
			Currency:  order.Currency,
			Receipt:   order.Receipt,
			UserID:    userID,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"status":     models.PaymentStatusVerified,
				"payment_id": paymentID,
				"amount":     order.Amount,
				"user_id":    userID,
			}),
		}).Create(&payment).Error; err != nil {
			return err
		}

		return tx.Model(&models.InProgressPayment{}).
			Where("order_id = ?", orderID).
			Updates(map[string]any{
				"status":     models.PaymentStatusVerified,
				"payment_id": paymentID,
				"amount":     order.Amount,
			}).Error
	})
	if err != nil {
		return err
	}
	if wasFailed {
		return nil
	}

	status := PaymentStatus{
		Status:    models.PaymentStatusVerified,
		PaymentID: paymentID,
		Amount:    order.Amount,
	}
	if prev, ok := s.cache.Get(orderID); ok && prev.Method != "" {
		status.Method = prev.Method
	}
	s.cache.Set(orderID, status)
	return nil
}

// Status answers a polling request from the cache, falling back to the
// Payment table and repriming the cache on a miss. The boolean is false
// when the order is unknown to both.
func (s *PaymentService) Status(ctx context.Context, orderID string) (PaymentStatus, bool) {
	if status, ok := s.cache.Get(orderID); ok {
		return status, true
	}

	var payment models.Payment
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&payment).Error; err != nil {
		return PaymentStatus{}, false
	}

	status := PaymentStatus{
		Status:    payment.Status,
		PaymentID: payment.PaymentID,
		Method:    payment.Method,
		Amount:    payment.Amount,
	}
	s.cache.Set(orderID, status)
	return status, true
}

// keyedMutex serializes reconciliation per order id. Postgres upserts are
// atomic on their own, but the redirect path is a multi-step
// fetch-then-write and needs the same ordering guarantee everywhere.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*orderLock
}

type orderLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*orderLock)
	}
	entry, ok := k.locks[key]
	if !ok {
		entry = &orderLock{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
