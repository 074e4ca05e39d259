package models

import "github.com/google/uuid"

// Payment statuses. "failed" is terminal: a failed payment never
// transitions again. "captured" (webhook) and "verified" (client redirect)
// may both be reached for one order and must agree on payment id and amount.
const (
	PaymentStatusCreated  = "created"
	PaymentStatusCaptured = "captured"
	PaymentStatusVerified = "verified"
	PaymentStatusFailed   = "failed"
)

// Payment is one payment attempt, keyed by the provider-assigned order id.
// Rows are never deleted; they are the durable audit trail.
type Payment struct {
	BaseModel
	OrderID   string    `gorm:"uniqueIndex" json:"order_id"`
	PaymentID string    `json:"payment_id"`
	Status    string    `json:"status"`
	Method    string    `json:"method"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Receipt   string    `json:"receipt"`
	UserID    uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Notes     []byte    `gorm:"type:jsonb" json:"notes"`
}

// InProgressPayment tracks a ticket purchase whose ticket does not exist
// yet: the ticket is only materialized after the payment is confirmed.
// Reconciled by the same verified events as Payment, matched by order id.
type InProgressPayment struct {
	BaseModel
	OrderID        string    `gorm:"index" json:"order_id"`
	TicketIntentID string    `gorm:"index" json:"ticket_intent_id"`
	UserID         uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	PaymentID      string    `json:"payment_id"`
	Status         string    `json:"status"`
	Method         string    `json:"method"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
}
