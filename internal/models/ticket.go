package models

import "github.com/google/uuid"

// Ticket statuses.
const (
	TicketStatusPending    = "pending"
	TicketStatusInProgress = "in-progress"
	TicketStatusCompleted  = "completed"
)

// Ticket is a repair request raised by a customer.
type Ticket struct {
	BaseModel
	UserID         uuid.UUID  `gorm:"type:uuid;index" json:"user_id"`
	User           *User      `json:"user,omitempty"`
	EngineerID     *uuid.UUID `gorm:"type:uuid" json:"engineer_id"`
	Engineer       *User      `gorm:"foreignKey:EngineerID" json:"engineer,omitempty"`
	Service        string     `json:"service"`
	Description    string     `json:"description"`
	Status         string     `json:"status"`
	PaymentOrderID string     `gorm:"index" json:"payment_order_id"`
}

// ServiceItem is an offered repair service shown on the booking form.
type ServiceItem struct {
	BaseModel
	Name string `gorm:"uniqueIndex" json:"name"`
}

// ContactRequest captures a support enquiry from the contact form.
type ContactRequest struct {
	BaseModel
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone"`
	ComputerType string     `json:"computer_type"`
	Description  string     `json:"description"`
	Urgency      string     `json:"urgency"`
	UserID       *uuid.UUID `gorm:"type:uuid" json:"user_id"`
}
