package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/remotefix/internal/middleware"
	"github.com/example/remotefix/internal/models"
	"github.com/example/remotefix/internal/services"
)

// TicketHandler manages repair ticket endpoints.
type TicketHandler struct {
	db       *gorm.DB
	telegram *services.TelegramService
}

// NewTicketHandler constructs TicketHandler.
func NewTicketHandler(db *gorm.DB, telegram *services.TelegramService) *TicketHandler {
	return &TicketHandler{db: db, telegram: telegram}
}

// ListTickets returns tickets for the authenticated user.
func (h *TicketHandler) ListTickets(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var tickets []models.Ticket
	if err := h.db.Where("user_id = ?", userID).
		Preload("Engineer").
		Order("created_at desc").
		Find(&tickets).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"tickets": tickets})
}

type createTicketRequest struct {
	Service        string `json:"service"`
	Description    string `json:"description"`
	PaymentOrderID string `json:"payment_order_id"`
}

// CreateTicket raises a new repair ticket. This is the dependent call the
// checkout client makes once its payment order is captured.
func (h *TicketHandler) CreateTicket(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req createTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.Description == "" || req.Service == "" {
		return fiber.NewError(fiber.StatusBadRequest, "all fields are required")
	}

	ticket := models.Ticket{
		UserID:         userID,
		Service:        req.Service,
		Description:    req.Description,
		Status:         models.TicketStatusPending,
		PaymentOrderID: req.PaymentOrderID,
	}

	if err := h.db.Create(&ticket).Error; err != nil {
		return err
	}

	if h.telegram != nil {
		var user models.User
		userName := ""
		if err := h.db.First(&user, "id = ?", userID).Error; err == nil {
			userName = user.Name
		}
		go func() {
			if err := h.telegram.NotifyNewTicket(services.TicketNotification{
				TicketID: ticket.ID.String(),
				Service:  ticket.Service,
				UserName: userName,
			}); err != nil {
				log.Printf("[Ticket] Telegram notification failed: %v", err)
			}
		}()
	}

	return c.JSON(fiber.Map{"ticket": ticket})
}

type updateTicketRequest struct {
	Status string `json:"status"`
}

// UpdateTicket lets the owner update their ticket status.
func (h *TicketHandler) UpdateTicket(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req updateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var ticket models.Ticket
	if err := h.db.First(&ticket, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "ticket not found")
		}
		return err
	}

	ticket.Status = req.Status
	if err := h.db.Save(&ticket).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"ticket": ticket})
}

// DeleteTicket removes a ticket owned by the authenticated user.
func (h *TicketHandler) DeleteTicket(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	result := h.db.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Ticket{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "ticket not found")
	}

	return c.JSON(fiber.Map{"success": true})
}
