package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/remotefix/internal/models"
)

// ContactHandler manages contact form submissions.
type ContactHandler struct {
	db *gorm.DB
}

// NewContactHandler constructs ContactHandler.
func NewContactHandler(db *gorm.DB) *ContactHandler {
	return &ContactHandler{db: db}
}

type contactRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	ComputerType string `json:"computerType"`
	Description  string `json:"description"`
	Urgency      string `json:"urgency"`
	UserID       string `json:"userId"`
}

// Create stores a contact request.
func (h *ContactHandler) Create(c *fiber.Ctx) error {
	var req contactRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.Name == "" || req.Email == "" || req.Phone == "" || req.ComputerType == "" || req.Description == "" || req.Urgency == "" {
		return fiber.NewError(fiber.StatusBadRequest, "all fields are required")
	}

	contact := models.ContactRequest{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		ComputerType: req.ComputerType,
		Description:  req.Description,
		Urgency:      req.Urgency,
	}

	if req.UserID != "" {
		if id, err := uuid.Parse(req.UserID); err == nil {
			contact.UserID = &id
		}
	}

	if err := h.db.Create(&contact).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "contact": contact})
}
