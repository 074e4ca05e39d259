package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/remotefix/internal/models"
	"github.com/example/remotefix/internal/utils"
)

// AdminHandler manages the admin dashboard endpoints.
type AdminHandler struct {
	db *gorm.DB
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(db *gorm.DB) *AdminHandler {
	return &AdminHandler{db: db}
}

// ListTickets returns all tickets with their users, paginated.
func (h *AdminHandler) ListTickets(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Ticket{})

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var tickets []models.Ticket
	if err := query.Preload("User").
		Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&tickets).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"tickets": tickets,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

type adminUpdateTicketRequest struct {
	Status     string `json:"status"`
	EngineerID string `json:"engineer_id"`
}

// UpdateTicket changes a ticket's status or assigned engineer.
func (h *AdminHandler) UpdateTicket(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req adminUpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]any{}
	if req.Status != "" {
		switch req.Status {
		case models.TicketStatusPending, models.TicketStatusInProgress, models.TicketStatusCompleted:
			updates["status"] = req.Status
		default:
			return fiber.NewError(fiber.StatusBadRequest, "invalid status")
		}
	}
	if req.EngineerID != "" {
		engineerID, err := uuid.Parse(req.EngineerID)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid engineer_id")
		}
		updates["engineer_id"] = engineerID
	}

	if len(updates) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "nothing to update")
	}

	result := h.db.Model(&models.Ticket{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "ticket not found")
	}

	var ticket models.Ticket
	if err := h.db.Preload("User").First(&ticket, "id = ?", id).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"ticket": ticket})
}

// ListUsers returns all registered users.
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	var users []models.User
	if err := h.db.
		Select("id", "name", "email", "phone", "role", "created_at").
		Order("created_at desc").
		Find(&users).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"users": users})
}

type adminCreateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// CreateUser creates a user with an explicit role.
func (h *AdminHandler) CreateUser(c *fiber.Ctx) error {
	var req adminCreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.Name == "" || req.Email == "" || req.Phone == "" || req.Password == "" || req.Role == "" {
		return fiber.NewError(fiber.StatusBadRequest, "all fields required")
	}
	if req.Role != models.RoleUser && req.Role != models.RoleAdmin {
		return fiber.NewError(fiber.StatusBadRequest, "role must be 'user' or 'admin'")
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}

	user := models.User{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: passwordHash,
		Role:         req.Role,
	}
	if err := h.db.Create(&user).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"user": fiber.Map{
			"id":    user.ID,
			"name":  user.Name,
			"email": user.Email,
			"phone": user.Phone,
			"role":  user.Role,
		},
	})
}

type createServiceRequest struct {
	Name string `json:"name"`
}

// CreateService adds a repair service to the catalog.
func (h *AdminHandler) CreateService(c *fiber.Ctx) error {
	var req createServiceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "name required")
	}

	svc := models.ServiceItem{Name: req.Name}
	if err := h.db.Create(&svc).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"service": svc})
}

// ListServices returns the repair service catalog. Public.
func (h *AdminHandler) ListServices(c *fiber.Ctx) error {
	var services []models.ServiceItem
	if err := h.db.Order("name asc").Find(&services).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"services": services})
}
