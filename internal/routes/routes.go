package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/remotefix/internal/config"
	"github.com/example/remotefix/internal/handlers"
	"github.com/example/remotefix/internal/middleware"
	"github.com/example/remotefix/internal/services"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config, cache *services.StatusCache) {
	telegramService := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat)
	razorpayClient := services.NewRazorpayClient(cfg.RazorpayBaseURL, cfg.RazorpayKeyID, cfg.RazorpayKeySecret)
	paymentService := services.NewPaymentService(db, razorpayClient, cache, telegramService)

	authHandler := handlers.NewAuthHandler(db, cfg)
	ticketHandler := handlers.NewTicketHandler(db, telegramService)
	adminHandler := handlers.NewAdminHandler(db)
	contactHandler := handlers.NewContactHandler(db)
	paymentHandler := handlers.NewPaymentHandler(paymentService, cfg.RazorpayKeySecret, cfg.RazorpayWebhookSecret)

	// Payment endpoints live at the root, matching the paths the checkout
	// frontend and the Razorpay webhook configuration already use.
	app.Post("/order", paymentHandler.CreateOrder)
	app.Post("/order-inprogress", paymentHandler.CreateInProgressOrder)
	app.Post("/verify", paymentHandler.Verify)
	app.Get("/payment-status/:orderId", paymentHandler.Status)
	app.Post("/razorpay-webhook", paymentHandler.Webhook)

	api := app.Group("/api")

	// Auth routes
	api.Post("/signup", authHandler.Signup)
	api.Post("/login", authHandler.Login)
	api.Get("/me", middleware.AuthMiddleware(cfg), authHandler.Me)
	api.Patch("/profile", middleware.AuthMiddleware(cfg), authHandler.UpdateProfile)

	// Tickets (authenticated)
	tickets := api.Group("/tickets", middleware.AuthMiddleware(cfg))
	tickets.Get("/", ticketHandler.ListTickets)
	tickets.Post("/", ticketHandler.CreateTicket)
	tickets.Patch("/:id", ticketHandler.UpdateTicket)
	tickets.Delete("/:id", ticketHandler.DeleteTicket)

	// Contact form
	api.Post("/contact/add", contactHandler.Create)

	// Admin surface
	admin := api.Group("/admin")
	admin.Get("/services", adminHandler.ListServices)

	adminOnly := admin.Group("", middleware.AdminMiddleware(cfg, db))
	adminOnly.Get("/tickets", adminHandler.ListTickets)
	adminOnly.Patch("/tickets/:id", adminHandler.UpdateTicket)
	adminOnly.Get("/users", adminHandler.ListUsers)
	adminOnly.Post("/users", adminHandler.CreateUser)
	adminOnly.Post("/services", adminHandler.CreateService)
}
