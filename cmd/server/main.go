package main

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/example/remotefix/internal/config"
	"github.com/example/remotefix/internal/database"
	"github.com/example/remotefix/internal/routes"
	"github.com/example/remotefix/internal/services"
	"github.com/example/remotefix/internal/utils"
)

func main() {
	cfg := config.Load()
	db := database.Connect(cfg.DatabaseURL)

	if adminEmail := os.Getenv("SEED_ADMIN_EMAIL"); adminEmail != "" {
		hash, err := utils.HashPassword(os.Getenv("SEED_ADMIN_PASSWORD"))
		if err != nil {
			log.Fatalf("failed to hash seed admin password: %v", err)
		}
		if err := database.Seed(db, adminEmail, hash); err != nil {
			log.Printf("seed failed: %v", err)
		}
	} else if err := database.Seed(db, "", ""); err != nil {
		log.Printf("seed failed: %v", err)
	}

	cache := services.NewStatusCache(cfg.StatusCacheTTL)
	defer cache.Close()

	app := fiber.New(fiber.Config{
		AppName: "RemoteFix Backend",
	})

	app.Use(recover.New())
	app.Use(logger.New())

	routes.Register(app, db, cfg, cache)

	log.Printf("Starting server on :%s", cfg.AppPort)
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatalf("fiber.Listen error: %v", err)
	}
}
