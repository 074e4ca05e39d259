package database

import (
	"database/sql"
	"errors"
	"log"
	"net/url"
	"strings"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/remotefix/internal/models"
)

var db *gorm.DB

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) *gorm.DB {
	if db != nil {
		return db
	}

	if err := ensureDatabase(dsn); err != nil {
		log.Fatalf("failed to ensure database: %v", err)
	}

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := conn.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		log.Printf("warning: failed to ensure uuid-ossp extension: %v", err)
	}

	if err := Migrate(conn); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}

	db = conn
	return db
}

// DB exposes the initialized gorm.DB instance.
func DB() *gorm.DB {
	return db
}

// Migrate applies schema migrations for all models.
func Migrate(conn *gorm.DB) error {
	migrations := []interface{}{
		&models.User{},
		&models.ServiceItem{},
		&models.Ticket{},
		&models.ContactRequest{},
		&models.Payment{},
		&models.InProgressPayment{},
	}

	for _, migration := range migrations {
		if err := conn.AutoMigrate(migration); err != nil {
			return err
		}
	}

	return nil
}

// Seed creates the super admin account and the default repair services
// when they are missing. Safe to run on every startup.
func Seed(conn *gorm.DB, adminEmail, adminPasswordHash string) error {
	if adminEmail != "" && adminPasswordHash != "" {
		var existing models.User
		err := conn.Where("email = ?", adminEmail).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			admin := models.User{
				Name:         "Super Admin",
				Email:        adminEmail,
				PasswordHash: adminPasswordHash,
				Role:         models.RoleSuperAdmin,
			}
			if err := conn.Create(&admin).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
	}

	defaults := []string{
		"System Diagnostics",
		"Data Recovery",
		"Network Issues",
		"Virus Removal",
		"Software Installation",
		"System Optimization",
		"System Cleanup",
		"Security Setup",
		"System Restore",
	}

	for _, name := range defaults {
		var svc models.ServiceItem
		err := conn.Where("name = ?", name).First(&svc).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := conn.Create(&models.ServiceItem{Name: name}).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
	}

	return nil
}

func ensureDatabase(dsn string) error {
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return err
	}

	dbName := strings.TrimPrefix(parsed.Path, "/")
	if dbName == "" {
		return nil
	}

	parsed.Path = "/postgres"
	masterDSN := parsed.String()

	sqlDB, err := sql.Open("postgres", masterDSN)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return err
	}

	var exists bool
	if err := sqlDB.QueryRow("SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists); err != nil {
		return err
	}

	if exists {
		return nil
	}

	_, err = sqlDB.Exec("CREATE DATABASE " + pq.QuoteIdentifier(dbName))
	return err
}
