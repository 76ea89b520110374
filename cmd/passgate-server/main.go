package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"passgate/internal/config"
	"passgate/internal/models"
	"passgate/internal/routes"
	"passgate/internal/store"
	"passgate/internal/utils"
)

func main() {
	appConfig := config.Load()

	if err := utils.ValidateKey([]byte(appConfig.EncryptionKey)); err != nil {
		log.Fatalf("Invalid encryption key: %v", err)
	}

	db, err := setupDatabase(appConfig)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}

	stopSweeper := startBackgroundSweeper(db, appConfig)
	defer stopSweeper()

	router := routes.SetupRouter(db, appConfig)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", appConfig.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Server listening on port %s\n", appConfig.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server startup failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}

	log.Println("Server stopped")
}

func setupDatabase(config *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch config.DBDriver {
	case "mysql":
		if config.DBDSN == "" {
			return nil, fmt.Errorf("DB_DSN is required when DB_DRIVER is mysql")
		}
		dialector = mysql.Open(config.DBDSN)
	default:
		dialector = sqlite.Open(config.DBPath)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(
		&models.User{},
		&models.Merchant{},
		&models.Application{},
		&models.Passcode{},
		&models.AccessRecord{},
	); err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	if err := createInitialData(db); err != nil {
		return nil, fmt.Errorf("initial data setup failed: %w", err)
	}

	return db, nil
}

// createInitialData makes sure at least one administrator account
// exists, so a fresh deployment can be logged into.
func createInitialData(db *gorm.DB) error {
	var adminCount int64
	if err := db.Model(&models.User{}).Where("is_admin = ?", true).Count(&adminCount).Error; err != nil {
		return err
	}

	if adminCount > 0 {
		return nil
	}

	adminUsername := getEnv("ADMIN_USERNAME", "admin")

	var existing models.User
	result := db.Where("username = ?", adminUsername).First(&existing)

	if result.Error == nil {
		existing.IsAdmin = true
		if err := db.Save(&existing).Error; err != nil {
			return err
		}
		log.Println("Existing user promoted to administrator:", adminUsername)
		return nil
	}

	if result.Error != gorm.ErrRecordNotFound {
		return result.Error
	}

	admin := models.User{
		Username:  adminUsername,
		Password:  getEnv("ADMIN_PASSWORD", "admin123"),
		FirstName: getEnv("ADMIN_FIRST_NAME", "System"),
		LastName:  getEnv("ADMIN_LAST_NAME", "Administrator"),
		Email:     getEnv("ADMIN_EMAIL", "admin@passgate.local"),
		UserType:  models.UserTypeEmployee,
		IsAdmin:   true,
		Active:    true,
	}

	if err := db.Create(&admin).Error; err != nil {
		return err
	}

	log.Printf("Default administrator created (username: %s)\n", adminUsername)
	return nil
}

// startBackgroundSweeper periodically expires passcodes past their
// expiry time and, when retention is configured, trims old access
// records. Returns a stop function.
func startBackgroundSweeper(db *gorm.DB, config *config.Config) func() {
	passcodes := store.NewPasscodeStore(db)
	records := store.NewAccessRecordStore(db)

	interval := time.Duration(config.ExpirySweepMinutes) * time.Minute
	if interval < time.Minute {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				if count, err := passcodes.CleanupExpired(); err != nil {
					log.Printf("Expiry sweep failed: %v", err)
				} else if count > 0 {
					log.Printf("Expiry sweep marked %d passcodes expired", count)
				}

				if config.RecordRetentionDays > 0 {
					if removed, err := records.Cleanup(config.RecordRetentionDays); err != nil {
						log.Printf("Record retention cleanup failed: %v", err)
					} else if removed > 0 {
						log.Printf("Record retention removed %d access records", removed)
					}
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { close(done) }
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
