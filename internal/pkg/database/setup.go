package database

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/PawDesk/app/models"
	"github.com/ManuelReschke/PawDesk/internal/pkg/env"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

// DB is the process-wide connection set up by SetupDatabase.
var DB *gorm.DB

// DSN builds the MySQL data source name from DB_* settings.
func DSN() string {
	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=UTC"
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)
}

// BillingModels lists the tables owned by this service.
func BillingModels() []interface{} {
	return []interface{}{
		&models.ProviderEvent{},
		&models.Customer{},
		&models.Subscription{},
		&models.SubscriptionHistory{},
	}
}

// SetupDatabase connects with retries. Schema changes normally go through
// cmd/migrate; DB_AUTO_MIGRATE=true runs gorm AutoMigrate for local setups.
func SetupDatabase() (*gorm.DB, error) {
	var err error
	logLevel := logger.Warn
	if env.GetEnvBool("DB_DEBUG", false) {
		logLevel = logger.Info
	}

	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       DSN(),
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), &gorm.Config{
			Logger:  logger.Default.LogMode(logLevel),
			NowFunc: func() time.Time { return time.Now().UTC() },
		})
		if err == nil {
			break
		}

		log.Warnf("[Database] Failed to connect (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if env.GetEnvBool("DB_AUTO_MIGRATE", false) {
		if err := DB.AutoMigrate(BillingModels()...); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
		log.Info("[Database] AutoMigrate finished")
	}

	if sqlDB, err := DB.DB(); err == nil {
		sqlDB.SetMaxOpenConns(env.GetEnvInt("DB_MAX_OPEN_CONNS", 20))
		sqlDB.SetMaxIdleConns(env.GetEnvInt("DB_MAX_IDLE_CONNS", 5))
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	return DB, nil
}

// GetDB returns the connection set up by SetupDatabase.
func GetDB() *gorm.DB {
	return DB
}
