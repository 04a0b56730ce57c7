package database

import (
	"context"
	"log"
	"net"
	"time"

	"sktutorials_go/config"
	"sktutorials_go/models"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB
var RedisClient *redis.Client

const (
	connectAttempts  = 8
	redisPingTimeout = 3 * time.Second
)

// ledgerModels are migrated in dependency order: students before the rows
// that reference them.
var ledgerModels = []interface{}{
	&models.Student{},
	&models.StudentInstallment{},
	&models.Payment{},
	&models.ReminderLog{},
	&models.AttendanceRecord{},
	&models.PerformanceRecord{},
	&models.InstituteSettings{},
	&models.ActivityLog{},
	&models.Notification{},
	&models.LogArchive{},
	&models.LineGroup{},
}

// Connect opens the SQL database (fatal on failure) and Redis (optional).
func Connect() {
	cfg := config.AppConfig

	db, err := openWithRetry(dialector(cfg), gormLogger(cfg), connectAttempts)
	if err != nil {
		log.Fatal("Failed to connect to database after retries:", err)
	}
	DB = db
	log.Printf("Database connected (driver=%s host=%s db=%s)", cfg.DBDriver, cfg.DBHost, cfg.DBName)

	if err := configurePool(DB); err != nil {
		log.Fatal("Failed to get database instance:", err)
	}

	if cfg.SkipMigrate {
		log.Println("SKIP_MIGRATE=true, skipping auto migration")
	} else {
		AutoMigrate()
	}

	RedisClient = connectRedis(cfg)
}

func dialector(c *config.Config) gorm.Dialector {
	if c.IsPostgres() {
		return postgres.Open(c.GetDSN())
	}
	return mysql.Open(c.GetDSN())
}

// gormLogger echoes SQL in development only.
func gormLogger(c *config.Config) logger.Interface {
	if c.AppEnv == "development" {
		return logger.Default.LogMode(logger.Info)
	}
	return logger.Default.LogMode(logger.Silent)
}

// openWithRetry backs off quadratically; a managed DB can take a while to
// accept connections after a deploy.
func openWithRetry(d gorm.Dialector, l logger.Interface, attempts int) (*gorm.DB, error) {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		db, err := gorm.Open(d, &gorm.Config{Logger: l})
		if err == nil {
			return db, nil
		}
		lastErr = err
		log.Printf("Database connect attempt %d/%d failed: %v", attempt, attempts, err)
		if attempt < attempts {
			time.Sleep(time.Duration(attempt*attempt) * 300 * time.Millisecond)
		}
	}
	return nil, lastErr
}

func configurePool(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(55 * time.Minute)
	return nil
}

// AutoMigrate creates or updates every ledger table.
func AutoMigrate() {
	if err := DB.AutoMigrate(ledgerModels...); err != nil {
		log.Fatal("Auto migration failed:", err)
	}
	log.Printf("Database migration completed (%d tables)", len(ledgerModels))
}

// connectRedis returns nil when Redis is unreachable; the log cache,
// idempotency keys and notification queue all fall back without it.
func connectRedis(c *config.Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(c.RedisHost, c.RedisPort),
		Password: c.RedisPassword,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("Redis unavailable at %s (%v); continuing without it", client.Options().Addr, err)
		_ = client.Close()
		return nil
	}
	log.Println("Redis connected successfully")
	return client
}

// GetRedisClient returns nil when Redis is down.
func GetRedisClient() *redis.Client {
	return RedisClient
}

func GetDB() *gorm.DB {
	return DB
}

// Close releases Redis and the SQL pool.
func Close() {
	if RedisClient != nil {
		if err := RedisClient.Close(); err != nil {
			log.Println("Error closing Redis connection:", err)
		}
	}
	if DB == nil {
		return
	}
	sqlDB, err := DB.DB()
	if err != nil {
		log.Println("Error getting database instance:", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Println("Error closing database connection:", err)
		return
	}
	log.Println("Database connection closed")
}
