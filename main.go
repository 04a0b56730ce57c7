package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"sktutorials_go/config"
	"sktutorials_go/database"
	"sktutorials_go/database/seeders"
	"sktutorials_go/handlers"
	"sktutorials_go/middleware"
	"sktutorials_go/routes"
	"sktutorials_go/services"
	"sktutorials_go/services/fees"
	"sktutorials_go/services/notifications"
	"sktutorials_go/services/websocket"
	"sktutorials_go/storage"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

const (
	serviceName    = "SK Tutorials API"
	serviceVersion = "1.0.0"
)

func init() {
	// Load configuration
	config.LoadConfig()

	// Initialize logging
	setupLogging()

	// Connect to database
	database.Connect()
	if config.AppConfig.Seed {
		seeders.SeedAll()
	}
}

func main() {
	startedAt := time.Now()

	// Create WebSocket hub first
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Wire notifications to the WebSocket hub globally so every Service uses it
	notifications.SetDefaultWSHub(wsHub)
	notifService := notifications.NewService()
	stopWorkers := make(chan struct{})
	if config.AppConfig.UseRedisNotifications {
		notifService.StartWorker(stopWorkers)
	}

	// Fee ledger and its collaborators
	feeService := fees.NewService(fees.NewGormStore(database.DB), fees.WithLocation(config.AppConfig.Location()))
	lineService := services.NewLineMessagingService(config.AppConfig.LineChannelSecret, config.AppConfig.LineChannelAccessToken)
	messengers := services.NewMessengerSet(
		services.NewWhatsAppService(config.AppConfig.WhatsAppEndpoint, config.AppConfig.WhatsAppToken),
		lineService,
	)
	reminderService := services.NewFeeReminderService(feeService, messengers)

	var uploader services.Uploader
	if storageService, err := storage.NewStorageService(); err != nil {
		log.Printf("S3 storage disabled, import sources will not be kept: %v", err)
	} else {
		uploader = storageService
	}
	importer := services.NewDefaultPaymentImporter(feeService, uploader)

	studentService := services.NewStudentService()
	attendanceService := services.NewAttendanceService()
	logArchiveService := services.NewLogArchiveService()

	// Background jobs
	scheduleManager := services.NewScheduleManager(config.AppConfig.Location())
	if err := scheduleManager.RegisterReminders(config.AppConfig.ReminderCron, reminderService); err != nil {
		log.Fatalf("Invalid REMINDER_CRON: %v", err)
	}
	if err := scheduleManager.RegisterLogMaintenance(config.AppConfig.LogMaintenanceCron, logArchiveService); err != nil {
		log.Fatalf("Invalid LOG_MAINTENANCE_CRON: %v", err)
	}
	scheduleManager.Start()

	healthService := services.NewHealthService(serviceName, serviceVersion)
	healthService.SetStartTime(startedAt)
	healthService.SetMessengers(messengers)
	healthService.SetJobs(scheduleManager.Jobs)

	lineWebhook := handlers.NewLineWebhookHandler(database.DB, config.AppConfig.LineChannelSecret, lineService, studentService)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      serviceName,
		ErrorHandler: customErrorHandler,
		BodyLimit:    int(config.AppConfig.MaxFileSize) + 1<<20,
		JSONEncoder:  sonic.Marshal,
		JSONDecoder:  sonic.Unmarshal,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization," + middleware.IdempotencyHeader,
	}))

	// Custom middleware
	app.Use(middleware.LoggerMiddleware())
	app.Use(middleware.LogActivityMiddleware())

	routes.SetupRoutes(app, routes.Dependencies{
		Hub:           wsHub,
		Fees:          feeService,
		Reminders:     reminderService,
		Importer:      importer,
		Students:      studentService,
		Attendance:    attendanceService,
		Performance:   services.NewPerformanceService(),
		Dashboard:     services.NewDashboardService(feeService, attendanceService),
		Notifications: notifService,
		LogArchive:    logArchiveService,
		Health:        healthService,
		LineWebhook:   lineWebhook,
	})

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":  "Route not found",
			"path":   c.Path(),
			"method": c.Method(),
		})
	})

	go func() {
		log.Printf("Server starting on port %s", config.AppConfig.Port)
		log.Printf("%s v%s", serviceName, serviceVersion)
		log.Printf("Environment: %s, timezone: %s", config.AppConfig.AppEnv, config.AppConfig.Location())
		if err := app.Listen(":" + config.AppConfig.Port); err != nil {
			log.Fatal("Failed to start server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(ctx); err != nil {
		logrus.WithError(err).Error("HTTP shutdown failed")
	}
	scheduleManager.Stop()
	close(stopWorkers)
	if err := logArchiveService.FlushCachedLogsToDatabase(); err != nil {
		logrus.WithError(err).Debug("Final log flush skipped")
	}
	database.Close()
}

// setupLogging configures the logging system
func setupLogging() {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(config.AppConfig.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	// stdout in development, LOG_FILE otherwise
	if config.AppConfig.AppEnv == "development" || config.AppConfig.LogFile == "" {
		logrus.SetOutput(os.Stdout)
		return
	}
	if err := os.MkdirAll(filepath.Dir(config.AppConfig.LogFile), 0755); err != nil {
		log.Printf("Warning: Could not create logs directory: %v", err)
	}
	file, err := os.OpenFile(config.AppConfig.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Printf("Warning: Could not open log file, logging to stdout: %v", err)
		return
	}
	logrus.SetOutput(file)
}

// customErrorHandler handles application errors
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	logrus.WithFields(logrus.Fields{
		"error":  err.Error(),
		"path":   c.Path(),
		"method": c.Method(),
		"ip":     c.IP(),
		"status": code,
	}).Error("Request error")

	return c.Status(code).JSON(fiber.Map{
		"error":  message,
		"code":   code,
		"path":   c.Path(),
		"method": c.Method(),
	})
}
