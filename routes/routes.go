package routes

import (
	"sktutorials_go/controllers"
	"sktutorials_go/handlers"
	"sktutorials_go/middleware"
	"sktutorials_go/services"
	"sktutorials_go/services/fees"
	"sktutorials_go/services/notifications"
	"sktutorials_go/services/websocket"

	"github.com/gofiber/fiber/v2"
)

// Dependencies are the long-lived services the handlers share.
type Dependencies struct {
	Hub           *websocket.Hub
	Fees          *fees.Service
	Reminders     *services.FeeReminderService
	Importer      *services.PaymentImporter
	Students      *services.StudentService
	Attendance    *services.AttendanceService
	Performance   *services.PerformanceService
	Dashboard     *services.DashboardService
	Notifications *notifications.Service
	LogArchive    *services.LogArchiveService
	Health        *services.HealthService
	LineWebhook   *handlers.LineWebhookHandler
}

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, deps Dependencies) {
	feesController := controllers.NewFeesController(deps.Fees, deps.Reminders, deps.Importer, deps.Hub)
	installmentController := controllers.NewInstallmentController(deps.Fees, deps.Hub)
	studentController := controllers.NewStudentController(deps.Students)
	attendanceController := controllers.NewAttendanceController(deps.Attendance)
	performanceController := controllers.NewPerformanceController(deps.Performance)
	dashboardController := controllers.NewDashboardController(deps.Dashboard)
	settingsController := controllers.NewSettingsController()
	notificationController := controllers.NewNotificationController(deps.Notifications)
	logController := controllers.NewLogController(deps.LogArchive)
	healthController := controllers.NewHealthController(deps.Health)
	wsController := controllers.NewWebSocketController(deps.Hub)

	// Public endpoints
	app.Get("/health", healthController.GetHealthStatus)
	app.Get("/health/live", healthController.GetLiveness)
	if deps.LineWebhook != nil {
		app.Post("/line/webhook", deps.LineWebhook.Handle)
	}

	api := app.Group("/api", middleware.JWTMiddleware())

	// Fee ledger
	feeRoutes := api.Group("/fees", middleware.RequireStaff())
	feeRoutes.Get("/summaries", feesController.GetSummaries)
	feeRoutes.Get("/summaries/:id", feesController.GetSummary)
	feeRoutes.Get("/payments", feesController.GetPayments)
	feeRoutes.Post("/payments", middleware.RequireOwnerOrAdmin(), middleware.Idempotency(), feesController.RecordPayment)
	feeRoutes.Post("/payments/import", middleware.RequireOwnerOrAdmin(), feesController.ImportPayments)
	feeRoutes.Get("/due-today", feesController.GetDueToday)
	feeRoutes.Post("/reminders/send", middleware.RequireOwnerOrAdmin(), feesController.SendReminders)

	// Students and their installment plans
	students := api.Group("/students")
	students.Get("/", middleware.RequireTeacherOrAbove(), studentController.GetStudents)
	students.Get("/grouped", middleware.RequireTeacherOrAbove(), studentController.GetGroupedStudents)
	students.Post("/", middleware.RequireStaff(), studentController.CreateStudent)
	students.Get("/:id", middleware.RequireTeacherOrAbove(), studentController.GetStudent)
	students.Put("/:id", middleware.RequireStaff(), studentController.UpdateStudent)
	students.Delete("/:id", middleware.RequireOwnerOrAdmin(), studentController.DeleteStudent)

	installments := students.Group("/:id/installments", middleware.RequireStaff())
	installments.Get("/", installmentController.GetSchedule)
	installments.Put("/", installmentController.ReplaceSchedule)
	installments.Post("/count", installmentController.SetCount)
	installments.Post("/slots", installmentController.AddSlot)
	installments.Patch("/:index", installmentController.UpdateInstallment)

	// Attendance and performance
	attendance := api.Group("/attendance", middleware.RequireTeacherOrAbove())
	attendance.Get("/", attendanceController.List)
	attendance.Get("/summary", attendanceController.Summary)
	attendance.Post("/", attendanceController.Record)
	attendance.Post("/bulk", attendanceController.RecordBulk)

	performance := api.Group("/performance", middleware.RequireTeacherOrAbove())
	performance.Get("/", performanceController.List)
	performance.Get("/stats", performanceController.Stats)
	performance.Post("/", performanceController.Record)

	api.Get("/dashboard", middleware.RequireStaff(), dashboardController.Get)

	// Settings
	api.Get("/settings", middleware.RequireStaff(), settingsController.GetSettings)
	api.Put("/settings", middleware.RequireOwnerOrAdmin(), settingsController.UpdateSettings)

	// Notification management routes
	notificationRoutes := api.Group("/notifications")
	notificationRoutes.Get("/", notificationController.GetNotifications)
	notificationRoutes.Post("/", middleware.RequireOwnerOrAdmin(), notificationController.CreateNotification)
	notificationRoutes.Patch("/read-all", notificationController.MarkAllAsRead)
	notificationRoutes.Patch("/:id/read", notificationController.MarkAsRead)

	// Log management routes (Admin/Owner only)
	logs := api.Group("/logs", middleware.RequireOwnerOrAdmin())
	logs.Get("/", logController.GetLogs)
	logs.Get("/stats", logController.GetLogStats)
	logs.Get("/export", logController.ExportLogs)
	logs.Get("/archives", logController.GetArchives)
	logs.Get("/archives/:id/download", logController.DownloadArchive)
	logs.Post("/flush-cache", logController.FlushCachedLogs)
	logs.Get("/:id", logController.GetLog)

	api.Get("/ws/stats", middleware.RequireOwnerOrAdmin(), wsController.GetWebSocketStats)

	// WebSocket connection endpoint, authenticated with ?token=
	app.Get("/ws", wsController.Upgrade, wsController.WebSocketHandler())
}
