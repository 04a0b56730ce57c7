package controllers

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"sktutorials_go/database"
	"sktutorials_go/models"
	"sktutorials_go/services"
	"sktutorials_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const exportLimit = 10000

type LogController struct {
	archive *services.LogArchiveService
}

func NewLogController(archive *services.LogArchiveService) *LogController {
	return &LogController{archive: archive}
}

type LogResponse struct {
	ID         uint                   `json:"id"`
	UserID     uint                   `json:"user_id"`
	Username   string                 `json:"username,omitempty"`
	Role       string                 `json:"role,omitempty"`
	Action     string                 `json:"action"`
	Resource   string                 `json:"resource"`
	ResourceID uint                   `json:"resource_id"`
	Details    map[string]interface{} `json:"details,omitempty"`
	IPAddress  string                 `json:"ip_address"`
	UserAgent  string                 `json:"user_agent"`
	CreatedAt  time.Time              `json:"created_at"`
}

type LogStats struct {
	Total      int64                 `json:"total"`
	Today      int64                 `json:"today"`
	ThisWeek   int64                 `json:"this_week"`
	ByAction   map[string]int64      `json:"by_action"`
	ByResource map[string]int64      `json:"by_resource"`
	TopUsers   []UserActivitySummary `json:"top_users"`
}

type UserActivitySummary struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Count    int64  `json:"count"`
}

func toLogResponse(l models.ActivityLog) LogResponse {
	r := LogResponse{
		ID:         l.ID,
		UserID:     l.UserID,
		Username:   l.Username,
		Role:       l.Role,
		Action:     l.Action,
		Resource:   l.Resource,
		ResourceID: l.ResourceID,
		IPAddress:  l.IPAddress,
		UserAgent:  l.UserAgent,
		CreatedAt:  l.CreatedAt,
	}
	if !l.Details.IsNull() {
		var details map[string]interface{}
		if err := json.Unmarshal(l.Details, &details); err == nil {
			r.Details = details
		}
	}
	return r
}

func logQuery(c *fiber.Ctx) *gorm.DB {
	query := database.DB.WithContext(c.UserContext()).Model(&models.ActivityLog{})
	if userID := c.Query("user_id"); userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if action := c.Query("action"); action != "" {
		query = query.Where("action = ?", action)
	}
	if resource := c.Query("resource"); resource != "" {
		query = query.Where("resource = ?", resource)
	}
	if startDate := c.Query("start_date"); startDate != "" {
		if parsedDate, err := time.Parse("2006-01-02", startDate); err == nil {
			query = query.Where("created_at >= ?", parsedDate)
		}
	}
	if endDate := c.Query("end_date"); endDate != "" {
		if parsedDate, err := time.Parse("2006-01-02", endDate); err == nil {
			query = query.Where("created_at < ?", parsedDate.Add(24*time.Hour))
		}
	}
	return query
}

// GetLogs retrieves paginated activity logs with filters
func (lc *LogController) GetLogs(c *fiber.Ctx) error {
	page, limit, offset := utils.Pagination(c, 50, 100)
	query := logQuery(c)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		logrus.WithError(err).Error("Failed to count logs")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to retrieve logs count"})
	}

	var activityLogs []models.ActivityLog
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&activityLogs).Error; err != nil {
		logrus.WithError(err).Error("Failed to retrieve logs")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to retrieve logs"})
	}

	logs := make([]LogResponse, 0, len(activityLogs))
	for _, l := range activityLogs {
		logs = append(logs, toLogResponse(l))
	}
	return c.JSON(fiber.Map{
		"logs":        logs,
		"total":       total,
		"page":        page,
		"limit":       limit,
		"total_pages": (total + int64(limit) - 1) / int64(limit),
	})
}

// GetLog returns a single log entry
func (lc *LogController) GetLog(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondFeeError(c, err)
	}
	var activityLog models.ActivityLog
	if err := database.DB.WithContext(c.UserContext()).First(&activityLog, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Log not found"})
	}
	return c.JSON(toLogResponse(activityLog))
}

func countBy(db *gorm.DB, column string) map[string]int64 {
	var rows []struct {
		GroupKey string
		Count    int64
	}
	db.Model(&models.ActivityLog{}).Select(column + " AS group_key, COUNT(*) AS count").Group(column).Scan(&rows)
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.GroupKey] = r.Count
	}
	return out
}

// GetLogStats summarises recent activity
func (lc *LogController) GetLogStats(c *fiber.Ctx) error {
	db := database.DB.WithContext(c.UserContext())
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	stats := LogStats{}
	db.Model(&models.ActivityLog{}).Count(&stats.Total)
	db.Model(&models.ActivityLog{}).Where("created_at >= ?", today).Count(&stats.Today)
	db.Model(&models.ActivityLog{}).Where("created_at >= ?", today.AddDate(0, 0, -7)).Count(&stats.ThisWeek)
	stats.ByAction = countBy(db, "action")
	stats.ByResource = countBy(db, "resource")

	db.Model(&models.ActivityLog{}).
		Select("user_id, username, COUNT(*) AS count").
		Where("user_id > 0").
		Group("user_id, username").
		Order("count DESC").
		Limit(10).
		Scan(&stats.TopUsers)

	return c.JSON(stats)
}

// ExportLogs streams matching logs as CSV
func (lc *LogController) ExportLogs(c *fiber.Ctx) error {
	var logs []models.ActivityLog
	if err := logQuery(c).Order("created_at DESC").Limit(exportLimit).Find(&logs).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to export logs"})
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{"ID", "User ID", "Username", "Role", "Action", "Resource", "Resource ID", "IP Address", "User Agent", "Created At", "Details"})
	for _, l := range logs {
		w.Write([]string{
			strconv.FormatUint(uint64(l.ID), 10),
			strconv.FormatUint(uint64(l.UserID), 10),
			l.Username,
			l.Role,
			l.Action,
			l.Resource,
			strconv.FormatUint(uint64(l.ResourceID), 10),
			l.IPAddress,
			l.UserAgent,
			l.CreatedAt.Format("2006-01-02 15:04:05"),
			string(l.Details),
		})
	}
	w.Flush()

	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, "attachment; filename=activity_logs_"+time.Now().Format("20060102_150405")+".csv")
	return c.Send(buf.Bytes())
}

// FlushCachedLogs moves queued logs from Redis into the database (Admin only)
func (lc *LogController) FlushCachedLogs(c *fiber.Ctx) error {
	if err := lc.archive.FlushCachedLogsToDatabase(); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"message": "Cached logs flushing completed"})
}

// GetArchives lists archived log files
func (lc *LogController) GetArchives(c *fiber.Ctx) error {
	archives, err := lc.archive.GetArchivedLogs()
	if err != nil {
		logrus.WithError(err).Error("Failed to list log archives")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list archives"})
	}
	return c.JSON(fiber.Map{"archives": archives})
}

// DownloadArchive streams one archive from S3
func (lc *LogController) DownloadArchive(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondFeeError(c, err)
	}
	reader, fileName, err := lc.archive.DownloadArchivedLogs(id)
	if err != nil {
		if errors.Is(err, services.ErrArchiveNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Archive not found"})
		}
		logrus.WithError(err).Error("Failed to download log archive")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Failed to download archive"})
	}
	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, "attachment; filename="+fileName)
	return c.SendStream(reader)
}
