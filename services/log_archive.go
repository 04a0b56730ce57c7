package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"sktutorials_go/config"
	"sktutorials_go/database"
	"sktutorials_go/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	logQueueKey        = "logs:queue"
	logFlushAge        = 5 * time.Minute
	logArchiveMinDays  = 7
	logArchiveDays     = 30
	logArchiveBatch    = 1000
	logArchiveTimezone = "2006-01-02"
)

// ErrArchiveNotFound is returned for an unknown archive id.
var ErrArchiveNotFound = errors.New("archive not found")

// LogArchiveService moves cached activity logs into the database and
// archives old rows to S3.
type LogArchiveService struct {
	redisClient *redis.Client
	awsConfig   aws.Config
	bucket      string
}

// ArchivedLog is the exported representation stored inside archives
type ArchivedLog struct {
	ID         uint           `json:"id"`
	UserID     uint           `json:"user_id"`
	Username   string         `json:"username,omitempty"`
	Role       string         `json:"role,omitempty"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID uint           `json:"resource_id"`
	Details    map[string]any `json:"details"`
	IPAddress  string         `json:"ip_address"`
	UserAgent  string         `json:"user_agent"`
	CreatedAt  time.Time      `json:"created_at"`
}

func NewLogArchiveService() *LogArchiveService {
	region, bucket := "", ""
	if config.AppConfig != nil {
		region, bucket = config.AppConfig.AWSRegion, config.AppConfig.S3BucketName
	}
	cfg, err := awscfg.LoadDefaultConfig(context.Background(), awscfg.WithRegion(region))
	if err != nil {
		logrus.WithError(err).Warn("Failed to load AWS config; S3 operations will fail until configured")
	}

	return &LogArchiveService{
		redisClient: database.GetRedisClient(),
		awsConfig:   cfg,
		bucket:      bucket,
	}
}

// FlushCachedLogsToDatabase moves queued activity logs older than a few
// minutes from Redis into the database.
func (las *LogArchiveService) FlushCachedLogsToDatabase() error {
	if las.redisClient == nil {
		return fmt.Errorf("redis client not available")
	}

	ctx := context.Background()
	cutoff := time.Now().Add(-logFlushAge)

	keys, err := las.redisClient.ZRangeByScore(ctx, logQueueKey, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil {
		return errors.Wrap(err, "failed to read log queue")
	}

	var processed, failed int
	for _, key := range keys {
		raw, err := las.redisClient.Get(ctx, key).Result()
		if err != nil {
			if err == redis.Nil {
				// expired before the flush; drop the dangling queue entry
				las.redisClient.ZRem(ctx, logQueueKey, key)
			} else {
				logrus.WithError(err).Errorf("Failed to get log data for key: %s", key)
				failed++
			}
			continue
		}

		var activityLog models.ActivityLog
		if err := json.Unmarshal([]byte(raw), &activityLog); err != nil {
			logrus.WithError(err).Errorf("Failed to unmarshal log data for key: %s", key)
			failed++
			continue
		}
		activityLog.ID = 0

		if err := database.DB.Create(&activityLog).Error; err != nil {
			logrus.WithError(err).Error("Failed to save cached log to database")
			failed++
			continue
		}

		pipe := las.redisClient.Pipeline()
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, logQueueKey, key)
		if _, err := pipe.Exec(ctx); err != nil {
			logrus.WithError(err).Errorf("Failed to remove log from cache: %s", key)
		}
		processed++
	}

	logrus.Infof("Flushed %d logs to database, %d errors", processed, failed)
	return nil
}

func toArchived(l models.ActivityLog) ArchivedLog {
	out := ArchivedLog{
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
		var details map[string]any
		if err := json.Unmarshal(l.Details, &details); err == nil {
			out.Details = details
		}
	}
	return out
}

// ArchiveOldLogs archives logs older than daysOld days to S3 and removes
// them from the database.
func (las *LogArchiveService) ArchiveOldLogs(daysOld int) error {
	if daysOld < logArchiveMinDays {
		return fmt.Errorf("minimum archive age is %d days", logArchiveMinDays)
	}
	cutoff := time.Now().AddDate(0, 0, -daysOld)

	var archived []ArchivedLog
	var ids []uint
	var lastID uint
	for {
		var batch []models.ActivityLog
		err := database.DB.
			Where("created_at < ? AND id > ?", cutoff, lastID).
			Order("id ASC").
			Limit(logArchiveBatch).
			Find(&batch).Error
		if err != nil {
			return errors.Wrap(err, "failed to fetch logs for archiving")
		}
		if len(batch) == 0 {
			break
		}
		for _, l := range batch {
			archived = append(archived, toArchived(l))
			ids = append(ids, l.ID)
		}
		lastID = batch[len(batch)-1].ID
	}

	if len(archived) == 0 {
		logrus.Info("No logs to archive")
		return nil
	}
	logrus.Infof("Archiving %d logs older than %s", len(archived), cutoff.Format(logArchiveTimezone))

	fileName := fmt.Sprintf("activity_logs_%s.zip", cutoff.Format(logArchiveTimezone))
	buf, err := createZipArchive(archived, fileName, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "failed to create ZIP archive")
	}

	key := fmt.Sprintf("logs/archived/%d/%02d/%s", cutoff.Year(), cutoff.Month(), fileName)
	meta := models.LogArchive{
		FileName:    fileName,
		S3Key:       key,
		StartDate:   archived[0].CreatedAt,
		EndDate:     cutoff,
		RecordCount: len(archived),
		FileSize:    int64(buf.Len()),
		Status:      "pending",
	}

	if err := las.uploadToS3(key, buf); err != nil {
		meta.Status, meta.Error = "failed", err.Error()
		database.DB.Create(&meta)
		return errors.Wrap(err, "failed to upload archive to S3")
	}
	logrus.Infof("Uploaded archive to S3: %s", key)

	return database.DB.Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(ids); start += logArchiveBatch {
			end := start + logArchiveBatch
			if end > len(ids) {
				end = len(ids)
			}
			if err := tx.Unscoped().Where("id IN ?", ids[start:end]).Delete(&models.ActivityLog{}).Error; err != nil {
				return errors.Wrap(err, "failed to delete archived logs")
			}
		}
		meta.Status = "completed"
		return tx.Create(&meta).Error
	})
}

// createZipArchive packs logs as JSON and CSV plus a metadata file.
func createZipArchive(logs []ArchivedLog, fileName string, now time.Time) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	logsFile, err := zw.Create("activity_logs.json")
	if err != nil {
		return nil, err
	}
	enc := json.NewEncoder(logsFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{
		"export_date":    now,
		"record_count":   len(logs),
		"format_version": "1.0",
		"logs":           logs,
	}); err != nil {
		return nil, errors.Wrap(err, "encode logs")
	}

	metaFile, err := zw.Create("metadata.json")
	if err != nil {
		return nil, err
	}
	if err := json.NewEncoder(metaFile).Encode(map[string]any{
		"file_name":    fileName,
		"created_at":   now,
		"record_count": len(logs),
		"date_range": map[string]any{
			"start": logs[0].CreatedAt,
			"end":   logs[len(logs)-1].CreatedAt,
		},
		"schema_version": "1.0",
		"description":    "Activity logs archive",
	}); err != nil {
		return nil, errors.Wrap(err, "encode metadata")
	}

	csvFile, err := zw.Create("activity_logs.csv")
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(csvFile)
	w.Write([]string{"ID", "User ID", "Username", "Role", "Action", "Resource", "Resource ID", "IP Address", "User Agent", "Created At", "Details"})
	for _, l := range logs {
		details := ""
		if l.Details != nil {
			if b, err := json.Marshal(l.Details); err == nil {
				details = string(b)
			}
		}
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
			details,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.Wrap(err, "write csv")
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf, nil
}

func (las *LogArchiveService) uploadToS3(key string, data *bytes.Buffer) error {
	if las.awsConfig.Region == "" || las.bucket == "" {
		return fmt.Errorf("AWS not configured")
	}

	client := s3.NewFromConfig(las.awsConfig)
	_, err := client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket:      aws.String(las.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data.Bytes()),
		ContentType: aws.String("application/zip"),
	})
	return err
}

func (las *LogArchiveService) downloadFromS3(key string) (io.ReadCloser, error) {
	if las.awsConfig.Region == "" || las.bucket == "" {
		return nil, fmt.Errorf("AWS not configured")
	}

	client := s3.NewFromConfig(las.awsConfig)
	result, err := client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(las.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	return result.Body, nil
}

// GetArchivedLogs lists archive records, newest first.
func (las *LogArchiveService) GetArchivedLogs() ([]models.LogArchive, error) {
	var archives []models.LogArchive
	if err := database.DB.Order("created_at DESC").Find(&archives).Error; err != nil {
		return nil, errors.Wrap(err, "failed to retrieve archived logs")
	}
	return archives, nil
}

// DownloadArchivedLogs opens a stored archive.
func (las *LogArchiveService) DownloadArchivedLogs(archiveID uint) (io.ReadCloser, string, error) {
	var archive models.LogArchive
	if err := database.DB.First(&archive, archiveID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrArchiveNotFound
		}
		return nil, "", errors.Wrap(err, "failed to retrieve archive")
	}

	reader, err := las.downloadFromS3(archive.S3Key)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to download archive from S3")
	}
	return reader, archive.FileName, nil
}

// RunMaintenance flushes the Redis log queue then archives month-old rows.
func (las *LogArchiveService) RunMaintenance() {
	if err := las.FlushCachedLogsToDatabase(); err != nil {
		logrus.WithError(err).Debug("FlushCachedLogsToDatabase skipped")
	}
	if err := las.ArchiveOldLogs(logArchiveDays); err != nil {
		logrus.WithError(err).Warn("ArchiveOldLogs failed")
	}
}
