package storage

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"sktutorials_go/config"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
)

// StorageService keeps uploaded source files (payment imports) in S3.
type StorageService struct {
	s3Client *s3.S3
	bucket   string
	region   string
}

func NewStorageService() (*StorageService, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(config.AppConfig.AWSRegion),
		Credentials: credentials.NewStaticCredentials(
			config.AppConfig.AWSAccessKeyID,
			config.AppConfig.AWSSecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %v", err)
	}

	return &StorageService{
		s3Client: s3.New(sess),
		bucket:   config.AppConfig.S3BucketName,
		region:   config.AppConfig.AWSRegion,
	}, nil
}

// ObjectKey lays out folder/<user>/yyyy/mm/dd/<id>.<ext>.
func ObjectKey(folder string, userID uint, filename string, now time.Time) string {
	ext := FileExtension(filename)
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s/%d/%d/%02d/%02d/%s.%s",
		folder,
		userID,
		now.Year(),
		now.Month(),
		now.Day(),
		uuid.New().String()[:16],
		ext,
	)
}

// UploadBytes stores a private object and returns its key.
func (s *StorageService) UploadBytes(data []byte, folder string, userID uint, filename string) (string, error) {
	key := ObjectKey(folder, userID, filename, time.Now())
	_, err := s.s3Client.PutObject(&s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(ContentType(FileExtension(filename))),
		Metadata: map[string]*string{
			"original-filename": aws.String(filepath.Base(filename)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %v", err)
	}
	return key, nil
}

// FileExtension returns the lower-case extension without the dot.
func FileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 1 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// ContentType returns the MIME type for the file extension
func ContentType(extension string) string {
	switch strings.ToLower(extension) {
	case "csv":
		return "text/csv"
	case "xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "zip":
		return "application/zip"
	case "json":
		return "application/json"
	case "pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
