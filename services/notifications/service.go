package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"sktutorials_go/config"
	"sktutorials_go/database"
	"sktutorials_go/models"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Queue item stored in Redis. One item may address several roles and users
// with the same payload; the worker expands it into rows.
type queuedNotification struct {
	Roles     []string  `json:"roles,omitempty"`
	UserIDs   []uint    `json:"user_ids,omitempty"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const redisListKey = "notifications:queue"

// Notification types
const (
	TypeInfo    = "info"
	TypeWarning = "warning"
	TypeError   = "error"
	TypeSuccess = "success"
)

// WSHub is the realtime fan-out used after a notification row is stored.
type WSHub interface {
	BroadcastToUser(userID uint, message interface{})
	BroadcastToRole(role string, message interface{})
}

var defaultHub WSHub

// SetDefaultWSHub sets the hub picked up by every new Service.
func SetDefaultWSHub(h WSHub) {
	defaultHub = h
}

// Service creates notifications through the Redis queue when enabled and
// straight into the database otherwise.
type Service struct {
	db       *gorm.DB
	redis    *redis.Client
	useRedis bool
	wsHub    WSHub
}

func NewService() *Service {
	return &Service{
		db:       database.GetDB(),
		redis:    database.GetRedisClient(),
		useRedis: config.AppConfig != nil && config.AppConfig.UseRedisNotifications && database.GetRedisClient() != nil,
		wsHub:    defaultHub,
	}
}

func (s *Service) SetWebSocketHub(hub WSHub) {
	s.wsHub = hub
}

func normalizeType(t string) string {
	switch t {
	case TypeInfo, TypeWarning, TypeError, TypeSuccess:
		return t
	}
	return TypeInfo
}

// New builds a queue item. Address it with ToRoles and ToUsers.
func New(title, message, typ string, data any) queuedNotification {
	return queuedNotification{Title: title, Message: message, Type: normalizeType(typ), Data: data}
}

func (n queuedNotification) ToRoles(roles ...string) queuedNotification {
	n.Roles = append(n.Roles, roles...)
	return n
}

func (n queuedNotification) ToUsers(ids ...uint) queuedNotification {
	n.UserIDs = append(n.UserIDs, ids...)
	return n
}

// EnqueueOrCreate stores notifications using Redis queue if enabled, else direct insert.
func (s *Service) EnqueueOrCreate(n queuedNotification) error {
	if len(n.Roles) == 0 && len(n.UserIDs) == 0 {
		return errors.New("notification has no recipients")
	}
	n.CreatedAt = time.Now().UTC()

	if s.useRedis {
		b, err := json.Marshal(n)
		if err != nil {
			return err
		}
		if err = s.redis.RPush(context.Background(), redisListKey, b).Err(); err == nil {
			return nil
		}
		log.Printf("[notif] Redis queue failed, falling back to direct insert: %v", err)
	}
	return s.createDirect(n)
}

// rows expands a queue item into one row per role and per user.
func (n queuedNotification) rows() []models.Notification {
	var dataJSON models.JSON
	if n.Data != nil {
		if b, err := json.Marshal(n.Data); err == nil {
			dataJSON = b
		}
	}
	out := make([]models.Notification, 0, len(n.Roles)+len(n.UserIDs))
	for _, role := range n.Roles {
		out = append(out, models.Notification{Role: role, Title: n.Title, Message: n.Message, Type: n.Type, Data: dataJSON})
	}
	for _, uid := range n.UserIDs {
		uid := uid
		out = append(out, models.Notification{UserID: &uid, Title: n.Title, Message: n.Message, Type: n.Type, Data: dataJSON})
	}
	return out
}

func (s *Service) createDirect(n queuedNotification) error {
	notifs := n.rows()
	if len(notifs) == 0 {
		return nil
	}
	if s.db == nil {
		return errors.New("database not initialised")
	}
	if err := s.db.Create(&notifs).Error; err != nil {
		return err
	}

	if s.wsHub != nil {
		for _, notif := range notifs {
			msg := map[string]interface{}{"type": "notification", "data": notif}
			if notif.UserID != nil {
				s.wsHub.BroadcastToUser(*notif.UserID, msg)
			} else {
				s.wsHub.BroadcastToRole(notif.Role, msg)
			}
		}
	}
	return nil
}

// StartWorker polls the Redis queue every two seconds until stop closes.
func (s *Service) StartWorker(stop <-chan struct{}) {
	if !s.useRedis {
		log.Println("[notif] Redis notifications disabled; worker not started")
		return
	}
	go func() {
		log.Println("[notif] Redis notification worker started")
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		ctx := context.Background()
		for {
			select {
			case <-stop:
				log.Println("[notif] Worker stopping")
				return
			case <-ticker.C:
				s.flushBatch(ctx, 200)
			}
		}
	}()
}

func (s *Service) flushBatch(ctx context.Context, batchSize int) {
	if s.redis == nil {
		return
	}
	for i := 0; i < 5; i++ {
		vals, err := s.redis.LRange(ctx, redisListKey, 0, int64(batchSize-1)).Result()
		if err != nil || len(vals) == 0 {
			return
		}
		if err = s.redis.LTrim(ctx, redisListKey, int64(len(vals)), -1).Err(); err != nil {
			log.Printf("[notif] LTrim failed: %v", err)
		}
		for _, raw := range vals {
			var q queuedNotification
			if err := json.Unmarshal([]byte(raw), &q); err != nil {
				continue
			}
			if err := s.createDirect(q); err != nil {
				log.Printf("[notif] DB insert failed: %v", err)
			}
		}
		if len(vals) < batchSize {
			return
		}
	}
}

// Recipient identifies the reader of the inbox.
type Recipient struct {
	UserID uint
	Role   string
}

func (s *Service) inbox(r Recipient) *gorm.DB {
	return s.db.Model(&models.Notification{}).
		Where("(user_id = ? OR (user_id IS NULL AND role = ?))", r.UserID, r.Role)
}

// List returns the newest notifications visible to r.
func (s *Service) List(r Recipient, unreadOnly bool, offset, limit int) ([]models.Notification, int64, error) {
	q := s.inbox(r)
	if unreadOnly {
		q = q.Where(map[string]interface{}{"read": false})
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Notification
	err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&rows).Error
	return rows, total, err
}

// MarkRead flags one notification. Rows outside r's inbox are not found.
func (s *Service) MarkRead(r Recipient, id uint) error {
	now := time.Now()
	res := s.inbox(r).Where("id = ?", id).Updates(map[string]interface{}{"read": true, "read_at": &now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *Service) MarkAllRead(r Recipient) (int64, error) {
	now := time.Now()
	res := s.inbox(r).Updates(map[string]interface{}{"read": true, "read_at": &now})
	return res.RowsAffected, res.Error
}
