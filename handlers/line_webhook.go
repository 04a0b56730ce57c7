package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"sktutorials_go/models"
	"sktutorials_go/services"

	"github.com/gofiber/fiber/v2"
	"github.com/line/line-bot-sdk-go/linebot"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	followReply   = "Welcome to SK Tutorials! Reply with the phone number registered at the institute to receive fee reminders here."
	linkedReply   = "Thanks %s, fee reminders will now be sent to this chat."
	unknownReply  = "We could not find a student with that phone number. Please check it or contact the office."
	eventDeadline = 30 * time.Second
)

var phonePattern = regexp.MustCompile(`\+?\d[\d\s-]{8,}\d`)

// PhoneLinker attaches a LINE user to the student registered with phone.
type PhoneLinker interface {
	LinkLineUser(ctx context.Context, phone, lineUserID string) (*models.Student, error)
}

type LineWebhookHandler struct {
	DB       *gorm.DB
	Bot      *linebot.Client
	secret   string
	students PhoneLinker
	reply    func(token, text string) error
}

// NewLineWebhookHandler shares the bot client of the messaging service. With
// no client the webhook acknowledges events and ignores them.
func NewLineWebhookHandler(db *gorm.DB, secret string, line *services.LineMessagingService, students PhoneLinker) *LineWebhookHandler {
	h := &LineWebhookHandler{DB: db, secret: secret, students: students}
	if line != nil && line.Enabled() {
		h.Bot = line.Bot
		h.reply = func(token, text string) error {
			_, err := h.Bot.ReplyMessage(token, linebot.NewTextMessage(text)).Do()
			return err
		}
	} else {
		logrus.Warn("LINE credentials missing: webhook events will be ignored")
	}
	return h
}

// Handle verifies the signature, answers 200 straight away and processes the
// events in the background.
func (h *LineWebhookHandler) Handle(c *fiber.Ctx) error {
	if h.Bot == nil {
		return c.SendStatus(fiber.StatusOK)
	}

	signature := c.Get("X-Line-Signature")
	if signature == "" {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	if !validateSignature(h.secret, c.Body(), signature) {
		logrus.WithField("ip", c.IP()).Warn("LINE webhook signature mismatch")
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	// fasthttp reuses the body buffer after the handler returns
	body := append([]byte(nil), c.Body()...)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithField("panic", r).Error("panic recovered in LINE webhook")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), eventDeadline)
		defer cancel()
		if err := h.processEvents(ctx, body); err != nil {
			logrus.WithError(err).Error("Failed to process LINE webhook")
		}
	}()
	return c.SendStatus(fiber.StatusOK)
}

func (h *LineWebhookHandler) processEvents(ctx context.Context, body []byte) error {
	var webhook struct {
		Events []*linebot.Event `json:"events"`
	}
	if err := json.Unmarshal(body, &webhook); err != nil {
		return fmt.Errorf("parse events: %w", err)
	}

	for _, event := range webhook.Events {
		if event.Source == nil {
			continue
		}
		switch event.Type {
		case linebot.EventTypeJoin:
			h.groupJoined(event.Source.GroupID)
		case linebot.EventTypeLeave:
			h.groupLeft(event.Source.GroupID)
		case linebot.EventTypeFollow:
			h.send(event.ReplyToken, followReply)
		case linebot.EventTypeMessage:
			msg, ok := event.Message.(*linebot.TextMessage)
			if !ok || event.Source.Type != linebot.EventSourceTypeUser {
				continue
			}
			h.linkPhone(ctx, event.Source.UserID, event.ReplyToken, msg.Text)
		}
	}
	return nil
}

// linkPhone looks for a phone number in a direct message and links the
// sender to that student.
func (h *LineWebhookHandler) linkPhone(ctx context.Context, userID, replyToken, text string) {
	phone := phonePattern.FindString(text)
	if phone == "" || h.students == nil {
		return
	}
	student, err := h.students.LinkLineUser(ctx, phone, userID)
	switch {
	case err == nil:
		logrus.WithFields(logrus.Fields{"student_id": student.ID, "line_user_id": userID}).Info("LINE user linked to student")
		h.send(replyToken, fmt.Sprintf(linkedReply, student.Name))
	case errors.Is(err, services.ErrPhoneNotRegistered):
		h.send(replyToken, unknownReply)
	default:
		logrus.WithError(err).WithField("line_user_id", userID).Error("Failed to link LINE user")
	}
}

func (h *LineWebhookHandler) send(token, text string) {
	if h.reply == nil || token == "" {
		return
	}
	if err := h.reply(token, text); err != nil {
		logrus.WithError(err).Warn("LINE reply failed")
	}
}

func (h *LineWebhookHandler) groupJoined(groupID string) {
	if groupID == "" || h.DB == nil {
		return
	}
	name := groupID
	if h.Bot != nil {
		if summary, err := h.Bot.GetGroupSummary(groupID).Do(); err == nil {
			name = summary.GroupName
		} else {
			logrus.WithError(err).WithField("group_id", groupID).Warn("Failed to get LINE group summary")
		}
	}

	var group models.LineGroup
	err := h.DB.Where("group_id = ?", groupID).First(&group).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		logrus.WithError(err).Error("Failed to look up LINE group")
		return
	}
	group.GroupID = groupID
	group.GroupName = name
	group.IsActive = true
	group.LastJoinedAt = time.Now()
	group.LastLeftAt = nil
	if err := h.DB.Save(&group).Error; err != nil {
		logrus.WithError(err).Error("Failed to save LINE group")
		return
	}
	logrus.WithFields(logrus.Fields{"group_id": groupID, "group_name": name}).Info("Bot joined LINE group")
}

func (h *LineWebhookHandler) groupLeft(groupID string) {
	if groupID == "" || h.DB == nil {
		return
	}
	now := time.Now()
	res := h.DB.Model(&models.LineGroup{}).Where("group_id = ?", groupID).
		Updates(map[string]interface{}{"is_active": false, "last_left_at": now})
	if res.Error != nil {
		logrus.WithError(res.Error).Error("Failed to update LINE group leave info")
		return
	}
	if res.RowsAffected == 0 {
		logrus.WithField("group_id", groupID).Warn("Leave event for unknown LINE group")
	}
}

func computeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func validateSignature(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(signature), []byte(computeSignature(secret, body)))
}
