package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sktutorials_go/utils"

	"github.com/gofiber/fiber/v2"
)

const whatsAppTimeout = 10 * time.Second

// WhatsAppService posts messages to a WhatsApp gateway. The gateway accepts
// {"to": "+91...", "message": "..."} and answers 2xx on acceptance.
type WhatsAppService struct {
	endpoint string
	token    string
	timeout  time.Duration
}

func NewWhatsAppService(endpoint, token string) *WhatsAppService {
	return &WhatsAppService{
		endpoint: strings.TrimSpace(endpoint),
		token:    token,
		timeout:  whatsAppTimeout,
	}
}

type whatsAppRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

func (s *WhatsAppService) Channel() string { return ChannelWhatsApp }

func (s *WhatsAppService) Enabled() bool { return s != nil && s.endpoint != "" }

// Send normalises the phone number and posts the message.
func (s *WhatsAppService) Send(ctx context.Context, to, message string) error {
	if !s.Enabled() {
		return fmt.Errorf("WhatsApp gateway is not configured")
	}
	phone := utils.NormalizePhone(to)
	if phone == "" {
		return ErrNoRecipient
	}

	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}

	agent := fiber.Post(s.endpoint).
		Timeout(timeout).
		JSON(whatsAppRequest{To: phone, Message: message})
	if s.token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+s.token)
	}

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("WhatsApp gateway request failed: %v", errs[0])
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("WhatsApp gateway returned %d: %s", code, truncate(string(body), 200))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
