package services

import (
	"context"
	"fmt"
	"log"

	"github.com/line/line-bot-sdk-go/linebot"
)

// LineMessagingService pushes text messages through the LINE Messaging API.
// Recipients are user ids of followers or group ids of staff chats.
type LineMessagingService struct {
	Bot *linebot.Client
}

// NewLineMessagingService returns a disabled service when credentials are missing.
func NewLineMessagingService(channelSecret, channelToken string) *LineMessagingService {
	if channelSecret == "" || channelToken == "" {
		log.Println("LINE Messaging API disabled: missing LINE_CHANNEL_SECRET or LINE_CHANNEL_ACCESS_TOKEN")
		return &LineMessagingService{Bot: nil}
	}

	bot, err := linebot.New(channelSecret, channelToken)
	if err != nil {
		log.Printf("Cannot create LINE bot client: %v", err)
		return &LineMessagingService{Bot: nil}
	}
	return &LineMessagingService{Bot: bot}
}

func (s *LineMessagingService) Channel() string { return ChannelLine }

func (s *LineMessagingService) Enabled() bool { return s != nil && s.Bot != nil }

// Send pushes message to a LINE user or group id.
func (s *LineMessagingService) Send(ctx context.Context, to, message string) error {
	if s.Bot == nil {
		return fmt.Errorf("LINE Bot client is not initialized")
	}
	if to == "" {
		return ErrNoRecipient
	}
	if _, err := s.Bot.PushMessage(to, linebot.NewTextMessage(message)).WithContext(ctx).Do(); err != nil {
		return fmt.Errorf("LINE Messaging API failed: %v", err)
	}
	return nil
}
