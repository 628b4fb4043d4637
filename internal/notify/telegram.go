// Package notify delivers streak reminders through a Telegram bot
package notify

import (
	"context"
	"fmt"

	"github.com/example/learnsync/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the part of the bot API used to deliver messages
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends reminders to linked chats
type Telegram struct {
	api Sender
}

// NewTelegram connects to the bot API with token
func NewTelegram(token string) (*Telegram, error) {
	botAPI, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	return &Telegram{api: botAPI}, nil
}

// NewTelegramWithSender wraps an existing sender
func NewTelegramWithSender(s Sender) *Telegram {
	return &Telegram{api: s}
}

// SendStreakReminder tells the learner their streak ends today
func (t *Telegram) SendStreakReminder(ctx context.Context, target models.ReminderTarget) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(target.ChatID, ReminderText(target.StreakCount))
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send reminder to chat %d: %w", target.ChatID, err)
	}
	return nil
}

// ReminderText is the reminder body for a streak of count days
func ReminderText(count int) string {
	dayForm := "days"
	if count == 1 {
		dayForm = "day"
	}
	return fmt.Sprintf("Your %d %s streak ends at midnight! Practice one word today to keep it going.", count, dayForm)
}
