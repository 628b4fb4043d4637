package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/example/learnsync/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (s *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if s.err != nil {
		return tgbotapi.Message{}, s.err
	}
	s.sent = append(s.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func TestSendStreakReminder(t *testing.T) {
	s := &recordingSender{}
	n := NewTelegramWithSender(s)

	err := n.SendStreakReminder(context.Background(), models.ReminderTarget{UserID: "u1", ChatID: 42, StreakCount: 6})
	require.NoError(t, err)
	require.Len(t, s.sent, 1)
	assert.Equal(t, int64(42), s.sent[0].ChatID)
	assert.Contains(t, s.sent[0].Text, "6 days")
}

func TestSendStreakReminderError(t *testing.T) {
	n := NewTelegramWithSender(&recordingSender{err: errors.New("Forbidden: bot was blocked by the user")})
	err := n.SendStreakReminder(context.Background(), models.ReminderTarget{ChatID: 42, StreakCount: 1})
	assert.ErrorContains(t, err, "chat 42")
}

func TestReminderText(t *testing.T) {
	assert.Contains(t, ReminderText(1), "1 day streak")
	assert.Contains(t, ReminderText(3), "3 days streak")
}
