package notify

import (
	"context"
	"fmt"

	"mathchrono-quiz-service/internal/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotSender is the part of *tgbotapi.BotAPI used for announcements.
type BotSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts every stored result to an organiser chat.
type Telegram struct {
	bot    BotSender
	chatID int64
}

// NewTelegramBot connects to the Bot API with token.
func NewTelegramBot(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return NewTelegram(bot, chatID), nil
}

func NewTelegram(bot BotSender, chatID int64) *Telegram {
	return &Telegram{bot: bot, chatID: chatID}
}

func (t *Telegram) NotifyResult(ctx context.Context, result domain.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text := fmt.Sprintf("Quiz result\nTeam: %s\nParticipant: %s\nGrade: %s\nScore: %d",
		result.TeamName, result.ParticipantID, result.Grade, result.Score)
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
