package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// telegramAPI is the slice of the bot API used for sending.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender delivers outbound messages through the Telegram Bot API.
// Destinations are numeric chat ids.
type TelegramSender struct {
	api    telegramAPI
	logger *slog.Logger
}

func NewTelegramSender(log *slog.Logger, token string) (*TelegramSender, error) {
	if log == nil {
		log = slog.Default()
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCredentials, err)
	}
	return &TelegramSender{
		api:    bot,
		logger: log.With(slog.String("service", "channel_telegram")),
	}, nil
}

func (s *TelegramSender) Send(_ context.Context, msg OutboundMessage) error {
	chatID, err := strconv.ParseInt(msg.Destination, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid chat id %q", ErrDeliveryFailed, msg.Destination)
	}
	if _, err := s.api.Send(tgbotapi.NewMessage(chatID, msg.Text)); err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden) {
			return fmt.Errorf("%w: %v", ErrBadCredentials, err)
		}
		s.logger.Warn("telegram send failed", slog.Int64("chat_id", chatID), slog.Any("error", err))
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return nil
}
