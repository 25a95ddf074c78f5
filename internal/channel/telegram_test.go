package channel

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeTelegramAPI struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeTelegramAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func newTestTelegramSender(api telegramAPI) *TelegramSender {
	return &TelegramSender{api: api, logger: slog.Default()}
}

func TestTelegramSenderDelivers(t *testing.T) {
	api := &fakeTelegramAPI{}
	s := newTestTelegramSender(api)

	err := s.Send(context.Background(), OutboundMessage{Destination: "123456", Text: "hello"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(api.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(api.sent))
	}
	msg, ok := api.sent[0].(tgbotapi.MessageConfig)
	if !ok || msg.ChatID != 123456 || msg.Text != "hello" {
		t.Fatalf("unexpected outgoing message: %#v", api.sent[0])
	}
}

func TestTelegramSenderRejectsNonNumericChat(t *testing.T) {
	s := newTestTelegramSender(&fakeTelegramAPI{})

	err := s.Send(context.Background(), OutboundMessage{Destination: "not-a-chat", Text: "hi"})
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
}

func TestTelegramSenderClassifiesCredentialFailure(t *testing.T) {
	api := &fakeTelegramAPI{err: &tgbotapi.Error{Code: 401, Message: "Unauthorized"}}
	s := newTestTelegramSender(api)

	err := s.Send(context.Background(), OutboundMessage{Destination: "123456", Text: "hi"})
	if !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
}

func TestTelegramSenderClassifiesTransientFailure(t *testing.T) {
	api := &fakeTelegramAPI{err: &tgbotapi.Error{Code: 429, Message: "Too Many Requests"}}
	s := newTestTelegramSender(api)

	err := s.Send(context.Background(), OutboundMessage{Destination: "123456", Text: "hi"})
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
}
