package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/semrelayhq/semrelay/internal/channel"
	"github.com/semrelayhq/semrelay/internal/conversation"
)

// TurnHandler processes one inbound message asynchronously.
type TurnHandler interface {
	HandleTurn(ctx context.Context, turn conversation.Turn) error
}

// inboundPayload is the ingress message shape.
type inboundPayload struct {
	SenderID  string `json:"sender_id" validate:"required"`
	ChannelID string `json:"channel_id" validate:"required"`
	Text      string `json:"text" validate:"required"`
}

// WebhookHandler receives the messaging vendor's webhook callbacks: a
// challenge/response verification handshake on GET and inbound messages on
// POST. POST acknowledges immediately; the turn runs asynchronously.
type WebhookHandler struct {
	logger      *slog.Logger
	turns       TurnHandler
	verifyToken string
	validate    *validator.Validate
	// baseCtx scopes async turns so shutdown cancels in-flight polling.
	baseCtx func() context.Context
	// fatal is invoked when a turn surfaces a credential-class failure.
	fatal func(error)
}

func NewWebhookHandler(log *slog.Logger, turns TurnHandler, verifyToken string) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		logger:      log.With(slog.String("handler", "webhook")),
		turns:       turns,
		verifyToken: verifyToken,
		validate:    validator.New(),
		baseCtx:     context.Background,
	}
}

// SetBaseContext installs the context governing async turn processing.
func (h *WebhookHandler) SetBaseContext(fn func() context.Context) {
	if fn != nil {
		h.baseCtx = fn
	}
}

// SetFatalFunc installs the callback for process-fatal turn errors.
func (h *WebhookHandler) SetFatalFunc(fn func(error)) {
	h.fatal = fn
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.GET("/webhook", h.Verify)
	e.POST("/webhook", h.Ingest)
}

// Verify answers the vendor's subscription handshake: the challenge is
// echoed back only when the mode is "subscribe" and the supplied token
// matches the configured secret.
func (h *WebhookHandler) Verify(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")

	if mode != "subscribe" || subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) != 1 {
		h.logger.Warn("webhook verification rejected", slog.String("mode", mode))
		return echo.NewHTTPError(http.StatusForbidden, "verification failed")
	}
	return c.String(http.StatusOK, challenge)
}

// Ingest accepts an inbound message and acknowledges it before processing.
func (h *WebhookHandler) Ingest(c echo.Context) error {
	var payload inboundPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	turn := conversation.Turn{
		SenderID:   payload.SenderID,
		Channel:    payload.ChannelID,
		Text:       payload.Text,
		ReceivedAt: time.Now().UTC(),
	}

	go h.process(turn)

	// Ack promptly regardless of downstream outcome.
	return c.JSON(http.StatusOK, map[string]string{"status": "received"})
}

func (h *WebhookHandler) process(turn conversation.Turn) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("turn panicked", slog.Any("panic", r))
		}
	}()

	err := h.turns.HandleTurn(h.baseCtx(), turn)
	if err == nil {
		return
	}
	if errors.Is(err, channel.ErrBadCredentials) {
		h.logger.Error("outbound credentials rejected, stopping process", slog.Any("error", err))
		if h.fatal != nil {
			h.fatal(err)
		}
		return
	}
	h.logger.Error("turn failed", slog.Any("error", err))
}
