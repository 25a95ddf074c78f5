package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Counter reports the size of a backing store.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

type statsResponse struct {
	IdentityRecords int64 `json:"identity_records"`
	CacheEntries    int64 `json:"cache_entries"`
}

// AdminHandler exposes read-only operational state. Destructive resets are
// deliberately not routed here; they exist only as operator CLI commands.
type AdminHandler struct {
	logger     *slog.Logger
	identities Counter
	cache      Counter
}

func NewAdminHandler(log *slog.Logger, identities, cache Counter) *AdminHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AdminHandler{
		logger:     log.With(slog.String("handler", "admin")),
		identities: identities,
		cache:      cache,
	}
}

func (h *AdminHandler) Register(e *echo.Echo) {
	e.GET("/admin/stats", h.Stats)
}

func (h *AdminHandler) Stats(c echo.Context) error {
	ctx := c.Request().Context()
	users, err := h.identities.Count(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	entries, err := h.cache.Count(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, statsResponse{IdentityRecords: users, CacheEntries: entries})
}
