// Package status реализует HTTP-обработчик чтения текущего состояния
// права доступа.
package status

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/andrmlkv/entitlement-engine/internal/http/response"
)

// SubscriptionReader отдает текущее состояние сигнала подписки.
type SubscriptionReader interface {
	IsSubscribed() bool
}

// Handler обрабатывает запросы состояния права доступа.
type Handler struct {
	log  *slog.Logger
	repo SubscriptionReader
}

// New создает новый Handler.
func New(log *slog.Logger, repo SubscriptionReader) *Handler {
	return &Handler{log: log, repo: repo}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.status"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	subscribed := h.repo.IsSubscribed()
	log.Info("entitlement status read", slog.Bool("subscribed", subscribed))

	render.JSON(w, r, response.OKWithData(map[string]any{
		"subscribed": subscribed,
	}))
}
