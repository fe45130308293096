// Package purchase реализует HTTP-обработчик запуска потока покупки
// подписочного товара. Итог покупки приходит асинхронно через поток
// обновлений провайдера, поэтому обработчик лишь подтверждает запуск.
package purchase

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/andrmlkv/entitlement-engine/internal/http/response"
	"github.com/andrmlkv/entitlement-engine/internal/lib/sl"
)

// Request тело запроса на запуск потока покупки.
type Request struct {
	ProductID string `json:"product_id" validate:"required"`
}

// PurchaseInitiator запускает поток покупки при живом соединении.
type PurchaseInitiator interface {
	InitiatePurchase(productID string)
}

// Handler обрабатывает запросы на покупку.
type Handler struct {
	log      *slog.Logger
	manager  PurchaseInitiator
	validate *validator.Validate
}

// New создает новый Handler.
func New(log *slog.Logger, manager PurchaseInitiator) *Handler {
	return &Handler{
		log:      log,
		manager:  manager,
		validate: validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.purchase"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	h.manager.InitiatePurchase(req.ProductID)
	log.Info("purchase flow initiated", slog.String("product_id", req.ProductID))

	w.WriteHeader(http.StatusAccepted)
	render.JSON(w, r, response.OKWithData(map[string]any{
		"product_id": req.ProductID,
	}))
}
