// Package catalog реализует HTTP-обработчики управления каталогом
// мок-провайдера: добавление и удаление товаров.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/andrmlkv/entitlement-engine/internal/http/response"
	"github.com/andrmlkv/entitlement-engine/internal/lib/sl"
	"github.com/andrmlkv/entitlement-engine/internal/models"
)

// Store описывает операции каталога мок-провайдера.
type Store interface {
	AddProduct(ctx context.Context, d models.ProductDescriptor) error
	RemoveProduct(ctx context.Context, id string) error
}

// AddHandler обрабатывает добавление товара в каталог.
type AddHandler struct {
	log   *slog.Logger
	store Store
}

// NewAdd создает AddHandler.
func NewAdd(log *slog.Logger, store Store) *AddHandler {
	return &AddHandler{log: log, store: store}
}

func (h *AddHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.catalog.add"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.ProductDescriptor
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.store.AddProduct(r.Context(), req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			log.Error("validation failed", sl.Err(err))
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.ValidationError(verrs))
			return
		}
		log.Error("failed to add product", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not add product"))
		return
	}

	log.Info("product added", slog.String("product_id", req.ID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"product_id": req.ID,
	}))
}

// RemoveHandler обрабатывает удаление товара из каталога.
type RemoveHandler struct {
	log   *slog.Logger
	store Store
}

// NewRemove создает RemoveHandler.
func NewRemove(log *slog.Logger, store Store) *RemoveHandler {
	return &RemoveHandler{log: log, store: store}
}

func (h *RemoveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.catalog.remove"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id := chi.URLParam(r, "id")
	if id == "" {
		log.Error("product id missing in url")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("product id is required"))
		return
	}

	if err := h.store.RemoveProduct(r.Context(), id); err != nil {
		log.Error("failed to remove product", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not remove product"))
		return
	}

	log.Info("product removed", slog.String("product_id", id))
	render.JSON(w, r, response.OK())
}
