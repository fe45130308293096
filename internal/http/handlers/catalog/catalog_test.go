package catalog_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrmlkv/entitlement-engine/internal/http/handlers/catalog"
	"github.com/andrmlkv/entitlement-engine/internal/kvstore"
	"github.com/andrmlkv/entitlement-engine/internal/mockbilling"
	"github.com/andrmlkv/entitlement-engine/internal/models"
)

func newRouter(t *testing.T) (chi.Router, *mockbilling.BillingStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	store := mockbilling.NewStore(kvstore.NewMemory())

	r := chi.NewRouter()
	r.Post("/products", catalog.NewAdd(logger, store).ServeHTTP)
	r.Delete("/products/{id}", catalog.NewRemove(logger, store).ServeHTTP)
	return r, store
}

func TestCatalog_AddProduct(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "успешное добавление товара",
			body:           `{"product_id":"sub1","kind":"subs","price":"$4.99","trial_period":"P7D","billing_period":"P1M"}`,
			expectedStatus: http.StatusOK,
			expectedBody:   `"status":"OK"`,
		},
		{
			name:           "некорректный JSON",
			body:           `{`,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"error":"invalid request body"`,
		},
		{
			name:           "отсутствует идентификатор",
			body:           `{"kind":"subs"}`,
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `field ID is a required field`,
		},
		{
			name:           "неизвестный тип товара",
			body:           `{"product_id":"sub1","kind":"bogus"}`,
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `field Kind has an unsupported value`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newRouter(t)

			req := httptest.NewRequest(http.MethodPost, "/products", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.expectedBody)
		})
	}
}

func TestCatalog_RemoveProduct(t *testing.T) {
	router, store := newRouter(t)
	ctx := context.Background()

	require.NoError(t, store.AddProduct(ctx, models.ProductDescriptor{
		ID:   "sub1",
		Kind: models.KindSubscription,
	}))

	req := httptest.NewRequest(http.MethodDelete, "/products/sub1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"OK"`)

	got, err := store.GetProductDescriptors(ctx, []string{"sub1"}, models.KindSubscription)
	require.NoError(t, err)
	assert.Empty(t, got)
}
