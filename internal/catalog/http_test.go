package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/sku-1", r.URL.Path)
		assert.Equal(t, "red", r.URL.Query().Get("variant"))
		json.NewEncoder(w).Encode(map[string]any{
			"name":              "Shirt",
			"unit_price":        "24.90",
			"slug":              "shirt",
			"short_description": "A shirt",
		})
	}))
	defer srv.Close()

	resolver := NewHTTPResolver(srv.URL)
	product, err := resolver.Resolve(context.Background(), "sku-1", "red")

	require.NoError(t, err)
	assert.Equal(t, "Shirt", product.Name)
	assert.True(t, product.UnitPrice.Equal(decimal.RequireFromString("24.90")))
	assert.Equal(t, "shirt", product.Slug)
}

func TestResolve_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	resolver := NewHTTPResolver(srv.URL)
	_, err := resolver.Resolve(context.Background(), "gone", "")

	assert.ErrorIs(t, err, ErrProductUnavailable)
}

func TestResolve_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	resolver := NewHTTPResolver(srv.URL)
	_, err := resolver.Resolve(context.Background(), "sku-1", "")

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrProductUnavailable)
}
