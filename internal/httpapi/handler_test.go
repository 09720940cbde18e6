package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dkoval/cartsync/internal/catalog"
	"github.com/dkoval/cartsync/internal/domain"
	"github.com/dkoval/cartsync/internal/engine"
	"github.com/dkoval/cartsync/internal/identity"
	"github.com/dkoval/cartsync/internal/localstore"
	"github.com/dkoval/cartsync/internal/remotestore"
)

type stubRemote struct{}

func (stubRemote) FetchActiveCart(context.Context, string) (*domain.Cart, error) {
	return nil, remotestore.ErrNoActiveCart
}

func (stubRemote) ReplaceCart(_ context.Context, _ string, cart *domain.Cart) (string, error) {
	return "remote-1", nil
}

func (stubRemote) MarkAbandoned(context.Context, string) error { return nil }

type stubCatalog struct{}

func (stubCatalog) Resolve(_ context.Context, productID, _ string) (*catalog.Product, error) {
	if productID == "gone" {
		return nil, catalog.ErrProductUnavailable
	}
	return &catalog.Product{Name: "Mug", UnitPrice: decimal.RequireFromString("9.99"), Slug: "mug"}, nil
}

func setupServer(t *testing.T) *httptest.Server {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	log := zaptest.NewLogger(t)
	store := localstore.NewRedisStore(client, log)

	reg := engine.NewRegistry(func(token string) *engine.Session {
		ident := identity.NewMemoryResolver(token)
		return &engine.Session{
			Engine:   engine.New(store, stubRemote{}, ident, stubCatalog{}, log, engine.Options{}),
			Identity: ident,
		}
	})
	t.Cleanup(reg.Shutdown)

	srv := httptest.NewServer(NewRouter(NewCartHandler(reg, identity.NewTokenStore(client), log)))
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, srv *httptest.Server, method, path, token, body string) (*http.Response, engine.Summary) {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("X-Session-Token", token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var sum engine.Summary
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&sum))
	}
	return resp, sum
}

func TestGetCart_MintsSessionToken(t *testing.T) {
	srv := setupServer(t)

	resp, sum := doRequest(t, srv, http.MethodGet, "/api/v1/cart", "", "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	token := resp.Header.Get("X-Session-Token")
	assert.NotEmpty(t, token)
	assert.Equal(t, token, sum.SessionToken)
	assert.Empty(t, sum.Items)
}

func TestAddItem_RoundTrip(t *testing.T) {
	srv := setupServer(t)

	resp, sum := doRequest(t, srv, http.MethodPost, "/api/v1/cart/items", "tok-1",
		`{"product_id":"sku-1","quantity":2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, sum.Items, 1)
	assert.Equal(t, 2, sum.Items[0].Quantity)
	assert.Equal(t, "Mug", sum.Items[0].Snapshot.Name)

	// Same session sees the same cart.
	resp, sum = doRequest(t, srv, http.MethodGet, "/api/v1/cart", "tok-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, sum.Totals.ItemCount)

	// A different session sees an empty one.
	resp, sum = doRequest(t, srv, http.MethodGet, "/api/v1/cart", "tok-2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, sum.Items)
}

func TestAddItem_DefaultsQuantityToOne(t *testing.T) {
	srv := setupServer(t)

	resp, sum := doRequest(t, srv, http.MethodPost, "/api/v1/cart/items", "tok-1",
		`{"product_id":"sku-1"}`)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, sum.Items, 1)
	assert.Equal(t, 1, sum.Items[0].Quantity)
}

func TestAddItem_Validation(t *testing.T) {
	srv := setupServer(t)

	resp, _ := doRequest(t, srv, http.MethodPost, "/api/v1/cart/items", "tok-1", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, srv, http.MethodPost, "/api/v1/cart/items", "tok-1", `{"quantity":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, srv, http.MethodPost, "/api/v1/cart/items", "tok-1",
		`{"product_id":"sku-1","quantity":-1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAddItem_ProductUnavailable(t *testing.T) {
	srv := setupServer(t)

	resp, _ := doRequest(t, srv, http.MethodPost, "/api/v1/cart/items", "tok-1",
		`{"product_id":"gone","quantity":1}`)

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestUpdateAndRemove(t *testing.T) {
	srv := setupServer(t)

	_, _ = doRequest(t, srv, http.MethodPost, "/api/v1/cart/items", "tok-1",
		`{"product_id":"sku-1","quantity":2}`)

	resp, sum := doRequest(t, srv, http.MethodPut, "/api/v1/cart/items/sku-1", "tok-1",
		`{"quantity":5}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, sum.Items[0].Quantity)

	resp, sum = doRequest(t, srv, http.MethodDelete, "/api/v1/cart/items/sku-1", "tok-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, sum.Items)

	resp, _ = doRequest(t, srv, http.MethodDelete, "/api/v1/cart/items/sku-1", "tok-1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClearCart(t *testing.T) {
	srv := setupServer(t)

	_, _ = doRequest(t, srv, http.MethodPost, "/api/v1/cart/items", "tok-1",
		`{"product_id":"sku-1","quantity":2}`)

	resp, sum := doRequest(t, srv, http.MethodDelete, "/api/v1/cart", "tok-1", "")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, sum.Items)
	assert.Equal(t, 0, sum.Totals.ItemCount)
}

func TestSetGuestInfo(t *testing.T) {
	srv := setupServer(t)

	resp, sum := doRequest(t, srv, http.MethodPut, "/api/v1/cart/guest", "tok-1",
		`{"email":"guest@example.com","phone":"555-0101"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "guest@example.com", sum.Guest.Email)

	resp, _ = doRequest(t, srv, http.MethodPut, "/api/v1/cart/guest", "tok-1", `{"phone":"555-0101"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestActivity(t *testing.T) {
	srv := setupServer(t)

	resp, _ := doRequest(t, srv, http.MethodPost, "/api/v1/cart/activity", "tok-1", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestConfirmCheckout(t *testing.T) {
	srv := setupServer(t)

	_, _ = doRequest(t, srv, http.MethodPost, "/api/v1/cart/items", "tok-1",
		`{"product_id":"sku-1","quantity":1}`)

	resp, sum := doRequest(t, srv, http.MethodPost, "/api/v1/cart/checkout/confirm", "tok-1", "")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, sum.Items, 1)
}

func TestIdentityHeaders_PromoteSession(t *testing.T) {
	srv := setupServer(t)

	_, _ = doRequest(t, srv, http.MethodPost, "/api/v1/cart/items", "tok-1",
		`{"product_id":"sku-1","quantity":1}`)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/cart", nil)
	require.NoError(t, err)
	req.Header.Set("X-Session-Token", "tok-1")
	req.Header.Set("X-User-ID", "user-1")
	req.Header.Set("X-Credential", "cred-1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	srv := setupServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
