package events

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gotest.tools/v3/assert"

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

func (stubCatalog) Resolve(context.Context, string, string) (*catalog.Product, error) {
	return &catalog.Product{Name: "Mug", UnitPrice: decimal.RequireFromString("9.99")}, nil
}

func setupConsumer(t *testing.T) (*CheckoutConsumer, *engine.Registry, localstore.Store) {
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

	consumer := &CheckoutConsumer{registry: reg, local: store, log: log}
	return consumer, reg, store
}

func TestHandleMessage_ClearsLiveSession(t *testing.T) {
	consumer, reg, _ := setupConsumer(t)
	ctx := context.Background()

	session, err := reg.Get(ctx, "tok-1")
	require.NoError(t, err)
	_, err = session.Engine.AddItem(ctx, "sku-1", "", 2)
	require.NoError(t, err)

	err = consumer.handleMessage(ctx, []byte(`{"session_token":"tok-1","user_id":"user-1"}`))
	assert.NilError(t, err)

	assert.Assert(t, session.Engine.IsEmpty())
}

func TestHandleMessage_DeletesDormantLocalRecord(t *testing.T) {
	consumer, _, store := setupConsumer(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &localstore.Record{
		SessionToken: "tok-dormant",
		Items:        []domain.CartItem{{ProductID: "sku-1", Quantity: 1}},
		Status:       domain.StatusActive,
	}))

	err := consumer.handleMessage(ctx, []byte(`{"session_token":"tok-dormant"}`))
	assert.NilError(t, err)

	assert.Assert(t, store.Load(ctx, "tok-dormant") == nil)
}

func TestHandleMessage_BadPayload(t *testing.T) {
	consumer, _, _ := setupConsumer(t)
	ctx := context.Background()

	err := consumer.handleMessage(ctx, []byte(`{not json`))
	assert.ErrorContains(t, err, "parse checkout message")

	err = consumer.handleMessage(ctx, []byte(`{"user_id":"user-1"}`))
	assert.ErrorContains(t, err, "missing session_token")
}
