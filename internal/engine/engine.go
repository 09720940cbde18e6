// Package engine owns the in-memory cart for one session and keeps it
// consistent across the local and remote persistence tiers. All cart access
// goes through its operations; nothing else reads or writes items directly.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dkoval/cartsync/internal/catalog"
	"github.com/dkoval/cartsync/internal/domain"
	"github.com/dkoval/cartsync/internal/identity"
	"github.com/dkoval/cartsync/internal/localstore"
	"github.com/dkoval/cartsync/internal/remotestore"
)

var (
	ErrItemNotFound    = errors.New("item not found in cart")
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
)

const (
	DefaultAutosaveInterval = 30 * time.Second
	DefaultIdleTimeout      = 2 * time.Hour
)

// Summary is the synchronous snapshot read exposed to the surrounding
// system. PendingRemoteSave reports whether a scheduled remote write has not
// been confirmed yet; the in-memory values are correct either way.
type Summary struct {
	ID                string            `json:"id,omitempty"`
	SessionToken      string            `json:"session_token"`
	Items             []domain.CartItem `json:"items"`
	Totals            domain.CartTotals `json:"totals"`
	Guest             domain.GuestInfo  `json:"guest_info"`
	Status            domain.Status     `json:"status"`
	PendingRemoteSave bool              `json:"pending_remote_save"`
}

// EventSink receives lifecycle events the engine emits for downstream
// processes (abandoned-cart recovery).
type EventSink interface {
	CartAbandoned(ctx context.Context, cart *domain.Cart)
}

type nopSink struct{}

func (nopSink) CartAbandoned(context.Context, *domain.Cart) {}

type Options struct {
	AutosaveInterval time.Duration
	IdleTimeout      time.Duration
	Events           EventSink
}

func (o *Options) withDefaults() {
	if o.AutosaveInterval <= 0 {
		o.AutosaveInterval = DefaultAutosaveInterval
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	if o.Events == nil {
		o.Events = nopSink{}
	}
}

type saveReq struct {
	cart *domain.Cart
	seq  uint64
}

type Engine struct {
	local   localstore.Store
	remote  remotestore.Store
	ident   identity.Resolver
	catalog catalog.Resolver
	opts    Options
	log     *zap.Logger

	mu   sync.Mutex
	cart *domain.Cart

	subsMu  sync.Mutex
	subs    map[int]func(Summary)
	nextSub int

	// Remote persistence is conflated: a newer snapshot displaces an
	// undelivered older one, so a slow save never writes stale state.
	saveCh       chan saveReq
	scheduledSeq atomic.Uint64
	savedSeq     atomic.Uint64

	activityCh       chan struct{}
	cancelIdentWatch func()

	runCtxMu sync.Mutex
	runCtx   context.Context
}

func New(local localstore.Store, remote remotestore.Store, ident identity.Resolver,
	cat catalog.Resolver, log *zap.Logger, opts Options) *Engine {
	opts.withDefaults()
	return &Engine{
		local:      local,
		remote:     remote,
		ident:      ident,
		catalog:    cat,
		opts:       opts,
		log:        log,
		subs:       make(map[int]func(Summary)),
		saveCh:     make(chan saveReq, 1),
		activityCh: make(chan struct{}, 1),
	}
}

// Init resolves identity and materializes the cart: the remote active cart
// reconciled with whatever is stored locally when the user is identified,
// otherwise the local record alone. Remote failures degrade to local state
// and are retried by autosave; Init itself never fails on them.
func (e *Engine) Init(ctx context.Context) {
	ident := e.ident.Current()
	cart := e.loadLocal(ctx, ident.SessionToken)

	if ident.IsUser() {
		cart = e.reconcileWithRemote(ctx, ident, cart)
	}

	e.mu.Lock()
	e.cart = cart
	e.mu.Unlock()

	e.cancelIdentWatch = e.ident.Subscribe(e.onIdentityChange)
}

func (e *Engine) loadLocal(ctx context.Context, sessionToken string) *domain.Cart {
	rec := e.local.Load(ctx, sessionToken)
	if rec == nil {
		return domain.NewCart(sessionToken)
	}

	cart := domain.NewCart(sessionToken)
	cart.Items = rec.Items
	cart.Guest = rec.Guest
	if rec.Status == domain.StatusAbandoned {
		cart.Status = domain.StatusAbandoned
	}
	for i := range cart.Items {
		cart.Items[i].LineTotal = domain.LineTotalFor(cart.Items[i])
	}
	cart.Totals = domain.ComputeTotals(cart.Items)
	cart.UpdatedAt = rec.UpdatedAt
	return cart
}

// AddItem resolves the product, snapshots its display data, and appends a
// new line or increments the quantity of the existing one.
func (e *Engine) AddItem(ctx context.Context, productID, variantID string, quantity int) (Summary, error) {
	if quantity <= 0 {
		return Summary{}, ErrInvalidQuantity
	}
	if productID == "" {
		return Summary{}, fmt.Errorf("product id is required")
	}

	// Resolved before taking the lock: catalog calls are network I/O and
	// happen at most once per add.
	product, err := e.catalog.Resolve(ctx, productID, variantID)
	if err != nil {
		if errors.Is(err, catalog.ErrProductUnavailable) {
			return Summary{}, catalog.ErrProductUnavailable
		}
		return Summary{}, fmt.Errorf("resolve product %s: %w", productID, err)
	}

	return e.commit(ctx, func(c *domain.Cart) error {
		key := domain.ItemKey{ProductID: productID, VariantID: variantID}
		if i := c.FindItem(key); i >= 0 {
			c.Items[i].Quantity += quantity
			return nil
		}
		c.Items = append(c.Items, domain.CartItem{
			ProductID: productID,
			VariantID: variantID,
			Quantity:  quantity,
			UnitPrice: product.UnitPrice,
			Snapshot: domain.ProductSnapshot{
				Name:             product.Name,
				ImageRef:         product.ImageRef,
				Slug:             product.Slug,
				ShortDescription: product.ShortDescription,
			},
			AddedAt: time.Now(),
		})
		return nil
	})
}

// UpdateQuantity sets the line's quantity; a non-positive quantity removes
// the line instead.
func (e *Engine) UpdateQuantity(ctx context.Context, productID, variantID string, quantity int) (Summary, error) {
	if quantity <= 0 {
		return e.RemoveItem(ctx, productID, variantID)
	}

	return e.commit(ctx, func(c *domain.Cart) error {
		i := c.FindItem(domain.ItemKey{ProductID: productID, VariantID: variantID})
		if i < 0 {
			return ErrItemNotFound
		}
		c.Items[i].Quantity = quantity
		return nil
	})
}

func (e *Engine) RemoveItem(ctx context.Context, productID, variantID string) (Summary, error) {
	return e.commit(ctx, func(c *domain.Cart) error {
		i := c.FindItem(domain.ItemKey{ProductID: productID, VariantID: variantID})
		if i < 0 {
			return ErrItemNotFound
		}
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
		return nil
	})
}

// Clear empties the items and keeps id, session token and guest info.
func (e *Engine) Clear(ctx context.Context) (Summary, error) {
	return e.commit(ctx, func(c *domain.Cart) error {
		c.Items = c.Items[:0]
		return nil
	})
}

// SetGuestInfo is a pure metadata update, allowed in any identity state.
func (e *Engine) SetGuestInfo(ctx context.Context, email, phone string) (Summary, error) {
	return e.commit(ctx, func(c *domain.Cart) error {
		c.Guest = domain.GuestInfo{Email: email, Phone: phone}
		return nil
	})
}

// commit runs the mutation pipeline: apply, recompute totals, persist
// locally (synchronous), schedule the remote save, notify subscribers. A
// mutation on an abandoned cart reactivates it first.
func (e *Engine) commit(ctx context.Context, mutate func(*domain.Cart) error) (Summary, error) {
	e.mu.Lock()
	c := e.cart
	if err := mutate(c); err != nil {
		e.mu.Unlock()
		return Summary{}, err
	}
	c.Status = domain.StatusActive
	for i := range c.Items {
		c.Items[i].LineTotal = domain.LineTotalFor(c.Items[i])
	}
	c.Totals = domain.ComputeTotals(c.Items)
	c.UpdatedAt = time.Now()

	rec := localstore.FromCart(c)
	snapshot := c.Clone()
	e.mu.Unlock()

	// Local persistence completes (or fails into the log) before the
	// operation returns; the cart keeps working in-memory either way.
	if err := e.local.Save(ctx, rec); err != nil {
		e.log.Warn("local save failed, continuing in memory",
			zap.String("session_token", snapshot.SessionToken), zap.Error(err))
	}

	e.scheduleRemoteSave(snapshot)
	e.Activity()

	sum := e.summaryOf(snapshot)
	e.notify(sum)
	return sum, nil
}

// Summary returns a synchronous snapshot of the cart.
func (e *Engine) Summary() Summary {
	e.mu.Lock()
	snapshot := e.cart.Clone()
	e.mu.Unlock()
	return e.summaryOf(snapshot)
}

func (e *Engine) ItemCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.ItemCount()
}

func (e *Engine) IsEmpty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.IsEmpty()
}

// Subscribe registers a callback invoked with the summary after every
// committed mutation or reconciliation. The returned function unsubscribes.
func (e *Engine) Subscribe(fn func(Summary)) func() {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn

	return func() {
		e.subsMu.Lock()
		defer e.subsMu.Unlock()
		delete(e.subs, id)
	}
}

func (e *Engine) notify(sum Summary) {
	e.subsMu.Lock()
	subs := make([]func(Summary), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.subsMu.Unlock()

	for _, fn := range subs {
		fn(sum)
	}
}

func (e *Engine) summaryOf(snapshot *domain.Cart) Summary {
	return Summary{
		ID:                snapshot.ID,
		SessionToken:      snapshot.SessionToken,
		Items:             snapshot.Items,
		Totals:            snapshot.Totals,
		Guest:             snapshot.Guest,
		Status:            snapshot.Status,
		PendingRemoteSave: e.scheduledSeq.Load() > e.savedSeq.Load(),
	}
}

// Activity records a user-activity signal and resets the idle timer.
func (e *Engine) Activity() {
	select {
	case e.activityCh <- struct{}{}:
	default:
	}
}

func (e *Engine) onIdentityChange(ident identity.Identity) {
	if !ident.IsUser() {
		// Logout: remote access is gone, the local/in-memory cart stays for
		// continued anonymous shopping.
		e.log.Info("identity dropped to anonymous, keeping local cart",
			zap.String("session_token", ident.SessionToken))
		return
	}

	// Promotion runs off the caller's goroutine; reconciliation does
	// network I/O and must not block the identity provider.
	go e.promote(e.runContext(), ident)
}

// promote reconciles the in-memory cart with the user's remote active cart
// and persists the merged result to both tiers. The remote fetch runs before
// the lock is taken; the merge then applies to whatever the cart holds once
// the fetch returns, so mutations committed while the fetch was in flight
// survive into the merged result.
func (e *Engine) promote(ctx context.Context, ident identity.Identity) {
	remote, err := e.remote.FetchActiveCart(ctx, ident.UserID)
	if err != nil && !errors.Is(err, remotestore.ErrNoActiveCart) {
		e.log.Warn("remote fetch failed, local cart stays authoritative",
			zap.String("user_id", ident.UserID), zap.Error(err))
		return
	}

	e.mu.Lock()
	if remote != nil {
		e.cart = mergeCarts(e.cart, remote)
	}
	e.cart.UserID = ident.UserID
	e.cart.UpdatedAt = time.Now()
	rec := localstore.FromCart(e.cart)
	snapshot := e.cart.Clone()
	seq := e.scheduledSeq.Load()
	e.mu.Unlock()

	if err := e.local.Save(ctx, rec); err != nil {
		e.log.Warn("local save after reconciliation failed", zap.Error(err))
	}

	// Awaited, unlike mutation-triggered saves: subsequent operations depend
	// on the server-assigned cart id.
	id, err := e.remote.ReplaceCart(ctx, ident.UserID, snapshot)
	if err != nil {
		e.log.Warn("remote save during reconciliation failed, will retry on autosave",
			zap.String("user_id", ident.UserID), zap.Error(err))
		e.notify(e.summaryOf(snapshot))
		return
	}

	e.mu.Lock()
	if e.cart.ID == "" {
		e.cart.ID = id
	}
	snapshot = e.cart.Clone()
	e.mu.Unlock()
	e.markSaved(seq)

	e.notify(e.summaryOf(snapshot))
}

// reconcileWithRemote merges cart with the user's remote active cart
// (union by identity key, quantities summed) and writes the result back
// remotely. On any remote failure the given cart stays authoritative and the
// write is left to the next autosave tick. Only used while the cart is being
// materialized in Init; live-cart reconciliation goes through promote.
func (e *Engine) reconcileWithRemote(ctx context.Context, ident identity.Identity, cart *domain.Cart) *domain.Cart {
	remote, err := e.remote.FetchActiveCart(ctx, ident.UserID)
	switch {
	case err == nil:
		cart = mergeCarts(cart, remote)
	case errors.Is(err, remotestore.ErrNoActiveCart):
		// Nothing to merge; the local cart becomes the user's cart.
	default:
		e.log.Warn("remote fetch failed, local cart stays authoritative",
			zap.String("user_id", ident.UserID), zap.Error(err))
		return cart
	}

	cart.UserID = ident.UserID

	// Awaited, unlike mutation-triggered saves: subsequent operations depend
	// on the server-assigned cart id.
	id, err := e.remote.ReplaceCart(ctx, ident.UserID, cart)
	if err != nil {
		e.log.Warn("remote save during reconciliation failed, will retry on autosave",
			zap.String("user_id", ident.UserID), zap.Error(err))
		return cart
	}
	cart.ID = id
	return cart
}

func (e *Engine) runContext() context.Context {
	e.runCtxMu.Lock()
	defer e.runCtxMu.Unlock()
	if e.runCtx != nil {
		return e.runCtx
	}
	return context.Background()
}

// Close detaches the engine from identity notifications.
func (e *Engine) Close() {
	if e.cancelIdentWatch != nil {
		e.cancelIdentWatch()
	}
}
