package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dkoval/cartsync/internal/domain"
	"github.com/dkoval/cartsync/internal/localstore"
)

// Run drives the engine's background work until ctx is cancelled: the
// conflated remote saver, the autosave tick, and the idle-abandonment timer.
// It must be started after Init.
func (e *Engine) Run(ctx context.Context) {
	e.runCtxMu.Lock()
	e.runCtx = ctx
	e.runCtxMu.Unlock()

	autosave := time.NewTicker(e.opts.AutosaveInterval)
	defer autosave.Stop()

	idle := time.NewTimer(e.opts.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-e.saveCh:
			e.saveRemote(ctx, req)
		case <-autosave.C:
			e.autosave(ctx)
		case <-e.activityCh:
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(e.opts.IdleTimeout)
		case <-idle.C:
			e.abandonIfIdle(ctx)
			idle.Reset(e.opts.IdleTimeout)
		}
	}
}

// autosave force-persists a non-empty cart to both tiers. It covers the gap
// between the last mutation-triggered save and a torn-down process, and
// doubles as the retry path for remote writes that failed earlier.
func (e *Engine) autosave(ctx context.Context) {
	e.mu.Lock()
	if e.cart.IsEmpty() {
		e.mu.Unlock()
		return
	}
	rec := localstore.FromCart(e.cart)
	snapshot := e.cart.Clone()
	seq := e.scheduledSeq.Load()
	e.mu.Unlock()

	if err := e.local.Save(ctx, rec); err != nil {
		e.log.Warn("autosave local write failed", zap.Error(err))
	}

	ident := e.ident.Current()
	if !ident.IsUser() {
		return
	}

	// Synchronous on the run loop; there is nothing else for the saver to do
	// during a tick, and queued mutations keep conflating behind it.
	id, err := e.remote.ReplaceCart(ctx, ident.UserID, snapshot)
	if err != nil {
		e.log.Warn("autosave remote write failed, will retry next tick",
			zap.String("user_id", ident.UserID), zap.Error(err))
		return
	}

	e.mu.Lock()
	if e.cart.ID == "" {
		e.cart.ID = id
	}
	e.mu.Unlock()
	e.markSaved(seq)
}

// abandonIfIdle transitions a non-empty Active cart to Abandoned after the
// idle window, flags it remotely when identified, and emits the recovery
// event. The cart stays fully usable; any mutation reactivates it.
func (e *Engine) abandonIfIdle(ctx context.Context) {
	e.mu.Lock()
	if e.cart.IsEmpty() || e.cart.Status != domain.StatusActive {
		e.mu.Unlock()
		return
	}
	e.cart.Status = domain.StatusAbandoned
	e.cart.UpdatedAt = time.Now()
	rec := localstore.FromCart(e.cart)
	snapshot := e.cart.Clone()
	e.mu.Unlock()

	e.log.Info("cart abandoned after idle timeout",
		zap.String("session_token", snapshot.SessionToken),
		zap.Int("item_count", snapshot.ItemCount()))

	if err := e.local.Save(ctx, rec); err != nil {
		e.log.Warn("local save of abandoned cart failed", zap.Error(err))
	}

	ident := e.ident.Current()
	if ident.IsUser() && snapshot.ID != "" {
		if err := e.remote.MarkAbandoned(ctx, snapshot.ID); err != nil {
			e.log.Warn("remote abandon flag failed",
				zap.String("cart_id", snapshot.ID), zap.Error(err))
		}
	}

	e.opts.Events.CartAbandoned(ctx, snapshot)
	e.notify(e.summaryOf(snapshot))
}
