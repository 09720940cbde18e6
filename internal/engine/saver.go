package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/dkoval/cartsync/internal/domain"
)

// scheduleRemoteSave enqueues a snapshot for the background saver. The
// channel holds at most one request; a newer snapshot displaces an
// undelivered older one (whole-cart replacement makes this last-write-wins).
// Anonymous sessions have no remote tier and skip this entirely.
func (e *Engine) scheduleRemoteSave(snapshot *domain.Cart) {
	ident := e.ident.Current()
	if !ident.IsUser() {
		return
	}

	req := saveReq{cart: snapshot, seq: e.scheduledSeq.Add(1)}
	for {
		select {
		case e.saveCh <- req:
			return
		default:
			select {
			case <-e.saveCh:
			default:
			}
		}
	}
}

// saveRemote performs one remote write from the saver goroutine. Failures
// are logged, never surfaced; the snapshot stays pending and the next
// autosave tick retries with fresher state.
func (e *Engine) saveRemote(ctx context.Context, req saveReq) {
	ident := e.ident.Current()
	if !ident.IsUser() {
		// The user logged out while the save was queued; drop it.
		return
	}

	id, err := e.remote.ReplaceCart(ctx, ident.UserID, req.cart)
	if err != nil {
		e.log.Warn("remote save failed, local copy stays authoritative",
			zap.String("user_id", ident.UserID),
			zap.Uint64("seq", req.seq),
			zap.Error(err))
		return
	}

	e.mu.Lock()
	if e.cart.ID == "" {
		e.cart.ID = id
	}
	e.mu.Unlock()

	e.markSaved(req.seq)
}

// markSaved records that every mutation up to seq reached the remote store.
// Monotonic: a slow older save must not mask a newer pending one, so callers
// pass the scheduled sequence captured when their snapshot was taken, never
// the current one.
func (e *Engine) markSaved(seq uint64) {
	for {
		saved := e.savedSeq.Load()
		if seq <= saved || e.savedSeq.CompareAndSwap(saved, seq) {
			return
		}
	}
}
