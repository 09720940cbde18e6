package engine

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/dkoval/cartsync/internal/identity"
)

// Session bundles one engine with the identity resolver that drives it. The
// serving layer feeds auth state into Identity; the engine reacts through
// its subscription.
type Session struct {
	Engine   *Engine
	Identity *identity.MemoryResolver
}

// Factory builds the session for a token; the registry owns initialization
// and lifecycle.
type Factory func(sessionToken string) *Session

// Registry keeps one live session per token. Initialization is guarded by
// singleflight so concurrent first-touch requests for the same session share
// a single engine bring-up (and a single remote fetch).
type Registry struct {
	factory Factory
	sf      singleflight.Group

	mu       sync.Mutex
	sessions map[string]*Session

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRegistry(factory Factory) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		factory:  factory,
		sessions: make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Get returns the session for the token, initializing and starting its
// engine on first use.
func (r *Registry) Get(ctx context.Context, sessionToken string) (*Session, error) {
	if sessionToken == "" {
		return nil, fmt.Errorf("session token is required")
	}

	r.mu.Lock()
	if s, ok := r.sessions[sessionToken]; ok {
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()

	v, err, _ := r.sf.Do(sessionToken, func() (interface{}, error) {
		r.mu.Lock()
		if s, ok := r.sessions[sessionToken]; ok {
			r.mu.Unlock()
			return s, nil
		}
		r.mu.Unlock()

		s := r.factory(sessionToken)
		s.Engine.Init(ctx)

		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			s.Engine.Run(r.ctx)
		}()

		r.mu.Lock()
		r.sessions[sessionToken] = s
		r.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Session), nil
}

// Peek returns the live session for the token without creating one.
func (r *Registry) Peek(sessionToken string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionToken]
	return s, ok
}

// Shutdown stops every engine's background loop and waits for them.
func (r *Registry) Shutdown() {
	r.cancel()
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		s.Engine.Close()
	}
}
