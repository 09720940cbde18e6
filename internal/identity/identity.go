// Package identity resolves who owns the current session: an anonymous
// shopper correlated by a stable session token, or an identified user with a
// credential good for the remote store.
package identity

import "sync"

type Kind string

const (
	KindAnonymous Kind = "anonymous"
	KindUser      Kind = "user"
)

type Identity struct {
	Kind         Kind
	SessionToken string
	UserID       string
	Credential   string
}

func (id Identity) IsUser() bool {
	return id.Kind == KindUser
}

// Resolver exposes the current identity and identity-transition events.
// Anonymous → user is the transition the engine reconciles on; user →
// anonymous (logout) just drops remote access.
type Resolver interface {
	Current() Identity
	// Subscribe registers a callback invoked on every identity transition.
	// The returned function cancels the subscription.
	Subscribe(fn func(Identity)) func()
}

// MemoryResolver is the in-process Resolver implementation. The serving layer
// drives it from its auth middleware; tests drive it directly.
type MemoryResolver struct {
	mu      sync.Mutex
	current Identity
	subs    map[int]func(Identity)
	nextSub int
}

func NewMemoryResolver(sessionToken string) *MemoryResolver {
	return &MemoryResolver{
		current: Identity{Kind: KindAnonymous, SessionToken: sessionToken},
		subs:    make(map[int]func(Identity)),
	}
}

func (r *MemoryResolver) Current() Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *MemoryResolver) Subscribe(fn func(Identity)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

// SetUser transitions the session to an identified user.
func (r *MemoryResolver) SetUser(userID, credential string) {
	r.transition(func(id *Identity) {
		id.Kind = KindUser
		id.UserID = userID
		id.Credential = credential
	})
}

// SetAnonymous transitions back to guest shopping (logout). The session
// token is unchanged: it outlives the cart and any sign-in.
func (r *MemoryResolver) SetAnonymous() {
	r.transition(func(id *Identity) {
		id.Kind = KindAnonymous
		id.UserID = ""
		id.Credential = ""
	})
}

func (r *MemoryResolver) transition(mutate func(*Identity)) {
	r.mu.Lock()
	before := r.current
	mutate(&r.current)
	after := r.current
	subs := make([]func(Identity), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	if before == after {
		return
	}
	for _, fn := range subs {
		fn(after)
	}
}
