// Package storage is the device scoped key-value store the basket and the
// session credential live in. Values survive restarts of the local process.
//
// Writes are last-write-wins with no locking. Two handles editing the same
// key concurrently can lose an update.
package storage

import (
	"context"
	"sync"
)

// Change is emitted when a key is written or cleared through a handle.
type Change struct {
	Key    string `json:"key"`
	Origin string `json:"origin"`
}

// Repository is the persisted store contract.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Clear(ctx context.Context, key string) error
	// Subscribe registers fn for changes to key made through other handles.
	Subscribe(key string, fn func(Change)) (unsubscribe func())
	// Origin identifies this handle in emitted changes.
	Origin() string
}

type subscriber struct {
	key    string
	origin string
	fn     func(Change)
}

type registry struct {
	mu   sync.Mutex
	next int
	subs map[int]subscriber
}

func newRegistry() *registry {
	return &registry{subs: map[int]subscriber{}}
}

func (r *registry) add(key, origin string, fn func(Change)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.next
	r.next++
	r.subs[id] = subscriber{key: key, origin: origin, fn: fn}

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

// dispatch runs outside the registry lock so that subscribers may call back
// into the store.
func (r *registry) dispatch(change Change) {
	r.mu.Lock()
	targets := make([]func(Change), 0, len(r.subs))
	for _, s := range r.subs {
		if s.key == change.Key && s.origin != change.Origin {
			targets = append(targets, s.fn)
		}
	}
	r.mu.Unlock()

	for _, fn := range targets {
		fn(change)
	}
}
