// Package registry holds process-local, in-memory state keyed by chat or
// user ID. A registry starts empty and is never persisted.
package registry

import "sync"

// Registry is a concurrency-safe map with get/set/delete semantics.
type Registry[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// New returns an empty registry.
func New[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{items: make(map[K]V)}
}

func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[key]
	return v, ok
}

func (r *Registry[K, V]) Set(key K, v V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[key] = v
}

// SetIfAbsent stores v only when key is free and reports whether it did.
func (r *Registry[K, V]) SetIfAbsent(key K, v V) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[key]; ok {
		return false
	}
	r.items[key] = v
	return true
}

// DeleteIf removes key only while match(current) holds.
func (r *Registry[K, V]) DeleteIf(key K, match func(V) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[key]
	if !ok || !match(v) {
		return false
	}
	delete(r.items, key)
	return true
}

func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Keys returns a snapshot of the current keys in no particular order.
func (r *Registry[K, V]) Keys() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]K, 0, len(r.items))
	for k := range r.items {
		keys = append(keys, k)
	}
	return keys
}
