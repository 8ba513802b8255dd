package collections

import "sync"

// concurrentMap guards a hashMap with a RWMutex. Range holds the read lock for the
// whole iteration, so f must not call back into the map.
type concurrentMap[K comparable, V any] struct {
	mu    sync.RWMutex
	inner Map[K, V]
}

func NewConcurrentMap[K comparable, V any]() Map[K, V] {
	return &concurrentMap[K, V]{
		inner: NewHashMap[K, V](),
	}
}

func (m *concurrentMap[K, V]) Contains(k K) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inner.Contains(k)
}

func (m *concurrentMap[K, V]) Put(k K, v V, forced bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inner.Put(k, v, forced)
}

func (m *concurrentMap[K, V]) Get(k K) (V, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inner.Get(k)
}

func (m *concurrentMap[K, V]) Delete(k K) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inner.Delete(k)
}

func (m *concurrentMap[K, V]) Take(k K) (V, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inner.Take(k)
}

func (m *concurrentMap[K, V]) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inner.Size()
}

func (m *concurrentMap[K, V]) Keys() []K {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inner.Keys()
}
