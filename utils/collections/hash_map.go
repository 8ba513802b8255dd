package collections

type hashMap[K comparable, V any] struct {
	entries map[K]V
}

// NewHashMap returns a Map that is not safe for concurrent use.
func NewHashMap[K comparable, V any]() Map[K, V] {
	return &hashMap[K, V]{
		entries: make(map[K]V),
	}
}

func (m *hashMap[K, V]) Contains(k K) bool {
	_, ok := m.entries[k]
	return ok
}

func (m *hashMap[K, V]) Put(k K, v V, forced bool) error {
	if !forced && m.Contains(k) {
		return ErrKeyExisted
	}
	m.entries[k] = v
	return nil
}

func (m *hashMap[K, V]) Get(k K) (v V, err error) {
	v, ok := m.entries[k]
	if !ok {
		return v, ErrKeyNotExisted
	}
	return v, nil
}

func (m *hashMap[K, V]) Delete(k K) error {
	_, err := m.Take(k)
	return err
}

func (m *hashMap[K, V]) Take(k K) (v V, err error) {
	v, ok := m.entries[k]
	if !ok {
		return v, ErrKeyNotExisted
	}
	delete(m.entries, k)
	return v, nil
}

func (m *hashMap[K, V]) Size() int {
	return len(m.entries)
}

func (m *hashMap[K, V]) Keys() []K {
	arr := make([]K, 0, m.Size())
	for k := range m.entries {
		arr = append(arr, k)
	}
	return arr
}
