package collections

type Map[K comparable, V any] interface {
	Contains(k K) bool
	// Put fails with ErrKeyExisted unless forced.
	Put(k K, v V, forced bool) error
	Get(k K) (V, error)
	Delete(k K) error
	// Take removes k and returns the value it held.
	Take(k K) (V, error)
	Size() int
	Keys() []K
}
