// Package sessionmap provides the concurrent registry a listener uses to
// track its live sessions by id.
package sessionmap

import "sync"

// Map is a generic concurrent map keyed by a comparable id. The zero value
// is not usable; create instances with New. All methods are safe for
// concurrent use.
type Map[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

// New returns an empty Map ready for use.
//
// Returns:
//   - A pointer to a new Map[K, V]
func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{m: make(map[K]V)}
}

// Store sets the value for key k, overwriting any existing entry.
//
// Parameters:
//   - k: The key to store under
//   - v: The value to associate with k
func (m *Map[K, V]) Store(k K, v V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[k] = v
}

// Load returns the value for key k.
//
// Parameters:
//   - k: The key to look up
//
// Returns:
//   - The value associated with k, or the zero value of V if not found
//   - true if the key was present, false otherwise
func (m *Map[K, V]) Load(k K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.m[k]
	return v, ok
}

// Delete removes the entry for key k; it is a no-op for unknown keys.
//
// Parameters:
//   - k: The key to delete
func (m *Map[K, V]) Delete(k K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.m, k)
}

// Range calls f for each entry until f returns false. The snapshot is taken
// under the read lock, so f may safely Store or Delete on the same map.
//
// Parameters:
//   - f: Function called per entry; return false to stop iteration
func (m *Map[K, V]) Range(f func(k K, v V) bool) {
	m.mu.RLock()
	type entry struct {
		k K
		v V
	}
	entries := make([]entry, 0, len(m.m))
	for k, v := range m.m {
		entries = append(entries, entry{k, v})
	}
	m.mu.RUnlock()

	for _, e := range entries {
		if !f(e.k, e.v) {
			return
		}
	}
}

// Len returns the number of entries.
//
// Returns:
//   - The current entry count
func (m *Map[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.m)
}
