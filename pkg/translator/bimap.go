package translator

import "fmt"

// biMap is a one-to-one map. Every mutation updates both directions or
// neither.
type biMap[K comparable, V comparable] struct {
	forward map[K]V
	reverse map[V]K
}

func newBiMap[K comparable, V comparable]() *biMap[K, V] {
	return &biMap[K, V]{
		forward: make(map[K]V),
		reverse: make(map[V]K),
	}
}

func (m *biMap[K, V]) byKey(k K) (V, bool) {
	v, ok := m.forward[k]
	return v, ok
}

func (m *biMap[K, V]) byValue(v V) (K, bool) {
	k, ok := m.reverse[v]
	return k, ok
}

// put links k and v. Both must be unbound; binding an already bound side
// would orphan an entry in the other table.
func (m *biMap[K, V]) put(k K, v V) {
	if old, ok := m.forward[k]; ok {
		panic(fmt.Sprintf("translator: key %v already bound to %v", k, old))
	}
	if old, ok := m.reverse[v]; ok {
		panic(fmt.Sprintf("translator: value %v already bound to %v", v, old))
	}
	m.forward[k] = v
	m.reverse[v] = k
}

func (m *biMap[K, V]) deleteKey(k K) (V, bool) {
	v, ok := m.forward[k]
	if !ok {
		return v, false
	}
	if back, ok := m.reverse[v]; !ok || back != k {
		panic(fmt.Sprintf("translator: tables disagree on %v -> %v", k, v))
	}
	delete(m.forward, k)
	delete(m.reverse, v)
	return v, true
}

func (m *biMap[K, V]) len() int {
	if len(m.forward) != len(m.reverse) {
		panic(fmt.Sprintf("translator: table sizes disagree (%d != %d)", len(m.forward), len(m.reverse)))
	}
	return len(m.forward)
}

func (m *biMap[K, V]) each(fn func(K, V)) {
	for k, v := range m.forward {
		fn(k, v)
	}
}
