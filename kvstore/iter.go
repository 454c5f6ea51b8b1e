package kvstore

// Iter walks all entries in a Store. Order is backend-defined (Go map
// iteration order): the key order snapshotted by NewIter or Reset stays
// fixed for that iterator, but each NewIter or Reset takes a fresh
// snapshot whose order can differ from the previous one even when no
// Set/Unset intervened. Any mutation invalidates the iterator and it
// must be Reset.
type Iter struct {
	store *Store
	keys  []string
	pos   int
}

// NewIter creates an iterator snapshotting the current key order.
func NewIter(s *Store) *Iter {
	s.mu.Lock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	return &Iter{store: s, keys: keys, pos: -1}
}

// CurrentKey returns the prefix:leaf key under the cursor.
func (it *Iter) CurrentKey() (string, bool) {
	if it.pos < 0 || it.pos >= len(it.keys) {
		return "", false
	}
	return it.keys[it.pos], true
}

// Current returns the value and flags under the cursor.
func (it *Iter) Current() (Value, bool) {
	k, ok := it.CurrentKey()
	if !ok {
		return Value{}, false
	}
	it.store.mu.Lock()
	e, present := it.store.data[k]
	it.store.mu.Unlock()
	if !present {
		return Value{}, false
	}
	return e.value, true
}

// Next advances the cursor.
func (it *Iter) Next() bool {
	if it.pos+1 >= len(it.keys) {
		it.pos = len(it.keys)
		return false
	}
	it.pos++
	return true
}

// Reset returns the cursor to its initial, before-first position and
// re-snapshots the key set, the operation required after any
// intervening mutation.
func (it *Iter) Reset() {
	it.store.mu.Lock()
	it.keys = it.keys[:0]
	for k := range it.store.data {
		it.keys = append(it.keys, k)
	}
	it.store.mu.Unlock()
	it.pos = -1
}

// Destroy releases the iterator.
func (it *Iter) Destroy() { it.keys = nil }
