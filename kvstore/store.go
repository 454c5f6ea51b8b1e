// Package kvstore implements the typed key-value store used by the
// identification pipeline: value-copy and value-reference semantics,
// vector-valued entries, merged-vector entries, and pluggable
// duplicate-key resolution, per the write/read matrix in kv-store.h
// (spec.md §4.3).
package kvstore

import (
	"fmt"
	"sync"
)

// Flags are the three bits governing a value's storage and read-back
// behavior.
type Flags uint8

const (
	Vector Flags = 1 << 0
	Ref    Flags = 1 << 1
	Merge  Flags = 1 << 2
)

// KeyJoin is the single-character separator joining a key's prefix and
// leaf (KV_STORE_KEY_JOIN in the source).
const KeyJoin = ":"

// DupResolver decides what happens when Set targets an already-present
// key. Returning false keeps the existing entry; returning true
// replaces it. A nil resolver means "replace unconditionally".
type DupResolver func(prefix, leaf string, old, new Value, arg any) bool

// UnsetResolver decides whether Unset may proceed. Returning false
// vetoes the removal.
type UnsetResolver func(prefix, leaf string, cur Value, arg any) bool

// Value is the logical shape of a stored (or about-to-be-stored)
// entry: either a flat byte buffer (Vector unset) or a sequence of
// segments (Vector set).
type Value struct {
	Flags    Flags
	Bytes    []byte   // used when Flags&Vector == 0
	Segments [][]byte // used when Flags&Vector != 0
}

// Size is the matrix's "output size" column: byte length for flat
// values (including row F, VECTOR|MERGE without REF, whose stored
// Value has already been flattened into Bytes with Vector cleared by
// materialize), segment count for every row that still reports
// Segments, including row H (VECTOR|REF|MERGE), where the segments
// merely point into the store's single owned flat buffer rather than
// collapsing into one.
func (v Value) Size() int {
	if v.Flags&Vector == 0 {
		return len(v.Bytes)
	}
	return len(v.Segments)
}

type entry struct {
	value Value
}

// Store is the HASH backend named in spec.md §4.3. It is not
// internally synchronized against concurrent goroutines: a store
// belongs to exactly one worker process's single-threaded event loop
// (spec.md §5 "Shared resources"), so the only lock here guards
// against incidental cross-goroutine use (e.g. a debug snapshot reader)
// rather than true concurrent command dispatch.
type Store struct {
	mu   sync.Mutex
	data map[string]*entry
}

// New creates a Store. capacityHint sizes the initial backend map, the
// Go analogue of the HASH backend's capacity-hint parameter.
func New(capacityHint int) *Store {
	return &Store{data: make(map[string]*entry, capacityHint)}
}

func key(prefix, leaf string) string {
	return prefix + KeyJoin + leaf
}

// Set installs or resolves a duplicate write per the eight-row matrix
// (spec.md §4.3). It returns the Value actually stored (which, for
// REF rows other than VECTOR|REF|MERGE, aliases the caller-supplied
// slices; VECTOR|REF|MERGE segments point into the store's own
// flattened buffer).
func Set(s *Store, prefix, leaf string, in Value, resolver DupResolver, arg any) (Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(prefix, leaf)
	stored := materialize(in)

	existing, present := s.data[k]
	if !present {
		s.data[k] = &entry{value: stored}
		return stored, nil
	}

	replace := resolver == nil
	if resolver != nil {
		replace = resolver(prefix, leaf, existing.value, stored, arg)
	}
	if !replace {
		return existing.value, nil
	}
	s.data[k] = &entry{value: stored}
	return stored, nil
}

// materialize applies the matrix's write-side rules: deep-copy unless
// Ref is set, flatten when Vector|Merge is set (Merge is ignored for
// non-vector input, matching rows B and D degenerating to A and C).
func materialize(in Value) Value {
	if in.Flags&Vector == 0 {
		if in.Flags&Ref != 0 {
			return Value{Flags: in.Flags, Bytes: in.Bytes}
		}
		cp := append([]byte(nil), in.Bytes...)
		return Value{Flags: in.Flags, Bytes: cp}
	}

	if in.Flags&Merge != 0 {
		flat := flatten(in.Segments)
		if in.Flags&Ref != 0 {
			// Ref|Vector|Merge: segments point into the flattened buffer
			// the store itself now owns.
			return Value{Flags: in.Flags, Segments: reslice(flat, in.Segments), Bytes: flat}
		}
		return Value{Flags: (in.Flags &^ Vector), Bytes: flat}
	}

	if in.Flags&Ref != 0 {
		return Value{Flags: in.Flags, Segments: in.Segments}
	}
	segs := make([][]byte, len(in.Segments))
	for i, seg := range in.Segments {
		segs[i] = append([]byte(nil), seg...)
	}
	return Value{Flags: in.Flags, Segments: segs}
}

func flatten(segs [][]byte) []byte {
	n := 0
	for _, s := range segs {
		n += len(s)
	}
	out := make([]byte, 0, n)
	for _, s := range segs {
		out = append(out, s...)
	}
	return out
}

// reslice carves flat back into len(segs) slices matching the original
// segment boundaries, so REF|VECTOR|MERGE reads see segments pointing
// into the single flattened buffer the store owns (matrix row H).
func reslice(flat []byte, segs [][]byte) [][]byte {
	out := make([][]byte, len(segs))
	off := 0
	for i, s := range segs {
		out[i] = flat[off : off+len(s) : off+len(s)]
		off += len(s)
	}
	return out
}

// Get returns the value stored at prefix/leaf, or ok=false if absent.
func Get(s *Store, prefix, leaf string) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key(prefix, leaf)]
	if !ok {
		return Value{}, false
	}
	return e.value, true
}

// Unset removes the entry at prefix/leaf. resolver, if non-nil, must
// return true to confirm removal; returning false vetoes it and Unset
// reports an error, matching "0 vetoes and the operation fails with
// −1" (spec.md §4.3).
func Unset(s *Store, prefix, leaf string, resolver UnsetResolver, arg any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(prefix, leaf)
	e, ok := s.data[k]
	if !ok {
		return nil
	}
	if resolver != nil && !resolver(prefix, leaf, e.value, arg) {
		return fmt.Errorf("kvstore: unset vetoed for %s", k)
	}
	delete(s.data, k)
	return nil
}
