package kvstore

import (
	"bytes"
	"testing"
)

func TestMatrixRowA_FlatDeepCopy(t *testing.T) {
	s := New(0)
	in := []byte("hello")
	stored, err := Set(s, "k1", "leaf", Value{Bytes: in}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Size() != 5 {
		t.Fatalf("size = %d, want 5", stored.Size())
	}
	in[0] = 'X'
	got, ok := Get(s, "k1", "leaf")
	if !ok {
		t.Fatal("expected present")
	}
	if string(got.Bytes) != "hello" {
		t.Fatalf("deep copy must be unaffected by caller mutation, got %q", got.Bytes)
	}
}

func TestMatrixRowC_FlatRefAliasesCaller(t *testing.T) {
	s := New(0)
	in := []byte("hello")
	_, err := Set(s, "k1", "leaf", Value{Flags: Ref, Bytes: in}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	in[0] = 'X'
	got, _ := Get(s, "k1", "leaf")
	if string(got.Bytes) != "Xello" {
		t.Fatalf("REF row must observe caller mutation, got %q", got.Bytes)
	}
}

func TestMatrixRowE_VectorDeepCopy(t *testing.T) {
	s := New(0)
	segs := [][]byte{[]byte("ab"), []byte("cd")}
	stored, err := Set(s, "k1", "leaf", Value{Flags: Vector, Segments: segs}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Size() != 2 {
		t.Fatalf("size = %d, want segment count 2", stored.Size())
	}
	segs[0][0] = 'X'
	got, _ := Get(s, "k1", "leaf")
	if string(got.Segments[0]) != "ab" {
		t.Fatalf("deep-copied segments must be unaffected, got %q", got.Segments[0])
	}
}

func TestMatrixRowF_VectorMergeFlattens(t *testing.T) {
	s := New(0)
	segs := [][]byte{[]byte("ab"), []byte("cd"), []byte("ef")}
	stored, err := Set(s, "k1", "leaf", Value{Flags: Vector | Merge, Segments: segs}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Size() != 6 {
		t.Fatalf("size = %d, want 6", stored.Size())
	}
	got, _ := Get(s, "k1", "leaf")
	if !bytes.Equal(got.Bytes, []byte("abcdef")) {
		t.Fatalf("expected flattened abcdef, got %q", got.Bytes)
	}
}

func TestMatrixRowG_VectorRefAliasesCallerArray(t *testing.T) {
	s := New(0)
	segs := [][]byte{[]byte("ab"), []byte("cd")}
	stored, err := Set(s, "k1", "leaf", Value{Flags: Vector | Ref, Segments: segs}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Size() != 2 {
		t.Fatalf("size = %d, want 2", stored.Size())
	}
	segs[0][0] = 'X'
	got, _ := Get(s, "k1", "leaf")
	if string(got.Segments[0]) != "Xb" {
		t.Fatalf("REF vector must alias caller's segments, got %q", got.Segments[0])
	}
}

func TestMatrixRowH_VectorRefMergeSegmentsIntoOwnedFlatBuffer(t *testing.T) {
	s := New(0)
	segs := [][]byte{[]byte("ab"), []byte("cd"), []byte("ef")}
	stored, err := Set(s, "k1", "leaf", Value{Flags: Vector | Ref | Merge, Segments: segs}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Size() != 3 {
		t.Fatalf("size = %d, want segment count 3", stored.Size())
	}
	joined := append(append(append([]byte{}, stored.Segments[0]...), stored.Segments[1]...), stored.Segments[2]...)
	if !bytes.Equal(joined, []byte("abcdef")) {
		t.Fatalf("segments must point into one flattened buffer, got %q", joined)
	}
}

func TestResolverZeroKeepsExisting(t *testing.T) {
	s := New(0)
	first, _ := Set(s, "k1", "leaf", Value{Bytes: []byte("old")}, nil, nil)
	calls := 0
	resolver := func(prefix, leaf string, old, new Value, arg any) bool {
		calls++
		return false
	}
	second, err := Set(s, "k1", "leaf", Value{Bytes: []byte("new")}, resolver, nil)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("resolver must be invoked exactly once, got %d", calls)
	}
	if !bytes.Equal(second.Bytes, first.Bytes) {
		t.Fatalf("keep-old resolver must leave stored bytes unchanged: got %q want %q", second.Bytes, first.Bytes)
	}
	got, _ := Get(s, "k1", "leaf")
	if string(got.Bytes) != "old" {
		t.Fatalf("expected pre-existing bytes after veto, got %q", got.Bytes)
	}
}

func TestResolverOneReplaces(t *testing.T) {
	s := New(0)
	Set(s, "k1", "leaf", Value{Bytes: []byte("old")}, nil, nil)
	resolver := func(prefix, leaf string, old, new Value, arg any) bool { return true }
	_, err := Set(s, "k1", "leaf", Value{Bytes: []byte("new")}, resolver, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := Get(s, "k1", "leaf")
	if string(got.Bytes) != "new" {
		t.Fatalf("expected replaced bytes, got %q", got.Bytes)
	}
}

func TestUnsetVetoFailsOperation(t *testing.T) {
	s := New(0)
	Set(s, "k1", "leaf", Value{Bytes: []byte("v")}, nil, nil)
	err := Unset(s, "k1", "leaf", func(prefix, leaf string, cur Value, arg any) bool { return false }, nil)
	if err == nil {
		t.Fatal("expected veto error")
	}
	if _, ok := Get(s, "k1", "leaf"); !ok {
		t.Fatal("vetoed unset must leave the entry in place")
	}
}

func TestUnsetConfirmRemoves(t *testing.T) {
	s := New(0)
	Set(s, "k1", "leaf", Value{Bytes: []byte("v")}, nil, nil)
	err := Unset(s, "k1", "leaf", func(prefix, leaf string, cur Value, arg any) bool { return true }, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := Get(s, "k1", "leaf"); ok {
		t.Fatal("confirmed unset must remove the entry")
	}
}

func TestScenarioS6_VectorMergeABCDEF(t *testing.T) {
	s := New(0)
	_, err := Set(s, "k1", "leaf", Value{Flags: Vector | Merge, Segments: [][]byte{[]byte("ab"), []byte("cd"), []byte("ef")}}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := Get(s, "k1", "leaf")
	if !ok {
		t.Fatal("expected present")
	}
	if !bytes.Equal(got.Bytes, []byte("abcdef")) || got.Size() != 6 {
		t.Fatalf("got %q size %d, want abcdef size 6", got.Bytes, got.Size())
	}
}
