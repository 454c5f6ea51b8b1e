package buffer

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestSizePrefixLinearCompletesAtExactLength(t *testing.T) {
	b := New(Linear, SizePrefix, 16)
	var lp [4]byte
	binary.LittleEndian.PutUint32(lp[:], 5)
	b.Add(lp[:])
	if b.IsComplete() {
		t.Fatal("must not be complete before payload bytes arrive")
	}
	b.Add([]byte("hel"))
	if b.IsComplete() {
		t.Fatal("must not be complete with partial payload")
	}
	b.Add([]byte("lo"))
	if !b.IsComplete() {
		t.Fatal("must be complete once length-prefixed bytes are all present")
	}
	if string(b.GetData()) != "hello" {
		t.Fatalf("GetData = %q, want hello (prefix excluded)", b.GetData())
	}
}

func TestPlainLinearCompletesImmediately(t *testing.T) {
	b := New(Linear, Plain, 16)
	b.Add([]byte("x"))
	if !b.IsComplete() {
		t.Fatal("plain mode should be complete as soon as any bytes arrive")
	}
}

func TestVectorSizePrefixWriteSumsSegments(t *testing.T) {
	b := New(Vector, SizePrefix, 4)
	b.AddSegment([]byte("ab"))
	b.AddSegment([]byte("cd"))

	var out bytes.Buffer
	if err := b.Write(&out); err != nil {
		t.Fatal(err)
	}
	got := out.Bytes()
	n := binary.LittleEndian.Uint32(got[:4])
	if n != 4 {
		t.Fatalf("length prefix = %d, want 4", n)
	}
	if string(got[4:]) != "abcd" {
		t.Fatalf("payload = %q, want abcd", got[4:])
	}
}

func TestResetClearsState(t *testing.T) {
	b := New(Linear, Plain, 4)
	b.Add([]byte("x"))
	b.Reset(4)
	if b.IsComplete() {
		t.Fatal("reset buffer must not report complete")
	}
	if len(b.GetData()) != 0 {
		t.Fatal("reset buffer must have no data")
	}
}
