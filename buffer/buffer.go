// Package buffer implements the message-buffer collaborator named in
// spec.md §6: create/add/read/write/is_complete/get_data/reset/destroy
// over PLAIN or SIZE_PREFIX framing, each holding either a LINEAR flat
// byte run or a VECTOR of segments to be written out in order. It
// backs both the worker's per-connection input buffer (C5) and a
// command's reply buffer (C6).
package buffer

import (
	"encoding/binary"
	"io"
)

// Mode governs how frame boundaries are recognized.
type Mode int

const (
	// Plain treats every Add/Read call as delivering exactly one
	// complete message with no length framing.
	Plain Mode = iota
	// SizePrefix frames messages with a 4-byte little-endian length
	// prefix. A Linear buffer reads the prefix from the incoming bytes
	// (Add/Read) to detect completion and GetData omits it; its Write
	// emits the stored bytes unchanged and prepends nothing. A Vector
	// buffer's Write prepends the prefix.
	SizePrefix
)

// Kind selects the buffer's storage shape.
type Kind int

const (
	Linear Kind = iota
	Vector
)

const lengthPrefixSize = 4

// Buffer is the Go port of the source's message buffer collaborator.
type Buffer struct {
	mode Mode
	kind Kind

	linear []byte
	vector [][]byte

	wantLen  int // SizePrefix: total bytes still expected, -1 until known
	complete bool
}

// New creates a Buffer. hint sizes the initial backing storage.
func New(kind Kind, mode Mode, hint int) *Buffer {
	b := &Buffer{kind: kind, mode: mode, wantLen: -1}
	if kind == Linear {
		b.linear = make([]byte, 0, hint)
	} else {
		b.vector = make([][]byte, 0, hint)
	}
	return b
}

// Add appends bytes to a Linear buffer, tracking SizePrefix framing
// state as data accumulates. It is the push side used when bytes
// arrive off a nonblocking fd in chunks (see Read for the pull side).
func (b *Buffer) Add(p []byte) {
	if b.kind != Linear {
		panic("buffer: Add is only valid on a Linear buffer")
	}
	b.linear = append(b.linear, p...)
	b.recomputeComplete()
}

// AddSegment appends one segment to a Vector buffer.
func (b *Buffer) AddSegment(seg []byte) {
	if b.kind != Vector {
		panic("buffer: AddSegment is only valid on a Vector buffer")
	}
	b.vector = append(b.vector, seg)
}

func (b *Buffer) recomputeComplete() {
	switch b.mode {
	case Plain:
		b.complete = len(b.linear) > 0
	case SizePrefix:
		if b.wantLen < 0 {
			if len(b.linear) < lengthPrefixSize {
				return
			}
			b.wantLen = int(binary.LittleEndian.Uint32(b.linear[:lengthPrefixSize])) + lengthPrefixSize
		}
		b.complete = len(b.linear) >= b.wantLen
	}
}

// Read pulls bytes from r into the buffer until a complete message is
// assembled or a nonblocking read would block. It returns
// io.ErrUnexpectedEOF-wrapped errors untouched so callers can apply
// their own EAGAIN/EINTR retry policy (spec.md §5 "Suspension
// points").
func (b *Buffer) Read(r io.Reader) (n int, err error) {
	chunk := make([]byte, 4096)
	total := 0
	for !b.IsComplete() {
		m, rerr := r.Read(chunk)
		if m > 0 {
			b.Add(chunk[:m])
			total += m
		}
		if rerr != nil {
			return total, rerr
		}
		if m == 0 {
			return total, nil
		}
	}
	return total, nil
}

// Write flushes the buffer's contents to w. For SizePrefix mode on a
// buffer built by AddSegment (Vector+SizePrefix), the 4-byte prefix
// covers the sum of all segment lengths.
func (b *Buffer) Write(w io.Writer) error {
	if b.kind == Vector {
		if b.mode == SizePrefix {
			total := 0
			for _, s := range b.vector {
				total += len(s)
			}
			var lp [lengthPrefixSize]byte
			binary.LittleEndian.PutUint32(lp[:], uint32(total))
			if _, err := w.Write(lp[:]); err != nil {
				return err
			}
		}
		for _, s := range b.vector {
			if _, err := w.Write(s); err != nil {
				return err
			}
		}
		return nil
	}
	_, err := w.Write(b.linear)
	return err
}

// IsComplete reports whether the buffer currently holds one full
// message per its Mode.
func (b *Buffer) IsComplete() bool { return b.complete }

// GetData returns the buffer's payload. For Linear+SizePrefix, the
// length prefix itself is excluded from the returned slice.
func (b *Buffer) GetData() []byte {
	if b.kind == Vector {
		total := 0
		for _, s := range b.vector {
			total += len(s)
		}
		out := make([]byte, 0, total)
		for _, s := range b.vector {
			out = append(out, s...)
		}
		return out
	}
	if b.mode == SizePrefix && len(b.linear) >= lengthPrefixSize {
		return b.linear[lengthPrefixSize:]
	}
	return b.linear
}

// Reset clears the buffer for reuse, re-sizing its backing storage to
// hint.
func (b *Buffer) Reset(hint int) {
	b.wantLen = -1
	b.complete = false
	if b.kind == Linear {
		b.linear = make([]byte, 0, hint)
	} else {
		b.vector = make([][]byte, 0, hint)
	}
}
