// Package wire implements the command-pipeline wire format: the
// length-prefixed frame and the packed command header (spec.md §4.6,
// §6). The frame-decoding shape (FrameError taxonomy, IsFatal) is
// grounded on the teacher's ipc/frame.go; the byte layout itself is
// the exact packed struct spec.md mandates, not the teacher's msgpack
// envelope.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Protocol is the daemon's current wire-protocol version
// (UBRIDGE_PROTOCOL in the source).
const Protocol = 1

// Command tags (command_t in the source).
type Command uint8

const (
	CmdUnknown    Command = 0
	CmdReply      Command = 1
	CmdVersion    Command = 2
	CmdIdentify   Command = 3
	CmdCheckpoint Command = 4

	maxKnownCommand = CmdCheckpoint
)

// StatusFailure is bit 0 of the header's status field
// (COMMAND_STATUS_FAILURE).
const StatusFailure uint64 = 1 << 0

// HeaderSize is the packed size of Header on the wire: u8 + u8 + u64.
const HeaderSize = 1 + 1 + 8

// LengthPrefixSize is the size of the frame's length prefix.
const LengthPrefixSize = 4

// MaxFrameSize bounds a single frame (header + payload) to guard
// against a misbehaving or malicious peer exhausting memory on a
// corrupted length prefix.
const MaxFrameSize = 1 << 20

// Header is the wire-exact packed command header:
// { u8 protocol; u8 cmd_number; u64 status; u8 data[]; }.
type Header struct {
	Protocol  uint8
	CmdNumber Command
	Status    uint64
}

// NormalizeCommand coerces any tag outside [1..4] to CmdUnknown, the
// "Unknown-command coercion" testable property (spec.md §8, property
// 5). Note CmdUnknown(0) itself is also in-range-coerced to itself.
func NormalizeCommand(raw uint8) Command {
	if raw < uint8(CmdReply) || raw > uint8(maxKnownCommand) {
		return CmdUnknown
	}
	return Command(raw)
}

// EncodeHeader writes h's packed bytes (little-endian, no padding).
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = h.Protocol
	buf[1] = uint8(h.CmdNumber)
	binary.LittleEndian.PutUint64(buf[2:10], h.Status)
	return buf
}

// DecodeHeader parses a packed header from buf, which must be at least
// HeaderSize bytes.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("wire: %w: header needs %d bytes, got %d", ErrTruncatedFrame, HeaderSize, len(buf))
	}
	return Header{
		Protocol:  buf[0],
		CmdNumber: Command(buf[1]),
		Status:    binary.LittleEndian.Uint64(buf[2:10]),
	}, nil
}

// EncodeFrame prepends the 4-byte little-endian length prefix covering
// header+payload to payload (payload must already include the encoded
// header at its start).
func EncodeFrame(payload []byte) []byte {
	out := make([]byte, LengthPrefixSize+len(payload))
	binary.LittleEndian.PutUint32(out[:LengthPrefixSize], uint32(len(payload)))
	copy(out[LengthPrefixSize:], payload)
	return out
}

// Frame error taxonomy, the Go analogue of the teacher's
// FrameErrorKind/FrameError (ipc/frame.go), adapted to this protocol's
// own length-prefix/header shape.
type FrameErrorKind int

const (
	FrameErrorPartial FrameErrorKind = iota
	FrameErrorTooLarge
	FrameErrorDecode
)

type FrameError struct {
	Kind FrameErrorKind
	Err  error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("wire: frame error (%v): %v", e.Kind, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

// IsFatal reports whether a frame error should terminate the
// connection (protocol violation) rather than simply await more
// bytes.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorTooLarge || e.Kind == FrameErrorDecode
}

// IsFatalFrameError is the free-function form for errors that may or
// may not be *FrameError.
func IsFatalFrameError(err error) bool {
	var fe *FrameError
	if errors.As(err, &fe) {
		return fe.IsFatal()
	}
	return false
}

var (
	ErrTruncatedFrame    = errors.New("wire: truncated frame")
	ErrFrameTooLarge     = errors.New("wire: frame exceeds maximum size")
	ErrProtocolMismatch  = errors.New("wire: unsupported protocol version")
)
