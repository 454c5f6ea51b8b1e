package wire

import (
	"encoding/binary"
	"errors"
	"io"
)

// FrameDecoder reads length-prefixed frames off r, the Go analogue of
// the teacher's ipc.FrameDecoder but with this protocol's 4-byte
// little-endian prefix instead of the teacher's big-endian one.
type FrameDecoder struct {
	r io.Reader
}

// NewFrameDecoder wraps r.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{r: r}
}

// ReadFrame reads one complete frame (header+payload, length prefix
// consumed) or returns a *FrameError.
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var lenBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(d.r, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &FrameError{Kind: FrameErrorPartial, Err: err}
		}
		return nil, &FrameError{Kind: FrameErrorDecode, Err: err}
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return nil, &FrameError{Kind: FrameErrorTooLarge, Err: ErrFrameTooLarge}
	}
	if n < HeaderSize {
		return nil, &FrameError{Kind: FrameErrorDecode, Err: ErrTruncatedFrame}
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return nil, &FrameError{Kind: FrameErrorPartial, Err: err}
	}
	return payload, nil
}

// WriteFrame writes one length-prefixed frame (payload already
// includes the encoded header) to w.
func WriteFrame(w io.Writer, payload []byte) error {
	_, err := w.Write(EncodeFrame(payload))
	return err
}
