package wire

import (
	"bytes"
	"testing"
)

func TestNormalizeCommandCoercesOutOfRange(t *testing.T) {
	cases := []struct {
		raw  uint8
		want Command
	}{
		{0, CmdUnknown},
		{1, CmdReply},
		{2, CmdVersion},
		{3, CmdIdentify},
		{4, CmdCheckpoint},
		{5, CmdUnknown},
		{99, CmdUnknown},
		{255, CmdUnknown},
	}
	for _, c := range cases {
		if got := NormalizeCommand(c.raw); got != c.want {
			t.Errorf("NormalizeCommand(%d) = %v, want %v", c.raw, got, c.want)
		}
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Protocol: 1, CmdNumber: CmdVersion, Status: StatusFailure}
	buf := EncodeHeader(h)
	got, err := DecodeHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, h)
	}
}

func TestDecodeHeaderTruncated(t *testing.T) {
	if _, err := DecodeHeader([]byte{1, 2}); err == nil {
		t.Fatal("expected truncated-header error")
	}
}

func TestFrameRoundTrip(t *testing.T) {
	payload := append(EncodeHeader(Header{Protocol: 1, CmdNumber: CmdVersion}), []byte("abc")...)
	framed := EncodeFrame(payload)

	dec := NewFrameDecoder(bytes.NewReader(framed))
	got, err := dec.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %x want %x", got, payload)
	}
}

func TestFrameTooLarge(t *testing.T) {
	var lenBuf [4]byte
	lenBuf[3] = 0xFF // absurdly large length, little-endian high byte
	dec := NewFrameDecoder(bytes.NewReader(lenBuf[:]))
	_, err := dec.ReadFrame()
	if err == nil || !IsFatalFrameError(err) {
		t.Fatalf("expected fatal too-large error, got %v", err)
	}
}
