package command

import (
	"bytes"
	"testing"

	"github.com/sidbridge/ubridge/kvstore"
	"github.com/sidbridge/ubridge/version"
	"github.com/sidbridge/ubridge/wire"
)

func decodeReply(t *testing.T, framed []byte) (wire.Header, []byte) {
	t.Helper()
	dec := wire.NewFrameDecoder(bytes.NewReader(framed))
	payload, err := dec.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	h, err := wire.DecodeHeader(payload)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	return h, payload[wire.HeaderSize:]
}

func TestScenarioS1_Version(t *testing.T) {
	store := kvstore.New(4)
	framed := Dispatch(wire.Header{Protocol: 1, CmdNumber: wire.CmdVersion}, nil, store)
	h, body := decodeReply(t, framed)
	if h.CmdNumber != wire.CmdReply {
		t.Fatalf("CmdNumber = %v, want CmdReply", h.CmdNumber)
	}
	if h.Status&wire.StatusFailure != 0 {
		t.Fatal("VERSION must not fail")
	}
	want := version.Encode()
	if len(body) != len(want) {
		t.Fatalf("payload len = %d, want %d", len(body), len(want))
	}
}

func TestScenarioS2_UnknownCommandSucceeds(t *testing.T) {
	store := kvstore.New(4)
	framed := Dispatch(wire.Header{Protocol: 1, CmdNumber: wire.Command(99)}, nil, store)
	h, _ := decodeReply(t, framed)
	if h.CmdNumber != wire.CmdReply {
		t.Fatalf("CmdNumber = %v, want CmdReply", h.CmdNumber)
	}
	if h.Status&wire.StatusFailure != 0 {
		t.Fatal("UNKNOWN handler itself must succeed")
	}
}

func TestScenarioS3_ProtocolMismatch(t *testing.T) {
	store := kvstore.New(4)
	framed := Dispatch(wire.Header{Protocol: 99, CmdNumber: wire.CmdVersion}, nil, store)
	h, body := decodeReply(t, framed)
	if h.CmdNumber != wire.CmdReply {
		t.Fatalf("CmdNumber = %v, want CmdReply", h.CmdNumber)
	}
	if h.Status&wire.StatusFailure == 0 {
		t.Fatal("expected failure bit set on protocol mismatch")
	}
	if h.Protocol != wire.Protocol {
		t.Fatalf("reply protocol = %d, want server protocol %d", h.Protocol, wire.Protocol)
	}
	if len(body) != 0 {
		t.Fatalf("expected empty payload beyond header, got %d bytes", len(body))
	}
}

func TestIdentifyParsesDeviceAndRunsPrefix(t *testing.T) {
	store := kvstore.New(4)
	payload := []byte("ACTION=add\x00DEVNAME=sda1\x00")
	framed := Dispatch(wire.Header{Protocol: 1, CmdNumber: wire.CmdIdentify}, payload, store)
	h, _ := decodeReply(t, framed)
	if h.Status&wire.StatusFailure != 0 {
		t.Fatal("well-formed IDENTIFY must not fail")
	}
}
