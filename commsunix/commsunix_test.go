package commsunix

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

func TestSendRecvControlByte(t *testing.T) {
	parent, child, err := SocketPair()
	if err != nil {
		t.Fatalf("SocketPair: %v", err)
	}
	defer unix.Close(parent)
	defer unix.Close(child)

	if err := Send(parent, []byte{1}, -1); err != nil {
		t.Fatalf("Send: %v", err)
	}
	buf := make([]byte, 1)
	n, passedFD, err := Recv(child, buf)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if n != 1 || buf[0] != 1 {
		t.Fatalf("got %d bytes %v, want 1 byte [1]", n, buf[:n])
	}
	if passedFD != -1 {
		t.Fatalf("expected no passed fd, got %d", passedFD)
	}
}

func TestFDPassing(t *testing.T) {
	parent, child, err := SocketPair()
	if err != nil {
		t.Fatalf("SocketPair: %v", err)
	}
	defer unix.Close(parent)
	defer unix.Close(child)

	f, err := os.CreateTemp("", "commsunix-fd-test")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if err := Send(parent, nil, int(f.Fd())); err != nil {
		t.Fatalf("Send with fd: %v", err)
	}
	buf := make([]byte, 1)
	_, passedFD, err := Recv(child, buf)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if passedFD < 0 {
		t.Fatal("expected a passed fd")
	}
	unix.Close(passedFD)
}
