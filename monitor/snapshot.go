// Package monitor implements the non-normative debug snapshot surface
// (SPEC_FULL.md §12): a small read-only protocol, msgpack-encoded, for
// inspecting the live worker pool (worker ids, pids and states) without going
// through the normative wire protocol. It is served over
// config.DefaultMonitorSocket and rendered by cmd/ubridge-monitor.
package monitor

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"golang.org/x/sys/unix"

	"github.com/sidbridge/ubridge/commsunix"
)

// WorkerSnapshot describes one observed worker for the monitor.
type WorkerSnapshot struct {
	ID    string `msgpack:"id"`
	PID   int    `msgpack:"pid"`
	State string `msgpack:"state"`
}

// Snapshot is the full point-in-time payload sent to a connected
// monitor client.
type Snapshot struct {
	Workers []WorkerSnapshot `msgpack:"workers"`
}

// Encode serializes s with msgpack, the same encoding the teacher uses
// for its own wire payloads (adapted here to a debug-only channel
// rather than the command protocol itself, which stays the packed
// struct format spec.md §6 mandates).
func Encode(s Snapshot) ([]byte, error) {
	b, err := msgpack.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("monitor: encode snapshot: %w", err)
	}
	return b, nil
}

// Decode parses a msgpack-encoded Snapshot.
func Decode(b []byte) (Snapshot, error) {
	var s Snapshot
	if err := msgpack.Unmarshal(b, &s); err != nil {
		return Snapshot{}, fmt.Errorf("monitor: decode snapshot: %w", err)
	}
	return s, nil
}

// Serve binds the monitor's abstract-namespace socket and, for each
// connecting client, writes one snapshot produced by collect and
// closes the connection. One-shot per connection: the monitor client
// polls by reconnecting rather than holding a streaming session open.
func Serve(socketName string, collect func() Snapshot) error {
	fd, err := commsunix.AbstractListener(socketName)
	if err != nil {
		return err
	}
	defer unix.Close(fd)

	for {
		connFD, _, err := unix.Accept(fd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return err
		}
		b, err := Encode(collect())
		if err == nil {
			unix.Write(connFD, b)
		}
		unix.Close(connFD)
	}
}

// FetchOnce connects to the monitor socket, reads one snapshot, and
// closes the connection. Used by cmd/ubridge-monitor between refreshes.
func FetchOnce(socketName string) (Snapshot, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return Snapshot{}, err
	}
	defer unix.Close(fd)

	sa := &unix.SockaddrUnix{Name: "@" + socketName}
	if err := unix.Connect(fd, sa); err != nil {
		return Snapshot{}, fmt.Errorf("monitor: connect: %w", err)
	}

	buf := make([]byte, 1<<16)
	n, err := unix.Read(fd, buf)
	if err != nil {
		return Snapshot{}, fmt.Errorf("monitor: read snapshot: %w", err)
	}
	return Decode(buf[:n])
}
