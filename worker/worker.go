// Package worker implements the C5 worker runtime: a per-child event
// loop that receives one connection handoff at a time from the
// supervisor, reads one length-prefixed command off it, runs it
// through the command pipeline, writes the reply, and returns to
// idle.
package worker

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/sidbridge/ubridge/buffer"
	"github.com/sidbridge/ubridge/commsunix"
	"github.com/sidbridge/ubridge/eventloop"
	"github.com/sidbridge/ubridge/kvstore"
	"github.com/sidbridge/ubridge/log"
	"github.com/sidbridge/ubridge/resource"
)

// Internal control-channel bytes (spec.md §6).
const (
	ctrlRunning byte = 1
	ctrlIdle    byte = 2
)

// Kickstart is the constructor payload for Type: the inherited comms
// socket fd (the child's half of the socket pair the supervisor
// created) and the KV store capacity hint.
type Kickstart struct {
	CommsFD        int
	KVCapacityHint int
	Log            *log.Logger
}

// State is the worker node's opaque per-type data (struct worker in
// the source).
type State struct {
	node    *resource.Node
	loop    *eventloop.Loop
	log     *log.Logger
	commsFD int
	connFD  int
	connSrc *eventloop.Source
	input   *buffer.Buffer
	store   *kvstore.Store
}

// Type is the worker resource-type descriptor: owns its event loop,
// installs SIGTERM/SIGINT handlers and the comms i/o source on
// construction (the Go port of _init_worker).
var Type = &resource.Type{
	Name:          "worker",
	OwnsEventLoop: true,
	Init:          initWorker,
	Destroy:       destroyWorker,
}

func initWorker(n *resource.Node, kickstart any) (any, error) {
	ks, ok := kickstart.(Kickstart)
	if !ok {
		return nil, fmt.Errorf("worker: invalid kickstart type %T", kickstart)
	}
	loop := n.Loop()
	st := &State{
		node:    n,
		loop:    loop,
		log:     ks.Log.ForNode(n.FullID()),
		commsFD: ks.CommsFD,
		connFD:  -1,
		input:   buffer.New(buffer.Linear, buffer.SizePrefix, 4096),
		store:   kvstore.New(ks.KVCapacityHint),
	}

	if _, err := loop.RegisterSignal(syscall.SIGTERM, func(sig os.Signal) error { loop.ExitLoop(0); return nil }); err != nil {
		return nil, err
	}
	if _, err := loop.RegisterSignal(syscall.SIGINT, func(sig os.Signal) error { loop.ExitLoop(0); return nil }); err != nil {
		return nil, err
	}
	return st, initWorkerIO(st)
}

func initWorkerIO(st *State) error {
	loop := st.loop
	if _, err := loop.RegisterIO(st.commsFD, eventloop.EventRead, func(ev eventloop.IOEvent) error {
		return st.onComms(ev)
	}); err != nil {
		return fmt.Errorf("worker: register comms source: %w", err)
	}
	return nil
}

func destroyWorker(n *resource.Node) error {
	return nil
}

// onComms is the Go port of _on_worker_comms_event: receives one
// control datagram; if it carried a passed fd, adopts it as the
// connection and replies RUNNING.
func (st *State) onComms(ev eventloop.IOEvent) error {
	buf := make([]byte, 1)
	_, passedFD, err := commsunix.Recv(st.commsFD, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return nil
		}
		return err
	}
	if passedFD < 0 {
		return nil
	}
	st.connFD = passedFD
	src, err := st.loop.RegisterIO(st.connFD, eventloop.EventRead, func(ev eventloop.IOEvent) error {
		return st.onConn(ev)
	})
	if err != nil {
		unix.Close(passedFD)
		st.connFD = -1
		return err
	}
	st.connSrc = src
	return commsunix.Send(st.commsFD, []byte{ctrlRunning}, -1)
}

// onConn is the Go port of _on_worker_conn_event: reads into the input
// buffer; on a complete frame, spawns a command node; on EPOLLERR,
// EPOLLHUP, or zero-length read, cleans up and returns to idle.
func (st *State) onConn(ev eventloop.IOEvent) error {
	if ev&(eventloop.EventError|eventloop.EventHangup) != 0 {
		return st.cleanup()
	}

	chunk := make([]byte, 4096)
	n, err := unix.Read(st.connFD, chunk)
	if n > 0 {
		st.input.Add(chunk[:n])
	}
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			// Transient: return to loop per spec.md §5 "Suspension points".
		} else {
			return st.cleanup()
		}
	}
	if n == 0 && err == nil {
		return st.cleanup()
	}

	if st.input.IsComplete() {
		payload := append([]byte(nil), st.input.GetData()...)
		if err := st.spawnCommand(payload); err != nil {
			st.log.Error("spawn command failed", map[string]any{"error": err.Error()})
		}
		st.input.Reset(4096)
	}
	return nil
}

// cleanup is the Go port of _worker_cleanup: destroys pending command
// children, tears down the connection event source, resets the input
// buffer, and signals IDLE back to the supervisor.
func (st *State) cleanup() error {
	for _, c := range st.node.Children() {
		if c.IsTypeOf(CommandType) {
			resource.Destroy(c)
		}
	}
	if st.connSrc != nil {
		st.loop.Destroy(st.connSrc)
		st.connSrc = nil
	}
	if st.connFD >= 0 {
		unix.Close(st.connFD)
		st.connFD = -1
	}
	st.input.Reset(4096)
	return commsunix.Send(st.commsFD, []byte{ctrlIdle}, -1)
}
