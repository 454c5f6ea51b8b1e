package supervisor

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sidbridge/ubridge/commsunix"
	"github.com/sidbridge/ubridge/config"
	"github.com/sidbridge/ubridge/eventloop"
	"github.com/sidbridge/ubridge/log"
	"github.com/sidbridge/ubridge/resource"
)

// ListenerKickstart is the constructor payload for ListenerType.
type ListenerKickstart struct {
	SocketName  string
	WorkerPath  string
	IdleTimeout time.Duration
	Log         *log.Logger
}

// ListenerState is the listener node's opaque data: the bound public
// endpoint fd and the parameters needed to spawn new workers.
type ListenerState struct {
	node        *resource.Node
	log         *log.Logger
	fd          int
	workerPath  string
	idleTimeout time.Duration
	nextID      int
}

// ListenerType is the public-endpoint resource type: it owns the
// process's event loop (the daemon's top-level loop), binds the
// abstract-namespace socket, and accepts incoming connections,
// dispatching each to an idle worker or spawning a fresh one (Go port
// of the source's supervisor accept loop, spec.md §4.4).
var ListenerType = &resource.Type{
	Name:          "listener",
	OwnsEventLoop: true,
	Init:          initListener,
	Destroy:       destroyListener,
}

func initListener(n *resource.Node, kickstart any) (any, error) {
	ks, ok := kickstart.(ListenerKickstart)
	if !ok {
		return nil, fmt.Errorf("supervisor: invalid listener kickstart type %T", kickstart)
	}

	fd, err := commsunix.AbstractListener(ks.SocketName)
	if err != nil {
		return nil, err
	}

	st := &ListenerState{
		node:        n,
		log:         ks.Log.ForNode(n.FullID()),
		fd:          fd,
		workerPath:  ks.WorkerPath,
		idleTimeout: ks.IdleTimeout,
	}
	if st.idleTimeout == 0 {
		st.idleTimeout = config.DefaultIdleTimeout
	}

	loop := n.Loop()
	if _, err := loop.RegisterIO(fd, eventloop.EventRead, st.onAccept); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("supervisor: register listener source: %w", err)
	}
	return st, nil
}

func destroyListener(n *resource.Node) error {
	st, ok := resource.GetData[*ListenerState](n)
	if !ok {
		return nil
	}
	unix.Close(st.fd)
	return nil
}

// onAccept is the Go port of the source's supervisor accept callback:
// accept the pending connection, choose (or spawn) a worker, and hand
// the connection's fd off to it over the worker's comms channel.
func (st *ListenerState) onAccept(ev eventloop.IOEvent) error {
	connFD, _, err := unix.Accept(st.fd)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return nil
		}
		return err
	}

	observer := st.findIdleObserver()
	if observer == nil {
		observer, err = st.spawnObserver()
		if err != nil {
			unix.Close(connFD)
			return fmt.Errorf("supervisor: spawn worker: %w", err)
		}
	}

	obSt, _ := resource.GetData[*ObserverState](observer)
	obSt.MarkAssigned()

	if err := commsunix.Send(obSt.CommsFD(), nil, connFD); err != nil {
		unix.Close(connFD)
		return fmt.Errorf("supervisor: hand off connection: %w", err)
	}
	unix.Close(connFD)
	return nil
}

// findIdleObserver returns the first (by iteration order) idle
// worker-observer child, matching the reuse tie-break spec.md §4.4
// specifies: "the first idle worker found walking children in
// iteration order".
func (st *ListenerState) findIdleObserver() *resource.Node {
	for _, c := range st.node.Children() {
		if !c.IsTypeOf(ObserverType) {
			continue
		}
		obSt, ok := resource.GetData[*ObserverState](c)
		if ok && obSt.IsIdle() {
			return c
		}
	}
	return nil
}

// Snapshot returns a point-in-time view of the worker pool for the
// monitor package: one entry per worker-observer child.
func (st *ListenerState) Snapshot() []WorkerPoolEntry {
	children := st.node.Children()
	out := make([]WorkerPoolEntry, 0, len(children))
	for _, c := range children {
		if !c.IsTypeOf(ObserverType) {
			continue
		}
		obSt, ok := resource.GetData[*ObserverState](c)
		if !ok {
			continue
		}
		out = append(out, WorkerPoolEntry{ID: c.ID(), PID: obSt.proc.Pid, State: obSt.state.String()})
	}
	return out
}

// WorkerPoolEntry is one worker's pool-level status, the supervisor's
// half of the monitor package's snapshot contract.
type WorkerPoolEntry struct {
	ID    string
	PID   int
	State string
}

func (st *ListenerState) spawnObserver() (*resource.Node, error) {
	parentFD, childFD, err := commsunix.SocketPair()
	if err != nil {
		return nil, err
	}
	st.nextID++
	id := fmt.Sprintf("worker-%d", st.nextID)
	return resource.Create(st.node, ObserverType, 0, id, ObserverKickstart{
		WorkerPath:  st.workerPath,
		ParentFD:    parentFD,
		ChildFD:     childFD,
		IdleTimeout: st.idleTimeout,
		Log:         st.log,
	})
}
