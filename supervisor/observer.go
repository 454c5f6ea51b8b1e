// Package supervisor implements the C4 worker-pool supervisor: a
// public listener that hands off accepted connections to a pool of
// persistent worker processes, spawning a new one only when no idle
// worker is available, and retiring workers that sit idle past the
// configured timeout (spec.md §4.4, §4.5).
package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sidbridge/ubridge/commsunix"
	"github.com/sidbridge/ubridge/eventloop"
	"github.com/sidbridge/ubridge/log"
	"github.com/sidbridge/ubridge/resource"
)

// WorkerState mirrors the source's worker_state enum.
type WorkerState int

const (
	StateIdle WorkerState = iota
	StateInit
	StateRunning
	StateFini
)

func (s WorkerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateFini:
		return "fini"
	default:
		return "unknown"
	}
}

// ObserverKickstart is the constructor payload for ObserverType: the
// path to the worker binary, both halves of the freshly created comms
// socket pair (ParentFD is kept and polled here; ChildFD is handed to
// the spawned process and closed in this process once inherited), and
// the idle timeout.
type ObserverKickstart struct {
	WorkerPath  string
	ParentFD    int
	ChildFD     int
	IdleTimeout time.Duration
	Log         *log.Logger
}

// ObserverState is an observer node's opaque data: the spawned worker
// process, its current lifecycle state, and the comms fd used to talk
// to it.
type ObserverState struct {
	node        *resource.Node
	log         *log.Logger
	proc        *os.Process
	commsFD     int
	idleTimeout time.Duration
	state       WorkerState
	idleTimer   *eventloop.Source
	commsSrc    *eventloop.Source
	childSrc    *eventloop.Source
}

// ObserverType is the per-worker observer resource type: one is
// created each time the listener spawns a new worker process, and it
// tracks that process's lifecycle for the life of the pool entry.
var ObserverType = &resource.Type{
	Name:    "worker-observer",
	Init:    initObserver,
	Destroy: destroyObserver,
}

// SpawnWorker forks the ubridge-worker binary with the supplied comms
// fd passed as an inherited file descriptor (ExtraFiles index 0, fd 3
// in the child). This is the Go substitute for the source's
// fork()+socketpair() in _spawn_worker: Go cannot safely fork a
// multi-threaded runtime, so a fresh process image is exec'd instead,
// with the kernel-level fd inheritance doing the same job socketpair()
// did across a fork.
func SpawnWorker(workerPath string, childCommsFD int) (*os.Process, error) {
	cmd := exec.Command(workerPath)
	cmd.ExtraFiles = []*os.File{os.NewFile(uintptr(childCommsFD), "worker-comms")}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("supervisor: spawn worker: %w", err)
	}
	return cmd.Process, nil
}

func initObserver(n *resource.Node, kickstart any) (any, error) {
	ks, ok := kickstart.(ObserverKickstart)
	if !ok {
		return nil, fmt.Errorf("supervisor: invalid observer kickstart type %T", kickstart)
	}

	proc, err := SpawnWorker(ks.WorkerPath, ks.ChildFD)
	unix.Close(ks.ChildFD)
	if err != nil {
		return nil, err
	}

	st := &ObserverState{
		node:        n,
		log:         ks.Log.ForNode(n.FullID()),
		proc:        proc,
		commsFD:     ks.ParentFD,
		idleTimeout: ks.IdleTimeout,
		state:       StateInit,
	}

	loop := n.OwningLoop()
	if loop == nil {
		return nil, fmt.Errorf("supervisor: observer has no owning loop")
	}

	commsSrc, err := loop.RegisterIO(ks.ParentFD, eventloop.EventRead, st.onControl)
	if err != nil {
		return nil, fmt.Errorf("supervisor: register observer comms source: %w", err)
	}
	st.commsSrc = commsSrc

	childSrc, err := loop.RegisterChild(proc, st.onChildExit)
	if err != nil {
		loop.Destroy(commsSrc)
		return nil, fmt.Errorf("supervisor: register observer child source: %w", err)
	}
	st.childSrc = childSrc

	return st, nil
}

// destroyObserver tears down every event source this observer
// registered on the listener's shared loop before closing commsFD:
// leaving the IO source registered past this point would keep a stale
// entry in the loop's fd table and permanently block re-registration
// of any later-spawned worker's comms fd that happens to reuse the
// same number (spec.md §3, §8 property 2).
func destroyObserver(n *resource.Node) error {
	st, ok := resource.GetData[*ObserverState](n)
	if !ok {
		return nil
	}
	loop := n.OwningLoop()
	if st.idleTimer != nil {
		loop.Destroy(st.idleTimer)
	}
	if st.commsSrc != nil {
		loop.Destroy(st.commsSrc)
	}
	if st.childSrc != nil {
		loop.Destroy(st.childSrc)
	}
	unix.Close(st.commsFD)
	return nil
}

// onControl handles one byte arriving on the worker's comms fd:
// ctrlRunning clears any armed idle timer and marks the worker busy;
// ctrlIdle arms the idle timer for retirement.
func (st *ObserverState) onControl(ev eventloop.IOEvent) error {
	buf := make([]byte, 1)
	n, _, err := commsunix.Recv(st.commsFD, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return nil
		}
		return err
	}
	if n == 0 {
		return nil
	}
	switch buf[0] {
	case 1: // running
		st.state = StateRunning
		st.cancelIdleTimer()
	case 2: // idle
		st.state = StateIdle
		st.armIdleTimer()
	}
	return nil
}

// armIdleTimer schedules retirement of this worker after idleTimeout,
// the Go analogue of arming a timerfd-backed idle timer in the
// source's observer.
func (st *ObserverState) armIdleTimer() {
	st.cancelIdleTimer()
	loop := st.node.OwningLoop()
	deadline := time.Now().Add(st.idleTimeout)
	src, err := loop.RegisterTime(deadline, time.Second, func(time.Time) error {
		return st.onIdleExpired()
	})
	if err != nil {
		st.log.Error("arm idle timer failed", map[string]any{"error": err.Error()})
		return
	}
	st.idleTimer = src
}

func (st *ObserverState) cancelIdleTimer() {
	if st.idleTimer == nil {
		return
	}
	st.node.OwningLoop().Destroy(st.idleTimer)
	st.idleTimer = nil
}

// onIdleExpired retires a worker that has sat idle past the timeout:
// SIGTERM its process and mark it FINI. The observer node itself is
// reaped once onChildExit observes the process actually exit.
func (st *ObserverState) onIdleExpired() error {
	if st.state != StateIdle {
		return nil
	}
	st.state = StateFini
	st.idleTimer = nil
	return st.proc.Signal(syscall.SIGTERM)
}

// onChildExit reaps the observer node once its worker process has
// actually exited.
func (st *ObserverState) onChildExit(procState *os.ProcessState, waitErr error) error {
	st.log.Info("worker exited", map[string]any{"pid": st.proc.Pid, "state": fmt.Sprint(procState)})
	return resource.Destroy(st.node)
}

// IsIdle reports whether this observer's worker is currently idle and
// eligible to receive a new connection handoff.
func (st *ObserverState) IsIdle() bool { return st.state == StateIdle }

// MarkAssigned transitions an idle worker to INIT as a handoff begins
// and cancels its idle timer, mirroring the source's behavior of
// disarming retirement the instant a worker is chosen.
func (st *ObserverState) MarkAssigned() {
	st.state = StateInit
	st.cancelIdleTimer()
}

// CommsFD returns the supervisor-side comms fd used to reach this
// worker.
func (st *ObserverState) CommsFD() int { return st.commsFD }
