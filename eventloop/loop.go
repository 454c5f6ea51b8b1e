// Package eventloop provides the typed event-source bindings that back
// every resource node's per-process loop: i/o readiness, signals, child
// exit, monotonic timers, and deferred callbacks, all funneled through a
// single goroutine so that callback execution is always serialized the
// way a cooperative, single-threaded event loop requires.
package eventloop

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// IOEvent is a bitmask of i/o readiness conditions, mirroring the
// readiness-mask argument to register_io in the source.
type IOEvent uint32

const (
	EventRead IOEvent = 1 << iota
	EventWrite
	EventError
	EventHangup
)

// Handler signatures. Each returns an error to signal the loop that the
// event failed; a failed callback does not stop the loop (only
// ExitLoop does).
type (
	IOHandler       func(ev IOEvent) error
	SignalHandler   func(sig os.Signal) error
	ChildHandler    func(state *os.ProcessState, waitErr error) error
	TimeHandler     func(firedAt time.Time) error
	DeferredHandler func() error
)

var (
	ErrClosed       = errors.New("eventloop: closed")
	ErrNotRegistered = errors.New("eventloop: source not registered")
)

type sourceKind int

const (
	kindIO sourceKind = iota
	kindSignal
	kindChild
	kindTime
	kindDeferred
)

// Source is an opaque handle to a registered event source. The caller
// holds onto it only to pass to Destroy; it carries no other public
// surface, matching the source's sid_event_source* opaque handle.
type Source struct {
	loop *Loop
	kind sourceKind
	id   uint64

	// kindIO
	fd int
	// kindSignal
	sig os.Signal
	// kindTime
	timerIdx int
}

type ioEntry struct {
	src     *Source
	events  IOEvent
	handler IOHandler
}

type timerEntry struct {
	src      *Source
	deadline time.Time
	accuracy time.Duration
	handler  TimeHandler
	index    int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x any)         { e := x.(*timerEntry); e.index = len(*h); *h = append(*h, e) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

type posted struct {
	fn func()
}

// Loop is a single process's event loop. It owns one epoll instance and
// runs entirely on the goroutine that calls Run; all other methods may
// be called from any goroutine and only enqueue work for that goroutine
// to execute, so every registered handler runs without concurrent
// callers — the Go analogue of the source's single-threaded,
// cooperative scheduling (spec.md §5).
type Loop struct {
	epfd int

	mu      sync.Mutex
	io      map[int]*ioEntry
	signals map[uint64]*struct {
		sig     os.Signal
		handler SignalHandler
	}
	timers   timerHeap
	nextID   uint64
	deferred []*struct {
		src     *Source
		handler DeferredHandler
	}

	sigCh  chan os.Signal
	postCh chan posted
	wakeFD [2]int

	closed        bool
	exitCh        chan int
	feederStarted atomic.Bool
}

// New creates and initializes a Loop, analogous to the
// owns-event-loop flag on a resource type causing an event loop to be
// created when its node is constructed.
func New() (*Loop, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("eventloop: epoll_create1: %w", err)
	}
	var wake [2]int
	if err := unix.Pipe2(wake[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventloop: wake pipe: %w", err)
	}
	l := &Loop{
		epfd:    epfd,
		io:      make(map[int]*ioEntry),
		signals: make(map[uint64]*struct {
			sig     os.Signal
			handler SignalHandler
		}),
		sigCh:  make(chan os.Signal, 8),
		postCh: make(chan posted, 64),
		wakeFD: wake,
		exitCh: make(chan int, 1),
	}
	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wake[0])}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wake[0], ev); err != nil {
		unix.Close(epfd)
		unix.Close(wake[0])
		unix.Close(wake[1])
		return nil, fmt.Errorf("eventloop: arm wake fd: %w", err)
	}
	return l, nil
}

func (l *Loop) wake() {
	var b [1]byte
	unix.Write(l.wakeFD[1], b[:])
}

func (l *Loop) drainWake() {
	var buf [64]byte
	for {
		n, err := unix.Read(l.wakeFD[0], buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// RegisterIO registers fd for the given readiness mask. handler is
// invoked from Run's goroutine whenever fd becomes ready.
func (l *Loop) RegisterIO(fd int, events IOEvent, handler IOHandler) (*Source, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	if _, exists := l.io[fd]; exists {
		return nil, fmt.Errorf("eventloop: fd %d already registered", fd)
	}
	src := &Source{loop: l, kind: kindIO, fd: fd, id: l.nextID}
	l.nextID++
	l.io[fd] = &ioEntry{src: src, events: events, handler: handler}
	ev := &unix.EpollEvent{Events: ioToEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		delete(l.io, fd)
		return nil, fmt.Errorf("eventloop: epoll_ctl add: %w", err)
	}
	return src, nil
}

// ModifyIO changes the readiness mask of a registered i/o source.
func (l *Loop) ModifyIO(src *Source, events IOEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.io[src.fd]
	if !ok {
		return ErrNotRegistered
	}
	entry.events = events
	ev := &unix.EpollEvent{Events: ioToEpoll(events), Fd: int32(src.fd)}
	return unix.EpollCtl(l.epfd, unix.EPOLL_CTL_MOD, src.fd, ev)
}

// RegisterSignal arms handler to run when sig is delivered to this
// process. Internally this uses os/signal.Notify plus a feeder
// goroutine that posts onto the loop, since Go does not expose a
// signalfd-style primitive that composes with the runtime's own signal
// handling; this is the idiomatic substitute for binding a
// sid_resource_create_signal_event_source to epoll directly.
func (l *Loop) RegisterSignal(sig os.Signal, handler SignalHandler) (*Source, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	id := l.nextID
	l.nextID++
	l.signals[id] = &struct {
		sig     os.Signal
		handler SignalHandler
	}{sig: sig, handler: handler}
	l.mu.Unlock()

	signal.Notify(l.sigCh, sig)
	if l.feederStarted.CompareAndSwap(false, true) {
		go l.signalFeeder()
	}
	return &Source{loop: l, kind: kindSignal, id: id, sig: sig}, nil
}

// RegisterChild arms handler to run once the process identified by pid
// exits. A dedicated goroutine blocks in proc.Wait and posts the
// result onto the loop; Go provides no non-blocking "child event
// source" analogous to sid_resource_create_child_event_source, so one
// goroutine per watched child is the idiomatic substitute.
func (l *Loop) RegisterChild(proc *os.Process, handler ChildHandler) (*Source, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	id := l.nextID
	l.nextID++
	l.mu.Unlock()

	src := &Source{loop: l, kind: kindChild, id: id}
	go func() {
		state, err := proc.Wait()
		l.Submit(func() {
			handler(state, err)
		})
	}()
	return src, nil
}

// RegisterTime arms handler to fire at deadline (monotonic clock).
// accuracy loosens the wakeup point; the loop guarantees firing no
// earlier than deadline and, absent contention, within one scheduler
// tick of accuracy past it, matching the idle-timeout testable
// property (spec.md §8, property 6).
func (l *Loop) RegisterTime(deadline time.Time, accuracy time.Duration, handler TimeHandler) (*Source, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	src := &Source{loop: l, kind: kindTime, id: l.nextID}
	l.nextID++
	entry := &timerEntry{src: src, deadline: deadline, accuracy: accuracy, handler: handler}
	heap.Push(&l.timers, entry)
	src.timerIdx = entry.index
	l.wake()
	return src, nil
}

// RegisterDeferred arms handler to run once on the next loop
// iteration, the Go analogue of sid_resource_create_deferred_event_source:
// a way to defer work out of the current call stack without a real i/o
// or timer wait.
func (l *Loop) RegisterDeferred(handler DeferredHandler) (*Source, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	src := &Source{loop: l, kind: kindDeferred, id: l.nextID}
	l.nextID++
	l.deferred = append(l.deferred, &struct {
		src     *Source
		handler DeferredHandler
	}{src: src, handler: handler})
	l.wake()
	return src, nil
}

// Destroy unregisters src. Idempotent; a callback already in flight for
// src completes, but Destroy guarantees no further invocation — callers
// must invoke it from the loop goroutine (e.g. from within another
// handler, or via Submit) to satisfy that guarantee without extra
// locking on the hot path.
func (l *Loop) Destroy(src *Source) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch src.kind {
	case kindIO:
		if _, ok := l.io[src.fd]; !ok {
			return ErrNotRegistered
		}
		delete(l.io, src.fd)
		unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, src.fd, nil)
	case kindSignal:
		delete(l.signals, src.id)
	case kindTime:
		for i, e := range l.timers {
			if e.src == src {
				heap.Remove(&l.timers, i)
				break
			}
		}
	case kindDeferred:
		for i, d := range l.deferred {
			if d.src == src {
				l.deferred = append(l.deferred[:i], l.deferred[i+1:]...)
				break
			}
		}
	}
	return nil
}

// Submit enqueues fn to run on the loop goroutine on its next
// iteration. Safe to call from any goroutine; this is how feeder
// goroutines (signals, child wait) and other processes' cross-process
// notifications get folded back into single-threaded execution.
func (l *Loop) Submit(fn func()) {
	select {
	case l.postCh <- posted{fn: fn}:
	default:
		// Channel full: fall back to a blocking send in its own goroutine
		// rather than drop work.
		go func() { l.postCh <- posted{fn: fn} }()
	}
	l.wake()
}

// Run drives the loop until ctx is cancelled or ExitLoop is called.
// The return value is the exit status passed to ExitLoop, or 0 if ctx
// cancellation drove the exit.
func (l *Loop) Run(ctx context.Context) int {
	for {
		select {
		case status := <-l.exitCh:
			return status
		case <-ctx.Done():
			return 0
		default:
		}

		l.runDeferred()
		l.drainPosted()

		timeout := l.nextTimeout()
		events := make([]unix.EpollEvent, 16)
		n, err := unix.EpollWait(l.epfd, events, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			continue
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == l.wakeFD[0] {
				l.drainWake()
				continue
			}
			l.mu.Lock()
			entry, ok := l.io[fd]
			l.mu.Unlock()
			if !ok {
				continue
			}
			entry.handler(epollToIO(events[i].Events))
		}
		l.runExpiredTimers()
	}
}

// ExitLoop requests the loop to stop after completing the current
// iteration, the Go analogue of sid_resource_exit_event_loop.
func (l *Loop) ExitLoop(status int) {
	select {
	case l.exitCh <- status:
	default:
	}
	l.wake()
}

// Close releases the epoll instance and wake pipe. Call after Run
// returns.
func (l *Loop) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	unix.Close(l.wakeFD[0])
	unix.Close(l.wakeFD[1])
	return unix.Close(l.epfd)
}

func (l *Loop) runDeferred() {
	l.mu.Lock()
	batch := l.deferred
	l.deferred = nil
	l.mu.Unlock()
	for _, d := range batch {
		d.handler()
	}
}

func (l *Loop) drainPosted() {
	for {
		select {
		case p := <-l.postCh:
			p.fn()
		default:
			return
		}
	}
}

func (l *Loop) nextTimeout() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.deferred) > 0 {
		return 0
	}
	if len(l.timers) == 0 {
		return 1000
	}
	d := time.Until(l.timers[0].deadline)
	if d <= 0 {
		return 0
	}
	ms := int(d / time.Millisecond)
	if ms <= 0 {
		return 1
	}
	if ms > 1000 {
		return 1000
	}
	return ms
}

func (l *Loop) runExpiredTimers() {
	now := time.Now()
	for {
		l.mu.Lock()
		if len(l.timers) == 0 || l.timers[0].deadline.After(now) {
			l.mu.Unlock()
			return
		}
		entry := heap.Pop(&l.timers).(*timerEntry)
		l.mu.Unlock()
		entry.handler(now)
	}
}

func (l *Loop) signalFeeder() {
	for sig := range l.sigCh {
		l.mu.Lock()
		var matches []SignalHandler
		for _, s := range l.signals {
			if s.sig == sig {
				matches = append(matches, s.handler)
			}
		}
		l.mu.Unlock()
		for _, h := range matches {
			handler := h
			l.Submit(func() { handler(sig) })
		}
	}
}

func ioToEpoll(ev IOEvent) uint32 {
	var e uint32
	if ev&EventRead != 0 {
		e |= unix.EPOLLIN
	}
	if ev&EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func epollToIO(ev uint32) IOEvent {
	var e IOEvent
	if ev&unix.EPOLLIN != 0 {
		e |= EventRead
	}
	if ev&unix.EPOLLOUT != 0 {
		e |= EventWrite
	}
	if ev&unix.EPOLLERR != 0 {
		e |= EventError
	}
	if ev&unix.EPOLLHUP != 0 {
		e |= EventHangup
	}
	return e
}
