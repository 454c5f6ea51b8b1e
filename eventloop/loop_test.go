package eventloop

import (
	"context"
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestRegisterIOFiresOnReadiness(t *testing.T) {
	l, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	fired := make(chan struct{}, 1)
	if _, err := l.RegisterIO(fds[0], EventRead, func(ev IOEvent) error {
		fired <- struct{}{}
		l.ExitLoop(0)
		return nil
	}); err != nil {
		t.Fatalf("RegisterIO: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		time.Sleep(20 * time.Millisecond)
		unix.Write(fds[1], []byte("x"))
	}()

	l.Run(ctx)
	select {
	case <-fired:
	default:
		t.Fatal("io handler never fired")
	}
}

func TestRegisterTimeFiresNoEarlierThanDeadline(t *testing.T) {
	l, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	start := time.Now()
	deadline := start.Add(50 * time.Millisecond)
	var fired time.Time
	l.RegisterTime(deadline, time.Millisecond, func(firedAt time.Time) error {
		fired = firedAt
		l.ExitLoop(0)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	l.Run(ctx)

	if fired.Before(deadline) {
		t.Fatalf("timer fired early: fired=%v deadline=%v", fired, deadline)
	}
}

func TestRegisterDeferredRunsOnce(t *testing.T) {
	l, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	count := 0
	l.RegisterDeferred(func() error {
		count++
		l.ExitLoop(0)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	l.Run(ctx)

	if count != 1 {
		t.Fatalf("deferred handler ran %d times, want 1", count)
	}
}

func TestRegisterChildFiresOnExit(t *testing.T) {
	proc, err := os.StartProcess("/bin/true", []string{"true"}, &os.ProcAttr{})
	if err != nil {
		t.Skipf("cannot spawn /bin/true: %v", err)
	}

	l, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	done := make(chan struct{})
	l.RegisterChild(proc, func(state *os.ProcessState, waitErr error) error {
		close(done)
		l.ExitLoop(0)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	l.Run(ctx)

	select {
	case <-done:
	default:
		t.Fatal("child handler never fired")
	}
}
