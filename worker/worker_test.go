package worker

import (
	"testing"

	"github.com/sidbridge/ubridge/commsunix"
	"github.com/sidbridge/ubridge/log"
	"github.com/sidbridge/ubridge/resource"
)

func TestWorkerInitRegistersCommsSource(t *testing.T) {
	parentFD, childFD, err := commsunix.SocketPair()
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer func() { _ = parentFD }()

	n, err := resource.Create(nil, Type, 0, "worker", Kickstart{
		CommsFD:        childFD,
		KVCapacityHint: 4,
		Log:            log.New(),
	})
	if err != nil {
		t.Fatalf("create worker: %v", err)
	}
	defer resource.Destroy(n)

	st, ok := resource.GetData[*State](n)
	if !ok {
		t.Fatal("expected *State data")
	}
	if st.connFD != -1 {
		t.Fatalf("connFD = %d, want -1 before any handoff", st.connFD)
	}
}

func TestCleanupResetsBufferAndSendsIdle(t *testing.T) {
	parentFD, childFD, err := commsunix.SocketPair()
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}

	n, err := resource.Create(nil, Type, 0, "worker", Kickstart{
		CommsFD:        childFD,
		KVCapacityHint: 4,
		Log:            log.New(),
	})
	if err != nil {
		t.Fatalf("create worker: %v", err)
	}
	defer resource.Destroy(n)

	st, _ := resource.GetData[*State](n)
	st.input.Add([]byte{1, 2, 3})

	if err := st.cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if len(st.input.GetData()) != 0 || st.input.IsComplete() {
		t.Fatalf("input buffer not reset: %v", st.input.GetData())
	}

	buf := make([]byte, 1)
	nRead, _, err := commsunix.Recv(parentFD, buf)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if nRead != 1 || buf[0] != ctrlIdle {
		t.Fatalf("expected IDLE byte, got %v", buf[:nRead])
	}
}
