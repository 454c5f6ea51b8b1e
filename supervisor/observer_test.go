package supervisor

import "testing"

func TestWorkerStateString(t *testing.T) {
	cases := map[WorkerState]string{
		StateIdle:    "idle",
		StateInit:    "init",
		StateRunning: "running",
		StateFini:    "fini",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
