package command

import (
	"testing"

	"github.com/sidbridge/ubridge/kvstore"
	"github.com/sidbridge/ubridge/uevent"
)

func TestIdentifyInvokesOnlyIdentThroughScanPost(t *testing.T) {
	orig := phaseRegs
	defer func() { phaseRegs = orig }()

	var invoked []Phase
	tracking := phaseHandler(func(cmd *Command) error { return nil })
	phaseRegs = map[Phase]phaseHandler{}
	for p := PhaseIdent; p <= PhaseError; p++ {
		phase := p
		phaseRegs[phase] = func(cmd *Command) error {
			invoked = append(invoked, phase)
			return tracking(cmd)
		}
	}

	cmd := &Command{Device: &uevent.Device{}, Store: kvstore.New(1)}
	if err := handleIdentify(cmd); err != nil {
		t.Fatalf("handleIdentify: %v", err)
	}

	want := []Phase{PhaseIdent, PhaseScanPre, PhaseScanCoreCurrent, PhaseScanCoreNextBasic, PhaseScanCoreNextExtended, PhaseScanPost}
	if len(invoked) != len(want) {
		t.Fatalf("invoked %v, want %v", invoked, want)
	}
	for i := range want {
		if invoked[i] != want[i] {
			t.Fatalf("invoked[%d] = %v, want %v", i, invoked[i], want[i])
		}
	}
}

func TestIdentifyAbortsOnPhaseFailure(t *testing.T) {
	orig := phaseRegs
	defer func() { phaseRegs = orig }()

	ranAfter := false
	phaseRegs = map[Phase]phaseHandler{
		PhaseIdent:           func(cmd *Command) error { return nil },
		PhaseScanPre:         func(cmd *Command) error { return ErrNoDevice },
		PhaseScanCoreCurrent: func(cmd *Command) error { ranAfter = true; return nil },
	}

	cmd := &Command{Device: &uevent.Device{}, Store: kvstore.New(1)}
	if err := handleIdentify(cmd); err == nil {
		t.Fatal("expected failing phase to abort the pipeline")
	}
	if ranAfter {
		t.Fatal("phase after the failing one must not run")
	}
}
