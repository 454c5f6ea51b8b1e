package command

// Phase names the IDENTIFY pipeline's states (cmd_ident_phase_t in the
// source).
type Phase int

const (
	PhaseIdent Phase = iota
	PhaseScanPre
	PhaseScanCoreCurrent
	PhaseScanCoreNextBasic
	PhaseScanCoreNextExtended
	PhaseScanPost
	// PhaseTriggerActionCurrent, PhaseTriggerActionNext, and PhaseError
	// are declared, matching the source's enumeration, but are not
	// entered by handleIdentify below: the source's own dispatch loop
	// iterates only __CMD_IDENT_PHASE_START..__CMD_IDENT_PHASE_END, where
	// __CMD_IDENT_PHASE_END is PhaseScanPost. A re-implementation
	// preserves the enumerated transitions but must not guess the
	// missing drive logic for these phases (spec.md §9).
	PhaseTriggerActionCurrent
	PhaseTriggerActionNext
	PhaseError

	// phaseEnd is the last phase handleIdentify currently invokes
	// (__CMD_IDENT_PHASE_END).
	phaseEnd = PhaseScanPost
)

func (p Phase) String() string {
	switch p {
	case PhaseIdent:
		return "ident"
	case PhaseScanPre:
		return "scan-pre"
	case PhaseScanCoreCurrent:
		return "scan-core-current"
	case PhaseScanCoreNextBasic:
		return "scan-core-next-basic"
	case PhaseScanCoreNextExtended:
		return "scan-core-next-extended"
	case PhaseScanPost:
		return "scan-post"
	case PhaseTriggerActionCurrent:
		return "trigger-action-current"
	case PhaseTriggerActionNext:
		return "trigger-action-next"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// phaseHandler executes one IDENTIFY phase. The reference
// implementation leaves every phase as a no-op hook (spec.md §4.6:
// "the reference implementation leaves them empty, see §9") — the
// pipeline's job here is the sequencing contract, not phase content.
type phaseHandler func(cmd *Command) error

// phaseRegs maps each phase to its handler, the Go analogue of
// _cmd_ident_phase_regs.
var phaseRegs = map[Phase]phaseHandler{
	PhaseIdent:                phaseNoop,
	PhaseScanPre:              phaseNoop,
	PhaseScanCoreCurrent:      phaseNoop,
	PhaseScanCoreNextBasic:    phaseNoop,
	PhaseScanCoreNextExtended: phaseNoop,
	PhaseScanPost:             phaseNoop,
}

func phaseNoop(cmd *Command) error { return nil }

// handleIdentify is the Go port of _cmd_execute_identify: parses the
// device descriptor (already done by Dispatch into cmd.Device before
// this runs) and then runs phases PhaseIdent..phaseEnd in order,
// aborting on the first error.
//
// The source contains a suspicious expression at this call site —
// `if ((r = _init_device(cmd_res) < 0))` assigns the boolean result of
// a comparison to r rather than _init_device's own return value. This
// port does not reproduce that: uevent.ParseDevice (run by Dispatch)
// returns a descriptor and no error, so handleIdentify only checks that
// cmd.Device is set, then uses each phase handler's own returned error
// as the loop precondition (spec.md §9 Open Questions).
func handleIdentify(cmd *Command) error {
	if cmd.Device == nil {
		return ErrNoDevice
	}
	for phase := PhaseIdent; phase <= phaseEnd; phase++ {
		handler := phaseRegs[phase]
		if handler == nil {
			continue
		}
		if err := handler(cmd); err != nil {
			return err
		}
	}
	return nil
}
