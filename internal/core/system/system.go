package system

// Phase identifies one lifecycle callback kind. Per-frame phases run in the
// order PhasePollEvents..PhaseEndDraw; PhaseLoop is checked at the top of
// each frame.
type Phase int

const (
	PhaseInitialize Phase = iota // once, schedule order
	PhasePollEvents              // every unit, enabled or not
	PhaseUpdate                  // enabled units
	PhaseBeginDraw               // enabled units
	PhaseDraw                    // enabled units
	PhaseEndDraw                 // enabled units
	PhaseLoop                    // enabled units, first false wins
	PhaseTerminate               // once, reverse schedule order
)

var phaseNames = [...]string{
	PhaseInitialize: "initialize",
	PhasePollEvents: "poll_events",
	PhaseUpdate:     "update",
	PhaseBeginDraw:  "begin_draw",
	PhaseDraw:       "draw",
	PhaseEndDraw:    "end_draw",
	PhaseLoop:       "loop",
	PhaseTerminate:  "terminate",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// State is the scheduler's position in its one-way lifecycle.
type State int

const (
	StateRegistering State = iota
	StateSorted
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRegistering:
		return "registering"
	case StateSorted:
		return "sorted"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
