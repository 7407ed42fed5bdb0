package arena

// Phase is the lifecycle stage of one arena. The machine is cyclic:
// WAITING -> COUNTDOWN -> ACTIVE -> REGENERATING -> WAITING, with DISABLED and
// NEEDS_SETUP reachable from anywhere.
type Phase int

const (
	PhaseWaiting Phase = iota
	PhaseCountdown
	PhaseActive
	PhaseRegenerating
	PhaseNeedsSetup
	PhaseDisabled
)

var phaseNames = [...]string{
	PhaseWaiting:      "WAITING",
	PhaseCountdown:    "COUNTDOWN",
	PhaseActive:       "ACTIVE",
	PhaseRegenerating: "REGENERATING",
	PhaseNeedsSetup:   "NEEDS_SETUP",
	PhaseDisabled:     "DISABLED",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "UNKNOWN"
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Joinable reports whether new players may be admitted in this phase.
func (p Phase) Joinable() bool {
	return p == PhaseWaiting || p == PhaseCountdown
}

// Authoritative phases are trusted as stored; every other phase is re-derived from the
// enabled flag and setup completeness before use.
func (p Phase) Authoritative() bool {
	return p == PhaseActive || p == PhaseRegenerating
}

var transitions = map[Phase][]Phase{
	PhaseWaiting:      {PhaseCountdown, PhaseRegenerating},
	PhaseCountdown:    {PhaseActive, PhaseWaiting},
	PhaseActive:       {PhaseRegenerating, PhaseWaiting},
	PhaseRegenerating: {PhaseWaiting},
	PhaseNeedsSetup:   {PhaseWaiting},
	PhaseDisabled:     {PhaseWaiting},
}

// CanTransition reports whether from -> to is an edge of the phase machine.
func CanTransition(from, to Phase) bool {
	if from == to {
		return false
	}
	if to == PhaseDisabled || to == PhaseNeedsSetup {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
