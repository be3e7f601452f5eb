package timeline

// Phase is one contiguous named interval of a chat room's scripted lifetime.
type Phase string

const (
	PhasePreSecret     Phase = "PRE_SECRET"
	PhaseSecretMessage Phase = "SECRET_MESSAGE"
	PhaseCupidInterim  Phase = "CUPID_INTERIM"
	PhaseCupidMain     Phase = "CUPID_MAIN"
	PhasePostCupid     Phase = "POST_CUPID"
	PhaseClosed        Phase = "CLOSED"
)

// AllPhases returns every phase in ascending start-offset order.
func AllPhases() []Phase {
	return []Phase{
		PhasePreSecret,
		PhaseSecretMessage,
		PhaseCupidInterim,
		PhaseCupidMain,
		PhasePostCupid,
		PhaseClosed,
	}
}

// String returns the wire name of the phase
func (p Phase) String() string {
	return string(p)
}

// Valid reports whether p is one of the six known phases.
func (p Phase) Valid() bool {
	return p.index() >= 0
}

// Next returns the phase that follows p. CLOSED is terminal and returns itself.
func (p Phase) Next() Phase {
	i := p.index()
	if i < 0 || p == PhaseClosed {
		return PhaseClosed
	}
	return AllPhases()[i+1]
}

// Before reports whether p comes strictly earlier in the room lifetime than other.
func (p Phase) Before(other Phase) bool {
	return p.index() < other.index()
}

func (p Phase) index() int {
	for i, ph := range AllPhases() {
		if ph == p {
			return i
		}
	}
	return -1
}
