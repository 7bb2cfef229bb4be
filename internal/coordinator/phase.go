// SPDX-License-Identifier: MIT

package coordinator

// Phase represents the lifecycle state of one optimistic mutation.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSpeculative
	PhaseCommitted
	PhaseRolledBack
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseSpeculative:
		return "Speculative"
	case PhaseCommitted:
		return "Committed"
	case PhaseRolledBack:
		return "RolledBack"
	default:
		return "Unknown"
	}
}

// IsTerminal returns true if the phase is terminal (no further transitions).
func (p Phase) IsTerminal() bool {
	return p == PhaseCommitted || p == PhaseRolledBack
}

// CanTransition validates if a phase transition is legal.
func CanTransition(from, to Phase) bool {
	switch from {
	case PhaseIdle:
		return to == PhaseSpeculative
	case PhaseSpeculative:
		return to == PhaseCommitted || to == PhaseRolledBack
	default:
		// Terminal phases cannot transition
		return false
	}
}
