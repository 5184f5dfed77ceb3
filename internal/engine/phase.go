package engine

import (
	"errors"
	"fmt"
)

// Phase is one stage of a turn.
type Phase uint8

const (
	PhaseIdle        Phase = iota // Between turns
	PhasePlanning                 // Accepting actions
	PhaseExecution                // Applying queued actions
	PhaseResolution               // Deaths, succession, births, marriages
	PhaseAdvancement              // Flushing events, advancing the year
)

var phaseNames = [...]string{"idle", "planning", "execution", "resolution", "advancement"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

// transitions lists the single legal successor of every phase.
var transitions = map[Phase]Phase{
	PhaseIdle:        PhasePlanning,
	PhasePlanning:    PhaseExecution,
	PhaseExecution:   PhaseResolution,
	PhaseResolution:  PhaseAdvancement,
	PhaseAdvancement: PhaseIdle,
}

// ErrIllegalTransition is returned for an out-of-order phase change.
var ErrIllegalTransition = errors.New("illegal phase transition")

// ErrTurnInProgress is returned when a turn is started while another turn
// of the same pipeline is running.
var ErrTurnInProgress = errors.New("turn in progress")

// phaseMachine tracks the current phase of one pipeline.
type phaseMachine struct {
	current Phase
}

// enter moves to the next phase, refusing skips and re-entry.
func (m *phaseMachine) enter(next Phase) error {
	if want, ok := transitions[m.current]; !ok || want != next {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, m.current, next)
	}
	m.current = next
	return nil
}
