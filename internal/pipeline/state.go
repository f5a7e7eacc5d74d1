package pipeline

import (
	"fmt"
	"sync"
	"time"

	"mirage/internal/stage"
)

// State is a milestone of the run state machine.
type State string

const (
	StateInit             State = "init"
	StateDataGathering    State = "data_gathering"
	StateAudioSynthesis   State = "audio_synthesis"
	StateVisualGeneration State = "visual_generation"
	StateMotionSynthesis  State = "motion_synthesis"
	StateAssembly         State = "assembly"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

var transitions = map[State][]State{
	StateInit:             {StateDataGathering, StateFailed},
	StateDataGathering:    {StateAudioSynthesis, StateFailed},
	StateAudioSynthesis:   {StateVisualGeneration, StateFailed},
	StateVisualGeneration: {StateMotionSynthesis, StateAssembly, StateFailed},
	StateMotionSynthesis:  {StateAssembly, StateFailed},
	StateAssembly:         {StateDone, StateFailed},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// StateFor maps a stage to the state that represents it running.
func StateFor(id stage.ID) State {
	return State(id)
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition is one recorded state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// ErrIllegalTransition flags a bug in the orchestrator, never a tool failure.
type ErrIllegalTransition struct {
	From, To State
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal pipeline transition %s -> %s", e.From, e.To)
}

type machine struct {
	mu      sync.Mutex
	current State
	history []Transition
	now     func() time.Time
}

func newMachine(now func() time.Time) *machine {
	return &machine{current: StateInit, now: now}
}

func (m *machine) advance(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !CanTransition(m.current, to) {
		return &ErrIllegalTransition{From: m.current, To: to}
	}
	m.history = append(m.history, Transition{From: m.current, To: to, At: m.now()})
	m.current = to
	return nil
}

func (m *machine) state() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *machine) transitions() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transition(nil), m.history...)
}
