package gates

import "fmt"

var transitions = map[State][]State{
	StateIdle:         {StateScanning},
	StateScanning:     {StatePerUnitCheck, StateAggregating},
	StatePerUnitCheck: {StatePerUnitCheck, StateAggregating},
	StateAggregating:  {StatePassed, StateFailedSoft, StateFailedHard},
}

// machine records the state trace of one run and rejects illegal transitions.
type machine struct {
	state State
	trace []State
}

func newMachine() *machine {
	return &machine{state: StateIdle, trace: []State{StateIdle}}
}

func (m *machine) to(next State) error {
	for _, allowed := range transitions[m.state] {
		if allowed == next {
			m.state = next
			m.trace = append(m.trace, next)
			return nil
		}
	}
	return fmt.Errorf("illegal gate engine transition %s -> %s", m.state, next)
}
