package stage

import "fmt"

// InvalidTransitionError reports an attempt to move between two stages that
// the transition graph does not permit.
type InvalidTransitionError struct {
	From Stage
	To   Stage
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

// Machine validates moves against the directed transition graph. It holds
// no per-issue state; it is the single source of truth for legality and
// never special-cased by callers.
type Machine struct {
	graph map[Stage][]Stage
}

// NewMachine builds the machine with the fixed transition graph.
func NewMachine() *Machine {
	return &Machine{graph: map[Stage][]Stage{
		Pending:        {Intake, Failed},
		Intake:         {Clarification, Provisioning, Failed},
		Clarification:  {Intake, Provisioning, Failed},
		Provisioning:   {Implementation, Failed},
		Implementation: {PRCreation, Failed},
		PRCreation:     {Completed, Failed},
		Completed:      {},
		Failed:         {Pending},
	}}
}

// Validate returns nil if to is a legal target from from, otherwise an
// *InvalidTransitionError.
func (m *Machine) Validate(from, to Stage) error {
	for _, candidate := range m.graph[from] {
		if candidate == to {
			return nil
		}
	}
	return &InvalidTransitionError{From: from, To: to}
}

// Targets returns the legal next stages from from, for introspection and
// tests; callers must not mutate the returned slice.
func (m *Machine) Targets(from Stage) []Stage {
	return m.graph[from]
}
