package stage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidTransitions(t *testing.T) {
	m := NewMachine()

	cases := []struct {
		from, to Stage
	}{
		{Pending, Intake},
		{Pending, Failed},
		{Intake, Clarification},
		{Intake, Provisioning},
		{Clarification, Intake},
		{Clarification, Provisioning},
		{Provisioning, Implementation},
		{Implementation, PRCreation},
		{PRCreation, Completed},
		{Failed, Pending},
	}
	for _, c := range cases {
		assert.NoError(t, m.Validate(c.from, c.to), "%s -> %s should be legal", c.from, c.to)
	}
}

func TestInvalidTransitions(t *testing.T) {
	m := NewMachine()

	cases := []struct {
		from, to Stage
	}{
		{Completed, Pending},
		{Pending, Completed},
		{Pending, Provisioning},
		{Failed, Intake},
		{Completed, Failed},
	}
	for _, c := range cases {
		err := m.Validate(c.from, c.to)
		require.Error(t, err)
		var invalid *InvalidTransitionError
		assert.ErrorAs(t, err, &invalid)
	}
}

func TestCompletedIsTerminal(t *testing.T) {
	m := NewMachine()
	assert.Empty(t, m.Targets(Completed))
}

func TestAllStagesValid(t *testing.T) {
	for _, s := range All() {
		assert.True(t, Valid(s))
	}
	assert.False(t, Valid(Stage("bogus")))
}
