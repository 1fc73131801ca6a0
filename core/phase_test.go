package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhase_Cycle(t *testing.T) {
	assert.Equal(t, PhaseMiddle, PhasePre.Next())
	assert.Equal(t, PhaseLate, PhaseMiddle.Next())
	assert.Equal(t, PhaseEnd, PhaseLate.Next())
	assert.Equal(t, PhasePre, PhaseEnd.Next())
}

func TestPhase_String(t *testing.T) {
	for p, want := range map[Phase]string{
		PhasePre:    "pre",
		PhaseMiddle: "middle",
		PhaseLate:   "late",
		PhaseEnd:    "end",
		Phase(7):    "Phase(7)",
	} {
		assert.Equal(t, want, p.String())
	}
	assert.True(t, PhaseLate.Valid())
	assert.False(t, Phase(4).Valid())
	assert.False(t, Phase(-1).Valid())
}

func TestControlBinding(t *testing.T) {
	var b controlBinding
	assert.False(t, b.bound())
	assert.False(t, b.isCurrent())

	assert.True(t, b.bind())
	assert.True(t, b.isCurrent())
	onOtherGoroutine(func() {
		assert.False(t, b.isCurrent())
		assert.False(t, b.bind())
	})

	b.unbind()
	assert.False(t, b.bound())
}
