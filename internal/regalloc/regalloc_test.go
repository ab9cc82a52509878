package regalloc

import (
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

func TestGetOrAllocateIdempotent(t *testing.T) {
	a, err := New("rdi")
	assert.NoError(t, err)

	rax := a.GetOrAllocate("rax")
	assert.Equal(t, Slot(1), rax)
	assert.Equal(t, rax, a.GetOrAllocate("rax"))
	assert.Equal(t, rax, a.GetOrAllocate("rax"))
	assert.Equal(t, uint32(2), a.SlotCount())
}

func TestFirstParameterSlotZero(t *testing.T) {
	a, err := New("rdi", "rsi")
	assert.NoError(t, err)

	// parameters are reserved before any other register is seen
	assert.Equal(t, Slot(2), a.GetOrAllocate("rax"))
	assert.Equal(t, Slot(0), a.GetOrAllocate("rdi"))
	assert.Equal(t, Slot(1), a.GetOrAllocate("rsi"))
	assert.Equal(t, uint32(2), a.Params())
}

func TestDistinctRegistersDistinctSlots(t *testing.T) {
	a, err := New("rdi")
	assert.NoError(t, err)

	seen := map[Slot]string{}
	for _, reg := range []string{"rax", "rcx", "rdx", "rdi", "r8", "r15"} {
		slot := a.GetOrAllocate(reg)
		if other, ok := seen[slot]; ok && other != reg {
			t.Fatalf("registers %s and %s share slot %d", reg, other, slot)
		}
		seen[slot] = reg
	}
	assert.Equal(t, uint32(6), a.SlotCount())
}

func TestFlagSlotShared(t *testing.T) {
	a, err := New("rdi")
	assert.NoError(t, err)

	flag := a.GetOrAllocateFlag()
	a.GetOrAllocate("rax")
	assert.Equal(t, flag, a.GetOrAllocateFlag())
	assert.True(t, flag != a.GetOrAllocate("rax"))
	assert.True(t, flag != a.GetOrAllocateState())
	assert.Equal(t, uint32(4), a.SlotCount())
}

func TestDuplicateParameter(t *testing.T) {
	_, err := New("rdi", "rdi")
	assert.Error(t, err)
}

func TestNoParameters(t *testing.T) {
	a, err := New[string]()
	assert.NoError(t, err)
	assert.Equal(t, Slot(0), a.GetOrAllocate("rax"))
	assert.Equal(t, uint32(0), a.Params())
}

func TestNames(t *testing.T) {
	a, err := New("rdi")
	assert.NoError(t, err)
	a.GetOrAllocateFlag()
	a.GetOrAllocate("rax")

	names := a.Names(func(s string) string { return s })
	assert.Equal(t, []string{"rdi", "flags", "rax"}, names)
}
