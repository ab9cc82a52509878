// Package regalloc maps machine registers to WebAssembly local slots.
package regalloc

import "fmt"

// Slot is the index of a WebAssembly local.
type Slot uint32

// synthetic register names used in the debug name section.
const (
	flagName  = "flags"
	stateName = "state"
)

// Allocator assigns every distinct register a permanent slot in order of
// first use. Slots are never reused or released.
type Allocator[R comparable] struct {
	slots  map[R]Slot
	order  []R
	params int

	flag     Slot
	hasFlag  bool
	state    Slot
	hasState bool

	synthetic map[Slot]string // debug names of flag and state slots
	count     Slot
}

// New returns an allocator that reserves slots 0..len(params)-1 for the
// parameter registers in the given order.
func New[R comparable](params ...R) (*Allocator[R], error) {
	a := &Allocator[R]{
		slots:     make(map[R]Slot),
		synthetic: make(map[Slot]string),
	}
	for _, reg := range params {
		if _, ok := a.slots[reg]; ok {
			return nil, fmt.Errorf("parameter register %v reserved twice", reg)
		}
		a.GetOrAllocate(reg)
	}
	a.params = len(params)
	return a, nil
}

// GetOrAllocate returns the slot of the register, allocating the next free
// slot on first use.
func (a *Allocator[R]) GetOrAllocate(reg R) Slot {
	if slot, ok := a.slots[reg]; ok {
		return slot
	}
	slot := a.next()
	a.slots[reg] = slot
	a.order = append(a.order, reg)
	return slot
}

// GetOrAllocateFlag returns the single slot shared by all comparison
// results. A later comparison overwrites the result of an earlier one.
func (a *Allocator[R]) GetOrAllocateFlag() Slot {
	if !a.hasFlag {
		a.flag = a.next()
		a.hasFlag = true
		a.synthetic[a.flag] = flagName
	}
	return a.flag
}

// GetOrAllocateState returns the slot holding the next block of a dispatch
// loop.
func (a *Allocator[R]) GetOrAllocateState() Slot {
	if !a.hasState {
		a.state = a.next()
		a.hasState = true
		a.synthetic[a.state] = stateName
	}
	return a.state
}

// SlotCount returns the total number of allocated slots.
func (a *Allocator[R]) SlotCount() uint32 {
	return uint32(a.count)
}

// Params returns the number of slots reserved for parameters.
func (a *Allocator[R]) Params() uint32 {
	return uint32(a.params)
}

// Names returns the debug names of all slots in slot order, using name to
// render register identities.
func (a *Allocator[R]) Names(name func(R) string) []string {
	names := make([]string, a.count)
	for _, reg := range a.order {
		names[a.slots[reg]] = name(reg)
	}
	for slot, s := range a.synthetic {
		names[slot] = s
	}
	return names
}

func (a *Allocator[R]) next() Slot {
	slot := a.count
	a.count++
	return slot
}
