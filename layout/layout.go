// Package layout assigns concrete stack offsets to spill-slot colors
// and MemVars (spec.md §4.11) and owns the compilation-wide constant
// pool. Slot colors arrive from package color already dense per place;
// Arrange turns them into byte offsets and a 16-byte-aligned frame.
package layout

import (
	"sort"

	"github.com/nc-labs/ssabe/archx64"
	"github.com/nc-labs/ssabe/ir"
)

// Arrange computes each place's base offset, packs MemVars behind the
// places, and pads the frame so that stack size plus the callee-save
// push area is a multiple of 16 (the System V call-boundary alignment,
// spec.md §4.13). slotCount holds the number of slots each place needs.
func Arrange(f *ir.Function, slotCount [archx64.NumPlaces]int, numPushes int) {
	frame := &f.Frame
	frame.NumPushes = numPushes
	frame.PlaceBase = make([]int, archx64.NumPlaces)
	frame.PlaceSlots = make([]map[int]int, archx64.NumPlaces)
	frame.MemOffsets = map[*ir.Var]int{}

	offset := 0
	for place := 0; place < archx64.NumPlaces; place++ {
		size := archx64.PlaceSize[place]
		offset = archx64.AlignedOffset(offset, size)
		frame.PlaceBase[place] = offset
		frame.PlaceSlots[place] = map[int]int{}
		for slot := 0; slot < slotCount[place]; slot++ {
			frame.PlaceSlots[place][slot] = slot
		}
		offset += slotCount[place] * size
	}

	// MemVars pack behind the places in arena order.
	var memVars []*ir.Var
	for _, v := range f.Vars() {
		if v.IsMem {
			memVars = append(memVars, v)
		}
	}
	sort.Slice(memVars, func(i, j int) bool { return memVars[i].Number < memVars[j].Number })
	for _, v := range memVars {
		size := ir.ByteSize(v.Typ)
		offset = archx64.AlignedOffset(offset, size)
		frame.MemOffsets[v] = offset
		offset += size
	}

	// Pad so (stack size + push area) is 16-byte aligned.
	total := offset
	for (total+8*numPushes)%16 != 0 {
		total += 8
	}
	frame.TotalSize = total
}

// SlotOffset returns the RSP-relative byte offset of a spill slot
// after the prologue has run: the callee-save push area sits at the
// bottom of the frame, the places above it.
func SlotOffset(f *ir.Function, place, slot int) int {
	return 8*f.Frame.NumPushes + f.Frame.PlaceBase[place] + slot*archx64.PlaceSize[place]
}

// MemVarOffset returns the RSP-relative byte offset of a MemVar.
func MemVarOffset(f *ir.Function, v *ir.Var) int {
	return 8*f.Frame.NumPushes + f.Frame.MemOffsets[v]
}
