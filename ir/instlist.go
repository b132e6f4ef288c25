package ir

// The instruction stream is an intrusive doubly-linked list, the same
// shape as the teacher's emu/event event queue (prev/next pointers on
// the node itself, head/tail kept by the owning container) generalized
// from timed callbacks to instructions. Insert/erase invalidate only
// the pointer to the erased node; every other *Instr remains valid
// across insertions, which is what lets every pass splice freely
// without walking the whole function to fix up iterators.

// InstrList is the owning container for a Function's instruction
// stream. Each block opens with a Label; the list itself enforces no
// particular first or last instruction.
type InstrList struct {
	head *Instr
	tail *Instr
	len  int
}

func (l *InstrList) Front() *Instr { return l.head }
func (l *InstrList) Back() *Instr  { return l.tail }
func (l *InstrList) Len() int      { return l.len }

// PushBack appends instr at the end of the list.
func (l *InstrList) PushBack(instr *Instr) {
	instr.prev = l.tail
	instr.next = nil
	if l.tail != nil {
		l.tail.next = instr
	} else {
		l.head = instr
	}
	l.tail = instr
	l.len++
}

// InsertBefore splices instr immediately before mark. mark must belong
// to this list.
func (l *InstrList) InsertBefore(instr, mark *Instr) {
	instr.next = mark
	instr.prev = mark.prev
	if mark.prev != nil {
		mark.prev.next = instr
	} else {
		l.head = instr
	}
	mark.prev = instr
	l.len++
}

// InsertAfter splices instr immediately after mark. mark must belong to
// this list.
func (l *InstrList) InsertAfter(instr, mark *Instr) {
	instr.prev = mark
	instr.next = mark.next
	if mark.next != nil {
		mark.next.prev = instr
	} else {
		l.tail = instr
	}
	mark.next = instr
	l.len++
}

// Remove unlinks instr from the list. Only iterators pointing at instr
// itself are invalidated; instr.prev/instr.next remain valid for one
// more step so a caller mid-walk can still reach the neighbour it was
// heading to.
func (l *InstrList) Remove(instr *Instr) {
	if instr.prev != nil {
		instr.prev.next = instr.next
	} else {
		l.head = instr.next
	}
	if instr.next != nil {
		instr.next.prev = instr.prev
	} else {
		l.tail = instr.prev
	}
	l.len--
}

// Next and Prev expose the intrusive links for read-only traversal.
func (instr *Instr) Next() *Instr { return instr.next }
func (instr *Instr) Prev() *Instr { return instr.prev }
