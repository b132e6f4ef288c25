package ir

import "testing"

func stream(l *InstrList) []*Instr {
	var out []*Instr
	for i := l.Front(); i != nil; i = i.Next() {
		out = append(out, i)
	}
	return out
}

func TestInsertBeforeAfter(t *testing.T) {
	var l InstrList
	a, b, c := NewLabel(), NewInstr(OpNop), NewLabel()
	l.PushBack(a)
	l.PushBack(c)
	l.InsertBefore(b, c)

	got := stream(&l)
	if len(got) != 3 || got[0] != a || got[1] != b || got[2] != c {
		t.Fatalf("InsertBefore misplaced the node")
	}

	d := NewInstr(OpNop)
	l.InsertAfter(d, c)
	if l.Back() != d || c.Next() != d || d.Prev() != c {
		t.Fatalf("InsertAfter at the tail broke the links")
	}
	if l.Len() != 4 {
		t.Fatalf("length %d after 4 insertions", l.Len())
	}
}

func TestRemoveKeepsNeighborsLinked(t *testing.T) {
	var l InstrList
	a, b, c := NewLabel(), NewInstr(OpNop), NewLabel()
	l.PushBack(a)
	l.PushBack(b)
	l.PushBack(c)

	l.Remove(b)
	if a.Next() != c || c.Prev() != a {
		t.Fatalf("removing the middle node broke its neighbors")
	}
	// The erased node's own links survive one step, per the iterator
	// contract.
	if b.Next() != c || b.Prev() != a {
		t.Fatalf("erased node should still see its old neighbors")
	}

	l.Remove(a)
	l.Remove(c)
	if l.Front() != nil || l.Back() != nil || l.Len() != 0 {
		t.Fatalf("emptied list still reports contents")
	}
}

func TestConstInterning(t *testing.T) {
	f := NewFunction("consts")
	if f.Const(TypeInt32, 7) != f.Const(TypeInt32, 7) {
		t.Fatalf("same (type, bits) should intern to one Const")
	}
	if f.Const(TypeInt32, 7) == f.Const(TypeInt64, 7) {
		t.Fatalf("different types must not share a Const")
	}
	if f.Undef(TypeBool) != f.Undef(TypeBool) {
		t.Fatalf("Undef should intern per type")
	}
}
