// Package vectorize is the scaffolding for the (out of scope)
// vectorization pass. What remains of it is its diagnostic surface:
// the front end registers a callback and the pass reports every type
// it cannot vectorize through it (spec.md §7's one retained channel).
package vectorize

import "github.com/nc-labs/ssabe/ir"

// Context tells the front end where an un-vectorizable type was seen.
type Context struct {
	Function string
	Instr    *ir.Instr
}

// ReportFunc receives an un-vectorizable type and its context.
type ReportFunc func(ir.Type, Context)

// Vectorizer is the pass-through stub. Run walks the function so the
// reporting plumbing stays exercised, but transforms nothing.
type Vectorizer struct {
	report ReportFunc
}

func New(report ReportFunc) *Vectorizer {
	return &Vectorizer{report: report}
}

// Run reports every 128-bit aggregate operand, the one shape the
// scalar back end cannot widen further, and leaves the IR untouched.
func (v *Vectorizer) Run(f *ir.Function) {
	if v.report == nil {
		return
	}
	for i := f.Instrs.Front(); i != nil; i = i.Next() {
		for _, a := range i.Args {
			if a.Val.Type() == ir.TypeVec128 {
				v.report(ir.TypeVec128, Context{Function: f.Name, Instr: i})
			}
		}
	}
}
