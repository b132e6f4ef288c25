// Package backend orders the compilation pipeline for each function
// (spec.md §4.14) and writes the assembled unit: register targeting,
// def-use/liveness, spilling per class, copy insertion, live-range
// splitting, coloring, coalescing, slot coloring, stack arrangement,
// and emission. Functions are independent, so the driver can fan them
// out across goroutines behind a WaitGroup, each writing into its own
// buffer, with only the constant pool shared (and internally locked).
package backend

import (
	"bytes"
	"io"
	"log/slog"
	"sync"

	"github.com/nc-labs/ssabe/archx64"
	"github.com/nc-labs/ssabe/cfg"
	"github.com/nc-labs/ssabe/coalesce"
	"github.com/nc-labs/ssabe/codegen"
	"github.com/nc-labs/ssabe/color"
	"github.com/nc-labs/ssabe/dom"
	"github.com/nc-labs/ssabe/ir"
	"github.com/nc-labs/ssabe/layout"
	"github.com/nc-labs/ssabe/liveness"
	"github.com/nc-labs/ssabe/spill"
	"github.com/nc-labs/ssabe/split"
	"github.com/nc-labs/ssabe/ssabuild"
	"github.com/nc-labs/ssabe/vectorize"
)

// Options configure one compilation.
type Options struct {
	Arch        *archx64.Arch
	Entry       string // symbol _start calls; defaults to "main"
	Concurrency int    // goroutines compiling functions; <=1 is serial
	Log         *slog.Logger

	// VecReport receives the vectorizer's un-vectorizable-type
	// diagnostics (spec.md §7's one retained channel).
	VecReport vectorize.ReportFunc
}

// Compile lowers every function and writes a complete assembly unit:
// .text, the functions in input order, the _start routine, and the
// constant pool.
func Compile(fns []*ir.Function, opts Options, w io.Writer) error {
	if opts.Arch == nil {
		opts.Arch = archx64.New()
	}
	if opts.Entry == "" {
		opts.Entry = "main"
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}

	pool := layout.NewConstPool()
	emitter := codegen.New(opts.Arch, pool)
	vec := vectorize.New(opts.VecReport)

	bufs := make([]bytes.Buffer, len(fns))
	if opts.Concurrency > 1 {
		var wg sync.WaitGroup
		sem := make(chan struct{}, opts.Concurrency)
		for idx := range fns {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				compileFunction(fns[idx], idx, opts, emitter, vec, &bufs[idx])
			}(idx)
		}
		wg.Wait()
	} else {
		for idx := range fns {
			compileFunction(fns[idx], idx, opts, emitter, vec, &bufs[idx])
		}
	}

	emitter.Prelude(w)
	for idx := range bufs {
		if _, err := w.Write(bufs[idx].Bytes()); err != nil {
			return err
		}
	}
	emitter.Start(w, opts.Entry)
	emitter.Constants(w)
	return nil
}

// compileFunction runs the full per-function pass order of spec.md
// §4.14 and emits the function into buf.
func compileFunction(f *ir.Function, idx int, opts Options, emitter *codegen.Emitter, vec *vectorize.Vectorizer, buf *bytes.Buffer) {
	arch := opts.Arch
	opts.Log.Debug("compiling function", "name", f.Name)

	cfg.Build(f)
	dom.Compute(f)
	ssabuild.Build(f)
	vec.Run(f)

	refresh := func() {
		liveness.ComputeDefUse(f)
		liveness.Compute(f)
	}

	refresh()
	registerTargeting(f, arch)
	refresh()

	gpRes := arch.Reservoir(ir.RClass)
	fpRes := arch.Reservoir(ir.FClass)

	spill.New(len(gpRes), ir.RClass).Run(f)
	refresh()
	spill.New(len(fpRes), ir.FClass).Run(f)
	refresh()

	split.InsertCopies(f)
	refresh()
	split.SplitLiveRanges(f)
	refresh()

	color.Regs(f, ir.RClass, gpRes)
	color.Regs(f, ir.FClass, fpRes)
	coalesce.Run(f, ir.RClass, gpRes)
	coalesce.Run(f, ir.FClass, fpRes)

	var slots [archx64.NumPlaces]int
	slots[archx64.PlaceQuad] = color.Slots(f, ir.RClass)
	slots[archx64.PlaceOct] = color.Slots(f, ir.FClass)

	layout.Arrange(f, slots, numPushes(f, arch))

	emitter.Function(buf, f, idx)
}

// numPushes counts the callee-save registers the function's coloring
// actually touched; codegen re-derives the same set for the prologue
// and asserts agreement.
func numPushes(f *ir.Function, arch *archx64.Arch) int {
	used := map[int]bool{}
	for _, v := range f.Vars() {
		if !v.IsMem && !v.IsSpilled && v.Color >= 0 && ir.ClassOf(v.Typ) == ir.RClass {
			used[v.Color] = true
		}
	}
	n := 0
	for _, c := range arch.CalleeSaved() {
		if used[c] {
			n++
		}
	}
	return n
}
