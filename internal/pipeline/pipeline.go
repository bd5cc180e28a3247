// Package pipeline drives a full decompilation run: container decode,
// then per-function instruction decoding, lifting, structuring and
// emission. Functions are independent of each other and decompile
// concurrently on a bounded worker pool.
package pipeline

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/zboralski/lattice"

	"deqjs/internal/bytecode"
	"deqjs/internal/cfg"
	"deqjs/internal/container"
	"deqjs/internal/deob"
	"deqjs/internal/emit"
	"deqjs/internal/lift"
	"deqjs/internal/optimize"
	"deqjs/internal/qjs"
	"deqjs/internal/structure"
)

// FuncResult is one decompiled function.
type FuncResult struct {
	Name     string
	Text     string
	Fallback bool // lifting failed, Text is a disasm listing
	Diags    []qjs.Diagnostic
	CFG      *lattice.FuncCFG
}

// Output is the result of a whole-module run.
type Output struct {
	Version qjs.Version
	Funcs   []FuncResult
	Diags   []qjs.Diagnostic // container-level diagnostics
}

// Decompile decodes data and decompiles every function in it. A container
// decode failure is fatal; a per-function lifting failure degrades that
// function to a disasm listing with a diagnostic, even in Strict mode, so
// one hostile function cannot hide the rest of the module.
func Decompile(data []byte, opts qjs.Options) (*Output, error) {
	res, err := container.DecodeOpt(data, opts)
	if err != nil {
		return nil, err
	}
	mod := res.Value

	funcs := mod.Functions()
	out := &Output{
		Version: mod.Version,
		Funcs:   make([]FuncResult, len(funcs)),
		Diags:   res.Diags,
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > len(funcs) {
		workers = len(funcs)
	}
	if workers < 1 {
		workers = 1
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, fn := range funcs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, fn *qjs.FunctionInfo) {
			defer wg.Done()
			defer func() { <-sem }()
			out.Funcs[i] = decompileFunc(fn, mod.Atoms, i, opts)
		}(i, fn)
	}
	wg.Wait()
	return out, nil
}

func decompileFunc(fn *qjs.FunctionInfo, atoms *qjs.AtomTable, idx int, opts qjs.Options) FuncResult {
	name := lift.DisplayName(fn, idx, opts.Deobfuscate)
	r := FuncResult{Name: name}

	dres, err := bytecode.Decode(fn.Bytecode, opts.Mode)
	r.Diags = tag(dres.Diags, name)
	if err != nil {
		r.Diags = append(r.Diags, qjs.Diagnostic{
			Kind: "invalid", Msg: err.Error(), Func: name,
		})
		r.Text = fmt.Sprintf("// decode error: %v\n", err)
		return r
	}
	instrs := dres.Value

	g := cfg.Build(instrs)
	for _, b := range g.Unreachable() {
		r.Diags = append(r.Diags, qjs.Diagnostic{
			Offset: g.Blocks[b].Start,
			Kind:   "unreachable",
			Msg:    fmt.Sprintf("block at %d is unreachable", g.Blocks[b].Start),
			Func:   name,
		})
	}
	for _, e := range g.IrreducibleEdges() {
		r.Diags = append(r.Diags, qjs.Diagnostic{
			Offset: g.Blocks[e.Head].Start,
			Kind:   "unstructured",
			Msg: fmt.Sprintf("irreducible control flow: edge %d -> %d enters a loop from the side",
				g.Blocks[e.Tail].Start, g.Blocks[e.Head].Start),
			Func: name,
		})
	}

	if opts.Emit == qjs.EmitDisasm {
		r.Text = emit.Disasm(fn, atoms, instrs)
		r.CFG = cfg.ToLattice(name, g, nil)
		return r
	}

	lres, err := lift.Function(fn, atoms, g, lift.Options{
		Mode:        opts.Mode,
		Deobfuscate: opts.Deobfuscate,
		FuncName:    name,
	})
	r.Diags = append(r.Diags, tag(lres.Diags, name)...)
	if err != nil {
		r.Diags = append(r.Diags, qjs.Diagnostic{
			Kind: "stack_mismatch", Msg: err.Error(), Func: name,
		})
		r.Fallback = true
		r.Text = emit.Disasm(fn, atoms, instrs)
		r.CFG = cfg.ToLattice(name, g, nil)
		return r
	}
	lifted := lres.Value

	stmts, sdiags := structure.Statements(lifted.Stmts, opts.EffectiveMaxSteps())
	r.Diags = append(r.Diags, tag(sdiags, name)...)

	if opts.Deobfuscate {
		stmts = deob.Apply(stmts, deob.Options{
			StringTables: lifted.StringTables,
			MaxSteps:     opts.EffectiveMaxSteps(),
		})
	}
	if opts.Optimize {
		stmts = optimize.Apply(stmts, opts.EffectiveMaxSteps())
	}

	params := make([]string, 0, len(lifted.Bindings))
	for _, b := range lifted.Bindings {
		if b.Kind == lift.BindParam {
			params = append(params, b.Name)
		}
	}
	r.Text = emit.Function(name, params, stmts)
	r.CFG = cfg.ToLattice(name, g, lifted.Calls)
	return r
}

func tag(diags []qjs.Diagnostic, name string) []qjs.Diagnostic {
	out := make([]qjs.Diagnostic, len(diags))
	for i, d := range diags {
		d.Func = name
		out[i] = d
	}
	return out
}

// Text concatenates per-function output, blank-line separated, entry
// function first.
func (o *Output) Text() string {
	parts := make([]string, len(o.Funcs))
	for i, f := range o.Funcs {
		parts[i] = f.Text
	}
	return strings.Join(parts, "\n")
}

// Warnings flattens container and per-function diagnostics in function
// order.
func (o *Output) Warnings() []qjs.Diagnostic {
	var all []qjs.Diagnostic
	all = append(all, o.Diags...)
	for _, f := range o.Funcs {
		all = append(all, f.Diags...)
	}
	return all
}

// Graph assembles the per-function control flow graphs into one module
// graph for DOT export. Functions whose bytecode failed to decode have
// no graph and are skipped.
func (o *Output) Graph() *lattice.CFGGraph {
	var funcs []*lattice.FuncCFG
	for _, f := range o.Funcs {
		if f.CFG != nil {
			funcs = append(funcs, f.CFG)
		}
	}
	return cfg.ModuleGraph(funcs)
}
