package ir

import (
	"fmt"
	"strings"
)

// ReferenceBuilder is a minimal in-memory Builder/Module implementation.
// It exists so the recompiler driver's own test suite can exercise the
// lowering pipeline end-to-end without a real JIT backend wired in. It
// is test infrastructure, not a JIT: it records each emitted operation
// as a line of text and can dump them back out.
type ReferenceBuilder struct {
	module  *refModule
	current *refBlock
}

// NewReferenceModule creates a fresh in-memory module together with a
// Builder that emits into it.
func NewReferenceModule(name string) (Module, Builder) {
	mod := &refModule{name: name, funcs: map[string]*refFunc{}}
	return mod, &ReferenceBuilder{module: mod}
}

type refModule struct {
	name  string
	order []string
	funcs map[string]*refFunc
}

func (m *refModule) Name() string { return m.name }

func (m *refModule) DeclareFunction(name string, sig Signature) Func {
	f := &refFunc{name: name, sig: sig, blocks: map[string]*refBlock{}}
	m.funcs[name] = f
	m.order = append(m.order, name)
	return f
}

func (m *refModule) Dump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "module %s\n", m.name)
	for _, name := range m.order {
		f := m.funcs[name]
		fmt.Fprintf(&b, "func %s%s -> %s\n", f.name, paramString(f.sig.Params), typeString(f.sig.Return))
		for _, bname := range f.order {
			blk := f.blocks[bname]
			fmt.Fprintf(&b, "  block %s:\n", blk.name)
			for _, line := range blk.ops {
				fmt.Fprintf(&b, "    %s\n", line)
			}
		}
	}
	return b.String()
}

type refFunc struct {
	name   string
	sig    Signature
	order  []string
	blocks map[string]*refBlock
	passes [][]string
}

func (f *refFunc) Name() string { return f.name }

func (f *refFunc) NewBlock(name string) Block {
	blk := &refBlock{name: name}
	f.blocks[name] = blk
	f.order = append(f.order, name)
	return blk
}

type refBlock struct {
	name string
	ops  []string
}

func (b *refBlock) Name() string { return b.name }

func (b *ReferenceBuilder) SetInsertPoint(block Block) {
	b.current = block.(*refBlock)
}

func (b *ReferenceBuilder) Br(target Block) {
	b.current.ops = append(b.current.ops, fmt.Sprintf("br %s", target.Name()))
}

func (b *ReferenceBuilder) Ret() {
	b.current.ops = append(b.current.ops, "ret")
}

func (b *ReferenceBuilder) RunPasses(fn Func, pipeline []string) error {
	rf := fn.(*refFunc)
	rf.passes = append(rf.passes, pipeline)
	for _, blk := range rf.blocks {
		blk.ops = append(blk.ops, fmt.Sprintf("; passes: %s", strings.Join(pipeline, ",")))
	}
	return nil
}

func (b *ReferenceBuilder) Verify(fn Func) error {
	rf := fn.(*refFunc)
	for _, name := range rf.order {
		blk := rf.blocks[name]
		if len(blk.ops) == 0 {
			return fmt.Errorf("ir: block %s in function %s has no terminator", name, rf.name)
		}
	}
	return nil
}

func paramString(params []Type) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = typeString(p)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func typeString(t Type) string {
	switch t.Kind {
	case I64:
		return "i64"
	case F64:
		return "f64"
	case I128:
		return "i128"
	default:
		return "void"
	}
}
