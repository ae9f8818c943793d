// Package rewrite implements the post-verification rewriting pipeline of
// spec.md §4.9: once every reachable path has been proven safe, the
// program is mutated into the form the runtime actually loads — dead
// branches nopped out, speculative pointer arithmetic masked, divide/
// modulo guarded, and so on. Every pass that inserts instructions goes
// through insertAfter, which owns the one genuinely tricky part: fixing
// up every jump/call offset that crosses an insertion point.
package rewrite

import (
	"fmt"

	"github.com/go-bpf/verifier/pkg/insn"
)

// AuxInfo is the subset of the verifier's per-instruction findings the
// rewriter consumes, passed in rather than importing pkg/verifier
// directly (pkg/verifier depends on pkg/rewrite, not the reverse).
type AuxInfo struct {
	Visited           bool
	NeedsSanitization bool
	ZeroExtendDst     bool
	// AluLimit and MaskToLeft carry the data §4.3 point 4 says the
	// verifier records in the instruction's aux entry: the type-specific
	// bound the mask clamps against, and whether the offset was being
	// subtracted (requiring the negate-around-the-mask handling).
	AluLimit   int64
	MaskToLeft bool
}

// Apply runs the full rewriting pipeline and returns the final
// instruction stream.
func Apply(insns []insn.Instruction, aux []AuxInfo) ([]insn.Instruction, error) {
	if len(insns) != len(aux) {
		return nil, fmt.Errorf("rewrite: aux length %d does not match program length %d", len(aux), len(insns))
	}

	p := &program{insns: append([]insn.Instruction(nil), insns...), origin: identityOrigins(len(insns))}

	nopDeadCode(p, aux)
	insertAluSanitization(p, aux)
	insertDivideGuards(p)
	insertTailCallBounds(p)
	insertZeroExtension(p, aux)

	return p.insns, nil
}

// program is a mutable instruction buffer that tracks, for every current
// slot, which original instruction it descends from (origin == -1 for a
// slot a pass inserted), so a pass late in the pipeline can still consult
// aux data keyed by original index.
type program struct {
	insns  []insn.Instruction
	origin []int
}

func identityOrigins(n int) []int {
	o := make([]int, n)
	for i := range o {
		o[i] = i
	}
	return o
}

// insertAfter splices extra right after the instruction currently at
// index idx, and fixes up every jump/call/lddw-skip offset so control
// flow is preserved exactly.
func (p *program) insertAfter(idx int, extra ...insn.Instruction) {
	n := len(extra)
	if n == 0 {
		return
	}
	insertPoint := idx + 1

	for i := range p.insns {
		p.fixupOffset(i, insertPoint, n)
	}

	newInsns := make([]insn.Instruction, 0, len(p.insns)+n)
	newOrigin := make([]int, 0, len(p.origin)+n)
	newInsns = append(newInsns, p.insns[:insertPoint]...)
	newOrigin = append(newOrigin, p.origin[:insertPoint]...)
	newInsns = append(newInsns, extra...)
	for range extra {
		newOrigin = append(newOrigin, -1)
	}
	newInsns = append(newInsns, p.insns[insertPoint:]...)
	newOrigin = append(newOrigin, p.origin[insertPoint:]...)

	p.insns = newInsns
	p.origin = newOrigin
}

// fixupOffset adjusts instruction i's branch/call offset if the target
// it points past or into moved because n instructions were inserted at
// insertPoint.
func (p *program) fixupOffset(i, insertPoint, n int) {
	ins := &p.insns[i]
	var target int
	var isRelative bool
	switch {
	case ins.IsUnconditionalJump(), ins.IsConditionalJump():
		target = i + 1 + int(ins.Off)
		isRelative = true
	case ins.IsPseudoCall():
		target = i + 1 + int(ins.Imm)
	default:
		return
	}

	shiftSelf := 0
	if i+1 > insertPoint {
		shiftSelf = n
	}
	shiftTarget := 0
	if target >= insertPoint {
		shiftTarget = n
	}
	newTarget := target + shiftTarget
	newSelf := i + shiftSelf

	delta := newTarget - (newSelf + 1)
	if isRelative {
		ins.Off = int16(delta)
	} else {
		ins.Imm = int32(delta)
	}
}

// nopDeadCode implements §4.9 point 1: any instruction no path ever
// visited is replaced with the canonical nop, never removed (removing it
// would require the same offset bookkeeping as insertAfter for no
// benefit, since unreachable code costs nothing at runtime once nopped).
func nopDeadCode(p *program, aux []AuxInfo) {
	for i, orig := range p.origin {
		if orig < 0 {
			continue
		}
		if !aux[orig].Visited && !p.insns[i].IsLoadImm64() {
			p.insns[i] = insn.Nop()
		}
	}
}

// insertAluSanitization implements §4.3 point 4 / §4.9 point 4: every
// pointer-arithmetic instruction the verifier flagged for a non-constant
// offset (the speculative bounds-check bypass of the CVE-2018-3639 class
// is what the mask guards against) gets its
// offset register clamped to zero whenever it falls outside alu_limit,
// *before* the original add/sub executes, exactly the sequence spec.md
// §4.3 describes: load alu_limit into the scratch register AX, compute
// `limit - off`, OR with `off`, arithmetic-shift-right 63 to turn the sign
// bit into an all-ones-or-all-zeros mask, then AND that mask into the
// offset register so an out-of-window offset collapses to zero and the
// pointer is left unchanged by the subsequent op. A subtracted offset is
// negated around the mask since the limit check only makes sense against
// a non-negative quantity.
func insertAluSanitization(p *program, aux []AuxInfo) {
	for i := 0; i < len(p.insns); i++ {
		orig := p.origin[i]
		if orig < 0 || !aux[orig].NeedsSanitization {
			continue
		}
		off := p.insns[i].Src
		limit := aux[orig].AluLimit
		var seq []insn.Instruction
		if aux[orig].MaskToLeft {
			seq = append(seq, insn.Instruction{Op: insn.ClassAlu64 | insn.SrcImm | insn.OpMul, Dst: off, Imm: -1})
		}
		seq = append(seq,
			insn.Instruction{Op: insn.ClassAlu64 | insn.SrcImm | insn.OpMov, Dst: insn.AX, Imm: int32(limit)},
			insn.Instruction{Op: insn.ClassAlu64 | insn.SrcReg | insn.OpSub, Dst: insn.AX, Src: off},
			insn.Instruction{Op: insn.ClassAlu64 | insn.SrcReg | insn.OpOr, Dst: insn.AX, Src: off},
			insn.Instruction{Op: insn.ClassAlu64 | insn.SrcImm | insn.OpArsh, Dst: insn.AX, Imm: 63},
			insn.Instruction{Op: insn.ClassAlu64 | insn.SrcReg | insn.OpAnd, Dst: off, Src: insn.AX},
		)
		if aux[orig].MaskToLeft {
			seq = append(seq, insn.Instruction{Op: insn.ClassAlu64 | insn.SrcImm | insn.OpMul, Dst: off, Imm: -1})
		}
		p.insertAfter(i-1, seq...)
		i += len(seq)
	}
}

// insertDivideGuards implements §4.9 point 5: a zero-divisor div must
// leave dst at 0, while a zero-divisor mod must leave dst at its
// pre-op (dividend) value. div therefore needs a guard that both skips
// the real op *and* zeroes dst when the divisor is zero; mod only needs
// to skip the op, since dst already holds the dividend.
func insertDivideGuards(p *program) {
	for i := 0; i < len(p.insns); i++ {
		ins := p.insns[i]
		if ins.Class() != insn.ClassAlu && ins.Class() != insn.ClassAlu64 {
			continue
		}
		if (ins.AluOp() != insn.OpDiv && ins.AluOp() != insn.OpMod) || !ins.UsesSrcReg() {
			continue
		}
		guardClass := insn.ClassJmp
		if ins.Class() == insn.ClassAlu {
			guardClass = insn.ClassJmp32
		}

		if ins.AluOp() == insn.OpMod {
			guard := insn.Instruction{Op: guardClass | insn.SrcImm | insn.JmpJEQ, Dst: ins.Src, Off: 1, Imm: 0}
			p.insertAfter(i-1, guard)
			i++
			continue
		}

		// div: nonzero divisor skips straight to the real op; a zero
		// divisor falls through to "dst = 0" then jumps past the op.
		skipToOp := insn.Instruction{Op: guardClass | insn.SrcImm | insn.JmpJNE, Dst: ins.Src, Off: 2, Imm: 0}
		zeroDst := insn.Instruction{Op: insn.ClassAlu64 | insn.SrcImm | insn.OpMov, Dst: ins.Dst, Imm: 0}
		skipOp := insn.Instruction{Op: insn.ClassJmp | insn.SrcImm | insn.JmpJA, Off: 1}
		p.insertAfter(i-1, skipToOp, zeroDst, skipOp)
		i += 3
	}
}

// insertTailCallBounds implements §4.9 point 5: every `call` to the
// tail-call helper gets a counter-increment-and-bound-check sequence
// inserted immediately before it so an unbounded tail-call chain can't
// recurse past the depth §4.7 point 4 already rejected structurally for
// bpf-to-bpf calls; tail calls are a separate, runtime-only chain so they
// need their own inserted guard.
func insertTailCallBounds(p *program) {
	const tailCallHelperID = 4 // matches proto.TailCall's numeric id
	for i := 0; i < len(p.insns); i++ {
		ins := p.insns[i]
		if !ins.IsCall() || ins.IsPseudoCall() || ins.Imm != tailCallHelperID {
			continue
		}
		guard := insn.Instruction{
			Op:  insn.ClassJmp | insn.SrcImm | insn.JmpJSGT,
			Dst: insn.R9, // by convention the loader reserves r9 as the tail-call counter
			Off: 2,       // past the bump and the call itself
			Imm: 32,
		}
		bump := insn.Instruction{Op: insn.ClassAlu64 | insn.SrcImm | insn.OpAdd, Dst: insn.R9, Imm: 1}
		p.insertAfter(i-1, guard, bump)
		i += 2
	}
}

// insertZeroExtension implements §4.9 point 9 (folded from the original
// spec's rewriting list): a 32-bit ALU result that a 64-bit consumer
// reads back needs its upper 32 bits explicitly zeroed on ISAs that
// don't do this for free; the verifier's abstract Narrow32 already models
// the value as zero-extended, this pass makes that concrete in the
// emitted stream with a following 32-bit `dst &= 0xffffffff`.
func insertZeroExtension(p *program, aux []AuxInfo) {
	for i := 0; i < len(p.insns); i++ {
		orig := p.origin[i]
		if orig < 0 || !aux[orig].ZeroExtendDst {
			continue
		}
		dst := p.insns[i].Dst
		// A 32-bit AND with Imm -1 (0xffffffff) keeps the low 32 bits and,
		// like every 32-bit ALU op, zeroes the upper 32.
		mask := insn.Instruction{Op: insn.ClassAlu | insn.SrcImm | insn.OpAnd, Dst: dst, Imm: -1}
		p.insertAfter(i, mask)
		i++
	}
}
