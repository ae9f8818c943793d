package verifier

import (
	"github.com/go-bpf/verifier/pkg/diag"
	"github.com/go-bpf/verifier/pkg/insn"
	"github.com/go-bpf/verifier/pkg/regstate"
	"github.com/go-bpf/verifier/pkg/tnum"
)

// applyAlu implements §4.1/§4.3: scalar ALU ops go through pkg/tnum's
// transfer functions; an op where dst or src is a pointer is pointer
// arithmetic and goes through checkPointerArith instead. It returns a
// non-nil *State when the instruction needed speculative-execution
// sanitization: that state is the speculative successor the caller must
// push onto the worklist alongside the normal fall-through (§4.3 point 4).
func (w *walker) applyAlu(at int, i insn.Instruction) (*State, *diag.Rejection) {
	dst := *w.cur.Reg(int(i.Dst))
	var srcVal regstate.Reg
	if i.UsesSrcReg() {
		srcVal = *w.cur.Reg(int(i.Src))
	} else {
		srcVal = regstate.ConstReg(uint64(i.Imm))
	}

	if i.AluOp() == insn.OpMov {
		if i.Class() == insn.ClassAlu {
			if srcVal.Kind.IsPtr() {
				return nil, diag.New(diag.CodePointerArithmeticDisallowed, at, "32-bit mov of a pointer register is not permitted")
			}
			srcVal = regstate.ScalarReg(tnum.Narrow32(srcVal.Scalar))
		}
		w.cur.Reg(int(i.Dst)).MarkWritten(srcVal)
		return nil, nil
	}

	if dst.Kind.IsPtr() || srcVal.Kind.IsPtr() {
		return w.checkPointerArith(at, i, dst, srcVal)
	}

	if dst.Kind == regstate.Invalid {
		return nil, diag.New(diag.CodeUninitializedRegister, at, "ALU op on uninitialized register")
	}

	bitWidth := uint(64)
	if i.Class() == insn.ClassAlu {
		bitWidth = 32
	}

	var result regstate.Reg
	switch i.AluOp() {
	case insn.OpAdd:
		result = regstate.ScalarReg(tnum.AddScalar(dst.Scalar, srcVal.Scalar))
	case insn.OpSub:
		result = regstate.ScalarReg(tnum.SubScalar(dst.Scalar, srcVal.Scalar))
	case insn.OpMul:
		result = regstate.ScalarReg(tnum.MulScalar(dst.Scalar, srcVal.Scalar))
	case insn.OpOr:
		result = regstate.ScalarReg(tnum.OrScalar(dst.Scalar, srcVal.Scalar))
	case insn.OpAnd:
		result = regstate.ScalarReg(tnum.AndScalar(dst.Scalar, srcVal.Scalar))
	case insn.OpXor:
		result = regstate.ScalarReg(tnum.XorScalar(dst.Scalar, srcVal.Scalar))
	case insn.OpNeg:
		result = regstate.ScalarReg(tnum.NegScalar(dst.Scalar))
	case insn.OpDiv, insn.OpMod:
		if v, ok := srcVal.IsConst(); ok && v == 0 {
			return nil, diag.New(diag.CodeDivideByZero, at, "division by constant zero")
		}
		result = regstate.ScalarReg(tnum.UnknownScalar())
	case insn.OpLsh:
		shift, hasShift := srcVal.IsConst()
		if !hasShift {
			result = regstate.ScalarReg(tnum.UnknownScalar())
			break
		}
		sc, ok := tnum.LshScalar(dst.Scalar, shift, bitWidth)
		if !ok {
			return nil, diag.New(diag.CodeInvalidMemoryAccess, at, "shift amount %d out of range for %d-bit op", shift, bitWidth)
		}
		result = regstate.ScalarReg(sc)
	case insn.OpRsh:
		shift, hasShift := srcVal.IsConst()
		if !hasShift {
			result = regstate.ScalarReg(tnum.UnknownScalar())
			break
		}
		sc, ok := tnum.RshScalar(dst.Scalar, shift, bitWidth)
		if !ok {
			return nil, diag.New(diag.CodeInvalidMemoryAccess, at, "shift amount %d out of range for %d-bit op", shift, bitWidth)
		}
		result = regstate.ScalarReg(sc)
	case insn.OpArsh:
		shift, hasShift := srcVal.IsConst()
		if !hasShift {
			result = regstate.ScalarReg(tnum.UnknownScalar())
			break
		}
		sc, ok := tnum.ArshScalar(dst.Scalar, shift, bitWidth)
		if !ok {
			return nil, diag.New(diag.CodeInvalidMemoryAccess, at, "shift amount %d out of range for %d-bit op", shift, bitWidth)
		}
		result = regstate.ScalarReg(sc)
	default:
		result = regstate.ScalarReg(tnum.UnknownScalar())
	}

	if bitWidth == 32 {
		result = regstate.ScalarReg(tnum.Narrow32(result.Scalar))
	}
	w.cur.Reg(int(i.Dst)).MarkWritten(result)
	return nil, nil
}

// checkPointerArith implements §4.3: ptr += scalar adjusts Off and, when
// the scalar is not a constant, marks the instruction for sanitization
// (§4.3 point 4) and returns a speculative sibling state for the caller to
// push onto the worklist. `ptr - ptr` is always rejected: §4.3 permits it to collapse to
// a scalar "only for privileged callers", and this verifier models every
// program as the more restrictive unprivileged case (CVE-2018-3612 class).
func (w *walker) checkPointerArith(at int, i insn.Instruction, dst, srcVal regstate.Reg) (*State, *diag.Rejection) {
	if i.AluOp() != insn.OpAdd && i.AluOp() != insn.OpSub {
		return nil, diag.New(diag.CodePointerArithmeticDisallowed, at, "only add/sub are permitted on pointers")
	}

	if dst.Kind.IsPtr() && srcVal.Kind.IsPtr() {
		return nil, diag.New(diag.CodePointerArithmeticDisallowed, at, "pointer +/- pointer is never permitted for an unprivileged program")
	}

	ptr, scalar := dst, srcVal
	ptrIsDst := true
	if !dst.Kind.IsPtr() {
		ptr, scalar = srcVal, dst
		ptrIsDst = false
	}
	if ptr.Kind == regstate.PtrToCtx || ptr.Kind == regstate.ConstPtrToMap {
		return nil, diag.New(diag.CodePointerArithmeticDisallowed, at, "arithmetic on %s is never permitted", ptr.Kind)
	}
	if ptr.Kind == regstate.PtrToStack && !ptrIsDst {
		return nil, diag.New(diag.CodePointerArithmeticDisallowed, at, "scalar - pointer is never permitted")
	}

	delta, isConst := scalar.IsConst()
	result := ptr
	var speculative *State
	if isConst {
		if i.AluOp() == insn.OpSub {
			result.Off -= int64(delta)
		} else {
			result.Off += int64(delta)
		}
	} else {
		if scalar.Scalar.Bounds.Smin < 0 && scalar.Scalar.Bounds.Smax >= 0 {
			return nil, diag.New(diag.CodePointerArithmeticDisallowed, at, "mixed-sign scalar offset: speculative masking window is undefined")
		}

		// Non-constant offset: the aux table is flagged so the
		// ALU-sanitization rewrite pass inserts a speculative mask
		// (§4.3 point 4); the abstract Off becomes unknown-but-bounded
		// by the scalar's own bounds, conservatively widened.
		limit := aluLimit(ptr)
		if w.aux[at].NeedsSanitization && w.aux[at].AluLimit != limit {
			return nil, diag.New(diag.CodePointerArithmeticDisallowed, at, "conflicting alu_limit across paths reaching this instruction")
		}
		w.aux[at].NeedsSanitization = true
		w.aux[at].AluLimit = limit
		w.aux[at].MaskToLeft = i.AluOp() == insn.OpSub
		if i.AluOp() == insn.OpSub {
			result.Off -= scalar.Scalar.Bounds.Smax
		} else {
			result.Off += scalar.Scalar.Bounds.Smax
		}

		speculative = w.cur.Clone()
		speculative.InsnIdx = at + 1
		speculative.SpeculativePath = true
		truncated := result
		truncated.Off = ptr.Off
		speculative.Reg(int(i.Dst)).MarkWritten(truncated)
	}

	w.cur.Reg(int(i.Dst)).MarkWritten(result)
	return speculative, nil
}

// aluLimit returns the type-specific bound the sanitization mask clamps a
// pointer's offset against (§4.3 point "compute the alu_limit").
func aluLimit(ptr regstate.Reg) int64 {
	switch ptr.Kind {
	case regstate.PtrToMapValue:
		if ptr.Map != nil {
			return int64(ptr.Map.ValueSize)
		}
		return 0
	case regstate.PtrToStack:
		return regstate.MaxStackDepth
	default:
		return 0
	}
}
