package verifier

import (
	"github.com/go-bpf/verifier/pkg/diag"
	"github.com/go-bpf/verifier/pkg/insn"
	"github.com/go-bpf/verifier/pkg/regstate"
	"github.com/go-bpf/verifier/pkg/tnum"
)

// stepOutcome tells the worklist loop what to do after one instruction
// has been checked and applied to w.cur.
type stepOutcome int

const (
	outcomeContinue stepOutcome = iota // fall through to InsnIdx+1
	outcomeBranch                      // fork: push the not-taken edge, continue on the taken edge (or vice versa)
	outcomeExitProgram                 // `exit` from the outermost frame: this path is done
	outcomeCallReturned                // `exit` from a subprogram frame: resume at the recorded call site
)

// step executes the instruction at w.cur.InsnIdx against w.cur, mutating
// it in place, and reports what the worklist should do next. On a branch
// it also returns the forked sibling state to push onto the worklist.
func (w *walker) step(ins insn.Instruction) (stepOutcome, *State, *diag.Rejection) {
	at := w.cur.InsnIdx
	w.aux[at].Visited = true
	if ins.Dst > insn.R10 || ins.Src > insn.R10 {
		return 0, nil, diag.New(diag.CodeMalformedProgram, at, "register number out of range")
	}

	switch {
	case ins.IsLoadImm64():
		if ins.Src == insn.PseudoMapFD {
			idx := int(ins.Imm)
			if idx < 0 || idx >= len(w.mapTypes) {
				return 0, nil, diag.New(diag.CodeInvalidMemoryAccess, at, "map fd %d out of range", idx)
			}
			w.aux[at].MapPtr = &regstate.MapRef{Index: idx, ValueSize: w.mapValueSizes[idx]}
			w.cur.Reg(int(ins.Dst)).MarkWritten(regstate.Reg{Kind: regstate.ConstPtrToMap, Map: w.aux[at].MapPtr})
		} else {
			w.cur.Reg(int(ins.Dst)).MarkWritten(regstate.ConstReg(uint64(uint32(ins.Imm))))
		}
		w.cur.InsnIdx += 2
		return outcomeContinue, nil, nil

	case ins.Class() == insn.ClassAlu || ins.Class() == insn.ClassAlu64:
		speculative, rej := w.applyAlu(at, ins)
		if rej != nil {
			return 0, nil, rej
		}
		w.cur.InsnIdx++
		if speculative != nil {
			return outcomeBranch, speculative, nil
		}
		return outcomeContinue, nil, nil

	case ins.IsExit():
		if w.cur.ActiveSpinLock != 0 {
			return 0, nil, diag.New(diag.CodeSpinLockViolation, at, "exit while holding a spin lock")
		}
		if resumeAt, ok := w.cur.PopFrame(); ok {
			// A subprogram may return while still holding a reference
			// for its caller to release later (curframe != 0): only the
			// outermost frame's exit is checked for leaks.
			w.cur.InsnIdx = resumeAt
			return outcomeCallReturned, nil, nil
		}
		if rej := w.cur.Refs.CheckExit(at); rej != nil {
			return 0, nil, rej
		}
		r0 := *w.cur.Reg(0)
		if r0.Kind == regstate.Invalid {
			return 0, nil, diag.New(diag.CodeUninitializedRegister, at, "R0 not set before exit")
		}
		if r0.Kind.IsPtr() {
			return 0, nil, diag.New(diag.CodeLeaksAddress, at, "R0 leaks addr as return value")
		}
		return outcomeExitProgram, nil, nil

	case ins.IsPseudoCall():
		w.cur.PushFrame(5, at)
		w.cur.InsnIdx = at + 1 + int(ins.Imm)
		return outcomeContinue, nil, nil

	case ins.IsCall():
		if rej := w.applyHelperCall(at, ins.Imm); rej != nil {
			return 0, nil, rej
		}
		w.cur.InsnIdx++
		return outcomeContinue, nil, nil

	case ins.IsUnconditionalJump():
		w.cur.InsnIdx = at + 1 + int(ins.Off)
		return outcomeContinue, nil, nil

	case ins.IsConditionalJump():
		return w.stepBranch(at, ins)

	case ins.Class() == insn.ClassLdX:
		src := *w.cur.Reg(int(ins.Src))
		result, rej := w.checkLoad(at, src, int64(ins.Off), ins.Size())
		if rej != nil {
			return 0, nil, rej
		}
		if ins.Size() < 8 && result.Kind == regstate.ScalarValue {
			result = regstate.ScalarReg(tnum.Narrow32(result.Scalar))
		}
		w.cur.Reg(int(ins.Dst)).MarkWritten(result)
		w.cur.InsnIdx++
		return outcomeContinue, nil, nil

	case ins.Class() == insn.ClassSt || ins.Class() == insn.ClassStX:
		dst := *w.cur.Reg(int(ins.Dst))
		var value regstate.Reg
		fullWidth := ins.Size() == 8
		if ins.Class() == insn.ClassStX {
			value = *w.cur.Reg(int(ins.Src))
		} else {
			value = regstate.ConstReg(uint64(uint32(ins.Imm)))
		}
		if rej := w.checkStore(at, dst, int64(ins.Off), ins.Size(), value, fullWidth); rej != nil {
			return 0, nil, rej
		}
		w.cur.InsnIdx++
		return outcomeContinue, nil, nil

	default:
		return 0, nil, diag.New(diag.CodeMalformedProgram, at, "instruction class %#x not supported", ins.Class())
	}
}

// stepBranch handles a conditional jump: both the fall-through and the
// taken edge are explored (§4.8 path explorer). When the two operands
// form a packet/packet-end pair the packet pointer gets its verified
// length refined (§4.5) on whichever edge corresponds to "dst <= end"
// holding: `>`/`>=` refine the fall-through edge, `<`/`<=` refine the
// taken edge.
func (w *walker) stepBranch(at int, ins insn.Instruction) (stepOutcome, *State, *diag.Rejection) {
	dstReg := *w.cur.Reg(int(ins.Dst))
	var srcReg regstate.Reg
	if ins.UsesSrcReg() {
		srcReg = *w.cur.Reg(int(ins.Src))
	}

	fallThrough := w.cur
	taken := w.cur.Clone()
	taken.InsnIdx = at + 1 + int(ins.Off)
	fallThrough.InsnIdx = at + 1

	if ins.UsesSrcReg() {
		if length, ok := refinePacketCompare(dstReg, srcReg); ok {
			switch ins.JumpOp() {
			case insn.JmpJGT, insn.JmpJGE, insn.JmpJSGT, insn.JmpJSGE:
				w.refineOn(fallThrough, dstReg.ID, length)
			case insn.JmpJLT, insn.JmpJLE, insn.JmpJSLT, insn.JmpJSLE:
				w.refineOn(taken, dstReg.ID, length)
			}
		}
	}

	// Null-check narrowing (§4.6 point 3, kernel mark_ptr_or_null_reg):
	// `if rX == 0 goto ...` / `if rX != 0 goto ...` against a not-yet-
	// checked helper result narrows that register on both edges — to its
	// Checked() non-null kind on the edge that proves it non-null, and to
	// a plain zero scalar (releasing any reference it held) on the edge
	// that proves it null, since a null result never held a real resource.
	if !ins.UsesSrcReg() && ins.Imm == 0 && dstReg.Kind.IsMaybeNull() {
		var nullState, nonNullState *State
		switch ins.JumpOp() {
		case insn.JmpJEQ:
			nullState, nonNullState = taken, fallThrough
		case insn.JmpJNE:
			nullState, nonNullState = fallThrough, taken
		}
		if nullState != nil {
			if id := reachableRefID(regstate.Reg{Kind: dstReg.Kind.Checked(), RefObjID: dstReg.RefObjID}); id != 0 {
				nullState.Refs.forceRelease(id)
			}
			nullState.Reg(int(ins.Dst)).MarkWritten(regstate.ConstReg(0))
			nonNullState.Reg(int(ins.Dst)).Kind = dstReg.Kind.Checked()
		}
	}

	w.cur = fallThrough
	return outcomeBranch, taken, nil
}

func (w *walker) refineOn(s *State, regID uint32, length int64) {
	if regID == 0 {
		return
	}
	if s.PacketVerified == nil {
		s.PacketVerified = map[uint32]int64{}
	}
	s.PacketVerified[regID] = length
}
