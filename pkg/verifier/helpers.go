package verifier

import (
	"github.com/go-bpf/verifier/pkg/diag"
	"github.com/go-bpf/verifier/pkg/mapspec"
	"github.com/go-bpf/verifier/pkg/proto"
	"github.com/go-bpf/verifier/pkg/regstate"
	"github.com/go-bpf/verifier/pkg/tnum"
)

// applyHelperCall implements §4.6: checks R1-R5 against the helper's
// signature, applies map-type compatibility where the helper touches a
// map, and sets R0 to the declared return kind (§4.4 tracks an Acquires
// return as a fresh reference).
func (w *walker) applyHelperCall(at int, helperID int32) *diag.Rejection {
	h := mapspec.Helper(helperID)
	desc, ok := proto.Lookup(proto.ProgType(w.progType))
	if !ok {
		return diag.New(diag.CodeUnsupportedProgramType, at, "unsupported program type")
	}
	if !desc.AllowsHelper(h) {
		return diag.New(diag.CodeInvalidHelperArgument, at, "helper %d is not available to this program type", helperID)
	}
	sig, ok := proto.Signatures[h]
	if !ok {
		return diag.New(diag.CodeInvalidHelperArgument, at, "unknown helper id %d", helperID)
	}
	if sig.GPLOnly && !w.gplCompatible {
		return diag.New(diag.CodeGPLOnlyHelper, at, "helper %s is GPL-only but the program is not GPL-compatible", sig.Name)
	}
	if w.cur.ActiveSpinLock != 0 && h != proto.SpinLockRelease {
		return diag.New(diag.CodeSpinLockViolation, at, "helper call while holding a spin lock is only permitted for the matching unlock")
	}

	var mapArg *regstate.MapRef
	var mapValueArg *regstate.MapRef
	for argIdx := 0; argIdx < 5; argIdx++ {
		kind := sig.Args[argIdx]
		if kind == proto.ArgDontCare {
			continue
		}
		reg := *w.cur.Reg(argIdx + 1)
		if rej := checkHelperArg(at, argIdx, kind, reg); rej != nil {
			return rej
		}
		if kind == proto.ArgConstMapPtr {
			mapArg = reg.Map
			if !w.mapTypeCompatible(h, mapArg) {
				return diag.New(diag.CodeMapTypeMismatch, at, "helper %d is not compatible with this map's type", helperID)
			}
		}
		if kind == proto.ArgPtrToMapValue {
			mapValueArg = reg.Map
		}
		if kind == proto.ArgReleaseRef {
			id := reachableRefID(reg)
			if id == 0 {
				return diag.New(diag.CodeInvalidHelperArgument, at, "release helper argument does not hold an acquired reference")
			}
			if rej := w.cur.Refs.Release(id, at); rej != nil {
				return rej
			}
		}
	}

	if rej := w.applySpinLockEffect(at, h, mapValueArg); rej != nil {
		return rej
	}

	// Caller-saved registers R1-R5 become uninit after any helper call,
	// regardless of how many arguments the signature actually declared
	// (§4.6 point 4).
	for r := 1; r <= 5; r++ {
		w.cur.Reg(r).MarkWritten(regstate.InvalidReg)
	}

	if sig.ChangesPacketData {
		w.downgradePacketPointers()
	}

	var result regstate.Reg
	switch sig.Return {
	case proto.ArgPtrToMapValue:
		result = regstate.Reg{Kind: regstate.PtrToMapValueOrNull, Map: mapArg}
	case proto.ArgPtrToSocket:
		id := w.cur.Refs.Acquire(at)
		result = regstate.Reg{Kind: regstate.PtrToSocketOrNull, RefObjID: id}
	default:
		result = regstate.ScalarReg(tnum.UnknownScalar())
	}
	w.cur.Reg(0).MarkWritten(result)
	return nil
}

// applySpinLockEffect implements the acquire/release half of §4.4's spin
// lock rule: bpf_spin_lock records the lock's identity (derived from the
// map index alone, see spinLockIdentity) as the state's ActiveSpinLock, and
// bpf_spin_unlock clears it. Acquiring while another lock is already held,
// or unlocking with none held, is rejected.
func (w *walker) applySpinLockEffect(at int, h mapspec.Helper, mapArg *regstate.MapRef) *diag.Rejection {
	switch h {
	case proto.SpinLockAcquire:
		if w.cur.ActiveSpinLock != 0 {
			return diag.New(diag.CodeSpinLockViolation, at, "acquire of a second spin lock while one is already held")
		}
		w.cur.ActiveSpinLock = spinLockIdentity(mapArg)
	case proto.SpinLockRelease:
		want := spinLockIdentity(mapArg)
		if w.cur.ActiveSpinLock == 0 || w.cur.ActiveSpinLock != want {
			return diag.New(diag.CodeSpinLockViolation, at, "unlock does not match the currently held spin lock")
		}
		w.cur.ActiveSpinLock = 0
	}
	return nil
}

// spinLockIdentity derives a nonzero id for the lock embedded in mapArg's
// map, standing in for the kernel's pointer-based lock identity (§3
// "a current spin-lock identity"); this domain has no pointer identity to
// reuse, so the map index (offset by one so 0 stays "no lock") serves the
// same role.
func spinLockIdentity(mapArg *regstate.MapRef) uint32 {
	if mapArg == nil {
		return 1
	}
	return uint32(mapArg.Index) + 1
}

// downgradePacketPointers implements §4.5's last clause: a helper marked
// "changes packet data" invalidates every live packet-pointer copy in
// every frame (and the range comparisons that depended on them), since
// the helper may have moved the underlying buffer.
func (w *walker) downgradePacketPointers() {
	for _, f := range w.cur.Frames {
		for i := range f.Regs {
			if f.Regs[i].Kind == regstate.PtrToPacket || f.Regs[i].Kind == regstate.PtrToPacketMeta || f.Regs[i].Kind == regstate.PtrToPacketEnd {
				f.Regs[i] = regstate.ScalarReg(tnum.UnknownScalar())
			}
		}
	}
	w.cur.PacketVerified = map[uint32]int64{}
}

func checkHelperArg(at, argIdx int, kind proto.ArgKind, reg regstate.Reg) *diag.Rejection {
	switch kind {
	case proto.ArgAnyScalar:
		if reg.Kind != regstate.ScalarValue {
			return diag.New(diag.CodeInvalidHelperArgument, at, "argument %d must be scalar", argIdx+1)
		}
	case proto.ArgConstMapPtr:
		if reg.Kind != regstate.ConstPtrToMap {
			return diag.New(diag.CodeInvalidHelperArgument, at, "argument %d must be a map pointer", argIdx+1)
		}
	case proto.ArgPtrToMapKey, proto.ArgPtrToMapValue, proto.ArgPtrToMem:
		if !reg.Kind.IsPtr() {
			return diag.New(diag.CodeInvalidHelperArgument, at, "argument %d must be a pointer", argIdx+1)
		}
		if reg.Kind.IsMaybeNull() {
			return diag.New(diag.CodeUncheckedMapValue, at, "argument %d is a possibly-null pointer", argIdx+1)
		}
	case proto.ArgPtrToSocket:
		if reg.Kind != regstate.PtrToSocket {
			return diag.New(diag.CodeInvalidHelperArgument, at, "argument %d must be an acquired socket reference", argIdx+1)
		}
	}
	return nil
}

// mapTypeCompatible consults the walker's own copy of the program's map
// table (set once per Check call, never shared across concurrent
// Analyzers, §5) rather than any package-level state.
func (w *walker) mapTypeCompatible(h mapspec.Helper, m *regstate.MapRef) bool {
	if m == nil || m.Index < 0 || m.Index >= len(w.mapTypes) {
		return true
	}
	return mapspec.Compatible(h, w.mapTypes[m.Index])
}
