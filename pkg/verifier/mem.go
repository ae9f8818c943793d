package verifier

import (
	"github.com/go-bpf/verifier/pkg/diag"
	"github.com/go-bpf/verifier/pkg/proto"
	"github.com/go-bpf/verifier/pkg/regstate"
	"github.com/go-bpf/verifier/pkg/tnum"
)

// checkLoad validates `dst = *(size *)(src + off)` against the kind of
// pointer src holds (§4.2), and returns the Reg the load produces.
func (w *walker) checkLoad(at int, src regstate.Reg, off int64, size int) (regstate.Reg, *diag.Rejection) {
	switch src.Kind {
	case regstate.Invalid:
		return regstate.InvalidReg, diag.New(diag.CodeUninitializedRegister, at, "read through uninitialized register")

	case regstate.PtrToCtx:
		desc, ok := proto.Lookup(proto.ProgType(w.progType))
		if !ok {
			return regstate.InvalidReg, diag.New(diag.CodeUnsupportedProgramType, at, "unsupported program type")
		}
		allowed, isPacket, isPacketEnd := desc.IsValidAccess(src.Off+off, size)
		if !allowed {
			return regstate.InvalidReg, diag.New(diag.CodeInvalidMemoryAccess, at, "ctx offset %d/%d not readable for this program type", src.Off+off, size)
		}
		if isPacketEnd {
			w.nextID++
			return regstate.Reg{Kind: regstate.PtrToPacketEnd, ID: w.nextID}, nil
		}
		if isPacket {
			w.nextID++
			return regstate.Reg{Kind: regstate.PtrToPacket, ID: w.nextID}, nil
		}
		return regstate.ScalarReg(tnum.UnknownScalar()), nil

	case regstate.PtrToStack:
		idx, ok := regstate.SlotIndex(src.Off + off)
		if !ok {
			return regstate.InvalidReg, diag.New(diag.CodeInvalidMemoryAccess, at, "stack offset %d out of range", src.Off+off)
		}
		r, ok := regstate.Fill(w.cur.CurFrame().Stack, idx)
		if !ok {
			return regstate.InvalidReg, diag.New(diag.CodeUninitializedRegister, at, "read of uninitialized stack slot at %d", src.Off+off)
		}
		return r, nil

	case regstate.PtrToPacket, regstate.PtrToPacketMeta:
		if !packetAccessSafe(src, size, w.cur.PacketVerified) {
			return regstate.InvalidReg, diag.New(diag.CodeInvalidMemoryAccess, at, "packet access at offset %d/%d not verified against packet_end", src.Off+off, size)
		}
		return regstate.ScalarReg(tnum.UnknownScalar()), nil

	case regstate.PtrToMapValue:
		if src.Map == nil || src.Off+off+int64(size) > int64(src.Map.ValueSize) || src.Off+off < 0 {
			return regstate.InvalidReg, diag.New(diag.CodeInvalidMemoryAccess, at, "map value access at %d/%d exceeds value size", src.Off+off, size)
		}
		if src.Map.Index >= 0 && src.Map.Index < len(w.mapSpinLocks) {
			if w.mapSpinLocks[src.Map.Index].SpinLockOverlaps(src.Off+off, size) {
				return regstate.InvalidReg, diag.New(diag.CodeSpinLockViolation, at, "direct access to the spin_lock sub-region is forbidden")
			}
		}
		return regstate.ScalarReg(tnum.UnknownScalar()), nil

	case regstate.PtrToMapValueOrNull, regstate.PtrToSocketOrNull:
		return regstate.InvalidReg, diag.New(diag.CodeUncheckedMapValue, at, "dereference of possibly-null pointer before a null check")

	default:
		return regstate.InvalidReg, diag.New(diag.CodeInvalidMemoryAccess, at, "cannot read through register of kind %s", src.Kind)
	}
}

// checkStore validates `*(size *)(dst + off) = value` and, for a stack
// destination, records the spill/misc tagging (§4.2 points 4-5). Writes
// into ctx/map/packet memory additionally forbid leaking a pointer value
// (§4.2's closing paragraph, §7's Leakage taxonomy).
func (w *walker) checkStore(at int, dst regstate.Reg, off int64, size int, value regstate.Reg, fullWidth bool) *diag.Rejection {
	switch dst.Kind {
	case regstate.PtrToStack:
		idx, ok := regstate.SlotIndex(dst.Off + off)
		if !ok {
			return diag.New(diag.CodeInvalidMemoryAccess, at, "stack offset %d out of range", dst.Off+off)
		}
		w.cur.CurFrame().NoteStackAccess(dst.Off+off, size)
		if fullWidth && size == 8 && (value.Kind.IsPtr() || value.Kind == regstate.ScalarValue) {
			regstate.Spill(w.cur.CurFrame().Stack, idx, value)
		} else {
			regstate.MarkMisc(w.cur.CurFrame().Stack, idx)
		}
		return nil

	case regstate.PtrToMapValue:
		if dst.Map == nil || dst.Off+off+int64(size) > int64(dst.Map.ValueSize) || dst.Off+off < 0 {
			return diag.New(diag.CodeInvalidMemoryAccess, at, "map value store at %d/%d exceeds value size", dst.Off+off, size)
		}
		if dst.Map != nil && dst.Map.Index >= 0 && dst.Map.Index < len(w.mapSpinLocks) {
			if w.mapSpinLocks[dst.Map.Index].SpinLockOverlaps(dst.Off+off, size) {
				return diag.New(diag.CodeSpinLockViolation, at, "direct access to the spin_lock sub-region is forbidden")
			}
		}
		if value.Kind.IsPtr() {
			return diag.New(diag.CodeLeaksAddress, at, "leaks addr into map value")
		}
		return nil

	case regstate.PtrToCtx:
		desc, ok := proto.Lookup(proto.ProgType(w.progType))
		if !ok {
			return diag.New(diag.CodeUnsupportedProgramType, at, "unsupported program type")
		}
		if allowed, _, _ := desc.IsValidAccess(dst.Off+off, size); !allowed {
			return diag.New(diag.CodeInvalidMemoryAccess, at, "ctx offset %d/%d not writable for this program type", dst.Off+off, size)
		}
		if value.Kind.IsPtr() {
			return diag.New(diag.CodeLeaksAddress, at, "leaks addr into ctx")
		}
		return nil

	case regstate.PtrToPacket, regstate.PtrToPacketMeta:
		if !packetAccessSafe(dst, size, w.cur.PacketVerified) {
			return diag.New(diag.CodeInvalidMemoryAccess, at, "packet access at offset %d/%d not verified against packet_end", dst.Off+off, size)
		}
		if value.Kind.IsPtr() {
			return diag.New(diag.CodeLeaksAddress, at, "leaks addr into packet memory")
		}
		return nil

	case regstate.Invalid:
		return diag.New(diag.CodeUninitializedRegister, at, "write through uninitialized register")

	default:
		return diag.New(diag.CodeInvalidMemoryAccess, at, "cannot write through register of kind %s", dst.Kind)
	}
}
