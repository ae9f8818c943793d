// Package regstate holds the register/stack-slot/call-frame data model
// that the verifier's path explorer threads through every instruction: the
// register kind sum type, stack slot tagging, and the per-frame liveness
// bookkeeping used to prune dead state before the equivalence check.
//
// The teacher's pkg/cpu carried a concrete Z80 register file (A, F, B, C...)
// for executing instructions; this package instead carries the *abstract*
// register file the verifier reasons about without ever running a program.
package regstate

import "github.com/go-bpf/verifier/pkg/tnum"

// Kind is the register/stack-slot content discriminant. Exactly one Kind
// applies to a Reg at a time; the fields that are meaningful depend on
// which Kind is set (the classic Go "sum type via tagged struct" idiom).
type Kind int

const (
	// Invalid marks a register that has never been written; reading it
	// is an error (§4.2 uninitialized-register check).
	Invalid Kind = iota
	// ScalarValue is an arbitrary numeric value tracked via tnum.Scalar.
	ScalarValue
	// PtrToCtx points at the program's context object (R1 on entry).
	PtrToCtx
	// PtrToStack points at the current frame's stack (R10, read-only).
	PtrToStack
	// PtrToPacket points into packet data, refined against PtrToPacketEnd.
	PtrToPacket
	// PtrToPacketEnd is the sentinel packet-end pointer (§4.5).
	PtrToPacketEnd
	// PtrToPacketMeta points into packet metadata preceding PtrToPacket.
	PtrToPacketMeta
	// ConstPtrToMap identifies a specific map by descriptor, produced by
	// a pseudo-map-fd load; never dereferenced directly.
	ConstPtrToMap
	// PtrToMapValue points at a fixed-size region inside a map value,
	// produced by a successful map-lookup helper call.
	PtrToMapValue
	// PtrToMapValueOrNull is the not-yet-null-checked result of a
	// map-lookup helper call (§4.6); must be compared against zero
	// before being used as PtrToMapValue.
	PtrToMapValueOrNull
	// PtrToMapKey points at a stack slot holding a map key, the shape
	// expected by the key argument of map helpers.
	PtrToMapKey
	// PtrToSocket is an acquired, must-release reference to a socket
	// (§4.4 reference tracking); RefObjID is nonzero.
	PtrToSocket
	// PtrToSocketOrNull is the not-yet-null-checked result of an
	// acquire-socket helper call.
	PtrToSocketOrNull
)

func (k Kind) String() string {
	switch k {
	case Invalid:
		return "invalid"
	case ScalarValue:
		return "scalar"
	case PtrToCtx:
		return "ptr_ctx"
	case PtrToStack:
		return "ptr_stack"
	case PtrToPacket:
		return "ptr_pkt"
	case PtrToPacketEnd:
		return "ptr_pkt_end"
	case PtrToPacketMeta:
		return "ptr_pkt_meta"
	case ConstPtrToMap:
		return "const_ptr_map"
	case PtrToMapValue:
		return "ptr_map_value"
	case PtrToMapValueOrNull:
		return "ptr_map_value_or_null"
	case PtrToMapKey:
		return "ptr_map_key"
	case PtrToSocket:
		return "ptr_sock"
	case PtrToSocketOrNull:
		return "ptr_sock_or_null"
	default:
		return "unknown"
	}
}

// IsPtr reports whether the kind carries an Off/base rather than a bare
// scalar value.
func (k Kind) IsPtr() bool { return k != Invalid && k != ScalarValue }

// IsMaybeNull reports whether the kind is a not-yet-checked helper result
// that must be null-checked before dereference (§4.6 point 3).
func (k Kind) IsMaybeNull() bool {
	return k == PtrToMapValueOrNull || k == PtrToSocketOrNull
}

// Checked returns the non-null counterpart of a MaybeNull kind, used after
// a verified `if rX == 0 goto ...` / `if rX != 0 goto ...` branch narrows
// the pointer (§4.6 point 3).
func (k Kind) Checked() Kind {
	switch k {
	case PtrToMapValueOrNull:
		return PtrToMapValue
	case PtrToSocketOrNull:
		return PtrToSocket
	default:
		return k
	}
}

// LiveState is the read/write liveness bitset the pruner's parent-chain
// walk sets on a register (§4.8).
type LiveState uint8

const (
	LiveNone    LiveState = 0
	LiveRead    LiveState = 1 << 0
	LiveWritten LiveState = 1 << 1
	// LiveDone marks a register whose liveness has already been
	// propagated to its parent frame, so mark_read does not re-walk it.
	LiveDone LiveState = 1 << 2
)

// MapRef identifies the map a ConstPtrToMap/PtrToMapValue register refers
// to, by index into the verifying program's map table (pkg/mapspec).
type MapRef struct {
	Index     int
	ValueSize uint32
}

// Reg is one register's full abstract value.
type Reg struct {
	Kind Kind

	// Scalar holds known-bits/bounds for ScalarValue, and also for the
	// pointer kinds' variable offset component (e.g. a packet pointer
	// after `r1 += r3` carries the accumulated offset here while Off
	// below holds the fixed/immediate part folded in by arithmetic).
	Scalar tnum.Scalar

	// Off is the constant byte offset from the pointer's base, refined
	// independently of Scalar so bounds-checking can reason about the
	// worst case cheaply (§4.2/§4.3).
	Off int64

	// Map is non-nil for ConstPtrToMap/PtrToMapValue/PtrToMapValueOrNull.
	Map *MapRef

	// RefObjID is nonzero for a register holding a reference that must
	// eventually be passed to a release helper (§4.4). Two registers
	// sharing a RefObjID are aliases of the same acquired reference.
	RefObjID uint32

	// ID ties together registers derived from the same source pointer
	// (e.g. after a conditional branch both the original and the
	// narrowed copy keep the same ID) so that a bound learned on one
	// can be propagated to the other via find-equal-scalars (§4.5).
	ID uint32

	Live LiveState
}

// InvalidReg is the zero value for an as-yet-unwritten register.
var InvalidReg = Reg{Kind: Invalid}

// ScalarReg builds a register holding an arbitrary scalar.
func ScalarReg(s tnum.Scalar) Reg {
	return Reg{Kind: ScalarValue, Scalar: s}
}

// ConstReg builds a register holding one known 64-bit constant.
func ConstReg(v uint64) Reg {
	return Reg{Kind: ScalarValue, Scalar: tnum.ConstScalar(v)}
}

// IsConst reports whether the register is a scalar with exactly one
// possible value, and returns it.
func (r Reg) IsConst() (uint64, bool) {
	if r.Kind != ScalarValue {
		return 0, false
	}
	if !r.Scalar.Var.IsConst() {
		return 0, false
	}
	return r.Scalar.Var.Value, true
}

// MarkRead sets LiveRead, used by the pruner's backward liveness sweep.
func (r *Reg) MarkRead() { r.Live |= LiveRead }

// MarkWritten resets a register to a fresh value and flags it written;
// any prior liveness flags from the register it's overwriting no longer
// apply to the new value.
func (r *Reg) MarkWritten(next Reg) {
	next.Live = LiveWritten
	*r = next
}
