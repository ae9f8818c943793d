// Package tnum implements the "known bits" abstract numeric domain used by
// the verifier to track a 64-bit scalar register or stack slot as a partial
// bitmask plus four interval bounds.
//
// A Num is a pair (Value, Mask): bit i is known to equal bit i of Value iff
// bit i of Mask is zero. Combined with (Smin, Smax, Umin, Umax) it forms the
// full abstract value carried by pkg/regstate for scalar registers.
package tnum

import "math/bits"

// Num is the known-bits component of a scalar abstract value: a pair of
// 64-bit words where Value&Mask == 0. A zero bit in Mask means that bit is
// known and equals the corresponding bit of Value.
type Num struct {
	Value uint64
	Mask  uint64
}

// Unknown is the top of the known-bits lattice: every bit unknown.
var Unknown = Num{Value: 0, Mask: ^uint64(0)}

// Const returns a fully-known value.
func Const(v uint64) Num {
	return Num{Value: v, Mask: 0}
}

// Range returns the tnum that is "unknown but these bits could be set",
// used when only a byte/halfword/word width is known to be non-zero.
// Bits above the given bit width are known-zero.
func Range(bitWidth uint) Num {
	if bitWidth >= 64 {
		return Unknown
	}
	return Num{Value: 0, Mask: (uint64(1) << bitWidth) - 1}
}

// IsConst reports whether every bit is known.
func (t Num) IsConst() bool {
	return t.Mask == 0
}

// IsUnknown reports whether no bit is known.
func (t Num) IsUnknown() bool {
	return t.Mask == ^uint64(0)
}

// And is the tnum AND transfer function (bitwise), sound per bit:
// a bit is known-1 only if both operands are known-1 on that bit; known-0
// if either is known-0; otherwise unknown.
func And(a, b Num) Num {
	alpha := a.Value | a.Mask
	beta := b.Value | b.Mask
	v := a.Value & b.Value
	return Num{Value: v, Mask: (alpha & beta) &^ v}
}

// Or is the tnum OR transfer function.
func Or(a, b Num) Num {
	v := a.Value | b.Value
	mu := a.Mask | b.Mask
	return Num{Value: v, Mask: mu &^ v}
}

// Xor is the tnum XOR transfer function.
func Xor(a, b Num) Num {
	v := a.Value ^ b.Value
	mu := a.Mask | b.Mask
	return Num{Value: v &^ mu, Mask: mu}
}

// Add is the tnum ADD transfer function using carry propagation over the
// known/unknown bits (the classic "sum of known + worst-case carry" rule).
func Add(a, b Num) Num {
	sv := a.Value + b.Value
	sigma := sv + a.Mask + b.Mask
	chi := sigma ^ sv
	mu := chi | a.Mask | b.Mask
	return Num{Value: sv &^ mu, Mask: mu}
}

// Sub is the tnum SUB transfer function, derived from Add via two's
// complement: a - b == a + (^b + 1), approximated conservatively by
// widening unknown bits across the borrow chain.
func Sub(a, b Num) Num {
	dv := a.Value - b.Value
	alpha := dv + a.Mask
	beta := dv - b.Mask
	chi := alpha ^ beta
	mu := chi | a.Mask | b.Mask
	v := dv &^ mu
	return Num{Value: v, Mask: mu}
}

// Neg returns the tnum for -a (64-bit two's complement negation).
func Neg(a Num) Num {
	return Sub(Const(0), a)
}

// Lshift is the tnum transfer function for a << shift (shift < 64).
func Lshift(a Num, shift uint) Num {
	if shift >= 64 {
		return Const(0)
	}
	return Num{Value: a.Value << shift, Mask: a.Mask << shift}
}

// Rshift is the tnum transfer function for logical a >> shift (shift < 64).
func Rshift(a Num, shift uint) Num {
	if shift >= 64 {
		return Const(0)
	}
	return Num{Value: a.Value >> shift, Mask: a.Mask >> shift}
}

// Arshift is the tnum transfer function for arithmetic a >> shift over a
// value known to occupy bitWidth bits (32 or 64), sign-extending the
// known/unknown mask from the top bit of that width.
func Arshift(a Num, shift uint, bitWidth uint) Num {
	if shift >= bitWidth {
		shift = bitWidth - 1
	}
	signBit := uint64(1) << (bitWidth - 1)
	signKnown := a.Mask&signBit == 0
	signSet := a.Value&signBit != 0

	v := int64(a.Value<<(64-bitWidth)) >> (64 - bitWidth)
	v >>= shift
	m := int64(a.Mask<<(64-bitWidth)) >> (64 - bitWidth)
	m >>= shift

	res := Num{Value: uint64(v) &^ uint64(m), Mask: uint64(m)}
	_ = signKnown
	_ = signSet
	return res
}

// Cast narrows a tnum to the low bitWidth bits, zero-extending the rest
// (used after 32-bit ALU ops, which always zero the upper 32 bits of dst).
func Cast(a Num, bitWidth uint) Num {
	if bitWidth >= 64 {
		return a
	}
	keep := (uint64(1) << bitWidth) - 1
	return Num{Value: a.Value & keep, Mask: a.Mask & keep}
}

// Intersect narrows two tnums that are claimed to describe the same value,
// combining whichever bits each side knows. Bits known but contradictory
// between a and b make the result unsatisfiable; they are not detected
// here (such a bit comes out known, set to 1 from whichever side has it
// set), so callers that need to detect impossible paths should compare
// against the original two operands.
func Intersect(a, b Num) Num {
	v := a.Value | b.Value
	mu := a.Mask & b.Mask
	return Num{Value: v &^ mu, Mask: mu}
}

// InRange reports whether the concrete value v is modelled by t, i.e.
// v&^t.Mask == t.Value.
func (t Num) InRange(v uint64) bool {
	return v&^t.Mask == t.Value
}

// Bounds is the four-sided interval part of a scalar abstract value,
// always kept alongside a Num per §3/§4.1 of the register-state model.
type Bounds struct {
	Smin, Smax int64
	Umin, Umax uint64
}

// FullBounds is the unconstrained top of the interval lattice.
var FullBounds = Bounds{
	Smin: minInt64, Smax: maxInt64,
	Umin: 0, Umax: ^uint64(0),
}

const (
	minInt64 = -(1 << 63)
	maxInt64 = (1 << 63) - 1
)

// BoundsFromConst returns the degenerate bounds for a single known value.
func BoundsFromConst(v uint64) Bounds {
	return Bounds{Smin: int64(v), Smax: int64(v), Umin: v, Umax: v}
}

// BoundsFromTnum derives the widest interval consistent with a known-bits
// mask alone: Umin sets all unknown bits to 0, Umax sets them all to 1.
// Signed bounds are derived the same way but clamped so they don't imply
// more than the unsigned bounds do (deduction direction 1, §4.1).
func BoundsFromTnum(t Num) Bounds {
	const signBit = uint64(1) << 63
	umin := t.Value
	umax := t.Value | t.Mask
	return Bounds{
		// An unknown sign bit is taken as 1 for Smin and 0 for Smax.
		Smin: int64(t.Value | (t.Mask & signBit)),
		Smax: int64(t.Value | (t.Mask &^ signBit)),
		Umin: umin,
		Umax: umax,
	}
}

// TnumFromBounds derives the tightest tnum consistent with [umin, umax]:
// bits above the highest bit where umin and umax differ are known (shared
// prefix); everything below is unknown (deduction direction 3, §4.1).
func TnumFromBounds(umin, umax uint64) Num {
	if umin > umax {
		return Unknown
	}
	delta := umin ^ umax
	if delta == 0 {
		return Const(umin)
	}
	top := uint(bits.Len64(delta))
	mask := (uint64(1) << top) - 1
	return Num{Value: umin &^ mask, Mask: mask}
}

// Deduce applies the three mutually reinforcing tightenings described in
// §4.1 point "Deduction" and returns the fixed point: bounds narrowed by
// the known-bits mask, the known-bits mask narrowed by the bounds, and
// signed bounds narrowed from unsigned bounds when the range cannot cross
// the sign boundary (and vice versa). It never widens either side.
func Deduce(t Num, b Bounds) (Num, Bounds) {
	for i := 0; i < 4; i++ {
		before := t
		beforeB := b

		// bits -> bounds: intersect with what the mask alone implies.
		implied := BoundsFromTnum(t)
		b = intersectBounds(b, implied)

		// bounds -> bits: intersect with what [umin,umax] alone implies.
		impliedT := TnumFromBounds(b.Umin, b.Umax)
		t = Intersect(t, impliedT)

		// signed <-> unsigned: if the unsigned range cannot cross the
		// int64 wraparound boundary, the signed bounds equal the unsigned
		// ones reinterpreted, and vice versa.
		if b.Umin <= uint64(maxInt64) && b.Umax <= uint64(maxInt64) {
			b.Smin = maxI64(b.Smin, int64(b.Umin))
			b.Smax = minI64(b.Smax, int64(b.Umax))
		}
		if b.Smin >= 0 {
			b.Umin = maxU64(b.Umin, uint64(b.Smin))
			if b.Smax >= 0 {
				b.Umax = minU64(b.Umax, uint64(b.Smax))
			}
		}

		if t == before && b == beforeB {
			break
		}
	}
	return t, b
}

func intersectBounds(a, b Bounds) Bounds {
	return Bounds{
		Smin: maxI64(a.Smin, b.Smin),
		Smax: minI64(a.Smax, b.Smax),
		Umin: maxU64(a.Umin, b.Umin),
		Umax: minU64(a.Umax, b.Umax),
	}
}

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func minI64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
