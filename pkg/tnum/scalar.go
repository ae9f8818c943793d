package tnum

// Scalar is the full abstract value for a scalar register or stack slot:
// known bits plus the four interval bounds, always kept mutually
// consistent by Deduce. This is what pkg/regstate embeds for Kind=Scalar.
type Scalar struct {
	Var    Num
	Bounds Bounds
}

// UnknownScalar is the top of the scalar lattice.
func UnknownScalar() Scalar {
	return Scalar{Var: Unknown, Bounds: FullBounds}
}

// ConstScalar returns the scalar modelling exactly one concrete value.
func ConstScalar(v uint64) Scalar {
	return Scalar{Var: Const(v), Bounds: BoundsFromConst(v)}
}

// normalize runs Deduce and returns the tightened scalar.
func (s Scalar) normalize() Scalar {
	v, b := Deduce(s.Var, s.Bounds)
	return Scalar{Var: v, Bounds: b}
}

// AddScalar implements §4.1 Add: interval arithmetic with overflow
// detection. On overflow (the sum could wrap in either the signed or
// unsigned sense) the affected interval collapses to the full range
// while var_off still tracks the bitwise sum.
func AddScalar(a, b Scalar) Scalar {
	out := Scalar{Var: Add(a.Var, b.Var), Bounds: a.Bounds}

	// Unsigned: umin+umin / umax+umax must not cross 2^64.
	if umin, ok := addU64(a.Bounds.Umin, b.Bounds.Umin); ok {
		out.Bounds.Umin = umin
	} else {
		out.Bounds.Umin = 0
	}
	if umax, ok := addU64(a.Bounds.Umax, b.Bounds.Umax); ok {
		out.Bounds.Umax = umax
	} else {
		out.Bounds.Umax = ^uint64(0)
	}

	// Signed: smin+smin / smax+smax must not cross int64 range.
	if smin, ok := addI64(a.Bounds.Smin, b.Bounds.Smin); ok {
		out.Bounds.Smin = smin
	} else {
		out.Bounds.Smin = minInt64
	}
	if smax, ok := addI64(a.Bounds.Smax, b.Bounds.Smax); ok {
		out.Bounds.Smax = smax
	} else {
		out.Bounds.Smax = maxInt64
	}

	return out.normalize()
}

// SubScalar implements §4.1 Sub symmetrically to AddScalar.
func SubScalar(a, b Scalar) Scalar {
	out := Scalar{Var: Sub(a.Var, b.Var), Bounds: a.Bounds}

	if umin, ok := subU64(a.Bounds.Umin, b.Bounds.Umax); ok {
		out.Bounds.Umin = umin
	} else {
		out.Bounds.Umin = 0
	}
	if umax, ok := subU64(a.Bounds.Umax, b.Bounds.Umin); ok {
		out.Bounds.Umax = umax
	} else {
		out.Bounds.Umax = ^uint64(0)
	}

	if smin, ok := subI64(a.Bounds.Smin, b.Bounds.Smax); ok {
		out.Bounds.Smin = smin
	} else {
		out.Bounds.Smin = minInt64
	}
	if smax, ok := subI64(a.Bounds.Smax, b.Bounds.Smin); ok {
		out.Bounds.Smax = smax
	} else {
		out.Bounds.Smax = maxInt64
	}

	return out.normalize()
}

// MulScalar implements §4.1 Mul: precise only when both operands are
// known non-negative and fit in 32 bits; otherwise the numeric bounds
// collapse to the full range and only var_off (left unknown) survives.
func MulScalar(a, b Scalar) Scalar {
	const mask32 = 0xffffffff
	if a.Bounds.Smin >= 0 && a.Bounds.Umax <= mask32 &&
		b.Bounds.Smin >= 0 && b.Bounds.Umax <= mask32 {
		umin := a.Bounds.Umin * b.Bounds.Umin
		umax := a.Bounds.Umax * b.Bounds.Umax
		return Scalar{
			Var: Unknown,
			Bounds: Bounds{
				Smin: int64(umin), Smax: int64(umax),
				Umin: umin, Umax: umax,
			},
		}.normalize()
	}
	return UnknownScalar()
}

// AndScalar implements §4.1 And: var_off through the bitwise transfer
// function; signed bounds collapse whenever either operand might be
// negative (top bit not known-0).
func AndScalar(a, b Scalar) Scalar {
	v := And(a.Var, b.Var)
	out := Scalar{Var: v, Bounds: BoundsFromTnum(v)}
	if mayBeNegative(a.Bounds) || mayBeNegative(b.Bounds) {
		out.Bounds.Smin = minInt64
		out.Bounds.Smax = maxInt64
	}
	return out.normalize()
}

// OrScalar implements §4.1 Or.
func OrScalar(a, b Scalar) Scalar {
	v := Or(a.Var, b.Var)
	out := Scalar{Var: v, Bounds: BoundsFromTnum(v)}
	if mayBeNegative(a.Bounds) || mayBeNegative(b.Bounds) {
		out.Bounds.Smin = minInt64
		out.Bounds.Smax = maxInt64
	}
	return out.normalize()
}

// XorScalar implements §4.1 Xor.
func XorScalar(a, b Scalar) Scalar {
	v := Xor(a.Var, b.Var)
	out := Scalar{Var: v, Bounds: BoundsFromTnum(v)}
	if mayBeNegative(a.Bounds) || mayBeNegative(b.Bounds) {
		out.Bounds.Smin = minInt64
		out.Bounds.Smax = maxInt64
	}
	return out.normalize()
}

// LshScalar implements §4.1 Lsh. ok=false means the shift amount is
// outside [0, bitWidth) and the instruction must be rejected.
func LshScalar(a Scalar, shift uint64, bitWidth uint) (Scalar, bool) {
	if shift >= uint64(bitWidth) {
		return Scalar{}, false
	}
	v := Lshift(a.Var, uint(shift))
	out := Scalar{Var: v, Bounds: BoundsFromTnum(v)}
	if bitWidth < 64 {
		out = Scalar{Var: Cast(v, bitWidth), Bounds: BoundsFromTnum(Cast(v, bitWidth))}
	}
	return out.normalize(), true
}

// RshScalar implements §4.1 Rsh (logical).
func RshScalar(a Scalar, shift uint64, bitWidth uint) (Scalar, bool) {
	if shift >= uint64(bitWidth) {
		return Scalar{}, false
	}
	narrowed := Cast(a.Var, bitWidth)
	v := Rshift(narrowed, uint(shift))
	return Scalar{Var: v, Bounds: BoundsFromTnum(v)}.normalize(), true
}

// ArshScalar implements §4.1 Arsh (arithmetic, sign-extending from
// bitWidth).
func ArshScalar(a Scalar, shift uint64, bitWidth uint) (Scalar, bool) {
	if shift >= uint64(bitWidth) {
		return Scalar{}, false
	}
	v := Arshift(Cast(a.Var, bitWidth), uint(shift), bitWidth)
	return Scalar{Var: v, Bounds: BoundsFromTnum(v)}.normalize(), true
}

// NegScalar implements unary negation (dst = -dst), 64-bit two's
// complement.
func NegScalar(a Scalar) Scalar {
	return SubScalar(ConstScalar(0), a)
}

// Narrow32 implements the §4.2 point 4 zero-extension rule for narrow
// (1/2/4 byte) loads: the result's upper bits are known-zero.
func Narrow32(a Scalar) Scalar {
	v := Cast(a.Var, 32)
	return Scalar{Var: v, Bounds: BoundsFromTnum(v)}.normalize()
}

func mayBeNegative(b Bounds) bool {
	return b.Smin < 0
}

func addU64(a, b uint64) (uint64, bool) {
	s := a + b
	return s, s >= a
}

func subU64(a, b uint64) (uint64, bool) {
	if a < b {
		return 0, false
	}
	return a - b, true
}

func addI64(a, b int64) (int64, bool) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return 0, false
	}
	return s, true
}

func subI64(a, b int64) (int64, bool) {
	if b == minInt64 {
		return 0, false
	}
	return addI64(a, -b)
}
