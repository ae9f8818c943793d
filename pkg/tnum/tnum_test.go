package tnum

import (
	"math/rand"
	"testing"
)

// TestConstRoundtrip verifies Const values model exactly one concrete value.
func TestConstRoundtrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 0xff, 0xdeadbeef, ^uint64(0)} {
		tn := Const(v)
		if !tn.IsConst() {
			t.Errorf("Const(%#x) should be const", v)
		}
		if !tn.InRange(v) {
			t.Errorf("Const(%#x) should model %#x", v, v)
		}
		if tn.InRange(v + 1) {
			t.Errorf("Const(%#x) should not model %#x", v, v+1)
		}
	}
}

// TestDomainSoundnessAdd samples concrete 64-bit values and checks that
// AddScalar's abstract result always models the concrete sum, per the
// Domain soundness property in spec.md §8.
func TestDomainSoundnessAdd(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		av := rng.Uint64() & 0xffff
		bv := rng.Uint64() & 0xffff
		a := ConstScalar(av)
		b := ConstScalar(bv)
		sum := av + bv

		abst := AddScalar(a, b)
		if !abst.Var.InRange(sum) {
			t.Fatalf("Add(%d,%d)=%d not modelled by tnum %+v", av, bv, sum, abst.Var)
		}
		if int64(sum) < abst.Bounds.Smin || int64(sum) > abst.Bounds.Smax {
			t.Fatalf("Add(%d,%d)=%d outside signed bounds [%d,%d]", av, bv, sum, abst.Bounds.Smin, abst.Bounds.Smax)
		}
		if sum < abst.Bounds.Umin || sum > abst.Bounds.Umax {
			t.Fatalf("Add(%d,%d)=%d outside unsigned bounds [%d,%d]", av, bv, sum, abst.Bounds.Umin, abst.Bounds.Umax)
		}
	}
}

// TestDomainSoundnessAnd checks the And transfer function the same way.
func TestDomainSoundnessAnd(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 2000; i++ {
		av := rng.Uint64()
		bv := rng.Uint64()
		abst := AndScalar(ConstScalar(av), ConstScalar(bv))
		want := av & bv
		if !abst.Var.InRange(want) {
			t.Fatalf("And(%#x,%#x)=%#x not modelled by %+v", av, bv, want, abst.Var)
		}
	}
}

// TestDeductionMonotonicity verifies that applying Deduce repeatedly never
// widens the modelled value set (spec.md §8 "Deduction monotonicity").
func TestDeductionMonotonicity(t *testing.T) {
	cases := []struct {
		t Num
		b Bounds
	}{
		{Num{Value: 0x10, Mask: 0x0f}, Bounds{Smin: 0, Smax: 100, Umin: 0, Umax: 100}},
		{Unknown, FullBounds},
		{Const(5), Bounds{Smin: -10, Smax: 10, Umin: 0, Umax: 20}},
	}
	for _, c := range cases {
		t1, b1 := Deduce(c.t, c.b)
		t2, b2 := Deduce(t1, b1)
		if t2 != t1 || b2 != b1 {
			t.Errorf("Deduce not idempotent: first=%+v/%+v second=%+v/%+v", t1, b1, t2, b2)
		}
		// Every concrete value modelled by the tightened tnum must also be
		// modelled by the original (never widens).
		if count1, count2 := popcountUnknown(t1), popcountUnknown(c.t); count1 > count2 {
			t.Errorf("deduction widened unknown bit count: %d > %d", count1, count2)
		}
	}
}

func popcountUnknown(n Num) int {
	c := 0
	for i := 0; i < 64; i++ {
		if n.Mask&(1<<uint(i)) != 0 {
			c++
		}
	}
	return c
}

// TestShiftRejectsOutOfRange verifies §4.1 Lsh/Rsh/Arsh reject shifts
// greater than or equal to the bit width.
func TestShiftRejectsOutOfRange(t *testing.T) {
	a := ConstScalar(1)
	if _, ok := LshScalar(a, 64, 64); ok {
		t.Error("Lsh by 64 on a 64-bit value should be rejected")
	}
	if _, ok := LshScalar(a, 32, 32); ok {
		t.Error("Lsh by 32 on a 32-bit value should be rejected")
	}
	if _, ok := RshScalar(a, 63, 64); !ok {
		t.Error("Rsh by 63 on a 64-bit value should be accepted")
	}
}

// TestNarrow32ZeroExtends checks that narrow-load zero extension marks
// upper bits known-zero (§4.2 point 4).
func TestNarrow32ZeroExtends(t *testing.T) {
	s := UnknownScalar()
	n := Narrow32(s)
	if n.Var.Mask>>32 != 0 {
		t.Errorf("Narrow32 should leave upper 32 bits known-zero, got mask %#x", n.Var.Mask)
	}
	if n.Var.Value>>32 != 0 {
		t.Errorf("Narrow32 should leave upper 32 value bits zero, got %#x", n.Var.Value)
	}
}
