package verifier

import (
	"testing"

	"github.com/go-bpf/verifier/pkg/regstate"
	"github.com/go-bpf/verifier/pkg/tnum"
)

func TestTnumCoversIdentical(t *testing.T) {
	if !tnumCovers(0x0f, 0x10, 0x0f, 0x10) {
		t.Error("a tnum should cover itself")
	}
}

func TestTnumCoversMoreGeneralOld(t *testing.T) {
	// old knows nothing (fully unknown); cur is a known constant. Old's
	// unknown bits are a superset of cur's, so old covers cur.
	if !tnumCovers(^uint64(0), 0, 0, 42) {
		t.Error("a fully-unknown old tnum should cover any more precise cur tnum")
	}
}

func TestTnumCoversRejectsLessGeneralOld(t *testing.T) {
	// old claims bit 0 is known-1 (mask 0, value 1); cur claims it unknown.
	if tnumCovers(0, 1, 1, 0) {
		t.Error("old should not cover a cur that is less precise than it on a bit old claims to know")
	}
}

func TestTnumCoversRejectsDisagreement(t *testing.T) {
	// both fully known but at different values.
	if tnumCovers(0, 1, 0, 2) {
		t.Error("old should not cover a cur whose known value disagrees with old's")
	}
}

func constReg(v uint64) regstate.Reg {
	return regstate.Reg{Kind: regstate.ScalarValue, Scalar: tnum.ConstScalar(v)}
}

func TestRegSafeDifferentKindsNeverSafe(t *testing.T) {
	old := regstate.Reg{Kind: regstate.ScalarValue}
	cur := regstate.Reg{Kind: regstate.PtrToStack}
	if regSafe(old, cur, newIDBijection()) {
		t.Error("registers of different kinds can never be regsafe")
	}
}

func TestRegSafeScalarNarrowerCurIsSafe(t *testing.T) {
	old := regstate.Reg{Kind: regstate.ScalarValue, Scalar: tnum.UnknownScalar()}
	cur := constReg(5)
	if !regSafe(old, cur, newIDBijection()) {
		t.Error("a fully-unknown old scalar should cover any more specific cur scalar")
	}
}

func TestRegSafeScalarWiderCurIsUnsafe(t *testing.T) {
	old := constReg(5)
	cur := regstate.Reg{Kind: regstate.ScalarValue, Scalar: tnum.UnknownScalar()}
	if regSafe(old, cur, newIDBijection()) {
		t.Error("a precisely-known old constant should not cover a less precise cur")
	}
}

func TestRegSafePointerOffsetMustMatch(t *testing.T) {
	old := regstate.Reg{Kind: regstate.PtrToStack, Off: -8}
	curSame := regstate.Reg{Kind: regstate.PtrToStack, Off: -8}
	curDiff := regstate.Reg{Kind: regstate.PtrToStack, Off: -16}
	if !regSafe(old, curSame, newIDBijection()) {
		t.Error("identical stack-pointer offsets should be regsafe")
	}
	if regSafe(old, curDiff, newIDBijection()) {
		t.Error("differing stack-pointer offsets should not be regsafe")
	}
}

func TestRegSafeMapValuePointerComparesMapAndOffset(t *testing.T) {
	m := &regstate.MapRef{Index: 0, ValueSize: 16}
	old := regstate.Reg{Kind: regstate.PtrToMapValue, Map: m, Off: 0}
	cur := regstate.Reg{Kind: regstate.PtrToMapValue, Map: m, Off: 0}
	if !regSafe(old, cur, newIDBijection()) {
		t.Error("identical map/offset pairs should be regsafe")
	}
	cur.Off = 4
	if regSafe(old, cur, newIDBijection()) {
		t.Error("differing offsets into the same map value should not be regsafe")
	}
}

func TestFrameSafeIgnoresDeadRegisters(t *testing.T) {
	old := regstate.NewEntryFrame()
	cur := regstate.NewEntryFrame()
	// R6 differs between the two, but neither frame has ever read it, so
	// liveness should screen the difference out.
	old.Regs[6] = constReg(1)
	cur.Regs[6] = constReg(2)
	if !frameSafe(old, cur, newIDBijection()) {
		t.Error("a register neither frame has read should not affect regsafe")
	}
}

func TestFrameSafeCaresAboutLiveRegisters(t *testing.T) {
	old := regstate.NewEntryFrame()
	cur := regstate.NewEntryFrame()
	oldR6 := constReg(1)
	oldR6.MarkRead()
	old.Regs[6] = oldR6
	cur.Regs[6] = constReg(2)
	if frameSafe(old, cur, newIDBijection()) {
		t.Error("a live register with a disagreeing value should break regsafe")
	}
}

func TestStatesEqualRequiresSameFrameCount(t *testing.T) {
	one := NewEntryState()
	two := NewEntryState()
	two.Frames = append(two.Frames, regstate.NewCallFrame(two.CurFrame(), 0, 0))
	if statesEqual(one, two) {
		t.Error("states with a different call-frame depth should never be equal")
	}
}

func TestPruneCacheSubsumesIdenticalState(t *testing.T) {
	cache := newPruneCache()
	s := NewEntryState()
	s.InsnIdx = 5
	cache.Record(s)

	other := NewEntryState()
	other.InsnIdx = 5
	if !cache.Subsumed(other) {
		t.Error("an identical state at the same instruction should be subsumed")
	}
}

func TestPruneCacheDoesNotSubsumeDifferentInsnIdx(t *testing.T) {
	cache := newPruneCache()
	s := NewEntryState()
	s.InsnIdx = 5
	cache.Record(s)

	other := NewEntryState()
	other.InsnIdx = 6
	if cache.Subsumed(other) {
		t.Error("a state recorded at a different instruction index should not subsume this one")
	}
}
