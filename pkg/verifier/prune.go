package verifier

import "github.com/go-bpf/verifier/pkg/regstate"

// pruneCache records, per instruction index, every previously-verified
// state reached at that instruction. Before exploring a state further the
// worklist checks whether some cached state already subsumes it
// (regsafe); if so the whole subtree below is known-safe and is pruned
// without re-walking it, the same "don't redo work you've already
// verified" idea as the teacher's pkg/search ShouldPrune/QuickCheck, but
// comparing abstract verifier states instead of concrete CPU states
// reachable from a fixed test-vector set.
type pruneCache struct {
	byInsn map[int][]*State
}

func newPruneCache() *pruneCache {
	return &pruneCache{byInsn: map[int][]*State{}}
}

// Subsumed reports whether some previously-recorded state at s.InsnIdx is
// regsafe with respect to s, i.e. everything s could still do, that
// recorded state could already do too.
func (c *pruneCache) Subsumed(s *State) bool {
	for _, old := range c.byInsn[s.InsnIdx] {
		if statesEqual(old, s) {
			return true
		}
	}
	return false
}

// Record stores s as a new known-safe state at its instruction index.
func (c *pruneCache) Record(s *State) {
	c.byInsn[s.InsnIdx] = append(c.byInsn[s.InsnIdx], s)
}

// statesEqual implements regsafe (§4.8): old subsumes cur iff every frame
// matches, and within each frame every live register and every non-misc
// stack slot of cur is modelled by old's corresponding register/slot.
// Registers old never reads (not live) are ignored, the classic
// "liveness screens out irrelevant differences" rule.
func statesEqual(old, cur *State) bool {
	if len(old.Frames) != len(cur.Frames) {
		return false
	}
	if old.ActiveSpinLock != cur.ActiveSpinLock {
		return false
	}
	if !old.Refs.equalIDs(cur.Refs) {
		return false
	}
	b := newIDBijection()
	for i := range old.Frames {
		if !frameSafe(old.Frames[i], cur.Frames[i], b) {
			return false
		}
	}
	return true
}

func frameSafe(old, cur *regstate.Frame, b *idBijection) bool {
	for i := range old.Regs {
		o := old.Regs[i]
		if o.Live&regstate.LiveRead == 0 {
			continue
		}
		if !regSafe(o, cur.Regs[i], b) {
			return false
		}
	}
	if len(old.Stack) != len(cur.Stack) {
		return false
	}
	for i := range old.Stack {
		if old.Stack[i].Kind != regstate.SlotSpill {
			continue
		}
		if cur.Stack[i].Kind != regstate.SlotSpill {
			return false
		}
		if !regSafe(old.Stack[i].Spilled, cur.Stack[i].Spilled, b) {
			return false
		}
	}
	return true
}

// idBijection tracks the small incremental old<->new id relation §4.8
// requires: two registers sharing an id in `old` must also share one in
// `cur`, and vice versa, across the whole state comparison (not just one
// register pair at a time).
type idBijection struct {
	oldToCur map[uint32]uint32
	curToOld map[uint32]uint32
}

func newIDBijection() *idBijection {
	return &idBijection{oldToCur: map[uint32]uint32{}, curToOld: map[uint32]uint32{}}
}

// relate records that old carried id oldID where cur carries id curID,
// returning false if that contradicts a relation recorded earlier.
func (b *idBijection) relate(oldID, curID uint32) bool {
	if oldID == 0 && curID == 0 {
		return true
	}
	if oldID == 0 || curID == 0 {
		return false
	}
	if want, ok := b.oldToCur[oldID]; ok {
		if want != curID {
			return false
		}
	} else {
		b.oldToCur[oldID] = curID
	}
	if want, ok := b.curToOld[curID]; ok {
		if want != oldID {
			return false
		}
	} else {
		b.curToOld[curID] = oldID
	}
	return true
}

// regSafe reports whether everything old's register value permits, cur's
// value also permits: same Kind, and for scalars cur's known bits/bounds
// must be a subset of (at least as precise as) old's — i.e. old is at
// least as conservative, so any check that passed against old also passes
// against cur.
func regSafe(old, cur regstate.Reg, b *idBijection) bool {
	if old.Kind != cur.Kind {
		return false
	}
	switch old.Kind {
	case regstate.ScalarValue:
		return tnumCovers(old.Scalar.Var.Mask, old.Scalar.Var.Value, cur.Scalar.Var.Mask, cur.Scalar.Var.Value) &&
			old.Scalar.Bounds.Smin <= cur.Scalar.Bounds.Smin && cur.Scalar.Bounds.Smax <= old.Scalar.Bounds.Smax &&
			old.Scalar.Bounds.Umin <= cur.Scalar.Bounds.Umin && cur.Scalar.Bounds.Umax <= old.Scalar.Bounds.Umax
	case regstate.PtrToMapValue, regstate.PtrToMapValueOrNull, regstate.PtrToMapKey, regstate.ConstPtrToMap:
		return old.Map == cur.Map && old.Off == cur.Off
	case regstate.PtrToPacket, regstate.PtrToPacketMeta:
		return old.Off == cur.Off && b.relate(old.ID, cur.ID)
	case regstate.PtrToSocket, regstate.PtrToSocketOrNull:
		return b.relate(old.RefObjID, cur.RefObjID)
	default:
		return old.Off == cur.Off
	}
}

// tnumCovers reports whether everything the (oldMask,oldValue) tnum
// models, the (curMask,curValue) tnum also models — i.e. old's unknown
// bits are a superset of cur's, and on the bits old does know, cur agrees.
func tnumCovers(oldMask, oldValue, curMask, curValue uint64) bool {
	knownByOld := ^oldMask
	if knownByOld&^(^curMask) != 0 {
		// old knows a bit that cur leaves unknown: cur is less precise,
		// not safe to treat as covered.
		return false
	}
	return oldValue&knownByOld == curValue&knownByOld
}
