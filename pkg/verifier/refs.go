package verifier

import (
	"github.com/go-bpf/verifier/pkg/diag"
	"github.com/go-bpf/verifier/pkg/regstate"
)

// refTracker enforces §4.4: every reference a helper acquires must be
// released on every exit path, exactly once, before the program exits
// from its outermost frame (a subprogram may return still holding one).
type refTracker struct {
	nextID uint32
	// live maps an acquired reference's ID to the instruction that
	// acquired it, for error messages.
	live map[uint32]int
}

func newRefTracker() *refTracker {
	return &refTracker{live: map[uint32]int{}}
}

// Acquire allocates a fresh reference id and records it live, called at
// the call of a helper whose signature returns a socket, before its result
// is null-checked (the null edge of that check drops the id again).
func (t *refTracker) Acquire(atInsn int) uint32 {
	t.nextID++
	id := t.nextID
	t.live[id] = atInsn
	return id
}

// Release marks a reference no longer outstanding. It returns an error if
// id was not live (double release or releasing an id that was never
// acquired on this path, §4.4 point 3).
func (t *refTracker) Release(id uint32, atInsn int) *diag.Rejection {
	if _, ok := t.live[id]; !ok {
		return diag.New(diag.CodeDoubleRelease, atInsn, "reference %d released but not held", id)
	}
	delete(t.live, id)
	return nil
}

// CheckExit verifies no reference is still outstanding when the program
// is about to exit from its outermost frame (§4.4 point 2); subprogram
// returns are not checked.
func (t *refTracker) CheckExit(atInsn int) *diag.Rejection {
	for id, acquiredAt := range t.live {
		return diag.New(diag.CodeUnreleasedReference, atInsn,
			"reference %d acquired at insn %d is never released", id, acquiredAt)
	}
	return nil
}

// forceRelease drops a reference the verifier itself has proven can never
// be used (the register holding it was proven null, mirroring the
// kernel's mark_ptr_or_null_reg dropping state->refs for an id once the
// branch establishes the pointer is NULL) without the double-release
// error a helper-issued Release would raise for an id that isn't live.
func (t *refTracker) forceRelease(id uint32) {
	delete(t.live, id)
}

// equalIDs reports whether t and other hold exactly the same set of live
// reference ids (§4.8 "identical reference-id vectors per frame" — this
// repo tracks references per state rather than per frame since §4.4 says
// they're "shared across the whole call stack").
func (t *refTracker) equalIDs(other *refTracker) bool {
	if len(t.live) != len(other.live) {
		return false
	}
	for id := range t.live {
		if _, ok := other.live[id]; !ok {
			return false
		}
	}
	return true
}

// Clone deep-copies the tracker for a forked branch.
func (t *refTracker) Clone() *refTracker {
	cp := &refTracker{nextID: t.nextID, live: make(map[uint32]int, len(t.live))}
	for k, v := range t.live {
		cp.live[k] = v
	}
	return cp
}

// reachableRefID returns the RefObjID of the register if it currently
// holds a live acquired reference, else 0.
func reachableRefID(r regstate.Reg) uint32 {
	if r.Kind == regstate.PtrToSocket {
		return r.RefObjID
	}
	return 0
}
