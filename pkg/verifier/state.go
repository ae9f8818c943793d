package verifier

import (
	"github.com/go-bpf/verifier/pkg/insn"
	"github.com/go-bpf/verifier/pkg/mapspec"
	"github.com/go-bpf/verifier/pkg/regstate"
)

// State is one path's full verifier state at a given instruction: the
// call-frame stack (§3 "Call frame"), plus the parent link used for
// liveness propagation and state-equivalence pruning (§4.8, §9 note on
// "parent link is a DAG of stable snapshots").
type State struct {
	Frames []*regstate.Frame
	// InsnIdx is the instruction this state is about to execute.
	InsnIdx int
	// Parent points at the state this one branched from (nil for the
	// very first state). Parent states are never mutated once a child
	// has been forked from them, so the pruning cache can hold pointers
	// into them safely (§9 note).
	Parent *State
	// SpeculativePath marks the sibling state checkPointerArith pushes for
	// a non-constant pointer offset, on which the offset is truncated
	// away (§4.3 point 4). A rejection on such a path is reported like one
	// on any other path.
	SpeculativePath bool
	// ID is a per-Analyzer-invocation sequence number used only for
	// trace logging, never for comparison.
	ID uint64
	// PacketVerified maps a packet-pointer register ID to the length a
	// prior comparison against packet_end has proven safe on this path
	// (§4.5). Own copy per state so forked branches don't alias it.
	PacketVerified map[uint32]int64
	// Refs tracks this path's outstanding acquired references (§4.4).
	// It must fork with the state: a reference acquired before a branch
	// is still live on both the taken and fall-through continuations.
	Refs *refTracker
	// ActiveSpinLock is the id of the spin lock currently held on this
	// path, or 0 if none is held (§3 "current spin-lock identity", §4.4
	// point "holding a spin lock forbids any helper call except the
	// matching unlock").
	ActiveSpinLock uint32
}

// CurFrame returns the innermost (currently executing) call frame.
func (s *State) CurFrame() *regstate.Frame { return s.Frames[len(s.Frames)-1] }

// Reg returns register n of the current frame.
func (s *State) Reg(n int) *regstate.Reg { return &s.CurFrame().Regs[n] }

// Clone deep-copies every frame (needed before forking a branch so the
// two resulting states never alias stack slices) and sets Parent to s.
func (s *State) Clone() *State {
	cp := &State{
		InsnIdx:         s.InsnIdx,
		Parent:          s,
		SpeculativePath: s.SpeculativePath,
		Frames:          make([]*regstate.Frame, len(s.Frames)),
		PacketVerified:  make(map[uint32]int64, len(s.PacketVerified)),
		Refs:            s.Refs.Clone(),
		ActiveSpinLock:  s.ActiveSpinLock,
	}
	for i, f := range s.Frames {
		cp.Frames[i] = f.Clone()
	}
	for k, v := range s.PacketVerified {
		cp.PacketVerified[k] = v
	}
	return cp
}

// PushFrame appends a fresh call frame for a `call` to a subprogram.
func (s *State) PushFrame(argc int, callSite int) {
	s.Frames = append(s.Frames, regstate.NewCallFrame(s.CurFrame(), argc, callSite))
}

// PopFrame removes the innermost frame on `exit`, returning the
// instruction index execution resumes at, or ok=false if this was the
// outermost frame (program exit, not a subprogram return).
func (s *State) PopFrame() (resumeAt int, ok bool) {
	if len(s.Frames) == 1 {
		return 0, false
	}
	top := s.Frames[len(s.Frames)-1]
	s.Frames = s.Frames[:len(s.Frames)-1]
	return top.CallSiteOff + 1, true
}

// NewEntryState builds the single starting state for a program.
func NewEntryState() *State {
	return &State{Frames: []*regstate.Frame{regstate.NewEntryFrame()}, Refs: newRefTracker()}
}

// InsnAux is the per-instruction metadata the verifier accumulates as it
// explores every reachable path, read back by the rewriter passes (§3
// "Instruction aux data", §4.9).
type InsnAux struct {
	// Visited is true once at least one path has executed this
	// instruction; the rewriter's dead-code pass nops every instruction
	// left unvisited (unreachable code is already rejected by pkg/cfg).
	Visited bool
	// MapPtr is set when this instruction is a pseudo-map-fd load and
	// points at the map it resolves to. rewriteAuxView does not pass it
	// on, and no rewrite pass reads it.
	MapPtr *regstate.MapRef
	// NeedsSanitization is set by the pointer-arithmetic checker when an
	// ALU instruction moves a pointer by a non-constant scalar offset,
	// marking it for the ALU-sanitization-insertion rewrite pass (§4.3
	// point 4, §4.9 point 3).
	NeedsSanitization bool
	// ZeroExtendDst records that a 32-bit ALU result needs an explicit
	// zero-extension of the upper 32 bits inserted for the target ISA
	// that doesn't do it implicitly (§4.9, a rewrite-pass concern, kept
	// here because it's discovered during the main walk).
	ZeroExtendDst bool
	// AluLimit is the pointer type's max bound the sanitization mask
	// clamps against, computed once per instruction (§4.3 point "record
	// a mask_to_left direction, compute the alu_limit"). Conflicting
	// limits from different paths reaching the same instruction reject
	// with REASON_PATHS (checked when NeedsSanitization is (re)computed).
	AluLimit int64
	// MaskToLeft records whether the sanitized offset is subtracted (the
	// op is sub) so the rewrite pass knows whether to negate around the
	// mask.
	MaskToLeft bool
}

// Program is one program unit handed to Check: its instructions plus the
// program type it's being verified against (§4.10) and the map table it
// may reference (§4.11), indexed the same way a pseudo-map-fd load's
// immediate indexes into it.
type Program struct {
	Insns    []insn.Instruction
	ProgType int // proto.ProgType, kept as int to avoid an import cycle in doc examples
	Maps     []mapspec.Desc
	// GPLCompatible is the caller-declared license flag (§6 "Flags:
	// strict-alignment, GPL-compatible"); a program without it may not
	// call a helper whose Signature.GPLOnly is set.
	GPLCompatible bool
}

// Result is what Check returns on success: the rewritten instruction
// stream plus the full verification log.
type Result struct {
	Insns      []insn.Instruction
	Log        string
	StatesSeen int
	MaxStackDepth int
}
