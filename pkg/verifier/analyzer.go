// Package verifier implements the path-sensitive worklist executor
// (do_check) that walks every reachable state of a program, and the
// Analyzer that owns the per-invocation id-generator and mutex the
// concurrency model requires (§5).
package verifier

import (
	"runtime"
	"sync"

	"github.com/go-bpf/verifier/pkg/cfg"
	"github.com/go-bpf/verifier/pkg/diag"
	"github.com/go-bpf/verifier/pkg/insn"
	"github.com/go-bpf/verifier/pkg/mapspec"
	"github.com/go-bpf/verifier/pkg/proto"
	"github.com/go-bpf/verifier/pkg/regstate"
	"github.com/go-bpf/verifier/pkg/rewrite"
)

// MaxStatesExplored bounds the worklist to keep a pathological program
// from exhausting memory (§4.8 "pruning keeps exploration finite in
// practice"; this is the hard backstop when pruning alone isn't enough).
const MaxStatesExplored = 1 << 20

// yieldEvery is how many instructions the worklist processes before a
// cooperative runtime.Gosched() (§5 "voluntary cooperative yields").
const yieldEvery = 4096

// Analyzer owns the state for exactly one verification: its id-generator
// and a mutex serializing access to it. §5 requires a fresh Analyzer per
// invocation rather than a shared package-level one, so that concurrent
// calls to Check (e.g. from cmd/bpfcheck's batch worker pool) never
// contend on, or corrupt, each other's counters.
type Analyzer struct {
	mu      sync.Mutex
	idCount uint64
	LogLevel int
}

// NewAnalyzer returns a fresh Analyzer. logLevel sets the verification
// log's trace verbosity (0, 1, or 2, §6).
func NewAnalyzer(logLevel int) *Analyzer {
	return &Analyzer{LogLevel: logLevel}
}

func (a *Analyzer) nextStateID() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.idCount++
	return a.idCount
}

// Check verifies prog against progType, returning the rewritten
// instruction stream and log on success, or a *diag.Rejection error.
func (a *Analyzer) Check(prog Program) (*Result, error) {
	log := diag.NewLog(a.LogLevel)

	graph, rej := cfg.Build(prog.Insns)
	if rej != nil {
		log.Printf("rejected: %s", rej.Error())
		return nil, rej
	}
	log.Trace(1, "cfg: %d instructions, %d subprograms", len(graph.Insns), len(graph.Subprograms))

	if len(graph.Subprograms) > 1 {
		if rej := rejectTailCallWithSubprogs(prog.Insns); rej != nil {
			log.Printf("rejected: %s", rej.Error())
			return nil, rej
		}
	}

	mapTypes := make([]mapspec.Type, len(prog.Maps))
	mapValueSizes := make([]uint32, len(prog.Maps))
	for i, m := range prog.Maps {
		mapTypes[i] = m.Type
		mapValueSizes[i] = m.ValueSize
	}

	aux := make([]InsnAux, len(prog.Insns))
	cache := newPruneCache()

	entry := NewEntryState()
	entry.ID = a.nextStateID()
	worklist := []*State{entry}

	statesSeen := 0
	maxStackDepth := 0
	processed := 0

	for len(worklist) > 0 {
		if statesSeen > MaxStatesExplored {
			rej := diag.New(diag.CodeProgramTooLarge, -1, "exceeded %d explored states", MaxStatesExplored)
			log.Printf("rejected: %s", rej.Error())
			return nil, rej
		}
		cur := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		statesSeen++

		w := &walker{
			cur:           cur,
			aux:           aux,
			progType:      prog.ProgType,
			mapTypes:      mapTypes,
			mapValueSizes: mapValueSizes,
			mapSpinLocks:  prog.Maps,
			gplCompatible: prog.GPLCompatible,
			log:           log,
		}

		for {
			if cur.InsnIdx >= len(prog.Insns) {
				rej := diag.New(diag.CodeMalformedProgram, cur.InsnIdx, "fell off the end of the program without exit")
				log.Printf("rejected: %s", rej.Error())
				return nil, rej
			}

			if cache.Subsumed(cur) {
				log.Trace(2, "insn %d: state pruned (previously verified)", cur.InsnIdx)
				break
			}
			cache.Record(cur.Clone())

			processed++
			if processed%yieldEvery == 0 {
				runtime.Gosched()
			}

			ins := prog.Insns[cur.InsnIdx]
			log.Trace(1, "insn %d: %s", cur.InsnIdx, ins.String())

			if depth := cur.CurFrame().AllocatedStack; depth > maxStackDepth {
				maxStackDepth = depth
			}
			if cur.CurFrame().AllocatedStack > regstate.MaxStackDepth {
				rej := diag.New(diag.CodeStackDepthExceeded, cur.InsnIdx, "stack depth exceeds %d", regstate.MaxStackDepth)
				log.Printf("rejected: %s", rej.Error())
				return nil, rej
			}

			outcome, forked, rej := w.step(ins)
			if rej != nil {
				log.Printf("rejected: %s", rej.Error())
				return nil, rej
			}

			switch outcome {
			case outcomeContinue, outcomeCallReturned:
				continue
			case outcomeBranch:
				forked.ID = a.nextStateID()
				worklist = append(worklist, forked)
				continue
			case outcomeExitProgram:
			}
			break
		}
	}

	rewritten, rwErr := rewrite.Apply(prog.Insns, rewriteAuxView(aux))
	if rwErr != nil {
		log.Printf("rejected: %s", rwErr.Error())
		return nil, diag.Wrap(diag.CodeMalformedProgram, -1, rwErr, "rewrite pipeline failed")
	}

	log.Printf("accepted: %d states explored, max stack depth %d", statesSeen, maxStackDepth)
	return &Result{
		Insns:         rewritten,
		Log:           log.String(),
		StatesSeen:    statesSeen,
		MaxStackDepth: maxStackDepth,
	}, nil
}

// rejectTailCallWithSubprogs implements the structural policy check named
// in §4.6/§4.7: a program that defines any bpf-to-bpf subprogram (i.e. has
// more than the one implicit entry subprogram) may not also contain a
// bpf_tail_call, since the runtime's tail-call dispatch and a non-trivial
// call stack don't compose safely.
func rejectTailCallWithSubprogs(insns []insn.Instruction) *diag.Rejection {
	for i, in := range insns {
		if in.IsCall() && !in.IsPseudoCall() && mapspec.Helper(in.Imm) == proto.TailCall {
			return diag.New(diag.CodeInvalidHelperArgument, i, "tail_calls are not allowed in programs with bpf-to-bpf calls")
		}
	}
	return nil
}

// rewriteAuxView adapts this package's InsnAux slice to the small view
// interface pkg/rewrite depends on, keeping pkg/rewrite free of a direct
// dependency on pkg/verifier (it is a downstream consumer of verifier
// output, not a collaborator verifier needs to import back).
func rewriteAuxView(aux []InsnAux) []rewrite.AuxInfo {
	out := make([]rewrite.AuxInfo, len(aux))
	for i, a := range aux {
		out[i] = rewrite.AuxInfo{
			Visited:           a.Visited,
			NeedsSanitization: a.NeedsSanitization,
			ZeroExtendDst:     a.ZeroExtendDst,
			AluLimit:          a.AluLimit,
			MaskToLeft:        a.MaskToLeft,
		}
	}
	return out
}
