// Package cfg performs the control-flow analysis pass that must succeed
// before the path explorer ever runs: it builds successor edges, walks
// the graph with a non-recursive (explicit-stack) DFS to reject back
// edges, and discovers subprogram entry points from pseudo-call targets
// (§4.7). It does not compute stack depth: the path explorer checks each
// frame's stack use against regstate.MaxStackDepth, and no sum across a
// call chain is computed.
package cfg

import (
	"sort"

	"github.com/go-bpf/verifier/pkg/diag"
	"github.com/go-bpf/verifier/pkg/insn"
)

// MaxSubprograms bounds how many distinct bpf-to-bpf subprograms a single
// program may define, matching the conservatism of §4.7 point 4.
const MaxSubprograms = 64

// Graph is the result of analyzing one program's instruction stream.
type Graph struct {
	Insns []insn.Instruction
	// Succ[i] lists the instruction indices control may fall through or
	// branch to from instruction i.
	Succ [][]int
	// Subprograms holds the entry index of every subprogram discovered
	// via pseudo-call targets, always including 0 (the entry point).
	Subprograms []int
	// SubprogOf maps an instruction index to the index into Subprograms
	// of the subprogram that contains it.
	SubprogOf []int
}

// Build validates and analyzes a flat instruction stream. It returns a
// *diag.Rejection for malformed jump targets, unreachable back edges, or
// too many subprograms; otherwise a populated Graph.
func Build(insns []insn.Instruction) (*Graph, *diag.Rejection) {
	n := len(insns)
	if n == 0 {
		return nil, diag.New(diag.CodeMalformedProgram, -1, "program has no instructions")
	}

	g := &Graph{Insns: insns, Succ: make([][]int, n)}
	secondHalf := make([]bool, n)
	for i, in := range insns {
		if in.IsLoadImm64() {
			if i+1 >= n {
				return nil, diag.New(diag.CodeMalformedProgram, i, "lddw missing second half")
			}
			g.Succ[i] = []int{i + 2}
			secondHalf[i+1] = true
			continue
		}
		switch {
		case in.IsExit():
			// no successors
		case in.IsUnconditionalJump():
			t := i + 1 + int(in.Off)
			if t < 0 || t >= n {
				return nil, diag.New(diag.CodeMalformedProgram, i, "jump target %d out of range", t)
			}
			g.Succ[i] = []int{t}
		case in.IsConditionalJump():
			t := i + 1 + int(in.Off)
			if t < 0 || t >= n {
				return nil, diag.New(diag.CodeMalformedProgram, i, "jump target %d out of range", t)
			}
			g.Succ[i] = []int{i + 1, t}
		case in.IsPseudoCall():
			target := i + 1 + int(in.Imm)
			if target < 0 || target >= n {
				return nil, diag.New(diag.CodeMalformedProgram, i, "call target %d out of range", target)
			}
			g.Succ[i] = []int{i + 1}
			g.Subprograms = appendUnique(g.Subprograms, target)
		default:
			if i+1 < n {
				g.Succ[i] = []int{i + 1}
			}
		}
	}

	if len(g.Subprograms) > MaxSubprograms {
		return nil, diag.New(diag.CodeMalformedProgram, -1, "too many subprograms: %d > %d", len(g.Subprograms), MaxSubprograms)
	}

	if rej := rejectBackEdges(g); rej != nil {
		return nil, rej
	}

	g.assignSubprograms()

	if rej := g.rejectUnreachable(secondHalf); rej != nil {
		return nil, rej
	}
	if rej := g.rejectCrossSubprogramJumps(); rej != nil {
		return nil, rej
	}
	if rej := g.rejectNonTerminatingSubprograms(secondHalf); rej != nil {
		return nil, rej
	}

	return g, nil
}

// rejectUnreachable implements §4.7's "verifies ... unreachable
// instruction" structural check (kernel: any instruction not marked
// EXPLORED is rejected). assignSubprograms already leaves every
// instruction no path reaches at SubprogOf == -1; a lddw's second slot is
// never a real instruction and is excluded via secondHalf.
func (g *Graph) rejectUnreachable(secondHalf []bool) *diag.Rejection {
	for i := range g.Insns {
		if secondHalf[i] {
			continue
		}
		if g.SubprogOf[i] == -1 {
			return diag.New(diag.CodeUnreachableCode, i, "unreachable instruction %d", i)
		}
	}
	return nil
}

// rejectCrossSubprogramJumps implements §4.7's "verifies that every
// intra-subprogram jump stays within its subprogram": a conditional or
// unconditional jump whose target belongs to a different subprogram than
// the jump itself would corrupt the per-subprogram stack-depth analysis
// and the call/return discipline, and is rejected.
func (g *Graph) rejectCrossSubprogramJumps() *diag.Rejection {
	for i, in := range g.Insns {
		if !in.IsUnconditionalJump() && !in.IsConditionalJump() {
			continue
		}
		t := i + 1 + int(in.Off)
		if g.SubprogOf[i] != g.SubprogOf[t] {
			return diag.New(diag.CodeMalformedProgram, i, "jump from instruction %d crosses into a different subprogram", i)
		}
	}
	return nil
}

// rejectNonTerminatingSubprograms implements §4.7's "each subprogram's
// last instruction is exit or unconditional jump": subprograms occupy the
// contiguous range from their entry up to (but not including) the next
// subprogram's entry, per the sorted subprogram table this package builds.
func (g *Graph) rejectNonTerminatingSubprograms(secondHalf []bool) *diag.Rejection {
	entries := append([]int(nil), g.Subprograms...)
	for k, entry := range entries {
		end := len(g.Insns)
		if k+1 < len(entries) {
			end = entries[k+1]
		}
		last := end - 1
		for last > entry && secondHalf[last] {
			last--
		}
		in := g.Insns[last]
		if !in.IsExit() && !in.IsUnconditionalJump() {
			return diag.New(diag.CodeMalformedProgram, last, "subprogram starting at %d does not end in exit or an unconditional jump", entry)
		}
	}
	return nil
}

func appendUnique(s []int, v int) []int {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

// dfsState tags a node white/gray/black for the classic non-recursive
// back-edge detection DFS (gray = on the current stack = a back edge).
type dfsState uint8

const (
	white dfsState = iota
	gray
	black
)

// rejectBackEdges runs a non-recursive DFS from instruction 0 and from
// every discovered subprogram entry, using an explicit stack of (node,
// successor-cursor) frames so arbitrarily long straight-line programs
// never recurse (§4.7 point 1 "non-recursive").
func rejectBackEdges(g *Graph) *diag.Rejection {
	state := make([]dfsState, len(g.Insns))

	type frame struct {
		node   int
		cursor int
	}

	visitFrom := func(root int) *diag.Rejection {
		if state[root] != white {
			return nil
		}
		stack := []frame{{node: root}}
		state[root] = gray
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.cursor >= len(g.Succ[top.node]) {
				state[top.node] = black
				stack = stack[:len(stack)-1]
				continue
			}
			next := g.Succ[top.node][top.cursor]
			top.cursor++
			switch state[next] {
			case white:
				state[next] = gray
				stack = append(stack, frame{node: next})
			case gray:
				return diag.New(diag.CodeBackEdge, next, "back edge into instruction %d", next)
			case black:
				// already fully explored, fine (a DAG may revisit).
			}
		}
		return nil
	}

	if rej := visitFrom(0); rej != nil {
		return rej
	}
	for _, entry := range g.Subprograms {
		if rej := visitFrom(entry); rej != nil {
			return rej
		}
	}
	return nil
}

// assignSubprograms labels every instruction with which subprogram (by
// entry point) contains it, via a forward reachability sweep per entry.
func (g *Graph) assignSubprograms() {
	entries := append([]int{0}, g.Subprograms...)
	sort.Ints(entries)
	g.Subprograms = entries
	g.SubprogOf = make([]int, len(g.Insns))
	for i := range g.SubprogOf {
		g.SubprogOf[i] = -1
	}

	for idx, entry := range entries {
		if g.SubprogOf[entry] != -1 {
			continue
		}
		stack := []int{entry}
		for len(stack) > 0 {
			node := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if g.SubprogOf[node] != -1 {
				continue
			}
			g.SubprogOf[node] = idx
			for _, s := range g.Succ[node] {
				if g.SubprogOf[s] == -1 {
					stack = append(stack, s)
				}
			}
		}
	}
}

// SubprogEntries returns the instruction index each subprogram starts at,
// index 0 is always the program's entry point.
func (g *Graph) SubprogEntries() []int { return g.Subprograms }
