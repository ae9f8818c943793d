package cfg

import (
	"testing"

	"github.com/go-bpf/verifier/pkg/diag"
	"github.com/go-bpf/verifier/pkg/insn"
)

func exit() insn.Instruction { return insn.Instruction{Op: insn.ClassJmp | insn.JmpExit} }

func mov(dst insn.Reg, imm int32) insn.Instruction {
	return insn.Instruction{Op: insn.ClassAlu64 | insn.SrcImm | insn.OpMov, Dst: dst, Imm: imm}
}

func TestBuildRejectsEmptyProgram(t *testing.T) {
	if _, rej := Build(nil); rej == nil || rej.Code != diag.CodeMalformedProgram {
		t.Fatal("an empty instruction stream should be rejected as malformed")
	}
}

func TestBuildSmallestValidProgram(t *testing.T) {
	insns := []insn.Instruction{mov(insn.R0, 0), exit()}
	g, rej := Build(insns)
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}
	if len(g.Succ[0]) != 1 || g.Succ[0][0] != 1 {
		t.Errorf("mov should fall through to the exit, got %v", g.Succ[0])
	}
	if len(g.Succ[1]) != 0 {
		t.Errorf("exit should have no successors, got %v", g.Succ[1])
	}
	if len(g.Subprograms) != 1 || g.Subprograms[0] != 0 {
		t.Errorf("a program with no calls should have exactly subprogram entry 0, got %v", g.Subprograms)
	}
}

func TestBuildRejectsOutOfRangeJump(t *testing.T) {
	insns := []insn.Instruction{
		{Op: insn.ClassJmp | insn.JmpJA, Off: 100},
		exit(),
	}
	if _, rej := Build(insns); rej == nil || rej.Code != diag.CodeMalformedProgram {
		t.Fatal("an out-of-range jump target should be rejected")
	}
}

func TestBuildRejectsBackEdge(t *testing.T) {
	// 0: mov r0, 0
	// 1: ja -1        (jumps back to instruction 1: a self-loop)
	insns := []insn.Instruction{
		mov(insn.R0, 0),
		{Op: insn.ClassJmp | insn.JmpJA, Off: -1},
	}
	_, rej := Build(insns)
	if rej == nil || rej.Code != diag.CodeBackEdge {
		t.Fatalf("a self-loop jump should be rejected as a back edge, got %v", rej)
	}
}

func TestBuildAcceptsForwardBranchDAG(t *testing.T) {
	// 0: jeq r0, 0, +1  -> either fall to 1 or jump to 2
	// 1: mov r1, 1
	// 2: exit
	insns := []insn.Instruction{
		{Op: insn.ClassJmp | insn.SrcImm | insn.JmpJEQ, Dst: insn.R0, Off: 1},
		mov(insn.R1, 1),
		exit(),
	}
	g, rej := Build(insns)
	if rej != nil {
		t.Fatalf("a forward-branching DAG should be accepted, got %v", rej)
	}
	if len(g.Succ[0]) != 2 {
		t.Errorf("a conditional jump should record both successors, got %v", g.Succ[0])
	}
}

func TestBuildDiscoversSubprograms(t *testing.T) {
	// 0: callsub +2   (calls subprogram at instruction 3)
	// 1: mov r0, 0
	// 2: exit
	// 3: mov r0, 7    (subprogram entry)
	// 4: exit
	insns := []insn.Instruction{
		{Op: insn.ClassJmp | insn.JmpCall, Src: insn.PseudoCall, Imm: 2},
		mov(insn.R0, 0),
		exit(),
		mov(insn.R0, 7),
		exit(),
	}
	g, rej := Build(insns)
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}
	if len(g.Subprograms) != 2 {
		t.Fatalf("expected 2 subprogram entries (0 and 3), got %v", g.Subprograms)
	}
	found := false
	for _, e := range g.Subprograms {
		if e == 3 {
			found = true
		}
	}
	if !found {
		t.Errorf("subprogram entry 3 should be discovered from the pseudo-call target, got %v", g.Subprograms)
	}
	if g.SubprogOf[3] == g.SubprogOf[0] {
		t.Error("the called subprogram should be labeled distinctly from the entry subprogram")
	}
}

func TestBuildRejectsTooManySubprograms(t *testing.T) {
	// numCalls distinct pseudo-calls, each targeting its own one-instruction
	// subprogram body placed after a single fallthrough exit. Every call's
	// relative Imm works out to the same constant: numCalls.
	numCalls := MaxSubprograms + 2
	var insns []insn.Instruction
	for i := 0; i < numCalls; i++ {
		insns = append(insns, insn.Instruction{
			Op: insn.ClassJmp | insn.JmpCall, Src: insn.PseudoCall, Imm: int32(numCalls),
		})
	}
	insns = append(insns, exit())
	for i := 0; i < numCalls; i++ {
		insns = append(insns, exit())
	}

	_, rej := Build(insns)
	if rej == nil || rej.Code != diag.CodeMalformedProgram {
		t.Fatalf("exceeding MaxSubprograms should be rejected, got %v", rej)
	}
}
