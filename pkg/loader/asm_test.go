package loader

import (
	"testing"

	"github.com/go-bpf/verifier/pkg/insn"
)

func TestDecodeAsmBlankAndComment(t *testing.T) {
	for _, line := range []string{"", "   ", "# a comment", "  # indented comment"} {
		got, err := DecodeAsm(line)
		if err != nil {
			t.Fatalf("DecodeAsm(%q): unexpected error: %v", line, err)
		}
		if got != nil {
			t.Errorf("DecodeAsm(%q) = %v, want nil", line, got)
		}
	}
}

func TestDecodeAsmExit(t *testing.T) {
	got, err := DecodeAsm("exit")
	if err != nil {
		t.Fatal(err)
	}
	want := []insn.Instruction{{Op: insn.ClassJmp | insn.JmpExit}}
	if len(got) != 1 || got[0] != want[0] {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDecodeAsmMovImm(t *testing.T) {
	got, err := DecodeAsm("mov64 r0, 0")
	if err != nil {
		t.Fatal(err)
	}
	want := insn.Instruction{Op: insn.ClassAlu64 | insn.SrcImm | insn.OpMov, Dst: insn.R0, Imm: 0}
	if len(got) != 1 || got[0] != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDecodeAsmAddReg(t *testing.T) {
	got, err := DecodeAsm("add64 r1, r2")
	if err != nil {
		t.Fatal(err)
	}
	want := insn.Instruction{Op: insn.ClassAlu64 | insn.SrcReg | insn.OpAdd, Dst: insn.R1, Src: insn.R2}
	if len(got) != 1 || got[0] != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDecodeAsmAlu32Width(t *testing.T) {
	got, err := DecodeAsm("mov32 r3, 7")
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Class() != insn.ClassAlu {
		t.Errorf("mov32 should decode to the 32-bit ALU class, got %#x", got[0].Class())
	}
}

func TestDecodeAsmNegHasNoSecondOperand(t *testing.T) {
	got, err := DecodeAsm("neg64 r4")
	if err != nil {
		t.Fatal(err)
	}
	want := insn.Instruction{Op: insn.ClassAlu64 | insn.OpNeg, Dst: insn.R4}
	if len(got) != 1 || got[0] != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDecodeAsmLoadWord(t *testing.T) {
	got, err := DecodeAsm("ldxw r0, [r1+0]")
	if err != nil {
		t.Fatal(err)
	}
	want := insn.Instruction{Op: insn.ClassLdX | insn.SizeW | insn.ModeMem, Dst: insn.R0, Src: insn.R1, Off: 0}
	if len(got) != 1 || got[0] != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDecodeAsmStoreDoubleWordImm(t *testing.T) {
	got, err := DecodeAsm("stxdw [r10-8], 0")
	if err != nil {
		t.Fatal(err)
	}
	want := insn.Instruction{Op: insn.ClassSt | insn.SizeDW | insn.ModeMem, Dst: insn.R10, Imm: 0, Off: -8}
	if len(got) != 1 || got[0] != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDecodeAsmStoreRegisterValue(t *testing.T) {
	got, err := DecodeAsm("stxdw [r10-8], r1")
	if err != nil {
		t.Fatal(err)
	}
	want := insn.Instruction{Op: insn.ClassStX | insn.SizeDW | insn.ModeMem, Dst: insn.R10, Src: insn.R1, Off: -8}
	if len(got) != 1 || got[0] != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDecodeAsmConditionalJumpImm(t *testing.T) {
	got, err := DecodeAsm("jeq r0, 0, +2")
	if err != nil {
		t.Fatal(err)
	}
	want := insn.Instruction{Op: insn.ClassJmp | insn.SrcImm | insn.JmpJEQ, Dst: insn.R0, Imm: 0, Off: 2}
	if len(got) != 1 || got[0] != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDecodeAsmConditionalJumpReg(t *testing.T) {
	got, err := DecodeAsm("jgt r1, r2, -3")
	if err != nil {
		t.Fatal(err)
	}
	want := insn.Instruction{Op: insn.ClassJmp | insn.SrcReg | insn.JmpJGT, Dst: insn.R1, Src: insn.R2, Off: -3}
	if len(got) != 1 || got[0] != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDecodeAsmUnconditionalJump(t *testing.T) {
	got, err := DecodeAsm("ja -1")
	if err != nil {
		t.Fatal(err)
	}
	want := insn.Instruction{Op: insn.ClassJmp | insn.JmpJA, Off: -1}
	if len(got) != 1 || got[0] != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDecodeAsmCall(t *testing.T) {
	got, err := DecodeAsm("call 1")
	if err != nil {
		t.Fatal(err)
	}
	want := insn.Instruction{Op: insn.ClassJmp | insn.JmpCall, Imm: 1}
	if len(got) != 1 || got[0] != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDecodeAsmCallsubIsPseudoCall(t *testing.T) {
	got, err := DecodeAsm("callsub 2")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d instructions, want 1", len(got))
	}
	if got[0].Src != insn.PseudoCall {
		t.Errorf("callsub should set Src to PseudoCall, got %v", got[0].Src)
	}
	if got[0].Imm != 2 {
		t.Errorf("callsub offset = %d, want 2", got[0].Imm)
	}
}

func TestDecodeAsmLddwSpansTwoSlots(t *testing.T) {
	got, err := DecodeAsm("lddw r1, 4294967296")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("lddw should decode to 2 instruction slots, got %d", len(got))
	}
	if got[0].Dst != insn.R1 || got[0].Imm != int32(int64(4294967296)) {
		t.Errorf("unexpected first slot: %+v", got[0])
	}
	if got[1] != (insn.Instruction{}) {
		t.Errorf("second lddw slot should be the zero padding instruction, got %+v", got[1])
	}
}

func TestDecodeAsmLdmapfdSpansTwoSlots(t *testing.T) {
	got, err := DecodeAsm("ldmapfd r1, 0")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("ldmapfd should decode to 2 instruction slots, got %d", len(got))
	}
	if got[0].Src != insn.PseudoMapFD {
		t.Errorf("ldmapfd should tag Src as PseudoMapFD, got %v", got[0].Src)
	}
}

func TestDecodeAsmUnrecognizedMnemonic(t *testing.T) {
	if _, err := DecodeAsm("frobnicate r0"); err == nil {
		t.Error("expected an error for an unrecognized mnemonic")
	}
}

func TestDecodeAsmInvalidRegister(t *testing.T) {
	if _, err := DecodeAsm("mov64 r99, 0"); err == nil {
		t.Error("expected an error for an out-of-range register")
	}
}

func TestDecodeAsmInvalidMemoryOperand(t *testing.T) {
	if _, err := DecodeAsm("ldxw r0, r1+0"); err == nil {
		t.Error("expected an error for a memory operand missing brackets")
	}
}

func TestDecodeAsmMemOperandNegativeOffset(t *testing.T) {
	got, err := DecodeAsm("ldxdw r0, [r10-16]")
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Off != -16 {
		t.Errorf("off = %d, want -16", got[0].Off)
	}
}
