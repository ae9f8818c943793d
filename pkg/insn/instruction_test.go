package insn

import "testing"

func TestEncodeDecodeRoundtrip(t *testing.T) {
	cases := []Instruction{
		{Op: ClassAlu64 | SrcReg | OpAdd, Dst: R1, Src: R2},
		{Op: ClassJmp | SrcImm | JmpJEQ, Dst: R0, Off: -5, Imm: 42},
		{Op: ClassLdX | SizeW | ModeMem, Dst: R3, Src: FP, Off: -8},
		{Op: ClassJmp | JmpExit},
		{Op: ClassLd | SizeDW | ModeImm, Dst: R1, Src: PseudoMapFD, Imm: 3},
	}
	for _, want := range cases {
		got := Decode(want.Encode())
		if got != want {
			t.Errorf("roundtrip mismatch: want %+v got %+v", want, got)
		}
	}
}

func TestDecodeStreamRejectsShortTail(t *testing.T) {
	if _, err := DecodeStream(make([]byte, 9)); err == nil {
		t.Error("expected error decoding a non-multiple-of-8 stream")
	}
	out, err := DecodeStream(make([]byte, 16))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Errorf("expected 2 instructions, got %d", len(out))
	}
}

func TestClassifierPredicates(t *testing.T) {
	exit := Instruction{Op: ClassJmp | JmpExit}
	if !exit.IsExit() {
		t.Error("exit instruction should report IsExit")
	}
	if exit.IsCall() || exit.IsConditionalJump() {
		t.Error("exit should not be a call or conditional jump")
	}

	call := Instruction{Op: ClassJmp | JmpCall, Src: PseudoCall}
	if !call.IsCall() || !call.IsPseudoCall() {
		t.Error("pseudo-call should report IsCall and IsPseudoCall")
	}

	helperCall := Instruction{Op: ClassJmp | JmpCall}
	if helperCall.IsPseudoCall() {
		t.Error("a call with Src==0 is a helper call, not a pseudo-call")
	}

	ja := Instruction{Op: ClassJmp | JmpJA}
	if !ja.IsUnconditionalJump() {
		t.Error("ja should report IsUnconditionalJump")
	}

	jeq := Instruction{Op: ClassJmp | JmpJEQ}
	if !jeq.IsConditionalJump() {
		t.Error("jeq should report IsConditionalJump")
	}

	lddw := Instruction{Op: ClassLd | SizeDW | ModeImm}
	if !lddw.IsLoadImm64() {
		t.Error("lddw should report IsLoadImm64")
	}
}

func TestSizeAndClass(t *testing.T) {
	cases := []struct {
		i    Instruction
		size int
	}{
		{Instruction{Op: ClassLdX | SizeB | ModeMem}, 1},
		{Instruction{Op: ClassLdX | SizeH | ModeMem}, 2},
		{Instruction{Op: ClassLdX | SizeW | ModeMem}, 4},
		{Instruction{Op: ClassLdX | SizeDW | ModeMem}, 8},
	}
	for _, c := range cases {
		if got := c.i.Size(); got != c.size {
			t.Errorf("Size() = %d, want %d", got, c.size)
		}
		if c.i.Class() != ClassLdX {
			t.Errorf("Class() = %#x, want ClassLdX", c.i.Class())
		}
	}
}

func TestNopRoundtrip(t *testing.T) {
	n := Nop()
	if !n.IsNop() {
		t.Error("Nop() should report IsNop")
	}
	if n.IsExit() || n.IsCall() {
		t.Error("Nop should not be exit or call")
	}
}

func TestRegString(t *testing.T) {
	if R0.String() != "r0" {
		t.Errorf("R0.String() = %q, want r0", R0.String())
	}
	if FP.String() != "r10" {
		t.Errorf("FP.String() = %q, want r10", FP.String())
	}
}

func TestDisasmDoesNotPanic(t *testing.T) {
	cases := []Instruction{
		{Op: ClassAlu64 | SrcReg | OpAdd, Dst: R1, Src: R2},
		{Op: ClassJmp | SrcImm | JmpJEQ, Dst: R0, Off: -5, Imm: 42},
		{Op: ClassLdX | SizeW | ModeMem, Dst: R3, Src: FP, Off: -8},
		{Op: ClassJmp | JmpExit},
	}
	for _, i := range cases {
		if i.String() == "" {
			t.Errorf("String() for %+v should not be empty", i)
		}
	}
}
