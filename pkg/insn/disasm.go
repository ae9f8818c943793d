package insn

import "fmt"

// String renders a one-line disassembly of the instruction, in the same
// spirit as a kernel `bpftool prog dump xlated` line. It does not attempt
// to join lddw pairs; callers holding a full program should special-case
// IsLoadImm64 themselves.
func (i Instruction) String() string {
	switch i.Class() {
	case ClassAlu, ClassAlu64:
		return i.disasmAlu()
	case ClassJmp, ClassJmp32:
		return i.disasmJmp()
	case ClassLd, ClassLdX:
		return i.disasmLoad()
	case ClassSt, ClassStX:
		return i.disasmStore()
	default:
		return fmt.Sprintf("(unknown class %#x)", i.Class())
	}
}

func (i Instruction) suffix() string {
	if i.Class() == ClassAlu64 || i.Class() == ClassJmp {
		return "64"
	}
	return "32"
}

func (i Instruction) operand() string {
	if i.UsesSrcReg() {
		return i.Src.String()
	}
	return fmt.Sprintf("%d", i.Imm)
}

func (i Instruction) disasmAlu() string {
	if i.AluOp() == OpNeg {
		return fmt.Sprintf("%s = -%s", i.Dst, i.Dst)
	}
	if i.AluOp() == OpEnd {
		return fmt.Sprintf("%s = endian(%s, %d)", i.Dst, i.Dst, i.Imm)
	}
	mnemonic, ok := aluMnemonics[i.AluOp()]
	if !ok {
		mnemonic = "?"
	}
	if i.AluOp() == OpMov {
		return fmt.Sprintf("%s = %s", i.Dst, i.operand())
	}
	return fmt.Sprintf("%s %s= %s", i.Dst, mnemonic, i.operand())
}

var aluMnemonics = map[OpCode]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpOr: "|", OpAnd: "&",
	OpLsh: "<<", OpRsh: ">>", OpMod: "%", OpXor: "^", OpArsh: "s>>",
}

func (i Instruction) disasmJmp() string {
	switch {
	case i.IsExit():
		return "exit"
	case i.IsPseudoCall():
		return fmt.Sprintf("call subprog+%d", i.Imm)
	case i.IsCall():
		return fmt.Sprintf("call helper#%d", i.Imm)
	case i.IsUnconditionalJump():
		return fmt.Sprintf("goto %+d", i.Off)
	}
	mnemonic, ok := jmpMnemonics[i.JumpOp()]
	if !ok {
		mnemonic = "?"
	}
	return fmt.Sprintf("if %s %s %s goto %+d", i.Dst, mnemonic, i.operand(), i.Off)
}

var jmpMnemonics = map[OpCode]string{
	JmpJEQ: "==", JmpJGT: ">", JmpJGE: ">=", JmpJSET: "&", JmpJNE: "!=",
	JmpJSGT: "s>", JmpJSGE: "s>=", JmpJLT: "<", JmpJLE: "<=",
	JmpJSLT: "s<", JmpJSLE: "s<=",
}

func (i Instruction) disasmLoad() string {
	if i.IsLoadImm64() {
		return fmt.Sprintf("%s = %d ll", i.Dst, i.Imm)
	}
	if i.Class() == ClassLd {
		return fmt.Sprintf("%s = *(%s *)skb[%s%+d]", i.Dst, sizeName(i.Size()), modeName(i.Mode()), i.Imm)
	}
	return fmt.Sprintf("%s = *(%s *)(%s%+d)", i.Dst, sizeName(i.Size()), i.Src, i.Off)
}

func (i Instruction) disasmStore() string {
	val := i.operand()
	if i.Class() == ClassStX {
		val = i.Src.String()
	}
	return fmt.Sprintf("*(%s *)(%s%+d) = %s", sizeName(i.Size()), i.Dst, i.Off, val)
}

func modeName(m OpCode) string {
	switch m {
	case ModeAbs:
		return "abs:"
	case ModeInd:
		return "ind:"
	default:
		return ""
	}
}

func sizeName(n int) string {
	switch n {
	case 1:
		return "u8"
	case 2:
		return "u16"
	case 4:
		return "u32"
	case 8:
		return "u64"
	default:
		return "u?"
	}
}
