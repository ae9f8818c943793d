package loader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-bpf/verifier/pkg/insn"
)

// DecodeAsm parses one line of the fixture's small textual assembly into
// one or two instructions (lddw/ldmapfd occupy two 8-byte slots). Blank
// lines and lines starting with "#" produce nothing. The grammar is
// deliberately minimal — just enough to author the properties and
// end-to-end scenarios as hand-written fixtures rather than raw hex.
//
// Examples:
//
//	mov64 r0, 0
//	add64 r1, r2
//	ldxw  r0, [r1+0]
//	stxdw [r10-8], r1
//	jeq   r0, 0, +2
//	ja    -3
//	call  1
//	ldmapfd r1, 0
//	exit
func DecodeAsm(line string) ([]insn.Instruction, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, nil
	}
	fields := strings.FieldsFunc(line, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' })
	if len(fields) == 0 {
		return nil, nil
	}
	op := strings.ToLower(fields[0])
	args := fields[1:]

	switch op {
	case "exit":
		return []insn.Instruction{{Op: insn.ClassJmp | insn.JmpExit}}, nil
	case "ja":
		off, err := parseOffset(arg(args, 0))
		if err != nil {
			return nil, err
		}
		return []insn.Instruction{{Op: insn.ClassJmp | insn.JmpJA, Off: off}}, nil
	case "call":
		imm, err := parseImm(arg(args, 0))
		if err != nil {
			return nil, err
		}
		return []insn.Instruction{{Op: insn.ClassJmp | insn.JmpCall, Imm: imm}}, nil
	case "callsub":
		off, err := parseOffset(arg(args, 0))
		if err != nil {
			return nil, err
		}
		return []insn.Instruction{{Op: insn.ClassJmp | insn.JmpCall, Src: insn.PseudoCall, Imm: int32(off)}}, nil
	case "ldmapfd":
		dst, err := parseReg(arg(args, 0))
		if err != nil {
			return nil, err
		}
		idx, err := parseImm(arg(args, 1))
		if err != nil {
			return nil, err
		}
		return []insn.Instruction{
			{Op: insn.ClassLd | insn.SizeDW | insn.ModeImm, Dst: dst, Src: insn.PseudoMapFD, Imm: idx},
			{},
		}, nil
	case "lddw":
		dst, err := parseReg(arg(args, 0))
		if err != nil {
			return nil, err
		}
		imm, err := parseImm(arg(args, 1))
		if err != nil {
			return nil, err
		}
		return []insn.Instruction{
			{Op: insn.ClassLd | insn.SizeDW | insn.ModeImm, Dst: dst, Imm: imm},
			{},
		}, nil
	}

	if aluOp, width, ok := aluMnemonic(op); ok {
		dst, err := parseReg(arg(args, 0))
		if err != nil {
			return nil, err
		}
		class := insn.ClassAlu64
		if width == 32 {
			class = insn.ClassAlu
		}
		if op == "neg64" || op == "neg32" {
			return []insn.Instruction{{Op: class | aluOp, Dst: dst}}, nil
		}
		srcOrImm := arg(args, 1)
		if r, err := parseReg(srcOrImm); err == nil {
			return []insn.Instruction{{Op: class | insn.SrcReg | aluOp, Dst: dst, Src: r}}, nil
		}
		imm, err := parseImm(srcOrImm)
		if err != nil {
			return nil, fmt.Errorf("asm: bad operand %q", srcOrImm)
		}
		return []insn.Instruction{{Op: class | insn.SrcImm | aluOp, Dst: dst, Imm: imm}}, nil
	}

	if jmpOp, width, ok := jmpMnemonic(op); ok {
		dst, err := parseReg(arg(args, 0))
		if err != nil {
			return nil, err
		}
		class := insn.ClassJmp
		if width == 32 {
			class = insn.ClassJmp32
		}
		srcOrImm := arg(args, 1)
		off, err := parseOffset(arg(args, 2))
		if err != nil {
			return nil, err
		}
		if r, err := parseReg(srcOrImm); err == nil {
			return []insn.Instruction{{Op: class | insn.SrcReg | jmpOp, Dst: dst, Src: r, Off: off}}, nil
		}
		imm, err := parseImm(srcOrImm)
		if err != nil {
			return nil, fmt.Errorf("asm: bad operand %q", srcOrImm)
		}
		return []insn.Instruction{{Op: class | insn.SrcImm | jmpOp, Dst: dst, Imm: imm, Off: off}}, nil
	}

	if ldOp, size, ok := memMnemonic(op, true); ok {
		dst, err := parseReg(arg(args, 0))
		if err != nil {
			return nil, err
		}
		src, off, err := parseMem(arg(args, 1))
		if err != nil {
			return nil, err
		}
		return []insn.Instruction{{Op: insn.ClassLdX | size | insn.ModeMem | ldOp, Dst: dst, Src: src, Off: off}}, nil
	}

	if _, size, ok := memMnemonic(op, false); ok {
		dst, off, err := parseMem(arg(args, 0))
		if err != nil {
			return nil, err
		}
		valueArg := arg(args, 1)
		if r, err := parseReg(valueArg); err == nil {
			return []insn.Instruction{{Op: insn.ClassStX | size | insn.ModeMem, Dst: dst, Src: r, Off: off}}, nil
		}
		imm, err := parseImm(valueArg)
		if err != nil {
			return nil, fmt.Errorf("asm: bad store operand %q", valueArg)
		}
		return []insn.Instruction{{Op: insn.ClassSt | size | insn.ModeMem, Dst: dst, Imm: imm, Off: off}}, nil
	}

	return nil, fmt.Errorf("asm: unrecognized mnemonic %q", op)
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func aluMnemonic(op string) (insn.OpCode, int, bool) {
	table := map[string]insn.OpCode{
		"add": insn.OpAdd, "sub": insn.OpSub, "mul": insn.OpMul, "div": insn.OpDiv,
		"or": insn.OpOr, "and": insn.OpAnd, "lsh": insn.OpLsh, "rsh": insn.OpRsh,
		"neg": insn.OpNeg, "mod": insn.OpMod, "xor": insn.OpXor, "mov": insn.OpMov,
		"arsh": insn.OpArsh,
	}
	for suffix, width := range map[string]int{"64": 64, "32": 32} {
		if strings.HasSuffix(op, suffix) {
			base := strings.TrimSuffix(op, suffix)
			if code, ok := table[base]; ok {
				return code, width, true
			}
		}
	}
	return 0, 0, false
}

func jmpMnemonic(op string) (insn.OpCode, int, bool) {
	table := map[string]insn.OpCode{
		"jeq": insn.JmpJEQ, "jgt": insn.JmpJGT, "jge": insn.JmpJGE, "jset": insn.JmpJSET,
		"jne": insn.JmpJNE, "jsgt": insn.JmpJSGT, "jsge": insn.JmpJSGE,
		"jlt": insn.JmpJLT, "jle": insn.JmpJLE, "jslt": insn.JmpJSLT, "jsle": insn.JmpJSLE,
	}
	width := 64
	base := op
	if strings.HasSuffix(op, "32") {
		width = 32
		base = strings.TrimSuffix(op, "32")
	}
	if code, ok := table[base]; ok {
		return code, width, true
	}
	return 0, 0, false
}

func memMnemonic(op string, load bool) (insn.OpCode, insn.OpCode, bool) {
	sizes := map[string]insn.OpCode{"b": insn.SizeB, "h": insn.SizeH, "w": insn.SizeW, "dw": insn.SizeDW}
	prefix := "stx"
	if load {
		prefix = "ldx"
	}
	if !strings.HasPrefix(op, prefix) {
		return 0, 0, false
	}
	suffix := strings.TrimPrefix(op, prefix)
	size, ok := sizes[suffix]
	if !ok {
		return 0, 0, false
	}
	return 0, size, true
}

func parseReg(s string) (insn.Reg, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "r") {
		return 0, fmt.Errorf("asm: not a register %q", s)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(s, "r"))
	if err != nil || n < 0 || n > 10 {
		return 0, fmt.Errorf("asm: invalid register %q", s)
	}
	return insn.Reg(n), nil
}

func parseImm(s string) (int32, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("asm: invalid immediate %q", s)
	}
	return int32(v), nil
}

func parseOffset(s string) (int16, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 0, 16)
	if err != nil {
		return 0, fmt.Errorf("asm: invalid offset %q", s)
	}
	return int16(v), nil
}

// parseMem parses a "[rN+off]" or "[rN-off]" memory operand.
func parseMem(s string) (insn.Reg, int16, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return 0, 0, fmt.Errorf("asm: invalid memory operand %q", s)
	}
	inner := s[1 : len(s)-1]
	splitAt := -1
	for i := 1; i < len(inner); i++ {
		if inner[i] == '+' || inner[i] == '-' {
			splitAt = i
			break
		}
	}
	regPart := inner
	offPart := "0"
	if splitAt >= 0 {
		regPart = inner[:splitAt]
		offPart = inner[splitAt:]
	}
	reg, err := parseReg(regPart)
	if err != nil {
		return 0, 0, err
	}
	off, err := parseOffset(offPart)
	if err != nil {
		return 0, 0, err
	}
	return reg, off, nil
}
