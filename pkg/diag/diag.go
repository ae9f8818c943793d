// Package diag carries the verifier's diagnostic taxonomy and the
// plain-text verification log a caller can ask to have echoed back
// (§6 External interfaces, §7 Error handling design). Typed errors wrap
// github.com/pkg/errors so a CLI frontend can print a stack trace at
// -vv without the verifier itself depending on any particular renderer.
package diag

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Code classifies a rejection reason, independent of the free-text
// message, so a batch driver can tally failures by kind (§7 "diagnostic
// taxonomy").
type Code int

const (
	CodeUnknown Code = iota
	CodeMalformedProgram
	CodeUnreachableCode
	CodeBackEdge
	CodeStackDepthExceeded
	CodeUninitializedRegister
	CodeInvalidMemoryAccess
	CodePointerArithmeticDisallowed
	CodeUnreleasedReference
	CodeDoubleRelease
	CodeInvalidHelperArgument
	CodeMapTypeMismatch
	CodeUncheckedMapValue
	CodeTailCallDepthExceeded
	CodeDivideByZero
	CodeProgramTooLarge
	CodeUnsupportedProgramType
	CodeLeaksAddress
	CodeSpinLockViolation
	CodeGPLOnlyHelper
)

var codeNames = map[Code]string{
	CodeUnknown:                     "unknown",
	CodeMalformedProgram:            "malformed_program",
	CodeUnreachableCode:             "unreachable_code",
	CodeBackEdge:                    "back_edge",
	CodeStackDepthExceeded:          "stack_depth_exceeded",
	CodeUninitializedRegister:       "uninitialized_register",
	CodeInvalidMemoryAccess:         "invalid_memory_access",
	CodePointerArithmeticDisallowed: "pointer_arithmetic_disallowed",
	CodeUnreleasedReference:         "unreleased_reference",
	CodeDoubleRelease:               "double_release",
	CodeInvalidHelperArgument:       "invalid_helper_argument",
	CodeMapTypeMismatch:             "map_type_mismatch",
	CodeUncheckedMapValue:           "unchecked_map_value",
	CodeTailCallDepthExceeded:       "tail_call_depth_exceeded",
	CodeDivideByZero:                "divide_by_zero",
	CodeProgramTooLarge:             "program_too_large",
	CodeUnsupportedProgramType:      "unsupported_program_type",
	CodeLeaksAddress:                "leaks_address",
	CodeSpinLockViolation:           "spin_lock_violation",
	CodeGPLOnlyHelper:               "gpl_only_helper",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "unknown"
}

// Rejection is the typed error the verifier returns for a rejected
// program: a Code plus the instruction index and human-readable message
// that would appear in the verification log at the point of failure.
type Rejection struct {
	Code Code
	Insn int // -1 if not tied to a specific instruction
	msg  string
	err  error
}

func New(code Code, insn int, format string, args ...interface{}) *Rejection {
	return &Rejection{Code: code, Insn: insn, msg: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, insn int, cause error, format string, args ...interface{}) *Rejection {
	return &Rejection{Code: code, Insn: insn, msg: fmt.Sprintf(format, args...), err: errors.WithStack(cause)}
}

func (r *Rejection) Error() string {
	if r.Insn >= 0 {
		return fmt.Sprintf("insn %d: %s: %s", r.Insn, r.Code, r.msg)
	}
	return fmt.Sprintf("%s: %s", r.Code, r.msg)
}

func (r *Rejection) Unwrap() error { return r.err }

// Is lets errors.Is(err, diag.New(diag.CodeBackEdge, -1, "")) style
// matching work by comparing Codes instead of pointer identity: any
// *Rejection target with the same Code matches.
func (r *Rejection) Is(target error) bool {
	other, ok := target.(*Rejection)
	return ok && other.Code == r.Code
}

// Log is the append-only verification log (§6 "caller may request the
// full verification log"), one line per entry, with a trace level the
// caller's requested verbosity filters against.
type Log struct {
	Level int // 0 = summary only, 1 = per-instruction, 2 = per-instruction + pruning notes
	lines []string
}

func NewLog(level int) *Log { return &Log{Level: level} }

// Printf appends a line unconditionally (used for the final verdict).
func (l *Log) Printf(format string, args ...interface{}) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

// Trace appends a line only if the log's level is at least minLevel,
// the mechanism behind the 0/1/2 trace verbosity levels.
func (l *Log) Trace(minLevel int, format string, args ...interface{}) {
	if l.Level < minLevel {
		return
	}
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *Log) String() string { return strings.Join(l.lines, "\n") }

func (l *Log) Lines() []string { return l.lines }
