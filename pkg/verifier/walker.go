package verifier

import (
	"github.com/go-bpf/verifier/pkg/diag"
	"github.com/go-bpf/verifier/pkg/mapspec"
)

// walker holds everything the per-instruction checkers (alu.go, mem.go,
// helpers.go, packet.go) need for the state currently being advanced,
// separate from Analyzer so a fresh walker is cheap to build per worklist
// pop without re-locking the Analyzer's mutex on every single instruction.
type walker struct {
	cur           *State
	aux           []InsnAux
	progType      int
	mapTypes      []mapspec.Type
	mapValueSizes []uint32
	mapSpinLocks  []mapspec.Desc
	gplCompatible bool

	nextID uint32
	log    *diag.Log
}
