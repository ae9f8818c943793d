// Package loader is the external "program loader / user-space attribute
// parsing" collaborator of spec.md §1: it turns a self-describing fixture
// (instructions, program type, map table, optional debug info) into a
// verifier.Program, the way a real loader turns an ELF
// object's sections into the kernel's bpf_attr before calling into the
// verifier.
package loader

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-bpf/verifier/pkg/insn"
	"github.com/go-bpf/verifier/pkg/mapspec"
	"github.com/go-bpf/verifier/pkg/proto"
	"github.com/go-bpf/verifier/pkg/verifier"
)

// Fixture is the on-disk YAML shape a test program is authored in.
// Instructions are written one per line in a small textual assembly
// rather than raw hex, since hand-authoring 8-byte hex hasn't been
// necessary for this loader's test fixtures; DecodeAsm below is the
// narrow assembler that turns each line into an insn.Instruction.
type Fixture struct {
	ProgType string       `yaml:"prog_type"`
	Maps     []MapFixture `yaml:"maps"`
	Asm      []string     `yaml:"asm"`
	// DebugInfo optionally names a source line for each instruction
	// index. It is parsed but Build does not pass it on: verifier.Program
	// has no field for it and rejection messages do not include it (§9
	// design note on debug info being advisory only).
	DebugInfo []string `yaml:"debug_info"`
}

// MapFixture is one map table entry.
type MapFixture struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	KeySize    uint32 `yaml:"key_size"`
	ValueSize  uint32 `yaml:"value_size"`
	MaxEntries uint32 `yaml:"max_entries"`
}

var progTypeNames = map[string]proto.ProgType{
	"socket_filter": proto.SocketFilter,
	"sched_cls":     proto.SchedCLS,
	"sched_act":     proto.SchedACT,
	"xdp":           proto.XDP,
	"sock_ops":      proto.SockOps,
	"tracepoint":    proto.TracePoint,
}

var mapTypeNames = map[string]mapspec.Type{
	"hash":             mapspec.Hash,
	"array":            mapspec.Array,
	"prog_array":       mapspec.ProgramArray,
	"perf_event_array": mapspec.PerfEventArray,
	"percpu_hash":      mapspec.PerCPUHash,
	"percpu_array":     mapspec.PerCPUArray,
	"stack_trace":      mapspec.StackTrace,
	"cgroup_array":     mapspec.CGroupArray,
	"lru_hash":         mapspec.LRUHash,
	"lru_percpu_hash":  mapspec.LRUPerCPUHash,
	"lpm_trie":         mapspec.LPMTrie,
}

// LoadFile reads and parses a YAML fixture from path.
func LoadFile(path string) (verifier.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return verifier.Program{}, errors.Wrapf(err, "loader: reading %s", path)
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return verifier.Program{}, errors.Wrapf(err, "loader: parsing %s", path)
	}
	return f.Build()
}

// Build converts a parsed Fixture into a verifier.Program.
func (f Fixture) Build() (verifier.Program, error) {
	pt, ok := progTypeNames[f.ProgType]
	if !ok {
		return verifier.Program{}, fmt.Errorf("loader: unknown prog_type %q", f.ProgType)
	}

	maps := make([]mapspec.Desc, len(f.Maps))
	for i, m := range f.Maps {
		mt, ok := mapTypeNames[m.Type]
		if !ok {
			return verifier.Program{}, fmt.Errorf("loader: unknown map type %q for map %q", m.Type, m.Name)
		}
		maps[i] = mapspec.Desc{
			Name: m.Name, Type: mt, KeySize: m.KeySize,
			ValueSize: m.ValueSize, MaxEntries: m.MaxEntries,
			SpinLockOff: -1, // fixtures declare no spin lock
		}
	}

	insns := make([]insn.Instruction, 0, len(f.Asm))
	for lineNo, line := range f.Asm {
		decoded, err := DecodeAsm(line)
		if err != nil {
			return verifier.Program{}, errors.Wrapf(err, "loader: line %d", lineNo+1)
		}
		insns = append(insns, decoded...)
	}

	return verifier.Program{Insns: insns, ProgType: int(pt), Maps: maps}, nil
}
