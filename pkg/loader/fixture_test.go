package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-bpf/verifier/pkg/proto"
)

func TestFixtureBuildSimpleAccept(t *testing.T) {
	f := Fixture{
		ProgType: "socket_filter",
		Asm:      []string{"mov64 r0, 0", "exit"},
	}
	prog, err := f.Build()
	if err != nil {
		t.Fatal(err)
	}
	if prog.ProgType != int(proto.SocketFilter) {
		t.Errorf("ProgType = %d, want %d", prog.ProgType, proto.SocketFilter)
	}
	if len(prog.Insns) != 2 {
		t.Errorf("len(Insns) = %d, want 2", len(prog.Insns))
	}
}

func TestFixtureBuildUnknownProgType(t *testing.T) {
	f := Fixture{ProgType: "not_a_real_type", Asm: []string{"exit"}}
	if _, err := f.Build(); err == nil {
		t.Error("expected an error for an unknown prog_type")
	}
}

func TestFixtureBuildUnknownMapType(t *testing.T) {
	f := Fixture{
		ProgType: "xdp",
		Maps:     []MapFixture{{Name: "m", Type: "not_a_real_map_type"}},
		Asm:      []string{"exit"},
	}
	if _, err := f.Build(); err == nil {
		t.Error("expected an error for an unknown map type")
	}
}

func TestFixtureBuildPropagatesMapTable(t *testing.T) {
	f := Fixture{
		ProgType: "xdp",
		Maps: []MapFixture{
			{Name: "counters", Type: "array", KeySize: 4, ValueSize: 8, MaxEntries: 64},
		},
		Asm: []string{"exit"},
	}
	prog, err := f.Build()
	if err != nil {
		t.Fatal(err)
	}
	if len(prog.Maps) != 1 {
		t.Fatalf("len(Maps) = %d, want 1", len(prog.Maps))
	}
	m := prog.Maps[0]
	if m.Name != "counters" || m.KeySize != 4 || m.ValueSize != 8 || m.MaxEntries != 64 {
		t.Errorf("unexpected map descriptor: %+v", m)
	}
}

func TestFixtureBuildBadAsmLineIncludesLineNumber(t *testing.T) {
	f := Fixture{
		ProgType: "socket_filter",
		Asm:      []string{"mov64 r0, 0", "not_a_mnemonic"},
	}
	_, err := f.Build()
	if err == nil {
		t.Fatal("expected an error for an unrecognized asm line")
	}
	if got := err.Error(); !strings.Contains(got, "line 2") {
		t.Errorf("error %q should reference the 1-indexed line number", got)
	}
}

func TestLoadFileParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "accept.yaml")
	yaml := "prog_type: socket_filter\n" +
		"asm:\n" +
		"  - mov64 r0, 0\n" +
		"  - exit\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	prog, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(prog.Insns) != 2 {
		t.Errorf("len(Insns) = %d, want 2", len(prog.Insns))
	}
}

func TestLoadFileMissingFile(t *testing.T) {
	if _, err := LoadFile("/nonexistent/fixture.yaml"); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestLoadFileMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("prog_type: [this is not valid"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("expected an error for malformed YAML")
	}
}
