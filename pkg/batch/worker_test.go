package batch

import (
	"os"
	"path/filepath"
	"testing"
)

const acceptingFixture = "prog_type: socket_filter\n" +
	"asm:\n" +
	"  - mov64 r0, 0\n" +
	"  - exit\n"

const rejectingFixture = "prog_type: socket_filter\n" +
	"asm:\n" +
	"  - mov64 r0, 0\n" +
	"  - ja -1\n" +
	"  - exit\n"

func writeFixture(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestWorkerPoolRunDirAccumulatesVerdicts(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeFixture(t, dir, "a.yaml", acceptingFixture),
		writeFixture(t, dir, "b.yaml", rejectingFixture),
		writeFixture(t, dir, "c.yaml", acceptingFixture),
	}

	pool := &WorkerPool{Workers: 2}
	table := pool.RunDir(paths)

	if table.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", table.Len())
	}
	accepted, rejected := table.Summary()
	if accepted != 2 || rejected != 1 {
		t.Errorf("Summary() = (%d, %d), want (2, 1)", accepted, rejected)
	}
}

func TestWorkerPoolRunDirMissingFileIsARejection(t *testing.T) {
	pool := &WorkerPool{Workers: 1}
	table := pool.RunDir([]string{"/nonexistent/fixture.yaml"})

	verdicts := table.Verdicts()
	if len(verdicts) != 1 {
		t.Fatalf("got %d verdicts, want 1", len(verdicts))
	}
	if verdicts[0].Accepted {
		t.Error("a fixture that fails to load should not be recorded as accepted")
	}
	if verdicts[0].Err == nil {
		t.Error("a fixture that fails to load should carry a non-nil Err")
	}
}

func TestWorkerPoolDefaultsWorkersWhenUnset(t *testing.T) {
	dir := t.TempDir()
	paths := []string{writeFixture(t, dir, "a.yaml", acceptingFixture)}

	pool := &WorkerPool{}
	table := pool.RunDir(paths)

	if table.Len() != 1 {
		t.Errorf("Len() = %d, want 1", table.Len())
	}
}

func TestWorkerPoolRunDirEmpty(t *testing.T) {
	pool := &WorkerPool{Workers: 4}
	table := pool.RunDir(nil)
	if table.Len() != 0 {
		t.Errorf("Len() = %d, want 0", table.Len())
	}
}
