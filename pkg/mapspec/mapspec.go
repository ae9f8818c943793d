// Package mapspec describes the map types a verified program may
// reference, grounded on the MapType enumeration read out of a raw eBPF
// object loader, and the per-helper compatibility table spec.md §4.6
// requires the helper-call checker to consult.
package mapspec

// Type identifies the kind of map a descriptor refers to.
type Type int

const (
	Unspec Type = iota
	Hash
	Array
	ProgramArray
	PerfEventArray
	PerCPUHash
	PerCPUArray
	StackTrace
	CGroupArray
	LRUHash
	LRUPerCPUHash
	LPMTrie
)

func (t Type) String() string {
	switch t {
	case Hash:
		return "hash"
	case Array:
		return "array"
	case ProgramArray:
		return "prog_array"
	case PerfEventArray:
		return "perf_event_array"
	case PerCPUHash:
		return "percpu_hash"
	case PerCPUArray:
		return "percpu_array"
	case StackTrace:
		return "stack_trace"
	case CGroupArray:
		return "cgroup_array"
	case LRUHash:
		return "lru_hash"
	case LRUPerCPUHash:
		return "lru_percpu_hash"
	case LPMTrie:
		return "lpm_trie"
	default:
		return "unspec"
	}
}

// Desc is one map descriptor as it appears in the program's map table
// (§3 "subprogram table" sibling concept for maps), referenced by index
// from a ConstPtrToMap register.
type Desc struct {
	Name      string
	Type      Type
	KeySize   uint32
	ValueSize uint32
	MaxEntries uint32

	// SpinLockOff is the byte offset of an embedded spin_lock within a
	// map_value of this type, or -1 if the map carries no lock (§6 Map
	// interface's spin_lock_off field).
	SpinLockOff int32
}

// HasSpinLock reports whether this map's value embeds a spin lock.
func (d Desc) HasSpinLock() bool { return d.SpinLockOff >= 0 }

// SpinLockOverlaps reports whether the byte range [off, off+size) overlaps
// this map's embedded spin-lock word (§4.2 point 3's "overlap test
// x1<y2 ∧ y1<x2", direct access to the lock's sub-region is forbidden).
func (d Desc) SpinLockOverlaps(off int64, size int) bool {
	if !d.HasSpinLock() {
		return false
	}
	lockOff := int64(d.SpinLockOff)
	return off < lockOff+4 && lockOff < off+int64(size)
}

// Helper identifies a map-touching helper call by its numeric ID, shared
// with pkg/proto's helper catalog.
type Helper int

// compatibility records which map Types a given Helper may be invoked
// against, per spec.md §4.6 point 5's map/helper compatibility table.
// PerCPUArray stands in for the devmap/cpumap redirect-target class this
// domain has no literal equivalent for (see DESIGN.md open question).
var compatibility = map[Helper]map[Type]bool{}

// Allow registers that helper may be called with a map of the given type.
// Called from pkg/proto's init to build the table without mapspec needing
// to import proto (which would create an import cycle).
func Allow(h Helper, t Type) {
	m := compatibility[h]
	if m == nil {
		m = map[Type]bool{}
		compatibility[h] = m
	}
	m[t] = true
}

// Compatible reports whether helper h may operate on a map of type t. A
// helper with no registered entries at all is treated as map-type-agnostic
// (helpers that don't care which map they're given, e.g. map_delete_elem,
// which pkg/proto registers no map types for).
func Compatible(h Helper, t Type) bool {
	m, ok := compatibility[h]
	if !ok {
		return true
	}
	return m[t]
}
