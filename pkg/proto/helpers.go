package proto

import "github.com/go-bpf/verifier/pkg/mapspec"

// Helper IDs, the subset of the real kernel helper catalog §4.6 names as
// needing dedicated argument-type checking (map accessors, the reference
// acquire/release pair, and a couple of context-reading helpers used by
// the end-to-end test scenarios).
const (
	MapLookupElem mapspec.Helper = iota + 1
	MapUpdateElem
	MapDeleteElem
	TailCall
	GetCurrentPidTGid
	GetCurrentUidGid
	ProbeReadStr
	SkbLoadBytes
	SkbStoreBytes
	SkSelectReuseport
	SkLookupTCP // acquires a PtrToSocketOrNull reference
	SkLookupUDP // acquires a PtrToSocketOrNull reference
	SkRelease   // releases a PtrToSocket reference
	SpinLockAcquire
	SpinLockRelease
)

// ArgKind classifies one helper argument's expected register kind, used
// by the helper-call checker (§4.6 point 1-4) independent of mapspec's
// map-type compatibility (point 5).
type ArgKind int

const (
	ArgDontCare ArgKind = iota
	ArgAnyScalar
	ArgConstMapPtr
	ArgPtrToMapKey
	ArgPtrToMapValue
	ArgPtrToMem // readable/writable buffer of some declared length
	ArgPtrToSocket
	ArgReleaseRef // must be a register carrying a nonzero RefObjID
)

// Signature is one helper's expected argument kinds and return kind, the
// full shape of get_func_proto's result (§4.6, §6 "Helper interface",
// SPEC_FULL.md's helper catalog).
type Signature struct {
	Name   string
	Args   [5]ArgKind
	Return ArgKind
	// Acquires is true if a successful call produces a new reference
	// that must eventually reach a ArgReleaseRef helper (§4.4).
	Acquires bool
	// Releases is true if this helper consumes (and frees) a reference.
	Releases bool
	// ChangesPacketData is true when a successful call may move packet
	// data, downgrading every packet pointer in every frame to a plain
	// scalar (§4.5).
	ChangesPacketData bool
	// PacketAccess is true when this helper itself reads or writes
	// packet bytes, independent of whether it also relocates them.
	PacketAccess bool
	// GPLOnly is true when the helper is restricted to GPL-compatible
	// programs (§6 "Flags: ... GPL-compatible", §7 Policy taxonomy
	// "GPL-incompatible call to GPL-only helper").
	GPLOnly bool
}

// Signatures is the helper-id -> Signature catalog (get_func_proto).
var Signatures = map[mapspec.Helper]Signature{
	MapLookupElem: {Name: "map_lookup_elem", Args: [5]ArgKind{ArgConstMapPtr, ArgPtrToMapKey}, Return: ArgPtrToMapValue},
	MapUpdateElem: {Name: "map_update_elem", Args: [5]ArgKind{ArgConstMapPtr, ArgPtrToMapKey, ArgPtrToMapValue, ArgAnyScalar}, Return: ArgAnyScalar},
	MapDeleteElem: {Name: "map_delete_elem", Args: [5]ArgKind{ArgConstMapPtr, ArgPtrToMapKey}, Return: ArgAnyScalar},
	TailCall:      {Name: "tail_call", Args: [5]ArgKind{ArgDontCare, ArgConstMapPtr, ArgAnyScalar}, Return: ArgAnyScalar},

	GetCurrentPidTGid: {Name: "get_current_pid_tgid", Return: ArgAnyScalar, GPLOnly: true},
	GetCurrentUidGid:  {Name: "get_current_uid_gid", Return: ArgAnyScalar, GPLOnly: true},
	ProbeReadStr:      {Name: "probe_read_str", Args: [5]ArgKind{ArgPtrToMem, ArgAnyScalar, ArgAnyScalar}, Return: ArgAnyScalar, GPLOnly: true},
	SkbLoadBytes:      {Name: "skb_load_bytes", Args: [5]ArgKind{ArgDontCare, ArgAnyScalar, ArgPtrToMem, ArgAnyScalar}, Return: ArgAnyScalar, PacketAccess: true},
	SkbStoreBytes:     {Name: "skb_store_bytes", Args: [5]ArgKind{ArgDontCare, ArgAnyScalar, ArgPtrToMem, ArgAnyScalar, ArgAnyScalar}, Return: ArgAnyScalar, PacketAccess: true, ChangesPacketData: true},
	SkSelectReuseport: {Name: "sk_select_reuseport", Args: [5]ArgKind{ArgDontCare, ArgConstMapPtr, ArgPtrToMem, ArgAnyScalar}, Return: ArgAnyScalar},

	SkLookupTCP: {Name: "sk_lookup_tcp", Args: [5]ArgKind{ArgDontCare, ArgPtrToMem, ArgAnyScalar, ArgAnyScalar, ArgAnyScalar}, Return: ArgPtrToSocket, Acquires: true, GPLOnly: true},
	SkLookupUDP: {Name: "sk_lookup_udp", Args: [5]ArgKind{ArgDontCare, ArgPtrToMem, ArgAnyScalar, ArgAnyScalar, ArgAnyScalar}, Return: ArgPtrToSocket, Acquires: true, GPLOnly: true},
	SkRelease:   {Name: "sk_release", Args: [5]ArgKind{ArgReleaseRef}, Return: ArgAnyScalar, Releases: true, GPLOnly: true},

	SpinLockAcquire: {Name: "spin_lock", Args: [5]ArgKind{ArgPtrToMapValue}, Return: ArgAnyScalar},
	SpinLockRelease: {Name: "spin_unlock", Args: [5]ArgKind{ArgPtrToMapValue}, Return: ArgAnyScalar},
}

func init() {
	mapspec.Allow(MapLookupElem, mapspec.Hash)
	mapspec.Allow(MapLookupElem, mapspec.Array)
	mapspec.Allow(MapLookupElem, mapspec.PerCPUHash)
	mapspec.Allow(MapLookupElem, mapspec.PerCPUArray)
	mapspec.Allow(MapLookupElem, mapspec.LRUHash)
	mapspec.Allow(MapLookupElem, mapspec.LRUPerCPUHash)
	mapspec.Allow(MapLookupElem, mapspec.LPMTrie)

	mapspec.Allow(MapUpdateElem, mapspec.Hash)
	mapspec.Allow(MapUpdateElem, mapspec.Array)
	mapspec.Allow(MapUpdateElem, mapspec.PerCPUHash)
	mapspec.Allow(MapUpdateElem, mapspec.PerCPUArray)
	mapspec.Allow(MapUpdateElem, mapspec.LRUHash)

	mapspec.Allow(TailCall, mapspec.ProgramArray)

	// SkSelectReuseport redirects via the PerCPUArray stand-in class
	// (no devmap/cpumap equivalent in this domain, see DESIGN.md).
	mapspec.Allow(SkSelectReuseport, mapspec.PerCPUArray)
}
