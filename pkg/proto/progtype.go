// Package proto describes the per-program-type context layout and helper
// catalog the verifier consults: which context fields are readable at
// which offset/width (is_valid_access), and which helpers a program type
// may call with what argument types (get_func_proto). The concrete
// program-type table is grounded on the ProgType enumeration read out of
// a raw eBPF object loader, trimmed to the subset SPEC_FULL.md names.
package proto

import "github.com/go-bpf/verifier/pkg/mapspec"

// ProgType identifies the attach point a program was verified for, which
// in turn fixes its context layout and its helper allowlist.
type ProgType int

const (
	Unrecognized ProgType = iota
	SocketFilter
	SchedCLS
	SchedACT
	XDP
	SockOps
	TracePoint
)

func (p ProgType) String() string {
	switch p {
	case SocketFilter:
		return "socket_filter"
	case SchedCLS:
		return "sched_cls"
	case SchedACT:
		return "sched_act"
	case XDP:
		return "xdp"
	case SockOps:
		return "sock_ops"
	case TracePoint:
		return "tracepoint"
	default:
		return "unrecognized"
	}
}

// AccessWidth is an allowed (offset, size) pair into a context struct.
type AccessWidth struct {
	Offset int64
	Size   int
	// Packet marks a field that yields a PtrToPacket/PtrToPacketEnd
	// register instead of a scalar (§4.5), e.g. skb->data.
	Packet bool
	// PacketEnd marks the specific field that is the packet-end sentinel.
	PacketEnd bool
}

// Descriptor is the per-program-type fixed context shape plus the set of
// helpers it may call (§4.6, §4.10).
type Descriptor struct {
	Type        ProgType
	ContextSize int64
	Access      []AccessWidth
	Helpers     map[mapspec.Helper]bool
}

// IsValidAccess reports whether a read of width size at byte offset off
// into this program type's context is allowed, and whether it yields a
// packet pointer.
func (d Descriptor) IsValidAccess(off int64, size int) (allowed bool, packet bool, packetEnd bool) {
	for _, a := range d.Access {
		if a.Offset == off && a.Size == size {
			return true, a.Packet, a.PacketEnd
		}
	}
	return false, false, false
}

// AllowsHelper reports whether this program type may call helper h.
func (d Descriptor) AllowsHelper(h mapspec.Helper) bool {
	return d.Helpers[h]
}

// Registry maps each supported ProgType to its Descriptor.
var Registry = map[ProgType]Descriptor{}

func register(d Descriptor) { Registry[d.Type] = d }

// Lookup returns the descriptor for t, or ok=false if t is not a
// supported program type (§4.10 "unrecognized program type is rejected").
func Lookup(t ProgType) (Descriptor, bool) {
	d, ok := Registry[t]
	return d, ok
}
