package verifier

import "github.com/go-bpf/verifier/pkg/regstate"

// refinePacketCompare implements §4.5's core rule: when a conditional
// jump compares a PtrToPacket-derived register against the matching
// PtrToPacketEnd register, the branch where the comparison holds learns
// that the packet pointer (plus its current Off) is valid up to the
// compared length. It returns the refined verifiedLen for the "in range"
// branch, or ok=false if this comparison doesn't refine anything (the two
// registers aren't a packet/packet-end pair).
func refinePacketCompare(a, b regstate.Reg) (length int64, ok bool) {
	if a.Kind == regstate.PtrToPacket && b.Kind == regstate.PtrToPacketEnd {
		return b.Off - a.Off, true
	}
	if a.Kind == regstate.PtrToPacketEnd && b.Kind == regstate.PtrToPacket {
		return a.Off - b.Off, true
	}
	return 0, false
}

// packetAccessSafe reports whether reading size bytes at dst's current
// offset is covered by its verified length (§4.5 point 2: any access
// beyond the last verified comparison is rejected, even if it might be
// in bounds at runtime).
func packetAccessSafe(dst regstate.Reg, size int, verified map[uint32]int64) bool {
	length, ok := verified[dst.ID]
	if !ok {
		return false
	}
	return dst.Off+int64(size) <= length
}
