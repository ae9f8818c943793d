package verifier

import (
	"testing"

	"github.com/go-bpf/verifier/pkg/regstate"
)

func TestRefinePacketCompareDataVsEnd(t *testing.T) {
	data := regstate.Reg{Kind: regstate.PtrToPacket, ID: 1, Off: 0}
	end := regstate.Reg{Kind: regstate.PtrToPacketEnd, ID: 1, Off: 20}

	length, ok := refinePacketCompare(data, end)
	if !ok || length != 20 {
		t.Fatalf("expected refined length 20, got %d ok=%v", length, ok)
	}
}

func TestRefinePacketCompareEndVsData(t *testing.T) {
	data := regstate.Reg{Kind: regstate.PtrToPacket, ID: 1, Off: 4}
	end := regstate.Reg{Kind: regstate.PtrToPacketEnd, ID: 1, Off: 20}

	length, ok := refinePacketCompare(end, data)
	if !ok || length != 16 {
		t.Fatalf("expected refined length 16, got %d ok=%v", length, ok)
	}
}

func TestRefinePacketCompareUnrelatedKinds(t *testing.T) {
	a := regstate.Reg{Kind: regstate.ScalarValue}
	b := regstate.Reg{Kind: regstate.PtrToPacketEnd}
	if _, ok := refinePacketCompare(a, b); ok {
		t.Error("a non packet/packet-end pair should not refine anything")
	}
}

func TestPacketAccessSafeWithinVerifiedLength(t *testing.T) {
	dst := regstate.Reg{Kind: regstate.PtrToPacket, ID: 3, Off: 4}
	verified := map[uint32]int64{3: 16}
	if !packetAccessSafe(dst, 4, verified) {
		t.Error("a 4-byte read at offset 4 within a verified length of 16 should be safe")
	}
}

func TestPacketAccessSafeExceedsVerifiedLength(t *testing.T) {
	dst := regstate.Reg{Kind: regstate.PtrToPacket, ID: 3, Off: 14}
	verified := map[uint32]int64{3: 16}
	if packetAccessSafe(dst, 4, verified) {
		t.Error("a 4-byte read at offset 14 only verified to 16 bytes should not be safe")
	}
}

func TestPacketAccessSafeWithoutPriorComparison(t *testing.T) {
	dst := regstate.Reg{Kind: regstate.PtrToPacket, ID: 9, Off: 0}
	if packetAccessSafe(dst, 4, map[uint32]int64{}) {
		t.Error("a packet register never compared against packet_end must not be treated as safe")
	}
}
