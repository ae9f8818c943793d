package proto

import "github.com/go-bpf/verifier/pkg/mapspec"

func init() {
	register(Descriptor{
		Type:        SocketFilter,
		ContextSize: 48,
		Access: []AccessWidth{
			{Offset: 0, Size: 4},  // len
			{Offset: 4, Size: 4},  // pkt_type
			{Offset: 76, Size: 8, Packet: true},
			{Offset: 80, Size: 8, Packet: true, PacketEnd: true},
		},
		Helpers: map[mapspec.Helper]bool{
			MapLookupElem: true, MapUpdateElem: true, MapDeleteElem: true,
			GetCurrentPidTGid: true,
		},
	})

	register(Descriptor{
		Type:        SchedCLS,
		ContextSize: 48,
		Access: []AccessWidth{
			{Offset: 0, Size: 4},
			{Offset: 4, Size: 4},
			{Offset: 76, Size: 8, Packet: true},
			{Offset: 80, Size: 8, Packet: true, PacketEnd: true},
		},
		Helpers: map[mapspec.Helper]bool{
			MapLookupElem: true, MapUpdateElem: true, MapDeleteElem: true,
			TailCall: true, SkbLoadBytes: true, SkbStoreBytes: true,
			SkLookupTCP: true, SkLookupUDP: true, SkRelease: true,
			SpinLockAcquire: true, SpinLockRelease: true,
		},
	})

	register(Descriptor{
		Type:        XDP,
		ContextSize: 24,
		Access: []AccessWidth{
			{Offset: 0, Size: 4, Packet: true},
			{Offset: 4, Size: 4, Packet: true, PacketEnd: true},
			{Offset: 8, Size: 4}, // rx_queue_index
		},
		Helpers: map[mapspec.Helper]bool{
			MapLookupElem: true, MapUpdateElem: true, MapDeleteElem: true,
		},
	})

	register(Descriptor{
		Type:        SockOps,
		ContextSize: 96,
		Access: []AccessWidth{
			{Offset: 0, Size: 4}, // op
			{Offset: 4, Size: 4}, // family
		},
		Helpers: map[mapspec.Helper]bool{
			MapLookupElem: true, MapUpdateElem: true,
			SkSelectReuseport: true,
		},
	})

	register(Descriptor{
		Type:        TracePoint,
		ContextSize: 8,
		Access:      []AccessWidth{{Offset: 0, Size: 8}},
		Helpers: map[mapspec.Helper]bool{
			GetCurrentPidTGid: true, GetCurrentUidGid: true, ProbeReadStr: true,
		},
	})
}
