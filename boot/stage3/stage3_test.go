package stage3

import (
	"testing"

	"github.com/corigan01/quantumos/internal/bootrecord"
)

func TestAssembleLayout(t *testing.T) {
	cfg := Config{KernelVirt: 0xFFFFFFFF80000000, IdentityGiB: 1, TableBase: 0x10000}

	exe := PhysRegion{Addr: 0x200000, Len: 3 * page2M}
	stack := PhysRegion{Addr: 0x800000, Len: page2M}
	heap := PhysRegion{Addr: 0xA00000, Len: 2 * page2M}

	handoff := &bootrecord.Stage16To32{}
	handoff.AddMemRegion(bootrecord.E820Entry{Base: 0, Length: 0x1000000, Kind: bootrecord.MemRegionFree})

	hdr, b, err := Assemble(cfg, exe, stack, heap, handoff, bootrecord.ByteRange{Addr: 0x5000000, Len: 4096})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if hdr.KernelExecVirt.Addr != uintptr(cfg.KernelVirt) {
		t.Errorf("KernelExecVirt.Addr = %#x, want %#x", hdr.KernelExecVirt.Addr, cfg.KernelVirt)
	}
	wantStackVirt := uintptr(cfg.KernelVirt) + 4*page2M // 3 exe pages + 1 guard page
	if hdr.KernelStackVirt.Addr != wantStackVirt {
		t.Errorf("KernelStackVirt.Addr = %#x, want %#x", hdr.KernelStackVirt.Addr, wantStackVirt)
	}
	wantHeapVirt := wantStackVirt + 2*page2M // 1 stack page + 1 guard page
	if hdr.KernelHeapVirt.Addr != wantHeapVirt {
		t.Errorf("KernelHeapVirt.Addr = %#x, want %#x", hdr.KernelHeapVirt.Addr, wantHeapVirt)
	}

	if got, ok := b.Translate(uint64(hdr.KernelExecVirt.Addr) + page2M); !ok || got != exe.Addr+page2M {
		t.Errorf("exe translate = %#x, %v", got, ok)
	}
	if got, ok := b.Translate(uint64(hdr.KernelStackVirt.Addr)); !ok || got != stack.Addr {
		t.Errorf("stack translate = %#x, %v", got, ok)
	}
	// The guard page between stack and heap must remain unmapped.
	if _, ok := b.Translate(uint64(hdr.KernelStackVirt.Addr) + page2M); ok {
		t.Error("expected the guard page after the kernel stack to be unmapped")
	}
	// Low memory must still be identity mapped after the higher-half layout.
	if got, ok := b.Translate(0x300000); !ok || got != 0x300000 {
		t.Errorf("identity translate = %#x, %v", got, ok)
	}

	if hdr.PhysMemMap == 0 {
		t.Error("expected PhysMemMap to point at the handoff's memory map")
	}
}

func TestAssembleRejectsMisalignedKernelVirt(t *testing.T) {
	cfg := Config{KernelVirt: 0x1234, TableBase: 0x10000}
	_, _, err := Assemble(cfg, PhysRegion{}, PhysRegion{}, PhysRegion{}, nil, bootrecord.ByteRange{})
	if err == nil {
		t.Fatal("expected an error for a non-2MiB-aligned KernelVirt")
	}
}

func TestAssembleRejectsMisalignedRegion(t *testing.T) {
	cfg := Config{KernelVirt: 0xFFFFFFFF80000000, TableBase: 0x10000}
	exe := PhysRegion{Addr: 0x201000, Len: page2M}
	_, _, err := Assemble(cfg, exe, PhysRegion{}, PhysRegion{}, nil, bootrecord.ByteRange{})
	if err == nil {
		t.Fatal("expected an error for a non-2MiB-aligned physical region")
	}
}
