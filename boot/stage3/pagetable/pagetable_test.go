package pagetable

import "testing"

func TestIdentityMapTranslatesToSamePhysAddr(t *testing.T) {
	b := NewBuilder(0x300000)
	if err := b.IdentityMap2M(0, 4, true, false); err != nil {
		t.Fatalf("IdentityMap2M: %v", err)
	}

	for _, addr := range []uint64{0, pageSize2M, 3 * pageSize2M, 3*pageSize2M + 0x1234} {
		got, ok := b.Translate(addr)
		if !ok {
			t.Fatalf("Translate(%#x): not mapped", addr)
		}
		if got != addr {
			t.Errorf("Translate(%#x) = %#x, want %#x", addr, got, addr)
		}
	}

	if _, ok := b.Translate(4 * pageSize2M); ok {
		t.Error("expected the 5th 2 MiB page to be unmapped")
	}
}

func TestMapHigherHalfOverlaysIdentityMapping(t *testing.T) {
	b := NewBuilder(0x300000)
	if err := b.IdentityMap2M(0, 2, true, false); err != nil {
		t.Fatalf("IdentityMap2M: %v", err)
	}

	const higherHalfBase = uint64(0xFFFFFFFF80000000)
	if err := b.MapHigherHalf2M(higherHalfBase, 0, 2, true, true); err != nil {
		t.Fatalf("MapHigherHalf2M: %v", err)
	}

	if got, ok := b.Translate(higherHalfBase + pageSize2M + 0x10); !ok || got != pageSize2M+0x10 {
		t.Errorf("higher-half translate = %#x, %v", got, ok)
	}
	if got, ok := b.Translate(pageSize2M); !ok || got != pageSize2M {
		t.Errorf("identity translate = %#x, %v; want unaffected by the higher-half mapping", got, ok)
	}
}

func TestMapHugePage2MRejectsMisalignedAddresses(t *testing.T) {
	b := NewBuilder(0x300000)
	if err := b.MapHugePage2M(0x1000, 0, true, false); err == nil {
		t.Error("expected an alignment error for a non-2MiB-aligned virtual address")
	}
}

func TestMapHugePage2MRejectsDoubleMapping(t *testing.T) {
	b := NewBuilder(0x300000)
	if err := b.MapHugePage2M(0, 0, true, false); err != nil {
		t.Fatalf("first map: %v", err)
	}
	if err := b.MapHugePage2M(0, pageSize2M, true, false); err == nil {
		t.Error("expected an error remapping an already-mapped virtual page")
	}
}

func TestFrameAddrIsContiguousFromBaseAddr(t *testing.T) {
	b := NewBuilder(0x500000)
	if b.RootAddr() != 0x500000 {
		t.Errorf("RootAddr = %#x, want %#x", b.RootAddr(), 0x500000)
	}
	_ = b.walkCreate(pageSize2M) // allocates a PDPT and PD beyond the PML4
	if len(b.Frames) < 3 {
		t.Fatalf("expected at least 3 frames (PML4, PDPT, PD), got %d", len(b.Frames))
	}
	for i := range b.Frames {
		want := 0x500000 + uint64(i)*pageSize4K
		if b.FrameAddr(i) != want {
			t.Errorf("FrameAddr(%d) = %#x, want %#x", i, b.FrameAddr(i), want)
		}
	}
}
