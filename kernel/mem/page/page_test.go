package page

import (
	"testing"

	"github.com/corigan01/quantumos/kernel/mem/addr"
)

// TestPhysPageAddressRoundTrip checks property law 2 from the design: for
// any page id n and size S, PhysPage[S]{n}.Address().Addr() == n*S.bytes,
// and PhysPageContaining(that address) recovers the same page id.
func TestPhysPageAddressRoundTrip(t *testing.T) {
	ids := []uint64{0, 1, 2, 511, 1 << 20}

	for _, id := range ids {
		p4k := NewPhysPage[Size4K](id)
		if got, want := p4k.Address().Addr(), id*4096; got != want {
			t.Fatalf("4K page %d address = %d, want %d", id, got, want)
		}

		p2m := NewPhysPage[Size2M](id)
		if got, want := p2m.Address().Addr(), id*2*1024*1024; got != want {
			t.Fatalf("2M page %d address = %d, want %d", id, got, want)
		}

		p1g := NewPhysPage[Size1G](id)
		if got, want := p1g.Address().Addr(), id*1024*1024*1024; got != want {
			t.Fatalf("1G page %d address = %d, want %d", id, got, want)
		}
	}
}

func TestPhysPageContaining(t *testing.T) {
	raw, err := addr.NewPhysAddr[addr.NotAligned](0x5678)
	if err != nil {
		t.Fatalf("NewPhysAddr: %v", err)
	}

	got := PhysPageContaining[Size4K](raw)
	if want := uint64(0x5678 / 4096); got.ID() != want {
		t.Fatalf("PhysPageContaining = %d, want %d", got.ID(), want)
	}

	// The page's own base address must be <= the original address, and
	// adding one more page must exceed it (it is indeed the containing
	// page, not some other page).
	if base := got.Address().Addr(); base > 0x5678 {
		t.Fatalf("containing page base %d > address %d", base, 0x5678)
	}
	if next := got.ID()*4096 + 4096; next <= 0x5678 {
		t.Fatalf("next page base %d should exceed address %d", next, 0x5678)
	}
}

func TestVirtPageAddressRoundTrip(t *testing.T) {
	v := NewVirtPage[Size2M](7)
	if got, want := v.Address().Addr(), uint64(7*2*1024*1024); got != want {
		t.Fatalf("virt page address = %d, want %d", got, want)
	}

	raw, err := addr.NewVirtAddr[addr.NotAligned](v.Address().Addr() + 123)
	if err != nil {
		t.Fatalf("NewVirtAddr: %v", err)
	}
	if got := VirtPageContaining[Size2M](raw); got.ID() != v.ID() {
		t.Fatalf("VirtPageContaining = %d, want %d", got.ID(), v.ID())
	}
}
