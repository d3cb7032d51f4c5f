package addr

import "testing"

func TestNotAlignedAlwaysSucceeds(t *testing.T) {
	for _, raw := range []uint64{0, 1, 7, 4095, 0xdeadbeef} {
		if _, err := NewPhysAddr[NotAligned](raw); err != nil {
			t.Fatalf("NewPhysAddr[NotAligned](%d): unexpected error %v", raw, err)
		}
	}
}

func TestAligned4KRejectsMisaligned(t *testing.T) {
	if _, err := NewPhysAddr[Aligned4K](0x1001); err == nil {
		t.Fatal("expected alignment error for 0x1001 against 4K")
	}
	if _, err := NewPhysAddr[Aligned4K](0x2000); err != nil {
		t.Fatalf("unexpected error for aligned address: %v", err)
	}
}

// TestAlignRoundTrip checks property law 1 from the design: for any a and
// any power-of-two N, a.align_up_to(N) >= a, is a multiple of N, and the
// delta is less than N.
func TestAlignRoundTrip(t *testing.T) {
	cases := []struct {
		a uint64
		n uint64
	}{
		{0, 4096}, {1, 4096}, {4095, 4096}, {4096, 4096},
		{0x1234, 2 * 1024 * 1024}, {0x7fffffff, 1024 * 1024 * 1024},
	}

	for _, c := range cases {
		p, err := NewPhysAddr[NotAligned](c.a)
		if err != nil {
			t.Fatalf("NewPhysAddr: %v", err)
		}

		up := p.AlignUpTo(c.n)
		if up.Addr() < c.a {
			t.Fatalf("align_up_to(%d) of %d = %d, want >= %d", c.n, c.a, up.Addr(), c.a)
		}
		if up.Addr()%c.n != 0 {
			t.Fatalf("align_up_to(%d) of %d = %d, not a multiple of %d", c.n, c.a, up.Addr(), c.n)
		}
		if up.Addr()-c.a >= c.n {
			t.Fatalf("align_up_to(%d) of %d = %d, delta >= %d", c.n, c.a, up.Addr(), c.n)
		}

		down := p.AlignDownTo(c.n)
		if down.Addr() > c.a {
			t.Fatalf("align_down_to(%d) of %d = %d, want <= %d", c.n, c.a, down.Addr(), c.a)
		}
		if down.Addr()%c.n != 0 {
			t.Fatalf("align_down_to(%d) of %d = %d, not a multiple of %d", c.n, c.a, down.Addr(), c.n)
		}
	}
}

func TestRetightenRejectsUnaligned(t *testing.T) {
	loose, err := NewPhysAddr[NotAligned](0x1234)
	if err != nil {
		t.Fatalf("NewPhysAddr: %v", err)
	}

	if _, err := RetightenPhys[Aligned4K](loose); err == nil {
		t.Fatal("expected retighten to 4K to fail for 0x1234")
	}

	aligned, err := NewPhysAddr[NotAligned](0x4000)
	if err != nil {
		t.Fatalf("NewPhysAddr: %v", err)
	}
	if _, err := RetightenPhys[Aligned4K](aligned); err != nil {
		t.Fatalf("expected retighten to 4K to succeed for 0x4000: %v", err)
	}
}

func TestRequirePow2(t *testing.T) {
	if err := RequirePow2(4096); err != nil {
		t.Fatalf("4096 should be a valid power of two: %v", err)
	}
	if err := RequirePow2(0); err == nil {
		t.Fatal("0 should be rejected")
	}
	if err := RequirePow2(3); err == nil {
		t.Fatal("3 should be rejected")
	}
}
