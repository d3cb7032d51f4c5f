package e820

import (
	"testing"

	"github.com/corigan01/quantumos/internal/bootrecord"
)

func TestCaptureDropsZeroLengthAndIgnoredEntries(t *testing.T) {
	raw := []RawEntry{
		{Base: 0x100000, Length: 0x1000, Type: 1},
		{Base: 0x0, Length: 0, Type: 1},
		{Base: 0x200000, Length: 0x2000, Type: 2, ExtendedOK: true, Extended: 0x0},
		{Base: 0x300000, Length: 0x3000, Type: 3, ExtendedOK: true, Extended: 0x1},
	}

	got := Capture(raw)
	if len(got) != 2 {
		t.Fatalf("Capture() returned %d entries, want 2: %+v", len(got), got)
	}
	if got[0].Base != 0x100000 || got[0].Kind != bootrecord.MemRegionFree {
		t.Errorf("entry 0 = %+v", got[0])
	}
	if got[1].Base != 0x300000 || got[1].Kind != bootrecord.MemRegionACPIReclaimable {
		t.Errorf("entry 1 = %+v", got[1])
	}
}

func TestCaptureSortsByBase(t *testing.T) {
	raw := []RawEntry{
		{Base: 0x300000, Length: 0x1000, Type: 1},
		{Base: 0x100000, Length: 0x1000, Type: 1},
		{Base: 0x200000, Length: 0x1000, Type: 1},
	}
	got := Capture(raw)
	for i := 1; i < len(got); i++ {
		if got[i].Base < got[i-1].Base {
			t.Fatalf("Capture() is not sorted: %+v", got)
		}
	}
}

func TestCaptureUnknownTypeBecomesReserved(t *testing.T) {
	got := Capture([]RawEntry{{Base: 0, Length: 0x1000, Type: 99}})
	if len(got) != 1 || got[0].Kind != bootrecord.MemRegionReserved {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestCaptureCapsAtMaxEntries(t *testing.T) {
	raw := make([]RawEntry, bootrecord.MaxE820Entries+10)
	for i := range raw {
		raw[i] = RawEntry{Base: uint64(i) * 0x1000, Length: 0x1000, Type: 1}
	}
	got := Capture(raw)
	if len(got) != bootrecord.MaxE820Entries {
		t.Fatalf("Capture() returned %d entries, want %d", len(got), bootrecord.MaxE820Entries)
	}
}

func TestTotalUsableBytes(t *testing.T) {
	entries := []bootrecord.E820Entry{
		{Base: 0, Length: 0x1000, Kind: bootrecord.MemRegionFree},
		{Base: 0x1000, Length: 0x500, Kind: bootrecord.MemRegionReserved},
		{Base: 0x2000, Length: 0x2000, Kind: bootrecord.MemRegionFree},
	}
	if got, want := TotalUsableBytes(entries), uint64(0x1000+0x2000); got != want {
		t.Errorf("TotalUsableBytes() = %#x, want %#x", got, want)
	}
}

func TestFillHandoffStopsWhenFull(t *testing.T) {
	var s bootrecord.Stage16To32
	entries := make([]bootrecord.E820Entry, bootrecord.MaxE820Entries+5)
	for i := range entries {
		entries[i] = bootrecord.E820Entry{Base: uint64(i), Length: 1, Kind: bootrecord.MemRegionFree}
	}

	FillHandoff(&s, entries)

	if s.MemMapLen != bootrecord.MaxE820Entries {
		t.Errorf("MemMapLen = %d, want %d", s.MemMapLen, bootrecord.MaxE820Entries)
	}
}
