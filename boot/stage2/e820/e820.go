// Package e820 captures and normalizes the BIOS INT 15h, AX=E820h memory
// map that stage-2 queries before the hand-off to protected mode. It is
// grounded on internal/bootrecord's E820Entry/MemRegionKind — this package
// is the producer side: it turns the raw, BIOS-supplied entry stream into
// the validated, normalized set of regions that gets copied into a
// Stage16To32 record.
package e820

import (
	"sort"

	"github.com/corigan01/quantumos/internal/bootrecord"
)

// RawEntry is one BIOS E820h entry exactly as the real-mode trampoline
// copies it out of the ES:DI buffer: a 20-byte (or 24-byte, extended)
// struct, base/length as 64-bit, a 32-bit type field, and an optional
// 32-bit ACPI 3.0 extended attribute word.
type RawEntry struct {
	Base       uint64
	Length     uint64
	Type       uint32
	ExtendedOK bool
	Extended   uint32
}

// normalizeKind maps the BIOS's 1-based region type field onto
// bootrecord.MemRegionKind. Unrecognized type values (a BIOS is free to
// report vendor-specific numbers beyond the five standard ones) are folded
// into MemRegionReserved, the conservative choice: stage-3 must never
// treat memory of unknown type as free.
func normalizeKind(biosType uint32) bootrecord.MemRegionKind {
	switch biosType {
	case 1:
		return bootrecord.MemRegionFree
	case 2:
		return bootrecord.MemRegionReserved
	case 3:
		return bootrecord.MemRegionACPIReclaimable
	case 4:
		return bootrecord.MemRegionACPINVS
	case 5:
		return bootrecord.MemRegionUnusable
	default:
		return bootrecord.MemRegionReserved
	}
}

// Capture converts the raw entries the real-mode E820h loop collected into
// normalized bootrecord.E820Entry values, dropping zero-length entries (a
// BIOS occasionally reports these as a list terminator) and entries whose
// ACPI 3.0 extended attribute word has bit 0 clear (the spec says such an
// entry should be ignored entirely). The result is sorted by base address,
// and capped at bootrecord.MaxE820Entries — stage-2 stops calling the BIOS
// once the fixed-capacity Stage16To32.MemMap is full, but a test or a
// future multi-call BIOS loop could still hand this function more entries
// than fit, so Capture enforces the cap rather than trusting the caller.
func Capture(raw []RawEntry) []bootrecord.E820Entry {
	out := make([]bootrecord.E820Entry, 0, len(raw))
	for _, r := range raw {
		if r.Length == 0 {
			continue
		}
		if r.ExtendedOK && r.Extended&0x1 == 0 {
			continue
		}
		out = append(out, bootrecord.E820Entry{
			Base:     r.Base,
			Length:   r.Length,
			Kind:     normalizeKind(r.Type),
			AcpiAttr: r.Extended,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Base < out[j].Base })

	if len(out) > bootrecord.MaxE820Entries {
		out = out[:bootrecord.MaxE820Entries]
	}
	return out
}

// TotalUsableBytes sums the length of every MemRegionFree entry, the
// quantity stage-2 prints to the boot console as a sanity check before
// handing off to stage-3.
func TotalUsableBytes(entries []bootrecord.E820Entry) uint64 {
	var total uint64
	for _, e := range entries {
		if e.Kind == bootrecord.MemRegionFree {
			total += e.Length
		}
	}
	return total
}

// FillHandoff copies entries into dst's fixed-capacity MemMap via
// AddMemRegion, stopping (silently, matching AddMemRegion's own contract)
// once the array is full.
func FillHandoff(dst *bootrecord.Stage16To32, entries []bootrecord.E820Entry) {
	for _, e := range entries {
		if !dst.AddMemRegion(e) {
			return
		}
	}
}
