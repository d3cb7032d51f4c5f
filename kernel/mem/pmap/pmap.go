// Package pmap implements a physical memory region map: a sorted,
// non-overlapping sequence of PhysMemoryEntry, with
// add_region/bytes_of/find_continuous_of operations reconciling overlaps by
// an explicit kind precedence. It is grounded on the prior
// kernel/mem/pmm/allocator.BitmapAllocator, which walks a bootloader-provided
// region list (kernel/hal/multiboot.VisitMemRegions) to find free memory —
// this package generalizes that one-shot scan into a standing, mutable map
// that stage-3 and the kernel both build up incrementally as they discover
// and reserve memory (loader images, page tables, the kernel itself), so
// that Kernel/Bootloader regions can carve into a previously-registered Free
// region.
package pmap

import (
	"sort"

	"github.com/corigan01/quantumos/kernel/kfmt/early"
)

// Kind classifies a physical memory region.
type Kind uint8

const (
	KindNone Kind = iota
	KindFree
	KindReserved
	KindAcpiReclaimable
	KindBroken
	KindBootloader
	KindKernel
)

func (k Kind) String() string {
	switch k {
	case KindFree:
		return "free"
	case KindReserved:
		return "reserved"
	case KindAcpiReclaimable:
		return "acpi-reclaimable"
	case KindBroken:
		return "broken"
	case KindBootloader:
		return "bootloader"
	case KindKernel:
		return "kernel"
	default:
		return "none"
	}
}

// precedence implements the design: "Kernel/Bootloader overrides Free"
// generalized to the full order "Kernel > Bootloader > Reserved >
// AcpiReclaimable > Free > None > Broken". Higher value wins ties.
func precedence(k Kind) int {
	switch k {
	case KindKernel:
		return 6
	case KindBootloader:
		return 5
	case KindReserved:
		return 4
	case KindAcpiReclaimable:
		return 3
	case KindFree:
		return 2
	case KindNone:
		return 1
	case KindBroken:
		return 0
	default:
		return -1
	}
}

// Entry is a PhysMemoryEntry: a half-open byte range [Start, End) tagged
// with its Kind.
type Entry struct {
	Kind  Kind
	Start uint64
	End   uint64
}

func (e Entry) length() uint64 { return e.End - e.Start }

// Map is a sorted, non-overlapping sequence of Entry.
// The zero value is an empty map.
type Map struct {
	regions []Entry
}

// AddRegion inserts entry into the map, reconciling any overlap by the
// Kind precedence documented on precedence(): if entry's kind outranks an
// existing overlapping region, the overlap is carved out of the existing
// region (which may be split, shortened, or removed); otherwise entry is
// clipped to the portions not already covered by higher-or-equal-precedence
// regions.
func (m *Map) AddRegion(entry Entry) {
	if entry.Start >= entry.End {
		return
	}

	var (
		next    = make([]Entry, 0, len(m.regions)+2)
		pending = entry
	)

	for _, existing := range m.regions {
		if pending.End <= existing.Start || existing.End <= pending.Start {
			// disjoint: keep existing untouched
			next = append(next, existing)
			continue
		}

		if precedence(pending.Kind) >= precedence(existing.Kind) {
			// pending wins: carve the overlap out of existing, keep the
			// remaining slivers of existing (it may be split in two).
			if existing.Start < pending.Start {
				next = append(next, Entry{Kind: existing.Kind, Start: existing.Start, End: pending.Start})
			}
			if existing.End > pending.End {
				next = append(next, Entry{Kind: existing.Kind, Start: pending.End, End: existing.End})
			}
		} else {
			// existing wins: clip pending down to the portions not
			// covered by existing. Since pending is a single contiguous
			// range and existing may cover its middle, pending can split
			// into (at most) two remaining pieces; we process the lower
			// piece now and keep iterating with the upper piece, letting
			// later loop iterations re-test it against the rest of the
			// map.
			next = append(next, existing)

			if pending.Start < existing.Start {
				next = append(next, Entry{Kind: pending.Kind, Start: pending.Start, End: existing.Start})
			}
			if pending.End > existing.End {
				pending = Entry{Kind: pending.Kind, Start: existing.End, End: pending.End}
				continue
			}
			pending = Entry{}
		}
	}

	if pending.Start < pending.End {
		next = append(next, pending)
	}

	sort.Slice(next, func(i, j int) bool { return next[i].Start < next[j].Start })
	m.regions = mergeAdjacent(next)
}

// mergeAdjacent coalesces consecutive same-kind entries so the map stays
// minimal, matching "union of inputs modulo reclassification" from property
// law 3.
func mergeAdjacent(in []Entry) []Entry {
	if len(in) == 0 {
		return in
	}
	out := in[:1]
	for _, e := range in[1:] {
		last := &out[len(out)-1]
		if last.Kind == e.Kind && last.End == e.Start {
			last.End = e.End
			continue
		}
		out = append(out, e)
	}
	return out
}

// BytesOf returns the total byte count covered by regions of the given
// kind.
func (m *Map) BytesOf(kind Kind) uint64 {
	var total uint64
	for _, e := range m.regions {
		if e.Kind == kind {
			total += e.length()
		}
	}
	return total
}

// FindContinuousOf returns the lowest-address window of the given size,
// aligned to align, not below minAddr, and fully contained within regions
// of the given kind. ok is false if no
// such window exists.
func (m *Map) FindContinuousOf(kind Kind, size, align, minAddr uint64) (start uint64, ok bool) {
	if align == 0 {
		align = 1
	}

	for _, e := range m.regions {
		if e.Kind != kind {
			continue
		}

		candidateStart := alignUp(maxU64(e.Start, minAddr), align)
		if candidateStart+size <= e.End && candidateStart >= e.Start {
			return candidateStart, true
		}
	}
	return 0, false
}

// Regions returns a copy of the current sorted region list.
func (m *Map) Regions() []Entry {
	out := make([]Entry, len(m.regions))
	copy(out, m.regions)
	return out
}

// LogSummary prints the map using the kernel's alloc-free early formatter,
// in the style of pfn.BootMemAllocator.init's memory-map banner.
func (m *Map) LogSummary() {
	early.Printf("[pmap] physical memory map:\n")
	for _, e := range m.regions {
		early.Printf("\t[0x%x - 0x%x] %s\n", e.Start, e.End, e.Kind.String())
	}
}

func alignUp(v, n uint64) uint64 { return (v + n - 1) &^ (n - 1) }

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
