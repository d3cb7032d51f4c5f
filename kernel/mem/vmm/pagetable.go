package vmm

import (
	"github.com/corigan01/quantumos/kernel"
	"github.com/corigan01/quantumos/kernel/cpu"
	"github.com/corigan01/quantumos/kernel/mem/addr"
	"github.com/corigan01/quantumos/kernel/mem/page"
)

// pageLevelShifts gives the bit shift for each of the 4 levels of the
// amd64 page table walk (PML4, PDPT, PD, PT), matching the prior
// src/gopheros/kernel/mm/vmm.pageLevelShifts constant.
var pageLevelShifts = [4]uint{39, 30, 21, 12}

// Permission is the set of access rights a VmObject grants over a range of
// pages.
type Permission uint8

const (
	PermRead Permission = 1 << iota
	PermWrite
	PermExec
	PermUser
)

func (p Permission) flags() PageTableEntryFlag {
	var f PageTableEntryFlag
	if p&PermWrite != 0 {
		f |= FlagRW
	}
	if p&PermUser != 0 {
		f |= FlagUser
	}
	if p&PermExec == 0 {
		f |= FlagNoExecute
	}
	return f
}

// Table is a page table root (what the design calls a SharedTable when
// reference-counted across processes). It is addressed by the physical
// frame holding its top-level (PML4) table.
type Table struct {
	root uint64
}

// NewTable installs a freshly allocated, zeroed PML4 frame as the root of
// a new address space.
func NewTable(alloc FrameAllocatorFn) (Table, *kernel.Error) {
	rootAddr, err := alloc()
	if err != nil {
		return Table{}, err
	}
	*tableAtFn(rootAddr) = table{}
	return Table{root: rootAddr}, nil
}

// RootAddr returns the physical address of the PML4 frame, suitable for
// loading into CR3.
func (t Table) RootAddr() uint64 { return t.root }

func pageTableIndex(vaddr uint64, level int) int {
	return int((vaddr >> pageLevelShifts[level]) & 0x1ff)
}

// Map4KPage installs a mapping from vpage to ppage with the given
// permissions, allocating any missing intermediate tables along the way
//. Intermediate entries accumulate the union
// of every leaf permission ever installed beneath them, since a table
// entry's own R/W/U/S bits gate every translation that passes through it
// regardless of what the leaf entry further down requests.
func (t Table) Map4KPage(vpage page.VirtPage[addr.Aligned4K], ppage page.PhysPage[addr.Aligned4K], perm Permission, alloc FrameAllocatorFn) *kernel.Error {
	vaddr := vpage.Address().Addr()
	leafFlags := perm.flags()
	// Intermediate entries never carry NX: the bit restricts everything
	// reachable through the entry, so only the leaf's own NX bit should
	// apply. Their R/W and U/S bits, on the other hand, gate every
	// translation beneath them and so must be the union (OR) of every
	// leaf permission ever installed under this path.
	unionFlags := leafFlags &^ FlagNoExecute

	cur := tableAtFn(t.root)
	for level := 0; level < 3; level++ {
		idx := pageTableIndex(vaddr, level)
		e := &cur[idx]

		if !e.hasFlags(FlagPresent) {
			childAddr, err := alloc()
			if err != nil {
				return err
			}
			*tableAtFn(childAddr) = table{}

			*e = 0
			e.setFrameAddr(childAddr)
			e.setFlags(FlagPresent | FlagRW | unionFlags)
		} else if e.hasFlags(FlagHugePage) {
			return ErrHugePageUnsupported
		} else {
			// Widen the intermediate entry's permissions to cover the
			// union of every leaf mapped beneath it: once any leaf below
			// needs WRITE/USER, the whole path down to it must allow it.
			e.setFlags(unionFlags)
		}

		cur = tableAtFn(e.frameAddr())
	}

	idx := pageTableIndex(vaddr, 3)
	leaf := &cur[idx]
	*leaf = 0
	leaf.setFrameAddr(ppage.Address().Addr())
	leaf.setFlags(FlagPresent | leafFlags)

	flushTLBEntryFn(vaddr)
	return nil
}

// Unmap4KPage clears the leaf entry for vpage, if any.
func (t Table) Unmap4KPage(vpage page.VirtPage[addr.Aligned4K]) *kernel.Error {
	vaddr := vpage.Address().Addr()

	cur := tableAtFn(t.root)
	for level := 0; level < 3; level++ {
		e := &cur[pageTableIndex(vaddr, level)]
		if !e.hasFlags(FlagPresent) {
			return ErrInvalidMapping
		}
		if e.hasFlags(FlagHugePage) {
			return ErrHugePageUnsupported
		}
		cur = tableAtFn(e.frameAddr())
	}

	leaf := &cur[pageTableIndex(vaddr, 3)]
	if !leaf.hasFlags(FlagPresent) {
		return ErrInvalidMapping
	}
	leaf.clearFlags(FlagPresent)
	flushTLBEntryFn(vaddr)
	return nil
}

// leafEntry walks to and returns the level-3 (final) entry for vaddr, or
// ErrInvalidMapping if any intermediate entry is absent.
func (t Table) leafEntry(vaddr uint64) (*entry, *kernel.Error) {
	cur := tableAtFn(t.root)
	for level := 0; level < 3; level++ {
		e := &cur[pageTableIndex(vaddr, level)]
		if !e.hasFlags(FlagPresent) {
			return nil, ErrInvalidMapping
		}
		if e.hasFlags(FlagHugePage) {
			return nil, ErrHugePageUnsupported
		}
		cur = tableAtFn(e.frameAddr())
	}
	leaf := &cur[pageTableIndex(vaddr, 3)]
	if !leaf.hasFlags(FlagPresent) {
		return nil, ErrInvalidMapping
	}
	return leaf, nil
}

// Translate returns the physical address mapped for vaddr.
func (t Table) Translate(vaddr uint64) (uint64, *kernel.Error) {
	leaf, err := t.leafEntry(vaddr)
	if err != nil {
		return 0, err
	}
	return leaf.frameAddr() | (vaddr & 0xfff), nil
}

// flushTLBEntryFn is overridden by tests; in the kernel it delegates to
// cpu.FlushTLBEntry, the assembly-backed TLB invalidation primitive.
var flushTLBEntryFn = func(virtAddr uint64) { cpu.FlushTLBEntry(uintptr(virtAddr)) }
