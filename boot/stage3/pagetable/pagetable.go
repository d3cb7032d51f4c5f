// Package pagetable builds the identity-mapped and higher-half-mapped
// amd64 page tables stage-3 installs before jumping into the kernel. It is
// grounded on kernel/mem/vmm/pte.go's page-table-entry bit layout (the
// same Present/RW/HugePage/NoExecute flag positions, since both packages
// target the same amd64 long-mode format), generalized here to build
// tables in a self-owned arena rather than through the kernel's frame
// allocator: stage-3 runs before BitmapAllocator exists, and before any
// physical direct map is mapped, so it cannot reuse kernel/mem/vmm.Table —
// that type assumes both are already up. Builder instead owns a flat
// []Table arena and hands out frames from it directly, the same
// bump-allocate-as-you-build style original_source's
// bootloader/stage-64bit/src/paging.rs uses while setting up its own
// tables from scratch.
package pagetable

import "fmt"

const (
	flagPresent  = uint64(1) << 0
	flagRW       = uint64(1) << 1
	flagHugePage = uint64(1) << 7
	flagNoExec   = uint64(1) << 63

	physAddrMask = uint64(0x000ffffffffff000)

	entriesPerTable = 512

	pageSize4K = 1 << 12
	pageSize2M = 1 << 21
)

// Entry is one 8-byte page-table slot, amd64 long-mode layout.
type Entry uint64

func (e Entry) present() bool { return uint64(e)&flagPresent != 0 }

func makeEntry(physAddr uint64, rw, huge, noExec bool) Entry {
	v := (physAddr & physAddrMask) | flagPresent
	if rw {
		v |= flagRW
	}
	if huge {
		v |= flagHugePage
	}
	if noExec {
		v |= flagNoExec
	}
	return Entry(v)
}

// Table is one 512-entry page table (PML4, PDPT, PD, or PT).
type Table [entriesPerTable]Entry

// indices splits a canonical virtual address into its four page-table
// indices (PML4, PDPT, PD, PT), matching amd64's 9/9/9/9/12 bit split.
func indices(virt uint64) (pml4, pdpt, pd, pt int) {
	pml4 = int((virt >> 39) & 0x1FF)
	pdpt = int((virt >> 30) & 0x1FF)
	pd = int((virt >> 21) & 0x1FF)
	pt = int((virt >> 12) & 0x1FF)
	return
}

// Builder constructs a set of page tables into a self-owned arena of
// Table frames, so it has no dependency on a running frame allocator or
// an existing physical direct map — both preconditions stage-3 hasn't
// established yet when it starts building the kernel's address space.
type Builder struct {
	// Frames holds every Table this Builder has allocated, in allocation
	// order; Frames[0] is always the PML4. FrameAddr translates an index
	// in this slice to the physical address stage-3 should ultimately
	// install in CR3/parent entries, since the arena's backing memory is
	// physically contiguous once copied into place.
	Frames   []Table
	baseAddr uint64
}

// NewBuilder creates a Builder whose arena frames are reported as starting
// at baseAddr — the physical address stage-3 has reserved to hold the
// tables once they're built and copied out of Go's heap.
func NewBuilder(baseAddr uint64) *Builder {
	b := &Builder{baseAddr: baseAddr}
	b.allocTable() // Frames[0]: the PML4
	return b
}

// allocTable appends a fresh, zeroed table to the arena and returns its
// index.
func (b *Builder) allocTable() int {
	b.Frames = append(b.Frames, Table{})
	return len(b.Frames) - 1
}

// FrameAddr returns the physical address Builder has assigned to
// Frames[idx] — a flat, 4096-byte-aligned offset from baseAddr.
func (b *Builder) FrameAddr(idx int) uint64 {
	return b.baseAddr + uint64(idx)*pageSize4K
}

// RootAddr returns the physical address of the PML4 — what stage-3 loads
// into CR3.
func (b *Builder) RootAddr() uint64 { return b.FrameAddr(0) }

// walkCreate descends from the PML4 to the PD level for virt, creating any
// missing intermediate table along the way, and returns the PD's arena
// index.
func (b *Builder) walkCreate(virt uint64) (pdIdx int) {
	pml4i, pdpti, _, _ := indices(virt)

	pdptIdx := b.childOf(0, pml4i, true)
	return b.childOf(pdptIdx, pdpti, true)
}

// childOf returns the arena index of the child table that entry i of the
// arena table at index parent points to, allocating and linking a fresh
// one if that entry is not yet present. writable controls the RW bit on
// the newly created link (existing links are left alone).
func (b *Builder) childOf(parent, i int, writable bool) int {
	e := b.Frames[parent][i]
	if e.present() {
		return int(((uint64(e) & physAddrMask) - b.baseAddr) / pageSize4K)
	}
	idx := b.allocTable()
	b.Frames[parent][i] = makeEntry(b.FrameAddr(idx), writable, false, false)
	return idx
}

// MapHugePage2M installs a single 2 MiB leaf mapping virt -> phys into the
// PD level, creating the PML4/PDPT/PD chain as needed. Both virt and phys
// must be 2 MiB aligned.
func (b *Builder) MapHugePage2M(virt, phys uint64, writable, noExec bool) error {
	if virt%pageSize2M != 0 || phys%pageSize2M != 0 {
		return fmt.Errorf("pagetable: addresses must be 2 MiB aligned: virt=%#x phys=%#x", virt, phys)
	}
	pdIdx := b.walkCreate(virt)

	_, _, pdi, _ := indices(virt)
	pd := &b.Frames[pdIdx]
	if pd[pdi].present() {
		return fmt.Errorf("pagetable: virt %#x already mapped", virt)
	}
	pd[pdi] = makeEntry(phys, writable, true, noExec)
	return nil
}

// IdentityMap2M maps count consecutive 2 MiB huge pages starting at
// physBase to the same virtual address (virt == phys), the flat mapping
// stage-3 needs over all of low physical memory before a direct map
// exists.
func (b *Builder) IdentityMap2M(physBase uint64, count int, writable, noExec bool) error {
	for i := 0; i < count; i++ {
		addr := physBase + uint64(i)*pageSize2M
		if err := b.MapHugePage2M(addr, addr, writable, noExec); err != nil {
			return err
		}
	}
	return nil
}

// MapHigherHalf2M maps count consecutive 2 MiB huge pages of physical
// memory starting at physBase to virtBase..virtBase+count*2MiB — the
// higher-half kernel mapping (e.g. virtBase == 0xFFFFFFFF80000000) laid
// over the same physical range IdentityMap2M covers at its identity
// address, so both mappings can coexist during the switch from
// stage-3's identity-mapped execution to the kernel's higher-half
// execution.
func (b *Builder) MapHigherHalf2M(virtBase, physBase uint64, count int, writable, noExec bool) error {
	for i := 0; i < count; i++ {
		virt := virtBase + uint64(i)*pageSize2M
		phys := physBase + uint64(i)*pageSize2M
		if err := b.MapHugePage2M(virt, phys, writable, noExec); err != nil {
			return err
		}
	}
	return nil
}

// Translate walks the built tables and returns the physical address virt
// maps to, plus whether a mapping was found — used by tests to assert the
// tables Builder produced actually resolve the way the mapping calls
// claimed they would.
func (b *Builder) Translate(virt uint64) (uint64, bool) {
	pml4i, pdpti, pdi, _ := indices(virt)

	pml4 := &b.Frames[0]
	if !pml4[pml4i].present() {
		return 0, false
	}
	pdptIdx := int(((uint64(pml4[pml4i]) & physAddrMask) - b.baseAddr) / pageSize4K)

	pdpt := &b.Frames[pdptIdx]
	if !pdpt[pdpti].present() {
		return 0, false
	}
	pdIdx := int(((uint64(pdpt[pdpti]) & physAddrMask) - b.baseAddr) / pageSize4K)

	pd := &b.Frames[pdIdx]
	if !pd[pdi].present() {
		return 0, false
	}
	if uint64(pd[pdi])&flagHugePage != 0 {
		base := uint64(pd[pdi]) & physAddrMask
		return base + (virt % pageSize2M), true
	}

	// A 4K leaf would live one level deeper (PT); this Builder never
	// creates one, since every mapping it installs is a 2 MiB huge page.
	return 0, false
}
