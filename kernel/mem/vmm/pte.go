// Package vmm implements the kernel virtual memory manager: four-level
// amd64 page tables, VmObject/VmProcess/VmRegion, and the page-fault
// decision table. It is grounded on the prior
// kernel/mem/vmm package (pte.go/vmm_constants_amd64.go under
// src/gopheros/kernel/mm/vmm, the newer top-level tree's map.go/pdt.go) for
// flag naming and the "walk, creating missing tables as we go" mutation
// style, but replaces the prior self-referential recursive-mapping
// trick (kernel/mem/vmm/pdt.go's last-PDT-entry recursion) with the
// direct-pointer table access original_source/bootloader/stage-64bit/src/
// paging.rs actually uses: stage-3 identity-maps all of low physical
// memory once, so every page table frame is reachable through an ordinary
// Go pointer for as long as that identity map exists. The recursive trick
// solves a problem (no identity map) this kernel's boot pipeline does not
// have.
package vmm

import "github.com/corigan01/quantumos/kernel"

// PageTableEntryFlag is a single bit in a page table entry.
type PageTableEntryFlag uint64

const (
	// FlagPresent marks the entry as present in memory.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW allows writes through this entry.
	FlagRW

	// FlagUser allows user-mode (ring 3) access through this entry.
	FlagUser

	// FlagWriteThrough selects write-through caching for this entry.
	FlagWriteThrough

	// FlagNoCache disables caching for this entry.
	FlagNoCache

	// FlagAccessed is set by the CPU the first time this entry is used
	// for a translation.
	FlagAccessed

	// FlagDirty is set by the CPU the first time a write occurs through
	// this entry. Leaf entries only.
	FlagDirty

	// FlagHugePage marks a level-2 or level-3 entry as a 2 MiB/1 GiB leaf
	// instead of a pointer to the next table.
	FlagHugePage

	// FlagGlobal excludes the translation from TLB flushes on CR3 reload.
	FlagGlobal

	// FlagCopyOnWrite is a software-defined bit used to implement copy-on-write: paired
	// with a cleared FlagRW, a write fault here triggers a private copy
	// rather than a permission failure.
	FlagCopyOnWrite PageTableEntryFlag = 1 << 9
)

// FlagNoExecute is the amd64 XD bit (bit 63): the design "XD if not
// EXEC".
const FlagNoExecute PageTableEntryFlag = 1 << 63

// physAddrMask extracts the 52-bit physical frame address (bits 12..51)
// from an entry.
const physAddrMask = uint64(0x000ffffffffff000)

// entry is one 8-byte slot of a page table. Its layout matches the amd64
// long-mode page table entry format.
type entry uint64

// hasFlags reports whether all of flags are set.
func (e entry) hasFlags(flags PageTableEntryFlag) bool {
	return uint64(e)&uint64(flags) == uint64(flags)
}

func (e *entry) setFlags(flags PageTableEntryFlag) {
	*e = entry(uint64(*e) | uint64(flags))
}

func (e *entry) clearFlags(flags PageTableEntryFlag) {
	*e = entry(uint64(*e) &^ uint64(flags))
}

func (e entry) frameAddr() uint64 {
	return uint64(e) & physAddrMask
}

func (e *entry) setFrameAddr(addr uint64) {
	*e = entry((uint64(*e) &^ physAddrMask) | (addr & physAddrMask))
}

// ErrInvalidMapping is returned when a virtual address has no mapping.
var ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

// ErrHugePageUnsupported is returned when a walk encounters a huge-page
// leaf while looking for an intermediate table.
var ErrHugePageUnsupported = &kernel.Error{Module: "vmm", Message: "huge pages are not supported by this walk"}
