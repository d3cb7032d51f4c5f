package vmm

import (
	"unsafe"

	"github.com/corigan01/quantumos/kernel"
)

const entriesPerTable = 512

// table is one level of the 4-level amd64 page table hierarchy: 512
// 8-byte entries filling exactly one 4 KiB frame.
type table [entriesPerTable]entry

// PhysMapBase is the virtual offset at which the kernel maps the whole of
// physical memory 1:1, so that any physical frame can be dereferenced as
// PhysMapBase+addr. It is set once during kernel VM bring-up (after
// stage-3 hands off, per KernelBootHeader) and never changes afterwards.
//
// This replaces the prior recursive last-PDT-entry trick
// (kernel/mem/vmm/pdt.go) for reaching inactive or newly-allocated page
// table frames: this kernel always has a direct map available, so no
// temporary-mapping dance is required to read or write a table.
var PhysMapBase uintptr

// tableAtFn resolves a physical frame address to the table stored there.
// It is a package variable so tests can substitute Go-heap-backed tables
// without relying on PhysMapBase pointing at real memory (the same
// function-variable-indirection idiom the prior implementation uses for cpu.Halt/
// activePDT elsewhere in this codebase).
var tableAtFn = defaultTableAt

func defaultTableAt(addr uint64) *table {
	return (*table)(unsafe.Pointer(PhysMapBase + uintptr(addr)))
}

// PhysBytes returns a byte slice viewing length bytes of physical memory
// starting at physAddr through the direct physical map. Callers that need
// to park a Go-level data structure (a bitmap, a pool table) in specific
// physical frames before the kernel's general-purpose allocator exists use
// this instead of a page-table walk, since the direct map already covers
// all of physical RAM at a fixed offset (see PhysMapBase above).
func PhysBytes(physAddr uint64, length int) []byte {
	ptr := (*byte)(unsafe.Pointer(PhysMapBase + uintptr(physAddr)))
	return unsafe.Slice(ptr, length)
}

// FrameAllocatorFn allocates one zeroed 4 KiB physical frame, returning its
// base address. It mirrors the prior vmm.FrameAllocatorFn (kernel/mem/
// vmm/map.go) but returns a raw address rather than a pmm.Frame index,
// since this package no longer assumes a fixed global page size encoding.
type FrameAllocatorFn func() (uint64, *kernel.Error)
