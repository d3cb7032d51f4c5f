// Package allocator implements the physical frame allocators used to
// bootstrap and then run the kernel's memory subsystem: BootMemAllocator
// (a simple bump allocator used before the kernel has enough structure to
// run BitmapAllocator) and BitmapAllocator (a bitmap-tracked pool
// allocator that, unlike the boot allocator, supports freeing). Both are
// grounded on the prior kernel/mem/pmm/allocator of the same name,
// adapted to scan this kernel's own kernel/mem/pmap.Map rather than the
// teacher's multiboot memory map, since this kernel's stage-3 loader
// builds its physical memory map directly
// instead of consuming a multiboot info structure.
package allocator

import (
	"github.com/corigan01/quantumos/kernel"
	"github.com/corigan01/quantumos/kernel/kfmt/early"
	"github.com/corigan01/quantumos/kernel/mem"
	"github.com/corigan01/quantumos/kernel/mem/pmap"
	"github.com/corigan01/quantumos/kernel/mem/pmm"
)

var (
	// EarlyAllocator points to a static instance of the boot memory
	// allocator used to bootstrap the kernel before BitmapAllocator takes
	// over.
	EarlyAllocator BootMemAllocator

	errBootAllocUnsupportedPageSize = &kernel.Error{Module: "boot_mem_alloc", Message: "allocator only supports allocation requests of order(0)"}
	errBootAllocOutOfMemory         = &kernel.Error{Module: "boot_mem_alloc", Message: "out of memory"}
)

// BootMemAllocator implements a rudimentary physical memory allocator used
// to bootstrap the kernel.
//
// The allocator scans a kernel/mem/pmap.Map for KindFree regions and
// returns the next available free frame. Allocations are tracked via an
// internal counter that contains the last allocated frame index; the free
// regions are mapped into a linear page index by aligning each region's
// start address to the page size and dividing by the page size.
//
// Due to the way the allocator works it is not possible to free allocated
// pages. Once the kernel is properly initialized, BitmapAllocator takes
// over and the frames allocated here are marked reserved in its bitmap.
type BootMemAllocator struct {
	memMap *pmap.Map

	// allocCount tracks the total number of allocated frames.
	allocCount uint64

	// lastAllocIndex tracks the last allocated frame index.
	lastAllocIndex int64
}

// Init binds the allocator to m and prints the system memory map.
func (alloc *BootMemAllocator) Init(m *pmap.Map) {
	alloc.memMap = m
	alloc.lastAllocIndex = -1
	alloc.allocCount = 0

	m.LogSummary()
	early.Printf("[boot_mem_alloc] free memory: %dKb\n", m.BytesOf(pmap.KindFree)/uint64(mem.Kb))
}

// AllocFrame scans the bound memory map and reserves the next available
// free frame.
//
// AllocFrame returns an error if no more memory can be allocated or when
// the requested page order is > 0.
func (alloc *BootMemAllocator) AllocFrame(order mem.PageOrder) (pmm.Frame, *kernel.Error) {
	if order > 0 {
		return pmm.InvalidFrame, errBootAllocUnsupportedPageSize
	}

	pageSizeMinus1 := uint64(mem.PageSize) - 1
	var (
		foundPageIndex                           int64 = -1
		regionStartPageIndex, regionEndPageIndex int64
	)

	for _, region := range alloc.memMap.Regions() {
		if region.Kind != pmap.KindFree {
			continue
		}

		regionStartPageIndex = int64(((region.Start + pageSizeMinus1) &^ pageSizeMinus1) >> mem.PageShift)
		regionEndPageIndex = int64((region.End &^ pageSizeMinus1) >> mem.PageShift)

		if alloc.lastAllocIndex+1 >= regionEndPageIndex {
			continue
		}

		if alloc.lastAllocIndex < regionStartPageIndex {
			foundPageIndex = regionStartPageIndex
		} else {
			foundPageIndex = alloc.lastAllocIndex + 1
		}
		break
	}

	if foundPageIndex == -1 {
		return pmm.InvalidFrame, errBootAllocOutOfMemory
	}

	alloc.allocCount++
	alloc.lastAllocIndex = foundPageIndex

	return pmm.Frame(foundPageIndex), nil
}

// AllocFrameAddr adapts AllocFrame to the kernel/mem/vmm.FrameAllocatorFn
// contract, returning a physical byte address rather than a frame index.
func (alloc *BootMemAllocator) AllocFrameAddr() (uint64, *kernel.Error) {
	frame, err := alloc.AllocFrame(0)
	if err != nil {
		return 0, err
	}
	return uint64(frame.Address()), nil
}
