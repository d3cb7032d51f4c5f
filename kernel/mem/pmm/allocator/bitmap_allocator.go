package allocator

import (
	"unsafe"

	"github.com/corigan01/quantumos/kernel"
	"github.com/corigan01/quantumos/kernel/kfmt/early"
	"github.com/corigan01/quantumos/kernel/mem"
	"github.com/corigan01/quantumos/kernel/mem/pmap"
	"github.com/corigan01/quantumos/kernel/mem/pmm"
	"github.com/corigan01/quantumos/kernel/mem/vmm"
)

var (
	// FrameAllocator is a BitmapAllocator instance that serves as the
	// primary allocator once the kernel has bootstrapped past
	// BootMemAllocator.
	FrameAllocator BitmapAllocator

	errBitmapAllocOutOfMemory  = &kernel.Error{Module: "bitmap_alloc", Message: "out of memory"}
	errBitmapAllocNotReserved  = &kernel.Error{Module: "bitmap_alloc", Message: "frame not part of any managed pool"}
	errBitmapAllocDiscontinous = &kernel.Error{Module: "bitmap_alloc", Message: "boot allocator did not return a contiguous run of frames"}
)

type markAs bool

const (
	markReserved markAs = false
	markFree     markAs = true
)

// framePool tracks free/used frames for one contiguous KindFree region of
// the physical memory map using a bitmap, one bit per frame.
type framePool struct {
	// startFrame is the frame number for the first page in this pool.
	// each free bitmap entry i corresponds to frame (startFrame + i).
	startFrame pmm.Frame

	// endFrame is one past the last frame in the pool (half-open, like
	// pmap.Entry).
	endFrame pmm.Frame

	// freeCount tracks the available pages in this pool so AllocFrame can
	// skip fully allocated pools without scanning their bitmap.
	freeCount uint32

	// freeBitmap tracks used/free pages in the pool; bit i (big-endian
	// within each uint64 word, matching the prior encoding) is set
	// when frame (startFrame+i) is reserved.
	freeBitmap []uint64
}

// BitmapAllocator implements a physical frame allocator that tracks frame
// reservations across the available memory pools using bitmaps (grounded
// on the prior kernel/mem/pmm/allocator.BitmapAllocator). Unlike
// BootMemAllocator it supports freeing.
type BitmapAllocator struct {
	totalPages    uint32
	reservedPages uint32
	pools         []framePool
}

// Init builds one pool per KindFree region of m, reserving the physical
// frames needed to hold the pool table and bitmaps via boot (the same
// early allocator used to bootstrap the kernel before this allocator
// exists), then marks every frame boot has already handed out as
// reserved so the two allocators never double-allocate a frame.
//
// This replaces the prior setupPoolBitmaps, which scanned a multiboot
// memory map and reserved its bookkeeping storage via vmm.EarlyReserveRegion
// + vmm.Map (installing page table entries for a temporary VM region): this
// kernel's direct physical map (kernel/mem/vmm.PhysBytes) makes any
// physical frame addressable without installing page table entries first,
// so the reservation collapses to "allocate N frames, view them as bytes".
func (alloc *BitmapAllocator) Init(m *pmap.Map, boot *BootMemAllocator) *kernel.Error {
	pageSizeMinus1 := uint64(mem.PageSize) - 1

	type span struct{ start, end pmm.Frame }
	var spans []span

	var requiredBitmapBytes uint64
	for _, e := range m.Regions() {
		if e.Kind != pmap.KindFree {
			continue
		}
		startFrame := pmm.Frame(((e.Start + pageSizeMinus1) &^ pageSizeMinus1) >> mem.PageShift)
		endFrame := pmm.Frame((e.End &^ pageSizeMinus1) >> mem.PageShift)
		if endFrame <= startFrame {
			continue
		}
		spans = append(spans, span{startFrame, endFrame})
		pageCount := uint32(endFrame - startFrame)
		alloc.totalPages += pageCount
		requiredBitmapBytes += uint64((pageCount+63)&^63) >> 3
	}

	sizeofPool := uint64(unsafe.Sizeof(framePool{}))
	requiredBytes := (uint64(len(spans))*sizeofPool + requiredBitmapBytes + pageSizeMinus1) &^ pageSizeMinus1
	requiredPages := requiredBytes >> mem.PageShift
	if requiredPages == 0 {
		requiredPages = 1
	}

	baseAddr, err := alloc.reserveContiguous(boot, requiredPages)
	if err != nil {
		return err
	}

	backing := vmm.PhysBytes(baseAddr, int(requiredBytes))
	for i := range backing {
		backing[i] = 0
	}

	poolBytes := int(uint64(len(spans)) * sizeofPool)
	alloc.pools = unsafe.Slice((*framePool)(unsafe.Pointer(&backing[0])), len(spans))

	bitmapOffset := poolBytes
	for i, s := range spans {
		pageCount := uint32(s.end - s.start)
		words := int((pageCount + 63) &^ 63 >> 6)

		alloc.pools[i].startFrame = s.start
		alloc.pools[i].endFrame = s.end
		alloc.pools[i].freeCount = pageCount
		if words > 0 {
			alloc.pools[i].freeBitmap = unsafe.Slice((*uint64)(unsafe.Pointer(&backing[bitmapOffset])), words)
		}
		bitmapOffset += words * 8
	}

	alloc.reserveRange(pmm.Frame(baseAddr>>mem.PageShift), pmm.Frame((baseAddr>>mem.PageShift))+pmm.Frame(requiredPages))
	alloc.reserveBootAllocations(boot)

	alloc.printStats()
	return nil
}

// reserveContiguous allocates n frames from boot, one at a time, and
// verifies they form a single ascending run so they can be treated as one
// contiguous byte range; BootMemAllocator's bump-pointer design makes this
// the common case as long as n is small relative to the current free
// region, which holds for the pool/bitmap bookkeeping allocated here.
func (alloc *BitmapAllocator) reserveContiguous(boot *BootMemAllocator, n uint64) (uint64, *kernel.Error) {
	first, err := boot.AllocFrame(0)
	if err != nil {
		return 0, err
	}
	prev := first
	for i := uint64(1); i < n; i++ {
		next, err := boot.AllocFrame(0)
		if err != nil {
			return 0, err
		}
		if next != prev+1 {
			return 0, errBitmapAllocDiscontinous
		}
		prev = next
	}
	return uint64(first.Address()), nil
}

// reserveBootAllocations marks every frame boot has handed out (including
// the ones reserveContiguous just took) as reserved in this allocator's
// bitmaps, matching the prior reserveEarlyAllocatorFrames: BootMemAllocator
// itself cannot be rewound without re-walking its memory map, so this
// allocator rebuilds the set of already-allocated frames by re-running the
// free-region scan up to boot's own bump cursor.
func (alloc *BitmapAllocator) reserveBootAllocations(boot *BootMemAllocator) {
	for _, p := range alloc.pools {
		for f := p.startFrame; f < p.endFrame && int64(f) <= boot.lastAllocIndex; f++ {
			alloc.markFrame(alloc.poolForFrame(f), f, markReserved)
		}
	}
}

func (alloc *BitmapAllocator) reserveRange(start, end pmm.Frame) {
	for f := start; f < end; f++ {
		if idx := alloc.poolForFrame(f); idx >= 0 {
			alloc.markFrame(idx, f, markReserved)
		}
	}
}

// markFrame updates the reservation flag for the bitmap entry that
// corresponds to the supplied frame.
func (alloc *BitmapAllocator) markFrame(poolIndex int, frame pmm.Frame, flag markAs) {
	if poolIndex < 0 || frame < alloc.pools[poolIndex].startFrame || frame >= alloc.pools[poolIndex].endFrame {
		return
	}

	// The offset in the block is given by: frame % 64. The bitmap uses a
	// big-endian representation so the bit for offset o lives at index
	// 63-o within its uint64 word.
	relFrame := uint64(frame - alloc.pools[poolIndex].startFrame)
	block := relFrame >> 6
	mask := uint64(1) << (63 - (relFrame - block<<6))

	already := alloc.pools[poolIndex].freeBitmap[block]&mask != 0
	switch flag {
	case markFree:
		if already {
			alloc.pools[poolIndex].freeBitmap[block] &^= mask
			alloc.pools[poolIndex].freeCount++
			alloc.reservedPages--
		}
	case markReserved:
		if !already {
			alloc.pools[poolIndex].freeBitmap[block] |= mask
			alloc.pools[poolIndex].freeCount--
			alloc.reservedPages++
		}
	}
}

// poolForFrame returns the index of the pool that contains frame or -1 if
// frame is not covered by any managed pool (e.g. it points to a reserved
// memory region).
func (alloc *BitmapAllocator) poolForFrame(frame pmm.Frame) int {
	for poolIndex, pool := range alloc.pools {
		if frame >= pool.startFrame && frame < pool.endFrame {
			return poolIndex
		}
	}
	return -1
}

// AllocFrame returns the lowest free frame of the first pool, in pool
// order, that has any free frame; pools whose freeCount is zero are skipped
// without scanning their bitmap.
func (alloc *BitmapAllocator) AllocFrame() (pmm.Frame, *kernel.Error) {
	for poolIndex := range alloc.pools {
		pool := &alloc.pools[poolIndex]
		if pool.freeCount == 0 {
			continue
		}
		for block, word := range pool.freeBitmap {
			if word == ^uint64(0) {
				continue
			}
			for bit := 0; bit < 64; bit++ {
				mask := uint64(1) << (63 - bit)
				if word&mask != 0 {
					continue
				}
				frame := pool.startFrame + pmm.Frame(uint64(block)<<6+uint64(bit))
				if frame >= pool.endFrame {
					continue
				}
				alloc.markFrame(poolIndex, frame, markReserved)
				return frame, nil
			}
		}
	}
	return pmm.InvalidFrame, errBitmapAllocOutOfMemory
}

// FreeFrame releases a previously allocated frame back to its pool.
func (alloc *BitmapAllocator) FreeFrame(frame pmm.Frame) *kernel.Error {
	idx := alloc.poolForFrame(frame)
	if idx < 0 {
		return errBitmapAllocNotReserved
	}
	alloc.markFrame(idx, frame, markFree)
	return nil
}

// AllocFrameAddr adapts AllocFrame to the kernel/mem/vmm.FrameAllocatorFn
// contract.
func (alloc *BitmapAllocator) AllocFrameAddr() (uint64, *kernel.Error) {
	frame, err := alloc.AllocFrame()
	if err != nil {
		return 0, err
	}
	return uint64(frame.Address()), nil
}

func (alloc *BitmapAllocator) printStats() {
	early.Printf(
		"[bitmap_alloc] page stats: free: %d/%d (%d reserved)\n",
		alloc.totalPages-alloc.reservedPages,
		alloc.totalPages,
		alloc.reservedPages,
	)
}
