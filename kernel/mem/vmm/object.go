package vmm

import (
	"unsafe"

	"github.com/corigan01/quantumos/kernel"
	"github.com/corigan01/quantumos/kernel/mem/addr"
	"github.com/corigan01/quantumos/kernel/mem/page"
)

// VmRegion is a closed range [StartPage, EndPage] of 4 KiB page indices.
type VmRegion struct {
	StartPage uint64
	EndPage   uint64
}

// Len4K returns the number of 4 KiB pages covered by the region.
func (r VmRegion) Len4K() uint64 { return r.EndPage - r.StartPage + 1 }

// strideFor returns the largest aligned page count (in units of 4 KiB
// pages) that fits at the given 4K-page-aligned head, for one of the three
// granularities the design names: 4 KiB (1 page), 2 MiB (512 pages), or
// 1 GiB (512*512 pages).
func strideFor(headPage, granularityPages, remainingPages uint64) uint64 {
	if headPage%granularityPages == 0 && remainingPages >= granularityPages {
		return granularityPages
	}
	return 1
}

// Iterate4K walks the region one 4 KiB page at a time, calling fn(page)
// until fn returns false or the region is exhausted.
func (r VmRegion) Iterate4K(fn func(page.PhysPage[addr.Aligned4K]) bool) {
	for p := r.StartPage; p <= r.EndPage; p++ {
		if !fn(page.NewPhysPage[addr.Aligned4K](p)) {
			return
		}
	}
}

// IterateStride walks the region returning the largest aligned stride
// (4 KiB, 2 MiB, or 1 GiB worth of 4K pages) that fits at the current
// head.1. stepPages4K is one of {1, 512, 512*512}.
func (r VmRegion) IterateStride(stepPages4K uint64, fn func(startPage4K, count4K uint64) bool) {
	cur := r.StartPage
	for cur <= r.EndPage {
		remaining := r.EndPage - cur + 1
		stride := strideFor(cur, stepPages4K, remaining)
		if !fn(cur, stride) {
			return
		}
		cur += stride
	}
}

// Backing supplies page contents on demand for a VmObject that is not
// eagerly populated.
type Backing interface {
	// Fill writes one page's worth of content for the page at the given
	// offset (in 4K pages) from the start of the object's region.
	Fill(offsetPages uint64, dst []byte) *kernel.Error
}

// VmObject is a named, permissioned mapping of a VmRegion, optionally
// backed by a Backing that supplies page content lazily.
type VmObject struct {
	Region  VmRegion
	Perm    Permission
	Name    string
	Backing Backing

	// Eager, if true, requests that every page in Region be mapped and
	// populated immediately by MapAllNow rather than on first fault.
	Eager bool
}

// Contains reports whether the 4K page index p lies within the object's
// region.
func (o *VmObject) Contains(p uint64) bool {
	return p >= o.Region.StartPage && p <= o.Region.EndPage
}

// VmProcess owns a set of VmObject entries mapped through a single
// reference-counted page table root.
type VmProcess struct {
	Table   Table
	refs    *int
	Objects []*VmObject
}

// NewVmProcess creates a process with a fresh page table.
func NewVmProcess(alloc FrameAllocatorFn) (*VmProcess, *kernel.Error) {
	t, err := NewTable(alloc)
	if err != nil {
		return nil, err
	}
	one := 1
	return &VmProcess{Table: t, refs: &one}, nil
}

// Fork increments the shared table's reference count and returns a new
// VmProcess handle pointing at the same SharedTable, matching the design's
// "reference-counted SharedTable page-table root".
func (p *VmProcess) Fork() *VmProcess {
	*p.refs++
	return &VmProcess{Table: p.Table, refs: p.refs, Objects: append([]*VmObject(nil), p.Objects...)}
}

// Release decrements the shared table's reference count, returning true if
// this was the last reference (the table's frames may now be freed).
func (p *VmProcess) Release() bool {
	*p.refs--
	return *p.refs == 0
}

// AddObject attaches obj to the process and, if Eager, installs every page
// immediately via MapAllNow.
func (p *VmProcess) AddObject(obj *VmObject, alloc FrameAllocatorFn) *kernel.Error {
	p.Objects = append(p.Objects, obj)
	if obj.Eager {
		return p.MapAllNow(obj, alloc)
	}
	return nil
}

// MapAllNow pre-populates every page in obj's region, requesting content
// from its Backing up front.
func (p *VmProcess) MapAllNow(obj *VmObject, alloc FrameAllocatorFn) *kernel.Error {
	var outerErr *kernel.Error
	obj.Region.Iterate4K(func(pp page.PhysPage[addr.Aligned4K]) bool {
		frameAddr, err := alloc()
		if err != nil {
			outerErr = err
			return false
		}
		frame := page.NewPhysPage[addr.Aligned4K](frameAddr / addr.SizeOf[addr.Aligned4K]())

		if obj.Backing != nil {
			dst := backingScratch[:]
			offset := pp.ID() - obj.Region.StartPage
			if err := obj.Backing.Fill(offset, dst); err != nil {
				outerErr = err
				return false
			}
			copyIntoFrame(frameAddr, dst)
		}

		vpage := page.NewVirtPage[addr.Aligned4K](pp.ID())
		if err := p.Table.Map4KPage(vpage, frame, obj.Perm, alloc); err != nil {
			outerErr = err
			return false
		}
		return true
	})
	return outerErr
}

// backingScratch is a page-sized scratch buffer used while eagerly filling
// backed objects; a single buffer suffices since MapAllNow runs
// single-threaded during process setup.
var backingScratch [4096]byte

// copyIntoFrame is overridden in tests; in the kernel it copies src into
// the physical frame at addr via the direct physical map.
var copyIntoFrame = defaultCopyIntoFrame

func defaultCopyIntoFrame(frameAddr uint64, src []byte) {
	dst := (*[4096]byte)(unsafe.Pointer(tableAtFn(frameAddr)))
	copy(dst[:], src)
}
