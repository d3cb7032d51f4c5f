// Package page implements the typed page-id model from the design:
// PhysPage[S] and VirtPage[S] where S is one of the three page sizes the
// amd64 MMU supports (4 KiB, 2 MiB, 1 GiB). It generalizes the prior
// untyped pmm.Frame (kernel/mem/pmm/frame.go) and vmm.Page
// (kernel/mem/vmm/page.go) — both of which are "index * PageSize" newtypes
// over a single fixed page size — into one generic type parameterized by
// size, matching the design's PhysPage<S>/VirtPage<S>.
package page

import "github.com/corigan01/quantumos/kernel/mem/addr"

// Size4K, Size2M and Size1G are the three leaf granularities named in
// the design ("VmRegion ... Iterators exist for 4 KiB, 2 MiB, and 1 GiB
// granularities").
type (
	Size4K = addr.Aligned4K
	Size2M = addr.Aligned2M
	Size1G = addr.Aligned1G
)

// PhysPage identifies a physical page of size S by its page id: id*S.Bytes()
// is its base address.
type PhysPage[S addr.Alignment] struct {
	id uint64
}

// NewPhysPage constructs a page from a page id (not a byte address).
func NewPhysPage[S addr.Alignment](id uint64) PhysPage[S] {
	return PhysPage[S]{id: id}
}

// ID returns the page index.
func (p PhysPage[S]) ID() uint64 { return p.id }

// Address returns the page's base physical address, always aligned to S by
// construction (property law 2: `id * S.bytes`).
func (p PhysPage[S]) Address() addr.PhysAddr[S] {
	a, err := addr.NewPhysAddr[S](p.id * addr.SizeOf[S]())
	if err != nil {
		// id*size is a multiple of size by construction; this can only
		// fail if SizeOf[S]() is not a power of two, which never happens
		// for the marker types this package exports.
		panic(err)
	}
	return a
}

// PhysPageContaining returns the page of size S that contains the given
// physical address = new(a.addr() /
// S.bytes)`).
func PhysPageContaining[S addr.Alignment](a addr.PhysAddr[addr.NotAligned]) PhysPage[S] {
	return PhysPage[S]{id: a.Addr() / addr.SizeOf[S]()}
}

// VirtPage identifies a virtual page of size S by its page id.
type VirtPage[S addr.Alignment] struct {
	id uint64
}

// NewVirtPage constructs a page from a page id (not a byte address).
func NewVirtPage[S addr.Alignment](id uint64) VirtPage[S] {
	return VirtPage[S]{id: id}
}

// ID returns the page index.
func (p VirtPage[S]) ID() uint64 { return p.id }

// Address returns the page's base virtual address.
func (p VirtPage[S]) Address() addr.VirtAddr[S] {
	a, err := addr.NewVirtAddr[S](p.id * addr.SizeOf[S]())
	if err != nil {
		panic(err)
	}
	return a
}

// VirtPageContaining returns the page of size S that contains the given
// virtual address, rounding down to the containing page if addr is not
// itself page-aligned.
func VirtPageContaining[S addr.Alignment](a addr.VirtAddr[addr.NotAligned]) VirtPage[S] {
	return VirtPage[S]{id: a.Addr() / addr.SizeOf[S]()}
}
