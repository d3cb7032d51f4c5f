package stage3

import (
	"fmt"
	"unsafe"

	"github.com/corigan01/quantumos/boot/stage3/pagetable"
	"github.com/corigan01/quantumos/internal/bootrecord"
)

const (
	page2M          = 1 << 21
	pagesPerGiB2M   = (1 << 30) / page2M
	defaultIdentity = 1 // GiB
)

// Config names the fixed layout choices stage-3 makes when building the
// kernel's higher-half address space: where the kernel is linked to run
// (KernelVirt), how much low physical memory must stay identity mapped so
// stage-3's own identity-mapped code keeps executing across the CR3 load,
// and where the page tables themselves are built.
type Config struct {
	KernelVirt  uint64
	IdentityGiB int
	TableBase   uint64
}

// PhysRegion is a physically contiguous, already-populated range of memory
// (the kernel's loaded executable image, its boot stack, its initial heap)
// that Assemble needs mapped into the higher half.
type PhysRegion struct {
	Addr uint64
	Len  uint64
}

func pagesFor(length uint64) uint64 {
	if length == 0 {
		return 0
	}
	return (length-1)/page2M + 1
}

// Assemble builds the page tables stage-3 installs before jumping to the
// kernel, and the KernelBootHeader the kernel receives in its first
// argument register.
//
// It identity maps cfg.IdentityGiB GiB of low physical memory — so
// stage-3's own code, still executing from its identity-mapped load
// address, keeps working across the CR3 load — and maps the kernel's
// executable image, stack, and heap into the higher half starting at
// cfg.KernelVirt, leaving an unmapped 2 MiB guard page between each region.
// This whole layout (identity-mapped low GiB, then exe/guard/stack/guard/
// heap packed upward from a single higher-half base) is grounded directly
// on original_source's bootloader/stage-64bit/src/paging.rs
// build_page_tables, which computes exe_pages/stack_pages/init_pages the
// same way and leaves the same one-page gaps so a stack overflow or an
// executable-image overrun faults instead of silently corrupting the next
// region.
func Assemble(cfg Config, exe, stack, heap PhysRegion, handoff *bootrecord.Stage16To32, kernelELF bootrecord.ByteRange) (*bootrecord.KernelBootHeader, *pagetable.Builder, error) {
	if cfg.KernelVirt%page2M != 0 {
		return nil, nil, fmt.Errorf("stage3: KernelVirt %#x is not 2 MiB aligned", cfg.KernelVirt)
	}
	for name, r := range map[string]PhysRegion{"exe": exe, "stack": stack, "heap": heap} {
		if r.Len > 0 && r.Addr%page2M != 0 {
			return nil, nil, fmt.Errorf("stage3: %s region at %#x is not 2 MiB aligned", name, r.Addr)
		}
	}

	b := pagetable.NewBuilder(cfg.TableBase)

	idGiB := cfg.IdentityGiB
	if idGiB <= 0 {
		idGiB = defaultIdentity
	}
	if err := b.IdentityMap2M(0, idGiB*pagesPerGiB2M, true, false); err != nil {
		return nil, nil, fmt.Errorf("stage3: identity map: %w", err)
	}

	exePages := pagesFor(exe.Len)
	stackPages := pagesFor(stack.Len)
	heapPages := pagesFor(heap.Len)

	exeVirt := cfg.KernelVirt
	if exePages > 0 {
		if err := b.MapHigherHalf2M(exeVirt, exe.Addr, int(exePages), true, false); err != nil {
			return nil, nil, fmt.Errorf("stage3: map kernel executable: %w", err)
		}
	}

	stackVirt := exeVirt + (exePages+1)*page2M
	if stackPages > 0 {
		if err := b.MapHigherHalf2M(stackVirt, stack.Addr, int(stackPages), true, true); err != nil {
			return nil, nil, fmt.Errorf("stage3: map kernel stack: %w", err)
		}
	}

	heapVirt := stackVirt + (stackPages+1)*page2M
	if heapPages > 0 {
		if err := b.MapHigherHalf2M(heapVirt, heap.Addr, int(heapPages), true, true); err != nil {
			return nil, nil, fmt.Errorf("stage3: map kernel heap: %w", err)
		}
	}

	var physMemMap uintptr
	if handoff != nil && handoff.MemMapLen > 0 {
		physMemMap = uintptr(unsafe.Pointer(&handoff.MemMap[0]))
	}

	hdr := &bootrecord.KernelBootHeader{
		PhysMemMap:      physMemMap,
		KernelELF:       kernelELF,
		KernelExecVirt:  bootrecord.ByteRange{Addr: uintptr(exeVirt), Len: uintptr(exe.Len)},
		KernelStackVirt: bootrecord.ByteRange{Addr: uintptr(stackVirt), Len: uintptr(stack.Len)},
		KernelHeapVirt:  bootrecord.ByteRange{Addr: uintptr(heapVirt), Len: uintptr(heap.Len)},
	}
	if handoff != nil {
		hdr.VideoMode = handoff.VideoMode
		hdr.HasVideoMode = handoff.HasVideoMode
	}

	return hdr, b, nil
}
