// Package addr implements the typed physical/virtual address model from
// the design: PhysAddr[A] and VirtAddr[A] where A statically
// describes whether the address carries an alignment guarantee. It is
// grounded on the untyped uintptr arithmetic the prior implementation performs inline in
// kernel/mem/vmm/pdt.go and kernel/mem/mem.go, generalized here into a
// reusable, independently testable type so every caller that needs "this
// address is 4K/2M/1G aligned" gets a compile-time-checked guarantee
// instead of a convention.
//
// Go has no const generics, so the handful of alignments the kernel
// actually needs (4 KiB, 2 MiB, 1 GiB pages, plus "no guarantee") are
// modeled as zero-size marker types implementing Alignment, matching
// the design PhysAddr<A>/VirtAddr<A> where A ∈ {NotAligned,
// AlignedTo<N>}.
package addr

import "github.com/corigan01/quantumos/kernel"

// Alignment is implemented by the zero-size marker types that parameterize
// PhysAddr and VirtAddr.
type Alignment interface {
	// Bytes returns the alignment requirement in bytes. A value of 1
	// means "no requirement" (NotAligned).
	Bytes() uint64
}

// NotAligned carries no alignment guarantee; every raw address converts to
// it unconditionally.
type NotAligned struct{}

// Bytes implements Alignment.
func (NotAligned) Bytes() uint64 { return 1 }

// Aligned4K guarantees 4 KiB alignment.
type Aligned4K struct{}

// Bytes implements Alignment.
func (Aligned4K) Bytes() uint64 { return 4096 }

// Aligned2M guarantees 2 MiB alignment.
type Aligned2M struct{}

// Bytes implements Alignment.
func (Aligned2M) Bytes() uint64 { return 2 * 1024 * 1024 }

// Aligned1G guarantees 1 GiB alignment.
type Aligned1G struct{}

// Bytes implements Alignment.
func (Aligned1G) Bytes() uint64 { return 1024 * 1024 * 1024 }

// AlignmentError is returned when a raw address fails to satisfy the
// alignment N demands.
type AlignmentError struct {
	RequiredBytes uint64
	Addr          uint64
}

// Error implements the error interface.
func (e *AlignmentError) Error() string {
	return "address not aligned to required boundary"
}

func alignmentOf[A Alignment]() uint64 {
	var a A
	return a.Bytes()
}

// SizeOf returns the alignment/size in bytes carried by marker type A. It
// is exported so other packages (e.g. kernel/mem/page) can compute sizes
// for the same marker types used here without duplicating the constant
// table.
func SizeOf[A Alignment]() uint64 {
	return alignmentOf[A]()
}

func checkAlign[A Alignment](raw uint64) *AlignmentError {
	n := alignmentOf[A]()
	if n > 1 && raw&(n-1) != 0 {
		return &AlignmentError{RequiredBytes: n, Addr: raw}
	}
	return nil
}

// PhysAddr is a physical address, statically tagged with the alignment
// guarantee A.
type PhysAddr[A Alignment] struct {
	raw uint64
}

// NewPhysAddr builds a PhysAddr[A] from a raw value, failing if raw does
// not satisfy A's alignment requirement.
func NewPhysAddr[A Alignment](raw uint64) (PhysAddr[A], *AlignmentError) {
	if err := checkAlign[A](raw); err != nil {
		return PhysAddr[A]{}, err
	}
	return PhysAddr[A]{raw: raw}, nil
}

// Addr returns the raw address value.
func (p PhysAddr[A]) Addr() uint64 { return p.raw }

// Loosen discards the alignment guarantee, always succeeding.
func (p PhysAddr[A]) Loosen() PhysAddr[NotAligned] {
	return PhysAddr[NotAligned]{raw: p.raw}
}

// RetightenPhys re-tags p with a stricter alignment guarantee B, checked at
// runtime.
func RetightenPhys[B Alignment, A Alignment](p PhysAddr[A]) (PhysAddr[B], *AlignmentError) {
	return NewPhysAddr[B](p.raw)
}

// AlignUpTo returns the smallest address >= p that is a multiple of n (n
// must be a power of two). The result carries no static alignment
// guarantee since n is a runtime value.
func (p PhysAddr[A]) AlignUpTo(n uint64) PhysAddr[NotAligned] {
	return PhysAddr[NotAligned]{raw: alignUp(p.raw, n)}
}

// AlignDownTo returns the largest address <= p that is a multiple of n.
func (p PhysAddr[A]) AlignDownTo(n uint64) PhysAddr[NotAligned] {
	return PhysAddr[NotAligned]{raw: alignDown(p.raw, n)}
}

// VirtAddr is a virtual address, statically tagged with the alignment
// guarantee A. Its API mirrors PhysAddr exactly.
type VirtAddr[A Alignment] struct {
	raw uint64
}

// NewVirtAddr builds a VirtAddr[A] from a raw value, failing if raw does
// not satisfy A's alignment requirement.
func NewVirtAddr[A Alignment](raw uint64) (VirtAddr[A], *AlignmentError) {
	if err := checkAlign[A](raw); err != nil {
		return VirtAddr[A]{}, err
	}
	return VirtAddr[A]{raw: raw}, nil
}

// Addr returns the raw address value.
func (v VirtAddr[A]) Addr() uint64 { return v.raw }

// Loosen discards the alignment guarantee, always succeeding.
func (v VirtAddr[A]) Loosen() VirtAddr[NotAligned] {
	return VirtAddr[NotAligned]{raw: v.raw}
}

// RetightenVirt re-tags v with a stricter alignment guarantee B, checked at
// runtime.
func RetightenVirt[B Alignment, A Alignment](v VirtAddr[A]) (VirtAddr[B], *AlignmentError) {
	return NewVirtAddr[B](v.raw)
}

// AlignUpTo returns the smallest address >= v that is a multiple of n.
func (v VirtAddr[A]) AlignUpTo(n uint64) VirtAddr[NotAligned] {
	return VirtAddr[NotAligned]{raw: alignUp(v.raw, n)}
}

// AlignDownTo returns the largest address <= v that is a multiple of n.
func (v VirtAddr[A]) AlignDownTo(n uint64) VirtAddr[NotAligned] {
	return VirtAddr[NotAligned]{raw: alignDown(v.raw, n)}
}

func alignUp(addr, n uint64) uint64 {
	return (addr + n - 1) &^ (n - 1)
}

func alignDown(addr, n uint64) uint64 {
	return addr &^ (n - 1)
}

// errInvalidAlignment is retained for callers that need a *kernel.Error
// rather than the typed AlignmentError (e.g. when surfacing through an API
// that already standardized on *kernel.Error).
var errInvalidAlignment = &kernel.Error{Module: "addr", Message: "alignment must be a power of two"}

// RequirePow2 returns errInvalidAlignment if n is not a power of two.
func RequirePow2(n uint64) *kernel.Error {
	if n == 0 || n&(n-1) != 0 {
		return errInvalidAlignment
	}
	return nil
}
