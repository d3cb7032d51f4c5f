// Package cpu provides the architecture-specific primitives that the rest of
// the kernel treats as opaque operations: interrupt masking, TLB
// invalidation, page-directory switches and register reads that have no
// representation in portable Go. Every function below is a naked entry
// point with no Go body; its implementation lives in the matching .s file
// and is documented here as a black-box contract (see DESIGN.md and
// the design "Inline assembly and naked entry points").
package cpu

// EnableInterrupts sets RFLAGS.IF, allowing maskable interrupts to be
// delivered. Contract: on exit RFLAGS.IF = 1; all other registers
// preserved.
func EnableInterrupts()

// DisableInterrupts clears RFLAGS.IF. Contract: on exit RFLAGS.IF = 0; all
// registers preserved.
func DisableInterrupts()

// InterruptsEnabled reports whether RFLAGS.IF is currently set. Contract:
// preserves all registers and flags.
func InterruptsEnabled() bool

// Halt executes HLT in a loop. Contract: never returns.
func Halt()

// FlushTLBEntry invalidates the TLB entry for the page containing virtAddr
// via INVLPG. Contract: on exit, any cached translation for virtAddr is
// discarded; all registers preserved.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT loads pdtPhysAddr into CR3, flushing the entire TLB except
// global-page entries. Contract: on exit CR3 == pdtPhysAddr.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address currently loaded in CR3.
func ActivePDT() uintptr

// ReadCR2 returns the faulting linear address recorded by the CPU for the
// most recent page fault. Only valid when called from a page-fault handler
// before any further faulting memory access.
func ReadCR2() uintptr

// WriteMSR writes val to the model-specific register numbered msr.
func WriteMSR(msr uint32, val uint64)

// ReadMSR reads the model-specific register numbered msr.
func ReadMSR(msr uint32) uint64
