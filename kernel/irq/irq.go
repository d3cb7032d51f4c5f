// Package irq implements the kernel execution substrate's interrupt
// dispatch: the common trampoline's InterruptInfo, the
// classification of the 256 IDT vectors into three trampoline shapes, and
// the per-IRQ handler table with PIC EOI. It is grounded on the prior
// src/gopheros/kernel/irq package (Regs/Frame register-snapshot types,
// HandleException/HandleExceptionWithCode registration API) and the
// top-level kernel/irq contract that kernel/mem/vmm.go already assumes
// (irq.HandleExceptionWithCode, irq.PageFaultException, irq.GPFException,
// irq.Frame, irq.Regs) but which the retrieved snapshot never actually
// defines — this package supplies that missing implementation.
package irq

import (
	"github.com/corigan01/quantumos/kernel"
	"github.com/corigan01/quantumos/kernel/idt"
	"github.com/corigan01/quantumos/kernel/kfmt/early"
)

// Regs is a snapshot of the general-purpose registers saved by the common
// trampoline before it calls into Go.
type Regs struct {
	RAX, RBX, RCX, RDX uint64
	RSI, RDI, RBP      uint64
	R8, R9, R10, R11   uint64
	R12, R13, R14, R15 uint64
}

// Print dumps the register snapshot using the alloc-free early formatter.
func (r *Regs) Print() {
	early.Printf("RAX = %16x RBX = %16x\n", r.RAX, r.RBX)
	early.Printf("RCX = %16x RDX = %16x\n", r.RCX, r.RDX)
	early.Printf("RSI = %16x RDI = %16x\n", r.RSI, r.RDI)
	early.Printf("RBP = %16x\n", r.RBP)
	early.Printf("R8  = %16x R9  = %16x\n", r.R8, r.R9)
	early.Printf("R10 = %16x R11 = %16x\n", r.R10, r.R11)
	early.Printf("R12 = %16x R13 = %16x\n", r.R12, r.R13)
	early.Printf("R14 = %16x R15 = %16x\n", r.R14, r.R15)
}

// Frame is the hardware-pushed exception frame.
type Frame struct {
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// Print dumps the exception frame.
func (f *Frame) Print() {
	early.Printf("RIP = %16x CS  = %16x\n", f.RIP, f.CS)
	early.Printf("RSP = %16x SS  = %16x\n", f.RSP, f.SS)
	early.Printf("RFL = %16x\n", f.RFlags)
}

// Vector is an IDT vector number (0..255).
type Vector uint8

const (
	DivideByZero  Vector = 0
	Debug         Vector = 1
	NMI           Vector = 2
	Breakpoint    Vector = 3
	Overflow      Vector = 4
	BoundRange    Vector = 5
	InvalidOpcode Vector = 6
	DeviceNA      Vector = 7
	DoubleFault   Vector = 8
	InvalidTSS    Vector = 10
	SegmentNP     Vector = 11
	StackFault    Vector = 12
	GPFException  Vector = 13
	PageFaultException Vector = 14
	AlignmentCheck     Vector = 17
	MachineCheck       Vector = 18
	SIMDFP             Vector = 19
	Virtualization     Vector = 20
	ControlProtection  Vector = 21
	Security           Vector = 30

	// IRQBase is the vector the PIC is remapped to; IRQ n arrives as
	// vector IRQBase+n.
	IRQBase Vector = 0x20
)

// errorCodeVectors lists the vectors whose hardware trampoline receives an
// additional error-code argument.
var errorCodeVectors = map[Vector]bool{
	8: true, 10: true, 11: true, 12: true, 13: true, 14: true,
	17: true, 21: true, 29: true, 30: true,
}

// HasErrorCode reports whether v's hardware trampoline pushes an error
// code onto the stack.
func HasErrorCode(v Vector) bool { return errorCodeVectors[v] }

// abortVectors are the vectors the design classifies as "Abort-class
// exceptions": unrecoverable, always panics.
var abortVectors = map[Vector]bool{
	DoubleFault: true, MachineCheck: true, Security: true,
}

// GateKind reports which idt.GateKind a given vector should install: every
// exception and IRQ vector uses a 64-bit interrupt gate (IF cleared on
// entry.5 "Disables interrupts on entry (enforced by the
// hardware gate type)").
func GateKind(Vector) idt.GateKind { return idt.GateInterrupt64 }

// ExceptionHandler handles an exception that carries no hardware error
// code.
type ExceptionHandler func(*Frame, *Regs)

// ExceptionHandlerWithCode handles an exception that carries a hardware
// error code.
type ExceptionHandlerWithCode func(code uint64, frame *Frame, regs *Regs)

// IRQHandler handles a hardware interrupt request (vector - IRQBase).
type IRQHandler func(regs *Regs)

var (
	exceptionHandlers         [256]ExceptionHandler
	exceptionHandlersWithCode [256]ExceptionHandlerWithCode
	irqHandlers               [16]IRQHandler

	panicFn  = panicVector
	eoiFn    = sendEOI
)

// HandleException registers handler for vector v (no error code).
func HandleException(v Vector, handler ExceptionHandler) {
	exceptionHandlers[v] = handler
}

// HandleExceptionWithCode registers handler for vector v (with error
// code).
func HandleExceptionWithCode(v Vector, handler ExceptionHandlerWithCode) {
	exceptionHandlersWithCode[v] = handler
}

// HandleIRQ registers handler for IRQ line n (0..15).
func HandleIRQ(n uint8, handler IRQHandler) {
	irqHandlers[n&0xf] = handler
}

// InterruptInfo is what the common trampoline builds before dispatching
// into Go.
type InterruptInfo struct {
	Vector    Vector
	Frame     *Frame
	Regs      *Regs
	ErrorCode uint64
	GateKind  idt.GateKind
}

// Dispatch implements the common trampoline's handler.
func Dispatch(info InterruptInfo) {
	switch {
	case info.Vector >= IRQBase && info.Vector-IRQBase <= 16:
		irqNum := uint8(info.Vector - IRQBase)
		eoiFn(irqNum)
		if h := irqHandlers[irqNum]; h != nil {
			h(info.Regs)
		}

	case info.Vector == PageFaultException:
		if h := exceptionHandlersWithCode[info.Vector]; h != nil {
			h(info.ErrorCode, info.Frame, info.Regs)
		}

	case info.Vector == Debug:
		early.Printf("[irq] debug trap\n")
		info.Frame.Print()

	case abortVectors[info.Vector]:
		panicFn(info.Vector, info.Frame, info.Regs)

	default:
		if HasErrorCode(info.Vector) {
			if h := exceptionHandlersWithCode[info.Vector]; h != nil {
				h(info.ErrorCode, info.Frame, info.Regs)
				return
			}
		} else if h := exceptionHandlers[info.Vector]; h != nil {
			h(info.Frame, info.Regs)
			return
		}
		panicFn(info.Vector, info.Frame, info.Regs)
	}
}

var errUnhandledVector = &kernel.Error{Module: "irq", Message: "unhandled interrupt vector"}

func panicVector(v Vector, frame *Frame, regs *Regs) {
	early.Printf("\nunhandled interrupt vector %d\n", v)
	regs.Print()
	frame.Print()
	kernel.Panic(errUnhandledVector)
}

// sendEOI signals end-of-interrupt to the 8259 PIC for IRQ n. Implemented
// in assembly (OUT to ports 0x20/0xA0); a black-box contract like
// kernel/cpu's naked functions.
func sendEOI(irqNum uint8)
