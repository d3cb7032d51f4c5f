// Package process implements the ProcessContext layout from the design
// and the SYSCALL-trampoline/IRETQ contract from the design. It is
// grounded on the prior src/gopheros/kernel/gate.Registers (the same
// "IRETQ frame with GPRs stacked below it" shape) generalized to the
// explicit userspace entry/exit contract this spec names: EnterUserspace
// and the "atomically record userspace state" flag it requires.
package process

import "sync/atomic"

// Context is the exact layout an IRETQ frame expects, with GPRs below it
// on the stack. Field order
// matches the trampoline's push order (step 4: rax..r15 pushed, placed
// below the IRETQ frame).
type Context struct {
	// GPRs, pushed in rax..r15 order by the SYSCALL trampoline and restored in reverse on return.
	RAX, RBX, RCX, RDX uint64
	RSI, RDI, RBP      uint64
	R8, R9, R10, R11   uint64
	R12, R13, R14, R15 uint64

	// ExceptionCode is 0 for a synthesized SYSCALL frame; for a genuine
	// IRETQ-triggering exception entry it carries the hardware error
	// code.
	ExceptionCode uint64

	// The IRETQ frame itself.
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// inUserspace records whether the CPU is currently executing userspace
// code. It is updated with atomic
// operations since interrupt handlers may read it concurrently with a
// SYSCALL trampoline write.
var inUserspace int32

// SetInUserspace records the current execution mode. The SYSCALL
// trampoline calls SetInUserspace(false) on entry and SetInUserspace(true)
// just before SYSRETQ; EnterUserspace calls it before IRETQ.
func SetInUserspace(v bool) {
	var i int32
	if v {
		i = 1
	}
	atomic.StoreInt32(&inUserspace, i)
}

// InUserspace reports the current execution mode, for use by interrupt
// handlers deciding whether a reschedule may be attempted.
func InUserspace() bool {
	return atomic.LoadInt32(&inUserspace) != 0
}

// EnterUserspace restores every GPR and the IRETQ frame from ctx, marks
// the CPU as running userspace code, and executes IRETQ. Like kernel/cpu's asm-backed
// functions, the body lives in hand-written assembly; SetInUserspace(true)
// is called from within that assembly immediately before IRETQ, not from
// Go, since nothing after IRETQ ever runs in this function.
func EnterUserspace(ctx *Context)
