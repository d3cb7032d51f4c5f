// Package hal wires the architecture-independent parts of the kernel (early
// logging, panic output) to the one physical console the bootloader handed
// us. Unlike the prior implementation, which discovers its framebuffer via a multiboot
// tag, this kernel receives its chosen video mode from stage-2 by way of
// the KernelBootHeader — there is no multiboot collaborator
// in this boot pipeline.
package hal

import (
	"github.com/corigan01/quantumos/kernel/driver/tty"
	"github.com/corigan01/quantumos/kernel/driver/video/console"
)

var (
	egaConsole = &console.Ega{}

	// ActiveTerminal points to the currently active terminal.
	ActiveTerminal = &tty.Vt{}
)

// InitTerminal provides a basic terminal to allow the kernel to emit some
// output until everything is properly set up. width and height are in
// characters (text-mode columns/rows); physAddr is the linear-framebuffer
// base address chosen by stage-2's VBE selection and recorded in the
// KernelBootHeader's video mode field.
func InitTerminal(width, height uint16, physAddr uintptr) {
	egaConsole.Init(width, height, physAddr)
	ActiveTerminal.AttachTo(egaConsole)
}
