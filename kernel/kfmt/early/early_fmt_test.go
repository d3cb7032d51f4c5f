package early

import (
	"bytes"
	"testing"
	"unsafe"

	"github.com/corigan01/quantumos/kernel/driver/tty"
	"github.com/corigan01/quantumos/kernel/driver/video/console"
	"github.com/corigan01/quantumos/kernel/hal"
)

func attachMockTerminal() (*tty.Vt, []uint8) {
	ega := &console.Ega{}
	fb := make([]uint8, 160*25)
	ega.Init(80, 25, uintptr(unsafe.Pointer(&fb[0])))

	vt := &tty.Vt{}
	vt.AttachTo(ega)
	hal.ActiveTerminal = vt
	return vt, fb
}

func textOf(fb []uint8) string {
	var buf bytes.Buffer
	for index := 0; ; index += 2 {
		if index >= len(fb) || fb[index] == 0 {
			break
		}
		buf.WriteByte(fb[index])
	}
	return buf.String()
}

func TestPrintf(t *testing.T) {
	origTerm := hal.ActiveTerminal
	defer func() { hal.ActiveTerminal = origTerm }()

	// mute vet warnings about malformed printf formatting strings
	printfn := Printf

	vt, fb := attachMockTerminal()

	specs := []struct {
		fn        func()
		expOutput string
	}{
		{
			func() { printfn("no args") },
			"no args",
		},
		{
			func() { printfn("%t", true) },
			"true",
		},
		{
			func() { printfn("%41t", false) },
			"false",
		},
		{
			func() { printfn("%s arg", "STRING") },
			"STRING arg",
		},
		{
			func() { printfn("%s arg", []byte("BYTE SLICE")) },
			"BYTE SLICE arg",
		},
		{
			func() { printfn("'%4s' arg with padding", "ABC") },
			"' ABC' arg with padding",
		},
		{
			func() { printfn("uint arg: %d", uint8(10)) },
			"uint arg: 10",
		},
		{
			func() { printfn("uint arg: %o", uint16(0777)) },
			"uint arg: 777",
		},
		{
			func() { printfn("uint arg: %x", uint32(0xbadf00d)) },
			"uint arg: 0xbadf00d",
		},
		// boot-header addresses flow through as uintptr and use %p.
		{
			func() { printfn("handoff at %p", uintptr(0xb8000)) },
			"handoff at 0xb8000",
		},
		{
			func() { printfn("%%%s%d%t", "foo", 123, true) },
			`%foo123true`,
		},
		{
			func() { printfn("more args", "foo", "bar") },
			`more args%!(EXTRA)%!(EXTRA)`,
		},
		{
			func() { printfn("missing args %s") },
			`missing args (MISSING)`,
		},
		{
			func() { printfn("bad verb %Q") },
			`bad verb %!(NOVERB)`,
		},
		{
			func() { printfn("not bool %t", "foo") },
			`not bool %!(WRONGTYPE)`,
		},
	}

	for specIndex, spec := range specs {
		for index := range fb {
			fb[index] = 0
		}
		vt.SetPosition(0, 0)

		spec.fn()

		if got := textOf(fb); got != spec.expOutput {
			t.Errorf("[spec %d] expected to get %q; got %q", specIndex, spec.expOutput, got)
		}
	}
}

func TestLogfRestoresAttr(t *testing.T) {
	origTerm := hal.ActiveTerminal
	defer func() { hal.ActiveTerminal = origTerm }()

	vt, fb := attachMockTerminal()
	before := vt.Attr()

	Warnf("stage-2 found no usable VBE mode\n")

	if got := textOf(fb); got != "[WARN] stage-2 found no usable VBE mode\n" {
		t.Errorf("unexpected output: %q", got)
	}
	if after := vt.Attr(); after != before {
		t.Errorf("Logf left the terminal attribute changed: got %v, want %v", after, before)
	}
}

func TestLogfUnknownLevelFallsBackToInfo(t *testing.T) {
	origTerm := hal.ActiveTerminal
	defer func() { hal.ActiveTerminal = origTerm }()

	_, fb := attachMockTerminal()

	Logf(Level(200), "boot device ready\n")

	if got := textOf(fb); got != "[INFO] boot device ready" {
		t.Errorf("unexpected output: %q", got)
	}
}
