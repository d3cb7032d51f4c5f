package irq

import "testing"

func TestHasErrorCode(t *testing.T) {
	for _, v := range []Vector{8, 10, 11, 12, 13, 14, 17, 21, 29, 30} {
		if !HasErrorCode(v) {
			t.Errorf("vector %d should carry an error code", v)
		}
	}
	for _, v := range []Vector{0, 1, 2, 3, 4, 5, 6, 7, 9, 16, 32} {
		if HasErrorCode(v) {
			t.Errorf("vector %d should not carry an error code", v)
		}
	}
}

func TestDispatchRoutesIRQToHandlerAndSendsEOI(t *testing.T) {
	origEOI, origPanic := eoiFn, panicFn
	defer func() { eoiFn, panicFn = origEOI, origPanic }()

	var eoiCalls []uint8
	eoiFn = func(n uint8) { eoiCalls = append(eoiCalls, n) }

	called := false
	HandleIRQ(1, func(*Regs) { called = true })

	Dispatch(InterruptInfo{Vector: IRQBase + 1, Regs: &Regs{}, Frame: &Frame{}})

	if !called {
		t.Error("expected IRQ handler to be invoked")
	}
	if len(eoiCalls) != 1 || eoiCalls[0] != 1 {
		t.Errorf("expected EOI(1), got %v", eoiCalls)
	}
}

func TestDispatchRoutesPageFaultWithCode(t *testing.T) {
	var gotCode uint64
	HandleExceptionWithCode(PageFaultException, func(code uint64, f *Frame, r *Regs) {
		gotCode = code
	})

	Dispatch(InterruptInfo{Vector: PageFaultException, ErrorCode: 0x4, Frame: &Frame{}, Regs: &Regs{}})

	if gotCode != 0x4 {
		t.Errorf("expected handler to see error code 0x4, got 0x%x", gotCode)
	}
}

func TestDispatchPanicsOnUnregisteredVector(t *testing.T) {
	origPanic := panicFn
	defer func() { panicFn = origPanic }()

	panicked := false
	panicFn = func(Vector, *Frame, *Regs) { panicked = true }

	// Vector 9 has no registered handler and carries no error code.
	Dispatch(InterruptInfo{Vector: 9, Frame: &Frame{}, Regs: &Regs{}})

	if !panicked {
		t.Error("expected unregistered vector to panic via panicFn")
	}
}

func TestDispatchAbortClassAlwaysPanics(t *testing.T) {
	origPanic := panicFn
	defer func() { panicFn = origPanic }()

	var seen Vector
	panicFn = func(v Vector, _ *Frame, _ *Regs) { seen = v }

	Dispatch(InterruptInfo{Vector: DoubleFault, Frame: &Frame{}, Regs: &Regs{}})

	if seen != DoubleFault {
		t.Errorf("expected abort-class dispatch to call panicFn with DoubleFault, got %v", seen)
	}
}
