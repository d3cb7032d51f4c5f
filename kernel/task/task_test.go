package task

import "testing"

func TestNewTaskIsAliveAndHasFixedStack(t *testing.T) {
	tk := New(func() {})
	if !tk.Alive() {
		t.Fatal("expected a freshly created task to be alive")
	}
	if tk.StackLen() != DefaultStackSize {
		t.Errorf("expected stack length %d, got %d", DefaultStackSize, tk.StackLen())
	}
	if tk.StackBottom() == 0 {
		t.Error("expected a non-zero stack bottom address")
	}
}

func TestSwitchUpdatesCurrent(t *testing.T) {
	origSwitch := switchStacks
	defer func() { switchStacks = origSwitch; current = nil }()
	switchStacks = func(fromRSP *uintptr, toRSP uintptr) {}

	if Current() != nil {
		t.Fatal("expected no current task before the first switch")
	}

	tk := New(func() {})
	Switch(tk)

	if Current() != tk {
		t.Error("expected Current() to report the switched-to task")
	}
}

func TestSwitchFromNilPassesNilFromRSP(t *testing.T) {
	origSwitch := switchStacks
	defer func() { switchStacks = origSwitch; current = nil }()

	var gotFrom *uintptr
	var gotTo uintptr
	switchStacks = func(fromRSP *uintptr, toRSP uintptr) {
		gotFrom = fromRSP
		gotTo = toRSP
	}

	tk := New(func() {})
	Switch(tk)

	if gotFrom != nil {
		t.Error("expected a nil fromRSP for the very first switch")
	}
	if gotTo != tk.savedRSP {
		t.Errorf("expected toRSP %#x, got %#x", tk.savedRSP, gotTo)
	}
}

func TestSwitchFromExistingTaskSavesItsRSP(t *testing.T) {
	origSwitch := switchStacks
	defer func() { switchStacks = origSwitch; current = nil }()
	switchStacks = func(fromRSP *uintptr, toRSP uintptr) {}

	a := New(func() {})
	b := New(func() {})

	Switch(a)

	var savedFrom *uintptr
	switchStacks = func(fromRSP *uintptr, toRSP uintptr) { savedFrom = fromRSP }
	Switch(b)

	if savedFrom != &a.savedRSP {
		t.Error("expected switching away from a running task to save that task's own savedRSP field")
	}
}

// TestTaskReturnSentinelMarksCurrentDead covers the bookkeeping half of
// the design "if init_fn ever returns, it falls through to a sentinel
// function that panics": taskReturnSentinel marks the currently running
// task dead before invoking the (overridable, see irq.panicFn for the same
// pattern) panic path.
func TestTaskReturnSentinelMarksCurrentDead(t *testing.T) {
	origPanic := panicFn
	defer func() { panicFn = origPanic; current = nil }()

	panicked := false
	panicFn = func() { panicked = true }

	tk := New(func() {})
	current = tk

	taskReturnSentinel()

	if tk.Alive() {
		t.Error("expected taskReturnSentinel to mark the task dead")
	}
	if !panicked {
		t.Error("expected taskReturnSentinel to invoke panicFn")
	}
}

func TestTaskReturnSentinelToleratesNilCurrent(t *testing.T) {
	origPanic := panicFn
	defer func() { panicFn = origPanic; current = nil }()

	panicFn = func() {}
	current = nil

	taskReturnSentinel()
}
