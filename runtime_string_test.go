package main

import "testing"

// runtime_string_test.go - byte-level checks on the hand-assembled
// string helpers: assert on the encoded instruction stream rather than
// executing it.

func TestEmitStringSubsEndsInRet(t *testing.T) {
	out := emitStringSubs()
	b := out.Bytes()
	if len(b) == 0 {
		t.Fatal("expected a non-empty instruction stream")
	}
	if b[len(b)-1] != 0xC3 {
		t.Errorf("expected the function body to end in ret (0xC3), got %#x", b[len(b)-1])
	}
}

func TestEmitStringSubsCallsAllocate(t *testing.T) {
	out := emitStringSubs()
	if len(out.callPatches) == 0 {
		t.Fatal("expected at least one unresolved call patch (to _allocate)")
	}
	var sawAllocate bool
	for _, p := range out.callPatches {
		if p.Target == "_allocate" {
			sawAllocate = true
		}
	}
	if !sawAllocate {
		t.Error("expected _string_subs to call _allocate for its result buffer")
	}
}

func TestEmitStringCountIsTiny(t *testing.T) {
	// _string_count is just a header load - it must stay a handful of
	// bytes, not grow into something doing real work.
	out := emitStringCount()
	if n := len(out.Bytes()); n == 0 || n > 24 {
		t.Errorf("expected _string_count to be a small leaf function, got %d bytes", n)
	}
}
