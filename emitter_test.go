package main

import "testing"

// emitter_test.go - byte-level and structural checks on code
// generation.

func TestEmitEntryStubNoHeapNoTrace(t *testing.T) {
	stub := emitEntryStub(false, false)
	if len(stub.callPatches) != 1 {
		t.Fatalf("expected exactly one call patch (to -main), got %d", len(stub.callPatches))
	}
	if stub.callPatches[0].Target != entryMainSymbol {
		t.Errorf("expected the sole call to target %q, got %q", entryMainSymbol, stub.callPatches[0].Target)
	}
	b := stub.Bytes()
	if len(b) < 2 || b[len(b)-2] != 0x0F || b[len(b)-1] != 0x05 {
		t.Errorf("expected the stub to end in syscall (0f 05), got %x", b)
	}
}

func TestEmitEntryStubHeapAndTraceCallBoth(t *testing.T) {
	stub := emitEntryStub(true, true)
	if len(stub.callPatches) != 2 {
		t.Fatalf("expected two call patches (_heap_init and -main, plus _trace_alloc_report), got %d", len(stub.callPatches))
	}
	targets := map[string]bool{}
	for _, cp := range stub.callPatches {
		targets[cp.Target] = true
	}
	if !targets["_heap_init"] {
		t.Error("expected a call to _heap_init when heapNeeded is set")
	}
	if !targets[entryMainSymbol] {
		t.Errorf("expected a call to %s", entryMainSymbol)
	}
}

func TestEmitEntryStubTraceAllocWithoutHeap(t *testing.T) {
	// traceAlloc alone (no heap) still needs exactly two calls: -main,
	// then _trace_alloc_report, with the exit code preserved in rax
	// across the report call (hence the push/pop around it).
	stub := emitEntryStub(false, true)
	if len(stub.callPatches) != 2 {
		t.Fatalf("expected two call patches (-main and _trace_alloc_report), got %d", len(stub.callPatches))
	}
	if stub.callPatches[1].Target != "_trace_alloc_report" {
		t.Errorf("expected the second call to be _trace_alloc_report, got %q", stub.callPatches[1].Target)
	}
}

func TestFrameSizeCountsSharedSlotCounterOnly(t *testing.T) {
	// compile_context.go's allocSlot binds params and locals through
	// one counter, so LocalCount already includes parameter slots -
	// frameSize must not add ParamCount again.
	fn := &IRFunction{Name: "f", ParamCount: 2, LocalCount: 5}
	got := frameSize(fn)
	want := int32(5*8 + 128)
	if got != want {
		t.Errorf("frameSize = %d, want %d (ParamCount must not be added separately)", got, want)
	}
}

func TestBuildRodataDeduplicatesAndLengthPrefixes(t *testing.T) {
	prog := NewIRProgram()
	i1 := prog.InternString("hi")
	i2 := prog.InternString("hi")
	if i1 != i2 {
		t.Fatalf("expected InternString to deduplicate, got distinct indices %d and %d", i1, i2)
	}
	data, addrOf := buildRodata(prog)
	if len(data) != 8+2+1 {
		t.Fatalf("expected an 11-byte rodata blob ([len:8]hi[NUL]), got %d bytes", len(data))
	}
	if _, ok := addrOf[rodataSymbol(i1)]; !ok {
		t.Error("expected buildRodata to record an address for the interned string")
	}
}
