package main

import "github.com/xyproto/env/v2"

// default.go - default configuration knobs, overridable through the
// environment: heap size, allocator telemetry, and JIT page rounding.

// defaultHeapSizeBytes is the fallback for SLISP_HEAP_SIZE, matching
// heapRegionSize (runtime_layout.go) - the 1 MiB region _heap_init
// reserves unless told otherwise.
const defaultHeapSizeBytes = int(heapRegionSize)

// defaultJITPageSize is the fallback page-rounding unit jit.go's mmap
// calls use (pageRound in jit.go hardcodes 4096; this lets a caller
// override it for non-standard page sizes without touching jit.go).
const defaultJITPageSize = 4096

// Config holds the knobs read once at process start.
type Config struct {
	HeapSize    int  // bytes, the size _heap_init's mmap call requests
	TraceAlloc  bool // mirrors --trace-alloc, settable without the flag
	JITPageSize int
}

// LoadConfig reads SLISP_HEAP_SIZE, SLISP_TRACE_ALLOC, and
// SLISP_JIT_PAGE_SIZE, falling back to the compiled-in defaults.
func LoadConfig() Config {
	return Config{
		HeapSize:    env.Int("SLISP_HEAP_SIZE", defaultHeapSizeBytes),
		TraceAlloc:  env.Bool("SLISP_TRACE_ALLOC"),
		JITPageSize: env.Int("SLISP_JIT_PAGE_SIZE", defaultJITPageSize),
	}
}
