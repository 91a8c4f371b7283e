package main

// runtime_layout.go - fixed addresses and heap-object layout constants
// shared by the emitter, the ELF writer, and the JIT loader.

const (
	// codeBaseAddr is where the single PT_LOAD code segment is mapped.
	codeBaseAddr uint64 = 0x401000
	// dataBaseAddr holds the allocator's three process-wide globals.
	dataBaseAddr uint64 = 0x403000
	// rodataBaseAddr holds the deduplicated string literal table.
	rodataBaseAddr uint64 = 0x404000

	// dataSegmentSize is three 8-byte allocator globals (heap_base,
	// heap_end, free_list_head) plus two more qwords for the
	// --trace-alloc counters. The counters are always reserved, built or
	// not, trading 16 bytes of BSS for a single fixed data-segment
	// layout rather than a conditional one.
	dataSegmentSize = 40

	// heapOffsetBase, heapOffsetEnd, heapOffsetFreeList are byte offsets
	// within the data segment of the allocator's globals.
	heapOffsetBase      = 0
	heapOffsetEnd       = 8
	heapOffsetFreeList  = 16
	heapOffsetAllocCount = 24
	heapOffsetFreeCount  = 32

	// heapRegionSize is the fixed heap region _heap_init reserves via
	// mmap.
	heapRegionSize uint64 = 1 << 20

	// heapAlignment is the allocator's minimum block alignment.
	heapAlignment = 16

	// heapHeaderSize is the 8-byte allocated-flag-plus-size header that
	// precedes every heap block.
	heapHeaderSize = 8

	// allocatedFlag is the high bit of a block header, set while the
	// block is in use.
	allocatedFlag uint64 = 1 << 63
	sizeMask      uint64 = allocatedFlag - 1

	// entryStubSizeNoHeap / entryStubSizeHeap are reference lengths for
	// the tightest possible encoding of the entry stub. emitter.go does
	// not assume these - it builds the stub first and reads back its
	// actual Len(), since this encoder's always-emit-REX style
	// (x86_64_codegen.go's rexRW) costs a few bytes more per instruction
	// than a size-optimized assembler would.
	entryStubSizeNoHeap = 17
	entryStubSizeHeap   = 22
)

// runtimeSymbols lists every externally-visible runtime helper name;
// every name begins with an underscore. The emitter's layout pass
// assigns each an address in the same pass it assigns IRFunction start
// addresses.
var runtimeSymbols = []string{
	"_heap_init",
	"_allocate",
	"_free",

	"_string_clone",
	"_string_count",
	"_string_concat",
	"_string_normalize",
	"_string_from_number",
	"_string_equals",
	"_string_get",
	"_string_subs",

	"_vector_new",
	"_vector_clone",
	"_vector_push",
	"_vector_get",
	"_vector_count",
	"_vector_equals",
	"_vector_first",
	"_vector_rest",
	"_vector_cons",
	"_vector_map",
	"_vector_filter",
	"_vector_reduce",

	"_map_new",
	"_map_clone",
	"_map_put",
	"_map_dissoc",
	"_map_contains",
	"_map_get",
	"_map_count",
	"_map_equals",
	"_map_keys",
	"_map_vals",
	"_map_merge",
	"_map_select_keys",
	"_map_zipmap",

	"_set_new",
	"_set_clone",
	"_set_add",
	"_set_contains",
	"_set_count",
	"_set_disj",
	"_set_equals",

	"_trace_alloc_report",
}
