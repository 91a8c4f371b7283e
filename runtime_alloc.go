package main

// runtime_alloc.go - the free-list first-fit heap allocator: a raw
// mmap reservation, no libc, backing a singly-linked free list for the
// program's permanent, program-lifetime heap.
//
// Each function here is a hand-sequenced leaf routine, built directly
// against an Out-like buffer rather than through an assembler. Control
// flow is resolved locally with rawJump+PatchRel32 (x86_64_codegen.go)
// instead of through emitter.go's IR-indexed jumpPatches, since these
// bodies have no corresponding IRFunction.
//
// Simplification: blocks are never split on allocation; every free
// block is handed out whole. This trades some fragmentation for a much
// shorter, more auditable hand-encoded routine - coalescing and
// fragmentation under the 1 MiB cap are left for a test workload to
// drive, rather than built speculatively ahead of one.

// emitHeapInit builds `_heap_init`: reserves the 1 MiB heap region via
// mmap, publishes heap_base/heap_end/free_list_head, and installs one
// free block covering the whole region.
func emitHeapInit() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")

	// mmap(NULL, heapRegionSize, PROT_READ|PROT_WRITE,
	//      MAP_PRIVATE|MAP_ANONYMOUS, -1, 0)
	o.XorRegToReg("rdi", "rdi")
	o.MovImmToReg("rsi", int64(heapRegionSize))
	o.MovImmToReg("rdx", 0x3)  // PROT_READ|PROT_WRITE
	o.MovImmToReg("r10", 0x22) // MAP_PRIVATE|MAP_ANONYMOUS
	o.MovImmToReg("r8", -1)
	o.XorRegToReg("r9", "r9")
	o.MovImmToReg("rax", 9) // SYS_mmap
	o.Syscall()

	// rax now holds heap_base.
	o.MovImmToReg("rcx", int64(dataBaseAddr))
	o.MovRegToMem("rax", "rcx", heapOffsetBase)

	o.MovRegToReg("rdx", "rax")
	o.AddImmToReg("rdx", int32(heapRegionSize))
	o.MovRegToMem("rdx", "rcx", heapOffsetEnd)

	o.MovRegToMem("rax", "rcx", heapOffsetFreeList)

	// Install the single free block: [heap_base] = size (no ALLOCATED
	// bit), [heap_base+8] = next (0, end of list).
	o.MovImmToReg("rsi", int64(heapRegionSize))
	o.MovRegToMem("rsi", "rax", 0)
	o.XorRegToReg("rdi", "rdi")
	o.MovRegToMem("rdi", "rax", heapHeaderSize)

	o.MovRegToMem("rdi", "rcx", heapOffsetAllocCount) // rdi is 0 here
	o.MovRegToMem("rdi", "rcx", heapOffsetFreeCount)

	o.PopReg("rbp")
	o.Ret()
	return o
}

// emitAllocate builds `_allocate(size: rdi) -> ptr: rax`.
func emitAllocate() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	o.PushReg("rbx")
	o.PushReg("r12")
	o.PushReg("r13")

	// rcx = align16(size + header)
	o.MovRegToReg("rcx", "rdi")
	o.AddImmToReg("rcx", heapHeaderSize+(heapAlignment-1))
	o.AndImmToReg("rcx", ^int32(heapAlignment-1))

	o.MovImmToReg("rbx", int64(dataBaseAddr))
	o.MovMemToReg("r12", "rbx", heapOffsetFreeList) // r12 = node
	o.XorRegToReg("r13", "r13")                     // r13 = prev (0 = head)

	loopTop := o.Len()
	o.TestRegToReg("r12", "r12")
	failJmp := o.rawJz() // node == NULL -> out of memory

	o.MovMemToReg("rax", "r12", 0) // rax = node size (ALLOCATED bit clear)
	o.CmpRegToReg("rax", "rcx")
	tooSmallJmp := o.rawJl()

	// Found a fit: unlink node from the free list.
	o.MovMemToReg("rdx", "r12", heapHeaderSize) // rdx = node.next
	o.TestRegToReg("r13", "r13")
	hasPrevJmp := o.rawJnz()
	o.MovRegToMem("rdx", "rbx", heapOffsetFreeList)
	skipPrevJmp := o.rawJmp()
	hasPrevTarget := o.Len()
	o.PatchRel32(hasPrevJmp, hasPrevTarget)
	o.MovRegToMem("rdx", "r13", heapHeaderSize)
	skipPrevTarget := o.Len()
	o.PatchRel32(skipPrevJmp, skipPrevTarget)

	// Mark allocated, keeping the stored size field unchanged. The
	// ALLOCATED bit is bit 63 - a sign-extended 32-bit OR immediate
	// would also clobber bits 32-62 of the size, so the flag is loaded
	// as a full 64-bit immediate into a scratch register instead.
	allocatedFlagBits := allocatedFlag
	o.MovImmToReg("rdx", int64(allocatedFlagBits))
	o.OrRegToReg("rax", "rdx")
	o.MovRegToMem("rax", "r12", 0)

	o.MovRegToReg("rax", "r12")
	o.AddImmToReg("rax", heapHeaderSize)

	o.MovMemToReg("rdx", "rbx", heapOffsetAllocCount)
	o.AddImmToReg("rdx", 1)
	o.MovRegToMem("rdx", "rbx", heapOffsetAllocCount)

	foundRet := o.rawJmp()

	tooSmallTarget := o.Len()
	o.PatchRel32(tooSmallJmp, tooSmallTarget)
	o.MovRegToReg("r13", "r12")
	o.MovMemToReg("r12", "r12", heapHeaderSize)
	backJmp := o.rawJmp()
	o.PatchRel32(backJmp, loopTop)

	failTarget := o.Len()
	o.PatchRel32(failJmp, failTarget)
	o.XorRegToReg("rax", "rax")

	doneTarget := o.Len()
	o.PatchRel32(foundRet, doneTarget)

	o.PopReg("r13")
	o.PopReg("r12")
	o.PopReg("rbx")
	o.PopReg("rbp")
	o.Ret()
	return o
}

// emitFree builds `_free(ptr: rdi)`: clears the ALLOCATED bit and
// pushes the block onto the free list head. The size field must have
// its ALLOCATED bit cleared before relinking - _allocate's first-fit
// scan compares the raw stored size against the requested size, and a
// block left with bit 63 set would never satisfy that comparison again.
func emitFree() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")

	o.MovRegToReg("rax", "rdi")
	o.SubImmFromReg("rax", heapHeaderSize) // rax = block header address

	o.MovMemToReg("rdx", "rax", 0)
	o.MovImmToReg("rcx", int64(sizeMask))
	o.AndRegToReg("rdx", "rcx")
	o.MovRegToMem("rdx", "rax", 0)

	o.MovImmToReg("rcx", int64(dataBaseAddr))
	o.MovMemToReg("rdx", "rcx", heapOffsetFreeList)
	o.MovRegToMem("rdx", "rax", heapHeaderSize) // block.next = old head
	o.MovRegToMem("rax", "rcx", heapOffsetFreeList)

	o.MovMemToReg("rdx", "rcx", heapOffsetFreeCount)
	o.AddImmToReg("rdx", 1)
	o.MovRegToMem("rdx", "rcx", heapOffsetFreeCount)

	o.PopReg("rbp")
	o.Ret()
	return o
}
