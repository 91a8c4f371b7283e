package main

// runtime_vector.go - vector helpers.
//
// Layout: [count:8][capacity:8][payload_0:8]... Every element is
// stored as the single 64-bit word the compiler's IR already treats a
// stack value as (compiler.go/compiler_collections.go pass
// `_vector_push` exactly two arguments, vec and value - there is no
// separate runtime tag word per element). ValueKind homogeneity within
// one collection literal is tracked by the compiler; the runtime
// helpers here are tag-oblivious by construction, and equality/cloning
// of heap-typed elements therefore compares/copies payload words
// rather than recursing into nested structure. Deep cloning across a
// collection boundary is handled one level up, at the compiler's
// insertion sites (cloneHeapElement in compiler_collections.go), which
// know each element's ValueKind statically and clone it before handing
// it to these tag-oblivious helpers.
const (
	vectorInitialCap = 4
	vectorHeaderSize = 16 // count + capacity
)

// emitVectorNew builds `_vector_new() -> ptr`.
func emitVectorNew() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")

	o.MovImmToReg("rdi", vectorHeaderSize+vectorInitialCap*8)
	o.CallSymbol("_allocate")
	o.XorRegToReg("rcx", "rcx")
	o.MovRegToMem("rcx", "rax", 0)
	o.MovImmToReg("rcx", vectorInitialCap)
	o.MovRegToMem("rcx", "rax", 8)

	o.PopReg("rbp")
	o.Ret()
	return o
}

// emitVectorPush builds `_vector_push(vec: rdi, val: rsi) -> ptr: rax`,
// growing (doubling capacity, copying old payloads, freeing the old
// block) when the backing array is full. The returned pointer may
// differ from the argument - callers MUST re-store it, which is
// exactly the deferred builder-slot discipline compiler_collections.go
// already follows for every collection literal.
func emitVectorPush() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	o.PushReg("rbx")
	o.PushReg("r12")
	o.PushReg("r13")
	o.PushReg("r14")
	o.PushReg("r15")

	o.MovRegToReg("r12", "rdi")    // r12 = vec
	o.MovRegToReg("r13", "rsi")    // r13 = val
	o.MovMemToReg("rbx", "r12", 0) // rbx = count
	o.MovMemToReg("rcx", "r12", 8) // rcx = capacity

	o.CmpRegToReg("rbx", "rcx")
	skipGrowJmp := o.rawJl()

	// Grow: new capacity = capacity*2.
	o.MovRegToReg("r9", "rcx")
	o.AddRegToReg("r9", "rcx") // r9 = new capacity, pushed across the call below
	o.MovRegToReg("rdx", "r9")
	o.AddRegToReg("rdx", "rdx")
	o.AddRegToReg("rdx", "rdx")
	o.AddRegToReg("rdx", "rdx") // rdx = new_cap*8
	o.AddImmToReg("rdx", vectorHeaderSize)
	o.MovRegToReg("rdi", "rdx")
	o.PushReg("r9")
	o.CallSymbol("_allocate")
	o.PopReg("r9")
	o.MovRegToReg("r14", "rax")
	o.MovRegToMem("rbx", "r14", 0)
	o.MovRegToMem("r9", "r14", 8)

	// Copy old payloads[0..count) into the new block.
	o.MovRegToReg("r8", "r12")
	o.AddImmToReg("r8", vectorHeaderSize) // src pointer
	o.MovRegToReg("r9", "r14")
	o.AddImmToReg("r9", vectorHeaderSize) // dst pointer
	o.XorRegToReg("r15", "r15")           // index

	copyTop := o.Len()
	o.CmpRegToReg("r15", "rbx")
	copyDoneJmp := o.rawJge()
	o.MovMemToReg("r10", "r8", 0)
	o.MovRegToMem("r10", "r9", 0)
	o.AddImmToReg("r8", 8)
	o.AddImmToReg("r9", 8)
	o.AddImmToReg("r15", 1)
	backJmp := o.rawJmp()
	o.PatchRel32(backJmp, copyTop)
	o.PatchRel32(copyDoneJmp, o.Len())

	o.MovRegToReg("rdi", "r12")
	o.CallSymbol("_free")
	o.MovRegToReg("r12", "r14")

	o.PatchRel32(skipGrowJmp, o.Len())

	// Store the value at payloads[count], bump count, return the
	// (possibly new) vector pointer.
	o.MovRegToReg("rdx", "rbx")
	o.AddRegToReg("rdx", "rdx")
	o.AddRegToReg("rdx", "rdx")
	o.AddRegToReg("rdx", "rdx") // rdx = count*8
	o.AddImmToReg("rdx", vectorHeaderSize)
	o.MovRegToReg("r8", "r12")
	o.AddRegToReg("r8", "rdx")
	o.MovRegToMem("r13", "r8", 0)

	o.MovRegToReg("rcx", "rbx")
	o.AddImmToReg("rcx", 1)
	o.MovRegToMem("rcx", "r12", 0)

	o.MovRegToReg("rax", "r12")

	o.PopReg("r15")
	o.PopReg("r14")
	o.PopReg("r13")
	o.PopReg("r12")
	o.PopReg("rbx")
	o.PopReg("rbp")
	o.Ret()
	return o
}

// emitVectorCount builds `_vector_count(vec: rdi) -> n: rax`.
func emitVectorCount() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	o.MovMemToReg("rax", "rdi", 0)
	o.PopReg("rbp")
	o.Ret()
	return o
}

// emitVectorGet builds `_vector_get(vec: rdi, index: rsi) -> val: rax`,
// returning the NIL payload word (0) on an out-of-range index,
// Clojure-style.
func emitVectorGet() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")

	o.MovMemToReg("rcx", "rdi", 0) // count
	o.CmpRegToReg("rsi", "rcx")
	outOfRangeJmp := o.rawJge()

	o.MovRegToReg("rdx", "rsi")
	o.AddRegToReg("rdx", "rdx")
	o.AddRegToReg("rdx", "rdx")
	o.AddRegToReg("rdx", "rdx")
	o.AddImmToReg("rdx", vectorHeaderSize)
	o.MovRegToReg("r8", "rdi")
	o.AddRegToReg("r8", "rdx")
	o.MovMemToReg("rax", "r8", 0)
	doneJmp := o.rawJmp()

	o.PatchRel32(outOfRangeJmp, o.Len())
	o.XorRegToReg("rax", "rax")

	o.PatchRel32(doneJmp, o.Len())
	o.PopReg("rbp")
	o.Ret()
	return o
}

// emitVectorClone builds `_vector_clone(vec: rdi) -> ptr: rax`, a
// shallow structural copy: payload words copied as-is, for the same
// tag-oblivious reason the file comment gives for push.
func emitVectorClone() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	o.PushReg("rbx")
	o.PushReg("r12")

	o.MovRegToReg("r12", "rdi")
	o.MovMemToReg("rbx", "r12", 8) // capacity
	o.MovRegToReg("rdx", "rbx")
	o.AddRegToReg("rdx", "rdx")
	o.AddRegToReg("rdx", "rdx")
	o.AddRegToReg("rdx", "rdx")
	o.AddImmToReg("rdx", vectorHeaderSize)
	o.MovRegToReg("rdi", "rdx")
	o.CallSymbol("_allocate")

	o.MovMemToReg("rcx", "r12", 0)
	o.MovRegToMem("rcx", "rax", 0)
	o.MovRegToMem("rbx", "rax", 8)

	// Copy the whole payload region (capacity words) in one pass.
	o.MovRegToReg("r8", "r12")
	o.AddImmToReg("r8", vectorHeaderSize)
	o.MovRegToReg("r9", "rax")
	o.AddImmToReg("r9", vectorHeaderSize)
	o.XorRegToReg("rcx", "rcx")

	top := o.Len()
	o.CmpRegToReg("rcx", "rbx")
	doneJmp := o.rawJge()
	o.MovMemToReg("r10", "r8", 0)
	o.MovRegToMem("r10", "r9", 0)
	o.AddImmToReg("r8", 8)
	o.AddImmToReg("r9", 8)
	o.AddImmToReg("rcx", 1)
	backJmp := o.rawJmp()
	o.PatchRel32(backJmp, top)
	o.PatchRel32(doneJmp, o.Len())

	o.PopReg("r12")
	o.PopReg("rbx")
	o.PopReg("rbp")
	o.Ret()
	return o
}

// emitVectorFirst builds `_vector_first(vec: rdi) -> val: rax`,
// returning nil on an empty vector.
func emitVectorFirst() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")

	o.MovMemToReg("rcx", "rdi", 0) // count
	o.CmpImmToReg("rcx", 0)
	emptyJmp := o.rawJz()
	o.MovMemToReg("rax", "rdi", vectorHeaderSize)
	doneJmp := o.rawJmp()

	o.PatchRel32(emptyJmp, o.Len())
	o.XorRegToReg("rax", "rax")

	o.PatchRel32(doneJmp, o.Len())
	o.PopReg("rbp")
	o.Ret()
	return o
}

// emitVectorRest builds `_vector_rest(vec: rdi) -> vec: rax`: every
// element but the first, built via the same push-and-restore
// discipline as the map/filter helpers below rather than a direct
// single allocation, since an empty result still needs a valid header.
func emitVectorRest() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	o.PushReg("rbx")
	o.PushReg("r12")
	o.PushReg("r13")
	o.PushReg("r14")

	o.MovRegToReg("r12", "rdi") // src vec
	o.CallSymbol("_vector_new")
	o.MovRegToReg("r13", "rax") // result, re-stored after every push

	o.MovMemToReg("rbx", "r12", 0) // count
	o.MovImmToReg("r14", 1)        // index, starting past the first element

	top := o.Len()
	o.CmpRegToReg("r14", "rbx")
	doneJmp := o.rawJge()

	o.MovRegToReg("rdx", "r14")
	o.AddRegToReg("rdx", "rdx")
	o.AddRegToReg("rdx", "rdx")
	o.AddRegToReg("rdx", "rdx")
	o.AddImmToReg("rdx", vectorHeaderSize)
	o.MovRegToReg("r8", "r12")
	o.AddRegToReg("r8", "rdx")
	o.MovMemToReg("rsi", "r8", 0)
	o.MovRegToReg("rdi", "r13")
	o.CallSymbol("_vector_push")
	o.MovRegToReg("r13", "rax")
	o.AddImmToReg("r14", 1)
	backJmp := o.rawJmp()
	o.PatchRel32(backJmp, top)
	o.PatchRel32(doneJmp, o.Len())

	o.MovRegToReg("rax", "r13")
	o.PopReg("r14")
	o.PopReg("r13")
	o.PopReg("r12")
	o.PopReg("rbx")
	o.PopReg("rbp")
	o.Ret()
	return o
}

// emitVectorCons builds `_vector_cons(head: rdi, vec: rsi) -> vec: rax`:
// a fresh vector holding head followed by every element of vec, sized
// exactly (count+1) in one allocation rather than growing through
// repeated pushes, the same shape _vector_clone already uses.
func emitVectorCons() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	o.PushReg("rbx")
	o.PushReg("r12")
	o.PushReg("r13")

	o.MovRegToReg("r12", "rdi") // head value
	o.MovRegToReg("r13", "rsi") // src vec
	o.MovMemToReg("rbx", "r13", 0) // src count

	o.MovRegToReg("rdx", "rbx")
	o.AddImmToReg("rdx", 1)
	o.MovRegToReg("rcx", "rdx")
	o.AddRegToReg("rcx", "rcx")
	o.AddRegToReg("rcx", "rcx")
	o.AddRegToReg("rcx", "rcx")
	o.AddImmToReg("rcx", vectorHeaderSize)
	o.MovRegToReg("rdi", "rcx")
	o.CallSymbol("_allocate")

	o.MovRegToReg("rdx", "rbx")
	o.AddImmToReg("rdx", 1)
	o.MovRegToMem("rdx", "rax", 0)
	o.MovRegToMem("rdx", "rax", 8)
	o.MovRegToMem("r12", "rax", vectorHeaderSize)

	o.MovRegToReg("r8", "r13")
	o.AddImmToReg("r8", vectorHeaderSize)
	o.MovRegToReg("r9", "rax")
	o.AddImmToReg("r9", vectorHeaderSize+8)
	o.XorRegToReg("rcx", "rcx")

	top := o.Len()
	o.CmpRegToReg("rcx", "rbx")
	doneJmp := o.rawJge()
	o.MovMemToReg("r10", "r8", 0)
	o.MovRegToMem("r10", "r9", 0)
	o.AddImmToReg("r8", 8)
	o.AddImmToReg("r9", 8)
	o.AddImmToReg("rcx", 1)
	backJmp := o.rawJmp()
	o.PatchRel32(backJmp, top)
	o.PatchRel32(doneJmp, o.Len())

	o.PopReg("r13")
	o.PopReg("r12")
	o.PopReg("rbx")
	o.PopReg("rbp")
	o.Ret()
	return o
}

// emitVectorMap builds `_vector_map(fn: rdi, vec: rsi) -> vec: rax`,
// calling fn (a Slisp function value, not a runtime symbol - an
// indirect call through whatever address the caller lowered) once per
// element via the System V integer-argument ABI, same as any direct
// call, just through a register instead of a relocated rel32.
func emitVectorMap() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	o.PushReg("rbx")
	o.PushReg("r12")
	o.PushReg("r13")
	o.PushReg("r14")
	o.PushReg("r15")

	o.MovRegToReg("r14", "rdi") // fn, callee-saved across both calls below
	o.MovRegToReg("r12", "rsi") // src vec
	o.CallSymbol("_vector_new")
	o.MovRegToReg("r13", "rax") // result, re-stored after every push

	o.MovMemToReg("rbx", "r12", 0) // count
	o.XorRegToReg("r15", "r15")    // index

	top := o.Len()
	o.CmpRegToReg("r15", "rbx")
	doneJmp := o.rawJge()

	o.MovRegToReg("rdx", "r15")
	o.AddRegToReg("rdx", "rdx")
	o.AddRegToReg("rdx", "rdx")
	o.AddRegToReg("rdx", "rdx")
	o.AddImmToReg("rdx", vectorHeaderSize)
	o.MovRegToReg("r8", "r12")
	o.AddRegToReg("r8", "rdx")
	o.MovMemToReg("rdi", "r8", 0)
	o.CallIndirectReg("r14")
	o.MovRegToReg("rsi", "rax")
	o.MovRegToReg("rdi", "r13")
	o.CallSymbol("_vector_push")
	o.MovRegToReg("r13", "rax")
	o.AddImmToReg("r15", 1)
	backJmp := o.rawJmp()
	o.PatchRel32(backJmp, top)
	o.PatchRel32(doneJmp, o.Len())

	o.MovRegToReg("rax", "r13")
	o.PopReg("r15")
	o.PopReg("r14")
	o.PopReg("r13")
	o.PopReg("r12")
	o.PopReg("rbx")
	o.PopReg("rbp")
	o.Ret()
	return o
}

// emitVectorFilter builds `_vector_filter(fn: rdi, vec: rsi) -> vec: rax`.
// fn's result is a plain payload word, tested for the same raw
// zero/non-zero truthiness OpJumpIfZero already uses for `if` - there is
// no separate boolean tag to unbox. The element address is recomputed
// after the predicate call rather than held across it, since every
// caller-saved register is fair game for fn to clobber.
func emitVectorFilter() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	o.PushReg("rbx")
	o.PushReg("r12")
	o.PushReg("r13")
	o.PushReg("r14")
	o.PushReg("r15")

	o.MovRegToReg("r14", "rdi") // predicate
	o.MovRegToReg("r12", "rsi") // src vec
	o.CallSymbol("_vector_new")
	o.MovRegToReg("r13", "rax")

	o.MovMemToReg("rbx", "r12", 0)
	o.XorRegToReg("r15", "r15")

	top := o.Len()
	o.CmpRegToReg("r15", "rbx")
	doneJmp := o.rawJge()

	elemAddr := func(dst string) {
		o.MovRegToReg("rdx", "r15")
		o.AddRegToReg("rdx", "rdx")
		o.AddRegToReg("rdx", "rdx")
		o.AddRegToReg("rdx", "rdx")
		o.AddImmToReg("rdx", vectorHeaderSize)
		o.MovRegToReg(dst, "r12")
		o.AddRegToReg(dst, "rdx")
	}

	elemAddr("r8")
	o.MovMemToReg("rdi", "r8", 0)
	o.CallIndirectReg("r14")
	o.TestRegToReg("rax", "rax")
	skipJmp := o.rawJz()

	elemAddr("r8")
	o.MovMemToReg("rsi", "r8", 0)
	o.MovRegToReg("rdi", "r13")
	o.CallSymbol("_vector_push")
	o.MovRegToReg("r13", "rax")

	o.PatchRel32(skipJmp, o.Len())
	o.AddImmToReg("r15", 1)
	backJmp := o.rawJmp()
	o.PatchRel32(backJmp, top)
	o.PatchRel32(doneJmp, o.Len())

	o.MovRegToReg("rax", "r13")
	o.PopReg("r15")
	o.PopReg("r14")
	o.PopReg("r13")
	o.PopReg("r12")
	o.PopReg("rbx")
	o.PopReg("rbp")
	o.Ret()
	return o
}

// emitVectorReduce builds
// `_vector_reduce(fn: rdi, acc: rsi, vec: rdx) -> val: rax`, folding fn
// left to right over vec starting from acc. fn is called (acc, elem).
func emitVectorReduce() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	o.PushReg("rbx")
	o.PushReg("r12")
	o.PushReg("r13")
	o.PushReg("r14")
	o.PushReg("r15")

	o.MovRegToReg("r14", "rdi") // fn
	o.MovRegToReg("r13", "rsi") // running accumulator
	o.MovRegToReg("r12", "rdx") // vec

	o.MovMemToReg("rbx", "r12", 0) // count
	o.XorRegToReg("r15", "r15")    // index

	top := o.Len()
	o.CmpRegToReg("r15", "rbx")
	doneJmp := o.rawJge()

	o.MovRegToReg("rdx", "r15")
	o.AddRegToReg("rdx", "rdx")
	o.AddRegToReg("rdx", "rdx")
	o.AddRegToReg("rdx", "rdx")
	o.AddImmToReg("rdx", vectorHeaderSize)
	o.MovRegToReg("r8", "r12")
	o.AddRegToReg("r8", "rdx")
	o.MovMemToReg("rsi", "r8", 0) // elem
	o.MovRegToReg("rdi", "r13")   // acc
	o.CallIndirectReg("r14")
	o.MovRegToReg("r13", "rax")
	o.AddImmToReg("r15", 1)
	backJmp := o.rawJmp()
	o.PatchRel32(backJmp, top)
	o.PatchRel32(doneJmp, o.Len())

	o.MovRegToReg("rax", "r13")
	o.PopReg("r15")
	o.PopReg("r14")
	o.PopReg("r13")
	o.PopReg("r12")
	o.PopReg("rbx")
	o.PopReg("rbp")
	o.Ret()
	return o
}

// emitVectorEquals builds `_vector_equals(a: rdi, b: rsi) -> bool: rax`:
// same count and every payload word equal at the same index (vectors
// are ordered, unlike sets).
func emitVectorEquals() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	o.PushReg("rbx")
	o.PushReg("r12")

	o.MovMemToReg("rax", "rdi", 0)
	o.MovMemToReg("rcx", "rsi", 0)
	o.CmpRegToReg("rax", "rcx")
	countMismatchJmp := o.rawJnz()

	o.MovRegToReg("rbx", "rax") // count
	o.MovRegToReg("r8", "rdi")
	o.AddImmToReg("r8", vectorHeaderSize)
	o.MovRegToReg("r12", "rsi")
	o.AddImmToReg("r12", vectorHeaderSize)

	top := o.Len()
	o.CmpImmToReg("rbx", 0)
	allEqualJmp := o.rawJump(0x0F, 0x84)
	o.MovMemToReg("rax", "r8", 0)
	o.MovMemToReg("rcx", "r12", 0)
	o.CmpRegToReg("rax", "rcx")
	elemMismatchJmp := o.rawJnz()
	o.AddImmToReg("r8", 8)
	o.AddImmToReg("r12", 8)
	o.SubImmFromReg("rbx", 1)
	backJmp := o.rawJmp()
	o.PatchRel32(backJmp, top)

	o.PatchRel32(allEqualJmp, o.Len())
	o.MovImmToReg("rax", 1)
	doneJmp := o.rawJmp()

	o.PatchRel32(countMismatchJmp, o.Len())
	o.PatchRel32(elemMismatchJmp, o.Len())
	o.XorRegToReg("rax", "rax")

	o.PatchRel32(doneJmp, o.Len())
	o.PopReg("r12")
	o.PopReg("rbx")
	o.PopReg("rbp")
	o.Ret()
	return o
}
