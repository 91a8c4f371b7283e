package main

// runtime_set.go - set helpers, layered on the vector layout
// (runtime_vector.go): a set is a vector with an added uniqueness
// check on insertion and linear-scan membership, which is what an
// associative structure reduces to once the value side is dropped.
// `_set_new`, `_set_count`, and `_set_clone` are the exact vector
// routines, reused rather than duplicated byte-for-byte.

func emitSetNew() *Out    { return emitVectorNew() }
func emitSetCount() *Out  { return emitVectorCount() }
func emitSetClone() *Out  { return emitVectorClone() }

// emitSetAdd builds `_set_add(set: rdi, val: rsi) -> ptr: rax`: a
// linear scan for an existing equal element, falling through to
// `_vector_push` (growth included) only on a miss.
func emitSetAdd() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	o.PushReg("rbx")
	o.PushReg("r12")
	o.PushReg("r13")

	o.MovRegToReg("r12", "rdi")
	o.MovRegToReg("r13", "rsi")
	o.MovMemToReg("rbx", "r12", 0) // count

	o.MovRegToReg("r8", "r12")
	o.AddImmToReg("r8", vectorHeaderSize)
	o.XorRegToReg("rcx", "rcx")

	top := o.Len()
	o.CmpRegToReg("rcx", "rbx")
	notFoundJmp := o.rawJge()
	o.MovMemToReg("rdx", "r8", 0)
	o.CmpRegToReg("rdx", "r13")
	foundJmp := o.rawJump(0x0F, 0x84) // je
	o.AddImmToReg("r8", 8)
	o.AddImmToReg("rcx", 1)
	backJmp := o.rawJmp()
	o.PatchRel32(backJmp, top)

	o.PatchRel32(notFoundJmp, o.Len())
	o.MovRegToReg("rdi", "r12")
	o.MovRegToReg("rsi", "r13")
	o.CallSymbol("_vector_push")
	doneJmp := o.rawJmp()

	o.PatchRel32(foundJmp, o.Len())
	o.MovRegToReg("rax", "r12")

	o.PatchRel32(doneJmp, o.Len())
	o.PopReg("r13")
	o.PopReg("r12")
	o.PopReg("rbx")
	o.PopReg("rbp")
	o.Ret()
	return o
}

// emitSetContains builds `_set_contains(set: rdi, val: rsi) -> bool: rax`.
func emitSetContains() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")

	o.MovMemToReg("rcx", "rdi", 0) // count
	o.MovRegToReg("r8", "rdi")
	o.AddImmToReg("r8", vectorHeaderSize)
	o.XorRegToReg("rdx", "rdx")

	top := o.Len()
	o.CmpRegToReg("rdx", "rcx")
	notFoundJmp := o.rawJge()
	o.MovMemToReg("r9", "r8", 0)
	o.CmpRegToReg("r9", "rsi")
	foundJmp := o.rawJump(0x0F, 0x84)
	o.AddImmToReg("r8", 8)
	o.AddImmToReg("rdx", 1)
	backJmp := o.rawJmp()
	o.PatchRel32(backJmp, top)

	o.PatchRel32(notFoundJmp, o.Len())
	o.XorRegToReg("rax", "rax")
	doneJmp := o.rawJmp()

	o.PatchRel32(foundJmp, o.Len())
	o.MovImmToReg("rax", 1)

	o.PatchRel32(doneJmp, o.Len())
	o.PopReg("rbp")
	o.Ret()
	return o
}

// emitSetDisj builds `_set_disj(set: rdi, val: rsi) -> ptr: rax`,
// compacting the backing array over the first matching element and
// decrementing count. A miss leaves the set unchanged.
func emitSetDisj() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	o.PushReg("rbx")
	o.PushReg("r12")

	o.MovRegToReg("r12", "rdi")
	o.MovMemToReg("rbx", "r12", 0) // count
	o.MovRegToReg("r8", "r12")
	o.AddImmToReg("r8", vectorHeaderSize)
	o.XorRegToReg("rcx", "rcx")

	scanTop := o.Len()
	o.CmpRegToReg("rcx", "rbx")
	notFoundJmp := o.rawJge()
	o.MovMemToReg("rdx", "r8", 0)
	o.CmpRegToReg("rdx", "rsi")
	foundJmp := o.rawJump(0x0F, 0x84)
	o.AddImmToReg("r8", 8)
	o.AddImmToReg("rcx", 1)
	backJmp := o.rawJmp()
	o.PatchRel32(backJmp, scanTop)

	o.PatchRel32(notFoundJmp, o.Len())
	doneJmp1 := o.rawJmp()

	// Found at r8 (address), index rcx: shift every later element down
	// by one slot, then decrement count.
	o.PatchRel32(foundJmp, o.Len())
	o.MovRegToReg("r9", "r8")
	o.AddImmToReg("r9", 8) // source = next slot

	shiftTop := o.Len()
	o.AddImmToReg("rcx", 1)
	o.CmpRegToReg("rcx", "rbx")
	shiftDoneJmp := o.rawJge()
	o.MovMemToReg("rdx", "r9", 0)
	o.MovRegToMem("rdx", "r8", 0)
	o.AddImmToReg("r8", 8)
	o.AddImmToReg("r9", 8)
	shiftBackJmp := o.rawJmp()
	o.PatchRel32(shiftBackJmp, shiftTop)
	o.PatchRel32(shiftDoneJmp, o.Len())

	o.MovRegToReg("rcx", "rbx")
	o.SubImmFromReg("rcx", 1)
	o.MovRegToMem("rcx", "r12", 0)

	o.PatchRel32(doneJmp1, o.Len())
	o.MovRegToReg("rax", "r12")

	o.PopReg("r12")
	o.PopReg("rbx")
	o.PopReg("rbp")
	o.Ret()
	return o
}

// emitSetEquals builds `_set_equals(a: rdi, b: rsi) -> bool: rax`:
// same cardinality and every element of a contained in b (sets carry
// no order, so this is the correct notion of equality regardless of
// each set's internal insertion order).
func emitSetEquals() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	o.PushReg("rbx")
	o.PushReg("r12")
	o.PushReg("r13")
	o.PushReg("r14")
	o.PushReg("r15")

	o.MovRegToReg("r12", "rdi")
	o.MovRegToReg("r13", "rsi")
	o.MovMemToReg("rax", "r12", 0)
	o.MovMemToReg("rcx", "r13", 0)
	o.CmpRegToReg("rax", "rcx")
	countMismatchJmp := o.rawJnz()

	// rbx/r14/r15 are callee-saved: they must survive the
	// `_set_contains` call inside the loop below, unlike rcx/r8-r11.
	o.MovRegToReg("rbx", "r12")
	o.AddImmToReg("rbx", vectorHeaderSize)
	o.XorRegToReg("r15", "r15")
	o.MovMemToReg("r14", "r12", 0) // count(a)

	top := o.Len()
	o.CmpRegToReg("r15", "r14")
	allMatchedJmp := o.rawJge()
	o.MovMemToReg("rdi", "rbx", 0)
	o.MovRegToReg("rsi", "r13")
	o.CallSymbol("_set_contains")
	o.TestRegToReg("rax", "rax")
	mismatchJmp := o.rawJz()
	o.AddImmToReg("rbx", 8)
	o.AddImmToReg("r15", 1)
	backJmp := o.rawJmp()
	o.PatchRel32(backJmp, top)

	o.PatchRel32(allMatchedJmp, o.Len())
	o.MovImmToReg("rax", 1)
	doneJmp := o.rawJmp()

	o.PatchRel32(countMismatchJmp, o.Len())
	o.PatchRel32(mismatchJmp, o.Len())
	o.XorRegToReg("rax", "rax")

	o.PatchRel32(doneJmp, o.Len())
	o.PopReg("r15")
	o.PopReg("r14")
	o.PopReg("r13")
	o.PopReg("r12")
	o.PopReg("rbx")
	o.PopReg("rbp")
	o.Ret()
	return o
}
