package main

// runtime_string.go - string helpers. Layout:
// [header:8][length:8][bytes...][NUL:1].

const stringHeaderExtra = 8 // the length word, beyond the generic heap header

// emitStringClone builds `_string_clone(s: rdi) -> ptr: rax`, a deep
// copy: cloning a string literal returns a fresh heap copy.
func emitStringClone() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	o.PushReg("rbx")
	o.PushReg("r12")
	o.PushReg("r14") // r14 = result pointer, held across copyBytesLoop's rax scratch use

	o.MovRegToReg("r12", "rdi")
	o.MovMemToReg("rbx", "r12", 0) // length
	o.MovRegToReg("rdi", "rbx")
	o.AddImmToReg("rdi", stringHeaderExtra+1) // +length word +NUL
	o.CallSymbol("_allocate")
	o.MovRegToReg("r14", "rax")

	o.MovRegToMem("rbx", "r14", 0)
	o.MovRegToReg("r8", "r12")
	o.AddImmToReg("r8", stringHeaderExtra)
	o.MovRegToReg("r9", "r14")
	o.AddImmToReg("r9", stringHeaderExtra)
	o.MovRegToReg("rcx", "rbx")
	o.AddImmToReg("rcx", 1) // copy bytes + NUL

	o.copyBytesLoop("r8", "r9", "rcx")

	o.MovRegToReg("rax", "r14")
	o.PopReg("r14")
	o.PopReg("r12")
	o.PopReg("rbx")
	o.PopReg("rbp")
	o.Ret()
	return o
}

// copyBytesLoop copies count bytes one at a time from [src] to [dst],
// advancing both pointers. Used by the string helpers that need a
// byte-granular copy rather than the word-granular one the
// vector/map/set helpers use for their payload arrays. count is
// clobbered; src/dst end one-past the copied region. rax/rdx are used
// as scratch - a pointer a caller still needs after this call must live
// in a register other than those two (and other than src/dst/count).
func (o *Out) copyBytesLoop(src, dst, count string) {
	top := o.Len()
	o.CmpImmToReg(count, 0)
	doneJmp := o.rawJump(0x0F, 0x84) // je (ZF set when count==0, matches CmpImmToReg result)
	o.MovByteMemToReg("rax", src)
	o.MovByteRegToMem("rax", dst)
	o.AddImmToReg(src, 1)
	o.AddImmToReg(dst, 1)
	o.SubImmFromReg(count, 1)
	backJmp := o.rawJmp()
	o.PatchRel32(backJmp, top)
	o.PatchRel32(doneJmp, o.Len())
}

// emitStringCount builds `_string_count(s: rdi) -> n: rax`.
func emitStringCount() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	o.MovMemToReg("rax", "rdi", 0)
	o.PopReg("rbp")
	o.Ret()
	return o
}

// emitStringConcat builds `_string_concat(a: rdi, b: rsi) -> ptr: rax`.
func emitStringConcat() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	o.PushReg("rbx")
	o.PushReg("r12")
	o.PushReg("r13")
	o.PushReg("r14")
	o.PushReg("r15") // r15 = result pointer, held across copyBytesLoop's rax scratch use

	o.MovRegToReg("r12", "rdi")
	o.MovRegToReg("r13", "rsi")
	o.MovMemToReg("rbx", "r12", 0) // len(a)
	o.MovMemToReg("r14", "r13", 0) // len(b)

	o.MovRegToReg("rdi", "rbx")
	o.AddRegToReg("rdi", "r14")
	o.AddImmToReg("rdi", stringHeaderExtra+1)
	o.CallSymbol("_allocate")
	o.MovRegToReg("r15", "rax")

	o.MovRegToReg("rcx", "rbx")
	o.AddRegToReg("rcx", "r14")
	o.MovRegToMem("rcx", "r15", 0)

	o.MovRegToReg("r8", "r12")
	o.AddImmToReg("r8", stringHeaderExtra)
	o.MovRegToReg("r9", "r15")
	o.AddImmToReg("r9", stringHeaderExtra)
	o.MovRegToReg("rcx", "rbx")
	o.copyBytesLoop("r8", "r9", "rcx")

	o.MovRegToReg("r8", "r13")
	o.AddImmToReg("r8", stringHeaderExtra)
	o.MovRegToReg("rcx", "r14")
	o.copyBytesLoop("r8", "r9", "rcx") // r9 left one-past a's bytes by the first copy

	o.XorRegToReg("rdx", "rdx")
	o.MovByteRegToMem("rdx", "r9") // NUL terminator

	o.MovRegToReg("rax", "r15")
	o.PopReg("r15")
	o.PopReg("r14")
	o.PopReg("r13")
	o.PopReg("r12")
	o.PopReg("rbx")
	o.PopReg("rbp")
	o.Ret()
	return o
}

// emitStringNormalize builds `_string_normalize(v: rdi) -> ptr: rax`.
// This core tracks no runtime type tag separate from ValueKind (see
// runtime_vector.go's file comment), so polymorphic normalization of an
// unresolved-kind argument degrades to the same deep copy
// `_string_clone` performs - correct whenever the value reaching it
// actually is a string (the common case once phase A/B has narrowed
// real call sites), a known gap for a value that reaches here as some
// other kind.
func emitStringNormalize() *Out { return emitStringClone() }

// emitStringFromNumber builds `_string_from_number(n: rdi) -> ptr: rax`,
// base-10 signed conversion.
func emitStringFromNumber() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	o.PushReg("rbx")
	o.PushReg("r12")
	o.PushReg("r13")
	o.PushReg("r14")
	o.PushReg("r15") // r15 = result pointer, held across copyBytesLoop's rax scratch use
	o.SubImmFromReg("rsp", 32) // 32-byte scratch digit buffer

	o.MovRegToReg("rbx", "rdi")  // rbx = n (working value)
	o.XorRegToReg("r14", "r14") // r14 = 0 means positive, 1 means negative
	o.CmpImmToReg("rbx", 0)
	nonNegJmp := o.rawJge()
	o.MovImmToReg("r14", 1)
	o.NegReg("rbx")
	o.PatchRel32(nonNegJmp, o.Len())

	o.MovRegToReg("r12", "rsp")
	o.AddImmToReg("r12", 31)    // r12 = cursor, fills the buffer backward
	o.XorRegToReg("r13", "r13") // r13 = digit count

	digitTop := o.Len()
	o.MovRegToReg("rax", "rbx")
	o.MovImmToReg("rcx", 10)
	o.CqoSignExtendRaxToRdx()
	o.IDivReg("rcx")
	// rax = n/10, rdx = n%10
	o.AddImmToReg("rdx", '0')
	o.MovByteRegToMem("rdx", "r12")
	o.SubImmFromReg("r12", 1)
	o.AddImmToReg("r13", 1)
	o.MovRegToReg("rbx", "rax")
	o.CmpImmToReg("rbx", 0)
	moreDigitsJmp := o.rawJnz()
	o.PatchRel32(moreDigitsJmp, digitTop)

	o.CmpImmToReg("r14", 0)
	noSignJmp := o.rawJump(0x0F, 0x84)
	o.MovImmToReg("rdx", '-')
	o.MovByteRegToMem("rdx", "r12")
	o.SubImmFromReg("r12", 1)
	o.AddImmToReg("r13", 1)
	o.PatchRel32(noSignJmp, o.Len())

	o.AddImmToReg("r12", 1) // r12 now points at the first character

	o.MovRegToReg("rdi", "r13")
	o.AddImmToReg("rdi", stringHeaderExtra+1)
	o.CallSymbol("_allocate")
	o.MovRegToReg("r15", "rax")

	o.MovRegToMem("r13", "r15", 0)
	o.MovRegToReg("r8", "r12")
	o.MovRegToReg("r9", "r15")
	o.AddImmToReg("r9", stringHeaderExtra)
	o.MovRegToReg("rcx", "r13")
	o.copyBytesLoop("r8", "r9", "rcx")
	o.XorRegToReg("rdx", "rdx")
	o.MovByteRegToMem("rdx", "r9")

	o.MovRegToReg("rax", "r15")
	o.AddImmToReg("rsp", 32)
	o.PopReg("r15")
	o.PopReg("r14")
	o.PopReg("r13")
	o.PopReg("r12")
	o.PopReg("rbx")
	o.PopReg("rbp")
	o.Ret()
	return o
}

// emitStringEquals builds `_string_equals(a: rdi, b: rsi) -> bool: rax`.
func emitStringEquals() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	o.PushReg("rbx")
	o.PushReg("r12")
	o.PushReg("r13")

	o.MovRegToReg("r12", "rdi")
	o.MovRegToReg("r13", "rsi")
	o.MovMemToReg("rax", "r12", 0)
	o.MovMemToReg("rcx", "r13", 0)
	o.CmpRegToReg("rax", "rcx")
	mismatchJmp := o.rawJnz()

	o.MovRegToReg("rbx", "rax") // length
	o.MovRegToReg("r8", "r12")
	o.AddImmToReg("r8", stringHeaderExtra)
	o.MovRegToReg("r9", "r13")
	o.AddImmToReg("r9", stringHeaderExtra)

	top := o.Len()
	o.CmpImmToReg("rbx", 0)
	allEqualJmp := o.rawJump(0x0F, 0x84)
	o.MovByteMemToReg("rax", "r8")
	o.MovByteMemToReg("rcx", "r9")
	o.CmpRegToReg("rax", "rcx")
	byteMismatchJmp := o.rawJnz()
	o.AddImmToReg("r8", 1)
	o.AddImmToReg("r9", 1)
	o.SubImmFromReg("rbx", 1)
	backJmp := o.rawJmp()
	o.PatchRel32(backJmp, top)

	o.PatchRel32(allEqualJmp, o.Len())
	o.MovImmToReg("rax", 1)
	doneJmp := o.rawJmp()

	o.PatchRel32(mismatchJmp, o.Len())
	o.PatchRel32(byteMismatchJmp, o.Len())
	o.XorRegToReg("rax", "rax")

	o.PatchRel32(doneJmp, o.Len())
	o.PopReg("r13")
	o.PopReg("r12")
	o.PopReg("rbx")
	o.PopReg("rbp")
	o.Ret()
	return o
}

// emitStringGet builds `_string_get(s: rdi, index: rsi) -> n: rax`,
// returning nil's zero payload out of range.
func emitStringGet() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")

	o.MovMemToReg("rcx", "rdi", 0)
	o.CmpRegToReg("rsi", "rcx")
	oobJmp := o.rawJge()
	o.MovRegToReg("r8", "rdi")
	o.AddImmToReg("r8", stringHeaderExtra)
	o.AddRegToReg("r8", "rsi")
	o.XorRegToReg("rax", "rax")
	o.MovByteMemToReg("rax", "r8")
	doneJmp := o.rawJmp()

	o.PatchRel32(oobJmp, o.Len())
	o.XorRegToReg("rax", "rax")

	o.PatchRel32(doneJmp, o.Len())
	o.PopReg("rbp")
	o.Ret()
	return o
}

// emitStringSubs builds `_string_subs(s: rdi, start: rsi, end: rdx) ->
// ptr: rax`, an owned copy of s[start:end). Invalid bounds (negative
// start, end past the string's length, or start past end) trap via a
// null dereference rather than returning a sentinel - the same
// deterministic-crash discipline runtime_alloc.go documents for
// allocator exhaustion.
func emitStringSubs() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	o.PushReg("rbx")
	o.PushReg("r12")
	o.PushReg("r13")
	o.PushReg("r14")

	o.MovRegToReg("r12", "rdi")   // source string
	o.MovRegToReg("r13", "rsi")   // start
	o.MovRegToReg("r14", "rdx")   // end
	o.MovMemToReg("rbx", "r12", 0) // source length

	o.CmpImmToReg("r13", 0)
	trap1 := o.rawJl()
	o.CmpRegToReg("r14", "rbx")
	trap2 := o.rawJump(0x0F, 0x8F) // jg: end > length
	o.CmpRegToReg("r13", "r14")
	trap3 := o.rawJump(0x0F, 0x8F) // jg: start > end
	okJmp := o.rawJmp()

	trapAt := o.Len()
	o.PatchRel32(trap1, trapAt)
	o.PatchRel32(trap2, trapAt)
	o.PatchRel32(trap3, trapAt)
	o.XorRegToReg("rax", "rax")
	o.MovMemToReg("rax", "rax", 0) // deref null

	o.PatchRel32(okJmp, o.Len())
	o.MovRegToReg("rbx", "r14")
	o.SubRegToReg("rbx", "r13") // rbx = substring length

	o.MovRegToReg("rdi", "rbx")
	o.AddImmToReg("rdi", stringHeaderExtra+1)
	o.CallSymbol("_allocate")

	o.MovRegToMem("rbx", "rax", 0) // length header

	o.MovRegToReg("r9", "r12")
	o.AddImmToReg("r9", stringHeaderExtra)
	o.AddRegToReg("r9", "r13") // src = s.bytes + start
	o.MovRegToReg("r10", "rax")
	o.AddImmToReg("r10", stringHeaderExtra) // dst = result.bytes
	o.MovRegToReg("rcx", "rbx")

	o.PushReg("rax") // result pointer survives copyBytesLoop's rax scratch use
	o.copyBytesLoop("r9", "r10", "rcx")
	o.PopReg("rax")

	o.MovRegToReg("r11", "rax")
	o.AddImmToReg("r11", stringHeaderExtra)
	o.AddRegToReg("r11", "rbx")
	o.XorRegToReg("rdx", "rdx")
	o.MovByteRegToMem("rdx", "r11") // NUL terminator

	o.PopReg("r14")
	o.PopReg("r13")
	o.PopReg("r12")
	o.PopReg("rbx")
	o.PopReg("rbp")
	o.Ret()
	return o
}
