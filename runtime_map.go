package main

// runtime_map.go - map helpers. Layout:
// [count:8][capacity:8][key_0:8][val_0:8][key_1:8][val_1:8]... -
// interleaved key/value pairs rather than separate key/value arrays,
// so growth is one doubling-copy loop shared with the same shape
// runtime_vector.go already uses, just at a 16-byte stride. Membership
// and lookup are linear scans; this core has no hashing story, a
// simplification suited to the small maps typical Slisp programs work
// with.
const (
	mapInitialCap    = 4
	mapHeaderSize    = 16 // count + capacity, same shape as vectorHeaderSize
	mapEntryStride   = 16 // key + val, one 64-bit word each
)

// emitMapNew builds `_map_new() -> ptr`.
func emitMapNew() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")

	o.MovImmToReg("rdi", mapHeaderSize+mapInitialCap*mapEntryStride)
	o.CallSymbol("_allocate")
	o.XorRegToReg("rcx", "rcx")
	o.MovRegToMem("rcx", "rax", 0)
	o.MovImmToReg("rcx", mapInitialCap)
	o.MovRegToMem("rcx", "rax", 8)

	o.PopReg("rbp")
	o.Ret()
	return o
}

// emitMapCount builds `_map_count(map: rdi) -> n: rax`, needed by
// (count m) the same way _vector_count/_set_count are.
func emitMapCount() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	o.MovMemToReg("rax", "rdi", 0)
	o.PopReg("rbp")
	o.Ret()
	return o
}

// emitMapPut builds `_map_put(map: rdi, key: rsi, val: rdx) -> ptr: rax`.
// A matching key overwrites its value in place; otherwise the pair is
// appended, growing the backing array first if full (the returned
// pointer may differ from the argument, matching the vector/set
// builder-slot discipline compiler_collections.go relies on).
func emitMapPut() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	o.PushReg("rbx")
	o.PushReg("r12")
	o.PushReg("r13")
	o.PushReg("r14")
	o.PushReg("r15")

	o.MovRegToReg("r12", "rdi") // r12 = map
	o.MovRegToReg("r13", "rsi") // r13 = key
	o.MovRegToReg("r14", "rdx") // r14 = val
	o.MovMemToReg("rbx", "r12", 0) // count

	// Scan for an existing key.
	o.MovRegToReg("r8", "r12")
	o.AddImmToReg("r8", mapHeaderSize)
	o.XorRegToReg("rcx", "rcx")

	scanTop := o.Len()
	o.CmpRegToReg("rcx", "rbx")
	notFoundJmp := o.rawJge()
	o.MovMemToReg("r9", "r8", 0)
	o.CmpRegToReg("r9", "r13")
	foundJmp := o.rawJump(0x0F, 0x84)
	o.AddImmToReg("r8", mapEntryStride)
	o.AddImmToReg("rcx", 1)
	backJmp := o.rawJmp()
	o.PatchRel32(backJmp, scanTop)

	o.PatchRel32(foundJmp, o.Len())
	o.MovRegToMem("r14", "r8", 8)
	o.MovRegToReg("rax", "r12")
	foundDoneJmp := o.rawJmp()

	o.PatchRel32(notFoundJmp, o.Len())
	o.MovMemToReg("r15", "r12", 8) // capacity
	o.CmpRegToReg("rbx", "r15")
	skipGrowJmp := o.rawJl()

	// Grow: new capacity = capacity*2.
	o.MovRegToReg("r9", "r15")
	o.AddRegToReg("r9", "r15") // r9 = new capacity, pushed across the call below
	o.MovRegToReg("rdx", "r9")
	o.MovImmToReg("rcx", mapEntryStride)
	o.IMulRegToReg("rdx", "rcx")
	o.AddImmToReg("rdx", mapHeaderSize)
	o.MovRegToReg("rdi", "rdx")
	o.PushReg("r9")
	o.CallSymbol("_allocate")
	o.PopReg("r9")
	o.MovRegToReg("r15", "rax")
	o.MovRegToMem("rbx", "r15", 0)
	o.MovRegToMem("r9", "r15", 8)

	o.MovRegToReg("r8", "r12")
	o.AddImmToReg("r8", mapHeaderSize)
	o.MovRegToReg("r9", "r15")
	o.AddImmToReg("r9", mapHeaderSize)
	o.MovRegToReg("rcx", "rbx")
	o.MovRegToReg("rdx", "rcx")
	o.AddRegToReg("rdx", "rdx") // count*2 words (key+val per entry)

	copyTop := o.Len()
	o.CmpImmToReg("rdx", 0)
	copyDoneJmp := o.rawJump(0x0F, 0x84)
	o.MovMemToReg("r10", "r8", 0)
	o.MovRegToMem("r10", "r9", 0)
	o.AddImmToReg("r8", 8)
	o.AddImmToReg("r9", 8)
	o.SubImmFromReg("rdx", 1)
	copyBackJmp := o.rawJmp()
	o.PatchRel32(copyBackJmp, copyTop)
	o.PatchRel32(copyDoneJmp, o.Len())

	o.MovRegToReg("rdi", "r12")
	o.CallSymbol("_free")
	o.MovRegToReg("r12", "r15")

	o.PatchRel32(skipGrowJmp, o.Len())

	// Append the new pair at entries[count].
	o.MovRegToReg("rdx", "rbx")
	o.MovImmToReg("rcx", mapEntryStride)
	o.IMulRegToReg("rdx", "rcx")
	o.AddImmToReg("rdx", mapHeaderSize)
	o.MovRegToReg("r8", "r12")
	o.AddRegToReg("r8", "rdx")
	o.MovRegToMem("r13", "r8", 0)
	o.MovRegToMem("r14", "r8", 8)

	o.MovRegToReg("rcx", "rbx")
	o.AddImmToReg("rcx", 1)
	o.MovRegToMem("rcx", "r12", 0)

	o.MovRegToReg("rax", "r12")

	o.PatchRel32(foundDoneJmp, o.Len())
	o.PopReg("r15")
	o.PopReg("r14")
	o.PopReg("r13")
	o.PopReg("r12")
	o.PopReg("rbx")
	o.PopReg("rbp")
	o.Ret()
	return o
}

// mapScan emits a linear scan of map (in reg) for key (in keyReg),
// leaving the matching entry's address in r8 and jumping to notFound
// (an unresolved rawJump site, returned for the caller to patch) on a
// miss. Shared by get/contains/dissoc/equals.
func (o *Out) mapScan(mapReg, keyReg string) (foundAddrReg string, notFound int) {
	o.MovMemToReg("rcx", mapReg, 0) // count
	o.MovRegToReg("r8", mapReg)
	o.AddImmToReg("r8", mapHeaderSize)
	o.XorRegToReg("r9", "r9")

	top := o.Len()
	o.CmpRegToReg("r9", "rcx")
	miss := o.rawJge()
	o.MovMemToReg("r10", "r8", 0)
	o.CmpRegToReg("r10", keyReg)
	hit := o.rawJump(0x0F, 0x84)
	o.AddImmToReg("r8", mapEntryStride)
	o.AddImmToReg("r9", 1)
	back := o.rawJmp()
	o.PatchRel32(back, top)
	o.PatchRel32(hit, o.Len())
	return "r8", miss
}

// emitMapGet builds `_map_get(map: rdi, key: rsi) -> val: rax`,
// returning nil's zero payload on a miss.
func emitMapGet() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")

	_, miss := o.mapScan("rdi", "rsi")
	o.MovMemToReg("rax", "r8", 8)
	doneJmp := o.rawJmp()

	o.PatchRel32(miss, o.Len())
	o.XorRegToReg("rax", "rax")

	o.PatchRel32(doneJmp, o.Len())
	o.PopReg("rbp")
	o.Ret()
	return o
}

// emitMapContains builds `_map_contains(map: rdi, key: rsi) -> bool: rax`.
func emitMapContains() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")

	_, miss := o.mapScan("rdi", "rsi")
	o.MovImmToReg("rax", 1)
	doneJmp := o.rawJmp()

	o.PatchRel32(miss, o.Len())
	o.XorRegToReg("rax", "rax")

	o.PatchRel32(doneJmp, o.Len())
	o.PopReg("rbp")
	o.Ret()
	return o
}

// emitMapDissoc builds `_map_dissoc(map: rdi, key: rsi) -> ptr: rax`,
// compacting the entry array over the matching pair. A miss leaves the
// map unchanged.
func emitMapDissoc() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	o.PushReg("rbx")
	o.PushReg("r12")

	o.MovRegToReg("r12", "rdi")
	o.MovMemToReg("rbx", "r12", 0) // count

	addrReg, miss := o.mapScan("r12", "rsi")
	// addrReg is "r8", pointing at the matched entry.
	o.MovRegToReg("r9", addrReg)
	o.AddImmToReg("r9", mapEntryStride) // source = next entry

	shiftTop := o.Len()
	// rcx already holds the scan index+1 from mapScan's loop exit is
	// not reliable across the hit branch, so recompute the remaining
	// count directly from pointer arithmetic instead.
	o.MovRegToReg("rdx", "r9")
	o.MovRegToReg("rcx", "r12")
	o.AddImmToReg("rcx", mapHeaderSize)
	o.MovRegToReg("r10", "rbx")
	o.MovImmToReg("rax", mapEntryStride)
	o.IMulRegToReg("r10", "rax")
	o.AddRegToReg("rcx", "r10") // rcx = one-past-last entry address
	o.CmpRegToReg("rdx", "rcx")
	shiftDoneJmp := o.rawJge()
	o.MovMemToReg("rax", "r9", 0)
	o.MovRegToMem("rax", addrReg, 0)
	o.MovMemToReg("rax", "r9", 8)
	o.MovRegToMem("rax", addrReg, 8)
	o.AddImmToReg(addrReg, mapEntryStride)
	o.AddImmToReg("r9", mapEntryStride)
	shiftBackJmp := o.rawJmp()
	o.PatchRel32(shiftBackJmp, shiftTop)
	o.PatchRel32(shiftDoneJmp, o.Len())

	o.MovRegToReg("rcx", "rbx")
	o.SubImmFromReg("rcx", 1)
	o.MovRegToMem("rcx", "r12", 0)
	o.MovRegToReg("rax", "r12")
	doneJmp := o.rawJmp()

	o.PatchRel32(miss, o.Len())
	o.MovRegToReg("rax", "r12")

	o.PatchRel32(doneJmp, o.Len())
	o.PopReg("r12")
	o.PopReg("rbx")
	o.PopReg("rbp")
	o.Ret()
	return o
}

// emitMapClone builds `_map_clone(map: rdi) -> ptr: rax`.
func emitMapClone() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	o.PushReg("rbx")
	o.PushReg("r12")

	o.MovRegToReg("r12", "rdi")
	o.MovMemToReg("rbx", "r12", 8) // capacity
	o.MovRegToReg("rdx", "rbx")
	o.MovImmToReg("rcx", mapEntryStride)
	o.IMulRegToReg("rdx", "rcx")
	o.AddImmToReg("rdx", mapHeaderSize)
	o.MovRegToReg("rdi", "rdx")
	o.CallSymbol("_allocate")

	o.MovMemToReg("rcx", "r12", 0)
	o.MovRegToMem("rcx", "rax", 0)
	o.MovRegToMem("rbx", "rax", 8)

	o.MovRegToReg("r8", "r12")
	o.AddImmToReg("r8", mapHeaderSize)
	o.MovRegToReg("r9", "rax")
	o.AddImmToReg("r9", mapHeaderSize)
	o.MovRegToReg("rcx", "rbx")
	o.AddRegToReg("rcx", "rcx") // capacity*2 words

	top := o.Len()
	o.CmpImmToReg("rcx", 0)
	doneJmp := o.rawJump(0x0F, 0x84)
	o.MovMemToReg("r10", "r8", 0)
	o.MovRegToMem("r10", "r9", 0)
	o.AddImmToReg("r8", 8)
	o.AddImmToReg("r9", 8)
	o.SubImmFromReg("rcx", 1)
	backJmp := o.rawJmp()
	o.PatchRel32(backJmp, top)
	o.PatchRel32(doneJmp, o.Len())

	o.PopReg("r12")
	o.PopReg("rbx")
	o.PopReg("rbp")
	o.Ret()
	return o
}

// emitMapEquals builds `_map_equals(a: rdi, b: rsi) -> bool: rax`: same
// cardinality and every key of a maps to an equal value in b.
func emitMapEquals() *Out {
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

	// rbx/r14/r15 are callee-saved: they survive the nested
	// `_map_get` call inside the loop below.
	o.MovRegToReg("rbx", "r12")
	o.AddImmToReg("rbx", mapHeaderSize)
	o.XorRegToReg("r15", "r15")
	o.MovMemToReg("r14", "r12", 0) // count(a)

	top := o.Len()
	o.CmpRegToReg("r15", "r14")
	allMatchedJmp := o.rawJge()
	o.MovMemToReg("rdi", "rbx", 0) // key
	o.MovRegToReg("rsi", "r13")
	o.CallSymbol("_map_contains")
	o.TestRegToReg("rax", "rax")
	containsMissJmp := o.rawJz()
	// rbx is callee-saved and still points at a's current entry, so
	// val(a) can be re-read from it after the call above instead of
	// being cached across it.
	o.MovMemToReg("rdi", "rbx", 0)
	o.MovRegToReg("rsi", "r13")
	o.CallSymbol("_map_get")
	o.MovMemToReg("rcx", "rbx", 8) // val(a)
	o.CmpRegToReg("rax", "rcx")
	valMismatchJmp := o.rawJnz()
	o.AddImmToReg("rbx", mapEntryStride)
	o.AddImmToReg("r15", 1)
	backJmp := o.rawJmp()
	o.PatchRel32(backJmp, top)

	o.PatchRel32(allMatchedJmp, o.Len())
	o.MovImmToReg("rax", 1)
	doneJmp := o.rawJmp()

	o.PatchRel32(countMismatchJmp, o.Len())
	o.PatchRel32(containsMissJmp, o.Len())
	o.PatchRel32(valMismatchJmp, o.Len())
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

// emitMapKeys builds `_map_keys(map: rdi) -> vec: rax`.
func emitMapKeys() *Out { return emitMapProject(0) }

// emitMapVals builds `_map_vals(map: rdi) -> vec: rax`.
func emitMapVals() *Out { return emitMapProject(8) }

// emitMapProject builds the shared body of _map_keys/_map_vals: a new
// vector filled with one word per entry, taken at byte offset
// `fieldOffset` (0 for keys, 8 for values) within each entry.
func emitMapProject(fieldOffset int32) *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	o.PushReg("rbx")
	o.PushReg("r12")
	o.PushReg("r13")
	o.PushReg("r14")
	o.PushReg("r15") // r15 = loop index; rcx is clobbered by _vector_push below

	o.MovRegToReg("r12", "rdi") // map
	o.CallSymbol("_vector_new")
	o.MovRegToReg("r13", "rax") // result vector (may be re-stored by push)

	o.MovMemToReg("rbx", "r12", 0) // count
	o.MovRegToReg("r14", "r12")
	o.AddImmToReg("r14", mapHeaderSize+fieldOffset)
	o.XorRegToReg("r15", "r15")

	top := o.Len()
	o.CmpRegToReg("r15", "rbx")
	doneJmp := o.rawJge()
	o.MovMemToReg("rsi", "r14", 0)
	o.MovRegToReg("rdi", "r13")
	o.CallSymbol("_vector_push")
	o.MovRegToReg("r13", "rax")
	o.AddImmToReg("r14", mapEntryStride)
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

// emitMapMerge builds `_map_merge(a: rdi, b: rsi) -> ptr: rax`: a clone
// of a with every entry of b assoc'd in, b's values winning on key
// collision.
func emitMapMerge() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	o.PushReg("rbx")
	o.PushReg("r12")
	o.PushReg("r13")
	o.PushReg("r14")
	o.PushReg("r15") // r15 = loop index; rcx is clobbered by _map_put below

	o.MovRegToReg("r12", "rsi") // b
	o.CallSymbol("_map_clone")  // clones a (still in rdi)
	o.MovRegToReg("r13", "rax") // r13 = result, re-stored after every put

	o.MovMemToReg("rbx", "r12", 0) // count(b)
	o.MovRegToReg("r14", "r12")
	o.AddImmToReg("r14", mapHeaderSize)
	o.XorRegToReg("r15", "r15")

	top := o.Len()
	o.CmpRegToReg("r15", "rbx")
	doneJmp := o.rawJge()
	o.MovRegToReg("rdi", "r13")
	o.MovMemToReg("rsi", "r14", 0)
	o.MovMemToReg("rdx", "r14", 8)
	o.CallSymbol("_map_put")
	o.MovRegToReg("r13", "rax")
	o.AddImmToReg("r14", mapEntryStride)
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

// emitMapSelectKeys builds
// `_map_select_keys(map: rdi, keys: rsi) -> ptr: rax`: a new map
// holding only the entries of map whose key appears in the keys
// vector. A key absent from map is silently skipped, matching
// Clojure's select-keys rather than inserting a nil entry for it.
func emitMapSelectKeys() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	o.PushReg("rbx")
	o.PushReg("r12")
	o.PushReg("r13")
	o.PushReg("r14")
	o.PushReg("r15")

	o.MovRegToReg("r12", "rdi") // map
	o.MovRegToReg("r14", "rsi") // keys vector
	o.CallSymbol("_map_new")
	o.MovRegToReg("r13", "rax") // result, re-stored after every put

	o.MovMemToReg("rbx", "r14", 0) // key count
	o.XorRegToReg("r15", "r15")

	keyAddr := func() {
		o.MovRegToReg("rdx", "r15")
		o.AddRegToReg("rdx", "rdx")
		o.AddRegToReg("rdx", "rdx")
		o.AddRegToReg("rdx", "rdx")
		o.AddImmToReg("rdx", vectorHeaderSize)
		o.MovRegToReg("r8", "r14")
		o.AddRegToReg("r8", "rdx")
	}

	top := o.Len()
	o.CmpRegToReg("r15", "rbx")
	doneJmp := o.rawJge()

	keyAddr()
	o.MovMemToReg("rsi", "r8", 0)
	o.MovRegToReg("rdi", "r12")
	o.CallSymbol("_map_contains")
	o.TestRegToReg("rax", "rax")
	skipJmp := o.rawJz()

	keyAddr()
	o.MovMemToReg("rsi", "r8", 0)
	o.MovRegToReg("rdi", "r12")
	o.CallSymbol("_map_get")
	o.PushReg("rax")

	keyAddr()
	o.MovMemToReg("rsi", "r8", 0)
	o.MovRegToReg("rdi", "r13")
	o.PopReg("rdx")
	o.CallSymbol("_map_put")
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

// emitMapZipmap builds
// `_map_zipmap(keys: rdi, vals: rsi) -> ptr: rax`: a new map pairing
// keys[i] with vals[i] up to the shorter of the two vectors.
func emitMapZipmap() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	o.PushReg("rbx")
	o.PushReg("r12")
	o.PushReg("r13")
	o.PushReg("r14")
	o.PushReg("r15")

	o.MovRegToReg("r12", "rdi") // keys vector
	o.MovRegToReg("r14", "rsi") // vals vector
	o.CallSymbol("_map_new")
	o.MovRegToReg("r13", "rax")

	o.MovMemToReg("rbx", "r12", 0) // count(keys)
	o.MovMemToReg("rcx", "r14", 0) // count(vals)
	o.CmpRegToReg("rcx", "rbx")
	keepJmp := o.rawJge()
	o.MovRegToReg("rbx", "rcx")
	o.PatchRel32(keepJmp, o.Len())

	o.XorRegToReg("r15", "r15")

	elemAddr := func(base, dst string) {
		o.MovRegToReg(dst, "r15")
		o.AddRegToReg(dst, dst)
		o.AddRegToReg(dst, dst)
		o.AddRegToReg(dst, dst)
		o.AddImmToReg(dst, vectorHeaderSize)
		o.AddRegToReg(dst, base)
	}

	top := o.Len()
	o.CmpRegToReg("r15", "rbx")
	doneJmp := o.rawJge()

	elemAddr("r12", "r8")
	elemAddr("r14", "r9")
	o.MovMemToReg("rsi", "r8", 0) // key
	o.MovMemToReg("rdx", "r9", 0) // val
	o.MovRegToReg("rdi", "r13")
	o.CallSymbol("_map_put")
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
