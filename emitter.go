package main

import "encoding/binary"

// emitter.go - lowers an *IRProgram to machine code. Two label-then-
// patch passes: pass 1 emits every function's bytes in isolation and
// assigns addresses once every piece's length is known; pass 2 walks
// every buffer's patch lists and resolves them now that every
// callee/rodata address is known.
//
// The IR's abstract evaluation stack is realized as the literal x86-64
// hardware stack (push/pop of rax/rcx around each binary op); locals
// live in a separate rbp-relative region sized by the function's own
// prologue frame formula (frameSize, below).

// runtimeBuilders maps a runtime symbol name to the function that
// builds its Out buffer, in the same order runtimeSymbols lists them.
var runtimeBuilders = map[string]func() *Out{
	"_heap_init": emitHeapInit,
	"_allocate":  emitAllocate,
	"_free":      emitFree,

	"_string_clone":       emitStringClone,
	"_string_count":       emitStringCount,
	"_string_concat":      emitStringConcat,
	"_string_normalize":   emitStringNormalize,
	"_string_from_number": emitStringFromNumber,
	"_string_equals":      emitStringEquals,
	"_string_get":         emitStringGet,
	"_string_subs":        emitStringSubs,

	"_vector_new":     emitVectorNew,
	"_vector_clone":   emitVectorClone,
	"_vector_push":    emitVectorPush,
	"_vector_get":     emitVectorGet,
	"_vector_count":   emitVectorCount,
	"_vector_equals":  emitVectorEquals,
	"_vector_first":   emitVectorFirst,
	"_vector_rest":    emitVectorRest,
	"_vector_cons":    emitVectorCons,
	"_vector_map":     emitVectorMap,
	"_vector_filter":  emitVectorFilter,
	"_vector_reduce":  emitVectorReduce,

	"_map_new":         emitMapNew,
	"_map_clone":       emitMapClone,
	"_map_put":         emitMapPut,
	"_map_dissoc":      emitMapDissoc,
	"_map_contains":    emitMapContains,
	"_map_get":         emitMapGet,
	"_map_count":       emitMapCount,
	"_map_equals":      emitMapEquals,
	"_map_keys":        emitMapKeys,
	"_map_vals":        emitMapVals,
	"_map_merge":       emitMapMerge,
	"_map_select_keys": emitMapSelectKeys,
	"_map_zipmap":      emitMapZipmap,

	"_set_new":      emitSetNew,
	"_set_clone":    emitSetClone,
	"_set_add":      emitSetAdd,
	"_set_contains": emitSetContains,
	"_set_count":    emitSetCount,
	"_set_disj":     emitSetDisj,
	"_set_equals":   emitSetEquals,

	"_trace_alloc_report": emitTraceAllocReport,
}

// slotOffset returns the rbp-relative displacement of local slot i:
// slots grow downward from rbp, one 8-byte word apiece. Parameter
// slots (0..ParamCount-1) and ordinary local slots share this same
// numbering - compile_context.go's allocSlot binds both through one
// counter, so IRFunction.LocalCount already counts the parameter
// slots; see frameSize.
func slotOffset(slot int) int32 {
	return -int32(8 * (slot + 1))
}

// frameSize computes F for `sub rsp, F`, nominally
// param_count*8 + local_count*8 + 128. compile_context.go's
// localCount() (IRFunction.LocalCount) is the function's high-water
// slot count, and parameters are bound through the very same allocSlot
// counter locals are (NewCompileContext calls bind() for each
// parameter before any local is bound), so the parameter slots are
// already included in LocalCount - adding ParamCount again here would
// double-reserve them. This implementation reads the formula as
// "every slot this function ever uses, plus the 128-byte scratch
// region", i.e. LocalCount*8 + 128, given how slots are actually
// assigned.
func frameSize(fn *IRFunction) int32 {
	return int32(fn.LocalCount*8) + 128
}

// CompiledProgram is the linked output of EmitProgram: the flat code
// blob (entry stub, user functions, runtime helpers, in that order)
// and the rodata blob (the deduplicated string/keyword table), each
// ready to be written verbatim at codeBaseAddr / rodataBaseAddr by
// elf.go (AOT) or jit.go (in-process mmap).
type CompiledProgram struct {
	Code   []byte
	Rodata []byte
}

// rodataSymbol is the synthetic patch-target key for string table
// entry i, sharing the addrOf map CallPatch/AbsPatch resolution
// already uses for function and runtime-helper names.
func rodataSymbol(i int) string {
	return "$str:" + itoaSmall(i)
}

// itoaSmall renders a small non-negative int without pulling in
// strconv for a single call site.
func itoaSmall(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[pos:])
}

// internKeywords ensures every OpPushKeyword literal in prog has a
// slot in the shared string table: keyword payloads are interned, one
// live copy per distinct name, stored the same way a string literal is
// (see value.go's OwnsHeapBlock). ir.go's
// OpPushKeyword instruction carries the keyword's name directly rather
// than a table index, unlike OpPushString, precisely because interning
// happens here rather than during lowering.
func internKeywords(prog *IRProgram) {
	for _, fn := range prog.Functions {
		for _, ins := range fn.Instrs {
			if ins.Kind == OpPushKeyword {
				prog.InternString(ins.Str)
			}
		}
	}
}

// buildRodata lays out prog's string table starting at rodataBaseAddr,
// using the same length-prefixed layout the heap string helpers use
// ([length:8][bytes...][NUL:1], runtime_string.go) so a rodata string
// and a heap-cloned one are interchangeable to every _string_* helper.
func buildRodata(prog *IRProgram) (data []byte, addrOf map[string]uint64) {
	addrOf = make(map[string]uint64, len(prog.Strings))
	addr := rodataBaseAddr
	var hdr [8]byte
	for i, s := range prog.Strings {
		addrOf[rodataSymbol(i)] = addr
		binary.LittleEndian.PutUint64(hdr[:], uint64(len(s)))
		data = append(data, hdr[:]...)
		data = append(data, s...)
		data = append(data, 0)
		addr += uint64(8 + len(s) + 1)
	}
	return data, addrOf
}

// compiledPiece is one user function's or runtime helper's code buffer
// plus its assigned layout address.
type compiledPiece struct {
	name string
	out  *Out
	addr uint64
}

// EmitProgram lowers prog to a linked CompiledProgram. It fills in
// every IRFunction's StartAddr as a side effect (diagnostics and
// jit.go read it back; nothing here re-derives it independently).
func EmitProgram(prog *IRProgram, traceAlloc bool) *CompiledProgram {
	if _, ok := prog.MainFunction(); !ok {
		compilerError("no -main function in program")
	}
	internKeywords(prog)
	rodata, addrOf := buildRodata(prog)

	pieces := make([]*compiledPiece, 0, len(prog.Functions)+len(runtimeSymbols))
	for _, fn := range prog.Functions {
		pieces = append(pieces, &compiledPiece{name: fn.Name, out: emitFunction(fn, prog)})
	}
	for _, sym := range runtimeSymbols {
		build, ok := runtimeBuilders[sym]
		if !ok {
			compilerError("no builder registered for runtime symbol %s", sym)
		}
		pieces = append(pieces, &compiledPiece{name: sym, out: build()})
	}

	// The entry stub's own length does not depend on any other piece's
	// address (only on whether a _heap_init call prefixes it), so it
	// can be built - though not yet patched - before the layout loop
	// that needs to know its length to place everything after it.
	// entryStubSizeNoHeap/entryStubSizeHeap (runtime_layout.go) record
	// the tightest possible encoding of this stub; this encoder's
	// always-emit-REX style (x86_64_codegen.go's rexRW) costs a few
	// bytes more, a simplification rather than chased with
	// special-cased REX-omission logic used nowhere else in this
	// codebase.
	stub := emitEntryStub(prog.HeapNeeded, traceAlloc)

	addr := codeBaseAddr + uint64(stub.Len())
	for _, p := range pieces {
		p.addr = addr
		addrOf[p.name] = addr
		addr += uint64(p.out.Len())
	}
	for _, fn := range prog.Functions {
		fn.StartAddr = addrOf[fn.Name]
	}

	resolvePatches(stub, codeBaseAddr, addrOf)
	for _, p := range pieces {
		resolvePatches(p.out, p.addr, addrOf)
	}

	code := make([]byte, 0, int(addr-codeBaseAddr))
	code = append(code, stub.Bytes()...)
	for _, p := range pieces {
		code = append(code, p.out.Bytes()...)
	}
	return &CompiledProgram{Code: code, Rodata: rodata}
}

// resolvePatches patches every CallPatch and AbsPatch in o, whose byte
// offsets are local to o's own buffer. PatchRel32 computes
// rel = target - (pos+4); passing target as a RELATIVE delta
// (calleeAddr - selfAddr) rather than an absolute address produces the
// same final rel32 a caller at selfAddr+pos would need, because pos is
// already measured from selfAddr - this lets the existing
// position-relative PatchRel32 resolve cross-buffer calls and rodata
// leas unmodified. AbsPatch (movabs) needs no such trick: it writes
// the absolute address verbatim.
func resolvePatches(o *Out, selfAddr uint64, addrOf map[string]uint64) {
	for _, cp := range o.callPatches {
		target, ok := addrOf[cp.Target]
		if !ok {
			compilerError("reference to undefined symbol %s", cp.Target)
		}
		rel := int64(target) - int64(selfAddr)
		o.PatchRel32(cp.Pos, int(rel))
	}
	o.callPatches = nil

	for _, ap := range o.absPatches {
		target, ok := addrOf[ap.Target]
		if !ok {
			compilerError("reference to undefined symbol %s", ap.Target)
		}
		o.PatchAbs64(ap.Pos, target)
	}
	o.absPatches = nil
}

// emitFunction lowers one IRFunction's instruction stream to machine
// code. Jump targets in fn.Instrs are absolute indices into this exact
// slice (liveness.go has already rebased them past any spliced
// OpFreeLocal instructions), so one forward pass suffices: record each
// instruction's starting byte offset as it is emitted, then resolve
// every JumpPatch queued during the pass once the whole body (and
// hence the full offset table) exists.
func emitFunction(fn *IRFunction, prog *IRProgram) *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	if f := frameSize(fn); f > 0 {
		o.SubImmFromReg("rsp", f)
	}
	for i := 0; i < fn.ParamCount && i < len(argRegisters); i++ {
		o.MovRegToMem(argRegisters[i], "rbp", slotOffset(i))
	}

	offsets := make([]int, len(fn.Instrs)+1)
	for i, ins := range fn.Instrs {
		offsets[i] = o.Len()
		emitInstr(o, ins, prog)
	}
	offsets[len(fn.Instrs)] = o.Len()

	for _, jp := range o.jumpPatches {
		o.PatchRel32(jp.Pos, offsets[jp.Target])
	}
	o.jumpPatches = nil
	return o
}

// emitEpilogue restores rsp/rbp and returns; OpReturn routes through
// it. There is no implicit-fallthrough return - every Slisp function's
// lowered body ends in an explicit OpReturn, compiler.go's
// lowerFunction appends one unconditionally.
func emitEpilogue(o *Out) {
	o.MovRegToReg("rsp", "rbp")
	o.PopReg("rbp")
	o.Ret()
}

// emitInstr lowers one IRInstruction. The stack-machine convention:
// operands come off the hardware stack into rax (top) / rcx (second),
// results go back on via PushReg("rax"). Calls instead use the System
// V argument registers directly, since the instruction's arity already
// says how many stack slots to pop into them.
func emitInstr(o *Out, ins IRInstruction, prog *IRProgram) {
	switch ins.Kind {
	case OpPushNumber, OpPushBool:
		o.MovImmToReg("rax", ins.Arg)
		o.PushReg("rax")
	case OpPushNil:
		o.XorRegToReg("rax", "rax")
		o.PushReg("rax")
	case OpPushString:
		o.LeaSymbolPatch("rax", rodataSymbol(int(ins.Arg)))
		o.PushReg("rax")
	case OpPushKeyword:
		idx, ok := prog.stringIdx[ins.Str]
		if !ok {
			compilerError("emitter: keyword %q never interned", ins.Str)
		}
		o.LeaSymbolPatch("rax", rodataSymbol(idx))
		o.PushReg("rax")

	case OpAdd:
		o.PopReg("rcx")
		o.PopReg("rax")
		o.AddRegToReg("rax", "rcx")
		o.PushReg("rax")
	case OpSub:
		o.PopReg("rcx")
		o.PopReg("rax")
		o.SubRegToReg("rax", "rcx")
		o.PushReg("rax")
	case OpMul:
		o.PopReg("rcx")
		o.PopReg("rax")
		o.IMulRegToReg("rax", "rcx")
		o.PushReg("rax")
	case OpDiv:
		o.PopReg("rcx")
		o.PopReg("rax")
		o.CqoSignExtendRaxToRdx()
		o.IDivReg("rcx")
		o.PushReg("rax")
	case OpMod:
		o.PopReg("rcx")
		o.PopReg("rax")
		o.CqoSignExtendRaxToRdx()
		o.IDivReg("rcx")
		o.PushReg("rdx")
	case OpNeg:
		o.PopReg("rax")
		o.NegReg("rax")
		o.PushReg("rax")

	case OpEq, OpLt, OpLe, OpGt, OpGe:
		o.PopReg("rcx")
		o.PopReg("rax")
		o.CmpRegToReg("rax", "rcx")
		o.SetccToReg(compareCondition(ins.Kind), "rax")
		o.PushReg("rax")

	case OpAnd:
		o.PopReg("rcx")
		o.PopReg("rax")
		o.AndRegToReg("rax", "rcx")
		o.PushReg("rax")
	case OpOr:
		o.PopReg("rcx")
		o.PopReg("rax")
		o.OrRegToReg("rax", "rcx")
		o.PushReg("rax")
	case OpNot:
		o.PopReg("rax")
		o.NotBoolToReg("rax")
		o.PushReg("rax")

	case OpJumpIfZero:
		o.PopReg("rax")
		o.CmpImmToReg("rax", 0)
		o.JumpConditional(JumpEqual, int(ins.Arg))
	case OpJump:
		o.JumpUnconditional(int(ins.Arg))
	case OpLabel:
		// Vestigial: jump targets are resolved to absolute instruction
		// indices during lowering (compiler.go); nothing to emit.

	case OpLoadLocal:
		o.MovMemToReg("rax", "rbp", slotOffset(int(ins.Arg)))
		o.PushReg("rax")
	case OpStoreLocal:
		o.PopReg("rax")
		o.MovRegToMem("rax", "rbp", slotOffset(int(ins.Arg)))
	case OpPushLocalAddress:
		o.MovRegToReg("rax", "rbp")
		o.AddImmToReg("rax", slotOffset(int(ins.Arg)))
		o.PushReg("rax")

	case OpInitHeap:
		o.CallSymbol("_heap_init")
	case OpAllocate:
		o.MovImmToReg("rdi", ins.Arg)
		o.CallSymbol("_allocate")
		o.PushReg("rax")
	case OpFreeLocal:
		o.MovMemToReg("rdi", "rbp", slotOffset(int(ins.Arg)))
		o.CallSymbol("_free")

	case OpDefineFunction:
		// Marker only (ir.go): the function body itself is emitted by
		// EmitProgram iterating prog.Functions, not inline here.

	case OpCall:
		emitArgsFromStack(o, int(ins.Arg))
		o.CallSymbol(ins.Str)
		o.PushReg("rax")
	case OpCallIndirect:
		// compiler.go pushes the callee address last, so it is on top
		// of the argument values.
		o.PopReg("r11")
		emitArgsFromStack(o, int(ins.Arg))
		o.CallIndirectReg("r11")
		o.PushReg("rax")
	case OpReturn:
		o.PopReg("rax")
		emitEpilogue(o)
	case OpPushFunctionAddress:
		o.MovAbsImmPatch("rax", ins.Str)
		o.PushReg("rax")

	case OpRuntimeCall:
		emitArgsFromStack(o, int(ins.Arg))
		o.CallSymbol(ins.Str)
		o.PushReg("rax")

	default:
		compilerError("emitter: unhandled opcode %v", ins.Kind)
	}
}

// emitArgsFromStack pops n values off the hardware stack into the
// System V integer argument registers, in argument order. compiler.go
// lowers call arguments strictly left to right, so the last argument
// pushed is on top - popping top-to-bottom into argRegisters[n-1],
// argRegisters[n-2], ... back-fills them in the right order.
func emitArgsFromStack(o *Out, n int) {
	if n > len(argRegisters) {
		compilerError("call arity %d exceeds supported argument registers", n)
	}
	for i := n - 1; i >= 0; i-- {
		o.PopReg(argRegisters[i])
	}
}

// compareCondition maps a comparison OpKind to the Jcc/SETcc condition
// that implements it.
func compareCondition(kind OpKind) JumpCondition {
	switch kind {
	case OpEq:
		return JumpEqual
	case OpLt:
		return JumpLess
	case OpLe:
		return JumpLessOrEqual
	case OpGt:
		return JumpGreater
	case OpGe:
		return JumpGreaterOrEqual
	default:
		compilerError("emitter: %v is not a comparison opcode", kind)
		return JumpEqual
	}
}

// entryMainSymbol is the IRFunction name compiler.go always gives the
// top-level program body (ir.go's MainFunction looks for the same
// literal).
const entryMainSymbol = "-main"

// emitEntryStub builds the process entry point: initialize the heap
// (if the program ever allocates), call -main, optionally report
// allocator telemetry (--trace-alloc), then exit via the exit_group
// syscall using -main's return value as the process exit code.
func emitEntryStub(heapNeeded, traceAlloc bool) *Out {
	o := NewOut()
	if heapNeeded {
		o.CallSymbol("_heap_init")
	}
	o.CallSymbol(entryMainSymbol)
	if traceAlloc {
		o.PushReg("rax")
		o.CallSymbol("_trace_alloc_report")
		o.PopReg("rax")
	}
	o.MovRegToReg("rdi", "rax")
	o.MovImmToReg("rax", 60) // exit_group
	o.Syscall()
	return o
}
