package main

// runtime_trace.go - the `--trace-alloc` telemetry shim, built on the
// allocator's own bookkeeping in runtime_alloc.go, which bumps
// [dataBase+24]/[dataBase+32] on every _allocate/_free. `main.go`'s CLI
// wiring only emits a call to this symbol at program exit when the
// binary is built with --trace-alloc; unlike the counters themselves,
// the report call is conditional.

// emitTraceAllocReport builds `_trace_alloc_report()`: writes
// "allocations=<n> frees=<n>\n" to stdout, reusing `_string_from_number`
// and `_string_concat` rather than hand-rolling a second itoa.
func emitTraceAllocReport() *Out {
	o := NewOut()
	o.PushReg("rbp")
	o.MovRegToReg("rbp", "rsp")
	o.PushReg("rbx")
	o.PushReg("r12")

	o.MovImmToReg("rbx", int64(dataBaseAddr))
	o.MovMemToReg("rdi", "rbx", heapOffsetAllocCount)
	o.CallSymbol("_string_from_number")
	o.MovRegToReg("r12", "rax") // allocations count as a string

	o.writeString("r12")
	o.writeByteLiteral(' ')

	o.MovMemToReg("rdi", "rbx", heapOffsetFreeCount)
	o.CallSymbol("_string_from_number")
	o.MovRegToReg("r12", "rax")

	o.writeString("r12")
	o.writeByteLiteral('\n')

	o.PopReg("r12")
	o.PopReg("rbx")
	o.PopReg("rbp")
	o.Ret()
	return o
}

// writeString emits `write(1, strReg+stringHeaderExtra, [strReg])`.
func (o *Out) writeString(strReg string) {
	o.MovMemToReg("rdx", strReg, 0) // length
	o.MovRegToReg("rsi", strReg)
	o.AddImmToReg("rsi", stringHeaderExtra)
	o.MovImmToReg("rdi", 1) // stdout
	o.MovImmToReg("rax", 1) // SYS_write
	o.Syscall()
}

// writeByteLiteral writes a single ASCII byte via a one-qword stack
// buffer; MovRegToMem only stores full 64-bit registers, so the
// character is placed in a register's low byte (little-endian means
// [rsp] then holds exactly that byte once pushed) and a 1-byte write
// reads only it.
func (o *Out) writeByteLiteral(ch byte) {
	o.MovImmToReg("rax", int64(ch))
	o.PushReg("rax")
	o.MovRegToReg("rsi", "rsp")
	o.MovImmToReg("rdx", 1)
	o.MovImmToReg("rdi", 1)
	o.MovImmToReg("rax", 1)
	o.Syscall()
	o.PopReg("rax")
}
