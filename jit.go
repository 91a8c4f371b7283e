//go:build linux && amd64

package main

import (
	"fmt"
	"syscall"
	"unsafe"
)

// jit.go - the in-process JIT loader: the same code blob is mapped as
// RX pages, the first instruction is the entry stub, and the return
// value of -main becomes the process's exit code. Uses a raw
// syscall.Syscall6 into SYS_MMAP rather than golang.org/x/sys/unix,
// keeping the same dependency-free style this core's other raw-syscall
// code already uses, but mapped with MAP_FIXED at the exact addresses
// AOT compiles against (runtime_layout.go's
// codeBaseAddr/dataBaseAddr/rodataBaseAddr) rather than letting the
// kernel choose - the same static addresses unify the AOT and JIT code
// paths, so nothing in the emitter needs to know which backend will
// eventually run its output.

// JITProgram is a compiled program mapped into this process's address
// space at the same fixed addresses the static ELF writer targets.
type JITProgram struct {
	codePage   []byte
	dataPage   []byte
	rodataPage []byte
}

func mmapFixed(addr, size uintptr, prot int) (uintptr, error) {
	got, _, errno := syscall.Syscall6(
		syscall.SYS_MMAP,
		addr,
		size,
		uintptr(prot),
		syscall.MAP_PRIVATE|syscall.MAP_ANONYMOUS|syscall.MAP_FIXED,
		^uintptr(0), // fd = -1
		0,
	)
	if errno != 0 {
		return 0, fmt.Errorf("mmap 0x%x: %v", addr, errno)
	}
	if got != addr {
		return 0, fmt.Errorf("mmap 0x%x returned 0x%x instead", addr, got)
	}
	return got, nil
}

func pageRound(n int) uintptr {
	const pg = 4096
	return uintptr((n + pg - 1) &^ (pg - 1))
}

// LoadJIT maps prog's code, data, and rodata into this process at
// codeBaseAddr/dataBaseAddr/rodataBaseAddr, exactly as the static ELF
// loader would place them, and returns a JITProgram ready to Run.
func LoadJIT(prog *CompiledProgram) (*JITProgram, error) {
	codeSize := pageRound(len(prog.Code))
	if codeSize == 0 {
		codeSize = 4096
	}
	codeAddr, err := mmapFixed(uintptr(codeBaseAddr), codeSize, syscall.PROT_READ|syscall.PROT_WRITE)
	if err != nil {
		return nil, err
	}
	dataAddr, err := mmapFixed(uintptr(dataBaseAddr), pageRound(dataSegmentSize), syscall.PROT_READ|syscall.PROT_WRITE)
	if err != nil {
		return nil, err
	}
	rodataSize := pageRound(len(prog.Rodata))
	if rodataSize == 0 {
		rodataSize = 4096
	}
	rodataAddr, err := mmapFixed(uintptr(rodataBaseAddr), rodataSize, syscall.PROT_READ|syscall.PROT_WRITE)
	if err != nil {
		return nil, err
	}

	codePage := unsafe.Slice((*byte)(unsafe.Pointer(codeAddr)), codeSize)
	dataPage := unsafe.Slice((*byte)(unsafe.Pointer(dataAddr)), pageRound(dataSegmentSize))
	rodataPage := unsafe.Slice((*byte)(unsafe.Pointer(rodataAddr)), rodataSize)

	copy(codePage, prog.Code)
	copy(rodataPage, prog.Rodata)
	// dataPage starts zeroed by mmap; _heap_init fills heap_base/
	// heap_end/free_list_head the first time the entry stub calls it.

	if err := syscall.Mprotect(codePage, syscall.PROT_READ|syscall.PROT_EXEC); err != nil {
		return nil, fmt.Errorf("mprotect code page: %v", err)
	}

	return &JITProgram{codePage: codePage, dataPage: dataPage, rodataPage: rodataPage}, nil
}

// Run jumps to the entry stub at the start of the mapped code page.
// The stub is the same bytes the AOT ELF entry point runs and ends in
// an exit_group syscall, so Run never returns to its caller - it
// terminates the host process with -main's return value as the exit
// code, exactly as a compiled binary invoked directly would. Casting
// the mapped address to a Go func value works on amd64 because the
// stub takes no arguments and never returns through Go's calling
// convention; it never comes back to hand control to the runtime.
func (j *JITProgram) Run() {
	entry := uintptr(unsafe.Pointer(&j.codePage[0]))
	fn := *(*func())(unsafe.Pointer(&entry))
	fn()
}

// Unmap releases all three mapped regions.
func (j *JITProgram) Unmap() error {
	for _, page := range [][]byte{j.codePage, j.dataPage, j.rodataPage} {
		if len(page) == 0 {
			continue
		}
		if _, _, errno := syscall.Syscall(syscall.SYS_MUNMAP, uintptr(unsafe.Pointer(&page[0])), uintptr(len(page)), 0); errno != 0 {
			return fmt.Errorf("munmap: %v", errno)
		}
	}
	return nil
}
