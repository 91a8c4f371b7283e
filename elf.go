package main

// elf.go - the static ELF writer. Produces a minimal static
// executable with no dynamic linker and no libc. Three PT_LOAD
// segments at the fixed addresses runtime_layout.go names: code RX at
// codeBaseAddr, data RW at dataBaseAddr, rodata R at rodataBaseAddr.
// One page (the ELF header plus program header table) leads the code
// segment; data and rodata each get their own page so the three never
// need page-alignment padding tricks beyond plain zero-fill.

const (
	elfBaseAddr   uint64 = 0x400000 // file offset 0 maps here
	elfHeaderSize        = 64
	elfPhdrSize          = 56
	elfPhdrCount         = 3
)

// Write2 emits a little-endian uint16, the one width x86_64_codegen.go
// never needed for instruction encoding.
func (o *Out) Write2(v uint16) {
	o.Write(byte(v))
	o.Write(byte(v >> 8))
}

const (
	ptLoad   = 1
	pfExec   = 1
	pfWrite  = 2
	pfRead   = 4
	pageSize = 0x1000
)

// phdr writes one Elf64_Phdr.
func (o *Out) phdr(flags uint32, offset, vaddr, filesz, memsz uint64) {
	o.Write4(ptLoad)
	o.Write4(flags)
	o.Write8u(offset)
	o.Write8u(vaddr)
	o.Write8u(vaddr) // p_paddr, unused under Linux, mirrors p_vaddr
	o.Write8u(filesz)
	o.Write8u(memsz)
	o.Write8u(pageSize)
}

// padTo appends zero bytes until o.Len() == target.
func (o *Out) padTo(target int) {
	if n := target - o.Len(); n > 0 {
		o.WriteN(0, n)
	}
}

// WriteStaticELF assembles prog into a complete static ELF executable
// image: header, program header table, the header's own page, the
// code segment, the data segment (the allocator's globals, always
// zero at rest), and the rodata segment.
func WriteStaticELF(prog *CompiledProgram) []byte {
	codeOff := int(codeBaseAddr - elfBaseAddr)
	dataOff := int(dataBaseAddr - elfBaseAddr)
	rodataOff := int(rodataBaseAddr - elfBaseAddr)

	if codeOff+len(prog.Code) > dataOff {
		compilerError("compiled code (%d bytes) overruns the data segment at 0x%x", len(prog.Code), dataBaseAddr)
	}
	if dataOff+dataSegmentSize > rodataOff {
		compilerError("data segment overruns the rodata segment at 0x%x", rodataBaseAddr)
	}

	o := NewOut()

	// ELF header.
	o.Write(0x7f)
	o.Write('E')
	o.Write('L')
	o.Write('F')
	o.Write(2) // ELFCLASS64
	o.Write(1) // ELFDATA2LSB
	o.Write(1) // EV_CURRENT
	o.Write(3) // ELFOSABI_LINUX
	o.WriteN(0, 8)
	o.Write2(2)                    // ET_EXEC
	o.Write2(0x3e)                 // EM_X86_64
	o.Write4(1)                    // EV_CURRENT
	o.Write8u(codeBaseAddr)        // e_entry: the entry stub is the first bytes of the code segment
	o.Write8u(elfHeaderSize)       // e_phoff
	o.Write8u(0)                   // e_shoff: no section headers
	o.Write4(0)                    // e_flags
	o.Write2(elfHeaderSize)        // e_ehsize
	o.Write2(elfPhdrSize)          // e_phentsize
	o.Write2(elfPhdrCount)         // e_phnum
	o.Write2(0)                    // e_shentsize
	o.Write2(0)                    // e_shnum
	o.Write2(0)                    // e_shstrndx

	// Program header table. The header's own page is covered by the
	// code segment's PT_LOAD (file offset 0 through the end of code),
	// since codeBaseAddr - elfBaseAddr == pageSize exactly.
	o.phdr(pfRead|pfExec, 0, elfBaseAddr, uint64(codeOff+len(prog.Code)), uint64(codeOff+len(prog.Code)))
	o.phdr(pfRead|pfWrite, uint64(dataOff), dataBaseAddr, dataSegmentSize, dataSegmentSize)
	o.phdr(pfRead, uint64(rodataOff), rodataBaseAddr, uint64(len(prog.Rodata)), uint64(len(prog.Rodata)))

	o.padTo(codeOff)
	o.WriteBytes(prog.Code)

	o.padTo(dataOff)
	o.WriteN(0, dataSegmentSize) // allocator globals start zeroed; _heap_init fills heap_base/heap_end at runtime

	o.padTo(rodataOff)
	o.WriteBytes(prog.Rodata)

	return o.Bytes()
}
