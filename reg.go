package main

// reg.go - x86-64 register table and condition codes. Slisp's backend
// targets one architecture only: AOT emits a static x86-64 ELF, JIT
// emits into an mmap'd executable page on amd64/linux.

// Register describes one named x86-64 register for instruction encoding.
type Register struct {
	Name     string
	Size     int   // size in bits
	Encoding uint8 // ModRM/REX encoding
}

var x86_64Registers = map[string]Register{
	"rax": {Name: "rax", Size: 64, Encoding: 0},
	"rcx": {Name: "rcx", Size: 64, Encoding: 1},
	"rdx": {Name: "rdx", Size: 64, Encoding: 2},
	"rbx": {Name: "rbx", Size: 64, Encoding: 3},
	"rsp": {Name: "rsp", Size: 64, Encoding: 4},
	"rbp": {Name: "rbp", Size: 64, Encoding: 5},
	"rsi": {Name: "rsi", Size: 64, Encoding: 6},
	"rdi": {Name: "rdi", Size: 64, Encoding: 7},
	"r8":  {Name: "r8", Size: 64, Encoding: 8},
	"r9":  {Name: "r9", Size: 64, Encoding: 9},
	"r10": {Name: "r10", Size: 64, Encoding: 10},
	"r11": {Name: "r11", Size: 64, Encoding: 11},
	"r12": {Name: "r12", Size: 64, Encoding: 12},
	"r13": {Name: "r13", Size: 64, Encoding: 13},
	"r14": {Name: "r14", Size: 64, Encoding: 14},
	"r15": {Name: "r15", Size: 64, Encoding: 15},
}

// GetRegister returns register info for the given name.
func GetRegister(name string) (Register, bool) {
	reg, ok := x86_64Registers[name]
	return reg, ok
}

// IsRegister reports whether name is a known x86-64 register.
func IsRegister(name string) bool {
	_, ok := x86_64Registers[name]
	return ok
}

// JumpCondition selects the opcode Jcc/SETcc family emits.
type JumpCondition int

const (
	JumpEqual JumpCondition = iota
	JumpNotEqual
	JumpLess
	JumpLessOrEqual
	JumpGreater
	JumpGreaterOrEqual
)

// argRegisters is the System V AMD64 integer argument-passing order:
// rdi, rsi, rdx, rcx, r8, r9, then the stack for anything beyond six.
// Slisp functions never take more than six parameters, so the spill
// case isn't implemented.
var argRegisters = []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}
