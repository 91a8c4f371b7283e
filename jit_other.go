//go:build !(linux && amd64)

package main

import "fmt"

// jit_other.go - the JIT loader is only meaningful on the one platform
// the code generator ever targets, x86-64 Linux. Everywhere else,
// --run degrades to a clear error rather than a confusing mmap
// failure; AOT compilation (which just writes bytes to a file) still
// works everywhere.

type JITProgram struct{}

func LoadJIT(prog *CompiledProgram) (*JITProgram, error) {
	return nil, fmt.Errorf("JIT execution requires linux/amd64")
}

func (j *JITProgram) Run() {}

func (j *JITProgram) Unmap() error { return nil }
