package main

import "fmt"

// errors.go - the compiler's single fatal-error mechanism:
// x86_64_codegen.go and the rest of the encoders call a package-level
// compilerError throughout rather than threading an error return
// through every encoding helper. Lowering and codegen errors are fatal
// to the whole compile - nothing is ever partially emitted - so
// panic/recover at the top of main is the right shape, not a
// hand-threaded error return through hundreds of tiny encoder calls.

// compilerErrorPanic carries a formatted message through a panic/recover
// round trip so main can distinguish a deliberate compiler error from
// an unexpected Go runtime panic.
type compilerErrorPanic struct{ msg string }

func (e compilerErrorPanic) Error() string { return e.msg }

// compilerError aborts lowering or codegen with a formatted message.
// Callers never recover from this themselves; only main's top-level
// recover does.
func compilerError(format string, args ...interface{}) {
	panic(compilerErrorPanic{msg: fmt.Sprintf(format, args...)})
}
