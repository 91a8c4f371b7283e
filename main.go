package main

import (
	"flag"
	"fmt"
	"os"
)

// main.go - the slisp binary's entry point. A small flag surface: JIT
// or AOT compile, an output path, allocator telemetry, verbosity. No
// multi-architecture or dynamic-linking support - this core only
// targets x86-64 System V Linux, with no dynamic linker and no libc.
//
// Errors here have to catch `compilerError`'s panic (errors.go), since
// lowering/codegen report fatal errors that way rather than as a plain
// Go error return.

const versionString = "slisp 0.1.0"

func main() {
	compile := flag.Bool("compile", false, "JIT-compile and run, or AOT-compile with -o")
	output := flag.String("o", "", "output executable path (AOT mode only)")
	keepObj := flag.Bool("keep-obj", false, "retain the intermediate object file (.o) alongside the executable")
	traceAlloc := flag.Bool("trace-alloc", false, "print allocator telemetry (allocations/frees) to stdout at program exit")
	verbose := flag.Bool("v", false, "verbose diagnostics on stderr")
	version := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *version {
		fmt.Println(versionString)
		return
	}

	opts := CLIOptions{
		Compile:    *compile,
		Output:     *output,
		KeepObj:    *keepObj,
		TraceAlloc: *traceAlloc,
		Verbose:    *verbose,
	}
	if args := flag.Args(); len(args) > 0 {
		opts.File = args[0]
	}

	cfg := LoadConfig()

	if err := runGuarded(opts, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "slisp: %v\n", err)
		os.Exit(1)
	}
}

// runGuarded recovers compilerError's panic (errors.go's documented
// mechanism for fatal lowering/codegen errors) in addition to RunCLI's
// ordinary error return, so a bad program can never crash the driver
// with a raw Go panic trace.
func runGuarded(opts CLIOptions, cfg Config) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if cp, ok := r.(compilerErrorPanic); ok {
				err = cp
				return
			}
			panic(r)
		}
	}()
	return RunCLI(opts, cfg)
}
