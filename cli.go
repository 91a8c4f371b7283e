package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// cli.go - the `slisp` command-line surface: a flat, flag-only
// dispatcher (there is no verb tree, just a handful of mode flags) that
// drives one RunCLI function over a struct of parsed flags.
//
// Tree-walking interpretation isn't implemented by this binary; bare
// `slisp` still exists as a command form but says so plainly rather
// than silently doing nothing. The JIT REPL exists for real, compiling
// and running one program per invocation - the emitted entry stub
// always ends in an exit_group syscall and can never hand control back
// to this process, so a form-by-form interactive loop isn't something
// this architecture can support without additional runtime machinery.

// CLIOptions holds every flag RunCLI recognizes.
type CLIOptions struct {
	Compile    bool
	Output     string
	KeepObj    bool
	TraceAlloc bool
	Verbose    bool
	File       string
}

// RunCLI dispatches on opts across the four command forms: bare REPL
// notice, JIT run, and AOT compile (with or without keeping the
// intermediate object file).
func RunCLI(opts CLIOptions, cfg Config) error {
	traceAlloc := opts.TraceAlloc || cfg.TraceAlloc

	if !opts.Compile {
		return runInterpreterREPL(opts)
	}
	if opts.Output != "" {
		if opts.File == "" {
			return fmt.Errorf("usage: slisp --compile [--keep-obj] -o <OUT> <FILE>")
		}
		return cmdAOTCompile(opts, traceAlloc)
	}
	return cmdJITRun(opts, traceAlloc)
}

// runInterpreterREPL handles bare `slisp` invocations. A tree-walking
// interpreter isn't built into this binary; rather than silently doing
// nothing, it reads the forms and reports plainly that interpretation
// isn't available, pointing at the flag that is.
func runInterpreterREPL(opts CLIOptions) error {
	src, err := readSource(opts.File)
	if err != nil {
		return err
	}
	parsed, err := NewParser(src).ParseProgram()
	if err != nil {
		return fmt.Errorf("parse error: %w", err)
	}
	fmt.Fprintf(os.Stderr, "slisp: read %d top-level form(s)\n", len(parsed.Forms))
	fmt.Fprintln(os.Stderr, "slisp: tree-walking interpretation is not implemented by this binary")
	fmt.Fprintln(os.Stderr, "slisp: re-run with --compile to JIT-compile and run instead")
	return nil
}

// cmdJITRun implements "slisp --compile" (JIT REPL) and
// "slisp --compile <FILE>" (JIT-compile and run a file immediately,
// without -o). A bare expression or a handful of top-level forms
// typed without a -main are folded into one by wrapAsMain.
func cmdJITRun(opts CLIOptions, traceAlloc bool) error {
	src, err := readSource(opts.File)
	if err != nil {
		return err
	}

	compiled, err := CompilePipeline(src, traceAlloc)
	if err != nil {
		return fmt.Errorf("compilation failed: %w", err)
	}

	if opts.Verbose {
		fmt.Fprintf(os.Stderr, "slisp: %d bytes of code, %d bytes of rodata\n", len(compiled.Code), len(compiled.Rodata))
	}

	jit, err := LoadJIT(compiled)
	if err != nil {
		return fmt.Errorf("jit load failed: %w", err)
	}
	// Run never returns: the entry stub ends in exit_group, so this
	// process exits with -main's return value as its own exit code,
	// exactly as a compiled binary invoked directly would.
	jit.Run()
	return nil
}

// cmdAOTCompile implements "slisp --compile [--keep-obj] -o <OUT> <FILE>".
func cmdAOTCompile(opts CLIOptions, traceAlloc bool) error {
	src, err := os.ReadFile(opts.File)
	if err != nil {
		return fmt.Errorf("reading %s: %w", opts.File, err)
	}

	compiled, err := CompilePipeline(string(src), traceAlloc)
	if err != nil {
		return fmt.Errorf("compilation failed: %w", err)
	}

	if opts.KeepObj {
		objPath := opts.Output + ".o"
		obj := append(append([]byte{}, compiled.Code...), compiled.Rodata...)
		if err := os.WriteFile(objPath, obj, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", objPath, err)
		}
		if opts.Verbose {
			fmt.Fprintf(os.Stderr, "slisp: kept object %s (%d bytes)\n", objPath, len(obj))
		}
	}

	image := WriteStaticELF(compiled)
	if err := os.WriteFile(opts.Output, image, 0o755); err != nil {
		return fmt.Errorf("writing %s: %w", opts.Output, err)
	}
	if opts.Verbose {
		fmt.Fprintf(os.Stderr, "slisp: wrote %s (%d bytes)\n", opts.Output, len(image))
	}
	return nil
}

// readSource reads opts.File, or stdin if no file was given - the
// shape a REPL-ish invocation (`slisp`, `slisp --compile`) needs when
// there's no file argument to read from.
func readSource(file string) (string, error) {
	if file == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	if !strings.HasSuffix(file, ".slisp") && !strings.HasSuffix(file, ".lisp") {
		fmt.Fprintf(os.Stderr, "slisp: warning: %s does not have a .slisp or .lisp extension\n", file)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", file, err)
	}
	return string(data), nil
}
