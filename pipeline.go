package main

import "fmt"

// pipeline.go - strings the five compiler stages together: lex, parse,
// lower, plan liveness, emit. Kept as one small file rather than
// folded into main.go so both the AOT and JIT entry points (cli.go)
// share a single pipeline.

// CompilePipeline lexes, parses, lowers, plans liveness, and emits
// machine code for src, returning the CompiledProgram ready for
// WriteStaticELF or LoadJIT. traceAlloc controls whether the entry
// stub reports allocator telemetry before exit (runtime_trace.go).
func CompilePipeline(src string, traceAlloc bool) (prog *CompiledProgram, err error) {
	defer func() {
		if r := recover(); r != nil {
			if cp, ok := r.(compilerErrorPanic); ok {
				err = cp
				return
			}
			panic(r)
		}
	}()

	parsed, perr := NewParser(src).ParseProgram()
	if perr != nil {
		return nil, fmt.Errorf("parse error: %w", perr)
	}
	if _, ok := parsed.MainFunction(); !ok {
		wrapAsMain(parsed)
	}

	ir, cerr := CompileProgram(parsed)
	if cerr != nil {
		return nil, fmt.Errorf("compile error: %w", cerr)
	}
	// CompileProgram already runs PlanLiveness per function as part of
	// phase B lowering; nothing further to plan here.

	return EmitProgram(ir, traceAlloc), nil
}

// wrapAsMain folds every top-level form of a -main-less program into
// a single synthetic `(defn -main [] form1 form2 ...)`, appended to
// prog.Forms, and hoists any top-level `def`s out of that body first
// so they still lower as program-level bindings, not locals. This is
// what the one-shot JIT REPL path (cli.go) uses to run a bare
// expression or a handful of top-level forms typed at stdin without
// requiring the caller to spell out -main themselves.
func wrapAsMain(prog *Program) {
	var body []Expr
	var rest []Expr
	for _, f := range prog.Forms {
		if _, ok := f.(*DefExpr); ok {
			rest = append(rest, f)
			continue
		}
		if _, ok := f.(*DefnExpr); ok {
			rest = append(rest, f)
			continue
		}
		body = append(body, f)
	}
	if len(body) == 0 {
		body = []Expr{&NilLit{}}
	}
	rest = append(rest, &DefnExpr{Name: "-main", Body: body})
	prog.Forms = rest
}
