package main

import "testing"

// compiler_test.go - lowering tests: parse a snippet, inspect the
// produced IR shape rather than running it.

func compileSrc(t *testing.T, src string) *IRProgram {
	t.Helper()
	prog, err := NewParser(src).ParseProgram()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	ir, err := CompileProgram(prog)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return ir
}

func TestCompileArithmeticMain(t *testing.T) {
	ir := compileSrc(t, `(defn -main [] (+ 1 2))`)
	fn, ok := ir.MainFunction()
	if !ok {
		t.Fatal("expected -main in compiled program")
	}
	var sawAdd, sawReturn bool
	for _, ins := range fn.Instrs {
		switch ins.Kind {
		case OpAdd:
			sawAdd = true
		case OpReturn:
			sawReturn = true
		}
	}
	if !sawAdd {
		t.Error("expected an OpAdd instruction")
	}
	if !sawReturn {
		t.Error("expected the function body to end in OpReturn")
	}
}

func TestCompileStringLiteralDeduplication(t *testing.T) {
	ir := compileSrc(t, `(defn -main [] (let [a "hi" b "hi"] a))`)
	if len(ir.Strings) != 1 {
		t.Fatalf("expected one deduplicated string literal, got %d: %v", len(ir.Strings), ir.Strings)
	}
}

func TestCompileMissingMainIsAnError(t *testing.T) {
	prog, err := NewParser(`(defn helper [] 1)`).ParseProgram()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if _, err := CompileProgram(prog); err == nil {
		t.Fatal("expected an error for a program with no -main")
	}
}

func TestCompileCallArity(t *testing.T) {
	ir := compileSrc(t, `
		(defn add2 [a b] (+ a b))
		(defn -main [] (add2 1 2))`)
	fn, ok := ir.FunctionByName("-main")
	if !ok {
		t.Fatal("expected -main")
	}
	var found bool
	for _, ins := range fn.Instrs {
		if ins.Kind == OpCall && ins.Str == "add2" {
			found = true
			if ins.Arg != 2 {
				t.Errorf("expected arity 2 for add2 call, got %d", ins.Arg)
			}
		}
	}
	if !found {
		t.Error("expected a direct call to add2")
	}
}

func TestLivenessFreesLastUse(t *testing.T) {
	ir := compileSrc(t, `(defn -main [] (let [s "owned"] (count s)))`)
	fn, ok := ir.MainFunction()
	if !ok {
		t.Fatal("expected -main")
	}
	var frees int
	for _, ins := range fn.Instrs {
		if ins.Kind == OpFreeLocal {
			frees++
		}
	}
	if frees == 0 {
		t.Error("expected at least one OpFreeLocal for the heap-owning let binding")
	}
}

func TestCompileCountDispatchesOnKnownKind(t *testing.T) {
	ir := compileSrc(t, `(defn -main [] (let [v [1 2 3]] (count v)))`)
	fn, ok := ir.MainFunction()
	if !ok {
		t.Fatal("expected -main")
	}
	var found bool
	for _, ins := range fn.Instrs {
		if ins.Kind == OpRuntimeCall && ins.Str == "_vector_count" {
			found = true
		}
		if ins.Kind == OpRuntimeCall && ins.Str == "_string_count" {
			t.Error("count on a known vector must not dispatch to _string_count")
		}
	}
	if !found {
		t.Error("expected a _vector_count runtime call")
	}
}

func TestCompileAssocDissocGetRoundTrip(t *testing.T) {
	ir := compileSrc(t, `(defn -main [] (let [m {:a 1} m2 (assoc m :b 2)] (get m2 :b)))`)
	fn, ok := ir.MainFunction()
	if !ok {
		t.Fatal("expected -main")
	}
	var sawPut, sawGet bool
	for _, ins := range fn.Instrs {
		if ins.Kind == OpRuntimeCall && ins.Str == "_map_put" {
			sawPut = true
		}
		if ins.Kind == OpRuntimeCall && ins.Str == "_map_get" {
			sawGet = true
		}
	}
	if !sawPut {
		t.Error("expected assoc to lower to a _map_put runtime call")
	}
	if !sawGet {
		t.Error("expected get on a known map to lower to a _map_get runtime call")
	}
}

func TestCompileContainsOnSet(t *testing.T) {
	ir := compileSrc(t, `(defn -main [] (let [s #{1 2 3}] (contains? s 2)))`)
	fn, ok := ir.MainFunction()
	if !ok {
		t.Fatal("expected -main")
	}
	var found bool
	for _, ins := range fn.Instrs {
		if ins.Kind == OpRuntimeCall && ins.Str == "_set_contains" {
			found = true
		}
	}
	if !found {
		t.Error("expected contains? on a known set to lower to a _set_contains runtime call")
	}
}

func TestCompileBuiltinArityError(t *testing.T) {
	_, err := NewParser(`(defn -main [] (count))`).ParseProgram()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	prog, _ := NewParser(`(defn -main [] (count))`).ParseProgram()
	if _, err := CompileProgram(prog); err == nil {
		t.Fatal("expected an arity error for (count) with zero arguments")
	}
}

func TestCompileAssocOnWrongKindIsAnError(t *testing.T) {
	prog, err := NewParser(`(defn -main [] (let [v [1 2 3]] (assoc v 0 9)))`).ParseProgram()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if _, err := CompileProgram(prog); err == nil {
		t.Fatal("expected a compile error for assoc on a known vector")
	}
}

func TestLivenessNeverDoubleFreesASlot(t *testing.T) {
	ir := compileSrc(t, `(defn -main [] (let [s (concat "a" "b")] (count s)))`)
	fn, ok := ir.MainFunction()
	if !ok {
		t.Fatal("expected -main")
	}
	seen := make(map[int64]int)
	for _, ins := range fn.Instrs {
		if ins.Kind == OpFreeLocal {
			seen[ins.Arg]++
		}
	}
	for slot, n := range seen {
		if n > 1 {
			t.Errorf("slot %d freed %d times, want at most once", slot, n)
		}
	}
}
