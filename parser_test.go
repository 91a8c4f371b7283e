package main

import "testing"

// parser_test.go - table-driven reader tests.

func TestParseLiterals(t *testing.T) {
	prog, err := NewParser(`42 true false nil "hi" :kw sym`).ParseProgram()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(prog.Forms) != 7 {
		t.Fatalf("expected 7 forms, got %d", len(prog.Forms))
	}
	if n, ok := prog.Forms[0].(*NumberLit); !ok || n.Value != 42 {
		t.Errorf("form 0: want NumberLit(42), got %#v", prog.Forms[0])
	}
	if b, ok := prog.Forms[1].(*BoolLit); !ok || !b.Value {
		t.Errorf("form 1: want BoolLit(true), got %#v", prog.Forms[1])
	}
	if _, ok := prog.Forms[3].(*NilLit); ok {
		t.Errorf("form 3 parsed as nil, want string literal at index 4")
	}
	if s, ok := prog.Forms[4].(*StringLit); !ok || s.Value != "hi" {
		t.Errorf("form 4: want StringLit(hi), got %#v", prog.Forms[4])
	}
	if k, ok := prog.Forms[5].(*KeywordLit); !ok || k.Name != "kw" {
		t.Errorf("form 5: want KeywordLit(kw), got %#v", prog.Forms[5])
	}
	if s, ok := prog.Forms[6].(*Symbol); !ok || s.Name != "sym" {
		t.Errorf("form 6: want Symbol(sym), got %#v", prog.Forms[6])
	}
}

func TestParseDefn(t *testing.T) {
	prog, err := NewParser(`(defn -main [] (+ 1 2))`).ParseProgram()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	fn, ok := prog.MainFunction()
	if !ok {
		t.Fatal("expected -main to be found")
	}
	if len(fn.Body) != 1 {
		t.Fatalf("expected 1 body form, got %d", len(fn.Body))
	}
	call, ok := fn.Body[0].(*CallExpr)
	if !ok {
		t.Fatalf("expected CallExpr body, got %#v", fn.Body[0])
	}
	sym, ok := call.Fn.(*Symbol)
	if !ok || sym.Name != "+" {
		t.Errorf("expected call to +, got %#v", call.Fn)
	}
	if len(call.Args) != 2 {
		t.Errorf("expected 2 args, got %d", len(call.Args))
	}
}

func TestParseLetIfVectorMapSet(t *testing.T) {
	src := `(defn -main []
		(let [x 1 y [1 2 3] z {:a 1} w #{1 2}]
			(if (= x 1) x 0)))`
	prog, err := NewParser(src).ParseProgram()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	fn, ok := prog.MainFunction()
	if !ok {
		t.Fatal("expected -main")
	}
	let, ok := fn.Body[0].(*LetExpr)
	if !ok {
		t.Fatalf("expected LetExpr, got %#v", fn.Body[0])
	}
	if len(let.Bindings) != 4 {
		t.Fatalf("expected 4 bindings, got %d", len(let.Bindings))
	}
	if _, ok := let.Bindings[1].Value.(*VectorLit); !ok {
		t.Errorf("binding 1 expected VectorLit, got %#v", let.Bindings[1].Value)
	}
	if _, ok := let.Bindings[2].Value.(*MapLit); !ok {
		t.Errorf("binding 2 expected MapLit, got %#v", let.Bindings[2].Value)
	}
	if _, ok := let.Bindings[3].Value.(*SetLit); !ok {
		t.Errorf("binding 3 expected SetLit, got %#v", let.Bindings[3].Value)
	}
	if _, ok := let.Body[0].(*IfExpr); !ok {
		t.Errorf("let body expected IfExpr, got %#v", let.Body[0])
	}
}

func TestParseUnbalancedParens(t *testing.T) {
	if _, err := NewParser(`(defn -main [] (+ 1 2)`).ParseProgram(); err == nil {
		t.Fatal("expected a parse error for unbalanced parens")
	}
}
