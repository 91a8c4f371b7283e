package main

import "fmt"

// compiler.go - the AST to IR lowering pass. A program is compiled in
// two throwaway-then-final passes:
//
//   Phase A lowers every function with all of its parameters seeded as
//   KindAny, and along the way records the ValueKind each call site
//   actually passes for each argument position.
//
//   Phase B re-lowers every function from scratch, this time seeding
//   each parameter with the kind phase A converged on (or KindAny if
//   call sites disagreed, or if the parameter is never called with a
//   concrete kind anywhere). Phase B's IR is the one that ships.
//
// The string literal table is shared across both phases (functions are
// re-lowered into the same *IRProgram, not a fresh one) so interning
// the same literal twice yields the same index both times - compiling
// the same program twice must produce identical rodata offsets, and
// that depends on this.
type Compiler struct {
	prog *IRProgram

	defns map[string]*DefnExpr
	defs  map[string]Expr // top-level (def name literal) bindings

	// observed[funcName][argIndex] accumulates every ValueKind seen at
	// a call site for that parameter, across the whole program, during
	// phase A.
	observed map[string]map[int][]ValueKind

	// paramKinds is phase A's converged answer, consulted by phase B's
	// NewCompileContext calls. Nil during phase A itself.
	paramKinds map[string]map[int]ValueKind

	fnCounter int
}

// CompileProgram lowers a parsed program into an IRProgram, running
// the two-phase whole-program pass described above.
func CompileProgram(program *Program) (*IRProgram, error) {
	c := &Compiler{
		prog:     NewIRProgram(),
		defns:    make(map[string]*DefnExpr),
		defs:     make(map[string]Expr),
		observed: make(map[string]map[int][]ValueKind),
	}

	var order []string
	for _, form := range program.Forms {
		switch f := form.(type) {
		case *DefnExpr:
			c.defns[f.Name] = f
			order = append(order, f.Name)
		case *DefExpr:
			if !isLiteral(f.Value) {
				return nil, fmt.Errorf("compile error: top-level def %q must bind a literal", f.Name)
			}
			c.defs[f.Name] = f.Value
		default:
			return nil, fmt.Errorf("compile error: unsupported top-level form %T", form)
		}
	}
	if _, ok := c.defns["-main"]; !ok {
		return nil, fmt.Errorf("compile error: program has no -main function")
	}

	// Phase A: throwaway lowering, every parameter KindAny, recording
	// observed call-site argument kinds.
	for _, name := range order {
		ctx := NewCompileContext(name, c.defns[name].Params, nil)
		if _, _, err := c.lowerBody(ctx, c.defns[name].Body, true); err != nil {
			return nil, err
		}
	}
	c.paramKinds = make(map[string]map[int]ValueKind)
	for fname, byIdx := range c.observed {
		c.paramKinds[fname] = make(map[int]ValueKind)
		for idx, kinds := range byIdx {
			c.paramKinds[fname][idx] = mergeKinds(kinds)
		}
	}

	// Phase B: final lowering, seeded with phase A's converged kinds.
	c.prog.Functions = nil
	for _, name := range order {
		fn := c.defns[name]
		ctx := NewCompileContext(name, fn.Params, c.paramKinds[name])
		body, kind, err := c.lowerBody(ctx, fn.Body, false)
		if err != nil {
			return nil, err
		}
		_ = kind
		exemptTailOwnership(ctx, body)
		body = append(body, IRInstruction{Kind: OpReturn})
		irfn := &IRFunction{
			Name:           name,
			ParamCount:     len(fn.Params),
			LocalCount:     ctx.localCount(),
			Instrs:         body,
			HeapOwnerSlots: ctx.heapOwner,
			ValueKinds:     ctx.valueKinds,
		}
		PlanLiveness(irfn)
		c.prog.Functions = append(c.prog.Functions, irfn)
	}
	return c.prog, nil
}

// exemptTailOwnership clears heapOwner for any slot whose value
// escapes the function through a return, so PlanLiveness never frees
// a heap block out from under the value being handed to the caller - a
// callee always returns an owned value to its caller, so ownership of
// a returned binding moves out, it is not destroyed. A LoadLocal is a
// tail load if it is the function body's very last instruction, or if
// it is immediately followed by a Jump
// whose target is the end of the body - the shape lowerIf produces
// for a branch that is itself in tail position.
func exemptTailOwnership(ctx *CompileContext, body []IRInstruction) {
	n := len(body)
	for i, ins := range body {
		if ins.Kind != OpLoadLocal {
			continue
		}
		tail := i == n-1
		if !tail && i+1 < n && body[i+1].Kind == OpJump && body[i+1].Arg == int64(n) {
			tail = true
		}
		if tail {
			ctx.heapOwner[int(ins.Arg)] = false
		}
	}
}

// mergeKinds collapses every kind observed for one parameter position
// into a single seed kind: a concrete kind that every call site agreed
// on, or KindAny if call sites disagreed or none were recorded.
func mergeKinds(kinds []ValueKind) ValueKind {
	if len(kinds) == 0 {
		return KindAny
	}
	first := kinds[0]
	for _, k := range kinds[1:] {
		if k != first {
			return KindAny
		}
	}
	return first
}

func isLiteral(e Expr) bool {
	switch e.(type) {
	case *NumberLit, *BoolLit, *NilLit, *StringLit, *KeywordLit:
		return true
	default:
		return false
	}
}

// lowerBody lowers a function/let body: every expression but the last
// is evaluated for effect only (its result, if heap-owned, is stored
// into a throwaway slot rather than left on the stack - there is no
// bare stack-discard instruction in the IR.
func (c *Compiler) lowerBody(ctx *CompileContext, body []Expr, phaseA bool) ([]IRInstruction, ValueKind, error) {
	if len(body) == 0 {
		return []IRInstruction{{Kind: OpPushNil}}, KindNil, nil
	}
	var seq []IRInstruction
	for i, e := range body {
		sub, kind, err := c.lowerExpr(ctx, e, phaseA)
		if err != nil {
			return nil, KindAny, err
		}
		if i == len(body)-1 {
			seq = concatSeqs(seq, sub)
			return seq, kind, nil
		}
		slot := ctx.allocSlot()
		ctx.valueKinds[slot] = kind
		ctx.heapOwner[slot] = kind.OwnsHeapBlock()
		sub = concatSeqs(sub, []IRInstruction{{Kind: OpStoreLocal, Arg: int64(slot)}})
		seq = concatSeqs(seq, sub)
	}
	return seq, KindNil, nil
}

// lowerExpr lowers one expression, returning its instruction sequence
// and its statically inferred ValueKind (KindAny if it cannot be
// determined in this phase).
func (c *Compiler) lowerExpr(ctx *CompileContext, e Expr, phaseA bool) ([]IRInstruction, ValueKind, error) {
	switch v := e.(type) {
	case *NumberLit:
		return []IRInstruction{{Kind: OpPushNumber, Arg: v.Value}}, KindNumber, nil
	case *BoolLit:
		arg := int64(0)
		if v.Value {
			arg = 1
		}
		return []IRInstruction{{Kind: OpPushBool, Arg: arg}}, KindBool, nil
	case *NilLit:
		return []IRInstruction{{Kind: OpPushNil}}, KindNil, nil
	case *StringLit:
		idx := c.prog.InternString(v.Value)
		seq := []IRInstruction{{Kind: OpPushString, Arg: int64(idx)}}
		// A pushed string literal is a borrowed reference into rodata;
		// cloning it here is deferred to whoever stores it into a
		// binding slot (lowerBody, let-binding lowering), since a value
		// merely passed through (e.g. as a call argument) never needs
		// its own heap copy.
		return seq, KindString, nil
	case *KeywordLit:
		return []IRInstruction{{Kind: OpPushKeyword, Str: v.Name}}, KindKeyword, nil
	case *Symbol:
		return c.lowerSymbol(ctx, v)
	case *LetExpr:
		return c.lowerLet(ctx, v, phaseA)
	case *IfExpr:
		return c.lowerIf(ctx, v, phaseA)
	case *FnExpr:
		return nil, KindAny, fmt.Errorf("compile error: anonymous fn is not supported by the compiled backend (no closure capture) - lift it to a top-level defn")
	case *CallExpr:
		return c.lowerCall(ctx, v, phaseA)
	case *VectorLit, *MapLit, *SetLit:
		return c.lowerCollection(ctx, v, phaseA)
	case *StrExpr:
		return c.lowerStr(ctx, v, phaseA)
	default:
		return nil, KindAny, fmt.Errorf("compile error: unsupported expression %T", e)
	}
}

func (c *Compiler) lowerSymbol(ctx *CompileContext, v *Symbol) ([]IRInstruction, ValueKind, error) {
	if slot, ok := ctx.lookup(v.Name); ok {
		kind := ctx.valueKinds[slot]
		return []IRInstruction{{Kind: OpLoadLocal, Arg: int64(slot)}}, kind, nil
	}
	if lit, ok := c.defs[v.Name]; ok {
		return c.lowerExpr(ctx, lit, false)
	}
	if _, ok := c.defns[v.Name]; ok {
		return []IRInstruction{{Kind: OpPushFunctionAddress, Str: v.Name}}, KindAny, nil
	}
	return nil, KindAny, fmt.Errorf("compile error: undefined name %q", v.Name)
}

// lowerLet lowers `(let [b1 v1 ...] body)`. Bindings are evaluated
// strictly left to right and are visible to later bindings. A
// string-literal binding is cloned before it is stored, so the slot
// holds an owned copy the planner can FreeLocal safely without
// touching rodata.
func (c *Compiler) lowerLet(ctx *CompileContext, v *LetExpr, phaseA bool) ([]IRInstruction, ValueKind, error) {
	ctx.pushScope()
	var seq []IRInstruction
	for _, b := range v.Bindings {
		valSeq, kind, err := c.lowerExpr(ctx, b.Value, phaseA)
		if err != nil {
			return nil, KindAny, err
		}
		if kind == KindString {
			if _, isLit := b.Value.(*StringLit); isLit {
				valSeq = concatSeqs(valSeq, []IRInstruction{{Kind: OpRuntimeCall, Str: "_string_clone", Arg: 1}})
			}
		}
		slot := ctx.bind(b.Name)
		ctx.valueKinds[slot] = kind
		ctx.heapOwner[slot] = kind.OwnsHeapBlock()
		valSeq = concatSeqs(valSeq, []IRInstruction{{Kind: OpStoreLocal, Arg: int64(slot)}})
		seq = concatSeqs(seq, valSeq)
	}
	bodySeq, kind, err := c.lowerBody(ctx, v.Body, phaseA)
	if err != nil {
		return nil, KindAny, err
	}
	seq = concatSeqs(seq, bodySeq)
	ctx.popScope()
	return seq, kind, nil
}

// lowerIf lowers `(if cond then else)` into a compare-and-branch
// subsequence; jump targets are instruction indices within the
// combined if-subsequence and are rebased by concatSeqs like any other
// sub-result.
func (c *Compiler) lowerIf(ctx *CompileContext, v *IfExpr, phaseA bool) ([]IRInstruction, ValueKind, error) {
	condSeq, _, err := c.lowerExpr(ctx, v.Cond, phaseA)
	if err != nil {
		return nil, KindAny, err
	}
	thenSeq, thenKind, err := c.lowerExpr(ctx, v.Then, phaseA)
	if err != nil {
		return nil, KindAny, err
	}
	var elseSeq []IRInstruction
	elseKind := KindNil
	if v.Else != nil {
		elseSeq, elseKind, err = c.lowerExpr(ctx, v.Else, phaseA)
		if err != nil {
			return nil, KindAny, err
		}
	} else {
		elseSeq = []IRInstruction{{Kind: OpPushNil}}
	}

	// Layout: [cond] JumpIfZero(L1) [then] Jump(L2) [else]
	// L1 = start of else (len(cond)+1+len(then)+1)
	// L2 = end of else  (L1+len(else))
	jumpToElse := int64(len(condSeq) + 1 + len(thenSeq) + 1)
	end := jumpToElse + int64(len(elseSeq))

	seq := make([]IRInstruction, 0, len(condSeq)+1+len(thenSeq)+1+len(elseSeq))
	seq = append(seq, condSeq...)
	seq = append(seq, IRInstruction{Kind: OpJumpIfZero, Arg: jumpToElse})
	seq = append(seq, adjustJumpTargets(thenSeq, int64(len(seq)))...)
	seq = append(seq, IRInstruction{Kind: OpJump, Arg: end})
	seq = append(seq, adjustJumpTargets(elseSeq, int64(len(seq)))...)

	kind := thenKind
	if thenKind != elseKind {
		kind = KindAny
	}
	return seq, kind, nil
}

var primitiveArity = map[string]int{
	"+": -1, "-": -1, "*": -1, "/": 2, "mod": 2,
	"=": 2, "<": 2, "<=": 2, ">": 2, ">=": 2,
	"and": -1, "or": -1, "not": 1,
}

// lowerCall lowers a function application. A Symbol callee that names
// a known primitive lowers to the matching arithmetic/comparison/
// logical opcode; a Symbol naming a user function lowers to OpCall; any
// other callee expression (a parameter holding a function value, or
// the result of another call) lowers to OpCallIndirect, with the
// callee address pushed last so it is on top of the argument values
// when the emitter assembles the call.
func (c *Compiler) lowerCall(ctx *CompileContext, v *CallExpr, phaseA bool) ([]IRInstruction, ValueKind, error) {
	sym, isSym := v.Fn.(*Symbol)
	if isSym {
		if kind, seq, ok, err := c.lowerPrimitive(ctx, sym.Name, v.Args, phaseA); ok || err != nil {
			return seq, kind, err
		}
		if kind, seq, ok, err := c.lowerBuiltin(ctx, sym.Name, v.Args, phaseA); ok || err != nil {
			return seq, kind, err
		}
		if _, isFn := c.defns[sym.Name]; isFn {
			return c.lowerDirectCall(ctx, sym.Name, v.Args, phaseA)
		}
	}
	var seq []IRInstruction
	argKinds := make([]ValueKind, 0, len(v.Args))
	for _, a := range v.Args {
		sub, kind, err := c.lowerExpr(ctx, a, phaseA)
		if err != nil {
			return nil, KindAny, err
		}
		argKinds = append(argKinds, kind)
		seq = concatSeqs(seq, sub)
	}
	calleeSeq, _, err := c.lowerExpr(ctx, v.Fn, phaseA)
	if err != nil {
		return nil, KindAny, err
	}
	seq = concatSeqs(seq, calleeSeq)
	seq = concatSeqs(seq, []IRInstruction{{Kind: OpCallIndirect, Arg: int64(len(v.Args))}})
	return seq, KindAny, nil
}

func (c *Compiler) lowerDirectCall(ctx *CompileContext, name string, args []Expr, phaseA bool) ([]IRInstruction, ValueKind, error) {
	var seq []IRInstruction
	for i, a := range args {
		sub, kind, err := c.lowerExpr(ctx, a, phaseA)
		if err != nil {
			return nil, KindAny, err
		}
		if phaseA {
			if c.observed[name] == nil {
				c.observed[name] = make(map[int][]ValueKind)
			}
			c.observed[name][i] = append(c.observed[name][i], kind)
		}
		seq = concatSeqs(seq, sub)
	}
	seq = concatSeqs(seq, []IRInstruction{{Kind: OpCall, Str: name, Arg: int64(len(args))}})
	// Every user function returns an owned value to its caller; the
	// exact kind isn't tracked across functions in this pass, so
	// callers see KindAny and the runtime tag decides.
	return seq, KindAny, nil
}

// lowerPrimitive lowers one of the fixed arithmetic/comparison/logical
// primitives. ok is false if name is not a recognized primitive, in
// which case the caller falls through to a user-function or indirect
// call.
func (c *Compiler) lowerPrimitive(ctx *CompileContext, name string, args []Expr, phaseA bool) (ValueKind, []IRInstruction, bool, error) {
	arity, known := primitiveArity[name]
	if !known {
		return KindAny, nil, false, nil
	}
	if arity >= 0 && len(args) != arity {
		return KindAny, nil, true, fmt.Errorf("compile error: %s takes %d argument(s), got %d", name, arity, len(args))
	}

	lowerAll := func() ([]IRInstruction, error) {
		var seq []IRInstruction
		for _, a := range args {
			sub, _, err := c.lowerExpr(ctx, a, phaseA)
			if err != nil {
				return nil, err
			}
			seq = concatSeqs(seq, sub)
		}
		return seq, nil
	}

	variadicFold := func(op OpKind, identity int64) ([]IRInstruction, error) {
		if len(args) == 0 {
			return []IRInstruction{{Kind: OpPushNumber, Arg: identity}}, nil
		}
		first, _, err := c.lowerExpr(ctx, args[0], phaseA)
		if err != nil {
			return nil, err
		}
		seq := first
		for _, a := range args[1:] {
			sub, _, err := c.lowerExpr(ctx, a, phaseA)
			if err != nil {
				return nil, err
			}
			seq = concatSeqs(seq, sub, []IRInstruction{{Kind: op}})
		}
		return seq, nil
	}

	switch name {
	case "+":
		seq, err := variadicFold(OpAdd, 0)
		return KindNumber, seq, true, err
	case "*":
		seq, err := variadicFold(OpMul, 1)
		return KindNumber, seq, true, err
	case "-":
		if len(args) == 1 {
			sub, _, err := c.lowerExpr(ctx, args[0], phaseA)
			if err != nil {
				return KindAny, nil, true, err
			}
			return KindNumber, concatSeqs(sub, []IRInstruction{{Kind: OpNeg}}), true, nil
		}
		seq, err := variadicFold(OpSub, 0)
		return KindNumber, seq, true, err
	case "/":
		seq, err := lowerAll()
		return KindNumber, concatSeqs(seq, []IRInstruction{{Kind: OpDiv}}), true, err
	case "mod":
		seq, err := lowerAll()
		return KindNumber, concatSeqs(seq, []IRInstruction{{Kind: OpMod}}), true, err
	case "=":
		aSeq, aKind, err := c.lowerExpr(ctx, args[0], phaseA)
		if err != nil {
			return KindAny, nil, true, err
		}
		bSeq, _, err := c.lowerExpr(ctx, args[1], phaseA)
		if err != nil {
			return KindAny, nil, true, err
		}
		seq := concatSeqs(aSeq, bSeq)
		// Numbers, bools, nil, and keywords compare as raw payload
		// words (OpEq); the heap collection kinds and strings need a
		// structural comparison, dispatched here on the first
		// operand's statically known kind - equality compares
		// structurally for collections, by value for scalars. KindAny
		// operands fall back to OpEq - a pointer
		// comparison that is only correct when the two values happen
		// to alias, a known gap left by this core's lack of a runtime
		// type tag (see runtime_vector.go's file comment).
		switch aKind {
		case KindString:
			seq = concatSeqs(seq, []IRInstruction{{Kind: OpRuntimeCall, Str: "_string_equals", Arg: 2}})
		case KindVector:
			seq = concatSeqs(seq, []IRInstruction{{Kind: OpRuntimeCall, Str: "_vector_equals", Arg: 2}})
		case KindMap:
			seq = concatSeqs(seq, []IRInstruction{{Kind: OpRuntimeCall, Str: "_map_equals", Arg: 2}})
		case KindSet:
			seq = concatSeqs(seq, []IRInstruction{{Kind: OpRuntimeCall, Str: "_set_equals", Arg: 2}})
		default:
			seq = concatSeqs(seq, []IRInstruction{{Kind: OpEq}})
		}
		return KindBool, seq, true, nil
	case "<":
		seq, err := lowerAll()
		return KindBool, concatSeqs(seq, []IRInstruction{{Kind: OpLt}}), true, err
	case "<=":
		seq, err := lowerAll()
		return KindBool, concatSeqs(seq, []IRInstruction{{Kind: OpLe}}), true, err
	case ">":
		seq, err := lowerAll()
		return KindBool, concatSeqs(seq, []IRInstruction{{Kind: OpGt}}), true, err
	case ">=":
		seq, err := lowerAll()
		return KindBool, concatSeqs(seq, []IRInstruction{{Kind: OpGe}}), true, err
	case "not":
		seq, err := lowerAll()
		return KindBool, concatSeqs(seq, []IRInstruction{{Kind: OpNot}}), true, err
	case "and":
		seq, err := variadicFold(OpAnd, 1)
		return KindBool, seq, true, err
	case "or":
		seq, err := variadicFold(OpOr, 0)
		return KindBool, seq, true, err
	}
	return KindAny, nil, false, nil
}
