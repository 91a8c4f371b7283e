package main

import "fmt"

// compiler_builtins.go - lowering for the collection and string
// builtins that aren't arithmetic/comparison primitives: count, get,
// concat, assoc, dissoc, conj/push, disj, contains?, keys, vals, subs,
// map, filter, reduce, first, rest, cons, select-keys, zipmap, merge.
// Every runtime helper these wire into lives in
// runtime_string.go/runtime_vector.go/runtime_map.go/runtime_set.go;
// this file is what makes them reachable from lowerCall, the same way
// lowerPrimitive reaches the arithmetic primitives.
//
// Dispatch mirrors lowerPrimitive's handling of `=`: pick the runtime
// symbol from the first operand's statically known ValueKind. A
// concretely wrong kind is a compile error, but KindAny always falls
// back to a single representative helper rather than rejecting the
// call outright - the same posture `=`'s KindAny fallback to raw OpEq
// already takes, and the same known gap: this core has no runtime type
// tag to dispatch on, so a KindAny value that turns out to be the
// wrong kind at runtime is a silent correctness bug, not a trap.

var builtinArity = map[string]int{
	"count":       1,
	"get":         2,
	"concat":      2,
	"assoc":       3,
	"dissoc":      2,
	"conj":        2,
	"push":        2,
	"disj":        2,
	"contains?":   2,
	"keys":        1,
	"vals":        1,
	"subs":        3,
	"map":         2,
	"filter":      2,
	"reduce":      3,
	"first":       1,
	"rest":        1,
	"cons":        2,
	"select-keys": 2,
	"zipmap":      2,
	"merge":       2,
}

// lowerBuiltin lowers one of the builtinArity operations. ok is false
// if name isn't one of them, in which case the caller falls through to
// a user-function or indirect call.
func (c *Compiler) lowerBuiltin(ctx *CompileContext, name string, args []Expr, phaseA bool) (ValueKind, []IRInstruction, bool, error) {
	arity, known := builtinArity[name]
	if !known {
		return KindAny, nil, false, nil
	}
	if len(args) != arity {
		return KindAny, nil, true, fmt.Errorf("compile error: %s takes %d argument(s), got %d", name, arity, len(args))
	}

	firstSeq, firstKind, err := c.lowerExpr(ctx, args[0], phaseA)
	if err != nil {
		return KindAny, nil, true, err
	}

	switch name {
	case "assoc", "conj", "push":
		// The argument(s) being inserted into the collection must be
		// cloned when heap-typed, the same rule literal construction
		// follows in compiler_collections.go - otherwise the inserted
		// value and its original binding alias one heap block.
		return c.lowerInsertingBuiltin(ctx, name, firstSeq, firstKind, args[1:], phaseA)
	case "cons":
		// cons prepends args[0], which is the value already lowered
		// into firstSeq/firstKind above - clone it if heap-typed for
		// the same reason conj/push do, then lower the vector second.
		headSeq := cloneHeapElement(firstKind, firstSeq)
		collSeq, collKind, err := c.lowerExpr(ctx, args[1], phaseA)
		if err != nil {
			return KindAny, nil, true, err
		}
		if collKind != KindVector && collKind != KindAny {
			return KindAny, nil, true, fmt.Errorf("compile error: cons requires a vector argument, got %s", collKind)
		}
		return KindVector, concatSeqs(headSeq, collSeq, rtCall("_vector_cons", 2)), true, nil
	}

	restSeq, err := c.lowerRest(ctx, args[1:], phaseA)
	if err != nil {
		return KindAny, nil, true, err
	}
	seq := concatSeqs(firstSeq, restSeq)

	switch name {
	case "count":
		// All four heap kinds (and strings) store their element count
		// in the first word of their block, so any one of the four
		// count helpers reads a KindAny value
		// correctly regardless of its actual runtime kind -
		// _vector_count is the arbitrary representative.
		sym := "_vector_count"
		switch firstKind {
		case KindString:
			sym = "_string_count"
		case KindMap:
			sym = "_map_count"
		case KindSet:
			sym = "_set_count"
		case KindVector, KindAny:
		default:
			return KindAny, nil, true, fmt.Errorf("compile error: count requires a string, vector, map, or set argument, got %s", firstKind)
		}
		return KindNumber, concatSeqs(seq, rtCall(sym, 1)), true, nil

	case "get":
		switch firstKind {
		case KindString:
			return KindAny, concatSeqs(seq, rtCall("_string_get", 2)), true, nil
		case KindVector, KindAny:
			return KindAny, concatSeqs(seq, rtCall("_vector_get", 2)), true, nil
		case KindMap:
			return KindAny, concatSeqs(seq, rtCall("_map_get", 2)), true, nil
		}
		return KindAny, nil, true, fmt.Errorf("compile error: get requires a string, vector, or map argument, got %s", firstKind)

	case "concat":
		switch firstKind {
		case KindString, KindAny:
			return KindString, concatSeqs(seq, rtCall("_string_concat", 2)), true, nil
		}
		return KindAny, nil, true, fmt.Errorf("compile error: concat is only implemented for strings, got %s", firstKind)

	case "dissoc":
		switch firstKind {
		case KindMap, KindAny:
			return KindMap, concatSeqs(seq, rtCall("_map_dissoc", 2)), true, nil
		}
		return KindAny, nil, true, fmt.Errorf("compile error: dissoc requires a map argument, got %s", firstKind)

	case "disj":
		switch firstKind {
		case KindSet, KindAny:
			return KindSet, concatSeqs(seq, rtCall("_set_disj", 2)), true, nil
		}
		return KindAny, nil, true, fmt.Errorf("compile error: disj requires a set argument, got %s", firstKind)

	case "contains?":
		switch firstKind {
		case KindMap, KindAny:
			return KindBool, concatSeqs(seq, rtCall("_map_contains", 2)), true, nil
		case KindSet:
			return KindBool, concatSeqs(seq, rtCall("_set_contains", 2)), true, nil
		}
		return KindAny, nil, true, fmt.Errorf("compile error: contains? requires a map or set argument, got %s", firstKind)

	case "keys":
		switch firstKind {
		case KindMap, KindAny:
			return KindVector, concatSeqs(seq, rtCall("_map_keys", 1)), true, nil
		}
		return KindAny, nil, true, fmt.Errorf("compile error: keys requires a map argument, got %s", firstKind)

	case "vals":
		switch firstKind {
		case KindMap, KindAny:
			return KindVector, concatSeqs(seq, rtCall("_map_vals", 1)), true, nil
		}
		return KindAny, nil, true, fmt.Errorf("compile error: vals requires a map argument, got %s", firstKind)

	case "subs":
		switch firstKind {
		case KindString, KindAny:
			return KindString, concatSeqs(seq, rtCall("_string_subs", 3)), true, nil
		}
		return KindAny, nil, true, fmt.Errorf("compile error: subs requires a string argument, got %s", firstKind)

	case "map":
		// firstKind here is the function argument's kind, which is
		// never a useful dispatch key (function values have no
		// ValueKind of their own) - _vector_map is the only target.
		return KindVector, concatSeqs(seq, rtCall("_vector_map", 2)), true, nil

	case "filter":
		return KindVector, concatSeqs(seq, rtCall("_vector_filter", 2)), true, nil

	case "reduce":
		return KindAny, concatSeqs(seq, rtCall("_vector_reduce", 3)), true, nil

	case "first":
		switch firstKind {
		case KindVector, KindAny:
			return KindAny, concatSeqs(seq, rtCall("_vector_first", 1)), true, nil
		}
		return KindAny, nil, true, fmt.Errorf("compile error: first requires a vector argument, got %s", firstKind)

	case "rest":
		switch firstKind {
		case KindVector, KindAny:
			return KindVector, concatSeqs(seq, rtCall("_vector_rest", 1)), true, nil
		}
		return KindAny, nil, true, fmt.Errorf("compile error: rest requires a vector argument, got %s", firstKind)

	case "select-keys":
		switch firstKind {
		case KindMap, KindAny:
			return KindMap, concatSeqs(seq, rtCall("_map_select_keys", 2)), true, nil
		}
		return KindAny, nil, true, fmt.Errorf("compile error: select-keys requires a map argument, got %s", firstKind)

	case "zipmap":
		switch firstKind {
		case KindVector, KindAny:
			return KindMap, concatSeqs(seq, rtCall("_map_zipmap", 2)), true, nil
		}
		return KindAny, nil, true, fmt.Errorf("compile error: zipmap requires a vector argument, got %s", firstKind)

	case "merge":
		switch firstKind {
		case KindMap, KindAny:
			return KindMap, concatSeqs(seq, rtCall("_map_merge", 2)), true, nil
		}
		return KindAny, nil, true, fmt.Errorf("compile error: merge requires a map argument, got %s", firstKind)
	}
	return KindAny, nil, false, nil
}

// lowerInsertingBuiltin handles the builtins that insert a value into a
// collection (assoc, conj, push): the inserted argument(s) are cloned
// when heap-typed before the runtime call, for the same reason
// compiler_collections.go clones elements of a literal.
func (c *Compiler) lowerInsertingBuiltin(ctx *CompileContext, name string, firstSeq []IRInstruction, firstKind ValueKind, rest []Expr, phaseA bool) (ValueKind, []IRInstruction, bool, error) {
	switch name {
	case "assoc":
		if firstKind != KindMap && firstKind != KindAny {
			return KindAny, nil, true, fmt.Errorf("compile error: assoc requires a map argument, got %s", firstKind)
		}
		keySeq, keyKind, err := c.lowerExpr(ctx, rest[0], phaseA)
		if err != nil {
			return KindAny, nil, true, err
		}
		keySeq = cloneHeapElement(keyKind, keySeq)
		valSeq, valKind, err := c.lowerExpr(ctx, rest[1], phaseA)
		if err != nil {
			return KindAny, nil, true, err
		}
		valSeq = cloneHeapElement(valKind, valSeq)
		seq := concatSeqs(firstSeq, keySeq, valSeq, rtCall("_map_put", 3))
		return KindMap, seq, true, nil

	case "conj", "push":
		elemSeq, elemKind, err := c.lowerExpr(ctx, rest[0], phaseA)
		if err != nil {
			return KindAny, nil, true, err
		}
		elemSeq = cloneHeapElement(elemKind, elemSeq)
		switch firstKind {
		case KindVector, KindAny:
			return KindVector, concatSeqs(firstSeq, elemSeq, rtCall("_vector_push", 2)), true, nil
		case KindSet:
			return KindSet, concatSeqs(firstSeq, elemSeq, rtCall("_set_add", 2)), true, nil
		}
		return KindAny, nil, true, fmt.Errorf("compile error: %s requires a vector or set argument, got %s", name, firstKind)
	}
	panic("unreachable")
}

// lowerRest lowers a slice of arguments left to right and concatenates
// their subsequences - the shared tail every builtin above uses once
// its first argument (the one whose ValueKind picks the runtime
// symbol) has already been lowered on its own.
func (c *Compiler) lowerRest(ctx *CompileContext, args []Expr, phaseA bool) ([]IRInstruction, error) {
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

// rtCall builds a single-instruction subsequence invoking runtime
// helper sym against argc already-pushed arguments.
func rtCall(sym string, argc int64) []IRInstruction {
	return []IRInstruction{{Kind: OpRuntimeCall, Str: sym, Arg: argc}}
}
