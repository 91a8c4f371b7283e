package main

// compiler_collections.go - lowering for vector/map/set literals and
// `str`. Each literal is built by repeatedly calling a mutating runtime
// helper and re-storing its result - vectors may reallocate their
// backing storage on push, so the builder's slot must be refreshed
// after every call, not just read once at the end. Temp slots reserved
// for a collection under construction are held deferred so nested
// element lowering can't reclaim one as its own temporary.
//
// Every heap-typed element, key, or value is cloned (cloneHeapElement)
// before it's handed to the push/add/put helper. Without that, binding
// the same vector/map/set into two places would leave both bindings
// pointing at one heap block, and freeing either binding's slot would
// leave the other dangling.

// cloneHeapElement appends a clone call after seq when kind owns a
// heap block, so a vector/set/map never ends up holding the exact
// same block another live binding already points at - without this,
// freeing either one's slot frees memory the other still reads.
// KindAny can't be handled here (no runtime tag to dispatch on at the
// call site that would need one), the same gap `=`'s KindAny fallback
// already carries.
func cloneHeapElement(kind ValueKind, seq []IRInstruction) []IRInstruction {
	var sym string
	switch kind {
	case KindString:
		sym = "_string_clone"
	case KindVector:
		sym = "_vector_clone"
	case KindMap:
		sym = "_map_clone"
	case KindSet:
		sym = "_set_clone"
	default:
		return seq
	}
	return concatSeqs(seq, []IRInstruction{{Kind: OpRuntimeCall, Str: sym, Arg: 1}})
}

func (c *Compiler) lowerCollection(ctx *CompileContext, e Expr, phaseA bool) ([]IRInstruction, ValueKind, error) {
	switch v := e.(type) {
	case *VectorLit:
		return c.lowerVector(ctx, v, phaseA)
	case *SetLit:
		return c.lowerSet(ctx, v, phaseA)
	case *MapLit:
		return c.lowerMap(ctx, v, phaseA)
	}
	panic("unreachable")
}

// withBuilderSlot reserves a temp slot for a collection under
// construction, marking it deferred so nested element lowering cannot
// reclaim it as a sibling's own temporary, runs build, then releases
// it back to the free list.
func (c *Compiler) withBuilderSlot(ctx *CompileContext, kind ValueKind, build func(slot int) ([]IRInstruction, error)) ([]IRInstruction, ValueKind, error) {
	slot := ctx.allocSlot()
	ctx.deferredTempSlots[slot] = true
	ctx.valueKinds[slot] = kind
	ctx.heapOwner[slot] = true
	seq, err := build(slot)
	delete(ctx.deferredTempSlots, slot)
	ctx.releaseSlot(slot)
	if err != nil {
		return nil, KindAny, err
	}
	return seq, kind, nil
}

func (c *Compiler) lowerVector(ctx *CompileContext, v *VectorLit, phaseA bool) ([]IRInstruction, ValueKind, error) {
	return c.withBuilderSlot(ctx, KindVector, func(slot int) ([]IRInstruction, error) {
		seq := []IRInstruction{
			{Kind: OpRuntimeCall, Str: "_vector_new", Arg: 0},
			{Kind: OpStoreLocal, Arg: int64(slot)},
		}
		for _, elem := range v.Elems {
			elemSeq, elemKind, err := c.lowerExpr(ctx, elem, phaseA)
			if err != nil {
				return nil, err
			}
			elemSeq = cloneHeapElement(elemKind, elemSeq)
			step := concatSeqs(
				[]IRInstruction{{Kind: OpLoadLocal, Arg: int64(slot)}},
				elemSeq,
				[]IRInstruction{
					{Kind: OpRuntimeCall, Str: "_vector_push", Arg: 2},
					{Kind: OpStoreLocal, Arg: int64(slot)},
				},
			)
			seq = concatSeqs(seq, step)
		}
		seq = concatSeqs(seq, []IRInstruction{{Kind: OpLoadLocal, Arg: int64(slot)}})
		return seq, nil
	})
}

func (c *Compiler) lowerSet(ctx *CompileContext, v *SetLit, phaseA bool) ([]IRInstruction, ValueKind, error) {
	return c.withBuilderSlot(ctx, KindSet, func(slot int) ([]IRInstruction, error) {
		seq := []IRInstruction{
			{Kind: OpRuntimeCall, Str: "_set_new", Arg: 0},
			{Kind: OpStoreLocal, Arg: int64(slot)},
		}
		for _, elem := range v.Elems {
			elemSeq, elemKind, err := c.lowerExpr(ctx, elem, phaseA)
			if err != nil {
				return nil, err
			}
			elemSeq = cloneHeapElement(elemKind, elemSeq)
			step := concatSeqs(
				[]IRInstruction{{Kind: OpLoadLocal, Arg: int64(slot)}},
				elemSeq,
				[]IRInstruction{
					{Kind: OpRuntimeCall, Str: "_set_add", Arg: 2},
					{Kind: OpStoreLocal, Arg: int64(slot)},
				},
			)
			seq = concatSeqs(seq, step)
		}
		seq = concatSeqs(seq, []IRInstruction{{Kind: OpLoadLocal, Arg: int64(slot)}})
		return seq, nil
	})
}

func (c *Compiler) lowerMap(ctx *CompileContext, v *MapLit, phaseA bool) ([]IRInstruction, ValueKind, error) {
	return c.withBuilderSlot(ctx, KindMap, func(slot int) ([]IRInstruction, error) {
		seq := []IRInstruction{
			{Kind: OpRuntimeCall, Str: "_map_new", Arg: 0},
			{Kind: OpStoreLocal, Arg: int64(slot)},
		}
		for i := range v.Keys {
			keySeq, keyKind, err := c.lowerExpr(ctx, v.Keys[i], phaseA)
			if err != nil {
				return nil, err
			}
			keySeq = cloneHeapElement(keyKind, keySeq)
			valSeq, valKind, err := c.lowerExpr(ctx, v.Vals[i], phaseA)
			if err != nil {
				return nil, err
			}
			valSeq = cloneHeapElement(valKind, valSeq)
			step := concatSeqs(
				[]IRInstruction{{Kind: OpLoadLocal, Arg: int64(slot)}},
				keySeq,
				valSeq,
				[]IRInstruction{
					{Kind: OpRuntimeCall, Str: "_map_put", Arg: 3},
					{Kind: OpStoreLocal, Arg: int64(slot)},
				},
			)
			seq = concatSeqs(seq, step)
		}
		seq = concatSeqs(seq, []IRInstruction{{Kind: OpLoadLocal, Arg: int64(slot)}})
		return seq, nil
	})
}

// lowerStr lowers `(str a b c ...)`. Each argument is normalized to a
// fresh string by its ValueKind before concatenation: a statically
// known number gets the cheap direct conversion, a statically known
// string passes through untouched (the concat helper itself makes the
// copy), and anything else (KindAny included) falls back to the
// tag-dispatching normalizer so the dynamic case still works.
func (c *Compiler) lowerStr(ctx *CompileContext, v *StrExpr, phaseA bool) ([]IRInstruction, ValueKind, error) {
	if len(v.Args) == 0 {
		idx := c.prog.InternString("")
		return []IRInstruction{
			{Kind: OpPushString, Arg: int64(idx)},
			{Kind: OpRuntimeCall, Str: "_string_clone", Arg: 1},
		}, KindString, nil
	}

	pieces := make([][]IRInstruction, 0, len(v.Args))
	for _, a := range v.Args {
		sub, kind, err := c.lowerExpr(ctx, a, phaseA)
		if err != nil {
			return nil, KindAny, err
		}
		switch kind {
		case KindString:
			// pass through; _string_concat copies its operands.
		case KindNumber:
			sub = concatSeqs(sub, []IRInstruction{{Kind: OpRuntimeCall, Str: "_string_from_number", Arg: 1}})
		default:
			sub = concatSeqs(sub, []IRInstruction{{Kind: OpRuntimeCall, Str: "_string_normalize", Arg: 1}})
		}
		pieces = append(pieces, sub)
	}

	seq := pieces[0]
	for _, p := range pieces[1:] {
		seq = concatSeqs(seq, p, []IRInstruction{{Kind: OpRuntimeCall, Str: "_string_concat", Arg: 2}})
	}
	return seq, KindString, nil
}
