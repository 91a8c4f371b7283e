package main

// liveness.go - the liveness-aware ownership planner. It runs once per
// function, after compiler.go has produced a flat, fully-lowered
// IRFunction, and inserts OpFreeLocal at each heap-owning slot's last
// use.
//
// Simplification: the planner computes "last use" over the flattened
// instruction stream without reconstructing the branch structure
// lowerIf produced (the IR carries absolute jump targets, not a block
// tree). A slot gets at most one FreeLocal in the whole function,
// placed after its textually last OpLoadLocal (or immediately after
// its defining OpStoreLocal if it is never loaded again) - this can
// never double-free, which is the invariant that actually matters; the
// only cost is an occasional slot freed later than its true last use
// on some control-flow paths, never earlier.
func PlanLiveness(fn *IRFunction) {
	n := len(fn.Instrs)
	lastLoad := make(map[int]int)
	lastStore := make(map[int]int)
	for i, ins := range fn.Instrs {
		switch ins.Kind {
		case OpLoadLocal:
			lastLoad[int(ins.Arg)] = i
		case OpStoreLocal:
			lastStore[int(ins.Arg)] = i
		}
	}

	freeAfter := make(map[int][]int) // original index -> slots to free right after it
	for slot, owns := range fn.HeapOwnerSlots {
		if !owns {
			continue
		}
		at, ok := lastLoad[slot]
		if !ok {
			at, ok = lastStore[slot]
			if !ok {
				continue
			}
		}
		freeAfter[at] = append(freeAfter[at], slot)
	}
	if len(freeAfter) == 0 {
		return
	}

	// cum[i] = number of FreeLocal instructions inserted strictly
	// before original index i; newIndex(i) = i + cum[i].
	cum := make([]int, n+1)
	for i := 0; i < n; i++ {
		cum[i+1] = cum[i] + len(freeAfter[i])
	}
	newIndex := func(orig int64) int64 {
		if int(orig) > n {
			orig = int64(n)
		}
		return orig + int64(cum[orig])
	}

	out := make([]IRInstruction, 0, n+cum[n])
	for i, ins := range fn.Instrs {
		if ins.Kind == OpJump || ins.Kind == OpJumpIfZero {
			ins.Arg = newIndex(ins.Arg)
		}
		out = append(out, ins)
		for _, slot := range freeAfter[i] {
			out = append(out, IRInstruction{Kind: OpFreeLocal, Arg: int64(slot)})
		}
	}
	fn.Instrs = out
}
