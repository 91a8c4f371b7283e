package main

// ir_jumps.go - jump/offset fixup. Every relative jump target in an IR
// subsequence is measured from the start of that subsequence;
// combining subsequences requires re-basing. This is the single
// highest-severity class of bug in this codebase - every call site
// that concatenates two IR subsequences into one must run the second
// one (and every one after it) through adjustJumpTargets first.

// adjustJumpTargets re-bases every relative jump target in seq by
// offset. It must be applied to every subsequence except the first
// when subsequences are concatenated.
func adjustJumpTargets(seq []IRInstruction, offset int64) []IRInstruction {
	if offset == 0 {
		return seq
	}
	out := make([]IRInstruction, len(seq))
	for i, ins := range seq {
		if ins.Kind == OpJump || ins.Kind == OpJumpIfZero {
			ins.Arg += offset
		}
		out[i] = ins
	}
	return out
}

// concatSeqs concatenates IR subsequences left to right, re-basing the
// jump targets of every subsequence after the first by its position in
// the combined stream. This is the one function every lowering rule
// that combines sub-results (let, if, calls, collection literals)
// must route through - hand-rolling the concatenation anywhere else
// reintroduces exactly the re-basing bug this function exists to
// avoid.
func concatSeqs(seqs ...[]IRInstruction) []IRInstruction {
	var out []IRInstruction
	for _, seq := range seqs {
		out = append(out, adjustJumpTargets(seq, int64(len(out)))...)
	}
	return out
}
