package main

// cmp.go - comparison encoding. Every IR comparison op (Eq/Lt/Le/Gt/Ge)
// lowers to CmpRegToReg followed by SetccToReg. SetccToReg only ever
// touches the caller-saved destination register the IR already
// allocated for the result, never a callee-saved one.

// CmpRegToReg emits `cmp a, b` (computes a - b, sets flags, keeps a, b).
func (o *Out) CmpRegToReg(a, b string) {
	ra, rb := reg(a), reg(b)
	o.rexRW(ra.Encoding, rb.Encoding)
	o.Write(0x39)
	o.Write(modrmReg(ra.Encoding, rb.Encoding))
}

// CmpImmToReg emits `cmp dst, imm32`.
func (o *Out) CmpImmToReg(dst string, imm int32) {
	d := reg(dst)
	o.rexRW(d.Encoding, 0)
	o.Write(0x81)
	o.Write(modrmExt(d.Encoding, 7))
	o.Write4(uint32(imm))
}

// SetccToReg writes 0 or 1 into dst's low byte according to cond's
// flags, then movzx-extends it to a full 64-bit register. SETcc itself never
// touches flags, so it must run before anything that would - in
// particular, before the movzx that clears dst's upper bits, never the
// other way around. A REX prefix is always emitted before the SETcc
// opcode so the byte-register encoding addresses sil/dil/bpl/spl
// instead of the legacy ah/ch/dh/bh aliases whenever dst is one of
// rsi/rdi/rbp/rsp.
func (o *Out) SetccToReg(cond JumpCondition, dst string) {
	d := reg(dst)
	rexByte := uint8(0x40)
	if d.Encoding >= 8 {
		rexByte |= 0x01
	}
	o.Write(rexByte)
	o.Write(0x0F)
	o.Write(setccOpcode(cond))
	o.Write(modrmExt(d.Encoding, 0))

	// movzx dst, dst_low8 - clears bits 8..63 without reading flags.
	o.rexRW(d.Encoding, d.Encoding)
	o.Write(0x0F)
	o.Write(0xB6)
	o.Write(modrmReg(d.Encoding, d.Encoding))
}

func setccOpcode(cond JumpCondition) byte {
	switch cond {
	case JumpEqual:
		return 0x94
	case JumpNotEqual:
		return 0x95
	case JumpLess:
		return 0x9C
	case JumpLessOrEqual:
		return 0x9E
	case JumpGreater:
		return 0x9F
	case JumpGreaterOrEqual:
		return 0x9D
	default:
		compilerError("unknown jump condition: %v", cond)
		return 0
	}
}
