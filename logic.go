package main

// logic.go - bitwise/logical encoding. Slisp's `and`/`or`/`not` operate
// on BOOL payloads already normalized to 0/1, so plain bitwise
// and/or/xor double as the logical ops without a separate
// boolean-specific opcode family.

// AndRegToReg emits `and dst, src`.
func (o *Out) AndRegToReg(dst, src string) {
	d, s := reg(dst), reg(src)
	o.rexRW(d.Encoding, s.Encoding)
	o.Write(0x21)
	o.Write(modrmReg(d.Encoding, s.Encoding))
}

// OrRegToReg emits `or dst, src`.
func (o *Out) OrRegToReg(dst, src string) {
	d, s := reg(dst), reg(src)
	o.rexRW(d.Encoding, s.Encoding)
	o.Write(0x09)
	o.Write(modrmReg(d.Encoding, s.Encoding))
}

// XorRegToReg emits `xor dst, src`.
func (o *Out) XorRegToReg(dst, src string) {
	d, s := reg(dst), reg(src)
	o.rexRW(d.Encoding, s.Encoding)
	o.Write(0x31)
	o.Write(modrmReg(d.Encoding, s.Encoding))
}

// TestRegToReg emits `test a, b` (a & b, flags only, no write-back).
func (o *Out) TestRegToReg(a, b string) {
	ra, rb := reg(a), reg(b)
	o.rexRW(ra.Encoding, rb.Encoding)
	o.Write(0x85)
	o.Write(modrmReg(ra.Encoding, rb.Encoding))
}

// NotBoolToReg computes logical-not of a 0/1 BOOL payload: dst = 1 - dst.
// A bitwise `not` would flip every bit, not just bit 0, which is wrong
// for a value the rest of the pipeline always treats as exactly 0 or 1.
func (o *Out) NotBoolToReg(dst string) {
	o.NegReg(dst)
	o.AddImmToReg(dst, 1)
}
