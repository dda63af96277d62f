// Package insts provides RV32I instruction definitions and decoding.
package insts

// RV32I opcode field values (instr[6:0]).
const (
	opcodeLUI    = 0b0110111
	opcodeAUIPC  = 0b0010111
	opcodeJAL    = 0b1101111
	opcodeJALR   = 0b1100111
	opcodeBranch = 0b1100011
	opcodeLoad   = 0b0000011
	opcodeStore  = 0b0100011
	opcodeOpImm  = 0b0010011
	opcodeOp     = 0b0110011
	opcodeSystem = 0b1110011
)

// Decode decodes a 32-bit RV32I instruction word.
func (d *Decoder) Decode(word uint32) *Instruction {
	inst := &Instruction{Op: OpUnknown, Format: FormatUnknown, Word: word}

	inst.Opcode = uint8(word & 0x7F)
	inst.Funct3 = uint8((word >> 12) & 0x7)
	inst.Funct7 = uint8((word >> 25) & 0x7F)
	inst.Rd = uint8((word >> 7) & 0x1F)
	inst.Rs1 = uint8((word >> 15) & 0x1F)
	inst.Rs2 = uint8((word >> 20) & 0x1F)

	switch inst.Opcode {
	case opcodeLUI:
		d.decodeLUI(word, inst)
	case opcodeAUIPC:
		d.decodeAUIPC(word, inst)
	case opcodeJAL:
		d.decodeJAL(word, inst)
	case opcodeJALR:
		d.decodeJALR(word, inst)
	case opcodeBranch:
		d.decodeBranch(word, inst)
	case opcodeLoad:
		d.decodeLoad(word, inst)
	case opcodeStore:
		d.decodeStore(word, inst)
	case opcodeOpImm:
		d.decodeOpImm(word, inst)
	case opcodeOp:
		d.decodeOp(word, inst)
	case opcodeSystem:
		d.decodeSystem(word, inst)
	}

	return inst
}

func (d *Decoder) decodeLUI(word uint32, inst *Instruction) {
	inst.Op = OpLUI
	inst.Format = FormatU
	inst.Imm = immU(word)
}

func (d *Decoder) decodeAUIPC(word uint32, inst *Instruction) {
	inst.Op = OpAUIPC
	inst.Format = FormatU
	inst.Imm = immU(word)
}

func (d *Decoder) decodeJAL(word uint32, inst *Instruction) {
	inst.Op = OpJAL
	inst.Format = FormatJ
	inst.Imm = immJ(word)
}

func (d *Decoder) decodeJALR(word uint32, inst *Instruction) {
	inst.Op = OpJALR
	inst.Format = FormatI
	inst.Imm = immI(word)
}

func (d *Decoder) decodeBranch(word uint32, inst *Instruction) {
	inst.Format = FormatB
	inst.Imm = immB(word)

	switch inst.Funct3 {
	case 0b000:
		inst.Op = OpBEQ
	case 0b001:
		inst.Op = OpBNE
	case 0b100:
		inst.Op = OpBLT
	case 0b101:
		inst.Op = OpBGE
	case 0b110:
		inst.Op = OpBLTU
	case 0b111:
		inst.Op = OpBGEU
	}
}

func (d *Decoder) decodeLoad(word uint32, inst *Instruction) {
	inst.Format = FormatI
	inst.Imm = immI(word)

	switch inst.Funct3 {
	case 0b000:
		inst.Op = OpLB
	case 0b001:
		inst.Op = OpLH
	case 0b010:
		inst.Op = OpLW
	case 0b100:
		inst.Op = OpLBU
	case 0b101:
		inst.Op = OpLHU
	}
}

func (d *Decoder) decodeStore(word uint32, inst *Instruction) {
	inst.Format = FormatS
	inst.Imm = immS(word)

	switch inst.Funct3 {
	case 0b000:
		inst.Op = OpSB
	case 0b001:
		inst.Op = OpSH
	case 0b010:
		inst.Op = OpSW
	}
}

func (d *Decoder) decodeOpImm(word uint32, inst *Instruction) {
	inst.Format = FormatI
	inst.Imm = immI(word)
	inst.Shamt = uint8((word >> 20) & 0x1F)

	switch inst.Funct3 {
	case 0b000:
		inst.Op = OpADDI
	case 0b010:
		inst.Op = OpSLTI
	case 0b011:
		inst.Op = OpSLTIU
	case 0b100:
		inst.Op = OpXORI
	case 0b110:
		inst.Op = OpORI
	case 0b111:
		inst.Op = OpANDI
	case 0b001:
		inst.Op = OpSLLI
	case 0b101:
		if inst.Funct7&0x20 != 0 {
			inst.Op = OpSRAI
		} else {
			inst.Op = OpSRLI
		}
	}
}

func (d *Decoder) decodeOp(word uint32, inst *Instruction) {
	inst.Format = FormatR

	if inst.Funct7&0x01 != 0 {
		inst.Op = OpMExtReserved
		return
	}

	switch inst.Funct3 {
	case 0b000:
		if inst.Funct7&0x20 != 0 {
			inst.Op = OpSUB
		} else {
			inst.Op = OpADD
		}
	case 0b001:
		inst.Op = OpSLL
	case 0b010:
		inst.Op = OpSLT
	case 0b011:
		inst.Op = OpSLTU
	case 0b100:
		inst.Op = OpXOR
	case 0b101:
		if inst.Funct7&0x20 != 0 {
			inst.Op = OpSRA
		} else {
			inst.Op = OpSRL
		}
	case 0b110:
		inst.Op = OpOR
	case 0b111:
		inst.Op = OpAND
	}
}

func (d *Decoder) decodeSystem(word uint32, inst *Instruction) {
	inst.Format = FormatSystem
	inst.CSR = uint16((word >> 20) & 0xFFF)
	inst.Imm = immI(word)

	switch inst.Funct3 {
	case 0b000:
		if inst.CSR == 0 {
			inst.Op = OpECALL
		} else {
			inst.Op = OpEBREAK
		}
	case 0b001:
		inst.Op = OpCSRRW
	case 0b010:
		inst.Op = OpCSRRS
	case 0b011:
		inst.Op = OpCSRRC
	case 0b101:
		inst.Op = OpCSRRWI
	case 0b110:
		inst.Op = OpCSRRSI
	case 0b111:
		inst.Op = OpCSRRCI
	}
}

// immI forms the I-type immediate: sext(instr[31:20]).
func immI(word uint32) int32 {
	return int32(word) >> 20
}

// immS forms the S-type immediate: sext({instr[31:25], instr[11:7]}).
func immS(word uint32) int32 {
	raw := ((word >> 25) << 5) | ((word >> 7) & 0x1F)
	return signExtend(raw, 12)
}

// immB forms the B-type immediate:
// sext({instr[31], instr[7], instr[30:25], instr[11:8], 0}).
func immB(word uint32) int32 {
	bit12 := (word >> 31) & 0x1
	bit11 := (word >> 7) & 0x1
	bits10_5 := (word >> 25) & 0x3F
	bits4_1 := (word >> 8) & 0xF

	raw := (bit12 << 12) | (bit11 << 11) | (bits10_5 << 5) | (bits4_1 << 1)
	return signExtend(raw, 13)
}

// immU forms the U-type immediate: {instr[31:12], 12'b0}.
func immU(word uint32) int32 {
	return int32(word & 0xFFFFF000)
}

// immJ forms the J-type immediate:
// sext({instr[31], instr[19:12], instr[20], instr[30:21], 0}).
func immJ(word uint32) int32 {
	bit20 := (word >> 31) & 0x1
	bits19_12 := (word >> 12) & 0xFF
	bit11 := (word >> 20) & 0x1
	bits10_1 := (word >> 21) & 0x3FF

	raw := (bit20 << 20) | (bits19_12 << 12) | (bit11 << 11) | (bits10_1 << 1)
	return signExtend(raw, 21)
}

// signExtend sign-extends the low `bits` bits of raw to a full int32.
func signExtend(raw uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(raw<<shift) >> shift
}
