// isa_luz.go - Luz ISA tables shared by the assembler, disassembler and CPU

/*
Luz Toolchain and Simulator — 32-bit RISC CPU, assembler, linker and debugger
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/LuzEngine
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// Basic machine parameters
	LUZ_WORD_SIZE  = 4
	LUZ_NUM_REGS   = 32
	REG_RETURN     = 31 // written by CALL
	REG_RESERVED   = 30
	REG_STACK_PTR  = 29
	SHIFT_AMT_MASK = 0x1F
)

const (
	// Memory map
	USER_MEMORY_START = 0x100000
	USER_MEMORY_SIZE  = 0x40000

	// Core register addresses (peripheral space, word access only)
	ADDR_EXCEPTION_VECTOR      = 0x004
	ADDR_CONTROL_1             = 0x100
	ADDR_EXCEPTION_CAUSE       = 0x108
	ADDR_EXCEPTION_RETURN_ADDR = 0x10C
	ADDR_INTERRUPT_ENABLE      = 0x120
	ADDR_INTERRUPT_PENDING     = 0x124

	// Default debug queue peripheral address
	ADDR_DEBUG_QUEUE = 0xF0000
)

// Exception cause codes as reported in the exception-cause core register.
const (
	EXC_TRAP           = 1
	EXC_DIVIDE_BY_ZERO = 2
	EXC_MEMORY_ACCESS  = 3
	EXC_INVALID_OPCODE = 4
	EXC_INTERRUPT      = 32
)

// Opcode is the 6-bit major opcode held in bits 31:26 of every instruction.
type Opcode uint8

const (
	OP_ADD  Opcode = 0x00
	OP_SUB  Opcode = 0x01
	OP_MULU Opcode = 0x02
	OP_MUL  Opcode = 0x03
	OP_DIVU Opcode = 0x04
	OP_DIV  Opcode = 0x05
	OP_LUI  Opcode = 0x06
	OP_SLL  Opcode = 0x07
	OP_SRL  Opcode = 0x08
	OP_AND  Opcode = 0x09
	OP_OR   Opcode = 0x0A
	OP_NOR  Opcode = 0x0B
	OP_XOR  Opcode = 0x0C
	OP_LB   Opcode = 0x0D
	OP_LH   Opcode = 0x0E
	OP_LW   Opcode = 0x0F
	OP_LBU  Opcode = 0x10
	OP_LHU  Opcode = 0x11
	OP_SB   Opcode = 0x12
	OP_SH   Opcode = 0x13
	OP_SW   Opcode = 0x14
	OP_B    Opcode = 0x15
	OP_JR   Opcode = 0x16
	OP_BEQ  Opcode = 0x17
	OP_BNE  Opcode = 0x18
	OP_BGE  Opcode = 0x19
	OP_BGT  Opcode = 0x1A
	OP_BLE  Opcode = 0x1B
	OP_BLT  Opcode = 0x1C
	OP_CALL Opcode = 0x1D
	OP_ADDI Opcode = 0x20
	OP_SUBI Opcode = 0x21
	OP_BGEU Opcode = 0x22
	OP_BGTU Opcode = 0x23
	OP_BLEU Opcode = 0x24
	OP_BLTU Opcode = 0x25
	OP_ANDI Opcode = 0x29
	OP_ORI  Opcode = 0x2A
	OP_SLLI Opcode = 0x2B
	OP_SRLI Opcode = 0x2C
	OP_ERET Opcode = 0x3E
	OP_HALT Opcode = 0x3F
)

// InstrFormat classifies the operand shape and field layout of an
// instruction. The assembler's encoder, the disassembler and the CPU
// decoder all dispatch on it, so adding an instruction means touching
// exactly one table.
type InstrFormat int

const (
	Fmt3Reg     InstrFormat = iota // rd, rs, rt           (25:21, 20:16, 15:11)
	Fmt2RegImm                     // rd, rs, imm16        (25:21, 20:16, 15:0)
	FmtRegImm16                    // rd, imm16            (LUI)
	FmtLoad                        // rd, off16(rs)
	FmtStore                       // rs, off16(rd)        (base lives in the rd field)
	FmtBranch                      // rd, rs, off16        (PC-relative, words)
	FmtOff26                       // off26                (B; PC-relative, words)
	FmtTarget26                    // const26              (CALL; absolute word index)
	Fmt1Reg                        // rd                   (JR)
	FmtNone                        // no operands          (ERET, HALT)
)

// InstrDesc describes one real machine instruction.
type InstrDesc struct {
	Name    string
	Op      Opcode
	Format  InstrFormat
	NumArgs int
}

// opcodeTable is the single authoritative ISA description, keyed by opcode.
var opcodeTable = map[Opcode]*InstrDesc{
	OP_ADD:  {"add", OP_ADD, Fmt3Reg, 3},
	OP_SUB:  {"sub", OP_SUB, Fmt3Reg, 3},
	OP_MULU: {"mulu", OP_MULU, Fmt3Reg, 3},
	OP_MUL:  {"mul", OP_MUL, Fmt3Reg, 3},
	OP_DIVU: {"divu", OP_DIVU, Fmt3Reg, 3},
	OP_DIV:  {"div", OP_DIV, Fmt3Reg, 3},
	OP_LUI:  {"lui", OP_LUI, FmtRegImm16, 2},
	OP_SLL:  {"sll", OP_SLL, Fmt3Reg, 3},
	OP_SRL:  {"srl", OP_SRL, Fmt3Reg, 3},
	OP_AND:  {"and", OP_AND, Fmt3Reg, 3},
	OP_OR:   {"or", OP_OR, Fmt3Reg, 3},
	OP_NOR:  {"nor", OP_NOR, Fmt3Reg, 3},
	OP_XOR:  {"xor", OP_XOR, Fmt3Reg, 3},
	OP_LB:   {"lb", OP_LB, FmtLoad, 2},
	OP_LH:   {"lh", OP_LH, FmtLoad, 2},
	OP_LW:   {"lw", OP_LW, FmtLoad, 2},
	OP_LBU:  {"lbu", OP_LBU, FmtLoad, 2},
	OP_LHU:  {"lhu", OP_LHU, FmtLoad, 2},
	OP_SB:   {"sb", OP_SB, FmtStore, 2},
	OP_SH:   {"sh", OP_SH, FmtStore, 2},
	OP_SW:   {"sw", OP_SW, FmtStore, 2},
	OP_B:    {"b", OP_B, FmtOff26, 1},
	OP_JR:   {"jr", OP_JR, Fmt1Reg, 1},
	OP_BEQ:  {"beq", OP_BEQ, FmtBranch, 3},
	OP_BNE:  {"bne", OP_BNE, FmtBranch, 3},
	OP_BGE:  {"bge", OP_BGE, FmtBranch, 3},
	OP_BGT:  {"bgt", OP_BGT, FmtBranch, 3},
	OP_BLE:  {"ble", OP_BLE, FmtBranch, 3},
	OP_BLT:  {"blt", OP_BLT, FmtBranch, 3},
	OP_CALL: {"call", OP_CALL, FmtTarget26, 1},
	OP_ADDI: {"addi", OP_ADDI, Fmt2RegImm, 3},
	OP_SUBI: {"subi", OP_SUBI, Fmt2RegImm, 3},
	OP_BGEU: {"bgeu", OP_BGEU, FmtBranch, 3},
	OP_BGTU: {"bgtu", OP_BGTU, FmtBranch, 3},
	OP_BLEU: {"bleu", OP_BLEU, FmtBranch, 3},
	OP_BLTU: {"bltu", OP_BLTU, FmtBranch, 3},
	OP_ANDI: {"andi", OP_ANDI, Fmt2RegImm, 3},
	OP_ORI:  {"ori", OP_ORI, Fmt2RegImm, 3},
	OP_SLLI: {"slli", OP_SLLI, Fmt2RegImm, 3},
	OP_SRLI: {"srli", OP_SRLI, Fmt2RegImm, 3},
	OP_ERET: {"eret", OP_ERET, FmtNone, 0},
	OP_HALT: {"halt", OP_HALT, FmtNone, 0},
}

// mnemonicTable maps lower-case mnemonics to their descriptors. Built once
// from opcodeTable at startup; read-only afterwards.
var mnemonicTable = func() map[string]*InstrDesc {
	m := make(map[string]*InstrDesc, len(opcodeTable))
	for _, desc := range opcodeTable {
		m[desc.Name] = desc
	}
	return m
}()

// extractOpcode pulls the major opcode out of an instruction word.
func extractOpcode(instr uint32) Opcode {
	return Opcode(extractBitfield(instr, 31, 26))
}

// buildBitfield places val into bits hi:lo of a word.
func buildBitfield(hi, lo uint, val uint32) uint32 {
	mask := uint32(1)<<(hi-lo+1) - 1
	return (val & mask) << lo
}

// extractBitfield returns bits hi:lo of word, shifted down to bit 0.
func extractBitfield(word uint32, hi, lo uint) uint32 {
	mask := uint32(1)<<(hi-lo+1) - 1
	return (word >> lo) & mask
}

// signExtend interprets the low nbits of val as a two's-complement number
// and extends it to 32 bits.
func signExtend(val uint32, nbits uint) uint32 {
	shift := 32 - nbits
	return uint32(int32(val<<shift) >> shift)
}

// toSigned interprets the low nbits of val as two's-complement.
func toSigned(val uint32, nbits uint) int32 {
	return int32(signExtend(val, nbits))
}

// fitsInBits reports whether n is representable in nbits bits.
func fitsInBits(n int64, nbits uint, signed bool) bool {
	if signed {
		limit := int64(1) << (nbits - 1)
		return n >= -limit && n < limit
	}
	return n >= 0 && n < int64(1)<<nbits
}

// fitsImm reports whether n can be encoded in an nbits immediate field,
// accepting either an unsigned or a two's-complement signed reading. Real
// programs pass both (addi $r1, $r1, -4 must assemble as 0xFFFC).
func fitsImm(n int64, nbits uint) bool {
	return fitsInBits(n, nbits, false) || fitsInBits(n, nbits, true)
}

// registerAlias maps the conventional register names to register numbers.
// These are a pure assembly-level convenience; the hardware only knows
// numbers.
var registerAlias = map[string]uint32{
	"$zero": 0,
	"$at":   1,
	"$v0":   2,
	"$v1":   3,
	"$a0":   4,
	"$a1":   5,
	"$a2":   6,
	"$a3":   7,
	"$t0":   8,
	"$t1":   9,
	"$t2":   10,
	"$t3":   11,
	"$t4":   12,
	"$t5":   13,
	"$t6":   14,
	"$t7":   15,
	"$t8":   16,
	"$t9":   17,
	"$s0":   18,
	"$s1":   19,
	"$s2":   20,
	"$s3":   21,
	"$s4":   22,
	"$s5":   23,
	"$s6":   24,
	"$s7":   25,
	"$k0":   26,
	"$k1":   27,
	"$fp":   28,
	"$sp":   29,
	"$re":   30,
	"$ra":   31,
}

// registerAliasOf is the inverse of registerAlias, for display.
var registerAliasOf = func() map[uint32]string {
	m := make(map[uint32]string, len(registerAlias))
	for name, num := range registerAlias {
		m[num] = name
	}
	return m
}()

// parseRegister resolves a register specifier ($rN or an alias, already
// lower-cased by the lexer) to its number.
func parseRegister(name string) (uint32, bool) {
	if !strings.HasPrefix(name, "$") {
		return 0, false
	}
	if num, ok := registerAlias[name]; ok {
		return num, true
	}
	if strings.HasPrefix(name, "$r") {
		n, err := strconv.Atoi(name[2:])
		if err == nil && n >= 0 && n <= 31 && name[2] != '+' && name[2] != '-' {
			return uint32(n), true
		}
	}
	return 0, false
}

// regName formats a register number for display. With alias enabled the
// conventional names are preferred.
func regName(num uint32, alias bool) string {
	if alias {
		if name, ok := registerAliasOf[num]; ok {
			return name
		}
	}
	return fmt.Sprintf("$r%d", num)
}
