// debug_disasm_luz.go - Luz disassembler for the debug monitor

package main

import "fmt"

// Disassemble renders one instruction word in canonical mnemonic form.
// With alias enabled, registers print as their conventional names
// ($sp, $ra, ...) instead of $rN. Unknown opcodes render as raw data.
func Disassemble(word uint32, alias bool) string {
	desc, ok := opcodeTable[extractOpcode(word)]
	if !ok {
		return fmt.Sprintf(".word 0x%08X", word)
	}

	reg := func(n uint32) string { return regName(n, alias) }

	switch desc.Format {
	case Fmt3Reg:
		rd, rs, rt := args3Reg(word)
		return fmt.Sprintf("%s %s, %s, %s", desc.Name, reg(rd), reg(rs), reg(rt))

	case Fmt2RegImm:
		rd, rs, imm := args2RegImm(word)
		return fmt.Sprintf("%s %s, %s, 0x%X", desc.Name, reg(rd), reg(rs), imm)

	case FmtRegImm16:
		rd, imm := args1RegImm16(word)
		return fmt.Sprintf("%s %s, 0x%X", desc.Name, reg(rd), imm)

	case FmtLoad:
		rd, rs, off16 := args2RegImm(word)
		return fmt.Sprintf("%s %s, %d(%s)", desc.Name, reg(rd), toSigned(off16, 16), reg(rs))

	case FmtStore:
		rd, rs, off16 := args2RegImm(word)
		// The value register prints first, the base lives in the rd field.
		return fmt.Sprintf("%s %s, %d(%s)", desc.Name, reg(rs), toSigned(off16, 16), reg(rd))

	case FmtBranch:
		rd, rs, off16 := args2RegImm(word)
		return fmt.Sprintf("%s %s, %s, %d", desc.Name, reg(rd), reg(rs), toSigned(off16, 16))

	case FmtOff26:
		return fmt.Sprintf("%s %d", desc.Name, toSigned(extractBitfield(word, 25, 0), 26))

	case FmtTarget26:
		imm := extractBitfield(word, 25, 0)
		// Annotated with the actual byte address of the target.
		return fmt.Sprintf("%s 0x%X [0x%X]", desc.Name, imm, imm*4)

	case Fmt1Reg:
		rd := extractBitfield(word, 25, 21)
		return fmt.Sprintf("%s %s", desc.Name, reg(rd))

	case FmtNone:
		return desc.Name
	}
	return fmt.Sprintf(".word 0x%08X", word)
}

// DisassembleRange renders count instructions starting at addr, one line
// per instruction, formatted for the monitor's disassembly view.
func DisassembleRange(bus *MemoryBus, addr uint32, count int, alias bool) []string {
	lines := make([]string, 0, count)
	for i := 0; i < count; i++ {
		raw := bus.ReadBytes(addr, 4)
		word := uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24
		lines = append(lines, fmt.Sprintf("%08X  %02X %02X %02X %02X  %s",
			addr, raw[0], raw[1], raw[2], raw[3], Disassemble(word, alias)))
		addr += 4
	}
	return lines
}
