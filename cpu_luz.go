// cpu_luz.go - Luz 32-bit RISC CPU core

/*
Luz Toolchain and Simulator — 32-bit RISC CPU, assembler, linker and debugger
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/LuzEngine
License: GPLv3 or later
*/

package main

import "math"

// CPU is the architectural state of one Luz core: 32 general registers,
// the program counter, the halt flag and the core register file holding
// exception state. It owns its bus exclusively; between Step calls all
// state is stable and may be inspected or mutated.
type CPU struct {
	gpr    [LUZ_NUM_REGS]uint32
	PC     uint32
	Halted bool

	// Faulted marks a halt forced by an unhandled exception, as opposed
	// to a HALT instruction.
	Faulted bool

	inException bool

	bus   *MemoryBus
	cregs *CoreRegisters
}

// NewLuzCPU creates a CPU on the given bus and maps the core registers
// into the low peripheral space.
func NewLuzCPU(bus *MemoryBus) *CPU {
	cpu := &CPU{
		bus:   bus,
		cregs: NewCoreRegisters(),
	}
	bus.MapPeripheral(0, 0xFFF, cpu.cregs)
	return cpu
}

// Reset clears all registers, sets PC to the entry address and clears the
// halt flag.
func (cpu *CPU) Reset(entry uint32) {
	cpu.gpr = [LUZ_NUM_REGS]uint32{}
	cpu.PC = entry
	cpu.Halted = false
	cpu.Faulted = false
	cpu.inException = false
	*cpu.cregs = *NewCoreRegisters()
}

// Bus returns the CPU's memory bus.
func (cpu *CPU) Bus() *MemoryBus {
	return cpu.bus
}

// CoreRegs returns the core register file.
func (cpu *CPU) CoreRegs() *CoreRegisters {
	return cpu.cregs
}

// Reg returns the value of register n. R0 always reads zero.
func (cpu *CPU) Reg(n uint32) uint32 {
	if n >= LUZ_NUM_REGS {
		return 0
	}
	return cpu.gpr[n]
}

// RegAlias returns the value of a register named by its alias ($sp, $t0...).
func (cpu *CPU) RegAlias(name string) uint32 {
	return cpu.Reg(registerAlias[name])
}

// SetReg writes register n. Writes to R0 (and out-of-range numbers, which
// arise from the Rd+1 convention of MUL and DIV at Rd=31) are discarded.
func (cpu *CPU) SetReg(n, value uint32) {
	if n >= 1 && n <= 31 {
		cpu.gpr[n] = value
	}
}

// Run steps the CPU until it halts.
func (cpu *CPU) Run() {
	for !cpu.Halted {
		cpu.Step()
	}
}

// StepN executes at most n instructions, stopping early on halt. Returns
// the number actually executed.
func (cpu *CPU) StepN(n int) int {
	for i := 0; i < n; i++ {
		if cpu.Halted {
			return i
		}
		cpu.Step()
	}
	return n
}

// enterException records the cause and transfers to the installed
// exception handler. With no handler installed, or when a second fault
// arrives while one is being serviced, the CPU halts instead. Either way
// the cause and return address stay observable in the core registers.
func (cpu *CPU) enterException(cause uint32) {
	if cpu.inException {
		cpu.Halted = true
		cpu.Faulted = true
		return
	}
	cpu.inException = true

	// Faulting instructions resume at the next instruction; interrupts
	// re-execute the instruction at PC.
	returnAddr := cpu.PC + 4
	if cause == EXC_INTERRUPT {
		returnAddr = cpu.PC
	}
	cpu.cregs.setException(cause, returnAddr)

	vector := cpu.cregs.ExceptionVector()
	if vector == 0 {
		cpu.Halted = true
		cpu.Faulted = true
		return
	}
	cpu.PC = vector
}

// exitException returns from the handler to the saved address.
func (cpu *CPU) exitException() {
	cpu.PC = cpu.cregs.ExceptionReturnAddr()
	cpu.inException = false
}

// Step executes a single instruction. Once the halt flag is set further
// calls are no-ops.
func (cpu *CPU) Step() {
	if cpu.Halted {
		return
	}

	instr, err := cpu.bus.ReadInstruction(cpu.PC)
	if err != nil {
		cpu.enterException(EXC_MEMORY_ACCESS)
		return
	}

	op := extractOpcode(instr)
	switch op {
	case OP_ADD, OP_SUB:
		rd, rs, rt := args3Reg(instr)
		var val uint32
		if op == OP_ADD {
			val = cpu.gpr[rs] + cpu.gpr[rt]
		} else {
			val = cpu.gpr[rs] - cpu.gpr[rt]
		}
		cpu.SetReg(rd, val)
		cpu.PC += 4

	case OP_ADDI, OP_SUBI:
		rd, rs, imm := args2RegImm(instr)
		var val uint32
		if op == OP_ADDI {
			val = cpu.gpr[rs] + imm
		} else {
			val = cpu.gpr[rs] - imm
		}
		cpu.SetReg(rd, val)
		cpu.PC += 4

	case OP_MULU:
		rd, rs, rt := args3Reg(instr)
		prod := uint64(cpu.gpr[rs]) * uint64(cpu.gpr[rt])
		cpu.SetReg(rd, uint32(prod))
		cpu.SetReg(rd+1, uint32(prod>>32))
		cpu.PC += 4

	case OP_MUL:
		rd, rs, rt := args3Reg(instr)
		prod := int64(int32(cpu.gpr[rs])) * int64(int32(cpu.gpr[rt]))
		if prod >= math.MinInt32 && prod <= math.MaxInt32 {
			cpu.SetReg(rd, uint32(int32(prod)))
		} else {
			cpu.SetReg(rd, uint32(uint64(prod)))
			cpu.SetReg(rd+1, uint32(uint64(prod)>>32))
		}
		cpu.PC += 4

	case OP_DIVU:
		rd, rs, rt := args3Reg(instr)
		if cpu.gpr[rt] == 0 {
			cpu.enterException(EXC_DIVIDE_BY_ZERO)
			return
		}
		cpu.SetReg(rd, cpu.gpr[rs]/cpu.gpr[rt])
		cpu.SetReg(rd+1, cpu.gpr[rs]%cpu.gpr[rt])
		cpu.PC += 4

	case OP_DIV:
		rd, rs, rt := args3Reg(instr)
		if cpu.gpr[rt] == 0 {
			cpu.enterException(EXC_DIVIDE_BY_ZERO)
			return
		}
		a, b := int32(cpu.gpr[rs]), int32(cpu.gpr[rt])
		cpu.SetReg(rd, uint32(a/b))
		cpu.SetReg(rd+1, uint32(a%b))
		cpu.PC += 4

	case OP_LUI:
		rd, imm := args1RegImm16(instr)
		cpu.SetReg(rd, imm<<16)
		cpu.PC += 4

	case OP_SLL, OP_SRL, OP_AND, OP_OR, OP_NOR, OP_XOR:
		rd, rs, rt := args3Reg(instr)
		var val uint32
		switch op {
		case OP_SLL:
			val = cpu.gpr[rs] << (cpu.gpr[rt] & SHIFT_AMT_MASK)
		case OP_SRL:
			val = cpu.gpr[rs] >> (cpu.gpr[rt] & SHIFT_AMT_MASK)
		case OP_AND:
			val = cpu.gpr[rs] & cpu.gpr[rt]
		case OP_OR:
			val = cpu.gpr[rs] | cpu.gpr[rt]
		case OP_NOR:
			val = ^(cpu.gpr[rs] | cpu.gpr[rt])
		case OP_XOR:
			val = cpu.gpr[rs] ^ cpu.gpr[rt]
		}
		cpu.SetReg(rd, val)
		cpu.PC += 4

	case OP_ORI, OP_ANDI, OP_SLLI, OP_SRLI:
		rd, rs, imm := args2RegImm(instr)
		var val uint32
		switch op {
		case OP_ORI:
			val = cpu.gpr[rs] | imm
		case OP_ANDI:
			val = cpu.gpr[rs] & imm
		case OP_SLLI:
			val = cpu.gpr[rs] << (imm & SHIFT_AMT_MASK)
		case OP_SRLI:
			val = cpu.gpr[rs] >> (imm & SHIFT_AMT_MASK)
		}
		cpu.SetReg(rd, val)
		cpu.PC += 4

	case OP_JR:
		rd := extractBitfield(instr, 25, 21)
		cpu.PC = cpu.gpr[rd]

	case OP_CALL:
		imm := extractBitfield(instr, 25, 0)
		cpu.SetReg(REG_RETURN, cpu.PC+4)
		cpu.PC = imm * 4

	case OP_B:
		off := toSigned(extractBitfield(instr, 25, 0), 26)
		cpu.PC += uint32(off) * 4

	case OP_BEQ, OP_BNE, OP_BGE, OP_BGT, OP_BLE, OP_BLT,
		OP_BGEU, OP_BGTU, OP_BLEU, OP_BLTU:
		rd, rs, off16 := args2RegImm(instr)
		if branchTaken(op, cpu.gpr[rd], cpu.gpr[rs]) {
			cpu.PC += uint32(toSigned(off16, 16)) * 4
		} else {
			cpu.PC += 4
		}

	case OP_LB, OP_LBU:
		rd, addr := loadAddress(cpu, instr)
		data, err := cpu.bus.Read(addr, 1)
		if err != nil {
			cpu.enterException(EXC_MEMORY_ACCESS)
			return
		}
		if op == OP_LB {
			data = signExtend(data, 8)
		}
		cpu.SetReg(rd, data)
		cpu.PC += 4

	case OP_LH, OP_LHU:
		rd, addr := loadAddress(cpu, instr)
		data, err := cpu.bus.Read(addr, 2)
		if err != nil {
			cpu.enterException(EXC_MEMORY_ACCESS)
			return
		}
		if op == OP_LH {
			data = signExtend(data, 16)
		}
		cpu.SetReg(rd, data)
		cpu.PC += 4

	case OP_LW:
		rd, addr := loadAddress(cpu, instr)
		data, err := cpu.bus.Read(addr, 4)
		if err != nil {
			cpu.enterException(EXC_MEMORY_ACCESS)
			return
		}
		cpu.SetReg(rd, data)
		cpu.PC += 4

	case OP_SB, OP_SH, OP_SW:
		rs, addr := storeAddress(cpu, instr)
		var width int
		var mask uint32
		switch op {
		case OP_SB:
			width, mask = 1, 0xFF
		case OP_SH:
			width, mask = 2, 0xFFFF
		case OP_SW:
			width, mask = 4, 0xFFFFFFFF
		}
		if err := cpu.bus.Write(addr, width, cpu.gpr[rs]&mask); err != nil {
			cpu.enterException(EXC_MEMORY_ACCESS)
			return
		}
		cpu.PC += 4

	case OP_ERET:
		cpu.exitException()

	case OP_HALT:
		cpu.Halted = true

	default:
		cpu.enterException(EXC_INVALID_OPCODE)
	}
}

// Field accessors shared by the execution cases.

func args3Reg(instr uint32) (rd, rs, rt uint32) {
	return extractBitfield(instr, 25, 21),
		extractBitfield(instr, 20, 16),
		extractBitfield(instr, 15, 11)
}

func args2RegImm(instr uint32) (rd, rs, imm uint32) {
	return extractBitfield(instr, 25, 21),
		extractBitfield(instr, 20, 16),
		extractBitfield(instr, 15, 0)
}

func args1RegImm16(instr uint32) (rd, imm uint32) {
	return extractBitfield(instr, 25, 21), extractBitfield(instr, 15, 0)
}

// loadAddress computes rd and the effective address for loads:
// address = Rs + sign-extended off16.
func loadAddress(cpu *CPU, instr uint32) (uint32, uint32) {
	rd, rs, off16 := args2RegImm(instr)
	return rd, cpu.gpr[rs] + signExtend(off16, 16)
}

// storeAddress computes rs (the value register) and the effective address
// for stores: the base register lives in the rd field.
func storeAddress(cpu *CPU, instr uint32) (uint32, uint32) {
	rd, rs, off16 := args2RegImm(instr)
	return rs, cpu.gpr[rd] + signExtend(off16, 16)
}

// branchTaken evaluates a conditional branch comparing a (the rd field
// register) against b (the rs field register).
func branchTaken(op Opcode, a, b uint32) bool {
	switch op {
	case OP_BEQ:
		return a == b
	case OP_BNE:
		return a != b
	case OP_BGT:
		return int32(a) > int32(b)
	case OP_BGTU:
		return a > b
	case OP_BGE:
		return int32(a) >= int32(b)
	case OP_BGEU:
		return a >= b
	case OP_BLT:
		return int32(a) < int32(b)
	case OP_BLTU:
		return a < b
	case OP_BLE:
		return int32(a) <= int32(b)
	case OP_BLEU:
		return a <= b
	}
	return false
}
