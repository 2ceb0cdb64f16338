package main

import (
	"path/filepath"
	"reflect"
	"testing"
)

// End-to-end scenarios: LASM source through the assembler and linker into
// the simulator, with behavior observed through registers and the debug
// queue.

func TestE2ESumZeroToNine(t *testing.T) {
	cpu, queue := runProgram(t, asmMain(`
	li $k0, 0xF0000
	li $r9, 10
	li $r5, 0
loop:
	sw $r5, 0($k0)
	addi $r5, $r5, 1
	bltu $r5, $r9, loop
	halt`))
	want := []uint32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	if !reflect.DeepEqual(queue.Items, want) {
		t.Errorf("debug queue = %v, want %v", queue.Items, want)
	}
	if cpu.Reg(5) != 10 {
		t.Errorf("r5 = %d, want 10", cpu.Reg(5))
	}
}

func TestE2EArraySum(t *testing.T) {
	cpu, _ := runProgram(t, `.segment data
arr: .word 1, 2, 3, 4, 5
.segment code
.global asm_main
asm_main:
	li $t0, arr
	li $t1, 5
	li $r8, 0
loop:
	lw $t2, 0($t0)
	add $r8, $r8, $t2
	addi $t0, $t0, 4
	subi $t1, $t1, 1
	bnez $t1, loop
	halt
`)
	if cpu.Reg(8) != 15 {
		t.Errorf("r8 = %d, want 15", cpu.Reg(8))
	}
}

func TestE2EUnsignedMultiply(t *testing.T) {
	cpu, _ := runProgram(t, asmMain(`
	li $r2, 0x10000
	li $r3, 0x10000
	mulu $r4, $r2, $r3
	halt`))
	if cpu.Reg(4) != 0 {
		t.Errorf("r4 = 0x%X, want 0", cpu.Reg(4))
	}
	if cpu.Reg(5) != 1 {
		t.Errorf("r5 = 0x%X, want high half 1", cpu.Reg(5))
	}
}

func TestE2ESignedVsUnsignedBranch(t *testing.T) {
	cpu, _ := runProgram(t, asmMain(`
	li $r1, 0xFFFFFFFF
	li $r2, 1
	blt $r1, $r2, signed_taken
	b unsigned_check
signed_taken:
	ori $r3, $r3, 1
unsigned_check:
	bltu $r1, $r2, unsigned_taken
	b done
unsigned_taken:
	ori $r4, $r4, 1
done:
	halt`))
	if cpu.Reg(3) != 1 {
		t.Error("BLT with -1 < 1 (signed) not taken")
	}
	if cpu.Reg(4) != 0 {
		t.Error("BLTU with 0xFFFFFFFF < 1 (unsigned) taken")
	}
}

func TestE2ECallRetRoundTrip(t *testing.T) {
	// A leaf routine copies its argument to the return register; the
	// caller invokes it twice. PC must come back to the instruction after
	// each CALL and R31 must hold the post-CALL address inside the leaf.
	cpu, _ := buildMachine(t, asmMain(`
	li $a0, 11
	call copy
	move $s0, $v0
	move $s2, $ra
	li $a0, 22
	call copy
	move $s1, $v0
	move $s3, $ra
	halt
copy:
	move $v0, $a0
	ret`))

	entry := cpu.PC
	cpu.StepN(1_000_000)
	if !cpu.Halted {
		t.Fatal("program did not halt")
	}
	if cpu.Reg(18) != 11 || cpu.Reg(19) != 22 {
		t.Errorf("s0=%d s1=%d, want 11 and 22", cpu.Reg(18), cpu.Reg(19))
	}
	// First CALL at entry+8, second at entry+28.
	if cpu.Reg(20) != entry+12 {
		t.Errorf("ra after first call = 0x%X, want 0x%X", cpu.Reg(20), entry+12)
	}
	if cpu.Reg(21) != entry+32 {
		t.Errorf("ra after second call = 0x%X, want 0x%X", cpu.Reg(21), entry+32)
	}
}

func TestE2EAlignmentTrap(t *testing.T) {
	cpu, _ := runProgram(t, asmMain(`
	lw $r1, 1($r0)
	halt`))
	if !cpu.Faulted {
		t.Fatal("misaligned LW did not halt the CPU")
	}
	if cause := cpu.CoreRegs().ExceptionCause(); cause != EXC_MEMORY_ACCESS {
		t.Errorf("cause = %d, want %d (memory access)", cause, EXC_MEMORY_ACCESS)
	}
	if cpu.Reg(1) != 0 {
		t.Errorf("r1 mutated to 0x%X by a faulting load", cpu.Reg(1))
	}
}

func TestE2EMultiObjectProgram(t *testing.T) {
	mainSrc := `.segment code
.global asm_main
asm_main:
	li $a0, 5
	call double
	move $s0, $v0
	li $t0, factor
	lw $s1, 0($t0)
	halt
`
	libSrc := `.segment data
.global factor
factor: .word 2
.segment code
.global double
double:
	add $v0, $a0, $a0
	ret
`
	objMain, err := NewAssembler().Assemble(mainSrc, "main.lasm")
	if err != nil {
		t.Fatalf("assemble main: %v", err)
	}
	objLib, err := NewAssembler().Assemble(libSrc, "lib.lasm")
	if err != nil {
		t.Fatalf("assemble lib: %v", err)
	}
	exe, err := NewLinker().Link([]*ObjectFile{objMain, objLib})
	if err != nil {
		t.Fatalf("link: %v", err)
	}

	bus := NewMemoryBus()
	cpu := NewLuzCPU(bus)
	bus.LoadImage(exe)
	cpu.Reset(exe.Entry)
	cpu.StepN(1_000_000)
	if !cpu.Halted {
		t.Fatal("program did not halt")
	}
	if cpu.Reg(18) != 10 {
		t.Errorf("s0 = %d, want 10 (cross-object call)", cpu.Reg(18))
	}
	if cpu.Reg(19) != 2 {
		t.Errorf("s1 = %d, want 2 (cross-object data symbol)", cpu.Reg(19))
	}
}

func TestE2EExecutableFileRoundTrip(t *testing.T) {
	obj, err := NewAssembler().Assemble(asmMain(`
	li $k0, 0xF0000
	li $r5, 0x1234
	sw $r5, 0($k0)
	halt`), "prog.lasm")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	exe, err := NewLinker().Link([]*ObjectFile{obj})
	if err != nil {
		t.Fatalf("link: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "prog.lx")
	if err := SaveExecutable(exe, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadExecutable(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	bus := NewMemoryBus()
	cpu := NewLuzCPU(bus)
	queue := NewDebugQueue()
	bus.MapPeripheral(ADDR_DEBUG_QUEUE, ADDR_DEBUG_QUEUE, queue)
	bus.LoadImage(loaded)
	cpu.Reset(loaded.Entry)
	cpu.StepN(1_000)
	if !cpu.Halted {
		t.Fatal("program did not halt")
	}
	if len(queue.Items) != 1 || queue.Items[0] != 0x1234 {
		t.Errorf("queue = %v, want [0x1234]", queue.Items)
	}
}

func TestE2EObjectFileRoundTripThroughDisk(t *testing.T) {
	obj, err := NewAssembler().Assemble(asmMain("call helper\nhalt"), "a.lasm")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "a.lo")
	if err := SaveObjectFile(obj, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadObjectFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	helper, err := NewAssembler().Assemble(".segment code\n.global helper\nhelper: ret\n", "b.lasm")
	if err != nil {
		t.Fatalf("assemble helper: %v", err)
	}
	if _, err := NewLinker().Link([]*ObjectFile{loaded, helper}); err != nil {
		t.Errorf("link with reloaded object: %v", err)
	}
}
