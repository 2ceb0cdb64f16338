package main

import "testing"

// buildMachine assembles and links one source file, then loads it into a
// fresh machine with the debug queue mapped at the default address.
func buildMachine(t *testing.T, src string) (*CPU, *DebugQueue) {
	t.Helper()
	obj, err := NewAssembler().Assemble(src, "test.lasm")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	exe, err := NewLinker().Link([]*ObjectFile{obj})
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	bus := NewMemoryBus()
	cpu := NewLuzCPU(bus)
	queue := NewDebugQueue()
	bus.MapPeripheral(ADDR_DEBUG_QUEUE, ADDR_DEBUG_QUEUE, queue)
	bus.LoadImage(exe)
	cpu.Reset(exe.Entry)
	return cpu, queue
}

// asmMain wraps an instruction body into a minimal complete program.
func asmMain(body string) string {
	return ".segment code\n.global asm_main\nasm_main:\n" + body + "\n"
}

// runProgram builds and executes src until HALT, guarding against runaway
// programs.
func runProgram(t *testing.T, src string) (*CPU, *DebugQueue) {
	t.Helper()
	cpu, queue := buildMachine(t, src)
	cpu.StepN(1_000_000)
	if !cpu.Halted {
		t.Fatal("program did not halt within step budget")
	}
	return cpu, queue
}
