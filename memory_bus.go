// memory_bus.go - byte-addressable memory with memory-mapped peripherals

/*
Luz Toolchain and Simulator — 32-bit RISC CPU, assembler, linker and debugger
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/LuzEngine
License: GPLv3 or later
*/

package main

import (
	"encoding/binary"
	"fmt"
)

const memPageSize = 0x1000

// MemFault is a failed memory access. The CPU turns every MemFault into a
// memory-access exception.
type MemFault struct {
	Addr       uint32
	Misaligned bool
}

func (e *MemFault) Error() string {
	if e.Misaligned {
		return fmt.Sprintf("misaligned access at 0x%08X", e.Addr)
	}
	return fmt.Sprintf("invalid access at 0x%08X", e.Addr)
}

// peripheralMapping routes an inclusive address range to a device.
// Addresses handed to the device are relative to lo.
type peripheralMapping struct {
	lo, hi uint32
	dev    Peripheral
}

// MemoryBus is the flat little-endian address space of the simulator.
// Backing storage is allocated in pages on first touch, so arbitrary
// addresses read as zero and are writable without committing 4 GiB.
// Registered peripherals intercept their ranges. Instruction fetch is
// restricted to the user-memory window.
type MemoryBus struct {
	pages       map[uint32][]byte
	peripherals []peripheralMapping

	// fetchable window, [execLo, execHi)
	execLo uint32
	execHi uint32
}

// NewMemoryBus creates an empty bus with the default user-memory window.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		pages:  make(map[uint32][]byte),
		execLo: USER_MEMORY_START,
		execHi: USER_MEMORY_START + USER_MEMORY_SIZE,
	}
}

// MapPeripheral routes [lo, hi] inclusive to dev. Later registrations win
// over earlier overlapping ones.
func (m *MemoryBus) MapPeripheral(lo, hi uint32, dev Peripheral) {
	m.peripherals = append([]peripheralMapping{{lo: lo, hi: hi, dev: dev}}, m.peripherals...)
}

// LoadImage copies a linked image into memory and widens the fetch window
// to cover it.
func (m *MemoryBus) LoadImage(exe *Executable) {
	for _, seg := range exe.Segments {
		m.writeBytes(seg.Base, seg.Data)
	}
	if end := exe.End(); end > m.execHi {
		m.execHi = end
	}
}

func (m *MemoryBus) peripheralFor(addr uint32) *peripheralMapping {
	for i := range m.peripherals {
		p := &m.peripherals[i]
		if addr >= p.lo && addr <= p.hi {
			return p
		}
	}
	return nil
}

func (m *MemoryBus) page(addr uint32) []byte {
	idx := addr / memPageSize
	pg := m.pages[idx]
	if pg == nil {
		pg = make([]byte, memPageSize)
		m.pages[idx] = pg
	}
	return pg
}

// writeBytes stores raw bytes without peripheral or alignment checks; it
// exists for the loader and the debugger.
func (m *MemoryBus) writeBytes(addr uint32, data []byte) {
	for len(data) > 0 {
		pg := m.page(addr)
		off := addr % memPageSize
		n := copy(pg[off:], data)
		data = data[n:]
		addr += uint32(n)
	}
}

// ReadBytes copies n raw bytes out of memory, bypassing peripherals. Used
// by the debugger's memory and disassembly views.
func (m *MemoryBus) ReadBytes(addr uint32, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		a := addr + uint32(i)
		pg := m.pages[a/memPageSize]
		if pg != nil {
			out[i] = pg[a%memPageSize]
		}
	}
	return out
}

func (m *MemoryBus) checkAlign(addr uint32, width int) error {
	if addr%uint32(width) != 0 {
		return &MemFault{Addr: addr, Misaligned: true}
	}
	return nil
}

// ReadInstruction fetches an instruction word. Fetch must be word-aligned
// and inside the user-memory window.
func (m *MemoryBus) ReadInstruction(addr uint32) (uint32, error) {
	if err := m.checkAlign(addr, 4); err != nil {
		return 0, err
	}
	if addr < m.execLo || addr >= m.execHi {
		return 0, &MemFault{Addr: addr}
	}
	return m.rawRead32(addr), nil
}

func (m *MemoryBus) rawRead32(addr uint32) uint32 {
	pg := m.pages[addr/memPageSize]
	off := addr % memPageSize
	if pg == nil {
		return 0
	}
	if off+4 <= memPageSize {
		return binary.LittleEndian.Uint32(pg[off:])
	}
	return binary.LittleEndian.Uint32(m.ReadBytes(addr, 4))
}

// Read performs a data load of the given width (1, 2 or 4 bytes).
func (m *MemoryBus) Read(addr uint32, width int) (uint32, error) {
	if err := m.checkAlign(addr, width); err != nil {
		return 0, err
	}
	if p := m.peripheralFor(addr); p != nil {
		return p.dev.ReadMem(addr-p.lo, width)
	}
	switch width {
	case 4:
		return m.rawRead32(addr), nil
	case 2:
		pg := m.pages[addr/memPageSize]
		if pg == nil {
			return 0, nil
		}
		off := addr % memPageSize
		if off+2 <= memPageSize {
			return uint32(binary.LittleEndian.Uint16(pg[off:])), nil
		}
		b := m.ReadBytes(addr, 2)
		return uint32(binary.LittleEndian.Uint16(b)), nil
	case 1:
		pg := m.pages[addr/memPageSize]
		if pg == nil {
			return 0, nil
		}
		return uint32(pg[addr%memPageSize]), nil
	}
	return 0, &MemFault{Addr: addr}
}

// Write performs a data store of the given width (1, 2 or 4 bytes).
func (m *MemoryBus) Write(addr uint32, width int, data uint32) error {
	if err := m.checkAlign(addr, width); err != nil {
		return err
	}
	if p := m.peripheralFor(addr); p != nil {
		return p.dev.WriteMem(addr-p.lo, width, data)
	}
	var buf [4]byte
	switch width {
	case 4:
		binary.LittleEndian.PutUint32(buf[:], data)
	case 2:
		binary.LittleEndian.PutUint16(buf[:2], uint16(data))
	case 1:
		buf[0] = byte(data)
	default:
		return &MemFault{Addr: addr}
	}
	m.writeBytes(addr, buf[:width])
	return nil
}

// Convenience accessors used throughout the debugger and tests.

func (m *MemoryBus) Read8(addr uint32) (uint32, error)  { return m.Read(addr, 1) }
func (m *MemoryBus) Read16(addr uint32) (uint32, error) { return m.Read(addr, 2) }
func (m *MemoryBus) Read32(addr uint32) (uint32, error) { return m.Read(addr, 4) }

func (m *MemoryBus) Write8(addr uint32, data uint32) error  { return m.Write(addr, 1, data) }
func (m *MemoryBus) Write16(addr uint32, data uint32) error { return m.Write(addr, 2, data) }
func (m *MemoryBus) Write32(addr uint32, data uint32) error { return m.Write(addr, 4, data) }
