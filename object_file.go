// object_file.go - relocatable object image produced by the assembler

package main

import (
	"encoding/binary"
	"fmt"
	"io"
)

// SegAddr is an offset within a named segment. Every address the assembler
// deals in is one of these until the linker assigns absolute bases.
type SegAddr struct {
	Segment string
	Offset  uint32
}

func (a SegAddr) String() string {
	return fmt.Sprintf("%s+0x%X", a.Segment, a.Offset)
}

// PatchKind tells the linker how to write a resolved address into emitted
// code.
type PatchKind uint8

const (
	// PatchCall26 patches the 26-bit word-index field of a CALL.
	PatchCall26 PatchKind = iota
	// PatchImm32 patches the split 32-bit immediate of the LUI/ORI pair
	// produced by the LI pseudo-instruction.
	PatchImm32
)

func (k PatchKind) String() string {
	switch k {
	case PatchCall26:
		return "call26"
	case PatchImm32:
		return "imm32"
	}
	return "unknown"
}

// ExportEntry marks a symbol as visible to other objects at link time.
type ExportEntry struct {
	Symbol string
	Addr   SegAddr
}

// ImportEntry records a use of a symbol this object does not define. The
// linker writes the exporter's final address at Addr using Kind.
type ImportEntry struct {
	Symbol string
	Kind   PatchKind
	Addr   SegAddr
}

// RelocEntry records a use of a locally-defined symbol whose final address
// depends on where the linker places Segment. The emitted field already
// holds the symbol's segment-relative address; the linker adds the segment
// base.
type RelocEntry struct {
	Segment string
	Kind    PatchKind
	Addr    SegAddr
}

// ObjectFile is the relocatable output of assembling one translation unit.
type ObjectFile struct {
	Name     string
	SegOrder []string // segments in first-definition order
	Segments map[string][]byte
	Exports  []ExportEntry
	Imports  []ImportEntry
	Relocs   []RelocEntry
}

// NewObjectFile creates an empty object image.
func NewObjectFile(name string) *ObjectFile {
	return &ObjectFile{
		Name:     name,
		Segments: make(map[string][]byte),
	}
}

// Segment returns the named segment's data, nil if absent.
func (obj *ObjectFile) Segment(name string) []byte {
	return obj.Segments[name]
}

// appendSegment appends data to the named segment, creating it on first use.
func (obj *ObjectFile) appendSegment(name string, data []byte) {
	if _, ok := obj.Segments[name]; !ok {
		obj.SegOrder = append(obj.SegOrder, name)
	}
	obj.Segments[name] = append(obj.Segments[name], data...)
}

// Binary object file layout (all integers little-endian):
//
//	magic "LUZO", u16 version, u16 segment count,
//	u32 export count, u32 import count, u32 reloc count,
//	per segment:  string name, u32 length, bytes
//	per export:   string symbol, segaddr
//	per import:   string symbol, u8 kind, segaddr
//	per reloc:    string segment, u8 kind, segaddr
//
// where string is u16 length + bytes and segaddr is string + u32 offset.
var objMagic = [4]byte{'L', 'U', 'Z', 'O'}

const objVersion = 1

// WriteTo serializes the object image.
func (obj *ObjectFile) WriteTo(w io.Writer) error {
	if _, err := w.Write(objMagic[:]); err != nil {
		return err
	}
	if err := writeBinValues(w,
		uint16(objVersion),
		uint16(len(obj.SegOrder)),
		uint32(len(obj.Exports)),
		uint32(len(obj.Imports)),
		uint32(len(obj.Relocs)),
	); err != nil {
		return err
	}
	for _, name := range obj.SegOrder {
		data := obj.Segments[name]
		if err := writeBinString(w, name); err != nil {
			return err
		}
		if err := writeBinValues(w, uint32(len(data))); err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	for _, exp := range obj.Exports {
		if err := writeBinString(w, exp.Symbol); err != nil {
			return err
		}
		if err := writeSegAddr(w, exp.Addr); err != nil {
			return err
		}
	}
	for _, imp := range obj.Imports {
		if err := writeBinString(w, imp.Symbol); err != nil {
			return err
		}
		if err := writeBinValues(w, uint8(imp.Kind)); err != nil {
			return err
		}
		if err := writeSegAddr(w, imp.Addr); err != nil {
			return err
		}
	}
	for _, rel := range obj.Relocs {
		if err := writeBinString(w, rel.Segment); err != nil {
			return err
		}
		if err := writeBinValues(w, uint8(rel.Kind)); err != nil {
			return err
		}
		if err := writeSegAddr(w, rel.Addr); err != nil {
			return err
		}
	}
	return nil
}

// ReadObjectFile deserializes an object image. The name is attached for
// diagnostics only.
func ReadObjectFile(r io.Reader, name string) (*ObjectFile, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("reading object header: %w", err)
	}
	if magic != objMagic {
		return nil, fmt.Errorf("%s: not a Luz object file", name)
	}
	var version, nseg uint16
	var nexp, nimp, nrel uint32
	if err := readBinValues(r, &version, &nseg, &nexp, &nimp, &nrel); err != nil {
		return nil, fmt.Errorf("reading object header: %w", err)
	}
	if version != objVersion {
		return nil, fmt.Errorf("%s: unsupported object version %d", name, version)
	}

	obj := NewObjectFile(name)
	for i := 0; i < int(nseg); i++ {
		segName, err := readBinString(r)
		if err != nil {
			return nil, err
		}
		var length uint32
		if err := readBinValues(r, &length); err != nil {
			return nil, err
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, err
		}
		obj.appendSegment(segName, data)
	}
	for i := 0; i < int(nexp); i++ {
		sym, err := readBinString(r)
		if err != nil {
			return nil, err
		}
		addr, err := readSegAddr(r)
		if err != nil {
			return nil, err
		}
		obj.Exports = append(obj.Exports, ExportEntry{Symbol: sym, Addr: addr})
	}
	for i := 0; i < int(nimp); i++ {
		sym, err := readBinString(r)
		if err != nil {
			return nil, err
		}
		var kind uint8
		if err := readBinValues(r, &kind); err != nil {
			return nil, err
		}
		addr, err := readSegAddr(r)
		if err != nil {
			return nil, err
		}
		obj.Imports = append(obj.Imports, ImportEntry{Symbol: sym, Kind: PatchKind(kind), Addr: addr})
	}
	for i := 0; i < int(nrel); i++ {
		seg, err := readBinString(r)
		if err != nil {
			return nil, err
		}
		var kind uint8
		if err := readBinValues(r, &kind); err != nil {
			return nil, err
		}
		addr, err := readSegAddr(r)
		if err != nil {
			return nil, err
		}
		obj.Relocs = append(obj.Relocs, RelocEntry{Segment: seg, Kind: PatchKind(kind), Addr: addr})
	}
	return obj, nil
}

func writeBinValues(w io.Writer, values ...interface{}) error {
	for _, v := range values {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func readBinValues(r io.Reader, targets ...interface{}) error {
	for _, t := range targets {
		if err := binary.Read(r, binary.LittleEndian, t); err != nil {
			return err
		}
	}
	return nil
}

func writeBinString(w io.Writer, s string) error {
	if err := writeBinValues(w, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readBinString(r io.Reader) (string, error) {
	var length uint16
	if err := readBinValues(r, &length); err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeSegAddr(w io.Writer, addr SegAddr) error {
	if err := writeBinString(w, addr.Segment); err != nil {
		return err
	}
	return writeBinValues(w, addr.Offset)
}

func readSegAddr(r io.Reader) (SegAddr, error) {
	seg, err := readBinString(r)
	if err != nil {
		return SegAddr{}, err
	}
	var off uint32
	if err := readBinValues(r, &off); err != nil {
		return SegAddr{}, err
	}
	return SegAddr{Segment: seg, Offset: off}, nil
}
