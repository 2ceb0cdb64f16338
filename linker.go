// linker.go - combines object images into a loadable executable

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
	"sort"
)

// EntrySymbol is the global symbol the linked image starts executing at.
const EntrySymbol = "asm_main"

// LinkError is any failure while combining objects.
type LinkError struct {
	Msg string
}

func (e *LinkError) Error() string {
	return "link: " + e.Msg
}

func linkErrorf(format string, args ...interface{}) error {
	return &LinkError{Msg: fmt.Sprintf(format, args...)}
}

// Linker combines object images into an executable image. Same-named
// segments are concatenated across objects in input order; the merged
// `code` segment is placed at CodeBase, `data` follows, then the remaining
// segments in first-appearance order, each aligned to a word boundary.
type Linker struct {
	CodeBase uint32
}

// NewLinker creates a linker with the standard code base address.
func NewLinker() *Linker {
	return &Linker{CodeBase: USER_MEMORY_START}
}

// Link resolves and patches the given objects (they are modified in place)
// and produces the executable image. The global symbol asm_main must be
// exported by exactly one object; its final address becomes the entry
// point.
func (l *Linker) Link(objects []*ObjectFile) (*Executable, error) {
	if len(objects) == 0 {
		return nil, linkErrorf("no input objects")
	}

	segBase, segSize, layout := l.computeLayout(objects)
	segmentMap := l.computeSegmentMap(objects, segBase)

	exports, err := collectExports(objects, segmentMap)
	if err != nil {
		return nil, err
	}

	for idx, obj := range objects {
		if err := resolveImports(obj, exports); err != nil {
			return nil, err
		}
		if err := resolveRelocations(obj, segmentMap[idx]); err != nil {
			return nil, err
		}
	}

	entry, ok := exports[EntrySymbol]
	if !ok {
		return nil, linkErrorf("entry symbol %q is not exported by any object", EntrySymbol)
	}

	return buildExecutable(objects, segmentMap, segBase, segSize, layout, entry)
}

// computeLayout orders the merged segments and assigns their base
// addresses. Returns the per-segment base, the per-segment merged size and
// the placement order.
func (l *Linker) computeLayout(objects []*ObjectFile) (map[string]uint32, map[string]uint32, []string) {
	segSize := make(map[string]uint32)
	var order []string
	seen := make(map[string]bool)
	for _, obj := range objects {
		for _, seg := range obj.SegOrder {
			if !seen[seg] {
				seen[seg] = true
				order = append(order, seg)
			}
			segSize[seg] += uint32(len(obj.Segments[seg]))
		}
	}

	// code first, data second, everything else in first-appearance order.
	layout := make([]string, 0, len(order))
	for _, fixed := range []string{"code", "data"} {
		if seen[fixed] {
			layout = append(layout, fixed)
		}
	}
	for _, seg := range order {
		if seg != "code" && seg != "data" {
			layout = append(layout, seg)
		}
	}

	segBase := make(map[string]uint32)
	ptr := l.CodeBase
	for _, seg := range layout {
		ptr = alignWord(ptr)
		segBase[seg] = ptr
		ptr += segSize[seg]
	}
	return segBase, segSize, layout
}

// computeSegmentMap records, per object and segment, the absolute address
// at which that object's slice of the merged segment lands.
func (l *Linker) computeSegmentMap(objects []*ObjectFile, segBase map[string]uint32) []map[string]uint32 {
	next := make(map[string]uint32, len(segBase))
	for seg, base := range segBase {
		next[seg] = base
	}
	segmentMap := make([]map[string]uint32, len(objects))
	for idx, obj := range objects {
		segmentMap[idx] = make(map[string]uint32, len(obj.SegOrder))
		for _, seg := range obj.SegOrder {
			segmentMap[idx][seg] = next[seg]
			next[seg] += uint32(len(obj.Segments[seg]))
		}
	}
	return segmentMap
}

// collectExports gathers the exported symbols of all objects, mapped to
// their final absolute addresses. Duplicate exports are a hard error.
func collectExports(objects []*ObjectFile, segmentMap []map[string]uint32) (map[string]uint32, error) {
	exports := make(map[string]uint32)
	owner := make(map[string]string)
	for idx, obj := range objects {
		for _, exp := range obj.Exports {
			if prev, dup := owner[exp.Symbol]; dup {
				return nil, linkErrorf("duplicate export symbol %q in %s and %s", exp.Symbol, prev, obj.Name)
			}
			base, ok := segmentMap[idx][exp.Addr.Segment]
			if !ok {
				return nil, linkErrorf("export %q in %s refers to unknown segment %q", exp.Symbol, obj.Name, exp.Addr.Segment)
			}
			owner[exp.Symbol] = obj.Name
			exports[exp.Symbol] = base + exp.Addr.Offset
		}
	}
	return exports, nil
}

// resolveImports patches every import site of obj with the exporter's
// final address.
func resolveImports(obj *ObjectFile, exports map[string]uint32) error {
	for _, imp := range obj.Imports {
		addr, ok := exports[imp.Symbol]
		if !ok {
			return linkErrorf("unresolved symbol %q in %s", imp.Symbol, obj.Name)
		}
		if err := patchSegment(obj, imp.Addr, imp.Kind, addr, true, imp.Symbol); err != nil {
			return err
		}
	}
	return nil
}

// resolveRelocations adds the final segment base into every relocation
// site of obj.
func resolveRelocations(obj *ObjectFile, objSegMap map[string]uint32) error {
	for _, rel := range obj.Relocs {
		base, ok := objSegMap[rel.Segment]
		if !ok {
			return linkErrorf("relocation in %s refers to unknown segment %q", obj.Name, rel.Segment)
		}
		if err := patchSegment(obj, rel.Addr, rel.Kind, base, false, rel.Segment); err != nil {
			return err
		}
	}
	return nil
}

// patchSegment writes a resolved address into emitted code. For imports
// (replace=true) the field is replaced outright; for relocations the
// address is added to the segment-relative value already encoded.
func patchSegment(obj *ObjectFile, site SegAddr, kind PatchKind, addr uint32, replace bool, name string) error {
	data := obj.Segments[site.Segment]

	need := 4
	if kind == PatchImm32 {
		need = 8
	}
	if int(site.Offset) > len(data)-need {
		return linkErrorf("patch (%s) of %q: bad offset 0x%X into segment %q of %s", kind, name, site.Offset, site.Segment, obj.Name)
	}

	switch kind {
	case PatchCall26:
		word := binary.LittleEndian.Uint32(data[site.Offset:])
		if extractOpcode(word) != OP_CALL {
			return linkErrorf("patch (%s) of %q: site in %s does not hold a CALL", kind, name, obj.Name)
		}
		if addr%4 != 0 {
			return linkErrorf("patch (%s) of %q: address 0x%X not word-aligned", kind, name, addr)
		}
		dest := addr / 4
		if !replace {
			dest += extractBitfield(word, 25, 0)
		}
		if !fitsInBits(int64(dest), 26, false) {
			return linkErrorf("patch (%s) of %q: destination 0x%X too large", kind, name, dest)
		}
		word = buildBitfield(31, 26, uint32(OP_CALL)) | buildBitfield(25, 0, dest)
		binary.LittleEndian.PutUint32(data[site.Offset:], word)

	case PatchImm32:
		lui := binary.LittleEndian.Uint32(data[site.Offset:])
		ori := binary.LittleEndian.Uint32(data[site.Offset+4:])
		if extractOpcode(lui) != OP_LUI || extractOpcode(ori) != OP_ORI {
			return linkErrorf("patch (%s) of %q: site in %s does not hold a LUI/ORI pair", kind, name, obj.Name)
		}
		dest := extractBitfield(lui, 15, 0)<<16 | extractBitfield(ori, 15, 0)
		if replace {
			dest = addr
		} else {
			dest += addr
		}
		rd := extractBitfield(lui, 25, 21)
		lui = buildBitfield(31, 26, uint32(OP_LUI)) |
			buildBitfield(25, 21, rd) |
			buildBitfield(15, 0, dest>>16)
		ori = buildBitfield(31, 26, uint32(OP_ORI)) |
			buildBitfield(25, 21, rd) |
			buildBitfield(20, 16, rd) |
			buildBitfield(15, 0, dest&0xFFFF)
		binary.LittleEndian.PutUint32(data[site.Offset:], lui)
		binary.LittleEndian.PutUint32(data[site.Offset+4:], ori)

	default:
		return linkErrorf("patch of %q: unknown patch kind %d", name, kind)
	}
	return nil
}

// buildExecutable concatenates the placed segments into the final image,
// verifying along the way that no two placements overlap.
func buildExecutable(objects []*ObjectFile, segmentMap []map[string]uint32, segBase, segSize map[string]uint32, layout []string, entry uint32) (*Executable, error) {
	type placement struct {
		base uint32
		end  uint32
		name string
	}
	var placements []placement
	for _, seg := range layout {
		placements = append(placements, placement{
			base: segBase[seg],
			end:  segBase[seg] + segSize[seg],
			name: seg,
		})
	}
	sort.Slice(placements, func(i, j int) bool { return placements[i].base < placements[j].base })
	for i := 1; i < len(placements); i++ {
		if placements[i].base < placements[i-1].end {
			return nil, linkErrorf("segments %q and %q overlap at 0x%X", placements[i-1].name, placements[i].name, placements[i].base)
		}
	}

	exe := &Executable{Entry: entry}
	for _, seg := range layout {
		merged := make([]byte, segSize[seg])
		for idx, obj := range objects {
			data, ok := obj.Segments[seg]
			if !ok {
				continue
			}
			start := segmentMap[idx][seg] - segBase[seg]
			copy(merged[start:], data)
		}
		exe.Segments = append(exe.Segments, ExecSegment{
			Name: seg,
			Base: segBase[seg],
			Data: merged,
		})
	}
	return exe, nil
}

// alignWord rounds addr up to the next word boundary.
func alignWord(addr uint32) uint32 {
	return (addr + 3) &^ 3
}
