// asm_luz.go - two-pass LASM assembler

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
	"os"
)

// Pseudo-instructions accepted by the assembler, with their operand counts.
// Each expands to one real instruction except li, which becomes a LUI/ORI
// pair.
var pseudoInstrs = map[string]int{
	"nop":  0,
	"not":  2,
	"move": 2,
	"neg":  2,
	"beqz": 2,
	"bnez": 2,
	"lli":  2,
	"li":   2,
	"ret":  0,
}

// instructionLength returns the number of bytes name occupies once
// assembled, and whether name is a known mnemonic at all.
func instructionLength(name string) (uint32, bool) {
	if name == "li" {
		return 8, true
	}
	if _, ok := pseudoInstrs[name]; ok {
		return 4, true
	}
	if _, ok := mnemonicTable[name]; ok {
		return 4, true
	}
	return 0, false
}

// Assembler translates one LASM translation unit into a relocatable object
// image. It is a pure function of its input: identical source yields a
// byte-identical object.
type Assembler struct{}

// NewAssembler creates an assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// AssembleFile assembles the named source file.
func (a *Assembler) AssembleFile(path string) (*ObjectFile, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return a.Assemble(string(src), path)
}

// Assemble assembles source text. The name is attached to diagnostics and
// the resulting object.
func (a *Assembler) Assemble(src, name string) (*ObjectFile, error) {
	obj, err := a.assemble(src, name)
	if err != nil {
		if se, ok := err.(*SourceError); ok && se.File == "" {
			se.File = name
		}
		return nil, err
	}
	return obj, nil
}

func (a *Assembler) assemble(src, name string) (*ObjectFile, error) {
	stmts, err := ParseSource(src)
	if err != nil {
		return nil, err
	}

	symtab, lines, err := computeAddresses(stmts)
	if err != nil {
		return nil, err
	}

	unit := &asmUnit{
		symtab:  symtab,
		defines: make(map[string]int64),
		obj:     NewObjectFile(name),
		global:  make(map[string]bool),
	}
	if err := unit.emit(lines); err != nil {
		return nil, err
	}
	return unit.obj, nil
}

// addrStmt pairs a statement with the segment offset it assembles into.
type addrStmt struct {
	addr SegAddr
	stmt *Statement
}

func asmErrorf(stmt *Statement, format string, args ...interface{}) error {
	return &SourceError{Line: stmt.Line, Col: stmt.Col, Msg: fmt.Sprintf(format, args...)}
}

// computeAddresses is the first pass. It walks statements in order tracking
// each segment's write cursor, binds labels, and returns the symbol table
// together with the addressed statement list for the second pass. Only the
// constructs that affect addresses are validated here; everything else
// waits for the second pass.
func computeAddresses(stmts []*Statement) (map[string]SegAddr, []addrStmt, error) {
	symtab := make(map[string]SegAddr)
	cursor := make(map[string]uint32)
	var lines []addrStmt
	curSeg := ""

	for _, stmt := range stmts {
		if curSeg == "" {
			if !(stmt.IsDirective && stmt.Name == ".segment" && stmt.Label == "") {
				return nil, nil, asmErrorf(stmt, "a segment must be defined before this line")
			}
		}
		addr := SegAddr{Segment: curSeg, Offset: cursor[curSeg]}

		if stmt.Label != "" {
			if _, dup := symtab[stmt.Label]; dup {
				return nil, nil, asmErrorf(stmt, "label %q duplicated", stmt.Label)
			}
			symtab[stmt.Label] = addr
		}

		if !stmt.IsDirective {
			if stmt.Name == "" {
				// Bare label; no address effect.
				continue
			}
			length, known := instructionLength(stmt.Name)
			if !known {
				return nil, nil, asmErrorf(stmt, "unknown instruction %q", stmt.Name)
			}
			if addr.Offset%LUZ_WORD_SIZE != 0 {
				return nil, nil, asmErrorf(stmt, "instruction at misaligned offset 0x%X in segment %q", addr.Offset, curSeg)
			}
			lines = append(lines, addrStmt{addr, stmt})
			cursor[curSeg] += length
			continue
		}

		switch stmt.Name {
		case ".segment":
			if len(stmt.Args) != 1 {
				return nil, nil, asmErrorf(stmt, ".segment expects one name argument")
			}
			id, ok := stmt.Args[0].(Ident)
			if !ok {
				return nil, nil, asmErrorf(stmt, ".segment expects a segment name")
			}
			// Re-entering a segment resumes its previous cursor.
			curSeg = id.Name
			if _, seen := cursor[curSeg]; !seen {
				cursor[curSeg] = 0
			}
		case ".word":
			lines = append(lines, addrStmt{addr, stmt})
			cursor[curSeg] += uint32(len(stmt.Args)) * 4
		case ".byte":
			lines = append(lines, addrStmt{addr, stmt})
			cursor[curSeg] += uint32(len(stmt.Args))
		case ".alloc":
			if len(stmt.Args) != 1 {
				return nil, nil, asmErrorf(stmt, ".alloc expects one size argument")
			}
			num, ok := stmt.Args[0].(Number)
			if !ok || num.Val < 0 {
				return nil, nil, asmErrorf(stmt, ".alloc expects a non-negative size")
			}
			lines = append(lines, addrStmt{addr, stmt})
			cursor[curSeg] += uint32(num.Val)
		case ".string":
			if len(stmt.Args) != 1 {
				return nil, nil, asmErrorf(stmt, ".string expects one string argument")
			}
			str, ok := stmt.Args[0].(StringLit)
			if !ok {
				return nil, nil, asmErrorf(stmt, ".string expects a string literal")
			}
			lines = append(lines, addrStmt{addr, stmt})
			cursor[curSeg] += uint32(len(str.Val)) + 1 // trailing NUL
		case ".define", ".global":
			// No address effect; handled in the second pass.
			lines = append(lines, addrStmt{addr, stmt})
		default:
			return nil, nil, asmErrorf(stmt, "unknown directive %q", stmt.Name)
		}
	}
	return symtab, lines, nil
}

// asmUnit holds second-pass state for one translation unit.
type asmUnit struct {
	symtab  map[string]SegAddr
	defines map[string]int64
	global  map[string]bool
	obj     *ObjectFile
}

// pendingPatch marks an assembled word as needing a link-time patch.
type pendingPatch struct {
	kind PatchKind
	name string // import: symbol name; reloc: segment name
}

// assembled is one encoded instruction word plus any patch requests.
type assembled struct {
	word uint32
	imp  *pendingPatch
	rel  *pendingPatch
}

// emit is the second pass: it encodes instructions and materializes data
// directives into segment bytes, collecting the export, import and
// relocation tables.
func (u *asmUnit) emit(lines []addrStmt) error {
	for _, line := range lines {
		stmt := line.stmt
		if !stmt.IsDirective {
			if err := u.emitInstruction(line.addr, stmt); err != nil {
				return err
			}
			continue
		}
		switch stmt.Name {
		case ".define":
			if err := u.handleDefine(stmt); err != nil {
				return err
			}
		case ".global":
			if err := u.handleGlobal(stmt); err != nil {
				return err
			}
		case ".alloc":
			n := stmt.Args[0].(Number).Val
			u.obj.appendSegment(line.addr.Segment, make([]byte, n))
		case ".byte":
			data := make([]byte, 0, len(stmt.Args))
			for i, arg := range stmt.Args {
				num, ok := arg.(Number)
				if !ok || !fitsImm(num.Val, 8) {
					return asmErrorf(stmt, ".byte argument %d is not a valid byte", i+1)
				}
				data = append(data, byte(num.Val))
			}
			u.obj.appendSegment(line.addr.Segment, data)
		case ".word":
			data := make([]byte, 0, len(stmt.Args)*4)
			for i, arg := range stmt.Args {
				num, ok := arg.(Number)
				if !ok || !fitsImm(num.Val, 32) {
					return asmErrorf(stmt, ".word argument %d is not a valid word", i+1)
				}
				var buf [4]byte
				binary.LittleEndian.PutUint32(buf[:], uint32(num.Val))
				data = append(data, buf[:]...)
			}
			u.obj.appendSegment(line.addr.Segment, data)
		case ".string":
			str := stmt.Args[0].(StringLit).Val
			u.obj.appendSegment(line.addr.Segment, append([]byte(str), 0))
		}
	}
	return nil
}

func (u *asmUnit) handleDefine(stmt *Statement) error {
	if len(stmt.Args) != 2 {
		return asmErrorf(stmt, ".define expects a name and a value")
	}
	id, ok := stmt.Args[0].(Ident)
	if !ok {
		return asmErrorf(stmt, ".define expects a constant name")
	}
	num, ok := stmt.Args[1].(Number)
	if !ok {
		return asmErrorf(stmt, ".define expects a numeric value")
	}
	if _, dup := u.defines[id.Name]; dup {
		return asmErrorf(stmt, "constant %q redefined", id.Name)
	}
	u.defines[id.Name] = num.Val
	return nil
}

func (u *asmUnit) handleGlobal(stmt *Statement) error {
	if len(stmt.Args) != 1 {
		return asmErrorf(stmt, ".global expects one symbol argument")
	}
	id, ok := stmt.Args[0].(Ident)
	if !ok {
		return asmErrorf(stmt, ".global expects a symbol name")
	}
	addr, defined := u.symtab[id.Name]
	if !defined {
		return asmErrorf(stmt, ".global exports unknown label %q", id.Name)
	}
	if u.global[id.Name] {
		return asmErrorf(stmt, "duplicate .global for %q", id.Name)
	}
	u.global[id.Name] = true
	u.obj.Exports = append(u.obj.Exports, ExportEntry{Symbol: id.Name, Addr: addr})
	return nil
}

func (u *asmUnit) emitInstruction(addr SegAddr, stmt *Statement) error {
	words, err := u.encodeStatement(addr, stmt)
	if err != nil {
		return err
	}
	// Sanity: the first pass and the emitted data must agree on where
	// this instruction lands.
	if got := uint32(len(u.obj.Segment(addr.Segment))); got != addr.Offset {
		return asmErrorf(stmt, "internal: segment %q cursor 0x%X, expected 0x%X", addr.Segment, got, addr.Offset)
	}
	for _, w := range words {
		offset := uint32(len(u.obj.Segment(addr.Segment)))
		site := SegAddr{Segment: addr.Segment, Offset: offset}
		if w.imp != nil {
			u.obj.Imports = append(u.obj.Imports, ImportEntry{
				Symbol: w.imp.name, Kind: w.imp.kind, Addr: site,
			})
		}
		if w.rel != nil {
			u.obj.Relocs = append(u.obj.Relocs, RelocEntry{
				Segment: w.rel.name, Kind: w.rel.kind, Addr: site,
			})
		}
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], w.word)
		u.obj.appendSegment(addr.Segment, buf[:])
	}
	return nil
}

// encodeStatement assembles one instruction statement, expanding
// pseudo-instructions, into one or two words.
func (u *asmUnit) encodeStatement(addr SegAddr, stmt *Statement) ([]assembled, error) {
	name := stmt.Name
	args := stmt.Args

	if want, isPseudo := pseudoInstrs[name]; isPseudo {
		if len(args) != want {
			return nil, asmErrorf(stmt, "%s expects %d operand(s), got %d", name, want, len(args))
		}
		switch name {
		case "nop":
			zero := Ident{Name: "$r0"}
			return u.encodeReal(addr, stmt, mnemonicTable["add"], []Arg{zero, zero, zero})
		case "not":
			return u.encodeReal(addr, stmt, mnemonicTable["nor"], []Arg{args[0], args[1], args[1]})
		case "move":
			return u.encodeReal(addr, stmt, mnemonicTable["add"], []Arg{args[0], args[1], Ident{Name: "$r0"}})
		case "neg":
			return u.encodeReal(addr, stmt, mnemonicTable["sub"], []Arg{args[0], Ident{Name: "$r0"}, args[1]})
		case "beqz":
			return u.encodeReal(addr, stmt, mnemonicTable["beq"], []Arg{args[0], Ident{Name: "$r0"}, args[1]})
		case "bnez":
			return u.encodeReal(addr, stmt, mnemonicTable["bne"], []Arg{args[0], Ident{Name: "$r0"}, args[1]})
		case "lli":
			return u.encodeReal(addr, stmt, mnemonicTable["ori"], []Arg{args[0], Ident{Name: "$r0"}, args[1]})
		case "ret":
			return u.encodeReal(addr, stmt, mnemonicTable["jr"], []Arg{Ident{Name: "$ra"}})
		case "li":
			return u.encodeLI(addr, stmt, args)
		}
	}

	desc, ok := mnemonicTable[name]
	if !ok {
		return nil, asmErrorf(stmt, "unknown instruction %q", name)
	}
	if len(args) != desc.NumArgs {
		return nil, asmErrorf(stmt, "%s expects %d operand(s), got %d", name, desc.NumArgs, len(args))
	}
	return u.encodeReal(addr, stmt, desc, args)
}

// encodeReal assembles one real machine instruction per the ISA table.
func (u *asmUnit) encodeReal(addr SegAddr, stmt *Statement, desc *InstrDesc, args []Arg) ([]assembled, error) {
	opField := buildBitfield(31, 26, uint32(desc.Op))

	switch desc.Format {
	case Fmt3Reg:
		rd, err := u.reg(stmt, args[0])
		if err != nil {
			return nil, err
		}
		rs, err := u.reg(stmt, args[1])
		if err != nil {
			return nil, err
		}
		rt, err := u.reg(stmt, args[2])
		if err != nil {
			return nil, err
		}
		word := opField |
			buildBitfield(25, 21, rd) |
			buildBitfield(20, 16, rs) |
			buildBitfield(15, 11, rt)
		return []assembled{{word: word}}, nil

	case Fmt2RegImm:
		rd, err := u.reg(stmt, args[0])
		if err != nil {
			return nil, err
		}
		rs, err := u.reg(stmt, args[1])
		if err != nil {
			return nil, err
		}
		c16, err := u.defineOrConst(stmt, args[2], 16)
		if err != nil {
			return nil, err
		}
		word := opField |
			buildBitfield(25, 21, rd) |
			buildBitfield(20, 16, rs) |
			buildBitfield(15, 0, uint32(c16))
		return []assembled{{word: word}}, nil

	case FmtRegImm16:
		rd, err := u.reg(stmt, args[0])
		if err != nil {
			return nil, err
		}
		c16, err := u.defineOrConst(stmt, args[1], 16)
		if err != nil {
			return nil, err
		}
		word := opField |
			buildBitfield(25, 21, rd) |
			buildBitfield(15, 0, uint32(c16))
		return []assembled{{word: word}}, nil

	case FmtLoad, FmtStore:
		valReg, err := u.reg(stmt, args[0])
		if err != nil {
			return nil, err
		}
		baseReg, off16, err := u.memRef(stmt, args[1])
		if err != nil {
			return nil, err
		}
		// Loads carry the destination in rd and the base in rs; stores
		// carry the base in rd and the value in rs.
		rd, rs := valReg, baseReg
		if desc.Format == FmtStore {
			rd, rs = baseReg, valReg
		}
		word := opField |
			buildBitfield(25, 21, rd) |
			buildBitfield(20, 16, rs) |
			buildBitfield(15, 0, uint32(off16))
		return []assembled{{word: word}}, nil

	case FmtBranch:
		rd, err := u.reg(stmt, args[0])
		if err != nil {
			return nil, err
		}
		rs, err := u.reg(stmt, args[1])
		if err != nil {
			return nil, err
		}
		off, err := u.branchOffset(stmt, args[2], 16, addr)
		if err != nil {
			return nil, err
		}
		word := opField |
			buildBitfield(25, 21, rd) |
			buildBitfield(20, 16, rs) |
			buildBitfield(15, 0, uint32(off))
		return []assembled{{word: word}}, nil

	case FmtOff26:
		off, err := u.branchOffset(stmt, args[0], 26, addr)
		if err != nil {
			return nil, err
		}
		word := opField | buildBitfield(25, 0, uint32(off))
		return []assembled{{word: word}}, nil

	case FmtTarget26:
		return u.encodeCall(stmt, opField, args[0])

	case Fmt1Reg:
		rd, err := u.reg(stmt, args[0])
		if err != nil {
			return nil, err
		}
		word := opField | buildBitfield(25, 21, rd)
		return []assembled{{word: word}}, nil

	case FmtNone:
		return []assembled{{word: opField}}, nil
	}
	return nil, asmErrorf(stmt, "internal: unhandled instruction format for %s", desc.Name)
}

// encodeCall assembles CALL. A numeric (or defined-constant) target is an
// absolute byte address; a known label gets a relocation against its
// segment; an unknown label becomes an import resolved by the linker.
func (u *asmUnit) encodeCall(stmt *Statement, opField uint32, target Arg) ([]assembled, error) {
	if _, byteAddr, ok := u.constValue(target); ok {
		if byteAddr%4 != 0 {
			return nil, asmErrorf(stmt, "call target 0x%X not word-aligned", byteAddr)
		}
		if !fitsInBits(int64(byteAddr/4), 26, false) {
			return nil, asmErrorf(stmt, "call target 0x%X out of 26-bit range", byteAddr)
		}
		word := opField | buildBitfield(25, 0, uint32(byteAddr/4))
		return []assembled{{word: word}}, nil
	}

	id, ok := target.(Ident)
	if !ok {
		return nil, asmErrorf(stmt, "invalid call target %s", target.argString())
	}
	if label, defined := u.symtab[id.Name]; defined {
		if label.Offset%4 != 0 {
			return nil, asmErrorf(stmt, "call target %q not word-aligned", id.Name)
		}
		word := opField | buildBitfield(25, 0, label.Offset/4)
		return []assembled{{
			word: word,
			rel:  &pendingPatch{kind: PatchCall26, name: label.Segment},
		}}, nil
	}
	// External symbol: field left zero for the linker to fill.
	return []assembled{{
		word: opField,
		imp:  &pendingPatch{kind: PatchCall26, name: id.Name},
	}}, nil
}

// encodeLI assembles the LI pseudo-instruction into a LUI/ORI pair.
func (u *asmUnit) encodeLI(addr SegAddr, stmt *Statement, args []Arg) ([]assembled, error) {
	rd, err := u.reg(stmt, args[0])
	if err != nil {
		return nil, err
	}

	pair := func(value uint32) []assembled {
		lui := buildBitfield(31, 26, uint32(OP_LUI)) |
			buildBitfield(25, 21, rd) |
			buildBitfield(15, 0, value>>16)
		ori := buildBitfield(31, 26, uint32(OP_ORI)) |
			buildBitfield(25, 21, rd) |
			buildBitfield(20, 16, rd) |
			buildBitfield(15, 0, value&0xFFFF)
		return []assembled{{word: lui}, {word: ori}}
	}

	if _, val, ok := u.constValue(args[1]); ok {
		return pair(val), nil
	}

	id, ok := args[1].(Ident)
	if !ok {
		return nil, asmErrorf(stmt, "invalid li operand %s", args[1].argString())
	}
	if label, defined := u.symtab[id.Name]; defined {
		words := pair(label.Offset)
		words[0].rel = &pendingPatch{kind: PatchImm32, name: label.Segment}
		return words, nil
	}
	words := pair(0)
	words[0].imp = &pendingPatch{kind: PatchImm32, name: id.Name}
	return words, nil
}

// constValue resolves an operand that is a number or a defined constant.
// Returns the signed value, its 32-bit two's-complement pattern, and
// whether the operand was constant at all.
func (u *asmUnit) constValue(arg Arg) (int64, uint32, bool) {
	switch v := arg.(type) {
	case Number:
		return v.Val, uint32(v.Val), true
	case Ident:
		if val, ok := u.defines[v.Name]; ok {
			return val, uint32(val), true
		}
	}
	return 0, 0, false
}

// reg resolves a register operand.
func (u *asmUnit) reg(stmt *Statement, arg Arg) (uint32, error) {
	id, ok := arg.(Ident)
	if !ok {
		return 0, asmErrorf(stmt, "invalid register %s", arg.argString())
	}
	num, ok := parseRegister(id.Name)
	if !ok {
		return 0, asmErrorf(stmt, "invalid register %q", id.Name)
	}
	return num, nil
}

// defineOrConst resolves a numeric operand (literal or .define constant)
// and range-checks it against maxbits, accepting signed or unsigned
// encodings.
func (u *asmUnit) defineOrConst(stmt *Statement, arg Arg, maxbits uint) (int64, error) {
	switch v := arg.(type) {
	case Number:
		if !fitsImm(v.Val, maxbits) {
			return 0, asmErrorf(stmt, "constant %d won't fit in %d bits", v.Val, maxbits)
		}
		return v.Val, nil
	case Ident:
		val, ok := u.defines[v.Name]
		if !ok {
			return 0, asmErrorf(stmt, "undefined constant %q", v.Name)
		}
		if !fitsImm(val, maxbits) {
			return 0, asmErrorf(stmt, "constant %d won't fit in %d bits", val, maxbits)
		}
		return val, nil
	}
	return 0, asmErrorf(stmt, "invalid numeric operand %s", arg.argString())
}

// memRef resolves an off(reg) operand to its register number and 16-bit
// offset field value.
func (u *asmUnit) memRef(stmt *Statement, arg Arg) (uint32, int64, error) {
	mr, ok := arg.(MemRef)
	if !ok {
		return 0, 0, asmErrorf(stmt, "invalid memory reference %s", arg.argString())
	}
	num, ok := parseRegister(mr.Reg)
	if !ok {
		return 0, 0, asmErrorf(stmt, "invalid register %q in memory reference", mr.Reg)
	}
	off, err := u.defineOrConst(stmt, mr.Offset, 16)
	if err != nil {
		return 0, 0, err
	}
	return num, off, nil
}

// branchOffset computes the word offset field of a PC-relative branch. The
// operand is either an explicit word offset or a label, which must live in
// the same segment as the branch and be word-aligned. The convention is
// fixed: field = (target - address_of_branch) / 4, signed.
func (u *asmUnit) branchOffset(stmt *Statement, arg Arg, nbits uint, addr SegAddr) (int64, error) {
	if num, ok := arg.(Number); ok {
		if !fitsInBits(num.Val, nbits, true) {
			return 0, asmErrorf(stmt, "branch offset too large for %d bits", nbits)
		}
		return num.Val, nil
	}
	id, ok := arg.(Ident)
	if !ok {
		return 0, asmErrorf(stmt, "invalid branch target %s", arg.argString())
	}
	label, defined := u.symtab[id.Name]
	if !defined {
		return 0, asmErrorf(stmt, "undefined label %q", id.Name)
	}
	if label.Segment != addr.Segment {
		return 0, asmErrorf(stmt, "branch target %q in different segment", id.Name)
	}
	if label.Offset%4 != 0 {
		return 0, asmErrorf(stmt, "branch target %q not aligned at word boundary", id.Name)
	}
	rel := (int64(label.Offset) - int64(addr.Offset)) / 4
	if !fitsInBits(rel, nbits, true) {
		return 0, asmErrorf(stmt, "branch offset too large for %d bits", nbits)
	}
	return rel, nil
}
