package main

import (
	"reflect"
	"testing"
)

func parseOne(t *testing.T, src string) *Statement {
	t.Helper()
	stmts, err := ParseSource(src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	if len(stmts) != 1 {
		t.Fatalf("parse %q: got %d statements, want 1", src, len(stmts))
	}
	return stmts[0]
}

func TestParserInstruction(t *testing.T) {
	stmt := parseOne(t, "add $r1, $r2, $r3\n")
	if stmt.IsDirective || stmt.Name != "add" {
		t.Fatalf("got %+v", stmt)
	}
	want := []Arg{Ident{"$r1"}, Ident{"$r2"}, Ident{"$r3"}}
	if !reflect.DeepEqual(stmt.Args, want) {
		t.Errorf("args = %+v, want %+v", stmt.Args, want)
	}
}

func TestParserLabeledInstruction(t *testing.T) {
	stmt := parseOne(t, "loop: addi $r5, $r5, 1\n")
	if stmt.Label != "loop" || stmt.Name != "addi" {
		t.Fatalf("got %+v", stmt)
	}
	if !reflect.DeepEqual(stmt.Args[2], Number{1}) {
		t.Errorf("immediate = %+v", stmt.Args[2])
	}
}

func TestParserBareLabel(t *testing.T) {
	stmt := parseOne(t, "done:\n")
	if stmt.Label != "done" || stmt.Name != "" {
		t.Fatalf("got %+v", stmt)
	}
}

func TestParserMemRef(t *testing.T) {
	stmt := parseOne(t, "lw $r4, -8($r5)\n")
	want := MemRef{Offset: Number{-8}, Reg: "$r5"}
	if !reflect.DeepEqual(stmt.Args[1], want) {
		t.Errorf("memref = %+v, want %+v", stmt.Args[1], want)
	}
}

func TestParserMemRefDefineOffset(t *testing.T) {
	stmt := parseOne(t, "lw $r4, off($r5)\n")
	want := MemRef{Offset: Ident{"off"}, Reg: "$r5"}
	if !reflect.DeepEqual(stmt.Args[1], want) {
		t.Errorf("memref = %+v, want %+v", stmt.Args[1], want)
	}
}

func TestParserDirectives(t *testing.T) {
	tests := []struct {
		src  string
		name string
		args []Arg
	}{
		{".segment code\n", ".segment", []Arg{Ident{"code"}}},
		{".global asm_main\n", ".global", []Arg{Ident{"asm_main"}}},
		{".define SIZE, 0x40\n", ".define", []Arg{Ident{"size"}, Number{0x40}}},
		{".alloc 16\n", ".alloc", []Arg{Number{16}}},
		{".byte 1, 2, 3\n", ".byte", []Arg{Number{1}, Number{2}, Number{3}}},
		{".word 1, -2\n", ".word", []Arg{Number{1}, Number{-2}}},
		{`.string "hi"` + "\n", ".string", []Arg{StringLit{"hi"}}},
	}
	for _, tc := range tests {
		stmt := parseOne(t, tc.src)
		if !stmt.IsDirective || stmt.Name != tc.name {
			t.Errorf("%q: got (%v, %q)", tc.src, stmt.IsDirective, stmt.Name)
			continue
		}
		if !reflect.DeepEqual(stmt.Args, tc.args) {
			t.Errorf("%q: args = %+v, want %+v", tc.src, stmt.Args, tc.args)
		}
	}
}

func TestParserMultipleStatements(t *testing.T) {
	stmts, err := ParseSource(".segment code\n\nstart:\n  nop\n  halt\n")
	if err != nil {
		t.Fatal(err)
	}
	if len(stmts) != 4 {
		t.Fatalf("got %d statements, want 4", len(stmts))
	}
	if stmts[1].Label != "start" || stmts[2].Name != "nop" || stmts[3].Name != "halt" {
		t.Errorf("statements = %+v", stmts)
	}
}

func TestParserNoFinalNewline(t *testing.T) {
	stmts, err := ParseSource("halt")
	if err != nil {
		t.Fatal(err)
	}
	if len(stmts) != 1 || stmts[0].Name != "halt" {
		t.Fatalf("got %+v", stmts)
	}
}

func TestParserErrors(t *testing.T) {
	bad := []string{
		"add $r1,, $r2\n",
		"add $r1 $r2\n",
		"lw $r4, -8($r5\n",
		"lw $r4, -8()\n",
		", add\n",
	}
	for _, src := range bad {
		if _, err := ParseSource(src); err == nil {
			t.Errorf("%q: expected parse error", src)
		}
	}
}

func TestParserErrorPosition(t *testing.T) {
	_, err := ParseSource("nop\nadd $r1 $r2\n")
	se, ok := err.(*SourceError)
	if !ok {
		t.Fatalf("expected SourceError, got %v", err)
	}
	if se.Line != 2 {
		t.Errorf("error on line %d, want 2", se.Line)
	}
}
