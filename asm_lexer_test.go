package main

import (
	"strings"
	"testing"
)

func lexAll(t *testing.T, src string) []Token {
	t.Helper()
	toks, err := NewLexer(src).Tokenize()
	if err != nil {
		t.Fatalf("tokenize %q: %v", src, err)
	}
	return toks
}

func TestLexerBasicTokens(t *testing.T) {
	toks := lexAll(t, "add $r1, $r2, $r3\n")
	want := []struct {
		kind TokenKind
		text string
	}{
		{TokID, "add"},
		{TokID, "$r1"},
		{TokComma, ","},
		{TokID, "$r2"},
		{TokComma, ","},
		{TokID, "$r3"},
		{TokNewline, ""},
		{TokEOF, ""},
	}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(toks), len(want))
	}
	for i, w := range want {
		if toks[i].Kind != w.kind || toks[i].Text != w.text {
			t.Errorf("token %d = (%v, %q), want (%v, %q)", i, toks[i].Kind, toks[i].Text, w.kind, w.text)
		}
	}
}

func TestLexerCaseFolding(t *testing.T) {
	toks := lexAll(t, "ADD $R1, Loop\n")
	if toks[0].Text != "add" || toks[1].Text != "$r1" || toks[3].Text != "loop" {
		t.Errorf("identifiers not lower-cased: %q %q %q", toks[0].Text, toks[1].Text, toks[3].Text)
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		src  string
		want int64
	}{
		{"0", 0},
		{"1234", 1234},
		{"-4", -4},
		{"0x10", 16},
		{"0XFF", 255},
		{"0b101", 5},
		{"-0x8", -8},
		{"0xFFFFFFFF", 0xFFFFFFFF},
	}
	for _, tc := range tests {
		toks := lexAll(t, tc.src+"\n")
		if toks[0].Kind != TokNumber {
			t.Errorf("%q: got kind %v, want number", tc.src, toks[0].Kind)
			continue
		}
		if toks[0].Num != tc.want {
			t.Errorf("%q = %d, want %d", tc.src, toks[0].Num, tc.want)
		}
	}
}

func TestLexerBadNumbers(t *testing.T) {
	for _, src := range []string{"0x", "0b", "0x12g4", "12ab", "0b12", "0x100000000"} {
		if _, err := NewLexer(src + "\n").Tokenize(); err == nil {
			t.Errorf("%q: expected error", src)
		}
	}
}

func TestLexerDirectives(t *testing.T) {
	toks := lexAll(t, ".segment code\n.define X, 5\n")
	if toks[0].Kind != TokDirective || toks[0].Text != ".segment" {
		t.Errorf("got (%v, %q), want directive .segment", toks[0].Kind, toks[0].Text)
	}
	if toks[3].Kind != TokDirective || toks[3].Text != ".define" {
		t.Errorf("got (%v, %q), want directive .define", toks[3].Kind, toks[3].Text)
	}
}

func TestLexerStringEscapes(t *testing.T) {
	toks := lexAll(t, `.string "a\tb\nc\\d\"e"`+"\n")
	if toks[1].Kind != TokString {
		t.Fatalf("got kind %v, want string", toks[1].Kind)
	}
	if toks[1].Text != "a\tb\nc\\d\"e" {
		t.Errorf("string = %q", toks[1].Text)
	}
}

func TestLexerUnterminatedString(t *testing.T) {
	_, err := NewLexer(".string \"abc\n").Tokenize()
	if err == nil {
		t.Fatal("expected error for unterminated string")
	}
	if !strings.Contains(err.Error(), "unterminated") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestLexerComments(t *testing.T) {
	toks := lexAll(t, "add # this is, a comment\nsub\n")
	kinds := []TokenKind{TokID, TokNewline, TokID, TokNewline, TokEOF}
	if len(toks) != len(kinds) {
		t.Fatalf("got %d tokens, want %d", len(toks), len(kinds))
	}
	for i, k := range kinds {
		if toks[i].Kind != k {
			t.Errorf("token %d kind = %v, want %v", i, toks[i].Kind, k)
		}
	}
}

func TestLexerPositions(t *testing.T) {
	toks := lexAll(t, "add\n  sub $r1\n")
	// "sub" is on line 2, column 3.
	if toks[2].Line != 2 || toks[2].Col != 3 {
		t.Errorf("sub at %d:%d, want 2:3", toks[2].Line, toks[2].Col)
	}
	if toks[3].Line != 2 || toks[3].Col != 7 {
		t.Errorf("$r1 at %d:%d, want 2:7", toks[3].Line, toks[3].Col)
	}
}

func TestLexerIllegalCharacter(t *testing.T) {
	_, err := NewLexer("add @foo\n").Tokenize()
	se, ok := err.(*SourceError)
	if !ok {
		t.Fatalf("expected SourceError, got %v", err)
	}
	if se.Line != 1 || se.Col != 5 {
		t.Errorf("error at %d:%d, want 1:5", se.Line, se.Col)
	}
}
