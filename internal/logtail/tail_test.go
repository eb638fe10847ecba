package logtail

import (
	"strings"
	"testing"
)

func TestTailWrite(t *testing.T) {
	tail := New(5)
	tail.Write([]byte("line 1\nline 2\nline 3\n"))

	lines := tail.Last(0)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "line 1" || lines[2] != "line 3" {
		t.Errorf("unexpected lines: %v", lines)
	}
}

func TestTailOverflow(t *testing.T) {
	tail := New(3)
	tail.Write([]byte("a\nb\nc\nd\ne\n"))

	lines := tail.Last(0)
	if strings.Join(lines, ",") != "c,d,e" {
		t.Errorf("expected [c d e], got %v", lines)
	}
	if got := tail.Last(2); strings.Join(got, ",") != "d,e" {
		t.Errorf("Last(2) = %v, want [d e]", got)
	}
}

func TestTailPartialWrites(t *testing.T) {
	tail := New(5)
	tail.Write([]byte("hel"))
	tail.Write([]byte("lo world\nsec"))

	lines := tail.Last(0)
	if len(lines) != 1 || lines[0] != "hello world" {
		t.Fatalf("expected [hello world], got %v", lines)
	}

	tail.Write([]byte("ond\n"))
	if got := tail.Last(1); got[0] != "second" {
		t.Errorf("expected second, got %v", got)
	}
}

func TestTailLastMoreThanHeld(t *testing.T) {
	tail := New(10)
	tail.Write([]byte("a\nb\n"))

	if got := tail.Last(5); len(got) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(got))
	}
}

func TestTailEmpty(t *testing.T) {
	if lines := New(5).Last(3); len(lines) != 0 {
		t.Errorf("expected empty, got %v", lines)
	}
}

func TestTailLongLineCut(t *testing.T) {
	tail := New(2)
	tail.Write([]byte(strings.Repeat("x", MaxLineLength+10)))

	lines := tail.Last(0)
	if len(lines) != 1 || len(lines[0]) != MaxLineLength {
		t.Fatalf("expected one cut line, got %d lines", len(lines))
	}
}
