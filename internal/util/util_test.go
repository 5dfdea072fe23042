// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")

	if err := AtomicWriteFile(path, []byte("hello"), 0600); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("content = %q, want %q", data, "hello")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("perm = %v, want 0600", info.Mode().Perm())
	}
}

func TestAtomicWriteFile_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "out.txt")
	if err := AtomicWriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("file not created: %v", err)
	}
}

func TestAtomicWriteFile_OverwritesAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	for _, content := range []string{"first", "second"} {
		if err := AtomicWriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("AtomicWriteFile failed: %v", err)
		}
	}

	data, _ := os.ReadFile(path)
	if string(data) != "second" {
		t.Errorf("content = %q, want second", data)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the target file, found %d entries", len(entries))
	}
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"héllo wörld", 8, "héllo..."},
		{"abc", 2, "ab"},
		{"abc", 0, ""},
		{"école", 5, "école"},
	}
	for _, tt := range tests {
		if got := TruncateRunes(tt.in, tt.max); got != tt.want {
			t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestTruncateWidth(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"What is the capital of France?", 10, "What is..."},
		{"你好世界你好", 8, "你好..."},
		{"abcdef", 3, "abc"},
		{"anything", 0, ""},
	}
	for _, tt := range tests {
		got := TruncateWidth(tt.in, tt.max)
		if got != tt.want {
			t.Errorf("TruncateWidth(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
		if StringWidth(got) > tt.max {
			t.Errorf("TruncateWidth(%q, %d) width %d exceeds max", tt.in, tt.max, StringWidth(got))
		}
	}
}

func TestStringWidth(t *testing.T) {
	if w := StringWidth("abc"); w != 3 {
		t.Errorf("StringWidth(abc) = %d", w)
	}
	if w := StringWidth("日本"); w != 4 {
		t.Errorf("StringWidth(日本) = %d, want 4", w)
	}
}

func TestSingleLineAndWordCount(t *testing.T) {
	in := "  line one\n\tline   two  "
	if got := SingleLine(in); got != "line one line two" {
		t.Errorf("SingleLine = %q", got)
	}
	if got := WordCount(in); got != 4 {
		t.Errorf("WordCount = %d, want 4", got)
	}
	if got := WordCount(strings.Repeat(" ", 5)); got != 0 {
		t.Errorf("WordCount(blank) = %d", got)
	}
}
