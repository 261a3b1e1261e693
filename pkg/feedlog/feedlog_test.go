package feedlog

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func openTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l, path
}

func TestAppendRejectsWrongFirstSequence(t *testing.T) {
	l, _ := openTestLog(t)
	if err := l.Append(2, []byte("{}")); err == nil {
		t.Fatal("expected error appending sequence 2 to an empty log")
	}
}

func TestAppendAndForwardIterRoundTrip(t *testing.T) {
	l, _ := openTestLog(t)
	bodies := [][]byte{
		[]byte(`{"sequence":1}`),
		[]byte(`{"sequence":2}`),
		[]byte(`{"sequence":3}`),
	}
	for i, b := range bodies {
		if err := l.Append(uint32(i+1), b); err != nil {
			t.Fatalf("append %d: %v", i+1, err)
		}
	}
	if l.LastSequence() != 3 {
		t.Fatalf("LastSequence() = %d, want 3", l.LastSequence())
	}

	it := l.Iter()
	var got [][]byte
	var seqs []uint32
	for it.Next() {
		got = append(got, append([]byte(nil), it.Body()...))
		seqs = append(seqs, it.Seq())
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iter error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	for i := range bodies {
		if !bytes.Equal(got[i], bodies[i]) {
			t.Fatalf("entry %d = %q, want %q", i, got[i], bodies[i])
		}
		if seqs[i] != uint32(i+1) {
			t.Fatalf("entry %d seq = %d, want %d", i, seqs[i], i+1)
		}
	}
}

func TestRevIterReturnsEntriesInReverseOrder(t *testing.T) {
	l, _ := openTestLog(t)
	bodies := [][]byte{
		[]byte(`{"sequence":1}`),
		[]byte(`{"sequence":2}`),
		[]byte(`{"sequence":3}`),
	}
	for i, b := range bodies {
		if err := l.Append(uint32(i+1), b); err != nil {
			t.Fatalf("append %d: %v", i+1, err)
		}
	}

	rit, err := l.RevIter()
	if err != nil {
		t.Fatalf("rev iter: %v", err)
	}
	var seqs []uint32
	for rit.Next() {
		seqs = append(seqs, rit.Seq())
	}
	if err := rit.Err(); err != nil {
		t.Fatalf("rev iter error: %v", err)
	}
	want := []uint32{3, 2, 1}
	if len(seqs) != len(want) {
		t.Fatalf("got %d entries, want %d", len(seqs), len(want))
	}
	for i := range want {
		if seqs[i] != want[i] {
			t.Fatalf("seqs[%d] = %d, want %d", i, seqs[i], want[i])
		}
	}
}

func TestAppendEnforcesMonotonicSequence(t *testing.T) {
	l, _ := openTestLog(t)
	if err := l.Append(1, []byte("a")); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if err := l.Append(3, []byte("c")); err == nil {
		t.Fatal("expected error for skipping sequence 2")
	}
	if err := l.Append(2, []byte("b")); err != nil {
		t.Fatalf("append 2: %v", err)
	}
}

func TestReopenPreservesLastSequence(t *testing.T) {
	l, path := openTestLog(t)
	if err := l.Append(1, []byte("a")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if reopened.LastSequence() != 1 {
		t.Fatalf("LastSequence() after reopen = %d, want 1", reopened.LastSequence())
	}
	if err := reopened.Append(2, []byte("b")); err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
}

func TestFilenameForAuthorSubstitutesUnsafeChars(t *testing.T) {
	got := FilenameForAuthor("ab+c/de+f")
	want := "ab-c_de-f"
	if got != want {
		t.Fatalf("FilenameForAuthor() = %q, want %q", got, want)
	}
}

func TestOpenCreatesFileWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist.log")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to be created: %v", err)
	}
}
