// Package feedlog implements the per-author on-disk feed log described in
// spec §4.8: a 4-byte last-sequence header followed by a run of
// length-prefixed, snappy-compressed entries with a trailing copy of the
// length for reverse scanning. It is grounded on the teacher's
// pkg/content/chunker.go — the same open/stat/seek/read-loop shape —
// generalized from content-addressed file chunking to sequence-addressed
// append-only log entries.
package feedlog

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/golang/snappy"
)

const headerSize = 4

// Error reports a feed-log storage failure (spec §7 "Storage" / "Sequence").
type Error struct {
	Code   string
	Reason string
}

func (e *Error) Error() string { return fmt.Sprintf("feedlog: %s: %s", e.Code, e.Reason) }

func newError(code, reason string) *Error { return &Error{Code: code, Reason: reason} }

// Named failure modes.
var (
	ErrInvalidSequenceNo         = "InvalidSequenceNo"
	ErrMismatchReadingSecondSize = "MismatchReadingSecondSize"
)

// FilenameForAuthor maps an author id's base64 payload to a filesystem-safe
// name by substituting '+' -> '-' and '/' -> '_' (spec §4.8 "Ownership").
// The caller passes the bare base64 payload (author id with its "@"/".ed25519"
// sigil already stripped), since the log is keyed purely by key material.
func FilenameForAuthor(base64Payload string) string {
	r := strings.NewReplacer("+", "-", "/", "_")
	return r.Replace(base64Payload)
}

// Log is one author's append-only on-disk feed log.
type Log struct {
	mu      sync.Mutex
	f       *os.File
	lastSeq uint32
}

// Open opens (creating if necessary) the log file at path, reading its
// current last-sequence header if the file already has one.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("feedlog: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("feedlog: stat %s: %w", path, err)
	}

	l := &Log{f: f}
	if info.Size() >= headerSize {
		var hdr [headerSize]byte
		if _, err := f.ReadAt(hdr[:], 0); err != nil {
			f.Close()
			return nil, fmt.Errorf("feedlog: read header: %w", err)
		}
		l.lastSeq = binary.BigEndian.Uint32(hdr[:])
	}
	return l, nil
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// LastSequence returns the most recently appended sequence number, or 0 if
// the log is empty.
func (l *Log) LastSequence() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq
}

// Append validates seq == lastSeq+1 (or seq == 1 on an empty log), writes
// the new last-sequence header, and appends a
// <len:u32 BE><snappy(body)><len:u32 BE> entry, per spec §4.8.
func (l *Log) Append(seq uint32, body []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	want := l.lastSeq + 1
	if seq != want {
		return newError(ErrInvalidSequenceNo, fmt.Sprintf("got sequence %d, want %d", seq, want))
	}

	var hdr [headerSize]byte
	binary.BigEndian.PutUint32(hdr[:], seq)
	if _, err := l.f.WriteAt(hdr[:], 0); err != nil {
		return fmt.Errorf("feedlog: write header: %w", err)
	}

	compressed := snappy.Encode(nil, body)
	entryLen := uint32(len(compressed))

	end, err := l.f.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("feedlog: seek end: %w", err)
	}
	placeholderOffset := end

	var lenBuf [4]byte
	// Write a placeholder leading length, then the body and the trailing
	// length, then back-patch the placeholder once the real length is
	// known (spec §4.8: "back-patches the leading length in place").
	if _, err := l.f.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("feedlog: write leading length placeholder: %w", err)
	}
	if _, err := l.f.Write(compressed); err != nil {
		return fmt.Errorf("feedlog: write compressed body: %w", err)
	}
	binary.BigEndian.PutUint32(lenBuf[:], entryLen)
	if _, err := l.f.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("feedlog: write trailing length: %w", err)
	}
	if _, err := l.f.WriteAt(lenBuf[:], placeholderOffset); err != nil {
		return fmt.Errorf("feedlog: back-patch leading length: %w", err)
	}

	l.lastSeq = seq
	return nil
}

// ForwardIterator scans a feed log from its first entry to its last.
type ForwardIterator struct {
	f      *os.File
	offset int64
	seq    uint32
	body   []byte
	err    error
}

// Iter returns a forward iterator starting at byte offset 4 (spec §4.8
// "iter()"). The iterator is valid only while no concurrent append occurs
// on the same file (spec §5 "Shared resources").
func (l *Log) Iter() *ForwardIterator {
	return &ForwardIterator{f: l.f, offset: headerSize}
}

// Next advances the iterator, returning false at end of file or on error
// (check Err after Next returns false).
func (it *ForwardIterator) Next() bool {
	if it.err != nil {
		return false
	}
	var lenBuf [4]byte
	n, err := it.f.ReadAt(lenBuf[:], it.offset)
	if err == io.EOF && n == 0 {
		return false
	}
	if err != nil && err != io.EOF {
		it.err = fmt.Errorf("feedlog: read leading length: %w", err)
		return false
	}
	entryLen := binary.BigEndian.Uint32(lenBuf[:])

	compressed := make([]byte, entryLen)
	if _, err := it.f.ReadAt(compressed, it.offset+4); err != nil {
		it.err = fmt.Errorf("feedlog: read entry body: %w", err)
		return false
	}
	body, err := snappy.Decode(nil, compressed)
	if err != nil {
		it.err = fmt.Errorf("feedlog: decompress entry: %w", err)
		return false
	}

	it.seq++
	it.body = body
	it.offset += 4 + int64(entryLen) + 4
	return true
}

// Seq returns the sequence number of the entry Next last produced.
func (it *ForwardIterator) Seq() uint32 { return it.seq }

// Body returns the plaintext JSON body of the entry Next last produced.
func (it *ForwardIterator) Body() []byte { return it.body }

// Err returns the first error encountered, if any.
func (it *ForwardIterator) Err() error { return it.err }

// ReverseIterator scans a feed log from its last entry back to its first.
type ReverseIterator struct {
	f          *os.File
	offset     int64 // exclusive end of the next entry to read
	seq        uint32
	currentSeq uint32
	body       []byte
	err        error
}

// RevIter returns a reverse iterator starting at the log's last entry
// (spec §4.8 "rev_iter()").
func (l *Log) RevIter() (*ReverseIterator, error) {
	info, err := l.f.Stat()
	if err != nil {
		return nil, fmt.Errorf("feedlog: stat: %w", err)
	}
	return &ReverseIterator{f: l.f, offset: info.Size(), seq: l.lastSeq}, nil
}

// Next steps the iterator back one entry.
func (it *ReverseIterator) Next() bool {
	if it.err != nil || it.offset <= headerSize {
		return false
	}

	var trailingBuf [4]byte
	if _, err := it.f.ReadAt(trailingBuf[:], it.offset-4); err != nil {
		it.err = fmt.Errorf("feedlog: read trailing length: %w", err)
		return false
	}
	entryLen := binary.BigEndian.Uint32(trailingBuf[:])

	entryStart := it.offset - 8 - int64(entryLen)
	if entryStart < headerSize {
		it.err = newError(ErrMismatchReadingSecondSize, "entry start precedes log header")
		return false
	}

	var leadingBuf [4]byte
	if _, err := it.f.ReadAt(leadingBuf[:], entryStart); err != nil {
		it.err = fmt.Errorf("feedlog: read leading length: %w", err)
		return false
	}
	leadLen := binary.BigEndian.Uint32(leadingBuf[:])
	if leadLen != entryLen {
		it.err = newError(ErrMismatchReadingSecondSize, fmt.Sprintf("leading length %d != trailing length %d", leadLen, entryLen))
		return false
	}

	compressed := make([]byte, entryLen)
	if _, err := it.f.ReadAt(compressed, entryStart+4); err != nil {
		it.err = fmt.Errorf("feedlog: read entry body: %w", err)
		return false
	}
	body, err := snappy.Decode(nil, compressed)
	if err != nil {
		it.err = fmt.Errorf("feedlog: decompress entry: %w", err)
		return false
	}

	it.body = body
	it.offset = entryStart
	it.currentSeq = it.seq
	it.seq--
	return true
}

// Seq returns the sequence number of the entry Next last produced.
func (it *ReverseIterator) Seq() uint32 { return it.currentSeq }

// Body returns the plaintext JSON body of the entry Next last produced.
func (it *ReverseIterator) Body() []byte { return it.body }

// Err returns the first error encountered, if any.
func (it *ReverseIterator) Err() error { return it.err }
