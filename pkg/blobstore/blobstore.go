// Package blobstore implements content-addressed chunk storage and bounded
// concurrent fetch backing blobs.get / blobs.createWants (spec §4.7). It
// stays inside spec.md's non-goal boundary (no provider-discovery scheduling
// loop): Store and Manifest give "get-by-chunk" a home, Wants is a plain
// local advertisement set, nothing more.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"lukechampine.com/blake3"
)

// MaxChunkSize is the largest chunk this package will produce, matching the
// wire limit spec §4.7 places on a single blobs.get response frame.
const MaxChunkSize = 65536

// Error reports a blob storage or integrity failure.
type Error struct {
	Code   string
	Reason string
}

func (e *Error) Error() string { return fmt.Sprintf("blobstore: %s: %s", e.Code, e.Reason) }

func newError(code, reason string) *Error { return &Error{Code: code, Reason: reason} }

var (
	ErrChunkNotFound  = "ChunkNotFound"
	ErrChunkIntegrity = "ChunkIntegrity"
	ErrWireIntegrity  = "WireIntegrity"
	ErrEmptyData      = "EmptyData"
)

// ChunkID is a local BLAKE3-256 dedup key, distinct from the wire blob id:
// it addresses one chunk in the local Store, never travels over the RPC
// wire, and is fast to compute for cache lookups (grounded on
// pkg/content/cid.go's role as the local content address).
type ChunkID [32]byte

func chunkIDOf(data []byte) ChunkID {
	return ChunkID(blake3.Sum256(data))
}

func (c ChunkID) String() string {
	return "bee:" + base64.RawURLEncoding.EncodeToString(c[:])
}

// WireBlobID renders data's full-content SHA-256 digest as the
// "&<base64>.sha256" identifier the protocol's blobs.get/createWants calls
// exchange, matching pkg/identity's hash textual convention.
func WireBlobID(data []byte) string {
	sum := sha256.Sum256(data)
	return "&" + base64.StdEncoding.EncodeToString(sum[:]) + ".sha256"
}

// Manifest describes one blob's chunk layout: its wire id, total size, and
// the ordered list of local chunk ids needed to reassemble it.
type Manifest struct {
	WireID string
	Size   int64
	Chunks []ChunkID
}

// Store is a local content-addressed chunk cache, adapted from
// pkg/content/chunker.go's split-and-hash shape (generalized from
// whole-file chunking to an in-memory map, since this layer is a cache in
// front of a peer fetch, not a filesystem walker).
type Store struct {
	mu     sync.RWMutex
	chunks map[ChunkID][]byte
}

// NewStore returns an empty chunk store.
func NewStore() *Store {
	return &Store{chunks: make(map[ChunkID][]byte)}
}

// Put stores data under its BLAKE3 chunk id, returning that id.
func (s *Store) Put(data []byte) ChunkID {
	id := chunkIDOf(data)
	cp := append([]byte(nil), data...)
	s.mu.Lock()
	s.chunks[id] = cp
	s.mu.Unlock()
	return id
}

// Get retrieves a chunk by id.
func (s *Store) Get(id ChunkID) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.chunks[id]
	return data, ok
}

// Has reports whether id is present locally.
func (s *Store) Has(id ChunkID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.chunks[id]
	return ok
}

// BuildManifest splits data into MaxChunkSize chunks, stores each chunk in
// s, and returns the resulting Manifest.
func (s *Store) BuildManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, newError(ErrEmptyData, "cannot build a manifest for empty data")
	}
	m := &Manifest{WireID: WireBlobID(data), Size: int64(len(data))}
	for offset := 0; offset < len(data); offset += MaxChunkSize {
		end := offset + MaxChunkSize
		if end > len(data) {
			end = len(data)
		}
		m.Chunks = append(m.Chunks, s.Put(data[offset:end]))
	}
	return m, nil
}

// Assemble concatenates a manifest's chunks from s, verifying the result
// against the manifest's wire id. Every referenced chunk must already be
// present locally (see Fetcher.Fetch for the fill-missing-then-assemble
// path).
func (s *Store) Assemble(m *Manifest) ([]byte, error) {
	var buf bytes.Buffer
	for _, id := range m.Chunks {
		data, ok := s.Get(id)
		if !ok {
			return nil, newError(ErrChunkNotFound, id.String())
		}
		buf.Write(data)
	}
	out := buf.Bytes()
	if WireBlobID(out) != m.WireID {
		return nil, newError(ErrWireIntegrity, "assembled data does not match manifest wire id")
	}
	return out, nil
}

// ChunkFetchFunc retrieves one chunk's bytes from a peer, given its local id.
type ChunkFetchFunc func(ctx context.Context, id ChunkID) ([]byte, error)

// Fetcher fetches a manifest's missing chunks with bounded concurrency.
type Fetcher struct {
	store       *Store
	fetch       ChunkFetchFunc
	concurrency int
}

// NewFetcher returns a Fetcher that fills gaps in store by calling fetch,
// running at most concurrency fetches at a time.
func NewFetcher(store *Store, fetch ChunkFetchFunc, concurrency int) *Fetcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Fetcher{store: store, fetch: fetch, concurrency: concurrency}
}

// Fetch retrieves every chunk of m not already present in the fetcher's
// store, verifies each against its chunk id, and returns the reassembled,
// wire-id-verified blob. Concurrency is bounded the way
// golang.org/x/sync/errgroup's SetLimit is meant to be used, replacing
// hand-rolled goroutine+WaitGroup plumbing for this exact fan-out-then-join
// shape.
func (f *Fetcher) Fetch(ctx context.Context, m *Manifest) ([]byte, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	for _, id := range m.Chunks {
		id := id
		if f.store.Has(id) {
			continue
		}
		g.Go(func() error {
			data, err := f.fetch(ctx, id)
			if err != nil {
				return fmt.Errorf("blobstore: fetch chunk %s: %w", id.String(), err)
			}
			if chunkIDOf(data) != id {
				return newError(ErrChunkIntegrity, id.String())
			}
			f.store.Put(data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return f.store.Assemble(m)
}

// Wants is the local set of blob wire ids this node wants, advertised over
// ["blobs","createWants"].
type Wants struct {
	mu  sync.Mutex
	set map[string]struct{}
}

// NewWants returns an empty want set.
func NewWants() *Wants {
	return &Wants{set: make(map[string]struct{})}
}

// Add records wireID as wanted.
func (w *Wants) Add(wireID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.set[wireID] = struct{}{}
}

// Remove drops wireID from the want set, typically once it has been
// fetched and verified.
func (w *Wants) Remove(wireID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.set, wireID)
}

// List returns every currently wanted wire id.
func (w *Wants) List() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.set))
	for id := range w.set {
		out = append(out, id)
	}
	return out
}
