// Package names derives display names, avatar images and normalized
// signifiers from "about"-typed feed content (pkg/typedcontent.About),
// backing the names.get / names.getImageFor / names.getSignifier calls of
// spec §4.7. Like pkg/friends it holds no feed state of its own: callers
// replay each author's about messages through Apply as they verify them.
package names

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/WebFirstLanguage/ssbnet/pkg/typedcontent"
)

// Record is the resolved about-claim for one subject id.
type Record struct {
	Name        *string `cbor:"name,omitempty"`
	ImageLink   *string `cbor:"image_link,omitempty"`
	Description *string `cbor:"description,omitempty"`
	Sequence    uint64  `cbor:"sequence"`
}

// Store holds, per subject id, the best self-asserted about record and the
// best record asserted by any other author, mirroring the "prefer
// self-claim, fall back to third-party claim" convention ssb name
// resolution uses.
//
// Grounded on pkg/honeytag/cache.go's mutex-guarded map-of-records shape and
// pkg/honeytag/crdt.go's "higher version wins" last-writer-wins register —
// generalized from CBOR-cached HandleIndex/NameRecord/PresenceRecord entries
// with wall-clock lease expiry to in-memory About claims versioned by feed
// sequence number, since about messages carry no separate lease field.
type Store struct {
	mu     sync.RWMutex
	self   map[string]*Record
	others map[string]*Record
}

// NewStore returns an empty name store.
func NewStore() *Store {
	return &Store{
		self:   make(map[string]*Record),
		others: make(map[string]*Record),
	}
}

// Apply folds one author's "about" message into the store. sequence is the
// author's feed sequence number for this message, used as the
// last-writer-wins version. A self-claim cannot tie, since sequence numbers
// are unique per author; in the third-party bucket two authors can claim the
// same subject at equal sequence numbers, and the record already stored is
// then kept.
func (s *Store) Apply(author string, a typedcontent.About, sequence uint64) {
	rec := &Record{Sequence: sequence}
	if a.Name != nil {
		name := *a.Name
		rec.Name = &name
	}
	if a.Image != nil {
		link := a.Image.Link
		rec.ImageLink = &link
	}
	if a.Description != nil {
		desc := *a.Description
		rec.Description = &desc
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.others
	if author == a.About {
		bucket = s.self
	}
	if existing, ok := bucket[a.About]; ok && existing.Sequence >= sequence {
		return
	}
	bucket[a.About] = rec
}

func (s *Store) resolve(subject string) *Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.self[subject]; ok {
		return rec
	}
	if rec, ok := s.others[subject]; ok {
		return rec
	}
	return nil
}

// Get returns the resolved display name for subject, if any assertion has
// set one.
func (s *Store) Get(subject string) (string, bool) {
	rec := s.resolve(subject)
	if rec == nil || rec.Name == nil {
		return "", false
	}
	return *rec.Name, true
}

// GetImageFor returns the resolved avatar blob link for subject, if any.
func (s *Store) GetImageFor(subject string) (string, bool) {
	rec := s.resolve(subject)
	if rec == nil || rec.ImageLink == nil {
		return "", false
	}
	return *rec.ImageLink, true
}

// GetSignifier returns subject's display name normalized to NFKC and
// lower-cased, the canonical form used to compare names for collisions
// (spec.md's "names normalized to NFKC" convention, carried from
// pkg/constants/defaults.go's stated text-encoding rule).
func (s *Store) GetSignifier(subject string) (string, bool) {
	name, ok := s.Get(subject)
	if !ok {
		return "", false
	}
	return strings.ToLower(norm.NFKC.String(strings.TrimSpace(name))), true
}

// snapshot is the on-disk CBOR encoding of a Store, mirroring pkg/keystore's
// save/load convention for node-local state but using CBOR (the teacher's
// honeytag records used `cbor:"..."` struct tags for the same non-wire
// caching concern) instead of JSON, since this cache never crosses the
// signature-preimage boundary JSON is reserved for on the RPC wire.
type snapshot struct {
	Self   map[string]*Record `cbor:"self"`
	Others map[string]*Record `cbor:"others"`
}

// SaveToFile persists the store's resolved records to filename as CBOR, so a
// node restart does not need to replay every about message from scratch.
func (s *Store) SaveToFile(filename string) error {
	s.mu.RLock()
	snap := snapshot{Self: s.self, Others: s.others}
	s.mu.RUnlock()

	data, err := cbor.Marshal(snap)
	if err != nil {
		return fmt.Errorf("names: marshal cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0700); err != nil {
		return fmt.Errorf("names: create cache directory: %w", err)
	}
	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("names: write cache file: %w", err)
	}
	return nil
}

// LoadFromFile restores a store previously persisted with SaveToFile. A
// missing file is not an error; callers get a fresh, empty store instead,
// the same "cold start is fine" convention pkg/feedlog's Open uses.
func LoadFromFile(filename string) (*Store, error) {
	data, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return NewStore(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("names: read cache file: %w", err)
	}

	var snap snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("names: unmarshal cache: %w", err)
	}
	s := NewStore()
	if snap.Self != nil {
		s.self = snap.Self
	}
	if snap.Others != nil {
		s.others = snap.Others
	}
	return s, nil
}
