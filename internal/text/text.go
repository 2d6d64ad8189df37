// Package text owns document buffers. It applies (range, replacement) edits,
// numbers every resulting state with a monotonically increasing version, and
// hands out immutable snapshots to the rest of the pipeline.
package text

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Sentinel errors reported by the store. Returned wrapped with document
// context; check with errors.Is.
var (
	ErrUnknownDocument = errors.New("unknown document")
	ErrOutOfRange      = errors.New("edit out of range")
)

// Span is a half-open byte range [Start, End).
type Span struct {
	Start int
	End   int
}

// Len returns the number of bytes the span covers.
func (s Span) Len() int { return s.End - s.Start }

// Contains reports whether the byte offset falls inside the span.
func (s Span) Contains(off int) bool { return off >= s.Start && off < s.End }

// Overlaps reports whether two spans share at least one byte, or touch when
// either is empty. Touching matters for invalidation: an insertion at an item
// boundary must invalidate the item it lands on.
func (s Span) Overlaps(o Span) bool {
	return s.Start <= o.End && o.Start <= s.End
}

func (s Span) String() string { return fmt.Sprintf("[%d,%d)", s.Start, s.End) }

// Edit replaces the bytes in Range with NewText. Range offsets address the
// document state the edit was made against.
type Edit struct {
	Range   Span
	NewText string
}

// Delta is the signed change in document length the edit produces.
func (e Edit) Delta() int { return len(e.NewText) - e.Range.Len() }

// Version numbers one state of one document. Versions only grow and are never
// reused, so a (document, version) pair names a unique text.
type Version uint64

// Snapshot is an immutable view of a document state. Safe to retain and share
// across goroutines.
type Snapshot struct {
	DocID   string
	Text    string
	Version Version
	Hash    uint64
}

type document struct {
	id      string
	text    string
	version Version
	hash    uint64
}

// Store holds open documents. A single writer mutates each document; reads
// take consistent snapshots.
type Store struct {
	mu   sync.RWMutex
	docs map[string]*document
}

// NewStore returns an empty document store.
func NewStore() *Store {
	return &Store{docs: make(map[string]*document)}
}

// Open registers a document with its initial text and returns the initial
// version. Opening an id that is already open replaces its text and bumps the
// version, so re-opening an editor buffer is safe.
func (s *Store) Open(id, initial string) Version {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc, ok := s.docs[id]; ok {
		doc.text = initial
		doc.version++
		doc.hash = xxhash.Sum64String(initial)
		return doc.version
	}
	doc := &document{
		id:      id,
		text:    initial,
		version: 1,
		hash:    xxhash.Sum64String(initial),
	}
	s.docs[id] = doc
	return doc.version
}

// Apply replaces the edit's range with its new text and returns the resulting
// version. Fails with ErrUnknownDocument for an unopened id and ErrOutOfRange
// when the range does not fit the current text.
func (s *Store) Apply(id string, edit Edit) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return 0, fmt.Errorf("apply edit to %q: %w", id, ErrUnknownDocument)
	}
	r := edit.Range
	if r.Start < 0 || r.End < r.Start || r.End > len(doc.text) {
		return 0, fmt.Errorf("apply edit to %q: range %s against %d bytes: %w",
			id, r, len(doc.text), ErrOutOfRange)
	}

	doc.text = doc.text[:r.Start] + edit.NewText + doc.text[r.End:]
	doc.version++
	doc.hash = xxhash.Sum64String(doc.text)
	return doc.version, nil
}

// Snapshot returns the current immutable state of a document.
func (s *Store) Snapshot(id string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return Snapshot{}, fmt.Errorf("snapshot %q: %w", id, ErrUnknownDocument)
	}
	return Snapshot{DocID: id, Text: doc.text, Version: doc.version, Hash: doc.hash}, nil
}

// Close forgets a document.
func (s *Store) Close(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("close %q: %w", id, ErrUnknownDocument)
	}
	delete(s.docs, id)
	return nil
}

// IDs returns the open document ids in sorted order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of open documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
