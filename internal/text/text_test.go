package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSnapshotRoundTrip(t *testing.T) {
	s := NewStore()

	v := s.Open("a.mini", "module a\n")
	assert.Equal(t, Version(1), v)

	snap, err := s.Snapshot("a.mini")
	require.NoError(t, err)
	assert.Equal(t, "module a\n", snap.Text)
	assert.Equal(t, Version(1), snap.Version)
	assert.NotZero(t, snap.Hash)
}

func TestOpenExistingReplacesAndBumps(t *testing.T) {
	s := NewStore()

	s.Open("a.mini", "module a\n")
	v := s.Open("a.mini", "module b\n")
	assert.Equal(t, Version(2), v)

	snap, err := s.Snapshot("a.mini")
	require.NoError(t, err)
	assert.Equal(t, "module b\n", snap.Text)
}

func TestApplyEdit(t *testing.T) {
	s := NewStore()
	s.Open("a.mini", "let x = 1")

	v, err := s.Apply("a.mini", Edit{Range: Span{Start: 8, End: 9}, NewText: "42"})
	require.NoError(t, err)
	assert.Equal(t, Version(2), v)

	snap, err := s.Snapshot("a.mini")
	require.NoError(t, err)
	assert.Equal(t, "let x = 42", snap.Text)
}

func TestApplyInsertionAndDeletion(t *testing.T) {
	s := NewStore()
	s.Open("a.mini", "abcdef")

	// Pure insertion at offset 3.
	_, err := s.Apply("a.mini", Edit{Range: Span{Start: 3, End: 3}, NewText: "XY"})
	require.NoError(t, err)
	snap, _ := s.Snapshot("a.mini")
	assert.Equal(t, "abcXYdef", snap.Text)

	// Pure deletion of the insertion.
	_, err = s.Apply("a.mini", Edit{Range: Span{Start: 3, End: 5}, NewText: ""})
	require.NoError(t, err)
	snap, _ = s.Snapshot("a.mini")
	assert.Equal(t, "abcdef", snap.Text)
}

func TestApplyUnknownDocument(t *testing.T) {
	s := NewStore()

	_, err := s.Apply("missing", Edit{Range: Span{0, 0}, NewText: "x"})
	assert.ErrorIs(t, err, ErrUnknownDocument)
}

func TestApplyOutOfRange(t *testing.T) {
	s := NewStore()
	s.Open("a.mini", "short")

	cases := []Span{
		{Start: -1, End: 2},
		{Start: 3, End: 2},
		{Start: 0, End: 6},
		{Start: 99, End: 100},
	}
	for _, r := range cases {
		_, err := s.Apply("a.mini", Edit{Range: r, NewText: "x"})
		assert.ErrorIs(t, err, ErrOutOfRange, "range %v", r)
	}

	// The failed edits must not have touched the text or version.
	snap, err := s.Snapshot("a.mini")
	require.NoError(t, err)
	assert.Equal(t, "short", snap.Text)
	assert.Equal(t, Version(1), snap.Version)
}

func TestVersionsNeverReused(t *testing.T) {
	s := NewStore()
	s.Open("a.mini", "")

	seen := map[Version]bool{1: true}
	for i := 0; i < 10; i++ {
		v, err := s.Apply("a.mini", Edit{Range: Span{0, 0}, NewText: "x"})
		require.NoError(t, err)
		assert.False(t, seen[v], "version %d reused", v)
		seen[v] = true
	}
}

func TestCloseForgetsDocument(t *testing.T) {
	s := NewStore()
	s.Open("a.mini", "x")

	require.NoError(t, s.Close("a.mini"))
	_, err := s.Snapshot("a.mini")
	assert.ErrorIs(t, err, ErrUnknownDocument)
	assert.ErrorIs(t, s.Close("a.mini"), ErrUnknownDocument)
}

func TestIDsSorted(t *testing.T) {
	s := NewStore()
	s.Open("c.mini", "")
	s.Open("a.mini", "")
	s.Open("b.mini", "")

	assert.Equal(t, []string{"a.mini", "b.mini", "c.mini"}, s.IDs())
	assert.Equal(t, 3, s.Len())
}

func TestSpanOverlaps(t *testing.T) {
	base := Span{Start: 10, End: 20}

	assert.True(t, base.Overlaps(Span{15, 25}))
	assert.True(t, base.Overlaps(Span{0, 10}), "touching start counts")
	assert.True(t, base.Overlaps(Span{20, 20}), "empty span at end counts")
	assert.False(t, base.Overlaps(Span{21, 30}))
	assert.False(t, base.Overlaps(Span{0, 9}))
}

func TestEditDelta(t *testing.T) {
	assert.Equal(t, 2, Edit{Range: Span{0, 0}, NewText: "ab"}.Delta())
	assert.Equal(t, -3, Edit{Range: Span{0, 3}, NewText: ""}.Delta())
	assert.Equal(t, 0, Edit{Range: Span{0, 2}, NewText: "xy"}.Delta())
}
