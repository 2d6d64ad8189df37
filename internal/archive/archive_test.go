package archive

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)

	snap := Snapshot{
		Revision:  3,
		EngineID:  "engine-1",
		CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Graph:     "trellis-graph v1\nn module geometry public -\n",
	}
	require.NoError(t, s.Save(snap))

	got, err := s.Load(3)
	require.NoError(t, err)
	assert.Equal(t, snap.Revision, got.Revision)
	assert.Equal(t, snap.EngineID, got.EngineID)
	assert.Equal(t, snap.Graph, got.Graph)
}

func TestLoadUnknownRevision(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Load(42)
	assert.ErrorIs(t, err, ErrUnknownRevision)
}

func TestSaveSameRevisionOverwrites(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Save(Snapshot{Revision: 1, EngineID: "e", CreatedAt: time.Now(), Graph: "first"}))
	require.NoError(t, s.Save(Snapshot{Revision: 1, EngineID: "e", CreatedAt: time.Now(), Graph: "second"}))

	got, err := s.Load(1)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Graph)
}

func TestRevisionsAscending(t *testing.T) {
	s := openTestStore(t)

	for _, rev := range []uint64{5, 1, 3} {
		require.NoError(t, s.Save(Snapshot{Revision: rev, EngineID: "e", CreatedAt: time.Now(), Graph: "g"}))
	}
	revs, err := s.Revisions()
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3, 5}, revs)
}

func TestPruneKeepsNewest(t *testing.T) {
	s := openTestStore(t)

	for rev := uint64(1); rev <= 5; rev++ {
		require.NoError(t, s.Save(Snapshot{Revision: rev, EngineID: "e", CreatedAt: time.Now(), Graph: "g"}))
	}
	require.NoError(t, s.Prune(2))

	revs, err := s.Revisions()
	require.NoError(t, err)
	assert.Equal(t, []uint64{4, 5}, revs)

	_, err = s.Load(1)
	assert.ErrorIs(t, err, ErrUnknownRevision)
}

func TestOpenPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(Snapshot{Revision: 7, EngineID: "e", CreatedAt: time.Now(), Graph: "persisted"}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load(7)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Graph)
}
