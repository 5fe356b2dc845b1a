package memory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestUpsertReplacesByKey(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Upsert("home-city", "user lives in Denver"))
	require.NoError(t, s.Upsert("home-city", "user lives in Austin"))

	notes := s.All()
	require.Len(t, notes, 1)
	assert.Equal(t, "user lives in Austin", notes[0].Text)
}

func TestPersistAndReload(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Upsert("coffee", "prefers oat milk lattes"))
	require.NoError(t, s.Upsert("", "sister's birthday is in June"))

	// A fresh store over the same workspace sees both notes.
	reloaded, err := NewStore(dir)
	require.NoError(t, err)
	notes := reloaded.All()
	require.Len(t, notes, 2)
	assert.Equal(t, "coffee", notes[0].Key)

	data, err := os.ReadFile(filepath.Join(dir, ".nova", "MEMORY.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "- coffee: prefers oat milk lattes")
}

func TestRecallRanksByRareTermOverlap(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Upsert("coffee", "prefers oat milk lattes from Blue Bottle"))
	require.NoError(t, s.Upsert("home-city", "lives in Austin Texas"))
	require.NoError(t, s.Upsert("job", "works as a pediatric nurse"))

	hits := s.Recall("where does the user get coffee lattes", 3)
	require.NotEmpty(t, hits)
	assert.Equal(t, "coffee", hits[0].Note.Key)

	// No overlap yields no hits rather than noise.
	assert.Empty(t, s.Recall("quantum chromodynamics", 3))
}

func TestRecallTopK(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Upsert("a", "austin taco spots downtown"))
	require.NoError(t, s.Upsert("b", "austin music venues"))
	require.NoError(t, s.Upsert("c", "austin weather is hot"))
	require.NoError(t, s.Upsert("d", "austin traffic on mopac"))

	hits := s.Recall("austin", 3)
	assert.Len(t, hits, 3)
}
