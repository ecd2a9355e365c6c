package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragflow/internal/chunker"
)

func TestSample(t *testing.T) {
	docs := Sample()
	require.Len(t, docs, 4)
	for _, d := range docs {
		assert.NotEmpty(t, d.PageContent)
		assert.Equal(t, "Sales Team Channel", d.Metadata["source"])
		assert.NotEmpty(t, d.Metadata["created_at"])
		assert.NotEmpty(t, d.Metadata["id"])
	}
	assert.Contains(t, docs[2].PageContent, "Michael Brown")
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("One. Two. Three."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("Skipped."), 0o644))

	docs, err := LoadFiles([]string{filepath.Join(dir, "*")}, chunker.NewSentenceChunker(2, 0))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "One. Two.", docs[0].PageContent)
	assert.Equal(t, "Three.", docs[1].PageContent)
	assert.Equal(t, filepath.Join(dir, "a.txt"), docs[0].Metadata["source"])
	assert.Equal(t, []string{"One. Two.", "Three."}, Texts(docs))
}

func TestLoadFilesMissing(t *testing.T) {
	_, err := LoadFiles([]string{filepath.Join(t.TempDir(), "missing.txt")}, chunker.NewSentenceChunker(2, 0))
	assert.Error(t, err)
}
