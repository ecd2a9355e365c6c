package qdrant

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ragflow/internal/embedding/tfidf"
)

func TestConfigValidate(t *testing.T) {
	assert.ErrorIs(t, Config{Collection: "c"}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Config{URL: "http://localhost:6333"}.Validate(), ErrInvalidConfig)
	assert.NoError(t, Config{URL: "http://localhost:6333", Collection: "c"}.Validate())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{}, tfidf.NewEmbedder())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(Config{URL: "://bad", Collection: "c"}, tfidf.NewEmbedder())
	assert.Error(t, err)
}
