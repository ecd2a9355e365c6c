// Package chunker splits corpus files into retrieval passages.
package chunker

import (
	"regexp"
	"strconv"
	"strings"
)

// Chunk is one passage cut from a source text.
type Chunk struct {
	SourceID string
	ChunkID  string
	Text     string
	Index    int
}

// SentenceChunker splits text into sentence-based chunks with overlap.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	if overlapSentences >= sentencesPerChunk {
		overlapSentences = sentencesPerChunk - 1
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		splitter:          regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
	}
}

// Chunk cuts text into passages tagged with sourceID.
func (c *SentenceChunker) Chunk(sourceID, text string) []Chunk {
	sentences := c.splitter.FindAllString(text, -1)
	if len(sentences) == 0 {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		sentences = []string{trimmed}
	}
	for i := range sentences {
		sentences[i] = strings.TrimSpace(sentences[i])
	}
	var chunks []Chunk
	for i, idx := 0, 0; i < len(sentences); idx++ {
		end := min(i+c.sentencesPerChunk, len(sentences))
		chunks = append(chunks, Chunk{
			SourceID: sourceID,
			ChunkID:  sourceID + ":" + strconv.Itoa(idx),
			Text:     strings.Join(sentences[i:end], " "),
			Index:    idx,
		})
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return chunks
}
