package domain

import "slices"

// Classification is the topical verdict recorded by the classify stage.
type Classification string

const (
	ClassificationUnset Classification = ""
	OnTopic             Classification = "on-topic"
	OffTopic            Classification = "off-topic"
)

// QueryState is the record threaded through every stage of one traversal.
type QueryState struct {
	Question       string
	TopDocuments   []string
	Classification Classification
	LLMOutput      string
}

// NewQueryState creates the state for a single incoming question.
func NewQueryState(question string) QueryState {
	return QueryState{Question: question}
}

// Clone returns a copy that shares no backing storage with s.
func (s QueryState) Clone() QueryState {
	out := s
	out.TopDocuments = slices.Clone(s.TopDocuments)
	return out
}

// Document is a unit returned by the retrieval service.
// Only Content is read by the pipeline.
type Document struct {
	Content  string
	Metadata map[string]any
}
