package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"ragflow/internal/domain"
	"ragflow/internal/prompt"
)

// OffTopicAnswer is the fixed answer for questions the corpus does not cover.
const OffTopicAnswer = "The question is off-topic, ending the process."

// maxTopDocuments is how many retrieved documents the pipeline keeps.
const maxTopDocuments = 3

// ClassifyResponse maps a raw classifier response to a verdict.
// Anything that does not mention "on-topic" counts as off-topic.
func ClassifyResponse(raw string) domain.Classification {
	if strings.Contains(strings.ToLower(raw), string(domain.OnTopic)) {
		return domain.OnTopic
	}
	return domain.OffTopic
}

// routeByTopic picks the branch after classification.
func routeByTopic(st domain.QueryState) string {
	if st.Classification == domain.OnTopic {
		return string(domain.OnTopic)
	}
	return string(domain.OffTopic)
}

func (s *Service) rewrite(ctx context.Context, st domain.QueryState) (domain.QueryState, error) {
	if strings.TrimSpace(st.Question) == "" {
		return st, fmt.Errorf("%w: empty question", domain.ErrMalformedState)
	}
	s.obs.Section("Starting query rewriting...")

	msgs, err := prompt.Rewrite(st.Question)
	if err != nil {
		return st, err
	}
	out, err := s.generate(ctx, msgs)
	if err != nil {
		return st, err
	}
	rewritten := strings.TrimSpace(out)
	if rewritten == "" {
		return st, fmt.Errorf("%w: empty rewrite", domain.ErrGenerationUnavailable)
	}
	st.Question = rewritten

	s.obs.Section("Rewritten question:\n" + rewritten)
	return st, nil
}

func (s *Service) retrieve(ctx context.Context, st domain.QueryState) (domain.QueryState, error) {
	s.obs.Section("Starting document retrieval...")

	docs, err := s.ret.Retrieve(ctx, st.Question)
	if err != nil {
		if !errors.Is(err, domain.ErrRetrievalUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrRetrievalUnavailable, err)
		}
		return st, err
	}
	n := min(len(docs), maxTopDocuments)
	top := make([]string, 0, n)
	for _, d := range docs[:n] {
		top = append(top, d.Content)
	}
	st.TopDocuments = top

	s.obs.OrderedList("Retrieved documents: ", top)
	return st, nil
}

func (s *Service) classify(ctx context.Context, st domain.QueryState) (domain.QueryState, error) {
	if st.Classification != domain.ClassificationUnset {
		return st, fmt.Errorf("%w: classification already set to %q", domain.ErrMalformedState, st.Classification)
	}
	s.obs.Section("Starting topic classification...")

	msgs, err := prompt.Classify(st.Question, st.TopDocuments)
	if err != nil {
		return st, err
	}
	raw, err := s.generate(ctx, msgs)
	if err != nil {
		return st, err
	}
	st.Classification = ClassifyResponse(raw)

	s.loggerFrom(ctx).Info("question classified",
		zap.String("classification", string(st.Classification)),
		zap.Int("documents", len(st.TopDocuments)))
	s.obs.Section("Classification result: " + string(st.Classification))
	return st, nil
}

func (s *Service) offTopic(_ context.Context, st domain.QueryState) (domain.QueryState, error) {
	if st.LLMOutput != "" {
		return st, fmt.Errorf("%w: answer already set", domain.ErrMalformedState)
	}
	s.obs.Section("Question is off-topic. Ending process.")
	st.LLMOutput = OffTopicAnswer
	return st, nil
}

func (s *Service) rerank(ctx context.Context, st domain.QueryState) (domain.QueryState, error) {
	s.obs.Section("Starting document reranking with preferences...")

	msgs, err := prompt.Rerank(st.Question, st.TopDocuments)
	if err != nil {
		return st, err
	}
	raw, err := s.generate(ctx, msgs)
	if err != nil {
		return st, err
	}

	s.obs.Section("Ranking result: " + raw)
	st.TopDocuments = []string{strings.TrimSpace(raw)}
	return st, nil
}

func (s *Service) answer(ctx context.Context, st domain.QueryState) (domain.QueryState, error) {
	if st.LLMOutput != "" {
		return st, fmt.Errorf("%w: answer already set", domain.ErrMalformedState)
	}
	s.obs.Section("Generating answer...")

	msgs, err := prompt.Answer(st.Question, strings.Join(st.TopDocuments, "\n"))
	if err != nil {
		return st, err
	}
	out, err := s.generate(ctx, msgs)
	if err != nil {
		return st, err
	}
	if strings.TrimSpace(out) == "" {
		return st, fmt.Errorf("%w: empty answer", domain.ErrGenerationUnavailable)
	}
	st.LLMOutput = out

	s.obs.Section("Generated answer: " + out)
	return st, nil
}

func (s *Service) generate(ctx context.Context, msgs []llms.MessageContent) (string, error) {
	out, err := s.gen.Generate(ctx, msgs)
	if err != nil {
		if !errors.Is(err, domain.ErrGenerationUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrGenerationUnavailable, err)
		}
		return "", err
	}
	return out, nil
}
