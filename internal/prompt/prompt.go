// Package prompt builds the stage-specific messages sent to the generation service.
package prompt

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
)

var (
	rewriteTemplate = prompts.NewChatPromptTemplate([]prompts.MessageFormatter{
		prompts.NewSystemMessagePromptTemplate(rewriterSystem, nil),
		prompts.NewHumanMessagePromptTemplate(rewriterHuman, []string{"question"}),
	})
	classifyTemplate = prompts.NewChatPromptTemplate([]prompts.MessageFormatter{
		prompts.NewSystemMessagePromptTemplate(classifierSystem, nil),
		prompts.NewHumanMessagePromptTemplate(classifierHuman, []string{"question", "documents"}),
	})
	rerankTemplate = prompts.NewChatPromptTemplate([]prompts.MessageFormatter{
		prompts.NewHumanMessagePromptTemplate(rerankHuman, []string{"question", "documents"}),
	})
	answerTemplate = prompts.NewChatPromptTemplate([]prompts.MessageFormatter{
		prompts.NewHumanMessagePromptTemplate(answerHuman, []string{"context", "question"}),
	})
)

// Rewrite builds the query-rewriting prompt.
func Rewrite(question string) ([]llms.MessageContent, error) {
	return format(rewriteTemplate, map[string]any{"question": question})
}

// Classify builds the topic-classification prompt over the question and the
// newline-joined document texts.
func Classify(question string, documents []string) ([]llms.MessageContent, error) {
	return format(classifyTemplate, map[string]any{
		"question":  question,
		"documents": strings.Join(documents, "\n"),
	})
}

// Rerank builds the preference-ranking prompt.
func Rerank(question string, documents []string) ([]llms.MessageContent, error) {
	return format(rerankTemplate, map[string]any{
		"question":  question,
		"documents": enumerate(documents),
	})
}

// Answer builds the grounded-answer prompt.
func Answer(question, context string) ([]llms.MessageContent, error) {
	return format(answerTemplate, map[string]any{
		"question": question,
		"context":  context,
	})
}

func format(tpl prompts.ChatPromptTemplate, values map[string]any) ([]llms.MessageContent, error) {
	msgs, err := tpl.FormatMessages(values)
	if err != nil {
		return nil, fmt.Errorf("formatting prompt: %w", err)
	}
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llms.TextParts(m.GetType(), m.GetContent()))
	}
	return out, nil
}

func enumerate(documents []string) string {
	var b strings.Builder
	for i, d := range documents {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Document %d:\n%s", i+1, d)
	}
	return b.String()
}

// Text flattens messages into one string, mostly for logs and tests.
func Text(messages []llms.MessageContent) string {
	var parts []string
	for _, m := range messages {
		for _, p := range m.Parts {
			if tc, ok := p.(llms.TextContent); ok {
				parts = append(parts, tc.Text)
			}
		}
	}
	return strings.Join(parts, "\n")
}
